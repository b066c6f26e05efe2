package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"academy-payments-service/internal/metrics"
	"academy-payments-service/internal/models"
	"academy-payments-service/internal/repository"
)

const maxRejectionNoteLength = 1000

// AdjudicationResult describes the outcome of an approve or reject
type AdjudicationResult struct {
	Payment           *models.ManualPayment
	Enrollment        *models.Enrollment
	EnrollmentCreated bool
	// Minimal is set when a rejection fell back to the reduced field set
	Minimal bool
}

// ApprovePayment grants the course to the payer and marks the payment
// approved in one transaction. An existing active enrollment is reused.
func (s *PaymentService) ApprovePayment(ctx context.Context, paymentID, adminID uuid.UUID) (*AdjudicationResult, error) {
	if _, err := s.loadPending(ctx, s.repo, paymentID, false); err != nil {
		return nil, err
	}

	result := &AdjudicationResult{}
	err := s.repo.WithTransaction(ctx, func(txRepo repository.PaymentRepositoryInterface) error {
		payment, err := s.loadPending(ctx, txRepo, paymentID, true)
		if err != nil {
			return err
		}

		enrollment, created, err := s.ensureEnrollment(ctx, txRepo, payment)
		if err != nil {
			return err
		}
		if created {
			s.enrichEnrollment(ctx, txRepo, enrollment, payment)
		}

		processedAt := s.now()
		if err := txRepo.UpdatePayment(ctx, payment.ID, map[string]interface{}{
			"status":       models.PaymentStatusApproved,
			"processed_by": adminID,
			"processed_at": processedAt,
		}); err != nil {
			return fmt.Errorf("mark payment approved: %w", err)
		}
		payment.Status = models.PaymentStatusApproved
		payment.ProcessedBy = &adminID
		payment.ProcessedAt = &processedAt

		result.Payment = payment
		result.Enrollment = enrollment
		result.EnrollmentCreated = created
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.Adjudications.WithLabelValues(metrics.DecisionApproved).Inc()
	s.logger.WithFields(logrus.Fields{
		"payment_id":         paymentID,
		"admin_id":           adminID,
		"enrollment_id":      result.Enrollment.ID,
		"enrollment_created": result.EnrollmentCreated,
	}).Info("manual payment approved")

	s.createAuditLog(ctx, paymentID, models.AuditActionApproved, &adminID, map[string]interface{}{
		"enrollment_id":      result.Enrollment.ID,
		"enrollment_created": result.EnrollmentCreated,
		"amount":             result.Payment.Amount,
	})
	s.afterDecision(ctx, result.Payment, "")

	return result, nil
}

// RejectPayment marks a pending payment rejected. If the full update fails
// the payment is rejected with only status and processed_at.
func (s *PaymentService) RejectPayment(ctx context.Context, paymentID, adminID uuid.UUID, note string) (*AdjudicationResult, error) {
	if _, err := s.loadPending(ctx, s.repo, paymentID, false); err != nil {
		return nil, err
	}
	note = truncate(note, maxRejectionNoteLength)

	result := &AdjudicationResult{}
	err := s.repo.WithTransaction(ctx, func(txRepo repository.PaymentRepositoryInterface) error {
		payment, err := s.loadPending(ctx, txRepo, paymentID, true)
		if err != nil {
			return err
		}

		processedAt := s.now()
		full := map[string]interface{}{
			"status":       models.PaymentStatusRejected,
			"processed_by": adminID,
			"processed_at": processedAt,
		}
		if note != "" {
			full["rejection_note"] = note
		}

		err = txRepo.WithSavepoint(ctx, "reject_payment", func(sp repository.PaymentRepositoryInterface) error {
			return sp.UpdatePayment(ctx, payment.ID, full)
		})
		if err != nil {
			s.logger.WithError(err).WithField("payment_id", payment.ID).Warn("full rejection update failed, retrying with minimal fields")
			if err := txRepo.UpdatePayment(ctx, payment.ID, map[string]interface{}{
				"status":       models.PaymentStatusRejected,
				"processed_at": processedAt,
			}); err != nil {
				return fmt.Errorf("mark payment rejected: %w", err)
			}
			result.Minimal = true
		} else {
			payment.ProcessedBy = &adminID
			if note != "" {
				payment.RejectionNote = &note
			}
		}

		payment.Status = models.PaymentStatusRejected
		payment.ProcessedAt = &processedAt
		result.Payment = payment
		return nil
	})
	if err != nil {
		return nil, err
	}

	action, decision := models.AuditActionRejected, metrics.DecisionRejected
	if result.Minimal {
		action, decision = models.AuditActionRejectedMinimal, metrics.DecisionRejectedMinimal
	}
	metrics.Adjudications.WithLabelValues(decision).Inc()
	s.logger.WithFields(logrus.Fields{
		"payment_id": paymentID,
		"admin_id":   adminID,
		"minimal":    result.Minimal,
	}).Info("manual payment rejected")

	s.createAuditLog(ctx, paymentID, action, &adminID, map[string]interface{}{
		"rejection_note": note,
	})
	s.afterDecision(ctx, result.Payment, note)

	return result, nil
}

func (s *PaymentService) loadPending(ctx context.Context, repo repository.PaymentRepositoryInterface, id uuid.UUID, lock bool) (*models.ManualPayment, error) {
	var payment *models.ManualPayment
	var err error
	if lock {
		payment, err = repo.GetPaymentByIDForUpdate(ctx, id)
	} else {
		payment, err = repo.GetPaymentByID(ctx, id)
	}
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	if !payment.IsPending() {
		return nil, ErrPaymentNotPending
	}
	return payment, nil
}

// ensureEnrollment returns the active enrollment for the payer, creating it
// when missing. A concurrent insert that wins the unique index is reused.
func (s *PaymentService) ensureEnrollment(ctx context.Context, txRepo repository.PaymentRepositoryInterface, payment *models.ManualPayment) (*models.Enrollment, bool, error) {
	existing, err := txRepo.GetActiveEnrollment(ctx, payment.UserID, payment.CourseID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, false, err
	}

	enrollment := &models.Enrollment{
		UserID:   payment.UserID,
		CourseID: payment.CourseID,
		Status:   models.EnrollmentStatusActive,
	}
	err = txRepo.WithSavepoint(ctx, "create_enrollment", func(sp repository.PaymentRepositoryInterface) error {
		return sp.CreateEnrollment(ctx, enrollment)
	})
	if err == nil {
		return enrollment, true, nil
	}
	if !errors.Is(err, repository.ErrActiveEnrollmentExists) {
		return nil, false, fmt.Errorf("create enrollment: %w", err)
	}

	existing, err = txRepo.GetActiveEnrollment(ctx, payment.UserID, payment.CourseID)
	if err != nil {
		return nil, false, fmt.Errorf("reload enrollment: %w", err)
	}
	return existing, false, nil
}

// enrichEnrollment copies payment references onto a new enrollment.
// Failure is logged and rolled back to a savepoint.
func (s *PaymentService) enrichEnrollment(ctx context.Context, txRepo repository.PaymentRepositoryInterface, enrollment *models.Enrollment, payment *models.ManualPayment) {
	orderID := payment.ID.String()
	amount := payment.Amount
	updates := map[string]interface{}{
		"payment_id":  payment.TransactionID,
		"order_id":    orderID,
		"amount_paid": amount,
	}

	err := txRepo.WithSavepoint(ctx, "enrich_enrollment", func(sp repository.PaymentRepositoryInterface) error {
		return sp.UpdateEnrollment(ctx, enrollment.ID, updates)
	})
	if err != nil {
		s.logger.WithError(err).WithField("enrollment_id", enrollment.ID).Warn("failed to attach payment details to enrollment")
		return
	}
	enrollment.PaymentID = payment.TransactionID
	enrollment.OrderID = &orderID
	enrollment.AmountPaid = &amount
}

// afterDecision publishes the decision and emails the learner. Both are
// best-effort and run after commit.
func (s *PaymentService) afterDecision(ctx context.Context, payment *models.ManualPayment, reason string) {
	if s.publisher == nil && s.notifier == nil {
		return
	}

	user, err := s.repo.GetUserByID(ctx, payment.UserID)
	if err != nil {
		s.logger.WithError(err).WithField("user_id", payment.UserID).Warn("failed to load payer for notifications")
		return
	}

	approved := payment.Status == models.PaymentStatusApproved
	if s.publisher != nil {
		if approved {
			err = s.publisher.PublishPaymentApproved(ctx, payment, user)
		} else {
			err = s.publisher.PublishPaymentRejected(ctx, payment, user, reason)
		}
		if err != nil {
			s.logger.WithError(err).WithField("payment_id", payment.ID).Warn("failed to publish payment event")
		}
	}

	if s.notifier == nil {
		return
	}
	course, err := s.repo.GetCourseByID(ctx, payment.CourseID)
	if err != nil {
		s.logger.WithError(err).WithField("course_id", payment.CourseID).Warn("failed to load course for notification")
		return
	}
	if approved {
		err = s.notifier.SendPaymentApproved(ctx, user, course, payment)
	} else {
		err = s.notifier.SendPaymentRejected(ctx, user, course, payment)
	}
	if err != nil {
		s.logger.WithError(err).WithField("payment_id", payment.ID).Warn("failed to send payment notification")
	}
}

// ReconcileEnrolledPayments approves pending payments whose enrollment was
// already granted, repairing rows left behind by interrupted approvals.
func (s *PaymentService) ReconcileEnrolledPayments(ctx context.Context, batchSize int) (int, error) {
	candidates, err := s.repo.ListPendingPaymentsWithEnrollment(ctx, batchSize)
	if err != nil {
		return 0, fmt.Errorf("list pending payments with enrollment: %w", err)
	}

	reconciled := 0
	for _, candidate := range candidates {
		err := s.repo.WithTransaction(ctx, func(txRepo repository.PaymentRepositoryInterface) error {
			if _, err := s.loadPending(ctx, txRepo, candidate.ID, true); err != nil {
				return err
			}
			return txRepo.UpdatePayment(ctx, candidate.ID, map[string]interface{}{
				"status":       models.PaymentStatusApproved,
				"processed_at": s.now(),
			})
		})
		if err != nil {
			if errors.Is(err, ErrPaymentNotPending) {
				continue
			}
			s.logger.WithError(err).WithField("payment_id", candidate.ID).Warn("failed to reconcile payment")
			continue
		}
		reconciled++
		metrics.Reconciled.Inc()
		s.createAuditLog(ctx, candidate.ID, models.AuditActionReconciled, nil, nil)
	}

	return reconciled, nil
}
