package services

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"academy-payments-service/internal/metrics"
	"academy-payments-service/internal/models"
	"academy-payments-service/internal/repository"
)

const (
	maxTransactionIDLength = 100
	maxReceiptEmailLength  = 160
	maxPaymentMethodLength = 30

	defaultPaymentMethod = "UPI"
)

// SubmitPayment records a learner's proof of a manual payment as pending.
// The amount is always recomputed from the course price and coupon table.
func (s *PaymentService) SubmitPayment(ctx context.Context, courseID, userID uuid.UUID, req models.SubmitPaymentRequest) (*models.ManualPayment, error) {
	transactionID := truncate(strings.TrimSpace(req.TransactionID), maxTransactionIDLength)
	receiptEmail := truncate(strings.TrimSpace(req.ReceiptEmail), maxReceiptEmailLength)
	method := truncate(strings.TrimSpace(req.PaymentMethod), maxPaymentMethodLength)
	if method == "" {
		method = defaultPaymentMethod
	}
	if transactionID == "" && receiptEmail == "" {
		metrics.Submissions.WithLabelValues(metrics.OutcomeInvalid).Inc()
		return nil, newValidationError("transaction_id", "transaction_id or receipt_email is required")
	}

	course, err := s.repo.GetCourseByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrCourseNotFound
		}
		return nil, err
	}

	// Friendly pre-checks; the unique indexes settle races below.
	if transactionID != "" {
		exists, err := s.repo.TransactionIDExists(ctx, transactionID)
		if err != nil {
			return nil, err
		}
		if exists {
			metrics.Submissions.WithLabelValues(metrics.OutcomeConflict).Inc()
			return nil, ErrDuplicateTransaction
		}
	}
	if _, err := s.repo.GetPendingPayment(ctx, userID, courseID); err == nil {
		metrics.Submissions.WithLabelValues(metrics.OutcomeConflict).Inc()
		return nil, ErrPendingPaymentExists
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	pct, code := s.coupons.Evaluate(ctx, req.Coupon, s.now())
	flat := 0.0
	if strings.EqualFold(method, defaultPaymentMethod) {
		flat = s.pricing.DirectUPIExtraDiscount
	}
	price := Price(course.Price, pct, flat)

	payment := &models.ManualPayment{
		UserID:        userID,
		CourseID:      courseID,
		Amount:        price.Final,
		PaymentMethod: method,
		TransactionID: optionalString(transactionID),
		ReceiptEmail:  optionalString(receiptEmail),
		Status:        models.PaymentStatusPending,
		CouponCode:    optionalString(code),
	}

	if err := s.repo.CreatePayment(ctx, payment); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateTransactionID):
			metrics.Submissions.WithLabelValues(metrics.OutcomeConflict).Inc()
			return nil, ErrDuplicateTransaction
		case errors.Is(err, repository.ErrPendingPaymentExists):
			metrics.Submissions.WithLabelValues(metrics.OutcomeConflict).Inc()
			return nil, ErrPendingPaymentExists
		}
		metrics.Submissions.WithLabelValues(metrics.OutcomeError).Inc()
		return nil, err
	}

	metrics.Submissions.WithLabelValues(metrics.OutcomeAccepted).Inc()
	s.logger.WithFields(logrus.Fields{
		"payment_id": payment.ID,
		"user_id":    userID,
		"course_id":  courseID,
		"amount":     payment.Amount,
		"coupon":     code,
	}).Info("manual payment submitted")

	if code != "" && s.publisher != nil {
		if err := s.publisher.PublishCouponApplied(ctx, payment, course.Price); err != nil {
			s.logger.WithError(err).Warn("failed to publish coupon applied event")
		}
	}

	return payment, nil
}
