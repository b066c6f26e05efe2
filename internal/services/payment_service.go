package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"academy-payments-service/internal/config"
	"academy-payments-service/internal/models"
	"academy-payments-service/internal/repository"
)

// EventPublisher emits domain events. Publish errors are logged, never returned.
type EventPublisher interface {
	PublishCouponApplied(ctx context.Context, payment *models.ManualPayment, originalAmount float64) error
	PublishPaymentApproved(ctx context.Context, payment *models.ManualPayment, user *models.User) error
	PublishPaymentRejected(ctx context.Context, payment *models.ManualPayment, user *models.User, reason string) error
}

// Notifier sends learner-facing emails
type Notifier interface {
	SendPaymentApproved(ctx context.Context, user *models.User, course *models.Course, payment *models.ManualPayment) error
	SendPaymentRejected(ctx context.Context, user *models.User, course *models.Course, payment *models.ManualPayment) error
}

// PaymentService implements checkout, manual payment submission, admin
// adjudication and coupon usage reporting
type PaymentService struct {
	repo      repository.PaymentRepositoryInterface
	coupons   *CouponEvaluator
	pricing   config.PricingConfig
	upi       config.UPIConfig
	publisher EventPublisher
	notifier  Notifier
	logger    *logrus.Entry
	now       func() time.Time
}

// NewPaymentService creates a new PaymentService. publisher and notifier may be nil.
func NewPaymentService(
	repo repository.PaymentRepositoryInterface,
	cfg *config.Config,
	publisher EventPublisher,
	notifier Notifier,
	logger *logrus.Logger,
) *PaymentService {
	return &PaymentService{
		repo:      repo,
		coupons:   NewCouponEvaluator(repo, logger),
		pricing:   cfg.Pricing,
		upi:       cfg.UPI,
		publisher: publisher,
		notifier:  notifier,
		logger:    logger.WithField("component", "payment_service"),
		now:       time.Now,
	}
}

// enrich attaches user and course display fields to payments
func (s *PaymentService) enrich(ctx context.Context, payments []models.ManualPayment, withUsers bool) ([]models.PaymentView, error) {
	courseIDs := make([]uuid.UUID, 0, len(payments))
	userIDs := make([]uuid.UUID, 0, len(payments))
	for _, p := range payments {
		courseIDs = append(courseIDs, p.CourseID)
		userIDs = append(userIDs, p.UserID)
	}

	courses, err := s.repo.GetCoursesByIDs(ctx, uniqueIDs(courseIDs))
	if err != nil {
		return nil, err
	}
	users := map[uuid.UUID]models.User{}
	if withUsers {
		if users, err = s.repo.GetUsersByIDs(ctx, uniqueIDs(userIDs)); err != nil {
			return nil, err
		}
	}

	views := make([]models.PaymentView, 0, len(payments))
	for _, p := range payments {
		view := models.PaymentView{ManualPayment: p}
		if c, ok := courses[p.CourseID]; ok {
			view.CourseTitle = c.Title
			view.CourseThumbnail = c.Thumbnail
		}
		if u, ok := users[p.UserID]; ok {
			view.UserName = u.Name
			view.UserEmail = u.Email
		}
		views = append(views, view)
	}
	return views, nil
}

// createAuditLog records a decision. Failures are logged only.
func (s *PaymentService) createAuditLog(ctx context.Context, paymentID uuid.UUID, action string, actorID *uuid.UUID, metadata map[string]interface{}) {
	var metadataJSON datatypes.JSON
	if metadata != nil {
		if data, err := json.Marshal(metadata); err == nil {
			metadataJSON = data
		}
	}

	entry := &models.PaymentAuditLog{
		PaymentID: paymentID,
		Action:    action,
		ActorID:   actorID,
		Metadata:  metadataJSON,
	}
	if err := s.repo.CreateAuditLog(ctx, entry); err != nil {
		s.logger.WithError(err).WithField("payment_id", paymentID).Warn("failed to write audit log")
	}
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
