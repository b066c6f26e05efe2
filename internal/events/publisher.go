package events

import (
	"context"

	"github.com/Tesseract-Nexus/go-shared/events"
	"github.com/sirupsen/logrus"

	"academy-payments-service/internal/models"
)

const currencyINR = "INR"

// Publisher wraps the shared events publisher for manual payment events
type Publisher struct {
	publisher *events.Publisher
	tenantID  string
	logger    *logrus.Entry
}

// NewPublisher connects to NATS and ensures the payment and coupon streams exist
func NewPublisher(natsURL, tenantID string, logger *logrus.Logger) (*Publisher, error) {
	config := events.DefaultPublisherConfig(natsURL)
	config.Name = "academy-payments-service"

	publisher, err := events.NewPublisher(config, logger)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	if err := publisher.EnsureStream(ctx, events.StreamPayments, []string{"payment.>"}); err != nil {
		logger.WithError(err).Warn("Failed to ensure PAYMENT_EVENTS stream")
	}
	if err := publisher.EnsureStream(ctx, events.StreamCoupons, []string{"coupon.>"}); err != nil {
		logger.WithError(err).Warn("Failed to ensure COUPON_EVENTS stream")
	}

	return &Publisher{
		publisher: publisher,
		tenantID:  tenantID,
		logger:    logger.WithField("component", "events.publisher"),
	}, nil
}

// PublishCouponApplied publishes a coupon applied event for a submitted payment
func (p *Publisher) PublishCouponApplied(ctx context.Context, payment *models.ManualPayment, originalAmount float64) error {
	event := events.NewCouponEvent(events.CouponApplied, p.tenantID)
	event.CouponCode = deref(payment.CouponCode)
	event.OrderID = payment.ID.String()
	event.CustomerID = payment.UserID.String()
	event.DiscountAmount = originalAmount - payment.Amount
	event.OrderValue = originalAmount
	event.Currency = currencyINR

	return p.publisher.Publish(ctx, event)
}

// PublishPaymentApproved publishes a payment succeeded event
func (p *Publisher) PublishPaymentApproved(ctx context.Context, payment *models.ManualPayment, user *models.User) error {
	event := events.NewPaymentEvent(events.PaymentSucceeded, p.tenantID)
	event.PaymentID = deref(payment.TransactionID)
	event.OrderID = payment.ID.String()
	event.CustomerEmail = user.Email
	event.CustomerName = user.Name
	event.Amount = payment.Amount
	event.Currency = currencyINR
	event.Provider = "manual"
	event.Method = payment.PaymentMethod
	event.Status = "succeeded"

	return p.publisher.PublishPayment(ctx, event)
}

// PublishPaymentRejected publishes a payment failed event
func (p *Publisher) PublishPaymentRejected(ctx context.Context, payment *models.ManualPayment, user *models.User, reason string) error {
	event := events.NewPaymentEvent(events.PaymentFailed, p.tenantID)
	event.PaymentID = deref(payment.TransactionID)
	event.OrderID = payment.ID.String()
	event.CustomerEmail = user.Email
	event.Amount = payment.Amount
	event.Currency = currencyINR
	event.ErrorCode = "MANUAL_PAYMENT_REJECTED"
	event.ErrorMessage = reason
	event.Status = "failed"

	return p.publisher.PublishPayment(ctx, event)
}

// IsConnected returns true if connected to NATS
func (p *Publisher) IsConnected() bool {
	return p.publisher.IsConnected()
}

// Close closes the publisher connection
func (p *Publisher) Close() {
	p.publisher.Close()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
