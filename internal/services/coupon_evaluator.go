package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"academy-payments-service/internal/models"
	"academy-payments-service/internal/repository"
)

// NormalizeCouponCode trims and uppercases a coupon code
func NormalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// DiscountPercentAt returns the coupon's discount clamped to [0,100], or 0
// when the coupon is inactive or outside its validity window
func DiscountPercentAt(coupon *models.Coupon, now time.Time) float64 {
	if coupon == nil || !coupon.IsActiveAt(now) {
		return 0
	}
	switch {
	case coupon.DiscountPercent < 0:
		return 0
	case coupon.DiscountPercent > 100:
		return 100
	}
	return coupon.DiscountPercent
}

// CouponEvaluator resolves coupon codes to a discount percentage
type CouponEvaluator struct {
	repo   repository.PaymentRepositoryInterface
	logger *logrus.Entry
}

// NewCouponEvaluator creates a new CouponEvaluator
func NewCouponEvaluator(repo repository.PaymentRepositoryInterface, logger *logrus.Logger) *CouponEvaluator {
	return &CouponEvaluator{
		repo:   repo,
		logger: logger.WithField("component", "coupon_evaluator"),
	}
}

// Evaluate returns the discount percentage for code at now. Unknown, inactive
// and expired codes yield 0; lookup failures are logged and also yield 0.
// The returned code is the normalized code when a discount applies.
func (e *CouponEvaluator) Evaluate(ctx context.Context, code string, now time.Time) (float64, string) {
	normalized := NormalizeCouponCode(code)
	if normalized == "" {
		return 0, ""
	}

	coupon, err := e.repo.GetCouponByCode(ctx, normalized)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			e.logger.WithError(err).WithField("coupon_code", normalized).Warn("coupon lookup failed, applying no discount")
		}
		return 0, ""
	}

	pct := DiscountPercentAt(coupon, now)
	if pct == 0 {
		return 0, ""
	}
	return pct, normalized
}
