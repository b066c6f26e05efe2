package services

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"academy-payments-service/internal/metrics"
	"academy-payments-service/internal/models"
	"academy-payments-service/internal/repository"
)

const (
	maxNameLength  = 120
	maxEmailLength = 160
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// StartCheckout prices a course for the caller. Nothing is persisted; the
// quote's expiry is advisory.
func (s *PaymentService) StartCheckout(ctx context.Context, courseID, userID uuid.UUID, req models.CheckoutRequest) (*models.CheckoutQuote, error) {
	name := truncate(strings.TrimSpace(req.Name), maxNameLength)
	email := truncate(strings.TrimSpace(req.Email), maxEmailLength)
	if name == "" {
		return nil, newValidationError("name", "name is required")
	}
	if email == "" || !emailPattern.MatchString(email) {
		return nil, newValidationError("email", "a valid email is required")
	}

	if _, err := s.repo.GetActiveEnrollment(ctx, userID, courseID); err == nil {
		return nil, ErrAlreadyEnrolled
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	course, err := s.repo.GetCourseByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrCourseNotFound
		}
		return nil, err
	}

	now := s.now()
	pct, code := s.coupons.Evaluate(ctx, req.Coupon, now)
	flat := s.pricing.DirectUPIExtraDiscount
	price := Price(course.Price, pct, flat)

	metrics.CheckoutQuotes.WithLabelValues(strconv.FormatBool(code != "")).Inc()

	return &models.CheckoutQuote{
		CourseID:                       course.ID,
		CourseTitle:                    course.Title,
		CourseThumbnail:                course.Thumbnail,
		OriginalAmount:                 course.Price,
		DiscountPercent:                pct,
		CouponCode:                     code,
		DirectUPIExtraDiscount:         flat,
		Amount:                         price.Final,
		BaseAmountBeforeDirectDiscount: price.Discounted,
		SessionExpiresAt:               now.Add(s.pricing.CheckoutSessionTTL),
		Name:                           name,
		Email:                          email,
	}, nil
}
