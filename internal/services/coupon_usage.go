package services

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"academy-payments-service/internal/models"
)

// CouponStats counts payments per recorded coupon code
func (s *PaymentService) CouponStats(ctx context.Context) (map[string]int64, error) {
	return s.repo.CountPaymentsByCoupon(ctx)
}

// CouponUsages lists payments that used a coupon, newest first. With
// includeInferred, payments recorded before coupons were tracked are
// attributed by matching their amount against active coupons; such rows are
// flagged inferred and list every matching code when the match is ambiguous.
func (s *PaymentService) CouponUsages(ctx context.Context, code string, includeInferred bool) ([]models.CouponUsage, error) {
	code = NormalizeCouponCode(code)

	explicit, err := s.repo.ListPaymentsWithCoupon(ctx, code)
	if err != nil {
		return nil, err
	}

	payments := make([]models.ManualPayment, 0, len(explicit))
	payments = append(payments, explicit...)
	inferred := map[uuid.UUID][]string{}

	if includeInferred {
		matches, err := s.inferCouponUsages(ctx, code)
		if err != nil {
			return nil, err
		}
		seen := make(map[uuid.UUID]struct{}, len(explicit))
		for _, p := range explicit {
			seen[p.ID] = struct{}{}
		}
		for _, m := range matches {
			if _, dup := seen[m.payment.ID]; dup {
				continue
			}
			p := m.payment
			p.CouponCode = &m.codes[0]
			payments = append(payments, p)
			inferred[p.ID] = m.codes
		}
	}

	views, err := s.enrich(ctx, payments, true)
	if err != nil {
		return nil, err
	}

	usages := make([]models.CouponUsage, 0, len(views))
	for _, v := range views {
		usage := models.CouponUsage{PaymentView: v}
		if codes, ok := inferred[v.ID]; ok {
			usage.Inferred = true
			usage.CandidateCodes = codes
			usage.Ambiguous = len(codes) > 1
		}
		usages = append(usages, usage)
	}

	sort.SliceStable(usages, func(i, j int) bool {
		return usages[i].CreatedAt.After(usages[j].CreatedAt)
	})
	return usages, nil
}

type inferredMatch struct {
	payment models.ManualPayment
	codes   []string
}

func (s *PaymentService) inferCouponUsages(ctx context.Context, code string) ([]inferredMatch, error) {
	enabled, err := s.repo.ListEnabledCoupons(ctx, code)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var active []models.Coupon
	for i := range enabled {
		if DiscountPercentAt(&enabled[i], now) > 0 {
			active = append(active, enabled[i])
		}
	}
	if len(active) == 0 {
		return nil, nil
	}

	legacy, err := s.repo.ListPaymentsWithoutCoupon(ctx)
	if err != nil {
		return nil, err
	}
	if len(legacy) == 0 {
		return nil, nil
	}

	courseIDs := make([]uuid.UUID, 0, len(legacy))
	for _, p := range legacy {
		courseIDs = append(courseIDs, p.CourseID)
	}
	courses, err := s.repo.GetCoursesByIDs(ctx, uniqueIDs(courseIDs))
	if err != nil {
		return nil, err
	}

	var matches []inferredMatch
	for _, p := range legacy {
		course, ok := courses[p.CourseID]
		if !ok {
			continue
		}
		var codes []string
		for i := range active {
			pct := DiscountPercentAt(&active[i], now)
			if matchesDiscountedPrice(p.Amount, course.Price, pct, s.pricing.CouponMatchTolerance) {
				codes = append(codes, active[i].Code)
			}
		}
		if len(codes) > 0 {
			matches = append(matches, inferredMatch{payment: p, codes: codes})
		}
	}
	return matches, nil
}
