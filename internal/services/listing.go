package services

import (
	"context"

	"github.com/google/uuid"

	"academy-payments-service/internal/models"
)

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

// ListPayments returns payments for the admin queue, newest first
func (s *PaymentService) ListPayments(ctx context.Context, filter models.PaymentFilter) ([]models.PaymentView, int64, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	payments, total, err := s.repo.ListPayments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	views, err := s.enrich(ctx, payments, true)
	if err != nil {
		return nil, 0, err
	}
	return views, total, nil
}

// ListMyPayments returns the caller's own payments with course details
func (s *PaymentService) ListMyPayments(ctx context.Context, userID uuid.UUID) ([]models.PaymentView, error) {
	payments, err := s.repo.ListPaymentsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.enrich(ctx, payments, false)
}
