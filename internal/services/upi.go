package services

import (
	"context"
	"errors"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"

	"academy-payments-service/internal/models"
	"academy-payments-service/internal/repository"
)

// ErrUPINotConfigured is returned when no payee UPI ID is set
var ErrUPINotConfigured = errors.New("manual UPI payments are not configured")

const qrCodeSize = 256

// ManualUPIInstructions returns where and how much to pay for the direct UPI path
func (s *PaymentService) ManualUPIInstructions(ctx context.Context, courseID uuid.UUID, coupon string) (*models.ManualUPIInstructions, error) {
	course, amount, err := s.upiAmount(ctx, courseID, coupon)
	if err != nil {
		return nil, err
	}
	return &models.ManualUPIInstructions{
		UPIID:     s.upi.UPIID,
		PayeeName: s.upi.PayeeName,
		QRURL:     s.upi.QRURL,
		Amount:    amount,
		Note:      course.Title,
	}, nil
}

// ManualUPIQRCode renders a PNG QR code encoding a upi://pay link for the course
func (s *PaymentService) ManualUPIQRCode(ctx context.Context, courseID uuid.UUID, coupon string) ([]byte, error) {
	if s.upi.UPIID == "" {
		return nil, ErrUPINotConfigured
	}
	course, amount, err := s.upiAmount(ctx, courseID, coupon)
	if err != nil {
		return nil, err
	}
	return qrcode.Encode(UPIPaymentURI(s.upi.UPIID, s.upi.PayeeName, amount, course.Title), qrcode.Medium, qrCodeSize)
}

// UPIPaymentURI builds a upi://pay deep link
func UPIPaymentURI(upiID, payeeName string, amount float64, note string) string {
	q := url.Values{}
	q.Set("pa", upiID)
	if payeeName != "" {
		q.Set("pn", payeeName)
	}
	q.Set("am", strconv.FormatFloat(amount, 'f', 2, 64))
	q.Set("cu", "INR")
	if note != "" {
		q.Set("tn", note)
	}
	return "upi://pay?" + q.Encode()
}

func (s *PaymentService) upiAmount(ctx context.Context, courseID uuid.UUID, coupon string) (*models.Course, float64, error) {
	course, err := s.repo.GetCourseByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, 0, ErrCourseNotFound
		}
		return nil, 0, err
	}
	pct, _ := s.coupons.Evaluate(ctx, coupon, s.now())
	return course, Price(course.Price, pct, s.pricing.DirectUPIExtraDiscount).Final, nil
}
