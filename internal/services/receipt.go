package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"

	"academy-payments-service/internal/models"
	"academy-payments-service/internal/repository"
)

// PaymentReceipt renders a PDF receipt for one of the caller's approved
// payments. Payments owned by someone else are reported as not found.
func (s *PaymentService) PaymentReceipt(ctx context.Context, paymentID, userID uuid.UUID) ([]byte, error) {
	payment, err := s.repo.GetPaymentByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	if payment.UserID != userID {
		return nil, ErrPaymentNotFound
	}
	if payment.Status != models.PaymentStatusApproved {
		return nil, ErrPaymentNotApproved
	}

	views, err := s.enrich(ctx, []models.ManualPayment{*payment}, true)
	if err != nil {
		return nil, err
	}
	return renderReceipt(&views[0])
}

func renderReceipt(v *models.PaymentView) ([]byte, error) {
	cfg := config.NewBuilder().
		WithLeftMargin(10).
		WithTopMargin(15).
		WithRightMargin(10).
		Build()

	m := maroto.New(cfg)
	addReceiptHeader(m, v)
	addReceiptBody(m, v)

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("failed to generate receipt: %w", err)
	}
	return doc.GetBytes(), nil
}

func addReceiptHeader(m core.Maroto, v *models.PaymentView) {
	m.AddRow(25,
		col.New(6).Add(
			text.New("Course Payment Receipt", props.Text{Size: 16, Style: fontstyle.Bold, Align: align.Left}),
		),
		col.New(6).Add(
			text.New(fmt.Sprintf("# %s", v.ID.String()[:8]), props.Text{Size: 10, Align: align.Right}),
			text.New(fmt.Sprintf("Approved: %s", formatReceiptDate(v)), props.Text{Size: 9, Top: 6, Align: align.Right}),
		),
	)
	m.AddRow(5, line.NewCol(12))
}

func addReceiptBody(m core.Maroto, v *models.PaymentView) {
	rows := [][2]string{
		{"Learner", v.UserName},
		{"Email", v.UserEmail},
		{"Course", v.CourseTitle},
		{"Payment method", v.PaymentMethod},
		{"Transaction ID", deref(v.TransactionID)},
		{"Coupon", deref(v.CouponCode)},
		{"Amount paid", fmt.Sprintf("INR %.2f", v.Amount)},
	}
	for _, r := range rows {
		if r[1] == "" {
			continue
		}
		m.AddRow(8,
			col.New(4).Add(text.New(r[0], props.Text{Size: 10, Style: fontstyle.Bold})),
			col.New(8).Add(text.New(r[1], props.Text{Size: 10})),
		)
	}
}

func formatReceiptDate(v *models.PaymentView) string {
	if v.ProcessedAt != nil {
		return v.ProcessedAt.Format("Jan 02, 2006")
	}
	return v.CreatedAt.Format("Jan 02, 2006")
}
