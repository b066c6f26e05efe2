package services

import (
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"academy-payments-service/internal/models"
)

const (
	exportSheet    = "Payments"
	exportRowLimit = 5000
)

var exportColumns = []string{
	"Payment ID", "Submitted At", "Status", "Learner", "Email", "Course",
	"Amount", "Method", "Transaction ID", "Receipt Email", "Coupon", "Processed At", "Rejection Note",
}

// ExportPayments renders the filtered admin queue as an XLSX workbook
func (s *PaymentService) ExportPayments(ctx context.Context, filter models.PaymentFilter) ([]byte, error) {
	filter.Limit = exportRowLimit
	filter.Offset = 0

	payments, _, err := s.repo.ListPayments(ctx, filter)
	if err != nil {
		return nil, err
	}
	views, err := s.enrich(ctx, payments, true)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
	})

	for i, name := range exportColumns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(exportSheet, cell, name)
		f.SetCellStyle(exportSheet, cell, cell, headerStyle)

		colName, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(exportSheet, colName, colName, 20)
	}

	for rowIdx, v := range views {
		row := []interface{}{
			v.ID.String(),
			v.CreatedAt.UTC().Format(time.RFC3339),
			v.Status,
			v.UserName,
			v.UserEmail,
			v.CourseTitle,
			v.Amount,
			v.PaymentMethod,
			deref(v.TransactionID),
			deref(v.ReceiptEmail),
			deref(v.CouponCode),
			formatOptionalTime(v.ProcessedAt),
			deref(v.RejectionNote),
		}
		cell, _ := excelize.CoordinatesToCellName(1, rowIdx+2)
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", rowIdx+2, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
