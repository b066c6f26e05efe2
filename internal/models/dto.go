package models

import (
	"time"

	"github.com/google/uuid"
)

// CheckoutRequest is the body of POST /payments/checkout/:courseId
type CheckoutRequest struct {
	Name   string `json:"name"`
	Email  string `json:"email"`
	Coupon string `json:"coupon"`
}

// CheckoutQuote is the priced, non-persisted checkout session
type CheckoutQuote struct {
	CourseID                       uuid.UUID `json:"course_id"`
	CourseTitle                    string    `json:"course_title"`
	CourseThumbnail                string    `json:"course_thumbnail,omitempty"`
	OriginalAmount                 float64   `json:"original_amount"`
	DiscountPercent                float64   `json:"discount_percent"`
	CouponCode                     string    `json:"coupon_code,omitempty"`
	DirectUPIExtraDiscount         float64   `json:"direct_upi_extra_discount"`
	Amount                         float64   `json:"amount"`
	BaseAmountBeforeDirectDiscount float64   `json:"base_amount_before_direct_discount"`
	SessionExpiresAt               time.Time `json:"session_expires_at"`
	Name                           string    `json:"name"`
	Email                          string    `json:"email"`
}

// SubmitPaymentRequest is the body of POST /payments/submit/:courseId
type SubmitPaymentRequest struct {
	TransactionID string `json:"transaction_id"`
	ReceiptEmail  string `json:"receipt_email"`
	PaymentMethod string `json:"payment_method"`
	Coupon        string `json:"coupon"`
}

// RejectPaymentRequest is the body of POST /payments/manual-payments/:id/reject
type RejectPaymentRequest struct {
	RejectionNote string `json:"rejection_note"`
}

// PaymentView is a ManualPayment enriched with user and course display fields
type PaymentView struct {
	ManualPayment
	UserName        string `json:"user_name,omitempty"`
	UserEmail       string `json:"user_email,omitempty"`
	CourseTitle     string `json:"course_title,omitempty"`
	CourseThumbnail string `json:"course_thumbnail,omitempty"`
}

// CouponUsage is one row of the coupon usage report. Inferred rows were
// attributed by amount matching and are not ground truth.
type CouponUsage struct {
	PaymentView
	Inferred       bool     `json:"inferred"`
	Ambiguous      bool     `json:"ambiguous,omitempty"`
	CandidateCodes []string `json:"candidate_codes,omitempty"`
}

// PaymentFilter narrows admin payment listings
type PaymentFilter struct {
	Status string
	Limit  int
	Offset int
}

// ManualUPIInstructions tells the learner where to send a direct UPI payment
type ManualUPIInstructions struct {
	UPIID     string  `json:"upi_id,omitempty"`
	PayeeName string  `json:"payee_name,omitempty"`
	QRURL     string  `json:"qr_url,omitempty"`
	Amount    float64 `json:"amount"`
	Note      string  `json:"note,omitempty"`
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Message string `json:"message"`
}
