package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ManualPayment is a learner-submitted proof of an out-of-band (UPI) payment
// awaiting admin adjudication.
type ManualPayment struct {
	ID            uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	UserID        uuid.UUID  `gorm:"type:uuid;not null;index;uniqueIndex:idx_manual_payments_one_pending,where:status = 'pending'" json:"user_id"`
	CourseID      uuid.UUID  `gorm:"type:uuid;not null;index;uniqueIndex:idx_manual_payments_one_pending,where:status = 'pending'" json:"course_id"`
	Amount        float64    `gorm:"type:decimal(10,2);not null;check:amount >= 0" json:"amount"`
	PaymentMethod string     `gorm:"type:varchar(30);not null;default:'UPI'" json:"payment_method"`
	TransactionID *string    `gorm:"type:varchar(100);uniqueIndex:idx_manual_payments_transaction_id" json:"transaction_id"`
	ReceiptEmail  *string    `gorm:"type:varchar(160)" json:"receipt_email"`
	Status        string     `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	CouponCode    *string    `gorm:"type:varchar(50);index" json:"coupon_code"`
	CreatedAt     time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	ProcessedBy   *uuid.UUID `gorm:"type:uuid" json:"processed_by"`
	ProcessedAt   *time.Time `json:"processed_at"`
	RejectionNote *string    `gorm:"type:text" json:"rejection_note"`
}

// TableName returns the table name for ManualPayment
func (ManualPayment) TableName() string {
	return "manual_payments"
}

// Payment status constants
const (
	PaymentStatusPending  = "pending"
	PaymentStatusApproved = "approved"
	PaymentStatusRejected = "rejected"
)

// Unique index names, used to classify constraint violations.
const (
	IndexPaymentTransactionID = "idx_manual_payments_transaction_id"
	IndexPaymentOnePending    = "idx_manual_payments_one_pending"
	IndexEnrollmentOneActive  = "idx_enrollments_one_active"
)

// IsPending returns true while the payment can still be adjudicated
func (p *ManualPayment) IsPending() bool {
	return p.Status == PaymentStatusPending
}

// Enrollment grants a user access to a course
type Enrollment struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	UserID     uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_enrollments_one_active,where:status = 'active'" json:"user_id"`
	CourseID   uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_enrollments_one_active,where:status = 'active'" json:"course_id"`
	Status     string    `gorm:"type:varchar(20);not null;default:'active'" json:"status"`
	PaymentID  *string   `gorm:"type:varchar(100)" json:"payment_id"`
	OrderID    *string   `gorm:"type:varchar(100);index" json:"order_id"`
	AmountPaid *float64  `gorm:"type:decimal(10,2)" json:"amount_paid"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName returns the table name for Enrollment
func (Enrollment) TableName() string {
	return "enrollments"
}

// Enrollment status constants
const (
	EnrollmentStatusActive  = "active"
	EnrollmentStatusRevoked = "revoked"
)

// PaymentAuditLog records every adjudication decision
type PaymentAuditLog struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	PaymentID uuid.UUID      `gorm:"type:uuid;not null;index" json:"payment_id"`
	Action    string         `gorm:"type:varchar(50);not null;index" json:"action"`
	ActorID   *uuid.UUID     `gorm:"type:uuid" json:"actor_id,omitempty"`
	Metadata  datatypes.JSON `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

// TableName returns the table name for PaymentAuditLog
func (PaymentAuditLog) TableName() string {
	return "payment_audit_logs"
}

// Audit action constants
const (
	AuditActionApproved        = "approved"
	AuditActionRejected        = "rejected"
	AuditActionRejectedMinimal = "rejected_minimal"
	AuditActionReconciled      = "reconciled"
)
