package services

import (
	"errors"
	"fmt"
)

var (
	ErrCourseNotFound       = errors.New("course not found")
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrPaymentNotPending    = errors.New("payment already processed")
	ErrDuplicateTransaction = errors.New("transaction id already submitted")
	ErrPendingPaymentExists = errors.New("a pending payment already exists for this course")
	ErrAlreadyEnrolled      = errors.New("already enrolled in this course")
	ErrForbidden            = errors.New("admin access required")
	ErrPaymentNotApproved   = errors.New("payment is not approved")
)

// ValidationError reports bad request input
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func newValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// IsValidationError reports whether err is, or wraps, a ValidationError
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
