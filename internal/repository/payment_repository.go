package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"academy-payments-service/internal/models"
)

var (
	ErrNotFound = errors.New("not found")

	// Unique-constraint violations, classified by index name
	ErrDuplicateTransactionID = errors.New("transaction id already recorded")
	ErrPendingPaymentExists   = errors.New("pending payment already exists for user and course")
	ErrActiveEnrollmentExists = errors.New("active enrollment already exists for user and course")
)

const uniqueViolationCode = "23505"

// PaymentRepositoryInterface is the persistence contract used by the services
type PaymentRepositoryInterface interface {
	// Catalog (read-only)
	GetCourseByID(ctx context.Context, id uuid.UUID) (*models.Course, error)
	GetCoursesByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Course, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUsersByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.User, error)
	GetCouponByCode(ctx context.Context, code string) (*models.Coupon, error)
	ListEnabledCoupons(ctx context.Context, code string) ([]models.Coupon, error)

	// Manual payments
	CreatePayment(ctx context.Context, payment *models.ManualPayment) error
	GetPaymentByID(ctx context.Context, id uuid.UUID) (*models.ManualPayment, error)
	GetPaymentByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.ManualPayment, error)
	TransactionIDExists(ctx context.Context, transactionID string) (bool, error)
	GetPendingPayment(ctx context.Context, userID, courseID uuid.UUID) (*models.ManualPayment, error)
	ListPayments(ctx context.Context, filter models.PaymentFilter) ([]models.ManualPayment, int64, error)
	ListPaymentsByUser(ctx context.Context, userID uuid.UUID) ([]models.ManualPayment, error)
	ListPaymentsWithCoupon(ctx context.Context, code string) ([]models.ManualPayment, error)
	ListPaymentsWithoutCoupon(ctx context.Context) ([]models.ManualPayment, error)
	CountPaymentsByCoupon(ctx context.Context) (map[string]int64, error)
	ListPendingPaymentsWithEnrollment(ctx context.Context, limit int) ([]models.ManualPayment, error)
	UpdatePayment(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error

	// Enrollments
	GetActiveEnrollment(ctx context.Context, userID, courseID uuid.UUID) (*models.Enrollment, error)
	CreateEnrollment(ctx context.Context, enrollment *models.Enrollment) error
	UpdateEnrollment(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error

	// Audit
	CreateAuditLog(ctx context.Context, log *models.PaymentAuditLog) error

	// WithTransaction runs fn against a transaction-scoped repository
	WithTransaction(ctx context.Context, fn func(txRepo PaymentRepositoryInterface) error) error
	// WithSavepoint runs fn inside a savepoint of the current transaction.
	// A failing fn is rolled back to the savepoint and its error returned;
	// the enclosing transaction stays usable.
	WithSavepoint(ctx context.Context, name string, fn func(txRepo PaymentRepositoryInterface) error) error
}

// PaymentRepository handles database operations for manual payments
type PaymentRepository struct {
	db *gorm.DB
}

var _ PaymentRepositoryInterface = (*PaymentRepository)(nil)

// NewPaymentRepository creates a new PaymentRepository
func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// --- Catalog Methods ---

// GetCourseByID retrieves a course by ID
func (r *PaymentRepository) GetCourseByID(ctx context.Context, id uuid.UUID) (*models.Course, error) {
	var course models.Course
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&course).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &course, nil
}

// GetCoursesByIDs retrieves courses keyed by ID. Missing IDs are omitted.
func (r *PaymentRepository) GetCoursesByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Course, error) {
	out := make(map[uuid.UUID]models.Course, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var courses []models.Course
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&courses).Error; err != nil {
		return nil, err
	}
	for _, c := range courses {
		out[c.ID] = c
	}
	return out, nil
}

// GetUserByID retrieves a user by ID
func (r *PaymentRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// GetUsersByIDs retrieves users keyed by ID. Missing IDs are omitted.
func (r *PaymentRepository) GetUsersByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.User, error) {
	out := make(map[uuid.UUID]models.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var users []models.User
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}

// GetCouponByCode retrieves a coupon by its normalized code
func (r *PaymentRepository) GetCouponByCode(ctx context.Context, code string) (*models.Coupon, error) {
	var coupon models.Coupon
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&coupon).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &coupon, nil
}

// ListEnabledCoupons returns coupons flagged active, ordered by code.
// Validity windows are checked by the caller. An empty code lists all.
func (r *PaymentRepository) ListEnabledCoupons(ctx context.Context, code string) ([]models.Coupon, error) {
	var coupons []models.Coupon
	query := r.db.WithContext(ctx).Where("active = ?", true)
	if code != "" {
		query = query.Where("code = ?", code)
	}
	err := query.Order("code ASC").Find(&coupons).Error
	return coupons, err
}

// --- Payment Methods ---

// CreatePayment inserts a pending payment. Unique index violations are
// returned as ErrDuplicateTransactionID or ErrPendingPaymentExists.
func (r *PaymentRepository) CreatePayment(ctx context.Context, payment *models.ManualPayment) error {
	return translateUniqueViolation(r.db.WithContext(ctx).Create(payment).Error)
}

// GetPaymentByID retrieves a payment by ID
func (r *PaymentRepository) GetPaymentByID(ctx context.Context, id uuid.UUID) (*models.ManualPayment, error) {
	var payment models.ManualPayment
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &payment, nil
}

// GetPaymentByIDForUpdate retrieves a payment and locks its row until the
// enclosing transaction ends
func (r *PaymentRepository) GetPaymentByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.ManualPayment, error) {
	var payment models.ManualPayment
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &payment, nil
}

// TransactionIDExists checks whether any payment, in any status, carries the transaction ID
func (r *PaymentRepository) TransactionIDExists(ctx context.Context, transactionID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ManualPayment{}).
		Where("transaction_id = ?", transactionID).
		Count(&count).Error
	return count > 0, err
}

// GetPendingPayment retrieves the pending payment for a user and course
func (r *PaymentRepository) GetPendingPayment(ctx context.Context, userID, courseID uuid.UUID) (*models.ManualPayment, error) {
	var payment models.ManualPayment
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND course_id = ? AND status = ?", userID, courseID, models.PaymentStatusPending).
		First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &payment, nil
}

// ListPayments lists payments newest first with an optional status filter
func (r *PaymentRepository) ListPayments(ctx context.Context, filter models.PaymentFilter) ([]models.ManualPayment, int64, error) {
	var payments []models.ManualPayment
	var total int64

	query := r.db.WithContext(ctx).Model(&models.ManualPayment{})
	if filter.Status != "" && filter.Status != "all" {
		query = query.Where("status = ?", filter.Status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("created_at DESC").
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&payments).Error

	return payments, total, err
}

// ListPaymentsByUser lists a user's own payments newest first
func (r *PaymentRepository) ListPaymentsByUser(ctx context.Context, userID uuid.UUID) ([]models.ManualPayment, error) {
	var payments []models.ManualPayment
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&payments).Error
	return payments, err
}

// ListPaymentsWithCoupon lists payments that recorded a coupon, newest first.
// An empty code lists all coupons.
func (r *PaymentRepository) ListPaymentsWithCoupon(ctx context.Context, code string) ([]models.ManualPayment, error) {
	var payments []models.ManualPayment
	query := r.db.WithContext(ctx).Where("coupon_code IS NOT NULL")
	if code != "" {
		query = query.Where("coupon_code = ?", code)
	}
	err := query.Order("created_at DESC").Find(&payments).Error
	return payments, err
}

// ListPaymentsWithoutCoupon lists payments that predate coupon tracking
func (r *PaymentRepository) ListPaymentsWithoutCoupon(ctx context.Context) ([]models.ManualPayment, error) {
	var payments []models.ManualPayment
	err := r.db.WithContext(ctx).
		Where("coupon_code IS NULL").
		Order("created_at DESC").
		Find(&payments).Error
	return payments, err
}

// CountPaymentsByCoupon counts payments grouped by coupon code
func (r *PaymentRepository) CountPaymentsByCoupon(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		CouponCode string
		Count      int64
	}
	err := r.db.WithContext(ctx).Model(&models.ManualPayment{}).
		Select("coupon_code, COUNT(*) as count").
		Where("coupon_code IS NOT NULL").
		Group("coupon_code").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	stats := make(map[string]int64, len(rows))
	for _, row := range rows {
		stats[row.CouponCode] = row.Count
	}
	return stats, nil
}

// ListPendingPaymentsWithEnrollment finds pending payments that already
// produced an active enrollment (enrollment.order_id = payment.id)
func (r *PaymentRepository) ListPendingPaymentsWithEnrollment(ctx context.Context, limit int) ([]models.ManualPayment, error) {
	var payments []models.ManualPayment
	err := r.db.WithContext(ctx).
		Joins("JOIN enrollments ON enrollments.order_id = manual_payments.id::text AND enrollments.status = ?", models.EnrollmentStatusActive).
		Where("manual_payments.status = ?", models.PaymentStatusPending).
		Order("manual_payments.created_at ASC").
		Limit(limit).
		Find(&payments).Error
	return payments, err
}

// UpdatePayment applies a partial update to a payment
func (r *PaymentRepository) UpdatePayment(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	result := r.db.WithContext(ctx).Model(&models.ManualPayment{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Enrollment Methods ---

// GetActiveEnrollment retrieves the active enrollment for a user and course
func (r *PaymentRepository) GetActiveEnrollment(ctx context.Context, userID, courseID uuid.UUID) (*models.Enrollment, error) {
	var enrollment models.Enrollment
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND course_id = ? AND status = ?", userID, courseID, models.EnrollmentStatusActive).
		First(&enrollment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &enrollment, nil
}

// CreateEnrollment inserts an enrollment. A concurrent active enrollment for
// the same pair surfaces as ErrActiveEnrollmentExists.
func (r *PaymentRepository) CreateEnrollment(ctx context.Context, enrollment *models.Enrollment) error {
	return translateUniqueViolation(r.db.WithContext(ctx).Create(enrollment).Error)
}

// UpdateEnrollment applies a partial update to an enrollment
func (r *PaymentRepository) UpdateEnrollment(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	result := r.db.WithContext(ctx).Model(&models.Enrollment{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Audit Methods ---

// CreateAuditLog records an adjudication decision
func (r *PaymentRepository) CreateAuditLog(ctx context.Context, log *models.PaymentAuditLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

// --- Transactions ---

// WithTransaction executes fn within a database transaction
func (r *PaymentRepository) WithTransaction(ctx context.Context, fn func(txRepo PaymentRepositoryInterface) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&PaymentRepository{db: tx})
	})
}

// WithSavepoint executes fn inside a named savepoint. Must be called on a
// transaction-scoped repository.
func (r *PaymentRepository) WithSavepoint(ctx context.Context, name string, fn func(txRepo PaymentRepositoryInterface) error) error {
	tx := r.db.WithContext(ctx)
	if err := tx.SavePoint(name).Error; err != nil {
		return err
	}
	if err := fn(r); err != nil {
		if rbErr := tx.RollbackTo(name).Error; rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}
	return nil
}

func translateUniqueViolation(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolationCode {
		return err
	}
	switch pgErr.ConstraintName {
	case models.IndexPaymentTransactionID:
		return ErrDuplicateTransactionID
	case models.IndexPaymentOnePending:
		return ErrPendingPaymentExists
	case models.IndexEnrollmentOneActive:
		return ErrActiveEnrollmentExists
	}
	return err
}
