package services

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"

	"academy-payments-service/internal/config"
	"academy-payments-service/internal/models"
	"academy-payments-service/internal/repository"
)

// MockPaymentRepository is a mock implementation of PaymentRepositoryInterface
type MockPaymentRepository struct {
	mock.Mock
}

var _ repository.PaymentRepositoryInterface = (*MockPaymentRepository)(nil)

func (m *MockPaymentRepository) GetCourseByID(ctx context.Context, id uuid.UUID) (*models.Course, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Course), args.Error(1)
}

func (m *MockPaymentRepository) GetCoursesByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Course, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[uuid.UUID]models.Course), args.Error(1)
}

func (m *MockPaymentRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockPaymentRepository) GetUsersByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.User, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[uuid.UUID]models.User), args.Error(1)
}

func (m *MockPaymentRepository) GetCouponByCode(ctx context.Context, code string) (*models.Coupon, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Coupon), args.Error(1)
}

func (m *MockPaymentRepository) ListEnabledCoupons(ctx context.Context, code string) ([]models.Coupon, error) {
	args := m.Called(ctx, code)
	return args.Get(0).([]models.Coupon), args.Error(1)
}

func (m *MockPaymentRepository) CreatePayment(ctx context.Context, payment *models.ManualPayment) error {
	args := m.Called(ctx, payment)
	return args.Error(0)
}

func (m *MockPaymentRepository) GetPaymentByID(ctx context.Context, id uuid.UUID) (*models.ManualPayment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ManualPayment), args.Error(1)
}

func (m *MockPaymentRepository) GetPaymentByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.ManualPayment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ManualPayment), args.Error(1)
}

func (m *MockPaymentRepository) TransactionIDExists(ctx context.Context, transactionID string) (bool, error) {
	args := m.Called(ctx, transactionID)
	return args.Bool(0), args.Error(1)
}

func (m *MockPaymentRepository) GetPendingPayment(ctx context.Context, userID, courseID uuid.UUID) (*models.ManualPayment, error) {
	args := m.Called(ctx, userID, courseID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ManualPayment), args.Error(1)
}

func (m *MockPaymentRepository) ListPayments(ctx context.Context, filter models.PaymentFilter) ([]models.ManualPayment, int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]models.ManualPayment), args.Get(1).(int64), args.Error(2)
}

func (m *MockPaymentRepository) ListPaymentsByUser(ctx context.Context, userID uuid.UUID) ([]models.ManualPayment, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]models.ManualPayment), args.Error(1)
}

func (m *MockPaymentRepository) ListPaymentsWithCoupon(ctx context.Context, code string) ([]models.ManualPayment, error) {
	args := m.Called(ctx, code)
	return args.Get(0).([]models.ManualPayment), args.Error(1)
}

func (m *MockPaymentRepository) ListPaymentsWithoutCoupon(ctx context.Context) ([]models.ManualPayment, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.ManualPayment), args.Error(1)
}

func (m *MockPaymentRepository) CountPaymentsByCoupon(ctx context.Context) (map[string]int64, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]int64), args.Error(1)
}

func (m *MockPaymentRepository) ListPendingPaymentsWithEnrollment(ctx context.Context, limit int) ([]models.ManualPayment, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]models.ManualPayment), args.Error(1)
}

func (m *MockPaymentRepository) UpdatePayment(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	args := m.Called(ctx, id, updates)
	return args.Error(0)
}

func (m *MockPaymentRepository) GetActiveEnrollment(ctx context.Context, userID, courseID uuid.UUID) (*models.Enrollment, error) {
	args := m.Called(ctx, userID, courseID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Enrollment), args.Error(1)
}

func (m *MockPaymentRepository) CreateEnrollment(ctx context.Context, enrollment *models.Enrollment) error {
	args := m.Called(ctx, enrollment)
	return args.Error(0)
}

func (m *MockPaymentRepository) UpdateEnrollment(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	args := m.Called(ctx, id, updates)
	return args.Error(0)
}

func (m *MockPaymentRepository) CreateAuditLog(ctx context.Context, log *models.PaymentAuditLog) error {
	args := m.Called(ctx, log)
	return args.Error(0)
}

func (m *MockPaymentRepository) WithTransaction(ctx context.Context, fn func(txRepo repository.PaymentRepositoryInterface) error) error {
	return fn(m)
}

func (m *MockPaymentRepository) WithSavepoint(ctx context.Context, name string, fn func(txRepo repository.PaymentRepositoryInterface) error) error {
	return fn(m)
}

// MockEventPublisher is a mock implementation of EventPublisher
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) PublishCouponApplied(ctx context.Context, payment *models.ManualPayment, originalAmount float64) error {
	args := m.Called(ctx, payment, originalAmount)
	return args.Error(0)
}

func (m *MockEventPublisher) PublishPaymentApproved(ctx context.Context, payment *models.ManualPayment, user *models.User) error {
	args := m.Called(ctx, payment, user)
	return args.Error(0)
}

func (m *MockEventPublisher) PublishPaymentRejected(ctx context.Context, payment *models.ManualPayment, user *models.User, reason string) error {
	args := m.Called(ctx, payment, user, reason)
	return args.Error(0)
}

// ============================================================================
// Test Helpers
// ============================================================================

var fixedNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testConfig() *config.Config {
	return &config.Config{
		Pricing: config.PricingConfig{
			DirectUPIExtraDiscount: 50,
			CheckoutSessionTTL:     6 * time.Hour,
			CouponMatchTolerance:   0.02,
		},
		UPI: config.UPIConfig{
			UPIID:     "academy@upi",
			PayeeName: "Cyber Academy",
		},
	}
}

func newTestService(repo *MockPaymentRepository, publisher EventPublisher) *PaymentService {
	svc := NewPaymentService(repo, testConfig(), publisher, nil, testLogger())
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func createTestCourse(price float64) *models.Course {
	return &models.Course{
		ID:        uuid.New(),
		Title:     "Web Application Pentesting",
		Price:     price,
		Thumbnail: "https://cdn.example.com/webapp.png",
	}
}

func createTestCoupon(code string, pct float64) *models.Coupon {
	return &models.Coupon{
		ID:              uuid.New(),
		Code:            code,
		DiscountPercent: pct,
		Active:          true,
	}
}

func createTestPayment(userID, courseID uuid.UUID, status string) *models.ManualPayment {
	txID := "UPI" + uuid.New().String()[:8]
	return &models.ManualPayment{
		ID:            uuid.New(),
		UserID:        userID,
		CourseID:      courseID,
		Amount:        850,
		PaymentMethod: "UPI",
		TransactionID: &txID,
		Status:        status,
		CreatedAt:     fixedNow.Add(-time.Hour),
	}
}

func ptrTime(t time.Time) *time.Time {
	return &t
}
