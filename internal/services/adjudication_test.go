package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"academy-payments-service/internal/models"
	"academy-payments-service/internal/repository"
)

func statusUpdate(status string) interface{} {
	return mock.MatchedBy(func(updates map[string]interface{}) bool {
		return updates["status"] == status
	})
}

func fullRejectUpdate() interface{} {
	return mock.MatchedBy(func(updates map[string]interface{}) bool {
		_, hasActor := updates["processed_by"]
		return updates["status"] == models.PaymentStatusRejected && hasActor
	})
}

func minimalRejectUpdate() interface{} {
	return mock.MatchedBy(func(updates map[string]interface{}) bool {
		_, hasActor := updates["processed_by"]
		return updates["status"] == models.PaymentStatusRejected && !hasActor && len(updates) == 2
	})
}

// ============================================================================
// Approve
// ============================================================================

func TestApprovePayment_CreatesEnrollment(t *testing.T) {
	ctx := context.Background()
	repo := new(MockPaymentRepository)
	svc := newTestService(repo, nil)

	adminID := uuid.New()
	payment := createTestPayment(uuid.New(), uuid.New(), models.PaymentStatusPending)

	repo.On("GetPaymentByID", ctx, payment.ID).Return(payment, nil)
	repo.On("GetPaymentByIDForUpdate", ctx, payment.ID).Return(payment, nil)
	repo.On("GetActiveEnrollment", ctx, payment.UserID, payment.CourseID).Return(nil, repository.ErrNotFound)
	repo.On("CreateEnrollment", ctx, mock.AnythingOfType("*models.Enrollment")).Return(nil)
	repo.On("UpdateEnrollment", ctx, mock.Anything, mock.MatchedBy(func(updates map[string]interface{}) bool {
		return updates["order_id"] == payment.ID.String() && updates["amount_paid"] == payment.Amount
	})).Return(nil)
	repo.On("UpdatePayment", ctx, payment.ID, statusUpdate(models.PaymentStatusApproved)).Return(nil)
	repo.On("CreateAuditLog", ctx, mock.AnythingOfType("*models.PaymentAuditLog")).Return(nil)

	result, err := svc.ApprovePayment(ctx, payment.ID, adminID)

	require.NoError(t, err)
	assert.True(t, result.EnrollmentCreated)
	assert.Equal(t, models.PaymentStatusApproved, result.Payment.Status)
	assert.Equal(t, &adminID, result.Payment.ProcessedBy)
	assert.Equal(t, models.EnrollmentStatusActive, result.Enrollment.Status)
	require.NotNil(t, result.Enrollment.OrderID)
	assert.Equal(t, payment.ID.String(), *result.Enrollment.OrderID)
	assert.Equal(t, payment.TransactionID, result.Enrollment.PaymentID)
	repo.AssertExpectations(t)
}

func TestApprovePayment_ThenReapprove(t *testing.T) {
	ctx := context.Background()
	repo := new(MockPaymentRepository)
	svc := newTestService(repo, nil)

	adminID := uuid.New()
	payment := createTestPayment(uuid.New(), uuid.New(), models.PaymentStatusPending)

	repo.On("GetPaymentByID", ctx, payment.ID).Return(payment, nil)
	repo.On("GetPaymentByIDForUpdate", ctx, payment.ID).Return(payment, nil)
	repo.On("GetActiveEnrollment", ctx, payment.UserID, payment.CourseID).Return(nil, repository.ErrNotFound)
	repo.On("CreateEnrollment", ctx, mock.Anything).Return(nil)
	repo.On("UpdateEnrollment", ctx, mock.Anything, mock.Anything).Return(nil)
	repo.On("UpdatePayment", ctx, payment.ID, mock.Anything).Return(nil)
	repo.On("CreateAuditLog", ctx, mock.Anything).Return(nil)

	_, err := svc.ApprovePayment(ctx, payment.ID, adminID)
	require.NoError(t, err)

	_, err = svc.ApprovePayment(ctx, payment.ID, adminID)

	assert.ErrorIs(t, err, ErrPaymentNotPending)
	repo.AssertNumberOfCalls(t, "CreateEnrollment", 1)
	repo.AssertNumberOfCalls(t, "UpdatePayment", 1)
}

func TestApprovePayment_ReusesActiveEnrollment(t *testing.T) {
	ctx := context.Background()
	repo := new(MockPaymentRepository)
	svc := newTestService(repo, nil)

	payment := createTestPayment(uuid.New(), uuid.New(), models.PaymentStatusPending)
	existing := &models.Enrollment{ID: uuid.New(), UserID: payment.UserID, CourseID: payment.CourseID, Status: models.EnrollmentStatusActive}

	repo.On("GetPaymentByID", ctx, payment.ID).Return(payment, nil)
	repo.On("GetPaymentByIDForUpdate", ctx, payment.ID).Return(payment, nil)
	repo.On("GetActiveEnrollment", ctx, payment.UserID, payment.CourseID).Return(existing, nil)
	repo.On("UpdatePayment", ctx, payment.ID, statusUpdate(models.PaymentStatusApproved)).Return(nil)
	repo.On("CreateAuditLog", ctx, mock.Anything).Return(nil)

	result, err := svc.ApprovePayment(ctx, payment.ID, uuid.New())

	require.NoError(t, err)
	assert.False(t, result.EnrollmentCreated)
	assert.Equal(t, existing.ID, result.Enrollment.ID)
	repo.AssertNotCalled(t, "CreateEnrollment", mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "UpdateEnrollment", mock.Anything, mock.Anything, mock.Anything)
}

func TestApprovePayment_ConcurrentEnrollmentIsReused(t *testing.T) {
	ctx := context.Background()
	repo := new(MockPaymentRepository)
	svc := newTestService(repo, nil)

	payment := createTestPayment(uuid.New(), uuid.New(), models.PaymentStatusPending)
	winner := &models.Enrollment{ID: uuid.New(), Status: models.EnrollmentStatusActive}

	repo.On("GetPaymentByID", ctx, payment.ID).Return(payment, nil)
	repo.On("GetPaymentByIDForUpdate", ctx, payment.ID).Return(payment, nil)
	repo.On("GetActiveEnrollment", ctx, payment.UserID, payment.CourseID).Return(nil, repository.ErrNotFound).Once()
	repo.On("CreateEnrollment", ctx, mock.Anything).Return(repository.ErrActiveEnrollmentExists)
	repo.On("GetActiveEnrollment", ctx, payment.UserID, payment.CourseID).Return(winner, nil).Once()
	repo.On("UpdatePayment", ctx, payment.ID, statusUpdate(models.PaymentStatusApproved)).Return(nil)
	repo.On("CreateAuditLog", ctx, mock.Anything).Return(nil)

	result, err := svc.ApprovePayment(ctx, payment.ID, uuid.New())

	require.NoError(t, err)
	assert.False(t, result.EnrollmentCreated)
	assert.Equal(t, winner.ID, result.Enrollment.ID)
	repo.AssertNotCalled(t, "UpdateEnrollment", mock.Anything, mock.Anything, mock.Anything)
}

func TestApprovePayment_EnrichmentFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	repo := new(MockPaymentRepository)
	svc := newTestService(repo, nil)

	payment := createTestPayment(uuid.New(), uuid.New(), models.PaymentStatusPending)

	repo.On("GetPaymentByID", ctx, payment.ID).Return(payment, nil)
	repo.On("GetPaymentByIDForUpdate", ctx, payment.ID).Return(payment, nil)
	repo.On("GetActiveEnrollment", ctx, payment.UserID, payment.CourseID).Return(nil, repository.ErrNotFound)
	repo.On("CreateEnrollment", ctx, mock.Anything).Return(nil)
	repo.On("UpdateEnrollment", ctx, mock.Anything, mock.Anything).Return(errors.New(`column "amount_paid" does not exist`))
	repo.On("UpdatePayment", ctx, payment.ID, statusUpdate(models.PaymentStatusApproved)).Return(nil)
	repo.On("CreateAuditLog", ctx, mock.Anything).Return(nil)

	result, err := svc.ApprovePayment(ctx, payment.ID, uuid.New())

	require.NoError(t, err)
	assert.True(t, result.EnrollmentCreated)
	assert.Nil(t, result.Enrollment.OrderID)
	assert.Equal(t, models.PaymentStatusApproved, result.Payment.Status)
}

func TestApprovePayment_EnrollmentFailureAborts(t *testing.T) {
	ctx := context.Background()
	repo := new(MockPaymentRepository)
	svc := newTestService(repo, nil)

	payment := createTestPayment(uuid.New(), uuid.New(), models.PaymentStatusPending)

	repo.On("GetPaymentByID", ctx, payment.ID).Return(payment, nil)
	repo.On("GetPaymentByIDForUpdate", ctx, payment.ID).Return(payment, nil)
	repo.On("GetActiveEnrollment", ctx, payment.UserID, payment.CourseID).Return(nil, repository.ErrNotFound)
	repo.On("CreateEnrollment", ctx, mock.Anything).Return(errors.New("insert failed"))

	_, err := svc.ApprovePayment(ctx, payment.ID, uuid.New())

	assert.Error(t, err)
	assert.Equal(t, models.PaymentStatusPending, payment.Status)
	repo.AssertNotCalled(t, "UpdatePayment", mock.Anything, mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "CreateAuditLog", mock.Anything, mock.Anything)
}

func TestApprovePayment_StatusUpdateFailureFailsApproval(t *testing.T) {
	ctx := context.Background()
	repo := new(MockPaymentRepository)
	svc := newTestService(repo, nil)

	payment := createTestPayment(uuid.New(), uuid.New(), models.PaymentStatusPending)

	repo.On("GetPaymentByID", ctx, payment.ID).Return(payment, nil)
	repo.On("GetPaymentByIDForUpdate", ctx, payment.ID).Return(payment, nil)
	repo.On("GetActiveEnrollment", ctx, payment.UserID, payment.CourseID).Return(nil, repository.ErrNotFound)
	repo.On("CreateEnrollment", ctx, mock.Anything).Return(nil)
	repo.On("UpdateEnrollment", ctx, mock.Anything, mock.Anything).Return(nil)
	repo.On("UpdatePayment", ctx, payment.ID, mock.Anything).Return(errors.New("deadlock detected"))

	_, err := svc.ApprovePayment(ctx, payment.ID, uuid.New())

	assert.Error(t, err)
	repo.AssertNotCalled(t, "CreateAuditLog", mock.Anything, mock.Anything)
}

func TestApprovePayment_NotFound(t *testing.T) {
	ctx := context.Background()
	repo := new(MockPaymentRepository)
	svc := newTestService(repo, nil)

	id := uuid.New()
	repo.On("GetPaymentByID", ctx, id).Return(nil, repository.ErrNotFound)

	_, err := svc.ApprovePayment(ctx, id, uuid.New())

	assert.ErrorIs(t, err, ErrPaymentNotFound)
}

func TestApprovePayment_DecidedWhileWaitingForLock(t *testing.T) {
	ctx := context.Background()
	repo := new(MockPaymentRepository)
	svc := newTestService(repo, nil)

	pending := createTestPayment(uuid.New(), uuid.New(), models.PaymentStatusPending)
	locked := *pending
	locked.Status = models.PaymentStatusRejected

	repo.On("GetPaymentByID", ctx, pending.ID).Return(pending, nil)
	repo.On("GetPaymentByIDForUpdate", ctx, pending.ID).Return(&locked, nil)

	_, err := svc.ApprovePayment(ctx, pending.ID, uuid.New())

	assert.ErrorIs(t, err, ErrPaymentNotPending)
	repo.AssertNotCalled(t, "CreateEnrollment", mock.Anything, mock.Anything)
}

func TestApprovePayment_PublishesEvent(t *testing.T) {
	ctx := context.Background()
	repo := new(MockPaymentRepository)
	publisher := new(MockEventPublisher)
	svc := newTestService(repo, publisher)

	payment := createTestPayment(uuid.New(), uuid.New(), models.PaymentStatusPending)
	user := &models.User{ID: payment.UserID, Name: "Ada", Email: "ada@example.com"}

	repo.On("GetPaymentByID", ctx, payment.ID).Return(payment, nil)
	repo.On("GetPaymentByIDForUpdate", ctx, payment.ID).Return(payment, nil)
	repo.On("GetActiveEnrollment", ctx, payment.UserID, payment.CourseID).Return(nil, repository.ErrNotFound)
	repo.On("CreateEnrollment", ctx, mock.Anything).Return(nil)
	repo.On("UpdateEnrollment", ctx, mock.Anything, mock.Anything).Return(nil)
	repo.On("UpdatePayment", ctx, payment.ID, mock.Anything).Return(nil)
	repo.On("CreateAuditLog", ctx, mock.Anything).Return(nil)
	repo.On("GetUserByID", ctx, payment.UserID).Return(user, nil)
	publisher.On("PublishPaymentApproved", ctx, payment, user).Return(errors.New("nats: no responders"))

	_, err := svc.ApprovePayment(ctx, payment.ID, uuid.New())

	require.NoError(t, err)
	publisher.AssertExpectations(t)
}

// ============================================================================
// Reject
// ============================================================================

func TestRejectPayment_Full(t *testing.T) {
	ctx := context.Background()
	repo := new(MockPaymentRepository)
	svc := newTestService(repo, nil)

	adminID := uuid.New()
	payment := createTestPayment(uuid.New(), uuid.New(), models.PaymentStatusPending)

	repo.On("GetPaymentByID", ctx, payment.ID).Return(payment, nil)
	repo.On("GetPaymentByIDForUpdate", ctx, payment.ID).Return(payment, nil)
	repo.On("UpdatePayment", ctx, payment.ID, mock.MatchedBy(func(updates map[string]interface{}) bool {
		return updates["status"] == models.PaymentStatusRejected &&
			updates["processed_by"] == adminID &&
			updates["rejection_note"] == "UTR not found in statement"
	})).Return(nil)
	repo.On("CreateAuditLog", ctx, mock.Anything).Return(nil)

	result, err := svc.RejectPayment(ctx, payment.ID, adminID, "UTR not found in statement")

	require.NoError(t, err)
	assert.False(t, result.Minimal)
	assert.Equal(t, models.PaymentStatusRejected, result.Payment.Status)
	require.NotNil(t, result.Payment.RejectionNote)
	assert.Equal(t, "UTR not found in statement", *result.Payment.RejectionNote)
	repo.AssertExpectations(t)
}

func TestRejectPayment_FallsBackToMinimalUpdate(t *testing.T) {
	ctx := context.Background()
	repo := new(MockPaymentRepository)
	svc := newTestService(repo, nil)

	payment := createTestPayment(uuid.New(), uuid.New(), models.PaymentStatusPending)

	repo.On("GetPaymentByID", ctx, payment.ID).Return(payment, nil)
	repo.On("GetPaymentByIDForUpdate", ctx, payment.ID).Return(payment, nil)
	repo.On("UpdatePayment", ctx, payment.ID, fullRejectUpdate()).Return(errors.New(`column "rejection_note" does not exist`))
	repo.On("UpdatePayment", ctx, payment.ID, minimalRejectUpdate()).Return(nil)
	repo.On("CreateAuditLog", ctx, mock.MatchedBy(func(log *models.PaymentAuditLog) bool {
		return log.Action == models.AuditActionRejectedMinimal
	})).Return(nil)

	result, err := svc.RejectPayment(ctx, payment.ID, uuid.New(), "blurry screenshot")

	require.NoError(t, err)
	assert.True(t, result.Minimal)
	assert.Equal(t, models.PaymentStatusRejected, result.Payment.Status)
	assert.Nil(t, result.Payment.ProcessedBy)
	assert.Nil(t, result.Payment.RejectionNote)
	repo.AssertExpectations(t)
}

func TestRejectPayment_MinimalFailureSurfaces(t *testing.T) {
	ctx := context.Background()
	repo := new(MockPaymentRepository)
	svc := newTestService(repo, nil)

	payment := createTestPayment(uuid.New(), uuid.New(), models.PaymentStatusPending)

	repo.On("GetPaymentByID", ctx, payment.ID).Return(payment, nil)
	repo.On("GetPaymentByIDForUpdate", ctx, payment.ID).Return(payment, nil)
	repo.On("UpdatePayment", ctx, payment.ID, mock.Anything).Return(errors.New("database is read-only"))

	_, err := svc.RejectPayment(ctx, payment.ID, uuid.New(), "")

	assert.Error(t, err)
	repo.AssertNumberOfCalls(t, "UpdatePayment", 2)
}

func TestRejectPayment_AlreadyApproved(t *testing.T) {
	ctx := context.Background()
	repo := new(MockPaymentRepository)
	svc := newTestService(repo, nil)

	payment := createTestPayment(uuid.New(), uuid.New(), models.PaymentStatusApproved)
	repo.On("GetPaymentByID", ctx, payment.ID).Return(payment, nil)

	_, err := svc.RejectPayment(ctx, payment.ID, uuid.New(), "")

	assert.ErrorIs(t, err, ErrPaymentNotPending)
}

func TestRejectPayment_PublishesEvent(t *testing.T) {
	ctx := context.Background()
	repo := new(MockPaymentRepository)
	publisher := new(MockEventPublisher)
	svc := newTestService(repo, publisher)

	payment := createTestPayment(uuid.New(), uuid.New(), models.PaymentStatusPending)
	user := &models.User{ID: payment.UserID, Email: "ada@example.com"}

	repo.On("GetPaymentByID", ctx, payment.ID).Return(payment, nil)
	repo.On("GetPaymentByIDForUpdate", ctx, payment.ID).Return(payment, nil)
	repo.On("UpdatePayment", ctx, payment.ID, mock.Anything).Return(nil)
	repo.On("CreateAuditLog", ctx, mock.Anything).Return(nil)
	repo.On("GetUserByID", ctx, payment.UserID).Return(user, nil)
	publisher.On("PublishPaymentRejected", ctx, payment, user, "amount mismatch").Return(nil)

	_, err := svc.RejectPayment(ctx, payment.ID, uuid.New(), "amount mismatch")

	require.NoError(t, err)
	publisher.AssertExpectations(t)
}

// ============================================================================
// Reconciliation
// ============================================================================

func TestReconcileEnrolledPayments(t *testing.T) {
	ctx := context.Background()
	repo := new(MockPaymentRepository)
	svc := newTestService(repo, nil)

	stale := createTestPayment(uuid.New(), uuid.New(), models.PaymentStatusPending)
	raced := createTestPayment(uuid.New(), uuid.New(), models.PaymentStatusPending)
	racedLocked := *raced
	racedLocked.Status = models.PaymentStatusApproved

	repo.On("ListPendingPaymentsWithEnrollment", ctx, 50).Return([]models.ManualPayment{*stale, *raced}, nil)
	repo.On("GetPaymentByIDForUpdate", ctx, stale.ID).Return(stale, nil)
	repo.On("GetPaymentByIDForUpdate", ctx, raced.ID).Return(&racedLocked, nil)
	repo.On("UpdatePayment", ctx, stale.ID, statusUpdate(models.PaymentStatusApproved)).Return(nil)
	repo.On("CreateAuditLog", ctx, mock.MatchedBy(func(log *models.PaymentAuditLog) bool {
		return log.PaymentID == stale.ID && log.Action == models.AuditActionReconciled
	})).Return(nil)

	count, err := svc.ReconcileEnrolledPayments(ctx, 50)

	require.NoError(t, err)
	assert.Equal(t, 1, count)
	repo.AssertNotCalled(t, "UpdatePayment", ctx, raced.ID, mock.Anything)
	repo.AssertExpectations(t)
}
