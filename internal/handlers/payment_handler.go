package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"academy-payments-service/internal/middleware"
	"academy-payments-service/internal/models"
	"academy-payments-service/internal/services"
)

// PaymentService is the service contract used by PaymentHandler
type PaymentService interface {
	StartCheckout(ctx context.Context, courseID, userID uuid.UUID, req models.CheckoutRequest) (*models.CheckoutQuote, error)
	SubmitPayment(ctx context.Context, courseID, userID uuid.UUID, req models.SubmitPaymentRequest) (*models.ManualPayment, error)
	ListPayments(ctx context.Context, filter models.PaymentFilter) ([]models.PaymentView, int64, error)
	ListMyPayments(ctx context.Context, userID uuid.UUID) ([]models.PaymentView, error)
	ApprovePayment(ctx context.Context, paymentID, adminID uuid.UUID) (*services.AdjudicationResult, error)
	RejectPayment(ctx context.Context, paymentID, adminID uuid.UUID, note string) (*services.AdjudicationResult, error)
	CouponStats(ctx context.Context) (map[string]int64, error)
	CouponUsages(ctx context.Context, code string, includeInferred bool) ([]models.CouponUsage, error)
	ManualUPIInstructions(ctx context.Context, courseID uuid.UUID, coupon string) (*models.ManualUPIInstructions, error)
	ManualUPIQRCode(ctx context.Context, courseID uuid.UUID, coupon string) ([]byte, error)
	PaymentReceipt(ctx context.Context, paymentID, userID uuid.UUID) ([]byte, error)
	ExportPayments(ctx context.Context, filter models.PaymentFilter) ([]byte, error)
}

// PaymentHandler handles HTTP requests for checkout and manual payments
type PaymentHandler struct {
	service PaymentService
	logger  *logrus.Entry
}

// NewPaymentHandler creates a new PaymentHandler
func NewPaymentHandler(service PaymentService, logger *logrus.Logger) *PaymentHandler {
	return &PaymentHandler{
		service: service,
		logger:  logger.WithField("component", "payment_handler"),
	}
}

// RegisterRoutes mounts the payment routes. auth must resolve the caller.
func (h *PaymentHandler) RegisterRoutes(rg *gin.RouterGroup, auth gin.HandlerFunc, submitGuards ...gin.HandlerFunc) {
	payments := rg.Group("/payments", auth)
	{
		payments.POST("/checkout/:courseId", h.StartCheckout)
		payments.POST("/submit/:courseId", append(submitGuards, h.SubmitPayment)...)
		payments.GET("/mine", h.ListMyPayments)
		payments.GET("/manual-upi/:courseId", h.GetManualUPIInstructions)
		payments.GET("/manual-upi/:courseId/qr.png", h.GetManualUPIQRCode)
		payments.GET("/receipts/:id", h.GetPaymentReceipt)
	}

	admin := payments.Group("", middleware.RequireAdmin())
	{
		admin.GET("/manual-payments", h.ListManualPayments)
		admin.POST("/manual-payments/:id/approve", h.ApprovePayment)
		admin.POST("/manual-payments/:id/reject", h.RejectPayment)
		admin.GET("/coupons/stats", h.CouponStats)
		admin.GET("/coupons/usages", h.CouponUsages)
		admin.GET("/exports/manual-payments.xlsx", h.ExportManualPayments)
	}
}

// StartCheckout godoc
// @Summary Price a course for checkout
// @Tags payments
// @Accept json
// @Produce json
// @Param courseId path string true "Course ID"
// @Param request body models.CheckoutRequest true "Checkout identity and coupon"
// @Success 200 {object} models.CheckoutQuote
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /payments/checkout/{courseId} [post]
func (h *PaymentHandler) StartCheckout(c *gin.Context) {
	courseID, ok := parseUUIDParam(c, "courseId", "Invalid course id")
	if !ok {
		return
	}
	userID, ok := middleware.GetUserID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req models.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	quote, err := h.service.StartCheckout(c.Request.Context(), courseID, userID, req)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, quote)
}

// SubmitPayment godoc
// @Summary Submit proof of a manual payment
// @Tags payments
// @Accept json
// @Produce json
// @Param courseId path string true "Course ID"
// @Param request body models.SubmitPaymentRequest true "Payment proof"
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /payments/submit/{courseId} [post]
func (h *PaymentHandler) SubmitPayment(c *gin.Context) {
	courseID, ok := parseUUIDParam(c, "courseId", "Invalid course id")
	if !ok {
		return
	}
	userID, ok := middleware.GetUserID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req models.SubmitPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	payment, err := h.service.SubmitPayment(c.Request.Context(), courseID, userID, req)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Payment submitted for verification",
		"payment": payment,
	})
}

// ListManualPayments godoc
// @Summary List manual payments for review
// @Tags admin
// @Produce json
// @Param status query string false "pending, approved, rejected or all"
// @Param limit query int false "Limit" default(100)
// @Param offset query int false "Offset" default(0)
// @Success 200 {array} models.PaymentView
// @Router /payments/manual-payments [get]
func (h *PaymentHandler) ListManualPayments(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	payments, total, err := h.service.ListPayments(c.Request.Context(), models.PaymentFilter{
		Status: c.Query("status"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.Header("X-Total-Count", strconv.FormatInt(total, 10))
	c.JSON(http.StatusOK, payments)
}

// ApprovePayment godoc
// @Summary Approve a manual payment and enroll the learner
// @Tags admin
// @Produce json
// @Param id path string true "Payment ID"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /payments/manual-payments/{id}/approve [post]
func (h *PaymentHandler) ApprovePayment(c *gin.Context) {
	paymentID, ok := parseUUIDParam(c, "id", "Invalid payment id")
	if !ok {
		return
	}
	adminID, _ := middleware.GetUserID(c)

	result, err := h.service.ApprovePayment(c.Request.Context(), paymentID, adminID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":            "Payment approved",
		"enrollment_id":      result.Enrollment.ID,
		"enrollment_created": result.EnrollmentCreated,
	})
}

// RejectPayment godoc
// @Summary Reject a manual payment
// @Tags admin
// @Accept json
// @Produce json
// @Param id path string true "Payment ID"
// @Param request body models.RejectPaymentRequest false "Rejection note"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /payments/manual-payments/{id}/reject [post]
func (h *PaymentHandler) RejectPayment(c *gin.Context) {
	paymentID, ok := parseUUIDParam(c, "id", "Invalid payment id")
	if !ok {
		return
	}
	adminID, _ := middleware.GetUserID(c)

	var req models.RejectPaymentRequest
	_ = c.ShouldBindJSON(&req)

	result, err := h.service.RejectPayment(c.Request.Context(), paymentID, adminID, req.RejectionNote)
	if err != nil {
		h.handleError(c, err)
		return
	}

	message := "Payment rejected"
	if result.Minimal {
		message = "Payment rejected (minimal)"
	}
	c.JSON(http.StatusOK, gin.H{"message": message})
}

// ListMyPayments godoc
// @Summary List the caller's manual payments
// @Tags payments
// @Produce json
// @Success 200 {array} models.PaymentView
// @Router /payments/mine [get]
func (h *PaymentHandler) ListMyPayments(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "Authentication required")
		return
	}

	payments, err := h.service.ListMyPayments(c.Request.Context(), userID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, payments)
}

// CouponStats godoc
// @Summary Count payments per coupon code
// @Tags admin
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /payments/coupons/stats [get]
func (h *PaymentHandler) CouponStats(c *gin.Context) {
	stats, err := h.service.CouponStats(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

// CouponUsages godoc
// @Summary List coupon usages, including inferred legacy usages
// @Tags admin
// @Produce json
// @Param code query string false "Coupon code"
// @Param include_inferred query bool false "Attribute legacy payments by amount" default(true)
// @Success 200 {array} models.CouponUsage
// @Router /payments/coupons/usages [get]
func (h *PaymentHandler) CouponUsages(c *gin.Context) {
	includeInferred := true
	if raw := c.Query("include_inferred"); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			includeInferred = v
		}
	}

	usages, err := h.service.CouponUsages(c.Request.Context(), c.Query("code"), includeInferred)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, usages)
}

// GetManualUPIInstructions godoc
// @Summary Direct UPI payment instructions for a course
// @Tags payments
// @Produce json
// @Param courseId path string true "Course ID"
// @Param coupon query string false "Coupon code"
// @Success 200 {object} models.ManualUPIInstructions
// @Router /payments/manual-upi/{courseId} [get]
func (h *PaymentHandler) GetManualUPIInstructions(c *gin.Context) {
	courseID, ok := parseUUIDParam(c, "courseId", "Invalid course id")
	if !ok {
		return
	}

	instructions, err := h.service.ManualUPIInstructions(c.Request.Context(), courseID, c.Query("coupon"))
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, instructions)
}

// GetManualUPIQRCode godoc
// @Summary QR code for a direct UPI payment
// @Tags payments
// @Produce png
// @Param courseId path string true "Course ID"
// @Param coupon query string false "Coupon code"
// @Success 200 {file} binary
// @Router /payments/manual-upi/{courseId}/qr.png [get]
func (h *PaymentHandler) GetManualUPIQRCode(c *gin.Context) {
	courseID, ok := parseUUIDParam(c, "courseId", "Invalid course id")
	if !ok {
		return
	}

	png, err := h.service.ManualUPIQRCode(c.Request.Context(), courseID, c.Query("coupon"))
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.Data(http.StatusOK, "image/png", png)
}

// GetPaymentReceipt godoc
// @Summary Download the PDF receipt for an approved payment
// @Tags payments
// @Produce application/pdf
// @Param id path string true "Payment ID"
// @Success 200 {file} binary
// @Failure 404 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /payments/receipts/{id} [get]
func (h *PaymentHandler) GetPaymentReceipt(c *gin.Context) {
	paymentID, ok := parseUUIDParam(c, "id", "Invalid payment id")
	if !ok {
		return
	}
	userID, _ := middleware.GetUserID(c)

	pdf, err := h.service.PaymentReceipt(c.Request.Context(), paymentID, userID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="receipt-%s.pdf"`, paymentID))
	c.Data(http.StatusOK, "application/pdf", pdf)
}

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ExportManualPayments godoc
// @Summary Export the manual payment queue as XLSX
// @Tags admin
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param status query string false "Filter by status"
// @Success 200 {file} binary
// @Router /payments/exports/manual-payments.xlsx [get]
func (h *PaymentHandler) ExportManualPayments(c *gin.Context) {
	data, err := h.service.ExportPayments(c.Request.Context(), models.PaymentFilter{Status: c.Query("status")})
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="manual-payments.xlsx"`)
	c.Data(http.StatusOK, xlsxContentType, data)
}

// handleError maps service errors to HTTP responses. Unexpected errors are
// logged and reported without detail.
func (h *PaymentHandler) handleError(c *gin.Context, err error) {
	var ve *services.ValidationError
	switch {
	case errors.As(err, &ve):
		respondError(c, http.StatusBadRequest, ve.Message)
	case errors.Is(err, services.ErrCourseNotFound),
		errors.Is(err, services.ErrPaymentNotFound),
		errors.Is(err, services.ErrUPINotConfigured):
		respondError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrForbidden):
		respondError(c, http.StatusForbidden, err.Error())
	case errors.Is(err, services.ErrDuplicateTransaction),
		errors.Is(err, services.ErrPendingPaymentExists),
		errors.Is(err, services.ErrAlreadyEnrolled),
		errors.Is(err, services.ErrPaymentNotApproved):
		respondError(c, http.StatusConflict, err.Error())
	case errors.Is(err, services.ErrPaymentNotPending):
		respondError(c, http.StatusBadRequest, err.Error())
	default:
		h.logger.WithError(err).WithField("path", c.FullPath()).Error("request failed")
		respondError(c, http.StatusInternalServerError, "Internal server error")
	}
}

func parseUUIDParam(c *gin.Context, name, message string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		respondError(c, http.StatusBadRequest, message)
		return uuid.Nil, false
	}
	return id, true
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, models.ErrorResponse{Message: message})
}
