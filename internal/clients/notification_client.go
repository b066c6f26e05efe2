package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"academy-payments-service/internal/models"
)

// NotificationClient sends learner emails through notification-service
type NotificationClient struct {
	baseURL    string
	tenantID   string
	httpClient *http.Client
	logger     *logrus.Entry
}

// notificationRequest is the API request format for notification-service
type notificationRequest struct {
	To        string            `json:"to"`
	Subject   string            `json:"subject"`
	Template  string            `json:"template"`
	Variables map[string]string `json:"variables"`
}

// NewNotificationClient creates a new notification client
func NewNotificationClient(baseURL, tenantID string, logger *logrus.Logger) *NotificationClient {
	return &NotificationClient{
		baseURL:  baseURL,
		tenantID: tenantID,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger.WithField("component", "notification_client"),
	}
}

// SendPaymentApproved tells the learner their course is unlocked
func (c *NotificationClient) SendPaymentApproved(ctx context.Context, user *models.User, course *models.Course, payment *models.ManualPayment) error {
	if user.Email == "" {
		c.logger.WithField("user_id", user.ID).Info("no email for user, skipping approval notification")
		return nil
	}

	req := &notificationRequest{
		To:       user.Email,
		Subject:  fmt.Sprintf("Payment confirmed: %s", course.Title),
		Template: "manual_payment_approved",
		Variables: map[string]string{
			"customerName": user.Name,
			"courseTitle":  course.Title,
			"amount":       fmt.Sprintf("%.2f", payment.Amount),
			"paymentId":    payment.ID.String(),
		},
	}

	return c.sendNotification(ctx, req)
}

// SendPaymentRejected tells the learner their proof could not be verified
func (c *NotificationClient) SendPaymentRejected(ctx context.Context, user *models.User, course *models.Course, payment *models.ManualPayment) error {
	if user.Email == "" {
		c.logger.WithField("user_id", user.ID).Info("no email for user, skipping rejection notification")
		return nil
	}

	note := ""
	if payment.RejectionNote != nil {
		note = *payment.RejectionNote
	}

	req := &notificationRequest{
		To:       user.Email,
		Subject:  fmt.Sprintf("Payment could not be verified: %s", course.Title),
		Template: "manual_payment_rejected",
		Variables: map[string]string{
			"customerName":  user.Name,
			"courseTitle":   course.Title,
			"amount":        fmt.Sprintf("%.2f", payment.Amount),
			"paymentId":     payment.ID.String(),
			"rejectionNote": note,
		},
	}

	return c.sendNotification(ctx, req)
}

// sendNotification sends a notification request to notification-service
func (c *NotificationClient) sendNotification(ctx context.Context, req *notificationRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal notification request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/notifications/send", bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", c.tenantID)
	httpReq.Header.Set("X-Internal-Service", "academy-payments-service")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("notification service returned status %d", resp.StatusCode)
	}

	c.logger.WithFields(logrus.Fields{"to": req.To, "template": req.Template}).Info("notification sent")
	return nil
}
