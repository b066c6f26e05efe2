package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"academy-payments-service/internal/models"
	"academy-payments-service/internal/repository"
)

// Context keys set by Auth
const (
	ContextUserID  = "user_id"
	ContextIsAdmin = "is_admin"
)

// UserLookup resolves the account behind a token
type UserLookup interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Claims are the JWT claims issued by the auth provider. The user id is
// carried in sub, or in user_id for older tokens.
type Claims struct {
	UserID string `json:"user_id,omitempty"`
	jwt.RegisteredClaims
}

// Auth validates the bearer token and loads the caller's admin flag
func Auth(jwtSecret string, users UserLookup, logger *logrus.Logger) gin.HandlerFunc {
	log := logger.WithField("component", "auth")

	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(tokenString) == "" {
			abortJSON(c, http.StatusUnauthorized, "Authorization header must be in format: Bearer <token>")
			return
		}

		claims := &Claims{}
		_, err := jwt.ParseWithClaims(strings.TrimSpace(tokenString), claims, func(token *jwt.Token) (interface{}, error) {
			return []byte(jwtSecret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil {
			abortJSON(c, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		subject := claims.Subject
		if subject == "" {
			subject = claims.UserID
		}
		userID, err := uuid.Parse(subject)
		if err != nil {
			abortJSON(c, http.StatusUnauthorized, "Invalid token subject")
			return
		}

		user, err := users.GetUserByID(c.Request.Context(), userID)
		if err != nil {
			if !errors.Is(err, repository.ErrNotFound) {
				log.WithError(err).WithField("user_id", userID).Warn("failed to load user")
			}
			abortJSON(c, http.StatusUnauthorized, "User not found")
			return
		}

		c.Set(ContextUserID, user.ID)
		c.Set(ContextIsAdmin, user.IsAdmin)
		c.Next()
	}
}

// RequireAdmin rejects callers without the admin flag. Must run after Auth.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !c.GetBool(ContextIsAdmin) {
			abortJSON(c, http.StatusForbidden, "Admin access required")
			return
		}
		c.Next()
	}
}

// GetUserID returns the authenticated user's id
func GetUserID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(ContextUserID)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

func abortJSON(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, models.ErrorResponse{Message: message})
}
