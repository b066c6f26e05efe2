package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const idempotencyHeader = "Idempotency-Key"

// Idempotency rejects replays of a POST carrying an already-seen
// Idempotency-Key. Keys are scoped per user and released when the request
// fails, so clients can retry. Redis errors let the request through.
func Idempotency(client *redis.Client, ttl time.Duration, logger *logrus.Logger) gin.HandlerFunc {
	log := logger.WithField("component", "idempotency")

	return func(c *gin.Context) {
		key := c.GetHeader(idempotencyHeader)
		if c.Request.Method != http.MethodPost || key == "" || client == nil {
			c.Next()
			return
		}

		scope := c.ClientIP()
		if userID, ok := GetUserID(c); ok {
			scope = userID.String()
		}
		cacheKey := "idempotency:" + scope + ":" + c.FullPath() + ":" + key

		ctx := c.Request.Context()
		acquired, err := client.SetNX(ctx, cacheKey, "processing", ttl).Result()
		if err != nil {
			log.WithError(err).Warn("idempotency store unavailable, continuing without it")
			c.Next()
			return
		}
		if !acquired {
			abortJSON(c, http.StatusConflict, "Request with this idempotency key has already been processed")
			return
		}

		c.Next()

		if c.Writer.Status() >= http.StatusBadRequest {
			if err := client.Del(ctx, cacheKey).Err(); err != nil {
				log.WithError(err).Warn("failed to release idempotency key")
			}
		}
	}
}
