package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Tesseract-Nexus/go-shared/secrets"
)

const (
	defaultDirectUPIExtraDiscount = 50.0
	defaultCheckoutSessionTTL     = 6 * time.Hour
	defaultCouponMatchTolerance   = 0.02
)

// Config holds all configuration for the service
type Config struct {
	Environment string
	Port        string
	LogLevel    string
	TenantID    string

	// Database
	DatabaseURL string

	// Redis (idempotency keys). Empty disables the idempotency middleware.
	RedisURL string

	// NATS (domain events). Empty disables publishing.
	NATSURL string

	// Auth
	JWTSecret string

	// Notification service for learner emails. Empty disables notifications.
	NotificationServiceURL string

	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int

	// Reconciliation job schedule, cron syntax with a seconds field
	ReconcileSchedule string

	Pricing PricingConfig
	UPI     UPIConfig
}

// PricingConfig holds the money policy applied at checkout and submission
type PricingConfig struct {
	DirectUPIExtraDiscount float64
	CheckoutSessionTTL     time.Duration
	CouponMatchTolerance   float64
}

// UPIConfig holds display-only manual payment instructions
type UPIConfig struct {
	UPIID     string
	PayeeName string
	QRURL     string
}

// Load loads configuration from environment variables
func Load() *Config {
	return &Config{
		Environment:            getEnv("ENVIRONMENT", "development"),
		Port:                   getEnv("PORT", "8080"),
		LogLevel:               getEnv("LOG_LEVEL", "info"),
		TenantID:               getEnv("TENANT_ID", "academy"),
		DatabaseURL:            getEnv("DATABASE_URL", ""),
		RedisURL:               getEnv("REDIS_URL", ""),
		NATSURL:                getEnv("NATS_URL", ""),
		JWTSecret:              getJWTSecret(),
		NotificationServiceURL: getEnv("NOTIFICATION_SERVICE_URL", ""),
		CORSAllowedOrigins:     getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		RateLimitRPS:           getEnvAsFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst:         getEnvAsInt("RATE_LIMIT_BURST", 20),
		ReconcileSchedule:      getEnv("RECONCILE_SCHEDULE", "0 */15 * * * *"),
		Pricing: PricingConfig{
			DirectUPIExtraDiscount: ParseDirectUPIExtraDiscount(os.Getenv("DIRECT_UPI_EXTRA_DISCOUNT")),
			CheckoutSessionTTL:     getEnvAsDuration("CHECKOUT_SESSION_TTL", defaultCheckoutSessionTTL),
			CouponMatchTolerance:   getEnvAsFloat("COUPON_MATCH_TOLERANCE", defaultCouponMatchTolerance),
		},
		UPI: UPIConfig{
			UPIID:     getEnv("MANUAL_UPI", ""),
			PayeeName: getEnv("MANUAL_UPI_PAYEE_NAME", ""),
			QRURL:     getEnv("MANUAL_UPI_QR", ""),
		},
	}
}

// ParseDirectUPIExtraDiscount reads the flat UPI discount. Unparsable values
// fall back to the default; negative values disable the discount.
func ParseDirectUPIExtraDiscount(raw string) float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return defaultDirectUPIExtraDiscount
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return defaultDirectUPIExtraDiscount
	}
	if v < 0 {
		return 0
	}
	return v
}

// IsDevelopment returns true when running locally
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func getJWTSecret() string {
	if v := os.Getenv("JWT_SECRET"); v != "" {
		return v
	}
	return secrets.GetJWTSecret()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

// InitDB initializes the database connection
func InitDB(cfg *Config) (*gorm.DB, error) {
	dsn := cfg.DatabaseURL
	if dsn == "" {
		host := getEnv("DB_HOST", "localhost")
		port := getEnv("DB_PORT", "5432")
		user := getEnv("DB_USER", "postgres")
		password := secrets.GetDBPassword()
		dbname := getEnv("DB_NAME", "academy_db")
		sslmode := getEnv("DB_SSLMODE", "require")

		dsn = fmt.Sprintf(
			"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			host, port, user, password, dbname, sslmode,
		)
	}

	logLevel := logger.Silent
	if cfg.IsDevelopment() {
		logLevel = logger.Info
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}
