package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"academy-payments-service/internal/clients"
	"academy-payments-service/internal/config"
	"academy-payments-service/internal/events"
	"academy-payments-service/internal/handlers"
	"academy-payments-service/internal/jobs"
	"academy-payments-service/internal/middleware"
	"academy-payments-service/internal/models"
	"academy-payments-service/internal/repository"
	"academy-payments-service/internal/services"
)

const idempotencyTTL = 24 * time.Hour

// @title Academy Payments API
// @version 1.0.0
// @description Manual UPI payment reconciliation and coupon pricing for academy courses

// @host localhost:8080
// @BasePath /api/v1

// @securityDefinitions.bearer BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	if err := godotenv.Load(); err != nil {
		logger.Info("No .env file found, using system environment variables")
	}

	cfg := config.Load()
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	db, err := config.InitDB(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to database:", err)
	}

	logger.Info("Running database migrations...")
	if err := db.AutoMigrate(
		&models.Course{},
		&models.User{},
		&models.Coupon{},
		&models.ManualPayment{},
		&models.Enrollment{},
		&models.PaymentAuditLog{},
	); err != nil {
		logger.Fatalf("Failed to run migrations: %v", err)
	}
	logger.Info("Database migrations completed")

	paymentRepo := repository.NewPaymentRepository(db)

	// Event publisher is optional; the service works without NATS
	var publisher services.EventPublisher
	var natsPublisher *events.Publisher
	if cfg.NATSURL != "" {
		natsPublisher, err = events.NewPublisher(cfg.NATSURL, cfg.TenantID, logger)
		if err != nil {
			logger.Warnf("Failed to initialize event publisher: %v. Events will not be published.", err)
		} else {
			publisher = natsPublisher
			logger.Info("Event publisher initialized")
		}
	} else {
		logger.Info("NATS_URL not configured, event publishing disabled")
	}

	var notifier services.Notifier
	if cfg.NotificationServiceURL != "" {
		notifier = clients.NewNotificationClient(cfg.NotificationServiceURL, cfg.TenantID, logger)
	} else {
		logger.Info("NOTIFICATION_SERVICE_URL not configured, learner emails disabled")
	}

	paymentService := services.NewPaymentService(paymentRepo, cfg, publisher, notifier, logger)
	paymentHandler := handlers.NewPaymentHandler(paymentService, logger)

	submitGuards := []gin.HandlerFunc{
		middleware.RateLimit(middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)),
	}
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Warnf("Invalid REDIS_URL: %v. Idempotency keys disabled.", err)
		} else {
			redisClient = redis.NewClient(opts)
			submitGuards = append(submitGuards, middleware.Idempotency(redisClient, idempotencyTTL, logger))
			logger.Info("Idempotency middleware enabled")
		}
	}

	reconciliationJob := jobs.NewReconciliationJob(paymentService, cfg.ReconcileSchedule, logger)
	if err := reconciliationJob.Start(); err != nil {
		logger.Fatalf("Failed to start reconciliation job: %v", err)
	}

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORS(cfg.CORSAllowedOrigins))

	router.GET("/health", handlers.HealthCheck)
	router.GET("/ready", handlers.ReadinessCheck(db))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := router.Group("/api/v1")
	paymentHandler.RegisterRoutes(api, middleware.Auth(cfg.JWTSecret, paymentRepo, logger), submitGuards...)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("Academy payments service starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server:", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	reconciliationJob.Stop()

	if natsPublisher != nil {
		natsPublisher.Close()
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}

	logger.Info("Server shutdown complete")
}
