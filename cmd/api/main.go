package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/atlastours/booking-api/internal/api/router"
	"github.com/atlastours/booking-api/internal/bookings"
	"github.com/atlastours/booking-api/internal/catalog"
	appconfig "github.com/atlastours/booking-api/internal/config"
	"github.com/atlastours/booking-api/internal/edit"
	"github.com/atlastours/booking-api/internal/events"
	"github.com/atlastours/booking-api/internal/http/handlers"
	httpmiddleware "github.com/atlastours/booking-api/internal/http/middleware"
	"github.com/atlastours/booking-api/internal/notify"
	"github.com/atlastours/booking-api/internal/observability/metrics"
	"github.com/atlastours/booking-api/internal/payments"
	"github.com/atlastours/booking-api/internal/pricing"
	"github.com/atlastours/booking-api/internal/users"
	"github.com/atlastours/booking-api/pkg/logging"
)

func main() {
	// Load .env if present; environment variables win in deployed setups.
	_ = godotenv.Load()

	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting booking-api server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Error("database unreachable", "error", err)
		os.Exit(1)
	}

	redisOpts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOpts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	redisClient := redis.NewClient(redisOpts)
	defer func() { _ = redisClient.Close() }()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Error("redis unreachable", "error", err)
		os.Exit(1)
	}

	policy, err := payments.ParseRefundPolicy(cfg.RefundPolicyJSON)
	if err != nil {
		logger.Error("invalid refund policy", "error", err)
		os.Exit(1)
	}

	// Stores
	catalogStore := catalog.NewStore(pool)
	bookingStore := bookings.NewStore(pool)
	paymentStore := payments.NewStore(pool)
	userStore := users.NewStore(pool)
	outboxStore := events.NewOutboxStore(pool)
	pendingEdits := bookings.NewPendingEditStore(redisClient, cfg.PendingEditTTL)

	// Payment plumbing
	gateway := payments.NewStripeClient(cfg.StripeSecretKey, logger)
	if cfg.StripeBaseURL != "" {
		gateway = gateway.WithBaseURL(cfg.StripeBaseURL)
	}
	refunds := payments.NewRefundProcessor(paymentStore, gateway, policy, logger)
	upcharges := payments.NewUpchargeProcessor(paymentStore, userStore, gateway, logger)
	velocity := payments.NewRefundVelocityChecker(redisClient, cfg.MaxRefundRequestsPerUser, cfg.RefundRequestWindow, logger)

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	editMetrics := metrics.NewEditMetrics(registry)

	svc := edit.NewService(edit.Config{
		Validator:    bookings.NewValidator(bookingStore, cfg.MinPickupLeadTime),
		BookingStore: bookingStore,
		Calculator:   pricing.NewCalculator(catalogStore),
		Refunds:      refunds,
		Upcharges:    upcharges,
		PaymentStore: paymentStore,
		Gateway:      gateway,
		PendingEdits: pendingEdits,
		Velocity:     velocity,
		Outbox:       outboxStore,
		Policy:       policy,
		Metrics:      editMetrics,
		Logger:       logger,
	})

	// Outbox delivery: email plus review follow-up rescheduling.
	var emailSender notify.EmailSender
	if cfg.SendGridAPIKey != "" {
		emailSender = notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger)
	} else {
		logger.Warn("SENDGRID_API_KEY not set, emails will be logged only")
		emailSender = notify.NewStubEmailSender(logger)
	}
	var reviews notify.ReviewScheduler
	if cfg.ShopperApprovedSiteID != "" && cfg.ShopperApprovedToken != "" {
		reviews = notify.NewShopperApprovedClient(cfg.ShopperApprovedSiteID, cfg.ShopperApprovedToken, logger).
			WithBaseURL(cfg.ShopperApprovedBaseURL)
	} else {
		logger.Warn("ShopperApproved credentials not set, review follow-ups will be logged only")
		reviews = notify.NewStubReviewScheduler(logger)
	}
	notifier := notify.NewService(emailSender, reviews, userStore, bookingStore,
		time.Duration(cfg.FollowupOffsetHours)*time.Hour, logger)
	deliverer := events.NewDeliverer(outboxStore, notifier, logger).
		WithBatchSize(int32(cfg.OutboxBatchSize)).
		WithInterval(cfg.OutboxPollInterval)
	go deliverer.Start(ctx)

	var corsOrigins []string
	if cfg.CORSAllowedOrigins != "" {
		for _, origin := range strings.Split(cfg.CORSAllowedOrigins, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				corsOrigins = append(corsOrigins, origin)
			}
		}
	}

	r := router.New(&router.Config{
		Logger:             logger,
		EditHandler:        handlers.NewEditHandler(svc, logger),
		AuthHandler:        handlers.NewAuthHandler(userStore, cfg.SessionJWTSecret, cfg.SessionTTL, logger),
		SessionSecret:      cfg.SessionJWTSecret,
		MetricsHandler:     promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		CORSAllowedOrigins: corsOrigins,
		RateLimitStore:     httpmiddleware.NewRedisCounterStore(redisClient),
		RateLimitMax:       cfg.AuthRateLimitMax,
		RateLimitWindow:    cfg.AuthRateLimitWindow,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
