package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string
	DatabaseURL   string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Comma-separated list of allowed browser origins; empty disables CORS.
	CORSAllowedOrigins string

	// Session auth
	SessionJWTSecret string
	SessionTTL       time.Duration

	// Stripe
	StripeSecretKey string
	StripeBaseURL   string
	Currency        string

	// Refund policy tiers as JSON, e.g.
	// [{"min_hours_before":72,"percent":100},{"min_hours_before":24,"percent":50}]
	// Empty means the built-in defaults apply.
	RefundPolicyJSON string

	// Booking edit rules
	MinPickupLeadTime time.Duration
	PendingEditTTL    time.Duration

	// Refund velocity (fraud guard)
	MaxRefundRequestsPerUser int
	RefundRequestWindow      time.Duration

	// Rate limiting for the auth funnel. The counter lives in redis so the
	// limit holds across instances.
	AuthRateLimitMax    int
	AuthRateLimitWindow time.Duration

	// Outbox delivery
	OutboxPollInterval time.Duration
	OutboxBatchSize    int

	// SendGrid Email Configuration
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string

	// ShopperApproved review follow-up (CRM)
	ShopperApprovedBaseURL string
	ShopperApprovedSiteID  string
	ShopperApprovedToken   string
	FollowupOffsetHours    int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", ""),

		SessionJWTSecret: getEnv("SESSION_JWT_SECRET", ""),
		SessionTTL:       getEnvAsDuration("SESSION_TTL", 24*time.Hour),

		StripeSecretKey: getEnv("STRIPE_SECRET_KEY", ""),
		StripeBaseURL:   getEnv("STRIPE_BASE_URL", ""),
		Currency:        getEnv("CURRENCY", "usd"),

		RefundPolicyJSON: getEnv("REFUND_POLICY_JSON", ""),

		MinPickupLeadTime: getEnvAsDuration("MIN_PICKUP_LEAD_TIME", 2*time.Hour),
		PendingEditTTL:    getEnvAsDuration("PENDING_EDIT_TTL", 30*time.Minute),

		MaxRefundRequestsPerUser: getEnvAsInt("MAX_REFUND_REQUESTS_PER_USER", 3),
		RefundRequestWindow:      getEnvAsDuration("REFUND_REQUEST_WINDOW", 24*time.Hour),

		AuthRateLimitMax:    getEnvAsInt("AUTH_RATE_LIMIT_MAX", 20),
		AuthRateLimitWindow: getEnvAsDuration("AUTH_RATE_LIMIT_WINDOW", time.Minute),

		OutboxPollInterval: getEnvAsDuration("OUTBOX_POLL_INTERVAL", 5*time.Second),
		OutboxBatchSize:    getEnvAsInt("OUTBOX_BATCH_SIZE", 50),

		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Atlas Tours"),

		ShopperApprovedBaseURL: getEnv("SHOPPER_APPROVED_BASE_URL", "https://api.shopperapproved.com"),
		ShopperApprovedSiteID:  getEnv("SHOPPER_APPROVED_SITE_ID", ""),
		ShopperApprovedToken:   getEnv("SHOPPER_APPROVED_TOKEN", ""),
		FollowupOffsetHours:    getEnvAsInt("REVIEW_FOLLOWUP_OFFSET_HOURS", 24),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
