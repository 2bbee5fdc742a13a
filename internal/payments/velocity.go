package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"

	"github.com/atlastours/booking-api/pkg/logging"
)

// RefundVelocityChecker caps how often one user can request edit refunds,
// as a fraud guard in front of the refund processor.
type RefundVelocityChecker struct {
	redis  *redis.Client
	max    int
	window time.Duration
	logger *logging.Logger
}

// VelocityResult reports a velocity decision.
type VelocityResult struct {
	Allowed      bool
	CurrentCount int
	MaxAllowed   int
	WindowExpiry time.Time
	Message      string
}

// NewRefundVelocityChecker creates a refund velocity checker.
func NewRefundVelocityChecker(redisClient *redis.Client, max int, window time.Duration, logger *logging.Logger) *RefundVelocityChecker {
	if logger == nil {
		logger = logging.Default()
	}
	return &RefundVelocityChecker{redis: redisClient, max: max, window: window, logger: logger}
}

// Check increments the user's refund-request counter and reports whether this
// request is within the limit. Fails open if redis is unavailable: a missed
// fraud check must not block legitimate refunds.
func (v *RefundVelocityChecker) Check(ctx context.Context, userID uuid.UUID) (*VelocityResult, error) {
	ctx, span := stripeTracer.Start(ctx, "velocity.check_refund")
	defer span.End()
	span.SetAttributes(attribute.String("atlastours.user_id", userID.String()))

	if v.max <= 0 {
		return &VelocityResult{Allowed: true}, nil
	}

	key := fmt.Sprintf("velocity:refund:%s", userID)
	count, err := v.redis.Incr(ctx, key).Result()
	if err != nil {
		v.logger.Error("refund velocity check failed", "error", err, "key", key)
		return &VelocityResult{Allowed: true, Message: "velocity check unavailable"}, nil
	}
	if count == 1 {
		v.redis.Expire(ctx, key, v.window)
	}
	ttl, err := v.redis.TTL(ctx, key).Result()
	if err != nil {
		ttl = v.window
	}

	result := &VelocityResult{
		Allowed:      int(count) <= v.max,
		CurrentCount: int(count),
		MaxAllowed:   v.max,
		WindowExpiry: time.Now().Add(ttl),
	}
	if !result.Allowed {
		result.Message = fmt.Sprintf("exceeded %d refund requests in %s", v.max, v.window)
		v.logger.Warn("refund velocity exceeded",
			"user_id", userID,
			"count", count,
			"max", v.max,
		)
		span.SetAttributes(attribute.Bool("velocity.exceeded", true))
	}
	return result, nil
}

// Reset clears the user's refund counter (admin use).
func (v *RefundVelocityChecker) Reset(ctx context.Context, userID uuid.UUID) error {
	return v.redis.Del(ctx, fmt.Sprintf("velocity:refund:%s", userID)).Err()
}
