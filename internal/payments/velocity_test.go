package payments

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlastours/booking-api/pkg/logging"
)

func setupVelocityRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestVelocityCheckAllowsWithinLimit(t *testing.T) {
	_, client := setupVelocityRedis(t)
	checker := NewRefundVelocityChecker(client, 3, 24*time.Hour, logging.Default())
	userID := uuid.New()

	for i := 1; i <= 3; i++ {
		result, err := checker.Check(context.Background(), userID)
		require.NoError(t, err)
		assert.True(t, result.Allowed, "request %d should be allowed", i)
		assert.Equal(t, i, result.CurrentCount)
	}
}

func TestVelocityCheckBlocksOverLimit(t *testing.T) {
	_, client := setupVelocityRedis(t)
	checker := NewRefundVelocityChecker(client, 2, 24*time.Hour, logging.Default())
	userID := uuid.New()

	for i := 0; i < 2; i++ {
		_, err := checker.Check(context.Background(), userID)
		require.NoError(t, err)
	}

	result, err := checker.Check(context.Background(), userID)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, 3, result.CurrentCount)
	assert.NotEmpty(t, result.Message)
}

func TestVelocityCheckSetsWindowExpiry(t *testing.T) {
	mr, client := setupVelocityRedis(t)
	checker := NewRefundVelocityChecker(client, 3, time.Hour, logging.Default())
	userID := uuid.New()

	_, err := checker.Check(context.Background(), userID)
	require.NoError(t, err)

	ttl := mr.TTL(fmt.Sprintf("velocity:refund:%s", userID))
	assert.Equal(t, time.Hour, ttl)
}

func TestVelocityCheckCountersAreIndependentPerUser(t *testing.T) {
	_, client := setupVelocityRedis(t)
	checker := NewRefundVelocityChecker(client, 1, time.Hour, logging.Default())

	allowed, err := checker.Check(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.True(t, allowed.Allowed)

	other, err := checker.Check(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.True(t, other.Allowed)
}

func TestVelocityCheckFailsOpenOnRedisError(t *testing.T) {
	mr, client := setupVelocityRedis(t)
	checker := NewRefundVelocityChecker(client, 2, time.Hour, logging.Default())
	mr.Close()

	result, err := checker.Check(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, "velocity check unavailable", result.Message)
}

func TestVelocityCheckDisabledWhenMaxZero(t *testing.T) {
	_, client := setupVelocityRedis(t)
	checker := NewRefundVelocityChecker(client, 0, time.Hour, logging.Default())

	result, err := checker.Check(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestVelocityReset(t *testing.T) {
	_, client := setupVelocityRedis(t)
	checker := NewRefundVelocityChecker(client, 1, time.Hour, logging.Default())
	userID := uuid.New()

	for i := 0; i < 2; i++ {
		_, err := checker.Check(context.Background(), userID)
		require.NoError(t, err)
	}
	require.NoError(t, checker.Reset(context.Background(), userID))

	result, err := checker.Check(context.Background(), userID)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, 1, result.CurrentCount)
}
