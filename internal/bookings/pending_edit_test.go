package bookings

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestPendingEditRoundTrip(t *testing.T) {
	client := setupTestRedis(t)
	store := NewPendingEditStore(client, 30*time.Minute)
	ctx := context.Background()

	pe := &PendingEdit{
		BookingID:       uuid.New(),
		Token:           NewEditToken(),
		PaymentID:       uuid.New(),
		PaymentIntentID: "pi_123",
		AmountCents:     5000,
		EditData:        json.RawMessage(`{"adult_count":3}`),
	}
	require.NoError(t, store.Put(ctx, pe))

	got, err := store.Get(ctx, pe.BookingID, pe.Token)
	require.NoError(t, err)
	assert.Equal(t, pe.PaymentIntentID, got.PaymentIntentID)
	assert.Equal(t, pe.AmountCents, got.AmountCents)
	assert.JSONEq(t, `{"adult_count":3}`, string(got.EditData))
	assert.False(t, got.CreatedAt.IsZero())

	require.NoError(t, store.Consume(ctx, pe.BookingID, pe.Token))
	_, err = store.Get(ctx, pe.BookingID, pe.Token)
	assert.ErrorIs(t, err, ErrPendingEditNotFound)
}

func TestPendingEditUnknownToken(t *testing.T) {
	client := setupTestRedis(t)
	store := NewPendingEditStore(client, time.Minute)

	_, err := store.Get(context.Background(), uuid.New(), "bogus")
	assert.ErrorIs(t, err, ErrPendingEditNotFound)
}
