package bookings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrPendingEditNotFound means no pending edit exists for the token, either
// because it expired or was already consumed.
var ErrPendingEditNotFound = errors.New("bookings: pending edit not found or expired")

// PendingEdit bridges the two-phase upcharge flow: it is written when the
// payment intent is created and consumed when the client confirms the charge,
// so the server-side edit payload cannot be fabricated or corrupted between
// the two calls.
type PendingEdit struct {
	BookingID       uuid.UUID       `json:"booking_id"`
	Token           string          `json:"token"`
	PaymentID       uuid.UUID       `json:"payment_id"`
	PaymentIntentID string          `json:"payment_intent_id"`
	AmountCents     int64           `json:"amount_cents"`
	EditData        json.RawMessage `json:"edit_data"`
	CreatedAt       time.Time       `json:"created_at"`
}

// PendingEditStore keeps pending edits in redis with a TTL. Single-process
// and multi-instance deployments share the same state.
type PendingEditStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewPendingEditStore creates a pending-edit store.
func NewPendingEditStore(client *redis.Client, ttl time.Duration) *PendingEditStore {
	return &PendingEditStore{client: client, ttl: ttl}
}

// NewEditToken mints an opaque token for a pending edit.
func NewEditToken() string {
	return uuid.NewString()
}

func pendingEditKey(bookingID uuid.UUID, token string) string {
	return fmt.Sprintf("pending_edit:%s:%s", bookingID, token)
}

// Put stores a pending edit under its booking id + token.
func (s *PendingEditStore) Put(ctx context.Context, pe *PendingEdit) error {
	if pe.CreatedAt.IsZero() {
		pe.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(pe)
	if err != nil {
		return fmt.Errorf("bookings: encode pending edit: %w", err)
	}
	if err := s.client.Set(ctx, pendingEditKey(pe.BookingID, pe.Token), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("bookings: store pending edit: %w", err)
	}
	return nil
}

// Get loads a pending edit.
func (s *PendingEditStore) Get(ctx context.Context, bookingID uuid.UUID, token string) (*PendingEdit, error) {
	data, err := s.client.Get(ctx, pendingEditKey(bookingID, token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrPendingEditNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("bookings: load pending edit: %w", err)
	}
	var pe PendingEdit
	if err := json.Unmarshal(data, &pe); err != nil {
		return nil, fmt.Errorf("bookings: decode pending edit: %w", err)
	}
	return &pe, nil
}

// Consume removes a pending edit after the confirming edit succeeds.
func (s *PendingEditStore) Consume(ctx context.Context, bookingID uuid.UUID, token string) error {
	if err := s.client.Del(ctx, pendingEditKey(bookingID, token)).Err(); err != nil {
		return fmt.Errorf("bookings: consume pending edit: %w", err)
	}
	return nil
}
