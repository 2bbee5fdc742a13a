package bookings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/atlastours/booking-api/internal/catalog"
)

var (
	// ErrNotFound means no booking with the given id exists.
	ErrNotFound = errors.New("bookings: booking not found")
	// ErrVersionConflict means another request edited the booking between our
	// read and our write. The caller must not retry the financial step.
	ErrVersionConflict = errors.New("bookings: booking was modified concurrently")
)

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store provides CRUD operations for bookings.
type Store struct {
	db DB
}

// NewStore creates a bookings store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

const bookingColumns = `id, reference, kind, status, user_id, booked_by_id, product_id,
	schedule_key, adult_count, child_count, pickup, pricing, review_followup, version,
	created_at, updated_at`

// Get loads one booking.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Booking, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings WHERE id = $1`, id)
	b, err := scanBooking(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("bookings: load: %w", err)
	}
	return b, nil
}

// Create inserts a new booking row. The initial booking flow and test
// fixtures are the only callers; the edit workflow never creates bookings.
func (s *Store) Create(ctx context.Context, b *Booking) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now
	if b.Status == "" {
		b.Status = StatusConfirmed
	}
	if b.Version == 0 {
		b.Version = 1
	}

	pickup, err := json.Marshal(b.Pickup)
	if err != nil {
		return fmt.Errorf("bookings: encode pickup: %w", err)
	}
	pricing, err := json.Marshal(b.Pricing)
	if err != nil {
		return fmt.Errorf("bookings: encode pricing: %w", err)
	}
	followup, err := json.Marshal(b.ReviewFollowup)
	if err != nil {
		return fmt.Errorf("bookings: encode review followup: %w", err)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO bookings (id, reference, kind, status, user_id, booked_by_id, product_id,
			schedule_key, adult_count, child_count, pickup, pricing, review_followup, version,
			created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$15)`,
		b.ID, b.Reference, string(b.Kind), string(b.Status), b.UserID, b.BookedByID,
		b.ProductID, b.ScheduleKey, b.AdultCount, b.ChildCount, pickup, pricing,
		followup, b.Version, now)
	if err != nil {
		return fmt.Errorf("bookings: create: %w", err)
	}
	return nil
}

// UpdateEdited persists the editable fields as a compare-and-swap on version.
// A zero RowsAffected means either the booking vanished or another edit won
// the race; both abort the flow with ErrVersionConflict.
func (s *Store) UpdateEdited(ctx context.Context, b *Booking, expectedVersion int64) error {
	pickup, err := json.Marshal(b.Pickup)
	if err != nil {
		return fmt.Errorf("bookings: encode pickup: %w", err)
	}
	pricing, err := json.Marshal(b.Pricing)
	if err != nil {
		return fmt.Errorf("bookings: encode pricing: %w", err)
	}

	now := time.Now().UTC()
	tag, err := s.db.Exec(ctx, `
		UPDATE bookings
		SET schedule_key = $1, adult_count = $2, child_count = $3, pickup = $4,
		    pricing = $5, version = version + 1, updated_at = $6
		WHERE id = $7 AND version = $8`,
		b.ScheduleKey, b.AdultCount, b.ChildCount, pickup, pricing, now,
		b.ID, expectedVersion)
	if err != nil {
		return fmt.Errorf("bookings: update edited: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	b.Version = expectedVersion + 1
	b.UpdatedAt = now
	return nil
}

func scanBooking(row pgx.Row) (*Booking, error) {
	var (
		b           Booking
		kind        string
		status      string
		pickupRaw   []byte
		pricingRaw  []byte
		followupRaw []byte
	)
	err := row.Scan(&b.ID, &b.Reference, &kind, &status, &b.UserID, &b.BookedByID,
		&b.ProductID, &b.ScheduleKey, &b.AdultCount, &b.ChildCount, &pickupRaw,
		&pricingRaw, &followupRaw, &b.Version, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	b.Kind = catalog.Kind(kind)
	b.Status = Status(status)
	if err := json.Unmarshal(pickupRaw, &b.Pickup); err != nil {
		return nil, fmt.Errorf("decode pickup: %w", err)
	}
	if err := json.Unmarshal(pricingRaw, &b.Pricing); err != nil {
		return nil, fmt.Errorf("decode pricing: %w", err)
	}
	if len(followupRaw) > 0 {
		if err := json.Unmarshal(followupRaw, &b.ReviewFollowup); err != nil {
			return nil, fmt.Errorf("decode review followup: %w", err)
		}
	}
	return &b, nil
}
