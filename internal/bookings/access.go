package bookings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/atlastours/booking-api/internal/catalog"
)

var (
	// ErrAccessDenied means the requester neither owns nor created the
	// booking and is not an admin.
	ErrAccessDenied = errors.New("bookings: access denied")
	// ErrNotEditable means the booking is in a terminal status.
	ErrNotEditable = errors.New("bookings: this booking cannot be edited")
	// ErrInvalidPickupTime means the requested pickup violates the
	// minimum-lead-time policy or has already passed.
	ErrInvalidPickupTime = errors.New("bookings: pickup time is no longer selectable")
)

// RoleAdmin short-circuits the ownership check.
const RoleAdmin = "admin"

// Validator gates the edit workflow: ownership, editability, and the
// pickup-time lead policy.
type Validator struct {
	store   *Store
	minLead time.Duration
	now     func() time.Time
}

// NewValidator creates an access validator. minLead is the minimum time
// before pickup that an edit may still target.
func NewValidator(store *Store, minLead time.Duration) *Validator {
	return &Validator{
		store:   store,
		minLead: minLead,
		now:     time.Now,
	}
}

// WithClock overrides the clock for tests.
func (v *Validator) WithClock(now func() time.Time) *Validator {
	v.now = now
	return v
}

// ValidateEditAccess loads the booking and confirms the requester may edit it.
// A booking of the wrong kind is reported as not found so callers cannot
// probe ids across the tour/event surfaces.
func (v *Validator) ValidateEditAccess(ctx context.Context, bookingID uuid.UUID, userID uuid.UUID, role string, kind catalog.Kind) (*Booking, error) {
	b, err := v.store.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.Kind != kind {
		return nil, ErrNotFound
	}
	if role != RoleAdmin && b.UserID != userID && b.BookedByID != userID {
		return nil, ErrAccessDenied
	}
	if !b.Editable() {
		return nil, fmt.Errorf("%w (status %s)", ErrNotEditable, b.Status)
	}
	return b, nil
}

// ValidatePickupTime enforces the lead-time policy against the proposed
// occurrence. pickupTime is HH:MM on the service date; a malformed value
// falls back to the service start.
func (v *Validator) ValidatePickupTime(serviceAt time.Time, pickupTime string) error {
	pickupAt := serviceAt
	if t, err := time.Parse("15:04", pickupTime); err == nil {
		pickupAt = time.Date(serviceAt.Year(), serviceAt.Month(), serviceAt.Day(),
			t.Hour(), t.Minute(), 0, 0, serviceAt.Location())
	}
	if pickupAt.Sub(v.now().UTC()) < v.minLead {
		return ErrInvalidPickupTime
	}
	return nil
}
