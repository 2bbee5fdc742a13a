package pricing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/atlastours/booking-api/internal/bookings"
	"github.com/atlastours/booking-api/internal/catalog"
)

// ErrInvalidGuestCount means the proposed guest counts are negative, empty,
// or below the product's minimum.
var ErrInvalidGuestCount = errors.New("pricing: invalid guest count")

// DeltaType classifies the financial outcome of an edit.
type DeltaType string

const (
	DeltaUpcharge DeltaType = "upcharge"
	DeltaRefund   DeltaType = "refund"
	DeltaNone     DeltaType = "none"
)

// EditData is the proposed edit: new schedule selection, guest counts, and
// pickup. ScheduleKey is a date (YYYY-MM-DD) for tours and a schedule id for
// events.
type EditData struct {
	ScheduleKey      string `json:"schedule_key"`
	AdultCount       int    `json:"adult_count"`
	ChildCount       int    `json:"child_count"`
	PickupLocationID string `json:"pickup_location_id"`
}

// Delta is the financial outcome of an edit plus the fully formed new pricing
// snapshot, ready to persist. Amounts are integer cents, so the zero case is
// exact rather than an epsilon comparison.
type Delta struct {
	OriginalCents   int64            `json:"original_amount_cents"`
	NewCents        int64            `json:"new_amount_cents"`
	DifferenceCents int64            `json:"difference_cents"`
	Type            DeltaType        `json:"type"`
	NewPricing      bookings.Pricing `json:"new_pricing"`

	// Resolved occurrence details, reused by the orchestrator for the
	// pickup-time policy and the new pickup snapshot.
	ServiceAt  time.Time `json:"service_at"`
	PickupName string    `json:"pickup_name"`
	PickupTime string    `json:"pickup_time"`
}

// DocumentSource loads the parent catalog document for a booking.
type DocumentSource interface {
	Get(ctx context.Context, kind catalog.Kind, id string) (*catalog.Document, error)
}

// Calculator computes the financial delta of a booking edit.
type Calculator struct {
	docs DocumentSource
}

// NewCalculator creates a delta calculator.
func NewCalculator(docs DocumentSource) *Calculator {
	return &Calculator{docs: docs}
}

// Calculate prices the proposed edit against the catalog and diffs it against
// the booking's stored snapshot. The original amount is always the stored
// totalAmount, never a recompute from today's price list: admins changing
// catalog prices must not retroactively reprice historical bookings.
func (c *Calculator) Calculate(ctx context.Context, b *bookings.Booking, edit EditData) (*Delta, error) {
	if edit.AdultCount < 0 || edit.ChildCount < 0 || edit.AdultCount+edit.ChildCount <= 0 {
		return nil, ErrInvalidGuestCount
	}

	doc, err := c.docs.Get(ctx, b.Kind, b.ProductID)
	if err != nil {
		return nil, fmt.Errorf("pricing: load parent document: %w", err)
	}
	if total := edit.AdultCount + edit.ChildCount; total < doc.MinGuests {
		return nil, fmt.Errorf("%w: %d below minimum of %d", ErrInvalidGuestCount, total, doc.MinGuests)
	}

	resolved, err := doc.ResolveSchedule(edit.ScheduleKey, edit.PickupLocationID)
	if err != nil {
		return nil, err
	}

	adultTotal := resolved.AdultPriceCents * int64(edit.AdultCount)
	childTotal := resolved.ChildPriceCents * int64(edit.ChildCount)
	newAmount := adultTotal + childTotal
	original := b.Pricing.TotalCents
	difference := newAmount - original

	deltaType := DeltaNone
	switch {
	case difference > 0:
		deltaType = DeltaUpcharge
	case difference < 0:
		deltaType = DeltaRefund
	}

	currency := b.Pricing.Currency
	if currency == "" {
		currency = doc.Currency
	}

	return &Delta{
		OriginalCents:   original,
		NewCents:        newAmount,
		DifferenceCents: difference,
		Type:            deltaType,
		NewPricing: bookings.Pricing{
			AdultPriceCents: resolved.AdultPriceCents,
			ChildPriceCents: resolved.ChildPriceCents,
			AdultTotalCents: adultTotal,
			ChildTotalCents: childTotal,
			TotalCents:      newAmount,
			Currency:        currency,
		},
		ServiceAt:  resolved.ServiceAt,
		PickupName: resolved.PickupName,
		PickupTime: resolved.PickupTime,
	}, nil
}
