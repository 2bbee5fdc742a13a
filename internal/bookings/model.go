package bookings

import (
	"time"

	"github.com/google/uuid"

	"github.com/atlastours/booking-api/internal/catalog"
)

// Status is the booking lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// Pricing is a snapshot taken when the booking was created or last edited.
// It is never a live reference into the catalog: repricing an old booking
// against today's price list would retroactively change what the customer
// agreed to pay.
type Pricing struct {
	AdultPriceCents int64  `json:"adult_price_cents"`
	ChildPriceCents int64  `json:"child_price_cents"`
	AdultTotalCents int64  `json:"adult_total_cents"`
	ChildTotalCents int64  `json:"child_total_cents"`
	TotalCents      int64  `json:"total_cents"`
	Currency        string `json:"currency"`
}

// Consistent reports whether the snapshot satisfies the pricing invariant
// against the given guest counts.
func (p Pricing) Consistent(adultCount, childCount int) bool {
	return p.AdultTotalCents == p.AdultPriceCents*int64(adultCount) &&
		p.ChildTotalCents == p.ChildPriceCents*int64(childCount) &&
		p.TotalCents == p.AdultTotalCents+p.ChildTotalCents
}

// PickupDetails is the selected pickup location and its derived time.
type PickupDetails struct {
	LocationID   string `json:"location_id"`
	LocationName string `json:"location_name"`
	Time         string `json:"time"` // HH:MM
}

// Booking is a tour or event booking. Kind selects the schedule source on the
// parent catalog document: tours key occurrences by date, events by schedule id.
type Booking struct {
	ID          uuid.UUID     `json:"id"`
	Reference   string        `json:"booking_reference"`
	Kind        catalog.Kind  `json:"kind"`
	Status      Status        `json:"status"`
	UserID      uuid.UUID     `json:"user_id"`
	BookedByID  uuid.UUID     `json:"booked_by_id"` // creator; differs from UserID for agent-booked records
	ProductID   string        `json:"product_id"`
	ScheduleKey string        `json:"schedule_key"`
	AdultCount  int           `json:"adult_count"`
	ChildCount  int           `json:"child_count"`
	Pickup      PickupDetails `json:"pickup_details"`
	Pricing     Pricing       `json:"pricing"`

	// ReviewFollowup tracks the CRM review/follow-up record tied to this
	// booking. The CMS sometimes syncs it as a bare id and sometimes as an
	// expanded object, so it is normalized through catalog.Ref.
	ReviewFollowup catalog.Ref `json:"review_followup"`

	// Version guards the read-calculate-refund-write sequence: the final
	// persist is a compare-and-swap on this field.
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Editable reports whether the edit workflow may touch this booking.
// Cancelled and completed bookings are immutable for everyone, admins
// included.
func (b *Booking) Editable() bool {
	return b.Status != StatusCancelled && b.Status != StatusCompleted
}
