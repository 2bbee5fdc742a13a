package events

import "time"

// Event type names stored in the outbox type column.
const (
	TypeBookingUpdated = "booking.updated.v1"
	TypeRefundIssued   = "refund.issued.v1"
	TypeUpchargePaid   = "upcharge.paid.v1"
)

type BookingUpdatedV1 struct {
	EventID          string    `json:"event_id"`
	BookingID        string    `json:"booking_id"`
	BookingReference string    `json:"booking_reference"`
	BookingKind      string    `json:"booking_kind"`
	UserID           string    `json:"user_id"`
	ScheduleKey      string    `json:"schedule_key"`
	ServiceAt        time.Time `json:"service_at"`
	AdultCount       int       `json:"adult_count"`
	ChildCount       int       `json:"child_count"`
	PickupName       string    `json:"pickup_name,omitempty"`
	PickupTime       string    `json:"pickup_time,omitempty"`
	TotalCents       int64     `json:"total_cents"`
	DeltaCents       int64     `json:"delta_cents"`
	DeltaType        string    `json:"delta_type"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type RefundIssuedV1 struct {
	EventID          string    `json:"event_id"`
	BookingID        string    `json:"booking_id"`
	BookingReference string    `json:"booking_reference"`
	UserID           string    `json:"user_id"`
	RefundIDs        []string  `json:"refund_ids"`
	TotalCents       int64     `json:"total_cents"`
	Percent          int       `json:"percent"`
	Reason           string    `json:"reason"`
	IssuedAt         time.Time `json:"issued_at"`
}

type UpchargePaidV1 struct {
	EventID          string    `json:"event_id"`
	BookingID        string    `json:"booking_id"`
	BookingReference string    `json:"booking_reference"`
	UserID           string    `json:"user_id"`
	PaymentIntentID  string    `json:"payment_intent_id"`
	AmountCents      int64     `json:"amount_cents"`
	PaidAt           time.Time `json:"paid_at"`
}
