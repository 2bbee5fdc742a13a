package payments

import (
	"time"

	"github.com/google/uuid"

	"github.com/atlastours/booking-api/internal/catalog"
)

// Status is the charge lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// RefundStatus is the refund sub-state of a payment.
//
//	not_refunded --(refund initiated)--> pending --(gateway confirms)--> refunded
//	                                            \--(gateway/exception)--> failed
type RefundStatus string

const (
	RefundNone    RefundStatus = "not_refunded"
	RefundPending RefundStatus = "pending"
	Refunded      RefundStatus = "refunded"
	RefundFailed  RefundStatus = "failed"
)

// Payment is one charge against a booking. A booking accumulates several over
// its life: the initial payment plus an upcharge per price-increasing edit.
type Payment struct {
	ID          uuid.UUID    `json:"id"`
	Reference   string       `json:"payment_reference"`
	BookingID   uuid.UUID    `json:"booking_id"`
	BookingKind catalog.Kind `json:"booking_kind"`
	UserID      uuid.UUID    `json:"user_id"`
	AmountCents int64        `json:"amount_cents"`
	Currency    string       `json:"currency"`
	Status      Status       `json:"payment_status"`

	StripePaymentIntentID string `json:"stripe_payment_intent_id"`

	RefundStatus  RefundStatus `json:"refund_status"`
	RefundedCents int64        `json:"refunded_cents"`
	RefundID      string       `json:"refund_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HeadroomCents is the unrefunded portion still available to satisfy a new
// refund request. Never negative: refundedCents <= amountCents is a store
// invariant.
func (p *Payment) HeadroomCents() int64 {
	h := p.AmountCents - p.RefundedCents
	if h < 0 {
		return 0
	}
	return h
}
