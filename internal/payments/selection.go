package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrInsufficientRefundable means the booking's payments cannot cover the
// required refund. The caller must abort the edit rather than refund
// partially.
var ErrInsufficientRefundable = errors.New("payments: insufficient refundable funds across booking payments")

// Allocation is one payment's share of a refund batch.
type Allocation struct {
	Payment         Payment
	PaymentIntentID string
	AmountCents     int64
}

// SelectForRefund allocates requiredCents greedily across payments in the
// order given (callers pass them oldest first), exhausting each payment's
// headroom before moving on. A payment joins the batch only if it receives a
// positive allocation.
func SelectForRefund(candidates []Payment, requiredCents int64) ([]Allocation, error) {
	if requiredCents <= 0 {
		return nil, fmt.Errorf("payments: refund amount must be positive, got %d", requiredCents)
	}

	var (
		allocations []Allocation
		remaining   = requiredCents
	)
	for _, p := range candidates {
		if remaining == 0 {
			break
		}
		headroom := p.HeadroomCents()
		if headroom == 0 {
			continue
		}
		take := headroom
		if take > remaining {
			take = remaining
		}
		allocations = append(allocations, Allocation{
			Payment:         p,
			PaymentIntentID: p.StripePaymentIntentID,
			AmountCents:     take,
		})
		remaining -= take
	}
	if remaining > 0 {
		return nil, fmt.Errorf("%w: short %d cents", ErrInsufficientRefundable, remaining)
	}
	return allocations, nil
}

// SelectionEngine pairs the store query with the allocation step.
type SelectionEngine struct {
	store *Store
}

// NewSelectionEngine creates a selection engine.
func NewSelectionEngine(store *Store) *SelectionEngine {
	return &SelectionEngine{store: store}
}

// Select fetches the booking's refundable payments, oldest first, and
// allocates the required amount across them.
func (e *SelectionEngine) Select(ctx context.Context, bookingID uuid.UUID, requiredCents int64) ([]Allocation, error) {
	candidates, err := e.store.ListRefundable(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	return SelectForRefund(candidates, requiredCents)
}
