package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/atlastours/booking-api/pkg/logging"
)

// ErrRefundNotEligible carries the policy wording callers surface to users as
// a 400 distinct from gateway failures.
var ErrRefundNotEligible = errors.New("payments: booking is not eligible for a refund based on refund policy")

// RefundRequest describes a single-payment refund.
type RefundRequest struct {
	Payment   *Payment
	BookingID uuid.UUID
	ServiceAt time.Time
	Reason    string

	// IsDowngrade marks refunds triggered by a price-lowering edit. The
	// policy then gates eligibility only; the refunded amount is the exact
	// price difference, not a percentage of the payment.
	IsDowngrade     bool
	DifferenceCents int64
}

// RefundResult is the outcome of a single refund.
type RefundResult struct {
	RefundID    string `json:"refund_id"`
	AmountCents int64  `json:"amount_cents"`
	Percent     int    `json:"percent"`
	Succeeded   bool   `json:"succeeded"`
}

// MultiRefundResult aggregates a refund batch.
type MultiRefundResult struct {
	RefundIDs        []string `json:"refund_ids"`
	TotalCents       int64    `json:"total_cents"`
	Percent          int      `json:"percent"`
	PaymentsRefunded int      `json:"payments_refunded"`
}

// RefundProcessor issues gateway refunds under the eligibility policy and
// walks payments through the refund state machine.
type RefundProcessor struct {
	store   *Store
	gateway Gateway
	policy  RefundPolicy
	logger  *logging.Logger
	now     func() time.Time
}

// NewRefundProcessor creates a refund processor.
func NewRefundProcessor(store *Store, gateway Gateway, policy RefundPolicy, logger *logging.Logger) *RefundProcessor {
	if logger == nil {
		logger = logging.Default()
	}
	if len(policy) == 0 {
		policy = DefaultRefundPolicy()
	}
	return &RefundProcessor{
		store:   store,
		gateway: gateway,
		policy:  policy,
		logger:  logger,
		now:     time.Now,
	}
}

// WithClock overrides the clock for tests.
func (p *RefundProcessor) WithClock(now func() time.Time) *RefundProcessor {
	p.now = now
	return p
}

func (p *RefundProcessor) eligiblePercent(serviceAt time.Time) (int, error) {
	hours := serviceAt.Sub(p.now().UTC()).Hours()
	percent := p.policy.PercentFor(hours)
	if percent == 0 {
		return 0, ErrRefundNotEligible
	}
	return percent, nil
}

// ProcessRefund refunds a single payment. For downgrades the amount is the
// price difference; otherwise the policy percentage of the payment amount.
// Either way the amount is capped by the payment's headroom.
func (p *RefundProcessor) ProcessRefund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	ctx, span := stripeTracer.Start(ctx, "payments.process_refund")
	defer span.End()
	span.SetAttributes(
		attribute.String("atlastours.booking_id", req.BookingID.String()),
		attribute.String("atlastours.payment_id", req.Payment.ID.String()),
	)

	percent, err := p.eligiblePercent(req.ServiceAt)
	if err != nil {
		return nil, err
	}

	amount := req.Payment.AmountCents * int64(percent) / 100
	if req.IsDowngrade {
		amount = req.DifferenceCents
	}
	if headroom := req.Payment.HeadroomCents(); amount > headroom {
		amount = headroom
	}
	if amount <= 0 {
		return nil, fmt.Errorf("%w: nothing left to refund on payment %s", ErrRefundNotEligible, req.Payment.ID)
	}

	if err := p.store.MarkRefundPending(ctx, req.Payment.ID); err != nil {
		return nil, err
	}

	refund, err := p.gateway.CreateRefund(ctx, RefundParams{
		PaymentIntentID: req.Payment.StripePaymentIntentID,
		AmountCents:     amount,
		Reason:          req.Reason,
		Metadata: map[string]string{
			"booking_id": req.BookingID.String(),
			"payment_id": req.Payment.ID.String(),
		},
	})
	if err != nil {
		if ferr := p.store.MarkRefundFailed(ctx, req.Payment.ID); ferr != nil {
			p.logger.Error("failed to mark refund failed", "payment_id", req.Payment.ID, "error", ferr)
		}
		return nil, fmt.Errorf("payments: gateway refund: %w", err)
	}

	if err := p.store.MarkRefunded(ctx, req.Payment.ID, refund.ID, amount); err != nil {
		// The money moved; log enough to reconcile the record by hand.
		p.logger.Error("refund succeeded but status update failed",
			"payment_id", req.Payment.ID,
			"refund_id", refund.ID,
			"booking_id", req.BookingID,
			"amount_cents", amount,
			"error", err,
		)
		return nil, err
	}

	p.logger.Info("refund processed",
		"refund_id", refund.ID,
		"payment_id", req.Payment.ID,
		"booking_id", req.BookingID,
		"amount_cents", amount,
		"percent", percent,
	)
	return &RefundResult{RefundID: refund.ID, AmountCents: amount, Percent: percent, Succeeded: true}, nil
}

// ProcessMultiPaymentRefund covers requiredCents by drawing from the
// booking's payments oldest first, one gateway refund per payment. If any
// call fails, every batch member not yet confirmed is marked failed rather
// than left pending; gateway refunds that already went through are not
// reversed.
func (p *RefundProcessor) ProcessMultiPaymentRefund(ctx context.Context, bookingID uuid.UUID, requiredCents int64, serviceAt time.Time, reason string) (*MultiRefundResult, error) {
	ctx, span := stripeTracer.Start(ctx, "payments.process_multi_refund")
	defer span.End()
	span.SetAttributes(
		attribute.String("atlastours.booking_id", bookingID.String()),
		attribute.Int64("atlastours.amount_cents", requiredCents),
	)

	percent, err := p.eligiblePercent(serviceAt)
	if err != nil {
		return nil, err
	}

	allocations, err := NewSelectionEngine(p.store).Select(ctx, bookingID, requiredCents)
	if err != nil {
		return nil, err
	}

	for i, a := range allocations {
		if err := p.store.MarkRefundPending(ctx, a.Payment.ID); err != nil {
			// Already-marked members would otherwise sit at pending
			// forever and block their headroom from later refunds.
			p.failUnconfirmed(ctx, allocations[:i], nil)
			return nil, err
		}
	}

	result := &MultiRefundResult{Percent: percent}
	confirmed := make(map[uuid.UUID]bool, len(allocations))
	for _, a := range allocations {
		refund, err := p.gateway.CreateRefund(ctx, RefundParams{
			PaymentIntentID: a.PaymentIntentID,
			AmountCents:     a.AmountCents,
			Reason:          reason,
			Metadata: map[string]string{
				"booking_id": bookingID.String(),
				"payment_id": a.Payment.ID.String(),
			},
		})
		if err != nil {
			p.failUnconfirmed(ctx, allocations, confirmed)
			return nil, fmt.Errorf("payments: gateway refund for payment %s: %w", a.Payment.ID, err)
		}
		if err := p.store.MarkRefunded(ctx, a.Payment.ID, refund.ID, a.AmountCents); err != nil {
			p.logger.Error("refund succeeded but status update failed",
				"payment_id", a.Payment.ID,
				"refund_id", refund.ID,
				"booking_id", bookingID,
				"amount_cents", a.AmountCents,
				"error", err,
			)
			p.failUnconfirmed(ctx, allocations, confirmed)
			return nil, err
		}
		confirmed[a.Payment.ID] = true
		result.RefundIDs = append(result.RefundIDs, refund.ID)
		result.TotalCents += a.AmountCents
		result.PaymentsRefunded++
	}

	p.logger.Info("multi-payment refund processed",
		"booking_id", bookingID,
		"total_cents", result.TotalCents,
		"payments_refunded", result.PaymentsRefunded,
	)
	return result, nil
}

func (p *RefundProcessor) failUnconfirmed(ctx context.Context, allocations []Allocation, confirmed map[uuid.UUID]bool) {
	for _, a := range allocations {
		if confirmed[a.Payment.ID] {
			continue
		}
		if err := p.store.MarkRefundFailed(ctx, a.Payment.ID); err != nil {
			p.logger.Error("failed to mark batch member failed", "payment_id", a.Payment.ID, "error", err)
		}
	}
}
