package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/atlastours/booking-api/internal/catalog"
)

// ErrPaymentNotFound means no payment row matched.
var ErrPaymentNotFound = errors.New("payments: payment not found")

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists booking payments and their refund transitions.
type Store struct {
	db DB
}

// NewStore creates a payments store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

const paymentColumns = `id, reference, booking_id, booking_kind, user_id, amount_cents,
	currency, status, stripe_payment_intent_id, refund_status, refunded_cents,
	refund_id, created_at, updated_at`

// CreatePending inserts a new pending payment, used for upcharges. The
// gateway intent is created first; this row records it for webhook
// reconciliation.
func (s *Store) CreatePending(ctx context.Context, p *Payment) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Reference == "" {
		p.Reference = "PAY-" + p.ID.String()[:8]
	}
	now := time.Now().UTC()
	p.Status = StatusPending
	p.RefundStatus = RefundNone
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := s.db.Exec(ctx, `
		INSERT INTO booking_payments (id, reference, booking_id, booking_kind, user_id,
			amount_cents, currency, status, stripe_payment_intent_id, refund_status,
			refunded_cents, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,0,$11,$11)`,
		p.ID, p.Reference, p.BookingID, string(p.BookingKind), p.UserID,
		p.AmountCents, p.Currency, string(p.Status), p.StripePaymentIntentID,
		string(p.RefundStatus), now)
	if err != nil {
		return fmt.Errorf("payments: insert pending: %w", err)
	}
	return nil
}

// GetByID fetches a payment.
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*Payment, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+paymentColumns+`
		FROM booking_payments WHERE id = $1`, id)
	p, err := scanPayment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("payments: load by id: %w", err)
	}
	return p, nil
}

// GetByIntent fetches a payment by its gateway intent id, used by webhook
// handlers.
func (s *Store) GetByIntent(ctx context.Context, intentID string) (*Payment, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+paymentColumns+`
		FROM booking_payments WHERE stripe_payment_intent_id = $1`, intentID)
	p, err := scanPayment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("payments: load by intent: %w", err)
	}
	return p, nil
}

// ListRefundable returns the booking's completed payments that still have
// refund headroom, oldest first. Payments with an in-flight refund are
// excluded so a second request cannot double-draw from them.
func (s *Store) ListRefundable(ctx context.Context, bookingID uuid.UUID) ([]Payment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+paymentColumns+`
		FROM booking_payments
		WHERE booking_id = $1 AND status = 'completed'
		  AND refund_status <> 'pending' AND refunded_cents < amount_cents
		ORDER BY created_at ASC`, bookingID)
	if err != nil {
		return nil, fmt.Errorf("payments: list refundable: %w", err)
	}
	defer rows.Close()

	var out []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("payments: scan refundable: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// MarkRefundPending transitions a payment into the in-flight refund state.
func (s *Store) MarkRefundPending(ctx context.Context, id uuid.UUID) error {
	return s.setRefundStatus(ctx, id, RefundPending)
}

// MarkRefundFailed records that a refund attempt did not complete cleanly.
// Operators reconcile these manually.
func (s *Store) MarkRefundFailed(ctx context.Context, id uuid.UUID) error {
	return s.setRefundStatus(ctx, id, RefundFailed)
}

func (s *Store) setRefundStatus(ctx context.Context, id uuid.UUID, status RefundStatus) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE booking_payments SET refund_status = $1, updated_at = now()
		WHERE id = $2`, string(status), id)
	if err != nil {
		return fmt.Errorf("payments: set refund status %s: %w", status, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

// MarkRefunded records a confirmed refund, accumulating the refunded amount.
// The guard keeps refunded_cents within the payment amount.
func (s *Store) MarkRefunded(ctx context.Context, id uuid.UUID, refundID string, amountCents int64) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE booking_payments
		SET refund_status = 'refunded', refunded_cents = refunded_cents + $1,
		    refund_id = $2, updated_at = now()
		WHERE id = $3 AND refunded_cents + $1 <= amount_cents`,
		amountCents, refundID, id)
	if err != nil {
		return fmt.Errorf("payments: mark refunded: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("payments: mark refunded %s: amount exceeds headroom or payment missing", id)
	}
	return nil
}

// MarkCompleted transitions a pending payment after the gateway confirms the
// charge. Webhook handlers call this keyed by the intent id.
func (s *Store) MarkCompleted(ctx context.Context, intentID string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE booking_payments SET status = 'completed', updated_at = now()
		WHERE stripe_payment_intent_id = $1 AND status = 'pending'`, intentID)
	if err != nil {
		return fmt.Errorf("payments: mark completed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

// MarkChargeFailed transitions a pending payment after a failed charge.
func (s *Store) MarkChargeFailed(ctx context.Context, intentID string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE booking_payments SET status = 'failed', updated_at = now()
		WHERE stripe_payment_intent_id = $1 AND status = 'pending'`, intentID)
	if err != nil {
		return fmt.Errorf("payments: mark charge failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

func scanPayment(row pgx.Row) (*Payment, error) {
	var (
		p            Payment
		kind         string
		status       string
		refundStatus string
		refundID     *string
	)
	err := row.Scan(&p.ID, &p.Reference, &p.BookingID, &kind, &p.UserID,
		&p.AmountCents, &p.Currency, &status, &p.StripePaymentIntentID,
		&refundStatus, &p.RefundedCents, &refundID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.BookingKind = catalog.Kind(kind)
	p.Status = Status(status)
	p.RefundStatus = RefundStatus(refundStatus)
	if refundID != nil {
		p.RefundID = *refundID
	}
	return &p, nil
}
