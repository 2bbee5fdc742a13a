package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/atlastours/booking-api/internal/catalog"
	"github.com/atlastours/booking-api/internal/users"
	"github.com/atlastours/booking-api/pkg/logging"
)

// ErrInvalidUpchargeAmount is a caller error: upcharges are strictly
// positive.
var ErrInvalidUpchargeAmount = errors.New("payments: upcharge amount must be positive")

// UserSource resolves user profiles for gateway customer creation.
type UserSource interface {
	Get(ctx context.Context, id uuid.UUID) (*users.User, error)
	SetStripeCustomerID(ctx context.Context, id uuid.UUID, customerID string) error
}

// UpchargeRequest describes the additional charge a price-raising edit needs.
type UpchargeRequest struct {
	BookingID   uuid.UUID
	BookingKind catalog.Kind
	UserID      uuid.UUID
	AmountCents int64
	Currency    string
	// Metadata rides on the gateway intent for webhook reconciliation:
	// booking reference, original/new amounts, serialized edit data.
	Metadata map[string]string
}

// UpchargeResult is what the client needs to complete the charge.
type UpchargeResult struct {
	ClientSecret    string    `json:"client_secret"`
	PaymentIntentID string    `json:"payment_intent_id"`
	PaymentID       uuid.UUID `json:"payment_id"`
	AmountCents     int64     `json:"amount_cents"`
}

// UpchargeProcessor creates the gateway charge and pending Payment record for
// a positive price delta. It never waits for completion; the gateway webhook
// confirms the charge asynchronously.
type UpchargeProcessor struct {
	store   *Store
	users   UserSource
	gateway Gateway
	logger  *logging.Logger
}

// NewUpchargeProcessor creates an upcharge processor.
func NewUpchargeProcessor(store *Store, userSource UserSource, gateway Gateway, logger *logging.Logger) *UpchargeProcessor {
	if logger == nil {
		logger = logging.Default()
	}
	return &UpchargeProcessor{store: store, users: userSource, gateway: gateway, logger: logger}
}

// CreateUpcharge resolves the gateway customer, creates the intent, and
// records a pending Payment. If the gateway call fails no Payment record is
// left behind; if the record write fails after the intent exists, the intent
// id is logged for manual reconciliation.
func (p *UpchargeProcessor) CreateUpcharge(ctx context.Context, req UpchargeRequest) (*UpchargeResult, error) {
	ctx, span := stripeTracer.Start(ctx, "payments.create_upcharge")
	defer span.End()
	span.SetAttributes(
		attribute.String("atlastours.booking_id", req.BookingID.String()),
		attribute.Int64("atlastours.amount_cents", req.AmountCents),
	)

	if req.AmountCents <= 0 {
		return nil, ErrInvalidUpchargeAmount
	}

	user, err := p.users.Get(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	customerID := user.StripeCustomerID
	if customerID == "" {
		customerID, err = p.gateway.CreateCustomer(ctx, user.Email, user.Name)
		if err != nil {
			return nil, fmt.Errorf("payments: create gateway customer: %w", err)
		}
		if err := p.users.SetStripeCustomerID(ctx, user.ID, customerID); err != nil {
			// Not fatal: the charge still works, the next upcharge just
			// creates a duplicate customer.
			p.logger.Error("failed to persist stripe customer id", "user_id", user.ID, "error", err)
		}
	}

	intent, err := p.gateway.CreatePaymentIntent(ctx, IntentParams{
		AmountCents: req.AmountCents,
		Currency:    req.Currency,
		CustomerID:  customerID,
		Description: "Booking edit upcharge",
		Metadata:    req.Metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("payments: create upcharge intent: %w", err)
	}

	payment := &Payment{
		BookingID:             req.BookingID,
		BookingKind:           req.BookingKind,
		UserID:                req.UserID,
		AmountCents:           req.AmountCents,
		Currency:              req.Currency,
		StripePaymentIntentID: intent.ID,
	}
	if err := p.store.CreatePending(ctx, payment); err != nil {
		p.logger.Error("upcharge intent created but payment record failed",
			"payment_intent_id", intent.ID,
			"booking_id", req.BookingID,
			"amount_cents", req.AmountCents,
			"error", err,
		)
		return nil, err
	}

	p.logger.Info("upcharge intent created",
		"payment_id", payment.ID,
		"payment_intent_id", intent.ID,
		"booking_id", req.BookingID,
		"amount_cents", req.AmountCents,
	)
	return &UpchargeResult{
		ClientSecret:    intent.ClientSecret,
		PaymentIntentID: intent.ID,
		PaymentID:       payment.ID,
		AmountCents:     req.AmountCents,
	}, nil
}
