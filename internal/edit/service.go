package edit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/atlastours/booking-api/internal/bookings"
	"github.com/atlastours/booking-api/internal/catalog"
	"github.com/atlastours/booking-api/internal/events"
	"github.com/atlastours/booking-api/internal/observability/metrics"
	"github.com/atlastours/booking-api/internal/payments"
	"github.com/atlastours/booking-api/internal/pricing"
	"github.com/atlastours/booking-api/pkg/logging"
)

var tracer = otel.Tracer("atlastours.internal.edit")

var (
	// ErrPaymentRequired means the edit raises the price; the client must go
	// through the upcharge flow first and confirm with its token.
	ErrPaymentRequired = errors.New("edit: price increase requires payment before the edit can be applied")
	// ErrPaymentNotConfirmed means a payment token was presented but the
	// gateway has not confirmed the charge.
	ErrPaymentNotConfirmed = errors.New("edit: payment has not been confirmed by the gateway")
	// ErrRefundRequired means the edit lowers the price and must go through
	// the refund endpoint.
	ErrRefundRequired = errors.New("edit: price decrease must be applied through the refund flow")
	// ErrNoRefundDue means the refund endpoint was called for an edit that
	// does not lower the price.
	ErrNoRefundDue = errors.New("edit: no refund is due for this change")
	// ErrTooManyRefundRequests is the velocity guard tripping.
	ErrTooManyRefundRequests = errors.New("edit: too many refund requests, try again later")
)

// OutboxWriter records events for post-edit delivery.
type OutboxWriter interface {
	Insert(ctx context.Context, bookingID uuid.UUID, eventType string, payload any) (uuid.UUID, error)
}

// VelocityChecker guards the refund flow against abuse.
type VelocityChecker interface {
	Check(ctx context.Context, userID uuid.UUID) (*payments.VelocityResult, error)
}

// Session is the authenticated caller, as resolved by the HTTP layer.
type Session struct {
	UserID uuid.UUID
	Role   string
}

// PricePreview is the response of the calculate-price step.
type PricePreview struct {
	Delta *pricing.Delta `json:"delta"`

	// RefundPercent reports the policy tier the refund flow would apply
	// right now; only meaningful when the delta type is refund.
	RefundPercent int `json:"refund_percent,omitempty"`
}

// UpchargeIntent is the response of the payment-creation step. The client
// completes the charge with the client secret, then confirms the edit with
// the token.
type UpchargeIntent struct {
	Token           string `json:"edit_token"`
	ClientSecret    string `json:"client_secret"`
	PaymentIntentID string `json:"payment_intent_id"`
	AmountCents     int64  `json:"amount_cents"`
	Currency        string `json:"currency"`
}

// Result is the outcome of an applied edit.
type Result struct {
	Booking *bookings.Booking           `json:"booking"`
	Delta   *pricing.Delta              `json:"delta"`
	Refund  *payments.MultiRefundResult `json:"refund,omitempty"`
}

// Service orchestrates the booking edit workflow: access checks, delta
// calculation, refund or upcharge processing, and the final compare-and-swap
// persist. Money always moves before the booking row changes, so a crash
// in between leaves an un-updated booking and an issued refund, which
// operators can reconcile, never an updated booking with unpaid money.
type Service struct {
	validator    *bookings.Validator
	bookingStore *bookings.Store
	calculator   *pricing.Calculator
	refunds      *payments.RefundProcessor
	upcharges    *payments.UpchargeProcessor
	payStore     *payments.Store
	gateway      payments.Gateway
	pendingEdits *bookings.PendingEditStore
	velocity     VelocityChecker
	outbox       OutboxWriter
	policy       payments.RefundPolicy
	metrics      *metrics.EditMetrics
	logger       *logging.Logger
	now          func() time.Time
}

// Config wires the service's collaborators.
type Config struct {
	Validator    *bookings.Validator
	BookingStore *bookings.Store
	Calculator   *pricing.Calculator
	Refunds      *payments.RefundProcessor
	Upcharges    *payments.UpchargeProcessor
	PaymentStore *payments.Store
	Gateway      payments.Gateway
	PendingEdits *bookings.PendingEditStore
	Velocity     VelocityChecker
	Outbox       OutboxWriter
	Policy       payments.RefundPolicy
	Metrics      *metrics.EditMetrics
	Logger       *logging.Logger
}

// NewService creates the edit orchestrator.
func NewService(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	policy := cfg.Policy
	if len(policy) == 0 {
		policy = payments.DefaultRefundPolicy()
	}
	return &Service{
		validator:    cfg.Validator,
		bookingStore: cfg.BookingStore,
		calculator:   cfg.Calculator,
		refunds:      cfg.Refunds,
		upcharges:    cfg.Upcharges,
		payStore:     cfg.PaymentStore,
		gateway:      cfg.Gateway,
		pendingEdits: cfg.PendingEdits,
		velocity:     cfg.Velocity,
		outbox:       cfg.Outbox,
		policy:       policy,
		metrics:      cfg.Metrics,
		logger:       logger,
		now:          time.Now,
	}
}

// WithClock overrides the clock for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// CalculatePrice previews the financial outcome of a proposed edit without
// changing anything.
func (s *Service) CalculatePrice(ctx context.Context, kind catalog.Kind, bookingID uuid.UUID, session Session, edit pricing.EditData) (*PricePreview, error) {
	ctx, span := tracer.Start(ctx, "edit.calculate_price")
	defer span.End()
	span.SetAttributes(attribute.String("atlastours.booking_id", bookingID.String()))

	booking, err := s.validator.ValidateEditAccess(ctx, bookingID, session.UserID, session.Role, kind)
	if err != nil {
		return nil, err
	}
	delta, err := s.calculator.Calculate(ctx, booking, edit)
	if err != nil {
		return nil, err
	}
	if err := s.validator.ValidatePickupTime(delta.ServiceAt, delta.PickupTime); err != nil {
		return nil, err
	}

	preview := &PricePreview{Delta: delta}
	if delta.Type == pricing.DeltaRefund {
		hours := delta.ServiceAt.Sub(s.now().UTC()).Hours()
		preview.RefundPercent = s.policy.PercentFor(hours)
	}
	return preview, nil
}

// CreateUpchargePayment starts the two-phase flow for a price-raising edit:
// it creates the gateway intent and parks the edit payload server side under
// an opaque token. The edit itself is applied later by ApplyEdit once the
// charge is confirmed, from the parked payload, so the client cannot swap in
// a different edit after paying.
func (s *Service) CreateUpchargePayment(ctx context.Context, kind catalog.Kind, bookingID uuid.UUID, session Session, edit pricing.EditData) (*UpchargeIntent, error) {
	ctx, span := tracer.Start(ctx, "edit.create_upcharge_payment")
	defer span.End()
	span.SetAttributes(attribute.String("atlastours.booking_id", bookingID.String()))

	booking, err := s.validator.ValidateEditAccess(ctx, bookingID, session.UserID, session.Role, kind)
	if err != nil {
		return nil, err
	}
	delta, err := s.calculator.Calculate(ctx, booking, edit)
	if err != nil {
		return nil, err
	}
	if delta.Type != pricing.DeltaUpcharge {
		return nil, payments.ErrInvalidUpchargeAmount
	}
	if err := s.validator.ValidatePickupTime(delta.ServiceAt, delta.PickupTime); err != nil {
		return nil, err
	}

	result, err := s.upcharges.CreateUpcharge(ctx, payments.UpchargeRequest{
		BookingID:   booking.ID,
		BookingKind: booking.Kind,
		UserID:      booking.UserID,
		AmountCents: delta.DifferenceCents,
		Currency:    delta.NewPricing.Currency,
		Metadata: map[string]string{
			"booking_reference": booking.Reference,
			"original_cents":    fmt.Sprintf("%d", delta.OriginalCents),
			"new_cents":         fmt.Sprintf("%d", delta.NewCents),
		},
	})
	if err != nil {
		s.metrics.ObserveUpcharge(string(kind), "failed")
		return nil, err
	}

	token := bookings.NewEditToken()
	editRaw, err := json.Marshal(edit)
	if err != nil {
		return nil, fmt.Errorf("edit: encode edit data: %w", err)
	}
	if err := s.pendingEdits.Put(ctx, &bookings.PendingEdit{
		BookingID:       booking.ID,
		Token:           token,
		PaymentID:       result.PaymentID,
		PaymentIntentID: result.PaymentIntentID,
		AmountCents:     result.AmountCents,
		EditData:        editRaw,
	}); err != nil {
		return nil, err
	}

	s.metrics.ObserveUpcharge(string(kind), "created")
	s.logger.Info("upcharge payment created",
		"booking_id", booking.ID,
		"amount_cents", result.AmountCents,
		"payment_intent_id", result.PaymentIntentID,
	)
	return &UpchargeIntent{
		Token:           token,
		ClientSecret:    result.ClientSecret,
		PaymentIntentID: result.PaymentIntentID,
		AmountCents:     result.AmountCents,
		Currency:        delta.NewPricing.Currency,
	}, nil
}

// ApplyRequest is the confirm step's input. EditData is used directly for
// zero-delta edits; when PaymentToken is set, the parked server-side payload
// wins and EditData is ignored.
type ApplyRequest struct {
	EditData     pricing.EditData
	PaymentToken string
}

// ApplyEdit persists a zero-delta edit, or a price-raising edit whose
// upcharge the gateway has confirmed. Price-lowering edits are rejected
// towards ApplyEditWithRefund.
func (s *Service) ApplyEdit(ctx context.Context, kind catalog.Kind, bookingID uuid.UUID, session Session, req ApplyRequest) (*Result, error) {
	ctx, span := tracer.Start(ctx, "edit.apply")
	defer span.End()
	span.SetAttributes(attribute.String("atlastours.booking_id", bookingID.String()))

	booking, err := s.validator.ValidateEditAccess(ctx, bookingID, session.UserID, session.Role, kind)
	if err != nil {
		return nil, err
	}

	if req.PaymentToken != "" {
		return s.applyPaidEdit(ctx, booking, req.PaymentToken)
	}

	delta, err := s.calculator.Calculate(ctx, booking, req.EditData)
	if err != nil {
		return nil, err
	}
	switch delta.Type {
	case pricing.DeltaUpcharge:
		return nil, ErrPaymentRequired
	case pricing.DeltaRefund:
		return nil, ErrRefundRequired
	}
	if err := s.validator.ValidatePickupTime(delta.ServiceAt, delta.PickupTime); err != nil {
		return nil, err
	}

	if err := s.persistEdit(ctx, booking, req.EditData, delta); err != nil {
		s.metrics.ObserveEdit(string(kind), outcomeFor(err))
		return nil, err
	}
	s.metrics.ObserveEdit(string(kind), "success")
	s.publishBookingUpdated(ctx, booking, delta)
	return &Result{Booking: booking, Delta: delta}, nil
}

// applyPaidEdit finishes the two-phase upcharge: verify the parked token,
// confirm the charge with the gateway, persist the parked edit, consume the
// token.
func (s *Service) applyPaidEdit(ctx context.Context, booking *bookings.Booking, token string) (*Result, error) {
	pe, err := s.pendingEdits.Get(ctx, booking.ID, token)
	if err != nil {
		return nil, err
	}

	intent, err := s.gateway.GetPaymentIntent(ctx, pe.PaymentIntentID)
	if err != nil {
		return nil, fmt.Errorf("edit: verify payment intent: %w", err)
	}
	if !intent.Succeeded() {
		return nil, fmt.Errorf("%w: intent status %s", ErrPaymentNotConfirmed, intent.Status)
	}

	var edit pricing.EditData
	if err := json.Unmarshal(pe.EditData, &edit); err != nil {
		return nil, fmt.Errorf("edit: decode pending edit: %w", err)
	}
	delta, err := s.calculator.Calculate(ctx, booking, edit)
	if err != nil {
		return nil, err
	}
	// Catalog prices can move between intent creation and confirm; the
	// parked edit must still price at exactly what was charged.
	if delta.Type != pricing.DeltaUpcharge || delta.DifferenceCents != pe.AmountCents {
		return nil, fmt.Errorf("%w: parked edit prices at %d cents, charged %d",
			payments.ErrInvalidUpchargeAmount, delta.DifferenceCents, pe.AmountCents)
	}
	if err := s.validator.ValidatePickupTime(delta.ServiceAt, delta.PickupTime); err != nil {
		return nil, err
	}

	// Completion may have landed via webhook already; a missing pending row
	// here just means this call races it.
	if err := s.payStore.MarkCompleted(ctx, pe.PaymentIntentID); err != nil && !errors.Is(err, payments.ErrPaymentNotFound) {
		return nil, err
	}

	if err := s.persistEdit(ctx, booking, edit, delta); err != nil {
		s.metrics.ObserveEdit(string(booking.Kind), outcomeFor(err))
		return nil, err
	}
	if err := s.pendingEdits.Consume(ctx, booking.ID, token); err != nil {
		s.logger.Error("failed to consume pending edit", "error", err, "booking_id", booking.ID)
	}

	s.metrics.ObserveEdit(string(booking.Kind), "success")
	s.publishBookingUpdated(ctx, booking, delta)
	s.publishEvent(ctx, booking.ID, events.TypeUpchargePaid, events.UpchargePaidV1{
		EventID:          uuid.NewString(),
		BookingID:        booking.ID.String(),
		BookingReference: booking.Reference,
		UserID:           booking.UserID.String(),
		PaymentIntentID:  pe.PaymentIntentID,
		AmountCents:      pe.AmountCents,
		PaidAt:           s.now().UTC(),
	})
	return &Result{Booking: booking, Delta: delta}, nil
}

// ApplyEditWithRefund applies a price-lowering edit: refund first across the
// booking's payments, then persist. A version conflict after the refund is
// logged with everything needed to reconcile by hand.
func (s *Service) ApplyEditWithRefund(ctx context.Context, kind catalog.Kind, bookingID uuid.UUID, session Session, edit pricing.EditData, reason string) (*Result, error) {
	ctx, span := tracer.Start(ctx, "edit.apply_with_refund")
	defer span.End()
	span.SetAttributes(attribute.String("atlastours.booking_id", bookingID.String()))

	booking, err := s.validator.ValidateEditAccess(ctx, bookingID, session.UserID, session.Role, kind)
	if err != nil {
		return nil, err
	}

	if s.velocity != nil {
		check, err := s.velocity.Check(ctx, session.UserID)
		if err == nil && !check.Allowed {
			return nil, fmt.Errorf("%w: %s", ErrTooManyRefundRequests, check.Message)
		}
	}

	delta, err := s.calculator.Calculate(ctx, booking, edit)
	if err != nil {
		return nil, err
	}
	if delta.Type != pricing.DeltaRefund {
		return nil, ErrNoRefundDue
	}
	if err := s.validator.ValidatePickupTime(delta.ServiceAt, delta.PickupTime); err != nil {
		return nil, err
	}

	if reason == "" {
		reason = "booking_edited"
	}
	refund, err := s.refunds.ProcessMultiPaymentRefund(ctx, booking.ID, -delta.DifferenceCents, delta.ServiceAt, reason)
	if err != nil {
		s.metrics.ObserveRefund("failed")
		return nil, err
	}
	s.metrics.ObserveRefund("success")
	s.metrics.ObserveRefundedCents(string(kind), refund.TotalCents)

	if err := s.persistEdit(ctx, booking, edit, delta); err != nil {
		if errors.Is(err, bookings.ErrVersionConflict) {
			s.logger.Error("refund issued but booking update lost the version race",
				"booking_id", booking.ID,
				"refund_ids", refund.RefundIDs,
				"refunded_cents", refund.TotalCents,
			)
		}
		s.metrics.ObserveEdit(string(kind), outcomeFor(err))
		return nil, err
	}
	s.metrics.ObserveEdit(string(kind), "success")

	s.publishBookingUpdated(ctx, booking, delta)
	s.publishEvent(ctx, booking.ID, events.TypeRefundIssued, events.RefundIssuedV1{
		EventID:          uuid.NewString(),
		BookingID:        booking.ID.String(),
		BookingReference: booking.Reference,
		UserID:           booking.UserID.String(),
		RefundIDs:        refund.RefundIDs,
		TotalCents:       refund.TotalCents,
		Percent:          refund.Percent,
		Reason:           reason,
		IssuedAt:         s.now().UTC(),
	})
	return &Result{Booking: booking, Delta: delta, Refund: refund}, nil
}

// persistEdit writes the new booking state under the version the access check
// read. The calculator already resolved the occurrence, so the snapshot here
// is internally consistent.
func (s *Service) persistEdit(ctx context.Context, booking *bookings.Booking, edit pricing.EditData, delta *pricing.Delta) error {
	expected := booking.Version
	booking.ScheduleKey = edit.ScheduleKey
	booking.AdultCount = edit.AdultCount
	booking.ChildCount = edit.ChildCount
	booking.Pickup = bookings.PickupDetails{
		LocationID:   edit.PickupLocationID,
		LocationName: delta.PickupName,
		Time:         delta.PickupTime,
	}
	booking.Pricing = delta.NewPricing
	return s.bookingStore.UpdateEdited(ctx, booking, expected)
}

func (s *Service) publishBookingUpdated(ctx context.Context, booking *bookings.Booking, delta *pricing.Delta) {
	s.publishEvent(ctx, booking.ID, events.TypeBookingUpdated, events.BookingUpdatedV1{
		EventID:          uuid.NewString(),
		BookingID:        booking.ID.String(),
		BookingReference: booking.Reference,
		BookingKind:      string(booking.Kind),
		UserID:           booking.UserID.String(),
		ScheduleKey:      booking.ScheduleKey,
		ServiceAt:        delta.ServiceAt,
		AdultCount:       booking.AdultCount,
		ChildCount:       booking.ChildCount,
		PickupName:       booking.Pickup.LocationName,
		PickupTime:       booking.Pickup.Time,
		TotalCents:       booking.Pricing.TotalCents,
		DeltaCents:       delta.DifferenceCents,
		DeltaType:        string(delta.Type),
		UpdatedAt:        booking.UpdatedAt,
	})
}

// publishEvent records an outbox event. The edit already happened; a failed
// write here only costs the notification, so it is logged, not returned.
func (s *Service) publishEvent(ctx context.Context, bookingID uuid.UUID, eventType string, payload any) {
	if s.outbox == nil {
		return
	}
	if _, err := s.outbox.Insert(ctx, bookingID, eventType, payload); err != nil {
		s.logger.Error("failed to record outbox event", "error", err, "type", eventType, "booking_id", bookingID)
	}
}

func outcomeFor(err error) string {
	if errors.Is(err, bookings.ErrVersionConflict) {
		return "conflict"
	}
	return "failed"
}
