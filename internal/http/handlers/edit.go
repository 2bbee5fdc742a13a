package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/atlastours/booking-api/internal/bookings"
	"github.com/atlastours/booking-api/internal/catalog"
	"github.com/atlastours/booking-api/internal/edit"
	"github.com/atlastours/booking-api/internal/http/middleware"
	"github.com/atlastours/booking-api/internal/payments"
	"github.com/atlastours/booking-api/internal/pricing"
	"github.com/atlastours/booking-api/pkg/logging"
)

// EditHandler exposes the booking edit workflow over HTTP.
type EditHandler struct {
	svc    *edit.Service
	logger *logging.Logger
}

// NewEditHandler creates an edit handler.
func NewEditHandler(svc *edit.Service, logger *logging.Logger) *EditHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &EditHandler{svc: svc, logger: logger}
}

// editRequest is the shared request body for the edit endpoints.
type editRequest struct {
	BookingID    uuid.UUID        `json:"booking_id"`
	EditData     pricing.EditData `json:"edit_data"`
	PaymentToken string           `json:"payment_token,omitempty"`
	Reason       string           `json:"reason,omitempty"`
}

func (h *EditHandler) parse(w http.ResponseWriter, r *http.Request) (catalog.Kind, *editRequest, edit.Session, bool) {
	kind, err := catalog.ParseKind(chi.URLParam(r, "type"))
	if err != nil {
		jsonError(w, "unknown booking type", http.StatusNotFound)
		return "", nil, edit.Session{}, false
	}
	session, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		jsonError(w, "authentication required", http.StatusUnauthorized)
		return "", nil, edit.Session{}, false
	}
	var req editRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return "", nil, edit.Session{}, false
	}
	if req.BookingID == uuid.Nil {
		jsonError(w, "missing booking_id", http.StatusBadRequest)
		return "", nil, edit.Session{}, false
	}
	return kind, &req, edit.Session{UserID: session.UserID, Role: session.Role}, true
}

// CalculatePrice handles POST /bookings/{type}/edit/calculate-price.
// Read-only preview, no side effects.
func (h *EditHandler) CalculatePrice(w http.ResponseWriter, r *http.Request) {
	kind, req, session, ok := h.parse(w, r)
	if !ok {
		return
	}
	preview, err := h.svc.CalculatePrice(r.Context(), kind, req.BookingID, session, req.EditData)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

// CreatePayment handles POST /bookings/{type}/edit/payment. It creates the
// upcharge intent and pending edit; the booking itself is untouched.
func (h *EditHandler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	kind, req, session, ok := h.parse(w, r)
	if !ok {
		return
	}
	intent, err := h.svc.CreateUpchargePayment(r.Context(), kind, req.BookingID, session, req.EditData)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, intent)
}

// Apply handles POST /bookings/{type}/edit: zero-delta edits, and the
// confirmation half of the upcharge flow when payment_token is present.
func (h *EditHandler) Apply(w http.ResponseWriter, r *http.Request) {
	kind, req, session, ok := h.parse(w, r)
	if !ok {
		return
	}
	result, err := h.svc.ApplyEdit(r.Context(), kind, req.BookingID, session, edit.ApplyRequest{
		EditData:     req.EditData,
		PaymentToken: req.PaymentToken,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "booking updated",
		"booking": result.Booking,
		"delta":   result.Delta,
	})
}

// ApplyRefund handles POST /bookings/{type}/edit/refund.
func (h *EditHandler) ApplyRefund(w http.ResponseWriter, r *http.Request) {
	kind, req, session, ok := h.parse(w, r)
	if !ok {
		return
	}
	result, err := h.svc.ApplyEditWithRefund(r.Context(), kind, req.BookingID, session, req.EditData, req.Reason)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":           true,
		"message":           "booking updated and refund issued",
		"booking":           result.Booking,
		"refund_ids":        result.Refund.RefundIDs,
		"refund_cents":      result.Refund.TotalCents,
		"refund_percent":    result.Refund.Percent,
		"payments_refunded": result.Refund.PaymentsRefunded,
	})
}

// fail maps workflow errors onto HTTP statuses. Unexpected errors are logged
// server side and surfaced as an opaque 500.
func (h *EditHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, bookings.ErrNotFound):
		jsonError(w, "booking not found", http.StatusNotFound)
	case errors.Is(err, bookings.ErrAccessDenied):
		jsonError(w, "access denied", http.StatusForbidden)
	case errors.Is(err, bookings.ErrNotEditable):
		jsonError(w, "this booking cannot be edited", http.StatusBadRequest)
	case errors.Is(err, bookings.ErrInvalidPickupTime):
		jsonError(w, "pickup time is too close to the service time", http.StatusBadRequest)
	case errors.Is(err, bookings.ErrPendingEditNotFound):
		jsonError(w, "payment session expired, start the edit again", http.StatusBadRequest)
	case errors.Is(err, bookings.ErrVersionConflict):
		jsonError(w, "booking was modified concurrently, retry", http.StatusConflict)
	case errors.Is(err, catalog.ErrScheduleNotFound):
		jsonError(w, "selected schedule is not available", http.StatusBadRequest)
	case errors.Is(err, catalog.ErrPickupNotFound):
		jsonError(w, "selected pickup location is not available", http.StatusBadRequest)
	case errors.Is(err, pricing.ErrInvalidGuestCount):
		jsonError(w, "invalid guest count", http.StatusBadRequest)
	case errors.Is(err, payments.ErrInsufficientRefundable):
		jsonError(w, "booking payments cannot cover the refund", http.StatusBadRequest)
	case errors.Is(err, payments.ErrRefundNotEligible):
		jsonError(w, "booking is not eligible for a refund based on refund policy", http.StatusBadRequest)
	case errors.Is(err, payments.ErrInvalidUpchargeAmount):
		jsonError(w, "this change does not require an additional payment", http.StatusBadRequest)
	case errors.Is(err, edit.ErrPaymentRequired):
		jsonError(w, "price increase requires payment first", http.StatusBadRequest)
	case errors.Is(err, edit.ErrPaymentNotConfirmed):
		jsonError(w, "payment has not been confirmed", http.StatusBadRequest)
	case errors.Is(err, edit.ErrRefundRequired):
		jsonError(w, "price decrease must use the refund endpoint", http.StatusBadRequest)
	case errors.Is(err, edit.ErrNoRefundDue):
		jsonError(w, "no refund is due for this change", http.StatusBadRequest)
	case errors.Is(err, edit.ErrTooManyRefundRequests):
		jsonError(w, "too many refund requests, try again later", http.StatusTooManyRequests)
	default:
		h.logger.Error("edit request failed", "error", err, "path", r.URL.Path)
		jsonError(w, "internal error", http.StatusInternalServerError)
	}
}
