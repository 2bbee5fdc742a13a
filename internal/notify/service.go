package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/atlastours/booking-api/internal/bookings"
	"github.com/atlastours/booking-api/internal/events"
	"github.com/atlastours/booking-api/internal/users"
	"github.com/atlastours/booking-api/pkg/logging"
)

// UserSource resolves recipients.
type UserSource interface {
	Get(ctx context.Context, id uuid.UUID) (*users.User, error)
}

// BookingSource loads booking state for notification content.
type BookingSource interface {
	Get(ctx context.Context, id uuid.UUID) (*bookings.Booking, error)
}

// Service turns outbox events into customer emails and review-followup
// updates. It implements events.DeliveryHandler; a returned error leaves the
// entry pending so the deliverer retries it on the next poll.
type Service struct {
	email          EmailSender
	reviews        ReviewScheduler
	userSource     UserSource
	bookingSource  BookingSource
	followupOffset time.Duration
	logger         *logging.Logger
}

// NewService creates a notification service.
func NewService(email EmailSender, reviews ReviewScheduler, userSource UserSource, bookingSource BookingSource, followupOffset time.Duration, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	if email == nil {
		email = NewStubEmailSender(logger)
	}
	if reviews == nil {
		reviews = NewStubReviewScheduler(logger)
	}
	return &Service{
		email:          email,
		reviews:        reviews,
		userSource:     userSource,
		bookingSource:  bookingSource,
		followupOffset: followupOffset,
		logger:         logger,
	}
}

// Handle dispatches one outbox entry by type. Unknown types are delivered as
// no-ops so a stale entry cannot wedge the queue.
func (s *Service) Handle(ctx context.Context, entry events.OutboxEntry) error {
	switch entry.Type {
	case events.TypeBookingUpdated:
		var evt events.BookingUpdatedV1
		if err := json.Unmarshal(entry.Payload, &evt); err != nil {
			return fmt.Errorf("notify: decode %s: %w", entry.Type, err)
		}
		return s.handleBookingUpdated(ctx, evt)
	case events.TypeRefundIssued:
		var evt events.RefundIssuedV1
		if err := json.Unmarshal(entry.Payload, &evt); err != nil {
			return fmt.Errorf("notify: decode %s: %w", entry.Type, err)
		}
		return s.handleRefundIssued(ctx, evt)
	case events.TypeUpchargePaid:
		var evt events.UpchargePaidV1
		if err := json.Unmarshal(entry.Payload, &evt); err != nil {
			return fmt.Errorf("notify: decode %s: %w", entry.Type, err)
		}
		return s.handleUpchargePaid(ctx, evt)
	default:
		s.logger.Warn("notify: unknown event type", "type", entry.Type, "event_id", entry.ID)
		return nil
	}
}

func (s *Service) handleBookingUpdated(ctx context.Context, evt events.BookingUpdatedV1) error {
	user, err := s.lookupUser(ctx, evt.UserID)
	if err != nil {
		return err
	}

	serviceInfo := evt.ServiceAt.Format("Monday, January 2, 2006 at 3:04 PM")
	body := fmt.Sprintf(
		"Hi %s,\n\nYour booking %s has been updated.\n\nNew date: %s\nGuests: %d adults, %d children\n",
		user.Name, evt.BookingReference, serviceInfo, evt.AdultCount, evt.ChildCount,
	)
	if evt.PickupName != "" {
		body += fmt.Sprintf("Pickup: %s at %s\n", evt.PickupName, evt.PickupTime)
	}
	body += fmt.Sprintf("New total: $%.2f\n", float64(evt.TotalCents)/100)
	switch evt.DeltaType {
	case "refund":
		body += fmt.Sprintf("\nA refund of $%.2f is on its way back to your original payment method.\n", float64(-evt.DeltaCents)/100)
	case "upcharge":
		body += fmt.Sprintf("\nYour additional payment of $%.2f has been received.\n", float64(evt.DeltaCents)/100)
	}
	body += "\nSee you there!\nAtlas Tours"

	if err := s.email.Send(ctx, EmailMessage{
		To:      user.Email,
		ToName:  user.Name,
		Subject: fmt.Sprintf("Your booking %s has been updated", evt.BookingReference),
		Body:    body,
	}); err != nil {
		return err
	}

	s.moveReviewFollowup(ctx, evt)
	return nil
}

// moveReviewFollowup keeps the review request aligned with the new service
// date. Best effort: a reviews-platform outage never blocks the email from
// being marked delivered.
func (s *Service) moveReviewFollowup(ctx context.Context, evt events.BookingUpdatedV1) {
	if s.bookingSource == nil {
		return
	}
	bookingID, err := uuid.Parse(evt.BookingID)
	if err != nil {
		return
	}
	booking, err := s.bookingSource.Get(ctx, bookingID)
	if err != nil {
		s.logger.Error("notify: load booking for followup", "error", err, "booking_id", evt.BookingID)
		return
	}
	followupID := booking.ReviewFollowup.ID()
	if followupID == "" {
		return
	}
	sendAt := evt.ServiceAt.Add(s.followupOffset)
	if err := s.reviews.RescheduleFollowup(ctx, followupID, sendAt); err != nil {
		s.logger.Error("notify: reschedule review followup", "error", err, "followup_id", followupID, "booking_id", evt.BookingID)
	}
}

func (s *Service) handleRefundIssued(ctx context.Context, evt events.RefundIssuedV1) error {
	user, err := s.lookupUser(ctx, evt.UserID)
	if err != nil {
		return err
	}

	body := fmt.Sprintf(
		"Hi %s,\n\nWe've issued a refund of $%.2f for booking %s.\n\nRefunds usually appear on your statement within 5-10 business days.\n\nAtlas Tours",
		user.Name, float64(evt.TotalCents)/100, evt.BookingReference,
	)
	return s.email.Send(ctx, EmailMessage{
		To:      user.Email,
		ToName:  user.Name,
		Subject: fmt.Sprintf("Refund issued for booking %s", evt.BookingReference),
		Body:    body,
	})
}

func (s *Service) handleUpchargePaid(ctx context.Context, evt events.UpchargePaidV1) error {
	user, err := s.lookupUser(ctx, evt.UserID)
	if err != nil {
		return err
	}

	body := fmt.Sprintf(
		"Hi %s,\n\nWe've received your payment of $%.2f for booking %s.\n\nAtlas Tours",
		user.Name, float64(evt.AmountCents)/100, evt.BookingReference,
	)
	return s.email.Send(ctx, EmailMessage{
		To:      user.Email,
		ToName:  user.Name,
		Subject: fmt.Sprintf("Payment received for booking %s", evt.BookingReference),
		Body:    body,
	})
}

func (s *Service) lookupUser(ctx context.Context, id string) (*users.User, error) {
	userID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("notify: bad user id %q: %w", id, err)
	}
	user, err := s.userSource.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("notify: load user: %w", err)
	}
	return user, nil
}
