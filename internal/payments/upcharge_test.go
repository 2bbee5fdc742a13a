package payments

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlastours/booking-api/internal/catalog"
	"github.com/atlastours/booking-api/internal/users"
	"github.com/atlastours/booking-api/pkg/logging"
)

type fakeUserSource struct {
	user       *users.User
	getErr     error
	savedID    string
	saveErr    error
	saveCalled bool
}

func (s *fakeUserSource) Get(ctx context.Context, id uuid.UUID) (*users.User, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.user, nil
}

func (s *fakeUserSource) SetStripeCustomerID(ctx context.Context, id uuid.UUID, customerID string) error {
	s.saveCalled = true
	if s.saveErr != nil {
		return s.saveErr
	}
	s.savedID = customerID
	return nil
}

func TestCreateUpchargeNewCustomer(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	userID := uuid.New()
	bookingID := uuid.New()
	src := &fakeUserSource{user: &users.User{ID: userID, Email: "ada@example.com", Name: "Ada"}}

	mock.ExpectExec("INSERT INTO booking_payments").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), bookingID, "tour", userID,
			int64(4500), "usd", string(StatusPending), "pi_new", string(RefundNone), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	gw := &fakeGateway{customerID: "cus_ada"}
	proc := NewUpchargeProcessor(NewStore(mock), src, gw, logging.Default())

	result, err := proc.CreateUpcharge(context.Background(), UpchargeRequest{
		BookingID:   bookingID,
		BookingKind: catalog.KindTour,
		UserID:      userID,
		AmountCents: 4500,
		Currency:    "usd",
		Metadata:    map[string]string{"booking_reference": "BK-1234"},
	})
	require.NoError(t, err)
	assert.Equal(t, "pi_new_secret", result.ClientSecret)
	assert.Equal(t, "pi_new", result.PaymentIntentID)
	assert.Equal(t, int64(4500), result.AmountCents)
	assert.Equal(t, "cus_ada", src.savedID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUpchargeReusesExistingCustomer(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	userID := uuid.New()
	src := &fakeUserSource{user: &users.User{ID: userID, Email: "ada@example.com", StripeCustomerID: "cus_existing"}}

	mock.ExpectExec("INSERT INTO booking_payments").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), "event", userID,
			int64(2000), "usd", string(StatusPending), "pi_new", string(RefundNone), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	gw := &fakeGateway{customerErr: errors.New("should not be called")}
	proc := NewUpchargeProcessor(NewStore(mock), src, gw, logging.Default())

	_, err = proc.CreateUpcharge(context.Background(), UpchargeRequest{
		BookingID:   uuid.New(),
		BookingKind: catalog.KindEvent,
		UserID:      userID,
		AmountCents: 2000,
		Currency:    "usd",
	})
	require.NoError(t, err)
	assert.False(t, src.saveCalled)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUpchargeRejectsNonPositiveAmount(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	proc := NewUpchargeProcessor(NewStore(mock), &fakeUserSource{}, &fakeGateway{}, logging.Default())

	_, err = proc.CreateUpcharge(context.Background(), UpchargeRequest{UserID: uuid.New(), AmountCents: 0})
	assert.ErrorIs(t, err, ErrInvalidUpchargeAmount)
	_, err = proc.CreateUpcharge(context.Background(), UpchargeRequest{UserID: uuid.New(), AmountCents: -500})
	assert.ErrorIs(t, err, ErrInvalidUpchargeAmount)
}

func TestCreateUpchargeGatewayFailureLeavesNoRecord(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	userID := uuid.New()
	src := &fakeUserSource{user: &users.User{ID: userID, StripeCustomerID: "cus_existing"}}

	gw := &fakeGateway{intentErr: errors.New("stripe is down")}
	proc := NewUpchargeProcessor(NewStore(mock), src, gw, logging.Default())

	_, err = proc.CreateUpcharge(context.Background(), UpchargeRequest{
		BookingID:   uuid.New(),
		BookingKind: catalog.KindTour,
		UserID:      userID,
		AmountCents: 3000,
		Currency:    "usd",
	})
	require.Error(t, err)
	// No INSERT was expected; any write would fail ExpectationsWereMet.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUpchargeCustomerPersistFailureIsNonFatal(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	userID := uuid.New()
	src := &fakeUserSource{
		user:    &users.User{ID: userID, Email: "ada@example.com"},
		saveErr: errors.New("db write failed"),
	}

	mock.ExpectExec("INSERT INTO booking_payments").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), "tour", userID,
			int64(1000), "usd", string(StatusPending), "pi_new", string(RefundNone), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	proc := NewUpchargeProcessor(NewStore(mock), src, &fakeGateway{}, logging.Default())

	result, err := proc.CreateUpcharge(context.Background(), UpchargeRequest{
		BookingID:   uuid.New(),
		BookingKind: catalog.KindTour,
		UserID:      userID,
		AmountCents: 1000,
		Currency:    "usd",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.ClientSecret)
	assert.NoError(t, mock.ExpectationsWereMet())
}
