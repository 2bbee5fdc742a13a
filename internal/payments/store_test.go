package payments

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlastours/booking-api/internal/catalog"
)

func TestStoreGetByIDNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectQuery("FROM booking_payments WHERE id").WithArgs(id).
		WillReturnRows(mock.NewRows([]string{"id"}))

	_, err = NewStore(mock).GetByID(context.Background(), id)
	assert.ErrorIs(t, err, ErrPaymentNotFound)
}

func TestStoreGetByIntent(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now().UTC()
	p := Payment{
		ID:                    uuid.New(),
		Reference:             "PAY-abc12345",
		BookingID:             uuid.New(),
		BookingKind:           catalog.KindTour,
		UserID:                uuid.New(),
		AmountCents:           12500,
		Currency:              "usd",
		Status:                StatusCompleted,
		StripePaymentIntentID: "pi_abc",
		RefundStatus:          RefundNone,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	mock.ExpectQuery("FROM booking_payments WHERE stripe_payment_intent_id").
		WithArgs("pi_abc").WillReturnRows(paymentRow(mock, p))

	got, err := NewStore(mock).GetByIntent(context.Background(), "pi_abc")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, catalog.KindTour, got.BookingKind)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Empty(t, got.RefundID)
}

func TestStoreCreatePendingAssignsIdentity(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO booking_payments").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), "tour",
			pgxmock.AnyArg(), int64(3000), "usd", string(StatusPending), "pi_x",
			string(RefundNone), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	p := &Payment{
		BookingID:             uuid.New(),
		BookingKind:           catalog.KindTour,
		UserID:                uuid.New(),
		AmountCents:           3000,
		Currency:              "usd",
		StripePaymentIntentID: "pi_x",
	}
	require.NoError(t, NewStore(mock).CreatePending(context.Background(), p))
	assert.NotEqual(t, uuid.Nil, p.ID)
	assert.Contains(t, p.Reference, "PAY-")
	assert.Equal(t, StatusPending, p.Status)
}

func TestStoreMarkRefundedGuardsHeadroom(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectExec("SET refund_status = 'refunded'").
		WithArgs(int64(99999), "re_1", id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = NewStore(mock).MarkRefunded(context.Background(), id, "re_1", 99999)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds headroom")
}

func TestStoreMarkCompletedRequiresPendingRow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("SET status = 'completed'").
		WithArgs("pi_missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = NewStore(mock).MarkCompleted(context.Background(), "pi_missing")
	assert.ErrorIs(t, err, ErrPaymentNotFound)
}
