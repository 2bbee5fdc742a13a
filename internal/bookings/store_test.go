package bookings

import (
	"context"
	"testing"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlastours/booking-api/internal/catalog"
)

func TestStoreGetNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectQuery("SELECT (.+) FROM bookings WHERE id").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	_, err = NewStore(mock).Get(context.Background(), id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreGetDecodesSnapshots(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectQuery("SELECT (.+) FROM bookings WHERE id").
		WithArgs(id).
		WillReturnRows(bookingRows(t, id, catalog.KindTour, StatusConfirmed))

	b, err := NewStore(mock).Get(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, "AT-1001", b.Reference)
	assert.Equal(t, catalog.KindTour, b.Kind)
	assert.Equal(t, StatusConfirmed, b.Status)
	assert.Equal(t, "Harbor Gate", b.Pickup.LocationName)
	assert.Equal(t, int64(10000), b.Pricing.TotalCents)
	assert.Equal(t, "rf-77", b.ReviewFollowup.ID())
	assert.True(t, b.Pricing.Consistent(b.AdultCount, b.ChildCount))
}

func TestUpdateEditedCAS(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewStore(mock)
	b := &Booking{
		ID:          uuid.New(),
		Kind:        catalog.KindTour,
		ScheduleKey: "2026-10-08",
		AdultCount:  1,
		ChildCount:  0,
		Pickup:      PickupDetails{LocationID: "pk-harbor", LocationName: "Harbor Gate", Time: "08:15"},
		Pricing:     Pricing{AdultPriceCents: 5000, AdultTotalCents: 5000, TotalCents: 5000, Currency: "usd"},
		Version:     3,
	}

	mock.ExpectExec("UPDATE bookings").
		WithArgs("2026-10-08", 1, 0, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), b.ID, int64(3)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.UpdateEdited(context.Background(), b, 3))
	assert.Equal(t, int64(4), b.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateEditedVersionConflict(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewStore(mock)
	b := &Booking{ID: uuid.New(), Version: 3}

	mock.ExpectExec("UPDATE bookings").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), b.ID, int64(3)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = store.UpdateEdited(context.Background(), b, 3)
	assert.ErrorIs(t, err, ErrVersionConflict)
	// Version stays untouched so the caller can reload and report.
	assert.Equal(t, int64(3), b.Version)
}
