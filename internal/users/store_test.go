package users

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreGet(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	customer := "cus_123"
	mock.ExpectQuery("FROM users WHERE id").WithArgs(id).
		WillReturnRows(mock.NewRows([]string{"id", "email", "name", "role", "stripe_customer_id", "created_at"}).
			AddRow(id, "ada@example.com", "Ada", "customer", &customer, time.Now().UTC()))

	u, err := NewStore(mock).Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", u.Email)
	assert.Equal(t, "cus_123", u.StripeCustomerID)
}

func TestStoreGetNullCustomerID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectQuery("FROM users WHERE id").WithArgs(id).
		WillReturnRows(mock.NewRows([]string{"id", "email", "name", "role", "stripe_customer_id", "created_at"}).
			AddRow(id, "ada@example.com", "Ada", "customer", (*string)(nil), time.Now().UTC()))

	u, err := NewStore(mock).Get(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, u.StripeCustomerID)
}

func TestStoreGetNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectQuery("FROM users WHERE id").WithArgs(id).
		WillReturnRows(mock.NewRows([]string{"id"}))

	_, err = NewStore(mock).Get(context.Background(), id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreGetByEmail(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectQuery("FROM users WHERE email").WithArgs("ada@example.com").
		WillReturnRows(mock.NewRows([]string{"id", "email", "name", "role", "stripe_customer_id", "created_at"}).
			AddRow(id, "ada@example.com", "Ada", "admin", (*string)(nil), time.Now().UTC()))

	u, err := NewStore(mock).GetByEmail(context.Background(), "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, id, u.ID)
	assert.Equal(t, "admin", u.Role)
}

func TestStoreGetByEmailNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("FROM users WHERE email").WithArgs("nobody@example.com").
		WillReturnRows(mock.NewRows([]string{"id"}))

	_, err = NewStore(mock).GetByEmail(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreSetStripeCustomerID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectExec("UPDATE users SET stripe_customer_id").
		WithArgs("cus_new", id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, NewStore(mock).SetStripeCustomerID(context.Background(), id, "cus_new"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
