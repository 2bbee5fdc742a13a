package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound means no user with the given id exists.
var ErrNotFound = errors.New("users: user not found")

// User is the profile slice the payment workflows need: identity plus the
// gateway customer anchor.
type User struct {
	ID               uuid.UUID `json:"id"`
	Email            string    `json:"email"`
	Name             string    `json:"name"`
	Role             string    `json:"role"`
	StripeCustomerID string    `json:"stripe_customer_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store reads and updates user profiles.
type Store struct {
	db DB
}

// NewStore creates a users store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

// Get loads one user.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*User, error) {
	var (
		u        User
		customer *string
	)
	err := s.db.QueryRow(ctx, `
		SELECT id, email, name, role, stripe_customer_id, created_at
		FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Email, &u.Name, &u.Role, &customer, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("users: load: %w", err)
	}
	if customer != nil {
		u.StripeCustomerID = *customer
	}
	return &u, nil
}

// GetByEmail loads one user by email, used by the session-token endpoint.
func (s *Store) GetByEmail(ctx context.Context, email string) (*User, error) {
	var (
		u        User
		customer *string
	)
	err := s.db.QueryRow(ctx, `
		SELECT id, email, name, role, stripe_customer_id, created_at
		FROM users WHERE email = $1`, email).
		Scan(&u.ID, &u.Email, &u.Name, &u.Role, &customer, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("users: load by email: %w", err)
	}
	if customer != nil {
		u.StripeCustomerID = *customer
	}
	return &u, nil
}

// SetStripeCustomerID persists the gateway customer anchor after first
// resolution, so later charges reuse it.
func (s *Store) SetStripeCustomerID(ctx context.Context, id uuid.UUID, customerID string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE users SET stripe_customer_id = $1 WHERE id = $2`, customerID, id)
	if err != nil {
		return fmt.Errorf("users: set stripe customer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
