package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlastours/booking-api/internal/http/middleware"
	"github.com/atlastours/booking-api/internal/users"
	"github.com/atlastours/booking-api/pkg/logging"
)

type fakeUserLookup struct {
	user *users.User
	err  error
}

func (f *fakeUserLookup) GetByEmail(ctx context.Context, email string) (*users.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.user, nil
}

func TestIssueTokenSuccess(t *testing.T) {
	user := &users.User{ID: uuid.New(), Email: "guest@example.com", Name: "Guest", Role: "customer"}
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	h := NewAuthHandler(&fakeUserLookup{user: user}, testSecret, time.Hour, logging.Default()).
		WithClock(func() time.Time { return now })

	req := httptest.NewRequest(http.MethodPost, "/auth/token", strings.NewReader(`{"email":"guest@example.com"}`))
	rec := httptest.NewRecorder()
	h.IssueToken(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp tokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, now.Add(time.Hour).Unix(), resp.ExpiresAt)

	claims := middleware.SessionClaims{}
	token, err := jwt.ParseWithClaims(resp.Token, &claims, func(token *jwt.Token) (any, error) {
		return []byte(testSecret), nil
	}, jwt.WithTimeFunc(func() time.Time { return now }))
	require.NoError(t, err)
	assert.True(t, token.Valid)
	assert.Equal(t, user.ID.String(), claims.Subject)
	assert.Equal(t, "customer", claims.Role)
}

func TestIssueTokenUnknownUser(t *testing.T) {
	h := NewAuthHandler(&fakeUserLookup{err: users.ErrNotFound}, testSecret, time.Hour, logging.Default())

	req := httptest.NewRequest(http.MethodPost, "/auth/token", strings.NewReader(`{"email":"nobody@example.com"}`))
	rec := httptest.NewRecorder()
	h.IssueToken(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestIssueTokenMissingEmail(t *testing.T) {
	h := NewAuthHandler(&fakeUserLookup{}, testSecret, time.Hour, logging.Default())

	req := httptest.NewRequest(http.MethodPost, "/auth/token", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	h.IssueToken(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIssueTokenStoreFailure(t *testing.T) {
	h := NewAuthHandler(&fakeUserLookup{err: errors.New("pgx: broken pipe")}, testSecret, time.Hour, logging.Default())

	req := httptest.NewRequest(http.MethodPost, "/auth/token", strings.NewReader(`{"email":"guest@example.com"}`))
	rec := httptest.NewRecorder()
	h.IssueToken(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestIssueTokenDisabledWithoutSecret(t *testing.T) {
	h := NewAuthHandler(&fakeUserLookup{}, "", time.Hour, logging.Default())

	req := httptest.NewRequest(http.MethodPost, "/auth/token", strings.NewReader(`{"email":"guest@example.com"}`))
	rec := httptest.NewRecorder()
	h.IssueToken(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
