package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/atlastours/booking-api/internal/http/middleware"
	"github.com/atlastours/booking-api/internal/users"
	"github.com/atlastours/booking-api/pkg/logging"
)

// UserLookup resolves users for token issuance.
type UserLookup interface {
	GetByEmail(ctx context.Context, email string) (*users.User, error)
}

// AuthHandler issues session JWTs. The upstream identity provider fronts
// this endpoint; it exchanges a verified email for a signed session token.
type AuthHandler struct {
	users  UserLookup
	secret string
	ttl    time.Duration
	logger *logging.Logger
	now    func() time.Time
}

// NewAuthHandler creates an auth handler.
func NewAuthHandler(userLookup UserLookup, secret string, ttl time.Duration, logger *logging.Logger) *AuthHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AuthHandler{users: userLookup, secret: secret, ttl: ttl, logger: logger, now: time.Now}
}

// WithClock overrides the clock for tests.
func (h *AuthHandler) WithClock(now func() time.Time) *AuthHandler {
	h.now = now
	return h
}

type tokenRequest struct {
	Email string `json:"email"`
}

type tokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}

// IssueToken handles POST /auth/token.
func (h *AuthHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	if h.secret == "" {
		jsonError(w, "authentication disabled", http.StatusServiceUnavailable)
		return
	}
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		jsonError(w, "missing email", http.StatusBadRequest)
		return
	}

	user, err := h.users.GetByEmail(r.Context(), req.Email)
	if errors.Is(err, users.ErrNotFound) {
		jsonError(w, "unknown user", http.StatusUnauthorized)
		return
	}
	if err != nil {
		h.logger.Error("token issuance failed", "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}

	now := h.now().UTC()
	expires := now.Add(h.ttl)
	claims := middleware.SessionClaims{
		Role: user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(h.secret))
	if err != nil {
		h.logger.Error("token signing failed", "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: token, ExpiresAt: expires.Unix()})
}
