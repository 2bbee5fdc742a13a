package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/atlastours/booking-api/internal/http/handlers"
	httpmiddleware "github.com/atlastours/booking-api/internal/http/middleware"
	"github.com/atlastours/booking-api/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger      *logging.Logger
	EditHandler *handlers.EditHandler
	AuthHandler *handlers.AuthHandler

	SessionSecret      string
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// Rate limiting for the token endpoint
	RateLimitStore  httpmiddleware.CounterStore
	RateLimitMax    int
	RateLimitWindow time.Duration
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints
	r.Group(func(public chi.Router) {
		public.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"status":"ok"}`))
		})
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.AuthHandler != nil {
			token := public.With()
			if cfg.RateLimitStore != nil {
				token = public.With(httpmiddleware.RateLimit(cfg.RateLimitStore, cfg.RateLimitMax, cfg.RateLimitWindow, cfg.Logger))
			}
			token.Post("/auth/token", cfg.AuthHandler.IssueToken)
		}
	})

	// Booking edit routes, session-authenticated
	if cfg.EditHandler != nil {
		r.Route("/bookings/{type}", func(b chi.Router) {
			b.Use(httpmiddleware.SessionAuth(cfg.SessionSecret))
			b.Post("/edit/calculate-price", cfg.EditHandler.CalculatePrice)
			b.Post("/edit/payment", cfg.EditHandler.CreatePayment)
			b.Post("/edit", cfg.EditHandler.Apply)
			b.Post("/edit/refund", cfg.EditHandler.ApplyRefund)
		})
	}

	return r
}
