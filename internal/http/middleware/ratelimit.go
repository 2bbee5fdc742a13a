package middleware

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/atlastours/booking-api/pkg/logging"
)

// CounterStore counts requests per key within a fixed window. Implementations
// back the rate limiter with local memory or redis; the redis store makes the
// limit hold across API instances.
type CounterStore interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// MemoryCounterStore is an in-process CounterStore for single-instance
// deployments and tests.
type MemoryCounterStore struct {
	mu      sync.Mutex
	counts  map[string]int64
	resetAt map[string]time.Time
	now     func() time.Time
}

// NewMemoryCounterStore creates an in-memory counter store.
func NewMemoryCounterStore() *MemoryCounterStore {
	return &MemoryCounterStore{
		counts:  make(map[string]int64),
		resetAt: make(map[string]time.Time),
		now:     time.Now,
	}
}

// WithClock overrides the clock for tests.
func (s *MemoryCounterStore) WithClock(now func() time.Time) *MemoryCounterStore {
	s.now = now
	return s
}

func (s *MemoryCounterStore) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if reset, ok := s.resetAt[key]; !ok || now.After(reset) {
		s.counts[key] = 0
		s.resetAt[key] = now.Add(window)
	}
	s.counts[key]++
	return s.counts[key], nil
}

// RedisCounterStore is a CounterStore on redis INCR with a window TTL.
type RedisCounterStore struct {
	client *redis.Client
}

// NewRedisCounterStore creates a redis-backed counter store.
func NewRedisCounterStore(client *redis.Client) *RedisCounterStore {
	return &RedisCounterStore{client: client}
}

func (s *RedisCounterStore) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("middleware: rate limit incr: %w", err)
	}
	if count == 1 {
		s.client.Expire(ctx, key, window)
	}
	return count, nil
}

// RateLimit rejects callers exceeding max requests per window with 429 Too
// Many Requests, keyed by client IP. Fails open if the counter store is
// unavailable.
func RateLimit(store CounterStore, max int, window time.Duration, logger *logging.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if max <= 0 {
				next.ServeHTTP(w, r)
				return
			}
			ip := r.RemoteAddr
			// Prefer X-Real-Ip set by chi's RealIP middleware.
			if xri := r.Header.Get("X-Real-Ip"); xri != "" {
				ip = xri
			}
			count, err := store.Incr(r.Context(), "ratelimit:"+ip, window)
			if err != nil {
				logger.Error("rate limit check failed", "error", err, "ip", ip)
				next.ServeHTTP(w, r)
				return
			}
			if count > int64(max) {
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
