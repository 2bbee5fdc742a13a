package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/atlastours/booking-api/pkg/logging"
)

func doRateLimited(mw func(http.Handler) http.Handler, ip string) int {
	req := httptest.NewRequest(http.MethodPost, "/auth/token", nil)
	req.Header.Set("X-Real-Ip", ip)
	rec := httptest.NewRecorder()
	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, req)
	return rec.Code
}

func TestRateLimitMemoryStore(t *testing.T) {
	mw := RateLimit(NewMemoryCounterStore(), 2, time.Minute, logging.Default())

	if code := doRateLimited(mw, "1.2.3.4"); code != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d", code)
	}
	if code := doRateLimited(mw, "1.2.3.4"); code != http.StatusOK {
		t.Fatalf("second request: expected 200, got %d", code)
	}
	if code := doRateLimited(mw, "1.2.3.4"); code != http.StatusTooManyRequests {
		t.Fatalf("third request: expected 429, got %d", code)
	}
	// Other clients are unaffected.
	if code := doRateLimited(mw, "5.6.7.8"); code != http.StatusOK {
		t.Fatalf("other ip: expected 200, got %d", code)
	}
}

func TestRateLimitMemoryStoreWindowResets(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryCounterStore().WithClock(func() time.Time { return now })
	mw := RateLimit(store, 1, time.Minute, logging.Default())

	if code := doRateLimited(mw, "1.2.3.4"); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if code := doRateLimited(mw, "1.2.3.4"); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", code)
	}

	now = now.Add(2 * time.Minute)
	if code := doRateLimited(mw, "1.2.3.4"); code != http.StatusOK {
		t.Fatalf("after window: expected 200, got %d", code)
	}
}

func TestRateLimitRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	mw := RateLimit(NewRedisCounterStore(client), 1, time.Minute, logging.Default())

	if code := doRateLimited(mw, "1.2.3.4"); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if code := doRateLimited(mw, "1.2.3.4"); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", code)
	}
	if ttl := mr.TTL("ratelimit:1.2.3.4"); ttl != time.Minute {
		t.Fatalf("expected window ttl, got %s", ttl)
	}
}

func TestRateLimitFailsOpenOnStoreError(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	mr.Close()

	mw := RateLimit(NewRedisCounterStore(client), 1, time.Minute, logging.Default())

	for i := 0; i < 3; i++ {
		if code := doRateLimited(mw, "1.2.3.4"); code != http.StatusOK {
			t.Fatalf("expected fail-open 200, got %d", code)
		}
	}
}

func TestRateLimitDisabledWhenMaxZero(t *testing.T) {
	mw := RateLimit(NewMemoryCounterStore(), 0, time.Minute, logging.Default())
	for i := 0; i < 5; i++ {
		if code := doRateLimited(mw, "1.2.3.4"); code != http.StatusOK {
			t.Fatalf("expected 200, got %d", code)
		}
	}
}

func TestRedisCounterStoreIncrements(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewRedisCounterStore(client)
	for want := int64(1); want <= 3; want++ {
		got, err := store.Incr(context.Background(), "k", time.Minute)
		if err != nil {
			t.Fatalf("incr: %v", err)
		}
		if got != want {
			t.Fatalf("expected count %d, got %d", want, got)
		}
	}
}
