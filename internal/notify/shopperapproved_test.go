package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlastours/booking-api/pkg/logging"
)

func newTestReviewClient(t *testing.T, handler http.HandlerFunc) *ShopperApprovedClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewShopperApprovedClient("site-9", "tok-secret", logging.Default()).WithBaseURL(srv.URL)
}

func TestRescheduleFollowup(t *testing.T) {
	client := newTestReviewClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/reminders/site-9/rf-42", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "tok-secret", r.PostForm.Get("token"))
		assert.Equal(t, "2026-10-13 09:00:00", r.PostForm.Get("send_date"))
		w.WriteHeader(http.StatusOK)
	})

	sendAt := time.Date(2026, 10, 13, 9, 0, 0, 0, time.UTC)
	require.NoError(t, client.RescheduleFollowup(context.Background(), "rf-42", sendAt))
}

func TestCancelFollowup(t *testing.T) {
	client := newTestReviewClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/reminders/site-9/rf-42", r.URL.Path)
		assert.Equal(t, "tok-secret", r.URL.Query().Get("token"))
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, client.CancelFollowup(context.Background(), "rf-42"))
}

func TestRescheduleFollowupSurfacesAPIError(t *testing.T) {
	client := newTestReviewClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error": "reminder not found"}`))
	})

	err := client.RescheduleFollowup(context.Background(), "rf-missing", time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
	assert.Contains(t, err.Error(), "reminder not found")
}
