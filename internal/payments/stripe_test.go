package payments

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlastours/booking-api/pkg/logging"
)

func newTestStripeClient(t *testing.T, handler http.HandlerFunc) *StripeClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewStripeClient("sk_test_123", logging.Default()).WithBaseURL(srv.URL)
}

func TestStripeCreateCustomer(t *testing.T) {
	client := newTestStripeClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/customers", r.URL.Path)
		assert.Equal(t, "Bearer sk_test_123", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "ada@example.com", r.PostForm.Get("email"))
		assert.Equal(t, "Ada", r.PostForm.Get("name"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": "cus_123"}`))
	})

	id, err := client.CreateCustomer(context.Background(), "ada@example.com", "Ada")
	require.NoError(t, err)
	assert.Equal(t, "cus_123", id)
}

func TestStripeCreatePaymentIntent(t *testing.T) {
	client := newTestStripeClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payment_intents", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "4500", r.PostForm.Get("amount"))
		assert.Equal(t, "usd", r.PostForm.Get("currency"))
		assert.Equal(t, "cus_123", r.PostForm.Get("customer"))
		assert.Equal(t, "true", r.PostForm.Get("automatic_payment_methods[enabled]"))
		assert.Equal(t, "BK-1234", r.PostForm.Get("metadata[booking_reference]"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": "pi_123", "client_secret": "pi_123_secret", "status": "requires_payment_method"}`))
	})

	intent, err := client.CreatePaymentIntent(context.Background(), IntentParams{
		AmountCents: 4500,
		Currency:    "usd",
		CustomerID:  "cus_123",
		Metadata:    map[string]string{"booking_reference": "BK-1234"},
	})
	require.NoError(t, err)
	assert.Equal(t, "pi_123", intent.ID)
	assert.Equal(t, "pi_123_secret", intent.ClientSecret)
	assert.False(t, intent.Succeeded())
}

func TestStripeGetPaymentIntent(t *testing.T) {
	client := newTestStripeClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/payment_intents/pi_123", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": "pi_123", "status": "succeeded"}`))
	})

	intent, err := client.GetPaymentIntent(context.Background(), "pi_123")
	require.NoError(t, err)
	assert.True(t, intent.Succeeded())
}

func TestStripeCreateRefund(t *testing.T) {
	client := newTestStripeClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/refunds", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "pi_123", r.PostForm.Get("payment_intent"))
		assert.Equal(t, "5000", r.PostForm.Get("amount"))
		assert.Equal(t, "requested_by_customer", r.PostForm.Get("metadata[reason]"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": "re_123", "status": "succeeded", "amount": 5000}`))
	})

	refund, err := client.CreateRefund(context.Background(), RefundParams{
		PaymentIntentID: "pi_123",
		AmountCents:     5000,
		Reason:          "requested_by_customer",
	})
	require.NoError(t, err)
	assert.Equal(t, "re_123", refund.ID)
	assert.Equal(t, int64(5000), refund.AmountCents)
}

func TestStripeErrorSurfacesMessage(t *testing.T) {
	client := newTestStripeClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte(`{"error": {"message": "Your card was declined.", "type": "card_error", "code": "card_declined"}}`))
	})

	_, err := client.CreateRefund(context.Background(), RefundParams{
		PaymentIntentID: "pi_123",
		AmountCents:     5000,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 402")
	assert.Contains(t, err.Error(), "Your card was declined.")
}
