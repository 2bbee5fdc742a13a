package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/atlastours/booking-api/pkg/logging"
)

var stripeTracer = otel.Tracer("atlastours.internal.payments.stripe")

// Gateway is the payment-processor surface the refund and upcharge processors
// depend on. StripeClient is the production implementation; tests substitute
// fakes.
type Gateway interface {
	CreateCustomer(ctx context.Context, email, name string) (string, error)
	CreatePaymentIntent(ctx context.Context, params IntentParams) (*Intent, error)
	GetPaymentIntent(ctx context.Context, id string) (*Intent, error)
	CreateRefund(ctx context.Context, params RefundParams) (*GatewayRefund, error)
}

// IntentParams describes a charge to create.
type IntentParams struct {
	AmountCents int64
	Currency    string
	CustomerID  string
	Description string
	Metadata    map[string]string
}

// Intent is the subset of a Stripe PaymentIntent we need.
type Intent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Status       string `json:"status"` // requires_payment_method, succeeded, ...
}

// Succeeded reports whether the gateway confirmed the charge.
func (i *Intent) Succeeded() bool {
	return i.Status == "succeeded"
}

// RefundParams describes a refund to issue against an intent.
type RefundParams struct {
	PaymentIntentID string
	AmountCents     int64
	Reason          string
	Metadata        map[string]string
}

// GatewayRefund is the subset of a Stripe Refund we need.
type GatewayRefund struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	AmountCents int64  `json:"amount"`
}

// StripeClient talks to the Stripe API directly over HTTP with form-encoded
// bodies.
type StripeClient struct {
	secretKey  string
	baseURL    string
	apiVersion string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewStripeClient creates a Stripe gateway client.
func NewStripeClient(secretKey string, logger *logging.Logger) *StripeClient {
	if logger == nil {
		logger = logging.Default()
	}
	return &StripeClient{
		secretKey:  secretKey,
		baseURL:    "https://api.stripe.com",
		apiVersion: "2024-12-18.acacia",
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}
}

// WithBaseURL overrides the Stripe API base URL (for testing).
func (c *StripeClient) WithBaseURL(baseURL string) *StripeClient {
	if baseURL != "" {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
	return c
}

// CreateCustomer registers a gateway customer record and returns its id.
func (c *StripeClient) CreateCustomer(ctx context.Context, email, name string) (string, error) {
	ctx, span := stripeTracer.Start(ctx, "stripe.create_customer")
	defer span.End()

	form := url.Values{}
	form.Set("email", email)
	if name != "" {
		form.Set("name", name)
	}

	var parsed struct {
		ID string `json:"id"`
	}
	if err := c.post(ctx, "/v1/customers", form, &parsed); err != nil {
		return "", err
	}
	if parsed.ID == "" {
		return "", fmt.Errorf("payments: stripe customer response missing id")
	}
	return parsed.ID, nil
}

// CreatePaymentIntent creates a charge tagged with the given metadata. The
// caller's client-side payment UI completes it with the returned client
// secret; completion lands asynchronously via webhook.
func (c *StripeClient) CreatePaymentIntent(ctx context.Context, params IntentParams) (*Intent, error) {
	ctx, span := stripeTracer.Start(ctx, "stripe.create_payment_intent")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("atlastours.amount_cents", params.AmountCents),
		attribute.String("atlastours.currency", params.Currency),
	)

	form := url.Values{}
	form.Set("amount", fmt.Sprintf("%d", params.AmountCents))
	form.Set("currency", params.Currency)
	form.Set("automatic_payment_methods[enabled]", "true")
	if params.CustomerID != "" {
		form.Set("customer", params.CustomerID)
	}
	if params.Description != "" {
		form.Set("description", params.Description)
	}
	for _, k := range sortedKeys(params.Metadata) {
		form.Set(fmt.Sprintf("metadata[%s]", k), params.Metadata[k])
	}

	var parsed Intent
	if err := c.post(ctx, "/v1/payment_intents", form, &parsed); err != nil {
		return nil, err
	}
	if parsed.ClientSecret == "" {
		return nil, fmt.Errorf("payments: stripe intent response missing client secret")
	}
	return &parsed, nil
}

// GetPaymentIntent retrieves the current status of an intent.
func (c *StripeClient) GetPaymentIntent(ctx context.Context, id string) (*Intent, error) {
	ctx, span := stripeTracer.Start(ctx, "stripe.get_payment_intent")
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/payment_intents/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, fmt.Errorf("payments: stripe request: %w", err)
	}
	var parsed Intent
	if err := c.do(req, &parsed); err != nil {
		return nil, err
	}
	return &parsed, nil
}

// CreateRefund refunds part or all of an intent's charge.
func (c *StripeClient) CreateRefund(ctx context.Context, params RefundParams) (*GatewayRefund, error) {
	ctx, span := stripeTracer.Start(ctx, "stripe.create_refund")
	defer span.End()
	span.SetAttributes(
		attribute.String("stripe.payment_intent_id", params.PaymentIntentID),
		attribute.Int64("atlastours.amount_cents", params.AmountCents),
	)

	form := url.Values{}
	form.Set("payment_intent", params.PaymentIntentID)
	form.Set("amount", fmt.Sprintf("%d", params.AmountCents))
	if params.Reason != "" {
		form.Set("metadata[reason]", params.Reason)
	}
	for _, k := range sortedKeys(params.Metadata) {
		form.Set(fmt.Sprintf("metadata[%s]", k), params.Metadata[k])
	}

	var parsed GatewayRefund
	if err := c.post(ctx, "/v1/refunds", form, &parsed); err != nil {
		return nil, err
	}

	c.logger.Info("stripe refund created",
		"refund_id", parsed.ID,
		"payment_intent_id", params.PaymentIntentID,
		"amount_cents", params.AmountCents,
		"status", parsed.Status,
	)
	return &parsed, nil
}

func (c *StripeClient) post(ctx context.Context, path string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("payments: stripe request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, out)
}

func (c *StripeClient) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Stripe-Version", c.apiVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("payments: stripe http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("payments: stripe api status %d: %s", resp.StatusCode, readStripeError(resp.Body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("payments: stripe decode: %w", err)
	}
	return nil
}

// stripeErrorResponse represents a Stripe API error.
type stripeErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// readStripeError extracts the error message from a Stripe error body,
// keeping secrets and request internals out of anything we surface.
func readStripeError(body io.Reader) string {
	data, err := io.ReadAll(body)
	if err != nil {
		return "unknown error"
	}
	var parsed stripeErrorResponse
	if json.Unmarshal(data, &parsed) == nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	return string(data)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
