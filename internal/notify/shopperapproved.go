package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/atlastours/booking-api/pkg/logging"
)

// ReviewScheduler manages scheduled review-request followups in the reviews
// platform. Edits move a booking's service date, so its followup moves too;
// without this, customers get asked to review a tour they have not taken yet.
type ReviewScheduler interface {
	RescheduleFollowup(ctx context.Context, followupID string, sendAt time.Time) error
	CancelFollowup(ctx context.Context, followupID string) error
}

// ShopperApprovedClient talks to the Shopper Approved reminders API over
// HTTP, the same way the payments package talks to Stripe.
type ShopperApprovedClient struct {
	baseURL    string
	siteID     string
	token      string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewShopperApprovedClient creates a Shopper Approved API client.
func NewShopperApprovedClient(siteID, token string, logger *logging.Logger) *ShopperApprovedClient {
	if logger == nil {
		logger = logging.Default()
	}
	return &ShopperApprovedClient{
		baseURL:    "https://api.shopperapproved.com",
		siteID:     siteID,
		token:      token,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}
}

// WithBaseURL overrides the API base URL, used in tests.
func (c *ShopperApprovedClient) WithBaseURL(baseURL string) *ShopperApprovedClient {
	if baseURL != "" {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
	return c
}

// RescheduleFollowup moves a pending review reminder to a new send date.
func (c *ShopperApprovedClient) RescheduleFollowup(ctx context.Context, followupID string, sendAt time.Time) error {
	form := url.Values{}
	form.Set("token", c.token)
	form.Set("send_date", sendAt.UTC().Format("2006-01-02 15:04:05"))

	path := fmt.Sprintf("/reminders/%s/%s", url.PathEscape(c.siteID), url.PathEscape(followupID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("notify: shopper approved request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	if err := c.do(req); err != nil {
		return err
	}
	c.logger.Info("review followup rescheduled", "followup_id", followupID, "send_at", sendAt)
	return nil
}

// CancelFollowup removes a pending review reminder.
func (c *ShopperApprovedClient) CancelFollowup(ctx context.Context, followupID string) error {
	path := fmt.Sprintf("/reminders/%s/%s?token=%s", url.PathEscape(c.siteID), url.PathEscape(followupID), url.QueryEscape(c.token))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("notify: shopper approved request: %w", err)
	}

	if err := c.do(req); err != nil {
		return err
	}
	c.logger.Info("review followup cancelled", "followup_id", followupID)
	return nil
}

func (c *ShopperApprovedClient) do(req *http.Request) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notify: shopper approved http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("notify: shopper approved status %d: %s", resp.StatusCode, readAPIError(body))
	}
	return nil
}

func readAPIError(body []byte) string {
	var parsed struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Error != "" {
		return parsed.Error
	}
	return string(body)
}

// StubReviewScheduler is a no-op scheduler for when reviews are disabled.
type StubReviewScheduler struct {
	logger *logging.Logger
}

// NewStubReviewScheduler creates a stub review scheduler.
func NewStubReviewScheduler(logger *logging.Logger) *StubReviewScheduler {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubReviewScheduler{logger: logger}
}

func (s *StubReviewScheduler) RescheduleFollowup(ctx context.Context, followupID string, sendAt time.Time) error {
	s.logger.Info("stub review scheduler: would reschedule followup", "followup_id", followupID, "send_at", sendAt)
	return nil
}

func (s *StubReviewScheduler) CancelFollowup(ctx context.Context, followupID string) error {
	s.logger.Info("stub review scheduler: would cancel followup", "followup_id", followupID)
	return nil
}
