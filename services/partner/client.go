// Package partner talks to the marketplace REST API on behalf of a signed-in partner.
package partner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"partnerdesk/models"

	"github.com/cenkalti/backoff"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// APIError is a non-2xx answer from the backend.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("partner api: %d: %s", e.StatusCode, e.Message)
}

// TokenFunc returns the bearer credential for the next request.
type TokenFunc func(ctx context.Context) (string, error)

// Client is the partner-side REST client. Every call carries a bearer token
// and an X-Request-ID, and is retried on network failure only.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      TokenFunc
	maxRetries uint64
	logger     *zap.Logger
}

// Option customizes a Client.
type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithMaxRetries(n uint64) Option {
	return func(c *Client) { c.maxRetries = n }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func NewClient(baseURL string, token TokenFunc, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		token:      token,
		maxRetries: 2,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListAvailable returns bookings open for any partner to accept.
func (c *Client) ListAvailable(ctx context.Context) ([]models.Booking, error) {
	var out struct {
		Data []models.Booking `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/urban-services/bookings/available", nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// ListAssigned returns the bookings already assigned to this partner.
func (c *Client) ListAssigned(ctx context.Context) ([]models.Booking, error) {
	var out struct {
		Bookings []models.Booking `json:"bookings"`
	}
	if err := c.do(ctx, http.MethodGet, "/urban-services/partner/bookings", nil, &out); err != nil {
		return nil, err
	}
	return out.Bookings, nil
}

// GetBooking fetches one booking by id.
func (c *Client) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	var out struct {
		Data models.Booking `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, bookingPath(id, ""), nil, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// Stats returns the partner's aggregate booking and earnings figures.
func (c *Client) Stats(ctx context.Context) (models.PartnerStats, error) {
	var out models.PartnerStats
	if err := c.do(ctx, http.MethodGet, "/urban-services/partner/stats", nil, &out); err != nil {
		return models.PartnerStats{}, err
	}
	return out, nil
}

// Earnings returns the earnings report for period (day, week, month or year)
// as the backend sends it. An empty period means month.
func (c *Client) Earnings(ctx context.Context, period string) (json.RawMessage, error) {
	if period == "" {
		period = "month"
	}
	var out json.RawMessage
	path := "/urban-services/partner/earnings?" + url.Values{"period": {period}}.Encode()
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Accept(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPut, bookingPath(id, "accept"), struct{}{}, nil)
}

func (c *Client) Reject(ctx context.Context, id, reason string) error {
	body := map[string]string{"reason": reason}
	return c.do(ctx, http.MethodPut, bookingPath(id, "reject"), body, nil)
}

// UpdateStatus sends the target status with any extra fields merged in at the top level.
func (c *Client) UpdateStatus(ctx context.Context, id string, status models.BookingStatus, extra map[string]any) error {
	body := make(map[string]any, len(extra)+1)
	for k, v := range extra {
		body[k] = v
	}
	body["status"] = status
	return c.do(ctx, http.MethodPut, bookingPath(id, "status"), body, nil)
}

func (c *Client) UpdateDestination(ctx context.Context, id string, update models.DestinationUpdate) error {
	return c.do(ctx, http.MethodPut, bookingPath(id, "destination"), update, nil)
}

func bookingPath(id, action string) string {
	p := "/urban-services/bookings/" + url.PathEscape(id)
	if action != "" {
		p += "/" + action
	}
	return p
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("partner api: encode %s %s: %w", method, path, err)
		}
	}

	token, err := c.token(ctx)
	if err != nil {
		return fmt.Errorf("partner api: credentials: %w", err)
	}
	requestID := uuid.New().String()

	// The backend answer, if any, ends the retry loop; only transport
	// failures are retried.
	var final error
	op := func() error {
		resp, err := c.send(ctx, method, path, token, requestID, payload)
		if err != nil {
			if ctx.Err() != nil {
				final = ctx.Err()
				return nil
			}
			c.logger.Warn("partner api request failed",
				zap.String("method", method), zap.String("path", path),
				zap.String("requestId", requestID), zap.Error(err))
			return err
		}
		defer resp.Body.Close()
		final = decodeResponse(resp, out)
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxInterval = 2 * time.Second
	policy.MaxElapsedTime = 0
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(policy, c.maxRetries), ctx)); err != nil {
		return fmt.Errorf("partner api: %s %s: %w", method, path, err)
	}
	return final
}

func (c *Client) send(ctx context.Context, method, path, token, requestID string, payload []byte) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.httpClient.Do(req)
}

func decodeResponse(resp *http.Response, out any) error {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("partner api: read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(data, resp.Status)}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("partner api: decode body: %w", err)
	}
	return nil
}

func errorMessage(data []byte, fallback string) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	return fallback
}

// IsAPIError reports whether err carries a backend answer.
func IsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
