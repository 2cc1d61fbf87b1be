package backend

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

	"github.com/eventpick/seatsync/pkg/types"
)

// ErrAuthRequired means the credential is missing, expired, or rejected.
var ErrAuthRequired = errors.New("authorization required")

// ErrSeatMapNotConfigured means the event has no seat map; distinct from a
// fetch failure and from an empty map.
var ErrSeatMapNotConfigured = errors.New("no seat map configured for event")

const (
	defaultMaxAttempts = 3
	defaultRetryBase   = 200 * time.Millisecond
	defaultRetryCap    = 1200 * time.Millisecond
)

// APIError is returned when the backend responds with a non-2xx status.
type APIError struct {
	StatusCode int
	Status     string
	Endpoint   string
	Body       string
}

func (e *APIError) Error() string {
	if e == nil {
		return "backend api error"
	}
	return fmt.Sprintf("backend api error: %s: %s", e.Status, e.Body)
}

// IsNotFound reports whether the error represents a 404 from the backend.
func IsNotFound(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusNotFound
	}
	return false
}

// Client wraps REST access to the ticketing backend. All methods send the
// bearer credential the client was built with; 401/403 surface as
// ErrAuthRequired so screens can route to sign-in.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	token       string
	maxAttempts int
	retryBase   time.Duration
	retryCap    time.Duration
}

// NewClient creates a backend client. If httpClient is nil, a default
// client with a 12s timeout is used.
func NewClient(httpClient *http.Client, baseURL, token string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 12 * time.Second}
	}
	return &Client{
		httpClient:  httpClient,
		baseURL:     strings.TrimRight(baseURL, "/"),
		token:       token,
		maxAttempts: defaultMaxAttempts,
		retryBase:   defaultRetryBase,
		retryCap:    defaultRetryCap,
	}
}

// BaseURL is the backend base address; the push-channel address derives
// from it.
func (c *Client) BaseURL() string { return c.baseURL }

// Token is the bearer credential handed to the push channel.
func (c *Client) Token() string { return c.token }

// ListEvents returns the events available for browsing.
func (c *Client) ListEvents(ctx context.Context) ([]types.Event, error) {
	var events []types.Event
	if err := c.doJSON(ctx, http.MethodGet, c.baseURL+"/events", nil, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// GetEvent fetches a single event by id.
func (c *Client) GetEvent(ctx context.Context, eventID string) (types.Event, error) {
	if eventID == "" {
		return types.Event{}, errors.New("event id is required")
	}
	endpoint := fmt.Sprintf("%s/events/%s", c.baseURL, url.PathEscape(eventID))
	var event types.Event
	if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, &event); err != nil {
		return types.Event{}, err
	}
	return event, nil
}

// FetchSeatMap fetches the seating layout for an event. An event with no
// layout configured returns ErrSeatMapNotConfigured; callers must treat
// that differently from an empty map and from a transport failure.
func (c *Client) FetchSeatMap(ctx context.Context, eventID string) (types.SeatMapResponse, error) {
	if eventID == "" {
		return types.SeatMapResponse{}, errors.New("event id is required")
	}
	endpoint := fmt.Sprintf("%s/events/%s/seatmap", c.baseURL, url.PathEscape(eventID))
	var m types.SeatMapResponse
	if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, &m); err != nil {
		if IsNotFound(err) {
			return types.SeatMapResponse{}, ErrSeatMapNotConfigured
		}
		return types.SeatMapResponse{}, err
	}
	if len(m.Rows) == 0 && m.EventID == "" {
		return types.SeatMapResponse{}, ErrSeatMapNotConfigured
	}
	return m, nil
}

// SubmitBooking submits the finalized selection. The returned record
// carries at least the booking id and ticket number.
func (c *Client) SubmitBooking(ctx context.Context, req types.BookingRequest) (types.BookingRecord, error) {
	if len(req.Seats) == 0 {
		return types.BookingRecord{}, errors.New("booking needs at least one seat")
	}
	var rec types.BookingRecord
	if err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/bookings", req, &rec); err != nil {
		return types.BookingRecord{}, err
	}
	return rec, nil
}

// ListBookings returns the caller's bookings (the tickets screen).
func (c *Client) ListBookings(ctx context.Context) ([]types.BookingRecord, error) {
	var recs []types.BookingRecord
	if err := c.doJSON(ctx, http.MethodGet, c.baseURL+"/bookings", nil, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// CancelBooking cancels a booking by id.
func (c *Client) CancelBooking(ctx context.Context, bookingID string) error {
	if bookingID == "" {
		return errors.New("booking id is required")
	}
	endpoint := fmt.Sprintf("%s/bookings/%s", c.baseURL, url.PathEscape(bookingID))
	return c.doJSON(ctx, http.MethodDelete, endpoint, nil, nil)
}

// ConfirmPayment marks a booking paid.
func (c *Client) ConfirmPayment(ctx context.Context, bookingID, method string) (types.BookingRecord, error) {
	if bookingID == "" {
		return types.BookingRecord{}, errors.New("booking id is required")
	}
	endpoint := fmt.Sprintf("%s/bookings/%s/payment", c.baseURL, url.PathEscape(bookingID))
	var rec types.BookingRecord
	err := c.doJSON(ctx, http.MethodPost, endpoint, types.PaymentRequest{Method: method}, &rec)
	if err != nil {
		return types.BookingRecord{}, err
	}
	return rec, nil
}

func (c *Client) doJSON(ctx context.Context, method, endpoint string, in, out any) error {
	maxAttempts := c.maxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var body []byte
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		res, err := c.httpClient.Do(req)
		if err != nil {
			if c.shouldRetryNetworkError(err) && attempt < maxAttempts {
				if waitErr := c.waitRetry(ctx, attempt); waitErr != nil {
					return waitErr
				}
				continue
			}
			return fmt.Errorf("request failed: %w", err)
		}

		if res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden {
			_ = res.Body.Close()
			return ErrAuthRequired
		}

		if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
			snippet, _ := io.ReadAll(io.LimitReader(res.Body, 8<<10))
			_ = res.Body.Close()

			apiErr := &APIError{
				StatusCode: res.StatusCode,
				Status:     res.Status,
				Endpoint:   endpoint,
				Body:       strings.TrimSpace(string(snippet)),
			}
			if c.shouldRetryStatus(res.StatusCode) && attempt < maxAttempts {
				if waitErr := c.waitRetry(ctx, attempt); waitErr != nil {
					return waitErr
				}
				continue
			}
			return apiErr
		}

		if out == nil {
			_, _ = io.Copy(io.Discard, res.Body)
			_ = res.Body.Close()
			return nil
		}

		dec := json.NewDecoder(res.Body)
		err = dec.Decode(out)
		_ = res.Body.Close()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("decode response from %s: %w", endpoint, err)
		}
		return nil
	}

	return errors.New("request failed after retries")
}

func (c *Client) shouldRetryStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

func (c *Client) shouldRetryNetworkError(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func (c *Client) waitRetry(ctx context.Context, attempt int) error {
	delay := c.retryDelay(attempt)
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) retryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := c.retryBase
	if base <= 0 {
		base = defaultRetryBase
	}
	cap := c.retryCap
	if cap <= 0 {
		cap = defaultRetryCap
	}

	delay := base
	for i := 1; i < attempt; i++ {
		if delay >= cap/2 {
			return cap
		}
		delay *= 2
	}
	if delay > cap {
		return cap
	}
	return delay
}
