package pms

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

	"github.com/ktwhotel/concierge/internal/inventory"
	"github.com/ktwhotel/concierge/pkg/logging"
)

const (
	defaultTimeout  = 5 * time.Second
	defaultAttempts = 3
	retryBackoff    = 200 * time.Millisecond
)

// Client talks to the PMS REST API. Every response uses the envelope
// {"success": bool, "data": ..., "error": {"code", "message"}}.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	attempts   int
	backoff    time.Duration
	logger     *logging.Logger
}

// NewClient constructs a PMS client. A zero timeout uses the default.
func NewClient(baseURL, apiKey string, timeout time.Duration, logger *logging.Logger) *Client {
	if strings.TrimSpace(baseURL) == "" {
		panic("pms: base URL cannot be empty")
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		attempts:   defaultAttempts,
		backoff:    retryBackoff,
		logger:     logger,
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type roomTypeStock struct {
	Code      string `json:"room_type_code"`
	Price     int    `json:"price"`
	Available int    `json:"available_count"`
}

// TodayAvailability returns today's stock per room code.
func (c *Client) TodayAvailability(ctx context.Context) (inventory.Availability, error) {
	var data struct {
		RoomTypes []roomTypeStock `json:"available_room_types"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/availability/today", nil, &data); err != nil {
		return nil, fmt.Errorf("pms: today availability: %w", err)
	}
	avail := make(inventory.Availability, len(data.RoomTypes))
	for _, rt := range data.RoomTypes {
		avail[rt.Code] = inventory.Stock{Price: rt.Price, Available: rt.Available}
	}
	return avail, nil
}

// CreateBooking records one same-day booking line.
func (c *Client) CreateBooking(ctx context.Context, req BookingRequest) (Booking, error) {
	var out Booking
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/same-day-bookings", req, &out); err != nil {
		return Booking{}, fmt.Errorf("pms: create booking: %w", err)
	}
	if out.RoomTypeCode == "" {
		out.RoomTypeCode = req.RoomTypeCode
		out.RoomTypeName = req.RoomTypeName
		out.RoomCount = req.RoomCount
		out.Status = req.Status
	}
	return out, nil
}

// CancelBooking cancels a same-day booking by its temporary order id.
func (c *Client) CancelBooking(ctx context.Context, orderID string) error {
	path := fmt.Sprintf("/api/v1/same-day-bookings/%s/cancel", url.PathEscape(orderID))
	if err := c.doJSON(ctx, http.MethodPost, path, nil, nil); err != nil {
		return fmt.Errorf("pms: cancel booking %s: %w", orderID, err)
	}
	return nil
}

// ListBookingsForUser returns the LINE user's same-day bookings, optionally
// filtered by status.
func (c *Client) ListBookingsForUser(ctx context.Context, userID string, statuses ...BookingStatus) ([]Booking, error) {
	q := url.Values{}
	q.Set("line_user_id", userID)
	for _, s := range statuses {
		q.Add("status", string(s))
	}
	var data struct {
		Bookings []Booking `json:"bookings"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/same-day-bookings?"+q.Encode(), nil, &data); err != nil {
		return nil, fmt.Errorf("pms: list bookings: %w", err)
	}
	return data.Bookings, nil
}

// SearchOrders finds reservations by order number or guest name.
func (c *Client) SearchOrders(ctx context.Context, term string) ([]Order, error) {
	q := url.Values{}
	q.Set("q", term)
	var data struct {
		Orders []Order `json:"orders"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/orders/search?"+q.Encode(), nil, &data); err != nil {
		return nil, fmt.Errorf("pms: search orders: %w", err)
	}
	return data.Orders, nil
}

// ConfirmOrder writes the collected phone and arrival time to the order.
func (c *Client) ConfirmOrder(ctx context.Context, conf OrderConfirmation) error {
	path := fmt.Sprintf("/api/v1/orders/%s/confirm", url.PathEscape(conf.OrderID))
	if err := c.doJSON(ctx, http.MethodPost, path, conf, nil); err != nil {
		return fmt.Errorf("pms: confirm order %s: %w", conf.OrderID, err)
	}
	return nil
}

// doJSON sends the request, retrying transport failures and 5xx answers a
// bounded number of times.
func (c *Client) doJSON(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		err := c.once(ctx, method, path, payload, out)
		if err == nil || !errors.Is(err, ErrUnavailable) {
			return err
		}
		lastErr = err
		if attempt == c.attempts {
			break
		}
		c.logger.Warn("pms request failed, retrying", "path", path, "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
		case <-time.After(c.backoff * time.Duration(attempt)):
		}
	}
	return lastErr
}

func (c *Client) once(ctx context.Context, method, path string, payload []byte, out interface{}) error {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}

	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		msg := string(respBody)
		if len(msg) > 300 {
			msg = msg[:300]
		}
		c.logger.Warn("pms API returned non-JSON body", "status", resp.StatusCode, "path", path, "body", msg)
		return fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if !env.Success || resp.StatusCode >= 300 {
		rej := &RejectedError{Message: http.StatusText(resp.StatusCode)}
		if env.Error != nil {
			rej.Code, rej.Message = env.Error.Code, env.Error.Message
		}
		return rej
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}
