// Package client is a typed HTTP client for the scheduling API. Transport failures
// are reported as network or timeout errors, never as empty results.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/jwalitptl/scheduling-api/internal/model"
	"github.com/jwalitptl/scheduling-api/pkg/errors"
	"github.com/jwalitptl/scheduling-api/pkg/schedule"
)

type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	// RetryAttempts is how many extra tries a GET gets after a network error or
	// timeout. Zero disables retries.
	RetryAttempts int
	RetryDelay    time.Duration
	HTTPClient    *http.Client
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
	retries int
	delay   time.Duration
}

// envelope mirrors the server's response wrapper.
type envelope struct {
	Status  string            `json:"status"`
	Data    json.RawMessage   `json:"data,omitempty"`
	Kind    string            `json:"kind,omitempty"`
	Message string            `json:"message,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func New(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	delay := cfg.RetryDelay
	if delay <= 0 {
		delay = 200 * time.Millisecond
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		http:    httpClient,
		retries: cfg.RetryAttempts,
		delay:   delay,
	}
}

// WithToken returns a copy of c that sends token as its bearer credential.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

func (c *Client) ListDepartments(ctx context.Context) ([]*model.Department, error) {
	var out []*model.Department
	return out, c.get(ctx, "/departments", nil, &out)
}

func (c *Client) ListProviders(ctx context.Context, departmentID string) ([]*model.Provider, error) {
	q := url.Values{}
	if departmentID != "" {
		q.Set("department", departmentID)
	}
	var out []*model.Provider
	return out, c.get(ctx, "/providers", q, &out)
}

func (c *Client) GetProvider(ctx context.Context, id uuid.UUID) (*model.Provider, error) {
	var out model.Provider
	if err := c.get(ctx, "/providers/"+id.String(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ResolveSlots(ctx context.Context, providerID uuid.UUID, date schedule.Date) ([]schedule.Window, error) {
	q := url.Values{"date": {date.String()}}
	var out []schedule.Window
	if err := c.get(ctx, "/providers/"+providerID.String()+"/slots", q, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []schedule.Window{}
	}
	return out, nil
}

// AvailableStaff asks for free staff. A nil window returns the whole department.
func (c *Client) AvailableStaff(ctx context.Context, date schedule.Date, window *schedule.Window, departmentID string) (*model.StaffResult, error) {
	q := url.Values{}
	if !date.IsZero() {
		q.Set("date", date.String())
	}
	if window != nil {
		q.Set("startTime", window.Start.String())
		q.Set("endTime", window.End.String())
	}
	if departmentID != "" {
		q.Set("department", departmentID)
	}
	var out model.StaffResult
	if err := c.get(ctx, "/staff/available", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateBooking(ctx context.Context, req *model.CreateBookingRequest) (*model.Booking, error) {
	var out model.Booking
	if err := c.do(ctx, http.MethodPost, "/bookings", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetBooking(ctx context.Context, id uuid.UUID) (*model.Booking, error) {
	var out model.Booking
	if err := c.get(ctx, "/bookings/"+id.String(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateBookingStatus(ctx context.Context, id uuid.UUID, status string) (*model.Booking, error) {
	var out model.Booking
	body := model.UpdateBookingStatusRequest{Status: status}
	if err := c.do(ctx, http.MethodPatch, "/bookings/"+id.String(), nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteBooking(ctx context.Context, id uuid.UUID) error {
	return c.do(ctx, http.MethodDelete, "/bookings/"+id.String(), nil, nil, nil)
}

func (c *Client) ListBookings(ctx context.Context, filters model.BookingFilters) ([]*model.Booking, error) {
	var out []*model.Booking
	if err := c.get(ctx, "/bookings", filterQuery(filters), &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []*model.Booking{}
	}
	return out, nil
}

func (c *Client) BookingSummary(ctx context.Context, filters model.BookingFilters) (*model.BookingSummary, error) {
	var out model.BookingSummary
	if err := c.get(ctx, "/bookings/summary", filterQuery(filters), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Calendar(ctx context.Context, year int, month time.Month, filters model.BookingFilters) (*model.CalendarMonth, error) {
	q := filterQuery(filters)
	q.Set("year", strconv.Itoa(year))
	q.Set("month", strconv.Itoa(int(month)))
	var out model.CalendarMonth
	if err := c.get(ctx, "/calendar", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func filterQuery(f model.BookingFilters) url.Values {
	q := url.Values{}
	if !f.RangeStart.IsZero() {
		q.Set("rangeStart", f.RangeStart.String())
	}
	if !f.RangeEnd.IsZero() {
		q.Set("rangeEnd", f.RangeEnd.String())
	}
	if f.ProviderID != uuid.Nil {
		q.Set("providerId", f.ProviderID.String())
	}
	if f.Kind != "" {
		q.Set("kind", string(f.Kind))
	}
	if f.Status != "" {
		q.Set("status", string(f.Status))
	}
	if f.RequesterID != "" {
		q.Set("requesterId", f.RequesterID)
	}
	if f.RequesterEmail != "" {
		q.Set("requesterEmail", f.RequesterEmail)
	}
	if f.DepartmentID != "" {
		q.Set("department", f.DepartmentID)
	}
	if f.Query != "" {
		q.Set("q", f.Query)
	}
	if f.Upcoming != nil {
		q.Set("upcoming", strconv.FormatBool(*f.Upcoming))
	}
	return q
}

// get retries idempotent reads on network errors and timeouts when configured to.
func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	if c.retries <= 0 {
		return c.do(ctx, http.MethodGet, path, query, nil, out)
	}

	op := func() error {
		err := c.do(ctx, http.MethodGet, path, query, nil, out)
		if err != nil && !errors.Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.delay
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.retries)), ctx))
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.NewBadRequest("failed to encode request", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return errors.NewBadRequest("failed to build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return classify(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return classify(err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return statusError(resp.StatusCode, fmt.Errorf("unexpected response body: %w", err))
	}
	if resp.StatusCode >= http.StatusBadRequest || env.Status == "error" {
		if env.Kind == "" {
			return statusError(resp.StatusCode, stderrors.New(env.Message))
		}
		return &errors.AppError{
			Code:    errors.CodeFromKind(env.Kind),
			Message: env.Message,
			Fields:  env.Fields,
		}
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to decode response data: %w", err))
	}
	return nil
}

// classify maps transport failures onto the network and timeout kinds.
func classify(err error) error {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.NewTimeout(err)
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return errors.NewTimeout(err)
	}
	return errors.NewNetwork(err)
}

// statusError handles responses that did not carry the error envelope, typically
// from a proxy in front of the service.
func statusError(status int, err error) error {
	switch {
	case status == http.StatusGatewayTimeout:
		return errors.NewTimeout(err)
	case status == http.StatusBadGateway || status == http.StatusServiceUnavailable:
		return errors.NewNetwork(err)
	case status >= http.StatusBadRequest:
		appErr := errors.NewInternal(err)
		appErr.Message = fmt.Sprintf("unexpected status %d", status)
		return appErr
	}
	return errors.NewInternal(err)
}
