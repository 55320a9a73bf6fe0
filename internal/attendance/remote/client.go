// Package remote implements the client for the upstream attendance API. The
// engine treats each call as an opaque asynchronous operation; retry and
// backoff live here, behind the API interface.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shiftpoint/shiftpoint-attendance/internal/attendance/schedule"
	"github.com/shiftpoint/shiftpoint-attendance/pkg/config"
	"github.com/shiftpoint/shiftpoint-attendance/pkg/errors"
	"github.com/shiftpoint/shiftpoint-attendance/pkg/logger"
	"github.com/shiftpoint/shiftpoint-attendance/pkg/metrics"
)

// ClockInRequest is the create-shift mutation payload
type ClockInRequest struct {
	EmployeeID string   `json:"employee_id"`
	BusinessID string   `json:"business_id"`
	OutletID   string   `json:"outlet_id"`
	ShiftDate  string   `json:"shift_date"`
	StartTime  string   `json:"start_time"`
	EndTime    string   `json:"end_time"`
	Latitude   *float64 `json:"latitude,omitempty"`
	Longitude  *float64 `json:"longitude,omitempty"`
}

// ClockOutRequest is the close-shift mutation payload
type ClockOutRequest struct {
	ShiftID   string   `json:"shift_id"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// API is the remote attendance collaborator
type API interface {
	TodayShift(ctx context.Context, employeeID, businessID, outletID string) (*schedule.Shift, error)
	ShiftHistory(ctx context.Context, employeeID, startDate, endDate string) ([]*schedule.Shift, error)
	AttendanceStats(ctx context.Context, employeeID, startDate, endDate string) (*schedule.AttendanceStats, error)
	ClockIn(ctx context.Context, req ClockInRequest) (*schedule.Shift, error)
	ClockOut(ctx context.Context, req ClockOutRequest) (*schedule.Shift, error)
	Outlet(ctx context.Context, outletID string) (*schedule.Outlet, error)
}

// envelope is the remote response wrapper
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}

// Client is the HTTP implementation of API
type Client struct {
	baseURL string
	http    *http.Client
	cfg     *config.RemoteConfig
	logger  *logger.Logger
	metrics *metrics.Collector
}

// NewClient creates a remote attendance API client
func NewClient(cfg *config.RemoteConfig, log *logger.Logger, m *metrics.Collector) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: cfg.RequestTimeout},
		cfg:     cfg,
		logger:  log.WithComponent("remote"),
		metrics: m,
	}
}

// TodayShift returns the employee's shift for today, or nil when none exists
func (c *Client) TodayShift(ctx context.Context, employeeID, businessID, outletID string) (*schedule.Shift, error) {
	q := url.Values{}
	q.Set("employee_id", employeeID)
	q.Set("business_id", businessID)
	q.Set("outlet_id", outletID)

	data, err := c.do(ctx, http.MethodGet, "/api/v1/attendance/today?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	return decodeShift(data)
}

// ShiftHistory returns shifts in the inclusive date range
func (c *Client) ShiftHistory(ctx context.Context, employeeID, startDate, endDate string) ([]*schedule.Shift, error) {
	q := url.Values{}
	q.Set("employee_id", employeeID)
	q.Set("start_date", startDate)
	q.Set("end_date", endDate)

	data, err := c.do(ctx, http.MethodGet, "/api/v1/attendance/history?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var shifts []*schedule.Shift
	if len(data) == 0 || string(data) == "null" {
		return []*schedule.Shift{}, nil
	}
	if err := json.Unmarshal(data, &shifts); err != nil {
		return nil, errors.Wrap(err, "REMOTE_DECODE", "malformed shift history payload", http.StatusBadGateway)
	}
	return shifts, nil
}

// AttendanceStats returns the aggregate stats for the date range
func (c *Client) AttendanceStats(ctx context.Context, employeeID, startDate, endDate string) (*schedule.AttendanceStats, error) {
	q := url.Values{}
	q.Set("employee_id", employeeID)
	q.Set("start_date", startDate)
	q.Set("end_date", endDate)

	data, err := c.do(ctx, http.MethodGet, "/api/v1/attendance/stats?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var stats schedule.AttendanceStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, errors.Wrap(err, "REMOTE_DECODE", "malformed stats payload", http.StatusBadGateway)
	}
	return &stats, nil
}

// ClockIn issues the create-shift mutation
func (c *Client) ClockIn(ctx context.Context, req ClockInRequest) (*schedule.Shift, error) {
	data, err := c.do(ctx, http.MethodPost, "/api/v1/attendance/clock-in", req)
	if err != nil {
		return nil, err
	}
	return decodeShift(data)
}

// ClockOut issues the close-shift mutation
func (c *Client) ClockOut(ctx context.Context, req ClockOutRequest) (*schedule.Shift, error) {
	data, err := c.do(ctx, http.MethodPost, "/api/v1/attendance/clock-out", req)
	if err != nil {
		return nil, err
	}
	return decodeShift(data)
}

// Outlet returns the outlet configuration (shift presets and GPS policy)
func (c *Client) Outlet(ctx context.Context, outletID string) (*schedule.Outlet, error) {
	data, err := c.do(ctx, http.MethodGet, "/api/v1/outlets/"+url.PathEscape(outletID), nil)
	if err != nil {
		return nil, err
	}

	var outlet schedule.Outlet
	if err := json.Unmarshal(data, &outlet); err != nil {
		return nil, errors.Wrap(err, "REMOTE_DECODE", "malformed outlet payload", http.StatusBadGateway)
	}
	return &outlet, nil
}

// do runs one request with the collaborator's retry/backoff policy and
// unwraps the response envelope. 4xx responses and envelope failures are not
// retried; network errors and 5xx responses are, up to MaxRetries.
func (c *Client) do(ctx context.Context, method, path string, body interface{}) (json.RawMessage, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, errors.Internal(fmt.Sprintf("failed to encode request: %v", err))
		}
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(
		newExponentialBackoff(c.cfg), uint64(c.cfg.MaxRetries)), ctx)

	var data json.RawMessage
	operation := func() error {
		start := time.Now()
		var err error
		data, err = c.attempt(ctx, method, path, payload)
		c.metrics.ObserveRemoteCall(time.Since(start).Seconds())
		return err
	}

	if err := backoff.Retry(operation, policy); err != nil {
		c.logger.Error().Err(err).Str("method", method).Str("path", path).Msg("remote call failed")
		return nil, err
	}
	return data, nil
}

func (c *Client) attempt(ctx context.Context, method, path string, payload []byte) (json.RawMessage, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, backoff.Permanent(errors.Internal(fmt.Sprintf("failed to build request: %v", err)))
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.RemoteFailure("")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.RemoteFailure("")
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode >= 500 {
			return nil, errors.RemoteFailure("")
		}
		return nil, backoff.Permanent(errors.Wrap(err, "REMOTE_DECODE", "malformed response envelope", http.StatusBadGateway))
	}

	if !env.Success {
		// remote message passes through verbatim
		remoteErr := errors.RemoteFailure(env.Message)
		if resp.StatusCode >= 500 {
			return nil, remoteErr
		}
		return nil, backoff.Permanent(remoteErr)
	}

	return env.Data, nil
}

func newExponentialBackoff(cfg *config.RemoteConfig) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if cfg.InitialBackoff > 0 {
		b.InitialInterval = cfg.InitialBackoff
	}
	if cfg.MaxBackoff > 0 {
		b.MaxInterval = cfg.MaxBackoff
	}
	return b
}

func decodeShift(data json.RawMessage) (*schedule.Shift, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var shift schedule.Shift
	if err := json.Unmarshal(data, &shift); err != nil {
		return nil, errors.Wrap(err, "REMOTE_DECODE", "malformed shift payload", http.StatusBadGateway)
	}
	return &shift, nil
}
