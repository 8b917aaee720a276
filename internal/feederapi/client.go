package feederapi

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

	"github.com/homenavi/petfeeder/internal/models"
	"github.com/homenavi/petfeeder/internal/observability"
)

const DefaultBaseURL = "http://localhost:3000/api"

// ErrNotFound is returned by the device endpoints when the backend does not
// know the requested device.
var ErrNotFound = errors.New("device not found")

// StatusError is a non-2xx answer from the backend.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("feeder api returned status %d", e.Status)
	}
	return fmt.Sprintf("feeder api returned status %d: %s", e.Status, e.Message)
}

// RequestError is a transport or decoding failure. Timeouts end up here too.
type RequestError struct {
	Op  string
	Err error
}

func (e *RequestError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *RequestError) Unwrap() error { return e.Err }

// IsRemote reports whether err is a network or server failure (as opposed to
// ErrNotFound or a local error).
func IsRemote(err error) bool {
	var se *StatusError
	var re *RequestError
	return errors.As(err, &se) || errors.As(err, &re)
}

// IsUnauthorized reports whether the backend rejected the bearer token.
func IsUnauthorized(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	return se.Status == http.StatusUnauthorized || se.Status == http.StatusForbidden
}

// TokenSource supplies the bearer token attached to every request.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

type Client struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
	metrics    *observability.Metrics
}

// New returns a client for the backend at baseURL. tokens may be nil for
// unauthenticated use.
func New(baseURL string, tokens TokenSource, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		tokens:     tokens,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// WithMetrics records request counts and latency into m.
func (c *Client) WithMetrics(m *observability.Metrics) *Client {
	c.metrics = m
	return c
}

func (c *Client) Register(ctx context.Context, username, password string) (models.RegisterResponse, error) {
	var out models.RegisterResponse
	err := c.do(ctx, "register", http.MethodPost, "/auth/register", models.Credentials{Username: username, Password: password}, &out)
	return out, err
}

func (c *Client) Login(ctx context.Context, username, password string) (models.LoginResponse, error) {
	var out models.LoginResponse
	err := c.do(ctx, "login", http.MethodPost, "/auth/login", models.Credentials{Username: username, Password: password}, &out)
	return out, err
}

// FetchConfig returns the device's control configuration. A response that
// carries no device id is treated as an unknown device.
func (c *Client) FetchConfig(ctx context.Context, deviceID string) (models.DeviceControl, error) {
	var out models.DeviceControl
	if err := c.do(ctx, "fetch_config", http.MethodGet, devicePath(deviceID, "config"), nil, &out); err != nil {
		return models.DeviceControl{}, err
	}
	if out.DeviceID == "" {
		return models.DeviceControl{}, ErrNotFound
	}
	if out.Schedule == nil {
		out.Schedule = []models.ScheduleEntry{}
	}
	return out, nil
}

// UpdateConfig submits the full snapshot and returns the backend's canonical
// form of it.
func (c *Client) UpdateConfig(ctx context.Context, deviceID string, dc models.DeviceControl) (models.DeviceControl, error) {
	var out models.DeviceControl
	if err := c.do(ctx, "update_config", http.MethodPut, devicePath(deviceID, "config"), dc.Clone(), &out); err != nil {
		return models.DeviceControl{}, err
	}
	if out.Schedule == nil {
		out.Schedule = []models.ScheduleEntry{}
	}
	return out, nil
}

func (c *Client) FetchHistory(ctx context.Context, deviceID string) (models.HistoryResponse, error) {
	var out models.HistoryResponse
	err := c.do(ctx, "fetch_history", http.MethodGet, devicePath(deviceID, "history"), nil, &out)
	return out, err
}

func devicePath(deviceID, leaf string) string {
	return "/auth/device/" + url.PathEscape(deviceID) + "/" + leaf
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	start := time.Now()
	status, err := c.roundTrip(ctx, op, method, path, in, out)
	c.metrics.ObserveRemote(op, status, time.Since(start))
	return err
}

func (c *Client) roundTrip(ctx context.Context, op, method, path string, in, out any) (int, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("%s: marshal request: %w", op, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return 0, fmt.Errorf("%s: read token: %w", op, err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, &RequestError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound && strings.HasPrefix(path, "/auth/device/") {
		return resp.StatusCode, ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, &StatusError{Status: resp.StatusCode, Message: readErrorMessage(resp.Body)}
	}
	if out == nil {
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, &RequestError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return resp.StatusCode, nil
}

// readErrorMessage extracts {"error": "..."} (or "message") from an error
// body, falling back to the raw text.
func readErrorMessage(r io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(b) == 0 {
		return ""
	}
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(b, &payload) == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	return strings.TrimSpace(string(b))
}
