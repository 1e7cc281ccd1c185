// Package backend is the client of the remote REST backend that owns meals
// and orders. Every response is parsed into an explicit success or failure
// result before any payload is used.
package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// maxResponseSize bounds how much of a response body is read.
const maxResponseSize = 4 << 20

// Error is a failure reported by the backend, either as a non-2xx status or
// as a {"success":false} envelope. Status is zero when the backend could not
// be reached at all; Err then holds the transport error.
type Error struct {
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Status == 0 && e.Err != nil:
		return fmt.Sprintf("backend unavailable: %v", e.Err)
	case e.Message == "":
		return fmt.Sprintf("backend: status %d", e.Status)
	default:
		return fmt.Sprintf("backend: status %d: %s", e.Status, e.Message)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Config holds the backend client settings.
type Config struct {
	// BaseURL is the backend root, e.g. http://localhost:5000.
	BaseURL string
	// Timeout bounds every request. Zero means 10s.
	Timeout time.Duration
	// TracerProvider and MeterProvider instrument outgoing requests when set.
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// Client calls the backend's /api/v1 endpoints.
type Client struct {
	base *url.URL
	http *http.Client
}

// New creates a Client for the backend at cfg.BaseURL.
func New(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, errors.Wrap(err, "parse backend url")
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, errors.Errorf("backend url %q must be absolute", cfg.BaseURL)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	var opts []otelhttp.Option
	if cfg.TracerProvider != nil {
		opts = append(opts, otelhttp.WithTracerProvider(cfg.TracerProvider))
	}
	if cfg.MeterProvider != nil {
		opts = append(opts, otelhttp.WithMeterProvider(cfg.MeterProvider))
	}

	return &Client{
		base: base,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport, opts...),
		},
	}, nil
}

// Ping checks that the backend answers HTTP at all.
func (c *Client) Ping(ctx context.Context) error {
	status, _, err := c.do(ctx, http.MethodGet, "/api/v1/meals", "", nil)
	if err != nil {
		return err
	}
	if status >= http.StatusInternalServerError {
		return &Error{Status: status}
	}
	return nil
}

// do sends a request and returns the status code and the (bounded) body.
// Transport failures are the only errors, reported as *Error with a zero
// status; any status is returned as is.
func (c *Client) do(ctx context.Context, method, path, token string, body []byte) (int, []byte, error) {
	u := c.base.JoinPath(path)

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		return 0, nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, &Error{Err: errors.Wrapf(err, "%s %s", method, path)}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return 0, nil, errors.Wrapf(err, "read %s %s", method, path)
	}

	zctx.From(ctx).Debug("Backend call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)
	return resp.StatusCode, data, nil
}

// failure converts a non-successful response into an *Error, using the
// envelope message when the body carries one.
func failure(status int, body []byte) error {
	msg := ""
	if env, err := decodeEnvelope(body, skipData); err == nil {
		msg = env.Message
	}
	return &Error{Status: status, Message: msg}
}

// malformed reports a response body that could not be parsed.
func malformed(status int, err error) error {
	return &Error{Status: status, Message: "malformed response", Err: err}
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}
