// Package bitrix is the resilient Bitrix24 REST transport: pacing, bounded
// retries with linear backoff, and error normalization.
package bitrix

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/errmodel"
	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/ratelimit"
	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/telemetry"
)

const (
	DefaultTimeout    = 8 * time.Second
	DefaultRetryCount = 3
	DefaultRetryDelay = 500 * time.Millisecond

	maxResponseBytes = 32 << 20
)

// MissingWebhookMessage is returned as a configuration failure when no base
// URL is set.
const MissingWebhookMessage = "Environment variable BITRIX_WEBHOOK_URL is not set"

// Config is the transport configuration.
type Config struct {
	// BaseURL is the incoming webhook prefix, e.g.
	// https://portal.bitrix24.ru/rest/1/<secret>/
	BaseURL string
	// Timeout bounds each attempt.
	Timeout time.Duration
	// RetryCount is the total number of attempts; values below 1 mean 1.
	RetryCount int
	// RetryDelay is the backoff base; attempt n waits RetryDelay*n.
	RetryDelay time.Duration
}

// Client sends translated requests to Bitrix24. Safe for concurrent use.
type Client struct {
	cfg     Config
	pacer   ratelimit.Pacer
	http    *http.Client
	logger  *zap.Logger
	metrics telemetry.Metrics
	tracer  trace.Tracer
	sleep   func(ctx context.Context, d time.Duration) error
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the instrumented default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func WithMetrics(m telemetry.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithSleep replaces the backoff sleep. Used by tests to observe delays.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) { c.sleep = sleep }
}

// NewClient builds a Client. A nil pacer disables pacing. Zero durations take
// the package defaults; a missing BaseURL is reported by Call, not here.
func NewClient(cfg Config, pacer ratelimit.Pacer, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}
	if pacer == nil {
		pacer = ratelimit.Unlimited{}
	}
	c := &Client{
		cfg:     cfg,
		pacer:   pacer,
		http:    &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		logger:  zap.NewNop(),
		metrics: telemetry.NopMetrics{},
		tracer:  telemetry.Tracer(),
		sleep:   sleepContext,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Configured reports whether a webhook base URL is set.
func (c *Client) Configured() bool {
	return strings.TrimSpace(c.cfg.BaseURL) != ""
}

// Endpoint returns the URL for method.
func (c *Client) Endpoint(method string) string {
	return strings.TrimRight(strings.TrimSpace(c.cfg.BaseURL), "/") + "/" + method + ".json"
}

// Call posts payload to method and returns the unwrapped result. Errors are
// *errmodel.Error of kind configuration or upstream.
func (c *Client) Call(ctx context.Context, method string, payload map[string]any) (any, error) {
	if !c.Configured() {
		return nil, errmodel.Configuration(MissingWebhookMessage)
	}
	if payload == nil {
		payload = map[string]any{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("Client.Call: encode payload: %w", err)
	}

	ctx, span := c.tracer.Start(ctx, "bitrix.call", trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("bitrix.method", method)))
	defer span.End()

	start := time.Now()
	result, attempts, err := c.send(ctx, method, c.Endpoint(method), body)
	span.SetAttributes(attribute.Int("bitrix.attempts", attempts))

	outcome := telemetry.OutcomeOK
	if err != nil {
		outcome = telemetry.OutcomeError
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	c.metrics.ObserveUpstream(method, outcome, attempts, time.Since(start))
	return result, err
}

// send runs the bounded attempt loop.
func (c *Client) send(ctx context.Context, method, endpoint string, body []byte) (any, int, error) {
	maxAttempts := max(c.cfg.RetryCount, 1)
	var lastErr error
	attempt := 1
	for ; attempt <= maxAttempts; attempt++ {
		waitStart := time.Now()
		if err := c.pacer.Wait(ctx); err != nil {
			return nil, attempt, cancelled(lastErr, err)
		}
		c.metrics.ObservePacerWait(time.Since(waitStart))

		resp, err := c.do(ctx, endpoint, body)
		if err == nil && resp.ok() {
			c.logger.Debug("bitrix call succeeded",
				zap.String("method", method),
				zap.Int("attempt", attempt),
				zap.Int("status", resp.status),
			)
			return unwrapResult(resp.body), attempt, nil
		}

		status := 0
		if resp != nil {
			status = resp.status
		}
		lastErr = normalizeError(resp, err)
		if attempt == maxAttempts || !IsRetryable(status, err) || ctx.Err() != nil {
			break
		}

		delay := Backoff(c.cfg.RetryDelay, attempt)
		c.logger.Warn("bitrix call failed, retrying",
			zap.String("method", method),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxAttempts),
			zap.Int("status", status),
			zap.Duration("delay", delay),
			zap.Error(lastErr),
		)
		c.metrics.ObserveRetry(method, status)
		if err := c.sleep(ctx, delay); err != nil {
			return nil, attempt, cancelled(lastErr, err)
		}
	}
	attempt = min(attempt, maxAttempts)

	c.logger.Warn("bitrix call failed",
		zap.String("method", method),
		zap.Int("attempts", attempt),
		zap.Error(lastErr),
	)
	return nil, attempt, lastErr
}

// response is one HTTP exchange with a decoded body.
type response struct {
	status int
	// body is the decoded JSON value, or the raw text when it is not JSON.
	body any
}

// ok reports a 2xx status without an error object in the body. Bitrix24
// reports some failures with 200 and {"error": ...}.
func (r *response) ok() bool {
	if r.status < 200 || r.status > 299 {
		return false
	}
	m, isObj := r.body.(map[string]any)
	return !isObj || m["error"] == nil
}

// do performs one attempt. A non-nil error means no response was received.
func (c *Client) do(ctx context.Context, endpoint string, body []byte) (*response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("Client.do: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("Client.do: read body: %w", err)
	}
	return &response{status: resp.StatusCode, body: decodeBody(raw)}, nil
}

func decodeBody(raw []byte) any {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return v
}

// unwrapResult returns body.result when present, else the whole body.
func unwrapResult(body any) any {
	if m, ok := body.(map[string]any); ok {
		if r, has := m["result"]; has && r != nil {
			return r
		}
	}
	return body
}

// cancelled reports a context ending mid-loop. The last upstream failure, if
// any, is kept as the visible message.
func cancelled(last, ctxErr error) error {
	if last != nil {
		return last
	}
	return errmodel.Upstream("Request cancelled: "+ctxErr.Error(), 0, nil, ctxErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
