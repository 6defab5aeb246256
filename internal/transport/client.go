// Package transport is the resilient HTTP layer every outbound call goes
// through. A Client wraps a single downstream base URL with bounded-attempt
// retry, exponential backoff, and a circuit breaker. Both platform adapters
// compose their own Client; breakers are never shared between downstreams.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Defaults match the original deployment values.
const (
	DefaultTimeout          = 30 * time.Second
	DefaultMaxAttempts      = 3
	DefaultBreakerThreshold = 5
	DefaultBreakerCoolDown  = 60 * time.Second

	backoffBase = 2 * time.Second
	backoffCap  = 10 * time.Second

	// maxErrorBodyBytes bounds how much of a 4xx response body is carried in
	// the returned error for diagnostics.
	maxErrorBodyBytes = 500
)

// ErrCircuitOpen is returned without any network attempt while the breaker is
// open and the cool-down has not elapsed.
var ErrCircuitOpen = errors.New("circuit open: service unavailable")

// APIError is a non-retryable client error (HTTP 4xx) from a downstream,
// carrying a truncated response body for diagnostics.
type APIError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("client error from %s: %d", e.Service, e.StatusCode)
}

// Response is the successful outcome of a Do call.
type Response struct {
	StatusCode int
	Body       []byte
}

// Options configures a Client. Zero values take the package defaults.
type Options struct {
	Timeout          time.Duration
	MaxAttempts      int
	BreakerThreshold int
	BreakerCoolDown  time.Duration
	// Jitter adds up to half the computed delay of randomness per backoff.
	Jitter bool
	// OnStateChange receives breaker transitions for observability.
	OnStateChange StateChangeFunc
}

// Client issues HTTP requests against one downstream base URL.
// Safe for concurrent use.
type Client struct {
	service     string
	baseURL     string
	http        *http.Client
	breaker     *breaker
	maxAttempts int
	jitter      bool
	logger      *slog.Logger

	// sleep is swapped in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Client for the given downstream. service is a short label
// used in errors, logs, and breaker events.
func New(service, baseURL string, opts Options, logger *slog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	return &Client{
		service: service,
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxConnsPerHost:     20,
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		breaker:     newBreaker(opts.BreakerThreshold, opts.BreakerCoolDown, opts.OnStateChange),
		maxAttempts: maxAttempts,
		jitter:      opts.Jitter,
		logger:      logger,
		sleep:       sleepCtx,
	}
}

// BreakerState exposes the current breaker state for health reporting.
func (c *Client) BreakerState() State {
	return c.breaker.current()
}

// Get issues a GET request through the retry and breaker discipline.
func (c *Client) Get(ctx context.Context, path string, headers http.Header) (*Response, error) {
	return c.Do(ctx, http.MethodGet, path, nil, headers)
}

// Post issues a POST request through the retry and breaker discipline.
func (c *Client) Post(ctx context.Context, path string, body []byte, headers http.Header) (*Response, error) {
	return c.Do(ctx, http.MethodPost, path, body, headers)
}

// Do dispatches a request with bounded retries. Retryable failures are
// network errors and 5xx responses; 4xx responses return an *APIError
// immediately. An open breaker fails fast with ErrCircuitOpen before any
// network activity.
func (c *Client) Do(ctx context.Context, method, path string, body []byte, headers http.Header) (*Response, error) {
	var lastErr error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			if err := c.sleep(ctx, c.backoff(attempt-1)); err != nil {
				return nil, err
			}
		}

		resp, retryable, err := c.dispatch(ctx, method, path, body, headers)
		if err == nil {
			return resp, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err

		c.logger.Warn("request failed",
			"service", c.service,
			"method", method,
			"path", path,
			"attempt", attempt,
			"error", err,
		)
	}

	return nil, fmt.Errorf("%s: request failed after %d attempts: %w", c.service, c.maxAttempts, lastErr)
}

// dispatch performs one attempt. The bool result reports whether the failure
// is retryable.
func (c *Client) dispatch(ctx context.Context, method, path string, body []byte, headers http.Header) (*Response, bool, error) {
	req, err := c.newRequest(ctx, method, path, body, headers)
	if err != nil {
		return nil, false, err
	}

	if !c.breaker.allow() {
		return nil, false, fmt.Errorf("%s: %w", c.service, ErrCircuitOpen)
	}

	httpResp, err := c.http.Do(req)
	if err != nil {
		c.breaker.recordFailure()
		// Context cancellation is terminal, not a downstream fault worth
		// retrying.
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		return nil, true, fmt.Errorf("%s: %w", c.service, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		c.breaker.recordFailure()
		return nil, true, fmt.Errorf("%s: read response: %w", c.service, err)
	}

	switch {
	case httpResp.StatusCode >= 500:
		c.breaker.recordFailure()
		return nil, true, fmt.Errorf("%s: server error: %d", c.service, httpResp.StatusCode)

	case httpResp.StatusCode >= 400:
		// The downstream is alive and rejecting us; not a breaker failure and
		// not worth retrying.
		c.breaker.recordSuccess()
		return nil, false, &APIError{
			Service:    c.service,
			StatusCode: httpResp.StatusCode,
			Body:       truncate(string(respBody), maxErrorBodyBytes),
		}

	default:
		c.breaker.recordSuccess()
		return &Response{StatusCode: httpResp.StatusCode, Body: respBody}, false, nil
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body []byte, headers http.Header) (*http.Request, error) {
	target := c.baseURL + path
	if _, err := url.Parse(target); err != nil {
		return nil, fmt.Errorf("%s: invalid request url %q: %w", c.service, target, err)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", c.service, err)
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return req, nil
}

// backoff returns the delay before retry number n (1-based): 2s doubling,
// capped at 10s, with optional jitter.
func (c *Client) backoff(n int) time.Duration {
	d := backoffBase << (n - 1)
	if d > backoffCap || d <= 0 {
		d = backoffCap
	}
	if c.jitter && d > 0 {
		d += time.Duration(rand.Int63n(int64(d) / 2))
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
