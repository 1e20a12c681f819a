package booklib

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"booklib/metrics"
)

// Logger defines the logging interface used by the transport and refresher.
type Logger interface {
	Printf(format string, v ...any)
}

// defaultLogger is the default logger implementation.
type defaultLogger struct {
	prefix string
}

func (l *defaultLogger) Printf(format string, v ...any) {
	log.Printf(l.prefix+format, v...)
}

// Transport executes outbound requests with retry semantics.
// Implementations must be safe for concurrent use.
type Transport interface {
	// Do issues the request and returns the response body on success.
	Do(ctx context.Context, method, url string, body []byte) ([]byte, error)

	// Close releases the underlying connection pool.
	Close()
}

// Retry reasons reported to metrics.
const (
	retryReasonStatus      = "status"
	retryReasonRateLimited = "rate_limited"
	retryReasonConnection  = "connection"
)

// Client is the retrying HTTP transport. Responses are classified as
// success, rate-limited, or transient error; non-success attempts back off
// exponentially, honoring a server-supplied Retry-After hint when present.
// The retry policy is deliberately status-code-blind: a 4xx retries the same
// number of times as a 5xx.
type Client struct {
	http    *http.Client
	config  Config
	metrics metrics.Metrics
	logger  Logger
}

// Ensure Client implements Transport
var _ Transport = (*Client)(nil)

// ClientOption is a function that configures the Client.
type ClientOption func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.http = hc
	}
}

// WithClientConfig sets the configuration for the client.
func WithClientConfig(cfg Config) ClientOption {
	return func(c *Client) {
		c.config = cfg
	}
}

// WithClientMetrics sets the metrics collector for the client.
func WithClientMetrics(m metrics.Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithClientLogger sets the logger for the client.
func WithClientLogger(l Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient creates a new retrying transport with the given options.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		config:  DefaultConfig(),
		metrics: &metrics.NoopMetrics{},
		logger:  &defaultLogger{prefix: "[Transport] "},
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.http == nil {
		// The per-request timeout bounds a hung call so it surfaces as a
		// transient failure instead of consuming the batch's time budget.
		c.http = &http.Client{Timeout: c.config.RequestTimeout}
	}

	return c
}

// Do issues the request with up to MaxAttempts attempts.
// Per attempt: a 2xx response returns immediately; a 429 sleeps for the
// Retry-After hint (or the exponential delay when absent) and consumes an
// attempt; any other status sleeps for the exponential delay and consumes an
// attempt; a connection-level error retries unless it occurred on the last
// attempt, in which case it propagates. Exhausting all attempts yields
// ErrRetriesExhausted, never the last response.
func (c *Client) Do(ctx context.Context, method, url string, body []byte) ([]byte, error) {
	maxAttempts := c.config.MaxAttempts
	lastStatus := 0

	for attempt := 0; attempt < maxAttempts; attempt++ {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			// Connection-level error or per-request timeout
			c.logger.Printf("attempt %d/%d failed: %v", attempt+1, maxAttempts, err)
			c.metrics.RetryAttempt(retryReasonConnection)
			if attempt == maxAttempts-1 {
				return nil, fmt.Errorf("%s %s: %w", method, url, err)
			}
			if err := c.wait(ctx, c.backoffDelay(attempt)); err != nil {
				return nil, err
			}
			continue
		}

		if resp.StatusCode >= http.StatusOK && resp.StatusCode < 300 {
			data, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			if err != nil {
				return nil, fmt.Errorf("read response: %w", err)
			}
			return data, nil
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastStatus = resp.StatusCode
			delay, ok := retryAfterHint(resp)
			if !ok {
				delay = c.backoffDelay(attempt)
			}
			drain(resp)
			c.logger.Printf("rate limited, waiting %v", delay)
			c.metrics.RetryAttempt(retryReasonRateLimited)
			c.metrics.RateLimitWait(delay)
			if err := c.wait(ctx, delay); err != nil {
				return nil, err
			}
			continue
		}

		lastStatus = resp.StatusCode
		drain(resp)
		c.logger.Printf("HTTP %d, retrying", resp.StatusCode)
		c.metrics.RetryAttempt(retryReasonStatus)
		if err := c.wait(ctx, c.backoffDelay(attempt)); err != nil {
			return nil, err
		}
	}

	if lastStatus == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: %d attempts, last status %d: %v", ErrRetriesExhausted, maxAttempts, lastStatus, ErrRateLimited)
	}
	return nil, fmt.Errorf("%w: %d attempts, last status %d", ErrRetriesExhausted, maxAttempts, lastStatus)
}

// Close releases idle connections held by the underlying pool.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

// backoffDelay calculates the delay before the attempt after `attempt`.
// Formula: min(base * factor^attempt + jitter, MaxDelay). Jitter defaults to
// zero so the delay is purely attempt-indexed exponential.
func (c *Client) backoffDelay(attempt int) time.Duration {
	factor := c.config.BackoffFactor
	if factor < 1.0 {
		factor = 2.0
	}

	delay := float64(c.config.BaseDelay)
	for i := 0; i < attempt; i++ {
		delay *= factor
	}

	if c.config.Jitter > 0 {
		delay += delay * c.config.Jitter * rand.Float64()
	}

	if c.config.MaxDelay > 0 && time.Duration(delay) > c.config.MaxDelay {
		delay = float64(c.config.MaxDelay)
	}

	return time.Duration(delay)
}

// wait sleeps for the given duration, aborting early on context cancellation.
func (c *Client) wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// retryAfterHint reads the server-supplied wait duration from a rate-limit
// response. Both delta-seconds and HTTP-date forms are accepted.
func retryAfterHint(resp *http.Response) (time.Duration, bool) {
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return 0, false
	}

	if seconds, err := strconv.Atoi(header); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second, true
	}

	if at, err := http.ParseTime(header); err == nil {
		if d := time.Until(at); d > 0 {
			return d, true
		}
	}

	return 0, false
}

// drain discards and closes a response body so the connection can be reused.
func drain(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
