package sources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// DefaultTimeout applies to every provider call that does not configure one.
const DefaultTimeout = 30 * time.Second

// DefaultUserAgent identifies this service to providers.
const DefaultUserAgent = "Helixir-MaterialsAggregator/1.0"

// RequestObserver receives one callback per HTTP attempt. status is 0 when
// the attempt failed before a response arrived.
type RequestObserver interface {
	ObserveUpstreamRequest(source string, status int, duration time.Duration)
}

// HTTPClientConfig tunes the shared provider client. Zero fields take
// defaults; a negative MaxRetries disables retrying.
type HTTPClientConfig struct {
	// Name labels attempts for the Observer, usually the source type.
	Name      string
	Timeout   time.Duration
	RateLimit float64
	BurstSize int

	MaxRetries int
	// RetryDelay doubles per attempt up to MaxRetryDelay.
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration

	UserAgent string
	// APIKey is sent in APIKeyHeader when both are set.
	APIKey       string
	APIKeyHeader string

	Observer RequestObserver
}

func (c HTTPClientConfig) withDefaults() HTTPClientConfig {
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RateLimit == 0 {
		c.RateLimit = 10
	}
	if c.BurstSize == 0 {
		c.BurstSize = 10
	}
	switch {
	case c.MaxRetries == 0:
		c.MaxRetries = 3
	case c.MaxRetries < 0:
		c.MaxRetries = 0
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = time.Second
	}
	if c.MaxRetryDelay == 0 {
		c.MaxRetryDelay = 10 * time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	return c
}

// HTTPClient is the rate-limited, retrying client every adapter calls its
// provider through. It is safe for concurrent use.
type HTTPClient struct {
	client  *http.Client
	limiter *RateLimiter
	config  HTTPClientConfig
}

// NewHTTPClient creates a client from cfg, filling zero fields with the
// package defaults.
func NewHTTPClient(cfg HTTPClientConfig) *HTTPClient {
	cfg = cfg.withDefaults()
	return &HTTPClient{
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: NewRateLimiter(cfg.RateLimit, cfg.BurstSize),
		config:  cfg,
	}
}

// Do sends req, waiting on the rate limiter before every attempt.
//
// Transport errors, 429 and 5xx are retried with exponential backoff; a
// Retry-After header replaces the backoff for that attempt. Once retries run
// out, a retryable status is returned as an unread response for the caller
// to classify, and a transport error is returned as an error. Cancellation
// of req's context ends the loop immediately.
func (c *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	if c.config.APIKey != "" && c.config.APIKeyHeader != "" {
		req.Header.Set(c.config.APIKeyHeader, c.config.APIKey)
	}

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			if err := rewind(req); err != nil {
				return nil, err
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait: %w", err)
		}

		resp, err := c.send(req)
		final := attempt >= c.config.MaxRetries

		var delay time.Duration
		switch {
		case err != nil:
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			if final {
				return nil, fmt.Errorf("request failed after %d attempts: %w", attempt+1, err)
			}
			delay = c.backoff(attempt)
		case final || !retryable(resp.StatusCode):
			return resp, nil
		default:
			delay = c.retryDelay(resp, attempt)
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		}

		if err := sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

func (c *HTTPClient) send(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := c.client.Do(req)
	status := 0
	if err == nil {
		status = resp.StatusCode
	}
	if c.config.Observer != nil {
		c.config.Observer.ObserveUpstreamRequest(c.config.Name, status, time.Since(start))
	}
	return resp, err
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || (status >= 500 && status <= 599)
}

// backoff returns RetryDelay * 2^attempt, capped at MaxRetryDelay.
func (c *HTTPClient) backoff(attempt int) time.Duration {
	d := c.config.RetryDelay << attempt
	if d <= 0 || d > c.config.MaxRetryDelay {
		return c.config.MaxRetryDelay
	}
	return d
}

func (c *HTTPClient) retryDelay(resp *http.Response, attempt int) time.Duration {
	d, ok := ParseRetryAfter(resp.Header.Get("Retry-After"))
	if !ok {
		return c.backoff(attempt)
	}
	return min(d, c.config.MaxRetryDelay)
}

// ParseRetryAfter reads a Retry-After value in delta-seconds or HTTP-date
// form. A date in the past yields zero.
func ParseRetryAfter(v string) (time.Duration, bool) {
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Duration(secs) * time.Second, secs >= 0
	}
	at, err := http.ParseTime(v)
	if err != nil {
		return 0, false
	}
	return max(time.Until(at), 0), true
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// rewind restores a consumed body before a retry.
func rewind(req *http.Request) error {
	if req.Body == nil || req.GetBody == nil {
		return nil
	}
	body, err := req.GetBody()
	if err != nil {
		return fmt.Errorf("rewind request body: %w", err)
	}
	req.Body = body
	return nil
}
