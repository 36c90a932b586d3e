// Package httpclient provides a JSON HTTP client with retry logic and rate
// limiting for calls to remote data services.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/archon-research/ledger-engine/internal/pkg/retry"
)

// Config holds the configuration for the HTTP client.
type Config struct {
	Timeout        time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
	RateLimit      rate.Limit
	RateBurst      int
}

// DefaultConfig returns sensible defaults for the HTTP client.
func DefaultConfig() Config {
	return Config{
		Timeout:        10 * time.Second,
		MaxRetries:     3,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		BackoffFactor:  2.0,
		RateLimit:      rate.Limit(50),
		RateBurst:      10,
	}
}

// Request describes one call. Body, when set, is JSON-encoded.
type Request struct {
	Method  string
	URL     string
	Query   url.Values
	Headers map[string]string
	Body    any
}

// Response carries the parts of the reply callers inspect besides the body.
type Response struct {
	StatusCode int
	Header     http.Header
}

// StatusError is returned for 4xx replies. It is never retried.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("client error (HTTP %d): %s", e.StatusCode, e.Body)
}

// ErrUnavailable marks a request that exhausted its retries against a failing
// or unreachable server.
var ErrUnavailable = errors.New("remote service unavailable")

// Client wraps an HTTP client with retry logic and rate limiting.
type Client struct {
	httpClient  *http.Client
	limiter     *rate.Limiter
	retryConfig retry.Config
	logger      *slog.Logger
}

// NewClient creates a new HTTP client with the given configuration. httpClient
// may be nil.
func NewClient(cfg Config, httpClient *http.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = defaults.RateLimit
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = defaults.RateBurst
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		httpClient: httpClient,
		limiter:    rate.NewLimiter(cfg.RateLimit, cfg.RateBurst),
		retryConfig: retry.Config{
			MaxRetries:     cfg.MaxRetries,
			InitialBackoff: cfg.InitialBackoff,
			MaxBackoff:     cfg.MaxBackoff,
			BackoffFactor:  cfg.BackoffFactor,
		},
		logger: logger,
	}
}

// Do performs the request with retry logic and rate limiting and decodes a
// JSON reply into result when result is non-nil. Server errors, 429s and
// transport failures are retried; 4xx replies return a *StatusError at once.
func (c *Client) Do(ctx context.Context, req Request, result any) (*Response, error) {
	isRetryable := func(err error) bool {
		var nonRetryable *NonRetryableError
		return !errors.As(err, &nonRetryable)
	}

	onRetry := func(attempt int, err error, backoff time.Duration) {
		c.logger.Warn("request failed, retrying",
			"method", req.Method,
			"attempt", attempt,
			"maxRetries", c.retryConfig.MaxRetries,
			"backoff", backoff,
			"error", err,
		)
	}

	resp, err := retry.Do(ctx, c.retryConfig, isRetryable, onRetry, func() (*Response, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, WrapNonRetryable(fmt.Errorf("rate limiter: %w", err))
		}
		return c.doSingleRequest(ctx, req, result)
	})
	if err != nil {
		var nonRetryable *NonRetryableError
		if errors.As(err, &nonRetryable) {
			return nil, nonRetryable.Unwrap()
		}
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return resp, nil
}

func (c *Client) doSingleRequest(ctx context.Context, reqCfg Request, result any) (*Response, error) {
	target := reqCfg.URL
	if len(reqCfg.Query) > 0 {
		target += "?" + reqCfg.Query.Encode()
	}

	var body io.Reader
	if reqCfg.Body != nil {
		payload, err := json.Marshal(reqCfg.Body)
		if err != nil {
			return nil, WrapNonRetryable(fmt.Errorf("encoding request body: %w", err))
		}
		body = bytes.NewReader(payload)
	}

	method := reqCfg.Method
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, WrapNonRetryable(fmt.Errorf("creating request: %w", err))
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range reqCfg.Headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, WrapNonRetryable(fmt.Errorf("HTTP request failed: %w", err))
		}
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn("failed to close response body", "error", closeErr)
		}
	}()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("rate limited (HTTP 429)")
	}

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("server error (HTTP %d)", resp.StatusCode)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, WrapNonRetryable(&StatusError{StatusCode: resp.StatusCode, Body: string(respBody)})
	}

	if result != nil && len(bytes.TrimSpace(respBody)) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return nil, WrapNonRetryable(fmt.Errorf("parsing response: %w", err))
		}
	}

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header}, nil
}

// NonRetryableError wraps errors that should not be retried.
type NonRetryableError struct {
	err error
}

func (e *NonRetryableError) Error() string {
	return e.err.Error()
}

func (e *NonRetryableError) Unwrap() error {
	return e.err
}

// WrapNonRetryable wraps an error to indicate it should not be retried.
func WrapNonRetryable(err error) error {
	return &NonRetryableError{err: err}
}
