// internal/common/http/client.go
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// StatusError is returned for non-2xx answers.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// Client is a timeout-bounded HTTP client that retries JSON calls.
type Client struct {
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
	onRetry    func(attempt int, err error)
}

type Option func(*Client)

// WithRetries allows n extra attempts, waiting base, 2*base, 4*base... between them.
func WithRetries(n int, base time.Duration) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxRetries = n
		}
		if base > 0 {
			c.baseDelay = base
		}
	}
}

// WithRetryHook is called after every failed attempt that will be retried.
func WithRetryHook(fn func(attempt int, err error)) Option {
	return func(c *Client) {
		c.onRetry = fn
	}
}

func NewClient(timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseDelay:  100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Attempts is the total number of tries a call may make.
func (c *Client) Attempts() int {
	return c.maxRetries + 1
}

// PostJSON sends in as JSON and decodes a 2xx answer into out. Transport
// errors and non-2xx answers are retried; a body that does not decode is not.
// Cancellation of ctx is returned as ctx.Err().
func (c *Client) PostJSON(ctx context.Context, url string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.baseDelay * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		// The body reader is consumed by each attempt, so the request is rebuilt.
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err == nil {
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				defer resp.Body.Close()
				if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
					return fmt.Errorf("decode response: %w", err)
				}
				return nil
			}
			resp.Body.Close()
			err = &StatusError{Code: resp.StatusCode}
		}
		lastErr = err

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt < c.maxRetries && c.onRetry != nil {
			c.onRetry(attempt+1, err)
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", c.Attempts(), lastErr)
}
