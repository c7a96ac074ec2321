package github

import (
	"context"
	"net"
	"time"

	gh "github.com/google/go-github/v57/github"
)

// RetryConfig bounds retries of transient GitHub API failures.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryConfig returns the retry policy used for all API calls.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:     3,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
	}
}

// withRetry runs op, retrying transient failures (network errors, 5xx,
// secondary rate limits) with exponential backoff. Logical/permanent API
// errors return immediately so callers can route them to fallbacks.
func (c *Client) withRetry(ctx context.Context, op func() (*gh.Response, error)) (*gh.Response, error) {
	cfg := c.retry
	if cfg == nil {
		cfg = DefaultRetryConfig()
	}

	backoff := cfg.InitialBackoff
	var resp *gh.Response
	var err error
	for attempt := 0; ; attempt++ {
		resp, err = op()
		if err == nil {
			return resp, nil
		}
		if attempt >= cfg.MaxRetries || !isTransient(resp, err) {
			return resp, err
		}

		select {
		case <-ctx.Done():
			return resp, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}
}

func isTransient(resp *gh.Response, err error) bool {
	if _, ok := err.(*gh.RateLimitError); ok {
		return true
	}
	if _, ok := err.(*gh.AbuseRateLimitError); ok {
		return true
	}
	if _, ok := err.(net.Error); ok {
		return true
	}
	if resp != nil && resp.StatusCode >= 500 {
		return true
	}
	return false
}
