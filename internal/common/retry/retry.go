// Package retry holds the single backoff policy injected into every
// external call site (search, scrape, CRM, LLM).
package retry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Policy bounds retries of one external call.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultPolicy is used when no policy is configured.
var DefaultPolicy = Policy{
	MaxAttempts: 3,
	BaseDelay:   500 * time.Millisecond,
	MaxDelay:    8 * time.Second,
}

// NoRetry runs an operation exactly once.
var NoRetry = Policy{MaxAttempts: 1}

// FromMillis builds a Policy from config values expressed in milliseconds.
func FromMillis(maxAttempts, baseDelayMs, maxDelayMs int) Policy {
	return Policy{
		MaxAttempts: maxAttempts,
		BaseDelay:   time.Duration(baseDelayMs) * time.Millisecond,
		MaxDelay:    time.Duration(maxDelayMs) * time.Millisecond,
	}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultPolicy.BaseDelay
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	return p
}

func (p Policy) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.MaxInterval = p.MaxDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0.2
	return b
}

// Do runs op until it succeeds, returns a Permanent error, the context ends
// or MaxAttempts is reached.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	p = p.normalized()
	return backoff.Retry(ctx, func() (T, error) {
		return op(ctx)
	},
		backoff.WithBackOff(p.backOff()),
		backoff.WithMaxTries(uint(p.MaxAttempts)),
		backoff.WithMaxElapsedTime(0),
	)
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// StatusError is returned by HTTP providers for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// ClassifyStatus turns an HTTP status into a retryable or permanent error.
// 429 and 5xx are retried, other 4xx are not.
func ClassifyStatus(statusCode int, body string) error {
	err := &StatusError{StatusCode: statusCode, Body: truncate(body, 512)}
	if statusCode == http.StatusTooManyRequests || statusCode >= 500 {
		return err
	}
	return backoff.Permanent(err)
}

// IsStatus reports whether err carries the given HTTP status.
func IsStatus(err error, statusCode int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == statusCode
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
