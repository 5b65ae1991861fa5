// Package ratelimit provides a cooperative fixed-window throttle for
// quota-constrained providers. It delays callers and never rejects them.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"meeting-intel/internal/common/logger"
	"meeting-intel/internal/common/metrics"
)

// DefaultWindow is the accounting window used when none is configured.
const DefaultWindow = time.Minute

// Limiter is satisfied by WindowLimiter and by test doubles.
type Limiter interface {
	Acquire(ctx context.Context) error
}

// WindowLimiter admits at most Max calls per Window. A caller arriving after
// the quota is spent sleeps until the window ends, then the count resets.
type WindowLimiter struct {
	name   string
	max    int
	window time.Duration
	logger logger.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	mu          sync.Mutex
	windowStart time.Time
	count       int
}

// Option customises a WindowLimiter.
type Option func(*WindowLimiter)

// WithWindow overrides the window length.
func WithWindow(d time.Duration) Option {
	return func(l *WindowLimiter) {
		if d > 0 {
			l.window = d
		}
	}
}

// WithClock injects the time source and sleeper, used by tests.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(l *WindowLimiter) {
		if now != nil {
			l.now = now
		}
		if sleep != nil {
			l.sleep = sleep
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log logger.Logger) Option {
	return func(l *WindowLimiter) {
		if log != nil {
			l.logger = log
		}
	}
}

// NewWindowLimiter creates a limiter admitting maxPerWindow calls per window.
// A non-positive maxPerWindow is treated as 1.
func NewWindowLimiter(name string, maxPerWindow int, opts ...Option) *WindowLimiter {
	if maxPerWindow < 1 {
		maxPerWindow = 1
	}
	l := &WindowLimiter{
		name:   name,
		max:    maxPerWindow,
		window: DefaultWindow,
		logger: logger.NewNoOpLogger(),
		now:    time.Now,
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Acquire blocks until a slot is available. It only returns an error when
// ctx ends while waiting.
func (l *WindowLimiter) Acquire(ctx context.Context) error {
	for {
		wait, ok := l.tryTake()
		if ok {
			return nil
		}

		metrics.RateLimiterWaits.WithLabelValues(l.name).Inc()
		metrics.RateLimiterWaitSeconds.WithLabelValues(l.name).Add(wait.Seconds())
		l.logger.Debug("rate limit reached, waiting for window", map[string]interface{}{
			"limiter": l.name,
			"wait":    wait.String(),
			"max":     l.max,
		})

		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// tryTake reserves a slot or reports how long until the window resets.
// The lock is never held while sleeping.
func (l *WindowLimiter) tryTake() (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if l.windowStart.IsZero() || now.Sub(l.windowStart) >= l.window {
		l.windowStart = now
		l.count = 0
	}

	if l.count < l.max {
		l.count++
		return 0, true
	}

	wait := l.window - now.Sub(l.windowStart)
	if wait <= 0 {
		wait = time.Millisecond
	}
	return wait, false
}

// InWindow returns the number of slots used in the current window.
func (l *WindowLimiter) InWindow() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.windowStart.IsZero() || l.now().Sub(l.windowStart) >= l.window {
		return 0
	}
	return l.count
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
