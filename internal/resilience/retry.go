package resilience

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/creatormatch/scout/internal/fault"
)

// RetryConfig tunes the retry policy for one dependency.
type RetryConfig struct {
	// MaxAttempts is the total attempt budget including the first call.
	// Non-positive values fall back to 3.
	MaxAttempts int
	// BaseDelay seeds the exponential backoff. Non-positive falls back to 200ms.
	BaseDelay time.Duration
	// MaxDelay caps each computed delay. Non-positive falls back to 5s.
	MaxDelay time.Duration
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 200 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 5 * time.Second
	}
	return c
}

// Retrier re-executes operations that fail with retryable faults, backing
// off exponentially with ±20% jitter and honoring provider retry-after
// hints. Non-retryable errors propagate immediately.
type Retrier struct {
	cfg RetryConfig
	// sleep waits for d or until ctx is done. Injectable for tests.
	sleep func(ctx context.Context, d time.Duration) error
	// jitter returns a uniform value in [0,1). Injectable for tests.
	jitter func() float64
}

// RetrierOption configures a Retrier.
type RetrierOption func(*Retrier)

// WithSleep injects the wait function, used by tests to capture delays.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) RetrierOption {
	return func(r *Retrier) { r.sleep = fn }
}

// WithJitter injects the jitter source, used by tests for determinism.
func WithJitter(fn func() float64) RetrierOption {
	return func(r *Retrier) { r.jitter = fn }
}

// NewRetrier creates a Retrier with the given policy.
func NewRetrier(cfg RetryConfig, opts ...RetrierOption) *Retrier {
	r := &Retrier{
		cfg:    cfg.withDefaults(),
		sleep:  sleepCtx,
		jitter: rand.Float64, //nolint:gosec // backoff jitter doesn't need crypto-strength randomness
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Do executes op up to MaxAttempts times. Only faults classified retryable
// (throttled, unavailable) are retried; the backoff before retry n is
// baseDelay*2^(n-1) with ±20% jitter, capped at MaxDelay, and raised to the
// provider's retry-after hint when that is larger. Context expiry aborts
// pending retries with the context error.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context) error) error {
	var err error
	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = op(ctx)
		if err == nil || !fault.Retryable(err) {
			return err
		}
		if attempt == r.cfg.MaxAttempts {
			break
		}
		if sleepErr := r.sleep(ctx, r.delay(attempt, fault.RetryAfter(err))); sleepErr != nil {
			return sleepErr
		}
	}
	return err
}

// delay computes the backoff after the n-th failed attempt (1-indexed).
func (r *Retrier) delay(attempt int, retryAfter time.Duration) time.Duration {
	d := r.cfg.BaseDelay << (attempt - 1)
	if d > r.cfg.MaxDelay || d <= 0 {
		d = r.cfg.MaxDelay
	}
	// Jitter scales into [0.8, 1.2), then re-cap.
	d = time.Duration(float64(d) * (0.8 + 0.4*r.jitter()))
	if d > r.cfg.MaxDelay {
		d = r.cfg.MaxDelay
	}
	if retryAfter > d {
		d = retryAfter
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
