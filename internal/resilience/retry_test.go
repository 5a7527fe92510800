package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creatormatch/scout/internal/fault"
)

func throttled(retryAfter time.Duration) error {
	return &fault.Error{Kind: fault.KindThrottled, Op: "embed", RetryAfter: retryAfter, Err: errors.New("429")}
}

func unavailable() error {
	return fault.New(fault.KindUnavailable, "query", errors.New("503"))
}

// capturedRetrier returns a retrier whose sleeps are recorded instead of slept.
func capturedRetrier(cfg RetryConfig, jitter float64, delays *[]time.Duration) *Retrier {
	return NewRetrier(cfg,
		WithSleep(func(_ context.Context, d time.Duration) error {
			*delays = append(*delays, d)
			return nil
		}),
		WithJitter(func() float64 { return jitter }),
	)
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	var delays []time.Duration
	r := capturedRetrier(RetryConfig{MaxAttempts: 3, BaseDelay: 100 * time.Millisecond, MaxDelay: 5 * time.Second}, 0.5, &delays)

	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return unavailable()
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	require.Len(t, delays, 2)
}

func TestRetryExponentialBackoffWithinJitterBounds(t *testing.T) {
	base := 100 * time.Millisecond
	for _, jitter := range []float64{0, 0.5, 0.999} {
		var delays []time.Duration
		r := capturedRetrier(RetryConfig{MaxAttempts: 4, BaseDelay: base, MaxDelay: 5 * time.Second}, jitter, &delays)

		err := r.Do(context.Background(), func(context.Context) error { return unavailable() })
		require.Error(t, err)
		require.Len(t, delays, 3)

		for n, d := range delays {
			expected := base << n
			lower := time.Duration(float64(expected) * 0.8)
			upper := time.Duration(float64(expected) * 1.2)
			assert.GreaterOrEqual(t, d, lower, "attempt %d jitter %v", n+1, jitter)
			assert.LessOrEqual(t, d, upper, "attempt %d jitter %v", n+1, jitter)
		}
	}
}

func TestRetryDelayCappedAtMax(t *testing.T) {
	var delays []time.Duration
	r := capturedRetrier(RetryConfig{MaxAttempts: 6, BaseDelay: time.Second, MaxDelay: 2 * time.Second}, 0.999, &delays)

	_ = r.Do(context.Background(), func(context.Context) error { return unavailable() })
	require.Len(t, delays, 5)
	for _, d := range delays {
		assert.LessOrEqual(t, d, 2*time.Second)
	}
}

func TestRetryHonorsRetryAfterHint(t *testing.T) {
	var delays []time.Duration
	r := capturedRetrier(RetryConfig{MaxAttempts: 2, BaseDelay: 100 * time.Millisecond, MaxDelay: 5 * time.Second}, 0, &delays)

	_ = r.Do(context.Background(), func(context.Context) error { return throttled(3 * time.Second) })

	// Hint (3s) exceeds the computed backoff, so the hint wins.
	require.Len(t, delays, 1)
	assert.Equal(t, 3*time.Second, delays[0])
}

func TestRetryHintSmallerThanBackoffIgnored(t *testing.T) {
	var delays []time.Duration
	r := capturedRetrier(RetryConfig{MaxAttempts: 2, BaseDelay: time.Second, MaxDelay: 5 * time.Second}, 0.5, &delays)

	_ = r.Do(context.Background(), func(context.Context) error { return throttled(10 * time.Millisecond) })

	require.Len(t, delays, 1)
	assert.Greater(t, delays[0], 500*time.Millisecond)
}

func TestRetryNonRetryablePropagatesImmediately(t *testing.T) {
	var delays []time.Duration
	r := capturedRetrier(RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Second}, 0.5, &delays)

	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		return fault.New(fault.KindConfig, "search", errors.New("dimension mismatch"))
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, delays)
}

func TestRetryExhaustionReturnsLastError(t *testing.T) {
	var delays []time.Duration
	r := capturedRetrier(RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Second}, 0.5, &delays)

	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		return unavailable()
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.True(t, fault.IsKind(err, fault.KindUnavailable))
}

func TestRetryAbandonedOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := NewRetrier(RetryConfig{MaxAttempts: 5, BaseDelay: time.Millisecond, MaxDelay: time.Second},
		WithSleep(func(ctx context.Context, _ time.Duration) error {
			cancel()
			return ctx.Err()
		}),
	)

	calls := 0
	err := r.Do(ctx, func(context.Context) error {
		calls++
		return unavailable()
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
