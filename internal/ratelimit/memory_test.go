package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLimiterBurstThenDeny(t *testing.T) {
	now := time.Now()
	m := NewMemoryLimiter(1, 3, WithNow(func() time.Time { return now }))
	defer m.Close()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := m.Allow(ctx, "client-a")
		require.NoError(t, err)
		assert.True(t, ok, "request %d within burst", i+1)
	}

	ok, err := m.Allow(ctx, "client-a")
	require.NoError(t, err)
	assert.False(t, ok, "burst exhausted")
}

func TestMemoryLimiterRefills(t *testing.T) {
	now := time.Now()
	m := NewMemoryLimiter(2, 2, WithNow(func() time.Time { return now }))
	defer m.Close()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, _ := m.Allow(ctx, "client-a")
		require.True(t, ok)
	}
	ok, _ := m.Allow(ctx, "client-a")
	require.False(t, ok)

	// One second at 2 rps refills two tokens.
	now = now.Add(time.Second)
	for i := 0; i < 2; i++ {
		ok, err := m.Allow(ctx, "client-a")
		require.NoError(t, err)
		assert.True(t, ok, "refilled request %d", i+1)
	}
	ok, _ = m.Allow(ctx, "client-a")
	assert.False(t, ok)
}

func TestMemoryLimiterIndependentKeys(t *testing.T) {
	now := time.Now()
	m := NewMemoryLimiter(1, 1, WithNow(func() time.Time { return now }))
	defer m.Close()
	ctx := context.Background()

	okA, _ := m.Allow(ctx, "client-a")
	okB, _ := m.Allow(ctx, "client-b")
	assert.True(t, okA)
	assert.True(t, okB)

	okA, _ = m.Allow(ctx, "client-a")
	assert.False(t, okA, "client-a exhausted its own bucket")
}

func TestMemoryLimiterRefillCapsAtBurst(t *testing.T) {
	now := time.Now()
	m := NewMemoryLimiter(100, 2, WithNow(func() time.Time { return now }))
	defer m.Close()
	ctx := context.Background()

	ok, _ := m.Allow(ctx, "client-a")
	require.True(t, ok)

	// Long idle period must not accumulate more than burst tokens.
	now = now.Add(time.Hour)
	allowed := 0
	for i := 0; i < 10; i++ {
		if ok, _ := m.Allow(ctx, "client-a"); ok {
			allowed++
		}
	}
	assert.Equal(t, 2, allowed)
}

func TestMemoryLimiterEvictStale(t *testing.T) {
	now := time.Now()
	m := NewMemoryLimiter(1, 1, WithNow(func() time.Time { return now }))
	defer m.Close()
	ctx := context.Background()

	_, _ = m.Allow(ctx, "client-a")
	require.Len(t, m.buckets, 1)

	now = now.Add(staleAfter + time.Minute)
	m.evictStale()
	assert.Empty(t, m.buckets)
}

func TestNoopLimiter(t *testing.T) {
	var l NoopLimiter
	for i := 0; i < 100; i++ {
		ok, err := l.Allow(context.Background(), "anyone")
		require.NoError(t, err)
		require.True(t, ok)
	}
	assert.NoError(t, l.Close())
}
