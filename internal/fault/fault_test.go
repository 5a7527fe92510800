package fault

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	base := errors.New("connection refused")

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"classified error", New(KindUnavailable, "search.query", base), KindUnavailable},
		{"wrapped classified error", fmt.Errorf("outer: %w", New(KindThrottled, "embed", base)), KindThrottled},
		{"context deadline", context.DeadlineExceeded, KindDeadline},
		{"wrapped cancellation", fmt.Errorf("call: %w", context.Canceled), KindDeadline},
		{"plain error", base, KindUnknown},
		{"nil-adjacent unknown", errors.New("x"), KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(New(KindThrottled, "embed", nil)))
	assert.True(t, Retryable(New(KindUnavailable, "query", nil)))

	assert.False(t, Retryable(New(KindConfig, "embed", nil)))
	assert.False(t, Retryable(New(KindCircuitOpen, "query", nil)))
	assert.False(t, Retryable(New(KindDeadline, "query", nil)))
	assert.False(t, Retryable(New(KindValidation, "match", nil)))
	assert.False(t, Retryable(errors.New("unclassified")))
}

func TestRetryAfterHint(t *testing.T) {
	err := &Error{Kind: KindThrottled, Op: "embed", RetryAfter: 2 * time.Second}
	assert.Equal(t, 2*time.Second, RetryAfter(fmt.Errorf("wrap: %w", err)))
	assert.Zero(t, RetryAfter(errors.New("plain")))
}

func TestErrorString(t *testing.T) {
	err := New(KindUnavailable, "search.query", errors.New("dial tcp: refused"))
	assert.Equal(t, "search.query: unavailable: dial tcp: refused", err.Error())

	bare := &Error{Kind: KindCircuitOpen, Op: "embedding.embed"}
	assert.Equal(t, "embedding.embed: circuit_open", bare.Error())
}
