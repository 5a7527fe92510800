// Package resilience wraps outbound dependency calls with per-dependency
// circuit breakers and bounded retries. Composition is breaker(retry(op)):
// the breaker counts terminal outcomes after retries complete, never the
// intermediate attempts.
package resilience

import (
	"sync"
	"time"

	"github.com/creatormatch/scout/internal/fault"
)

// State is a circuit breaker state.
type State int32

const (
	// StateClosed admits all calls.
	StateClosed State = iota
	// StateHalfOpen admits a single probe call.
	StateHalfOpen
	// StateOpen rejects calls immediately until the reset timeout elapses.
	StateOpen
)

// String returns the snake_case name used in logs and health responses.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half_open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes one circuit breaker.
type BreakerConfig struct {
	// FailureThreshold is the consecutive terminal failure count that trips
	// the breaker. Non-positive values fall back to 5.
	FailureThreshold int
	// ResetTimeout is how long the breaker stays open before admitting a
	// probe. Non-positive values fall back to 30s.
	ResetTimeout time.Duration
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 30 * time.Second
	}
	return c
}

// Breaker is a process-local circuit breaker for one dependency.
// Safe for concurrent use.
type Breaker struct {
	name string
	cfg  BreakerConfig
	now  func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
	lastErr  error
}

// BreakerOption configures a Breaker.
type BreakerOption func(*Breaker)

// WithClock injects a clock, used by tests to step through the open window.
func WithClock(now func() time.Time) BreakerOption {
	return func(b *Breaker) { b.now = now }
}

// NewBreaker creates a closed breaker for the named dependency.
func NewBreaker(name string, cfg BreakerConfig, opts ...BreakerOption) *Breaker {
	b := &Breaker{name: name, cfg: cfg.withDefaults(), now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns the dependency name the breaker guards.
func (b *Breaker) Name() string { return b.name }

// Allow reports whether a call may proceed. In the open state it fails with
// a circuit_open fault until the reset timeout elapses, then transitions to
// half-open and admits exactly one probe; concurrent callers during the
// probe are rejected.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cfg.ResetTimeout {
			return fault.Newf(fault.KindCircuitOpen, "breaker."+b.name, "circuit open, retry after %s", b.cfg.ResetTimeout)
		}
		b.state = StateHalfOpen
		b.probing = true
		return nil
	case StateHalfOpen:
		if b.probing {
			return fault.Newf(fault.KindCircuitOpen, "breaker."+b.name, "probe in flight")
		}
		b.probing = true
		return nil
	default:
		return nil
	}
}

// RecordSuccess resets the failure counter and closes the breaker.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = StateClosed
	b.failures = 0
	b.probing = false
	b.lastErr = nil
}

// RecordFailure registers a terminal failure. A half-open probe failure
// reopens immediately; in the closed state the breaker opens once the
// consecutive failure count reaches the threshold.
func (b *Breaker) RecordFailure(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastErr = err
	switch b.state {
	case StateHalfOpen:
		b.state = StateOpen
		b.openedAt = b.now()
		b.probing = false
	default:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.state = StateOpen
			b.openedAt = b.now()
		}
	}
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	// An expired open window is reported as half-open: the next caller's
	// Allow would be admitted as a probe.
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cfg.ResetTimeout {
		return StateHalfOpen
	}
	return b.state
}

// LastError returns the most recent terminal failure, or nil.
func (b *Breaker) LastError() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastErr
}
