package resilience

import (
	"context"

	"github.com/creatormatch/scout/internal/fault"
)

// Observer receives the terminal outcome of each guarded call. Used by the
// health aggregator to keep per-dependency uptime windows.
type Observer interface {
	Success()
	Failure(err error)
}

// Guard combines a breaker and a retrier for one dependency. All outbound
// adapter calls go through Guard.Do (or the generic Execute).
type Guard struct {
	breaker  *Breaker
	retrier  *Retrier
	observer Observer
}

// GuardOption configures a Guard.
type GuardOption func(*Guard)

// WithObserver attaches an outcome observer.
func WithObserver(o Observer) GuardOption {
	return func(g *Guard) { g.observer = o }
}

// NewGuard wires a breaker around a retrier.
func NewGuard(breaker *Breaker, retrier *Retrier, opts ...GuardOption) *Guard {
	g := &Guard{breaker: breaker, retrier: retrier}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Breaker exposes the underlying breaker for health observation.
func (g *Guard) Breaker() *Breaker { return g.breaker }

// Do runs op under breaker(retry(op)). The breaker sees only terminal
// outcomes: a call that eventually succeeds after retries counts as one
// success, a call that exhausts its retries counts as one failure.
// Caller errors (validation, config, not-found) pass through without
// touching the failure counter — they say nothing about dependency health.
func (g *Guard) Do(ctx context.Context, op func(ctx context.Context) error) error {
	if err := g.breaker.Allow(); err != nil {
		return err
	}
	err := g.retrier.Do(ctx, op)
	if err == nil {
		g.breaker.RecordSuccess()
		if g.observer != nil {
			g.observer.Success()
		}
		return nil
	}
	if countsAsFailure(err) {
		g.breaker.RecordFailure(err)
		if g.observer != nil {
			g.observer.Failure(err)
		}
	}
	return err
}

// Execute is Guard.Do for operations returning a value.
func Execute[T any](ctx context.Context, g *Guard, op func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := g.Do(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// countsAsFailure reports whether a terminal error reflects dependency
// ill-health.
func countsAsFailure(err error) bool {
	switch fault.KindOf(err) {
	case fault.KindValidation, fault.KindConfig, fault.KindNotFound:
		return false
	default:
		return true
	}
}
