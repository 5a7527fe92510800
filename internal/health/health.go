// Package health folds per-dependency breaker states and rolling outcome
// windows into the service-level health report. Vector index and embedding
// provider are critical: either one's breaker being open makes the service
// critical. The completion provider only degrades it, since matching still
// works with templated reasoning.
package health

import (
	"sync"
	"time"

	"github.com/creatormatch/scout/internal/model"
	"github.com/creatormatch/scout/internal/resilience"
)

// Service status levels, ordered by severity.
const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
	StatusCritical = "critical"
)

// windowSize is how many terminal outcomes each dependency tracker keeps.
const windowSize = 50

// fallbackMemory is how long a rule-only fallback keeps the service degraded.
const fallbackMemory = time.Minute

// Tracker records the last windowSize terminal outcomes for one dependency.
// Implements resilience.Observer.
type Tracker struct {
	mu       sync.Mutex
	outcomes []bool // ring buffer
	next     int
	filled   bool
	lastErr  string
}

// NewTracker creates an empty outcome window.
func NewTracker() *Tracker {
	return &Tracker{outcomes: make([]bool, windowSize)}
}

// Success records a successful call.
func (t *Tracker) Success() { t.record(true, "") }

// Failure records a failed call.
func (t *Tracker) Failure(err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	t.record(false, msg)
}

func (t *Tracker) record(ok bool, errMsg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.outcomes[t.next] = ok
	t.next = (t.next + 1) % len(t.outcomes)
	if t.next == 0 {
		t.filled = true
	}
	if !ok {
		t.lastErr = errMsg
	}
}

// UptimePct is the success fraction over the window, in [0,1]. An empty
// window reports 1: a dependency that was never called is not unhealthy.
func (t *Tracker) UptimePct() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	total := len(t.outcomes)
	if !t.filled {
		total = t.next
	}
	if total == 0 {
		return 1
	}
	ok := 0
	for i := 0; i < total; i++ {
		if t.outcomes[i] {
			ok++
		}
	}
	return float64(ok) / float64(total)
}

// LastError returns the most recent failure message, empty if none.
func (t *Tracker) LastError() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastErr
}

// dependency is one registered external dependency.
type dependency struct {
	name     string
	critical bool
	breaker  *resilience.Breaker
	tracker  *Tracker
}

// Aggregator computes the composite health snapshot.
type Aggregator struct {
	version     string
	startedAt   time.Time
	catalogSize func() int

	mu           sync.Mutex
	deps         []dependency
	lastFallback time.Time

	now func() time.Time
}

// NewAggregator creates an aggregator. catalogSize reads the live catalog
// length; pass nil when no catalog is wired (tests).
func NewAggregator(version string, catalogSize func() int) *Aggregator {
	return &Aggregator{
		version:     version,
		startedAt:   time.Now(),
		catalogSize: catalogSize,
		now:         time.Now,
	}
}

// Register adds a dependency. Critical dependencies escalate an open breaker
// to critical status; non-critical ones only degrade.
func (a *Aggregator) Register(name string, critical bool, breaker *resilience.Breaker, tracker *Tracker) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.deps = append(a.deps, dependency{name: name, critical: critical, breaker: breaker, tracker: tracker})
}

// NoteFallback records that a request was served by the rule-only fallback
// path. Recent fallbacks keep the service degraded even after breakers close.
func (a *Aggregator) NoteFallback() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastFallback = a.now()
}

// Snapshot builds the current health report.
func (a *Aggregator) Snapshot() model.HealthResponse {
	a.mu.Lock()
	deps := make([]dependency, len(a.deps))
	copy(deps, a.deps)
	lastFallback := a.lastFallback
	a.mu.Unlock()

	status := StatusHealthy
	report := make([]model.DependencyHealth, 0, len(deps))
	for _, dep := range deps {
		state := dep.breaker.State()
		report = append(report, model.DependencyHealth{
			Name:      dep.name,
			State:     state.String(),
			LastError: dep.tracker.LastError(),
			UptimePct: dep.tracker.UptimePct(),
		})

		switch state {
		case resilience.StateOpen:
			if dep.critical {
				status = StatusCritical
			} else {
				status = worse(status, StatusDegraded)
			}
		case resilience.StateHalfOpen:
			status = worse(status, StatusDegraded)
		}
	}

	if !lastFallback.IsZero() && a.now().Sub(lastFallback) < fallbackMemory {
		status = worse(status, StatusDegraded)
	}

	size := 0
	if a.catalogSize != nil {
		size = a.catalogSize()
	}

	return model.HealthResponse{
		Status:       status,
		Version:      a.version,
		Dependencies: report,
		CatalogSize:  size,
		Uptime:       int64(a.now().Sub(a.startedAt).Seconds()),
	}
}

// worse returns the more severe of two statuses.
func worse(a, b string) string {
	if a == StatusCritical || b == StatusCritical {
		return StatusCritical
	}
	if a == StatusDegraded || b == StatusDegraded {
		return StatusDegraded
	}
	return StatusHealthy
}
