// Package catalog maintains the in-memory creator catalog. A Source loads
// the full creator list from its backing store; the Cache holds an immutable
// snapshot behind an atomic pointer and refreshes it on a TTL in a single
// background worker. Readers never block on a refresh and never observe a
// partially updated catalog.
package catalog

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/creatormatch/scout/internal/model"
)

// DefaultTTL is the refresh interval when none is configured.
const DefaultTTL = 5 * time.Minute

// Source loads the complete creator list. Implementations must return a
// slice the caller may retain; they are invoked from a single goroutine.
type Source interface {
	ListAll(ctx context.Context) ([]model.Creator, error)
}

// snapshot is one immutable catalog generation. Swapped whole, never mutated.
type snapshot struct {
	creators []model.Creator
	byID     map[string]int
	loadedAt time.Time
}

var emptySnapshot = &snapshot{byID: map[string]int{}}

// Cache is the TTL-refreshed catalog snapshot holder.
type Cache struct {
	source Source
	ttl    time.Duration
	logger *slog.Logger

	snap     atomic.Pointer[snapshot]
	refreshc chan struct{}
}

// NewCache creates a Cache around source. The catalog is empty until the
// first Refresh.
func NewCache(source Source, ttl time.Duration, logger *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		source:   source,
		ttl:      ttl,
		logger:   logger,
		refreshc: make(chan struct{}, 1),
	}
	c.snap.Store(emptySnapshot)
	return c
}

// Refresh loads a new snapshot from the source and swaps it in. On failure
// the previous snapshot stays live and the error is returned.
func (c *Cache) Refresh(ctx context.Context) error {
	creators, err := c.source.ListAll(ctx)
	if err != nil {
		c.logger.Warn("catalog: refresh failed, keeping previous snapshot",
			"error", err, "size", c.Len())
		return err
	}

	next := &snapshot{
		creators: make([]model.Creator, 0, len(creators)),
		byID:     make(map[string]int, len(creators)),
		loadedAt: time.Now(),
	}
	for _, creator := range creators {
		if creator.ID == "" {
			c.logger.Warn("catalog: dropping creator with empty id", "nickname", creator.Nickname)
			continue
		}
		if _, dup := next.byID[creator.ID]; dup {
			c.logger.Warn("catalog: dropping duplicate creator id", "creator_id", creator.ID)
			continue
		}
		creator.Normalize()
		next.byID[creator.ID] = len(next.creators)
		next.creators = append(next.creators, creator)
	}

	c.snap.Store(next)
	c.logger.Info("catalog: refreshed", "size", len(next.creators))
	return nil
}

// Start performs an initial load and spawns the refresh worker, which runs
// until ctx is canceled. The initial load's error is returned so the caller
// can decide whether an empty catalog at boot is fatal; the worker runs
// either way.
func (c *Cache) Start(ctx context.Context) error {
	err := c.Refresh(ctx)
	go c.run(ctx)
	return err
}

// Poke requests an out-of-band refresh from the worker. Non-blocking; a
// refresh already pending absorbs the request.
func (c *Cache) Poke() {
	select {
	case c.refreshc <- struct{}{}:
	default:
	}
}

func (c *Cache) run(ctx context.Context) {
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-c.refreshc:
		}
		// Refresh errors are logged inside Refresh; the worker keeps going.
		_ = c.Refresh(ctx)
	}
}

// Get returns the creator with the given ID from the current snapshot.
func (c *Cache) Get(id string) (model.Creator, bool) {
	snap := c.snap.Load()
	i, ok := snap.byID[id]
	if !ok {
		return model.Creator{}, false
	}
	return snap.creators[i], true
}

// All returns the current snapshot's creators. The slice is shared and must
// not be mutated.
func (c *Cache) All() []model.Creator {
	return c.snap.Load().creators
}

// Len returns the current catalog size.
func (c *Cache) Len() int {
	return len(c.snap.Load().creators)
}

// LastRefresh returns when the current snapshot was loaded, zero if never.
func (c *Cache) LastRefresh() time.Time {
	return c.snap.Load().loadedAt
}

// Stale reports whether the current snapshot has outlived twice the TTL,
// which means at least one background refresh has failed.
func (c *Cache) Stale() bool {
	loadedAt := c.LastRefresh()
	if loadedAt.IsZero() {
		return true
	}
	return time.Since(loadedAt) > 2*c.ttl
}
