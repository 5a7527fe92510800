package match

import (
	"context"
	"hash/fnv"
	"log/slog"
	"time"

	"github.com/creatormatch/scout/internal/catalog"
	"github.com/creatormatch/scout/internal/embedding"
	"github.com/creatormatch/scout/internal/model"
	"github.com/creatormatch/scout/internal/search"
)

// Syncer keeps the vector index in step with the catalog. Creators whose
// profile text changed since the last pass are re-embedded (unless the
// catalog source already carries their vector) and upserted; unchanged
// creators are skipped. Upserts are idempotent, so a crashed pass just
// repeats work on the next tick.
type Syncer struct {
	cache    *catalog.Cache
	index    search.Index
	embedder embedding.Provider
	interval time.Duration
	logger   *slog.Logger

	// lastHash tracks the profile-text hash last pushed per creator.
	// Owned by the single sync goroutine.
	lastHash map[string]uint64
}

// NewSyncer creates a Syncer. interval <= 0 defaults to the catalog TTL's
// neighborhood of five minutes.
func NewSyncer(cache *catalog.Cache, index search.Index, embedder embedding.Provider, interval time.Duration, logger *slog.Logger) *Syncer {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Syncer{
		cache:    cache,
		index:    index,
		embedder: embedder,
		interval: interval,
		logger:   logger,
		lastHash: make(map[string]uint64),
	}
}

// Run performs an initial sync and then loops on the interval until ctx is
// canceled. Errors are logged; the loop keeps going.
func (s *Syncer) Run(ctx context.Context) {
	if err := s.Sync(ctx); err != nil {
		s.logger.Warn("sync: initial pass failed", "error", err)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Sync(ctx); err != nil {
				s.logger.Warn("sync: pass failed", "error", err)
			}
		}
	}
}

// Sync pushes changed creators into the index. Safe to call manually, but
// not concurrently with Run.
func (s *Syncer) Sync(ctx context.Context) error {
	creators := s.cache.All()

	var changed, toEmbed []model.Creator
	newHashes := make(map[string]uint64, len(creators))
	for _, c := range creators {
		h := hashText(c.ProfileText())
		newHashes[c.ID] = h
		if s.lastHash[c.ID] == h {
			continue
		}
		if len(c.Embedding) > 0 && len(c.Embedding) == s.embedder.Dimensions() {
			changed = append(changed, c)
		} else {
			toEmbed = append(toEmbed, c)
		}
	}

	if len(changed) == 0 && len(toEmbed) == 0 {
		return nil
	}

	if len(toEmbed) > 0 {
		texts := make([]string, len(toEmbed))
		for i, c := range toEmbed {
			texts[i] = c.ProfileText()
		}
		vecs, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return err
		}
		for i := range toEmbed {
			toEmbed[i].Embedding = vecs[i]
		}
		changed = append(changed, toEmbed...)
	}

	points := make([]search.Point, len(changed))
	for i, c := range changed {
		points[i] = search.Point{
			CreatorID:     c.ID,
			Embedding:     c.Embedding,
			Region:        c.Region,
			PrimaryNiches: c.Analysis.PrimaryNiches,
			FollowerCount: c.FollowerCount,
		}
	}
	if err := s.index.Upsert(ctx, points); err != nil {
		return err
	}

	for _, c := range changed {
		s.lastHash[c.ID] = newHashes[c.ID]
	}
	s.logger.Info("sync: index updated", "upserted", len(changed), "catalog_size", len(creators))
	return nil
}

func hashText(text string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	return h.Sum64()
}
