// Package search abstracts the external approximate-nearest-neighbor store
// holding creator profile embeddings. The production implementation is
// Qdrant over gRPC; the interface keeps the orchestrator testable with an
// in-memory fake.
package search

import "context"

// Query bounds. Callers requesting more than MaxTopK are clamped, not rejected.
const (
	MinTopK = 1
	MaxTopK = 100
	// UpsertBatchSize caps points per upsert call.
	UpsertBatchSize = 100
)

// Result is one vector-query hit: a creator ID and its raw cosine score.
// The caller hydrates full Creator records from the catalog cache.
type Result struct {
	CreatorID string
	Score     float32
}

// Filter restricts a vector query by creator metadata.
type Filter struct {
	// Region, when non-empty, restricts hits to creators in that region.
	Region string
	// Niches, when non-empty, restricts hits to creators with at least one
	// of these primary niches.
	Niches []string
}

// Point is the data needed to upsert a single creator into the index.
type Point struct {
	CreatorID     string
	Embedding     []float32
	Region        string
	PrimaryNiches []string
	FollowerCount int64
}

// Stats reports index size for observability.
type Stats struct {
	VectorCount uint64
	Dimensions  uint64
}

// Index is the vector index contract. Implementations must be safe for
// concurrent use. Query is idempotent and side-effect free; Upsert is
// idempotent on creator ID.
type Index interface {
	// EnsureIndex creates the index if missing (at-most-once under races;
	// "already exists" is not an error) and verifies dimension and metric.
	EnsureIndex(ctx context.Context) error

	// Query returns up to topK creator IDs sorted descending by cosine
	// score. topK is clamped to [MinTopK, MaxTopK]. A dimension mismatch
	// between vector and index fails fast with a config fault.
	Query(ctx context.Context, vector []float32, topK int, filter Filter) ([]Result, error)

	// Upsert inserts or replaces creator points in batches of at most
	// UpsertBatchSize.
	Upsert(ctx context.Context, points []Point) error

	// Stats returns current index size.
	Stats(ctx context.Context) (Stats, error)

	// Healthy returns nil if the index is reachable.
	Healthy(ctx context.Context) error
}

// ClampTopK bounds a requested candidate pool size to [MinTopK, MaxTopK].
func ClampTopK(topK int) int {
	if topK < MinTopK {
		return MinTopK
	}
	if topK > MaxTopK {
		return MaxTopK
	}
	return topK
}
