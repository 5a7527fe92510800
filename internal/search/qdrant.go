package search

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"golang.org/x/sync/singleflight"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/creatormatch/scout/internal/fault"
)

// creatorNamespace seeds deterministic point IDs: the same creator ID always
// maps to the same UUIDv5, which is what makes Upsert idempotent.
var creatorNamespace = uuid.MustParse("8f3c1c2a-52ad-4a8e-9e55-1f2f6a9a7e10")

// QdrantConfig holds configuration for connecting to Qdrant.
type QdrantConfig struct {
	URL        string // e.g. "https://xyz.cloud.qdrant.io:6333" or "http://localhost:6333"
	APIKey     string
	Collection string
	Dims       uint64
}

// QdrantIndex implements Index backed by Qdrant.
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
	dims       uint64
	logger     *slog.Logger

	healthGroup singleflight.Group
	healthErr   atomic.Value // stores *error (pointer-to-error, never nil pointer; inner error may be nil)
	healthAt    atomic.Int64 // unix nanos of last check
}

// parseQdrantURL extracts host, port, and TLS flag from a Qdrant URL.
// Accepts forms like "https://host:6333", "http://host:6333", or "host:6334".
func parseQdrantURL(rawURL string) (host string, port int, useTLS bool, err error) {
	u, parseErr := url.Parse(rawURL)
	if parseErr != nil || u.Host == "" {
		return "", 0, false, fmt.Errorf("search: invalid qdrant URL: %q", rawURL)
	}

	useTLS = u.Scheme == "https"
	host = u.Hostname()

	if portStr := u.Port(); portStr != "" {
		p, err := strconv.Atoi(portStr)
		if err != nil {
			return "", 0, false, fmt.Errorf("search: invalid port in qdrant URL: %q", portStr)
		}
		// If the user specified the REST port (6333), use the gRPC port (6334).
		if p == 6333 {
			port = 6334
		} else {
			port = p
		}
	} else {
		port = 6334
	}

	return host, port, useTLS, nil
}

// NewQdrantIndex creates a new QdrantIndex and connects to the Qdrant server via gRPC.
func NewQdrantIndex(cfg QdrantConfig, logger *slog.Logger) (*QdrantIndex, error) {
	host, port, useTLS, err := parseQdrantURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("search: connect to qdrant at %s:%d: %w", host, port, err)
	}

	return &QdrantIndex{
		client:     client,
		collection: cfg.Collection,
		dims:       cfg.Dims,
		logger:     logger,
	}, nil
}

// EnsureIndex creates the collection with cosine distance if it doesn't
// already exist and ensures payload indexes are present. CreateFieldIndex is
// idempotent on Qdrant, so indexes are always re-asserted — this backfills
// any index added after the collection was first created.
func (q *QdrantIndex) EnsureIndex(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return q.classify("search.ensure_index", err)
	}

	if !exists {
		if err := q.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: q.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     q.dims,
				Distance: qdrant.Distance_Cosine,
			}),
		}); err != nil {
			// Lost a creation race: another instance made it first.
			if status.Code(err) == codes.AlreadyExists {
				q.logger.Info("qdrant: collection created concurrently", "collection", q.collection)
			} else {
				return q.classify("search.ensure_index", err)
			}
		} else {
			q.logger.Info("qdrant: created collection", "collection", q.collection, "dims", q.dims)
		}
	} else {
		q.logger.Info("qdrant: collection already exists", "collection", q.collection)
	}

	keywordType := qdrant.FieldType_FieldTypeKeyword
	for _, field := range []string{"creator_id", "region", "primary_niches"} {
		if _, err := q.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: q.collection,
			FieldName:      field,
			FieldType:      &keywordType,
		}); err != nil {
			return q.classify("search.ensure_index", err)
		}
	}

	intType := qdrant.FieldType_FieldTypeInteger
	if _, err := q.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: q.collection,
		FieldName:      "follower_count",
		FieldType:      &intType,
	}); err != nil {
		return q.classify("search.ensure_index", err)
	}

	return nil
}

// Query returns up to topK creators sorted descending by cosine score.
func (q *QdrantIndex) Query(ctx context.Context, vector []float32, topK int, filter Filter) ([]Result, error) {
	if uint64(len(vector)) != q.dims {
		return nil, fault.Newf(fault.KindConfig, "search.query",
			"vector dimension %d does not match index dimension %d", len(vector), q.dims)
	}

	var must []*qdrant.Condition
	if filter.Region != "" {
		must = append(must, qdrant.NewMatch("region", filter.Region))
	}
	if len(filter.Niches) == 1 {
		must = append(must, qdrant.NewMatch("primary_niches", filter.Niches[0]))
	} else if len(filter.Niches) > 1 {
		must = append(must, qdrant.NewMatchKeywords("primary_niches", filter.Niches...))
	}

	var qdrantFilter *qdrant.Filter
	if len(must) > 0 {
		qdrantFilter = &qdrant.Filter{Must: must}
	}

	limit := uint64(ClampTopK(topK)) //nolint:gosec // clamped to [1,100]
	scored, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQueryDense(vector),
		Filter:         qdrantFilter,
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayloadInclude("creator_id"),
	})
	if err != nil {
		return nil, q.classify("search.query", err)
	}

	results := make([]Result, 0, len(scored))
	for _, sp := range scored {
		creatorID := sp.Payload["creator_id"].GetStringValue()
		if creatorID == "" {
			q.logger.Warn("qdrant: point missing creator_id payload", "point_id", sp.Id.GetUuid())
			continue
		}
		results = append(results, Result{CreatorID: creatorID, Score: sp.Score})
	}

	return results, nil
}

// Upsert inserts or updates creator points, batched at UpsertBatchSize.
// Point IDs are UUIDv5 of the creator ID, so re-upserting a creator
// replaces its previous vector.
func (q *QdrantIndex) Upsert(ctx context.Context, points []Point) error {
	for start := 0; start < len(points); start += UpsertBatchSize {
		end := min(start+UpsertBatchSize, len(points))
		if err := q.upsertBatch(ctx, points[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (q *QdrantIndex) upsertBatch(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	qdrantPoints := make([]*qdrant.PointStruct, len(points))
	for i, p := range points {
		if uint64(len(p.Embedding)) != q.dims {
			return fault.Newf(fault.KindConfig, "search.upsert",
				"creator %s embedding dimension %d does not match index dimension %d", p.CreatorID, len(p.Embedding), q.dims)
		}
		payload := map[string]any{
			"creator_id":     p.CreatorID,
			"follower_count": p.FollowerCount,
		}
		if p.Region != "" {
			payload["region"] = p.Region
		}
		if len(p.PrimaryNiches) > 0 {
			payload["primary_niches"] = p.PrimaryNiches
		}
		qdrantPoints[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(PointID(p.CreatorID)),
			Vectors: qdrant.NewVectorsDense(p.Embedding),
			Payload: qdrant.NewValueMap(payload),
		}
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrantPoints,
	})
	if err != nil {
		return q.classify("search.upsert", err)
	}
	return nil
}

// Stats returns the current point count and configured dimension.
func (q *QdrantIndex) Stats(ctx context.Context) (Stats, error) {
	info, err := q.client.GetCollectionInfo(ctx, q.collection)
	if err != nil {
		return Stats{}, q.classify("search.stats", err)
	}
	return Stats{
		VectorCount: info.GetPointsCount(),
		Dimensions:  q.dims,
	}, nil
}

// Healthy returns nil if Qdrant is reachable. Results are cached for 5 seconds
// to avoid hammering the health endpoint; concurrent calls after cache expiry
// are deduplicated via singleflight so only one gRPC call is made.
func (q *QdrantIndex) Healthy(ctx context.Context) error {
	// Fast path: return the cached result if fresh.
	if time.Since(time.Unix(0, q.healthAt.Load())) < 5*time.Second {
		return q.loadHealthErr()
	}

	// Use context.Background() instead of the caller's ctx because
	// singleflight reuses the first caller's context — if that caller
	// cancels, all waiters would get a stale error.
	result, _, _ := q.healthGroup.Do("health", func() (any, error) {
		checkCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		_, err := q.client.HealthCheck(checkCtx)
		if err != nil {
			q.storeHealthErr(fmt.Errorf("search: qdrant unhealthy: %w", err))
		} else {
			q.storeHealthErr(nil)
		}
		q.healthAt.Store(time.Now().UnixNano())
		return q.loadHealthErr(), nil
	})
	if result == nil {
		return nil
	}
	return result.(error)
}

func (q *QdrantIndex) storeHealthErr(err error) {
	// atomic.Value cannot store nil directly, so wrap in a pointer.
	q.healthErr.Store(&err)
}

func (q *QdrantIndex) loadHealthErr() error {
	v := q.healthErr.Load()
	if v == nil {
		return nil
	}
	return *v.(*error)
}

// Close shuts down the Qdrant gRPC connection.
func (q *QdrantIndex) Close() error {
	return q.client.Close()
}

// classify maps a Qdrant gRPC error onto the fault taxonomy.
func (q *QdrantIndex) classify(op string, err error) error {
	switch status.Code(err) {
	case codes.ResourceExhausted:
		return fault.New(fault.KindThrottled, op, err)
	case codes.InvalidArgument, codes.FailedPrecondition:
		return fault.New(fault.KindConfig, op, err)
	case codes.NotFound:
		return fault.New(fault.KindNotFound, op, err)
	case codes.DeadlineExceeded, codes.Canceled:
		return fault.New(fault.KindDeadline, op, err)
	default:
		return fault.New(fault.KindUnavailable, op, err)
	}
}

// PointID derives the deterministic Qdrant point UUID for a creator.
func PointID(creatorID string) string {
	return uuid.NewSHA1(creatorNamespace, []byte(creatorID)).String()
}
