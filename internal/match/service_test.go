package match

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creatormatch/scout/internal/catalog"
	"github.com/creatormatch/scout/internal/completion"
	"github.com/creatormatch/scout/internal/fault"
	"github.com/creatormatch/scout/internal/model"
	"github.com/creatormatch/scout/internal/resilience"
	"github.com/creatormatch/scout/internal/scoring"
	"github.com/creatormatch/scout/internal/search"
	"github.com/creatormatch/scout/internal/testutil"
)

// stubSource feeds the catalog cache in tests.
type stubSource struct {
	creators []model.Creator
}

func (s stubSource) ListAll(_ context.Context) ([]model.Creator, error) {
	out := make([]model.Creator, len(s.creators))
	copy(out, s.creators)
	return out, nil
}

// fakeIndex is an in-memory search.Index.
type fakeIndex struct {
	mu       sync.Mutex
	results  []search.Result
	queryErr error
	queries  int
	upserted []search.Point
}

func (f *fakeIndex) EnsureIndex(_ context.Context) error { return nil }

func (f *fakeIndex) Query(_ context.Context, _ []float32, _ int, _ search.Filter) ([]search.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries++
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.results, nil
}

func (f *fakeIndex) Upsert(_ context.Context, points []search.Point) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserted = append(f.upserted, points...)
	return nil
}

func (f *fakeIndex) Stats(_ context.Context) (search.Stats, error) {
	return search.Stats{VectorCount: uint64(len(f.results))}, nil
}

func (f *fakeIndex) Healthy(_ context.Context) error { return nil }

// fakeEmbedder returns a fixed vector or error.
type fakeEmbedder struct {
	mu     sync.Mutex
	vector []float32
	err    error
	calls  int
	texts  []string
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.texts = append(f.texts, text)
	if f.err != nil {
		return nil, f.err
	}
	return f.vector, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int { return len(f.vector) }

// fakeCompleter returns a fixed string or error.
type fakeCompleter struct {
	text  string
	err   error
	calls int
}

func (f *fakeCompleter) Complete(_ context.Context, _ string, _ completion.Options) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

// fakeSink records persisted matches.
type fakeSink struct {
	mu           sync.Mutex
	err          error
	assignmentID string
	matches      []model.Match
	calls        int
}

func (f *fakeSink) SaveMatches(_ context.Context, assignmentID string, matches []model.Match) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.assignmentID = assignmentID
	f.matches = matches
	return f.err
}

func fastGuard(name string) *resilience.Guard {
	breaker := resilience.NewBreaker(name, resilience.BreakerConfig{})
	retrier := resilience.NewRetrier(resilience.RetryConfig{},
		resilience.WithSleep(func(_ context.Context, _ time.Duration) error { return nil }))
	return resilience.NewGuard(breaker, retrier)
}

func fitnessCreator(id, nickname string, followers int64) model.Creator {
	c := model.Creator{
		ID:            id,
		Nickname:      nickname,
		FollowerCount: followers,
		HeartCount:    followers / 10,
		Region:        "us",
		Analysis: model.CreatorAnalysis{
			PrimaryNiches:  []string{"fitness"},
			ApparentValues: []string{"consistency"},
		},
	}
	c.Normalize()
	return c
}

func validAssignment() model.Assignment {
	return model.Assignment{
		Topic:             "home strength training",
		KeyTakeaway:       "progressive overload works at home",
		AdditionalContext: "30 day program for beginners",
		TargetAudience:    model.TargetAudience{Locale: "US"},
		CreatorNiches:     []string{"fitness"},
		CreatorValues:     []string{"consistency"},
	}
}

type fixture struct {
	svc       *Service
	cache     *catalog.Cache
	index     *fakeIndex
	embedder  *fakeEmbedder
	completer *fakeCompleter
	sink      *fakeSink
	fallbacks int
}

func newFixture(t *testing.T, creators []model.Creator, cfg Config) *fixture {
	t.Helper()

	cache := catalog.NewCache(stubSource{creators: creators}, time.Hour, testutil.TestLogger())
	require.NoError(t, cache.Refresh(context.Background()))

	f := &fixture{
		cache:     cache,
		index:     &fakeIndex{},
		embedder:  &fakeEmbedder{vector: []float32{1, 0, 0}},
		completer: &fakeCompleter{text: "these creators fit the brief"},
		sink:      &fakeSink{},
	}
	f.svc = New(cfg, Deps{
		Catalog:         cache,
		Index:           f.index,
		Embedder:        f.embedder,
		Completer:       f.completer,
		Sink:            f.sink,
		Scorer:          scoring.New(),
		EmbedGuard:      fastGuard("embedding"),
		VectorGuard:     fastGuard("vector"),
		CompletionGuard: fastGuard("completion"),
		PersistGuard:    fastGuard("persist"),
		OnFallback:      func() { f.fallbacks++ },
		Logger:          testutil.TestLogger(),
	})
	return f
}

func TestMatchHappyPath(t *testing.T) {
	creators := []model.Creator{
		fitnessCreator("c1", "Ana", 1000),
		fitnessCreator("c2", "Ben", 5000),
		fitnessCreator("c3", "Cem", 200),
	}
	f := newFixture(t, creators, Config{TopK: 2})
	f.index.results = []search.Result{
		{CreatorID: "c1", Score: 0.9},
		{CreatorID: "c2", Score: 0.8},
		{CreatorID: "c3", Score: 0.2},
	}

	resp, err := f.svc.Match(context.Background(), model.MatchRequest{
		Assignment:   validAssignment(),
		AssignmentID: "a-1",
	})
	require.NoError(t, err)

	assert.False(t, resp.IsFallback)
	assert.Equal(t, 0, f.fallbacks)
	require.Len(t, resp.Matches, 2, "truncated to TopK")
	assert.Equal(t, "c1", resp.Matches[0].Creator.ID)
	assert.GreaterOrEqual(t, resp.Matches[0].MatchScore, resp.Matches[1].MatchScore)
	assert.NotEmpty(t, resp.Matches[0].Reasoning)
	assert.Equal(t, "these creators fit the brief", resp.Reasoning)
	assert.False(t, resp.Timestamp.IsZero())

	// Brief text is what got embedded.
	require.Len(t, f.embedder.texts, 1)
	assert.Contains(t, f.embedder.texts[0], "home strength training")
	assert.NotContains(t, f.embedder.texts[0], "fitness", "filters excluded by default")

	// Matches were persisted under the assignment ID.
	assert.Equal(t, 1, f.sink.calls)
	assert.Equal(t, "a-1", f.sink.assignmentID)
	require.Len(t, f.sink.matches, 2)
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, 3, cfg.TopK)
	assert.Equal(t, 15, cfg.VectorTopK)
	assert.Equal(t, defaultScoreParallelism, cfg.ScoreParallelism)

	cfg = Config{ScoreParallelism: 2}.withDefaults()
	assert.Equal(t, 2, cfg.ScoreParallelism, "configured fan-out overrides the default")
}

func TestMatchHonorsConfiguredScoreParallelism(t *testing.T) {
	creators := make([]model.Creator, 20)
	results := make([]search.Result, 20)
	for i := range creators {
		id := string(rune('a' + i))
		creators[i] = fitnessCreator(id, "Creator "+id, int64(100*(i+1)))
		results[i] = search.Result{CreatorID: id, Score: 0.5}
	}
	f := newFixture(t, creators, Config{TopK: 20, ScoreParallelism: 1})
	f.index.results = results

	resp, err := f.svc.Match(context.Background(), model.MatchRequest{Assignment: validAssignment()})
	require.NoError(t, err)
	require.Len(t, resp.Matches, 20, "serial scoring still covers every candidate")
}

func TestMatchEmbedsFiltersWhenConfigured(t *testing.T) {
	f := newFixture(t, []model.Creator{fitnessCreator("c1", "Ana", 100)}, Config{EmbedIncludeFilters: true})
	f.index.results = []search.Result{{CreatorID: "c1", Score: 0.5}}

	_, err := f.svc.Match(context.Background(), model.MatchRequest{Assignment: validAssignment()})
	require.NoError(t, err)
	require.Len(t, f.embedder.texts, 1)
	assert.Contains(t, f.embedder.texts[0], "fitness")
}

func TestMatchValidationRejectsBeforeAnyCall(t *testing.T) {
	f := newFixture(t, []model.Creator{fitnessCreator("c1", "Ana", 100)}, Config{})

	_, err := f.svc.Match(context.Background(), model.MatchRequest{Assignment: model.Assignment{}})
	require.Error(t, err)
	assert.Equal(t, fault.KindValidation, fault.KindOf(err))
	assert.Equal(t, 0, f.embedder.calls)
	assert.Equal(t, 0, f.index.queries)

	var verrs model.ValidationErrors
	assert.ErrorAs(t, err, &verrs)
}

func TestMatchFallsBackWhenEmbeddingDown(t *testing.T) {
	creators := []model.Creator{
		fitnessCreator("c1", "Ana", 1000),
		fitnessCreator("c2", "Ben", 5000),
	}
	f := newFixture(t, creators, Config{TopK: 3})
	f.embedder.err = fault.Newf(fault.KindUnavailable, "embedding.embed", "provider down")

	resp, err := f.svc.Match(context.Background(), model.MatchRequest{Assignment: validAssignment()})
	require.NoError(t, err)

	assert.True(t, resp.IsFallback)
	assert.Equal(t, 1, f.fallbacks)
	require.Len(t, resp.Matches, 2, "full catalog ranked on rules")
	assert.Equal(t, 0, f.index.queries, "vector query skipped when embedding fails")
	// Neutral cosine maps to 0.5 normalized similarity for every candidate.
	assert.Equal(t, 0.5, resp.Matches[0].ScoreBreakdown.SemanticSimilarity)
}

func TestMatchFallsBackWhenVectorIndexDown(t *testing.T) {
	f := newFixture(t, []model.Creator{fitnessCreator("c1", "Ana", 100)}, Config{})
	f.index.queryErr = fault.Newf(fault.KindUnavailable, "search.query", "qdrant down")

	resp, err := f.svc.Match(context.Background(), model.MatchRequest{Assignment: validAssignment()})
	require.NoError(t, err)
	assert.True(t, resp.IsFallback)
	require.Len(t, resp.Matches, 1)
}

func TestMatchFallbackWithEmptyCatalogFails(t *testing.T) {
	f := newFixture(t, nil, Config{})
	f.embedder.err = fault.Newf(fault.KindUnavailable, "embedding.embed", "provider down")

	_, err := f.svc.Match(context.Background(), model.MatchRequest{Assignment: validAssignment()})
	require.Error(t, err)
	assert.Equal(t, fault.KindUnavailable, fault.KindOf(err))
}

func TestMatchConfigErrorDoesNotFallBack(t *testing.T) {
	f := newFixture(t, []model.Creator{fitnessCreator("c1", "Ana", 100)}, Config{})
	f.embedder.err = fault.Newf(fault.KindConfig, "embedding.embed", "bad api key")

	_, err := f.svc.Match(context.Background(), model.MatchRequest{Assignment: validAssignment()})
	require.Error(t, err)
	assert.Equal(t, fault.KindConfig, fault.KindOf(err))
	assert.Equal(t, 0, f.fallbacks)
}

func TestMatchHealthyEmptyQueryReturnsNoMatches(t *testing.T) {
	creators := []model.Creator{
		fitnessCreator("c1", "Ana", 1000),
		fitnessCreator("c2", "Ben", 5000),
	}
	f := newFixture(t, creators, Config{})
	f.index.results = nil

	resp, err := f.svc.Match(context.Background(), model.MatchRequest{Assignment: validAssignment()})
	require.NoError(t, err)
	assert.False(t, resp.IsFallback)
	assert.Equal(t, 0, f.fallbacks)
	assert.Empty(t, resp.Matches, "candidates come only from the query; the catalog is not ranked")
	assert.Equal(t, NoCandidatesReasoning, resp.Reasoning)
}

func TestMatchDropsStaleIndexHits(t *testing.T) {
	f := newFixture(t, []model.Creator{fitnessCreator("c1", "Ana", 100)}, Config{})
	f.index.results = []search.Result{
		{CreatorID: "c1", Score: 0.9},
		{CreatorID: "gone", Score: 0.95},
	}

	resp, err := f.svc.Match(context.Background(), model.MatchRequest{Assignment: validAssignment()})
	require.NoError(t, err)
	require.Len(t, resp.Matches, 1)
	assert.Equal(t, "c1", resp.Matches[0].Creator.ID)
}

func TestMatchEmptyCatalogAndIndexSucceedsWithNoMatches(t *testing.T) {
	f := newFixture(t, nil, Config{})
	f.index.results = nil

	resp, err := f.svc.Match(context.Background(), model.MatchRequest{Assignment: validAssignment()})
	require.NoError(t, err)
	assert.Empty(t, resp.Matches)
	assert.Equal(t, NoCandidatesReasoning, resp.Reasoning)
	assert.Equal(t, 0, f.completer.calls, "no completion for an empty result")
}

func TestMatchCompletionFailureDegradesToTemplate(t *testing.T) {
	f := newFixture(t, []model.Creator{fitnessCreator("c1", "Ana", 100)}, Config{})
	f.index.results = []search.Result{{CreatorID: "c1", Score: 0.9}}
	f.completer.err = fault.Newf(fault.KindUnavailable, "completion.complete", "llm down")

	resp, err := f.svc.Match(context.Background(), model.MatchRequest{Assignment: validAssignment()})
	require.NoError(t, err)
	require.Len(t, resp.Matches, 1)
	assert.Contains(t, resp.Reasoning, "Ana")
	assert.Contains(t, resp.Reasoning, "Top 1 creators")
}

func TestMatchPersistFailureDoesNotFailRequest(t *testing.T) {
	f := newFixture(t, []model.Creator{fitnessCreator("c1", "Ana", 100)}, Config{})
	f.index.results = []search.Result{{CreatorID: "c1", Score: 0.9}}
	f.sink.err = fault.Newf(fault.KindUnavailable, "persist.save", "assignment service down")

	resp, err := f.svc.Match(context.Background(), model.MatchRequest{
		Assignment:   validAssignment(),
		AssignmentID: "a-9",
	})
	require.NoError(t, err)
	require.Len(t, resp.Matches, 1)
	assert.Equal(t, 3, f.sink.calls, "unavailable sink retried to the attempt budget")
}

func TestMatchSkipsPersistWithoutAssignmentID(t *testing.T) {
	f := newFixture(t, []model.Creator{fitnessCreator("c1", "Ana", 100)}, Config{})
	f.index.results = []search.Result{{CreatorID: "c1", Score: 0.9}}

	_, err := f.svc.Match(context.Background(), model.MatchRequest{Assignment: validAssignment()})
	require.NoError(t, err)
	assert.Equal(t, 0, f.sink.calls)
}

func TestMatchOpenEmbedBreakerServesFallbackImmediately(t *testing.T) {
	f := newFixture(t, []model.Creator{fitnessCreator("c1", "Ana", 100)}, Config{})
	f.embedder.err = fault.Newf(fault.KindUnavailable, "embedding.embed", "provider down")

	// Trip the embedding breaker.
	for i := 0; i < 5; i++ {
		_, err := f.svc.Match(context.Background(), model.MatchRequest{Assignment: validAssignment()})
		require.NoError(t, err, "fallback keeps serving while the breaker trips")
	}
	callsWhileTripping := f.embedder.calls

	resp, err := f.svc.Match(context.Background(), model.MatchRequest{Assignment: validAssignment()})
	require.NoError(t, err)
	assert.True(t, resp.IsFallback)
	assert.Equal(t, callsWhileTripping, f.embedder.calls, "open breaker short-circuits the provider")
}
