package catalog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creatormatch/scout/internal/model"
	"github.com/creatormatch/scout/internal/testutil"
)

type fakeSource struct {
	mu       sync.Mutex
	creators []model.Creator
	err      error
	calls    int
}

func (f *fakeSource) ListAll(_ context.Context) ([]model.Creator, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]model.Creator, len(f.creators))
	copy(out, f.creators)
	return out, nil
}

func (f *fakeSource) set(creators []model.Creator, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creators = creators
	f.err = err
}

func testCreator(id string) model.Creator {
	return model.Creator{
		ID:            id,
		Nickname:      "nick-" + id,
		FollowerCount: 100,
		HeartCount:    10,
		Region:        "US",
		Analysis: model.CreatorAnalysis{
			PrimaryNiches: []string{"Fitness"},
		},
	}
}

func TestCacheRefreshSwapsSnapshot(t *testing.T) {
	src := &fakeSource{creators: []model.Creator{testCreator("a"), testCreator("b")}}
	cache := NewCache(src, time.Minute, testutil.TestLogger())

	assert.Equal(t, 0, cache.Len())
	require.NoError(t, cache.Refresh(context.Background()))
	assert.Equal(t, 2, cache.Len())

	got, ok := cache.Get("a")
	require.True(t, ok)
	assert.Equal(t, "nick-a", got.Nickname)
	// Tags and region are folded at ingest.
	assert.Equal(t, []string{"fitness"}, got.Analysis.PrimaryNiches)
	assert.Equal(t, "us", got.Region)

	_, ok = cache.Get("missing")
	assert.False(t, ok)
}

func TestCacheRefreshFailureKeepsOldSnapshot(t *testing.T) {
	src := &fakeSource{creators: []model.Creator{testCreator("a")}}
	cache := NewCache(src, time.Minute, testutil.TestLogger())

	require.NoError(t, cache.Refresh(context.Background()))
	before := cache.LastRefresh()
	require.Equal(t, 1, cache.Len())

	src.set(nil, errors.New("db down"))
	require.Error(t, cache.Refresh(context.Background()))

	assert.Equal(t, 1, cache.Len(), "old snapshot survives a failed refresh")
	assert.Equal(t, before, cache.LastRefresh())
}

func TestCacheDropsDuplicatesAndEmptyIDs(t *testing.T) {
	dupe := testCreator("a")
	dupe.Nickname = "impostor"
	src := &fakeSource{creators: []model.Creator{
		testCreator("a"),
		dupe,
		{Nickname: "no-id"},
		testCreator("b"),
	}}
	cache := NewCache(src, time.Minute, testutil.TestLogger())

	require.NoError(t, cache.Refresh(context.Background()))
	assert.Equal(t, 2, cache.Len())

	got, ok := cache.Get("a")
	require.True(t, ok)
	assert.Equal(t, "nick-a", got.Nickname, "first occurrence wins")
}

func TestCachePokeTriggersRefresh(t *testing.T) {
	src := &fakeSource{creators: []model.Creator{testCreator("a")}}
	cache := NewCache(src, time.Hour, testutil.TestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, cache.Start(ctx))

	src.set([]model.Creator{testCreator("a"), testCreator("b")}, nil)
	cache.Poke()

	require.Eventually(t, func() bool {
		return cache.Len() == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCacheStale(t *testing.T) {
	src := &fakeSource{creators: []model.Creator{testCreator("a")}}
	cache := NewCache(src, 10*time.Millisecond, testutil.TestLogger())

	assert.True(t, cache.Stale(), "never-loaded cache is stale")
	require.NoError(t, cache.Refresh(context.Background()))
	assert.False(t, cache.Stale())

	time.Sleep(50 * time.Millisecond)
	assert.True(t, cache.Stale())
}
