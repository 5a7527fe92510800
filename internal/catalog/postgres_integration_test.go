package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creatormatch/scout/internal/model"
	"github.com/creatormatch/scout/internal/testutil"
)

func TestPostgresSourceRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}

	tc := testutil.MustStartPostgres()
	defer tc.Terminate()

	ctx := context.Background()
	src, err := NewPostgresSource(ctx, tc.URL, testutil.TestLogger())
	require.NoError(t, err)
	defer src.Close()

	require.NoError(t, src.EnsureSchema(ctx))

	creator := model.Creator{
		ID:            "c1",
		Nickname:      "Ana",
		FollowerCount: 1200,
		HeartCount:    300,
		Region:        "us",
		Analysis: model.CreatorAnalysis{
			PrimaryNiches: []string{"fitness"},
		},
		Embedding: []float32{0.1, 0.2, 0.3},
	}
	require.NoError(t, src.UpsertCreator(ctx, creator))
	// Embedding-less creator in the same table.
	require.NoError(t, src.UpsertCreator(ctx, model.Creator{ID: "c2", Nickname: "Ben"}))

	creators, err := src.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, creators, 2)

	assert.Equal(t, "Ana", creators[0].Nickname)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, creators[0].Embedding)
	assert.Nil(t, creators[1].Embedding)

	// Upsert replaces.
	creator.Nickname = "Ana v2"
	require.NoError(t, src.UpsertCreator(ctx, creator))
	creators, err = src.ListAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Ana v2", creators[0].Nickname)

	require.NoError(t, src.Ping(ctx))
}
