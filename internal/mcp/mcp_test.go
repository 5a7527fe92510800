package mcp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creatormatch/scout/internal/catalog"
	"github.com/creatormatch/scout/internal/fault"
	"github.com/creatormatch/scout/internal/health"
	"github.com/creatormatch/scout/internal/model"
	"github.com/creatormatch/scout/internal/testutil"
)

type stubMatcher struct {
	resp    model.MatchResponse
	err     error
	lastReq model.MatchRequest
}

func (m *stubMatcher) Match(_ context.Context, req model.MatchRequest) (model.MatchResponse, error) {
	m.lastReq = req
	return m.resp, m.err
}

type staticSource struct{ creators []model.Creator }

func (s staticSource) ListAll(context.Context) ([]model.Creator, error) {
	return s.creators, nil
}

func newTestServer(t *testing.T, matcher Matcher) *Server {
	t.Helper()
	cache := catalog.NewCache(staticSource{creators: []model.Creator{
		{ID: "c1", Nickname: "Ana", Region: "US", FollowerCount: 1000,
			Analysis: model.CreatorAnalysis{PrimaryNiches: []string{"fitness"}}},
	}}, time.Minute, testutil.TestLogger())
	require.NoError(t, cache.Refresh(context.Background()))

	return New("test", Deps{
		Matcher: matcher,
		Catalog: cache,
		Health:  health.NewAggregator("test", cache.Len),
		Logger:  testutil.TestLogger(),
	})
}

func callToolRequest(args map[string]any) mcplib.CallToolRequest {
	req := mcplib.CallToolRequest{}
	req.Params.Name = "match_creators"
	req.Params.Arguments = args
	return req
}

func textContent(t *testing.T, result *mcplib.CallToolResult) string {
	t.Helper()
	require.Len(t, result.Content, 1)
	tc, ok := result.Content[0].(mcplib.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestHandleMatchBuildsAssignment(t *testing.T) {
	matcher := &stubMatcher{resp: model.MatchResponse{
		Matches: []model.Match{{Creator: model.Creator{ID: "c1", Nickname: "Ana"}, MatchScore: 0.9}},
	}}
	srv := newTestServer(t, matcher)

	result, err := srv.handleMatch(context.Background(), callToolRequest(map[string]any{
		"topic":              "home workouts",
		"key_takeaway":       "consistency beats intensity",
		"additional_context": "spring campaign",
		"niches":             "fitness, nutrition",
		"values":             "authenticity",
		"tone":               "energetic",
		"audience_locale":    "US",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	assert.Equal(t, "home workouts", matcher.lastReq.Assignment.Topic)
	assert.Equal(t, []string{"fitness", "nutrition"}, matcher.lastReq.Assignment.CreatorNiches)
	assert.Equal(t, []string{"authenticity"}, matcher.lastReq.Assignment.CreatorValues)
	assert.Equal(t, "energetic", matcher.lastReq.Assignment.ToneStyle)
	assert.Equal(t, "US", matcher.lastReq.Assignment.TargetAudience.Locale)

	var out matchResult
	require.NoError(t, json.Unmarshal([]byte(textContent(t, result)), &out))
	require.Len(t, out.Matches, 1)
	assert.Equal(t, "c1", out.Matches[0].Creator.ID)
}

func TestHandleMatchValidationErrorIsToolError(t *testing.T) {
	verrs := model.ValidationErrors{{Field: "topic", Message: "is required"}}
	srv := newTestServer(t, &stubMatcher{err: fault.New(fault.KindValidation, "match.validate", verrs)})

	result, err := srv.handleMatch(context.Background(), callToolRequest(map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, textContent(t, result), "topic")
}

func TestHandleMatchPipelineFailureIsToolError(t *testing.T) {
	srv := newTestServer(t, &stubMatcher{err: fault.Newf(fault.KindUnavailable, "search.query", "index down")})

	result, err := srv.handleMatch(context.Background(), callToolRequest(map[string]any{
		"topic":              "t",
		"key_takeaway":       "k",
		"additional_context": "c",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHealthResource(t *testing.T) {
	srv := newTestServer(t, &stubMatcher{})

	req := mcplib.ReadResourceRequest{}
	req.Params.URI = "scout://health"
	contents, err := srv.handleHealthResource(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, contents, 1)

	text, ok := contents[0].(mcplib.TextResourceContents)
	require.True(t, ok)
	assert.Equal(t, "scout://health", text.URI)

	var snap model.HealthResponse
	require.NoError(t, json.Unmarshal([]byte(text.Text), &snap))
	assert.Equal(t, health.StatusHealthy, snap.Status)
	assert.Equal(t, 1, snap.CatalogSize)
}

func TestCatalogResource(t *testing.T) {
	srv := newTestServer(t, &stubMatcher{})

	req := mcplib.ReadResourceRequest{}
	req.Params.URI = "scout://catalog"
	contents, err := srv.handleCatalogResource(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, contents, 1)

	text, ok := contents[0].(mcplib.TextResourceContents)
	require.True(t, ok)

	var out struct {
		Size     int              `json:"size"`
		Stale    bool             `json:"stale"`
		Creators []creatorSummary `json:"creators"`
	}
	require.NoError(t, json.Unmarshal([]byte(text.Text), &out))
	assert.Equal(t, 1, out.Size)
	assert.False(t, out.Stale)
	require.Len(t, out.Creators, 1)
	assert.Equal(t, "Ana", out.Creators[0].Nickname)
	assert.Equal(t, []string{"fitness"}, out.Creators[0].PrimaryNiches)
}

func TestSplitTags(t *testing.T) {
	assert.Nil(t, splitTags(""))
	assert.Nil(t, splitTags("   "))
	assert.Equal(t, []string{"a", "b"}, splitTags(" a , b ,"))
}
