package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/creatormatch/scout/internal/model"
)

func (s *Server) registerResources() {
	// scout://health — composite service health, same data as GET /health.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"scout://health",
			"Service Health",
			mcplib.WithResourceDescription("Composite health of the matching service and its dependencies"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleHealthResource,
	)

	// scout://catalog — summary of the cached creator catalog.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"scout://catalog",
			"Creator Catalog",
			mcplib.WithResourceDescription("Cached creator catalog: size, freshness, and creator summaries"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleCatalogResource,
	)
}

func (s *Server) handleHealthResource(_ context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	data, err := json.MarshalIndent(s.health.Snapshot(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal health: %w", err)
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// creatorSummary keeps the catalog resource small. Full profiles come back
// from match_creators.
type creatorSummary struct {
	ID            string   `json:"id"`
	Nickname      string   `json:"nickname"`
	Region        string   `json:"region,omitempty"`
	PrimaryNiches []string `json:"primaryNiches,omitempty"`
	FollowerCount int64    `json:"followerCount"`
}

func (s *Server) handleCatalogResource(_ context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	creators := s.catalog.All()
	summaries := make([]creatorSummary, 0, len(creators))
	for _, c := range creators {
		summaries = append(summaries, summarize(c))
	}

	data, err := json.MarshalIndent(map[string]any{
		"size":         len(summaries),
		"last_refresh": s.catalog.LastRefresh(),
		"stale":        s.catalog.Stale(),
		"creators":     summaries,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal catalog: %w", err)
	}

	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func summarize(c model.Creator) creatorSummary {
	return creatorSummary{
		ID:            c.ID,
		Nickname:      c.Nickname,
		Region:        c.Region,
		PrimaryNiches: c.Analysis.PrimaryNiches,
		FollowerCount: c.FollowerCount,
	}
}
