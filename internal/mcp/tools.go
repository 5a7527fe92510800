package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/creatormatch/scout/internal/fault"
	"github.com/creatormatch/scout/internal/model"
)

func (s *Server) registerTools() {
	// match_creators — run the full match pipeline for a content brief.
	s.mcpServer.AddTool(
		mcplib.NewTool("match_creators",
			mcplib.WithDescription(`Find the creators best suited to produce a piece of content.

Provide the content brief (topic, key takeaway, context) and optional
structured preferences. Returns ranked matches with per-component score
breakdowns and a short reasoning summary.

The response includes is_fallback: when true, semantic retrieval was
unavailable and the ranking used attribute overlap only.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("topic",
				mcplib.Description("What the content is about, e.g. 'home strength training for beginners'"),
				mcplib.Required(),
			),
			mcplib.WithString("key_takeaway",
				mcplib.Description("The one thing the audience should remember"),
				mcplib.Required(),
			),
			mcplib.WithString("additional_context",
				mcplib.Description("Background, constraints, or campaign details"),
				mcplib.Required(),
			),
			mcplib.WithString("niches",
				mcplib.Description("Comma-separated preferred creator niches, e.g. 'fitness, nutrition'"),
			),
			mcplib.WithString("values",
				mcplib.Description("Comma-separated creator values to favor, e.g. 'authenticity, education'"),
			),
			mcplib.WithString("tone",
				mcplib.Description("Preferred tone of voice, e.g. 'energetic'"),
			),
			mcplib.WithString("audience_locale",
				mcplib.Description("Target audience region code, e.g. 'US'"),
			),
		),
		s.handleMatch,
	)
}

func (s *Server) handleMatch(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	req := model.MatchRequest{
		Assignment: model.Assignment{
			Topic:             request.GetString("topic", ""),
			KeyTakeaway:       request.GetString("key_takeaway", ""),
			AdditionalContext: request.GetString("additional_context", ""),
			CreatorNiches:     splitTags(request.GetString("niches", "")),
			CreatorValues:     splitTags(request.GetString("values", "")),
			ToneStyle:         request.GetString("tone", ""),
			TargetAudience: model.TargetAudience{
				Locale: request.GetString("audience_locale", ""),
			},
		},
	}

	resp, err := s.matcher.Match(ctx, req)
	if err != nil {
		if fault.KindOf(err) == fault.KindValidation {
			return errorResult(err.Error()), nil
		}
		s.logger.Warn("mcp: match failed", "error", err)
		return errorResult(fmt.Sprintf("match failed: %v", err)), nil
	}

	data, err := json.MarshalIndent(matchResult{
		Matches:    resp.Matches,
		Reasoning:  resp.Reasoning,
		IsFallback: resp.IsFallback,
	}, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("marshal result: %v", err)), nil
	}

	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(data)},
		},
	}, nil
}

// matchResult trims the HTTP response shape down to what an agent needs.
type matchResult struct {
	Matches    []model.Match `json:"matches"`
	Reasoning  string        `json:"reasoning,omitempty"`
	IsFallback bool          `json:"is_fallback"`
}

func splitTags(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
