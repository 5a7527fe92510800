// Package mcp implements the Model Context Protocol server for scout.
//
// It exposes creator matching to MCP-compatible AI agents: the
// match_creators tool runs the same pipeline as POST /matches, and the
// health and catalog resources mirror GET /health.
package mcp

import (
	"context"
	"log/slog"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/creatormatch/scout/internal/catalog"
	"github.com/creatormatch/scout/internal/health"
	"github.com/creatormatch/scout/internal/model"
)

// Matcher runs the match pipeline. Satisfied by *match.Service.
type Matcher interface {
	Match(ctx context.Context, req model.MatchRequest) (model.MatchResponse, error)
}

// Server wraps the MCP server with scout's matching layer.
type Server struct {
	mcpServer *mcpserver.MCPServer
	matcher   Matcher
	catalog   *catalog.Cache
	health    *health.Aggregator
	logger    *slog.Logger
}

// Deps carries the service dependencies for the MCP server.
type Deps struct {
	Matcher Matcher
	Catalog *catalog.Cache
	Health  *health.Aggregator
	Logger  *slog.Logger
}

// New creates and configures an MCP server with all resources and tools.
func New(version string, deps Deps) *Server {
	s := &Server{
		matcher: deps.Matcher,
		catalog: deps.Catalog,
		health:  deps.Health,
		logger:  deps.Logger,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"scout",
		version,
		mcpserver.WithResourceCapabilities(true, true),
		mcpserver.WithToolCapabilities(true),
	)

	s.registerResources()
	s.registerTools()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
