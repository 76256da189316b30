// Package mcp implements the Model Context Protocol server for Pat.
//
// It exposes the deterministic router and the nutrition resolver as MCP
// tools, and the effective agent set as a resource, so MCP-compatible
// clients can inspect and exercise the conversation core without the HTTP
// API.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/hipat/pat/internal/nutrition"
	"github.com/hipat/pat/internal/personality"
)

// Server wraps the MCP server with Pat's routing and resolution services.
type Server struct {
	mcpServer *mcpserver.MCPServer
	agents    *personality.Store
	resolver  nutrition.Resolver
	logger    *slog.Logger

	// Set via EnableSimilarSearch; nil when running without pgvector storage.
	finder   SimilarFoodFinder
	embedder nutrition.Embedder
}

// New creates and configures an MCP server with all resources and tools.
func New(agents *personality.Store, resolver nutrition.Resolver, logger *slog.Logger) *Server {
	s := &Server{
		agents:   agents,
		resolver: resolver,
		logger:   logger,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"pat",
		"0.1.0",
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

func (s *Server) registerResources() {
	// pat://agents — the effective agent set (defaults merged with overrides).
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"pat://agents",
			"Agent Swarm",
			mcplib.WithResourceDescription("The effective personality agent set, defaults merged with admin overrides"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleAgents,
	)
}

func (s *Server) handleAgents(ctx context.Context, _ mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	state, _, err := s.agents.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("mcp: load agents: %w", err)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal agents: %w", err)
	}

	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      "pat://agents",
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
