package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/pgvector/pgvector-go"

	"github.com/hipat/pat/internal/nutrition"
	"github.com/hipat/pat/internal/storage"
)

// SimilarFoodFinder is a nearest-neighbor lookup over the persistent food
// cache. Satisfied by storage.FoodCache.
type SimilarFoodFinder interface {
	SimilarFoods(ctx context.Context, vec pgvector.Vector, limit int) ([]storage.SimilarFood, error)
}

// EnableSimilarSearch registers the pat_similar_foods tool. Called only when
// both a persistent food cache and an embedding provider are configured.
func (s *Server) EnableSimilarSearch(finder SimilarFoodFinder, embedder nutrition.Embedder) {
	s.finder = finder
	s.embedder = embedder

	s.mcpServer.AddTool(
		mcplib.NewTool("pat_similar_foods",
			mcplib.WithDescription(`Find previously resolved foods similar to a description.

Embeds the description and returns the nearest unexpired food cache entries
by cosine distance, each with its stored macro estimate. Useful for "have I
logged something like this before?" lookups.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("food",
				mcplib.Description("The food description to search near"),
				mcplib.Required(),
			),
			mcplib.WithNumber("limit",
				mcplib.Description("Maximum number of matches to return"),
				mcplib.DefaultNumber(5),
			),
		),
		s.handleSimilarFoods,
	)
}

func (s *Server) handleSimilarFoods(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	food := request.GetString("food", "")
	if food == "" {
		return mcplib.NewToolResultError("food is required"), nil
	}
	limit := request.GetInt("limit", 5)
	if limit < 1 || limit > 50 {
		limit = 5
	}

	vec, err := s.embedder.Embed(ctx, food)
	if err != nil {
		return mcplib.NewToolResultError(fmt.Sprintf("embedding failed: %v", err)), nil
	}

	matches, err := s.finder.SimilarFoods(ctx, vec, limit)
	if err != nil {
		return mcplib.NewToolResultError(fmt.Sprintf("similarity search failed: %v", err)), nil
	}

	data, _ := json.MarshalIndent(matches, "", "  ")
	return mcplib.NewToolResultText(string(data)), nil
}
