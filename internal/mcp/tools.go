package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/hipat/pat/internal/model"
	"github.com/hipat/pat/internal/nutrition"
	"github.com/hipat/pat/internal/router"
)

func (s *Server) registerTools() {
	// pat_route_preview — classify a message without executing anything.
	s.mcpServer.AddTool(
		mcplib.NewTool("pat_route_preview",
			mcplib.WithDescription(`Classify a user message through Pat's deterministic router.

Returns the route kind (role, tool, pat, none), the chosen handler target
after allow-list and confidence checks, and the rule that matched. Purely
informational: nothing is resolved, logged, or sent to a model.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("message",
				mcplib.Description("The user message to classify"),
				mcplib.Required(),
			),
		),
		s.handleRoutePreview,
	)

	// pat_resolve_nutrition — resolve a food description to macros.
	s.mcpServer.AddTool(
		mcplib.NewTool("pat_resolve_nutrition",
			mcplib.WithDescription(`Resolve a free-text food description into macro-nutrients.

Returns kcal, protein, carbs, fat (and fiber when known) plus the
resolution confidence and basis. Cached results are reused by default.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(true),
			mcplib.WithString("food",
				mcplib.Description("The food description, e.g. '2 scrambled eggs with butter'"),
				mcplib.Required(),
			),
			mcplib.WithBoolean("use_cache",
				mcplib.Description("Reuse cached results for previously resolved foods"),
				mcplib.DefaultBool(true),
			),
		),
		s.handleResolveNutrition,
	)
}

func (s *Server) handleRoutePreview(_ context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	message := request.GetString("message", "")
	if message == "" {
		return mcplib.NewToolResultError("message is required"), nil
	}

	hit := router.FastRoute(message)
	target := router.ChooseTarget(hit.Kind, hit.Target, hit.Confidence)

	preview := struct {
		Route  model.RouteHit `json:"route"`
		Target string         `json:"target"`
	}{Route: hit, Target: target}

	data, _ := json.MarshalIndent(preview, "", "  ")
	return mcplib.NewToolResultText(string(data)), nil
}

func (s *Server) handleResolveNutrition(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	food := request.GetString("food", "")
	if food == "" {
		return mcplib.NewToolResultError("food is required"), nil
	}
	useCache := request.GetBool("use_cache", true)

	est, err := s.resolver.Resolve(ctx, food, useCache)
	if err != nil {
		switch {
		case errors.Is(err, nutrition.ErrInvalidInput):
			return mcplib.NewToolResultError(fmt.Sprintf("invalid food description: %v", err)), nil
		case errors.Is(err, nutrition.ErrBadShape):
			return mcplib.NewToolResultError("the nutrition service returned a malformed response"), nil
		default:
			return mcplib.NewToolResultError(fmt.Sprintf("nutrition service unavailable: %v", err)), nil
		}
	}

	data, _ := json.MarshalIndent(est, "", "  ")
	return mcplib.NewToolResultText(string(data)), nil
}
