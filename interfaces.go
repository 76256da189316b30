package pat

import (
	"context"
	"net/http"
)

// Completer produces text completions for agent prompts.
// When provided via WithCompleter, it replaces the built-in OpenAI-compatible
// HTTP client for every agent, regardless of the agent's provider binding.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (Completion, error)
}

// NutritionSource resolves a food description into a macro estimate.
// When provided via WithNutritionSource, it replaces the built-in HTTP
// resolver — including its cache; the implementation owns caching policy.
type NutritionSource interface {
	Resolve(ctx context.Context, food string, useCache bool) (MacroEstimate, error)
}

// Middleware wraps the root HTTP handler. Applied outside the built-in chain,
// so it sees every request including /healthz. Multiple middlewares are
// applied in registration order: the first-registered is outermost.
type Middleware func(http.Handler) http.Handler
