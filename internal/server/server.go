package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/hipat/pat/internal/auth"
	"github.com/hipat/pat/internal/model"
	"github.com/hipat/pat/internal/nutrition"
	"github.com/hipat/pat/internal/personality"
	"github.com/hipat/pat/internal/pipeline"
	"github.com/hipat/pat/internal/ratelimit"
	"github.com/hipat/pat/internal/storage"
)

// Server is the Pat HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Config holds all dependencies and settings for creating a Server.
// Optional fields (nil-safe): DB, Limiter, MCPServer, OpenAPISpec.
type Config struct {
	// Required dependencies.
	Pipeline *pipeline.Pipeline
	Resolver nutrition.Resolver
	Agents   *personality.Store
	JWTMgr   *auth.JWTManager
	Logger   *slog.Logger

	// Optional dependencies (nil = disabled).
	DB        *storage.DB
	Limiter   ratelimit.Limiter
	MCPServer *mcpserver.MCPServer

	// HTTP server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64
	AdminAPIKey         string

	// Optional embedded assets.
	OpenAPISpec []byte

	// Extra middlewares applied outside the built-in chain, in order:
	// the first entry is outermost.
	Middlewares []func(http.Handler) http.Handler
}

// New creates an HTTP server with all routes configured.
func New(cfg Config) (*Server, error) {
	h, err := NewHandlers(HandlersDeps{
		Pipeline:    cfg.Pipeline,
		Resolver:    cfg.Resolver,
		Agents:      cfg.Agents,
		JWTMgr:      cfg.JWTMgr,
		DB:          cfg.DB,
		AdminAPIKey: cfg.AdminAPIKey,
		Version:     cfg.Version,
		OpenAPISpec: cfg.OpenAPISpec,
		Logger:      cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("server: create handlers: %w", err)
	}

	// Chat turns are throttled per user; token issuance per client IP.
	chatRL := ratelimit.Middleware(cfg.Limiter, userKeyFunc, cfg.Logger)
	authRL := ratelimit.Middleware(cfg.Limiter, ratelimit.IPKeyFunc, cfg.Logger)

	mux := http.NewServeMux()

	// Token issuance (no bearer auth, gated by the admin key, IP limited).
	mux.Handle("POST /auth/token", authRL(http.HandlerFunc(h.HandleAuthToken)))

	// Conversation.
	mux.Handle("POST /v1/chat", chatRL(http.HandlerFunc(h.HandleChat)))

	// Nutrition and routing introspection.
	mux.Handle("POST /v1/nutrition/resolve", chatRL(http.HandlerFunc(h.HandleResolveNutrition)))
	mux.Handle("GET /v1/route/preview", http.HandlerFunc(h.HandleRoutePreview))

	// Agent administration (admin tier only).
	mux.Handle("GET /v1/agents", requireAdmin(http.HandlerFunc(h.HandleListAgents)))
	mux.Handle("PUT /v1/agents/{agent_id}", requireAdmin(http.HandlerFunc(h.HandleUpdateAgent)))

	// MCP StreamableHTTP transport (bearer auth applies).
	if cfg.MCPServer != nil {
		mux.Handle("/mcp", mcpserver.NewStreamableHTTPServer(cfg.MCPServer))
	}

	// OpenAPI spec and health (no auth, no rate limit).
	mux.HandleFunc("GET /openapi.yaml", h.HandleOpenAPISpec)
	mux.HandleFunc("GET /healthz", h.HandleHealth)

	// Middleware chain (outermost executes first):
	// request ID → tracing → logging → body limit → auth → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = authMiddleware(cfg.JWTMgr, handler)
	handler = bodyLimitMiddleware(cfg.MaxRequestBodyBytes, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = requestIDMiddleware(handler)
	for i := len(cfg.Middlewares) - 1; i >= 0; i-- {
		handler = cfg.Middlewares[i](handler)
	}

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler: handler,
		logger:  cfg.Logger,
	}, nil
}

// userKeyFunc rate limits by authenticated user; admins are exempt.
func userKeyFunc(r *http.Request) string {
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		return ""
	}
	if claims.Role == model.RoleAdmin {
		return ""
	}
	return "user:" + claims.Subject
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
