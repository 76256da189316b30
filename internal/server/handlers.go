package server

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hipat/pat/internal/auth"
	"github.com/hipat/pat/internal/llm"
	"github.com/hipat/pat/internal/model"
	"github.com/hipat/pat/internal/nutrition"
	"github.com/hipat/pat/internal/personality"
	"github.com/hipat/pat/internal/pipeline"
	"github.com/hipat/pat/internal/router"
	"github.com/hipat/pat/internal/storage"
)

// Handlers bundles the HTTP handlers and their dependencies.
type Handlers struct {
	pipeline *pipeline.Pipeline
	resolver nutrition.Resolver
	agents   *personality.Store
	jwtMgr   *auth.JWTManager
	db       *storage.DB // nil when running storage-free

	adminKeyHash string // Argon2id hash of the bootstrap admin API key; "" disables /auth/token
	version      string
	openAPISpec  []byte
	logger       *slog.Logger
}

// HandlersDeps holds everything Handlers needs.
type HandlersDeps struct {
	Pipeline    *pipeline.Pipeline
	Resolver    nutrition.Resolver
	Agents      *personality.Store
	JWTMgr      *auth.JWTManager
	DB          *storage.DB
	AdminAPIKey string
	Version     string
	OpenAPISpec []byte
	Logger      *slog.Logger
}

// NewHandlers creates the handler set. The admin API key is hashed once at
// startup; the plaintext is not retained.
func NewHandlers(deps HandlersDeps) (*Handlers, error) {
	h := &Handlers{
		pipeline:    deps.Pipeline,
		resolver:    deps.Resolver,
		agents:      deps.Agents,
		jwtMgr:      deps.JWTMgr,
		db:          deps.DB,
		version:     deps.Version,
		openAPISpec: deps.OpenAPISpec,
		logger:      deps.Logger,
	}
	if deps.AdminAPIKey != "" {
		hash, err := auth.HashAPIKey(deps.AdminAPIKey)
		if err != nil {
			return nil, err
		}
		h.adminKeyHash = hash
	}
	return h, nil
}

type chatRequest struct {
	Message   string        `json:"message"`
	SessionID string        `json:"session_id"`
	History   []llm.Message `json:"history,omitempty"`
}

// HandleChat runs one conversational turn through the pipeline.
func (h *Handlers) HandleChat(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "no claims in context")
		return
	}

	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Message == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeBadRequest, "message is required")
		return
	}
	if req.SessionID == "" {
		req.SessionID = claims.Subject
	}

	result, err := h.pipeline.Handle(r.Context(), pipeline.Input{
		Profile:   claims.Profile(),
		SessionID: req.SessionID,
		Message:   req.Message,
		History:   req.History,
	})
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternal, "chat turn failed")
		return
	}

	writeJSON(w, r, http.StatusOK, result)
}

type resolveRequest struct {
	Food     string `json:"food"`
	UseCache *bool  `json:"use_cache,omitempty"`
}

// HandleResolveNutrition resolves a food description without touching any
// meal log.
func (h *Handlers) HandleResolveNutrition(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeBadRequest, "invalid request body: "+err.Error())
		return
	}

	useCache := true
	if req.UseCache != nil {
		useCache = *req.UseCache
	}

	est, err := h.resolver.Resolve(r.Context(), req.Food, useCache)
	if err != nil {
		switch {
		case errors.Is(err, nutrition.ErrInvalidInput):
			writeError(w, r, http.StatusBadRequest, model.ErrCodeBadRequest, "invalid food description")
		case errors.Is(err, nutrition.ErrBadShape):
			writeError(w, r, http.StatusBadGateway, model.ErrCodeUpstream, "nutrition service returned a malformed response")
		default:
			writeError(w, r, http.StatusBadGateway, model.ErrCodeUpstream, "nutrition service unavailable")
		}
		return
	}

	writeJSON(w, r, http.StatusOK, est)
}

// HandleRoutePreview classifies a message without executing anything.
func (h *Handlers) HandleRoutePreview(w http.ResponseWriter, r *http.Request) {
	message := r.URL.Query().Get("message")
	if message == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeBadRequest, "message query parameter is required")
		return
	}

	hit := router.FastRoute(message)
	writeJSON(w, r, http.StatusOK, map[string]any{
		"route":  hit,
		"target": router.ChooseTarget(hit.Kind, hit.Target, hit.Confidence),
	})
}

type tokenRequest struct {
	AdminKey    string         `json:"admin_key"`
	UserID      string         `json:"user_id"`
	Role        model.UserRole `json:"role"`
	TrialEndsAt *time.Time     `json:"trial_ends_at,omitempty"`
	Timezone    string         `json:"timezone,omitempty"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// HandleAuthToken mints a user JWT. Gated by the bootstrap admin API key:
// this is how an upstream identity service obtains tokens for its users.
func (h *Handlers) HandleAuthToken(w http.ResponseWriter, r *http.Request) {
	if h.adminKeyHash == "" {
		writeError(w, r, http.StatusForbidden, model.ErrCodeForbidden, "token issuance is not configured")
		return
	}

	var req tokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeBadRequest, "invalid request body: "+err.Error())
		return
	}

	ok, err := auth.VerifyAPIKey(req.AdminKey, h.adminKeyHash)
	if err != nil || !ok {
		auth.DummyVerify()
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "invalid admin key")
		return
	}

	token, exp, err := h.jwtMgr.IssueToken(model.Profile{
		UserID:      req.UserID,
		Role:        req.Role,
		TrialEndsAt: req.TrialEndsAt,
		Timezone:    req.Timezone,
	})
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeBadRequest, err.Error())
		return
	}

	writeJSON(w, r, http.StatusOK, tokenResponse{Token: token, ExpiresAt: exp})
}

// HandleHealth reports liveness plus storage connectivity when configured.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"status":  "ok",
		"version": h.version,
	}
	if h.db != nil {
		if err := h.db.Ping(r.Context()); err != nil {
			status["status"] = "degraded"
			status["storage"] = "unreachable"
			writeJSON(w, r, http.StatusServiceUnavailable, status)
			return
		}
		status["storage"] = "ok"
	}
	writeJSON(w, r, http.StatusOK, status)
}

// HandleOpenAPISpec serves the embedded OpenAPI document.
func (h *Handlers) HandleOpenAPISpec(w http.ResponseWriter, _ *http.Request) {
	if len(h.openAPISpec) == 0 {
		http.Error(w, "openapi spec not embedded", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(h.openAPISpec)
}
