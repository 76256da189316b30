// Package pat is the public API for embedding the Pat conversation server.
//
// Hosting applications import this package to construct and extend the
// server without forking it:
//
//	app, err := pat.New(
//	    pat.WithVersion(version),
//	    pat.WithLogger(logger),
//	    pat.WithCompleter(myProvider{}),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// The import graph enforces a strict no-cycle rule: pat (root) imports
// internal/*, but internal/* never imports pat (root). Public types (Macros,
// MacroEstimate, Message) are standalone structs with no internal imports;
// the adapters between the two sides live here because this is the only file
// that sees both.
package pat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/hipat/pat/api"
	"github.com/hipat/pat/internal/auth"
	"github.com/hipat/pat/internal/config"
	"github.com/hipat/pat/internal/llm"
	"github.com/hipat/pat/internal/mcp"
	"github.com/hipat/pat/internal/model"
	"github.com/hipat/pat/internal/nutrition"
	"github.com/hipat/pat/internal/personality"
	"github.com/hipat/pat/internal/pipeline"
	"github.com/hipat/pat/internal/ratelimit"
	"github.com/hipat/pat/internal/server"
	"github.com/hipat/pat/internal/storage"
	"github.com/hipat/pat/internal/telemetry"
	"github.com/hipat/pat/migrations"
)

// App is the Pat server lifecycle. Construct with New(), run with Run().
// App has no public fields — use New() options to configure it.
type App struct {
	cfg          config.Config
	db           *storage.DB // nil when running storage-free
	foodCache    *storage.FoodCache
	embedder     nutrition.Embedder
	redisClient  *redis.Client
	limiter      ratelimit.Limiter
	srv          *server.Server
	otelShutdown telemetry.Shutdown
	logger       *slog.Logger
	version      string
}

// New initialises the Pat server. It connects to the database when one is
// configured, runs migrations, wires all subsystems, and returns a
// ready-to-run App. It does NOT start any goroutines or accept HTTP
// connections — call Run().
func New(opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.port != 0 {
		cfg.Port = o.port
	}
	if o.databaseURL != "" {
		cfg.DatabaseURL = o.databaseURL
	}
	if o.redisURL != "" {
		cfg.RedisURL = o.redisURL
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("pat starting", "version", version, "port", cfg.Port)

	otelShutdown, err := telemetry.Init(context.Background(), cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	app := &App{
		cfg:          cfg,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}
	fail := func(err error) (*App, error) {
		app.closeResources()
		return nil, err
	}

	// Storage is optional: without it Pat still chats, but personality
	// overrides, meal logs and the persistent food cache are disabled.
	if cfg.DatabaseURL != "" {
		db, err := storage.New(context.Background(), cfg.DatabaseURL, logger)
		if err != nil {
			return fail(fmt.Errorf("storage: %w", err))
		}
		app.db = db

		if err := db.RunMigrations(context.Background(), migrations.FS); err != nil {
			return fail(fmt.Errorf("migrations: %w", err))
		}
		for i, extraFS := range o.extraMigrations {
			if err := db.RunMigrations(context.Background(), extraFS); err != nil {
				return fail(fmt.Errorf("extra migrations[%d]: %w", i, err))
			}
		}
	} else {
		logger.Info("storage: disabled (no DATABASE_URL)")
	}

	jwtMgr, err := auth.NewJWTManager(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath, cfg.JWTExpiration)
	if err != nil {
		return fail(fmt.Errorf("auth: %w", err))
	}

	// Food cache backend: Postgres when available (survives restarts and
	// supports similarity search), Redis next, in-process memory last.
	var cache nutrition.Cache
	switch {
	case app.db != nil:
		app.foodCache = storage.NewFoodCache(app.db, cfg.NutritionCacheTTL)
		cache = app.foodCache
		logger.Info("food cache: postgres", "ttl", cfg.NutritionCacheTTL)
	case cfg.RedisURL != "":
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fail(fmt.Errorf("redis: %w", err))
		}
		app.redisClient = redis.NewClient(redisOpts)
		cache = nutrition.NewRedisCache(app.redisClient, cfg.NutritionCacheTTL)
		logger.Info("food cache: redis", "ttl", cfg.NutritionCacheTTL)
	default:
		cache = nutrition.NewMemoryCache(cfg.NutritionCacheTTL)
		logger.Info("food cache: memory (non-persistent)")
	}

	var resolver nutrition.Resolver
	if o.nutritionSource != nil {
		resolver = &nutritionSourceAdapter{src: o.nutritionSource}
	} else {
		resolver = nutrition.NewHTTPResolver(cfg.NutritionResolverURL, cache, logger)
	}

	var completionClient llm.Client
	if o.completer != nil {
		completionClient = &completerAdapter{c: o.completer}
	} else {
		completionClient = llm.NewHTTPClient(cfg.LLMBaseURL, cfg.LLMAPIKey, 0)
	}

	var overrideRepo personality.OverrideRepo
	var meals pipeline.MealStore
	if app.db != nil {
		overrideRepo = app.db
		meals = app.db
	}
	agents := personality.NewStore(overrideRepo, logger)
	pipe := pipeline.New(agents, completionClient, resolver, meals, logger)
	if o.clock != nil {
		pipe.SetClock(o.clock)
	}

	mcpSrv := mcp.New(agents, resolver, logger)
	if app.foodCache != nil && cfg.OllamaURL != "" {
		app.embedder = nutrition.NewOllamaEmbedder(cfg.OllamaURL, cfg.OllamaModel, cfg.EmbeddingDimensions)
		mcpSrv.EnableSimilarSearch(app.foodCache, app.embedder)
		logger.Info("food similarity: enabled", "model", cfg.OllamaModel, "dims", cfg.EmbeddingDimensions)
	}

	app.limiter = ratelimit.PerMinute(cfg.RateLimitPerMinute)

	var middlewares []func(http.Handler) http.Handler
	for _, mw := range o.middlewares {
		middlewares = append(middlewares, (func(http.Handler) http.Handler)(mw))
	}

	srv, err := server.New(server.Config{
		Pipeline:            pipe,
		Resolver:            resolver,
		Agents:              agents,
		JWTMgr:              jwtMgr,
		Logger:              logger,
		DB:                  app.db,
		Limiter:             app.limiter,
		MCPServer:           mcpSrv.MCPServer(),
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		AdminAPIKey:         cfg.AdminAPIKey,
		OpenAPISpec:         api.OpenAPISpec,
		Middlewares:         middlewares,
	})
	if err != nil {
		return fail(fmt.Errorf("server: %w", err))
	}
	app.srv = srv

	return app, nil
}

// Run starts the background loops and the HTTP server, then blocks until ctx
// is cancelled or a fatal server error occurs. On return, Shutdown is called
// automatically — callers should not call Shutdown separately.
func (a *App) Run(ctx context.Context) error {
	if a.foodCache != nil {
		go a.cacheReapLoop(ctx)
	}
	if a.foodCache != nil && a.embedder != nil {
		go a.embeddingBackfillLoop(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := a.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	return a.Shutdown(context.Background())
}

// Shutdown drains in-flight HTTP requests, then releases the limiter, the
// cache connections, the database pool and the OTEL provider.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("pat shutting down")

	if a.srv != nil {
		httpCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		if err := a.srv.Shutdown(httpCtx); err != nil {
			a.logger.Error("http shutdown error", "error", err)
		}
		cancel()
	}

	a.closeResources()
	a.logger.Info("pat stopped")
	return nil
}

func (a *App) closeResources() {
	if a.limiter != nil {
		_ = a.limiter.Close()
	}
	if a.redisClient != nil {
		_ = a.redisClient.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
	if a.otelShutdown != nil {
		_ = a.otelShutdown(context.Background())
	}
}

const (
	cacheReapInterval       = 6 * time.Hour
	embeddingBackfillEvery  = 5 * time.Minute
	embeddingBackfillBatch  = 100
	backgroundLoopOpTimeout = 2 * time.Minute
)

func (a *App) cacheReapLoop(ctx context.Context) {
	ticker := time.NewTicker(cacheReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			opCtx, cancel := context.WithTimeout(ctx, backgroundLoopOpTimeout)
			n, err := a.foodCache.Reap(opCtx)
			cancel()
			if err != nil {
				a.logger.Warn("food cache reap failed", "error", err)
				continue
			}
			if n > 0 {
				a.logger.Info("food cache reaped", "deleted", n)
			}
		}
	}
}

// embeddingBackfillLoop attaches embeddings to cache entries that were
// written before the embedder was reachable. Failures are logged and retried
// on the next tick.
func (a *App) embeddingBackfillLoop(ctx context.Context) {
	ticker := time.NewTicker(embeddingBackfillEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			opCtx, cancel := context.WithTimeout(ctx, backgroundLoopOpTimeout)
			a.backfillEmbeddings(opCtx)
			cancel()
		}
	}
}

func (a *App) backfillEmbeddings(ctx context.Context) {
	keys, err := a.foodCache.MissingEmbeddings(ctx, embeddingBackfillBatch)
	if err != nil {
		a.logger.Warn("embedding backfill: list failed", "error", err)
		return
	}
	var done int
	for _, key := range keys {
		vec, err := a.embedder.Embed(ctx, key)
		if err != nil {
			a.logger.Warn("embedding backfill: embed failed", "key", key, "error", err)
			return
		}
		if err := a.foodCache.AttachEmbedding(ctx, key, vec); err != nil {
			a.logger.Warn("embedding backfill: attach failed", "key", key, "error", err)
			return
		}
		done++
	}
	if done > 0 {
		a.logger.Info("embedding backfill complete", "count", done)
	}
}

// ── Adapters (defined here because this file imports both sides) ──────────────

// completerAdapter wraps a pat.Completer to satisfy llm.Client.
type completerAdapter struct {
	c Completer
}

func (a *completerAdapter) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	pub := CompletionRequest{
		Messages:        make([]Message, 0, len(req.Messages)),
		Provider:        req.Binding.Provider,
		Model:           req.Binding.Model,
		Temperature:     req.Binding.Temperature,
		MaxOutputTokens: req.Binding.MaxOutputTokens,
		ResponseFormat:  req.Binding.ResponseFormat,
	}
	for _, m := range req.Messages {
		pub.Messages = append(pub.Messages, Message{Role: m.Role, Content: m.Content})
	}

	res, err := a.c.Complete(ctx, pub)
	if err != nil {
		return llm.Response{}, err
	}
	return llm.Response{
		Text:  res.Text,
		Model: res.Model,
		Usage: llm.Usage{InputTokens: res.InputTokens, OutputTokens: res.OutputTokens},
	}, nil
}

// nutritionSourceAdapter wraps a pat.NutritionSource to satisfy
// nutrition.Resolver.
type nutritionSourceAdapter struct {
	src NutritionSource
}

func (a *nutritionSourceAdapter) Resolve(ctx context.Context, food string, useCache bool) (nutrition.Estimate, error) {
	est, err := a.src.Resolve(ctx, food, useCache)
	if err != nil {
		return nutrition.Estimate{}, err
	}
	return nutrition.Estimate{
		Macros: model.Macros{
			Kcal:     est.Macros.Kcal,
			ProteinG: est.Macros.ProteinG,
			CarbsG:   est.Macros.CarbsG,
			FatG:     est.Macros.FatG,
			FiberG:   est.Macros.FiberG,
		},
		Confidence: est.Confidence,
		Source:     est.Source,
		Basis:      est.Basis,
	}, nil
}
