package pat

import (
	"io/fs"
	"log/slog"
	"time"
)

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported — callers use the With* functions.
type resolvedOptions struct {
	port            int
	databaseURL     string
	redisURL        string
	logger          *slog.Logger
	version         string
	completer       Completer
	nutritionSource NutritionSource
	middlewares     []Middleware
	clock           func() time.Time
	extraMigrations []fs.FS
}

// WithPort overrides the TCP port from config (PAT_PORT env var).
func WithPort(port int) Option {
	return func(o *resolvedOptions) { o.port = port }
}

// WithDatabaseURL overrides the Postgres connection string from config
// (DATABASE_URL env var). An empty string in both places runs Pat
// storage-free: no personality overrides, meal logs, or persistent food cache.
func WithDatabaseURL(url string) Option {
	return func(o *resolvedOptions) { o.databaseURL = url }
}

// WithRedisURL overrides the Redis connection string from config (REDIS_URL
// env var). Redis serves as the food cache when no Postgres is configured.
func WithRedisURL(url string) Option {
	return func(o *resolvedOptions) { o.redisURL = url }
}

// WithLogger sets the structured logger for the App.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in the health endpoint and logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithCompleter replaces the built-in OpenAI-compatible completion client.
// Only the last call wins.
func WithCompleter(c Completer) Option {
	return func(o *resolvedOptions) { o.completer = c }
}

// WithNutritionSource replaces the built-in HTTP nutrition resolver and its
// cache. Only the last call wins.
func WithNutritionSource(src NutritionSource) Option {
	return func(o *resolvedOptions) { o.nutritionSource = src }
}

// WithMiddleware registers an outermost HTTP middleware. Multiple middlewares
// may be registered; the first-registered is outermost.
func WithMiddleware(mw Middleware) Option {
	return func(o *resolvedOptions) { o.middlewares = append(o.middlewares, mw) }
}

// WithClock overrides the time source used for meal-slot inference and
// telemetry durations. Useful for replaying past conversations.
func WithClock(now func() time.Time) Option {
	return func(o *resolvedOptions) { o.clock = now }
}

// WithExtraMigrations adds an additional SQL migration filesystem to run
// after the embedded migrations. Multiple filesystems may be registered; they
// are applied in registration order. Ignored when running storage-free.
func WithExtraMigrations(dir fs.FS) Option {
	return func(o *resolvedOptions) { o.extraMigrations = append(o.extraMigrations, dir) }
}
