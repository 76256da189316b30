// Package config loads and validates application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Server settings.
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Database settings. Empty DatabaseURL runs Pat storage-free: personality
	// overrides, meal logs and the persistent food cache are disabled.
	DatabaseURL string

	// Redis settings. Empty RedisURL falls back to the in-process food cache.
	RedisURL string

	// Nutrition resolver settings.
	NutritionResolverURL string
	NutritionCacheTTL    time.Duration

	// LLM provider settings (OpenAI-compatible chat completions API).
	LLMBaseURL string
	LLMAPIKey  string

	// JWT settings.
	JWTPrivateKeyPath string // Path to Ed25519 private key PEM file.
	JWTPublicKeyPath  string // Path to Ed25519 public key PEM file.
	JWTExpiration     time.Duration

	// Admin bootstrap.
	AdminAPIKey string // API key granting access to the agent admin endpoints.

	// Embedding provider settings for food-cache similarity lookup.
	OllamaURL           string
	OllamaModel         string
	EmbeddingDimensions int // Vector dimensions; must match the chosen model's output.

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string

	// Operational settings.
	LogLevel            string
	RateLimitPerMinute  int
	MaxRequestBodyBytes int64 // Maximum request body size in bytes.
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (Config, error) {
	cfg := Config{
		Port:                 envInt("PAT_PORT", 8080),
		ReadTimeout:          envDuration("PAT_READ_TIMEOUT", 30*time.Second),
		WriteTimeout:         envDuration("PAT_WRITE_TIMEOUT", 60*time.Second),
		DatabaseURL:          envStr("DATABASE_URL", ""),
		RedisURL:             envStr("REDIS_URL", ""),
		NutritionResolverURL: envStr("PAT_NUTRITION_RESOLVER_URL", "http://localhost:9090"),
		NutritionCacheTTL:    envDuration("PAT_NUTRITION_CACHE_TTL", 30*24*time.Hour),
		LLMBaseURL:           envStr("PAT_LLM_BASE_URL", "https://api.openai.com"),
		LLMAPIKey:            envStr("OPENAI_API_KEY", ""),
		JWTPrivateKeyPath:    envStr("PAT_JWT_PRIVATE_KEY", ""),
		JWTPublicKeyPath:     envStr("PAT_JWT_PUBLIC_KEY", ""),
		JWTExpiration:        envDuration("PAT_JWT_EXPIRATION", 24*time.Hour),
		AdminAPIKey:          envStr("PAT_ADMIN_API_KEY", ""),
		OllamaURL:            envStr("OLLAMA_URL", "http://localhost:11434"),
		OllamaModel:          envStr("OLLAMA_MODEL", "mxbai-embed-large"),
		EmbeddingDimensions:  envInt("PAT_EMBEDDING_DIMENSIONS", 1024),
		OTELEndpoint:         envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELInsecure:         envBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		ServiceName:          envStr("OTEL_SERVICE_NAME", "pat"),
		LogLevel:             envStr("PAT_LOG_LEVEL", "info"),
		RateLimitPerMinute:   envInt("PAT_RATE_LIMIT_PER_MINUTE", 60),
		MaxRequestBodyBytes:  int64(envInt("PAT_MAX_REQUEST_BODY_BYTES", 64*1024)),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that required configuration is present and coherent.
func (c Config) Validate() error {
	if c.NutritionResolverURL == "" {
		return fmt.Errorf("config: PAT_NUTRITION_RESOLVER_URL is required")
	}
	if c.LLMBaseURL == "" {
		return fmt.Errorf("config: PAT_LLM_BASE_URL is required")
	}
	if c.NutritionCacheTTL <= 0 {
		return fmt.Errorf("config: PAT_NUTRITION_CACHE_TTL must be positive")
	}
	if c.EmbeddingDimensions <= 0 {
		return fmt.Errorf("config: PAT_EMBEDDING_DIMENSIONS must be positive")
	}
	if c.MaxRequestBodyBytes <= 0 {
		return fmt.Errorf("config: PAT_MAX_REQUEST_BODY_BYTES must be positive")
	}
	if c.RateLimitPerMinute <= 0 {
		return fmt.Errorf("config: PAT_RATE_LIMIT_PER_MINUTE must be positive")
	}
	if (c.JWTPrivateKeyPath == "") != (c.JWTPublicKeyPath == "") {
		return fmt.Errorf("config: PAT_JWT_PRIVATE_KEY and PAT_JWT_PUBLIC_KEY must be set together")
	}
	return nil
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
