// Package config loads and validates application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	MaxRequestBodyBytes int64

	// Matching settings.
	MatchTopK           int       // final result count K
	VectorQueryTopK     int       // candidate pool size per vector query
	ScoreParallelism    int       // per-request scoring fan-out cap
	Weights             []float64 // semantic, niche, audience, value
	EmbedIncludeFilters bool      // include structured filters in the embedded brief text
	AudienceScorer      string    // "binary" or "multi_factor"

	// Vector index settings.
	QdrantURL           string
	QdrantAPIKey        string
	VectorIndexName     string
	EmbeddingDimensions int // must match the configured embedding model's output

	// AI provider settings.
	AIProvider       string // "auto", "openai", "gemini", or "noop"
	OpenAIAPIKey     string
	GeminiAPIKey     string
	EmbeddingModel   string
	CompletionModel  string
	EmbedConcurrency int // in-flight embedding request cap

	// Catalog settings.
	CatalogSource     string // "file", "postgres", or "sqlite"
	CatalogPath       string // for file and sqlite sources
	DatabaseURL       string // for the postgres source
	CatalogRefreshTTL time.Duration

	// Resilience tunables (shared by all dependency guards).
	BreakerFailureThreshold int
	BreakerReset            time.Duration
	RetryMaxAttempts        int
	RetryBaseDelay          time.Duration
	RetryMaxDelay           time.Duration

	// Per-call deadlines and the request-level budget.
	EmbedTimeout       time.Duration
	VectorQueryTimeout time.Duration
	CompletionTimeout  time.Duration
	PersistTimeout     time.Duration
	RequestDeadline    time.Duration

	// Match persistence (optional collaborator; empty URL disables it).
	PersistBaseURL string

	// Rate limiting.
	RateLimitEnabled bool
	RateLimitPerMin  int

	// MCP surface.
	MCPEnabled bool

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string

	// Operational settings.
	LogLevel string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (Config, error) {
	cfg := Config{
		Port:                envInt("SCOUT_PORT", 8080),
		ReadTimeout:         envDuration("SCOUT_READ_TIMEOUT", 30*time.Second),
		WriteTimeout:        envDuration("SCOUT_WRITE_TIMEOUT", 30*time.Second),
		MaxRequestBodyBytes: int64(envInt("SCOUT_MAX_REQUEST_BODY_BYTES", 1*1024*1024)), // 1 MB default

		MatchTopK:           envInt("MATCH_TOP_K", 3),
		VectorQueryTopK:     envInt("VECTOR_QUERY_TOP_K", 15),
		ScoreParallelism:    envInt("MATCH_SCORE_PARALLELISM", 8),
		Weights:             envWeights("MATCH_WEIGHTS", []float64{0.7, 0.2, 0.05, 0.05}),
		EmbedIncludeFilters: envBool("EMBED_INCLUDE_FILTERS", false),
		AudienceScorer:      envStr("MATCH_AUDIENCE_SCORER", "binary"),

		QdrantURL:           envStr("QDRANT_URL", ""),
		QdrantAPIKey:        envStr("QDRANT_API_KEY", ""),
		VectorIndexName:     envStr("VECTOR_INDEX_NAME", "creator-embeddings"),
		EmbeddingDimensions: envInt("EMBEDDING_DIMENSIONS", 1536),

		AIProvider:       envStr("AI_PROVIDER", "auto"),
		OpenAIAPIKey:     envStr("OPENAI_API_KEY", ""),
		GeminiAPIKey:     envStr("GEMINI_API_KEY", ""),
		EmbeddingModel:   envStr("EMBEDDING_MODEL", "text-embedding-3-small"),
		CompletionModel:  envStr("COMPLETION_MODEL", "gpt-4o-mini"),
		EmbedConcurrency: envInt("EMBED_CONCURRENCY", 3),

		CatalogSource:     envStr("CATALOG_SOURCE", "file"),
		CatalogPath:       envStr("CATALOG_PATH", "catalog.json"),
		DatabaseURL:       envStr("DATABASE_URL", ""),
		CatalogRefreshTTL: envMillis("CATALOG_REFRESH_TTL_MS", 5*time.Minute),

		BreakerFailureThreshold: envInt("BREAKER_FAILURE_THRESHOLD", 5),
		BreakerReset:            envMillis("BREAKER_RESET_MS", 30*time.Second),
		RetryMaxAttempts:        envInt("RETRY_MAX_ATTEMPTS", 3),
		RetryBaseDelay:          envMillis("RETRY_BASE_DELAY_MS", 200*time.Millisecond),
		RetryMaxDelay:           envMillis("RETRY_MAX_DELAY_MS", 5*time.Second),

		EmbedTimeout:       envMillis("EMBED_TIMEOUT_MS", 5*time.Second),
		VectorQueryTimeout: envMillis("VECTOR_QUERY_TIMEOUT_MS", 2*time.Second),
		CompletionTimeout:  envMillis("COMPLETION_TIMEOUT_MS", 10*time.Second),
		PersistTimeout:     envMillis("PERSIST_TIMEOUT_MS", 2*time.Second),
		RequestDeadline:    envMillis("REQUEST_DEADLINE_MS", 15*time.Second),

		PersistBaseURL: envStr("PERSIST_BASE_URL", ""),

		RateLimitEnabled: envBool("SCOUT_RATE_LIMIT_ENABLED", true),
		RateLimitPerMin:  envInt("SCOUT_RATE_LIMIT_PER_MINUTE", 120),

		MCPEnabled: envBool("SCOUT_MCP_ENABLED", true),

		OTELEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELInsecure: envBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		ServiceName:  envStr("OTEL_SERVICE_NAME", "scout"),

		LogLevel: envStr("SCOUT_LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that required configuration is present and in range.
func (c Config) Validate() error {
	if c.EmbeddingDimensions <= 0 {
		return fmt.Errorf("config: EMBEDDING_DIMENSIONS must be positive")
	}
	if c.MatchTopK <= 0 {
		return fmt.Errorf("config: MATCH_TOP_K must be positive")
	}
	if c.VectorQueryTopK <= 0 {
		return fmt.Errorf("config: VECTOR_QUERY_TOP_K must be positive")
	}
	if c.ScoreParallelism <= 0 {
		return fmt.Errorf("config: MATCH_SCORE_PARALLELISM must be positive")
	}
	if c.EmbedConcurrency <= 0 {
		return fmt.Errorf("config: EMBED_CONCURRENCY must be positive")
	}
	if len(c.Weights) != 4 {
		return fmt.Errorf("config: MATCH_WEIGHTS must list exactly 4 values (semantic,niche,audience,value)")
	}
	for _, w := range c.Weights {
		if w < 0 {
			return fmt.Errorf("config: MATCH_WEIGHTS values must be non-negative")
		}
	}
	switch c.AudienceScorer {
	case "binary", "multi_factor":
	default:
		return fmt.Errorf("config: MATCH_AUDIENCE_SCORER must be %q or %q", "binary", "multi_factor")
	}
	switch c.CatalogSource {
	case "file", "sqlite":
		if c.CatalogPath == "" {
			return fmt.Errorf("config: CATALOG_PATH is required for the %s catalog source", c.CatalogSource)
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("config: DATABASE_URL is required for the postgres catalog source")
		}
	default:
		return fmt.Errorf("config: unknown CATALOG_SOURCE %q", c.CatalogSource)
	}
	if c.MaxRequestBodyBytes <= 0 {
		return fmt.Errorf("config: SCOUT_MAX_REQUEST_BODY_BYTES must be positive")
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

// envMillis reads a millisecond-valued integer variable (the *_MS tunables).
func envMillis(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * time.Millisecond
		}
	}
	return defaultVal
}

// envWeights reads a comma-separated weight profile like "0.7,0.2,0.05,0.05".
// Malformed values fall back to the default profile.
func envWeights(key string, defaultVal []float64) []float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	parts := strings.Split(v, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return defaultVal
		}
		out = append(out, f)
	}
	return out
}
