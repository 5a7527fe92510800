package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/creatormatch/scout/internal/catalog"
	"github.com/creatormatch/scout/internal/completion"
	"github.com/creatormatch/scout/internal/config"
	"github.com/creatormatch/scout/internal/embedding"
	"github.com/creatormatch/scout/internal/health"
	"github.com/creatormatch/scout/internal/match"
	"github.com/creatormatch/scout/internal/mcp"
	"github.com/creatormatch/scout/internal/persist"
	"github.com/creatormatch/scout/internal/ratelimit"
	"github.com/creatormatch/scout/internal/resilience"
	"github.com/creatormatch/scout/internal/scoring"
	"github.com/creatormatch/scout/internal/search"
	"github.com/creatormatch/scout/internal/server"
	"github.com/creatormatch/scout/internal/telemetry"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(os.Getenv("SCOUT_LOG_LEVEL")),
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func logLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger.Info("scout starting", "version", version, "port", cfg.Port)

	otelShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Endpoint:    cfg.OTELEndpoint,
		ServiceName: cfg.ServiceName,
		Version:     version,
		Insecure:    cfg.OTELInsecure,
	})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	// Catalog source and cache.
	source, closeSource, err := newCatalogSource(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	defer closeSource()

	cache := catalog.NewCache(source, cfg.CatalogRefreshTTL, logger)
	if err := cache.Start(ctx); err != nil {
		// Serve anyway; the refresh loop keeps retrying and requests fail
		// with an empty-catalog fault until a load succeeds.
		logger.Warn("initial catalog load failed", "error", err)
	}
	logger.Info("catalog loaded", "source", cfg.CatalogSource, "creators", cache.Len())

	// Vector index.
	if cfg.QdrantURL == "" {
		return fmt.Errorf("QDRANT_URL is required")
	}
	index, err := search.NewQdrantIndex(search.QdrantConfig{
		URL:        cfg.QdrantURL,
		APIKey:     cfg.QdrantAPIKey,
		Collection: cfg.VectorIndexName,
		Dims:       uint64(cfg.EmbeddingDimensions), //nolint:gosec // validated positive in config.Validate
	}, logger)
	if err != nil {
		return fmt.Errorf("qdrant: %w", err)
	}
	defer func() { _ = index.Close() }()

	if err := index.EnsureIndex(ctx); err != nil {
		// Non-fatal: Qdrant may come up after us. Queries fail with an
		// unavailable fault until it does, and the rule-only path covers.
		logger.Warn("qdrant ensure index failed", "error", err)
	}

	// AI providers.
	embedder := newEmbeddingProvider(ctx, cfg, logger)
	completer := newCompleter(ctx, cfg, logger)

	// Match persistence (optional collaborator).
	var sink persist.Sink
	if cfg.PersistBaseURL != "" {
		sink = persist.NewHTTPSink(persist.HTTPSinkConfig{
			BaseURL: cfg.PersistBaseURL,
			Timeout: cfg.PersistTimeout,
		})
		logger.Info("match persistence: enabled", "base_url", cfg.PersistBaseURL)
	}

	// Per-dependency guards and health tracking. Vector index and embedding
	// are critical; completion and persistence only degrade.
	agg := health.NewAggregator(version, cache.Len)
	newGuard := func(name string, critical bool) *resilience.Guard {
		breaker := resilience.NewBreaker(name, resilience.BreakerConfig{
			FailureThreshold: cfg.BreakerFailureThreshold,
			ResetTimeout:     cfg.BreakerReset,
		})
		retrier := resilience.NewRetrier(resilience.RetryConfig{
			MaxAttempts: cfg.RetryMaxAttempts,
			BaseDelay:   cfg.RetryBaseDelay,
			MaxDelay:    cfg.RetryMaxDelay,
		})
		tracker := health.NewTracker()
		agg.Register(name, critical, breaker, tracker)
		return resilience.NewGuard(breaker, retrier, resilience.WithObserver(tracker))
	}

	embedGuard := newGuard("embedding", true)
	vectorGuard := newGuard("vector_index", true)

	var completionGuard *resilience.Guard
	if completer != nil {
		completionGuard = newGuard("completion", false)
	}
	var persistGuard *resilience.Guard
	if sink != nil {
		persistGuard = newGuard("persistence", false)
	}

	scorer := scoring.New(
		scoring.WithWeights(scoring.Weights{
			Semantic: cfg.Weights[0],
			Niche:    cfg.Weights[1],
			Audience: cfg.Weights[2],
			Value:    cfg.Weights[3],
		}),
		scoring.WithAudienceScorer(audienceScorer(cfg.AudienceScorer)),
		scoring.WithWarnHook(func(reason string) {
			logger.Warn("scoring: invalid catalog data clamped", "reason", reason)
		}),
	)

	matcher := match.New(match.Config{
		TopK:                cfg.MatchTopK,
		VectorTopK:          cfg.VectorQueryTopK,
		ScoreParallelism:    cfg.ScoreParallelism,
		EmbedIncludeFilters: cfg.EmbedIncludeFilters,
		EmbedTimeout:        cfg.EmbedTimeout,
		VectorTimeout:       cfg.VectorQueryTimeout,
		CompletionTimeout:   cfg.CompletionTimeout,
		PersistTimeout:      cfg.PersistTimeout,
	}, match.Deps{
		Catalog:         cache,
		Index:           index,
		Embedder:        embedder,
		Completer:       completer,
		Sink:            sink,
		Scorer:          scorer,
		EmbedGuard:      embedGuard,
		VectorGuard:     vectorGuard,
		CompletionGuard: completionGuard,
		PersistGuard:    persistGuard,
		OnFallback:      agg.NoteFallback,
		Logger:          logger,
	})

	// Keep the vector index in step with the catalog.
	syncer := match.NewSyncer(cache, index, embedder, cfg.CatalogRefreshTTL, logger)
	go syncer.Run(ctx)

	var limiter ratelimit.Limiter
	if cfg.RateLimitEnabled {
		perSec := float64(cfg.RateLimitPerMin) / 60.0
		limiter = ratelimit.NewMemoryLimiter(perSec, cfg.RateLimitPerMin)
		defer func() { _ = limiter.Close() }()
		logger.Info("rate limiting: memory (in-process token bucket)",
			"per_minute", cfg.RateLimitPerMin)
	} else {
		limiter = ratelimit.NoopLimiter{}
		logger.Info("rate limiting: disabled")
	}

	srvCfg := server.Config{
		Matcher:             matcher,
		Health:              agg,
		Logger:              logger,
		Limiter:             limiter,
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		RequestTimeout:      cfg.RequestDeadline,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	}
	if cfg.MCPEnabled {
		mcpSrv := mcp.New(version, mcp.Deps{
			Matcher: matcher,
			Catalog: cache,
			Health:  agg,
			Logger:  logger,
		})
		srvCfg.MCPServer = mcpSrv.MCPServer()
		logger.Info("mcp: enabled at /mcp")
	}
	srv := server.New(srvCfg)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	logger.Info("scout shutting down")

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer httpCancel()
	if err := srv.Shutdown(httpCtx); err != nil {
		logger.Error("http shutdown error", "error", err)
	}

	logger.Info("scout stopped")
	return nil
}

// newCatalogSource builds the configured catalog source. The returned close
// function is a no-op for sources without connections.
func newCatalogSource(ctx context.Context, cfg config.Config, logger *slog.Logger) (catalog.Source, func(), error) {
	switch cfg.CatalogSource {
	case "file":
		return catalog.NewFileSource(cfg.CatalogPath), func() {}, nil
	case "postgres":
		src, err := catalog.NewPostgresSource(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := src.EnsureSchema(ctx); err != nil {
			src.Close()
			return nil, nil, err
		}
		return src, src.Close, nil
	case "sqlite":
		src, err := catalog.NewSQLiteSource(ctx, cfg.CatalogPath, logger)
		if err != nil {
			return nil, nil, err
		}
		return src, func() { _ = src.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown catalog source %q", cfg.CatalogSource)
	}
}

// newEmbeddingProvider selects the embedding backend. Auto mode prefers
// OpenAI, then Gemini, else noop (deterministic local vectors, no upstream).
func newEmbeddingProvider(ctx context.Context, cfg config.Config, logger *slog.Logger) embedding.Provider {
	dims := cfg.EmbeddingDimensions

	openai := func() embedding.Provider {
		logger.Info("embedding provider: openai", "model", cfg.EmbeddingModel, "dimensions", dims)
		return embedding.NewOpenAIProvider(embedding.OpenAIConfig{
			APIKey:      cfg.OpenAIAPIKey,
			Model:       cfg.EmbeddingModel,
			Dimensions:  dims,
			Timeout:     cfg.EmbedTimeout,
			Concurrency: cfg.EmbedConcurrency,
		})
	}
	gemini := func() embedding.Provider {
		p, err := embedding.NewGeminiProvider(ctx, embedding.GeminiConfig{
			APIKey:      cfg.GeminiAPIKey,
			Dimensions:  dims,
			Concurrency: cfg.EmbedConcurrency,
		})
		if err != nil {
			logger.Error("gemini provider init failed", "error", err)
			return embedding.NewNoopProvider(dims)
		}
		logger.Info("embedding provider: gemini", "dimensions", dims)
		return p
	}

	switch cfg.AIProvider {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			logger.Error("OPENAI_API_KEY required when AI_PROVIDER=openai")
			return embedding.NewNoopProvider(dims)
		}
		return openai()
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			logger.Error("GEMINI_API_KEY required when AI_PROVIDER=gemini")
			return embedding.NewNoopProvider(dims)
		}
		return gemini()
	case "noop":
		logger.Info("embedding provider: noop (deterministic local vectors)")
		return embedding.NewNoopProvider(dims)
	default:
		if cfg.OpenAIAPIKey != "" {
			return openai()
		}
		if cfg.GeminiAPIKey != "" {
			return gemini()
		}
		logger.Warn("no embedding provider configured, using noop")
		return embedding.NewNoopProvider(dims)
	}
}

// newCompleter selects the completion backend. Nil disables LLM reasoning;
// the match pipeline then uses its templated summary.
func newCompleter(ctx context.Context, cfg config.Config, logger *slog.Logger) completion.Completer {
	switch cfg.AIProvider {
	case "noop":
		return nil
	case "gemini":
		return newGeminiCompleter(ctx, cfg, logger)
	case "openai":
		return newOpenAICompleter(cfg, logger)
	default:
		if cfg.OpenAIAPIKey != "" {
			return newOpenAICompleter(cfg, logger)
		}
		if cfg.GeminiAPIKey != "" {
			return newGeminiCompleter(ctx, cfg, logger)
		}
		logger.Info("completion provider: none (templated reasoning)")
		return nil
	}
}

func newOpenAICompleter(cfg config.Config, logger *slog.Logger) completion.Completer {
	if cfg.OpenAIAPIKey == "" {
		logger.Warn("OPENAI_API_KEY missing, completion disabled")
		return nil
	}
	logger.Info("completion provider: openai", "model", cfg.CompletionModel)
	return completion.NewOpenAICompleter(completion.OpenAIConfig{
		APIKey:  cfg.OpenAIAPIKey,
		Model:   cfg.CompletionModel,
		Timeout: cfg.CompletionTimeout,
	})
}

func newGeminiCompleter(ctx context.Context, cfg config.Config, logger *slog.Logger) completion.Completer {
	if cfg.GeminiAPIKey == "" {
		logger.Warn("GEMINI_API_KEY missing, completion disabled")
		return nil
	}
	c, err := completion.NewGeminiCompleter(ctx, completion.GeminiConfig{APIKey: cfg.GeminiAPIKey})
	if err != nil {
		logger.Error("gemini completer init failed", "error", err)
		return nil
	}
	logger.Info("completion provider: gemini")
	return c
}

func audienceScorer(name string) scoring.AudienceScorer {
	if name == "multi_factor" {
		return scoring.MultiFactorAudience
	}
	return scoring.BinaryLocaleAudience
}
