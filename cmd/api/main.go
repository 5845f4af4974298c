package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pressroom/backend/internal/api/handlers"
	cacheredis "github.com/pressroom/backend/internal/cache/redis"
	"github.com/pressroom/backend/internal/chain"
	"github.com/pressroom/backend/internal/content"
	"github.com/pressroom/backend/internal/ingestion"
	"github.com/pressroom/backend/internal/keyword"
	"github.com/pressroom/backend/internal/llm"
	"github.com/pressroom/backend/internal/metrics"
	"github.com/pressroom/backend/internal/middleware/security"
	"github.com/pressroom/backend/internal/middleware/validation"
	"github.com/pressroom/backend/internal/quota"
	"github.com/pressroom/backend/internal/ratelimit"
	"github.com/pressroom/backend/internal/retrieval"
	"github.com/pressroom/backend/internal/storage/sqlite"
	"github.com/pressroom/backend/internal/tracing"
	"github.com/pressroom/backend/internal/vector"
	"github.com/pressroom/backend/internal/vector/milvus"
	"github.com/pressroom/backend/internal/vector/pgvector"
	"github.com/pressroom/backend/pkg/config"
	appLogger "github.com/pressroom/backend/pkg/logger"
	"github.com/pressroom/backend/pkg/retry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting Pressroom API Server")

	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	err = sqliteClient.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	health := map[string]handlers.HealthCheck{"sqlite": sqliteClient.Ping}

	var redisClient *cacheredis.Client
	if cfg.Redis.Enabled {
		redisClient, err = retry.DoWithResult(ctx, startupRetry("redis"), func(ctx context.Context) (*cacheredis.Client, error) {
			return cacheredis.NewClient(ctx, cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		})
		if err != nil {
			appLogger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		health["redis"] = redisClient.Ping
	}

	provider := llm.NewOpenAIClient(llm.Config{
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.Model,
		EmbeddingModel: cfg.LLM.EmbeddingModel,
		Temperature:    cfg.LLM.Temperature,
		MaxTokens:      cfg.LLM.MaxTokens,
		Timeout:        time.Duration(cfg.LLM.TimeoutSec) * time.Second,
	})

	var embedder llm.Embedder = provider
	if redisClient != nil {
		embedder = llm.NewCachedEmbedder(provider, redisClient, time.Duration(cfg.Redis.EmbeddingTTL)*time.Second)
	}

	metric, err := vector.ParseMetric(cfg.Vector.Metric)
	if err != nil {
		appLogger.Fatal("Invalid vector metric", zap.Error(err))
	}

	native, closeNative := openNativeIndex(ctx, cfg, metric)
	defer closeNative()

	var nativeSearch vector.SemanticSearch
	if native != nil {
		nativeSearch = vector.NewNativeSearch(native, embedder, metric)
		if p, ok := native.(interface{ Ping(context.Context) error }); ok {
			health[native.Name()] = p.Ping
		}
	}

	traceBuffer := tracing.NewBuffer()
	model := cfg.LLM.Model
	chains := content.Chains{
		Headline:     tracing.Wrap[string, chain.HeadlineResult]("headline", chain.NewHeadlineChain(provider, model), traceBuffer),
		PressRelease: tracing.Wrap[chain.GenerationContext, chain.StructuredPressRelease]("press_release", chain.NewPressReleaseChain(provider, model), traceBuffer),
		Edit:         tracing.Wrap[chain.EditInput, string]("edit", chain.NewEditChain(provider, model), traceBuffer),
		Translate:    tracing.Wrap[chain.TranslationInput, string]("translation", chain.NewTranslationChain(provider, model), traceBuffer),
		Ad:           tracing.Wrap[chain.AdInput, chain.AdStructured]("ad", chain.NewAdChain(provider, model), traceBuffer),
		Social:       tracing.Wrap[string, chain.SocialPosts]("social_posts", chain.NewSocialChain(provider, model), traceBuffer),
	}

	keywordIndex := keyword.NewIndex()

	orchestrator := retrieval.NewOrchestrator(retrieval.Config{
		Native:          nativeSearch,
		JSON:            vector.NewJSONSearch(sqliteClient, embedder, cfg.Vector.JSONScanLimit, appLogger.Named("vector")),
		Keyword:         sqliteClient,
		Index:           keywordIndex,
		StageTimeout:    time.Duration(cfg.Retrieval.StageTimeoutMs) * time.Millisecond,
		BreakerFailures: uint32(cfg.Retrieval.BreakerFailures),
		BreakerCooldown: time.Duration(cfg.Retrieval.BreakerCooldownSec) * time.Second,
		Logger:          appLogger.Named("retrieval"),
	})

	mode, err := quota.ParseMode(cfg.Limits.Disable)
	if err != nil {
		appLogger.Fatal("Invalid limits mode", zap.Error(err))
	}
	if mode != quota.ModeEnforced {
		appLogger.Warn("Quota and rate limits are not enforced", zap.String("mode", string(mode)))
	}

	accountant := quota.NewAccountant(quota.Config{
		Store:             sqliteClient,
		MonthlyTokenLimit: cfg.Quota.MonthlyTokenLimit,
		Mode:              mode,
		Logger:            appLogger.Named("quota"),
	})

	var limiterStore ratelimit.Store = ratelimit.NewMemoryStore()
	if cfg.RateLimit.Store == "redis" {
		limiterStore = ratelimit.NewRedisStore(redisClient)
	}
	limiter := ratelimit.New(ratelimit.Config{
		Window:   time.Duration(cfg.RateLimit.WindowSec) * time.Second,
		MaxCalls: cfg.RateLimit.MaxCalls,
		Mode:     mode,
		Store:    limiterStore,
		Logger:   appLogger.Named("ratelimit"),
	})

	processor := ingestion.NewProcessor(ingestion.Config{
		Store:     sqliteClient,
		Embedder:  embedder,
		Native:    native,
		Index:     keywordIndex,
		Usage:     accountant,
		ChunkSize: cfg.Ingestion.ChunkSize,
		Logger:    appLogger.Named("ingestion"),
	})

	contentService := content.NewService(content.Config{
		Chains:    chains,
		Retriever: orchestrator,
		Quota:     accountant,
		Model:     model,
		Retrieval: retrieval.Options{
			Limit:    cfg.Retrieval.Limit,
			Strategy: cfg.Vector.Strategy,
			MinScore: cfg.Retrieval.MinScore,
			MaxChars: cfg.Retrieval.MaxChars,
		},
		Logger: appLogger.Named("content"),
	})

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.Server.AllowedOrigins, ", "),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-User-ID",
		AllowMethods: "GET, POST, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		IsDevelopment:  cfg.Server.Development,
	}))
	app.Use(validation.Middleware(validation.Config{Logger: appLogger.Named("validation")}))

	app.Get("/metrics", metrics.MetricsHandler())

	handlers.Register(app, handlers.Routes{
		Generate:  handlers.NewGenerateHandler(contentService),
		Documents: handlers.NewDocumentHandler(processor),
		Search:    handlers.NewSearchHandler(contentService, accountant),
		Health:    health,
		Guards:    []fiber.Handler{validation.RequireUser(), limiter.Middleware()},
	})

	exporter := tracing.NewExporter(traceBuffer, sqliteClient,
		time.Duration(cfg.Tracing.ExportIntervalSec)*time.Second, appLogger.Named("tracing"))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return exporter.Run(gctx)
	})
	g.Go(func() error {
		if err := app.Listen(addr); err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		appLogger.Info("Server shutting down gracefully...")
		return app.ShutdownWithTimeout(10 * time.Second)
	})

	if err := g.Wait(); err != nil {
		appLogger.Error("Server stopped with error", zap.Error(err))
		return
	}
	appLogger.Info("Server stopped")
}

func startupRetry(name string) retry.Config {
	cfg := retry.DefaultConfig(name)
	cfg.MaxAttempts = 5
	cfg.InitialDelay = 500 * time.Millisecond
	cfg.Logger = appLogger.Named("retry")
	return cfg
}

// openNativeIndex connects the configured vector backend when the
// native-vector strategy is selected. A backend that cannot be reached is
// logged and skipped; retrieval then starts at the JSON strategy.
func openNativeIndex(ctx context.Context, cfg *config.Config, metric vector.Metric) (vector.Index, func()) {
	noop := func() {}
	if cfg.Vector.Strategy != retrieval.StrategyNative {
		return nil, noop
	}

	switch cfg.Vector.Backend {
	case "pgvector":
		store, err := retry.DoWithResult(ctx, startupRetry("pgvector"), func(ctx context.Context) (*pgvector.Store, error) {
			return pgvector.Open(ctx, cfg.Postgres.DSN)
		})
		if err != nil {
			appLogger.Error("pgvector unavailable, falling back to JSON vectors", zap.Error(err))
			return nil, noop
		}
		return store, func() { _ = store.Close() }

	case "milvus":
		client, err := retry.DoWithResult(ctx, startupRetry("milvus"), func(ctx context.Context) (*milvus.Client, error) {
			c, err := milvus.NewClient(ctx, cfg.Milvus.Endpoint, cfg.Milvus.APIKey, cfg.Milvus.CollectionName, cfg.Vector.Dimension, metric)
			if err != nil {
				return nil, err
			}
			if err := c.EnsureCollection(ctx); err != nil {
				_ = c.Close()
				return nil, err
			}
			return c, nil
		})
		if err != nil {
			appLogger.Error("Milvus unavailable, falling back to JSON vectors", zap.Error(err))
			return nil, noop
		}
		return client, func() { _ = client.Close() }
	}

	appLogger.Error("Unknown vector backend, falling back to JSON vectors", zap.String("backend", cfg.Vector.Backend))
	return nil, noop
}
