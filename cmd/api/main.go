package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/atelierhq/recall/internal/api"
	"github.com/atelierhq/recall/internal/cache"
	"github.com/atelierhq/recall/internal/config"
	"github.com/atelierhq/recall/internal/database"
	"github.com/atelierhq/recall/internal/embedding"
	"github.com/atelierhq/recall/internal/insights"
	"github.com/atelierhq/recall/internal/memory"
	"github.com/atelierhq/recall/internal/middleware"
	inats "github.com/atelierhq/recall/internal/nats"
	iredis "github.com/atelierhq/recall/internal/redis"
	"github.com/atelierhq/recall/internal/server"
	"github.com/atelierhq/recall/internal/vector"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.Log)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	// PostgreSQL
	pool, err := database.NewPostgresPool(ctx, cfg.DB)
	if err != nil {
		slog.Error("connecting to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := database.RunMigrations(cfg.DB.DSN(), "migrations"); err != nil {
		slog.Error("running migrations", "error", err)
		os.Exit(1)
	}

	// Redis
	redisClient, err := iredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		slog.Error("connecting to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	// NATS JetStream
	natsClient, err := inats.NewClient(ctx, cfg.NATS)
	if err != nil {
		slog.Error("connecting to NATS", "error", err)
		os.Exit(1)
	}
	defer natsClient.Close()
	publisher := inats.NewPublisher(natsClient.JetStream())
	consumers := inats.NewConsumerManager(natsClient.JetStream())

	// Embedding + vector index
	embedder := embedding.NewClient(cfg.Embedding)
	index := vector.New(pool, embedder)

	// Memory tiers
	userStore := memory.NewUserStore(pool)
	projectStore := memory.NewProjectStore(pool)
	globalStore := memory.NewGlobalStore(pool)
	memorySvc := memory.NewService(userStore, projectStore, globalStore, index, publisher)

	patternSvc := memory.NewPatternService(globalStore, cache.NewRedisCache(redisClient))
	memoryHandler := memory.NewHandler(memorySvc, patternSvc)

	// Insights
	analyzer := insights.NewClaudeAnalyzer(cfg.Analyzer)
	insightRepo := insights.NewRepository(pool)
	insightSvc := insights.NewService(analyzer, globalStore, insightRepo, publisher, cfg.Analyzer.SampleLimit)
	notifier := insights.NewNotifier(insightSvc, consumers)
	if err := notifier.Start(ctx); err != nil {
		slog.Error("starting insight notifier", "error", err)
		os.Exit(1)
	}
	defer notifier.Stop()
	insightHandler := insights.NewHandler(insightSvc, notifier)

	// Write rate limiting: 60 writes per minute per client IP
	writeLimiter := middleware.NewRateLimiter(redisClient, 60, 60)

	// Router
	router := api.NewRouter(pool, natsClient, api.RouterConfig{
		CORSAllowedOrigins: cfg.Server.CORSAllowedOrigins,
		WriteRateLimiter:   writeLimiter.Middleware,
	}, api.HandlerSet{
		StoreMemory:    memoryHandler.Store,
		GetContext:     memoryHandler.Context,
		SearchMemory:   memoryHandler.Search,
		DeleteMemory:   memoryHandler.Delete,
		MemoryFeedback: memoryHandler.Feedback,

		TopPatterns:      memoryHandler.TopPatterns,
		IndustryPatterns: memoryHandler.IndustryPatterns,
		RecordAnalysis:   memoryHandler.RecordAnalysis,

		LatestInsights:  insightHandler.Latest,
		RefreshInsights: insightHandler.Refresh,
	})

	// Start server
	srv := server.New(cfg.Server, router)
	if err := srv.Start(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func setupLogger(cfg config.LogConfig) {
	var handler slog.Handler

	opts := &slog.HandlerOptions{}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "info":
		opts.Level = slog.LevelInfo
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	default:
		opts.Level = slog.LevelInfo
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
