package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/streamsearch/streamsearch/internal/analysis"
	"github.com/streamsearch/streamsearch/internal/index"
	"github.com/streamsearch/streamsearch/internal/meta"
	"github.com/streamsearch/streamsearch/internal/search"
	"github.com/streamsearch/streamsearch/internal/searcher/cache"
	"github.com/streamsearch/streamsearch/internal/searcher/handler"
	"github.com/streamsearch/streamsearch/internal/store"
	"github.com/streamsearch/streamsearch/internal/stream"
	"github.com/streamsearch/streamsearch/pkg/config"
	"github.com/streamsearch/streamsearch/pkg/health"
	"github.com/streamsearch/streamsearch/pkg/kafka"
	"github.com/streamsearch/streamsearch/pkg/logger"
	"github.com/streamsearch/streamsearch/pkg/metrics"
	"github.com/streamsearch/streamsearch/pkg/middleware"
	"github.com/streamsearch/streamsearch/pkg/postgres"
	pkgredis "github.com/streamsearch/streamsearch/pkg/redis"
)

const analyzerCacheSize = 128

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting searcher",
		"port", cfg.Server.Port,
		"table", cfg.Index.Table,
		"backend", cfg.Store.Backend,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, cleanup, err := buildStore(cfg)
	if err != nil {
		slog.Error("failed to initialize store", "backend", cfg.Store.Backend, "error", err)
		os.Exit(1)
	}
	defer cleanup()

	analyzers, err := analysis.NewCache(analyzerCacheSize)
	if err != nil {
		slog.Error("failed to create analyzer cache", "error", err)
		os.Exit(1)
	}
	schema, err := index.NewSchema(cfg.Index, analyzers)
	if err != nil {
		slog.Error("invalid index configuration", "error", err)
		os.Exit(1)
	}

	m := metrics.New()
	accumulator := meta.New(st)
	engine := search.New(st, schema, accumulator, m)

	var queryCache *cache.QueryCache
	var redisClient *pkgredis.Client
	if cfg.Search.CacheEnabled {
		redisClient, err = pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			queryCache = cache.New(redisClient, cfg.Redis, m)
			slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	// Flush cached results when the indexer announces applied changes.
	if queryCache != nil && cfg.Kafka.InvalidateTopic != "" {
		invalidations := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.InvalidateTopic)
		go func() {
			if err := stream.RunInvalidationListener(ctx, invalidations, queryCache); err != nil {
				slog.Error("invalidation listener error", "error", err)
			}
		}()
		slog.Info("cache invalidation listener started", "topic", cfg.Kafka.InvalidateTopic)
	}

	checker := health.NewChecker()
	checker.Register("store", health.CheckPing(st.Ping))
	if redisClient != nil {
		checker.Register("redis", health.CheckPing(redisClient.Ping))
	}

	h := handler.New(engine, queryCache, accumulator, m, cfg.Search.MaxItems, cfg.Search.MinScore)

	mux := http.NewServeMux()
	h.Routes(mux)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.RequestTimeout)(chain)
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("searcher listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("searcher stopped")
}

func buildStore(cfg *config.Config) (store.Store, func(), error) {
	switch cfg.Store.Backend {
	case "redis":
		client, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		return store.NewRedis(client, cfg.Index.Table), func() { client.Close() }, nil
	case "postgres":
		client, err := postgres.New(cfg.Postgres)
		if err != nil {
			return nil, nil, err
		}
		return store.NewPostgres(client.DB, cfg.Index.Table), func() { client.Close() }, nil
	case "memory":
		return store.NewMemory(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}
