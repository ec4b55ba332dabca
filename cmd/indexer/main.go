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
	"github.com/streamsearch/streamsearch/internal/store"
	"github.com/streamsearch/streamsearch/internal/stream"
	"github.com/streamsearch/streamsearch/pkg/config"
	"github.com/streamsearch/streamsearch/pkg/health"
	"github.com/streamsearch/streamsearch/pkg/kafka"
	"github.com/streamsearch/streamsearch/pkg/logger"
	"github.com/streamsearch/streamsearch/pkg/metrics"
	"github.com/streamsearch/streamsearch/pkg/postgres"
	pkgredis "github.com/streamsearch/streamsearch/pkg/redis"
)

const analyzerCacheSize = 128

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	createIndex := flag.Bool("create-index", false, "provision the index table before consuming (no-op if it exists)")
	dropIndex := flag.Bool("drop-index", false, "tear the index table down and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting indexer",
		"table", cfg.Index.Table,
		"backend", cfg.Store.Backend,
		"topic", cfg.Kafka.Topic,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, cleanup, err := buildStore(cfg)
	if err != nil {
		slog.Error("failed to initialize store", "backend", cfg.Store.Backend, "error", err)
		os.Exit(1)
	}
	defer cleanup()

	if *dropIndex {
		if err := st.DeleteIndex(ctx, true); err != nil {
			slog.Error("failed to drop index table", "error", err)
			os.Exit(1)
		}
		slog.Info("index table dropped", "table", cfg.Index.Table)
		return
	}
	if *createIndex {
		if err := st.CreateIndex(ctx, true); err != nil {
			slog.Error("failed to create index table", "error", err)
			os.Exit(1)
		}
		slog.Info("index table ready", "table", cfg.Index.Table)
	}

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
	engine := index.NewEngine(st, schema, meta.New(st), m)

	var invalidator *kafka.Producer
	if cfg.Kafka.InvalidateTopic != "" {
		invalidator = kafka.NewProducer(cfg.Kafka, cfg.Kafka.InvalidateTopic)
		defer invalidator.Close()
	}

	consumer := stream.New(
		kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topic),
		engine,
		invalidator,
		cfg.Kafka,
	)

	if cfg.Metrics.Enabled {
		go serveMetrics(cfg, st)
	}

	if err := consumer.Run(ctx); err != nil {
		slog.Error("consumer error", "error", err)
		os.Exit(1)
	}
	slog.Info("indexer stopped")
}

// serveMetrics exposes Prometheus metrics and health probes on the metrics
// port.
func serveMetrics(cfg *config.Config, st store.Store) {
	checker := health.NewChecker()
	checker.Register("store", health.CheckPing(st.Ping))

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	addr := fmt.Sprintf(":%d", cfg.Metrics.Port)
	slog.Info("metrics server listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("metrics server error", "error", err)
	}
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
