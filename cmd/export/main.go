// Command export converts an existing document collection (NDJSON on stdin
// or a file) into index records for offline bulk loading, or with -publish
// replays the documents onto the change-event topic so they are indexed
// through the live path.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/streamsearch/streamsearch/internal/analysis"
	"github.com/streamsearch/streamsearch/internal/bulk"
	"github.com/streamsearch/streamsearch/internal/index"
	"github.com/streamsearch/streamsearch/pkg/config"
	"github.com/streamsearch/streamsearch/pkg/kafka"
	"github.com/streamsearch/streamsearch/pkg/logger"
)

const analyzerCacheSize = 128

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	inputPath := flag.String("input", "-", "NDJSON document file ('-' for stdin)")
	outputPath := flag.String("output", "-", "output file ('-' for stdout)")
	publish := flag.Bool("publish", false, "publish documents as change events instead of writing records")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	in := os.Stdin
	if *inputPath != "-" {
		in, err = os.Open(*inputPath)
		if err != nil {
			slog.Error("failed to open input", "path", *inputPath, "error", err)
			os.Exit(1)
		}
		defer in.Close()
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

	if *publish {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topic)
		defer producer.Close()
		events, err := bulk.NewPublisher(schema, producer).Publish(ctx, bulk.NewFileSource(in))
		if err != nil {
			slog.Error("publish failed", "events", events, "error", err)
			os.Exit(1)
		}
		slog.Info("publish finished", "events", events, "topic", cfg.Kafka.Topic)
		return
	}

	out := os.Stdout
	if *outputPath != "-" {
		out, err = os.Create(*outputPath)
		if err != nil {
			slog.Error("failed to create output", "path", *outputPath, "error", err)
			os.Exit(1)
		}
		defer out.Close()
	}

	stats, err := bulk.NewExporter(schema).Export(ctx, bulk.NewFileSource(in), out)
	if err != nil {
		slog.Error("export failed", "error", err)
		os.Exit(1)
	}
	slog.Info("export finished",
		"documents", stats.Documents,
		"postings", stats.Postings,
		"skipped", stats.Skipped,
	)
}
