// Package stream consumes change events from Kafka and applies them to the
// inverted index. Messages are accumulated into batches so per-document
// metadata deltas fold into a single atomic counter update, then committed
// only after the whole batch has been applied. Delivery is at-least-once;
// the index operations are idempotent, so redelivery converges.
package stream

import (
	"context"
	"errors"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/streamsearch/streamsearch/internal/index"
	"github.com/streamsearch/streamsearch/internal/searcher/cache"
	"github.com/streamsearch/streamsearch/pkg/config"
	"github.com/streamsearch/streamsearch/pkg/kafka"
)

const (
	defaultBatchSize   = 100
	defaultBatchLinger = 200 * time.Millisecond
)

// Consumer drives the index engine from a change-event topic.
type Consumer struct {
	consumer    *kafka.Consumer
	engine      *index.Engine
	invalidator *kafka.Producer
	batchSize   int
	batchLinger time.Duration
	logger      *slog.Logger
}

// New creates a stream consumer. invalidator may be nil when no cache
// invalidation topic is configured.
func New(consumer *kafka.Consumer, engine *index.Engine, invalidator *kafka.Producer, cfg config.KafkaConfig) *Consumer {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	linger := cfg.BatchLinger
	if linger <= 0 {
		linger = defaultBatchLinger
	}
	return &Consumer{
		consumer:    consumer,
		engine:      engine,
		invalidator: invalidator,
		batchSize:   batchSize,
		batchLinger: linger,
		logger:      slog.Default().With("component", "stream-consumer"),
	}
}

// Run fetches, applies, and commits change events until ctx is cancelled.
// A failed batch is left uncommitted so the broker redelivers it.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("stream consumer started", "batch_size", c.batchSize, "batch_linger", c.batchLinger)
	for {
		msgs, err := c.nextBatch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("stream consumer stopping", "reason", ctx.Err())
				return c.consumer.Close()
			}
			c.logger.Error("failed to fetch messages", "error", err)
			continue
		}
		if err := c.apply(ctx, msgs); err != nil {
			if ctx.Err() != nil {
				return c.consumer.Close()
			}
			c.logger.Error("failed to apply batch", "messages", len(msgs), "error", err)
			continue
		}
		if err := c.consumer.Commit(ctx, msgs...); err != nil {
			c.logger.Error("failed to commit batch", "messages", len(msgs), "error", err)
		}
	}
}

// nextBatch blocks for the first message, then keeps accumulating until the
// batch is full or the linger window expires without a new message.
func (c *Consumer) nextBatch(ctx context.Context) ([]kafkago.Message, error) {
	first, err := c.consumer.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	msgs := []kafkago.Message{first}
	for len(msgs) < c.batchSize {
		fetchCtx, cancel := context.WithTimeout(ctx, c.batchLinger)
		msg, err := c.consumer.Fetch(fetchCtx)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				break
			}
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func (c *Consumer) apply(ctx context.Context, msgs []kafkago.Message) error {
	events := make([]index.ChangeEvent, 0, len(msgs))
	for _, msg := range msgs {
		event, err := kafka.DecodeJSON[index.ChangeEvent](msg.Value)
		if err != nil {
			// A malformed message never becomes valid on redelivery.
			c.logger.Error("skipping undecodable change event",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
			continue
		}
		events = append(events, event)
	}
	if len(events) == 0 {
		return nil
	}
	if err := c.engine.ProcessBatch(ctx, events); err != nil {
		return err
	}
	c.invalidate(ctx, len(events))
	return nil
}

// invalidate tells searchers to drop cached results that predate this batch.
// Failures are logged only: the cache expires by TTL anyway.
func (c *Consumer) invalidate(ctx context.Context, eventCount int) {
	if c.invalidator == nil {
		return
	}
	err := c.invalidator.Publish(ctx, kafka.Event{
		Key:   "invalidate",
		Value: map[string]any{"events": eventCount, "at": time.Now().UTC()},
	})
	if err != nil {
		c.logger.Error("failed to publish cache invalidation", "error", err)
	}
}

// RunInvalidationListener consumes the cache-invalidation topic and flushes
// the query cache on every message. Used by the searcher process.
func RunInvalidationListener(ctx context.Context, consumer *kafka.Consumer, queryCache *cache.QueryCache) error {
	return consumer.Start(ctx, func(ctx context.Context, key, value []byte) error {
		return queryCache.Invalidate(ctx)
	})
}
