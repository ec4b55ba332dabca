package bulk

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/streamsearch/streamsearch/internal/index"
	"github.com/streamsearch/streamsearch/pkg/kafka"
)

// publishChunkSize bounds how many change events go into one batched
// Kafka write.
const publishChunkSize = 100

// BatchPublisher writes a batch of events to the change-event topic.
// Satisfied by *kafka.Producer.
type BatchPublisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// Publisher replays an existing document collection onto the change stream
// as INSERT events, so a bulk load converges through the exact same path as
// live changes instead of the offline record export.
type Publisher struct {
	schema   *index.Schema
	producer BatchPublisher
	logger   *slog.Logger
}

func NewPublisher(schema *index.Schema, producer BatchPublisher) *Publisher {
	return &Publisher{
		schema:   schema,
		producer: producer,
		logger:   slog.Default().With("component", "bulk-publisher"),
	}
}

// Publish drains src and publishes its documents as INSERT change events in
// chunked batch writes, returning the number of events published. Each
// event is keyed by the document's encoded key so redeliveries and later
// live changes for the same document land on the same partition, in order.
func (p *Publisher) Publish(ctx context.Context, src DocumentSource) (int64, error) {
	start := time.Now()
	var published int64
	batch := make([]kafka.Event, 0, publishChunkSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := p.producer.PublishBatch(ctx, batch); err != nil {
			return fmt.Errorf("publishing change events: %w", err)
		}
		published += int64(len(batch))
		batch = batch[:0]
		return nil
	}

	for {
		doc, err := src.Next(ctx)
		if err != nil {
			if err == io.EOF {
				break
			}
			return published, fmt.Errorf("reading document: %w", err)
		}
		docKey, err := p.schema.EncodeKey(doc.Key)
		if err != nil {
			return published, fmt.Errorf("document %d: %w", published+int64(len(batch))+1, err)
		}
		batch = append(batch, kafka.Event{
			Key: docKey,
			Value: index.ChangeEvent{
				Kind:  index.EventInsert,
				Key:   doc.Key,
				After: doc.Attributes,
			},
		})
		if len(batch) == publishChunkSize {
			if err := flush(); err != nil {
				return published, err
			}
		}
	}
	if err := flush(); err != nil {
		return published, err
	}

	p.logger.Info("bulk publish completed",
		"events", published,
		"duration", time.Since(start),
	)
	return published, nil
}
