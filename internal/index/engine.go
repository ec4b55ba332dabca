package index

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/streamsearch/streamsearch/internal/meta"
	"github.com/streamsearch/streamsearch/internal/record"
	"github.com/streamsearch/streamsearch/internal/store"
	"github.com/streamsearch/streamsearch/pkg/metrics"
)

// TokenDeltas accumulates per-attribute analyzed-token-count changes, keyed
// by attribute key.
type TokenDeltas map[string]int64

// Merge folds other into d.
func (d TokenDeltas) Merge(other TokenDeltas) {
	for attrKey, delta := range other {
		d[attrKey] += delta
	}
}

// Engine maintains the inverted index from change events. Every operation is
// safe under at-least-once delivery: modifications unconditionally delete the
// document's existing postings before reinserting, so re-applying an event
// converges to the same posting set.
type Engine struct {
	store   store.Store
	schema  *Schema
	meta    *meta.Accumulator
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewEngine creates an index maintenance engine. metrics may be nil.
func NewEngine(st store.Store, schema *Schema, accumulator *meta.Accumulator, m *metrics.Metrics) *Engine {
	return &Engine{
		store:   st,
		schema:  schema,
		meta:    accumulator,
		metrics: m,
		logger:  slog.Default().With("component", "index-engine"),
	}
}

// Schema returns the engine's resolved schema.
func (e *Engine) Schema() *Schema {
	return e.schema
}

// BuildPostings analyzes every configured attribute of a document image and
// constructs its postings: one per distinct token per attribute, each
// carrying the token's occurrence count and the attribute's total token
// count. The returned deltas hold each attribute's total analyzed tokens.
// The bulk exporter shares this path so exported records match live-written
// records exactly.
func BuildPostings(schema *Schema, docKey string, image map[string]string) ([]record.Posting, TokenDeltas, error) {
	var postings []record.Posting
	deltas := make(TokenDeltas)
	for _, attr := range schema.Attributes {
		value, ok := image[attr.Name]
		if !ok || value == "" {
			continue
		}
		tokens, err := attr.Analyzer.Analyze(value)
		if err != nil {
			return nil, nil, fmt.Errorf("analyzing attribute %q: %w", attr.Name, err)
		}
		if len(tokens) == 0 {
			continue
		}
		counts := make(map[string]int, len(tokens))
		order := make([]string, 0, len(tokens))
		for _, tok := range tokens {
			if _, seen := counts[tok.Text]; !seen {
				order = append(order, tok.Text)
			}
			counts[tok.Text]++
		}
		total := len(tokens)
		docTokenCount := uint32(total)
		if total > record.MaxDocTokenCount {
			docTokenCount = record.MaxDocTokenCount
		}
		for _, text := range order {
			occurrence := counts[text]
			if occurrence > record.MaxOccurrence {
				occurrence = record.MaxOccurrence
			}
			postings = append(postings, record.Posting{
				AttrKey:       attr.AttrKey,
				Token:         text,
				Occurrence:    uint16(occurrence),
				DocTokenCount: docTokenCount,
				DocKey:        docKey,
			})
		}
		deltas[attr.AttrKey] += int64(total)
	}
	return postings, deltas, nil
}

// InsertTokens analyzes the document image and writes one posting per
// distinct token per attribute. It returns the number of postings written;
// the caller uses a non-zero count to decide the document-count delta.
func (e *Engine) InsertTokens(ctx context.Context, key map[string]string, image map[string]string) (int, TokenDeltas, error) {
	docKey, err := e.schema.EncodeKey(key)
	if err != nil {
		return 0, nil, err
	}
	postings, deltas, err := BuildPostings(e.schema, docKey, image)
	if err != nil {
		return 0, nil, err
	}
	if len(postings) == 0 {
		return 0, deltas, nil
	}
	reqs := make([]store.WriteRequest, len(postings))
	for i, p := range postings {
		rec := p.ToRecord()
		reqs[i] = store.WriteRequest{Put: &rec}
	}
	if err := e.store.BatchWrite(ctx, reqs); err != nil {
		return 0, nil, fmt.Errorf("writing postings for %q: %w", docKey, err)
	}
	if e.metrics != nil {
		e.metrics.PostingsWrittenTotal.Add(float64(len(postings)))
	}
	e.logger.Debug("postings inserted",
		"doc_key", docKey,
		"postings", len(postings),
	)
	return len(postings), deltas, nil
}

// DeleteTokens removes every posting for the document, found via the
// document-key secondary index, and returns the per-attribute token counts
// reclaimed (each posting's occurrence summed per attribute, as negative
// deltas). A document with no postings deletes nothing and is not an error.
func (e *Engine) DeleteTokens(ctx context.Context, key map[string]string) (int, TokenDeltas, error) {
	docKey, err := e.schema.EncodeKey(key)
	if err != nil {
		return 0, nil, err
	}
	records, err := e.store.QueryByDocKey(ctx, docKey)
	if err != nil {
		return 0, nil, fmt.Errorf("looking up postings for %q: %w", docKey, err)
	}
	deltas := make(TokenDeltas)
	if len(records) == 0 {
		return 0, deltas, nil
	}
	reqs := make([]store.WriteRequest, 0, len(records))
	for i := range records {
		posting, err := record.FromRecord(records[i])
		if err != nil {
			return 0, nil, fmt.Errorf("decoding posting for %q: %w", docKey, err)
		}
		deltas[posting.AttrKey] -= int64(posting.Occurrence)
		reqs = append(reqs, store.WriteRequest{Delete: &records[i]})
	}
	if err := e.store.BatchWrite(ctx, reqs); err != nil {
		return 0, nil, fmt.Errorf("deleting postings for %q: %w", docKey, err)
	}
	if e.metrics != nil {
		e.metrics.PostingsDeletedTotal.Add(float64(len(records)))
	}
	e.logger.Debug("postings deleted",
		"doc_key", docKey,
		"postings", len(records),
	)
	return len(records), deltas, nil
}

// ProcessBatch applies a batch of change events strictly in order: INSERT
// inserts, REMOVE deletes, MODIFY deletes then reinserts (a full replace, not
// a token-level diff). The per-event document-count and token-count deltas
// are folded across the batch and applied to the metadata record in a single
// call, to limit metadata-write amplification.
func (e *Engine) ProcessBatch(ctx context.Context, events []ChangeEvent) error {
	start := time.Now()
	var docDelta int64
	tokenDeltas := make(TokenDeltas)

	for _, event := range events {
		switch event.Kind {
		case EventInsert:
			inserted, deltas, err := e.InsertTokens(ctx, event.Key, event.After)
			if err != nil {
				return fmt.Errorf("processing INSERT: %w", err)
			}
			if inserted > 0 {
				docDelta++
			}
			tokenDeltas.Merge(deltas)

		case EventRemove:
			deleted, deltas, err := e.DeleteTokens(ctx, event.Key)
			if err != nil {
				return fmt.Errorf("processing REMOVE: %w", err)
			}
			if deleted > 0 {
				docDelta--
			}
			tokenDeltas.Merge(deltas)

		case EventModify:
			deleted, delDeltas, err := e.DeleteTokens(ctx, event.Key)
			if err != nil {
				return fmt.Errorf("processing MODIFY delete: %w", err)
			}
			inserted, insDeltas, err := e.InsertTokens(ctx, event.Key, event.After)
			if err != nil {
				return fmt.Errorf("processing MODIFY insert: %w", err)
			}
			if deleted > 0 {
				docDelta--
			}
			if inserted > 0 {
				docDelta++
			}
			tokenDeltas.Merge(delDeltas)
			tokenDeltas.Merge(insDeltas)

		default:
			return fmt.Errorf("unknown event kind %q", event.Kind)
		}
		if e.metrics != nil {
			e.metrics.ChangeEventsTotal.WithLabelValues(string(event.Kind)).Inc()
		}
	}

	if err := e.meta.ApplyDelta(ctx, docDelta, tokenDeltas); err != nil {
		return err
	}
	if e.metrics != nil {
		e.metrics.EventBatchSize.Observe(float64(len(events)))
		e.metrics.MetadataUpdatesTotal.Inc()
		e.metrics.IndexLatency.WithLabelValues("batch").Observe(time.Since(start).Seconds())
	}
	e.logger.Info("change batch processed",
		"events", len(events),
		"doc_delta", docDelta,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return nil
}
