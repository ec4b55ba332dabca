// Package meta maintains the index's single metadata record: the running
// document count and per-attribute token counts that feed BM25's corpus
// statistics. All mutation goes through commutative atomic increments, so
// concurrent indexers working disjoint shards of the same change stream sum
// correctly in any interleaving.
package meta

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/streamsearch/streamsearch/internal/record"
	"github.com/streamsearch/streamsearch/internal/store"
)

// Metadata is a point-in-time read of the metadata record.
type Metadata struct {
	// DocumentCount is the signed running total of indexed documents.
	DocumentCount int64
	// TokenCount maps attribute keys to their running analyzed-token totals.
	TokenCount map[string]int64
}

// AvgDocLength returns TokenCount[attrKey] / DocumentCount, the approximate
// average document length for the attribute, or 0 for an empty index.
func (m *Metadata) AvgDocLength(attrKey string) float64 {
	if m.DocumentCount <= 0 {
		return 0
	}
	return float64(m.TokenCount[attrKey]) / float64(m.DocumentCount)
}

// Accumulator applies batched deltas to the metadata record and reads it
// back. It holds no state of its own: the record is always freshly read,
// never cached across requests.
type Accumulator struct {
	store  store.Store
	logger *slog.Logger
}

// New creates an Accumulator over the given store.
func New(st store.Store) *Accumulator {
	return &Accumulator{
		store:  st,
		logger: slog.Default().With("component", "metadata"),
	}
}

// ApplyDelta atomically adds the document-count delta and per-attribute
// token-count deltas to the metadata record, creating it (all counters zero)
// on first update. Zero-valued calls are skipped entirely.
func (a *Accumulator) ApplyDelta(ctx context.Context, docDelta int64, tokenDeltas map[string]int64) error {
	deltas := make(map[string]int64, len(tokenDeltas)+1)
	if docDelta != 0 {
		deltas[record.MetaDocCountField] = docDelta
	}
	for attrKey, delta := range tokenDeltas {
		if delta != 0 {
			deltas[record.MetaTokenCountField(attrKey)] = delta
		}
	}
	if len(deltas) == 0 {
		return nil
	}
	if err := a.store.Add(ctx, record.MetaKey(), deltas); err != nil {
		return fmt.Errorf("applying metadata delta: %w", err)
	}
	a.logger.Debug("metadata delta applied",
		"doc_delta", docDelta,
		"token_deltas", tokenDeltas,
	)
	return nil
}

// Metadata point-reads the metadata record, returning zero counts for an
// index that has never been written, plus the read capacity consumed.
func (a *Accumulator) Metadata(ctx context.Context) (*Metadata, float64, error) {
	rec, capacity, err := a.store.Get(ctx, record.MetaKey())
	if err != nil {
		return nil, 0, fmt.Errorf("reading metadata record: %w", err)
	}
	md := &Metadata{TokenCount: make(map[string]int64)}
	if rec == nil {
		return md, capacity, nil
	}
	for field, value := range rec.Numbers {
		if field == record.MetaDocCountField {
			md.DocumentCount = value
			continue
		}
		if attrKey, ok := record.AttrFromTokenCountField(field); ok {
			md.TokenCount[attrKey] = value
		}
	}
	return md, capacity, nil
}
