// Package search answers ranked full-text queries from the inverted index
// using BM25, computed entirely from primitive key-range lookups: one range
// read per distinct (attribute, token) pair plus one metadata point read.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/streamsearch/streamsearch/internal/index"
	"github.com/streamsearch/streamsearch/internal/meta"
	"github.com/streamsearch/streamsearch/internal/record"
	"github.com/streamsearch/streamsearch/internal/store"
	pkgerrors "github.com/streamsearch/streamsearch/pkg/errors"
	"github.com/streamsearch/streamsearch/pkg/metrics"
)

const (
	// DefaultK1 is BM25's term-frequency saturation parameter.
	DefaultK1 = 1.2
	// DefaultB is BM25's length-normalization strength.
	DefaultB = 0.75
	// DefaultMaxItems bounds the result list when the caller does not.
	DefaultMaxItems = 100

	// maxConcurrentLookups bounds parallel range reads per search.
	maxConcurrentLookups = 8
)

// BM25Params overrides the ranking function's parameters; nil fields take
// the defaults. Pointers distinguish "unset" from an explicit zero, which is
// legal for B (disables length normalization) and K1 (pure presence scoring).
type BM25Params struct {
	K1 *float64 `json:"k1,omitempty"`
	B  *float64 `json:"b,omitempty"`
}

// Options controls a search call. Attributes entries are logical attribute
// names with an optional "^boost" suffix; when empty, every configured
// attribute is searched with its configured boost.
type Options struct {
	Attributes []string   `json:"attributes,omitempty"`
	MaxItems   int        `json:"maxItems,omitempty"`
	MinScore   float64    `json:"minScore,omitempty"`
	BM25       BM25Params `json:"bm25,omitempty"`
}

// Item is one ranked result: the document's decoded key attributes and its
// accumulated score. Scores are reported against keys only, never documents.
type Item struct {
	Keys  map[string]string `json:"keys"`
	Score float64           `json:"score"`
}

// Result is a ranked result list plus the cumulative read capacity the store
// reported across the metadata read and every range lookup.
type Result struct {
	Items            []Item  `json:"items"`
	ConsumedCapacity float64 `json:"consumedCapacity"`
}

// Engine executes searches against the index.
type Engine struct {
	store   store.Store
	schema  *index.Schema
	meta    *meta.Accumulator
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates a search engine. metrics may be nil.
func New(st store.Store, schema *index.Schema, accumulator *meta.Accumulator, m *metrics.Metrics) *Engine {
	return &Engine{
		store:   st,
		schema:  schema,
		meta:    accumulator,
		metrics: m,
		logger:  slog.Default().With("component", "search-engine"),
	}
}

// boostedAttr pairs a resolved attribute with its effective boost.
type boostedAttr struct {
	attr  *index.Attribute
	boost float64
}

// lookup identifies one (attribute, token) range read.
type lookup struct {
	attrIdx int
	token   string
}

// Search tokenizes the query through each searched attribute's own analyzer,
// issues one range lookup per distinct (attribute, token) pair, scores every
// retrieved posting with BM25, and aggregates per-document scores across
// tokens and attributes.
func (e *Engine) Search(ctx context.Context, query string, opts Options) (*Result, error) {
	start := time.Now()
	attrs, err := e.resolveAttributes(opts.Attributes)
	if err != nil {
		return nil, err
	}
	k1, b := DefaultK1, DefaultB
	if opts.BM25.K1 != nil {
		k1 = *opts.BM25.K1
	}
	if opts.BM25.B != nil {
		b = *opts.BM25.B
	}
	maxItems := opts.MaxItems
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}

	md, capacity, err := e.meta.Metadata(ctx)
	if err != nil {
		return nil, err
	}
	n := md.DocumentCount

	// Analyze the query once per searched attribute; analyzers differ per
	// attribute, so token sets do too.
	lookups := make([]lookup, 0)
	for i, ba := range attrs {
		if md.TokenCount[ba.attr.AttrKey] == 0 {
			// Never-indexed attribute: no postings exist and the BM25
			// length normalization is undefined, so skip it.
			continue
		}
		tokens, err := ba.attr.Analyzer.Analyze(query)
		if err != nil {
			return nil, err
		}
		seen := make(map[string]struct{}, len(tokens))
		for _, tok := range tokens {
			if _, dup := seen[tok.Text]; dup {
				continue
			}
			seen[tok.Text] = struct{}{}
			lookups = append(lookups, lookup{attrIdx: i, token: tok.Text})
		}
	}

	postings := make([][]store.Record, len(lookups))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentLookups)
	for i, lk := range lookups {
		g.Go(func() error {
			partition := record.PartitionKey(attrs[lk.attrIdx].attr.AttrKey, lk.token)
			records, consumed, err := e.store.QueryPartition(gctx, partition)
			if err != nil {
				return fmt.Errorf("querying token %q: %w", lk.token, err)
			}
			mu.Lock()
			postings[i] = records
			capacity += consumed
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	scores := make(map[string]float64)
	for i, lk := range lookups {
		ba := attrs[lk.attrIdx]
		df := int64(len(postings[i]))
		if df == 0 {
			continue
		}
		idf := computeIDF(n, df)
		avgLen := md.AvgDocLength(ba.attr.AttrKey)
		for _, rec := range postings[i] {
			posting, err := record.FromRecord(rec)
			if err != nil {
				return nil, fmt.Errorf("token %q: %w", lk.token, err)
			}
			tf := computeTF(float64(posting.Occurrence), float64(posting.DocTokenCount), avgLen, k1, b)
			scores[posting.DocKey] += ba.boost * tf * idf * (k1 + 1)
		}
	}

	items, err := e.rank(scores, opts.MinScore, maxItems)
	if err != nil {
		return nil, err
	}
	if e.metrics != nil {
		e.metrics.ReadCapacityConsumed.Add(capacity)
		e.metrics.SearchResultsCount.Observe(float64(len(items)))
		resultType := "hit"
		if len(items) == 0 {
			resultType = "zero_result"
		}
		e.metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	}
	e.logger.Info("search executed",
		"query", query,
		"lookups", len(lookups),
		"results", len(items),
		"capacity", capacity,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return &Result{Items: items, ConsumedCapacity: capacity}, nil
}

// resolveAttributes expands the requested attribute list ("name" or
// "name^boost") into resolved attributes, defaulting to every configured
// attribute. An explicit boost suffix overrides the attribute's configured
// boost.
func (e *Engine) resolveAttributes(requested []string) ([]boostedAttr, error) {
	if len(requested) == 0 {
		out := make([]boostedAttr, len(e.schema.Attributes))
		for i := range e.schema.Attributes {
			out[i] = boostedAttr{attr: &e.schema.Attributes[i], boost: e.schema.Attributes[i].Boost}
		}
		return out, nil
	}
	out := make([]boostedAttr, 0, len(requested))
	for _, expr := range requested {
		name := expr
		boost := 0.0
		if i := strings.LastIndex(expr, "^"); i >= 0 {
			parsed, err := strconv.ParseFloat(expr[i+1:], 64)
			if err != nil || parsed < 0 {
				return nil, fmt.Errorf("%w: boost in %q", pkgerrors.ErrInvalidInput, expr)
			}
			name = expr[:i]
			boost = parsed
		}
		attr, err := e.schema.Attribute(name)
		if err != nil {
			return nil, err
		}
		if boost == 0 {
			boost = attr.Boost
		}
		out = append(out, boostedAttr{attr: attr, boost: boost})
	}
	return out, nil
}

// rank filters, orders, and truncates accumulated scores, decoding each
// surviving key back to the original key-attribute shape. Ties order by key
// for determinism.
func (e *Engine) rank(scores map[string]float64, minScore float64, maxItems int) ([]Item, error) {
	type scored struct {
		docKey string
		score  float64
	}
	ranked := make([]scored, 0, len(scores))
	for docKey, score := range scores {
		if score < minScore {
			continue
		}
		ranked = append(ranked, scored{docKey: docKey, score: score})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].docKey < ranked[j].docKey
	})
	if len(ranked) > maxItems {
		ranked = ranked[:maxItems]
	}
	items := make([]Item, len(ranked))
	for i, s := range ranked {
		keys, err := e.schema.DecodeKey(s.docKey)
		if err != nil {
			return nil, fmt.Errorf("decoding result key: %w", err)
		}
		items[i] = Item{Keys: keys, Score: s.score}
	}
	return items, nil
}

// computeIDF is BM25's inverse document frequency:
// ln(1 + (N − df + 0.5) / (df + 0.5)).
func computeIDF(totalDocs, docFreq int64) float64 {
	return math.Log(1 + (float64(totalDocs)-float64(docFreq)+0.5)/(float64(docFreq)+0.5))
}

// computeTF is BM25's saturated, length-normalized term frequency:
// occ / (occ + k1·(1 − b + b·len/avgLen)).
func computeTF(occurrence, docLen, avgLen, k1, b float64) float64 {
	if avgLen == 0 {
		return 0
	}
	return occurrence / (occurrence + k1*(1-b+b*docLen/avgLen))
}
