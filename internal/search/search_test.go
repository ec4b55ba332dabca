package search

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamsearch/streamsearch/internal/analysis"
	"github.com/streamsearch/streamsearch/internal/index"
	"github.com/streamsearch/streamsearch/internal/meta"
	"github.com/streamsearch/streamsearch/internal/store"
	"github.com/streamsearch/streamsearch/pkg/config"
	pkgerrors "github.com/streamsearch/streamsearch/pkg/errors"
)

func testSchema(t *testing.T) *index.Schema {
	t.Helper()
	analyzers, err := analysis.NewCache(8)
	require.NoError(t, err)
	schema, err := index.NewSchema(config.IndexConfig{
		Table: "test-index",
		Key:   config.KeySchemaConfig{PartitionAttribute: "Id"},
		Attributes: []config.AttributeConfig{
			{
				Name:      "Message",
				ShortName: "M",
				Analyzer: config.AnalyzerConfig{
					Tokenizer:    config.TokenizerConfig{Type: "delimiter"},
					TokenFilters: []config.TokenFilterConfig{{Type: "lowercase"}},
				},
			},
			{
				Name:      "Title",
				ShortName: "T",
				Boost:     3,
				Analyzer: config.AnalyzerConfig{
					Tokenizer:    config.TokenizerConfig{Type: "delimiter"},
					TokenFilters: []config.TokenFilterConfig{{Type: "lowercase"}},
				},
			},
		},
	}, analyzers)
	require.NoError(t, err)
	return schema
}

// newTestEngine indexes the given documents through the real maintenance
// path and returns a search engine over the resulting store.
func newTestEngine(t *testing.T, docs map[string]map[string]string) *Engine {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemory()
	schema := testSchema(t)
	indexer := index.NewEngine(st, schema, meta.New(st), nil)
	events := make([]index.ChangeEvent, 0, len(docs))
	for id, attrs := range docs {
		events = append(events, index.ChangeEvent{
			Kind:  index.EventInsert,
			Key:   map[string]string{"Id": id},
			After: attrs,
		})
	}
	require.NoError(t, indexer.ProcessBatch(ctx, events))
	return New(st, schema, meta.New(st), nil)
}

func TestSearchSingleDocumentScore(t *testing.T) {
	engine := newTestEngine(t, map[string]map[string]string{
		"101": {"Message": "New item!"},
	})

	result, err := engine.Search(context.Background(), "New item!", Options{
		Attributes: []string{"Message"},
	})
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Equal(t, map[string]string{"Id": "101"}, result.Items[0].Keys)

	// Both query tokens hit with occ=1, len=avgLen=2, df=N=1, so each
	// contributes exactly idf = ln(1 + 0.5/1.5).
	want := 2 * math.Log(1+0.5/1.5)
	assert.InDelta(t, want, result.Items[0].Score, 1e-9)
	assert.InDelta(t, 0.575364, result.Items[0].Score, 1e-5)
	assert.Greater(t, result.ConsumedCapacity, 0.0)
}

func TestSearchRanksByTermFrequency(t *testing.T) {
	engine := newTestEngine(t, map[string]map[string]string{
		"1": {"Message": "apple apple apple banana"},
		"2": {"Message": "apple banana cherry dates"},
		"3": {"Message": "banana cherry dates elderberry"},
	})

	result, err := engine.Search(context.Background(), "apple", Options{})
	require.NoError(t, err)
	require.Len(t, result.Items, 2)
	assert.Equal(t, "1", result.Items[0].Keys["Id"])
	assert.Equal(t, "2", result.Items[1].Keys["Id"])
	assert.Greater(t, result.Items[0].Score, result.Items[1].Score)
}

func TestSearchRareTermScoresHigher(t *testing.T) {
	engine := newTestEngine(t, map[string]map[string]string{
		"1": {"Message": "common rare"},
		"2": {"Message": "common stuff"},
		"3": {"Message": "common things"},
	})
	ctx := context.Background()

	rare, err := engine.Search(ctx, "rare", Options{})
	require.NoError(t, err)
	common, err := engine.Search(ctx, "common", Options{})
	require.NoError(t, err)

	require.Len(t, rare.Items, 1)
	require.Len(t, common.Items, 3)
	assert.Greater(t, rare.Items[0].Score, common.Items[0].Score)
}

func TestSearchBoostScalesLinearly(t *testing.T) {
	engine := newTestEngine(t, map[string]map[string]string{
		"1": {"Message": "widget"},
	})
	ctx := context.Background()

	base, err := engine.Search(ctx, "widget", Options{Attributes: []string{"Message"}})
	require.NoError(t, err)
	boosted, err := engine.Search(ctx, "widget", Options{Attributes: []string{"Message^4"}})
	require.NoError(t, err)

	require.Len(t, base.Items, 1)
	require.Len(t, boosted.Items, 1)
	assert.InDelta(t, 4*base.Items[0].Score, boosted.Items[0].Score, 1e-9)
}

func TestSearchConfiguredBoostApplies(t *testing.T) {
	engine := newTestEngine(t, map[string]map[string]string{
		"1": {"Message": "widget", "Title": "widget"},
	})

	result, err := engine.Search(context.Background(), "widget", Options{})
	require.NoError(t, err)
	require.Len(t, result.Items, 1)

	msgOnly, err := engine.Search(context.Background(), "widget", Options{Attributes: []string{"Message"}})
	require.NoError(t, err)
	// Title carries a configured boost of 3, so searching both attributes
	// scores 1x + 3x the single-attribute score.
	assert.InDelta(t, 4*msgOnly.Items[0].Score, result.Items[0].Score, 1e-9)
}

func TestSearchExplicitZeroBM25Params(t *testing.T) {
	// Same occurrence, different document lengths: only length
	// normalization separates the scores.
	engine := newTestEngine(t, map[string]map[string]string{
		"1": {"Message": "fish red"},
		"2": {"Message": "fish red blue green"},
	})
	ctx := context.Background()
	opts := func(p BM25Params) Options {
		return Options{Attributes: []string{"Message"}, BM25: p}
	}

	defaulted, err := engine.Search(ctx, "fish", opts(BM25Params{}))
	require.NoError(t, err)
	require.Len(t, defaulted.Items, 2)
	assert.Greater(t, defaulted.Items[0].Score, defaulted.Items[1].Score)

	// An explicit b=0 is a real setting, not "use the default": it
	// disables length normalization, so both documents score alike.
	zero := 0.0
	flat, err := engine.Search(ctx, "fish", opts(BM25Params{B: &zero}))
	require.NoError(t, err)
	require.Len(t, flat.Items, 2)
	assert.InDelta(t, flat.Items[0].Score, flat.Items[1].Score, 1e-12)

	// k1=0 collapses term frequency to pure presence: score = boost*idf.
	presence, err := engine.Search(ctx, "fish", opts(BM25Params{K1: &zero}))
	require.NoError(t, err)
	require.Len(t, presence.Items, 2)
	assert.InDelta(t, presence.Items[0].Score, presence.Items[1].Score, 1e-12)
	assert.InDelta(t, computeIDF(2, 2), presence.Items[0].Score, 1e-9)
}

func TestSearchUnknownAttribute(t *testing.T) {
	engine := newTestEngine(t, map[string]map[string]string{
		"1": {"Message": "widget"},
	})

	_, err := engine.Search(context.Background(), "widget", Options{Attributes: []string{"Nope"}})
	assert.ErrorIs(t, err, pkgerrors.ErrUnknownAttribute)
}

func TestSearchInvalidBoost(t *testing.T) {
	engine := newTestEngine(t, map[string]map[string]string{
		"1": {"Message": "widget"},
	})

	_, err := engine.Search(context.Background(), "widget", Options{Attributes: []string{"Message^x"}})
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)
}

func TestSearchMinScoreFilters(t *testing.T) {
	engine := newTestEngine(t, map[string]map[string]string{
		"1": {"Message": "apple apple apple"},
		"2": {"Message": "apple banana cherry"},
	})

	all, err := engine.Search(context.Background(), "apple", Options{})
	require.NoError(t, err)
	require.Len(t, all.Items, 2)

	cutoff := (all.Items[0].Score + all.Items[1].Score) / 2
	filtered, err := engine.Search(context.Background(), "apple", Options{MinScore: cutoff})
	require.NoError(t, err)
	require.Len(t, filtered.Items, 1)
	assert.Equal(t, all.Items[0].Keys, filtered.Items[0].Keys)
}

func TestSearchMaxItemsTruncates(t *testing.T) {
	docs := make(map[string]map[string]string)
	for _, id := range []string{"1", "2", "3", "4", "5"} {
		docs[id] = map[string]string{"Message": "shared"}
	}
	engine := newTestEngine(t, docs)

	result, err := engine.Search(context.Background(), "shared", Options{MaxItems: 3})
	require.NoError(t, err)
	assert.Len(t, result.Items, 3)
}

func TestSearchTiesOrderByKey(t *testing.T) {
	engine := newTestEngine(t, map[string]map[string]string{
		"b": {"Message": "same text"},
		"a": {"Message": "same text"},
	})

	result, err := engine.Search(context.Background(), "same", Options{})
	require.NoError(t, err)
	require.Len(t, result.Items, 2)
	assert.Equal(t, "a", result.Items[0].Keys["Id"])
	assert.Equal(t, "b", result.Items[1].Keys["Id"])
}

func TestSearchNoMatches(t *testing.T) {
	engine := newTestEngine(t, map[string]map[string]string{
		"1": {"Message": "widget"},
	})

	result, err := engine.Search(context.Background(), "absent", Options{})
	require.NoError(t, err)
	assert.Empty(t, result.Items)
}

func TestSearchEmptyIndex(t *testing.T) {
	st := store.NewMemory()
	engine := New(st, testSchema(t), meta.New(st), nil)

	// No metadata record at all: every attribute is skipped, not an error.
	result, err := engine.Search(context.Background(), "anything", Options{})
	require.NoError(t, err)
	assert.Empty(t, result.Items)
}

func TestSearchQueryAnalysisMatchesIndexAnalysis(t *testing.T) {
	engine := newTestEngine(t, map[string]map[string]string{
		"1": {"Message": "MiXeD CaSe"},
	})

	result, err := engine.Search(context.Background(), "mixed", Options{})
	require.NoError(t, err)
	assert.Len(t, result.Items, 1)
}

func TestComputeIDF(t *testing.T) {
	// df == N gives the floor ln(1 + 0.5/(N+0.5)); always positive.
	assert.InDelta(t, math.Log(1+0.5/1.5), computeIDF(1, 1), 1e-12)
	assert.Greater(t, computeIDF(100, 1), computeIDF(100, 50))
	assert.Positive(t, computeIDF(100, 100))
}

func TestComputeTF(t *testing.T) {
	// Saturates with occurrence growth.
	low := computeTF(1, 10, 10, DefaultK1, DefaultB)
	high := computeTF(5, 10, 10, DefaultK1, DefaultB)
	assert.Greater(t, high, low)
	assert.Less(t, high, 1.0)

	// Longer-than-average documents are penalized.
	short := computeTF(1, 5, 10, DefaultK1, DefaultB)
	long := computeTF(1, 20, 10, DefaultK1, DefaultB)
	assert.Greater(t, short, long)

	assert.Zero(t, computeTF(1, 10, 0, DefaultK1, DefaultB))
}
