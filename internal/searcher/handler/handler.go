// Package handler exposes the search engine over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/streamsearch/streamsearch/internal/meta"
	"github.com/streamsearch/streamsearch/internal/search"
	"github.com/streamsearch/streamsearch/internal/searcher/cache"
	pkgerrors "github.com/streamsearch/streamsearch/pkg/errors"
	"github.com/streamsearch/streamsearch/pkg/logger"
	"github.com/streamsearch/streamsearch/pkg/metrics"
)

// Searcher executes ranked queries. Satisfied by *search.Engine.
type Searcher interface {
	Search(ctx context.Context, query string, opts search.Options) (*search.Result, error)
}

type Handler struct {
	searcher Searcher
	cache    *cache.QueryCache
	meta     *meta.Accumulator
	metrics  *metrics.Metrics
	maxItems int
	minScore float64
	logger   *slog.Logger
}

// New creates a search handler. queryCache may be nil when caching is
// disabled; metrics may be nil.
func New(searcher Searcher, queryCache *cache.QueryCache, accumulator *meta.Accumulator, m *metrics.Metrics, maxItems int, minScore float64) *Handler {
	return &Handler{
		searcher: searcher,
		cache:    queryCache,
		meta:     accumulator,
		metrics:  m,
		maxItems: maxItems,
		minScore: minScore,
		logger:   slog.Default().With("component", "search-handler"),
	}
}

// Routes registers the handler's endpoints on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /search", h.Search)
	mux.HandleFunc("GET /metadata", h.Metadata)
	mux.HandleFunc("GET /cache/stats", h.CacheStats)
	mux.HandleFunc("POST /cache/invalidate", h.CacheInvalidate)
}

// Search handles GET /search?q=...&attrs=name^2,other&limit=10&min_score=0.5&k1=1.2&b=0.75.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	query := r.URL.Query().Get("q")
	if query == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}

	opts, err := h.parseOptions(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var result *search.Result
	cacheHit := false
	if h.cache != nil {
		result, cacheHit, err = h.cache.GetOrCompute(ctx, query, opts, func() (*search.Result, error) {
			return h.searcher.Search(ctx, query, opts)
		})
	} else {
		result, err = h.searcher.Search(ctx, query, opts)
	}
	if err != nil {
		status := pkgerrors.HTTPStatusCode(err)
		log.Error("search failed", "query", query, "error", err)
		if status >= http.StatusInternalServerError {
			h.writeError(w, status, "search failed")
		} else {
			h.writeError(w, status, err.Error())
		}
		return
	}

	if h.metrics != nil {
		cacheStatus := "miss"
		if cacheHit {
			cacheStatus = "hit"
		}
		h.metrics.SearchLatency.WithLabelValues(cacheStatus).Observe(time.Since(start).Seconds())
	}
	log.Info("search completed",
		"query", query,
		"returned", len(result.Items),
		"cache_hit", cacheHit,
		"consumed_capacity", result.ConsumedCapacity,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	h.writeJSON(w, http.StatusOK, result)
}

// Metadata handles GET /metadata, exposing the index-wide counters the
// ranking function runs on.
func (h *Handler) Metadata(w http.ResponseWriter, r *http.Request) {
	md, _, err := h.meta.Metadata(r.Context())
	if err != nil {
		h.logger.Error("metadata read failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "metadata read failed")
		return
	}
	h.writeJSON(w, http.StatusOK, md)
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) parseOptions(r *http.Request) (search.Options, error) {
	q := r.URL.Query()
	opts := search.Options{MaxItems: h.maxItems, MinScore: h.minScore}

	if attrs := q.Get("attrs"); attrs != "" {
		for _, a := range strings.Split(attrs, ",") {
			if a = strings.TrimSpace(a); a != "" {
				opts.Attributes = append(opts.Attributes, a)
			}
		}
	}
	if limitStr := q.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 {
			return opts, pkgerrors.New(pkgerrors.ErrInvalidInput, http.StatusBadRequest, "limit must be a positive integer")
		}
		if h.maxItems > 0 && limit > h.maxItems {
			limit = h.maxItems
		}
		opts.MaxItems = limit
	}
	if v, err := floatParam(q, "min_score"); err != nil {
		return opts, err
	} else if v != nil {
		opts.MinScore = *v
	}
	// k1 and b stay pointers so an explicit zero reaches the ranking
	// function instead of being mistaken for "unset".
	var err error
	if opts.BM25.K1, err = floatParam(q, "k1"); err != nil {
		return opts, err
	}
	if opts.BM25.B, err = floatParam(q, "b"); err != nil {
		return opts, err
	}
	return opts, nil
}

// floatParam parses an optional non-negative float query parameter,
// returning nil when absent.
func floatParam(q url.Values, name string) (*float64, error) {
	s := q.Get(name)
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return nil, pkgerrors.Newf(pkgerrors.ErrInvalidInput, http.StatusBadRequest, "%s must be a non-negative number", name)
	}
	return &v, nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
