// Package metrics defines the Prometheus metric collectors used by the
// indexer and searcher and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the system.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	ChangeEventsTotal    *prometheus.CounterVec
	EventBatchSize       prometheus.Histogram
	PostingsWrittenTotal prometheus.Counter
	PostingsDeletedTotal prometheus.Counter
	MetadataUpdatesTotal prometheus.Counter
	IndexLatency         *prometheus.HistogramVec
	SearchQueriesTotal   *prometheus.CounterVec
	SearchLatency        *prometheus.HistogramVec
	SearchResultsCount   prometheus.Histogram
	ReadCapacityConsumed prometheus.Counter
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		ChangeEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "change_events_total",
				Help: "Total change-stream events processed, by kind (INSERT, MODIFY, REMOVE).",
			},
			[]string{"kind"},
		),
		EventBatchSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "change_event_batch_size",
				Help:    "Number of change events per processed batch.",
				Buckets: []float64{1, 5, 10, 25, 50, 100, 250},
			},
		),
		PostingsWrittenTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "postings_written_total",
				Help: "Total token postings written to the index.",
			},
		),
		PostingsDeletedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "postings_deleted_total",
				Help: "Total token postings deleted from the index.",
			},
		),
		MetadataUpdatesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "metadata_updates_total",
				Help: "Total batched delta applications to the metadata record.",
			},
		),
		IndexLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "index_operation_duration_seconds",
				Help:    "Index maintenance operation latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"operation"},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_queries_total",
				Help: "Total search queries by result type (hit, zero_result, error).",
			},
			[]string{"result_type"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "Search query latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"cache_status"},
		),
		SearchResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_results_count",
				Help:    "Number of results returned per search query.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
			},
		),
		ReadCapacityConsumed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "read_capacity_consumed_total",
				Help: "Cumulative read capacity units reported by the store for search lookups.",
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of query cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of query cache misses.",
			},
		),
	}

	prometheus.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ChangeEventsTotal,
		m.EventBatchSize,
		m.PostingsWrittenTotal,
		m.PostingsDeletedTotal,
		m.MetadataUpdatesTotal,
		m.IndexLatency,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SearchResultsCount,
		m.ReadCapacityConsumed,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
