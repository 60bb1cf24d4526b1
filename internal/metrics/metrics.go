package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Indexing metrics
var (
	IndexRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exifturbo_index_runs_total",
			Help: "Total number of index runs by outcome",
		},
		[]string{"outcome"},
	)

	IndexFilesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exifturbo_index_files_total",
			Help: "Files seen by index runs, by result",
		},
		[]string{"result"}, // "new", "modified", "unchanged", "indexed", "skipped", "deleted", "error"
	)

	IndexRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "exifturbo_index_run_duration_seconds",
			Help:    "Duration of index runs in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
		},
	)

	IndexLastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "exifturbo_index_last_run_timestamp",
			Help: "Unix timestamp of the last finished index run",
		},
	)

	IndexRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "exifturbo_index_running",
			Help: "Whether an index run is in progress (1 = running)",
		},
	)

	ExtractDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "exifturbo_extract_duration_seconds",
			Help:    "Per-file metadata extraction duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"extractor"},
	)

	ExtractorBreakerOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "exifturbo_extractor_breaker_open",
			Help: "Whether the exiftool circuit breaker is open (1 = open)",
		},
	)

	CommitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "exifturbo_commit_duration_seconds",
			Help:    "Duration of store batch commits in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)
)

// Query metrics
var (
	QueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exifturbo_queries_total",
			Help: "Total number of search queries by status",
		},
		[]string{"status"},
	)

	QueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "exifturbo_query_duration_seconds",
			Help:    "Search query duration in seconds",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
	)

	QueryCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "exifturbo_query_cache_hits_total",
			Help: "Parsed query cache hits",
		},
	)

	QueryCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "exifturbo_query_cache_misses_total",
			Help: "Parsed query cache misses",
		},
	)
)

// Store metrics
var (
	StoreFiles = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "exifturbo_store_files",
			Help: "Number of indexed files",
		},
	)

	StoreTags = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "exifturbo_store_tags",
			Help: "Number of overflow tag rows",
		},
	)

	StoreSizeBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "exifturbo_store_size_bytes",
			Help: "Size of the SQLite database and its WAL in bytes",
		},
	)
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exifturbo_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "exifturbo_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// BoolGauge converts a flag for gauges such as IndexRunning.
func BoolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
