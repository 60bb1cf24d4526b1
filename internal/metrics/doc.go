// Package metrics provides Prometheus instrumentation for exifturbo.
//
// Metrics are registered with the default registry through promauto and
// prefixed with "exifturbo_". The serve command exposes them on /metrics:
//
//	mux.Handle("/metrics", promhttp.Handler())
//
// # Metric Categories
//
// Indexing:
//   - IndexRunsTotal: runs by outcome (ok, cancelled, failed)
//   - IndexFilesTotal: files by classification and result
//   - IndexRunDuration, IndexLastRunTimestamp, IndexRunning
//   - ExtractDuration: per-file extraction latency by extractor
//   - ExtractorBreakerOpen: 1 while the exiftool circuit breaker is open
//   - CommitDuration: batch commit latency
//
// Query:
//   - QueriesTotal: queries by status (ok, syntax_error, failed)
//   - QueryDuration, QueryCacheHits, QueryCacheMisses
//
// Store (refreshed by [Collector]):
//   - StoreFiles, StoreTags, StoreSizeBytes
//
// HTTP:
//   - HTTPRequestsTotal, HTTPRequestDuration
//
// Example PromQL, extraction p95 by extractor:
//
//	histogram_quantile(0.95, sum(rate(exifturbo_extract_duration_seconds_bucket[5m])) by (le, extractor))
package metrics
