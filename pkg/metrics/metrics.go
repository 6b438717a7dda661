// Package metrics provides a centralized Prometheus metrics registry
// reference for CacheBolt. Metrics themselves are defined in their
// owning packages (proxy, memcache, circuit, writer) via promauto to
// avoid circular dependencies; this package documents the full set and
// exposes the default registerer for cmd/cachebolt.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry CacheBolt metrics are
// registered against via promauto in their owning packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Proxy Metrics (pkg/proxy):
//   - cachebolt_proxy_requests_total{uri,outcome} (Counter): requests by
//     outcome (memory_hit, rejected, forward_error, forwarded,
//     failover_memory_hit, failover_storage_hit, failover_miss)
//   - cachebolt_downstream_failures_total{uri} (Counter): origin request failures
//   - cachebolt_rejected_due_to_concurrency_total{uri} (Counter): requests rejected
//     because the concurrency semaphore was saturated
//   - cachebolt_proxy_request_latency_ms{uri} (Histogram): end-to-end proxy latency
//   - cachebolt_memory_hits_total{uri} (Counter): hits served from the hot memory cache
//   - cachebolt_memory_store_total{uri} (Counter): entries written into the memory cache
//   - cachebolt_memory_fallback_hits_total (Counter): memory-cache hits served
//     while degraded (failover)
//   - cachebolt_persistent_fallback_hits_total (Counter): object-store hits served
//     while degraded
//   - cachebolt_fallback_miss_total (Counter): degraded requests with no cached
//     response available anywhere, answered with 502 Bad Gateway
//
// URI Circuit Metrics (pkg/circuit):
//   - cachebolt_latency_exceeded_total{uri} (Counter): requests whose latency
//     exceeded the configured threshold
//   - cachebolt_latency_exceeded_ms{uri} (Histogram): latency of requests that
//     exceeded their threshold
//   - cachebolt_failover_total{uri} (Counter): requests served in failover mode
//
// Memory Cache Metrics (pkg/memcache):
//   - cachebolt_memory_entries (Gauge): current entry count in the hot cache
//   - cachebolt_memory_bytes (Gauge): current size in bytes of the hot cache
//   - cachebolt_memory_evictions_total{reason} (Counter): evictions by reason
//     (ttl, pressure, drain)
//
// Cache Writer Metrics (pkg/writer):
//   - cachebolt_persist_attempts_total{backend} (Counter): object-store write
//     attempts
//   - cachebolt_persist_errors_total{backend} (Counter): object-store write
//     failures, including jobs dropped for a full queue or skipped because
//     the storage circuit was open
//   - cachebolt_writer_queue_depth (Gauge): current depth of the writer's queue
//
// Example Prometheus Queries:
//
//   # Memory cache hit rate
//   sum(rate(cachebolt_memory_hits_total[5m])) /
//   sum(rate(cachebolt_proxy_requests_total[5m]))
//
//   # Fraction of traffic currently in failover
//   sum(rate(cachebolt_failover_total[5m])) /
//   sum(rate(cachebolt_proxy_requests_total[5m]))
//
//   # P95 proxy latency
//   histogram_quantile(0.95, rate(cachebolt_proxy_request_latency_ms_bucket[5m]))
//
//   # Cache-writer backpressure
//   rate(cachebolt_persist_errors_total[5m])
