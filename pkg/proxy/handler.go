// Package proxy implements CacheBolt's central request state machine:
// fingerprint derivation, the degraded-URI failover check, memory and
// object-store lookups, origin forwarding under bounded admission, and
// the outcome dispatch that populates the cache tiers.
//
// The step-numbered orchestration in Handler.ServeHTTP mirrors the
// teacher's Client.Do (pkg/client/client.go): one method walking a fixed
// sequence of named steps, each step updating metrics and logging its
// own outcome, rather than splitting the sequence across many small
// private methods.
package proxy

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/cachebolt/cachebolt/pkg/cacheentry"
	"github.com/cachebolt/cachebolt/pkg/circuit"
	"github.com/cachebolt/cachebolt/pkg/fingerprint"
	"github.com/cachebolt/cachebolt/pkg/memcache"
	"github.com/cachebolt/cachebolt/pkg/objectstore"
	"github.com/cachebolt/cachebolt/pkg/writer"
)

var (
	proxyRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cachebolt_proxy_requests_total",
		Help: "Total proxy requests, by URI and outcome.",
	}, []string{"uri", "outcome"})

	downstreamFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cachebolt_downstream_failures_total",
		Help: "Total origin request failures, by URI.",
	}, []string{"uri"})

	rejectedDueToConcurrencyTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cachebolt_rejected_due_to_concurrency_total",
		Help: "Total requests rejected because the admission semaphore was saturated, by URI.",
	}, []string{"uri"})

	memoryHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cachebolt_memory_hits_total",
		Help: "Total requests served from the hot memory cache, by URI.",
	}, []string{"uri"})

	memoryStoreTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cachebolt_memory_store_total",
		Help: "Total responses written into the hot memory cache, by URI.",
	}, []string{"uri"})

	memoryFallbackHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cachebolt_memory_fallback_hits_total",
		Help: "Total degraded-mode requests served from the memory cache.",
	})

	persistentFallbackHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cachebolt_persistent_fallback_hits_total",
		Help: "Total degraded-mode requests served from the object store.",
	})

	fallbackMissTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cachebolt_fallback_miss_total",
		Help: "Total degraded-mode requests with no cached response available anywhere.",
	})

	proxyRequestLatencyMs = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cachebolt_proxy_request_latency_ms",
		Help:    "End-to-end proxy request latency in milliseconds, by URI.",
		Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"uri"})
)

// Config holds the per-request policy knobs the handler consults.
type Config struct {
	AppID                 string
	DownstreamBaseURL     string
	DownstreamTimeout     time.Duration
	MaxConcurrentRequests int64
	RefreshPercentage     uint8
	TTL                   time.Duration
	IgnoredHeaders        map[string]struct{}
}

// Handler is CacheBolt's proxy HTTP handler: one instance per process,
// wired to the memory cache, object store, both circuits, and the cache
// writer.
type Handler struct {
	cfg Config

	memory  *memcache.Manager
	backend objectstore.Backend
	uri     *circuit.URICircuit
	storage *circuit.StorageCircuit
	writer  *writer.Writer

	client *http.Client
	logger zerolog.Logger

	sem *semaphore.Weighted

	// randomFloat is overridable in tests to make the refresh coin flip
	// deterministic.
	randomFloat func() float64
}

// New constructs a Handler.
func New(cfg Config, memory *memcache.Manager, backend objectstore.Backend, uriCircuit *circuit.URICircuit, storage *circuit.StorageCircuit, w *writer.Writer, logger zerolog.Logger) *Handler {
	return &Handler{
		cfg:         cfg,
		memory:      memory,
		backend:     backend,
		uri:         uriCircuit,
		storage:     storage,
		writer:      w,
		client:      &http.Client{Timeout: cfg.DownstreamTimeout},
		logger:      logger,
		sem:         semaphore.NewWeighted(cfg.MaxConcurrentRequests),
		randomFloat: rand.Float64,
	}
}

// ServeHTTP implements the proxy handler state machine from spec §4.7.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	uri := r.URL.Path
	defer func() {
		proxyRequestLatencyMs.WithLabelValues(uri).Observe(float64(time.Since(start).Milliseconds()))
	}()

	// Step 1: derive fingerprint.
	fp := fingerprint.FromRequest(r, h.cfg.IgnoredHeaders)

	// Step 2: degraded check.
	if h.uri.ShouldFailover(uri) {
		h.serveFailover(w, fp, uri)
		return
	}

	// Step 3/4: memory lookup, subject to the refresh coin flip.
	forceRefresh := h.cfg.RefreshPercentage > 0 && h.randomFloat() < float64(h.cfg.RefreshPercentage)/100
	if !forceRefresh {
		if entry, err := h.memory.Get(fp); err == nil {
			memoryHitsTotal.WithLabelValues(uri).Inc()
			proxyRequestsTotal.WithLabelValues(uri, "memory_hit").Inc()
			writeCachedResponse(w, entry.Response)
			return
		}
	}

	// Step 5: admission.
	ctx := r.Context()
	if !h.sem.TryAcquire(1) {
		if entry, err := h.memory.Get(fp); err == nil {
			memoryHitsTotal.WithLabelValues(uri).Inc()
			proxyRequestsTotal.WithLabelValues(uri, "memory_hit").Inc()
			writeCachedResponse(w, entry.Response)
			return
		}
		rejectedDueToConcurrencyTotal.WithLabelValues(uri).Inc()
		proxyRequestsTotal.WithLabelValues(uri, "rejected").Inc()
		http.Error(w, "too many concurrent requests", http.StatusBadGateway)
		return
	}
	defer h.sem.Release(1)

	// Step 6: forward.
	forwardStart := time.Now()
	resp, body, err := h.forward(ctx, r)
	elapsedMs := float64(time.Since(forwardStart).Milliseconds())

	// Step 7: latency record (unconditional).
	h.uri.RecordLatency(uri, uri, elapsedMs)

	// Step 8: outcome dispatch.
	if err != nil {
		downstreamFailuresTotal.WithLabelValues(uri).Inc()
		h.uri.RecordFailure(uri)
		proxyRequestsTotal.WithLabelValues(uri, "forward_error").Inc()
		h.serveFailover(w, fp, uri)
		return
	}

	if elapsedMs <= float64(h.uri.Threshold(uri)) {
		h.uri.RecordSuccess(uri)
	}

	cached := cacheentry.CachedResponse{
		StatusCode: uint16(resp.StatusCode),
		Headers:    headersToPairs(resp.Header),
		Body:       body,
	}

	if !h.uri.Degraded(uri) {
		h.memory.Put(fp, cacheentry.NewMemoryEntry(uri, cached, time.Now(), h.cfg.TTL))
		memoryStoreTotal.WithLabelValues(uri).Inc()

		h.writer.Enqueue(writer.Job{
			Key:  fingerprint.ObjectKey(h.cfg.AppID, fp),
			Body: cacheentry.Encode(cached),
		})
	}

	proxyRequestsTotal.WithLabelValues(uri, "forwarded").Inc()
	writeCachedResponse(w, cached)
}

// forward issues the origin request, bounded by cfg.DownstreamTimeout,
// and returns the response's status/headers plus its fully-read body. A
// 5xx status from the origin is returned as an error, like a transport
// failure.
func (h *Handler) forward(ctx context.Context, r *http.Request) (*http.Response, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, h.cfg.DownstreamTimeout)
	defer cancel()

	url := h.cfg.DownstreamBaseURL + r.URL.RequestURI()

	outReq, err := http.NewRequestWithContext(ctx, r.Method, url, r.Body)
	if err != nil {
		return nil, nil, err
	}
	outReq.Header = r.Header.Clone()

	resp, err := h.client.Do(outReq)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, nil, fmt.Errorf("origin returned status %d", resp.StatusCode)
	}
	return resp, body, nil
}

// tryCache implements spec §4.7's try_cache: memory first, then the
// object store if the storage circuit is closed.
func (h *Handler) tryCache(fp fingerprint.Fingerprint) (cacheentry.CachedResponse, bool) {
	if entry, err := h.memory.Get(fp); err == nil {
		return entry.Response, true
	}

	if h.storage.IsOpen() {
		return cacheentry.CachedResponse{}, false
	}

	key := fingerprint.ObjectKey(h.cfg.AppID, fp)
	raw, err := h.backend.Get(context.Background(), key)
	if err != nil {
		if err != objectstore.ErrMiss {
			h.storage.RecordError(h.backend.IsAvailabilityError(err))
		}
		return cacheentry.CachedResponse{}, false
	}
	h.storage.RecordSuccess()

	cached, err := cacheentry.Decode(raw)
	if err != nil {
		h.logger.Warn().Err(err).Str("key", key).Msg("failed to decode object-store entry")
		return cacheentry.CachedResponse{}, false
	}

	h.memory.Put(fp, cacheentry.NewMemoryEntry("", cached, time.Now(), h.cfg.TTL))
	return cached, true
}

func (h *Handler) serveFailover(w http.ResponseWriter, fp fingerprint.Fingerprint, uri string) {
	if entry, err := h.memory.Get(fp); err == nil {
		memoryFallbackHitsTotal.Inc()
		proxyRequestsTotal.WithLabelValues(uri, "failover_memory_hit").Inc()
		writeCachedResponse(w, entry.Response)
		return
	}

	cached, ok := h.tryCache(fp)
	if !ok {
		fallbackMissTotal.Inc()
		proxyRequestsTotal.WithLabelValues(uri, "failover_miss").Inc()
		http.Error(w, "origin unavailable and no cached response", http.StatusBadGateway)
		return
	}

	persistentFallbackHitsTotal.Inc()
	proxyRequestsTotal.WithLabelValues(uri, "failover_storage_hit").Inc()
	writeCachedResponse(w, cached)
}

func writeCachedResponse(w http.ResponseWriter, resp cacheentry.CachedResponse) {
	for _, h := range resp.Headers {
		w.Header().Add(h.Name, h.Value)
	}
	w.WriteHeader(int(resp.StatusCode))
	w.Write(resp.Body)
}

func headersToPairs(h http.Header) []cacheentry.Header {
	pairs := make([]cacheentry.Header, 0, len(h))
	for name, values := range h {
		for _, v := range values {
			pairs = append(pairs, cacheentry.Header{Name: name, Value: v})
		}
	}
	return pairs
}
