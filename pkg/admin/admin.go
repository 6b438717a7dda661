// Package admin implements CacheBolt's admin HTTP surface: cache
// introspection, manual purge, Prometheus metrics, and health/readiness
// probes, served on a listener separate from proxy traffic so admin
// operations are never starved by proxy backpressure.
package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/cachebolt/cachebolt/pkg/fingerprint"
	"github.com/cachebolt/cachebolt/pkg/memcache"
	"github.com/cachebolt/cachebolt/pkg/objectstore"
)

// Handler serves the admin endpoints described in spec §4.8.
type Handler struct {
	appID   string
	memory  *memcache.Manager
	backend objectstore.Backend
	logger  zerolog.Logger

	// ready is a caller-supplied readiness predicate: a process past
	// initial startup (config loaded, backend constructed) is ready.
	ready func() bool
}

// New constructs an admin Handler.
func New(appID string, memory *memcache.Manager, backend objectstore.Backend, ready func() bool, logger zerolog.Logger) *Handler {
	return &Handler{appID: appID, memory: memory, backend: backend, ready: ready, logger: logger}
}

// Routes returns an http.Handler with all admin routes registered.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/admin/status-memory", h.handleStatusMemory)
	mux.HandleFunc("/admin/cache", h.handlePurge)
	mux.HandleFunc("/admin/healthz", h.handleHealthz)
	mux.HandleFunc("/admin/readyz", h.handleReadyz)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

type statusEntry struct {
	Path          string `json:"path"`
	InsertedAt    string `json:"inserted_at"`
	SizeBytes     int64  `json:"size_bytes"`
	TTLRemainingS int64  `json:"ttl_remaining_secs"`
}

func (h *Handler) handleStatusMemory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snapshot := h.memory.Snapshot()
	out := make(map[string]statusEntry, len(snapshot))
	for _, s := range snapshot {
		out[s.Fingerprint.Hex()] = statusEntry{
			Path:          s.Path,
			InsertedAt:    s.InsertedAt.UTC().Format(time.RFC3339),
			SizeBytes:     s.SizeBytes,
			TTLRemainingS: int64(s.TTLRemaining.Seconds()),
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(out); err != nil {
		h.logger.Error().Err(err).Msg("failed to encode status-memory response")
	}
}

func (h *Handler) handlePurge(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	purgeBackend, _ := strconv.ParseBool(r.URL.Query().Get("backend"))

	h.memory.Drain()

	if purgeBackend {
		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancel()

		prefix := fingerprint.ObjectKeyPrefix(h.appID)
		if err := h.backend.DeletePrefix(ctx, prefix); err != nil {
			h.logger.Error().Err(err).Str("prefix", prefix).Msg("failed to purge object-store prefix")
			http.Error(w, "failed to purge object store", http.StatusInternalServerError)
			return
		}
	}

	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (h *Handler) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil && !h.ready() {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ready"))
}
