// Package memcache is CacheBolt's hot in-memory cache tier: a bounded
// fingerprint-to-entry mapping with TTL expiry, LRU recency ordering, and
// background memory-pressure eviction.
package memcache

import (
	"container/list"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/cachebolt/cachebolt/pkg/cacheentry"
	"github.com/cachebolt/cachebolt/pkg/fingerprint"
)

// ErrNotFound indicates the requested fingerprint is absent, or was
// present but past its TTL deadline (and has been removed as a result).
var ErrNotFound = errors.New("memcache: not found")

var (
	memoryEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cachebolt_memory_entries",
		Help: "Current number of entries held in the hot memory cache.",
	})

	memoryBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cachebolt_memory_bytes",
		Help: "Current size in bytes of the hot memory cache.",
	})

	memoryEvictionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cachebolt_memory_evictions_total",
		Help: "Total memory-cache entries evicted, by reason.",
	}, []string{"reason"}) // "ttl" | "pressure" | "drain"
)

type node struct {
	key   fingerprint.Fingerprint
	entry cacheentry.MemoryEntry
}

// Manager is the bounded fingerprint -> MemoryEntry mapping with LRU
// recency tracking. All operations are safe for concurrent use; the
// locked sections are kept narrow so readers never block on I/O.
type Manager struct {
	mu       sync.RWMutex
	entries  map[fingerprint.Fingerprint]*list.Element
	order    *list.List // front = most recently used
	size     int64
	capacity int64
	logger   zerolog.Logger
	now      func() time.Time
}

// NewManager creates a Manager bounded at capacityBytes total entry size.
func NewManager(capacityBytes int64, logger zerolog.Logger) *Manager {
	return &Manager{
		entries:  make(map[fingerprint.Fingerprint]*list.Element),
		order:    list.New(),
		capacity: capacityBytes,
		logger:   logger,
		now:      time.Now,
	}
}

// Get returns the MemoryEntry for fp if present and fresh. An entry whose
// TTL has passed is treated as a miss and removed as a side effect.
func (m *Manager) Get(fp fingerprint.Fingerprint) (cacheentry.MemoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.entries[fp]
	if !ok {
		return cacheentry.MemoryEntry{}, ErrNotFound
	}

	n := el.Value.(*node)
	if n.entry.Expired(m.now()) {
		m.removeLocked(el)
		memoryEvictionsTotal.WithLabelValues("ttl").Inc()
		return cacheentry.MemoryEntry{}, ErrNotFound
	}

	m.order.MoveToFront(el)
	return n.entry, nil
}

// Put inserts or overwrites the entry for fp, evicting LRU entries as
// needed to stay within capacity. An entry that alone exceeds capacity
// is not kept: eviction empties the cache, that entry included.
func (m *Manager) Put(fp fingerprint.Fingerprint, entry cacheentry.MemoryEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.entries[fp]; ok {
		old := el.Value.(*node)
		m.size -= old.entry.SizeBytes
		old.entry = entry
		m.order.MoveToFront(el)
		m.size += entry.SizeBytes
	} else {
		el := m.order.PushFront(&node{key: fp, entry: entry})
		m.entries[fp] = el
		m.size += entry.SizeBytes
	}

	m.evictToCapacityLocked()
	m.publishMetricsLocked()
}

// Remove deletes the entry for fp, if present.
func (m *Manager) Remove(fp fingerprint.Fingerprint) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.entries[fp]; ok {
		m.removeLocked(el)
	}
	m.publishMetricsLocked()
}

// Drain removes every entry, used by the admin purge endpoint.
func (m *Manager) Drain() {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := len(m.entries)
	m.entries = make(map[fingerprint.Fingerprint]*list.Element)
	m.order.Init()
	m.size = 0
	if count > 0 {
		memoryEvictionsTotal.WithLabelValues("drain").Add(float64(count))
	}
	m.publishMetricsLocked()
}

// Snapshot entry as exposed by the admin status endpoint.
type Snapshot struct {
	Fingerprint  fingerprint.Fingerprint
	Path         string
	InsertedAt   time.Time
	SizeBytes    int64
	TTLRemaining time.Duration
}

// Snapshot returns a point-in-time view of every live (non-expired) entry.
func (m *Manager) Snapshot() []Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.now()
	out := make([]Snapshot, 0, len(m.entries))
	for fp, el := range m.entries {
		n := el.Value.(*node)
		if n.entry.Expired(now) {
			continue
		}
		out = append(out, Snapshot{
			Fingerprint:  fp,
			Path:         n.entry.Path,
			InsertedAt:   n.entry.InsertedAt,
			SizeBytes:    n.entry.SizeBytes,
			TTLRemaining: n.entry.TTLRemaining(now),
		})
	}
	return out
}

// Len returns the current entry count.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// SizeBytes returns the current total entry size.
func (m *Manager) SizeBytes() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

// EvictLRU removes the single least-recently-used entry, if any, and
// reports whether an entry was evicted. Used by the pressure-eviction
// background task.
func (m *Manager) EvictLRU() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	back := m.order.Back()
	if back == nil {
		return false
	}
	m.removeLocked(back)
	memoryEvictionsTotal.WithLabelValues("pressure").Inc()
	m.publishMetricsLocked()
	return true
}

func (m *Manager) removeLocked(el *list.Element) {
	n := el.Value.(*node)
	delete(m.entries, n.key)
	m.order.Remove(el)
	m.size -= n.entry.SizeBytes
}

func (m *Manager) evictToCapacityLocked() {
	for m.size > m.capacity {
		back := m.order.Back()
		if back == nil {
			break
		}
		m.removeLocked(back)
		memoryEvictionsTotal.WithLabelValues("pressure").Inc()
	}
}

func (m *Manager) publishMetricsLocked() {
	memoryEntries.Set(float64(len(m.entries)))
	memoryBytes.Set(float64(m.size))
}
