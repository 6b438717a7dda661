package circuit

import (
	"regexp"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	latencyExceededTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cachebolt_latency_exceeded_total",
		Help: "Total requests whose latency exceeded the configured threshold, by URI.",
	}, []string{"uri"})

	latencyExceededMs = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cachebolt_latency_exceeded_ms",
		Help:    "Latency in milliseconds of requests that exceeded their threshold, by URI.",
		Buckets: []float64{100, 250, 500, 1000, 2000, 5000, 10000},
	}, []string{"uri"})

	failoverTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cachebolt_failover_total",
		Help: "Total requests served in failover (degraded) mode, by URI.",
	}, []string{"uri"})
)

// PathRule maps a compiled regex against a request path to a latency
// threshold; the first rule (in declaration order) whose pattern matches
// wins.
type PathRule struct {
	Pattern      *regexp.Regexp
	MaxLatencyMs uint32
}

// URICircuit is the latency/failure circuit breaker described in
// spec §4.4: it resolves a per-path latency threshold, tracks recent
// violations and failures per URI, and reports whether a URI should be
// served from cache (failover) instead of forwarded to the origin.
type URICircuit struct {
	defaultMaxLatencyMs uint32
	pathRules           []PathRule
	failoverWindow      time.Duration

	mu     sync.Mutex
	states map[string]*URIState
}

// NewURICircuit constructs a URICircuit. pathRules must already be
// compiled (config.Load compiles them once at startup).
func NewURICircuit(defaultMaxLatencyMs uint32, pathRules []PathRule, failoverWindow time.Duration) *URICircuit {
	return &URICircuit{
		defaultMaxLatencyMs: defaultMaxLatencyMs,
		pathRules:           pathRules,
		failoverWindow:      failoverWindow,
		states:              make(map[string]*URIState),
	}
}

// Threshold resolves the max-latency threshold for a request path: the
// first matching path_rule wins, in declaration order; otherwise the
// configured default.
func (c *URICircuit) Threshold(path string) uint32 {
	for _, rule := range c.pathRules {
		if rule.Pattern.MatchString(path) {
			return rule.MaxLatencyMs
		}
	}
	return c.defaultMaxLatencyMs
}

func (c *URICircuit) stateFor(uri string) *URIState {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.states[uri]
	if !ok {
		s = &URIState{}
		c.states[uri] = s
	}
	return s
}

// RecordLatency reports the elapsed time of a forwarded request. If ms
// exceeds the URI's resolved threshold, it counts as a violation and the
// URI enters (or extends) degraded state for the failover window.
func (c *URICircuit) RecordLatency(uri, path string, ms float64) {
	threshold := c.Threshold(path)
	s := c.stateFor(uri)

	if ms > float64(threshold) {
		latencyExceededTotal.WithLabelValues(uri).Inc()
		latencyExceededMs.WithLabelValues(uri).Observe(ms)
		s.recordViolation(time.Now(), c.failoverWindow)
	}
}

// RecordFailure reports an origin failure (timeout, network error, or
// policy-classified 5xx) for uri; it has the same degrading effect as a
// latency violation.
func (c *URICircuit) RecordFailure(uri string) {
	c.stateFor(uri).recordFailure(time.Now(), c.failoverWindow)
}

// RecordSuccess reports a fast, successful response for uri, decaying its
// violation counter.
func (c *URICircuit) RecordSuccess(uri string) {
	c.stateFor(uri).recordSuccess()
}

// Degraded reports whether uri is currently degraded and within its
// cooldown window, without recording a failover-serve metric. Callers
// that only need to branch on degraded state (e.g. deciding whether a
// freshly-forwarded response is still eligible for caching) should use
// this instead of ShouldFailover.
func (c *URICircuit) Degraded(uri string) bool {
	return c.stateFor(uri).shouldFailover(time.Now())
}

// ShouldFailover reports whether uri is currently degraded and within its
// cooldown window, and counts the call as a failover serve via the
// cachebolt_failover_total metric. Call this only at the genuine
// failover-serve call site, not for incidental degraded-state checks.
func (c *URICircuit) ShouldFailover(uri string) bool {
	degraded := c.Degraded(uri)
	if degraded {
		failoverTotal.WithLabelValues(uri).Inc()
	}
	return degraded
}

// Snapshot returns the current state for uri, for diagnostics/tests.
func (c *URICircuit) Snapshot(uri string) Snapshot {
	return c.stateFor(uri).snapshot()
}
