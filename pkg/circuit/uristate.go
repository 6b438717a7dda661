// Package circuit implements CacheBolt's two breakers: the per-URI
// latency/failure circuit that drives failover serving, and the
// process-wide storage-backend circuit that protects the object store.
package circuit

import (
	"sync"
	"time"
)

// URIState is the per-URI record of recent latency-threshold violations
// and origin failures, grounded in the teacher's RateLimitState: a small
// struct with threshold-derived predicates, owned and mutated by exactly
// one coordinator (URICircuit) rather than accessed directly by callers.
type URIState struct {
	mu             sync.Mutex
	violationCount int
	failureCount   int
	degraded       bool
	clearAfter     time.Time
}

// Snapshot is a point-in-time copy of a URIState, safe to read without
// holding any lock.
type Snapshot struct {
	ViolationCount int
	FailureCount   int
	Degraded       bool
	ClearAfter     time.Time
}

func (s *URIState) snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ViolationCount: s.violationCount,
		FailureCount:   s.failureCount,
		Degraded:       s.degraded,
		ClearAfter:     s.clearAfter,
	}
}

// shouldFailover reports whether the URI is currently degraded, clearing
// the flag once the cooldown window (clearAfter) has passed.
func (s *URIState) shouldFailover(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.degraded && !now.Before(s.clearAfter) {
		s.degraded = false
	}
	return s.degraded
}

func (s *URIState) markDegraded(now time.Time, window time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.degraded = true
	s.clearAfter = now.Add(window)
}

func (s *URIState) recordViolation(now time.Time, window time.Duration) {
	s.mu.Lock()
	s.violationCount++
	s.mu.Unlock()
	s.markDegraded(now, window)
}

func (s *URIState) recordFailure(now time.Time, window time.Duration) {
	s.mu.Lock()
	s.failureCount++
	s.mu.Unlock()
	s.markDegraded(now, window)
}

func (s *URIState) recordSuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.violationCount > 0 {
		s.violationCount--
	}
}
