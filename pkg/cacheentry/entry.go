// Package cacheentry defines CacheBolt's cached-response representation
// and its stable binary wire encoding for object-store persistence.
package cacheentry

import "time"

// Header is a single response header as an ordered (name, value) pair.
// Order is preserved on insertion so serialization round-trips bit-exact.
type Header struct {
	Name  string
	Value string
}

// CachedResponse is the ordered triple CacheBolt persists and serves:
// status code, insertion-ordered header pairs, and the response body.
type CachedResponse struct {
	StatusCode uint16
	Headers    []Header
	Body       []byte
}

// MemoryEntry is a CachedResponse plus the bookkeeping the memory cache
// and admin surface need: original request path, insertion time, size on
// disk/in-memory (headers framing overhead included), and TTL deadline.
type MemoryEntry struct {
	Response    CachedResponse
	Path        string
	InsertedAt  time.Time
	SizeBytes   int64
	TTLDeadline time.Time
}

// Expired reports whether now is at or past the entry's TTL deadline.
func (e MemoryEntry) Expired(now time.Time) bool {
	return !now.Before(e.TTLDeadline)
}

// TTLRemaining returns the duration until expiry, floored at zero.
func (e MemoryEntry) TTLRemaining(now time.Time) time.Duration {
	d := e.TTLDeadline.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// sizeOf estimates the in-memory footprint of a CachedResponse, including
// header framing overhead, for MemoryEntry.SizeBytes accounting.
func sizeOf(r CachedResponse) int64 {
	var n int64 = 2 // status code
	for _, h := range r.Headers {
		n += int64(len(h.Name)) + int64(len(h.Value)) + 8 // length-prefix framing
	}
	n += int64(len(r.Body)) + 4
	return n
}

// NewMemoryEntry builds a MemoryEntry from a CachedResponse, stamping
// insertion time and TTL deadline.
func NewMemoryEntry(path string, resp CachedResponse, now time.Time, ttl time.Duration) MemoryEntry {
	return MemoryEntry{
		Response:    resp,
		Path:        path,
		InsertedAt:  now,
		SizeBytes:   sizeOf(resp),
		TTLDeadline: now.Add(ttl),
	}
}
