// Package objectstore abstracts CacheBolt's warm persistence tier: a
// pluggable key/value blob store behind one Backend interface, with
// concrete implementations for S3, GCS, Azure Blob Storage, and a local
// filesystem fallback.
package objectstore

import (
	"context"
	"errors"
)

// ErrMiss is returned by Get when key is absent. Backends must translate
// their provider-specific not-found error into ErrMiss.
var ErrMiss = errors.New("objectstore: key not found")

// Backend is the storage-tier contract every CacheBolt object-store
// implementation satisfies. Keys are opaque strings built by
// pkg/fingerprint.ObjectKey; values are the raw bytes of a
// cacheentry-encoded CachedResponse, with no additional framing.
type Backend interface {
	// Get returns the stored bytes for key, or ErrMiss if absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores body under key, overwriting any existing value.
	Put(ctx context.Context, key string, body []byte) error

	// DeletePrefix removes every object whose key has the given prefix.
	// Used by the admin purge endpoint (prefix = an app's whole cache
	// namespace).
	DeletePrefix(ctx context.Context, prefix string) error

	// Probe performs a cheap liveness check against the backend,
	// independent of any specific key. Used by the storage circuit's
	// background probe loop to decide when to close after opening.
	Probe(ctx context.Context) error

	// IsAvailabilityError reports whether err represents the backend
	// itself being unreachable or failing (network error, timeout,
	// 5xx from the provider), as opposed to a key-level condition like
	// ErrMiss. Only availability errors should trip the storage
	// circuit breaker.
	IsAvailabilityError(err error) bool
}
