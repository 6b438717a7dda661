package circuit

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// StorageCircuit is the process-wide breaker guarding the object-store
// backend (spec §4.2 / §4.5). It opens after a configured number of
// consecutive availability errors and stays open until a background
// probe succeeds, at which point it closes and the error counter resets.
type StorageCircuit struct {
	threshold       int64
	consecutiveErrs atomic.Int64
	open            atomic.Bool
}

// NewStorageCircuit constructs a StorageCircuit that opens after
// threshold consecutive availability errors.
func NewStorageCircuit(threshold int) *StorageCircuit {
	return &StorageCircuit{threshold: int64(threshold)}
}

// RecordError reports the outcome of a backend operation. Only
// availability errors (network/backend-down, as classified by the
// backend's IsAvailabilityError) count toward the open threshold;
// non-availability errors (e.g. a malformed key) do not.
func (c *StorageCircuit) RecordError(isAvailabilityError bool) {
	if !isAvailabilityError {
		return
	}
	if c.consecutiveErrs.Add(1) >= c.threshold {
		c.open.Store(true)
	}
}

// RecordSuccess resets the consecutive-error counter and closes the
// circuit if it was open.
func (c *StorageCircuit) RecordSuccess() {
	c.consecutiveErrs.Store(0)
	c.open.Store(false)
}

// IsOpen reports whether the circuit is currently open, meaning the
// object store should be treated as unavailable without attempting a
// live call.
func (c *StorageCircuit) IsOpen() bool {
	return c.open.Load()
}

// Prober is satisfied by any object-store backend; kept minimal so this
// package does not depend on pkg/objectstore.
type Prober interface {
	Probe(ctx context.Context) error
}

// RunProbeLoop periodically calls backend.Probe while the circuit is
// open, closing it on the first successful probe. It blocks until ctx is
// cancelled, and is a no-op tick whenever the circuit is already closed.
func RunProbeLoop(ctx context.Context, c *StorageCircuit, backend Prober, interval time.Duration, logger zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !c.IsOpen() {
				continue
			}
			if err := backend.Probe(ctx); err != nil {
				logger.Warn().Err(err).Msg("storage backend probe failed, circuit remains open")
				continue
			}
			logger.Info().Msg("storage backend probe succeeded, closing circuit")
			c.RecordSuccess()
		}
	}
}
