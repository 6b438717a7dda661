package circuit

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestStorageCircuit_OpensAtThreshold(t *testing.T) {
	c := NewStorageCircuit(3)

	c.RecordError(true)
	c.RecordError(true)
	if c.IsOpen() {
		t.Fatal("circuit should not open before reaching threshold")
	}

	c.RecordError(true)
	if !c.IsOpen() {
		t.Error("circuit should open at threshold")
	}
}

func TestStorageCircuit_NonAvailabilityErrorsDontCount(t *testing.T) {
	c := NewStorageCircuit(2)
	c.RecordError(false)
	c.RecordError(false)
	c.RecordError(false)

	if c.IsOpen() {
		t.Error("non-availability errors must not trip the circuit")
	}
}

func TestStorageCircuit_SuccessResetsAndCloses(t *testing.T) {
	c := NewStorageCircuit(1)
	c.RecordError(true)
	if !c.IsOpen() {
		t.Fatal("expected circuit to open")
	}

	c.RecordSuccess()
	if c.IsOpen() {
		t.Error("expected circuit to close after success")
	}

	// Counter must have reset, not just the open flag.
	c.RecordError(true)
	if !c.IsOpen() {
		t.Error("a single error after reset should reopen a threshold-1 circuit")
	}
}

type fakeProber struct {
	calls   atomic.Int64
	succeed atomic.Bool
}

func (f *fakeProber) Probe(ctx context.Context) error {
	f.calls.Add(1)
	if f.succeed.Load() {
		return nil
	}
	return errors.New("still down")
}

func TestRunProbeLoop_ClosesOnSuccess(t *testing.T) {
	c := NewStorageCircuit(1)
	c.RecordError(true)
	if !c.IsOpen() {
		t.Fatal("expected circuit to start open")
	}

	prober := &fakeProber{}

	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()

	go func() {
		time.Sleep(10 * time.Millisecond)
		prober.succeed.Store(true)
	}()

	RunProbeLoop(ctx, c, prober, 5*time.Millisecond, zerolog.Nop())

	if c.IsOpen() {
		t.Error("expected circuit to close once probe succeeded")
	}
	if prober.calls.Load() == 0 {
		t.Error("expected at least one probe call")
	}
}

func TestRunProbeLoop_SkipsWhenClosed(t *testing.T) {
	c := NewStorageCircuit(5) // never opened
	prober := &fakeProber{}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	RunProbeLoop(ctx, c, prober, 5*time.Millisecond, zerolog.Nop())

	if prober.calls.Load() != 0 {
		t.Error("probe should not be called while circuit is closed")
	}
}
