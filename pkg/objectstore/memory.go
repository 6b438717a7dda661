package objectstore

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// Memory is an in-process Backend used by tests in place of a real
// cloud store. It stores exactly the bytes it's given, matching the real
// backends' no-additional-framing contract.
type Memory struct {
	mu       sync.Mutex
	objects  map[string][]byte
	failNext error // if set, the next call fails with this error and clears
}

// NewMemory constructs an empty Memory backend.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte)}
}

// FailNext arranges for the next operation to return err instead of
// succeeding, for exercising storage-circuit behavior in tests.
func (m *Memory) FailNext(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = err
}

func (m *Memory) takeFailure() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	err := m.failNext
	m.failNext = nil
	return err
}

func (m *Memory) Get(ctx context.Context, key string) ([]byte, error) {
	if err := m.takeFailure(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	body, ok := m.objects[key]
	m.mu.Unlock()
	if !ok {
		return nil, ErrMiss
	}
	return body, nil
}

func (m *Memory) Put(ctx context.Context, key string, body []byte) error {
	if err := m.takeFailure(); err != nil {
		return err
	}

	m.mu.Lock()
	m.objects[key] = body
	m.mu.Unlock()
	return nil
}

func (m *Memory) DeletePrefix(ctx context.Context, prefix string) error {
	if err := m.takeFailure(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			delete(m.objects, k)
		}
	}
	return nil
}

func (m *Memory) Probe(ctx context.Context) error {
	return m.takeFailure()
}

var errAvailability = errors.New("objectstore: simulated unavailability")

// IsAvailabilityError treats any non-ErrMiss error as an availability
// error, matching the real backends' conservative default.
func (m *Memory) IsAvailabilityError(err error) bool {
	return err != nil && !errors.Is(err, ErrMiss)
}

// ErrSimulatedUnavailability is a ready-made error for use with FailNext
// in tests that want IsAvailabilityError to return true.
var ErrSimulatedUnavailability = errAvailability

// Len reports the number of stored objects, for test assertions.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}
