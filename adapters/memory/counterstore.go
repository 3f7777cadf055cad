// Package memory provides in-memory implementations of storage ports for
// tests and single-process development.
package memory

import (
	"context"
	"sync"

	"github.com/aveeno350-ctrl/hook-script-studio/ports"
)

// CounterStore is an in-memory implementation of ports.CounterStore.
type CounterStore struct {
	mu     sync.RWMutex
	values map[string]int64

	// failWith, when set, is returned by every call (for testing error paths).
	failWith error
}

// NewCounterStore creates an empty in-memory counter store.
func NewCounterStore() *CounterStore {
	return &CounterStore{
		values: make(map[string]int64),
	}
}

// Increment atomically adds by to key.
func (s *CounterStore) Increment(ctx context.Context, key string, by int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	s.values[key] += by
	return nil
}

// Get returns the value for key, or 0 if it was never set.
func (s *CounterStore) Get(ctx context.Context, key string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failWith != nil {
		return 0, s.failWith
	}
	return s.values[key], nil
}

// GetMany returns a value for every requested key.
func (s *CounterStore) GetMany(ctx context.Context, keys []string) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	out := make(map[string]int64, len(keys))
	for _, k := range keys {
		out[k] = s.values[k]
	}
	return out, nil
}

// Ping always succeeds unless a failure is injected.
func (s *CounterStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.failWith
}

// FailWith makes every subsequent call return err. Pass nil to recover.
func (s *CounterStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWith = err
}

// Snapshot returns a copy of all counters (for testing).
func (s *CounterStore) Snapshot() map[string]int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int64, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Clear removes all counters (for testing).
func (s *CounterStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = make(map[string]int64)
}

// Ensure interface compliance.
var (
	_ ports.CounterStore = (*CounterStore)(nil)
	_ ports.Pinger       = (*CounterStore)(nil)
)
