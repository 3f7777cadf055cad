// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aveeno350-ctrl/hook-script-studio/domain/metric"
)

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// -----------------------------------------------------------------------------
// Counter Store Port
// -----------------------------------------------------------------------------

// CounterStore is an atomic-increment key-value store for analytics counters.
// Implementations must make Increment atomic in the backing store; the
// application never performs a local read-modify-write on a counter.
type CounterStore interface {
	// Increment adds by to the counter named key, creating it at 0 first.
	Increment(ctx context.Context, key string, by int64) error

	// Get returns the counter value, or 0 if the key was never set or its
	// stored value cannot be parsed.
	Get(ctx context.Context, key string) (int64, error)

	// GetMany returns a value for every requested key. Absent keys are 0.
	GetMany(ctx context.Context, keys []string) (map[string]int64, error)
}

// Pinger is implemented by stores that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StoreError is returned when a counter store call does not succeed.
type StoreError struct {
	Op         string // "incrby", "get", "mget"
	StatusCode int    // HTTP status for REST backends, 0 otherwise
	Body       string
	Err        error
}

func (e *StoreError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("counter store %s failed: %d %s", e.Op, e.StatusCode, e.Body)
	}
	if e.Err != nil {
		return fmt.Sprintf("counter store %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("counter store %s failed: %s", e.Op, e.Body)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// IsStoreError reports whether err is or wraps a *StoreError.
func IsStoreError(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}

// -----------------------------------------------------------------------------
// External Service Ports
// -----------------------------------------------------------------------------

// GenerationRequest is what the generation service asks a provider for.
type GenerationRequest struct {
	System      string
	User        string
	MaxTokens   int
	Temperature float64
}

// GenerationResponse is the provider's answer.
type GenerationResponse struct {
	Content          string
	Model            string
	PromptTokens     int64
	CompletionTokens int64
}

// Generator calls the external text-generation provider.
type Generator interface {
	Generate(ctx context.Context, req GenerationRequest) (GenerationResponse, error)
}

// ErrProviderFailed is the sentinel wrapped by all provider failures.
var ErrProviderFailed = errors.New("generation provider failed")

// ProviderError carries diagnostics from a failed provider call.
type ProviderError struct {
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("generation provider error %d: %s", e.StatusCode, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return ErrProviderFailed
}

// -----------------------------------------------------------------------------
// Event Ports
// -----------------------------------------------------------------------------

// EventRecorder accepts analytics events for best-effort processing.
type EventRecorder interface {
	// Record queues an event. It never blocks and never fails the caller.
	Record(e metric.Event)

	// Close stops the recorder after draining queued events.
	Close() error
}
