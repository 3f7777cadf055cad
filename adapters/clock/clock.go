// Package clock provides ports.Clock implementations.
package clock

import (
	"sync"
	"time"

	"github.com/aveeno350-ctrl/hook-script-studio/ports"
)

// Real returns the actual current time.
type Real struct{}

// Now returns the current time.
func (Real) Now() time.Time {
	return time.Now()
}

// Fake is a controllable clock for tests.
type Fake struct {
	mu      sync.RWMutex
	current time.Time
}

// NewFake creates a fake clock set to t.
func NewFake(t time.Time) *Fake {
	return &Fake{current: t}
}

// NewFakeMillis creates a fake clock set to an epoch-millisecond instant.
func NewFakeMillis(ms int64) *Fake {
	return NewFake(time.UnixMilli(ms).UTC())
}

// Now returns the fake current time.
func (f *Fake) Now() time.Time {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.current
}

// Set moves the fake clock to t.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = t
}

// Advance moves the fake clock forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = f.current.Add(d)
}

// Millis returns c's current time in epoch milliseconds, the unit stored in
// usage tokens.
func Millis(c ports.Clock) int64 {
	return c.Now().UnixMilli()
}

var (
	_ ports.Clock = Real{}
	_ ports.Clock = (*Fake)(nil)
)
