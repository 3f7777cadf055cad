package app

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/aveeno350-ctrl/hook-script-studio/domain/metric"
)

// mockSink implements EventSink for testing.
type mockSink struct {
	mu      sync.Mutex
	events  []metric.Event
	err     error
	started chan struct{}
	release chan struct{}
}

func (m *mockSink) RecordEvent(ctx context.Context, e metric.Event) error {
	if m.started != nil {
		m.started <- struct{}{}
	}
	if m.release != nil {
		<-m.release
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return m.err
}

func (m *mockSink) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func TestEventRecorder_DrainsOnClose(t *testing.T) {
	sink := &mockSink{}
	r := NewEventRecorder(sink, zerolog.Nop(), EventRecorderConfig{})

	for i := 0; i < 50; i++ {
		r.Record(metric.Event{Name: "generate_clicked"})
	}
	r.Close()

	if sink.count() != 50 {
		t.Errorf("recorded %d events, want 50", sink.count())
	}
}

func TestEventRecorder_DropsWhenFull(t *testing.T) {
	sink := &mockSink{started: make(chan struct{}, 1), release: make(chan struct{})}
	var dropped atomic.Int64
	r := NewEventRecorder(sink, zerolog.Nop(), EventRecorderConfig{
		QueueSize: 1,
		OnDropped: func() { dropped.Add(1) },
	})

	r.Record(metric.Event{Name: "a"})
	select {
	case <-sink.started:
	case <-time.After(time.Second):
		t.Fatal("worker did not pick up the first event")
	}

	r.Record(metric.Event{Name: "b"}) // fills the queue
	r.Record(metric.Event{Name: "c"}) // dropped

	if dropped.Load() != 1 {
		t.Errorf("dropped = %d, want 1", dropped.Load())
	}

	close(sink.release)
	go func() {
		for range sink.started {
		}
	}()
	r.Close()
	close(sink.started)

	if sink.count() != 2 {
		t.Errorf("recorded %d events, want 2", sink.count())
	}
}

func TestEventRecorder_RecordNeverBlocks(t *testing.T) {
	sink := &mockSink{release: make(chan struct{})}
	defer close(sink.release)
	r := NewEventRecorder(sink, zerolog.Nop(), EventRecorderConfig{QueueSize: 2})

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			r.Record(metric.Event{Name: "x"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Record blocked on a stalled sink")
	}
}

func TestEventRecorder_SwallowsSinkErrors(t *testing.T) {
	sink := &mockSink{err: errors.New("kv down")}
	r := NewEventRecorder(sink, zerolog.Nop(), EventRecorderConfig{})

	r.Record(metric.Event{Name: "a"})
	r.Record(metric.Event{Name: "b"})
	if err := r.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if sink.count() != 2 {
		t.Errorf("recorded %d, want 2", sink.count())
	}
}

func TestEventRecorder_RecordAfterClose(t *testing.T) {
	var dropped atomic.Int64
	r := NewEventRecorder(&mockSink{}, zerolog.Nop(), EventRecorderConfig{
		OnDropped: func() { dropped.Add(1) },
	})
	r.Close()
	r.Close()

	r.Record(metric.Event{Name: "late"})
	if dropped.Load() != 1 {
		t.Errorf("dropped = %d, want 1", dropped.Load())
	}
}

func TestEventRecorder_WithMetricsService(t *testing.T) {
	svc, store, _ := newMetricsFixture("")
	r := NewEventRecorder(svc, zerolog.Nop(), EventRecorderConfig{})

	r.Record(metric.Event{Name: "copy_button_used", Props: map[string]any{"platform": "Reels"}})
	r.Close()

	snap := store.Snapshot()
	if snap["evt:copy_button_used"] != 1 || snap["evt:copy_button_used:platform:Reels"] != 1 {
		t.Errorf("counters = %v", snap)
	}
}
