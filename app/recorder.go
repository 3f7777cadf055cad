package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aveeno350-ctrl/hook-script-studio/domain/metric"
	"github.com/aveeno350-ctrl/hook-script-studio/ports"
)

// Recorder defaults.
const (
	DefaultEventQueueSize = 1024
	DefaultEventTimeout   = 5 * time.Second
)

// EventSink is what the recorder forwards events to.
type EventSink interface {
	RecordEvent(ctx context.Context, e metric.Event) error
}

// EventRecorder queues analytics events and applies them on a single
// background worker. Record never blocks: when the queue is full the event
// is dropped.
type EventRecorder struct {
	sink      EventSink
	logger    zerolog.Logger
	timeout   time.Duration
	onDropped func()

	queue     chan metric.Event
	mu        sync.RWMutex
	closed    bool
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// EventRecorderConfig configures NewEventRecorder.
type EventRecorderConfig struct {
	QueueSize int
	Timeout   time.Duration // per event
	OnDropped func()        // optional, called for every dropped event
}

// NewEventRecorder starts the background worker.
func NewEventRecorder(sink EventSink, logger zerolog.Logger, cfg EventRecorderConfig) *EventRecorder {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultEventQueueSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultEventTimeout
	}

	r := &EventRecorder{
		sink:      sink,
		logger:    logger,
		timeout:   cfg.Timeout,
		onDropped: cfg.OnDropped,
		queue:     make(chan metric.Event, cfg.QueueSize),
	}

	r.wg.Add(1)
	go r.run()

	return r
}

// Record queues an event for processing.
func (r *EventRecorder) Record(e metric.Event) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		r.dropped(e, "recorder closed")
		return
	}

	select {
	case r.queue <- e:
	default:
		r.dropped(e, "queue full")
	}
}

func (r *EventRecorder) dropped(e metric.Event, why string) {
	if r.onDropped != nil {
		r.onDropped()
	}
	r.logger.Debug().Str("event", e.Name).Str("reason", why).Msg("analytics event dropped")
}

func (r *EventRecorder) run() {
	defer r.wg.Done()
	for e := range r.queue {
		r.apply(e)
	}
}

func (r *EventRecorder) apply(e metric.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.sink.RecordEvent(ctx, e); err != nil {
		r.logger.Warn().Err(err).Str("event", e.Name).Msg("analytics event not recorded")
	}
}

// Close stops accepting events, drains the queue and waits for the worker.
func (r *EventRecorder) Close() error {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		close(r.queue)
		r.mu.Unlock()

		r.wg.Wait()
	})
	return nil
}

// Ensure interface compliance.
var _ ports.EventRecorder = (*EventRecorder)(nil)
