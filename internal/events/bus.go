package events

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultBufferSize is the number of events the Bus holds before dropping.
const DefaultBufferSize = 256

// sinkTimeout bounds a single Emit call.
const sinkTimeout = 5 * time.Second

// Bus queues events and hands them to every sink in registration order.
type Bus struct {
	queue  chan Event
	logger *slog.Logger

	mu    sync.RWMutex
	sinks []namedSink
}

type namedSink struct {
	name string
	sink Sink
}

// NewBus creates a Bus with the given buffer size (DefaultBufferSize if ≤ 0).
func NewBus(size int, logger *slog.Logger) *Bus {
	if size <= 0 {
		size = DefaultBufferSize
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Bus{
		queue:  make(chan Event, size),
		logger: logger,
	}
}

// AddSink registers a sink. Call before Run.
func (b *Bus) AddSink(name string, sink Sink) {
	b.mu.Lock()
	b.sinks = append(b.sinks, namedSink{name: name, sink: sink})
	b.mu.Unlock()
}

// Publish enqueues ev without blocking. When the buffer is full the event
// is dropped and a warning logged.
func (b *Bus) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	select {
	case b.queue <- ev:
	default:
		b.logger.Warn("event buffer full, dropping event", "type", ev.Type)
	}
}

// Run delivers events until ctx is cancelled, then drains what is queued.
func (b *Bus) Run(ctx context.Context) {
	for {
		select {
		case ev := <-b.queue:
			b.deliver(ev)
		case <-ctx.Done():
			b.drain()
			return
		}
	}
}

func (b *Bus) drain() {
	for {
		select {
		case ev := <-b.queue:
			b.deliver(ev)
		default:
			return
		}
	}
}

func (b *Bus) deliver(ev Event) {
	b.mu.RLock()
	sinks := b.sinks
	b.mu.RUnlock()

	for _, s := range sinks {
		ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		if err := s.sink.Emit(ctx, ev); err != nil {
			b.logger.Warn("event sink failed", "sink", s.name, "type", ev.Type, "error", err)
		}
		cancel()
	}
}
