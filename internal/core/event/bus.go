package event

import (
	"sync"
	"sync/atomic"
	"time"
)

// Kind identifies a signal published by the resilience components.
type Kind string

const (
	KindConnectionSuccess   Kind = "connection_success"
	KindCriticalError       Kind = "critical_error"
	KindHealthAlert         Kind = "health_alert"
	KindHealthAlertResolved Kind = "health_alert_resolved"
	KindErrorHandled        Kind = "error_handled"
)

// Signal is a single notification on the bus.
type Signal struct {
	Kind   Kind
	At     time.Time
	Fields map[string]any
}

// Handler receives published signals. Handlers run on the dispatch
// goroutine and must not block.
type Handler func(Signal)

// Bus is an in-process pub/sub hub. Publish never blocks the caller:
// signals are queued and delivered by a single goroutine, and dropped
// (counted) when the queue is full.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Kind][]Handler
	all      []Handler
	closed   bool

	queue   chan Signal
	done    chan struct{}
	dropped atomic.Uint64
}

// NewBus creates a bus. capacity <= 0 falls back to 256.
func NewBus(capacity int) *Bus {
	if capacity <= 0 {
		capacity = 256
	}
	b := &Bus{
		handlers: make(map[Kind][]Handler),
		queue:    make(chan Signal, capacity),
		done:     make(chan struct{}),
	}
	go b.dispatch()
	return b
}

// Subscribe registers a handler for one signal kind.
func (b *Bus) Subscribe(kind Kind, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[kind] = append(b.handlers[kind], h)
}

// SubscribeAll registers a handler for every signal kind.
func (b *Bus) SubscribeAll(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, h)
}

// Publish enqueues a signal stamped with the current time.
func (b *Bus) Publish(kind Kind, fields map[string]any) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	select {
	case b.queue <- Signal{Kind: kind, At: time.Now(), Fields: fields}:
	default:
		b.dropped.Add(1)
	}
}

// Dropped reports how many signals were discarded on a full queue.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Close stops the bus after draining queued signals.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	close(b.queue)
	b.mu.Unlock()
	<-b.done
}

func (b *Bus) dispatch() {
	defer close(b.done)
	for sig := range b.queue {
		b.mu.RLock()
		hs := make([]Handler, 0, len(b.handlers[sig.Kind])+len(b.all))
		hs = append(hs, b.handlers[sig.Kind]...)
		hs = append(hs, b.all...)
		b.mu.RUnlock()
		for _, h := range hs {
			h(sig)
		}
	}
}
