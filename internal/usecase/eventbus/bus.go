// Package eventbus fans chat lifecycle events out to observers such as the
// event log pane, the toast notifier and the tracer.
package eventbus

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"tracechat/internal/domain"
)

// DefaultHistory is the number of events retained for Recent.
const DefaultHistory = 200

type subscriber struct {
	id      uint64
	handler domain.EventHandler
}

// Bus is an in-process, goroutine-safe event bus. Handlers run on their own
// goroutines so a slow observer never stalls the stream loop.
type Bus struct {
	mu       sync.RWMutex
	byType   map[domain.EventType][]subscriber
	wildcard []subscriber
	history  []domain.Event
	limit    int
	nextID   atomic.Uint64
	logger   *slog.Logger
	inflight sync.WaitGroup
	closed   atomic.Bool
}

// New creates a bus that keeps the last DefaultHistory events.
func New(logger *slog.Logger) *Bus {
	return NewWithHistory(logger, DefaultHistory)
}

// NewWithHistory creates a bus that keeps the last limit events. A limit of
// zero disables history.
func NewWithHistory(logger *slog.Logger, limit int) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	if limit < 0 {
		limit = 0
	}
	return &Bus{
		byType: make(map[domain.EventType][]subscriber),
		limit:  limit,
		logger: logger,
	}
}

// Publish records the event and delivers it to typed and wildcard
// subscribers. Panicking handlers are recovered and logged.
func (b *Bus) Publish(ctx context.Context, event domain.Event) {
	if b.closed.Load() {
		return
	}

	b.mu.Lock()
	if b.limit > 0 {
		if len(b.history) == b.limit {
			copy(b.history, b.history[1:])
			b.history = b.history[:b.limit-1]
		}
		b.history = append(b.history, event)
	}
	targets := make([]subscriber, 0, len(b.byType[event.Type])+len(b.wildcard))
	targets = append(targets, b.byType[event.Type]...)
	targets = append(targets, b.wildcard...)
	b.mu.Unlock()

	for _, sub := range targets {
		b.deliver(ctx, event, sub)
	}
}

func (b *Bus) deliver(ctx context.Context, event domain.Event, sub subscriber) {
	b.inflight.Add(1)
	go func() {
		defer b.inflight.Done()
		defer func() {
			if r := recover(); r != nil {
				b.logger.Error("event handler panicked",
					"event", string(event.Type),
					"session", event.SessionID,
					"panic", r,
				)
			}
		}()
		sub.handler(ctx, event)
	}()
}

// Subscribe registers a handler for one event type and returns its
// unsubscribe function.
func (b *Bus) Subscribe(eventType domain.EventType, handler domain.EventHandler) func() {
	id := b.nextID.Add(1)

	b.mu.Lock()
	b.byType[eventType] = append(b.byType[eventType], subscriber{id: id, handler: handler})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.byType[eventType] = without(b.byType[eventType], id)
	}
}

// SubscribeAll registers a handler for every event and returns its
// unsubscribe function.
func (b *Bus) SubscribeAll(handler domain.EventHandler) func() {
	id := b.nextID.Add(1)

	b.mu.Lock()
	b.wildcard = append(b.wildcard, subscriber{id: id, handler: handler})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.wildcard = without(b.wildcard, id)
	}
}

// Recent returns up to n of the most recent events, oldest first. n <= 0
// returns the whole history.
func (b *Bus) Recent(n int) []domain.Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	start := 0
	if n > 0 && n < len(b.history) {
		start = len(b.history) - n
	}
	return append([]domain.Event(nil), b.history[start:]...)
}

// Close rejects further publishes and waits for in-flight handlers.
// It is safe to call more than once.
func (b *Bus) Close() {
	if b.closed.Swap(true) {
		return
	}
	b.inflight.Wait()
}

func without(subs []subscriber, id uint64) []subscriber {
	for i, s := range subs {
		if s.id == id {
			return append(subs[:i:i], subs[i+1:]...)
		}
	}
	return subs
}
