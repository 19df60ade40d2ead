// Package bus provides the in-process publish/subscribe router for domain
// events. Synchronous subscribers run on the emitting goroutine in
// registration order; side-effect handlers attach through a wildcard
// subscription and schedule their own goroutines.
package bus

import (
	"sync"

	"go.uber.org/zap"

	"github.com/studysync/coordination-platform/internal/event"
	"github.com/studysync/coordination-platform/pkg/logger"
	"github.com/studysync/coordination-platform/pkg/metrics"
)

// Handler receives events synchronously. Handlers must not perform
// blocking I/O; that belongs in side-effect bindings.
type Handler func(event.Event)

type subscription struct {
	id      uint64
	handler Handler
}

// Bus routes typed domain events to registered subscribers.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[event.Kind][]subscription
	global []subscription
	logger *logger.Logger
}

// New creates an event bus.
func New(log *logger.Logger) *Bus {
	return &Bus{
		subs:   make(map[event.Kind][]subscription),
		logger: log,
	}
}

// Subscribe registers a handler for one event kind and returns its
// unsubscribe function. Registering the same handler twice yields two
// independent subscriptions.
func (b *Bus) Subscribe(kind event.Kind, h Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[kind] = append(b.subs[kind], subscription{id: id, handler: h})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.subs[kind] = remove(b.subs[kind], id)
	}
}

// SubscribeAll registers a handler that receives every event. Intended
// for diagnostics and cross-cutting consumers such as the side-effect
// registry.
func (b *Bus) SubscribeAll(h Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.global = append(b.global, subscription{id: id, handler: h})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.global = remove(b.global, id)
	}
}

// Emit builds the event envelope and delivers it to every subscriber for
// its kind, then to wildcard subscribers, in registration order. A
// panicking subscriber never prevents delivery to the rest. Emit returns
// once all synchronous subscribers have run.
func (b *Bus) Emit(kind event.Kind, data map[string]any, opts ...event.Option) {
	e := event.New(kind, data, opts...)

	b.mu.RLock()
	targets := make([]subscription, 0, len(b.subs[kind])+len(b.global))
	targets = append(targets, b.subs[kind]...)
	targets = append(targets, b.global...)
	b.mu.RUnlock()

	metrics.EventsEmitted.WithLabelValues(string(kind)).Inc()

	for _, sub := range targets {
		b.deliver(sub, e)
	}
}

func (b *Bus) deliver(sub subscription, e event.Event) {
	defer func() {
		if r := recover(); r != nil {
			metrics.SubscriberPanics.WithLabelValues(string(e.Kind)).Inc()
			b.logger.Error("event subscriber panicked",
				zap.String("kind", string(e.Kind)),
				zap.String("subject_user_id", e.SubjectUserID),
				zap.Any("panic", r),
			)
		}
	}()
	sub.handler(e)
}

func remove(subs []subscription, id uint64) []subscription {
	for i, s := range subs {
		if s.id == id {
			return append(subs[:i:i], subs[i+1:]...)
		}
	}
	return subs
}
