// Package sideeffect binds event kinds to asynchronous handlers that call
// external delivery collaborators. Handler failures are isolated per
// binding and never reach the emitting request.
package sideeffect

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/studysync/coordination-platform/internal/bus"
	"github.com/studysync/coordination-platform/internal/event"
	"github.com/studysync/coordination-platform/pkg/logger"
	"github.com/studysync/coordination-platform/pkg/metrics"
)

// HandlerFunc performs one asynchronous side effect for an event.
type HandlerFunc func(ctx context.Context, e event.Event) error

type binding struct {
	name string
	fn   HandlerFunc
}

// Registry holds the kind→handler bindings and tracks in-flight handlers
// so shutdown can drain them.
type Registry struct {
	mu       sync.RWMutex
	bindings map[event.Kind][]binding
	wg       sync.WaitGroup
	logger   *logger.Logger
}

// NewRegistry creates an empty side-effect registry.
func NewRegistry(log *logger.Logger) *Registry {
	return &Registry{
		bindings: make(map[event.Kind][]binding),
		logger:   log,
	}
}

// Bind registers a named handler for an event kind. Registration happens
// once at startup; bindings for the same kind run independently.
func (r *Registry) Bind(kind event.Kind, name string, fn HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bindings[kind] = append(r.bindings[kind], binding{name: name, fn: fn})
}

// Attach subscribes the registry to the bus and returns the unsubscribe
// function. Matching handlers are scheduled on their own goroutines, so
// Emit never waits on side-effect I/O.
func (r *Registry) Attach(b *bus.Bus) func() {
	return b.SubscribeAll(r.Dispatch)
}

// Dispatch schedules every binding for the event's kind.
func (r *Registry) Dispatch(e event.Event) {
	r.mu.RLock()
	targets := make([]binding, len(r.bindings[e.Kind]))
	copy(targets, r.bindings[e.Kind])
	r.mu.RUnlock()

	for _, bd := range targets {
		r.wg.Add(1)
		go r.run(bd, e)
	}
}

func (r *Registry) run(bd binding, e event.Event) {
	defer r.wg.Done()
	defer func() {
		if rec := recover(); rec != nil {
			metrics.SideEffectsTotal.WithLabelValues(bd.name, "panic").Inc()
			r.logger.Error("side-effect handler panicked",
				zap.String("binding", bd.name),
				zap.String("kind", string(e.Kind)),
				zap.String("subject_user_id", e.SubjectUserID),
				zap.Any("panic", rec),
			)
		}
	}()

	err := bd.fn(context.Background(), e)
	metrics.RecordSideEffect(bd.name, err)
	if err != nil {
		// Logged with enough context for manual replay; no automatic
		// retry at this layer.
		r.logger.Error("side-effect handler failed",
			zap.String("binding", bd.name),
			zap.String("kind", string(e.Kind)),
			zap.String("subject_user_id", e.SubjectUserID),
			zap.Error(err),
		)
	}
}

// Drain waits for in-flight handlers to finish or the context to expire.
func (r *Registry) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
