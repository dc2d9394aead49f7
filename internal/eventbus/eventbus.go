// Package eventbus is an in-process publish/subscribe bus for typed
// domain events, with bounded history and isolated handler failures
// (spec.md §4.7).
package eventbus

import (
	"context"
	"sync"

	"github.com/northcloud/vulcan-scheduler/internal/domain"
	"github.com/northcloud/vulcan-scheduler/internal/logger"
)

// Handler processes an event synchronously: on the publishing goroutine for
// Publish, on a separate goroutine for PublishAsync.
type Handler func(event domain.DomainEvent)

// AsyncHandler processes an event on its own goroutine.
type AsyncHandler func(ctx context.Context, event domain.DomainEvent)

// defaultMaxHistory bounds the in-memory event history ring buffer
// (spec.md §4.7, mirroring the Python reference's _max_history_size).
const defaultMaxHistory = 1000

// Bus is an in-memory, in-process event bus.
type Bus struct {
	mu            sync.RWMutex
	handlers      map[domain.EventType][]Handler
	asyncHandlers map[domain.EventType][]AsyncHandler
	history       []domain.DomainEvent
	maxHistory    int
	log           logger.Logger
}

// Option configures a Bus.
type Option func(*Bus)

// WithMaxHistory overrides the bounded history size.
func WithMaxHistory(n int) Option {
	return func(b *Bus) { b.maxHistory = n }
}

// WithLogger attaches a logger used to report isolated handler panics/errors.
func WithLogger(l logger.Logger) Option {
	return func(b *Bus) { b.log = l }
}

// New constructs an empty Bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		handlers:      make(map[domain.EventType][]Handler),
		asyncHandlers: make(map[domain.EventType][]AsyncHandler),
		maxHistory:    defaultMaxHistory,
		log:           logger.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a synchronous handler for eventType.
func (b *Bus) Subscribe(eventType domain.EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// SubscribeAsync registers an asynchronous handler for eventType.
func (b *Bus) SubscribeAsync(eventType domain.EventType, handler AsyncHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.asyncHandlers[eventType] = append(b.asyncHandlers[eventType], handler)
}

// Unsubscribe removes every handler (sync and async) registered for
// eventType.
func (b *Bus) Unsubscribe(eventType domain.EventType) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, eventType)
	delete(b.asyncHandlers, eventType)
}

// ClearHandlers removes every registered handler, of every event type.
func (b *Bus) ClearHandlers() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = make(map[domain.EventType][]Handler)
	b.asyncHandlers = make(map[domain.EventType][]AsyncHandler)
}

// Publish dispatches event to all synchronous handlers in registration
// order (isolating panics so one misbehaving handler cannot block the
// rest), then fires all async handlers on their own goroutines, then
// records event in the bounded history.
func (b *Bus) Publish(ctx context.Context, event domain.DomainEvent) {
	b.mu.RLock()
	syncHandlers := append([]Handler(nil), b.handlers[event.EventType]...)
	asyncHandlers := append([]AsyncHandler(nil), b.asyncHandlers[event.EventType]...)
	b.mu.RUnlock()

	for _, h := range syncHandlers {
		b.callSync(h, event)
	}

	for _, h := range asyncHandlers {
		go b.callAsync(ctx, h, event)
	}

	b.recordHistory(event)
}

// PublishAsync dispatches event to every synchronous handler on its own
// goroutine and to every asynchronous handler concurrently, then waits for
// all of them to finish before returning (spec.md §4.7: "dispatches sync
// handlers on a worker pool and awaits async handlers concurrently"). Each
// handler's panic is isolated the same way Publish isolates them; one slow
// or failing handler does not block or fail the others.
func (b *Bus) PublishAsync(ctx context.Context, event domain.DomainEvent) {
	b.mu.RLock()
	syncHandlers := append([]Handler(nil), b.handlers[event.EventType]...)
	asyncHandlers := append([]AsyncHandler(nil), b.asyncHandlers[event.EventType]...)
	b.mu.RUnlock()

	var wg sync.WaitGroup
	wg.Add(len(syncHandlers) + len(asyncHandlers))

	for _, h := range syncHandlers {
		h := h
		go func() {
			defer wg.Done()
			b.callSync(h, event)
		}()
	}
	for _, h := range asyncHandlers {
		h := h
		go func() {
			defer wg.Done()
			b.callAsync(ctx, h, event)
		}()
	}

	wg.Wait()
	b.recordHistory(event)
}

// GetHandlerCount returns the number of synchronous plus asynchronous
// handlers currently registered for eventType.
func (b *Bus) GetHandlerCount(eventType domain.EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[eventType]) + len(b.asyncHandlers[eventType])
}

func (b *Bus) callSync(h Handler, event domain.DomainEvent) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("event handler panicked", logger.Any("recover", r), logger.String("event_type", string(event.EventType)))
		}
	}()
	h(event)
}

func (b *Bus) callAsync(ctx context.Context, h AsyncHandler, event domain.DomainEvent) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("async event handler panicked", logger.Any("recover", r), logger.String("event_type", string(event.EventType)))
		}
	}()
	h(ctx, event)
}

func (b *Bus) recordHistory(event domain.DomainEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.history = append(b.history, event)
	if overflow := len(b.history) - b.maxHistory; overflow > 0 {
		b.history = b.history[overflow:]
	}
}

// History returns a copy of the bounded event history, oldest first.
func (b *Bus) History() []domain.DomainEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]domain.DomainEvent(nil), b.history...)
}
