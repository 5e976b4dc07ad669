package eventbus

import (
	"context"
	"sync"
)

// HandlerFunc processes a single event.
type HandlerFunc func(ctx context.Context, event Event) error

// Middleware intercepts events before and after fan-out.
// Used for logging, telemetry, and filtering.
type Middleware interface {
	// Before is called before the event is fanned out.
	// Returns the (possibly modified) event, or nil to drop it.
	Before(ctx context.Context, event Event) (Event, error)

	// After is called once fan-out finishes. err is the first
	// subscriber error, if any.
	After(ctx context.Context, event Event, err error)
}

// Bus is the protocol the engine publishes through.
type Bus interface {
	// Publish fans an event out to all subscribers. Fire-and-forget:
	// subscriber errors never fail the publisher.
	Publish(ctx context.Context, event Event) error

	// Subscribe registers a handler for an event type.
	// Returns an unsubscribe function.
	Subscribe(eventType string, handler HandlerFunc) func()
}

// InMemoryBus is a thread-safe, single-process Bus.
//
// Usage:
//
//	bus := eventbus.NewInMemoryBus()
//	bus.Subscribe("StageCompleted", telemetryHandler)
//	bus.Publish(ctx, &eventbus.StageCompleted{...})
type InMemoryBus struct {
	mu          sync.RWMutex
	nextToken   int
	subscribers map[string]map[int]HandlerFunc
	middleware  []Middleware
}

// NewInMemoryBus creates an empty InMemoryBus.
func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{
		subscribers: make(map[string]map[int]HandlerFunc),
	}
}

// Publish fans an event out to all subscribers of its type. Subscribers
// run sequentially in the caller's goroutine; a failing subscriber does
// not stop the others or fail the publish.
func (b *InMemoryBus) Publish(ctx context.Context, event Event) error {
	processed, err := b.runMiddlewareBefore(ctx, event)
	if err != nil {
		return err
	}
	if processed == nil {
		return nil
	}

	b.mu.RLock()
	handlers := make([]HandlerFunc, 0, len(b.subscribers[processed.EventType()]))
	for _, h := range b.subscribers[processed.EventType()] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	var firstErr error
	for _, handler := range handlers {
		if err := handler(ctx, processed); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	b.runMiddlewareAfter(ctx, processed, firstErr)
	return nil
}

// Subscribe registers a handler for an event type and returns an
// unsubscribe function.
func (b *InMemoryBus) Subscribe(eventType string, handler HandlerFunc) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subscribers[eventType] == nil {
		b.subscribers[eventType] = make(map[int]HandlerFunc)
	}
	token := b.nextToken
	b.nextToken++
	b.subscribers[eventType][token] = handler

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subscribers[eventType], token)
	}
}

// AddMiddleware appends middleware. Before hooks run in registration
// order, After hooks in reverse.
func (b *InMemoryBus) AddMiddleware(mw Middleware) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.middleware = append(b.middleware, mw)
}

// SubscriberCount reports how many handlers are registered for a type.
func (b *InMemoryBus) SubscriberCount(eventType string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[eventType])
}

// Clear removes all subscribers and middleware. Useful for testing.
func (b *InMemoryBus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = make(map[string]map[int]HandlerFunc)
	b.middleware = nil
}

func (b *InMemoryBus) runMiddlewareBefore(ctx context.Context, event Event) (Event, error) {
	b.mu.RLock()
	chain := make([]Middleware, len(b.middleware))
	copy(chain, b.middleware)
	b.mu.RUnlock()

	current := event
	for _, mw := range chain {
		next, err := mw.Before(ctx, current)
		if err != nil {
			return nil, err
		}
		if next == nil {
			return nil, nil
		}
		current = next
	}
	return current, nil
}

func (b *InMemoryBus) runMiddlewareAfter(ctx context.Context, event Event, err error) {
	b.mu.RLock()
	chain := make([]Middleware, len(b.middleware))
	copy(chain, b.middleware)
	b.mu.RUnlock()

	for i := len(chain) - 1; i >= 0; i-- {
		chain[i].After(ctx, event, err)
	}
}

// NopBus discards all events. Used when no subscribers are wired.
type NopBus struct{}

// Publish discards the event.
func (NopBus) Publish(ctx context.Context, event Event) error { return nil }

// Subscribe returns a no-op unsubscribe function.
func (NopBus) Subscribe(eventType string, handler HandlerFunc) func() { return func() {} }

var (
	_ Bus = (*InMemoryBus)(nil)
	_ Bus = NopBus{}
)
