package eventbus

import (
	"context"
	"log"
)

// LoggingMiddleware logs all event traffic through the bus.
type LoggingMiddleware struct{}

// NewLoggingMiddleware creates a LoggingMiddleware.
func NewLoggingMiddleware() *LoggingMiddleware {
	return &LoggingMiddleware{}
}

// Before logs event receipt.
func (m *LoggingMiddleware) Before(ctx context.Context, event Event) (Event, error) {
	log.Printf("eventbus: %s", event.EventType())
	return event, nil
}

// After logs fan-out failures.
func (m *LoggingMiddleware) After(ctx context.Context, event Event, err error) {
	if err != nil {
		log.Printf("eventbus: subscriber failed for %s: %v", event.EventType(), err)
	}
}

// FilterMiddleware drops events whose type is not in the allow set.
// An empty allow set passes everything.
type FilterMiddleware struct {
	Allow map[string]bool
}

// Before drops filtered events by returning nil.
func (m *FilterMiddleware) Before(ctx context.Context, event Event) (Event, error) {
	if len(m.Allow) == 0 || m.Allow[event.EventType()] {
		return event, nil
	}
	return nil, nil
}

// After is a no-op.
func (m *FilterMiddleware) After(ctx context.Context, event Event, err error) {}
