package eventbus

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPublishFanOut verifies an event reaches all subscribers of its type
// and no others.
func TestPublishFanOut(t *testing.T) {
	bus := NewInMemoryBus()
	var stageEvents, toolEvents int

	bus.Subscribe("StageCompleted", func(ctx context.Context, e Event) error {
		stageEvents++
		return nil
	})
	bus.Subscribe("StageCompleted", func(ctx context.Context, e Event) error {
		stageEvents++
		return nil
	})
	bus.Subscribe("ToolCallCompleted", func(ctx context.Context, e Event) error {
		toolEvents++
		return nil
	})

	err := bus.Publish(context.Background(), &StageCompleted{Stage: "valuation"})
	require.NoError(t, err)

	assert.Equal(t, 2, stageEvents)
	assert.Equal(t, 0, toolEvents)
}

// TestPublishNoSubscribers verifies publishing without subscribers is a no-op.
func TestPublishNoSubscribers(t *testing.T) {
	bus := NewInMemoryBus()
	assert.NoError(t, bus.Publish(context.Background(), &RunStarted{RunID: "run_1"}))
}

// TestSubscriberErrorDoesNotFailPublish verifies fire-and-forget semantics:
// a failing subscriber does not stop the others or fail the publisher.
func TestSubscriberErrorDoesNotFailPublish(t *testing.T) {
	bus := NewInMemoryBus()
	var reached bool

	bus.Subscribe("StageFailed", func(ctx context.Context, e Event) error {
		return errors.New("subscriber broke")
	})
	bus.Subscribe("StageFailed", func(ctx context.Context, e Event) error {
		reached = true
		return nil
	})

	err := bus.Publish(context.Background(), &StageFailed{Stage: "legal"})
	require.NoError(t, err)
	assert.True(t, reached)
}

// TestUnsubscribe verifies the returned unsubscribe function removes
// exactly the registered handler.
func TestUnsubscribe(t *testing.T) {
	bus := NewInMemoryBus()
	var calls int

	unsub := bus.Subscribe("RunCompleted", func(ctx context.Context, e Event) error {
		calls++
		return nil
	})
	bus.Subscribe("RunCompleted", func(ctx context.Context, e Event) error {
		calls++
		return nil
	})

	unsub()
	require.NoError(t, bus.Publish(context.Background(), &RunCompleted{RunID: "run_1"}))

	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, bus.SubscriberCount("RunCompleted"))
}

// TestFilterMiddlewareDropsEvents verifies middleware can drop events
// before fan-out.
func TestFilterMiddlewareDropsEvents(t *testing.T) {
	bus := NewInMemoryBus()
	var calls int

	bus.AddMiddleware(&FilterMiddleware{Allow: map[string]bool{"CheckpointRequested": true}})
	bus.Subscribe("CheckpointRequested", func(ctx context.Context, e Event) error {
		calls++
		return nil
	})
	bus.Subscribe("ToolCallCompleted", func(ctx context.Context, e Event) error {
		calls++
		return nil
	})

	require.NoError(t, bus.Publish(context.Background(), &CheckpointRequested{Stage: "negotiation"}))
	require.NoError(t, bus.Publish(context.Background(), &ToolCallCompleted{Tool: "web_search"}))

	assert.Equal(t, 1, calls)
}

// TestClear verifies Clear removes all subscribers.
func TestClear(t *testing.T) {
	bus := NewInMemoryBus()
	bus.Subscribe("RunStarted", func(ctx context.Context, e Event) error { return nil })

	bus.Clear()
	assert.Equal(t, 0, bus.SubscriberCount("RunStarted"))
}
