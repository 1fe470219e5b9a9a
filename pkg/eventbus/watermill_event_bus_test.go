package eventbus_test

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evalforge/evalforge/pkg/channels/gochannel"
	"github.com/evalforge/evalforge/pkg/eventbus"
	"github.com/evalforge/evalforge/pkg/events"
	"github.com/evalforge/evalforge/pkg/models"
)

func newTestBus(t *testing.T) *eventbus.WatermillEventBus {
	t.Helper()

	pub, sub := gochannel.CreateTestChannel(watermill.NopLogger{})
	bus := eventbus.NewWatermillEventBus(pub, sub)
	t.Cleanup(func() { _ = bus.Close() })

	return bus
}

func TestPublishSubscribeRoundTrip(t *testing.T) {
	bus := newTestBus(t)

	received := make(chan *events.EvaluationCompleted, 1)

	bus.Handle(events.EvaluationCompletedEvent, func(_ context.Context, event any) error {
		completed, ok := event.(*events.EvaluationCompleted)
		require.True(t, ok)
		received <- completed

		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	sent := events.EvaluationCompleted{
		BaseEvent: events.BaseEvent{
			ID:          "evt-roundtrip",
			Type:        events.EvaluationCompletedEvent,
			Timestamp:   time.Now().UTC(),
			WorkflowID:  "startup-evaluation",
			ExecutionID: "exec-rt1",
		},
		Result: &models.AggregatedResult{
			ExecutionID:  "exec-rt1",
			OverallScore: 81.5,
			Confidence:   models.ConfidenceHigh,
		},
		Duration: 42 * time.Second,
	}

	require.NoError(t, bus.Publish(ctx, "exec-rt1", sent))

	select {
	case got := <-received:
		assert.Equal(t, "evt-roundtrip", got.ID)
		assert.Equal(t, "exec-rt1", got.ExecutionID)
		require.NotNil(t, got.Result)
		assert.InEpsilon(t, 81.5, got.Result.OverallScore, 0.0001)
		assert.Equal(t, 42*time.Second, got.Duration)
	case <-time.After(5 * time.Second):
		t.Fatal("event never delivered")
	}
}

func TestUnhandledEventTypesAreAcked(t *testing.T) {
	bus := newTestBus(t)

	received := make(chan *events.TaskFailed, 2)

	bus.Handle(events.TaskFailedEvent, func(_ context.Context, event any) error {
		failed, ok := event.(*events.TaskFailed)
		require.True(t, ok)
		received <- failed

		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	// No handler registered for the started event; the subscriber must ack
	// it and keep consuming.
	started := events.EvaluationStarted{
		BaseEvent: events.BaseEvent{ID: "evt-1", Type: events.EvaluationStartedEvent, ExecutionID: "exec-1"},
		Subject:   "Acme Robotics",
	}
	require.NoError(t, bus.Publish(ctx, "exec-1", started))

	failed := events.TaskFailed{
		BaseEvent: events.BaseEvent{ID: "evt-2", Type: events.TaskFailedEvent, ExecutionID: "exec-1"},
		TaskType:  models.TaskMarketResearch,
		Error:     "connection refused",
		Category:  "network",
	}
	require.NoError(t, bus.Publish(ctx, "exec-1", failed))

	select {
	case got := <-received:
		assert.Equal(t, "evt-2", got.ID)
		assert.Equal(t, models.TaskMarketResearch, got.TaskType)
		assert.Equal(t, "network", got.Category)
	case <-time.After(5 * time.Second):
		t.Fatal("task failed event never delivered")
	}
}

func TestGenerateIDIsUnique(t *testing.T) {
	bus := newTestBus(t)

	seen := make(map[string]bool)

	for range 100 {
		id := bus.GenerateID()
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}
