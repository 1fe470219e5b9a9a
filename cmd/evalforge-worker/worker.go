// Package main provides the Evalforge worker: a queue-fed runner for
// out-of-process analysis agents.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/evalforge/evalforge/pkg/eventbus"
	"github.com/evalforge/evalforge/pkg/events"
	"github.com/evalforge/evalforge/pkg/execution"
	"github.com/evalforge/evalforge/pkg/queue"
	"github.com/google/uuid"
)

type Worker struct {
	id       string
	executor *execution.Service
	eventBus eventbus.EventPublisher
	consumer *queue.Consumer
	logger   *slog.Logger
}

func NewWorker(
	id string,
	executor *execution.Service,
	eventBus eventbus.EventPublisher,
	consumer *queue.Consumer,
	logger *slog.Logger,
) *Worker {
	return &Worker{
		id:       id,
		executor: executor,
		eventBus: eventBus,
		consumer: consumer,
		logger:   logger,
	}
}

// Start consumes task invocations until SIGINT or SIGTERM.
func (w *Worker) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w.consumer.Start(ctx, w.handleDispatch)

	w.logger.InfoContext(ctx, "Worker started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan

	w.logger.Info("Shutting down worker")
	cancel()

	return w.consumer.Stop()
}

// handleDispatch runs one task invocation and reports the outcome on the
// event bus. Task failures are terminal outcomes, not queue errors: the
// entry is acknowledged either way, only publish failures leave it for
// redelivery.
func (w *Worker) handleDispatch(ctx context.Context, dispatch *events.TaskDispatched) error {
	logger := w.logger.With(
		"task_type", dispatch.TaskType,
		"execution_id", dispatch.ExecutionID,
	)

	logger.Info("Claimed task invocation")

	result := w.executor.Execute(ctx, dispatch.TaskType, dispatch.Request, dispatch.Context, execution.Options{})

	base := events.BaseEvent{
		ID:          "evt-" + uuid.New().String()[:8],
		Timestamp:   time.Now(),
		WorkflowID:  dispatch.WorkflowID,
		ExecutionID: dispatch.ExecutionID,
		WorkerID:    w.id,
	}

	if result.Success {
		base.Type = events.TaskCompletedEvent

		return w.publish(ctx, dispatch.ExecutionID, events.TaskCompleted{
			BaseEvent:  base,
			TaskType:   dispatch.TaskType,
			Response:   result.Response,
			RetryCount: result.RetryCount,
			DurationMs: result.Elapsed.Milliseconds(),
		})
	}

	base.Type = events.TaskFailedEvent

	failed := events.TaskFailed{
		BaseEvent:  base,
		TaskType:   dispatch.TaskType,
		RetryCount: result.RetryCount,
		DurationMs: result.Elapsed.Milliseconds(),
	}

	if result.Err != nil {
		failed.Error = result.Err.Error()
		failed.Category = string(result.Err.Category)
	}

	logger.Error("Task invocation failed", "error", failed.Error, "category", failed.Category)

	return w.publish(ctx, dispatch.ExecutionID, failed)
}

func (w *Worker) publish(ctx context.Context, key string, event eventbus.Event) error {
	if err := w.eventBus.Publish(ctx, key, event); err != nil {
		return fmt.Errorf("failed to publish task outcome: %w", err)
	}

	return nil
}
