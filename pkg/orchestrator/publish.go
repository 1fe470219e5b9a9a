package orchestrator

import (
	"context"
	"time"

	"github.com/evalforge/evalforge/pkg/events"
	"github.com/evalforge/evalforge/pkg/eventbus"
	"github.com/evalforge/evalforge/pkg/execution"
	"github.com/evalforge/evalforge/pkg/models"
	"github.com/google/uuid"
)

func (o *Orchestrator) baseEvent(state *executionState, eventType events.EventType) events.BaseEvent {
	return events.BaseEvent{
		ID:          "evt-" + uuid.New().String()[:8],
		Type:        eventType,
		Timestamp:   time.Now(),
		WorkflowID:  state.execution.WorkflowID,
		ExecutionID: state.execution.ExecutionID,
	}
}

func (o *Orchestrator) publish(ctx context.Context, key string, event eventbus.Event) {
	if o.bus == nil {
		return
	}

	if err := o.bus.Publish(context.WithoutCancel(ctx), key, event); err != nil {
		o.logger.Error("Failed to publish event", "key", key, "error", err)
	}
}

func (o *Orchestrator) publishStarted(ctx context.Context, state *executionState) {
	o.publish(ctx, state.execution.ExecutionID, events.EvaluationStarted{
		BaseEvent:  o.baseEvent(state, events.EvaluationStartedEvent),
		Subject:    state.subject,
		TaskTypes:  state.def.TaskTypes(),
		GroupCount: len(state.graph.Groups),
	})
}

func (o *Orchestrator) publishCompleted(ctx context.Context, state *executionState, result *models.AggregatedResult, duration time.Duration) {
	o.publish(ctx, state.execution.ExecutionID, events.EvaluationCompleted{
		BaseEvent: o.baseEvent(state, events.EvaluationCompletedEvent),
		Result:    result,
		Duration:  duration,
	})
}

func (o *Orchestrator) publishFailed(ctx context.Context, state *executionState, err error, duration time.Duration) {
	o.publish(ctx, state.execution.ExecutionID, events.EvaluationFailed{
		BaseEvent: o.baseEvent(state, events.EvaluationFailedEvent),
		Error:     err.Error(),
		Duration:  duration,
	})
}

func (o *Orchestrator) publishCancelled(state *executionState) {
	o.publish(context.Background(), state.execution.ExecutionID, events.EvaluationCancelled{
		BaseEvent: o.baseEvent(state, events.EvaluationCancelledEvent),
		Reason:    "cancelled by request",
	})
}

func (o *Orchestrator) publishTaskDispatched(ctx context.Context, state *executionState, taskType models.TaskType, req models.AgentRequest, agentCtx models.AgentContext) {
	o.publish(ctx, state.execution.ExecutionID, events.TaskDispatched{
		BaseEvent: o.baseEvent(state, events.TaskDispatchedEvent),
		TaskType:  taskType,
		Request:   req,
		Context:   agentCtx,
	})
}

func (o *Orchestrator) publishTaskCompleted(ctx context.Context, state *executionState, taskType models.TaskType, result execution.Result) {
	o.publish(ctx, state.execution.ExecutionID, events.TaskCompleted{
		BaseEvent:  o.baseEvent(state, events.TaskCompletedEvent),
		TaskType:   taskType,
		Response:   result.Response,
		RetryCount: result.RetryCount,
		DurationMs: result.Elapsed.Milliseconds(),
	})
}

func (o *Orchestrator) publishTaskFailed(ctx context.Context, state *executionState, taskType models.TaskType, result execution.Result, errMsg string) {
	event := events.TaskFailed{
		BaseEvent:  o.baseEvent(state, events.TaskFailedEvent),
		TaskType:   taskType,
		Error:      errMsg,
		RetryCount: result.RetryCount,
		DurationMs: result.Elapsed.Milliseconds(),
	}

	if result.Err != nil {
		event.Category = string(result.Err.Category)
	}

	o.publish(ctx, state.execution.ExecutionID, event)
}
