package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/evalforge/evalforge/pkg/eventbus"
	"github.com/evalforge/evalforge/pkg/events"
	"github.com/evalforge/evalforge/pkg/execution"
	"github.com/evalforge/evalforge/pkg/faults"
	"github.com/evalforge/evalforge/pkg/models"
)

// TaskDispatcher pushes task invocations onto the cross-process dispatch
// channel. *queue.Dispatcher satisfies it.
type TaskDispatcher interface {
	Dispatch(ctx context.Context, dispatch *events.TaskDispatched) error
}

// UseRemoteDispatch switches the orchestrator from in-process agent
// execution to queue dispatch: tasks are appended to the dispatch channel
// and their outcomes are expected back on the event bus. Callers must also
// wire SubscribeOutcomes into the bus the workers report on, or every
// remote task will sit until its wait budget or the execution deadline
// expires.
func (o *Orchestrator) UseRemoteDispatch(dispatcher TaskDispatcher) {
	o.dispatcher = dispatcher
}

// SubscribeOutcomes registers the worker-reported task outcome handlers on
// the event bus. Outcomes for executions this instance does not own are
// dropped, which makes running several API replicas against one bus safe as
// long as each worker report is broadcast to all of them.
func (o *Orchestrator) SubscribeOutcomes(bus eventbus.EventSubscriber) {
	bus.Handle(events.TaskCompletedEvent, func(ctx context.Context, event any) error {
		completed, ok := event.(*events.TaskCompleted)
		if !ok {
			return fmt.Errorf("unexpected event payload %T for %s", event, events.TaskCompletedEvent)
		}

		o.onRemoteCompleted(completed)

		return nil
	})

	bus.Handle(events.TaskFailedEvent, func(ctx context.Context, event any) error {
		failed, ok := event.(*events.TaskFailed)
		if !ok {
			return fmt.Errorf("unexpected event payload %T for %s", event, events.TaskFailedEvent)
		}

		o.onRemoteFailed(failed)

		return nil
	})
}

// dispatchRemote appends one task invocation to the dispatch channel and
// blocks until a worker reports its outcome, the wait budget runs out, or
// the execution is cancelled. Delivery is at-least-once, so a duplicate
// outcome for an already-terminal task is simply ignored by the state
// transition guards.
func (o *Orchestrator) dispatchRemote(ctx context.Context, state *executionState, taskType models.TaskType, req models.AgentRequest, agentCtx models.AgentContext, opts execution.Options) {
	done := make(chan struct{})

	state.mu.Lock()

	if state.remote == nil {
		state.remote = make(map[models.TaskType]chan struct{})
	}

	state.remote[taskType] = done
	state.mu.Unlock()

	dispatch := &events.TaskDispatched{
		BaseEvent: o.baseEvent(state, events.TaskDispatchedEvent),
		TaskType:  taskType,
		Request:   req,
		Context:   agentCtx,
	}

	if err := o.dispatcher.Dispatch(ctx, dispatch); err != nil {
		o.clearRemoteWait(state, taskType)

		o.logger.Error("Failed to dispatch task to queue",
			"execution_id", state.execution.ExecutionID,
			"task_type", taskType,
			"error", err)

		o.onTaskFailed(ctx, state, taskType, execution.Result{
			Err: &faults.CategorizedError{
				ID:       "err-dispatch-" + string(taskType),
				Category: faults.CategorySystem,
				Severity: faults.SeverityHigh,
				Message:  err.Error(),
				Context:  faults.ErrorContext{TaskType: taskType, ExecutionID: state.execution.ExecutionID, Timestamp: time.Now()},
			},
		})

		return
	}

	var expired <-chan time.Time

	if budget := remoteWaitBudget(opts); budget > 0 {
		timer := time.NewTimer(budget)
		defer timer.Stop()

		expired = timer.C
	}

	select {
	case <-done:
	case <-ctx.Done():
		// Cancellation and deadline expiry mark the task themselves.
	case <-expired:
		o.clearRemoteWait(state, taskType)

		o.onTaskFailed(ctx, state, taskType, execution.Result{
			Err: &faults.CategorizedError{
				ID:       "err-worker-wait-" + string(taskType),
				Category: faults.CategoryTimeout,
				Severity: faults.SeverityHigh,
				Message:  "no worker reported an outcome within the wait budget",
				Context:  faults.ErrorContext{TaskType: taskType, ExecutionID: state.execution.ExecutionID, Timestamp: time.Now()},
			},
		})
	}
}

// remoteWaitBudget bounds how long the orchestrator waits for a worker
// outcome: the per-attempt timeout across every attempt the worker may
// make, doubled for queue latency. Zero means wait until cancellation.
func remoteWaitBudget(opts execution.Options) time.Duration {
	if opts.Timeout <= 0 {
		return 0
	}

	attempts := opts.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	return 2 * opts.Timeout * time.Duration(attempts)
}

func (o *Orchestrator) onRemoteCompleted(completed *events.TaskCompleted) {
	state, ok := o.lookupActive(completed.ExecutionID)
	if !ok {
		o.logger.Debug("Dropping task outcome for unknown execution",
			"execution_id", completed.ExecutionID,
			"task_type", completed.TaskType)

		return
	}

	o.onTaskCompleted(state.ctx, state, completed.TaskType, execution.Result{
		Success:    true,
		Response:   completed.Response,
		RetryCount: completed.RetryCount,
		Elapsed:    time.Duration(completed.DurationMs) * time.Millisecond,
	})

	o.clearRemoteWait(state, completed.TaskType)
}

func (o *Orchestrator) onRemoteFailed(failed *events.TaskFailed) {
	state, ok := o.lookupActive(failed.ExecutionID)
	if !ok {
		o.logger.Debug("Dropping task outcome for unknown execution",
			"execution_id", failed.ExecutionID,
			"task_type", failed.TaskType)

		return
	}

	result := execution.Result{
		RetryCount: failed.RetryCount,
		Elapsed:    time.Duration(failed.DurationMs) * time.Millisecond,
	}

	if failed.Error != "" {
		result.Err = &faults.CategorizedError{
			ID:       "err-worker-" + string(failed.TaskType),
			Category: faults.Category(failed.Category),
			Message:  failed.Error,
			Context:  faults.ErrorContext{TaskType: failed.TaskType, ExecutionID: failed.ExecutionID, Timestamp: failed.Timestamp},
		}
	}

	o.onTaskFailed(state.ctx, state, failed.TaskType, result)

	o.clearRemoteWait(state, failed.TaskType)
}

func (o *Orchestrator) lookupActive(executionID string) (*executionState, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	state, ok := o.active[executionID]

	return state, ok
}

// clearRemoteWait releases the group goroutine waiting on the task, if one
// still is. Closing exactly once is guaranteed by deleting under the lock.
func (o *Orchestrator) clearRemoteWait(state *executionState, taskType models.TaskType) {
	state.mu.Lock()
	defer state.mu.Unlock()

	if ch, ok := state.remote[taskType]; ok {
		delete(state.remote, taskType)
		close(ch)
	}
}
