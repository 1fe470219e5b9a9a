package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/evalforge/evalforge/pkg/aggregate"
	"github.com/evalforge/evalforge/pkg/execution"
	"github.com/evalforge/evalforge/pkg/models"
	"github.com/evalforge/evalforge/pkg/otelhelper"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// run drives one execution through its plan groups. Groups run strictly in
// order; within a group every eligible task runs concurrently. A group's
// members are all terminal before the next group is considered, so a task
// can always decide its own fate from the states of earlier groups.
func (o *Orchestrator) run(state *executionState) {
	ctx := state.ctx

	if o.tracer != nil {
		var span trace.Span

		ctx, span = otelhelper.StartSpan(ctx, o.tracer, "workflow.run",
			attribute.String(otelhelper.WorkflowIDKey, state.execution.WorkflowID),
			attribute.String(otelhelper.ExecutionIDKey, state.execution.ExecutionID),
		)
		defer span.End()
	}

	state.mu.Lock()
	state.execution.Status = models.ExecutionRunning
	state.mu.Unlock()

	o.persistExecution(state)

	for groupIndex, group := range state.graph.Groups {
		if ctx.Err() != nil {
			return
		}

		runnable := o.gateGroup(state, group)
		if len(runnable) == 0 {
			continue
		}

		o.logger.Info("Dispatching execution group",
			"execution_id", state.execution.ExecutionID,
			"group", groupIndex,
			"tasks", runnable)

		var wg sync.WaitGroup

		for _, taskType := range runnable {
			wg.Add(1)

			go func(taskType models.TaskType) {
				defer wg.Done()
				o.runTask(ctx, state, taskType)
			}(taskType)
		}

		wg.Wait()
	}

	if ctx.Err() != nil {
		return
	}

	o.finalize(ctx, state)
}

// gateGroup decides, for each pending member of a group, whether it runs or
// is skipped. A task is skipped when any required dependency failed or was
// itself skipped; that is how a permanent failure cascades down the graph.
// Optional dependencies only need to be terminal.
func (o *Orchestrator) gateGroup(state *executionState, group []models.TaskType) []models.TaskType {
	state.mu.Lock()
	defer state.mu.Unlock()

	var runnable []models.TaskType

	for _, taskType := range group {
		status := state.execution.Tasks[taskType]
		if status == nil || status.State != models.TaskPending {
			continue
		}

		node := state.graph.Nodes[taskType]

		blocked := false

		for _, edge := range node.Dependencies {
			depStatus := state.execution.Tasks[edge.On]
			if depStatus == nil {
				continue
			}

			if edge.Optional {
				// Earlier groups are fully terminal by construction, so an
				// optional dependency never actually stalls here.
				continue
			}

			if depStatus.State != models.TaskCompleted {
				blocked = true

				break
			}
		}

		if blocked {
			o.markTask(state, taskType, models.TaskSkipped, nil, "required dependency did not complete")

			o.logger.Warn("Skipping task, required dependency unavailable",
				"execution_id", state.execution.ExecutionID,
				"task_type", taskType)

			continue
		}

		runnable = append(runnable, taskType)
	}

	return runnable
}

// runTask executes one task, in-process through the execution service or
// through the remote dispatch channel, and folds the outcome back into the
// execution state.
func (o *Orchestrator) runTask(ctx context.Context, state *executionState, taskType models.TaskType) {
	started := time.Now()

	state.mu.Lock()

	status := state.execution.Tasks[taskType]
	if status.State.IsTerminal() {
		state.mu.Unlock()

		return
	}

	status.State = models.TaskRunning
	status.StartedAt = &started

	req := models.AgentRequest{
		Subject:      state.subject,
		AnalysisType: taskType,
		Options:      state.options,
		SharedData:   o.sharedDataFor(state, taskType),
	}

	agentCtx := models.AgentContext{
		ExecutionID:   state.execution.ExecutionID,
		CorrelationID: state.execution.Metadata.CorrelationID,
		Timestamp:     started,
	}

	opts := execution.Options{
		MaxRetries: state.def.Retry.MaxRetries,
		Timeout:    state.def.TaskTimeout,
	}

	state.mu.Unlock()

	o.publishTaskDispatched(ctx, state, taskType, req, agentCtx)

	if o.dispatcher != nil {
		o.dispatchRemote(ctx, state, taskType, req, agentCtx, opts)

		return
	}

	result := o.executor.Execute(ctx, taskType, req, agentCtx, opts)

	if result.Success {
		o.onTaskCompleted(ctx, state, taskType, result)

		return
	}

	o.onTaskFailed(ctx, state, taskType, result)
}

// onTaskCompleted records a successful task and merges its declared data
// keys into the execution's shared store for downstream consumers.
func (o *Orchestrator) onTaskCompleted(ctx context.Context, state *executionState, taskType models.TaskType, result execution.Result) {
	state.mu.Lock()

	status := state.execution.Tasks[taskType]
	if status.State.IsTerminal() {
		// A cancellation raced the completion; keep the terminal state.
		state.mu.Unlock()

		return
	}

	o.markTask(state, taskType, models.TaskCompleted, result.Response, "")
	status.RetryCount = result.RetryCount

	if node, ok := state.graph.Nodes[taskType]; ok {
		for _, key := range node.ProducesKeys {
			if value, ok := result.Response.RawData[key]; ok {
				state.execution.SharedData[key] = value
			}
		}
	}

	state.mu.Unlock()

	o.logger.Info("Task completed",
		"execution_id", state.execution.ExecutionID,
		"task_type", taskType,
		"score", result.Response.Score,
		"retry_count", result.RetryCount,
		"elapsed", result.Elapsed)

	o.persistTask(state, taskType)
	o.publishTaskCompleted(ctx, state, taskType, result)
}

// onTaskFailed records a permanent task failure. Dependent tasks are skipped
// lazily when their groups come up for dispatch.
func (o *Orchestrator) onTaskFailed(ctx context.Context, state *executionState, taskType models.TaskType, result execution.Result) {
	errMsg := "task failed"
	if result.Err != nil {
		errMsg = result.Err.Error()
	}

	state.mu.Lock()

	status := state.execution.Tasks[taskType]
	if status.State.IsTerminal() {
		state.mu.Unlock()

		return
	}

	o.markTask(state, taskType, models.TaskFailed, nil, errMsg)
	status.RetryCount = result.RetryCount
	state.mu.Unlock()

	o.logger.Error("Task failed permanently",
		"execution_id", state.execution.ExecutionID,
		"task_type", taskType,
		"retry_count", result.RetryCount,
		"error", errMsg)

	o.persistTask(state, taskType)
	o.publishTaskFailed(ctx, state, taskType, result, errMsg)
}

// finalize closes out an execution whose tasks are all terminal: zero
// completed tasks fail the workflow, anything else completes it on whatever
// results survived, with the aggregator deciding whether they are enough
// for a merged result.
func (o *Orchestrator) finalize(ctx context.Context, state *executionState) {
	state.mu.Lock()

	if state.execution.Status.IsTerminal() {
		state.mu.Unlock()

		return
	}

	var (
		results []aggregate.TaskResult
		failed  []models.TaskType
	)

	for taskType, status := range state.execution.Tasks {
		switch status.State {
		case models.TaskCompleted:
			results = append(results, aggregate.TaskResult{TaskType: taskType, Response: status.Result})
		case models.TaskFailed, models.TaskSkipped:
			failed = append(failed, taskType)
		}
	}

	now := time.Now()
	duration := now.Sub(state.execution.StartedAt)

	if len(results) == 0 {
		state.execution.Status = models.ExecutionFailed
		state.execution.CompletedAt = &now
		state.execution.Progress = 100
		state.mu.Unlock()

		err := fmt.Errorf("workflow %s produced no results: all %d tasks failed or were skipped",
			state.execution.WorkflowID, len(failed))

		o.logger.Error("Workflow execution failed",
			"execution_id", state.execution.ExecutionID,
			"duration", duration,
			"error", err)

		o.publishFailed(ctx, state, err, duration)
		o.retire(state, nil, err)

		return
	}

	strategy := state.strategy
	executionID := state.execution.ExecutionID
	state.mu.Unlock()

	aggregated, err := o.aggregator.Aggregate(executionID, results, failed, strategy)
	if err != nil {
		// Too few valid results for a merged score. The execution still
		// completed with its partial data; only the aggregate is absent.
		o.logger.Warn("Completed without aggregated result",
			"execution_id", executionID,
			"completed_tasks", len(results),
			"error", err)

		aggregated = nil
	}

	state.mu.Lock()

	if state.execution.Status.IsTerminal() {
		// A cancellation or deadline sweep landed while the lock was
		// released for aggregation; that terminal state wins.
		state.mu.Unlock()

		return
	}

	state.execution.Status = models.ExecutionCompleted
	state.execution.CompletedAt = &now
	state.execution.Progress = 100
	state.mu.Unlock()

	if aggregated != nil {
		if saveErr := o.store.Results().Save(context.WithoutCancel(ctx), aggregated); saveErr != nil {
			o.logger.Error("Failed to persist aggregated result",
				"execution_id", executionID, "error", saveErr)
		}
	}

	o.logger.Info("Workflow execution completed",
		"execution_id", executionID,
		"duration", duration,
		"completed_tasks", len(results),
		"failed_tasks", len(failed),
		"has_result", aggregated != nil)

	o.publishCompleted(ctx, state, aggregated, duration)
	o.retire(state, aggregated, nil)
}

// markTask transitions one task to a terminal or running state and refreshes
// the execution's progress percentage. Callers hold state.mu.
func (o *Orchestrator) markTask(state *executionState, taskType models.TaskType, taskState models.TaskState, response *models.AgentResponse, errMsg string) {
	status := state.execution.Tasks[taskType]
	status.State = taskState
	status.Result = response
	status.Error = errMsg

	if taskState.IsTerminal() {
		now := time.Now()
		status.CompletedAt = &now
	}

	total := len(state.execution.Tasks)
	if total > 0 {
		state.execution.Progress = state.execution.TerminalTaskCount() * 100 / total
	}
}

// sharedDataFor snapshots the shared store for a task, narrowed to the keys
// it declared. Tasks without declared keys see the whole store. Callers hold
// state.mu.
func (o *Orchestrator) sharedDataFor(state *executionState, taskType models.TaskType) map[string]any {
	node := state.graph.Nodes[taskType]

	snapshot := make(map[string]any)

	if node == nil || len(node.ConsumesKeys) == 0 {
		for key, value := range state.execution.SharedData {
			snapshot[key] = value
		}

		return snapshot
	}

	for _, key := range node.ConsumesKeys {
		if value, ok := state.execution.SharedData[key]; ok {
			snapshot[key] = value
		}
	}

	return snapshot
}

// retire moves an execution out of the active set into the bounded history,
// records its result, persists the final record, and delivers the outcome to
// watchers. Safe to call once per execution; later calls are no-ops.
func (o *Orchestrator) retire(state *executionState, result *models.AggregatedResult, runErr error) {
	executionID := state.execution.ExecutionID

	o.mu.Lock()

	if _, ok := o.active[executionID]; !ok {
		o.mu.Unlock()

		return
	}

	delete(o.active, executionID)

	o.history = append(o.history, state.execution)

	for len(o.history) > o.config.HistoryLimit {
		gone := o.history[0]
		delete(o.results, gone.ExecutionID)
		o.history = o.history[1:]
	}

	if result != nil {
		o.results[executionID] = result
	}

	o.mu.Unlock()

	state.cancel()

	if err := o.store.Evaluations().Update(context.WithoutCancel(state.ctx), state.execution); err != nil {
		o.logger.Error("Failed to persist final evaluation record",
			"execution_id", executionID, "error", err)
	}

	state.mu.Lock()
	watchers := state.watchers
	state.watchers = nil
	status := state.execution.Status
	state.mu.Unlock()

	outcome := Outcome{
		ExecutionID: executionID,
		Status:      status,
		Result:      result,
		Err:         runErr,
	}

	for _, ch := range watchers {
		ch <- outcome
		close(ch)
	}
}

// persistExecution writes the current execution record, best effort.
func (o *Orchestrator) persistExecution(state *executionState) {
	state.mu.Lock()
	snapshot := snapshotExecution(state.execution)
	state.mu.Unlock()

	if err := o.store.Evaluations().Update(context.WithoutCancel(state.ctx), snapshot); err != nil {
		o.logger.Error("Failed to persist evaluation record",
			"execution_id", snapshot.ExecutionID, "error", err)
	}
}

// persistTask writes one task's terminal status, best effort.
func (o *Orchestrator) persistTask(state *executionState, taskType models.TaskType) {
	state.mu.Lock()
	copied := *state.execution.Tasks[taskType]
	executionID := state.execution.ExecutionID
	state.mu.Unlock()

	if err := o.store.TaskResults().Save(context.WithoutCancel(state.ctx), executionID, taskType, &copied); err != nil {
		o.logger.Error("Failed to persist task result",
			"execution_id", executionID, "task_type", taskType, "error", err)
	}
}
