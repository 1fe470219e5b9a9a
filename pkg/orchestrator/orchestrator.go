// Package orchestrator drives multi-agent evaluation workflows: it builds
// the execution plan, dispatches dependency-ordered task groups, tracks
// per-task state, degrades gracefully on failures, and hands finished
// executions to the result aggregator.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/evalforge/evalforge/pkg/aggregate"
	"github.com/evalforge/evalforge/pkg/definition"
	"github.com/evalforge/evalforge/pkg/eventbus"
	"github.com/evalforge/evalforge/pkg/execution"
	"github.com/evalforge/evalforge/pkg/models"
	"github.com/evalforge/evalforge/pkg/persistence"
	"github.com/evalforge/evalforge/pkg/plan"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// Config tunes one orchestrator instance.
type Config struct {
	MaxActiveExecutions int
	HistoryLimit        int
	DefaultStrategy     string
}

func DefaultConfig() Config {
	return Config{
		MaxActiveExecutions: 100,
		HistoryLimit:        100,
		DefaultStrategy:     aggregate.StrategyWeightedAverage,
	}
}

// StartOptions carries caller-supplied submission options.
type StartOptions struct {
	Priority      string
	Timeout       time.Duration
	CorrelationID string
	Requester     string
	Strategy      string
}

// Outcome is delivered to watchers when an execution reaches a terminal
// state. Result is nil when the workflow failed or was cancelled, and may be
// nil on completion when too few results survived validation.
type Outcome struct {
	ExecutionID string
	Status      models.ExecutionStatus
	Result      *models.AggregatedResult
	Err         error
}

// executionState is the orchestrator-private working state of one active
// execution. It is owned exclusively by that execution; the state mutex
// serializes task status updates coming from the group dispatch goroutines.
type executionState struct {
	mu        sync.Mutex
	execution *models.WorkflowExecution
	def       *models.WorkflowDefinition
	graph     *models.DependencyGraph
	subject   string
	options   map[string]any
	strategy  string
	ctx       context.Context
	cancel    context.CancelFunc
	watchers  []chan Outcome
	remote    map[models.TaskType]chan struct{}
}

// Orchestrator owns the active execution set. Instances are explicitly
// constructed and injected; there is no process-wide singleton.
type Orchestrator struct {
	definitions *definition.Store
	planner     *plan.Builder
	executor    *execution.Service
	aggregator  *aggregate.Aggregator
	store       persistence.Persistence
	bus         eventbus.EventPublisher
	dispatcher  TaskDispatcher
	logger      *slog.Logger
	tracer      trace.Tracer
	config      Config

	mu      sync.Mutex
	active  map[string]*executionState
	history []*models.WorkflowExecution
	results map[string]*models.AggregatedResult
}

func New(
	definitions *definition.Store,
	planner *plan.Builder,
	executor *execution.Service,
	aggregator *aggregate.Aggregator,
	store persistence.Persistence,
	bus eventbus.EventPublisher,
	logger *slog.Logger,
	tracer trace.Tracer,
	config Config,
) *Orchestrator {
	if config.MaxActiveExecutions <= 0 {
		config.MaxActiveExecutions = DefaultConfig().MaxActiveExecutions
	}

	if config.HistoryLimit <= 0 {
		config.HistoryLimit = DefaultConfig().HistoryLimit
	}

	if config.DefaultStrategy == "" {
		config.DefaultStrategy = aggregate.StrategyWeightedAverage
	}

	return &Orchestrator{
		definitions: definitions,
		planner:     planner,
		executor:    executor,
		aggregator:  aggregator,
		store:       store,
		bus:         bus,
		logger:      logger.With("module", "orchestrator"),
		tracer:      tracer,
		config:      config,
		active:      make(map[string]*executionState),
		results:     make(map[string]*models.AggregatedResult),
	}
}

// StartWorkflow admits a new execution for the named workflow and begins
// dispatching its first execution group. It rejects with
// CapacityExceededError when the active ceiling is reached.
func (o *Orchestrator) StartWorkflow(ctx context.Context, workflowID, subject string, options StartOptions) (string, error) {
	def, err := o.definitions.ByID(workflowID)
	if err != nil {
		return "", err
	}

	graph, err := o.planner.Build(def.Tasks)
	if err != nil {
		return "", fmt.Errorf("failed to build execution plan for %s: %w", workflowID, err)
	}

	executionID := "exec-" + uuid.New().String()[:8]

	now := time.Now()

	exec := &models.WorkflowExecution{
		WorkflowID:  workflowID,
		ExecutionID: executionID,
		Status:      models.ExecutionPending,
		StartedAt:   now,
		Tasks:       make(map[models.TaskType]*models.TaskStatus, len(def.Tasks)),
		SharedData:  make(map[string]any),
		Metadata: models.ExecutionMetadata{
			Priority:      options.Priority,
			CorrelationID: options.CorrelationID,
			Requester:     options.Requester,
		},
	}

	for _, task := range def.Tasks {
		exec.Tasks[task.Type] = &models.TaskStatus{State: models.TaskPending}
	}

	if options.Timeout > 0 {
		deadline := now.Add(options.Timeout)
		exec.Deadline = &deadline
	}

	strategy := options.Strategy
	if strategy == "" {
		strategy = o.config.DefaultStrategy
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	state := &executionState{
		execution: exec,
		def:       def,
		graph:     graph,
		subject:   subject,
		strategy:  strategy,
		ctx:       runCtx,
		cancel:    cancel,
	}

	o.mu.Lock()

	if len(o.active) >= o.config.MaxActiveExecutions {
		activeCount := len(o.active)
		o.mu.Unlock()
		cancel()

		return "", &CapacityExceededError{Active: activeCount, Ceiling: o.config.MaxActiveExecutions}
	}

	o.active[executionID] = state
	o.mu.Unlock()

	if err := o.store.Evaluations().Create(ctx, exec); err != nil {
		o.logger.Error("Failed to persist new evaluation record",
			"execution_id", executionID, "error", err)
	}

	o.publishStarted(ctx, state)

	o.logger.Info("Starting workflow execution",
		"workflow_id", workflowID,
		"execution_id", executionID,
		"tasks", len(def.Tasks),
		"groups", len(graph.Groups),
		"estimated_total", graph.EstimatedTotal,
		"critical_path", graph.CriticalPath)

	go o.run(state)

	return executionID, nil
}

// Watch returns a channel that receives the terminal Outcome of the
// execution and is closed afterwards. Watching a finished execution yields
// its outcome immediately.
func (o *Orchestrator) Watch(executionID string) (<-chan Outcome, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if state, ok := o.active[executionID]; ok {
		ch := make(chan Outcome, 1)

		state.mu.Lock()
		state.watchers = append(state.watchers, ch)
		state.mu.Unlock()

		return ch, nil
	}

	for _, exec := range o.history {
		if exec.ExecutionID == executionID {
			ch := make(chan Outcome, 1)
			ch <- Outcome{
				ExecutionID: executionID,
				Status:      exec.Status,
				Result:      o.results[executionID],
			}
			close(ch)

			return ch, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrExecutionNotFound, executionID)
}

// GetStatus returns a point-in-time copy of the execution.
func (o *Orchestrator) GetStatus(executionID string) (*models.WorkflowExecution, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if state, ok := o.active[executionID]; ok {
		state.mu.Lock()
		defer state.mu.Unlock()

		return snapshotExecution(state.execution), nil
	}

	for _, exec := range o.history {
		if exec.ExecutionID == executionID {
			return snapshotExecution(exec), nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrExecutionNotFound, executionID)
}

// GetResult returns the aggregated result of a finished execution.
func (o *Orchestrator) GetResult(executionID string) (*models.AggregatedResult, error) {
	o.mu.Lock()
	result, ok := o.results[executionID]
	o.mu.Unlock()

	if ok {
		return result, nil
	}

	if _, err := o.GetStatus(executionID); err != nil {
		return nil, err
	}

	return nil, fmt.Errorf("%w: %s", ErrResultNotReady, executionID)
}

// CancelWorkflow cancels an active execution: the cancellation signal is
// closed for in-flight tasks, every non-terminal task is marked skipped
// immediately, and stragglers reporting late are ignored.
func (o *Orchestrator) CancelWorkflow(executionID string) bool {
	o.mu.Lock()
	state, ok := o.active[executionID]
	o.mu.Unlock()

	if !ok {
		return false
	}

	state.cancel()

	state.mu.Lock()

	if state.execution.Status.IsTerminal() {
		state.mu.Unlock()

		return false
	}

	for taskType, status := range state.execution.Tasks {
		if !status.State.IsTerminal() {
			o.markTask(state, taskType, models.TaskSkipped, nil, "workflow cancelled")
		}
	}

	state.execution.Status = models.ExecutionCancelled
	now := time.Now()
	state.execution.CompletedAt = &now
	state.execution.Progress = 100
	state.mu.Unlock()

	o.logger.Info("Cancelled workflow execution", "execution_id", executionID)

	o.publishCancelled(state)
	o.retire(state, nil, nil)

	return true
}

// ActiveCount reports how many executions are currently admitted.
func (o *Orchestrator) ActiveCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()

	return len(o.active)
}

func snapshotExecution(exec *models.WorkflowExecution) *models.WorkflowExecution {
	snapshot := *exec
	snapshot.Tasks = make(map[models.TaskType]*models.TaskStatus, len(exec.Tasks))

	for taskType, status := range exec.Tasks {
		copied := *status
		snapshot.Tasks[taskType] = &copied
	}

	snapshot.SharedData = make(map[string]any, len(exec.SharedData))
	for key, value := range exec.SharedData {
		snapshot.SharedData[key] = value
	}

	return &snapshot
}
