package models

import "time"

// ExecutionStatus is the lifecycle state of a workflow execution.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionCancelled ExecutionStatus = "cancelled"
)

// IsTerminal reports whether the status is final.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionCompleted || s == ExecutionFailed || s == ExecutionCancelled
}

// TaskState is the lifecycle state of one task within an execution.
// A task moves strictly pending -> running -> {completed|failed|skipped}.
type TaskState string

const (
	TaskPending   TaskState = "pending"
	TaskRunning   TaskState = "running"
	TaskCompleted TaskState = "completed"
	TaskFailed    TaskState = "failed"
	TaskSkipped   TaskState = "skipped"
)

// IsTerminal reports whether the task state is final.
func (s TaskState) IsTerminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskSkipped
}

// TaskStatus tracks one task inside a WorkflowExecution. It is owned by the
// containing execution and mutated only by the orchestrator.
type TaskStatus struct {
	State       TaskState      `json:"state"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Result      *AgentResponse `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
	RetryCount  int            `json:"retry_count"`
}

// ExecutionMetadata carries caller-supplied context for an execution.
type ExecutionMetadata struct {
	Priority      string `json:"priority,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
	Requester     string `json:"requester,omitempty"`
}

// WorkflowExecution is one running (or historical) evaluation. The task
// status map has exactly one entry per task type declared by the definition.
type WorkflowExecution struct {
	WorkflowID  string                   `json:"workflow_id"`
	ExecutionID string                   `json:"execution_id"`
	Status      ExecutionStatus          `json:"status"`
	Progress    int                      `json:"progress"`
	StartedAt   time.Time                `json:"started_at"`
	CompletedAt *time.Time               `json:"completed_at,omitempty"`
	Tasks       map[TaskType]*TaskStatus `json:"tasks"`
	SharedData  map[string]any           `json:"shared_data,omitempty"`
	Metadata    ExecutionMetadata        `json:"metadata"`
	Deadline    *time.Time               `json:"deadline,omitempty"`
}

// TerminalTaskCount returns how many tasks reached a terminal state.
func (e *WorkflowExecution) TerminalTaskCount() int {
	count := 0

	for _, status := range e.Tasks {
		if status.State.IsTerminal() {
			count++
		}
	}

	return count
}

// CompletedTaskCount returns how many tasks completed successfully.
func (e *WorkflowExecution) CompletedTaskCount() int {
	count := 0

	for _, status := range e.Tasks {
		if status.State == TaskCompleted {
			count++
		}
	}

	return count
}

// AllTasksTerminal reports whether every task reached a terminal state.
func (e *WorkflowExecution) AllTasksTerminal() bool {
	return e.TerminalTaskCount() == len(e.Tasks)
}
