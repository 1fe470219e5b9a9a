// Package events defines event types for evaluation workflow lifecycle
// notifications and task dispatch.
package events

import (
	"time"

	"github.com/evalforge/evalforge/pkg/models"
)

type EventType string

// Topics.
const Topic = "evalforge.events"                 // Workflow lifecycle events
const TaskDispatchTopic = "evalforge.task.queue" // Task invocations for workers

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Workflow execution lifecycle events.
	EvaluationStartedEvent   EventType = "evaluation.started"
	EvaluationCompletedEvent EventType = "evaluation.completed"
	EvaluationFailedEvent    EventType = "evaluation.failed"
	EvaluationCancelledEvent EventType = "evaluation.cancelled"

	// Task-level events.
	TaskDispatchedEvent EventType = "task.dispatched"
	TaskCompletedEvent  EventType = "task.completed"
	TaskFailedEvent     EventType = "task.failed"
)

type BaseEvent struct {
	ID          string         `json:"id"`
	Type        EventType      `json:"type"`
	Timestamp   time.Time      `json:"timestamp"`
	WorkflowID  string         `json:"workflow_id"`
	ExecutionID string         `json:"execution_id"`
	WorkerID    string         `json:"worker_id,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

type EvaluationStarted struct {
	BaseEvent

	Subject    string            `json:"subject"`
	TaskTypes  []models.TaskType `json:"task_types"`
	GroupCount int               `json:"group_count"`
}

func (e EvaluationStarted) GetType() EventType {
	return EvaluationStartedEvent
}

type EvaluationCompleted struct {
	BaseEvent

	Result   *models.AggregatedResult `json:"result,omitempty"`
	Duration time.Duration            `json:"duration"`
}

func (e EvaluationCompleted) GetType() EventType {
	return EvaluationCompletedEvent
}

type EvaluationFailed struct {
	BaseEvent

	Error    string        `json:"error"`
	Duration time.Duration `json:"duration"`
}

func (e EvaluationFailed) GetType() EventType {
	return EvaluationFailedEvent
}

type EvaluationCancelled struct {
	BaseEvent

	Reason string `json:"reason,omitempty"`
}

func (e EvaluationCancelled) GetType() EventType {
	return EvaluationCancelledEvent
}

// TaskDispatched asks a worker to run one analysis task.
type TaskDispatched struct {
	BaseEvent

	TaskType models.TaskType     `json:"task_type"`
	Request  models.AgentRequest `json:"request"`
	Context  models.AgentContext `json:"context"`
}

func (e TaskDispatched) GetType() EventType {
	return TaskDispatchedEvent
}

// TaskCompleted reports a successful task run back to the orchestrator.
type TaskCompleted struct {
	BaseEvent

	TaskType   models.TaskType       `json:"task_type"`
	Response   *models.AgentResponse `json:"response"`
	RetryCount int                   `json:"retry_count"`
	DurationMs int64                 `json:"duration_ms"`
}

func (e TaskCompleted) GetType() EventType {
	return TaskCompletedEvent
}

// TaskFailed reports a permanently failed task run back to the orchestrator.
type TaskFailed struct {
	BaseEvent

	TaskType   models.TaskType `json:"task_type"`
	Error      string          `json:"error"`
	Category   string          `json:"category,omitempty"`
	RetryCount int             `json:"retry_count"`
	DurationMs int64           `json:"duration_ms"`
}

func (e TaskFailed) GetType() EventType {
	return TaskFailedEvent
}
