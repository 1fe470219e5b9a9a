package models

import "time"

// BackoffKind selects the formula used to space retries.
type BackoffKind string

const (
	BackoffExponential BackoffKind = "exponential"
	BackoffLinear      BackoffKind = "linear"
	BackoffFixed       BackoffKind = "fixed"
	BackoffCustom      BackoffKind = "custom"
)

// RetryPolicy bounds the retry loop for a task.
type RetryPolicy struct {
	MaxRetries int           `json:"max_retries" validate:"min=0"`
	Backoff    BackoffKind   `json:"backoff"     validate:"required,oneof=exponential linear fixed custom"`
	BaseDelay  time.Duration `json:"base_delay"  validate:"min=0"`
	MaxDelay   time.Duration `json:"max_delay"   validate:"min=0"`
	Jitter     bool          `json:"jitter"`
}

// DependencyEdge is one inbound dependency of a task. The edge itself carries
// the required/optional flag: required edges gate dispatch on completion and
// propagate skip on permanent failure, optional edges gate only on the
// dependency reaching a terminal state and never propagate skip.
type DependencyEdge struct {
	On       TaskType `json:"on"       validate:"required"`
	Optional bool     `json:"optional"`
}

// TaskSpec declares one task type inside a workflow definition, including the
// data keys it consumes from and produces into the execution's shared store.
type TaskSpec struct {
	Type              TaskType         `json:"type"               validate:"required"`
	DependsOn         []DependencyEdge `json:"depends_on,omitempty"`
	EstimatedDuration time.Duration    `json:"estimated_duration"`
	ConsumesKeys      []string         `json:"consumes_keys,omitempty"`
	ProducesKeys      []string         `json:"produces_keys,omitempty"`
}

// WorkflowDefinition is a named template describing which task types run for
// an evaluation and in what dependency order. Definitions are loaded from
// static configuration at process start and immutable afterwards.
type WorkflowDefinition struct {
	ID          string        `json:"id"          validate:"required,min=3"`
	Name        string        `json:"name"        validate:"required"`
	Description string        `json:"description"`
	Tasks       []TaskSpec    `json:"tasks"       validate:"required,min=1,dive"`
	TaskTimeout time.Duration `json:"task_timeout"`
	Retry       RetryPolicy   `json:"retry"`
}

// TaskTypes returns the declared task types in definition order.
func (d *WorkflowDefinition) TaskTypes() []TaskType {
	types := make([]TaskType, 0, len(d.Tasks))
	for _, task := range d.Tasks {
		types = append(types, task.Type)
	}

	return types
}

// TaskSpecFor returns the spec for the given task type, if declared.
func (d *WorkflowDefinition) TaskSpecFor(taskType TaskType) (TaskSpec, bool) {
	for _, task := range d.Tasks {
		if task.Type == taskType {
			return task, true
		}
	}

	return TaskSpec{}, false
}

// DependencyTable flattens the per-task edges into a lookup map.
func (d *WorkflowDefinition) DependencyTable() map[TaskType][]DependencyEdge {
	table := make(map[TaskType][]DependencyEdge, len(d.Tasks))
	for _, task := range d.Tasks {
		table[task.Type] = task.DependsOn
	}

	return table
}
