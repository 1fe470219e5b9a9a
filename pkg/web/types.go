// Package web provides HTTP request and response types for the evaluation API.
package web

import (
	"time"

	"github.com/evalforge/evalforge/pkg/models"
)

// SubmitEvaluationRequest represents the request body for starting a new
// evaluation workflow.
type SubmitEvaluationRequest struct {
	WorkflowID    string `json:"workflow_id"              validate:"required,min=3"`
	Subject       string `json:"subject"                  validate:"required"`
	Priority      string `json:"priority,omitempty"       validate:"omitempty,oneof=low normal high"`
	TimeoutMs     int64  `json:"timeout_ms,omitempty"     validate:"min=0"`
	CorrelationID string `json:"correlation_id,omitempty"`
	Requester     string `json:"requester,omitempty"`
	Strategy      string `json:"strategy,omitempty"`
}

// SubmitEvaluationResponse acknowledges an accepted evaluation.
type SubmitEvaluationResponse struct {
	ExecutionID string `json:"execution_id"`
	WorkflowID  string `json:"workflow_id"`
	Status      string `json:"status"`
}

// TaskStatusResponse is the externally visible state of one task.
type TaskStatusResponse struct {
	State       string     `json:"state"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Score       *float64   `json:"score,omitempty"`
	Error       string     `json:"error,omitempty"`
	RetryCount  int        `json:"retry_count"`
}

// ExecutionStatusResponse is the externally visible state of one execution.
type ExecutionStatusResponse struct {
	ExecutionID string                        `json:"execution_id"`
	WorkflowID  string                        `json:"workflow_id"`
	Status      string                        `json:"status"`
	Progress    int                           `json:"progress"`
	StartedAt   time.Time                     `json:"started_at"`
	CompletedAt *time.Time                    `json:"completed_at,omitempty"`
	Tasks       map[string]TaskStatusResponse `json:"tasks"`
}

// TransformExecutionResponse maps an execution snapshot onto the API shape,
// dropping internal payloads like shared data and raw agent responses.
func TransformExecutionResponse(execution *models.WorkflowExecution) ExecutionStatusResponse {
	response := ExecutionStatusResponse{
		ExecutionID: execution.ExecutionID,
		WorkflowID:  execution.WorkflowID,
		Status:      string(execution.Status),
		Progress:    execution.Progress,
		StartedAt:   execution.StartedAt,
		CompletedAt: execution.CompletedAt,
		Tasks:       make(map[string]TaskStatusResponse, len(execution.Tasks)),
	}

	for taskType, status := range execution.Tasks {
		task := TaskStatusResponse{
			State:       string(status.State),
			StartedAt:   status.StartedAt,
			CompletedAt: status.CompletedAt,
			Error:       status.Error,
			RetryCount:  status.RetryCount,
		}

		if status.Result != nil {
			score := status.Result.Score
			task.Score = &score
		}

		response.Tasks[string(taskType)] = task
	}

	return response
}
