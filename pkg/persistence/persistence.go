// Package persistence provides the data storage abstraction for evaluation
// records and per-task results.
package persistence

import (
	"context"

	"github.com/evalforge/evalforge/pkg/models"
)

// EvaluationRepository stores workflow execution records keyed by execution
// id. The orchestrator writes at state transitions; readers only need
// create/find/update semantics.
type EvaluationRepository interface {
	Create(ctx context.Context, execution *models.WorkflowExecution) error
	Update(ctx context.Context, execution *models.WorkflowExecution) error
	ByID(ctx context.Context, executionID string) (*models.WorkflowExecution, error)
}

// TaskResultRepository stores the per-task status records of an execution.
type TaskResultRepository interface {
	Save(ctx context.Context, executionID string, taskType models.TaskType, status *models.TaskStatus) error
	ByExecution(ctx context.Context, executionID string) (map[models.TaskType]*models.TaskStatus, error)
}

// ResultRepository stores the final aggregated result of an execution.
type ResultRepository interface {
	Save(ctx context.Context, result *models.AggregatedResult) error
	ByID(ctx context.Context, executionID string) (*models.AggregatedResult, error)
}

type Persistence interface {
	Evaluations() EvaluationRepository
	TaskResults() TaskResultRepository
	Results() ResultRepository
	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
