package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/evalforge/evalforge/pkg/models"
	"github.com/evalforge/evalforge/pkg/persistence"
	"github.com/lib/pq"
)

// EvaluationRepository stores workflow executions as JSONB rows with a few
// indexed columns for filtering.
type EvaluationRepository struct {
	db *sql.DB
}

func (r *EvaluationRepository) Create(ctx context.Context, execution *models.WorkflowExecution) error {
	payload, err := json.Marshal(execution)
	if err != nil {
		return persistence.NewEvaluationError("Create", execution.ExecutionID, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO evaluations (execution_id, workflow_id, status, progress, payload, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		execution.ExecutionID, execution.WorkflowID, execution.Status,
		execution.Progress, payload, execution.StartedAt, execution.CompletedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return persistence.NewEvaluationError("Create", execution.ExecutionID, persistence.ErrEvaluationAlreadyExists)
		}

		return persistence.NewEvaluationError("Create", execution.ExecutionID, err)
	}

	return nil
}

func (r *EvaluationRepository) Update(ctx context.Context, execution *models.WorkflowExecution) error {
	payload, err := json.Marshal(execution)
	if err != nil {
		return persistence.NewEvaluationError("Update", execution.ExecutionID, err)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE evaluations
		SET status = $2, progress = $3, payload = $4, completed_at = $5, updated_at = NOW()
		WHERE execution_id = $1`,
		execution.ExecutionID, execution.Status, execution.Progress, payload, execution.CompletedAt)
	if err != nil {
		return persistence.NewEvaluationError("Update", execution.ExecutionID, err)
	}

	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return persistence.NewEvaluationError("Update", execution.ExecutionID, persistence.ErrEvaluationNotFound)
	}

	return nil
}

func (r *EvaluationRepository) ByID(ctx context.Context, executionID string) (*models.WorkflowExecution, error) {
	var payload []byte

	err := r.db.QueryRowContext(ctx,
		"SELECT payload FROM evaluations WHERE execution_id = $1", executionID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewEvaluationError("ByID", executionID, persistence.ErrEvaluationNotFound)
		}

		return nil, persistence.NewEvaluationError("ByID", executionID, err)
	}

	var execution models.WorkflowExecution
	if err := json.Unmarshal(payload, &execution); err != nil {
		return nil, persistence.NewEvaluationError("ByID", executionID, err)
	}

	return &execution, nil
}

// TaskResultRepository upserts one row per (execution, task type).
type TaskResultRepository struct {
	db *sql.DB
}

func (r *TaskResultRepository) Save(ctx context.Context, executionID string, taskType models.TaskType, status *models.TaskStatus) error {
	payload, err := json.Marshal(status)
	if err != nil {
		return persistence.NewEvaluationError("SaveTaskResult", executionID, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO task_results (execution_id, task_type, payload)
		VALUES ($1, $2, $3)
		ON CONFLICT (execution_id, task_type)
		DO UPDATE SET payload = EXCLUDED.payload, updated_at = NOW()`,
		executionID, taskType, payload)
	if err != nil {
		return persistence.NewEvaluationError("SaveTaskResult", executionID, err)
	}

	return nil
}

func (r *TaskResultRepository) ByExecution(ctx context.Context, executionID string) (map[models.TaskType]*models.TaskStatus, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT task_type, payload FROM task_results WHERE execution_id = $1", executionID)
	if err != nil {
		return nil, persistence.NewEvaluationError("TaskResults", executionID, err)
	}
	defer rows.Close()

	results := make(map[models.TaskType]*models.TaskStatus)

	for rows.Next() {
		var (
			taskType string
			payload  []byte
		)

		if err := rows.Scan(&taskType, &payload); err != nil {
			return nil, persistence.NewEvaluationError("TaskResults", executionID, err)
		}

		var status models.TaskStatus
		if err := json.Unmarshal(payload, &status); err != nil {
			return nil, persistence.NewEvaluationError("TaskResults", executionID, err)
		}

		results[models.TaskType(taskType)] = &status
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewEvaluationError("TaskResults", executionID, err)
	}

	return results, nil
}

// ResultRepository stores aggregated results, one row per execution.
type ResultRepository struct {
	db *sql.DB
}

func (r *ResultRepository) Save(ctx context.Context, result *models.AggregatedResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return persistence.NewEvaluationError("SaveResult", result.ExecutionID, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO aggregated_results (execution_id, payload, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (execution_id) DO UPDATE SET payload = EXCLUDED.payload`,
		result.ExecutionID, payload, result.CreatedAt)
	if err != nil {
		return persistence.NewEvaluationError("SaveResult", result.ExecutionID, err)
	}

	return nil
}

func (r *ResultRepository) ByID(ctx context.Context, executionID string) (*models.AggregatedResult, error) {
	var payload []byte

	err := r.db.QueryRowContext(ctx,
		"SELECT payload FROM aggregated_results WHERE execution_id = $1", executionID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewEvaluationError("ResultByID", executionID, persistence.ErrResultNotFound)
		}

		return nil, persistence.NewEvaluationError("ResultByID", executionID, err)
	}

	var result models.AggregatedResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, persistence.NewEvaluationError("ResultByID", executionID, err)
	}

	return &result, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// unique_violation SQLSTATE.
		return pqErr.Code == "23505"
	}

	return false
}
