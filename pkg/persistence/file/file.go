// Package file provides file-based persistence for evaluation records,
// suitable for development and tests.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/evalforge/evalforge/pkg/models"
	"github.com/evalforge/evalforge/pkg/persistence"
)

// Persistence implements persistence.Persistence on the file system.
type Persistence struct {
	root        string
	evaluations *EvaluationRepository
	taskResults *TaskResultRepository
	results     *ResultRepository
}

func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:        cleanRoot,
		evaluations: &EvaluationRepository{root: cleanRoot},
		taskResults: &TaskResultRepository{root: cleanRoot},
		results:     &ResultRepository{root: cleanRoot},
	}
}

func (p *Persistence) Evaluations() persistence.EvaluationRepository { return p.evaluations }
func (p *Persistence) TaskResults() persistence.TaskResultRepository { return p.taskResults }
func (p *Persistence) Results() persistence.ResultRepository         { return p.results }

// Close is a no-op for file persistence.
func (p *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck verifies the root directory exists.
func (p *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(p.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// validateID guards file paths against traversal through caller-supplied ids.
func validateID(id string) error {
	if id == "" {
		return errors.New("id cannot be empty")
	}

	if strings.Contains(id, "..") || strings.Contains(id, "/") || strings.Contains(id, "\\") {
		return errors.New("id contains invalid characters")
	}

	return nil
}

func writeJSON(path string, value any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}

	return nil
}

func readJSON(path string, out any) (bool, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path components are validated
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}

		return false, fmt.Errorf("failed to read record: %w", err)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("failed to unmarshal record: %w", err)
	}

	return true, nil
}

// EvaluationRepository stores one JSON file per execution under evaluations/.
type EvaluationRepository struct {
	root string
}

func (r *EvaluationRepository) path(executionID string) string {
	return filepath.Join(r.root, "evaluations", executionID+".json")
}

func (r *EvaluationRepository) Create(ctx context.Context, execution *models.WorkflowExecution) error {
	if err := validateID(execution.ExecutionID); err != nil {
		return persistence.NewEvaluationError("Create", execution.ExecutionID, err)
	}

	if _, err := os.Stat(r.path(execution.ExecutionID)); err == nil {
		return persistence.NewEvaluationError("Create", execution.ExecutionID, persistence.ErrEvaluationAlreadyExists)
	}

	return r.write("Create", execution)
}

func (r *EvaluationRepository) Update(ctx context.Context, execution *models.WorkflowExecution) error {
	if err := validateID(execution.ExecutionID); err != nil {
		return persistence.NewEvaluationError("Update", execution.ExecutionID, err)
	}

	return r.write("Update", execution)
}

func (r *EvaluationRepository) write(op string, execution *models.WorkflowExecution) error {
	if err := writeJSON(r.path(execution.ExecutionID), execution); err != nil {
		return persistence.NewEvaluationError(op, execution.ExecutionID, err)
	}

	return nil
}

func (r *EvaluationRepository) ByID(ctx context.Context, executionID string) (*models.WorkflowExecution, error) {
	if err := validateID(executionID); err != nil {
		return nil, persistence.NewEvaluationError("ByID", executionID, err)
	}

	var execution models.WorkflowExecution

	found, err := readJSON(r.path(executionID), &execution)
	if err != nil {
		return nil, persistence.NewEvaluationError("ByID", executionID, err)
	}

	if !found {
		return nil, persistence.NewEvaluationError("ByID", executionID, persistence.ErrEvaluationNotFound)
	}

	return &execution, nil
}

// TaskResultRepository stores one JSON file per task under
// task_results/<execution>/<task_type>.json.
type TaskResultRepository struct {
	root string
}

func (r *TaskResultRepository) dir(executionID string) string {
	return filepath.Join(r.root, "task_results", executionID)
}

func (r *TaskResultRepository) Save(ctx context.Context, executionID string, taskType models.TaskType, status *models.TaskStatus) error {
	if err := validateID(executionID); err != nil {
		return persistence.NewEvaluationError("SaveTaskResult", executionID, err)
	}

	path := filepath.Join(r.dir(executionID), string(taskType)+".json")
	if err := writeJSON(path, status); err != nil {
		return persistence.NewEvaluationError("SaveTaskResult", executionID, err)
	}

	return nil
}

func (r *TaskResultRepository) ByExecution(ctx context.Context, executionID string) (map[models.TaskType]*models.TaskStatus, error) {
	if err := validateID(executionID); err != nil {
		return nil, persistence.NewEvaluationError("TaskResults", executionID, err)
	}

	entries, err := os.ReadDir(r.dir(executionID))
	if err != nil {
		if os.IsNotExist(err) {
			return map[models.TaskType]*models.TaskStatus{}, nil
		}

		return nil, persistence.NewEvaluationError("TaskResults", executionID, err)
	}

	results := make(map[models.TaskType]*models.TaskStatus, len(entries))

	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".json") {
			continue
		}

		var status models.TaskStatus

		found, err := readJSON(filepath.Join(r.dir(executionID), name), &status)
		if err != nil || !found {
			continue
		}

		results[models.TaskType(strings.TrimSuffix(name, ".json"))] = &status
	}

	return results, nil
}

// ResultRepository stores one JSON file per aggregated result under results/.
type ResultRepository struct {
	root string
}

func (r *ResultRepository) path(executionID string) string {
	return filepath.Join(r.root, "results", executionID+".json")
}

func (r *ResultRepository) Save(ctx context.Context, result *models.AggregatedResult) error {
	if err := validateID(result.ExecutionID); err != nil {
		return persistence.NewEvaluationError("SaveResult", result.ExecutionID, err)
	}

	if err := writeJSON(r.path(result.ExecutionID), result); err != nil {
		return persistence.NewEvaluationError("SaveResult", result.ExecutionID, err)
	}

	return nil
}

func (r *ResultRepository) ByID(ctx context.Context, executionID string) (*models.AggregatedResult, error) {
	if err := validateID(executionID); err != nil {
		return nil, persistence.NewEvaluationError("ResultByID", executionID, err)
	}

	var result models.AggregatedResult

	found, err := readJSON(r.path(executionID), &result)
	if err != nil {
		return nil, persistence.NewEvaluationError("ResultByID", executionID, err)
	}

	if !found {
		return nil, persistence.NewEvaluationError("ResultByID", executionID, persistence.ErrResultNotFound)
	}

	return &result, nil
}
