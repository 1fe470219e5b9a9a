// Package mocks provides testify mocks for the persistence and event bus
// interfaces.
package mocks

import (
	"context"

	"github.com/evalforge/evalforge/pkg/models"
	"github.com/evalforge/evalforge/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockPersistence is a mock implementation of the persistence.Persistence
// interface. Repository accessors return the embedded repository mocks.
type MockPersistence struct {
	mock.Mock

	EvaluationsMock *MockEvaluationRepository
	TaskResultsMock *MockTaskResultRepository
	ResultsMock     *MockResultRepository
}

func NewMockPersistence() *MockPersistence {
	return &MockPersistence{
		EvaluationsMock: &MockEvaluationRepository{},
		TaskResultsMock: &MockTaskResultRepository{},
		ResultsMock:     &MockResultRepository{},
	}
}

func (m *MockPersistence) Evaluations() persistence.EvaluationRepository {
	return m.EvaluationsMock
}

func (m *MockPersistence) TaskResults() persistence.TaskResultRepository {
	return m.TaskResultsMock
}

func (m *MockPersistence) Results() persistence.ResultRepository {
	return m.ResultsMock
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

// MockEvaluationRepository is a mock implementation of
// persistence.EvaluationRepository.
type MockEvaluationRepository struct {
	mock.Mock
}

func (m *MockEvaluationRepository) Create(ctx context.Context, execution *models.WorkflowExecution) error {
	args := m.Called(ctx, execution)

	return args.Error(0)
}

func (m *MockEvaluationRepository) Update(ctx context.Context, execution *models.WorkflowExecution) error {
	args := m.Called(ctx, execution)

	return args.Error(0)
}

func (m *MockEvaluationRepository) ByID(ctx context.Context, executionID string) (*models.WorkflowExecution, error) {
	args := m.Called(ctx, executionID)

	execution, _ := args.Get(0).(*models.WorkflowExecution)

	return execution, args.Error(1)
}

// MockTaskResultRepository is a mock implementation of
// persistence.TaskResultRepository.
type MockTaskResultRepository struct {
	mock.Mock
}

func (m *MockTaskResultRepository) Save(ctx context.Context, executionID string, taskType models.TaskType, status *models.TaskStatus) error {
	args := m.Called(ctx, executionID, taskType, status)

	return args.Error(0)
}

func (m *MockTaskResultRepository) ByExecution(ctx context.Context, executionID string) (map[models.TaskType]*models.TaskStatus, error) {
	args := m.Called(ctx, executionID)

	results, _ := args.Get(0).(map[models.TaskType]*models.TaskStatus)

	return results, args.Error(1)
}

// MockResultRepository is a mock implementation of
// persistence.ResultRepository.
type MockResultRepository struct {
	mock.Mock
}

func (m *MockResultRepository) Save(ctx context.Context, result *models.AggregatedResult) error {
	args := m.Called(ctx, result)

	return args.Error(0)
}

func (m *MockResultRepository) ByID(ctx context.Context, executionID string) (*models.AggregatedResult, error) {
	args := m.Called(ctx, executionID)

	result, _ := args.Get(0).(*models.AggregatedResult)

	return result, args.Error(1)
}
