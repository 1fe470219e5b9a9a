package file

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evalforge/evalforge/pkg/models"
	"github.com/evalforge/evalforge/pkg/persistence"
)

func newExecution(executionID string) *models.WorkflowExecution {
	return &models.WorkflowExecution{
		WorkflowID:  "startup-evaluation",
		ExecutionID: executionID,
		Status:      models.ExecutionPending,
		StartedAt:   time.Now().UTC().Truncate(time.Second),
		Tasks: map[models.TaskType]*models.TaskStatus{
			models.TaskMarketResearch: {State: models.TaskPending},
		},
		Metadata: models.ExecutionMetadata{Priority: "normal"},
	}
}

func TestEvaluationCreateAndByID(t *testing.T) {
	p := NewPersistence(t.TempDir())
	ctx := context.Background()

	execution := newExecution("exec-abc123")
	require.NoError(t, p.Evaluations().Create(ctx, execution))

	loaded, err := p.Evaluations().ByID(ctx, "exec-abc123")
	require.NoError(t, err)

	assert.Equal(t, execution.WorkflowID, loaded.WorkflowID)
	assert.Equal(t, models.ExecutionPending, loaded.Status)
	assert.Equal(t, "normal", loaded.Metadata.Priority)
	require.Contains(t, loaded.Tasks, models.TaskMarketResearch)
	assert.Equal(t, models.TaskPending, loaded.Tasks[models.TaskMarketResearch].State)
}

func TestEvaluationCreateConflicts(t *testing.T) {
	p := NewPersistence(t.TempDir())
	ctx := context.Background()

	require.NoError(t, p.Evaluations().Create(ctx, newExecution("exec-dup")))

	err := p.Evaluations().Create(ctx, newExecution("exec-dup"))
	require.Error(t, err)
	assert.ErrorIs(t, err, persistence.ErrEvaluationAlreadyExists)
}

func TestEvaluationUpdateOverwrites(t *testing.T) {
	p := NewPersistence(t.TempDir())
	ctx := context.Background()

	execution := newExecution("exec-upd")
	require.NoError(t, p.Evaluations().Create(ctx, execution))

	execution.Status = models.ExecutionCompleted
	execution.Progress = 100
	require.NoError(t, p.Evaluations().Update(ctx, execution))

	loaded, err := p.Evaluations().ByID(ctx, "exec-upd")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionCompleted, loaded.Status)
	assert.Equal(t, 100, loaded.Progress)
}

func TestEvaluationByIDNotFound(t *testing.T) {
	p := NewPersistence(t.TempDir())

	_, err := p.Evaluations().ByID(context.Background(), "exec-missing")
	require.Error(t, err)
	assert.True(t, persistence.IsEvaluationNotFound(err))
}

func TestEvaluationRejectsTraversalIDs(t *testing.T) {
	p := NewPersistence(t.TempDir())
	ctx := context.Background()

	for _, id := range []string{"", "../escape", "a/b", `a\b`} {
		execution := newExecution("exec-x")
		execution.ExecutionID = id

		require.Error(t, p.Evaluations().Create(ctx, execution), "id %q", id)

		_, err := p.Evaluations().ByID(ctx, id)
		require.Error(t, err, "id %q", id)
	}
}

func TestTaskResultRoundTrip(t *testing.T) {
	p := NewPersistence(t.TempDir())
	ctx := context.Background()

	completedAt := time.Now().UTC().Truncate(time.Second)
	status := &models.TaskStatus{
		State:       models.TaskCompleted,
		CompletedAt: &completedAt,
		Result: &models.AgentResponse{
			Score:      81,
			Insights:   []string{"strong revenue growth"},
			Confidence: models.ConfidenceHigh,
		},
		RetryCount: 2,
	}

	require.NoError(t, p.TaskResults().Save(ctx, "exec-tr", models.TaskFinancialAnalysis, status))
	require.NoError(t, p.TaskResults().Save(ctx, "exec-tr", models.TaskMarketResearch,
		&models.TaskStatus{State: models.TaskFailed, Error: "connection refused"}))

	results, err := p.TaskResults().ByExecution(ctx, "exec-tr")
	require.NoError(t, err)
	require.Len(t, results, 2)

	financial := results[models.TaskFinancialAnalysis]
	require.NotNil(t, financial)
	assert.Equal(t, models.TaskCompleted, financial.State)
	assert.Equal(t, 2, financial.RetryCount)
	require.NotNil(t, financial.Result)
	assert.InEpsilon(t, 81.0, financial.Result.Score, 0.0001)

	assert.Equal(t, "connection refused", results[models.TaskMarketResearch].Error)
}

func TestTaskResultsByExecutionEmpty(t *testing.T) {
	p := NewPersistence(t.TempDir())

	results, err := p.TaskResults().ByExecution(context.Background(), "exec-none")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestResultSaveAndByID(t *testing.T) {
	p := NewPersistence(t.TempDir())
	ctx := context.Background()

	result := &models.AggregatedResult{
		ExecutionID:  "exec-agg",
		OverallScore: 78.5,
		Confidence:   models.ConfidenceHigh,
		Consensus:    82,
		Contributions: []models.Contribution{
			{TaskType: models.TaskMarketResearch, Weight: 1, Score: 78.5},
		},
		Metadata: models.AggregationMetadata{
			TotalAgents:     1,
			SucceededAgents: 1,
			Strategy:        "weighted-average",
		},
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}

	require.NoError(t, p.Results().Save(ctx, result))

	loaded, err := p.Results().ByID(ctx, "exec-agg")
	require.NoError(t, err)
	assert.InEpsilon(t, 78.5, loaded.OverallScore, 0.0001)
	assert.Equal(t, models.ConfidenceHigh, loaded.Confidence)
	assert.Equal(t, "weighted-average", loaded.Metadata.Strategy)
}

func TestResultByIDNotFound(t *testing.T) {
	p := NewPersistence(t.TempDir())

	_, err := p.Results().ByID(context.Background(), "exec-missing")
	require.Error(t, err)
	assert.True(t, persistence.IsResultNotFound(err))
}

func TestHealthCheck(t *testing.T) {
	dir := t.TempDir()

	assert.NoError(t, NewPersistence(dir).HealthCheck(context.Background()))
	assert.Error(t, NewPersistence(dir+"/nope").HealthCheck(context.Background()))
}

func TestNewPersistenceStripsScheme(t *testing.T) {
	dir := t.TempDir()
	p := NewPersistence("file://" + dir)

	require.NoError(t, p.Evaluations().Create(context.Background(), newExecution("exec-scheme")))

	_, err := p.Evaluations().ByID(context.Background(), "exec-scheme")
	require.NoError(t, err)
}
