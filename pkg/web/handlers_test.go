package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evalforge/evalforge/pkg/agent"
	"github.com/evalforge/evalforge/pkg/aggregate"
	"github.com/evalforge/evalforge/pkg/definition"
	"github.com/evalforge/evalforge/pkg/execution"
	"github.com/evalforge/evalforge/pkg/faults"
	"github.com/evalforge/evalforge/pkg/models"
	"github.com/evalforge/evalforge/pkg/orchestrator"
	"github.com/evalforge/evalforge/pkg/persistence/file"
	"github.com/evalforge/evalforge/pkg/plan"
	"github.com/evalforge/evalforge/pkg/web"
)

type testEnv struct {
	app          *fiber.App
	orchestrator *orchestrator.Orchestrator
	release      chan struct{}
}

// setupTestApp wires the full handler stack over an in-process orchestrator
// with two local agents. The market research agent blocks until release is
// closed so tests can observe in-flight executions.
func setupTestApp(t *testing.T) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	release := make(chan struct{})

	definitions := definition.NewStore(logger)
	require.NoError(t, definitions.Register(&models.WorkflowDefinition{
		ID:   "quick-evaluation",
		Name: "Quick Evaluation",
		Tasks: []models.TaskSpec{
			{Type: models.TaskMarketResearch, EstimatedDuration: 10 * time.Second},
			{Type: models.TaskRiskAssessment, EstimatedDuration: 10 * time.Second},
		},
		Retry: models.RetryPolicy{Backoff: models.BackoffFixed, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
	}))

	respond := func(score float64) *models.AgentResponse {
		return &models.AgentResponse{
			Score:      score,
			Insights:   []string{"insight"},
			Confidence: models.ConfidenceHigh,
			Metadata:   &models.AgentMetadata{ProcessingTimeMs: 5},
		}
	}

	registry := agent.NewRegistry(logger)
	registry.Register(agent.HandlerFunc{
		Type: models.TaskMarketResearch,
		Fn: func(ctx context.Context, _ models.AgentRequest, _ models.AgentContext) (*models.AgentResponse, error) {
			select {
			case <-release:
				return respond(80), nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	})
	registry.Register(agent.HandlerFunc{
		Type: models.TaskRiskAssessment,
		Fn: func(_ context.Context, _ models.AgentRequest, _ models.AgentContext) (*models.AgentResponse, error) {
			return respond(70), nil
		},
	})

	classifier := faults.NewClassifier(
		logger,
		faults.NewBreakerRegistry(faults.DefaultBreakerConfig(), faults.DefaultSystemBreakerConfig()),
		faults.NewHistory(faults.DefaultHistoryCapacity),
		faults.NewCompensationRegistry(logger),
	)

	store := file.NewPersistence(t.TempDir())

	orch := orchestrator.New(
		definitions,
		plan.NewBuilder(logger),
		execution.NewService(registry, classifier, logger, nil),
		aggregate.NewAggregator(logger),
		store,
		nil,
		logger,
		nil,
		orchestrator.Config{},
	)

	handlers := web.NewAPIHandlers(orch, definitions, store, validator.New(validator.WithRequiredStructEnabled()))

	app := fiber.New()
	handlers.Register(app)

	return &testEnv{app: app, orchestrator: orch, release: release}
}

func (e *testEnv) submit(t *testing.T, body string) *http.Response {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/evaluations/", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.app.Test(req)
	require.NoError(t, err)

	return resp
}

func (e *testEnv) get(t *testing.T, path string) *http.Response {
	t.Helper()

	resp, err := e.app.Test(httptest.NewRequest(http.MethodGet, path, nil))
	require.NoError(t, err)

	return resp
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()

	defer func() { _ = resp.Body.Close() }()

	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))

	return out
}

func (e *testEnv) await(t *testing.T, executionID string) {
	t.Helper()

	watch, err := e.orchestrator.Watch(executionID)
	require.NoError(t, err)

	select {
	case <-watch:
	case <-time.After(5 * time.Second):
		t.Fatalf("execution %s did not finish in time", executionID)
	}
}

func TestSubmitEvaluationLifecycle(t *testing.T) {
	env := setupTestApp(t)
	close(env.release)

	resp := env.submit(t, `{"workflow_id": "quick-evaluation", "subject": "Acme Robotics", "priority": "high"}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	accepted := decodeJSON[web.SubmitEvaluationResponse](t, resp)
	assert.Equal(t, "quick-evaluation", accepted.WorkflowID)
	assert.Equal(t, "pending", accepted.Status)
	require.NotEmpty(t, accepted.ExecutionID)

	env.await(t, accepted.ExecutionID)

	statusResp := env.get(t, "/evaluations/"+accepted.ExecutionID)
	assert.Equal(t, http.StatusOK, statusResp.StatusCode)

	status := decodeJSON[web.ExecutionStatusResponse](t, statusResp)
	assert.Equal(t, "completed", status.Status)
	assert.Equal(t, 100, status.Progress)
	require.Contains(t, status.Tasks, "market-research")
	require.NotNil(t, status.Tasks["market-research"].Score)
	assert.InEpsilon(t, 80.0, *status.Tasks["market-research"].Score, 0.0001)

	resultResp := env.get(t, "/evaluations/"+accepted.ExecutionID+"/result")
	assert.Equal(t, http.StatusOK, resultResp.StatusCode)

	result := decodeJSON[models.AggregatedResult](t, resultResp)
	assert.Equal(t, accepted.ExecutionID, result.ExecutionID)
	assert.InEpsilon(t, 75.0, result.OverallScore, 0.0001)
}

func TestSubmitEvaluationValidation(t *testing.T) {
	env := setupTestApp(t)

	tests := []struct {
		name string
		body string
	}{
		{name: "invalid json", body: `{"workflow_id": `},
		{name: "missing subject", body: `{"workflow_id": "quick-evaluation"}`},
		{name: "short workflow id", body: `{"workflow_id": "ab", "subject": "Acme"}`},
		{name: "unknown priority", body: `{"workflow_id": "quick-evaluation", "subject": "Acme", "priority": "urgent"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.submit(t, tt.body)
			defer func() { _ = resp.Body.Close() }()

			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestSubmitEvaluationUnknownWorkflow(t *testing.T) {
	env := setupTestApp(t)

	resp := env.submit(t, `{"workflow_id": "no-such-workflow", "subject": "Acme"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	problem := decodeJSON[map[string]any](t, resp)
	assert.Equal(t, "workflow_not_found", problem["type"])
}

func TestGetEvaluationNotFound(t *testing.T) {
	env := setupTestApp(t)

	resp := env.get(t, "/evaluations/exec-missing")
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetResultBeforeCompletion(t *testing.T) {
	env := setupTestApp(t)

	resp := env.submit(t, `{"workflow_id": "quick-evaluation", "subject": "Acme Robotics"}`)
	accepted := decodeJSON[web.SubmitEvaluationResponse](t, resp)

	resultResp := env.get(t, "/evaluations/"+accepted.ExecutionID+"/result")
	assert.Equal(t, http.StatusConflict, resultResp.StatusCode)

	problem := decodeJSON[map[string]any](t, resultResp)
	assert.Equal(t, "result_not_ready", problem["type"])

	env.orchestrator.CancelWorkflow(accepted.ExecutionID)
	env.await(t, accepted.ExecutionID)
}

func TestCancelEvaluation(t *testing.T) {
	env := setupTestApp(t)

	resp := env.submit(t, `{"workflow_id": "quick-evaluation", "subject": "Acme Robotics"}`)
	accepted := decodeJSON[web.SubmitEvaluationResponse](t, resp)

	cancelReq := httptest.NewRequest(http.MethodDelete, "/evaluations/"+accepted.ExecutionID, nil)
	cancelResp, err := env.app.Test(cancelReq)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, cancelResp.StatusCode)

	env.await(t, accepted.ExecutionID)

	// A second cancel finds the execution already terminal.
	again, err := env.app.Test(httptest.NewRequest(http.MethodDelete, "/evaluations/"+accepted.ExecutionID, nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, again.StatusCode)

	statusResp := env.get(t, "/evaluations/"+accepted.ExecutionID)
	status := decodeJSON[web.ExecutionStatusResponse](t, statusResp)
	assert.Equal(t, "cancelled", status.Status)
}

func TestCancelUnknownEvaluation(t *testing.T) {
	env := setupTestApp(t)

	resp, err := env.app.Test(httptest.NewRequest(http.MethodDelete, "/evaluations/exec-missing", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetWorkflows(t *testing.T) {
	env := setupTestApp(t)

	resp := env.get(t, "/workflows/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	listing := decodeJSON[map[string]any](t, resp)
	assert.InDelta(t, 1, listing["total_count"], 0)
	assert.Contains(t, listing["workflows"], "quick-evaluation")
}

func TestGetWorkflowByID(t *testing.T) {
	env := setupTestApp(t)

	resp := env.get(t, "/workflows/quick-evaluation")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	def := decodeJSON[map[string]any](t, resp)
	assert.Equal(t, "quick-evaluation", def["id"])

	missing := env.get(t, "/workflows/never-registered")
	defer func() { _ = missing.Body.Close() }()

	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestHealthCheck(t *testing.T) {
	env := setupTestApp(t)

	resp := env.get(t, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	health := decodeJSON[map[string]any](t, resp)
	assert.Equal(t, "healthy", health["status"])
}
