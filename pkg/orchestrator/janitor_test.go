package orchestrator

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evalforge/evalforge/pkg/agent"
	"github.com/evalforge/evalforge/pkg/aggregate"
	"github.com/evalforge/evalforge/pkg/definition"
	"github.com/evalforge/evalforge/pkg/execution"
	"github.com/evalforge/evalforge/pkg/faults"
	"github.com/evalforge/evalforge/pkg/models"
	"github.com/evalforge/evalforge/pkg/persistence/file"
	"github.com/evalforge/evalforge/pkg/plan"
)

// newSweepOrchestrator wires a single-task workflow whose agent blocks until
// its context is cancelled, so executions only end through the deadline
// sweep or an explicit cancel.
func newSweepOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	definitions := definition.NewStore(logger)
	require.NoError(t, definitions.Register(&models.WorkflowDefinition{
		ID:   "deadline-evaluation",
		Name: "Deadline Evaluation",
		Tasks: []models.TaskSpec{
			{Type: models.TaskMarketResearch, EstimatedDuration: 10 * time.Second},
		},
		Retry: models.RetryPolicy{
			Backoff:   models.BackoffFixed,
			BaseDelay: time.Millisecond,
			MaxDelay:  time.Millisecond,
		},
	}))

	registry := agent.NewRegistry(logger)
	registry.Register(agent.HandlerFunc{
		Type: models.TaskMarketResearch,
		Fn: func(ctx context.Context, _ models.AgentRequest, _ models.AgentContext) (*models.AgentResponse, error) {
			<-ctx.Done()

			return nil, ctx.Err()
		},
	})

	classifier := faults.NewClassifier(
		logger,
		faults.NewBreakerRegistry(faults.DefaultBreakerConfig(), faults.DefaultSystemBreakerConfig()),
		faults.NewHistory(faults.DefaultHistoryCapacity),
		faults.NewCompensationRegistry(logger),
	)

	return New(
		definitions,
		plan.NewBuilder(logger),
		execution.NewService(registry, classifier, logger, nil),
		aggregate.NewAggregator(logger),
		file.NewPersistence(t.TempDir()),
		nil,
		logger,
		nil,
		Config{},
	)
}

func TestSweepExpiredFailsOverdueExecutions(t *testing.T) {
	o := newSweepOrchestrator(t)

	overdueID, err := o.StartWorkflow(context.Background(), "deadline-evaluation", "Acme Robotics", StartOptions{
		Timeout: 20 * time.Millisecond,
	})
	require.NoError(t, err)

	freshID, err := o.StartWorkflow(context.Background(), "deadline-evaluation", "Beta Bikes", StartOptions{
		Timeout: time.Hour,
	})
	require.NoError(t, err)

	watch, err := o.Watch(overdueID)
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	o.sweepExpired()

	select {
	case outcome := <-watch:
		assert.Equal(t, models.ExecutionFailed, outcome.Status)
		assert.Nil(t, outcome.Result)
		require.Error(t, outcome.Err)
		assert.Contains(t, outcome.Err.Error(), "deadline")
	case <-time.After(5 * time.Second):
		t.Fatal("sweep never failed the overdue execution")
	}

	status, err := o.GetStatus(overdueID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionFailed, status.Status)
	assert.Equal(t, 100, status.Progress)
	assert.Equal(t, models.TaskSkipped, status.Tasks[models.TaskMarketResearch].State)
	assert.Equal(t, "execution deadline exceeded", status.Tasks[models.TaskMarketResearch].Error)

	// The execution with an hour of slack is untouched.
	fresh, err := o.GetStatus(freshID)
	require.NoError(t, err)
	assert.False(t, fresh.Status.IsTerminal())
	assert.Equal(t, 1, o.ActiveCount())

	require.True(t, o.CancelWorkflow(freshID))
}

func TestSweepIgnoresExecutionsWithoutDeadline(t *testing.T) {
	o := newSweepOrchestrator(t)

	executionID, err := o.StartWorkflow(context.Background(), "deadline-evaluation", "Acme Robotics", StartOptions{})
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	o.sweepExpired()

	status, err := o.GetStatus(executionID)
	require.NoError(t, err)
	assert.False(t, status.Status.IsTerminal())

	require.True(t, o.CancelWorkflow(executionID))
}

func TestStartJanitorStops(t *testing.T) {
	o := newSweepOrchestrator(t)

	stop, err := o.StartJanitor()
	require.NoError(t, err)

	stop()
}
