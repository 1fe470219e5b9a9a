package orchestrator

import (
	"fmt"
	"time"

	"github.com/evalforge/evalforge/pkg/models"
	"github.com/robfig/cron/v3"
)

// StartJanitor begins the background sweep that fails executions whose
// deadline passed. It runs every minute until the returned stop function is
// called.
func (o *Orchestrator) StartJanitor() (stop func(), err error) {
	scheduler := cron.New()

	if _, err := scheduler.AddFunc("* * * * *", o.sweepExpired); err != nil {
		return nil, fmt.Errorf("failed to schedule janitor: %w", err)
	}

	scheduler.Start()

	o.logger.Info("Started execution janitor", "interval", "1m")

	return func() {
		<-scheduler.Stop().Done()
	}, nil
}

// sweepExpired fails every active execution whose deadline has passed.
func (o *Orchestrator) sweepExpired() {
	now := time.Now()

	o.mu.Lock()

	var expired []*executionState

	for _, state := range o.active {
		state.mu.Lock()

		if state.execution.Deadline != nil && now.After(*state.execution.Deadline) && !state.execution.Status.IsTerminal() {
			expired = append(expired, state)
		}

		state.mu.Unlock()
	}

	o.mu.Unlock()

	for _, state := range expired {
		o.expire(state)
	}
}

// expire fails one execution for exceeding its deadline. In-flight tasks see
// the cancellation signal; tasks that never ran are skipped.
func (o *Orchestrator) expire(state *executionState) {
	state.cancel()

	state.mu.Lock()

	if state.execution.Status.IsTerminal() {
		state.mu.Unlock()

		return
	}

	for taskType, status := range state.execution.Tasks {
		if !status.State.IsTerminal() {
			o.markTask(state, taskType, models.TaskSkipped, nil, "execution deadline exceeded")
		}
	}

	state.execution.Status = models.ExecutionFailed
	now := time.Now()
	state.execution.CompletedAt = &now
	state.execution.Progress = 100

	duration := now.Sub(state.execution.StartedAt)
	deadline := *state.execution.Deadline
	state.mu.Unlock()

	err := fmt.Errorf("execution deadline %s exceeded", deadline.Format(time.RFC3339))

	o.logger.Warn("Execution exceeded its deadline",
		"execution_id", state.execution.ExecutionID,
		"deadline", deadline,
		"duration", duration)

	o.publishFailed(state.ctx, state, err, duration)
	o.retire(state, nil, err)
}
