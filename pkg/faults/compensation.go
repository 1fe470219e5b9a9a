package faults

import (
	"context"
	"log/slog"
	"sort"
)

// CompensationAction is a best-effort side-effect handler run after a
// non-retryable or retry-exhausted failure. Action failures are logged and
// never re-thrown.
type CompensationAction struct {
	Name     string
	Priority int
	Run      func(ctx context.Context, categorized *CategorizedError) error
}

// CompensationRegistry keeps named actions and runs them in priority order
// (lowest number first).
type CompensationRegistry struct {
	actions map[string]CompensationAction
	logger  *slog.Logger
}

func NewCompensationRegistry(logger *slog.Logger) *CompensationRegistry {
	return &CompensationRegistry{
		actions: make(map[string]CompensationAction),
		logger:  logger.With("module", "compensation"),
	}
}

// DefaultCompensations is the stock action set referenced by the default
// classification rules. The actions are operator signals: they record what
// recovery the failure calls for without mutating workflow state, and
// deployments that can actually free resources or page someone replace them
// through Register.
func DefaultCompensations(logger *slog.Logger) []CompensationAction {
	logger = logger.With("module", "compensation")

	return []CompensationAction{
		{
			Name:     "use-fallback-data",
			Priority: 1,
			Run: func(ctx context.Context, categorized *CategorizedError) error {
				logger.WarnContext(ctx, "Dependency unavailable, downstream tasks run on partial data",
					"error_id", categorized.ID,
					"task_type", categorized.Context.TaskType,
					"execution_id", categorized.Context.ExecutionID)

				return nil
			},
		},
		{
			Name:     "cleanup-resources",
			Priority: 1,
			Run: func(ctx context.Context, categorized *CategorizedError) error {
				logger.WarnContext(ctx, "Resource exhaustion reported, requesting agent-side cleanup",
					"error_id", categorized.ID,
					"task_type", categorized.Context.TaskType,
					"execution_id", categorized.Context.ExecutionID)

				return nil
			},
		},
		{
			Name:     "escalate",
			Priority: 2,
			Run: func(ctx context.Context, categorized *CategorizedError) error {
				logger.ErrorContext(ctx, "Failure requires operator attention",
					"error_id", categorized.ID,
					"category", categorized.Category,
					"severity", categorized.Severity,
					"task_type", categorized.Context.TaskType,
					"execution_id", categorized.Context.ExecutionID,
					"message", categorized.Message)

				return nil
			},
		},
	}
}

// Register adds or replaces an action by name.
func (r *CompensationRegistry) Register(action CompensationAction) {
	r.actions[action.Name] = action
}

// Execute runs the named actions in priority order, best-effort.
func (r *CompensationRegistry) Execute(ctx context.Context, names []string, categorized *CategorizedError) {
	var selected []CompensationAction

	for _, name := range names {
		action, ok := r.actions[name]
		if !ok {
			r.logger.Warn("Compensation action not registered", "action", name)

			continue
		}

		selected = append(selected, action)
	}

	sort.Slice(selected, func(i, j int) bool { return selected[i].Priority < selected[j].Priority })

	for _, action := range selected {
		logger := r.logger.With(
			"action", action.Name,
			"error_id", categorized.ID,
			"category", categorized.Category,
			"task_type", categorized.Context.TaskType,
		)

		if err := action.Run(ctx, categorized); err != nil {
			logger.Error("Compensation action failed", "error", err)

			continue
		}

		logger.Debug("Compensation action completed")
	}
}
