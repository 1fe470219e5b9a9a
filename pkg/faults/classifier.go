package faults

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/evalforge/evalforge/pkg/models"
	"github.com/google/uuid"
)

// escalationWindow bounds how close together two failures of the same
// category and task type must be to raise the escalation level.
const escalationWindow = 5 * time.Minute

// Classifier turns raw task errors into categorized errors, computes retry
// delays, and consults the circuit breakers on retry decisions. One instance
// is shared process-wide; all mutable state is guarded internally.
type Classifier struct {
	rules         []Rule
	breakers      *BreakerRegistry
	history       *History
	compensations *CompensationRegistry
	logger        *slog.Logger

	mu         sync.Mutex
	rng        *rand.Rand
	escalation map[escalationKey]*escalationEntry
}

type escalationKey struct {
	category Category
	taskType models.TaskType
}

type escalationEntry struct {
	level    int
	lastSeen time.Time
}

func NewClassifier(logger *slog.Logger, breakers *BreakerRegistry, history *History, compensations *CompensationRegistry) *Classifier {
	return &Classifier{
		rules:         DefaultRules(),
		breakers:      breakers,
		history:       history,
		compensations: compensations,
		logger:        logger.With("module", "error_classifier"),
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
		escalation:    make(map[escalationKey]*escalationEntry),
	}
}

// WithRules replaces the default rule set. Rules keep their order; callers
// must end the list with a catch-all rule.
func (c *Classifier) WithRules(rules []Rule) *Classifier {
	c.rules = rules

	return c
}

// Classify matches the error text against the ordered rule list (first match
// wins) and records the categorized error in the rolling history.
func (c *Classifier) Classify(err error, errCtx ErrorContext) *CategorizedError {
	if errCtx.Timestamp.IsZero() {
		errCtx.Timestamp = time.Now()
	}

	message := err.Error()

	var matched Rule

	for _, rule := range c.rules {
		if rule.Matches(message) {
			matched = rule

			break
		}
	}

	categorized := &CategorizedError{
		ID:              "err-" + uuid.New().String()[:8],
		Category:        matched.Category,
		Severity:        matched.Severity,
		Retryable:       matched.Retryable,
		Retry:           matched.Retry,
		EscalationLevel: c.bumpEscalation(matched.Category, errCtx),
		Context:         errCtx,
		Message:         message,
	}

	c.history.Record(categorized)

	c.logger.Debug("Classified task error",
		"error_id", categorized.ID,
		"category", categorized.Category,
		"severity", categorized.Severity,
		"retryable", categorized.Retryable,
		"escalation_level", categorized.EscalationLevel,
		"task_type", errCtx.TaskType,
		"execution_id", errCtx.ExecutionID)

	return categorized
}

// ShouldRetry decides whether attempt attemptNumber (1-based) may be retried.
// It returns false for non-retryable categories, exhausted policies, and
// whenever the task-type or system-wide breaker is open.
func (c *Classifier) ShouldRetry(categorized *CategorizedError, attemptNumber int) bool {
	if !categorized.Retryable {
		return false
	}

	if attemptNumber > categorized.Retry.MaxRetries {
		return false
	}

	if !c.breakers.Allow(categorized.Context.TaskType) {
		c.logger.Warn("Retry suppressed, circuit breaker open",
			"task_type", categorized.Context.TaskType,
			"error_id", categorized.ID)

		return false
	}

	return true
}

// CalculateRetryDelay applies the matched policy's backoff formula for the
// given attempt (1-based), clamps to the policy's max delay, and adds ±10%
// jitter when enabled.
func (c *Classifier) CalculateRetryDelay(categorized *CategorizedError, attemptNumber int) time.Duration {
	policy := categorized.Retry

	if policy.BaseDelay <= 0 {
		policy.BaseDelay = time.Second
	}

	var delay time.Duration

	switch policy.Backoff {
	case models.BackoffExponential:
		delay = time.Duration(float64(policy.BaseDelay) * math.Pow(2, float64(attemptNumber-1)))
	case models.BackoffLinear:
		delay = policy.BaseDelay * time.Duration(attemptNumber)
	case models.BackoffFixed, models.BackoffCustom:
		delay = policy.BaseDelay
	default:
		delay = policy.BaseDelay
	}

	if policy.MaxDelay > 0 && delay > policy.MaxDelay {
		delay = policy.MaxDelay
	}

	if policy.Jitter {
		c.mu.Lock()
		factor := 0.9 + c.rng.Float64()*0.2
		c.mu.Unlock()

		delay = time.Duration(float64(delay) * factor)
	}

	return delay
}

// RecordSuccess feeds a successful task outcome into both breakers.
func (c *Classifier) RecordSuccess(taskType models.TaskType) {
	c.breakers.RecordSuccess(taskType)
}

// RecordFailure feeds a failed task outcome into both breakers.
func (c *Classifier) RecordFailure(taskType models.TaskType) {
	c.breakers.RecordFailure(taskType)
}

// Compensate runs the compensation actions of the rule that produced the
// categorized error. Called on terminal (non-retryable or retry-exhausted)
// failures only; always best-effort.
func (c *Classifier) Compensate(ctx context.Context, categorized *CategorizedError) {
	for _, rule := range c.rules {
		if rule.Category == categorized.Category && len(rule.Compensations) > 0 {
			c.compensations.Execute(ctx, rule.Compensations, categorized)

			return
		}
	}
}

// Breakers exposes the breaker registry for diagnostics endpoints.
func (c *Classifier) Breakers() *BreakerRegistry {
	return c.breakers
}

// History exposes the rolling error history.
func (c *Classifier) History() *History {
	return c.history
}

// bumpEscalation raises the escalation level when the same category repeats
// for the same task type within the escalation window, and resets otherwise.
func (c *Classifier) bumpEscalation(category Category, errCtx ErrorContext) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := escalationKey{category: category, taskType: errCtx.TaskType}

	entry, ok := c.escalation[key]
	if !ok || errCtx.Timestamp.Sub(entry.lastSeen) > escalationWindow {
		c.escalation[key] = &escalationEntry{level: 1, lastSeen: errCtx.Timestamp}

		return 1
	}

	entry.level++
	entry.lastSeen = errCtx.Timestamp

	return entry.level
}
