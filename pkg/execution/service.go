// Package execution runs single analysis tasks under timeout, retry, and
// circuit-breaker policy.
package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/evalforge/evalforge/pkg/agent"
	"github.com/evalforge/evalforge/pkg/faults"
	"github.com/evalforge/evalforge/pkg/models"
	"github.com/evalforge/evalforge/pkg/otelhelper"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultTimeout bounds one handler attempt when the caller sets none.
	DefaultTimeout = 60 * time.Second

	// DefaultBatchConcurrency caps ExecuteBatch chunk size.
	DefaultBatchConcurrency = 3
)

// ErrCancelled indicates the execution's cancellation signal fired while the
// task was in flight or waiting out a retry backoff.
var ErrCancelled = errors.New("task cancelled")

// IsCancelled checks if an error indicates cooperative cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}

// Options tunes one Execute call. Zero values fall back to the retry policy
// matched by the error classifier and DefaultTimeout.
type Options struct {
	MaxRetries int
	Timeout    time.Duration
}

// Result is the terminal outcome of one task execution including retries.
type Result struct {
	Success    bool
	Response   *models.AgentResponse
	Err        *faults.CategorizedError
	RetryCount int
	Elapsed    time.Duration
}

// Service drives one agent handler through its attempt loop, consulting the
// error classifier for retry and backoff decisions on every failure.
type Service struct {
	registry   *agent.Registry
	classifier *faults.Classifier
	logger     *slog.Logger
	tracer     trace.Tracer
}

func NewService(registry *agent.Registry, classifier *faults.Classifier, logger *slog.Logger, tracer trace.Tracer) *Service {
	return &Service{
		registry:   registry,
		classifier: classifier,
		logger:     logger.With("module", "execution_service"),
		tracer:     tracer,
	}
}

// Execute runs the handler for taskType with a per-attempt timeout and a
// bounded retry loop. Cancellation of ctx is observed at every await point.
func (s *Service) Execute(ctx context.Context, taskType models.TaskType, req models.AgentRequest, agentCtx models.AgentContext, opts Options) Result {
	started := time.Now()

	logger := s.logger.With(
		"task_type", taskType,
		"execution_id", agentCtx.ExecutionID,
	)

	if s.tracer != nil {
		var span trace.Span

		ctx, span = otelhelper.StartSpan(ctx, s.tracer, "task.execute",
			attribute.String(otelhelper.TaskTypeKey, string(taskType)),
			attribute.String(otelhelper.ExecutionIDKey, agentCtx.ExecutionID),
		)
		defer span.End()
	}

	handler, err := s.registry.Handler(taskType)
	if err != nil {
		return s.terminalFailure(ctx, logger, err, taskType, agentCtx, 0, started)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	attempt := 1

	for {
		if !s.classifier.Breakers().Allow(taskType) {
			rejection := &faults.BreakerOpenError{TaskType: taskType}
			logger.Warn("Task rejected without invoking handler", "error", rejection)

			return Result{
				Err: &faults.CategorizedError{
					ID:        "err-breaker-" + string(taskType),
					Category:  faults.CategorySystem,
					Severity:  faults.SeverityHigh,
					Retryable: false,
					Context: faults.ErrorContext{
						TaskType:    taskType,
						ExecutionID: agentCtx.ExecutionID,
						Timestamp:   time.Now(),
					},
					Message: rejection.Error(),
				},
				RetryCount: attempt - 1,
				Elapsed:    time.Since(started),
			}
		}

		response, attemptErr := s.attempt(ctx, handler, req, agentCtx, timeout)

		if attemptErr == nil {
			if validationErr := agent.ValidateResponse(response); validationErr != nil {
				// A malformed success is a failure; the aggregator never
				// sees unvalidated payloads.
				attemptErr = validationErr
			}
		}

		if attemptErr == nil {
			s.classifier.RecordSuccess(taskType)
			response.Metadata.RetryCount = attempt - 1

			logger.Info("Task completed",
				"retry_count", attempt-1,
				"elapsed", time.Since(started),
				"score", response.Score)

			return Result{
				Success:    true,
				Response:   response,
				RetryCount: attempt - 1,
				Elapsed:    time.Since(started),
			}
		}

		if IsCancelled(attemptErr) || ctx.Err() != nil {
			return s.cancelled(logger, taskType, agentCtx, attempt-1, started)
		}

		s.classifier.RecordFailure(taskType)

		categorized := s.classifier.Classify(attemptErr, faults.ErrorContext{
			TaskType:    taskType,
			ExecutionID: agentCtx.ExecutionID,
		})

		maxRetries := opts.MaxRetries
		if maxRetries <= 0 {
			maxRetries = categorized.Retry.MaxRetries
		}

		budgetLeft := attempt <= maxRetries
		if !budgetLeft || !s.classifier.ShouldRetry(categorized, attempt) {
			logger.Error("Task failed permanently",
				"error_id", categorized.ID,
				"category", categorized.Category,
				"retry_count", attempt-1,
				"error", attemptErr)

			if s.tracer != nil {
				otelhelper.SetError(trace.SpanFromContext(ctx), attemptErr,
					attribute.String(otelhelper.TaskTypeKey, string(taskType)))
			}

			s.classifier.Compensate(ctx, categorized)

			return Result{
				Err:        categorized,
				RetryCount: attempt - 1,
				Elapsed:    time.Since(started),
			}
		}

		delay := s.classifier.CalculateRetryDelay(categorized, attempt)

		logger.Warn("Task attempt failed, retrying",
			"attempt", attempt,
			"delay", delay,
			"category", categorized.Category,
			"error", attemptErr)

		// Honor the cancellation signal during the backoff sleep.
		select {
		case <-ctx.Done():
			return s.cancelled(logger, taskType, agentCtx, attempt-1, started)
		case <-time.After(delay):
		}

		attempt++
	}
}

// attempt runs one handler invocation under its timeout.
func (s *Service) attempt(ctx context.Context, handler agent.Handler, req models.AgentRequest, agentCtx models.AgentContext, timeout time.Duration) (*models.AgentResponse, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	response, err := handler.Execute(attemptCtx, req, agentCtx)

	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
		}

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("task timed out after %s: %w", timeout, err)
		}

		return nil, err
	}

	return response, nil
}

func (s *Service) cancelled(logger *slog.Logger, taskType models.TaskType, agentCtx models.AgentContext, retries int, started time.Time) Result {
	logger.Info("Task cancelled", "retry_count", retries)

	categorized := s.classifier.Classify(ErrCancelled, faults.ErrorContext{
		TaskType:    taskType,
		ExecutionID: agentCtx.ExecutionID,
	})

	return Result{
		Err:        categorized,
		RetryCount: retries,
		Elapsed:    time.Since(started),
	}
}

func (s *Service) terminalFailure(ctx context.Context, logger *slog.Logger, err error, taskType models.TaskType, agentCtx models.AgentContext, retries int, started time.Time) Result {
	categorized := s.classifier.Classify(err, faults.ErrorContext{
		TaskType:    taskType,
		ExecutionID: agentCtx.ExecutionID,
	})

	logger.Error("Task failed", "error_id", categorized.ID, "error", err)

	if s.tracer != nil {
		otelhelper.SetError(trace.SpanFromContext(ctx), err)
	}

	s.classifier.Compensate(ctx, categorized)

	return Result{
		Err:        categorized,
		RetryCount: retries,
		Elapsed:    time.Since(started),
	}
}
