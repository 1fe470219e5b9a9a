// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrEvaluationNotFound indicates no evaluation record exists for the id.
	ErrEvaluationNotFound = errors.New("evaluation not found")

	// ErrResultNotFound indicates no aggregated result exists for the id.
	ErrResultNotFound = errors.New("aggregated result not found")

	// ErrEvaluationAlreadyExists indicates a record with the same execution
	// id was already created.
	ErrEvaluationAlreadyExists = errors.New("evaluation already exists")
)

// EvaluationError wraps evaluation-record errors with operation context.
type EvaluationError struct {
	Op          string // Operation being performed (e.g., "Create", "Update", "ByID")
	ExecutionID string
	Err         error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("%s operation failed for evaluation %s: %v", e.Op, e.ExecutionID, e.Err)
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for evaluation errors.
func (e *EvaluationError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewEvaluationError creates a new evaluation error with context.
func NewEvaluationError(op, executionID string, err error) *EvaluationError {
	return &EvaluationError{
		Op:          op,
		ExecutionID: executionID,
		Err:         err,
	}
}

// IsEvaluationNotFound checks if an error indicates a missing evaluation record.
func IsEvaluationNotFound(err error) bool {
	return errors.Is(err, ErrEvaluationNotFound)
}

// IsResultNotFound checks if an error indicates a missing aggregated result.
func IsResultNotFound(err error) bool {
	return errors.Is(err, ErrResultNotFound)
}
