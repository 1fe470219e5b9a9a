package orchestrator

import (
	"errors"
	"fmt"
)

var (
	// ErrCapacityExceeded indicates the active execution ceiling was hit;
	// admission rejects rather than blocks.
	ErrCapacityExceeded = errors.New("capacity exceeded")

	// ErrExecutionNotFound indicates no active or historical execution
	// exists for the id.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrResultNotReady indicates the execution has not produced an
	// aggregated result (yet, or at all).
	ErrResultNotReady = errors.New("aggregated result not available")
)

// CapacityExceededError reports the ceiling that rejected the submission.
type CapacityExceededError struct {
	Active  int
	Ceiling int
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("cannot start workflow: %d executions active, ceiling is %d", e.Active, e.Ceiling)
}

func (e *CapacityExceededError) Unwrap() error {
	return ErrCapacityExceeded
}

// IsCapacityExceeded checks if an error indicates admission rejection.
func IsCapacityExceeded(err error) bool {
	return errors.Is(err, ErrCapacityExceeded)
}

// IsExecutionNotFound checks if an error indicates an unknown execution id.
func IsExecutionNotFound(err error) bool {
	return errors.Is(err, ErrExecutionNotFound)
}
