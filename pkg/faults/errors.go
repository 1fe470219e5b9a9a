package faults

import (
	"errors"
	"fmt"

	"github.com/evalforge/evalforge/pkg/models"
)

// ErrBreakerOpen indicates a call was rejected without invoking the handler
// because the task type (or the whole system) is currently unhealthy. It is
// deliberately distinct from a call failure and never retryable.
var ErrBreakerOpen = errors.New("circuit breaker open")

// BreakerOpenError identifies which breaker rejected the call.
type BreakerOpenError struct {
	TaskType models.TaskType
	System   bool
}

func (e *BreakerOpenError) Error() string {
	if e.System {
		return fmt.Sprintf("circuit breaker open system-wide, rejecting %s", e.TaskType)
	}

	return fmt.Sprintf("circuit breaker open for task type %s", e.TaskType)
}

func (e *BreakerOpenError) Unwrap() error {
	return ErrBreakerOpen
}

// IsBreakerOpen checks if an error indicates a circuit breaker rejection.
func IsBreakerOpen(err error) bool {
	return errors.Is(err, ErrBreakerOpen)
}
