package plan

import (
	"errors"
	"fmt"

	"github.com/evalforge/evalforge/pkg/models"
)

var (
	// ErrConfiguration indicates the dependency table references a task type
	// outside the requested set.
	ErrConfiguration = errors.New("invalid plan configuration")

	// ErrCyclicDependency indicates the dependency table contains a cycle.
	ErrCyclicDependency = errors.New("cyclic dependency")
)

// ConfigurationError reports which edge points outside the requested task set.
type ConfigurationError struct {
	Task       models.TaskType
	Dependency models.TaskType
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("task %s depends on %s which is not in the requested task set", e.Task, e.Dependency)
}

func (e *ConfigurationError) Unwrap() error {
	return ErrConfiguration
}

// CyclicDependencyError reports the cycle found during validation.
type CyclicDependencyError struct {
	Cycle []models.TaskType
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("dependency table contains a cycle: %v", e.Cycle)
}

func (e *CyclicDependencyError) Unwrap() error {
	return ErrCyclicDependency
}

// IsConfigurationError checks if an error indicates an invalid plan configuration.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsCyclicDependencyError checks if an error indicates a dependency cycle.
func IsCyclicDependencyError(err error) bool {
	return errors.Is(err, ErrCyclicDependency)
}
