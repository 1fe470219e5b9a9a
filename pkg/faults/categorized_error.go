// Package faults classifies task failures, decides retryability, and guards
// repeatedly-failing task types with circuit breakers.
package faults

import (
	"time"

	"github.com/evalforge/evalforge/pkg/models"
)

// Category is the failure taxonomy bucket a raw error falls into.
type Category string

const (
	CategoryNetwork       Category = "network"
	CategoryTimeout       Category = "timeout"
	CategoryValidation    Category = "validation"
	CategoryAuth          Category = "authentication"
	CategoryRateLimit     Category = "rate-limit"
	CategoryResource      Category = "resource-exhaustion"
	CategoryDependency    Category = "dependency-unavailable"
	CategoryBusinessLogic Category = "business-logic"
	CategorySystem        Category = "system"
	CategoryUnknown       Category = "unknown"
)

// Severity grades how bad a failure is for the overall evaluation.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ErrorContext identifies where a failure happened.
type ErrorContext struct {
	TaskType    models.TaskType `json:"task_type"`
	ExecutionID string          `json:"execution_id"`
	Timestamp   time.Time       `json:"timestamp"`
}

// CategorizedError is the classifier's verdict on one failure. Created once
// per failure and immutable afterwards, except for the acknowledgement and
// resolution timestamps used by diagnostics.
type CategorizedError struct {
	ID              string             `json:"id"`
	Category        Category           `json:"category"`
	Severity        Severity           `json:"severity"`
	Retryable       bool               `json:"retryable"`
	Retry           models.RetryPolicy `json:"retry"`
	EscalationLevel int                `json:"escalation_level"`
	Context         ErrorContext       `json:"context"`
	Message         string             `json:"message"`
	AcknowledgedAt  *time.Time         `json:"acknowledged_at,omitempty"`
	ResolvedAt      *time.Time         `json:"resolved_at,omitempty"`
}

func (e *CategorizedError) Error() string {
	return string(e.Category) + ": " + e.Message
}
