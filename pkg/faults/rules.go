package faults

import (
	"strings"
	"time"

	"github.com/evalforge/evalforge/pkg/models"
)

// Rule maps raw error text to a taxonomy bucket and retry policy. Rules are
// evaluated in order, first match wins; the catch-all unknown rule is last.
type Rule struct {
	Name          string
	Patterns      []string
	Category      Category
	Severity      Severity
	Retryable     bool
	Retry         models.RetryPolicy
	Compensations []string
}

// Matches reports whether any pattern occurs in the error text
// (case-insensitive substring match).
func (r Rule) Matches(message string) bool {
	if len(r.Patterns) == 0 {
		return true
	}

	lowered := strings.ToLower(message)

	for _, pattern := range r.Patterns {
		if strings.Contains(lowered, pattern) {
			return true
		}
	}

	return false
}

// DefaultRules is the deploy-time taxonomy: category, severity, and retry
// policy per failure family, ordered most-specific first.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:      "rate-limit",
			Patterns:  []string{"rate limit", "too many requests", "429", "quota exceeded"},
			Category:  CategoryRateLimit,
			Severity:  SeverityMedium,
			Retryable: true,
			Retry: models.RetryPolicy{
				MaxRetries: 10,
				Backoff:    models.BackoffExponential,
				BaseDelay:  5 * time.Second,
				MaxDelay:   5 * time.Minute,
				Jitter:     true,
			},
		},
		{
			Name:      "timeout",
			Patterns:  []string{"timeout", "timed out", "deadline exceeded"},
			Category:  CategoryTimeout,
			Severity:  SeverityMedium,
			Retryable: true,
			Retry: models.RetryPolicy{
				MaxRetries: 3,
				Backoff:    models.BackoffExponential,
				BaseDelay:  time.Second,
				MaxDelay:   30 * time.Second,
				Jitter:     true,
			},
		},
		{
			Name:      "network",
			Patterns:  []string{"connection refused", "connection reset", "no such host", "network", "broken pipe", "eof"},
			Category:  CategoryNetwork,
			Severity:  SeverityMedium,
			Retryable: true,
			Retry: models.RetryPolicy{
				MaxRetries: 5,
				Backoff:    models.BackoffExponential,
				BaseDelay:  time.Second,
				MaxDelay:   time.Minute,
				Jitter:     true,
			},
		},
		{
			Name:          "dependency-unavailable",
			Patterns:      []string{"unavailable", "service down", "503", "dependency"},
			Category:      CategoryDependency,
			Severity:      SeverityHigh,
			Retryable:     true,
			Compensations: []string{"use-fallback-data"},
			Retry: models.RetryPolicy{
				MaxRetries: 3,
				Backoff:    models.BackoffLinear,
				BaseDelay:  2 * time.Second,
				MaxDelay:   time.Minute,
			},
		},
		{
			Name:          "authentication",
			Patterns:      []string{"unauthorized", "forbidden", "401", "403", "invalid credentials", "authentication"},
			Category:      CategoryAuth,
			Severity:      SeverityHigh,
			Retryable:     false,
			Compensations: []string{"escalate"},
		},
		{
			Name:          "resource-exhaustion",
			Patterns:      []string{"out of memory", "resource exhausted", "disk full", "no space"},
			Category:      CategoryResource,
			Severity:      SeverityCritical,
			Retryable:     false,
			Compensations: []string{"cleanup-resources", "escalate"},
		},
		{
			Name:      "validation",
			Patterns:  []string{"validation", "invalid response", "malformed", "schema"},
			Category:  CategoryValidation,
			Severity:  SeverityLow,
			Retryable: false,
		},
		{
			Name:      "unknown",
			Category:  CategoryUnknown,
			Severity:  SeverityMedium,
			Retryable: true,
			Retry: models.RetryPolicy{
				MaxRetries: 2,
				Backoff:    models.BackoffFixed,
				BaseDelay:  2 * time.Second,
				MaxDelay:   2 * time.Second,
			},
		},
	}
}
