package aggregate

import (
	"errors"
	"fmt"
)

// ErrInsufficientResults indicates fewer valid results remained than the
// chosen strategy's minimum agent count after per-result validation.
var ErrInsufficientResults = errors.New("insufficient valid results")

// InsufficientResultsError reports how far short the valid result set fell.
type InsufficientResultsError struct {
	ExecutionID string
	Strategy    string
	Valid       int
	Required    int
}

func (e *InsufficientResultsError) Error() string {
	return fmt.Sprintf("aggregation for %s requires %d valid results under strategy %s, got %d",
		e.ExecutionID, e.Required, e.Strategy, e.Valid)
}

func (e *InsufficientResultsError) Unwrap() error {
	return ErrInsufficientResults
}

// IsInsufficientResults checks if an error indicates too few valid results.
func IsInsufficientResults(err error) bool {
	return errors.Is(err, ErrInsufficientResults)
}
