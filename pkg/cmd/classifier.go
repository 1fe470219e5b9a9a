package cmd

import (
	"log/slog"

	"github.com/evalforge/evalforge/pkg/faults"
)

// NewClassifier builds the error classifier with the default breaker
// configuration, failure history, and the stock compensation action set
// registered, so every action named by the default rules has a handler.
func NewClassifier(logger *slog.Logger) *faults.Classifier {
	compensations := faults.NewCompensationRegistry(logger)
	for _, action := range faults.DefaultCompensations(logger) {
		compensations.Register(action)
	}

	return faults.NewClassifier(
		logger,
		faults.NewBreakerRegistry(faults.DefaultBreakerConfig(), faults.DefaultSystemBreakerConfig()),
		faults.NewHistory(faults.DefaultHistoryCapacity),
		compensations,
	)
}
