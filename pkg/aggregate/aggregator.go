package aggregate

import (
	"log/slog"
	"sort"
	"time"

	"github.com/evalforge/evalforge/pkg/models"
)

// TaskResult pairs one finished task with its response.
type TaskResult struct {
	TaskType models.TaskType
	Response *models.AgentResponse
}

// Aggregator combines per-task results into a single AggregatedResult using
// a named strategy. Aggregation is deterministic for a fixed input set.
type Aggregator struct {
	strategies map[string]Strategy
	logger     *slog.Logger
}

func NewAggregator(logger *slog.Logger) *Aggregator {
	return &Aggregator{
		strategies: DefaultStrategies(),
		logger:     logger.With("module", "result_aggregator"),
	}
}

// RegisterStrategy adds or replaces a strategy by name.
func (a *Aggregator) RegisterStrategy(strategy Strategy) {
	a.strategies[strategy.Name] = strategy
}

// Aggregate merges the results under the named strategy. Invalid results are
// logged and excluded rather than failing the whole aggregation; only
// dropping below the strategy's minimum agent count is an error.
func (a *Aggregator) Aggregate(executionID string, results []TaskResult, failed []models.TaskType, strategyName string) (*models.AggregatedResult, error) {
	if strategyName == "" {
		strategyName = StrategyWeightedAverage
	}

	strategy, ok := a.strategies[strategyName]
	if !ok {
		a.logger.Warn("Unknown aggregation strategy, falling back",
			"strategy", strategyName,
			"fallback", StrategyWeightedAverage)

		strategy = a.strategies[StrategyWeightedAverage]
	}

	valid := a.filterValid(executionID, results)

	if len(valid) < strategy.MinAgents {
		return nil, &InsufficientResultsError{
			ExecutionID: executionID,
			Strategy:    strategy.Name,
			Valid:       len(valid),
			Required:    strategy.MinAgents,
		}
	}

	// Deterministic ordering regardless of map iteration upstream.
	sort.Slice(valid, func(i, j int) bool { return valid[i].TaskType < valid[j].TaskType })

	var (
		weightedSum   float64
		weightTotal   float64
		rawSum        float64
		highConfident int
		scores        []float64
		contributions []models.Contribution
	)

	for _, result := range valid {
		weight := strategy.WeightFor(result.TaskType)
		transformed := strategy.Transform(result.Response.Score)

		weightedSum += transformed * weight
		weightTotal += weight
		rawSum += result.Response.Score
		scores = append(scores, transformed)

		if result.Response.Confidence == models.ConfidenceHigh {
			highConfident++
		}

		contributions = append(contributions, models.Contribution{
			TaskType:    result.TaskType,
			Weight:      weight,
			Score:       result.Response.Score,
			Confidence:  result.Response.Confidence,
			KeyInsights: topInsights(result.Response.Insights, 3),
		})
	}

	overall := weightedSum / weightTotal
	consensus := strategy.Consensus(scores)
	avgScore := rawSum / float64(len(valid))
	highFraction := float64(highConfident) / float64(len(valid))

	total := len(valid) + len(failed)
	reliability := float64(len(valid)) / float64(total) * 100

	aggregated := &models.AggregatedResult{
		ExecutionID:   executionID,
		OverallScore:  overall,
		Confidence:    strategy.Label(consensus, avgScore, highFraction),
		Consensus:     consensus,
		Summary:       Summarize(valid),
		Contributions: contributions,
		Metadata: models.AggregationMetadata{
			TotalAgents:      total,
			SucceededAgents:  len(valid),
			FailedAgents:     failed,
			ReliabilityScore: reliability,
			Strategy:         strategy.Name,
		},
		CreatedAt: time.Now(),
	}

	a.logger.Info("Aggregated workflow results",
		"execution_id", executionID,
		"strategy", strategy.Name,
		"overall_score", overall,
		"consensus", consensus,
		"confidence", aggregated.Confidence,
		"succeeded_agents", len(valid),
		"failed_agents", len(failed))

	return aggregated, nil
}

// filterValid drops malformed results: score out of range, missing insights,
// missing confidence, or incomplete metadata. Violations are logged only.
func (a *Aggregator) filterValid(executionID string, results []TaskResult) []TaskResult {
	valid := make([]TaskResult, 0, len(results))

	for _, result := range results {
		reason := validationProblem(result.Response)
		if reason != "" {
			a.logger.Warn("Excluding invalid task result from aggregation",
				"execution_id", executionID,
				"task_type", result.TaskType,
				"reason", reason)

			continue
		}

		valid = append(valid, result)
	}

	return valid
}

func validationProblem(response *models.AgentResponse) string {
	switch {
	case response == nil:
		return "missing response"
	case response.Score < 0 || response.Score > 100:
		return "score out of range"
	case len(response.Insights) == 0:
		return "no insights"
	case response.Confidence != models.ConfidenceHigh &&
		response.Confidence != models.ConfidenceMedium &&
		response.Confidence != models.ConfidenceLow:
		return "invalid confidence"
	case response.Metadata == nil:
		return "missing metadata"
	}

	return ""
}

func topInsights(insights []string, n int) []string {
	if len(insights) <= n {
		return insights
	}

	return insights[:n]
}
