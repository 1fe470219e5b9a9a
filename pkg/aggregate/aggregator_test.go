package aggregate

import (
	"log/slog"
	"os"
	"testing"

	"github.com/evalforge/evalforge/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAggregator() *Aggregator {
	return NewAggregator(slog.New(slog.NewTextHandler(os.Stdout, nil)))
}

func result(taskType models.TaskType, score float64, confidence models.Confidence, insights ...string) TaskResult {
	if len(insights) == 0 {
		insights = []string{"insight"}
	}

	return TaskResult{
		TaskType: taskType,
		Response: &models.AgentResponse{
			Score:      score,
			Insights:   insights,
			Confidence: confidence,
			Metadata:   &models.AgentMetadata{ProcessingTimeMs: 10},
		},
	}
}

func TestAggregate_WeightedAverageEqualWeights(t *testing.T) {
	aggregator := newTestAggregator()

	aggregated, err := aggregator.Aggregate("exec-1", []TaskResult{
		result(models.TaskMarketResearch, 80, models.ConfidenceHigh),
		result(models.TaskFinancialAnalysis, 70, models.ConfidenceHigh),
		result(models.TaskTeamEvaluation, 90, models.ConfidenceHigh),
	}, nil, StrategyWeightedAverage)
	require.NoError(t, err)

	assert.InDelta(t, 80, aggregated.OverallScore, 0.001)
	assert.Len(t, aggregated.Contributions, 3)
	assert.Equal(t, 3, aggregated.Metadata.SucceededAgents)
	assert.InDelta(t, 100, aggregated.Metadata.ReliabilityScore, 0.001)
	assert.Equal(t, StrategyWeightedAverage, aggregated.Metadata.Strategy)
}

func TestAggregate_ConsensusReflectsAgreement(t *testing.T) {
	aggregator := newTestAggregator()

	agreeing, err := aggregator.Aggregate("exec-1", []TaskResult{
		result(models.TaskMarketResearch, 80, models.ConfidenceHigh),
		result(models.TaskFinancialAnalysis, 81, models.ConfidenceHigh),
		result(models.TaskTeamEvaluation, 79, models.ConfidenceHigh),
	}, nil, StrategyWeightedAverage)
	require.NoError(t, err)

	disagreeing, err := aggregator.Aggregate("exec-2", []TaskResult{
		result(models.TaskMarketResearch, 10, models.ConfidenceHigh),
		result(models.TaskFinancialAnalysis, 90, models.ConfidenceHigh),
		result(models.TaskTeamEvaluation, 50, models.ConfidenceHigh),
	}, nil, StrategyWeightedAverage)
	require.NoError(t, err)

	assert.Greater(t, agreeing.Consensus, disagreeing.Consensus)
	assert.Equal(t, models.ConfidenceHigh, agreeing.Confidence)
	assert.NotEqual(t, models.ConfidenceHigh, disagreeing.Confidence)
}

func TestAggregate_ConservativeStrategyDiscountsScores(t *testing.T) {
	aggregator := newTestAggregator()

	aggregated, err := aggregator.Aggregate("exec-1", []TaskResult{
		result(models.TaskMarketResearch, 80, models.ConfidenceHigh),
		result(models.TaskFinancialAnalysis, 80, models.ConfidenceHigh),
		result(models.TaskTeamEvaluation, 80, models.ConfidenceHigh),
	}, nil, StrategyConservative)
	require.NoError(t, err)

	assert.InDelta(t, 72, aggregated.OverallScore, 0.001)
}

func TestAggregate_OptimisticStrategyCapsAtHundred(t *testing.T) {
	aggregator := newTestAggregator()

	aggregated, err := aggregator.Aggregate("exec-1", []TaskResult{
		result(models.TaskMarketResearch, 95, models.ConfidenceHigh),
		result(models.TaskFinancialAnalysis, 95, models.ConfidenceHigh),
	}, nil, StrategyOptimistic)
	require.NoError(t, err)

	assert.InDelta(t, 100, aggregated.OverallScore, 0.001)
}

func TestAggregate_ConservativeRequiresThreeAgents(t *testing.T) {
	aggregator := newTestAggregator()

	_, err := aggregator.Aggregate("exec-1", []TaskResult{
		result(models.TaskMarketResearch, 80, models.ConfidenceHigh),
		result(models.TaskFinancialAnalysis, 80, models.ConfidenceHigh),
	}, nil, StrategyConservative)

	require.Error(t, err)
	assert.True(t, IsInsufficientResults(err))

	var insErr *InsufficientResultsError

	require.ErrorAs(t, err, &insErr)
	assert.Equal(t, 2, insErr.Valid)
	assert.Equal(t, 3, insErr.Required)
}

func TestAggregate_InvalidResultsAreExcludedNotFatal(t *testing.T) {
	aggregator := newTestAggregator()

	invalid := TaskResult{
		TaskType: models.TaskRiskAssessment,
		Response: &models.AgentResponse{
			Score:      150,
			Insights:   []string{"x"},
			Confidence: models.ConfidenceLow,
			Metadata:   &models.AgentMetadata{},
		},
	}

	aggregated, err := aggregator.Aggregate("exec-1", []TaskResult{
		result(models.TaskMarketResearch, 60, models.ConfidenceMedium),
		result(models.TaskFinancialAnalysis, 70, models.ConfidenceMedium),
		invalid,
	}, nil, StrategyWeightedAverage)
	require.NoError(t, err)

	assert.Equal(t, 2, aggregated.Metadata.SucceededAgents)
	assert.InDelta(t, 65, aggregated.OverallScore, 0.001)
}

func TestAggregate_DroppingBelowMinimumFails(t *testing.T) {
	aggregator := newTestAggregator()

	missingMetadata := TaskResult{
		TaskType: models.TaskFinancialAnalysis,
		Response: &models.AgentResponse{
			Score:      70,
			Insights:   []string{"x"},
			Confidence: models.ConfidenceLow,
		},
	}

	_, err := aggregator.Aggregate("exec-1", []TaskResult{
		result(models.TaskMarketResearch, 60, models.ConfidenceMedium),
		missingMetadata,
	}, nil, StrategyWeightedAverage)

	require.Error(t, err)
	assert.True(t, IsInsufficientResults(err))
}

func TestAggregate_ReliabilityCountsFailedAgents(t *testing.T) {
	aggregator := newTestAggregator()

	aggregated, err := aggregator.Aggregate("exec-1", []TaskResult{
		result(models.TaskMarketResearch, 60, models.ConfidenceMedium),
		result(models.TaskFinancialAnalysis, 70, models.ConfidenceMedium),
		result(models.TaskTeamEvaluation, 80, models.ConfidenceMedium),
	}, []models.TaskType{models.TaskRiskAssessment}, StrategyWeightedAverage)
	require.NoError(t, err)

	assert.Equal(t, 4, aggregated.Metadata.TotalAgents)
	assert.InDelta(t, 75, aggregated.Metadata.ReliabilityScore, 0.001)
	assert.Equal(t, []models.TaskType{models.TaskRiskAssessment}, aggregated.Metadata.FailedAgents)
}

func TestAggregate_DeterministicRegardlessOfInputOrder(t *testing.T) {
	aggregator := newTestAggregator()

	forward := []TaskResult{
		result(models.TaskMarketResearch, 55, models.ConfidenceHigh, "strong brand"),
		result(models.TaskFinancialAnalysis, 65, models.ConfidenceMedium, "limited runway"),
		result(models.TaskTeamEvaluation, 75, models.ConfidenceLow, "proven leadership"),
	}

	reversed := []TaskResult{forward[2], forward[1], forward[0]}

	first, err := aggregator.Aggregate("exec-1", forward, nil, StrategyWeightedAverage)
	require.NoError(t, err)

	second, err := aggregator.Aggregate("exec-1", reversed, nil, StrategyWeightedAverage)
	require.NoError(t, err)

	assert.Equal(t, first.OverallScore, second.OverallScore)
	assert.Equal(t, first.Consensus, second.Consensus)
	assert.Equal(t, first.Contributions, second.Contributions)
	assert.Equal(t, first.Summary, second.Summary)
}

func TestAggregate_UnknownStrategyFallsBack(t *testing.T) {
	aggregator := newTestAggregator()

	aggregated, err := aggregator.Aggregate("exec-1", []TaskResult{
		result(models.TaskMarketResearch, 80, models.ConfidenceHigh),
		result(models.TaskFinancialAnalysis, 80, models.ConfidenceHigh),
	}, nil, "does-not-exist")
	require.NoError(t, err)

	assert.Equal(t, StrategyWeightedAverage, aggregated.Metadata.Strategy)
}

func TestAggregate_ContributionsKeepTopThreeInsights(t *testing.T) {
	aggregator := newTestAggregator()

	aggregated, err := aggregator.Aggregate("exec-1", []TaskResult{
		result(models.TaskMarketResearch, 80, models.ConfidenceHigh, "one", "two", "three", "four"),
		result(models.TaskFinancialAnalysis, 80, models.ConfidenceHigh),
	}, nil, StrategyWeightedAverage)
	require.NoError(t, err)

	require.Len(t, aggregated.Contributions, 2)
	assert.Equal(t, []string{"one", "two", "three"}, aggregated.Contributions[0].KeyInsights)
}

func TestVarianceConsensus(t *testing.T) {
	assert.InDelta(t, 100, VarianceConsensus([]float64{80}), 0.001)
	assert.InDelta(t, 100, VarianceConsensus([]float64{80, 80, 80}), 0.001)
	// Scores 40 and 80 have stdDev 20, so consensus is 100-20/50*100=60.
	assert.InDelta(t, 60, VarianceConsensus([]float64{40, 80}), 0.001)
}

func TestRangeConsensus(t *testing.T) {
	assert.InDelta(t, 100, RangeConsensus([]float64{80}), 0.001)
	assert.InDelta(t, 60, RangeConsensus([]float64{40, 80}), 0.001)
	assert.InDelta(t, 0, RangeConsensus([]float64{0, 100}), 0.001)
}

func TestSummarize_BucketsInsightsByTheme(t *testing.T) {
	results := []TaskResult{
		result(models.TaskMarketResearch, 80, models.ConfidenceHigh,
			"Strong brand recognition in the mid-market",
			"Limited presence in enterprise accounts",
			"Untapped growth potential in APAC"),
		result(models.TaskRiskAssessment, 60, models.ConfidenceMedium,
			"High churn risk among early customers",
			"Recommend diversifying the supplier base"),
	}

	summary := Summarize(results)

	assert.Contains(t, summary.Strengths, "Strong brand recognition in the mid-market")
	assert.Contains(t, summary.Weaknesses, "Limited presence in enterprise accounts")
	assert.Contains(t, summary.Opportunities, "Untapped growth potential in APAC")
	assert.Contains(t, summary.Risks, "High churn risk among early customers")
	assert.Contains(t, summary.Recommendations, "Recommend diversifying the supplier base")
}

func TestSummarize_CapsEachBucket(t *testing.T) {
	insights := make([]string, 8)
	for i := range insights {
		insights[i] = "strong point"
	}

	summary := Summarize([]TaskResult{
		result(models.TaskMarketResearch, 80, models.ConfidenceHigh, insights...),
	})

	assert.Len(t, summary.Strengths, 5)
}
