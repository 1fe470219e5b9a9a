// Package aggregate merges per-task agent results into one overall
// evaluation with a consensus measure and confidence label.
package aggregate

import (
	"math"

	"github.com/evalforge/evalforge/pkg/models"
)

// maxStdDev is the largest possible standard deviation of scores in [0,100].
const maxStdDev = 50.0

// maxRange is the largest possible spread of scores in [0,100].
const maxRange = 100.0

// Strategy is one pluggable weighting scheme. Strategies differ only in
// their weight table, scoring transform, consensus formula, minimum agent
// count, and confidence thresholds.
type Strategy struct {
	Name      string
	Weights   map[models.TaskType]float64
	MinAgents int
	Transform func(score float64) float64
	Consensus func(scores []float64) float64
	Label     func(consensus, avgScore, highFraction float64) models.Confidence
}

// WeightFor returns the task's weight, defaulting to 1 for unlisted types.
func (s Strategy) WeightFor(taskType models.TaskType) float64 {
	if weight, ok := s.Weights[taskType]; ok {
		return weight
	}

	return 1
}

// VarianceConsensus maps score spread to agreement: 100 - stdDev/maxStdDev*100.
func VarianceConsensus(scores []float64) float64 {
	if len(scores) < 2 {
		return 100
	}

	var sum float64
	for _, score := range scores {
		sum += score
	}

	mean := sum / float64(len(scores))

	var variance float64
	for _, score := range scores {
		variance += (score - mean) * (score - mean)
	}

	variance /= float64(len(scores))

	consensus := 100 - math.Sqrt(variance)/maxStdDev*100
	if consensus < 0 {
		consensus = 0
	}

	return consensus
}

// RangeConsensus maps the min-max spread to agreement: 100 - range/maxRange*100.
func RangeConsensus(scores []float64) float64 {
	if len(scores) < 2 {
		return 100
	}

	low, high := scores[0], scores[0]

	for _, score := range scores[1:] {
		if score < low {
			low = score
		}

		if score > high {
			high = score
		}
	}

	consensus := 100 - (high-low)/maxRange*100
	if consensus < 0 {
		consensus = 0
	}

	return consensus
}

func defaultLabel(consensus, avgScore, highFraction float64) models.Confidence {
	switch {
	case consensus >= 75 && avgScore >= 70 && highFraction >= 0.5:
		return models.ConfidenceHigh
	case consensus < 50 || avgScore < 40:
		return models.ConfidenceLow
	default:
		return models.ConfidenceMedium
	}
}

// DefaultStrategies returns the built-in strategy set, keyed by name.
func DefaultStrategies() map[string]Strategy {
	weights := map[models.TaskType]float64{
		models.TaskMarketResearch:      1.0,
		models.TaskCompetitiveAnalysis: 1.0,
		models.TaskCustomerSegments:    1.0,
		models.TaskFinancialAnalysis:   1.0,
		models.TaskRiskAssessment:      1.0,
		models.TaskTeamEvaluation:      1.0,
		models.TaskProductAnalysis:     1.0,
		models.TaskSynthesis:           1.0,
	}

	return map[string]Strategy{
		StrategyWeightedAverage: {
			Name:      StrategyWeightedAverage,
			Weights:   weights,
			MinAgents: 2,
			Transform: func(score float64) float64 { return score },
			Consensus: VarianceConsensus,
			Label:     defaultLabel,
		},
		StrategyConservative: {
			Name:      StrategyConservative,
			Weights:   weights,
			MinAgents: 3,
			Transform: func(score float64) float64 {
				score *= 0.9
				if score < 0 {
					score = 0
				}

				return score
			},
			Consensus: RangeConsensus,
			Label:     defaultLabel,
		},
		StrategyOptimistic: {
			Name:      StrategyOptimistic,
			Weights:   weights,
			MinAgents: 2,
			Transform: func(score float64) float64 {
				score *= 1.1
				if score > 100 {
					score = 100
				}

				return score
			},
			Consensus: VarianceConsensus,
			Label:     defaultLabel,
		},
	}
}

// Built-in strategy names.
const (
	StrategyWeightedAverage = "weighted-average"
	StrategyConservative    = "conservative"
	StrategyOptimistic      = "optimistic"
)
