package models

import "time"

// Contribution is one task's share of an aggregated result.
type Contribution struct {
	TaskType    TaskType   `json:"task_type"`
	Weight      float64    `json:"weight"`
	Score       float64    `json:"score"`
	Confidence  Confidence `json:"confidence"`
	KeyInsights []string   `json:"key_insights,omitempty"`
}

// Summary groups insight strings into evaluation themes.
type Summary struct {
	Strengths       []string `json:"strengths,omitempty"`
	Weaknesses      []string `json:"weaknesses,omitempty"`
	Opportunities   []string `json:"opportunities,omitempty"`
	Risks           []string `json:"risks,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
}

// AggregationMetadata describes how much of the workflow fed the result.
type AggregationMetadata struct {
	TotalAgents      int        `json:"total_agents"`
	SucceededAgents  int        `json:"succeeded_agents"`
	FailedAgents     []TaskType `json:"failed_agents,omitempty"`
	ReliabilityScore float64    `json:"reliability_score"`
	Strategy         string     `json:"strategy"`
}

// AggregatedResult is the single merged outcome of a finished workflow.
// Created once per completed execution; immutable.
type AggregatedResult struct {
	ExecutionID   string              `json:"execution_id"`
	OverallScore  float64             `json:"overall_score"`
	Confidence    Confidence          `json:"confidence"`
	Consensus     float64             `json:"consensus"`
	Summary       Summary             `json:"summary"`
	Contributions []Contribution      `json:"contributions"`
	Metadata      AggregationMetadata `json:"metadata"`
	CreatedAt     time.Time           `json:"created_at"`
}
