// Package models defines the core domain models for multi-agent evaluation workflows.
package models

// TaskType identifies a kind of analysis agent. The catalog is fixed at
// deploy time; workflow definitions may only reference types listed here.
type TaskType string

const (
	TaskMarketResearch      TaskType = "market-research"
	TaskCompetitiveAnalysis TaskType = "competitive-analysis"
	TaskCustomerSegments    TaskType = "customer-segmentation"
	TaskFinancialAnalysis   TaskType = "financial-analysis"
	TaskRiskAssessment      TaskType = "risk-assessment"
	TaskTeamEvaluation      TaskType = "team-evaluation"
	TaskProductAnalysis     TaskType = "product-analysis"
	TaskSynthesis           TaskType = "synthesis"
)

// KnownTaskTypes returns the deploy-time catalog.
func KnownTaskTypes() []TaskType {
	return []TaskType{
		TaskMarketResearch,
		TaskCompetitiveAnalysis,
		TaskCustomerSegments,
		TaskFinancialAnalysis,
		TaskRiskAssessment,
		TaskTeamEvaluation,
		TaskProductAnalysis,
		TaskSynthesis,
	}
}

// IsKnownTaskType reports whether t is part of the catalog.
func IsKnownTaskType(t TaskType) bool {
	for _, known := range KnownTaskTypes() {
		if known == t {
			return true
		}
	}

	return false
}
