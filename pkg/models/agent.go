package models

import "time"

// Confidence is an agent's self-reported confidence in its own analysis.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// AgentRequest is the typed unit of work handed to an analysis agent.
type AgentRequest struct {
	Subject      string         `json:"subject"       validate:"required"`
	AnalysisType TaskType       `json:"analysis_type" validate:"required"`
	Options      map[string]any `json:"options,omitempty"`
	SharedData   map[string]any `json:"shared_data,omitempty"`
}

// AgentContext identifies the execution on whose behalf an agent runs.
type AgentContext struct {
	ExecutionID   string    `json:"execution_id"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// AgentMetadata is the bookkeeping block every agent response must carry.
type AgentMetadata struct {
	ProcessingTimeMs int64          `json:"processing_time_ms"`
	RetryCount       int            `json:"retry_count"`
	Extra            map[string]any `json:"extra,omitempty"`
}

// AgentResponse is the typed result of one analysis agent. The execution
// service validates the shape before the result reaches the aggregator.
type AgentResponse struct {
	Score      float64        `json:"score"`
	Insights   []string       `json:"insights"`
	Confidence Confidence     `json:"confidence"`
	Metadata   *AgentMetadata `json:"metadata"`
	RawData    map[string]any `json:"raw_data,omitempty"`
}
