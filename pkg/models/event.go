package models

import "time"

// Event is one durable progress record in an analysis event log.
// Index is assigned by the store: dense, monotonic, starting at 0
// per analysis.
type Event struct {
	AnalysisID string         `json:"analysis_id"`
	Index      int64          `json:"index"`
	Type       string         `json:"type"`
	Stage      string         `json:"stage,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Durable event types emitted by the pipeline.
const (
	EventFileParsed           = "file_parsed"
	EventExtractionStarted    = "extraction_started"
	EventExtractionCompleted  = "extraction_completed"
	EventAggregationStarted   = "aggregation_started"
	EventAggregationCompleted = "aggregation_completed"
	EventEvaluationStarted    = "evaluation_started"
	EventEvaluationCompleted  = "evaluation_completed"
	EventMetricsUpdate        = "metrics_update"
	EventError                = "error"
)

// Metrics accumulates token and cost accounting across a run.
type Metrics struct {
	ExtractionInputTokens   int64   `json:"extraction_input_tokens"`
	ExtractionOutputTokens  int64   `json:"extraction_output_tokens"`
	AggregationInputTokens  int64   `json:"aggregation_input_tokens"`
	AggregationOutputTokens int64   `json:"aggregation_output_tokens"`
	EvaluationInputTokens   int64   `json:"evaluation_input_tokens"`
	EvaluationOutputTokens  int64   `json:"evaluation_output_tokens"`
	TotalFiles              int     `json:"total_files"`
	TotalPages              int     `json:"total_pages"`
	ElapsedSeconds          float64 `json:"elapsed_seconds"`
	EstimatedCostUSD        float64 `json:"estimated_cost_usd"`
	ModelUsed               string  `json:"model_used"`
}

// TotalInputTokens sums input tokens across all stages.
func (m *Metrics) TotalInputTokens() int64 {
	return m.ExtractionInputTokens + m.AggregationInputTokens + m.EvaluationInputTokens
}

// TotalOutputTokens sums output tokens across all stages.
func (m *Metrics) TotalOutputTokens() int64 {
	return m.ExtractionOutputTokens + m.AggregationOutputTokens + m.EvaluationOutputTokens
}
