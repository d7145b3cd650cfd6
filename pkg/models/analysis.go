package models

import "time"

// AnalysisStatus is the lifecycle state of an analysis run.
type AnalysisStatus string

const (
	StatusPending     AnalysisStatus = "pending"
	StatusUnpacking   AnalysisStatus = "unpacking"
	StatusParsing     AnalysisStatus = "parsing"
	StatusExtracting  AnalysisStatus = "extracting"
	StatusAggregating AnalysisStatus = "aggregating"
	StatusEvaluating  AnalysisStatus = "evaluating"
	StatusCompleted   AnalysisStatus = "completed"
	StatusFailed      AnalysisStatus = "failed"
	StatusCanceled    AnalysisStatus = "canceled"
)

// IsTerminal reports whether the status is absorbing: once stored,
// no further status transition is allowed.
func (s AnalysisStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCanceled
}

// Analysis is a single analysis run over one uploaded document set.
type Analysis struct {
	ID        string         `json:"id"`
	Status    AnalysisStatus `json:"status"`
	Model     string         `json:"model"`
	Error     string         `json:"error,omitempty"`
	Report    *Report        `json:"report,omitempty"`
	QA        *QAEvaluation  `json:"qa,omitempty"`
	Metrics   *Metrics       `json:"metrics,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// AnalysisUpdate carries the mutable fields of an analysis; nil fields
// are left untouched by the store.
type AnalysisUpdate struct {
	Status  *AnalysisStatus
	Error   *string
	Report  *Report
	QA      *QAEvaluation
	Metrics *Metrics
}

// AnalysisSummary is the compact listing form with the project
// summary lifted out of the stored report.
type AnalysisSummary struct {
	ID             string         `json:"id"`
	Status         AnalysisStatus `json:"status"`
	FileCount      int            `json:"file_count"`
	ProjectSummary *string        `json:"project_summary,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Document is one parsed source document attached to an analysis.
type Document struct {
	ID         string    `json:"id"`
	AnalysisID string    `json:"analysis_id"`
	Filename   string    `json:"filename"`
	Type       string    `json:"type"`
	Format     string    `json:"format"`
	Pages      int       `json:"pages"`
	SizeBytes  int64     `json:"size_bytes"`
	Content    string    `json:"content,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// ChatMessage is one turn of the post-analysis Q&A conversation.
type ChatMessage struct {
	ID         string    `json:"id"`
	AnalysisID string    `json:"analysis_id"`
	Role       string    `json:"role"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
}
