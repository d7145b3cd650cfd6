package events

// FileParsedPayload is the payload for file_parsed events.
// Published once per document when parsing finishes.
type FileParsedPayload struct {
	Filename      string `json:"filename"`
	Type          string `json:"type"`   // classification: invitation, technical_spec, ...
	Format        string `json:"format"` // source format: pdf, docx, ...
	Pages         int    `json:"pages"`
	SizeKB        int64  `json:"size_kb"`
	TokenEstimate int    `json:"token_estimate"`
}

// ExtractionItemPayload is the payload for extraction_started and
// extraction_completed events, one pair per document. Token counts are
// present only on completion.
type ExtractionItemPayload struct {
	Filename  string `json:"filename"`
	Index     int    `json:"index"` // 1-based position in the document set
	Total     int    `json:"total"`
	TokensIn  int64  `json:"tokens_in,omitempty"`
	TokensOut int64  `json:"tokens_out,omitempty"`
}

// StagePayload is the payload for aggregation and evaluation
// start/completion events.
type StagePayload struct {
	DocumentCount     int      `json:"document_count,omitempty"`
	CompletenessScore *float64 `json:"completeness_score,omitempty"`
}

// ErrorPayload is the payload for error events. Filename is set for
// per-document failures and empty for stage-level ones.
type ErrorPayload struct {
	Stage    string `json:"stage"`
	Message  string `json:"message"`
	Filename string `json:"filename,omitempty"`
}
