package models

// Report is the structured procurement report produced by the
// extraction and aggregation stages. Optional scalar fields are
// pointers: null means "not found in the documents" and must survive
// the merge unchanged.
type Report struct {
	ProjectSummary            *string                    `json:"project_summary"`
	ProcuringOrganization     *ProcuringOrganization     `json:"procuring_organization"`
	ProcurementType           *string                    `json:"procurement_type"`
	EstimatedValue            *EstimatedValue            `json:"estimated_value"`
	Deadlines                 *Deadlines                 `json:"deadlines"`
	KeyRequirements           []string                   `json:"key_requirements"`
	QualificationRequirements *QualificationRequirements `json:"qualification_requirements"`
	EvaluationCriteria        []EvaluationCriterion      `json:"evaluation_criteria"`
	RestrictionsProhibitions  []string                   `json:"restrictions_and_prohibitions"`
	LotStructure              []Lot                      `json:"lot_structure"`
	SpecialConditions         []string                   `json:"special_conditions"`
	SourceDocuments           []SourceDocument           `json:"source_documents"`
	ConfidenceNotes           []string                   `json:"confidence_notes"`
}

// ProcuringOrganization identifies the contracting authority.
type ProcuringOrganization struct {
	Name    *string `json:"name"`
	Code    *string `json:"code"`
	Contact *string `json:"contact"`
}

// EstimatedValue is the procurement value with VAT breakdown.
type EstimatedValue struct {
	Amount      *float64 `json:"amount"`
	Currency    string   `json:"currency"`
	VATIncluded *bool    `json:"vat_included"`
	VATAmount   *float64 `json:"vat_amount"`
}

// Deadlines groups the procurement calendar dates.
type Deadlines struct {
	SubmissionDeadline *string `json:"submission_deadline"`
	QuestionsDeadline  *string `json:"questions_deadline"`
	ContractDuration   *string `json:"contract_duration"`
	ExecutionDeadline  *string `json:"execution_deadline"`
}

// QualificationRequirements groups supplier qualification conditions.
type QualificationRequirements struct {
	Financial  []string `json:"financial"`
	Technical  []string `json:"technical"`
	Experience []string `json:"experience"`
	Other      []string `json:"other"`
}

// EvaluationCriterion is a single award criterion with its weight.
type EvaluationCriterion struct {
	Criterion     string   `json:"criterion"`
	WeightPercent *float64 `json:"weight_percent"`
	Description   *string  `json:"description"`
}

// Lot describes one lot of a multi-lot procurement.
type Lot struct {
	LotNumber      int      `json:"lot_number"`
	Description    string   `json:"description"`
	EstimatedValue *float64 `json:"estimated_value"`
}

// SourceDocument records one analyzed file referenced by the report.
type SourceDocument struct {
	Filename string `json:"filename"`
	Type     string `json:"type"`
	Pages    *int   `json:"pages"`
}

// QAEvaluation is the self-assessment produced by the evaluation stage.
type QAEvaluation struct {
	CompletenessScore float64  `json:"completeness_score"`
	MissingFields     []string `json:"missing_fields"`
	Conflicts         []string `json:"conflicts"`
	Suggestions       []string `json:"suggestions"`
}
