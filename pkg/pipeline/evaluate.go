package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tenderlens/tenderlens/pkg/llm"
	"github.com/tenderlens/tenderlens/pkg/models"
	"github.com/tenderlens/tenderlens/pkg/parse"
	"github.com/tenderlens/tenderlens/pkg/prompts"
)

// evaluate runs the QA audit over the aggregated report: a strict
// completeness score plus concrete gaps, conflicts, and suggestions.
func (p *Pipeline) evaluate(ctx context.Context, report *models.Report, docs []parse.Document) (*models.QAEvaluation, llm.Usage, error) {
	p.logger.Info("Evaluating report", "documents", len(docs))

	reportJSON, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, llm.Usage{}, fmt.Errorf("encode report: %w", err)
	}

	raw, usage, err := p.gateway.CompleteStructuredStreaming(ctx, llm.StructuredRequest{
		System:     prompts.EvaluationSystem,
		User:       prompts.EvaluationUser(string(reportJSON), documentList(docs)),
		Spec:       p.specs.QA,
		Model:      p.model,
		Thinking:   llm.ThinkingMedium,
		OnThinking: func(text string) { p.pushThinking("evaluation", text) },
	})
	if err != nil {
		return nil, usage, err
	}

	var qa models.QAEvaluation
	if err := json.Unmarshal(raw, &qa); err != nil {
		return nil, usage, fmt.Errorf("decode qa evaluation: %w", err)
	}

	p.logger.Info("Evaluation complete",
		"completeness_score", qa.CompletenessScore,
		"missing_fields", len(qa.MissingFields),
		"conflicts", len(qa.Conflicts),
		"suggestions", len(qa.Suggestions))
	return &qa, usage, nil
}

// documentList renders the numbered source document list shown to the
// evaluator.
func documentList(docs []parse.Document) string {
	if len(docs) == 0 {
		return "(nėra dokumentų)"
	}
	lines := make([]string, 0, len(docs))
	for i, doc := range docs {
		pages := ""
		if doc.Pages > 0 {
			pages = fmt.Sprintf(", %d psl.", doc.Pages)
		}
		lines = append(lines, fmt.Sprintf("%d. %s (%s%s)", i+1, doc.Filename, doc.Type, pages))
	}
	return strings.Join(lines, "\n")
}
