package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tenderlens/tenderlens/pkg/chunk"
	"github.com/tenderlens/tenderlens/pkg/llm"
	"github.com/tenderlens/tenderlens/pkg/models"
	"github.com/tenderlens/tenderlens/pkg/prompts"
)

// aggregatePromptOverhead reserves room for the aggregation prompt
// template around the per-document payloads.
const aggregatePromptOverhead = 2048

// aggregate merges the per-document facts into one report via a single
// LLM call. When the combined payloads exceed the size envelope, each
// document's facts are shrunk to an equal share of the budget first.
func (p *Pipeline) aggregate(ctx context.Context, extractions []extraction) (*models.Report, llm.Usage, error) {
	p.logger.Info("Aggregating extraction results", "documents", len(extractions))

	factsList := make([]map[string]any, len(extractions))
	for i, ex := range extractions {
		factsList[i] = ex.facts
	}

	blocks, err := factBlocks(extractions, factsList)
	if err != nil {
		return nil, llm.Usage{}, err
	}

	maxChars := chunk.MaxChars(p.cfg.ContextLength)
	if len(blocks) > maxChars {
		budget := maxChars - aggregatePromptOverhead
		p.logger.Warn("Aggregation payload over budget, shrinking",
			"chars", len(blocks), "budget", budget)
		factsList = chunk.ShrinkForAggregation(factsList, budget)
		if blocks, err = factBlocks(extractions, factsList); err != nil {
			return nil, llm.Usage{}, err
		}
	}

	raw, usage, err := p.gateway.CompleteStructuredStreaming(ctx, llm.StructuredRequest{
		System:     prompts.AggregationSystem,
		User:       prompts.AggregationUser(len(extractions), blocks),
		Spec:       p.specs.Report,
		Model:      p.model,
		Thinking:   llm.ThinkingMedium,
		OnThinking: func(text string) { p.pushThinking("aggregation", text) },
	})
	if err != nil {
		return nil, usage, err
	}

	var report models.Report
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, usage, fmt.Errorf("decode aggregated report: %w", err)
	}

	// The model sometimes omits the source list; rebuild it from the
	// parsed documents so the report always names what it covers.
	if len(report.SourceDocuments) == 0 {
		for _, ex := range extractions {
			pages := ex.doc.Pages
			report.SourceDocuments = append(report.SourceDocuments, models.SourceDocument{
				Filename: ex.doc.Filename,
				Type:     ex.doc.Type,
				Pages:    &pages,
			})
		}
	}

	return &report, usage, nil
}

// factBlocks renders the numbered per-document JSON blocks for the
// aggregation prompt. Null fields are dropped to keep the prompt lean.
func factBlocks(extractions []extraction, factsList []map[string]any) (string, error) {
	var sb strings.Builder
	for i, facts := range factsList {
		raw, err := json.MarshalIndent(withoutNulls(facts), "", "  ")
		if err != nil {
			return "", fmt.Errorf("encode facts for %s: %w", extractions[i].doc.Filename, err)
		}
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "Dokumentas %d: %s\n```json\n%s\n```", i+1, extractions[i].doc.Filename, raw)
	}
	return sb.String(), nil
}

// withoutNulls strips null-valued keys recursively.
func withoutNulls(value map[string]any) map[string]any {
	out := make(map[string]any, len(value))
	for k, v := range value {
		switch typed := v.(type) {
		case nil:
			continue
		case map[string]any:
			out[k] = withoutNulls(typed)
		case []any:
			list := make([]any, 0, len(typed))
			for _, item := range typed {
				if nested, ok := item.(map[string]any); ok {
					list = append(list, withoutNulls(nested))
				} else if item != nil {
					list = append(list, item)
				}
			}
			out[k] = list
		default:
			out[k] = v
		}
	}
	return out
}
