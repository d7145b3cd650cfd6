package chunk

import "encoding/json"

// essentialFields is the allowlist kept when a document's facts must
// be shrunk to fit the aggregation prompt.
var essentialFields = []string{
	"project_summary",
	"procuring_organization",
	"procurement_type",
	"estimated_value",
	"deadlines",
	"key_requirements",
	"qualification_requirements",
	"evaluation_criteria",
	"lot_structure",
	"confidence_notes",
}

const maxShrunkListItems = 5

// ShrinkForAggregation reduces per-document extraction results until
// their combined JSON fits budgetChars. Every document gets an equal
// share of the budget; documents already under their share pass
// through untouched, oversized ones are cut down to the essential
// fields with lists truncated.
func ShrinkForAggregation(results []map[string]any, budgetChars int) []map[string]any {
	if len(results) == 0 || budgetChars <= 0 {
		return results
	}
	share := budgetChars / len(results)

	out := make([]map[string]any, len(results))
	for i, result := range results {
		if jsonLen(result) <= share {
			out[i] = result
			continue
		}
		out[i] = shrinkOne(result)
	}
	return out
}

func shrinkOne(result map[string]any) map[string]any {
	shrunk := make(map[string]any, len(essentialFields))
	for _, field := range essentialFields {
		val, ok := result[field]
		if !ok || val == nil {
			continue
		}
		if list, isList := val.([]any); isList && len(list) > maxShrunkListItems {
			val = list[:maxShrunkListItems]
		}
		shrunk[field] = val
	}
	return shrunk
}

func jsonLen(v any) int {
	raw, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return len(raw)
}
