package chunk

import "encoding/json"

// Merge combines per-chunk extraction results into one record.
// Scalars and nested objects keep the first non-null value in chunk
// order; lists are concatenated with duplicates removed, preserving
// first-occurrence order. Null never overwrites a value.
func Merge(results []map[string]any) map[string]any {
	out := make(map[string]any)
	for _, result := range results {
		for key, val := range result {
			if val == nil {
				continue
			}
			list, isList := val.([]any)
			if !isList {
				if existing, ok := out[key]; !ok || existing == nil {
					out[key] = val
				}
				continue
			}

			existing, _ := out[key].([]any)
			out[key] = append(existing, list...)
		}
	}

	for key, val := range out {
		if list, ok := val.([]any); ok {
			out[key] = dedup(list)
		}
	}
	return out
}

// dedup removes duplicate list items, keeping the first occurrence.
// Objects compare by canonical JSON (json.Marshal sorts map keys), so
// key order in the source never splits equal items.
func dedup(list []any) []any {
	seen := make(map[string]struct{}, len(list))
	out := make([]any, 0, len(list))
	for _, item := range list {
		key := canonical(item)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}
	return out
}

func canonical(item any) string {
	raw, err := json.Marshal(item)
	if err != nil {
		// Items come from json.Unmarshal; marshal cannot fail.
		return ""
	}
	return string(raw)
}
