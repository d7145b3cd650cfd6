package llm

import "strings"

// extractJSON pulls the JSON object out of model output that may carry
// markdown fences, leading prose, or trailing commentary. It strips a
// fence if present, then returns the first balanced {...} with string
// and escape awareness. When no object is found the input comes back
// unchanged and validation reports the failure.
func extractJSON(raw string) string {
	text := strings.TrimSpace(raw)

	if strings.HasPrefix(text, "```") {
		if nl := strings.IndexByte(text, '\n'); nl >= 0 {
			text = text[nl+1:]
		} else {
			text = ""
		}
		trimmed := strings.TrimRight(text, " \t\n")
		if strings.HasSuffix(trimmed, "```") {
			text = strings.TrimRight(trimmed[:len(trimmed)-3], " \t\n")
		}
	}

	start := strings.IndexByte(text, '{')
	if start < 0 {
		return text
	}

	depth := 0
	inString := false
	escape := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if escape {
			escape = false
			continue
		}
		switch {
		case c == '\\':
			escape = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return text[start:]
}
