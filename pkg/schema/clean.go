package schema

import (
	"encoding/json"
	"strings"
)

// Clean returns a deep copy of the schema prepared for strict
// structured-output mode: title, description, and default annotations
// are dropped, and every object node gets additionalProperties=false.
// The input is never mutated.
func Clean(schema map[string]any) map[string]any {
	return cleanNode(deepCopy(schema)).(map[string]any)
}

func cleanNode(node any) any {
	switch v := node.(type) {
	case map[string]any:
		delete(v, "title")
		delete(v, "description")
		delete(v, "default")
		if isObjectType(v["type"]) {
			v["additionalProperties"] = false
		}
		for key, child := range v {
			v[key] = cleanNode(child)
		}
		return v
	case []any:
		for i, child := range v {
			v[i] = cleanNode(child)
		}
		return v
	default:
		return node
	}
}

func isObjectType(typ any) bool {
	switch t := typ.(type) {
	case string:
		return t == "object"
	case []any:
		for _, member := range t {
			if s, ok := member.(string); ok && s == "object" {
				return true
			}
		}
	}
	return false
}

func deepCopy(schema map[string]any) map[string]any {
	raw, err := json.Marshal(schema)
	if err != nil {
		// Schemas are built from literals; marshal cannot fail.
		panic(err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		panic(err)
	}
	return out
}

// TypeHint renders a compact one-line description of the schema's
// shape, suitable for appending to a system prompt when the provider
// cannot enforce a schema itself.
func TypeHint(schema map[string]any) string {
	var b strings.Builder
	writeHint(&b, schema)
	return b.String()
}

func writeHint(b *strings.Builder, node any) {
	m, ok := node.(map[string]any)
	if !ok {
		b.WriteString("any")
		return
	}
	switch {
	case isObjectType(m["type"]):
		props, _ := m["properties"].(map[string]any)
		keys := make([]any, 0, len(props))
		for k := range props {
			keys = append(keys, k)
		}
		sortAnyStrings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(`"` + k.(string) + `": `)
			writeHint(b, props[k.(string)])
		}
		b.WriteByte('}')
	case typeName(m["type"]) == "array":
		b.WriteByte('[')
		writeHint(b, m["items"])
		b.WriteByte(']')
	default:
		b.WriteString(hintScalar(m["type"]))
	}
}

func typeName(typ any) string {
	switch t := typ.(type) {
	case string:
		return t
	case []any:
		// First non-null member names the type.
		for _, member := range t {
			if s, ok := member.(string); ok && s != "null" {
				return s
			}
		}
	}
	return ""
}

func hintScalar(typ any) string {
	name := typeName(typ)
	if name == "" {
		return "any"
	}
	if nullableType(typ) {
		return name + "|null"
	}
	return name
}

func nullableType(typ any) bool {
	members, ok := typ.([]any)
	if !ok {
		return false
	}
	for _, member := range members {
		if s, ok := member.(string); ok && s == "null" {
			return true
		}
	}
	return false
}
