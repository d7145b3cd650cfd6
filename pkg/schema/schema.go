// Package schema declares the JSON schemas for structured LLM output.
// The report schema is declared once; the wire form sent to providers
// and the runtime validator are both derived from it.
package schema

// ReportSchema returns the JSON schema for the structured procurement
// report. Callers receive a fresh copy and may mutate it freely.
func ReportSchema() map[string]any {
	return map[string]any{
		"type":  "object",
		"title": "ExtractionResult",
		"properties": map[string]any{
			"project_summary": nullable("string", "2-3 sakiniai apie projekto esmę"),
			"procuring_organization": objectOrNull(map[string]any{
				"name":    nullable("string", "Perkančiosios organizacijos pavadinimas"),
				"code":    nullable("string", "Įmonės kodas"),
				"contact": nullable("string", "Kontaktinė informacija"),
			}),
			"procurement_type": nullable("string", "Pirkimo būdas (atviras, ribotas, derybų, etc.)"),
			"estimated_value": objectOrNull(map[string]any{
				"amount":       nullable("number", "Pirkimo vertė skaičiumi"),
				"currency":     typed("string", "Valiuta"),
				"vat_included": nullable("boolean", "Ar suma su PVM"),
				"vat_amount":   nullable("number", "PVM suma"),
			}),
			"deadlines": objectOrNull(map[string]any{
				"submission_deadline": nullable("string", "Pasiūlymų pateikimo terminas (ISO date)"),
				"questions_deadline":  nullable("string", "Klausimų pateikimo terminas (ISO date)"),
				"contract_duration":   nullable("string", "Sutarties trukmė"),
				"execution_deadline":  nullable("string", "Darbų atlikimo terminas (ISO date)"),
			}),
			"key_requirements": stringArray("Pagrindiniai techniniai/funkciniai reikalavimai"),
			"qualification_requirements": objectOrNull(map[string]any{
				"financial":  stringArray("Finansiniai reikalavimai"),
				"technical":  stringArray("Techniniai reikalavimai"),
				"experience": stringArray("Patirties reikalavimai"),
				"other":      stringArray("Kiti reikalavimai"),
			}),
			"evaluation_criteria": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"criterion":      typed("string", "Vertinimo kriterijus"),
						"weight_percent": nullable("number", "Svoris procentais"),
						"description":    nullable("string", "Aprašymas"),
					},
					"required": []any{"criterion", "weight_percent", "description"},
				},
			},
			"restrictions_and_prohibitions": stringArray("Apribojimai ir draudimai"),
			"lot_structure": map[string]any{
				"type": []any{"array", "null"},
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"lot_number":      typed("integer", "Pirkimo dalies numeris"),
						"description":     typed("string", "Pirkimo dalies aprašymas"),
						"estimated_value": nullable("number", "Dalies vertė"),
					},
					"required": []any{"lot_number", "description", "estimated_value"},
				},
			},
			"special_conditions": stringArray("Ypatingos sąlygos"),
			"source_documents": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"filename": typed("string", "Failo pavadinimas"),
						"type":     typed("string", "Dokumento tipas"),
						"pages":    nullable("integer", "Puslapių skaičius"),
					},
					"required": []any{"filename", "type", "pages"},
				},
			},
			"confidence_notes": stringArray("Pastabos apie neaiškumus ir prieštaravimus"),
		},
		"required": []any{
			"project_summary", "procuring_organization", "procurement_type",
			"estimated_value", "deadlines", "key_requirements",
			"qualification_requirements", "evaluation_criteria",
			"restrictions_and_prohibitions", "lot_structure",
			"special_conditions", "source_documents", "confidence_notes",
		},
	}
}

// QASchema returns the JSON schema for the evaluation stage output.
func QASchema() map[string]any {
	return map[string]any{
		"type":  "object",
		"title": "QAEvaluation",
		"properties": map[string]any{
			"completeness_score": typed("number", "0.0-1.0 completeness score"),
			"missing_fields":     stringArray("Fields with no data"),
			"conflicts":          stringArray("Detected contradictions"),
			"suggestions":        stringArray("Improvement suggestions"),
		},
		"required": []any{"completeness_score", "missing_fields", "conflicts", "suggestions"},
	}
}

func typed(typ, description string) map[string]any {
	return map[string]any{
		"type":        typ,
		"description": description,
	}
}

func nullable(typ, description string) map[string]any {
	return map[string]any{
		"type":        []any{typ, "null"},
		"description": description,
	}
}

func objectOrNull(properties map[string]any) map[string]any {
	required := make([]any, 0, len(properties))
	for name := range properties {
		required = append(required, name)
	}
	sortAnyStrings(required)
	return map[string]any{
		"type":       []any{"object", "null"},
		"properties": properties,
		"required":   required,
	}
}

func stringArray(description string) map[string]any {
	return map[string]any{
		"type":        "array",
		"description": description,
		"items":       map[string]any{"type": "string"},
	}
}

func sortAnyStrings(vals []any) {
	for i := 1; i < len(vals); i++ {
		for j := i; j > 0 && vals[j].(string) < vals[j-1].(string); j-- {
			vals[j], vals[j-1] = vals[j-1], vals[j]
		}
	}
}
