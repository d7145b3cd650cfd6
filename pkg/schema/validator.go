package schema

import (
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Validator checks decoded JSON values against a compiled schema.
type Validator struct {
	compiled *jsonschema.Schema
}

// NewValidator compiles the given schema for runtime validation.
func NewValidator(schema map[string]any) (*Validator, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", deepCopy(schema)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	compiled, err := c.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Validator{compiled: compiled}, nil
}

// Validate reports whether the decoded JSON value conforms to the
// schema. The value must come from json.Unmarshal into any.
func (v *Validator) Validate(value any) error {
	if err := v.compiled.Validate(value); err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	return nil
}
