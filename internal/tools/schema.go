package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// compiledSchema wraps a compiled JSON schema for argument validation.
type compiledSchema struct {
	schema *jsonschema.Schema
}

// compileParameters compiles a tool's parameters object. A nil map
// compiles to the permissive empty object schema.
func compileParameters(name string, parameters map[string]any) (*compiledSchema, error) {
	if parameters == nil {
		parameters = map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		}
	}

	raw, err := json.Marshal(parameters)
	if err != nil {
		return nil, fmt.Errorf("encode schema for %s: %w", name, err)
	}

	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true
	resource := name + ".schema.json"
	if err := compiler.AddResource(resource, strings.NewReader(string(raw))); err != nil {
		return nil, fmt.Errorf("add schema for %s: %w", name, err)
	}
	schema, err := compiler.Compile(resource)
	if err != nil {
		return nil, fmt.Errorf("compile schema for %s: %w", name, err)
	}
	return &compiledSchema{schema: schema}, nil
}

// validate checks args against the schema and returns one message per
// failed constraint. The list is deterministic for a given input.
func (c *compiledSchema) validate(args map[string]any) []string {
	// Round-trip so the validator sees plain JSON values regardless of
	// how the map was built.
	raw, err := json.Marshal(args)
	if err != nil {
		return []string{fmt.Sprintf("arguments not encodable: %v", err)}
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return []string{fmt.Sprintf("arguments not decodable: %v", err)}
	}

	err = c.schema.Validate(decoded)
	if err == nil {
		return nil
	}

	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return []string{err.Error()}
	}
	return flattenValidation(ve)
}

// flattenValidation walks the cause tree and keeps the leaf messages,
// which name the specific field and constraint.
func flattenValidation(ve *jsonschema.ValidationError) []string {
	if len(ve.Causes) == 0 {
		loc := strings.TrimPrefix(ve.InstanceLocation, "/")
		loc = strings.ReplaceAll(loc, "/", ".")
		if loc == "" {
			return []string{ve.Message}
		}
		return []string{loc + ": " + ve.Message}
	}

	var out []string
	for _, cause := range ve.Causes {
		out = append(out, flattenValidation(cause)...)
	}
	return out
}
