package invoice

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// responseSchema describes the four-key answer. Keys are optional; present
// keys must carry a scalar of a sensible type.
var responseSchema = map[string]any{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type":    "object",
	"properties": map[string]any{
		"invoice_number": map[string]any{"type": []string{"string", "number", "null"}},
		"company_name":   map[string]any{"type": []string{"string", "null"}},
		"invoice_date":   map[string]any{"type": []string{"string", "null"}},
		"total_amount":   map[string]any{"type": []string{"number", "string", "null"}},
	},
}

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func compileSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		b, err := json.Marshal(responseSchema)
		if err != nil {
			schemaErr = fmt.Errorf("marshal schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("response.json", bytes.NewReader(b)); err != nil {
			schemaErr = fmt.Errorf("add schema: %w", err)
			return
		}
		compiledSchema, schemaErr = compiler.Compile("response.json")
	})
	return compiledSchema, schemaErr
}

// validateShape checks a decoded JSON value against the response schema.
func validateShape(v any) error {
	schema, err := compileSchema()
	if err != nil {
		return err
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
