package backup

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// snapshotSchema checks the document shape only; per-record rules live in Record.validate.
var snapshotSchema = map[string]any{
	"type":     "object",
	"required": []string{"cobrancas"},
	"properties": map[string]any{
		"export_date":     map[string]any{"type": "string"},
		"period":          map[string]any{"type": "string"},
		"total_cobrancas": map[string]any{"type": []string{"integer", "null"}, "minimum": 0},
		"cobrancas": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "object"},
		},
		"metadata": map[string]any{"type": []string{"object", "null"}},
	},
}

var compileSnapshotSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	b, err := json.Marshal(snapshotSchema)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("snapshot.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	return compiler.Compile("snapshot.json")
})

// validateShape checks raw snapshot bytes against snapshotSchema.
func validateShape(data []byte) error {
	schema, err := compileSnapshotSchema()
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
