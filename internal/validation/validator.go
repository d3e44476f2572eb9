package validation

import "github.com/rendis/vsm/pkg/schema"

// Validator checks persisted graph documents and API inputs.
// Uses JSON Schema Draft 2020-12 for structure.
type Validator interface {
	ValidateDocument(doc []byte) error
	ValidateGraph(g *schema.Graph) *schema.ValidationResult
	ValidateInput(input map[string]any, inputSchema []byte) error
}
