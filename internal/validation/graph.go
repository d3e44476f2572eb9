package validation

import (
	"encoding/json"
	"errors"

	"github.com/rendis/vsm/internal/registry"
	"github.com/rendis/vsm/pkg/schema"
)

// GraphValidator orchestrates the three-stage validation pipeline:
// 1. Structural (JSON Schema on the raw document)
// 2. Semantic (identity, references, data plausibility)
// 3. Material flow (loops, processes off the flow)
type GraphValidator struct {
	jsonSchema *JSONSchemaValidator
	registry   *registry.Registry
}

var _ Validator = (*GraphValidator)(nil)

// NewGraphValidator creates a GraphValidator. reg may be nil to skip
// unknown-symbol warnings.
func NewGraphValidator(reg *registry.Registry) (*GraphValidator, error) {
	jsv, err := NewJSONSchemaValidator()
	if err != nil {
		return nil, err
	}
	return &GraphValidator{jsonSchema: jsv, registry: reg}, nil
}

// Validate runs the full pipeline on a raw document. Structural errors
// short-circuit the later stages.
func (gv *GraphValidator) Validate(doc []byte) (*schema.Graph, *schema.ValidationResult) {
	result := validateStructural(gv.jsonSchema, doc)
	if !result.Valid() {
		return nil, result
	}

	var g schema.Graph
	if err := json.Unmarshal(doc, &g); err != nil {
		result.AddError("/", schema.ErrCodeDeserialization, err.Error())
		return nil, result
	}
	result.Merge(gv.ValidateGraph(&g))
	return &g, result
}

// ValidateGraph runs the semantic and material-flow stages on a decoded graph.
func (gv *GraphValidator) ValidateGraph(g *schema.Graph) *schema.ValidationResult {
	result := validateSemantic(g, gv.registry)
	if result.Valid() {
		result.Merge(validateMaterialFlow(g))
	}
	return result
}

// ValidateDocument satisfies the Validator interface.
func (gv *GraphValidator) ValidateDocument(doc []byte) error {
	_, result := gv.Validate(doc)
	return result.ToError(schema.ErrCodeValidation)
}

// ValidateInput delegates to the underlying JSONSchemaValidator.
func (gv *GraphValidator) ValidateInput(input map[string]any, inputSchema []byte) error {
	return gv.jsonSchema.ValidateInput(input, inputSchema)
}

// validateStructural converts JSONSchemaValidator output into a ValidationResult.
func validateStructural(v *JSONSchemaValidator, doc []byte) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	err := v.ValidateDocument(doc)
	if err == nil {
		return result
	}

	var vErr *schema.VSMError
	if !errors.As(err, &vErr) {
		result.AddError("/", schema.ErrCodeValidation, err.Error())
		return result
	}
	if violations, ok := vErr.Details["violations"].([]string); ok {
		for _, msg := range violations {
			result.AddError("/", schema.ErrCodeValidation, msg)
		}
		return result
	}
	result.AddError("/", schema.ErrCodeValidation, vErr.Message)
	return result
}
