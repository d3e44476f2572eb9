// Package scenario runs what-if experiments against a copy of a value stream
// map: field adjustments written as Expr expressions plus node removals,
// reported as baseline versus projected metrics. The live graph is never
// touched.
package scenario

import (
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rendis/vsm/pkg/schema"
)

// Adjustment rewrites one field on every node Target selects. Expression is
// evaluated with the node's attributes as top-level variables, plus id,
// kind, symbolType and takt.
//
// Target is a node id, "kind:<kind>", "symbol:<symbolType>" or "*".
type Adjustment struct {
	Target     string `yaml:"target" json:"target"`
	Field      string `yaml:"field" json:"field"`
	Expression string `yaml:"expression" json:"expression"`
}

// Scenario is a named set of changes.
type Scenario struct {
	Name        string       `yaml:"name" json:"name"`
	Adjustments []Adjustment `yaml:"adjustments" json:"adjustments"`
	RemoveNodes []string     `yaml:"removeNodes,omitempty" json:"removeNodes,omitempty"`
	// TaktTime overrides the projected takt in seconds; 0 keeps the baseline's.
	TaktTime float64 `yaml:"taktTime,omitempty" json:"taktTime,omitempty"`
}

// Parse reads a scenario from YAML or JSON.
func Parse(data []byte) (Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return Scenario{}, schema.NewError(schema.ErrCodeValidation, "scenario is not valid YAML").WithCause(err)
	}
	return sc, sc.Validate()
}

// Validate checks the scenario is well formed. It does not compile
// expressions.
func (sc Scenario) Validate() error {
	if len(sc.Adjustments) == 0 && len(sc.RemoveNodes) == 0 && sc.TaktTime == 0 {
		return schema.NewError(schema.ErrCodeValidation, "scenario changes nothing")
	}
	if sc.TaktTime < 0 {
		return schema.NewError(schema.ErrCodeValidation, "scenario takt time must not be negative")
	}
	for i, a := range sc.Adjustments {
		if strings.TrimSpace(a.Target) == "" || strings.TrimSpace(a.Field) == "" || strings.TrimSpace(a.Expression) == "" {
			return schema.NewErrorf(schema.ErrCodeValidation, "adjustment %d needs target, field and expression", i)
		}
		if a.Field == "id" || a.Field == "kind" || a.Field == "symbolType" {
			return schema.NewErrorf(schema.ErrCodeValidation, "adjustment %d cannot rewrite %q", i, a.Field)
		}
	}
	return nil
}

// matches reports whether target selects n.
func matches(target string, n *schema.Node) bool {
	switch {
	case target == "*":
		return true
	case strings.HasPrefix(target, "kind:"):
		return string(n.Kind) == strings.TrimPrefix(target, "kind:")
	case strings.HasPrefix(target, "symbol:"):
		return string(n.SymbolType) == strings.TrimPrefix(target, "symbol:")
	default:
		return n.ID == target
	}
}

func isSelector(target string) bool {
	return target == "*" || strings.HasPrefix(target, "kind:") || strings.HasPrefix(target, "symbol:")
}
