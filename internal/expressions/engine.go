// Package expressions evaluates user-supplied expressions against a value
// stream map: CEL for insight rules, Expr for what-if adjustments and jq for
// ad-hoc queries over the graph document.
package expressions

import "context"

// Engine evaluates one expression language.
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}

// Engines bundles one instance of each engine. All engines cache compiled
// programs and are safe for concurrent use.
type Engines struct {
	CEL  *CELEngine
	Expr *ExprEngine
	JQ   *GoJQEngine
}

// NewEngines creates all three engines.
func NewEngines() (*Engines, error) {
	celEngine, err := NewCELEngine()
	if err != nil {
		return nil, err
	}
	return &Engines{
		CEL:  celEngine,
		Expr: NewExprEngine(),
		JQ:   NewGoJQEngine(),
	}, nil
}

// ByName returns the engine registered under name.
func (e *Engines) ByName(name string) (Engine, bool) {
	switch name {
	case "cel":
		return e.CEL, true
	case "expr":
		return e.Expr, true
	case "jq":
		return e.JQ, true
	}
	return nil, false
}
