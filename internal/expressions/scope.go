package expressions

import (
	"encoding/json"

	"github.com/rendis/vsm/pkg/schema"
)

// Vars builds the evaluation environment for a graph and its metrics. Both
// are converted to their JSON shape so expressions use the same field names
// as the persisted document and the API.
func Vars(g schema.Graph, snap schema.MetricsSnapshot) (map[string]any, error) {
	graph, err := ToValue(g)
	if err != nil {
		return nil, err
	}
	m, err := ToValue(snap)
	if err != nil {
		return nil, err
	}
	return map[string]any{"graph": graph, "metrics": m}, nil
}

// NodeVars extends vars with one node. The node map carries the node's JSON
// fields plus its per-node metrics under "metrics" when it is a process.
func NodeVars(vars map[string]any, n schema.Node, snap schema.MetricsSnapshot) (map[string]any, error) {
	node, err := ToValue(n)
	if err != nil {
		return nil, err
	}
	nm := map[string]any{}
	if pm, ok := snap.PerNode[n.ID]; ok {
		v, err := ToValue(pm)
		if err != nil {
			return nil, err
		}
		nm = v
	}
	node["metrics"] = nm

	out := make(map[string]any, len(vars)+1)
	for k, v := range vars {
		out[k] = v
	}
	out["node"] = node
	return out, nil
}

// ToValue converts v to plain JSON values: map[string]any, []any, float64,
// string, bool and nil.
func ToValue(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeExpression, "encode expression scope").WithCause(err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, schema.NewError(schema.ErrCodeExpression, "decode expression scope").WithCause(err)
	}
	return out, nil
}
