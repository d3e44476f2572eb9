package scenario

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/rendis/vsm/internal/expressions"
	"github.com/rendis/vsm/internal/graphstore"
	"github.com/rendis/vsm/internal/metrics"
	"github.com/rendis/vsm/internal/timeline"
	"github.com/rendis/vsm/pkg/schema"
)

// Change records one rewritten field.
type Change struct {
	NodeID string `json:"nodeId"`
	Field  string `json:"field"`
	Before any    `json:"before"`
	After  any    `json:"after"`
}

// Delta is projected minus baseline.
type Delta struct {
	LeadTimeSeconds        float64 `json:"leadTimeSeconds"`
	ValueAddedSeconds      float64 `json:"valueAddedSeconds"`
	InventorySeconds       float64 `json:"inventorySeconds"`
	ProcessCycleEfficiency float64 `json:"processCycleEfficiency"`
	BottleneckMoved        bool    `json:"bottleneckMoved"`
}

// Result compares a scenario with the graph it started from.
type Result struct {
	Name            string                 `json:"name"`
	Baseline        schema.MetricsSnapshot `json:"baseline"`
	Projected       schema.MetricsSnapshot `json:"projected"`
	ProjectedLadder timeline.Ladder        `json:"projectedLadder"`
	Delta           Delta                  `json:"delta"`
	Changes         []Change               `json:"changes"`
	Removed         []string               `json:"removed"`
	Graph           schema.Graph           `json:"graph"`
}

// Deps holds the dependencies for creating a Simulator.
type Deps struct {
	Engine *expressions.ExprEngine
	Logger *slog.Logger
}

// Simulator evaluates scenarios.
type Simulator struct {
	engine *expressions.ExprEngine
	logger *slog.Logger
}

// NewSimulator creates a Simulator.
func NewSimulator(deps Deps) *Simulator {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	engine := deps.Engine
	if engine == nil {
		engine = expressions.NewExprEngine()
	}
	return &Simulator{engine: engine, logger: logger}
}

// Run applies sc to a copy of g. Removals happen first and cascade to
// edges; adjustments then run in order, each seeing the results of the
// previous ones. opts configure the baseline computation and carry over to
// the projection unless sc overrides takt.
func (s *Simulator) Run(ctx context.Context, g schema.Graph, sc Scenario, opts ...metrics.Option) (*Result, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}

	baseline := metrics.Compute(g, opts...)

	work := graphstore.New()
	work.Replace(g)
	removed := make([]string, 0, len(sc.RemoveNodes))
	for _, id := range sc.RemoveNodes {
		if !work.DeleteNode(id) {
			return nil, schema.NewErrorf(schema.ErrCodeNotFound, "scenario removes unknown node %q", id).WithNode(id)
		}
		removed = append(removed, id)
	}
	projected := work.Snapshot()

	changes := []Change{}
	for _, adj := range sc.Adjustments {
		hit := false
		for i := range projected.Nodes {
			n := &projected.Nodes[i]
			if !matches(adj.Target, n) {
				continue
			}
			hit = true
			ch, err := s.apply(ctx, adj, n, baseline.TaktTime)
			if err != nil {
				return nil, err
			}
			changes = append(changes, ch)
		}
		if !hit && !isSelector(adj.Target) {
			return nil, schema.NewErrorf(schema.ErrCodeNotFound, "adjustment targets unknown node %q", adj.Target).WithNode(adj.Target)
		}
	}

	projOpts := opts
	if sc.TaktTime > 0 {
		projOpts = append(append([]metrics.Option{}, opts...), metrics.WithTaktTime(sc.TaktTime))
	}
	after := metrics.Compute(projected, projOpts...)

	res := &Result{
		Name:            sc.Name,
		Baseline:        baseline,
		Projected:       after,
		ProjectedLadder: timeline.Project(projected),
		Changes:         changes,
		Removed:         removed,
		Graph:           projected,
		Delta: Delta{
			LeadTimeSeconds:        after.TotalLeadTime - baseline.TotalLeadTime,
			ValueAddedSeconds:      after.TotalValueAddedTime - baseline.TotalValueAddedTime,
			InventorySeconds:       after.InventoryTime - baseline.InventoryTime,
			ProcessCycleEfficiency: after.ProcessCycleEfficiency - baseline.ProcessCycleEfficiency,
			BottleneckMoved:        !sameID(baseline.BottleneckNodeID, after.BottleneckNodeID),
		},
	}
	s.logger.DebugContext(ctx, "scenario simulated",
		slog.String("scenario", sc.Name),
		slog.Int("changes", len(changes)),
		slog.Int("removed", len(removed)),
		slog.Float64("lead_time_delta", res.Delta.LeadTimeSeconds),
	)
	return res, nil
}

func (s *Simulator) apply(ctx context.Context, adj Adjustment, n *schema.Node, takt float64) (Change, error) {
	env := schema.CloneData(n.Data)
	if env == nil {
		env = map[string]any{}
	}
	env["id"] = n.ID
	env["kind"] = string(n.Kind)
	env["symbolType"] = string(n.SymbolType)
	env["takt"] = takt

	out, err := s.engine.Evaluate(ctx, adj.Expression, env)
	if err != nil {
		var ve *schema.VSMError
		if errors.As(err, &ve) {
			return Change{}, ve.WithNode(n.ID)
		}
		return Change{}, err
	}
	value, ok := scalar(out)
	if !ok {
		return Change{}, schema.NewErrorf(schema.ErrCodeExpression,
			"adjustment %q on %s produced %T, want a number, string or bool", adj.Expression, n.ID, out).WithNode(n.ID)
	}

	if n.Data == nil {
		n.Data = map[string]any{}
	}
	ch := Change{NodeID: n.ID, Field: adj.Field, Before: n.Data[adj.Field], After: value}
	n.Data[adj.Field] = value
	return ch, nil
}

// scalar narrows an expression result to a value the graph can store.
// Integers widen to float64 to match decoded JSON.
func scalar(v any) (any, bool) {
	switch val := v.(type) {
	case float64, string, bool:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case int32:
		return float64(val), true
	case uint:
		return float64(val), true
	case uint64:
		return float64(val), true
	default:
		return nil, false
	}
}

func sameID(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
