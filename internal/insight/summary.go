// Package insight assembles the read-only view of a value stream map handed
// to reporting and AI-analysis collaborators: the graph, its metrics, the
// timeline ladder and rule-based findings. Narrative text is generated
// elsewhere.
package insight

import (
	"context"
	"log/slog"
	"os"

	"github.com/rendis/vsm/internal/expressions"
	"github.com/rendis/vsm/internal/metrics"
	"github.com/rendis/vsm/internal/timeline"
	"github.com/rendis/vsm/pkg/schema"
)

// Finding is one rule that held.
type Finding struct {
	RuleID   string   `json:"ruleId"`
	Severity Severity `json:"severity"`
	NodeID   string   `json:"nodeId,omitempty"`
	Message  string   `json:"message"`
}

// Bottleneck describes the constraining process.
type Bottleneck struct {
	NodeID             string  `json:"nodeId"`
	Name               string  `json:"name"`
	CycleTime          float64 `json:"cycleTime"`
	UtilizationPercent float64 `json:"utilizationPercent"`
	OverTakt           bool    `json:"overTakt"`
}

// Summary is everything an analysis collaborator needs, in one document.
type Summary struct {
	NodeCount      int                    `json:"nodeCount"`
	EdgeCount      int                    `json:"edgeCount"`
	ProcessCount   int                    `json:"processCount"`
	InventoryCount int                    `json:"inventoryCount"`
	LeadTimeDays   float64                `json:"leadTimeDays"`
	Metrics        schema.MetricsSnapshot `json:"metrics"`
	Ladder         timeline.Ladder        `json:"ladder"`
	Bottleneck     *Bottleneck            `json:"bottleneck"`
	Findings       []Finding              `json:"findings"`
	Graph          schema.Graph           `json:"graph"`
}

// Deps holds the dependencies for creating an Analyzer.
type Deps struct {
	CEL    *expressions.CELEngine
	Rules  []Rule // defaults to DefaultRules()
	Logger *slog.Logger
}

// Analyzer evaluates rules over graphs.
type Analyzer struct {
	cel    *expressions.CELEngine
	rules  []Rule
	logger *slog.Logger
}

// NewAnalyzer compiles every rule up front so a bad rule fails here rather
// than on every summary.
func NewAnalyzer(deps Deps) (*Analyzer, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	engine := deps.CEL
	if engine == nil {
		var err error
		if engine, err = expressions.NewCELEngine(); err != nil {
			return nil, err
		}
	}
	rules := deps.Rules
	if rules == nil {
		rules = DefaultRules()
	}
	for _, r := range rules {
		if err := engine.Check(r.When); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "rule %q: %s", r.ID, err.Error()).WithCause(err)
		}
	}
	return &Analyzer{cel: engine, rules: rules, logger: logger}, nil
}

// Rules returns the active rule set.
func (a *Analyzer) Rules() []Rule { return a.rules }

// Summarize builds the summary for g. A rule that fails at runtime is logged
// and skipped.
func (a *Analyzer) Summarize(ctx context.Context, g schema.Graph, snap schema.MetricsSnapshot, ladder timeline.Ladder) (*Summary, error) {
	g = g.Clone()
	if g.Nodes == nil {
		g.Nodes = []schema.Node{}
	}
	if g.Edges == nil {
		g.Edges = []schema.Edge{}
	}

	s := &Summary{
		NodeCount:    len(g.Nodes),
		EdgeCount:    len(g.Edges),
		LeadTimeDays: snap.TotalLeadTime / metrics.SecondsPerDay,
		Metrics:      snap,
		Ladder:       ladder,
		Findings:     []Finding{},
		Graph:        g,
	}
	for i := range g.Nodes {
		switch g.Nodes[i].Kind {
		case schema.KindProcess:
			s.ProcessCount++
		case schema.KindInventory:
			s.InventoryCount++
		}
	}
	if snap.BottleneckNodeID != nil {
		if n := g.NodeByID(*snap.BottleneckNodeID); n != nil {
			pm := snap.PerNode[n.ID]
			name, _ := n.Data[schema.FieldName].(string)
			s.Bottleneck = &Bottleneck{
				NodeID:             n.ID,
				Name:               name,
				CycleTime:          metrics.CycleSeconds(n),
				UtilizationPercent: pm.UtilizationPercent,
				OverTakt:           pm.OverTakt,
			}
		}
	}

	vars, err := expressions.Vars(g, snap)
	if err != nil {
		return nil, err
	}
	for _, r := range a.rules {
		if r.Scope == ScopeNode {
			for _, n := range g.Nodes {
				nv, err := expressions.NodeVars(vars, n, snap)
				if err != nil {
					return nil, err
				}
				a.apply(ctx, r, nv, n.ID, s)
			}
			continue
		}
		a.apply(ctx, r, vars, "", s)
	}
	return s, nil
}

func (a *Analyzer) apply(ctx context.Context, r Rule, vars map[string]any, nodeID string, s *Summary) {
	scope := make(map[string]any, len(vars)+1)
	for k, v := range vars {
		scope[k] = v
	}
	scope["params"] = r.Params
	if r.Params == nil {
		scope["params"] = map[string]any{}
	}

	hit, err := a.cel.EvaluateBool(ctx, r.When, scope)
	if err != nil {
		a.logger.WarnContext(ctx, "insight rule failed",
			slog.String("rule", r.ID),
			slog.String("node_id", nodeID),
			slog.String("error", err.Error()),
		)
		return
	}
	if !hit {
		return
	}
	msg, err := expressions.Interpolate(r.Message, scope)
	if err != nil {
		msg = r.Message
	}
	s.Findings = append(s.Findings, Finding{RuleID: r.ID, Severity: r.Severity, NodeID: nodeID, Message: msg})
}
