package insight

import (
	"gopkg.in/yaml.v3"

	"github.com/rendis/vsm/pkg/schema"
)

// Severity ranks a finding.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// RuleScope selects whether a rule runs once per graph or once per node.
type RuleScope string

const (
	ScopeGraph RuleScope = "graph"
	ScopeNode  RuleScope = "node"
)

// Rule is a CEL condition plus the message emitted when it holds. Message
// may reference ${{ ... }} paths from the same scope the condition sees.
type Rule struct {
	ID       string         `yaml:"id" json:"id"`
	Scope    RuleScope      `yaml:"scope" json:"scope"`
	When     string         `yaml:"when" json:"when"`
	Severity Severity       `yaml:"severity" json:"severity"`
	Message  string         `yaml:"message" json:"message"`
	Params   map[string]any `yaml:"params,omitempty" json:"params,omitempty"`
}

// DefaultRules are the lean heuristics every summary is checked against.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:       "no-customer",
			Scope:    ScopeGraph,
			When:     `size(graph.nodes.filter(n, n.symbolType == "customer")) == 0`,
			Severity: SeverityInfo,
			Message:  "No customer node: takt time and EPEI are not available.",
		},
		{
			ID:       "low-pce",
			Scope:    ScopeGraph,
			When:     `metrics.totalLeadTime > 0 && metrics.processCycleEfficiency < params.minPCE`,
			Severity: SeverityWarning,
			Message:  "Process cycle efficiency is ${{ metrics.processCycleEfficiency }}%, below ${{ params.minPCE }}%: waiting dominates the lead time.",
			Params:   map[string]any{"minPCE": 5.0},
		},
		{
			ID:       "epei-overload",
			Scope:    ScopeGraph,
			When:     `metrics.epei != null && metrics.epei.overloaded`,
			Severity: SeverityCritical,
			Message:  "Demand needs ${{ metrics.epei.productionTimeNeeded }}s a day at the pacemaker but only ${{ metrics.epei.availableTimePerDay }}s are available.",
		},
		{
			ID:       "epei-unhealthy",
			Scope:    ScopeGraph,
			When:     `metrics.epei != null && !metrics.epei.overloaded && !metrics.epei.isHealthy`,
			Severity: SeverityWarning,
			Message:  "EPEI is ${{ metrics.epei.days }} days: every part cannot be made every day.",
		},
		{
			ID:       "over-takt",
			Scope:    ScopeNode,
			When:     `node.kind == "process" && has(node.metrics.overTakt) && node.metrics.overTakt`,
			Severity: SeverityCritical,
			Message:  "${{ node.data.name }} cycle time ${{ node.data.cycleTime }}s exceeds takt time ${{ metrics.taktTime }}s.",
		},
		{
			ID:       "low-oee",
			Scope:    ScopeNode,
			When:     `node.kind == "process" && has(node.metrics.oee) && node.metrics.oee < params.minOEE`,
			Severity: SeverityWarning,
			Message:  "${{ node.data.name }} OEE is ${{ node.metrics.oee }}%, below ${{ params.minOEE }}%.",
			Params:   map[string]any{"minOEE": 85.0},
		},
		{
			ID:       "long-changeover",
			Scope:    ScopeNode,
			When:     `node.kind == "process" && has(node.data.changeoverTime) && node.data.changeoverTime > params.maxMinutes`,
			Severity: SeverityInfo,
			Message:  "${{ node.data.name }} changeover takes ${{ node.data.changeoverTime }} min: a SMED candidate.",
			Params:   map[string]any{"maxMinutes": 30.0},
		},
	}
}

// LoadRules parses a YAML (or JSON) list of rules.
func LoadRules(data []byte) ([]Rule, error) {
	var rules []Rule
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "insight rules are not valid YAML").WithCause(err)
	}
	for i := range rules {
		r := &rules[i]
		if r.ID == "" || r.When == "" {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "rule %d needs an id and a when condition", i)
		}
		if r.Scope == "" {
			r.Scope = ScopeGraph
		}
		if r.Scope != ScopeGraph && r.Scope != ScopeNode {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "rule %q has unknown scope %q", r.ID, r.Scope)
		}
		if r.Severity == "" {
			r.Severity = SeverityInfo
		}
	}
	return rules, nil
}
