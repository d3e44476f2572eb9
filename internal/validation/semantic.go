package validation

import (
	"fmt"

	"github.com/rendis/vsm/internal/registry"
	"github.com/rendis/vsm/pkg/schema"
)

// Warning codes for data the editor tolerates but an engineer should see.
const (
	CodeDanglingEdge     = "DANGLING_EDGE"
	CodeSelfLoop         = "SELF_LOOP"
	CodeDuplicateID      = "DUPLICATE_ID"
	CodeUnknownSymbol    = "UNKNOWN_SYMBOL"
	CodeNegativeValue    = "NEGATIVE_VALUE"
	CodePercentRange     = "PERCENT_OUT_OF_RANGE"
	CodeVAExceedsCT      = "VA_EXCEEDS_CYCLE_TIME"
	CodeMultipleCustomer = "MULTIPLE_CUSTOMERS"
	CodeMaterialLoop     = "MATERIAL_LOOP"
	CodeOffFlowProcess   = "PROCESS_OFF_FLOW"
)

var nonNegativeFields = []string{
	schema.FieldCycleTime, schema.FieldChangeoverTime, schema.FieldValueAddedTime,
	schema.FieldAmount, schema.FieldTimeEquivalent, schema.FieldLeadTimeDays,
	schema.FieldDemandPerDay, schema.FieldAvailableTimePerShift,
}

var percentFields = []string{
	schema.FieldUptimePercent, schema.FieldPerformancePercent, schema.FieldYieldPercent,
}

// validateSemantic checks identity and referential integrity (errors) and
// data plausibility (warnings). Incomplete data is never an error.
func validateSemantic(g *schema.Graph, reg *registry.Registry) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	nodeIDs := make(map[string]bool, len(g.Nodes))
	customers := 0
	for i := range g.Nodes {
		n := &g.Nodes[i]
		path := fmt.Sprintf("nodes[%d]", i)
		if nodeIDs[n.ID] {
			result.AddError(path+".id", CodeDuplicateID, fmt.Sprintf("duplicate node id %q", n.ID))
		}
		nodeIDs[n.ID] = true
		if n.SymbolType == schema.SymbolCustomer {
			customers++
		}
		validateNodeData(n, path, reg, result)
	}
	if customers > 1 {
		result.AddWarning("nodes", CodeMultipleCustomer,
			fmt.Sprintf("%d customer nodes; takt and EPEI need exactly one", customers))
	}

	edgeIDs := make(map[string]bool, len(g.Edges))
	for i, e := range g.Edges {
		path := fmt.Sprintf("edges[%d]", i)
		if edgeIDs[e.ID] {
			result.AddError(path+".id", CodeDuplicateID, fmt.Sprintf("duplicate edge id %q", e.ID))
		}
		edgeIDs[e.ID] = true

		if !nodeIDs[e.Source] || !nodeIDs[e.Target] {
			result.AddWarning(path, CodeDanglingEdge,
				fmt.Sprintf("edge %q references a missing node and will be dropped", e.ID))
			continue
		}
		if e.Source == e.Target {
			result.AddWarning(path, CodeSelfLoop, fmt.Sprintf("edge %q connects node %q to itself", e.ID, e.Source))
		}
	}

	return result
}

func validateNodeData(n *schema.Node, path string, reg *registry.Registry, result *schema.ValidationResult) {
	if reg != nil {
		if _, known := reg.Lookup(n.SymbolType); !known {
			result.AddWarning(path+".symbolType", CodeUnknownSymbol,
				fmt.Sprintf("symbol %q is not registered and is treated as a generic flow symbol", n.SymbolType))
		}
	}

	for _, f := range nonNegativeFields {
		if v, ok := registry.Number(n.Data, f); ok && v < 0 {
			result.AddWarning(path+".data."+f, CodeNegativeValue,
				fmt.Sprintf("%s is negative (%g) and reads as 0", f, v))
		}
	}
	for _, f := range percentFields {
		if v, ok := registry.Number(n.Data, f); ok && (v < 0 || v > 100) {
			result.AddWarning(path+".data."+f, CodePercentRange,
				fmt.Sprintf("%s is %g, outside 0..100", f, v))
		}
	}

	if n.Kind == schema.KindProcess {
		ct := registry.Float(n.Data, schema.FieldCycleTime)
		if va, ok := registry.Number(n.Data, schema.FieldValueAddedTime); ok && va > ct {
			result.AddWarning(path+".data."+schema.FieldValueAddedTime, CodeVAExceedsCT,
				fmt.Sprintf("value-added time %gs exceeds cycle time %gs", va, ct))
		}
	}
}
