package schema

// Graph is the single unit of truth for a value stream map. It is serialized
// wholesale for persistence and for every history entry. Slice order is
// insertion order and only matters for deterministic iteration.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Node is one symbol dropped on the canvas.
type Node struct {
	ID         string         `json:"id"`
	Kind       NodeKind       `json:"kind"`
	SymbolType SymbolType     `json:"symbolType"`
	Position   Position       `json:"position"`
	Data       map[string]any `json:"data"`
}

// Position is a canvas coordinate.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Edge connects two nodes with a material or information flow.
type Edge struct {
	ID       string   `json:"id"`
	Source   string   `json:"source"`
	Target   string   `json:"target"`
	FlowType FlowType `json:"flowType"`
}

// NodeKind is the semantic class the metrics engine dispatches on.
type NodeKind string

const (
	KindProcess           NodeKind = "process"
	KindInventory         NodeKind = "inventory"
	KindProductionControl NodeKind = "productionControl"
	KindGeneric           NodeKind = "generic"
)

// Valid reports whether k is one of the known kinds.
func (k NodeKind) Valid() bool {
	switch k {
	case KindProcess, KindInventory, KindProductionControl, KindGeneric:
		return true
	}
	return false
}

// SymbolType is the closed set of VSM icons a node can carry.
type SymbolType string

const (
	SymbolProcess           SymbolType = "process"
	SymbolSupplier          SymbolType = "supplier"
	SymbolCustomer          SymbolType = "customer"
	SymbolKaizenBurst       SymbolType = "kaizenBurst"
	SymbolInventory         SymbolType = "inventory"
	SymbolSupermarket       SymbolType = "supermarket"
	SymbolFIFO              SymbolType = "fifo"
	SymbolSafetyStock       SymbolType = "safetyStock"
	SymbolFinishedGoods     SymbolType = "finishedGoods"
	SymbolTruck             SymbolType = "truck"
	SymbolSea               SymbolType = "sea"
	SymbolAir               SymbolType = "air"
	SymbolKanbanProduction  SymbolType = "kanbanProduction"
	SymbolKanbanWithdrawal  SymbolType = "kanbanWithdrawal"
	SymbolKanbanSignal      SymbolType = "kanbanSignal"
	SymbolKanbanPost        SymbolType = "kanbanPost"
	SymbolHeijunkaBox       SymbolType = "heijunkaBox"
	SymbolProductionControl SymbolType = "productionControl"
	SymbolOperator          SymbolType = "operator"
	SymbolGoSee             SymbolType = "goSee"
	SymbolTimeline          SymbolType = "timeline"
	SymbolCustom            SymbolType = "custom"
	SymbolText              SymbolType = "text"
)

// FlowType selects how an edge is drawn and what it means.
type FlowType string

const (
	FlowMaterial              FlowType = "material"
	FlowInformationManual     FlowType = "information-manual"
	FlowInformationElectronic FlowType = "information-electronic"
)

// Valid reports whether f is one of the known flow types.
func (f FlowType) Valid() bool {
	switch f {
	case FlowMaterial, FlowInformationManual, FlowInformationElectronic:
		return true
	}
	return false
}

// ProcessRole tags a process box with its scheduling role.
type ProcessRole string

const (
	RoleNormal    ProcessRole = "normal"
	RolePacemaker ProcessRole = "pacemaker"
	RoleShared    ProcessRole = "shared"
	RoleOutside   ProcessRole = "outside"
)

// Data keys shared by the registry, the metrics engine and the wizard.
const (
	FieldName                  = "name"
	FieldCycleTime             = "cycleTime"
	FieldChangeoverTime        = "changeoverTime"
	FieldUptimePercent         = "uptimePercent"
	FieldPerformancePercent    = "performancePercent"
	FieldYieldPercent          = "yieldPercent"
	FieldValueAddedTime        = "valueAddedTime"
	FieldOperatorCount         = "operatorCount"
	FieldProcessRole           = "processRole"
	FieldAmount                = "amount"
	FieldUnit                  = "unit"
	FieldTimeEquivalent        = "timeEquivalent"
	FieldLeadTimeDays          = "leadTimeDays"
	FieldDemandPerDay          = "demandPerDay"
	FieldShifts                = "shifts"
	FieldHoursPerShift         = "hoursPerShift"
	FieldAvailableTimePerShift = "availableTimePerShift"
	FieldPackSize              = "packSize"
	FieldIconID                = "iconId"
	FieldFrequency             = "frequency"
	FieldNote                  = "note"
)

// NodeByID returns a pointer into g.Nodes for the given id, or nil.
func (g *Graph) NodeByID(id string) *Node {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i]
		}
	}
	return nil
}

// Clone returns a deep copy of the graph. Data bags are copied recursively so
// that no map or slice is shared between the original and the copy.
func (g Graph) Clone() Graph {
	out := Graph{
		Nodes: make([]Node, len(g.Nodes)),
		Edges: make([]Edge, len(g.Edges)),
	}
	for i, n := range g.Nodes {
		out.Nodes[i] = n.Clone()
	}
	copy(out.Edges, g.Edges)
	return out
}

// Clone returns a deep copy of the node.
func (n Node) Clone() Node {
	n.Data = CloneData(n.Data)
	return n
}

// CloneData deep-copies an attribute bag. A nil bag clones to an empty one.
func CloneData(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return CloneData(val)
	case []any:
		cp := make([]any, len(val))
		for i, item := range val {
			cp[i] = cloneValue(item)
		}
		return cp
	case []string:
		return append([]string(nil), val...)
	default:
		return v
	}
}
