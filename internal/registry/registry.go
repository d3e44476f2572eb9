// Package registry maps VSM symbol types to their semantic role, node kind and
// default attribute set. The registry is read-only after construction.
package registry

import (
	"sort"

	"github.com/rendis/vsm/pkg/schema"
)

// Role classifies what a symbol means to the metrics engine.
type Role string

const (
	RoleProcess Role = "process"
	RoleBuffer  Role = "buffer"
	RoleControl Role = "control"
	RoleFlow    Role = "flow"
)

// Entry describes one symbol type.
type Entry struct {
	Symbol   schema.SymbolType
	Kind     schema.NodeKind
	Role     Role
	Label    string
	defaults map[string]any
}

// Registry is the lookup table from symbol type to Entry.
type Registry struct {
	entries map[schema.SymbolType]Entry
	order   []schema.SymbolType
}

var defaultRegistry = build()

// Default returns the process-wide registry.
func Default() *Registry {
	return defaultRegistry
}

func processDefaults(name string) map[string]any {
	return map[string]any{
		schema.FieldName:               name,
		schema.FieldCycleTime:          0.0,
		schema.FieldChangeoverTime:     0.0,
		schema.FieldUptimePercent:      100.0,
		schema.FieldPerformancePercent: 100.0,
		schema.FieldYieldPercent:       100.0,
		schema.FieldOperatorCount:      1.0,
		schema.FieldProcessRole:        string(schema.RoleNormal),
	}
}

func bufferDefaults(name string) map[string]any {
	return map[string]any{
		schema.FieldName:           name,
		schema.FieldAmount:         0.0,
		schema.FieldUnit:           "pcs",
		schema.FieldTimeEquivalent: 0.0,
		schema.FieldLeadTimeDays:   0.0,
	}
}

func build() *Registry {
	r := &Registry{entries: make(map[schema.SymbolType]Entry)}

	r.add(schema.SymbolProcess, schema.KindProcess, RoleProcess, "Process", processDefaults("Process"))

	for _, b := range []struct {
		sym   schema.SymbolType
		label string
	}{
		{schema.SymbolInventory, "Inventory"},
		{schema.SymbolSupermarket, "Supermarket"},
		{schema.SymbolFIFO, "FIFO Lane"},
		{schema.SymbolSafetyStock, "Safety Stock"},
		{schema.SymbolFinishedGoods, "Finished Goods"},
	} {
		r.add(b.sym, schema.KindInventory, RoleBuffer, b.label, bufferDefaults(b.label))
	}

	r.add(schema.SymbolProductionControl, schema.KindProductionControl, RoleControl, "Production Control",
		map[string]any{schema.FieldName: "Production Control", schema.FieldNote: ""})
	r.add(schema.SymbolHeijunkaBox, schema.KindProductionControl, RoleControl, "Heijunka Box",
		map[string]any{schema.FieldName: "Heijunka", schema.FieldFrequency: ""})
	r.add(schema.SymbolKanbanPost, schema.KindProductionControl, RoleControl, "Kanban Post",
		map[string]any{schema.FieldName: "Kanban Post"})

	r.add(schema.SymbolCustomer, schema.KindGeneric, RoleFlow, "Customer", map[string]any{
		schema.FieldName:                  "Customer",
		schema.FieldDemandPerDay:          0.0,
		schema.FieldShifts:                1.0,
		schema.FieldHoursPerShift:         8.0,
		schema.FieldAvailableTimePerShift: 480.0,
		schema.FieldPackSize:              1.0,
	})
	r.add(schema.SymbolSupplier, schema.KindGeneric, RoleFlow, "Supplier", map[string]any{
		schema.FieldName:      "Supplier",
		schema.FieldFrequency: "",
	})

	for _, g := range []struct {
		sym   schema.SymbolType
		label string
	}{
		{schema.SymbolKaizenBurst, "Kaizen Burst"},
		{schema.SymbolTruck, "Truck Shipment"},
		{schema.SymbolSea, "Sea Freight"},
		{schema.SymbolAir, "Air Freight"},
		{schema.SymbolKanbanProduction, "Production Kanban"},
		{schema.SymbolKanbanWithdrawal, "Withdrawal Kanban"},
		{schema.SymbolKanbanSignal, "Signal Kanban"},
		{schema.SymbolOperator, "Operator"},
		{schema.SymbolGoSee, "Go See"},
		{schema.SymbolTimeline, "Timeline"},
		{schema.SymbolText, "Text"},
	} {
		r.add(g.sym, schema.KindGeneric, RoleFlow, g.label, map[string]any{schema.FieldName: g.label})
	}

	r.add(schema.SymbolCustom, schema.KindGeneric, RoleFlow, "Custom Icon",
		map[string]any{schema.FieldName: "Custom", schema.FieldIconID: ""})

	return r
}

func (r *Registry) add(sym schema.SymbolType, kind schema.NodeKind, role Role, label string, defaults map[string]any) {
	r.entries[sym] = Entry{Symbol: sym, Kind: kind, Role: role, Label: label, defaults: defaults}
	r.order = append(r.order, sym)
}

// Lookup returns the entry for sym. Unknown symbols resolve to a generic
// flow symbol whose only default is its name; ok reports whether sym is known.
func (r *Registry) Lookup(sym schema.SymbolType) (Entry, bool) {
	if e, ok := r.entries[sym]; ok {
		return e, true
	}
	return Entry{
		Symbol:   sym,
		Kind:     schema.KindGeneric,
		Role:     RoleFlow,
		Label:    string(sym),
		defaults: map[string]any{schema.FieldName: string(sym)},
	}, false
}

// DefaultsFor returns a fresh copy of the default attribute bag for sym.
// Callers own the returned map.
func (r *Registry) DefaultsFor(sym schema.SymbolType) map[string]any {
	e, _ := r.Lookup(sym)
	return schema.CloneData(e.defaults)
}

// KindOf returns the node kind a symbol is created with.
func (r *Registry) KindOf(sym schema.SymbolType) schema.NodeKind {
	e, _ := r.Lookup(sym)
	return e.Kind
}

// RoleOf returns the semantic role of a symbol.
func (r *Registry) RoleOf(sym schema.SymbolType) Role {
	e, _ := r.Lookup(sym)
	return e.Role
}

// Symbols lists every registered symbol in registration order.
func (r *Registry) Symbols() []schema.SymbolType {
	return append([]schema.SymbolType(nil), r.order...)
}

// Merge overlays override on the defaults for sym and returns the result.
func (r *Registry) Merge(sym schema.SymbolType, override map[string]any) map[string]any {
	data := r.DefaultsFor(sym)
	for k, v := range schema.CloneData(override) {
		data[k] = v
	}
	return data
}

// Normalize fills in any default key missing from n.Data and repairs an
// empty or unknown kind. Present keys are never overwritten. It returns the
// list of keys that were added, sorted.
func (r *Registry) Normalize(n *schema.Node) []string {
	e, _ := r.Lookup(n.SymbolType)
	if !n.Kind.Valid() {
		n.Kind = e.Kind
	}
	if n.Data == nil {
		n.Data = make(map[string]any, len(e.defaults))
	}
	var added []string
	for k, v := range e.defaults {
		if _, ok := n.Data[k]; ok {
			continue
		}
		n.Data[k] = v
		added = append(added, k)
	}
	sort.Strings(added)
	return added
}
