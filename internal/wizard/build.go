package wizard

import (
	"fmt"

	"github.com/rendis/vsm/internal/registry"
	"github.com/rendis/vsm/pkg/schema"
)

// Canvas layout. The process row reads left to right; supplier, production
// control and customer sit on the row above.
const (
	Spacing = 200.0
	FlowY   = 300.0
	TopY    = 50.0
	StartX  = 100.0
)

// Build projects a validated form onto a complete graph: supplier, optional
// receiving inventory, the ordered processes with the buffers between them,
// optional finished goods, the customer, and production control with its
// information flows. Node and edge ids are deterministic.
func Build(form *Form, reg *registry.Registry) (schema.Graph, error) {
	if err := Validate(form); err != nil {
		return schema.Graph{}, err
	}
	if reg == nil {
		reg = registry.Default()
	}
	b := &builder{reg: reg, g: schema.Graph{Nodes: []schema.Node{}, Edges: []schema.Edge{}}}

	supplier := b.node("supplier", schema.SymbolSupplier, schema.Position{X: StartX, Y: TopY}, map[string]any{
		schema.FieldName:      orDefault(form.Supplier.Name, "Supplier"),
		schema.FieldFrequency: form.Supplier.Frequency,
	})

	var flow []string
	x := StartX
	if form.Receiving != nil {
		flow = append(flow, b.inventory("receiving", form.Receiving, x, "Receiving"))
		x += Spacing
	}

	pacemaker := ""
	for i, p := range form.Processes {
		id := fmt.Sprintf("process-%d", i+1)
		b.node(id, schema.SymbolProcess, schema.Position{X: x, Y: FlowY}, processData(p))
		flow = append(flow, id)
		if p.Role == string(schema.RolePacemaker) && pacemaker == "" {
			pacemaker = id
		}
		x += Spacing

		if p.InventoryAfter != nil && i < len(form.Processes)-1 {
			flow = append(flow, b.inventory(fmt.Sprintf("inventory-%d", i+1), p.InventoryAfter, x, "Inventory"))
			x += Spacing
		}
	}
	if pacemaker == "" {
		pacemaker = fmt.Sprintf("process-%d", len(form.Processes))
	}

	finished := form.FinishedGoods
	if finished == nil {
		finished = form.Processes[len(form.Processes)-1].InventoryAfter
	}
	if finished != nil {
		fg := *finished
		if fg.Symbol == "" {
			fg.Symbol = string(schema.SymbolFinishedGoods)
		}
		flow = append(flow, b.inventory("finished-goods", &fg, x, "Finished Goods"))
		x += Spacing
	}

	customer := b.node("customer", schema.SymbolCustomer, schema.Position{X: x, Y: TopY}, customerData(form.Customer))

	b.edge(supplier, flow[0], schema.FlowMaterial)
	for i := 1; i < len(flow); i++ {
		b.edge(flow[i-1], flow[i], schema.FlowMaterial)
	}
	b.edge(flow[len(flow)-1], customer, schema.FlowMaterial)

	if !form.ProductionControl.Omit {
		info := schema.FlowInformationManual
		if form.ProductionControl.Electronic {
			info = schema.FlowInformationElectronic
		}
		pc := b.node("production-control", schema.SymbolProductionControl,
			schema.Position{X: (StartX + x) / 2, Y: TopY},
			map[string]any{schema.FieldName: orDefault(form.ProductionControl.Name, "Production Control")})
		b.edge(customer, pc, info)
		b.edge(pc, supplier, info)
		b.edge(pc, pacemaker, schema.FlowInformationManual)
	}

	return b.g, nil
}

type builder struct {
	reg   *registry.Registry
	g     schema.Graph
	edges int
}

func (b *builder) node(id string, sym schema.SymbolType, pos schema.Position, data map[string]any) string {
	b.g.Nodes = append(b.g.Nodes, schema.Node{
		ID:         id,
		Kind:       b.reg.KindOf(sym),
		SymbolType: sym,
		Position:   pos,
		Data:       b.reg.Merge(sym, data),
	})
	return id
}

func (b *builder) inventory(id string, inv *InventoryStep, x float64, fallback string) string {
	sym := schema.SymbolType(inv.Symbol)
	if sym == "" {
		sym = schema.SymbolInventory
	}
	return b.node(id, sym, schema.Position{X: x, Y: FlowY}, map[string]any{
		schema.FieldName:         orDefault(inv.Name, fallback),
		schema.FieldAmount:       inv.Amount,
		schema.FieldLeadTimeDays: inv.LeadTimeDays,
	})
}

func (b *builder) edge(source, target string, flow schema.FlowType) {
	b.edges++
	b.g.Edges = append(b.g.Edges, schema.Edge{
		ID:       fmt.Sprintf("edge-%d", b.edges),
		Source:   source,
		Target:   target,
		FlowType: flow,
	})
}

func processData(p ProcessStep) map[string]any {
	data := map[string]any{
		schema.FieldName:           p.Name,
		schema.FieldCycleTime:      p.CycleTime,
		schema.FieldChangeoverTime: p.ChangeoverTime,
	}
	if p.ValueAddedTime != nil {
		data[schema.FieldValueAddedTime] = *p.ValueAddedTime
	}
	if p.UptimePercent != nil {
		data[schema.FieldUptimePercent] = *p.UptimePercent
	}
	if p.PerformancePercent != nil {
		data[schema.FieldPerformancePercent] = *p.PerformancePercent
	}
	if p.YieldPercent != nil {
		data[schema.FieldYieldPercent] = *p.YieldPercent
	}
	if p.Operators > 0 {
		data[schema.FieldOperatorCount] = float64(p.Operators)
	}
	if p.Role != "" {
		data[schema.FieldProcessRole] = p.Role
	}
	return data
}

func customerData(c CustomerStep) map[string]any {
	data := map[string]any{
		schema.FieldName:         orDefault(c.Name, "Customer"),
		schema.FieldDemandPerDay: c.DemandPerDay,
	}
	if c.Shifts > 0 {
		data[schema.FieldShifts] = c.Shifts
	}
	if c.HoursPerShift > 0 {
		data[schema.FieldHoursPerShift] = c.HoursPerShift
	}
	switch {
	case c.AvailableTimePerShift > 0:
		data[schema.FieldAvailableTimePerShift] = c.AvailableTimePerShift
	case c.HoursPerShift > 0:
		data[schema.FieldAvailableTimePerShift] = c.HoursPerShift * 60
	}
	if c.PackSize > 0 {
		data[schema.FieldPackSize] = c.PackSize
	}
	return data
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
