// Package metrics derives manufacturing KPIs from a value stream map graph.
//
// Every function here is pure: it reads the graph, never mutates it, and
// never panics on incomplete data. Missing numeric inputs read as 0 and
// missing percentages as 100; metrics whose inputs are absent degrade to
// 0, nil or +Inf as documented on each field of schema.MetricsSnapshot.
package metrics

import (
	"math"

	"github.com/rendis/vsm/internal/registry"
	"github.com/rendis/vsm/pkg/schema"
)

// SecondsPerDay converts inventory lead-time days into seconds.
const SecondsPerDay = 86400.0

// Options tune a computation.
type Options struct {
	// TaktTime in seconds overrides the takt derived from the customer node.
	TaktTime float64
}

// Option mutates Options.
type Option func(*Options)

// WithTaktTime supplies a global takt time in seconds. Non-positive values
// fall back to the derived takt.
func WithTaktTime(seconds float64) Option {
	return func(o *Options) { o.TaktTime = seconds }
}

// Compute returns the metrics snapshot of g. It is deterministic: two calls
// on an unchanged graph return identical snapshots.
func Compute(g schema.Graph, opts ...Option) schema.MetricsSnapshot {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}

	snap := schema.MetricsSnapshot{
		PerNodeOEE: make(map[string]int),
		PerNode:    make(map[string]schema.NodeMetrics),
	}

	demand, _ := CustomerDemand(g)

	for i := range g.Nodes {
		n := &g.Nodes[i]
		switch n.Kind {
		case schema.KindProcess:
			snap.TotalCycleTime += CycleSeconds(n)
			snap.TotalValueAddedTime += ValueAddedSeconds(n)
		case schema.KindInventory:
			snap.InventoryTime += InventorySeconds(n, demand)
		}
	}
	snap.TotalLeadTime = snap.TotalCycleTime + snap.InventoryTime
	snap.ProcessCycleEfficiency = Efficiency(snap.TotalValueAddedTime, snap.TotalLeadTime)

	snap.TaktTime = o.TaktTime
	if snap.TaktTime <= 0 {
		snap.TaktTime = DerivedTakt(g)
	}

	bottleneck := Bottleneck(g)
	if bottleneck != nil {
		id := bottleneck.ID
		snap.BottleneckNodeID = &id
	}

	for i := range g.Nodes {
		n := &g.Nodes[i]
		if n.Kind != schema.KindProcess {
			continue
		}
		ct := CycleSeconds(n)
		util, over := Utilization(ct, snap.TaktTime, Operators(n))
		nm := schema.NodeMetrics{
			OEE:                OEE(n),
			CapacityPerHour:    CapacityPerHour(n),
			UtilizationPercent: util,
			OverTakt:           over,
			IsBottleneck:       bottleneck != nil && bottleneck.ID == n.ID,
		}
		snap.PerNodeOEE[n.ID] = nm.OEE
		snap.PerNode[n.ID] = nm
	}

	snap.EPEI = ComputeEPEI(g)
	return snap
}

// Efficiency returns va/lead as a percentage, 0 when lead is 0.
func Efficiency(va, lead float64) float64 {
	if lead <= 0 {
		return 0
	}
	return va / lead * 100
}

// CycleSeconds is a process node's cycle time, clamped at 0.
func CycleSeconds(n *schema.Node) float64 {
	return nonNegative(registry.Float(n.Data, schema.FieldCycleTime))
}

// ValueAddedSeconds is the node's value-added time, falling back to its
// cycle time when the field is unset.
func ValueAddedSeconds(n *schema.Node) float64 {
	if va, ok := registry.Number(n.Data, schema.FieldValueAddedTime); ok {
		return nonNegative(va)
	}
	return CycleSeconds(n)
}

// InventorySeconds converts a buffer into waiting time. Resolution order:
// explicit timeEquivalent seconds, then leadTimeDays, then amount divided
// by the customer's daily demand. Anything else is 0.
func InventorySeconds(n *schema.Node, demandPerDay float64) float64 {
	if te := registry.Float(n.Data, schema.FieldTimeEquivalent); te > 0 {
		return te
	}
	if days := registry.Float(n.Data, schema.FieldLeadTimeDays); days > 0 {
		return days * SecondsPerDay
	}
	amount := registry.Float(n.Data, schema.FieldAmount)
	if amount > 0 && demandPerDay > 0 {
		return amount / demandPerDay * SecondsPerDay
	}
	return 0
}

// Operators returns the node's operator count, at least 1.
func Operators(n *schema.Node) float64 {
	ops := registry.Float(n.Data, schema.FieldOperatorCount)
	if ops < 1 {
		return 1
	}
	return ops
}

// OEE is uptime × performance × yield as an integer percent.
func OEE(n *schema.Node) int {
	u := registry.Percent(n.Data, schema.FieldUptimePercent)
	p := registry.Percent(n.Data, schema.FieldPerformancePercent)
	y := registry.Percent(n.Data, schema.FieldYieldPercent)
	return int(math.Round((u / 100) * (p / 100) * (y / 100) * 100))
}

// CapacityPerHour is the number of good units per hour, 0 for a zero cycle time.
func CapacityPerHour(n *schema.Node) int {
	ct := CycleSeconds(n)
	if ct <= 0 {
		return 0
	}
	u := registry.Percent(n.Data, schema.FieldUptimePercent)
	y := registry.Percent(n.Data, schema.FieldYieldPercent)
	return int(math.Floor(3600 * (u / 100) * (y / 100) / ct))
}

// Utilization returns the load of a station against takt, capped at 100,
// and whether its cycle time exceeds takt. A non-positive takt yields 0.
func Utilization(cycleTime, takt, operators float64) (percent float64, overTakt bool) {
	if takt <= 0 {
		return 0, false
	}
	if operators < 1 {
		operators = 1
	}
	return math.Min(100, cycleTime/(takt*operators)*100), cycleTime > takt
}

// Bottleneck returns the process node with the largest cycle time. Ties go
// to the node seen first; nil when there are no process nodes.
func Bottleneck(g schema.Graph) *schema.Node {
	var best *schema.Node
	bestCT := math.Inf(-1)
	for i := range g.Nodes {
		n := &g.Nodes[i]
		if n.Kind != schema.KindProcess {
			continue
		}
		if ct := CycleSeconds(n); ct > bestCT {
			best, bestCT = n, ct
		}
	}
	return best
}

// Customer returns the single customer node of g. ok is false when there
// is no customer or more than one.
func Customer(g schema.Graph) (*schema.Node, bool) {
	var found *schema.Node
	for i := range g.Nodes {
		if g.Nodes[i].SymbolType != schema.SymbolCustomer {
			continue
		}
		if found != nil {
			return nil, false
		}
		found = &g.Nodes[i]
	}
	return found, found != nil
}

// CustomerDemand returns the daily demand of the single customer node.
func CustomerDemand(g schema.Graph) (float64, bool) {
	c, ok := Customer(g)
	if !ok {
		return 0, false
	}
	d := registry.Float(c.Data, schema.FieldDemandPerDay)
	return d, d > 0
}

// AvailableTimePerDay is the customer's available minutes per shift times
// the number of shifts, in seconds. Shifts default to 1.
func AvailableTimePerDay(customer *schema.Node) float64 {
	perShift := nonNegative(registry.Float(customer.Data, schema.FieldAvailableTimePerShift))
	shifts, ok := registry.Number(customer.Data, schema.FieldShifts)
	if !ok || shifts <= 0 {
		shifts = 1
	}
	return perShift * 60 * shifts
}

// DerivedTakt is available time per day divided by daily demand, or 0
// when either is unknown.
func DerivedTakt(g schema.Graph) float64 {
	c, ok := Customer(g)
	if !ok {
		return 0
	}
	demand := registry.Float(c.Data, schema.FieldDemandPerDay)
	if demand <= 0 {
		return 0
	}
	return AvailableTimePerDay(c) / demand
}

func nonNegative(f float64) float64 {
	if f < 0 {
		return 0
	}
	return f
}
