// Package diagram turns a value stream map into what renderers draw: the
// per-node render payload consumed by the canvas, plus Mermaid, Graphviz and
// ASCII exports.
package diagram

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/rendis/vsm/internal/metrics"
	"github.com/rendis/vsm/internal/registry"
	"github.com/rendis/vsm/internal/timeline"
	"github.com/rendis/vsm/pkg/schema"
)

// EdgeStyle is the visual treatment of one flow type.
type EdgeStyle struct {
	Stroke      string `json:"stroke"`
	StrokeWidth int    `json:"strokeWidth"`
	Dashed      bool   `json:"dashed"`
	Marker      string `json:"marker"`
	Label       string `json:"label,omitempty"`
}

// NodeView is the render payload for one node.
type NodeView struct {
	ID                 string            `json:"id"`
	Kind               schema.NodeKind   `json:"kind"`
	SymbolType         schema.SymbolType `json:"symbolType"`
	Position           schema.Position   `json:"position"`
	Data               map[string]any    `json:"data"`
	Label              string            `json:"label"`
	IsBottleneck       bool              `json:"isBottleneck"`
	UtilizationPercent float64           `json:"utilizationPercent"`
	OverTakt           bool              `json:"overTakt"`
	OEE                *int              `json:"oee,omitempty"`
	CapacityPerHour    *int              `json:"capacityPerHour,omitempty"`
	WaitSeconds        *float64          `json:"waitSeconds,omitempty"`
}

// EdgeView is the render payload for one edge.
type EdgeView struct {
	ID       string          `json:"id"`
	Source   string          `json:"source"`
	Target   string          `json:"target"`
	FlowType schema.FlowType `json:"flowType"`
	Style    EdgeStyle       `json:"style"`
}

// Payload is everything the canvas needs to draw one frame.
type Payload struct {
	Title   string                 `json:"title,omitempty"`
	Nodes   []NodeView             `json:"nodes"`
	Edges   []EdgeView             `json:"edges"`
	Metrics schema.MetricsSnapshot `json:"metrics"`
	Ladder  timeline.Ladder        `json:"ladder"`
}

var edgeStyles = map[schema.FlowType]EdgeStyle{
	schema.FlowMaterial:              {Stroke: "#1f2937", StrokeWidth: 3, Marker: "push-arrow"},
	schema.FlowInformationManual:     {Stroke: "#2563eb", StrokeWidth: 1, Marker: "arrow", Label: "manual"},
	schema.FlowInformationElectronic: {Stroke: "#7c3aed", StrokeWidth: 1, Dashed: true, Marker: "lightning", Label: "electronic"},
}

// StyleFor returns the edge style of flow. Unknown flows draw as material.
func StyleFor(flow schema.FlowType) EdgeStyle {
	if s, ok := edgeStyles[flow]; ok {
		return s
	}
	return edgeStyles[schema.FlowMaterial]
}

// Build joins g with its metrics snapshot into a render payload. Node order
// follows the graph; the ladder is projected from g.
func Build(g schema.Graph, snap schema.MetricsSnapshot) *Payload {
	p := &Payload{
		Nodes:   make([]NodeView, 0, len(g.Nodes)),
		Edges:   make([]EdgeView, 0, len(g.Edges)),
		Metrics: snap,
		Ladder:  timeline.Project(g),
	}

	demand, _ := metrics.CustomerDemand(g)
	for i := range g.Nodes {
		n := &g.Nodes[i]
		v := NodeView{
			ID:         n.ID,
			Kind:       n.Kind,
			SymbolType: n.SymbolType,
			Position:   n.Position,
			Data:       schema.CloneData(n.Data),
			Label:      Label(n),
		}
		if v.Data == nil {
			v.Data = map[string]any{}
		}
		switch n.Kind {
		case schema.KindProcess:
			pm := snap.PerNode[n.ID]
			oee, capacity := pm.OEE, pm.CapacityPerHour
			v.IsBottleneck = pm.IsBottleneck
			v.UtilizationPercent = pm.UtilizationPercent
			v.OverTakt = pm.OverTakt
			v.OEE, v.CapacityPerHour = &oee, &capacity
		case schema.KindInventory:
			wait := metrics.InventorySeconds(n, demand)
			v.WaitSeconds = &wait
		}
		p.Nodes = append(p.Nodes, v)
	}

	for _, e := range g.Edges {
		flow := e.FlowType
		if flow == "" {
			flow = schema.FlowMaterial
		}
		p.Edges = append(p.Edges, EdgeView{ID: e.ID, Source: e.Source, Target: e.Target, FlowType: flow, Style: StyleFor(flow)})
	}
	return p
}

// Label is the display name of a node: its name attribute, else the
// registry label of its symbol.
func Label(n *schema.Node) string {
	if name, ok := n.Data[schema.FieldName].(string); ok && name != "" {
		return name
	}
	e, _ := registry.Default().Lookup(n.SymbolType)
	return e.Label
}

// caption is the one-line figure shown under a node's label.
func caption(v *NodeView) string {
	switch v.Kind {
	case schema.KindProcess:
		ct := registry.Float(v.Data, schema.FieldCycleTime)
		s := fmt.Sprintf("CT %ss", trimFloat(ct))
		if v.OEE != nil {
			s += fmt.Sprintf(" | OEE %d%%", *v.OEE)
		}
		return s
	case schema.KindInventory:
		if v.WaitSeconds != nil && *v.WaitSeconds > 0 {
			return fmt.Sprintf("%sd", trimFloat(*v.WaitSeconds/metrics.SecondsPerDay))
		}
		if amount := registry.Float(v.Data, schema.FieldAmount); amount > 0 {
			return fmt.Sprintf("%s pcs", trimFloat(amount))
		}
	}
	return ""
}

func trimFloat(f float64) string {
	return strconv.FormatFloat(math.Round(f*100)/100, 'f', -1, 64)
}

// byX returns node views ordered by X position, insertion order breaking ties.
func byX(nodes []NodeView) []NodeView {
	out := append([]NodeView(nil), nodes...)
	sort.SliceStable(out, func(a, b int) bool { return out[a].Position.X < out[b].Position.X })
	return out
}

func findNode(nodes []NodeView, id string) *NodeView {
	for i := range nodes {
		if nodes[i].ID == id {
			return &nodes[i]
		}
	}
	return nil
}
