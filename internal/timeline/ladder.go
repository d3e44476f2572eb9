// Package timeline projects a value stream map onto the lead-time ladder:
// alternating value-added and non-value-added segments read left to right.
package timeline

import (
	"sort"

	"github.com/rendis/vsm/internal/metrics"
	"github.com/rendis/vsm/internal/registry"
	"github.com/rendis/vsm/pkg/schema"
)

// SegmentKind classifies a ladder step.
type SegmentKind string

const (
	SegmentVA  SegmentKind = "va"
	SegmentNVA SegmentKind = "nva"
)

// Segment is one rung of the ladder. For VA segments Seconds is the cycle
// time and ValueAddedSeconds the value-added share of it; for NVA segments
// Seconds is the waiting time and ValueAddedSeconds is 0.
type Segment struct {
	NodeID            string      `json:"nodeId"`
	Label             string      `json:"label"`
	Kind              SegmentKind `json:"kind"`
	Seconds           float64     `json:"seconds"`
	Days              float64     `json:"days"`
	ValueAddedSeconds float64     `json:"valueAddedSeconds"`
}

// Ladder is the ordered segment list plus its totals.
type Ladder struct {
	Segments               []Segment `json:"segments"`
	TotalCycleTimeSeconds  float64   `json:"totalCycleTimeSeconds"`
	TotalValueAddedSeconds float64   `json:"totalValueAddedSeconds"`
	TotalWaitSeconds       float64   `json:"totalWaitSeconds"`
	TotalLeadTimeSeconds   float64   `json:"totalLeadTimeSeconds"`
	TotalLeadTimeDays      float64   `json:"totalLeadTimeDays"`
	EfficiencyPercent      float64   `json:"efficiencyPercent"`
}

// Project builds the ladder for g. Nodes are ordered by X position with
// insertion order breaking ties; edges are ignored. Only process and
// inventory nodes contribute segments.
func Project(g schema.Graph) Ladder {
	order := make([]int, 0, len(g.Nodes))
	for i := range g.Nodes {
		switch g.Nodes[i].Kind {
		case schema.KindProcess, schema.KindInventory:
			order = append(order, i)
		}
	}
	sort.SliceStable(order, func(a, b int) bool {
		return g.Nodes[order[a]].Position.X < g.Nodes[order[b]].Position.X
	})

	demand, _ := metrics.CustomerDemand(g)
	ladder := Ladder{Segments: make([]Segment, 0, len(order))}

	for _, idx := range order {
		n := &g.Nodes[idx]
		seg := Segment{NodeID: n.ID, Label: label(n)}
		if n.Kind == schema.KindProcess {
			seg.Kind = SegmentVA
			seg.Seconds = metrics.CycleSeconds(n)
			seg.ValueAddedSeconds = metrics.ValueAddedSeconds(n)
			ladder.TotalCycleTimeSeconds += seg.Seconds
			ladder.TotalValueAddedSeconds += seg.ValueAddedSeconds
		} else {
			seg.Kind = SegmentNVA
			seg.Seconds = metrics.InventorySeconds(n, demand)
			ladder.TotalWaitSeconds += seg.Seconds
		}
		seg.Days = seg.Seconds / metrics.SecondsPerDay
		ladder.Segments = append(ladder.Segments, seg)
	}

	ladder.TotalLeadTimeSeconds = ladder.TotalCycleTimeSeconds + ladder.TotalWaitSeconds
	ladder.TotalLeadTimeDays = ladder.TotalLeadTimeSeconds / metrics.SecondsPerDay
	ladder.EfficiencyPercent = metrics.Efficiency(ladder.TotalValueAddedSeconds, ladder.TotalLeadTimeSeconds)
	return ladder
}

func label(n *schema.Node) string {
	if name := registry.Text(n.Data, schema.FieldName); name != "" {
		return name
	}
	return string(n.SymbolType)
}
