package schema

import (
	"encoding/json"
	"maps"
	"math"
)

// MetricsSnapshot is derived from a Graph and never persisted.
// Times are in seconds, efficiencies in percent.
type MetricsSnapshot struct {
	TotalCycleTime         float64                `json:"totalCycleTime"`
	TotalValueAddedTime    float64                `json:"totalValueAddedTime"`
	InventoryTime          float64                `json:"inventoryTime"`
	TotalLeadTime          float64                `json:"totalLeadTime"`
	ProcessCycleEfficiency float64                `json:"processCycleEfficiency"`
	TaktTime               float64                `json:"taktTime"`
	PerNodeOEE             map[string]int         `json:"perNodeOEE"`
	PerNode                map[string]NodeMetrics `json:"perNode"`
	BottleneckNodeID       *string                `json:"bottleneckNodeId"`
	EPEI                   *EPEI                  `json:"epei"`
}

// Clone returns a copy that shares no maps or pointers with s.
func (s MetricsSnapshot) Clone() MetricsSnapshot {
	s.PerNodeOEE = maps.Clone(s.PerNodeOEE)
	s.PerNode = maps.Clone(s.PerNode)
	if s.BottleneckNodeID != nil {
		id := *s.BottleneckNodeID
		s.BottleneckNodeID = &id
	}
	if s.EPEI != nil {
		e := *s.EPEI
		s.EPEI = &e
	}
	return s
}

// NodeMetrics are the per-process figures shown on each process box.
type NodeMetrics struct {
	OEE                int     `json:"oee"`
	CapacityPerHour    int     `json:"capacityPerHour"`
	UtilizationPercent float64 `json:"utilizationPercent"`
	OverTakt           bool    `json:"overTakt"`
	IsBottleneck       bool    `json:"isBottleneck"`
}

// EPEI is the Every-Part-Every-Interval result together with the
// intermediate quantities it was derived from.
type EPEI struct {
	Days                 float64 `json:"days"`
	IsHealthy            bool    `json:"isHealthy"`
	PacemakerNodeID      string  `json:"pacemakerNodeId"`
	AvailableTimePerDay  float64 `json:"availableTimePerDay"`
	ProductionTimeNeeded float64 `json:"productionTimeNeeded"`
	SpareTime            float64 `json:"spareTime"`
	ChangeoverSeconds    float64 `json:"changeoverSeconds"`
}

// Overloaded reports whether demand alone consumes all available time.
func (e *EPEI) Overloaded() bool {
	return math.IsInf(e.Days, 1)
}

// MarshalJSON encodes an infinite interval as null with overloaded=true,
// since JSON has no representation for +Inf.
func (e EPEI) MarshalJSON() ([]byte, error) {
	type plain EPEI
	out := struct {
		plain
		Days       *float64 `json:"days"`
		Overloaded bool     `json:"overloaded"`
	}{plain: plain(e)}
	if math.IsInf(e.Days, 1) {
		out.Overloaded = true
	} else {
		d := e.Days
		out.Days = &d
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores +Inf when the encoded value was overloaded.
func (e *EPEI) UnmarshalJSON(data []byte) error {
	type plain EPEI
	var in struct {
		plain
		Days       *float64 `json:"days"`
		Overloaded bool     `json:"overloaded"`
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*e = EPEI(in.plain)
	switch {
	case in.Overloaded || in.Days == nil:
		e.Days = math.Inf(1)
	default:
		e.Days = *in.Days
	}
	return nil
}
