package scenario

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/vsm/internal/metrics"
	"github.com/rendis/vsm/internal/registry"
	"github.com/rendis/vsm/pkg/schema"
)

func node(id string, sym schema.SymbolType, x float64, data map[string]any) schema.Node {
	reg := registry.Default()
	return schema.Node{ID: id, Kind: reg.KindOf(sym), SymbolType: sym, Position: schema.Position{X: x}, Data: reg.Merge(sym, data)}
}

// line: cut (40s) -> 2 days wip -> weld (60s) -> customer at 400/day.
func line() schema.Graph {
	return schema.Graph{
		Nodes: []schema.Node{
			node("cut", schema.SymbolProcess, 100, map[string]any{schema.FieldCycleTime: 40.0, schema.FieldChangeoverTime: 30.0}),
			node("wip", schema.SymbolInventory, 200, map[string]any{schema.FieldLeadTimeDays: 2.0}),
			node("weld", schema.SymbolProcess, 300, map[string]any{schema.FieldCycleTime: 60.0}),
			node("customer", schema.SymbolCustomer, 500, map[string]any{schema.FieldDemandPerDay: 400.0}),
		},
		Edges: []schema.Edge{
			{ID: "e1", Source: "cut", Target: "wip", FlowType: schema.FlowMaterial},
			{ID: "e2", Source: "wip", Target: "weld", FlowType: schema.FlowMaterial},
			{ID: "e3", Source: "weld", Target: "customer", FlowType: schema.FlowMaterial},
		},
	}
}

func newSimulator() *Simulator {
	return NewSimulator(Deps{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
}

func TestRun_AdjustsCopyOnly(t *testing.T) {
	g := line()
	res, err := newSimulator().Run(context.Background(), g, Scenario{
		Name:        "faster weld",
		Adjustments: []Adjustment{{Target: "weld", Field: schema.FieldCycleTime, Expression: "cycleTime * 0.5"}},
	})
	require.NoError(t, err)

	assert.Equal(t, 60.0, g.NodeByID("weld").Data[schema.FieldCycleTime], "input untouched")
	assert.Equal(t, 30.0, res.Graph.NodeByID("weld").Data[schema.FieldCycleTime])

	require.Len(t, res.Changes, 1)
	assert.Equal(t, Change{NodeID: "weld", Field: schema.FieldCycleTime, Before: 60.0, After: 30.0}, res.Changes[0])

	assert.Equal(t, 100.0, res.Baseline.TotalCycleTime)
	assert.Equal(t, 70.0, res.Projected.TotalCycleTime)
	assert.Equal(t, -30.0, res.Delta.LeadTimeSeconds)
	assert.Equal(t, -30.0, res.Delta.ValueAddedSeconds)
	assert.True(t, res.Delta.BottleneckMoved)
	require.NotNil(t, res.Projected.BottleneckNodeID)
	assert.Equal(t, "cut", *res.Projected.BottleneckNodeID)
}

func TestRun_SelectorsAndOrder(t *testing.T) {
	res, err := newSimulator().Run(context.Background(), line(), Scenario{
		Adjustments: []Adjustment{
			{Target: "kind:process", Field: schema.FieldCycleTime, Expression: "cycleTime - 10"},
			{Target: "kind:process", Field: schema.FieldValueAddedTime, Expression: "cycleTime / 2"},
			{Target: "symbol:inventory", Field: schema.FieldLeadTimeDays, Expression: "leadTimeDays / 2"},
		},
	})
	require.NoError(t, err)
	require.Len(t, res.Changes, 5)

	weld := res.Graph.NodeByID("weld")
	assert.Equal(t, 50.0, weld.Data[schema.FieldCycleTime])
	assert.Equal(t, 25.0, weld.Data[schema.FieldValueAddedTime], "later adjustments see earlier ones")
	assert.Nil(t, res.Changes[2].Before, "valueAddedTime was unset")
	assert.Equal(t, 1.0, res.Graph.NodeByID("wip").Data[schema.FieldLeadTimeDays])
	assert.Equal(t, -metrics.SecondsPerDay, res.Delta.InventorySeconds)
}

func TestRun_TaktVariable(t *testing.T) {
	// takt = 28800 / 400 = 72s
	res, err := newSimulator().Run(context.Background(), line(), Scenario{
		Adjustments: []Adjustment{{Target: "weld", Field: schema.FieldCycleTime, Expression: "min(cycleTime, takt * 0.5)"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 36.0, res.Graph.NodeByID("weld").Data[schema.FieldCycleTime])
}

func TestRun_RemoveNodesCascades(t *testing.T) {
	res, err := newSimulator().Run(context.Background(), line(), Scenario{RemoveNodes: []string{"wip"}})
	require.NoError(t, err)

	assert.Equal(t, []string{"wip"}, res.Removed)
	assert.Nil(t, res.Graph.NodeByID("wip"))
	assert.Len(t, res.Graph.Edges, 1)
	assert.Zero(t, res.Projected.InventoryTime)
	assert.Equal(t, 100.0, res.Projected.ProcessCycleEfficiency)
	assert.Len(t, res.ProjectedLadder.Segments, 2)
}

func TestRun_TaktOverride(t *testing.T) {
	res, err := newSimulator().Run(context.Background(), line(), Scenario{TaktTime: 50}, metrics.WithTaktTime(90))
	require.NoError(t, err)
	assert.Equal(t, 90.0, res.Baseline.TaktTime)
	assert.Equal(t, 50.0, res.Projected.TaktTime)
	assert.True(t, res.Projected.PerNode["weld"].OverTakt)
	assert.False(t, res.Baseline.PerNode["weld"].OverTakt)
}

func TestRun_Errors(t *testing.T) {
	tests := []struct {
		name string
		sc   Scenario
		code string
		node string
	}{
		{"empty", Scenario{Name: "nothing"}, schema.ErrCodeValidation, ""},
		{"unknown removal", Scenario{RemoveNodes: []string{"ghost"}}, schema.ErrCodeNotFound, "ghost"},
		{"unknown target", Scenario{Adjustments: []Adjustment{{Target: "ghost", Field: "cycleTime", Expression: "1"}}}, schema.ErrCodeNotFound, "ghost"},
		{"bad expression", Scenario{Adjustments: []Adjustment{{Target: "cut", Field: "cycleTime", Expression: "cycleTime *"}}}, schema.ErrCodeExpression, "cut"},
		{"non scalar", Scenario{Adjustments: []Adjustment{{Target: "cut", Field: "cycleTime", Expression: "[1, 2]"}}}, schema.ErrCodeExpression, "cut"},
		{"protected field", Scenario{Adjustments: []Adjustment{{Target: "cut", Field: "kind", Expression: "'x'"}}}, schema.ErrCodeValidation, ""},
		{"negative takt", Scenario{TaktTime: -1}, schema.ErrCodeValidation, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newSimulator().Run(context.Background(), line(), tt.sc)
			require.Error(t, err)
			assert.True(t, schema.HasCode(err, tt.code), err.Error())
			if tt.node != "" {
				var ve *schema.VSMError
				require.ErrorAs(t, err, &ve)
				assert.Equal(t, tt.node, ve.NodeID)
			}
		})
	}
}

func TestRun_SelectorMatchingNothingIsFine(t *testing.T) {
	res, err := newSimulator().Run(context.Background(), line(), Scenario{
		Adjustments: []Adjustment{{Target: "symbol:fifo", Field: schema.FieldAmount, Expression: "0"}},
	})
	require.NoError(t, err)
	assert.Empty(t, res.Changes)
	assert.Equal(t, res.Baseline.TotalLeadTime, res.Projected.TotalLeadTime)
}

func TestParse(t *testing.T) {
	sc, err := Parse([]byte(`
name: kaizen
taktTime: 60
removeNodes: [wip]
adjustments:
  - target: "*"
    field: note
    expression: 'id + " reviewed"'
`))
	require.NoError(t, err)
	assert.Equal(t, "kaizen", sc.Name)
	assert.Equal(t, 60.0, sc.TaktTime)

	res, err := newSimulator().Run(context.Background(), line(), sc)
	require.NoError(t, err)
	assert.Len(t, res.Changes, 3)
	assert.Equal(t, "cut reviewed", res.Graph.NodeByID("cut").Data[schema.FieldNote])

	_, err = Parse([]byte("adjustments: {"))
	assert.True(t, schema.HasCode(err, schema.ErrCodeValidation))
}
