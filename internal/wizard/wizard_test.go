package wizard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/vsm/internal/metrics"
	"github.com/rendis/vsm/internal/timeline"
	"github.com/rendis/vsm/internal/validation"
	"github.com/rendis/vsm/pkg/schema"
)

const stampingForm = `
title: Bracket line
customer:
  name: Assembly plant
  demandPerDay: 1000
  shifts: 2
  availableTimePerShift: 480
supplier:
  name: Steel coil
  frequency: weekly
receiving:
  amount: 2000
  leadTimeDays: 5
processes:
  - name: Stamping
    cycleTime: 1
    changeoverTime: 60
    uptimePercent: 85
    inventoryAfter:
      amount: 4600
      leadTimeDays: 4.6
  - name: Welding
    cycleTime: 30
    changeoverTime: 45
    role: pacemaker
    inventoryAfter:
      symbol: fifo
      leadTimeDays: 1.1
  - name: Assembly
    cycleTime: 25
    valueAddedTime: 20
    operators: 2
finishedGoods:
  leadTimeDays: 2.7
productionControl:
  electronic: true
`

func TestParse_YAML(t *testing.T) {
	form, err := Parse([]byte(stampingForm))
	require.NoError(t, err)
	assert.Equal(t, "Bracket line", form.Title)
	require.Len(t, form.Processes, 3)
	require.NotNil(t, form.Processes[0].UptimePercent)
	assert.Equal(t, 85.0, *form.Processes[0].UptimePercent)
	assert.Nil(t, form.Processes[1].UptimePercent)
}

func TestParse_JSON(t *testing.T) {
	form, err := Parse([]byte(`{"customer":{"demandPerDay":10},"processes":[{"name":"Cut","cycleTime":5}]}`))
	require.NoError(t, err)
	assert.Equal(t, "Cut", form.Processes[0].Name)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"not yaml", "processes: [", ""},
		{"no processes", "customer: {demandPerDay: 5}", "processes: field is required"},
		{"unnamed process", "processes: [{cycleTime: 3}]", "processes[0].name: field is required"},
		{"negative cycle", "processes: [{name: A, cycleTime: -1}]", "processes[0].cycleTime: must be at least 0"},
		{"uptime above 100", "processes: [{name: A, uptimePercent: 140}]", "processes[0].uptimePercent: must not exceed 100"},
		{"bad role", "processes: [{name: A, role: boss}]", "processes[0].role: must be one of"},
		{"bad buffer symbol", "processes: [{name: A, inventoryAfter: {symbol: truck}}]", "inventoryAfter.symbol"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.body))
			require.Error(t, err)
			assert.True(t, schema.HasCode(err, schema.ErrCodeValidation))
			if tt.want != "" {
				assert.Contains(t, err.Error(), tt.want)
			}
		})
	}
}

func TestValidate_ListsEveryViolation(t *testing.T) {
	err := Validate(&Form{Processes: []ProcessStep{{CycleTime: -1}}})
	require.Error(t, err)

	var vErr *schema.VSMError
	require.ErrorAs(t, err, &vErr)
	violations, ok := vErr.Details["violations"].([]string)
	require.True(t, ok)
	assert.Len(t, violations, 2)
	assert.Contains(t, vErr.Message, "2 invalid fields")
}

func TestBuild_Layout(t *testing.T) {
	form, err := Parse([]byte(stampingForm))
	require.NoError(t, err)
	g, err := Build(form, nil)
	require.NoError(t, err)

	ids := make([]string, len(g.Nodes))
	for i, n := range g.Nodes {
		ids[i] = n.ID
	}
	assert.Equal(t, []string{
		"supplier", "receiving",
		"process-1", "inventory-1", "process-2", "inventory-2", "process-3",
		"finished-goods", "customer", "production-control",
	}, ids)

	var prevX float64
	for _, n := range g.Nodes {
		if n.Position.Y != FlowY {
			continue
		}
		assert.Greater(t, n.Position.X, prevX, "flow reads left to right")
		prevX = n.Position.X
	}

	fifo := g.NodeByID("inventory-2")
	require.NotNil(t, fifo)
	assert.Equal(t, schema.SymbolFIFO, fifo.SymbolType)
	assert.Equal(t, schema.KindInventory, fifo.Kind)

	fg := g.NodeByID("finished-goods")
	assert.Equal(t, schema.SymbolFinishedGoods, fg.SymbolType)
	assert.Equal(t, "Finished Goods", fg.Data[schema.FieldName])

	p1 := g.NodeByID("process-1")
	assert.Equal(t, 85.0, p1.Data[schema.FieldUptimePercent])
	assert.Equal(t, 100.0, p1.Data[schema.FieldYieldPercent], "registry default")
	assert.Equal(t, 2.0, g.NodeByID("process-3").Data[schema.FieldOperatorCount])
}

func TestBuild_Edges(t *testing.T) {
	form, err := Parse([]byte(stampingForm))
	require.NoError(t, err)
	g, err := Build(form, nil)
	require.NoError(t, err)

	type link struct {
		from, to string
		flow     schema.FlowType
	}
	var links []link
	for _, e := range g.Edges {
		links = append(links, link{e.Source, e.Target, e.FlowType})
	}
	assert.Contains(t, links, link{"supplier", "receiving", schema.FlowMaterial})
	assert.Contains(t, links, link{"finished-goods", "customer", schema.FlowMaterial})
	assert.Contains(t, links, link{"customer", "production-control", schema.FlowInformationElectronic})
	assert.Contains(t, links, link{"production-control", "supplier", schema.FlowInformationElectronic})
	assert.Contains(t, links, link{"production-control", "process-2", schema.FlowInformationManual}, "schedule goes to the pacemaker")

	v, err := validation.NewGraphValidator(nil)
	require.NoError(t, err)
	assert.True(t, v.ValidateGraph(&g).Valid())
}

func TestBuild_MetricsFromWizard(t *testing.T) {
	form, err := Parse([]byte(`
customer: {demandPerDay: 1000, shifts: 2, availableTimePerShift: 480}
processes:
  - {name: Press, cycleTime: 30, changeoverTime: 45}
productionControl: {omit: true}
`))
	require.NoError(t, err)
	g, err := Build(form, nil)
	require.NoError(t, err)
	assert.Nil(t, g.NodeByID("production-control"))

	snap := metrics.Compute(g)
	require.NotNil(t, snap.EPEI)
	assert.InDelta(t, 57600, snap.EPEI.AvailableTimePerDay, 1e-9)
	assert.InDelta(t, 2700.0/27600.0, snap.EPEI.Days, 1e-12)
	assert.True(t, snap.EPEI.IsHealthy)
	assert.InDelta(t, 57.6, snap.TaktTime, 1e-9)

	ladder := timeline.Project(g)
	assert.InDelta(t, snap.TotalLeadTime, ladder.TotalLeadTimeSeconds, 1e-9)
}

func TestBuild_LastBufferIsFinishedGoods(t *testing.T) {
	form, err := Parse([]byte(`
customer: {demandPerDay: 100}
processes:
  - {name: Cut, cycleTime: 10, inventoryAfter: {amount: 50, leadTimeDays: 1}}
  - {name: Pack, cycleTime: 20, inventoryAfter: {amount: 300, leadTimeDays: 3}}
`))
	require.NoError(t, err)
	g, err := Build(form, nil)
	require.NoError(t, err)

	fg := g.NodeByID("finished-goods")
	require.NotNil(t, fg)
	assert.Equal(t, schema.SymbolFinishedGoods, fg.SymbolType)
	assert.Equal(t, 3.0, fg.Data[schema.FieldLeadTimeDays])
	assert.Equal(t, 300.0, fg.Data[schema.FieldAmount])
	assert.Nil(t, g.NodeByID("inventory-2"))

	ladder := timeline.Project(g)
	assert.InDelta(t, 4*metrics.SecondsPerDay, ladder.TotalWaitSeconds, 1e-9, "both buffers count toward lead time")
}

func TestValidate_LastBufferAndFinishedGoodsConflict(t *testing.T) {
	_, err := Parse([]byte(`
processes:
  - {name: Cut, cycleTime: 10, inventoryAfter: {leadTimeDays: 3}}
finishedGoods: {leadTimeDays: 2}
`))
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeValidation))
	assert.Contains(t, err.Error(), "processes[0].inventoryAfter")
}

func TestBuild_NilForm(t *testing.T) {
	_, err := Build(nil, nil)
	assert.True(t, schema.HasCode(err, schema.ErrCodeValidation))
}
