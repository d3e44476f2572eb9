package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/vsm/internal/editor"
	"github.com/rendis/vsm/internal/graphstore"
	"github.com/rendis/vsm/internal/persistence"
	"github.com/rendis/vsm/internal/scenario"
	"github.com/rendis/vsm/internal/scheduler"
	"github.com/rendis/vsm/internal/store"
	"github.com/rendis/vsm/internal/wizard"
	"github.com/rendis/vsm/pkg/schema"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	engine  *Engine
	gate    *persistence.Gate
	backing *store.MemoryStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	backing := store.NewMemoryStore()
	gate := persistence.New(persistence.Deps{Store: backing, Logger: quietLogger()})

	n := 0
	gs := graphstore.New(graphstore.WithIDGenerator(func(prefix string) string {
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}))
	session := editor.New(ctx, editor.Deps{Graph: gs, Gate: gate, Logger: quietLogger()})

	sched, err := scheduler.NewScheduler(scheduler.Deps{
		Store:  backing,
		Logger: quietLogger(),
		Key:    gate.Key(),
		Now:    func() time.Time { return time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)

	e, err := NewEngine(Deps{
		Serial:    editor.NewSerial(session),
		Gate:      gate,
		Scheduler: sched,
		Logger:    quietLogger(),
	})
	require.NoError(t, err)
	return &fixture{engine: e, gate: gate, backing: backing}
}

// line builds process → customer through Apply.
func (f *fixture) line(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	_, err := f.engine.Apply(ctx, Command{
		Action: schema.ActionAddNode, SymbolType: schema.SymbolProcess,
		Position: &schema.Position{X: 100},
		Data:     map[string]any{schema.FieldName: "Press", schema.FieldCycleTime: 30.0},
	})
	require.NoError(t, err)
	_, err = f.engine.Apply(ctx, Command{
		Action: schema.ActionAddNode, SymbolType: schema.SymbolCustomer,
		Position: &schema.Position{X: 400},
		Data:     map[string]any{schema.FieldDemandPerDay: 480.0},
	})
	require.NoError(t, err)
	_, err = f.engine.Apply(ctx, Command{Action: schema.ActionConnect, Source: "node-1", Target: "node-2"})
	require.NoError(t, err)
}

func TestNewEngine_RequiresSession(t *testing.T) {
	_, err := NewEngine(Deps{})
	assert.True(t, schema.HasCode(err, schema.ErrCodeValidation))
}

func TestApply_AddConnectUndoRedo(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.engine.Apply(ctx, Command{Action: schema.ActionAddNode, SymbolType: schema.SymbolProcess})
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, "node-1", res.NodeID)
	assert.Equal(t, int64(1), res.Revision)
	assert.True(t, res.CanUndo)

	g, err := f.engine.Graph(ctx)
	require.NoError(t, err)
	require.Len(t, g.Nodes, 1)
	assert.Equal(t, schema.KindProcess, g.Nodes[0].Kind, "kind resolved from the registry")

	_, err = f.engine.Apply(ctx, Command{Action: schema.ActionAddNode, SymbolType: schema.SymbolCustomer})
	require.NoError(t, err)
	res, err = f.engine.Apply(ctx, Command{Action: schema.ActionConnect, Source: "node-1", Target: "node-2"})
	require.NoError(t, err)
	assert.Equal(t, "edge-3", res.EdgeID)

	res, err = f.engine.Apply(ctx, Command{Action: schema.ActionUndo})
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.True(t, res.CanRedo)
	g, _ = f.engine.Graph(ctx)
	assert.Empty(t, g.Edges)

	res, err = f.engine.Apply(ctx, Command{Action: schema.ActionRedo})
	require.NoError(t, err)
	assert.True(t, res.Applied)
	g, _ = f.engine.Graph(ctx)
	assert.Len(t, g.Edges, 1)

	stored := persistence.New(persistence.Deps{Store: f.backing, Logger: quietLogger()}).Load(ctx)
	assert.Equal(t, g, stored)
}

func TestApply_NoOpsAreNotApplied(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, cmd := range []Command{
		{Action: schema.ActionDeleteNode, NodeID: "ghost"},
		{Action: schema.ActionUndo},
		{Action: schema.ActionRedo},
		{Action: schema.ActionClear},
		{Action: ActionCommitEdit},
		{Action: ActionEndDrag},
		{Action: ActionCancelDrag},
		{Action: ActionBeginDrag, NodeID: "ghost"},
	} {
		res, err := f.engine.Apply(ctx, cmd)
		require.NoError(t, err, cmd.Action)
		assert.False(t, res.Applied, cmd.Action)
	}
	assert.Zero(t, f.gate.Writes())
}

func TestApply_EditFieldThenCommit(t *testing.T) {
	f := newFixture(t)
	f.line(t)
	ctx := context.Background()

	res, err := f.engine.Apply(ctx, Command{Action: ActionEditField, NodeID: "node-1", Field: schema.FieldCycleTime, Value: 4.0})
	require.NoError(t, err)
	assert.True(t, res.Dirty)
	writes := f.gate.Writes()

	res, err = f.engine.Apply(ctx, Command{Action: ActionEditField, NodeID: "node-1", Field: schema.FieldCycleTime, Value: 45.0})
	require.NoError(t, err)
	assert.Equal(t, writes, f.gate.Writes(), "keystrokes are not saved")

	res, err = f.engine.Apply(ctx, Command{Action: ActionCommitEdit})
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.False(t, res.Dirty)
	assert.Equal(t, writes+1, f.gate.Writes())

	st, err := f.engine.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 45.0, st.Graph.Nodes[0].Data[schema.FieldCycleTime])
}

func TestApply_DragGesture(t *testing.T) {
	f := newFixture(t)
	f.line(t)
	ctx := context.Background()
	writes := f.gate.Writes()

	res, err := f.engine.Apply(ctx, Command{Action: ActionBeginDrag, NodeID: "node-1"})
	require.NoError(t, err)
	assert.True(t, res.Applied)
	for x := 110.0; x <= 150; x += 10 {
		res, err = f.engine.Apply(ctx, Command{Action: ActionDragTo, NodeID: "node-1", Position: &schema.Position{X: x}})
		require.NoError(t, err)
		assert.True(t, res.Applied)
	}
	assert.Equal(t, writes, f.gate.Writes(), "drag frames are not saved")

	res, err = f.engine.Apply(ctx, Command{Action: ActionEndDrag})
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, writes+1, f.gate.Writes())

	g, err := f.engine.Graph(ctx)
	require.NoError(t, err)
	assert.Equal(t, 150.0, g.Nodes[0].Position.X)

	_, err = f.engine.Apply(ctx, Command{Action: ActionDragTo, NodeID: "node-1", Position: &schema.Position{X: 900}})
	require.NoError(t, err)
	res, err = f.engine.Apply(ctx, Command{Action: ActionCancelDrag})
	require.NoError(t, err)
	assert.True(t, res.Applied)
	g, _ = f.engine.Graph(ctx)
	assert.Equal(t, 150.0, g.Nodes[0].Position.X)

	res, err = f.engine.Apply(ctx, Command{Action: schema.ActionUndo})
	require.NoError(t, err)
	assert.True(t, res.Applied)
	g, _ = f.engine.Graph(ctx)
	assert.Equal(t, 100.0, g.Nodes[0].Position.X, "the gesture is one undo step")
}

func TestApply_RejectsMalformedCommands(t *testing.T) {
	f := newFixture(t)
	negative := -1.0
	tests := []struct {
		name string
		cmd  Command
		code string
	}{
		{"unknown action", Command{Action: "explode"}, schema.ErrCodeValidation},
		{"add without symbol", Command{Action: schema.ActionAddNode}, schema.ErrCodeValidation},
		{"add with bad kind", Command{Action: schema.ActionAddNode, SymbolType: schema.SymbolProcess, Kind: "robot"}, schema.ErrCodeValidation},
		{"update without field", Command{Action: schema.ActionUpdateField, NodeID: "n"}, schema.ErrCodeValidation},
		{"move without position", Command{Action: schema.ActionMoveNode, NodeID: "n"}, schema.ErrCodeValidation},
		{"drag without position", Command{Action: ActionDragTo, NodeID: "n"}, schema.ErrCodeValidation},
		{"begin drag without node", Command{Action: ActionBeginDrag}, schema.ErrCodeValidation},
		{"connect without target", Command{Action: schema.ActionConnect, Source: "a"}, schema.ErrCodeValidation},
		{"connect bad flow", Command{Action: schema.ActionConnect, Source: "a", Target: "b", FlowType: "smoke"}, schema.ErrCodeInvalidEdge},
		{"align bad axis", Command{Action: schema.ActionAlign, NodeIDs: []string{"a"}, Axis: "z"}, schema.ErrCodeValidation},
		{"align bad strategy", Command{Action: schema.ActionAlign, NodeIDs: []string{"a"}, Axis: "x", Strategy: "max"}, schema.ErrCodeValidation},
		{"replace without graph", Command{Action: schema.ActionReplace}, schema.ErrCodeValidation},
		{"negative takt", Command{Action: ActionSetTakt, TaktTime: &negative}, schema.ErrCodeValidation},
		{"connect unknown nodes", Command{Action: schema.ActionConnect, Source: "a", Target: "b"}, schema.ErrCodeInvalidEdge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.Apply(context.Background(), tt.cmd)
			require.Error(t, err)
			assert.True(t, schema.HasCode(err, tt.code), err.Error())
		})
	}
}

func TestApply_ReplaceGraphValidates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	dup := schema.Graph{Nodes: []schema.Node{
		{ID: "a", Kind: schema.KindProcess, SymbolType: schema.SymbolProcess},
		{ID: "a", Kind: schema.KindProcess, SymbolType: schema.SymbolProcess},
	}}
	_, err := f.engine.Apply(ctx, Command{Action: schema.ActionReplace, Graph: &dup})
	assert.True(t, schema.HasCode(err, schema.ErrCodeValidation))

	ok := schema.Graph{
		Nodes: []schema.Node{
			{ID: "a", Kind: schema.KindProcess, SymbolType: schema.SymbolProcess},
			{ID: "b", Kind: schema.KindProcess, SymbolType: schema.SymbolProcess},
		},
		Edges: []schema.Edge{{ID: "e", Source: "a", Target: "missing"}},
	}
	res, err := f.engine.Apply(ctx, Command{Action: schema.ActionReplace, Graph: &ok})
	require.NoError(t, err)
	assert.Equal(t, 1, res.DroppedEdges)
	assert.NotEmpty(t, res.Warnings, "dangling edge reported")
}

func TestApply_SetTaktOverridesDerived(t *testing.T) {
	f := newFixture(t)
	f.line(t)
	ctx := context.Background()

	snap, err := f.engine.Metrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 60.0, snap.TaktTime)

	takt := 45.0
	_, err = f.engine.Apply(ctx, Command{Action: ActionSetTakt, TaktTime: &takt})
	require.NoError(t, err)
	snap, _ = f.engine.Metrics(ctx)
	assert.Equal(t, 45.0, snap.TaktTime)

	st, _ := f.engine.Status(ctx)
	assert.Equal(t, 45.0, st.TaktOverride)
}

func TestApplyWizard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	form := &wizard.Form{
		Customer:  wizard.CustomerStep{DemandPerDay: 460},
		Processes: []wizard.ProcessStep{{Name: "Stamp", CycleTime: 1}, {Name: "Weld", CycleTime: 39}},
	}
	res, err := f.engine.ApplyWizard(ctx, form)
	require.NoError(t, err)
	assert.Equal(t, ActionWizard, res.Action)
	assert.True(t, res.CanUndo)

	g, _ := f.engine.Graph(ctx)
	var ids []string
	for _, n := range g.Nodes {
		ids = append(ids, n.ID)
	}
	assert.Contains(t, ids, "process-1")
	assert.Contains(t, ids, "customer")

	_, err = f.engine.ApplyWizard(ctx, &wizard.Form{})
	assert.True(t, schema.HasCode(err, schema.ErrCodeValidation))
}

func TestStatus(t *testing.T) {
	f := newFixture(t)
	f.line(t)

	st, err := f.engine.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, persistence.CanvasKey, st.DiagramID)
	assert.Equal(t, int64(3), st.Revision)
	assert.Equal(t, 4, st.HistoryEntries)
	assert.Equal(t, 3, st.HistoryCursor)
	assert.Len(t, st.Graph.Nodes, 2)
	assert.Empty(t, st.PersistError)
}

func TestDiagram(t *testing.T) {
	f := newFixture(t)
	f.line(t)
	ctx := context.Background()

	art, err := f.engine.Diagram(ctx, FormatMermaid)
	require.NoError(t, err)
	assert.Contains(t, string(art.Body), "graph LR")
	assert.Contains(t, string(art.Body), "Press")

	art, err = f.engine.Diagram(ctx, FormatASCII)
	require.NoError(t, err)
	assert.Contains(t, string(art.Body), "Press")

	art, err = f.engine.Diagram(ctx, FormatLadder)
	require.NoError(t, err)
	assert.Contains(t, string(art.Body), "Lead time")

	_, err = f.engine.Diagram(ctx, "pdf")
	assert.True(t, schema.HasCode(err, schema.ErrCodeValidation))
}

func TestRender_MarksBottleneck(t *testing.T) {
	f := newFixture(t)
	f.line(t)

	p, err := f.engine.Render(context.Background())
	require.NoError(t, err)
	require.Len(t, p.Nodes, 2)
	assert.True(t, p.Nodes[0].IsBottleneck)
	assert.Equal(t, "Press", p.Nodes[0].Label)
}

func TestInsights(t *testing.T) {
	f := newFixture(t)
	sum, err := f.engine.Insights(context.Background())
	require.NoError(t, err)
	require.Len(t, sum.Findings, 1)
	assert.Equal(t, "no-customer", sum.Findings[0].RuleID)
}

func TestSimulate_LeavesCanvasAlone(t *testing.T) {
	f := newFixture(t)
	f.line(t)
	ctx := context.Background()

	res, err := f.engine.Simulate(ctx, scenario.Scenario{
		Name:        "halve",
		Adjustments: []scenario.Adjustment{{Target: "kind:process", Field: schema.FieldCycleTime, Expression: "cycleTime / 2"}},
	})
	require.NoError(t, err)
	require.Len(t, res.Changes, 1)
	assert.Equal(t, 15.0, res.Changes[0].After)

	g, _ := f.engine.Graph(ctx)
	assert.Equal(t, 30.0, g.Nodes[0].Data[schema.FieldCycleTime])

	_, err = f.engine.Simulate(ctx, scenario.Scenario{Name: "nothing"})
	assert.True(t, schema.HasCode(err, schema.ErrCodeValidation))
}

func TestQuery(t *testing.T) {
	f := newFixture(t)
	f.line(t)

	out, err := f.engine.Query(context.Background(), `.graph.nodes | length`)
	require.NoError(t, err)
	assert.Equal(t, []any{2}, out)

	out, err = f.engine.Query(context.Background(), `.graph.nodes[] | select(.symbolType == "process") | .data.name`)
	require.NoError(t, err)
	assert.Equal(t, []any{"Press"}, out)

	_, err = f.engine.Query(context.Background(), `.graph.nodes[`)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	f := newFixture(t)
	f.line(t)
	res, err := f.engine.Validate(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Valid())
}

func TestJournalAndIcons(t *testing.T) {
	f := newFixture(t)
	f.line(t)
	ctx := context.Background()

	entries, err := f.engine.Journal(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, schema.ActionConnect, entries[2].Action)

	icon, err := f.engine.AddIcon(ctx, persistence.Icon{Name: "Robot", ImageData: "data:image/png;base64,AA=="})
	require.NoError(t, err)
	icons, _ := f.engine.Icons(ctx)
	assert.Len(t, icons, 1)

	removed, err := f.engine.RemoveIcon(ctx, icon.ID)
	require.NoError(t, err)
	assert.True(t, removed)
}

func TestMaintenance(t *testing.T) {
	f := newFixture(t)
	f.line(t)
	ctx := context.Background()

	st, err := f.engine.Maintenance(ctx)
	require.NoError(t, err)
	assert.Len(t, st.Jobs, 2)
	assert.Empty(t, st.Backups)
	require.NotNil(t, st.Journal)
	assert.Equal(t, f.gate.Key(), st.Journal.Key)
	assert.Positive(t, st.Journal.Entries)

	require.NoError(t, f.engine.RunMaintenance(ctx, scheduler.JobBackup))
	st, _ = f.engine.Maintenance(ctx)
	assert.Len(t, st.Backups, 1)

	err = f.engine.RunMaintenance(ctx, "defrag")
	assert.True(t, schema.HasCode(err, schema.ErrCodeNotFound))
}

func TestRestoreBackup(t *testing.T) {
	f := newFixture(t)
	f.line(t)
	ctx := context.Background()

	require.NoError(t, f.engine.RunMaintenance(ctx, scheduler.JobBackup))
	st, err := f.engine.Maintenance(ctx)
	require.NoError(t, err)
	require.Len(t, st.Backups, 1)
	before, err := f.engine.Graph(ctx)
	require.NoError(t, err)

	_, err = f.engine.Apply(ctx, Command{Action: schema.ActionClear})
	require.NoError(t, err)

	res, err := f.engine.RestoreBackup(ctx, st.Backups[0])
	require.NoError(t, err)
	assert.Equal(t, ActionRestore, res.Action)
	assert.True(t, res.Applied)
	after, err := f.engine.Graph(ctx)
	require.NoError(t, err)
	require.Len(t, after.Nodes, len(before.Nodes))
	for i := range before.Nodes {
		assert.Equal(t, before.Nodes[i].ID, after.Nodes[i].ID)
	}
	assert.Len(t, after.Edges, len(before.Edges))

	doc, err := f.backing.GetDocument(ctx, f.gate.Key())
	require.NoError(t, err)
	assert.Equal(t, res.Revision, doc.Revision, "saved through the session")

	undo, err := f.engine.Apply(ctx, Command{Action: schema.ActionUndo})
	require.NoError(t, err)
	assert.True(t, undo.Applied)
	cleared, _ := f.engine.Graph(ctx)
	assert.Empty(t, cleared.Nodes, "restore is one undo step")

	_, err = f.engine.RestoreBackup(ctx, "vsm-custom-icons")
	assert.True(t, schema.HasCode(err, schema.ErrCodeValidation))
}

func TestWithoutStorage(t *testing.T) {
	session := editor.New(context.Background(), editor.Deps{Logger: quietLogger()})
	e, err := NewEngine(Deps{Serial: editor.NewSerial(session), Logger: quietLogger()})
	require.NoError(t, err)
	ctx := context.Background()

	entries, err := e.Journal(ctx, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
	_, err = e.AddIcon(ctx, persistence.Icon{ImageData: "x"})
	assert.True(t, schema.HasCode(err, schema.ErrCodeStore))
	st, err := e.Maintenance(ctx)
	require.NoError(t, err)
	assert.Empty(t, st.Jobs)
	_, err = e.RestoreBackup(ctx, "x")
	assert.True(t, schema.HasCode(err, schema.ErrCodeStore))
}
