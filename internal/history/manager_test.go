package history

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/vsm/pkg/schema"
)

// graphN returns a graph with n process nodes named after their index.
func graphN(n int) schema.Graph {
	g := schema.Graph{Nodes: []schema.Node{}, Edges: []schema.Edge{}}
	for i := 0; i < n; i++ {
		g.Nodes = append(g.Nodes, schema.Node{
			ID:         fmt.Sprintf("n%d", i),
			Kind:       schema.KindProcess,
			SymbolType: schema.SymbolProcess,
			Data:       map[string]any{schema.FieldCycleTime: float64(i * 10)},
		})
	}
	return g
}

func TestNew_SingleEntry(t *testing.T) {
	m := New(graphN(0))
	assert.Equal(t, 1, m.Len())
	assert.Equal(t, 0, m.Cursor())
	assert.False(t, m.CanUndo())
	assert.False(t, m.CanRedo())

	_, ok := m.Undo()
	assert.False(t, ok)
	_, ok = m.Redo()
	assert.False(t, ok)
}

func TestUndoRedo_RestoresExactly(t *testing.T) {
	g0, g1, g2 := graphN(0), graphN(1), graphN(2)
	m := New(g0)
	m.Commit(g1)
	m.Commit(g2)

	got, ok := m.Undo()
	require.True(t, ok)
	assert.Equal(t, g1, got)

	got, ok = m.Redo()
	require.True(t, ok)
	assert.Equal(t, g2, got)

	_, ok = m.Redo()
	assert.False(t, ok, "redo at newest entry is a no-op")
}

func TestCommit_AfterUndoDiscardsRedoBranch(t *testing.T) {
	g0, g1, g2, g3 := graphN(0), graphN(1), graphN(2), graphN(3)
	m := New(g0)
	m.Commit(g1)
	m.Commit(g2)
	_, ok := m.Undo()
	require.True(t, ok)

	m.Commit(g3)

	assert.Equal(t, []schema.Graph{g0, g1, g3}, m.Entries())
	assert.Equal(t, 2, m.Cursor())
	_, ok = m.Redo()
	assert.False(t, ok)
}

func TestCommit_StoresDeepCopy(t *testing.T) {
	g := graphN(1)
	m := New(graphN(0))
	m.Commit(g)

	g.Nodes[0].Data[schema.FieldCycleTime] = 999.0
	g.Nodes[0].Position.X = 50

	cur := m.Current()
	assert.Equal(t, 0.0, cur.Nodes[0].Data[schema.FieldCycleTime])
	assert.Equal(t, 0.0, cur.Nodes[0].Position.X)
}

func TestUndo_ReturnsCopy(t *testing.T) {
	m := New(graphN(1))
	m.Commit(graphN(2))

	got, _ := m.Undo()
	got.Nodes[0].Data[schema.FieldName] = "mutated"

	again := m.Current()
	assert.NotContains(t, again.Nodes[0].Data, schema.FieldName)
}

func TestWithLimit_DropsOldest(t *testing.T) {
	m := New(graphN(0), WithLimit(3))
	for i := 1; i <= 5; i++ {
		m.Commit(graphN(i))
	}

	assert.Equal(t, 3, m.Len())
	assert.Equal(t, 2, m.Cursor())
	assert.Equal(t, []schema.Graph{graphN(3), graphN(4), graphN(5)}, m.Entries())

	m.Undo()
	m.Undo()
	_, ok := m.Undo()
	assert.False(t, ok)
	assert.Equal(t, graphN(3), m.Current())
}

func TestWithLimit_IgnoresSmallValues(t *testing.T) {
	m := New(graphN(0), WithLimit(1))
	m.Commit(graphN(1))
	m.Commit(graphN(2))
	assert.Equal(t, 3, m.Len())
}

func TestReset(t *testing.T) {
	m := New(graphN(0))
	m.Commit(graphN(1))
	m.Reset(graphN(4))

	assert.Equal(t, 1, m.Len())
	assert.Equal(t, graphN(4), m.Current())
}
