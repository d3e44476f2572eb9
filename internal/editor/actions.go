package editor

import (
	"context"

	"github.com/rendis/vsm/internal/graphstore"
	"github.com/rendis/vsm/pkg/schema"
)

// AddNode drops a symbol on the canvas and commits. It returns the new id.
func (s *Session) AddNode(ctx context.Context, kind schema.NodeKind, sym schema.SymbolType, pos schema.Position, data map[string]any) string {
	id := s.store.AddNode(kind, sym, pos, data)
	s.commit(ctx, schema.ActionAddNode, id)
	return id
}

// EditField changes one attribute without committing, as a form field does
// while it has focus. Unknown nodes are ignored.
func (s *Session) EditField(ctx context.Context, nodeID, field string, value any) bool {
	if !s.store.UpdateNodeField(nodeID, field, value) {
		return false
	}
	s.dirty = true
	s.touch()
	s.publish(ctx, Event{Type: schema.EventGraphChanged, Action: schema.ActionUpdateField, NodeID: nodeID})
	return true
}

// CommitEdit closes a run of EditField calls with one history entry. It
// reports whether anything was pending.
func (s *Session) CommitEdit(ctx context.Context) bool {
	if !s.dirty {
		return false
	}
	s.commit(ctx, schema.ActionUpdateField, "")
	return true
}

// SetField is EditField followed by CommitEdit.
func (s *Session) SetField(ctx context.Context, nodeID, field string, value any) bool {
	if !s.store.UpdateNodeField(nodeID, field, value) {
		return false
	}
	s.commit(ctx, schema.ActionUpdateField, nodeID)
	return true
}

// BeginDrag starts a move gesture on nodeID.
func (s *Session) BeginDrag(nodeID string) bool {
	n, ok := s.store.Node(nodeID)
	if !ok {
		return false
	}
	s.drag = &dragState{nodeID: nodeID, origin: n.Position}
	return true
}

// DragTo moves the dragged node without committing. Dragging a node that
// was not begun starts a gesture on it.
func (s *Session) DragTo(ctx context.Context, nodeID string, pos schema.Position) bool {
	if s.drag == nil || s.drag.nodeID != nodeID {
		if !s.BeginDrag(nodeID) {
			return false
		}
	}
	if !s.store.MoveNode(nodeID, pos) {
		return false
	}
	s.touch()
	s.publish(ctx, Event{Type: schema.EventGraphChanged, Action: schema.ActionMoveNode, NodeID: nodeID})
	return true
}

// EndDrag finishes the gesture with one history entry, or none when the node
// ended where it started.
func (s *Session) EndDrag(ctx context.Context) bool {
	d := s.drag
	s.drag = nil
	if d == nil {
		return false
	}
	n, ok := s.store.Node(d.nodeID)
	if !ok || n.Position == d.origin {
		return false
	}
	s.commit(ctx, schema.ActionMoveNode, d.nodeID)
	return true
}

// CancelDrag puts the dragged node back where the gesture started.
func (s *Session) CancelDrag(ctx context.Context) bool {
	d := s.drag
	s.drag = nil
	if d == nil || !s.store.MoveNode(d.nodeID, d.origin) {
		return false
	}
	s.touch()
	s.publish(ctx, Event{Type: schema.EventGraphChanged, Action: schema.ActionMoveNode, NodeID: d.nodeID})
	return true
}

// MoveNode is a complete drag in one call.
func (s *Session) MoveNode(ctx context.Context, nodeID string, pos schema.Position) bool {
	if !s.store.MoveNode(nodeID, pos) {
		return false
	}
	s.commit(ctx, schema.ActionMoveNode, nodeID)
	return true
}

// DeleteNode removes a node and its edges.
func (s *Session) DeleteNode(ctx context.Context, nodeID string) bool {
	if !s.store.DeleteNode(nodeID) {
		return false
	}
	if s.drag != nil && s.drag.nodeID == nodeID {
		s.drag = nil
	}
	s.commit(ctx, schema.ActionDeleteNode, nodeID)
	return true
}

// Connect adds an edge. An invalid edge is returned to the caller and
// leaves the graph and history untouched.
func (s *Session) Connect(ctx context.Context, source, target string, flow schema.FlowType) (string, error) {
	id, err := s.store.Connect(source, target, flow)
	if err != nil {
		return "", err
	}
	s.commit(ctx, schema.ActionConnect, source)
	return id, nil
}

// DeleteEdge removes an edge.
func (s *Session) DeleteEdge(ctx context.Context, edgeID string) bool {
	if !s.store.DeleteEdge(edgeID) {
		return false
	}
	s.commit(ctx, schema.ActionDeleteEdge, "")
	return true
}

// Align lines nodes up on one axis and commits once.
func (s *Session) Align(ctx context.Context, nodeIDs []string, axis graphstore.Axis, strategy graphstore.AlignStrategy) bool {
	if !s.store.AlignNodes(nodeIDs, axis, strategy) {
		return false
	}
	s.commit(ctx, schema.ActionAlign, "")
	return true
}

// Clear empties the canvas. Clearing an empty canvas records nothing.
func (s *Session) Clear(ctx context.Context) bool {
	if nodes, edges := s.store.Len(); nodes == 0 && edges == 0 {
		return false
	}
	s.store.Clear()
	s.drag = nil
	s.commit(ctx, schema.ActionClear, "")
	return true
}

// ReplaceGraph swaps the whole canvas for g, normalizing every node through
// the registry, and commits once. It returns the number of dropped edges.
func (s *Session) ReplaceGraph(ctx context.Context, g schema.Graph) int {
	g = g.Clone()
	reg := s.store.Registry()
	for i := range g.Nodes {
		reg.Normalize(&g.Nodes[i])
	}
	for i := range g.Edges {
		if g.Edges[i].FlowType == "" {
			g.Edges[i].FlowType = schema.FlowMaterial
		}
	}
	dropped := s.store.Replace(g)
	s.drag = nil
	s.commit(ctx, schema.ActionReplace, "")
	return dropped
}

// Undo reverts to the previous committed graph. A pending field edit or an
// open drag is committed first so it is what gets undone.
func (s *Session) Undo(ctx context.Context) bool {
	s.EndDrag(ctx)
	s.CommitEdit(ctx)
	g, ok := s.history.Undo()
	if !ok {
		return false
	}
	s.restore(ctx, g, schema.ActionUndo)
	return true
}

// Redo re-applies the next graph on the history stack. A pending field edit
// or an open drag is committed first, which discards the redo branch.
func (s *Session) Redo(ctx context.Context) bool {
	s.EndDrag(ctx)
	s.CommitEdit(ctx)
	g, ok := s.history.Redo()
	if !ok {
		return false
	}
	s.restore(ctx, g, schema.ActionRedo)
	return true
}
