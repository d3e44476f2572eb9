package schema

// Event type constants published by the editor session.
const (
	EventGraphCommitted = "graph_committed"
	EventGraphRestored  = "graph_restored"
	EventGraphChanged   = "graph_changed"
	EventGraphLoaded    = "graph_loaded"
	EventIconsChanged   = "icons_changed"
)

// Action names recorded on history commits and log records.
const (
	ActionAddNode     = "add_node"
	ActionUpdateField = "update_field"
	ActionMoveNode    = "move_node"
	ActionDeleteNode  = "delete_node"
	ActionConnect     = "connect"
	ActionDeleteEdge  = "delete_edge"
	ActionAlign       = "align"
	ActionClear       = "clear"
	ActionReplace     = "replace_graph"
	ActionUndo        = "undo"
	ActionRedo        = "redo"
)
