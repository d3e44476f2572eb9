package engine

import (
	"context"
	"slices"

	"github.com/rendis/vsm/internal/editor"
	"github.com/rendis/vsm/internal/graphstore"
	"github.com/rendis/vsm/internal/logging"
	"github.com/rendis/vsm/internal/wizard"
	"github.com/rendis/vsm/pkg/schema"
)

// Session-level actions that are not graph mutations.
const (
	ActionEditField  = "edit_field"
	ActionCommitEdit = "commit_edit"
	ActionSetTakt    = "set_takt_time"
	ActionWizard     = "wizard"
	ActionRestore    = "restore_backup"
	ActionBeginDrag  = "begin_drag"
	ActionDragTo     = "drag_to"
	ActionEndDrag    = "end_drag"
	ActionCancelDrag = "cancel_drag"
)

// Actions lists every action Apply accepts.
var Actions = []string{
	schema.ActionAddNode,
	schema.ActionUpdateField,
	ActionEditField,
	ActionCommitEdit,
	schema.ActionMoveNode,
	ActionBeginDrag,
	ActionDragTo,
	ActionEndDrag,
	ActionCancelDrag,
	schema.ActionDeleteNode,
	schema.ActionConnect,
	schema.ActionDeleteEdge,
	schema.ActionAlign,
	schema.ActionClear,
	schema.ActionReplace,
	schema.ActionUndo,
	schema.ActionRedo,
	ActionSetTakt,
}

// Command is one editing request. Which fields matter depends on Action.
type Command struct {
	Action     string            `json:"action"`
	NodeID     string            `json:"node_id,omitempty"`
	Kind       schema.NodeKind   `json:"kind,omitempty"`
	SymbolType schema.SymbolType `json:"symbol_type,omitempty"`
	Position   *schema.Position  `json:"position,omitempty"`
	Data       map[string]any    `json:"data,omitempty"`
	Field      string            `json:"field,omitempty"`
	Value      any               `json:"value,omitempty"`
	Source     string            `json:"source,omitempty"`
	Target     string            `json:"target,omitempty"`
	FlowType   schema.FlowType   `json:"flow_type,omitempty"`
	EdgeID     string            `json:"edge_id,omitempty"`
	NodeIDs    []string          `json:"node_ids,omitempty"`
	Axis       string            `json:"axis,omitempty"`
	Strategy   string            `json:"strategy,omitempty"`
	Graph      *schema.Graph     `json:"graph,omitempty"`
	TaktTime   *float64          `json:"takt_time,omitempty"`
}

// Result reports what a command did. Applied is false for silent no-ops
// such as deleting an unknown node or undoing with nothing to undo.
type Result struct {
	Action       string   `json:"action"`
	Applied      bool     `json:"applied"`
	NodeID       string   `json:"node_id,omitempty"`
	EdgeID       string   `json:"edge_id,omitempty"`
	DroppedEdges int      `json:"dropped_edges,omitempty"`
	Warnings     []string `json:"warnings,omitempty"`
	Revision     int64    `json:"revision"`
	CanUndo      bool     `json:"can_undo"`
	CanRedo      bool     `json:"can_redo"`
	Dirty        bool     `json:"dirty"`
}

// Apply validates cmd and runs it against the session as one action.
func (e *Engine) Apply(ctx context.Context, cmd Command) (*Result, error) {
	if err := checkCommand(cmd); err != nil {
		return nil, err
	}
	ctx = logging.WithIDs(ctx, "", cmd.Action, cmd.NodeID)

	var warnings []string
	if cmd.Action == schema.ActionReplace {
		res := e.validator.ValidateGraph(cmd.Graph)
		if err := res.ToError(schema.ErrCodeValidation); err != nil {
			return nil, err
		}
		for _, w := range res.Warnings {
			warnings = append(warnings, w.Message)
		}
	}

	var out *Result
	err := e.serial.Do(func(s *editor.Session) error {
		r, err := apply(ctx, s, cmd)
		if err != nil {
			return err
		}
		r.Warnings = warnings
		out = e.finish(s, r)
		return nil
	})
	if err != nil {
		e.logger.WarnContext(ctx, "command rejected", "error", err.Error())
		return nil, err
	}
	e.logger.DebugContext(ctx, "command applied", "applied", out.Applied, "revision", out.Revision)
	return out, nil
}

// ApplyWizard validates form, projects it and replaces the canvas with one commit.
func (e *Engine) ApplyWizard(ctx context.Context, form *wizard.Form) (*Result, error) {
	if err := wizard.Validate(form); err != nil {
		return nil, err
	}
	var out *Result
	err := e.serial.Do(func(s *editor.Session) error {
		g, err := wizard.Build(form, s.Registry())
		if err != nil {
			return err
		}
		r := &Result{Action: ActionWizard, Applied: true}
		r.DroppedEdges = s.ReplaceGraph(ctx, g)
		out = e.finish(s, r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RestoreBackup validates a backup document and swaps it in through the
// session with one commit.
func (e *Engine) RestoreBackup(ctx context.Context, backupKey string) (*Result, error) {
	if e.scheduler == nil {
		return nil, errNoStorage("restore")
	}
	ctx = logging.WithIDs(ctx, "", ActionRestore, "")
	body, err := e.scheduler.ReadBackup(ctx, backupKey)
	if err != nil {
		return nil, err
	}
	g, res := e.validator.Validate(body)
	if err := res.ToError(schema.ErrCodeValidation); err != nil {
		return nil, err
	}

	var out *Result
	err = e.serial.Do(func(s *editor.Session) error {
		r := &Result{Action: ActionRestore, Applied: true}
		r.DroppedEdges = s.ReplaceGraph(ctx, *g)
		for _, w := range res.Warnings {
			r.Warnings = append(r.Warnings, w.Message)
		}
		out = e.finish(s, r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.logger.InfoContext(ctx, "canvas restored from backup", "backup", backupKey, "revision", out.Revision)
	return out, nil
}

func (e *Engine) finish(s *editor.Session, r *Result) *Result {
	r.CanUndo, r.CanRedo, r.Dirty = s.CanUndo(), s.CanRedo(), s.Dirty()
	if e.gate != nil {
		r.Revision = e.gate.Revision()
	}
	if err := s.LastPersistError(); err != nil && r.Applied {
		r.Warnings = append(r.Warnings, "not saved: "+err.Error())
	}
	return r
}

func apply(ctx context.Context, s *editor.Session, cmd Command) (*Result, error) {
	r := &Result{Action: cmd.Action, NodeID: cmd.NodeID}
	switch cmd.Action {
	case schema.ActionAddNode:
		pos := schema.Position{}
		if cmd.Position != nil {
			pos = *cmd.Position
		}
		kind := cmd.Kind
		if kind == "" {
			kind = s.Registry().KindOf(cmd.SymbolType)
		}
		r.NodeID = s.AddNode(ctx, kind, cmd.SymbolType, pos, cmd.Data)
		r.Applied = true
	case schema.ActionUpdateField:
		r.Applied = s.SetField(ctx, cmd.NodeID, cmd.Field, cmd.Value)
	case ActionEditField:
		r.Applied = s.EditField(ctx, cmd.NodeID, cmd.Field, cmd.Value)
	case ActionCommitEdit:
		r.Applied = s.CommitEdit(ctx)
	case schema.ActionMoveNode:
		r.Applied = s.MoveNode(ctx, cmd.NodeID, *cmd.Position)
	case ActionBeginDrag:
		r.Applied = s.BeginDrag(cmd.NodeID)
	case ActionDragTo:
		r.Applied = s.DragTo(ctx, cmd.NodeID, *cmd.Position)
	case ActionEndDrag:
		r.Applied = s.EndDrag(ctx)
	case ActionCancelDrag:
		r.Applied = s.CancelDrag(ctx)
	case schema.ActionDeleteNode:
		r.Applied = s.DeleteNode(ctx, cmd.NodeID)
	case schema.ActionConnect:
		id, err := s.Connect(ctx, cmd.Source, cmd.Target, cmd.FlowType)
		if err != nil {
			return nil, err
		}
		r.EdgeID, r.Applied = id, true
	case schema.ActionDeleteEdge:
		r.EdgeID = cmd.EdgeID
		r.Applied = s.DeleteEdge(ctx, cmd.EdgeID)
	case schema.ActionAlign:
		strategy := graphstore.AlignStrategy(cmd.Strategy)
		if strategy == "" {
			strategy = graphstore.AlignMin
		}
		r.Applied = s.Align(ctx, cmd.NodeIDs, graphstore.Axis(cmd.Axis), strategy)
	case schema.ActionClear:
		r.Applied = s.Clear(ctx)
	case schema.ActionReplace:
		r.DroppedEdges = s.ReplaceGraph(ctx, *cmd.Graph)
		r.Applied = true
	case schema.ActionUndo:
		r.Applied = s.Undo(ctx)
	case schema.ActionRedo:
		r.Applied = s.Redo(ctx)
	case ActionSetTakt:
		s.SetTaktTime(*cmd.TaktTime)
		r.Applied = true
	}
	return r, nil
}

// checkCommand rejects commands missing the fields their action needs.
func checkCommand(cmd Command) error {
	missing := func(field string) error {
		return schema.NewErrorf(schema.ErrCodeValidation, "%s requires %s", cmd.Action, field).
			WithDetails(map[string]any{"action": cmd.Action, "field": field})
	}
	switch cmd.Action {
	case schema.ActionAddNode:
		if cmd.SymbolType == "" {
			return missing("symbol_type")
		}
		if cmd.Kind != "" && !cmd.Kind.Valid() {
			return schema.NewErrorf(schema.ErrCodeValidation, "unknown node kind %q", cmd.Kind)
		}
	case schema.ActionUpdateField, ActionEditField:
		if cmd.NodeID == "" {
			return missing("node_id")
		}
		if cmd.Field == "" {
			return missing("field")
		}
	case schema.ActionMoveNode, ActionDragTo:
		if cmd.NodeID == "" {
			return missing("node_id")
		}
		if cmd.Position == nil {
			return missing("position")
		}
	case schema.ActionDeleteNode, ActionBeginDrag:
		if cmd.NodeID == "" {
			return missing("node_id")
		}
	case schema.ActionConnect:
		if cmd.Source == "" || cmd.Target == "" {
			return missing("source and target")
		}
		if cmd.FlowType != "" && !cmd.FlowType.Valid() {
			return schema.NewErrorf(schema.ErrCodeInvalidEdge, "unknown flow type %q", cmd.FlowType)
		}
	case schema.ActionDeleteEdge:
		if cmd.EdgeID == "" {
			return missing("edge_id")
		}
	case schema.ActionAlign:
		if len(cmd.NodeIDs) == 0 {
			return missing("node_ids")
		}
		if cmd.Axis != string(graphstore.AxisX) && cmd.Axis != string(graphstore.AxisY) {
			return schema.NewErrorf(schema.ErrCodeValidation, "axis must be x or y, got %q", cmd.Axis)
		}
		if cmd.Strategy != "" && cmd.Strategy != string(graphstore.AlignMin) && cmd.Strategy != string(graphstore.AlignCentroid) {
			return schema.NewErrorf(schema.ErrCodeValidation, "strategy must be min or centroid, got %q", cmd.Strategy)
		}
	case schema.ActionReplace:
		if cmd.Graph == nil {
			return missing("graph")
		}
	case ActionSetTakt:
		if cmd.TaktTime == nil || *cmd.TaktTime < 0 {
			return missing("a non-negative takt_time")
		}
	case ActionCommitEdit, ActionEndDrag, ActionCancelDrag, schema.ActionClear, schema.ActionUndo, schema.ActionRedo:
	default:
		if !slices.Contains(Actions, cmd.Action) {
			return schema.NewErrorf(schema.ErrCodeValidation, "unknown action %q", cmd.Action).
				WithDetails(map[string]any{"actions": Actions})
		}
	}
	return nil
}
