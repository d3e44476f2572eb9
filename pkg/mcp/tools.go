package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/rendis/vsm/internal/diagram"
	"github.com/rendis/vsm/internal/engine"
	"github.com/rendis/vsm/internal/scenario"
	"github.com/rendis/vsm/internal/wizard"
	"github.com/rendis/vsm/pkg/schema"
)

var errToolResult = errors.New("tool returned an error result")

// --- Tool definitions ---

func clientIDOption() mcp.ToolOption {
	return mcp.WithString("client_id", mcp.Description("Caller identity; registered clients receive canvas change notifications"))
}

func statusTool() mcp.Tool {
	return mcp.NewTool("vsm.status",
		mcp.WithDescription("Get the canvas, its metrics and the undo/redo position"),
		clientIDOption(),
	)
}

func graphTool() mcp.Tool {
	return mcp.NewTool("vsm.graph",
		mcp.WithDescription("Get the value stream map graph (nodes and edges)"),
		mcp.WithString("node_id", mcp.Description("Return only this node")),
		clientIDOption(),
	)
}

func editTool() mcp.Tool {
	actions := make([]string, len(engine.Actions))
	copy(actions, engine.Actions)
	return mcp.NewTool("vsm.edit",
		mcp.WithDescription("Apply one editing action to the canvas. Every applied action is one undo step and is saved"),
		mcp.WithString("action", mcp.Required(), mcp.Enum(actions...), mcp.Description("Editing action")),
		mcp.WithString("node_id", mcp.Description("Target node (update_field, edit_field, move_node, begin_drag, drag_to, delete_node)")),
		mcp.WithString("symbol_type", mcp.Description("Symbol to add (add_node), e.g. process, inventory, customer")),
		mcp.WithString("kind", mcp.Description("Node kind override (add_node); derived from symbol_type when empty")),
		mcp.WithObject("position", mcp.Description("Canvas position {x, y} (add_node, move_node, drag_to)")),
		mcp.WithObject("data", mcp.Description("Attribute overrides for a new node (add_node)")),
		mcp.WithString("field", mcp.Description("Attribute name (update_field, edit_field)")),
		mcp.WithString("value", mcp.Description("New attribute value; JSON numbers and booleans are decoded")),
		mcp.WithString("source", mcp.Description("Edge source node (connect)")),
		mcp.WithString("target", mcp.Description("Edge target node (connect)")),
		mcp.WithString("flow_type", mcp.Enum("material", "information-manual", "information-electronic"), mcp.Description("Edge flow (connect); material by default")),
		mcp.WithString("edge_id", mcp.Description("Edge to delete (delete_edge)")),
		mcp.WithArray("node_ids", mcp.Description("Nodes to align (align)"), mcp.Items(map[string]any{"type": "string"})),
		mcp.WithString("axis", mcp.Enum("x", "y"), mcp.Description("Alignment axis (align)")),
		mcp.WithString("strategy", mcp.Enum("min", "centroid"), mcp.Description("Alignment target (align); min by default")),
		mcp.WithObject("graph", mcp.Description("Whole graph {nodes, edges} (replace_graph)")),
		mcp.WithNumber("takt_time", mcp.Description("Takt override in seconds, 0 to derive from the customer (set_takt_time)")),
		clientIDOption(),
	)
}

func historyTool() mcp.Tool {
	return mcp.NewTool("vsm.history",
		mcp.WithDescription("Get the undo/redo position and the journal of saved changes"),
		mcp.WithNumber("since", mcp.Description("Only journal entries after this sequence")),
		mcp.WithNumber("limit", mcp.Description("Maximum journal entries (default 50)")),
		clientIDOption(),
	)
}

func wizardTool() mcp.Tool {
	return mcp.NewTool("vsm.wizard",
		mcp.WithDescription("Build a complete value stream map from a configuration form, replacing the canvas"),
		mcp.WithObject("form", mcp.Description("Form with customer, supplier, processes, inventories and production control")),
		mcp.WithString("yaml", mcp.Description("The same form as YAML, used when form is absent")),
		clientIDOption(),
	)
}

func metricsTool() mcp.Tool {
	return mcp.NewTool("vsm.metrics",
		mcp.WithDescription("Compute lead time, value-added time, process cycle efficiency, takt, OEE, utilization, bottleneck and EPEI"),
		clientIDOption(),
	)
}

func timelineTool() mcp.Tool {
	return mcp.NewTool("vsm.timeline",
		mcp.WithDescription("Project the flow onto the timeline ladder of waiting and value-added segments"),
		mcp.WithString("format", mcp.Enum("json", "text"), mcp.Description("json (default) or a text ladder")),
		clientIDOption(),
	)
}

func diagramTool() mcp.Tool {
	formats := make([]string, 0, len(engine.DiagramFormats))
	for _, f := range engine.DiagramFormats {
		formats = append(formats, string(f))
	}
	return mcp.NewTool("vsm.diagram",
		mcp.WithDescription("Draw the value stream map. Returns Mermaid, ASCII art, the text ladder, SVG or a PNG image"),
		mcp.WithString("format", mcp.Required(), mcp.Enum(formats...), mcp.Description("Output format")),
		clientIDOption(),
	)
}

func insightsTool() mcp.Tool {
	return mcp.NewTool("vsm.insights",
		mcp.WithDescription("Summarize the map and list improvement findings (takt violations, low OEE, long changeovers, EPEI)"),
		clientIDOption(),
	)
}

func simulateTool() mcp.Tool {
	return mcp.NewTool("vsm.simulate",
		mcp.WithDescription("Run a what-if scenario on a copy of the map and compare metrics. The canvas is not changed"),
		mcp.WithObject("scenario", mcp.Description("Scenario {name, adjustments: [{target, field, expression}], removeNodes, taktTime}")),
		mcp.WithString("yaml", mcp.Description("The same scenario as YAML, used when scenario is absent")),
		clientIDOption(),
	)
}

func queryTool() mcp.Tool {
	return mcp.NewTool("vsm.query",
		mcp.WithDescription("Evaluate a jq expression against {graph, metrics}"),
		mcp.WithString("expression", mcp.Required(), mcp.Description("jq expression, e.g. .metrics.perNode")),
		clientIDOption(),
	)
}

func validateTool() mcp.Tool {
	return mcp.NewTool("vsm.validate",
		mcp.WithDescription("Validate the canvas: schema, identity, references and data plausibility"),
		clientIDOption(),
	)
}

// --- Handlers ---

func (s *VSMServer) handleStatus(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := s.executor.Status(ctx)
	if err != nil {
		return errorResult("status", err), nil
	}
	return marshalResult(st)
}

func (s *VSMServer) handleGraph(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	g, err := s.executor.Graph(ctx)
	if err != nil {
		return errorResult("graph", err), nil
	}
	nodeID := req.GetString("node_id", "")
	if nodeID == "" {
		return marshalResult(g)
	}
	for _, n := range g.Nodes {
		if n.ID == nodeID {
			return marshalResult(n)
		}
	}
	return mcp.NewToolResultError(fmt.Sprintf("node %q not found", nodeID)), nil
}

func (s *VSMServer) handleEdit(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if _, err := req.RequireString("action"); err != nil {
		return mcp.NewToolResultError("action is required"), nil
	}
	var cmd engine.Command
	if err := decodeArgs(req, &cmd); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if raw, ok := req.GetArguments()["value"].(string); ok {
		cmd.Value = parseValue(raw)
	}
	res, err := s.executor.Apply(ctx, cmd)
	if err != nil {
		return errorResult(cmd.Action, err), nil
	}
	return marshalResult(res)
}

func (s *VSMServer) handleHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := s.executor.Status(ctx)
	if err != nil {
		return errorResult("history", err), nil
	}
	since := int64(req.GetFloat("since", 0))
	limit := int(req.GetFloat("limit", 50))
	journal, err := s.executor.Journal(ctx, since, limit)
	if err != nil {
		return errorResult("journal", err), nil
	}
	return marshalResult(map[string]any{
		"entries":  st.HistoryEntries,
		"cursor":   st.HistoryCursor,
		"can_undo": st.CanUndo,
		"can_redo": st.CanRedo,
		"dirty":    st.Dirty,
		"journal":  journal,
	})
}

func (s *VSMServer) handleWizard(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := objectOrYAML(req, "form")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	form, err := wizard.Parse(raw)
	if err != nil {
		return errorResult("wizard", err), nil
	}
	res, err := s.executor.ApplyWizard(ctx, form)
	if err != nil {
		return errorResult("wizard", err), nil
	}
	return marshalResult(res)
}

func (s *VSMServer) handleMetrics(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snap, err := s.executor.Metrics(ctx)
	if err != nil {
		return errorResult("metrics", err), nil
	}
	return marshalResult(snap)
}

func (s *VSMServer) handleTimeline(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	l, err := s.executor.Ladder(ctx)
	if err != nil {
		return errorResult("timeline", err), nil
	}
	switch format := req.GetString("format", "json"); format {
	case "json":
		return marshalResult(l)
	case "text":
		return mcp.NewToolResultText(diagram.RenderLadder(l)), nil
	default:
		return mcp.NewToolResultError("format must be json or text"), nil
	}
}

func (s *VSMServer) handleDiagram(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	format, err := req.RequireString("format")
	if err != nil {
		return mcp.NewToolResultError("format is required"), nil
	}
	art, err := s.executor.Diagram(ctx, engine.DiagramFormat(format))
	if err != nil {
		return errorResult("diagram", err), nil
	}
	if art.Format == engine.FormatPNG {
		encoded := base64.StdEncoding.EncodeToString(art.Body)
		return mcp.NewToolResultImage("value stream map", encoded, art.ContentType), nil
	}
	return mcp.NewToolResultText(string(art.Body)), nil
}

func (s *VSMServer) handleInsights(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sum, err := s.executor.Insights(ctx)
	if err != nil {
		return errorResult("insights", err), nil
	}
	return marshalResult(sum)
}

func (s *VSMServer) handleSimulate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := objectOrYAML(req, "scenario")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sc, err := scenario.Parse(raw)
	if err != nil {
		return errorResult("simulate", err), nil
	}
	res, err := s.executor.Simulate(ctx, sc)
	if err != nil {
		return errorResult("simulate", err), nil
	}
	return marshalResult(res)
}

func (s *VSMServer) handleQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	expr, err := req.RequireString("expression")
	if err != nil || strings.TrimSpace(expr) == "" {
		return mcp.NewToolResultError("expression is required"), nil
	}
	out, err := s.executor.Query(ctx, expr)
	if err != nil {
		return errorResult("query", err), nil
	}
	return marshalResult(map[string]any{"results": out})
}

func (s *VSMServer) handleValidate(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.executor.Validate(ctx)
	if err != nil {
		return errorResult("validate", err), nil
	}
	return marshalResult(map[string]any{
		"valid":    res.Valid(),
		"errors":   res.Errors,
		"warnings": res.Warnings,
	})
}

// --- Helpers ---

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}

// errorResult renders err as a tool error. Structured errors keep their code.
func errorResult(op string, err error) *mcp.CallToolResult {
	var vErr *schema.VSMError
	if errors.As(err, &vErr) {
		return mcp.NewToolResultError(fmt.Sprintf("%s failed: %s", op, vErr.Error()))
	}
	return mcp.NewToolResultError(fmt.Sprintf("%s failed: %v", op, err))
}

// decodeArgs round-trips the tool arguments through JSON into v.
func decodeArgs(req mcp.CallToolRequest, v any) error {
	data, err := json.Marshal(req.GetArguments())
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// objectOrYAML returns the object argument key re-encoded as JSON, or the
// yaml argument when the object is absent. Both parse with the YAML decoders.
func objectOrYAML(req mcp.CallToolRequest, key string) ([]byte, error) {
	if obj := mcp.ParseStringMap(req, key, nil); obj != nil {
		return json.Marshal(obj)
	}
	if y := req.GetString("yaml", ""); strings.TrimSpace(y) != "" {
		return []byte(y), nil
	}
	return nil, fmt.Errorf("%s or yaml is required", key)
}

// parseValue decodes JSON scalars so numeric fields stay numeric; anything
// else is kept as the raw string.
func parseValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		switch v.(type) {
		case float64, bool, nil:
			return v
		}
	}
	return raw
}
