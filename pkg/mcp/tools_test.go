package mcp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/vsm/internal/editor"
	"github.com/rendis/vsm/internal/engine"
	"github.com/rendis/vsm/internal/persistence"
	"github.com/rendis/vsm/internal/store"
	"github.com/rendis/vsm/internal/telemetry"
)

const lineForm = `
customer:
  demandPerDay: 460
processes:
  - name: Stamp
    cycleTime: 1
    inventoryAfter:
      amount: 4600
  - name: Weld
    cycleTime: 39
    changeoverTime: 600
`

func newTestServer(t *testing.T) (*VSMServer, *telemetry.Registry) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gate := persistence.New(persistence.Deps{Store: store.NewMemoryStore(), Logger: logger})
	session := editor.New(context.Background(), editor.Deps{Gate: gate, Logger: logger})
	exec, err := engine.NewEngine(engine.Deps{Serial: editor.NewSerial(session), Gate: gate, Logger: logger})
	require.NoError(t, err)

	reg := telemetry.NewRegistry()
	return NewVSMServer(VSMServerDeps{Executor: exec, Telemetry: reg, Logger: logger}), reg
}

func buildRequest(toolName string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      toolName,
			Arguments: args,
		},
	}
}

// call dispatches through the registered, instrumented handler.
func call(t *testing.T, s *VSMServer, toolName string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	tool := s.mcpServer.GetTool(toolName)
	require.NotNil(t, tool, toolName)
	result, err := tool.Handler(context.Background(), buildRequest(toolName, args))
	require.NoError(t, err)
	require.NotNil(t, result)
	return result
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	return mcp.GetTextFromContent(result.Content[0])
}

func resultJSON(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	require.False(t, result.IsError, resultText(t, result))
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &out))
	return out
}

func TestEditTool_AddUpdateUndo(t *testing.T) {
	s, _ := newTestServer(t)

	res := resultJSON(t, call(t, s, "vsm.edit", map[string]any{
		"action":      "add_node",
		"symbol_type": "process",
		"position":    map[string]any{"x": 120, "y": 200},
		"data":        map[string]any{"name": "Cut"},
	}))
	assert.Equal(t, true, res["applied"])
	nodeID, _ := res["node_id"].(string)
	require.NotEmpty(t, nodeID)

	res = resultJSON(t, call(t, s, "vsm.edit", map[string]any{
		"action":  "update_field",
		"node_id": nodeID,
		"field":   "cycleTime",
		"value":   "42",
	}))
	assert.Equal(t, true, res["applied"])

	node := resultJSON(t, call(t, s, "vsm.graph", map[string]any{"node_id": nodeID}))
	data := node["data"].(map[string]any)
	assert.Equal(t, 42.0, data["cycleTime"], "numeric strings decode as numbers")

	res = resultJSON(t, call(t, s, "vsm.edit", map[string]any{"action": "undo"}))
	assert.Equal(t, true, res["can_redo"])

	node = resultJSON(t, call(t, s, "vsm.graph", map[string]any{"node_id": nodeID}))
	assert.Equal(t, 0.0, node["data"].(map[string]any)["cycleTime"])

	hist := resultJSON(t, call(t, s, "vsm.history", nil))
	assert.Equal(t, 1.0, hist["cursor"])
	assert.Len(t, hist["journal"], 3)
}

func TestEditTool_Errors(t *testing.T) {
	s, _ := newTestServer(t)

	result := call(t, s, "vsm.edit", map[string]any{})
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "invalid arguments")
	assert.Contains(t, resultText(t, result), "action")

	result = call(t, s, "vsm.edit", map[string]any{"action": "teleport"})
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "invalid arguments")

	result = call(t, s, "vsm.edit", map[string]any{"action": "add_node", "symbol_type": "process", "position": "left"})
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "/position")
	assert.Empty(t, resultJSON(t, call(t, s, "vsm.graph", nil))["nodes"], "rejected call never reaches the canvas")

	result = call(t, s, "vsm.edit", map[string]any{"action": "connect", "source": "a", "target": "b"})
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "INVALID_EDGE")

	result = call(t, s, "vsm.graph", map[string]any{"node_id": "ghost"})
	assert.True(t, result.IsError)
}

func TestWizardAndAnalysisTools(t *testing.T) {
	s, _ := newTestServer(t)

	res := resultJSON(t, call(t, s, "vsm.wizard", map[string]any{"yaml": lineForm}))
	assert.Equal(t, "wizard", res["action"])

	snap := resultJSON(t, call(t, s, "vsm.metrics", nil))
	assert.Equal(t, "process-2", snap["bottleneckNodeId"])

	ladder := resultJSON(t, call(t, s, "vsm.timeline", nil))
	assert.Len(t, ladder["segments"], 3)

	text := resultText(t, call(t, s, "vsm.timeline", map[string]any{"format": "text"}))
	assert.Contains(t, text, "Lead time")

	sum := resultJSON(t, call(t, s, "vsm.insights", nil))
	assert.Contains(t, sum, "findings")

	valid := resultJSON(t, call(t, s, "vsm.validate", nil))
	assert.Equal(t, true, valid["valid"])

	status := resultJSON(t, call(t, s, "vsm.status", nil))
	assert.Equal(t, persistence.CanvasKey, status["diagram_id"])
}

func TestWizardTool_FormObject(t *testing.T) {
	s, _ := newTestServer(t)
	res := resultJSON(t, call(t, s, "vsm.wizard", map[string]any{
		"form": map[string]any{
			"customer":  map[string]any{"demandPerDay": 100},
			"processes": []any{map[string]any{"name": "Assemble", "cycleTime": 30}},
		},
	}))
	assert.Equal(t, true, res["applied"])

	result := call(t, s, "vsm.wizard", map[string]any{})
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "form or yaml is required")
}

func TestDiagramTool(t *testing.T) {
	s, _ := newTestServer(t)
	call(t, s, "vsm.wizard", map[string]any{"yaml": lineForm})

	text := resultText(t, call(t, s, "vsm.diagram", map[string]any{"format": "mermaid"}))
	assert.Contains(t, text, "graph LR")

	text = resultText(t, call(t, s, "vsm.diagram", map[string]any{"format": "ascii"}))
	assert.Contains(t, text, "Weld")

	result := call(t, s, "vsm.diagram", map[string]any{"format": "gif"})
	assert.True(t, result.IsError)

	result = call(t, s, "vsm.diagram", nil)
	assert.True(t, result.IsError)
}

func TestSimulateTool(t *testing.T) {
	s, _ := newTestServer(t)
	call(t, s, "vsm.wizard", map[string]any{"yaml": lineForm})

	res := resultJSON(t, call(t, s, "vsm.simulate", map[string]any{
		"scenario": map[string]any{
			"name": "smaller buffer",
			"adjustments": []any{
				map[string]any{"target": "inventory-1", "field": "amount", "expression": "amount / 2"},
			},
		},
	}))
	delta := res["delta"].(map[string]any)
	assert.Less(t, delta["leadTimeSeconds"].(float64), 0.0)

	result := call(t, s, "vsm.simulate", map[string]any{"yaml": "name: nothing"})
	assert.True(t, result.IsError)
}

func TestQueryTool(t *testing.T) {
	s, _ := newTestServer(t)
	call(t, s, "vsm.wizard", map[string]any{"yaml": lineForm})

	res := resultJSON(t, call(t, s, "vsm.query", map[string]any{
		"expression": `[.graph.nodes[] | select(.symbolType == "process") | .data.name]`,
	}))
	assert.Equal(t, []any{[]any{"Stamp", "Weld"}}, res["results"])

	result := call(t, s, "vsm.query", map[string]any{"expression": " "})
	assert.True(t, result.IsError)
}

func TestToolCallTelemetry(t *testing.T) {
	s, reg := newTestServer(t)
	call(t, s, "vsm.metrics", nil)
	call(t, s, "vsm.query", map[string]any{"expression": ""})

	assert.Equal(t, 1.0, counterValue(t, reg.ToolCallsTotal.WithLabelValues("vsm.metrics", "ok")))
	assert.Equal(t, 1.0, counterValue(t, reg.ToolCallsTotal.WithLabelValues("vsm.query", "error")))
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestParseValue(t *testing.T) {
	assert.Equal(t, 12.5, parseValue("12.5"))
	assert.Equal(t, true, parseValue("true"))
	assert.Equal(t, "Weld cell", parseValue("Weld cell"))
	assert.Equal(t, `{"a":1}`, parseValue(`{"a":1}`))
}
