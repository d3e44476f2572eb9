package panel

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/vsm/internal/editor"
	"github.com/rendis/vsm/internal/engine"
	"github.com/rendis/vsm/internal/persistence"
	"github.com/rendis/vsm/internal/scheduler"
	"github.com/rendis/vsm/internal/store"
	"github.com/rendis/vsm/internal/streaming"
	"github.com/rendis/vsm/internal/telemetry"
	"github.com/rendis/vsm/pkg/schema"
)

const wizardYAML = `
title: Brackets
customer:
  demandPerDay: 460
processes:
  - name: Stamp
    cycleTime: 1
    inventoryAfter:
      amount: 4600
  - name: Weld
    cycleTime: 39
`

type harness struct {
	handler   http.Handler
	executor  *engine.Engine
	telemetry *telemetry.Registry
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	backing := store.NewMemoryStore()
	gate := persistence.New(persistence.Deps{Store: backing, Logger: logger})
	hub := streaming.NewMemoryHub()
	reg := telemetry.NewRegistry()
	session := editor.New(ctx, editor.Deps{Gate: gate, Hub: hub, Telemetry: reg, Logger: logger})

	sched, err := scheduler.NewScheduler(scheduler.Deps{Store: backing, Key: gate.Key(), Logger: logger})
	require.NoError(t, err)

	exec, err := engine.NewEngine(engine.Deps{
		Serial:    editor.NewSerial(session),
		Gate:      gate,
		Scheduler: sched,
		Logger:    logger,
	})
	require.NoError(t, err)

	srv := NewPanelServer(PanelDeps{Executor: exec, Hub: hub, Telemetry: reg, Logger: logger})
	return &harness{handler: srv.Handler(), executor: exec, telemetry: reg}
}

func (h *harness) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestPages(t *testing.T) {
	h := newHarness(t)
	for _, path := range []string{"/", "/history", "/maintenance"} {
		rec := h.do(t, http.MethodGet, path, "")
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	}

	rec := h.do(t, http.MethodGet, "/", "")
	assert.Contains(t, rec.Body.String(), "The canvas is empty")

	h.do(t, http.MethodPost, "/api/wizard", wizardYAML)
	rec = h.do(t, http.MethodGet, "/", "")
	body := rec.Body.String()
	assert.Contains(t, body, "graph LR")
	assert.Contains(t, body, "Lead time")
	assert.Contains(t, body, "Weld")
}

func TestStaticAssets(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/static/panel.js", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "EventSource")
}

func TestCommandRoundTrip(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/commands", `{"action":"add_node","symbol_type":"process","data":{"name":"Cut","cycleTime":40}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[engine.Result](t, rec)
	assert.True(t, res.Applied)
	assert.NotEmpty(t, res.NodeID)
	assert.Equal(t, int64(1), res.Revision)

	rec = h.do(t, http.MethodGet, "/api/graph", "")
	g := decode[schema.Graph](t, rec)
	require.Len(t, g.Nodes, 1)
	assert.Equal(t, "Cut", g.Nodes[0].Data[schema.FieldName])

	rec = h.do(t, http.MethodPost, "/api/commands", `{"action":"undo"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	g = decode[schema.Graph](t, h.do(t, http.MethodGet, "/api/graph", ""))
	assert.Empty(t, g.Nodes)

	st := decode[engine.Status](t, h.do(t, http.MethodGet, "/api/status", ""))
	assert.True(t, st.CanRedo)
}

func TestCommandErrors(t *testing.T) {
	h := newHarness(t)
	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"bad json", `{`, http.StatusBadRequest, ""},
		{"unknown action", `{"action":"explode"}`, http.StatusBadRequest, schema.ErrCodeValidation},
		{"dangling connect", `{"action":"connect","source":"a","target":"b"}`, http.StatusBadRequest, schema.ErrCodeInvalidEdge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.do(t, http.MethodPost, "/api/commands", tt.body)
			assert.Equal(t, tt.status, rec.Code)
			body := decode[map[string]any](t, rec)
			assert.NotEmpty(t, body["error"])
			if tt.code != "" {
				assert.Equal(t, tt.code, body["code"])
			}
		})
	}
}

func TestWizardAndReads(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/wizard", wizardYAML)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	snap := decode[schema.MetricsSnapshot](t, h.do(t, http.MethodGet, "/api/metrics", ""))
	assert.InDelta(t, 62.61, snap.TaktTime, 0.01)
	require.NotNil(t, snap.BottleneckNodeID)
	assert.Equal(t, "process-2", *snap.BottleneckNodeID)

	rec = h.do(t, http.MethodGet, "/api/ladder", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "segments")

	rec = h.do(t, http.MethodGet, "/api/render", "")
	assert.Contains(t, rec.Body.String(), `"isBottleneck":true`)

	rec = h.do(t, http.MethodGet, "/api/insights", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "findings")

	rec = h.do(t, http.MethodGet, "/api/validate", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	entries := decode[[]map[string]any](t, h.do(t, http.MethodGet, "/api/journal?limit=10", ""))
	assert.Len(t, entries, 1)

	rec = h.do(t, http.MethodPost, "/api/wizard", `processes: []`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDiagramFormats(t *testing.T) {
	h := newHarness(t)
	h.do(t, http.MethodPost, "/api/wizard", wizardYAML)

	rec := h.do(t, http.MethodGet, "/api/diagram", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "graph LR"))

	rec = h.do(t, http.MethodGet, "/api/diagram?format=ladder", "")
	assert.Contains(t, rec.Body.String(), "Lead time")

	rec = h.do(t, http.MethodGet, "/api/diagram?format=pdf", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSimulateAndQuery(t *testing.T) {
	h := newHarness(t)
	h.do(t, http.MethodPost, "/api/wizard", wizardYAML)

	rec := h.do(t, http.MethodPost, "/api/simulate", `
name: faster weld
adjustments:
  - target: process-2
    field: cycleTime
    expression: cycleTime - 9
`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[map[string]any](t, rec)
	assert.Equal(t, "faster weld", res["name"])

	rec = h.do(t, http.MethodPost, "/api/simulate", `name: idle`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/query", `{"expression":"[.graph.nodes[] | select(.kind == \"process\") | .id]"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decode[map[string][]any](t, rec)
	assert.Equal(t, []any{[]any{"process-1", "process-2"}}, out["results"])

	rec = h.do(t, http.MethodPost, "/api/query", `{"expression":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIcons(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/icons", `{"name":"Robot","imageData":"data:image/png;base64,AA=="}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	icon := decode[persistence.Icon](t, rec)

	icons := decode[[]persistence.Icon](t, h.do(t, http.MethodGet, "/api/icons", ""))
	assert.Len(t, icons, 1)

	rec = h.do(t, http.MethodDelete, "/api/icons/"+icon.ID, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = h.do(t, http.MethodDelete, "/api/icons/"+icon.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/icons", `{"name":"blank"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMaintenance(t *testing.T) {
	h := newHarness(t)
	h.do(t, http.MethodPost, "/api/wizard", wizardYAML)

	rec := h.do(t, http.MethodPost, "/api/maintenance/backup", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	st := decode[engine.MaintenanceStatus](t, h.do(t, http.MethodGet, "/api/maintenance", ""))
	assert.Len(t, st.Jobs, 2)
	assert.Len(t, st.Backups, 1)

	rec = h.do(t, http.MethodPost, "/api/maintenance/defrag", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/commands", `{"action":"clear"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(t, http.MethodPost, "/api/backups/restore", `{"key":"`+st.Backups[0]+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[engine.Result](t, rec)
	assert.Equal(t, engine.ActionRestore, res.Action)
	assert.True(t, res.CanUndo)
	g := decode[schema.Graph](t, h.do(t, http.MethodGet, "/api/graph", ""))
	assert.NotEmpty(t, g.Nodes)

	rec = h.do(t, http.MethodPost, "/api/backups/restore", `{"key":"vsm-custom-icons"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = h.do(t, http.MethodPost, "/api/backups/restore", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRequestTelemetry(t *testing.T) {
	h := newHarness(t)
	h.do(t, http.MethodGet, "/api/graph", "")
	h.do(t, http.MethodDelete, "/api/icons/nope", "")

	rec := h.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `vsm_http_requests_total{method="GET",path="GET /api/graph",status="200"} 1`)
	assert.Contains(t, body, `path="DELETE /api/icons/{id}",status="404"`)
}

func TestSSE_StreamsCommits(t *testing.T) {
	h := newHarness(t)
	srv := httptest.NewServer(h.handler)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/sse/events?types=graph_committed", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, ": connected\n", line)

	_, err = h.executor.Apply(ctx, engine.Command{Action: schema.ActionAddNode, SymbolType: schema.SymbolProcess})
	require.NoError(t, err)

	var event, data string
	for event == "" || data == "" {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event: "))
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimSpace(strings.TrimPrefix(line, "data: "))
		}
	}
	assert.Equal(t, schema.EventGraphCommitted, event)
	var ev streaming.GraphEvent
	require.NoError(t, json.Unmarshal([]byte(data), &ev))
	assert.Equal(t, schema.ActionAddNode, ev.Action)
	assert.Equal(t, persistence.CanvasKey, ev.DiagramID)
}

func TestHelpers(t *testing.T) {
	assert.Equal(t, "badge-error", severityBadge("critical"))
	assert.Equal(t, "badge-success", severityBadge("success"))
	assert.Equal(t, "badge-secondary", severityBadge(nil))
	assert.Equal(t, "45s", formatSeconds(45))
	assert.Equal(t, "2h", formatSeconds(7200))
	assert.Equal(t, "2.5d", formatSeconds(216000))
	assert.Equal(t, "abc...", truncate("abcdef", 3))
	assert.Equal(t, http.StatusNotFound, statusFor(schema.ErrCodeNotFound))
	assert.Equal(t, http.StatusInternalServerError, statusFor(schema.ErrCodeStore))
}
