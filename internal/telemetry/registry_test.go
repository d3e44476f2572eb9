package telemetry

import (
	"errors"
	"io"
	"math"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/vsm/pkg/schema"
)

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	require.NotNil(t, r.ActionsTotal)
	require.NotNil(t, r.PersistWritesTotal)
	require.NotNil(t, r.GraphNodes)
	require.NotNil(t, r.HTTPRequestsTotal)
	assert.NotNil(t, r.GetPrometheusRegistry())
}

func TestDefaultRegistry(t *testing.T) {
	assert.Same(t, DefaultRegistry(), DefaultRegistry())
}

func TestRecordAction(t *testing.T) {
	r := NewRegistry()
	r.RecordAction(schema.ActionAddNode, 2, 1)
	r.RecordAction(schema.ActionAddNode, 3, 2)
	r.RecordAction(schema.ActionUndo, 3, 1)

	assert.Equal(t, 2.0, counterValue(t, r.ActionsTotal.WithLabelValues(schema.ActionAddNode)))
	assert.Equal(t, 1.0, counterValue(t, r.ActionsTotal.WithLabelValues(schema.ActionUndo)))
	assert.Equal(t, 3.0, gaugeValue(t, r.HistoryEntries))
	assert.Equal(t, 1.0, gaugeValue(t, r.HistoryCursor))
}

func TestRecordPersist(t *testing.T) {
	r := NewRegistry()
	r.RecordPersist(nil, time.Millisecond)
	r.RecordPersist(errors.New("boom"), time.Millisecond)
	r.RecordPersist(nil, time.Millisecond)

	assert.Equal(t, 2.0, counterValue(t, r.PersistWritesTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, counterValue(t, r.PersistWritesTotal.WithLabelValues("error")))
}

func TestObserveGraph(t *testing.T) {
	r := NewRegistry()
	g := schema.Graph{Nodes: make([]schema.Node, 3), Edges: make([]schema.Edge, 2)}
	snap := schema.MetricsSnapshot{TotalLeadTime: 86460, ProcessCycleEfficiency: 0.05, TaktTime: 60,
		EPEI: &schema.EPEI{Days: math.Inf(1)}}

	r.ObserveGraph(g, snap)
	assert.Equal(t, 3.0, gaugeValue(t, r.GraphNodes))
	assert.Equal(t, 2.0, gaugeValue(t, r.GraphEdges))
	assert.Equal(t, 86460.0, gaugeValue(t, r.LeadTimeSeconds))
	assert.Equal(t, 60.0, gaugeValue(t, r.TaktTimeSeconds))
	assert.True(t, math.IsInf(gaugeValue(t, r.EPEIDays), 1))

	snap.EPEI = nil
	r.ObserveGraph(g, snap)
	assert.True(t, math.IsNaN(gaugeValue(t, r.EPEIDays)))
}

func TestHandlerExposesMetrics(t *testing.T) {
	r := NewRegistry()
	r.RecordHTTPRequest("GET", "/api/graph", "200", 5*time.Millisecond)
	r.RecordToolCall("vsm.metrics", nil)
	r.RecordMaintenance("backup", nil)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	out := string(body)
	assert.Contains(t, out, `vsm_http_requests_total{method="GET",path="/api/graph",status="200"} 1`)
	assert.Contains(t, out, `vsm_mcp_tool_calls_total{status="ok",tool="vsm.metrics"} 1`)
	assert.Contains(t, out, `vsm_maintenance_runs_total{job="backup",status="ok"} 1`)
}
