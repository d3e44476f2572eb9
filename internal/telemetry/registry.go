// Package telemetry exposes editor and persistence counters and the headline
// value stream KPIs as Prometheus metrics.
package telemetry

import (
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rendis/vsm/pkg/schema"
)

// Registry holds all metrics for the application.
type Registry struct {
	// Editor
	ActionsTotal   *prometheus.CounterVec
	HistoryEntries prometheus.Gauge
	HistoryCursor  prometheus.Gauge

	// Persistence
	PersistWritesTotal   *prometheus.CounterVec
	PersistWriteDuration prometheus.Histogram
	LoadsTotal           *prometheus.CounterVec

	// Graph
	GraphNodes             prometheus.Gauge
	GraphEdges             prometheus.Gauge
	LeadTimeSeconds        prometheus.Gauge
	ProcessCycleEfficiency prometheus.Gauge
	TaktTimeSeconds        prometheus.Gauge
	EPEIDays               prometheus.Gauge

	// Transports
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	ToolCallsTotal      *prometheus.CounterVec
	StreamClients       prometheus.Gauge

	// Maintenance
	MaintenanceRunsTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

var (
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the process-wide registry.
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a registry with every metric registered.
func NewRegistry() *Registry {
	r := &Registry{registry: prometheus.NewRegistry()}
	r.initEditorMetrics()
	r.initPersistenceMetrics()
	r.initGraphMetrics()
	r.initTransportMetrics()
	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry.
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Registry) initEditorMetrics() {
	f := promauto.With(r.registry)
	r.ActionsTotal = f.NewCounterVec(prometheus.CounterOpts{
		Name: "vsm_editor_actions_total",
		Help: "Editor actions applied, by action",
	}, []string{"action"})
	r.HistoryEntries = f.NewGauge(prometheus.GaugeOpts{
		Name: "vsm_history_entries",
		Help: "Snapshots held by the undo history",
	})
	r.HistoryCursor = f.NewGauge(prometheus.GaugeOpts{
		Name: "vsm_history_cursor",
		Help: "Index of the current history snapshot",
	})
}

func (r *Registry) initPersistenceMetrics() {
	f := promauto.With(r.registry)
	r.PersistWritesTotal = f.NewCounterVec(prometheus.CounterOpts{
		Name: "vsm_persistence_writes_total",
		Help: "Canvas saves, by status",
	}, []string{"status"})
	r.PersistWriteDuration = f.NewHistogram(prometheus.HistogramOpts{
		Name:    "vsm_persistence_write_duration_seconds",
		Help:    "Canvas save duration in seconds",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
	})
	r.LoadsTotal = f.NewCounterVec(prometheus.CounterOpts{
		Name: "vsm_persistence_loads_total",
		Help: "Canvas hydrations, by outcome",
	}, []string{"outcome"})
	r.MaintenanceRunsTotal = f.NewCounterVec(prometheus.CounterOpts{
		Name: "vsm_maintenance_runs_total",
		Help: "Scheduled store maintenance runs, by job and status",
	}, []string{"job", "status"})
}

func (r *Registry) initGraphMetrics() {
	f := promauto.With(r.registry)
	r.GraphNodes = f.NewGauge(prometheus.GaugeOpts{
		Name: "vsm_graph_nodes",
		Help: "Nodes on the canvas",
	})
	r.GraphEdges = f.NewGauge(prometheus.GaugeOpts{
		Name: "vsm_graph_edges",
		Help: "Edges on the canvas",
	})
	r.LeadTimeSeconds = f.NewGauge(prometheus.GaugeOpts{
		Name: "vsm_lead_time_seconds",
		Help: "Total lead time of the mapped value stream",
	})
	r.ProcessCycleEfficiency = f.NewGauge(prometheus.GaugeOpts{
		Name: "vsm_process_cycle_efficiency_percent",
		Help: "Value-added time over lead time",
	})
	r.TaktTimeSeconds = f.NewGauge(prometheus.GaugeOpts{
		Name: "vsm_takt_time_seconds",
		Help: "Effective takt time, 0 when unknown",
	})
	r.EPEIDays = f.NewGauge(prometheus.GaugeOpts{
		Name: "vsm_epei_days",
		Help: "Every-part-every-interval in days; +Inf when overloaded, NaN when not applicable",
	})
}

func (r *Registry) initTransportMetrics() {
	f := promauto.With(r.registry)
	r.HTTPRequestsTotal = f.NewCounterVec(prometheus.CounterOpts{
		Name: "vsm_http_requests_total",
		Help: "Panel API requests",
	}, []string{"method", "path", "status"})
	r.HTTPRequestDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vsm_http_request_duration_seconds",
		Help:    "Panel API request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
	r.ToolCallsTotal = f.NewCounterVec(prometheus.CounterOpts{
		Name: "vsm_mcp_tool_calls_total",
		Help: "MCP tool invocations, by tool and status",
	}, []string{"tool", "status"})
	r.StreamClients = f.NewGauge(prometheus.GaugeOpts{
		Name: "vsm_stream_clients",
		Help: "Connected live-update clients",
	})
}

// RecordAction counts one applied editor action and the resulting history shape.
func (r *Registry) RecordAction(action string, historyLen, cursor int) {
	r.ActionsTotal.WithLabelValues(action).Inc()
	r.HistoryEntries.Set(float64(historyLen))
	r.HistoryCursor.Set(float64(cursor))
}

// RecordPersist records one canvas save.
func (r *Registry) RecordPersist(err error, duration time.Duration) {
	r.PersistWritesTotal.WithLabelValues(status(err)).Inc()
	r.PersistWriteDuration.Observe(duration.Seconds())
}

// RecordLoad records a hydration outcome: empty, loaded or discarded.
func (r *Registry) RecordLoad(outcome string) {
	r.LoadsTotal.WithLabelValues(outcome).Inc()
}

// ObserveGraph publishes graph size and headline KPIs.
func (r *Registry) ObserveGraph(g schema.Graph, snap schema.MetricsSnapshot) {
	r.GraphNodes.Set(float64(len(g.Nodes)))
	r.GraphEdges.Set(float64(len(g.Edges)))
	r.LeadTimeSeconds.Set(snap.TotalLeadTime)
	r.ProcessCycleEfficiency.Set(snap.ProcessCycleEfficiency)
	r.TaktTimeSeconds.Set(snap.TaktTime)
	if snap.EPEI != nil {
		r.EPEIDays.Set(snap.EPEI.Days)
	} else {
		r.EPEIDays.Set(math.NaN())
	}
}

// RecordHTTPRequest records a panel request with its duration.
func (r *Registry) RecordHTTPRequest(method, path, statusCode string, duration time.Duration) {
	r.HTTPRequestsTotal.WithLabelValues(method, path, statusCode).Inc()
	r.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordToolCall records one MCP tool invocation.
func (r *Registry) RecordToolCall(tool string, err error) {
	r.ToolCallsTotal.WithLabelValues(tool, status(err)).Inc()
}

// RecordMaintenance records one scheduled maintenance run.
func (r *Registry) RecordMaintenance(job string, err error) {
	r.MaintenanceRunsTotal.WithLabelValues(job, status(err)).Inc()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
