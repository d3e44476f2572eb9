// Package panel serves the browser dashboard and the JSON API over the
// engine, plus a server-sent event stream of canvas changes.
package panel

import (
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"os"

	"github.com/rendis/vsm/internal/engine"
	"github.com/rendis/vsm/internal/streaming"
	"github.com/rendis/vsm/internal/telemetry"
)

//go:embed templates static
var content embed.FS

// PanelDeps holds the dependencies for the panel server.
type PanelDeps struct {
	Executor  engine.Executor
	Hub       streaming.EventHub  // optional; nil disables /sse
	Telemetry *telemetry.Registry // optional; nil disables /metrics
	Logger    *slog.Logger
}

// PanelServer serves the web panel.
type PanelServer struct {
	deps  PanelDeps
	pages map[string]*template.Template
}

// NewPanelServer creates a new PanelServer with parsed templates.
func NewPanelServer(deps PanelDeps) *PanelServer {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	funcMap := template.FuncMap{
		"json":          toJSON,
		"timeAgo":       timeAgo,
		"severityBadge": severityBadge,
		"truncate":      truncate,
		"seconds":       formatSeconds,
	}

	base := template.Must(
		template.New("").Funcs(funcMap).ParseFS(content, "templates/base.html"),
	)

	// Each page clones the shared set so its {{define "content"}} doesn't
	// collide with the others.
	pageFiles := []string{
		"dashboard.html",
		"history.html",
		"maintenance.html",
	}

	pages := make(map[string]*template.Template, len(pageFiles))
	for _, pf := range pageFiles {
		clone := template.Must(base.Clone())
		pages[pf] = template.Must(clone.ParseFS(content, "templates/"+pf))
	}

	return &PanelServer{
		deps:  deps,
		pages: pages,
	}
}

// Handler returns the HTTP handler for the panel routes.
func (s *PanelServer) Handler() http.Handler {
	mux := http.NewServeMux()

	staticFS, _ := fs.Sub(content, "static")
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticFS))))

	// Pages.
	mux.HandleFunc("GET /{$}", s.handleDashboard)
	mux.HandleFunc("GET /history", s.handleHistory)
	mux.HandleFunc("GET /maintenance", s.handleMaintenance)

	// Live updates.
	mux.HandleFunc("GET /sse/events", s.handleSSE)
	if s.deps.Telemetry != nil {
		mux.Handle("GET /metrics", s.deps.Telemetry.Handler())
	}

	// Reads.
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/graph", s.handleGraph)
	mux.HandleFunc("GET /api/render", s.handleRender)
	mux.HandleFunc("GET /api/metrics", s.handleMetrics)
	mux.HandleFunc("GET /api/ladder", s.handleLadder)
	mux.HandleFunc("GET /api/diagram", s.handleDiagram)
	mux.HandleFunc("GET /api/insights", s.handleInsights)
	mux.HandleFunc("GET /api/validate", s.handleValidate)
	mux.HandleFunc("GET /api/journal", s.handleJournal)
	mux.HandleFunc("POST /api/query", s.handleQuery)
	mux.HandleFunc("POST /api/simulate", s.handleSimulate)

	// Edits.
	mux.HandleFunc("POST /api/commands", s.handleCommand)
	mux.HandleFunc("POST /api/wizard", s.handleWizard)

	// Icon library.
	mux.HandleFunc("GET /api/icons", s.handleIcons)
	mux.HandleFunc("POST /api/icons", s.handleAddIcon)
	mux.HandleFunc("DELETE /api/icons/{id}", s.handleRemoveIcon)

	// Maintenance.
	mux.HandleFunc("GET /api/maintenance", s.handleMaintenanceStatus)
	mux.HandleFunc("POST /api/maintenance/{job}", s.handleRunMaintenance)
	mux.HandleFunc("POST /api/backups/restore", s.handleRestoreBackup)

	return s.instrument(mux)
}

// renderPage executes a page template by name.
func (s *PanelServer) renderPage(w http.ResponseWriter, page string, data any) {
	tmpl, ok := s.pages[page]
	if !ok {
		s.deps.Logger.Error("template not found", "page", page)
		http.Error(w, fmt.Sprintf("template %q not found", page), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "base", data); err != nil {
		s.deps.Logger.Error("template render error", "page", page, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
