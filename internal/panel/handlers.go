package panel

import (
	"net/http"

	"github.com/rendis/vsm/internal/diagram"
	"github.com/rendis/vsm/internal/engine"
	"github.com/rendis/vsm/internal/insight"
	"github.com/rendis/vsm/internal/store"
)

// --- Page data types ---

type pageData struct {
	Title  string
	Active string
}

type dashboardData struct {
	pageData
	Status   *engine.Status
	Summary  *insight.Summary
	Mermaid  string
	Ladder   string
	Warnings []string
}

type historyData struct {
	pageData
	Entries []*store.JournalEntry
	Since   int
	Limit   int
}

type maintenanceData struct {
	pageData
	Maintenance *engine.MaintenanceStatus
}

// --- Page handlers ---

func (s *PanelServer) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	st, err := s.deps.Executor.Status(ctx)
	if err != nil {
		s.deps.Logger.Error("dashboard: status", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	data := dashboardData{
		pageData: pageData{Title: "Value Stream", Active: "dashboard"},
		Status:   st,
	}

	if p, err := s.deps.Executor.Render(ctx); err == nil {
		data.Mermaid = diagram.RenderMermaid(p)
		data.Ladder = diagram.RenderLadder(p.Ladder)
	} else {
		data.Warnings = append(data.Warnings, "render: "+err.Error())
	}
	if sum, err := s.deps.Executor.Insights(ctx); err == nil {
		data.Summary = sum
	} else {
		data.Warnings = append(data.Warnings, "insights: "+err.Error())
	}
	if st.PersistError != "" {
		data.Warnings = append(data.Warnings, "last save failed: "+st.PersistError)
	}

	s.renderPage(w, "dashboard.html", data)
}

func (s *PanelServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	since := queryInt(r, "since", 0)
	limit := queryInt(r, "limit", 50)

	entries, err := s.deps.Executor.Journal(r.Context(), int64(since), limit)
	if err != nil {
		s.deps.Logger.Error("history: journal", "error", err)
		entries = []*store.JournalEntry{}
	}

	s.renderPage(w, "history.html", historyData{
		pageData: pageData{Title: "History", Active: "history"},
		Entries:  entries,
		Since:    since,
		Limit:    limit,
	})
}

func (s *PanelServer) handleMaintenance(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Executor.Maintenance(r.Context())
	if err != nil {
		s.deps.Logger.Error("maintenance: status", "error", err)
		st = &engine.MaintenanceStatus{}
	}

	s.renderPage(w, "maintenance.html", maintenanceData{
		pageData:    pageData{Title: "Maintenance", Active: "maintenance"},
		Maintenance: st,
	})
}
