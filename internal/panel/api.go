package panel

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rendis/vsm/internal/engine"
	"github.com/rendis/vsm/internal/persistence"
	"github.com/rendis/vsm/internal/scenario"
	"github.com/rendis/vsm/internal/wizard"
)

func (s *PanelServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Executor.Status(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *PanelServer) handleGraph(w http.ResponseWriter, r *http.Request) {
	g, err := s.deps.Executor.Graph(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *PanelServer) handleRender(w http.ResponseWriter, r *http.Request) {
	p, err := s.deps.Executor.Render(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *PanelServer) handleMetrics(w http.ResponseWriter, r *http.Request) {
	snap, err := s.deps.Executor.Metrics(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *PanelServer) handleLadder(w http.ResponseWriter, r *http.Request) {
	l, err := s.deps.Executor.Ladder(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

// handleDiagram returns the canvas rendered as ?format=mermaid|ascii|ladder|png|svg.
func (s *PanelServer) handleDiagram(w http.ResponseWriter, r *http.Request) {
	format := engine.DiagramFormat(r.URL.Query().Get("format"))
	if format == "" {
		format = engine.FormatMermaid
	}
	art, err := s.deps.Executor.Diagram(r.Context(), format)
	if err != nil {
		writeFailure(w, err)
		return
	}
	w.Header().Set("Content-Type", art.ContentType)
	w.WriteHeader(http.StatusOK)
	w.Write(art.Body)
}

func (s *PanelServer) handleInsights(w http.ResponseWriter, r *http.Request) {
	sum, err := s.deps.Executor.Insights(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *PanelServer) handleValidate(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Executor.Validate(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *PanelServer) handleJournal(w http.ResponseWriter, r *http.Request) {
	since := int64(queryInt(r, "since", 0))
	limit := queryInt(r, "limit", 100)
	entries, err := s.deps.Executor.Journal(r.Context(), since, limit)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *PanelServer) handleQuery(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Expression string `json:"expression"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if strings.TrimSpace(body.Expression) == "" {
		writeError(w, http.StatusBadRequest, "expression is required")
		return
	}
	out, err := s.deps.Executor.Query(r.Context(), body.Expression)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": out})
}

// handleSimulate accepts a scenario as JSON or YAML.
func (s *PanelServer) handleSimulate(w http.ResponseWriter, r *http.Request) {
	raw, ok := readBody(w, r)
	if !ok {
		return
	}
	sc, err := scenario.Parse(raw)
	if err != nil {
		writeFailure(w, err)
		return
	}
	res, err := s.deps.Executor.Simulate(r.Context(), sc)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *PanelServer) handleCommand(w http.ResponseWriter, r *http.Request) {
	var cmd engine.Command
	if !decodeBody(w, r, &cmd) {
		return
	}
	res, err := s.deps.Executor.Apply(r.Context(), cmd)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleWizard accepts a wizard form as JSON or YAML.
func (s *PanelServer) handleWizard(w http.ResponseWriter, r *http.Request) {
	raw, ok := readBody(w, r)
	if !ok {
		return
	}
	form, err := wizard.Parse(raw)
	if err != nil {
		writeFailure(w, err)
		return
	}
	res, err := s.deps.Executor.ApplyWizard(r.Context(), form)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *PanelServer) handleIcons(w http.ResponseWriter, r *http.Request) {
	icons, err := s.deps.Executor.Icons(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, icons)
}

func (s *PanelServer) handleAddIcon(w http.ResponseWriter, r *http.Request) {
	var icon persistence.Icon
	if !decodeBody(w, r, &icon) {
		return
	}
	saved, err := s.deps.Executor.AddIcon(r.Context(), icon)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

func (s *PanelServer) handleRemoveIcon(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	removed, err := s.deps.Executor.RemoveIcon(r.Context(), id)
	if err != nil {
		writeFailure(w, err)
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, fmt.Sprintf("icon %q not found", id))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"ok": "true", "id": id})
}

func (s *PanelServer) handleMaintenanceStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Executor.Maintenance(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *PanelServer) handleRunMaintenance(w http.ResponseWriter, r *http.Request) {
	job := r.PathValue("job")
	if err := s.deps.Executor.RunMaintenance(r.Context(), job); err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"ok": "true", "job": job})
}

func (s *PanelServer) handleRestoreBackup(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Key string `json:"key"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Key == "" {
		writeError(w, http.StatusBadRequest, "key is required")
		return
	}
	res, err := s.deps.Executor.RestoreBackup(r.Context(), body.Key)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("read body: %v", err))
		return nil, false
	}
	return raw, true
}
