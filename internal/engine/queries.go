package engine

import (
	"context"
	"slices"

	"github.com/rendis/vsm/internal/diagram"
	"github.com/rendis/vsm/internal/editor"
	"github.com/rendis/vsm/internal/expressions"
	"github.com/rendis/vsm/internal/insight"
	"github.com/rendis/vsm/internal/metrics"
	"github.com/rendis/vsm/internal/persistence"
	"github.com/rendis/vsm/internal/scenario"
	"github.com/rendis/vsm/internal/scheduler"
	"github.com/rendis/vsm/internal/store"
	"github.com/rendis/vsm/internal/timeline"
	"github.com/rendis/vsm/pkg/schema"
)

// DiagramFormat selects a diagram rendering.
type DiagramFormat string

const (
	FormatMermaid DiagramFormat = "mermaid"
	FormatASCII   DiagramFormat = "ascii"
	FormatLadder  DiagramFormat = "ladder"
	FormatPNG     DiagramFormat = "png"
	FormatSVG     DiagramFormat = "svg"
)

// DiagramFormats lists every supported format.
var DiagramFormats = []DiagramFormat{FormatMermaid, FormatASCII, FormatLadder, FormatPNG, FormatSVG}

// Artifact is a rendered diagram.
type Artifact struct {
	Format      DiagramFormat `json:"format"`
	ContentType string        `json:"content_type"`
	Body        []byte        `json:"body"`
}

// Status is the session overview returned to clients after connecting.
type Status struct {
	DiagramID      string                 `json:"diagram_id"`
	Revision       int64                  `json:"revision"`
	Graph          schema.Graph           `json:"graph"`
	Metrics        schema.MetricsSnapshot `json:"metrics"`
	HistoryEntries int                    `json:"history_entries"`
	HistoryCursor  int                    `json:"history_cursor"`
	CanUndo        bool                   `json:"can_undo"`
	CanRedo        bool                   `json:"can_redo"`
	Dirty          bool                   `json:"dirty"`
	TaktOverride   float64                `json:"takt_override,omitempty"`
	Load           persistence.LoadReport `json:"load"`
	PersistError   string                 `json:"persist_error,omitempty"`
}

// MaintenanceStatus lists scheduled jobs and stored backups.
type MaintenanceStatus struct {
	Jobs    []scheduler.JobStatus `json:"jobs"`
	Backups []string              `json:"backups"`
	Journal *store.JournalSummary `json:"journal,omitempty"`
}

func (e *Engine) Status(_ context.Context) (*Status, error) {
	var st Status
	err := e.view(func(s *editor.Session) error {
		st = Status{
			DiagramID:    s.DiagramID(),
			Graph:        s.Graph(),
			Metrics:      s.Metrics(),
			CanUndo:      s.CanUndo(),
			CanRedo:      s.CanRedo(),
			Dirty:        s.Dirty(),
			TaktOverride: s.TaktTime(),
			Load:         s.LoadReport(),
		}
		st.HistoryEntries, st.HistoryCursor = s.HistoryState()
		if err := s.LastPersistError(); err != nil {
			st.PersistError = err.Error()
		}
		return nil
	})
	if e.gate != nil {
		st.Revision = e.gate.Revision()
	}
	return &st, err
}

func (e *Engine) Graph(_ context.Context) (schema.Graph, error) {
	var g schema.Graph
	err := e.view(func(s *editor.Session) error {
		g = s.Graph()
		return nil
	})
	return g, err
}

func (e *Engine) Metrics(_ context.Context) (schema.MetricsSnapshot, error) {
	var snap schema.MetricsSnapshot
	err := e.view(func(s *editor.Session) error {
		snap = s.Metrics()
		return nil
	})
	return snap, err
}

func (e *Engine) Ladder(_ context.Context) (timeline.Ladder, error) {
	var l timeline.Ladder
	err := e.view(func(s *editor.Session) error {
		l = s.Ladder()
		return nil
	})
	return l, err
}

// Render returns the canvas render model: nodes with their bottleneck and
// takt highlights, styled edges, metrics and the ladder.
func (e *Engine) Render(_ context.Context) (*diagram.Payload, error) {
	var p *diagram.Payload
	err := e.view(func(s *editor.Session) error {
		p = diagram.Build(s.Graph(), s.Metrics())
		p.Title = s.DiagramID()
		return nil
	})
	return p, err
}

// Diagram renders the canvas. Rendering happens outside the session lock.
func (e *Engine) Diagram(ctx context.Context, format DiagramFormat) (*Artifact, error) {
	if !slices.Contains(DiagramFormats, format) {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "unknown diagram format %q", format).
			WithDetails(map[string]any{"formats": DiagramFormats})
	}
	p, err := e.Render(ctx)
	if err != nil {
		return nil, err
	}

	art := &Artifact{Format: format, ContentType: "text/plain; charset=utf-8"}
	switch format {
	case FormatMermaid:
		art.Body = []byte(diagram.RenderMermaid(p))
	case FormatASCII:
		art.Body = []byte(diagram.RenderASCIIAuto(p, e.binDir))
	case FormatLadder:
		art.Body = []byte(diagram.RenderLadder(p.Ladder))
	case FormatPNG, FormatSVG:
		body, err := diagram.Render(ctx, p, diagram.Format(format))
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeStore, "render %s", format).WithCause(err)
		}
		art.Body = body
		art.ContentType = "image/png"
		if format == FormatSVG {
			art.ContentType = "image/svg+xml"
		}
	}
	return art, nil
}

func (e *Engine) Insights(ctx context.Context) (*insight.Summary, error) {
	var (
		g    schema.Graph
		snap schema.MetricsSnapshot
		l    timeline.Ladder
	)
	if err := e.view(func(s *editor.Session) error {
		g, snap, l = s.Graph(), s.Metrics(), s.Ladder()
		return nil
	}); err != nil {
		return nil, err
	}
	return e.analyzer.Summarize(ctx, g, snap, l)
}

// Simulate runs a what-if scenario against a copy of the live graph using
// the session's takt override. The canvas is never modified.
func (e *Engine) Simulate(ctx context.Context, sc scenario.Scenario) (*scenario.Result, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	var (
		g    schema.Graph
		takt float64
	)
	if err := e.view(func(s *editor.Session) error {
		g, takt = s.Graph(), s.TaktTime()
		return nil
	}); err != nil {
		return nil, err
	}
	var opts []metrics.Option
	if takt > 0 {
		opts = append(opts, metrics.WithTaktTime(takt))
	}
	return e.simulator.Run(ctx, g, sc, opts...)
}

// Query evaluates a jq expression against {graph, metrics}.
func (e *Engine) Query(ctx context.Context, expression string) ([]any, error) {
	var vars map[string]any
	if err := e.view(func(s *editor.Session) error {
		var err error
		vars, err = expressions.Vars(s.Graph(), s.Metrics())
		return err
	}); err != nil {
		return nil, err
	}
	return e.jq.EvaluateAll(ctx, expression, vars)
}

// Validate checks the live graph against the document schema and the
// semantic rules.
func (e *Engine) Validate(ctx context.Context) (*schema.ValidationResult, error) {
	g, err := e.Graph(ctx)
	if err != nil {
		return nil, err
	}
	return e.validator.ValidateGraph(&g), nil
}

func (e *Engine) Journal(ctx context.Context, since int64, limit int) ([]*store.JournalEntry, error) {
	if e.gate == nil {
		return []*store.JournalEntry{}, nil
	}
	return e.gate.Journal(ctx, since, limit)
}

func (e *Engine) Icons(ctx context.Context) ([]persistence.Icon, error) {
	if e.gate == nil {
		return []persistence.Icon{}, nil
	}
	return e.gate.Icons(ctx), nil
}

func (e *Engine) AddIcon(ctx context.Context, icon persistence.Icon) (persistence.Icon, error) {
	if e.gate == nil {
		return persistence.Icon{}, errNoStorage("icon library")
	}
	return e.gate.AddIcon(ctx, icon)
}

func (e *Engine) RemoveIcon(ctx context.Context, id string) (bool, error) {
	if e.gate == nil {
		return false, errNoStorage("icon library")
	}
	return e.gate.RemoveIcon(ctx, id)
}

func (e *Engine) Maintenance(ctx context.Context) (*MaintenanceStatus, error) {
	out := &MaintenanceStatus{Jobs: []scheduler.JobStatus{}, Backups: []string{}}
	if e.gate != nil {
		sum, err := e.gate.JournalSummary(ctx)
		if err != nil {
			return nil, err
		}
		out.Journal = sum
	}
	if e.scheduler == nil {
		return out, nil
	}
	out.Jobs = e.scheduler.Jobs()
	docs, err := e.scheduler.Backups(ctx)
	if err != nil {
		return nil, err
	}
	for _, d := range docs {
		out.Backups = append(out.Backups, d.Key)
	}
	return out, nil
}

func (e *Engine) RunMaintenance(ctx context.Context, job string) error {
	if e.scheduler == nil {
		return errNoStorage("maintenance")
	}
	return e.scheduler.RunNow(ctx, job)
}

func errNoStorage(what string) error {
	return schema.NewErrorf(schema.ErrCodeStore, "%s needs a configured store", what)
}
