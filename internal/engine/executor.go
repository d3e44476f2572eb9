// Package engine is the command surface every transport drives: HTTP panel,
// MCP tools and the CLI. It funnels edits through the serialized editor
// session and joins the read-side packages (metrics, ladder, diagrams,
// insight, scenarios, queries) behind one Executor.
package engine

import (
	"context"
	"log/slog"
	"os"

	"github.com/rendis/vsm/internal/diagram"
	"github.com/rendis/vsm/internal/editor"
	"github.com/rendis/vsm/internal/expressions"
	"github.com/rendis/vsm/internal/insight"
	"github.com/rendis/vsm/internal/persistence"
	"github.com/rendis/vsm/internal/scenario"
	"github.com/rendis/vsm/internal/scheduler"
	"github.com/rendis/vsm/internal/store"
	"github.com/rendis/vsm/internal/timeline"
	"github.com/rendis/vsm/internal/validation"
	"github.com/rendis/vsm/internal/wizard"
	"github.com/rendis/vsm/pkg/schema"
)

// Executor is the value stream map command and query surface.
type Executor interface {
	// Apply runs one editing command as a single user action.
	Apply(ctx context.Context, cmd Command) (*Result, error)

	// ApplyWizard projects a wizard form onto the canvas, replacing it.
	ApplyWizard(ctx context.Context, form *wizard.Form) (*Result, error)

	// Status returns the graph, its metrics and the history cursor.
	Status(ctx context.Context) (*Status, error)

	Graph(ctx context.Context) (schema.Graph, error)
	Metrics(ctx context.Context) (schema.MetricsSnapshot, error)
	Ladder(ctx context.Context) (timeline.Ladder, error)
	Render(ctx context.Context) (*diagram.Payload, error)
	Diagram(ctx context.Context, format DiagramFormat) (*Artifact, error)
	Insights(ctx context.Context) (*insight.Summary, error)
	Simulate(ctx context.Context, sc scenario.Scenario) (*scenario.Result, error)
	Query(ctx context.Context, expression string) ([]any, error)
	Validate(ctx context.Context) (*schema.ValidationResult, error)

	Journal(ctx context.Context, since int64, limit int) ([]*store.JournalEntry, error)
	Icons(ctx context.Context) ([]persistence.Icon, error)
	AddIcon(ctx context.Context, icon persistence.Icon) (persistence.Icon, error)
	RemoveIcon(ctx context.Context, id string) (bool, error)

	Maintenance(ctx context.Context) (*MaintenanceStatus, error)
	RunMaintenance(ctx context.Context, job string) error

	// RestoreBackup replaces the canvas with a stored backup as one
	// undoable action.
	RestoreBackup(ctx context.Context, backupKey string) (*Result, error)
}

// Deps holds the dependencies for creating an Engine. Serial is required;
// Gate and Scheduler are optional.
type Deps struct {
	Serial    *editor.Serial
	Gate      *persistence.Gate
	Validator *validation.GraphValidator
	Analyzer  *insight.Analyzer
	Simulator *scenario.Simulator
	JQ        *expressions.GoJQEngine
	Scheduler *scheduler.Scheduler
	Logger    *slog.Logger

	// MermaidASCIIDir is where `vsm install` puts the mermaid-ascii binary.
	// Empty always uses the built-in text renderer.
	MermaidASCIIDir string
}

// Engine implements Executor.
type Engine struct {
	serial    *editor.Serial
	gate      *persistence.Gate
	validator *validation.GraphValidator
	analyzer  *insight.Analyzer
	simulator *scenario.Simulator
	jq        *expressions.GoJQEngine
	scheduler *scheduler.Scheduler
	logger    *slog.Logger
	binDir    string
}

// NewEngine creates an Engine, building the default analyzer, simulator,
// query engine and validator when they are not supplied.
func NewEngine(deps Deps) (*Engine, error) {
	if deps.Serial == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "engine needs an editor session")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	e := &Engine{
		serial:    deps.Serial,
		gate:      deps.Gate,
		validator: deps.Validator,
		analyzer:  deps.Analyzer,
		simulator: deps.Simulator,
		jq:        deps.JQ,
		scheduler: deps.Scheduler,
		logger:    logger,
		binDir:    deps.MermaidASCIIDir,
	}
	var err error
	if e.validator == nil {
		if e.validator, err = validation.NewGraphValidator(nil); err != nil {
			return nil, err
		}
	}
	if e.analyzer == nil {
		if e.analyzer, err = insight.NewAnalyzer(insight.Deps{Logger: logger}); err != nil {
			return nil, err
		}
	}
	if e.simulator == nil {
		e.simulator = scenario.NewSimulator(scenario.Deps{Logger: logger})
	}
	if e.jq == nil {
		e.jq = expressions.NewGoJQEngine()
	}
	return e, nil
}

// view runs fn with exclusive access to the session. Reads go through the
// same lock as edits so they never observe a half-applied action.
func (e *Engine) view(fn func(s *editor.Session) error) error {
	return e.serial.Do(fn)
}

var _ Executor = (*Engine)(nil)
