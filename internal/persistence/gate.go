// Package persistence is the only writer of durable canvas state. It saves
// the whole graph after every committed change and hydrates it at startup,
// absorbing missing or corrupt state into an empty graph.
package persistence

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"slices"
	"sync"

	"github.com/rendis/vsm/internal/logging"
	"github.com/rendis/vsm/internal/registry"
	"github.com/rendis/vsm/internal/store"
	"github.com/rendis/vsm/internal/validation"
	"github.com/rendis/vsm/pkg/schema"
)

// Fixed application keys.
const (
	CanvasKey = "vsm-canvas-state"
	IconsKey  = "vsm-custom-icons"
)

// Deps holds the dependencies for creating a Gate.
type Deps struct {
	Store     store.Store
	Validator *validation.GraphValidator // optional; nil skips schema checks
	Registry  *registry.Registry         // defaults to registry.Default()
	Logger    *slog.Logger
	CanvasKey string // defaults to CanvasKey
	IconsKey  string // defaults to IconsKey
}

// Change describes the action a Save records in the journal.
type Change struct {
	Action string
	NodeID string
}

// LoadReport explains how Load produced its graph.
type LoadReport struct {
	Found        bool     `json:"found"`
	Discarded    bool     `json:"discarded"`
	Revision     int64    `json:"revision"`
	RepairedKeys int      `json:"repaired_keys"`
	DroppedEdges int      `json:"dropped_edges"`
	DroppedNodes int      `json:"dropped_nodes"`
	Warnings     []string `json:"warnings,omitempty"`
	Err          error    `json:"-"`
}

// Gate serializes the graph to a Store. Writes are last-writer-wins; the
// only state kept is the write cursor.
type Gate struct {
	store     store.Store
	validator *validation.GraphValidator
	registry  *registry.Registry
	logger    *slog.Logger
	canvasKey string
	iconsKey  string

	mu       sync.Mutex
	revision int64
	writes   int64
}

// New creates a Gate.
func New(deps Deps) *Gate {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	reg := deps.Registry
	if reg == nil {
		reg = registry.Default()
	}
	g := &Gate{
		store:     deps.Store,
		validator: deps.Validator,
		registry:  reg,
		logger:    logger,
		canvasKey: deps.CanvasKey,
		iconsKey:  deps.IconsKey,
	}
	if g.canvasKey == "" {
		g.canvasKey = CanvasKey
	}
	if g.iconsKey == "" {
		g.iconsKey = IconsKey
	}
	return g
}

// Key returns the document key the canvas is stored under.
func (g *Gate) Key() string { return g.canvasKey }

// Revision returns the write cursor: the revision of the last document
// written or loaded.
func (g *Gate) Revision() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.revision
}

// Writes returns how many saves this gate performed.
func (g *Gate) Writes() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.writes
}

// Save writes graph as {nodes, edges} under the canvas key and records the
// change in the journal. A journal failure is logged, not returned.
func (g *Gate) Save(ctx context.Context, graph schema.Graph, change Change) (int64, error) {
	ctx = logging.WithIDs(ctx, g.canvasKey, change.Action, change.NodeID)

	body, err := json.Marshal(normalizeCollections(graph))
	if err != nil {
		return 0, schema.NewError(schema.ErrCodeStore, "encode canvas state").WithCause(err)
	}
	doc, err := g.store.PutDocument(ctx, g.canvasKey, body)
	if err != nil {
		g.logger.ErrorContext(ctx, "canvas save failed", slog.String("error", err.Error()))
		return 0, schema.NewError(schema.ErrCodeStore, "save canvas state").WithCause(err)
	}

	g.mu.Lock()
	g.revision = doc.Revision
	g.writes++
	g.mu.Unlock()

	if change.Action != "" {
		entry := &store.JournalEntry{
			Key:       g.canvasKey,
			Action:    change.Action,
			NodeID:    change.NodeID,
			Revision:  doc.Revision,
			NodeCount: len(graph.Nodes),
			EdgeCount: len(graph.Edges),
		}
		if err := g.store.AppendJournal(ctx, entry); err != nil {
			g.logger.WarnContext(ctx, "journal append failed", slog.String("error", err.Error()))
		}
	}

	g.logger.DebugContext(ctx, "canvas saved",
		slog.Int64("revision", doc.Revision),
		slog.Int("bytes", len(body)),
	)
	return doc.Revision, nil
}

// Load returns the stored graph, or an empty graph when nothing usable is
// stored. It never fails.
func (g *Gate) Load(ctx context.Context) schema.Graph {
	graph, _ := g.LoadWithReport(ctx)
	return graph
}

// LoadWithReport is Load plus an account of what was found and repaired.
func (g *Gate) LoadWithReport(ctx context.Context) (schema.Graph, LoadReport) {
	ctx = logging.WithDiagramID(ctx, g.canvasKey)
	var report LoadReport

	doc, err := g.store.GetDocument(ctx, g.canvasKey)
	if err != nil {
		if schema.HasCode(err, schema.ErrCodeNotFound) {
			g.logger.InfoContext(ctx, "no stored canvas, starting empty")
		} else {
			report.Err = err
			g.logger.WarnContext(ctx, "canvas read failed, starting empty", slog.String("error", err.Error()))
		}
		return emptyGraph(), report
	}
	report.Found = true
	report.Revision = doc.Revision

	graph, err := g.decode(doc.Body, &report)
	if err != nil {
		report.Discarded = true
		report.Err = err
		g.logger.WarnContext(ctx, "stored canvas discarded",
			slog.Int64("revision", doc.Revision),
			slog.String("error", err.Error()),
		)
		return emptyGraph(), report
	}

	g.repair(&graph, &report)

	g.mu.Lock()
	g.revision = doc.Revision
	g.mu.Unlock()

	g.logger.InfoContext(ctx, "canvas loaded",
		slog.Int("nodes", len(graph.Nodes)),
		slog.Int("edges", len(graph.Edges)),
		slog.Int64("revision", doc.Revision),
		slog.Int("repaired_keys", report.RepairedKeys),
		slog.Int("dropped_edges", report.DroppedEdges),
	)
	return graph, report
}

// decode parses and, when a validator is configured, validates body.
func (g *Gate) decode(body []byte, report *LoadReport) (schema.Graph, error) {
	if g.validator != nil {
		parsed, result := g.validator.Validate(body)
		tolerate(result, validation.CodeDuplicateID)
		for _, w := range result.Warnings {
			report.Warnings = append(report.Warnings, w.Message)
		}
		if err := result.ToError(schema.ErrCodeDeserialization); err != nil {
			return schema.Graph{}, err
		}
		return *parsed, nil
	}

	var graph schema.Graph
	if err := json.Unmarshal(body, &graph); err != nil {
		return schema.Graph{}, schema.NewError(schema.ErrCodeDeserialization, "canvas state is not valid JSON").WithCause(err)
	}
	return graph, nil
}

// tolerate demotes errors with the given codes to warnings. repair drops
// the offending entries, keeping the first occurrence of each id.
func tolerate(result *schema.ValidationResult, codes ...string) {
	errs := result.Errors[:0]
	for _, issue := range result.Errors {
		if slices.Contains(codes, issue.Code) {
			issue.Severity = schema.SeverityWarning
			result.Warnings = append(result.Warnings, issue)
			continue
		}
		errs = append(errs, issue)
	}
	result.Errors = errs
}

// repair fills registry defaults at read time, drops nodes without an id,
// repeated node and edge ids and edges whose endpoints are gone.
func (g *Gate) repair(graph *schema.Graph, report *LoadReport) {
	nodes := make([]schema.Node, 0, len(graph.Nodes))
	present := make(map[string]bool, len(graph.Nodes))
	for _, n := range graph.Nodes {
		if n.ID == "" || present[n.ID] {
			report.DroppedNodes++
			continue
		}
		report.RepairedKeys += len(g.registry.Normalize(&n))
		present[n.ID] = true
		nodes = append(nodes, n)
	}

	edges := make([]schema.Edge, 0, len(graph.Edges))
	seen := make(map[string]bool, len(graph.Edges))
	for _, e := range graph.Edges {
		if !present[e.Source] || !present[e.Target] || (e.ID != "" && seen[e.ID]) {
			report.DroppedEdges++
			continue
		}
		seen[e.ID] = true
		if e.FlowType == "" {
			e.FlowType = schema.FlowMaterial
		}
		edges = append(edges, e)
	}
	graph.Nodes, graph.Edges = nodes, edges
}

// Reset deletes the stored canvas. A missing document is not an error.
func (g *Gate) Reset(ctx context.Context) error {
	err := g.store.DeleteDocument(ctx, g.canvasKey)
	if err != nil && !schema.HasCode(err, schema.ErrCodeNotFound) {
		return schema.NewError(schema.ErrCodeStore, "reset canvas state").WithCause(err)
	}
	g.mu.Lock()
	g.revision = 0
	g.mu.Unlock()
	return nil
}

// Journal returns the recorded changes with sequence greater than since.
func (g *Gate) Journal(ctx context.Context, since int64, limit int) ([]*store.JournalEntry, error) {
	entries, err := g.store.ListJournal(ctx, g.canvasKey, store.JournalFilter{Since: since, Limit: limit})
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "list journal").WithCause(err)
	}
	return entries, nil
}

// JournalSummary counts the recorded changes per action.
func (g *Gate) JournalSummary(ctx context.Context) (*store.JournalSummary, error) {
	return store.SummarizeJournal(ctx, g.store, g.canvasKey)
}

func emptyGraph() schema.Graph {
	return schema.Graph{Nodes: []schema.Node{}, Edges: []schema.Edge{}}
}

// normalizeCollections keeps the JSON shape {nodes: [], edges: []} for an
// empty graph instead of nulls.
func normalizeCollections(g schema.Graph) schema.Graph {
	if g.Nodes == nil {
		g.Nodes = []schema.Node{}
	}
	if g.Edges == nil {
		g.Edges = []schema.Edge{}
	}
	return g
}
