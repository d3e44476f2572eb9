// Package editor drives the value stream map the way a canvas does: each
// user action mutates the graph store, and at the action's commit boundary
// the graph is pushed onto the undo history and saved by the persistence
// gate. Metrics and the timeline ladder are pure reads of the live graph.
//
// A Session is not safe for concurrent use; goroutine-based transports go
// through Serial.
package editor

import (
	"context"
	"log/slog"
	"maps"
	"os"
	"slices"
	"time"

	"github.com/rendis/vsm/internal/graphstore"
	"github.com/rendis/vsm/internal/history"
	"github.com/rendis/vsm/internal/logging"
	"github.com/rendis/vsm/internal/metrics"
	"github.com/rendis/vsm/internal/persistence"
	"github.com/rendis/vsm/internal/registry"
	"github.com/rendis/vsm/internal/streaming"
	"github.com/rendis/vsm/internal/telemetry"
	"github.com/rendis/vsm/internal/timeline"
	"github.com/rendis/vsm/pkg/schema"
)

// Deps holds the dependencies for creating a Session. Everything but the
// graph store is optional.
type Deps struct {
	Graph        *graphstore.Store
	Gate         *persistence.Gate
	Hub          streaming.EventHub
	Telemetry    *telemetry.Registry
	Logger       *slog.Logger
	HistoryLimit int
	TaktTime     float64 // seconds; 0 derives takt from the customer node
}

// Event is delivered to listeners after the graph changed.
type Event struct {
	Type     string
	Action   string
	NodeID   string
	Revision int64
}

// Listener observes session events. Listeners run synchronously inside the
// action that produced the event and may call back into the session.
type Listener func(s *Session, ev Event)

// Session is one editing session over one canvas.
type Session struct {
	store     *graphstore.Store
	history   *history.Manager
	gate      *persistence.Gate
	hub       streaming.EventHub
	telemetry *telemetry.Registry
	logger    *slog.Logger
	diagramID string

	takt      float64
	restoring bool
	dirty     bool
	drag      *dragState

	version       uint64
	cachedVersion uint64
	cached        *schema.MetricsSnapshot

	listeners map[int]Listener
	nextID    int

	lastPersistErr error
	loadReport     persistence.LoadReport
}

type dragState struct {
	nodeID string
	origin schema.Position
}

// New creates a Session. When a gate is configured the stored canvas is
// hydrated into the graph store and becomes the first history entry.
func New(ctx context.Context, deps Deps) *Session {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	gs := deps.Graph
	if gs == nil {
		gs = graphstore.New()
	}

	s := &Session{
		store:     gs,
		gate:      deps.Gate,
		hub:       deps.Hub,
		telemetry: deps.Telemetry,
		logger:    logger,
		diagramID: persistence.CanvasKey,
		takt:      deps.TaktTime,
		listeners: make(map[int]Listener),
	}

	if s.gate != nil {
		s.diagramID = s.gate.Key()
		g, report := s.gate.LoadWithReport(ctx)
		s.loadReport = report
		s.store.Replace(g)
		if s.telemetry != nil {
			s.telemetry.RecordLoad(loadOutcome(report))
		}
	}

	var opts []history.Option
	if deps.HistoryLimit > 0 {
		opts = append(opts, history.WithLimit(deps.HistoryLimit))
	}
	s.history = history.New(s.store.Snapshot(), opts...)
	s.observe()
	s.publish(ctx, Event{Type: schema.EventGraphLoaded, Revision: s.revision()})
	return s
}

func loadOutcome(r persistence.LoadReport) string {
	switch {
	case r.Discarded:
		return "discarded"
	case r.Found:
		return "loaded"
	default:
		return "empty"
	}
}

// DiagramID returns the key the canvas is persisted under.
func (s *Session) DiagramID() string { return s.diagramID }

// LoadReport describes how the initial graph was hydrated.
func (s *Session) LoadReport() persistence.LoadReport { return s.loadReport }

// LastPersistError returns the error of the most recent failed save, or nil
// once a later save succeeds.
func (s *Session) LastPersistError() error { return s.lastPersistErr }

// Subscribe registers l and returns a function that removes it.
func (s *Session) Subscribe(l Listener) func() {
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	return func() { delete(s.listeners, id) }
}

// SetTaktTime overrides the takt time used for utilization. Zero or a
// negative value restores the derived takt.
func (s *Session) SetTaktTime(seconds float64) {
	if seconds < 0 {
		seconds = 0
	}
	if seconds != s.takt {
		s.takt = seconds
		s.touch()
	}
}

// TaktTime returns the takt override in seconds; zero means derived.
func (s *Session) TaktTime() float64 { return s.takt }

// Registry returns the node type registry the graph store normalizes with.
func (s *Session) Registry() *registry.Registry { return s.store.Registry() }

// Graph returns a deep copy of the live graph, including uncommitted edits.
func (s *Session) Graph() schema.Graph { return s.store.Snapshot() }

// Node returns a deep copy of one node.
func (s *Session) Node(id string) (schema.Node, bool) { return s.store.Node(id) }

// Metrics computes the snapshot for the live graph. The result is memoized
// until the next mutation; callers get their own copy.
func (s *Session) Metrics() schema.MetricsSnapshot {
	if s.cached == nil || s.cachedVersion != s.version {
		snap := metrics.Compute(s.store.Snapshot(), s.metricOptions()...)
		s.cached = &snap
		s.cachedVersion = s.version
	}
	return s.cached.Clone()
}

func (s *Session) metricOptions() []metrics.Option {
	if s.takt > 0 {
		return []metrics.Option{metrics.WithTaktTime(s.takt)}
	}
	return nil
}

// Ladder projects the live graph onto the timeline ladder.
func (s *Session) Ladder() timeline.Ladder { return timeline.Project(s.store.Snapshot()) }

// CanUndo reports whether Undo would change the graph.
func (s *Session) CanUndo() bool { return s.history.CanUndo() }

// CanRedo reports whether Redo would change the graph.
func (s *Session) CanRedo() bool { return s.history.CanRedo() }

// HistoryState returns the number of history entries and the cursor.
func (s *Session) HistoryState() (entries, cursor int) {
	return s.history.Len(), s.history.Cursor()
}

// Dirty reports whether the live graph holds an uncommitted edit.
func (s *Session) Dirty() bool { return s.dirty }

// commit is the only path onto the history stack. While a snapshot is being
// restored it does nothing, so restoring never records a new entry.
func (s *Session) commit(ctx context.Context, action, nodeID string) {
	if s.restoring {
		return
	}
	ctx = logging.WithIDs(ctx, s.diagramID, action, nodeID)

	snap := s.store.Snapshot()
	s.history.Commit(snap)
	s.dirty = false
	s.touch()
	if s.drag != nil {
		// The open drag's current position is now on the stack.
		if n, ok := s.store.Node(s.drag.nodeID); ok {
			s.drag.origin = n.Position
		}
	}

	rev := s.persist(ctx, snap, action, nodeID)
	s.recordAction(action)
	logging.LogWith(ctx, s.logger).DebugContext(ctx, "committed",
		slog.Int("history", s.history.Len()),
		slog.Int("nodes", len(snap.Nodes)),
		slog.Int("edges", len(snap.Edges)),
	)
	s.publish(ctx, Event{Type: schema.EventGraphCommitted, Action: action, NodeID: nodeID, Revision: rev})
}

// restore replaces the live graph with a history snapshot without committing.
func (s *Session) restore(ctx context.Context, g schema.Graph, action string) {
	ctx = logging.WithIDs(ctx, s.diagramID, action, "")

	s.restoring = true
	defer func() { s.restoring = false }()

	s.store.Replace(g)
	s.dirty = false
	s.drag = nil
	s.touch()

	rev := s.persist(ctx, g, action, "")
	s.recordAction(action)
	s.publish(ctx, Event{Type: schema.EventGraphRestored, Action: action, Revision: rev})
}

func (s *Session) persist(ctx context.Context, g schema.Graph, action, nodeID string) int64 {
	if s.gate == nil {
		return 0
	}
	start := time.Now()
	rev, err := s.gate.Save(ctx, g, persistence.Change{Action: action, NodeID: nodeID})
	if s.telemetry != nil {
		s.telemetry.RecordPersist(err, time.Since(start))
	}
	s.lastPersistErr = err
	if err != nil {
		s.logger.ErrorContext(ctx, "persist failed, graph kept in memory", slog.String("error", err.Error()))
		return s.gate.Revision()
	}
	return rev
}

func (s *Session) revision() int64 {
	if s.gate == nil {
		return 0
	}
	return s.gate.Revision()
}

// observe publishes graph telemetry for the current state.
func (s *Session) observe() {
	if s.telemetry == nil {
		return
	}
	s.telemetry.ObserveGraph(s.store.Snapshot(), s.Metrics())
}

func (s *Session) recordAction(action string) {
	if s.telemetry == nil {
		return
	}
	s.telemetry.RecordAction(action, s.history.Len(), s.history.Cursor())
	s.observe()
}

// publish notifies listeners first, then the hub.
func (s *Session) publish(ctx context.Context, ev Event) {
	for _, id := range s.listenerIDs() {
		if l, ok := s.listeners[id]; ok {
			l(s, ev)
		}
	}
	if s.hub == nil {
		return
	}
	err := s.hub.Publish(ctx, streaming.GraphEvent{
		DiagramID: s.diagramID,
		EventType: ev.Type,
		Action:    ev.Action,
		NodeID:    ev.NodeID,
		Revision:  ev.Revision,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "event publish failed", slog.String("error", err.Error()))
	}
}

// listenerIDs returns registration order so delivery is deterministic.
func (s *Session) listenerIDs() []int {
	return slices.Sorted(maps.Keys(s.listeners))
}

func (s *Session) touch() { s.version++ }
