// Package graphstore holds the authoritative set of nodes and edges of a value
// stream map and guarantees referential integrity between them.
//
// A Store is not safe for concurrent use. All mutations happen synchronously
// inside a single user action; callers that serve multiple goroutines must
// serialize access (see editor.Serial).
package graphstore

import (
	"github.com/google/uuid"

	"github.com/rendis/vsm/internal/registry"
	"github.com/rendis/vsm/pkg/schema"
)

// Axis selects the coordinate AlignNodes operates on.
type Axis string

const (
	AxisX Axis = "x"
	AxisY Axis = "y"
)

// AlignStrategy selects how the shared coordinate is computed.
type AlignStrategy string

const (
	AlignMin      AlignStrategy = "min"
	AlignCentroid AlignStrategy = "centroid"
)

// Store is the single source of truth for nodes and edges.
type Store struct {
	nodes    []schema.Node
	edges    []schema.Edge
	registry *registry.Registry
	newID    func(prefix string) string
}

// Option configures a Store.
type Option func(*Store)

// WithRegistry overrides the node type registry used for defaulting.
func WithRegistry(r *registry.Registry) Option {
	return func(s *Store) { s.registry = r }
}

// WithIDGenerator overrides id generation. The generator receives "node" or
// "edge" and must never return an id already in use.
func WithIDGenerator(fn func(prefix string) string) Option {
	return func(s *Store) { s.newID = fn }
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		nodes:    []schema.Node{},
		edges:    []schema.Edge{},
		registry: registry.Default(),
		newID: func(prefix string) string {
			return prefix + "-" + uuid.NewString()
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry returns the registry the store defaults nodes from.
func (s *Store) Registry() *registry.Registry { return s.registry }

// AddNode creates a node from registry defaults merged with override and
// appends it. An empty kind is derived from the symbol type.
func (s *Store) AddNode(kind schema.NodeKind, sym schema.SymbolType, pos schema.Position, override map[string]any) string {
	if !kind.Valid() {
		kind = s.registry.KindOf(sym)
	}
	n := schema.Node{
		ID:         s.newID("node"),
		Kind:       kind,
		SymbolType: sym,
		Position:   pos,
		Data:       s.registry.Merge(sym, override),
	}
	s.nodes = append(s.nodes, n)
	return n.ID
}

// UpdateNodeField replaces one attribute of a node. It reports false and
// changes nothing when the node does not exist.
func (s *Store) UpdateNodeField(nodeID, field string, value any) bool {
	i := s.indexOf(nodeID)
	if i < 0 {
		return false
	}
	if s.nodes[i].Data == nil {
		s.nodes[i].Data = make(map[string]any)
	}
	s.nodes[i].Data[field] = value
	return true
}

// MoveNode sets a node's canvas position. Unknown ids are ignored.
func (s *Store) MoveNode(nodeID string, pos schema.Position) bool {
	i := s.indexOf(nodeID)
	if i < 0 {
		return false
	}
	s.nodes[i].Position = pos
	return true
}

// DeleteNode removes a node and every edge that references it.
func (s *Store) DeleteNode(nodeID string) bool {
	i := s.indexOf(nodeID)
	if i < 0 {
		return false
	}
	s.nodes = append(s.nodes[:i], s.nodes[i+1:]...)

	kept := s.edges[:0]
	for _, e := range s.edges {
		if e.Source == nodeID || e.Target == nodeID {
			continue
		}
		kept = append(kept, e)
	}
	s.edges = kept
	return true
}

// Connect appends an edge between two existing nodes. An empty flow type
// means material flow. Duplicate edges are allowed.
func (s *Store) Connect(sourceID, targetID string, flow schema.FlowType) (string, error) {
	if flow == "" {
		flow = schema.FlowMaterial
	}
	details := map[string]any{"source": sourceID, "target": targetID, "flow_type": string(flow)}
	switch {
	case sourceID == targetID:
		return "", schema.NewErrorf(schema.ErrCodeInvalidEdge, "self-loop on node %q", sourceID).
			WithNode(sourceID).WithDetails(details)
	case s.indexOf(sourceID) < 0:
		return "", schema.NewErrorf(schema.ErrCodeInvalidEdge, "source node %q not found", sourceID).
			WithDetails(details)
	case s.indexOf(targetID) < 0:
		return "", schema.NewErrorf(schema.ErrCodeInvalidEdge, "target node %q not found", targetID).
			WithDetails(details)
	case !flow.Valid():
		return "", schema.NewErrorf(schema.ErrCodeInvalidEdge, "unknown flow type %q", flow).
			WithDetails(details)
	}

	e := schema.Edge{ID: s.newID("edge"), Source: sourceID, Target: targetID, FlowType: flow}
	s.edges = append(s.edges, e)
	return e.ID, nil
}

// DeleteEdge removes one edge by id.
func (s *Store) DeleteEdge(edgeID string) bool {
	for i, e := range s.edges {
		if e.ID == edgeID {
			s.edges = append(s.edges[:i], s.edges[i+1:]...)
			return true
		}
	}
	return false
}

// Clear empties the graph.
func (s *Store) Clear() {
	s.nodes = []schema.Node{}
	s.edges = []schema.Edge{}
}

// AlignNodes moves the given nodes onto one coordinate along axis. With
// AlignMin the coordinate is the smallest current value; with AlignCentroid
// it is the mean. Unknown ids are skipped. It reports whether any node moved.
func (s *Store) AlignNodes(nodeIDs []string, axis Axis, strategy AlignStrategy) bool {
	var idx []int
	seen := make(map[string]struct{}, len(nodeIDs))
	for _, id := range nodeIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if i := s.indexOf(id); i >= 0 {
			idx = append(idx, i)
		}
	}
	if len(idx) == 0 {
		return false
	}

	coord := func(n *schema.Node) *float64 {
		if axis == AxisY {
			return &n.Position.Y
		}
		return &n.Position.X
	}

	var target float64
	switch strategy {
	case AlignCentroid:
		var sum float64
		for _, i := range idx {
			sum += *coord(&s.nodes[i])
		}
		target = sum / float64(len(idx))
	default:
		target = *coord(&s.nodes[idx[0]])
		for _, i := range idx[1:] {
			if v := *coord(&s.nodes[i]); v < target {
				target = v
			}
		}
	}

	moved := false
	for _, i := range idx {
		p := coord(&s.nodes[i])
		if *p != target {
			*p = target
			moved = true
		}
	}
	return moved
}

// Replace swaps the whole graph for a deep copy of g. Edges whose endpoints
// are not present in g are dropped. It returns the number of dropped edges.
func (s *Store) Replace(g schema.Graph) int {
	cp := g.Clone()
	ids := make(map[string]struct{}, len(cp.Nodes))
	for _, n := range cp.Nodes {
		ids[n.ID] = struct{}{}
	}
	edges := make([]schema.Edge, 0, len(cp.Edges))
	for _, e := range cp.Edges {
		_, okS := ids[e.Source]
		_, okT := ids[e.Target]
		if okS && okT {
			edges = append(edges, e)
		}
	}
	s.nodes = cp.Nodes
	s.edges = edges
	return len(cp.Edges) - len(edges)
}

// Snapshot returns a deep copy of the current graph.
func (s *Store) Snapshot() schema.Graph {
	return schema.Graph{Nodes: s.nodes, Edges: s.edges}.Clone()
}

// Node returns a deep copy of one node.
func (s *Store) Node(nodeID string) (schema.Node, bool) {
	i := s.indexOf(nodeID)
	if i < 0 {
		return schema.Node{}, false
	}
	return s.nodes[i].Clone(), true
}

// Len returns the node and edge counts.
func (s *Store) Len() (nodes, edges int) {
	return len(s.nodes), len(s.edges)
}

func (s *Store) indexOf(nodeID string) int {
	for i := range s.nodes {
		if s.nodes[i].ID == nodeID {
			return i
		}
	}
	return -1
}
