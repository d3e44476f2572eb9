// Package history keeps the linear undo/redo stack of graph snapshots.
//
// Entries are deep copies taken at explicit commit points. Undo and Redo
// only move the cursor and hand back a copy of the stored snapshot; the
// caller replaces its live graph wholesale.
package history

import (
	"github.com/rendis/vsm/pkg/schema"
)

// Option configures a Manager.
type Option func(*Manager)

// WithLimit caps the number of retained entries. When the cap is exceeded
// the oldest entries are dropped. Values below 2 disable the cap.
func WithLimit(n int) Option {
	return func(m *Manager) {
		if n >= 2 {
			m.limit = n
		}
	}
}

// Manager owns the snapshot stack and its cursor. It is not safe for
// concurrent use; the editor session serializes access.
type Manager struct {
	stack  []schema.Graph
	cursor int
	limit  int
}

// New returns a manager whose only entry is a copy of initial.
func New(initial schema.Graph, opts ...Option) *Manager {
	m := &Manager{}
	for _, opt := range opts {
		opt(m)
	}
	m.Reset(initial)
	return m
}

// Reset discards all history and starts over from g.
func (m *Manager) Reset(g schema.Graph) {
	m.stack = []schema.Graph{g.Clone()}
	m.cursor = 0
}

// Commit records g as the newest entry. Entries after the cursor (the redo
// branch) are discarded first.
func (m *Manager) Commit(g schema.Graph) {
	if m.cursor < len(m.stack)-1 {
		clear(m.stack[m.cursor+1:])
		m.stack = m.stack[:m.cursor+1]
	}
	m.stack = append(m.stack, g.Clone())
	m.cursor = len(m.stack) - 1

	if m.limit > 0 && len(m.stack) > m.limit {
		drop := len(m.stack) - m.limit
		m.stack = append([]schema.Graph(nil), m.stack[drop:]...)
		m.cursor -= drop
	}
}

// Undo steps back one entry and returns it. ok is false at the oldest entry.
func (m *Manager) Undo() (schema.Graph, bool) {
	if m.cursor == 0 {
		return schema.Graph{}, false
	}
	m.cursor--
	return m.stack[m.cursor].Clone(), true
}

// Redo steps forward one entry and returns it. ok is false at the newest entry.
func (m *Manager) Redo() (schema.Graph, bool) {
	if m.cursor >= len(m.stack)-1 {
		return schema.Graph{}, false
	}
	m.cursor++
	return m.stack[m.cursor].Clone(), true
}

// CanUndo reports whether Undo would move the cursor.
func (m *Manager) CanUndo() bool { return m.cursor > 0 }

// CanRedo reports whether Redo would move the cursor.
func (m *Manager) CanRedo() bool { return m.cursor < len(m.stack)-1 }

// Len is the number of entries, including the initial one.
func (m *Manager) Len() int { return len(m.stack) }

// Cursor is the index of the entry matching the live graph.
func (m *Manager) Cursor() int { return m.cursor }

// Current returns a copy of the entry under the cursor.
func (m *Manager) Current() schema.Graph { return m.stack[m.cursor].Clone() }

// Entries returns copies of every entry, oldest first.
func (m *Manager) Entries() []schema.Graph {
	out := make([]schema.Graph, len(m.stack))
	for i := range m.stack {
		out[i] = m.stack[i].Clone()
	}
	return out
}
