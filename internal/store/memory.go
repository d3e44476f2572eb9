package store

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rendis/vsm/pkg/schema"
)

// MemoryStore is an in-process Store used by tests and the --memory flag.
type MemoryStore struct {
	mu      sync.RWMutex
	docs    map[string]*Document
	journal map[string][]*JournalEntry
	nextID  int64
	closed  bool
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:    make(map[string]*Document),
		journal: make(map[string][]*JournalEntry),
	}
}

func (m *MemoryStore) GetDocument(_ context.Context, key string) (*Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.docs[key]
	if !ok {
		return nil, storeNotFound("document", key)
	}
	return copyDocument(d, true), nil
}

func (m *MemoryStore) PutDocument(_ context.Context, key string, body []byte) (*Document, error) {
	if key == "" {
		return nil, schema.NewError(schema.ErrCodeStore, "document key is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, schema.NewError(schema.ErrCodeStore, "store is closed")
	}

	now := time.Now().UTC()
	d, ok := m.docs[key]
	if !ok {
		d = &Document{Key: key, CreatedAt: now}
		m.docs[key] = d
	}
	d.Body = append(json.RawMessage(nil), body...)
	d.Size = len(body)
	d.Revision++
	d.UpdatedAt = now
	return copyDocument(d, true), nil
}

func (m *MemoryStore) DeleteDocument(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[key]; !ok {
		return storeNotFound("document", key)
	}
	delete(m.docs, key)
	return nil
}

func (m *MemoryStore) ListDocuments(_ context.Context, filter DocumentFilter) ([]*Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.docs))
	for k := range m.docs {
		if strings.HasPrefix(k, filter.Prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if filter.Limit > 0 && len(keys) > filter.Limit {
		keys = keys[:filter.Limit]
	}

	docs := make([]*Document, 0, len(keys))
	for _, k := range keys {
		docs = append(docs, copyDocument(m.docs[k], filter.WithBody))
	}
	return docs, nil
}

func (m *MemoryStore) AppendJournal(_ context.Context, entry *JournalEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	entry.ID = m.nextID
	entry.Sequence = int64(len(m.journal[entry.Key]) + 1)
	entry.Timestamp = timeOrNow(entry.Timestamp)
	cp := *entry
	m.journal[entry.Key] = append(m.journal[entry.Key], &cp)
	return nil
}

func (m *MemoryStore) ListJournal(_ context.Context, key string, filter JournalFilter) ([]*JournalEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*JournalEntry
	for _, e := range m.journal[key] {
		if e.Sequence <= filter.Since {
			continue
		}
		if filter.Action != "" && e.Action != filter.Action {
			continue
		}
		cp := *e
		out = append(out, &cp)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryStore) Migrate(context.Context) error { return nil }
func (m *MemoryStore) Vacuum(context.Context) error  { return nil }

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func copyDocument(d *Document, withBody bool) *Document {
	cp := *d
	cp.Body = nil
	if withBody {
		cp.Body = append(json.RawMessage(nil), d.Body...)
	}
	return &cp
}
