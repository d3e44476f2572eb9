package store

import (
	"encoding/json"
	"time"
)

// Document is a stored JSON body under an application key.
type Document struct {
	Key       string          `json:"key"`
	Body      json.RawMessage `json:"body,omitempty"`
	Revision  int64           `json:"revision"`
	Size      int             `json:"size"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// DocumentFilter narrows ListDocuments. Bodies are omitted unless WithBody is set.
type DocumentFilter struct {
	Prefix   string
	WithBody bool
	Limit    int
}

// JournalEntry records one committed edit against a document.
type JournalEntry struct {
	ID        int64     `json:"id"`
	Key       string    `json:"key"`
	Sequence  int64     `json:"sequence"`
	Action    string    `json:"action"`
	NodeID    string    `json:"node_id,omitempty"`
	Revision  int64     `json:"revision"`
	NodeCount int       `json:"node_count"`
	EdgeCount int       `json:"edge_count"`
	Timestamp time.Time `json:"timestamp"`
}

// JournalFilter narrows ListJournal.
type JournalFilter struct {
	Since  int64 // sequence > Since
	Action string
	Limit  int
}
