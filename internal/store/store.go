package store

import "context"

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Documents (last-writer-wins, one row per key)
	GetDocument(ctx context.Context, key string) (*Document, error)
	PutDocument(ctx context.Context, key string, body []byte) (*Document, error)
	DeleteDocument(ctx context.Context, key string) error
	ListDocuments(ctx context.Context, filter DocumentFilter) ([]*Document, error)

	// Journal (append-only)
	AppendJournal(ctx context.Context, entry *JournalEntry) error
	ListJournal(ctx context.Context, key string, filter JournalFilter) ([]*JournalEntry, error)

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}
