package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/vsm/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/vsm.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB.
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Documents ---

func (s *LibSQLStore) GetDocument(ctx context.Context, key string) (*Document, error) {
	d := &Document{}
	var body string
	err := s.db.QueryRowContext(ctx,
		`SELECT key, body, revision, created_at, updated_at FROM documents WHERE key = ?`, key,
	).Scan(&d.Key, &body, &d.Revision, &d.CreatedAt, &d.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("document", key)
	}
	if err != nil {
		return nil, err
	}
	d.Body = json.RawMessage(body)
	d.Size = len(body)
	return d, nil
}

// PutDocument upserts body under key and bumps its revision.
func (s *LibSQLStore) PutDocument(ctx context.Context, key string, body []byte) (*Document, error) {
	if key == "" {
		return nil, schema.NewError(schema.ErrCodeStore, "document key is required")
	}
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin put document: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO documents (key, body, revision, created_at, updated_at) VALUES (?, ?, 1, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET body=excluded.body, revision=documents.revision+1, updated_at=excluded.updated_at`,
		key, string(body), now, now,
	); err != nil {
		return nil, fmt.Errorf("upsert document: %w", err)
	}

	d := &Document{Key: key, Body: json.RawMessage(body), Size: len(body)}
	if err := tx.QueryRowContext(ctx,
		`SELECT revision, created_at, updated_at FROM documents WHERE key = ?`, key,
	).Scan(&d.Revision, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, fmt.Errorf("read document revision: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit document: %w", err)
	}
	return d, nil
}

func (s *LibSQLStore) DeleteDocument(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE key = ?`, key)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "document", key)
}

func (s *LibSQLStore) ListDocuments(ctx context.Context, filter DocumentFilter) ([]*Document, error) {
	query := `SELECT key, body, revision, created_at, updated_at FROM documents`
	var args []any
	if filter.Prefix != "" {
		query += ` WHERE key LIKE ? ESCAPE '\'`
		args = append(args, escapeLike(filter.Prefix)+"%")
	}
	query += " ORDER BY key"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		d := &Document{}
		var body string
		if err := rows.Scan(&d.Key, &body, &d.Revision, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		d.Size = len(body)
		if filter.WithBody {
			d.Body = json.RawMessage(body)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// --- Journal ---

// AppendJournal appends an entry with a monotonically increasing per-key sequence.
func (s *LibSQLStore) AppendJournal(ctx context.Context, entry *JournalEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin journal tx: %w", err)
	}
	defer tx.Rollback()

	// In WAL mode BeginTx starts a deferred transaction; a write-intent
	// statement takes the write lock before the sequence is read.
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO schema_version (version, name) VALUES (-1, '_lock_noop')`); err != nil {
		return fmt.Errorf("acquire write lock: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM schema_version WHERE version = -1`); err != nil {
		return fmt.Errorf("cleanup write lock: %w", err)
	}

	var seq int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM journal WHERE doc_key = ?`, entry.Key,
	).Scan(&seq); err != nil {
		return fmt.Errorf("get next sequence: %w", err)
	}
	entry.Sequence = seq
	entry.Timestamp = timeOrNow(entry.Timestamp)

	res, err := tx.ExecContext(ctx,
		`INSERT INTO journal (doc_key, sequence, action, node_id, revision, node_count, edge_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.Key, seq, entry.Action, nullStr(entry.NodeID), entry.Revision, entry.NodeCount, entry.EdgeCount, entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert journal entry: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		entry.ID = id
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit journal entry: %w", err)
	}
	return nil
}

func (s *LibSQLStore) ListJournal(ctx context.Context, key string, filter JournalFilter) ([]*JournalEntry, error) {
	where := []string{"doc_key = ?", "sequence > ?"}
	args := []any{key, filter.Since}
	if filter.Action != "" {
		where = append(where, "action = ?")
		args = append(args, filter.Action)
	}
	query := `SELECT id, doc_key, sequence, action, node_id, revision, node_count, edge_count, created_at FROM journal WHERE ` +
		strings.Join(where, " AND ") + " ORDER BY sequence ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*JournalEntry
	for rows.Next() {
		e := &JournalEntry{}
		var nodeID sql.NullString
		if err := rows.Scan(&e.ID, &e.Key, &e.Sequence, &e.Action, &nodeID, &e.Revision, &e.NodeCount, &e.EdgeCount, &e.Timestamp); err != nil {
			return nil, err
		}
		e.NodeID = nodeID.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// --- Helpers ---

func storeNotFound(resource, key string) *schema.VSMError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, key)
}

func checkRowsAffected(res sql.Result, resource, key string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, key)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
