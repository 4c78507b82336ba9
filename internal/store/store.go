// Package store implements the SQLite-backed tree store: identifier
// allocation, the directory and note child-edge namespaces, ancestry
// traversal, permission records, and the newsletter archive.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/eihwaz/internal/models"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS kb_notes (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	content TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS kb_dirs (
	id INTEGER PRIMARY KEY AUTOINCREMENT
);

CREATE TABLE IF NOT EXISTS kb_note_children (
	parent_id  INTEGER NOT NULL REFERENCES kb_dirs(id) ON DELETE CASCADE,
	child_id   INTEGER NOT NULL UNIQUE REFERENCES kb_notes(id) ON DELETE CASCADE,
	child_name TEXT NOT NULL,
	UNIQUE(parent_id, child_name)
);

CREATE TABLE IF NOT EXISTS kb_dir_children (
	parent_id  INTEGER NOT NULL REFERENCES kb_dirs(id) ON DELETE CASCADE,
	child_id   INTEGER NOT NULL UNIQUE REFERENCES kb_dirs(id) ON DELETE CASCADE,
	child_name TEXT NOT NULL,
	UNIQUE(parent_id, child_name)
);

CREATE INDEX IF NOT EXISTS idx_note_children_parent ON kb_note_children(parent_id);
CREATE INDEX IF NOT EXISTS idx_dir_children_parent ON kb_dir_children(parent_id);

CREATE TABLE IF NOT EXISTS permissions (
	principal            TEXT PRIMARY KEY,
	can_edit             INTEGER NOT NULL DEFAULT 0,
	can_receive_feedback INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS kb_newsletters (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	name      TEXT NOT NULL,
	content   TEXT NOT NULL,
	timestamp TEXT NOT NULL
);

INSERT OR IGNORE INTO kb_dirs (id) VALUES (0);
`

// DB wraps the SQLite connection together with the identifier allocator.
type DB struct {
	conn  *sql.DB
	alloc *Allocator
}

// Open opens (or creates) the SQLite database, applies the schema, and seeds
// the identifier allocator.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply fts schema: %w", err)
	}
	alloc, err := seedAllocator(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: seed allocator: %w", err)
	}
	return &DB{conn: conn, alloc: alloc}, nil
}

// seedAllocator resumes after the highest identifier recorded in the entity
// tables or in sqlite_sequence, so identifiers deleted before a restart are
// still never reissued.
func seedAllocator(conn *sql.DB) (*Allocator, error) {
	var maxDir, maxNote, maxSeq int64
	err := conn.QueryRow(`
		SELECT COALESCE((SELECT MAX(id) FROM kb_dirs), 0),
		       COALESCE((SELECT MAX(id) FROM kb_notes), 0),
		       COALESCE((SELECT MAX(seq) FROM sqlite_sequence WHERE name IN ('kb_dirs', 'kb_notes')), 0)
	`).Scan(&maxDir, &maxNote, &maxSeq)
	if err != nil {
		return nil, err
	}
	last := maxDir
	if maxNote > last {
		last = maxNote
	}
	if maxSeq > last {
		last = maxSeq
	}
	return NewAllocator(last), nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Alloc returns the shared identifier allocator.
func (db *DB) Alloc() *Allocator {
	return db.alloc
}

// Begin starts a write transaction.
func (db *DB) Begin(ctx context.Context) (*Tx, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin tx: %w", err)
	}
	return &Tx{tx: tx}, nil
}

// Tx is a single write transaction. Mutations performed through it become
// visible only on Commit; Rollback discards all of them.
type Tx struct {
	tx *sql.Tx
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

// Rollback aborts the transaction.
func (t *Tx) Rollback() error {
	return t.tx.Rollback()
}

// querier is the subset of database/sql shared by *sql.DB and *sql.Tx, so
// read queries run identically outside and inside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Reader is the read-only tree surface, served both by the live database and
// by an open transaction's snapshot.
type Reader interface {
	DirExists(ctx context.Context, id models.DirID) (bool, error)
	DirByID(ctx context.Context, id models.DirID) (models.Directory, error)
	NoteByID(ctx context.Context, id models.NoteID) (models.Note, error)
	ListChildren(ctx context.Context, parent models.DirID) (models.Listing, error)
	LookupChild(ctx context.Context, parent models.DirID, name string) (models.Entry, error)
	IsAncestor(ctx context.Context, candidate, target models.DirID) (bool, error)
	Descendants(ctx context.Context, root models.DirID) ([]models.DirID, error)
	NotesIn(ctx context.Context, dirs []models.DirID) ([]models.NoteID, error)
}

// Verify both handles satisfy Reader at compile time.
var (
	_ Reader = (*DB)(nil)
	_ Reader = (*Tx)(nil)
)

// SQLite's default host-parameter limit is 999; batched statements stay
// comfortably below it.
const chunkSize = 500

func chunked[T ~int64](ids []T, fn func([]T) error) error {
	for len(ids) > 0 {
		n := len(ids)
		if n > chunkSize {
			n = chunkSize
		}
		if err := fn(ids[:n]); err != nil {
			return err
		}
		ids = ids[n:]
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func idArgs[T ~int64](ids []T) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}
	return out
}
