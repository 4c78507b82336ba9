//go:build sqlite_fts5

package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/starford/eihwaz/internal/models"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS kb_notes_fts USING fts5(
			note_id UNINDEXED,
			content,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsert(ctx context.Context, tx *sql.Tx, id models.NoteID, content string) error {
	_, _ = tx.ExecContext(ctx, `DELETE FROM kb_notes_fts WHERE note_id = ?`, id)
	_, err := tx.ExecContext(ctx,
		`INSERT INTO kb_notes_fts (note_id, content) VALUES (?, ?)`, id, content)
	if err != nil {
		return fmt.Errorf("store: upsert fts %d: %w", id, err)
	}
	return nil
}

func ftsDelete(ctx context.Context, tx *sql.Tx, ids []models.NoteID) {
	for _, id := range ids {
		_, _ = tx.ExecContext(ctx, `DELETE FROM kb_notes_fts WHERE note_id = ?`, id)
	}
}

// Search runs an FTS5 match over note content and returns hits with
// snippets.
func (db *DB) Search(ctx context.Context, query string, limit int) ([]models.SearchHit, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT f.note_id,
		       e.child_name,
		       snippet(kb_notes_fts, 1, '<b>', '</b>', '...', 64)
		FROM kb_notes_fts f
		JOIN kb_note_children e ON e.child_id = f.note_id
		WHERE kb_notes_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("store: search: %w", err)
	}
	defer rows.Close()

	var out []models.SearchHit
	for rows.Next() {
		var h models.SearchHit
		if err := rows.Scan(&h.ID, &h.Name, &h.Snippet); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
