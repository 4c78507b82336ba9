//go:build !sqlite_fts5

package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/starford/eihwaz/internal/models"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not compiled in; search falls back to LIKE over kb_notes.content.
	return nil
}

func ftsUpsert(_ context.Context, _ *sql.Tx, _ models.NoteID, _ string) error { return nil }

func ftsDelete(_ context.Context, _ *sql.Tx, _ []models.NoteID) {}

// Search performs a LIKE-based scan (fallback when FTS5 is not compiled in).
func (db *DB) Search(ctx context.Context, query string, limit int) ([]models.SearchHit, error) {
	if limit <= 0 {
		limit = 20
	}
	like := "%" + query + "%"
	rows, err := db.conn.QueryContext(ctx, `
		SELECT n.id, e.child_name, substr(n.content, 1, 200)
		FROM kb_notes n
		JOIN kb_note_children e ON e.child_id = n.id
		WHERE n.content LIKE ? OR e.child_name LIKE ?
		ORDER BY e.child_name
		LIMIT ?
	`, like, like, limit)
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
