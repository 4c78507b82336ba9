package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/starford/eihwaz/internal/apperr"
	"github.com/starford/eihwaz/internal/models"
)

// InsertDir creates a directory row with a pre-allocated identifier.
func (t *Tx) InsertDir(ctx context.Context, id models.DirID) error {
	if _, err := t.tx.ExecContext(ctx, `INSERT INTO kb_dirs (id) VALUES (?)`, id); err != nil {
		return fmt.Errorf("store: insert dir %d: %w", id, err)
	}
	return nil
}

// InsertNote creates a note row with a pre-allocated identifier.
func (t *Tx) InsertNote(ctx context.Context, id models.NoteID, content string) error {
	if _, err := t.tx.ExecContext(ctx,
		`INSERT INTO kb_notes (id, content) VALUES (?, ?)`, id, content); err != nil {
		return fmt.Errorf("store: insert note %d: %w", id, err)
	}
	return ftsUpsert(ctx, t.tx, id, content)
}

// UpdateNoteContent replaces a note's content.
func (t *Tx) UpdateNoteContent(ctx context.Context, id models.NoteID, content string) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE kb_notes SET content = ? WHERE id = ?`, content, id)
	if err != nil {
		return fmt.Errorf("store: update note %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: update note %d: %w", id, apperr.ErrNotFound)
	}
	return ftsUpsert(ctx, t.tx, id, content)
}

// DeleteNoteRow removes one note row.
func (t *Tx) DeleteNoteRow(ctx context.Context, id models.NoteID) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM kb_notes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete note %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: delete note %d: %w", id, apperr.ErrNotFound)
	}
	ftsDelete(ctx, t.tx, []models.NoteID{id})
	return nil
}

// DeleteNoteRows removes note rows in bulk.
func (t *Tx) DeleteNoteRows(ctx context.Context, ids []models.NoteID) error {
	err := chunked(ids, func(part []models.NoteID) error {
		q := `DELETE FROM kb_notes WHERE id IN (` + placeholders(len(part)) + `)`
		if _, err := t.tx.ExecContext(ctx, q, idArgs(part)...); err != nil {
			return fmt.Errorf("store: delete notes: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	ftsDelete(ctx, t.tx, ids)
	return nil
}

// DeleteDirRows removes directory rows in bulk.
func (t *Tx) DeleteDirRows(ctx context.Context, ids []models.DirID) error {
	return chunked(ids, func(part []models.DirID) error {
		q := `DELETE FROM kb_dirs WHERE id IN (` + placeholders(len(part)) + `)`
		if _, err := t.tx.ExecContext(ctx, q, idArgs(part)...); err != nil {
			return fmt.Errorf("store: delete dirs: %w", err)
		}
		return nil
	})
}

// NoteByID returns a note with its content, parent, and name.
func (db *DB) NoteByID(ctx context.Context, id models.NoteID) (models.Note, error) {
	return noteByID(ctx, db.conn, id)
}

// NoteByID returns a note within this transaction's snapshot.
func (t *Tx) NoteByID(ctx context.Context, id models.NoteID) (models.Note, error) {
	return noteByID(ctx, t.tx, id)
}

func noteByID(ctx context.Context, q querier, id models.NoteID) (models.Note, error) {
	n := models.Note{ID: id}
	err := q.QueryRowContext(ctx, `
		SELECT n.content, e.parent_id, e.child_name
		FROM kb_notes n
		JOIN kb_note_children e ON e.child_id = n.id
		WHERE n.id = ?
	`, id).Scan(&n.Content, &n.Parent, &n.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Note{}, fmt.Errorf("store: note %d: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return models.Note{}, fmt.Errorf("store: note %d: %w", id, err)
	}
	return n, nil
}
