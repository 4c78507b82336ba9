package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/starford/eihwaz/internal/apperr"
	"github.com/starford/eihwaz/internal/models"
)

// constraintErr translates SQLite constraint violations into the sentinel
// kinds callers branch on: a foreign-key failure means the referenced parent
// does not exist, a uniqueness failure means the (parent, name) slot or the
// child's one-parent slot is already taken.
func constraintErr(err error) error {
	var se sqlite3.Error
	if errors.As(err, &se) {
		switch se.ExtendedCode {
		case sqlite3.ErrConstraintForeignKey:
			return apperr.ErrUnknownParent
		case sqlite3.ErrConstraintUnique:
			return apperr.ErrDuplicateName
		}
	}
	return err
}

// InsertDirEdge links child under parent in the directory namespace.
func (t *Tx) InsertDirEdge(ctx context.Context, parent, child models.DirID, name string) error {
	if parent == child {
		return fmt.Errorf("store: insert dir edge %d: %w", child, apperr.ErrSelfParent)
	}
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO kb_dir_children (parent_id, child_id, child_name) VALUES (?, ?, ?)`,
		parent, child, name)
	if err != nil {
		return fmt.Errorf("store: insert dir edge %d: %w", child, constraintErr(err))
	}
	return nil
}

// InsertNoteEdge links child under parent in the note namespace.
func (t *Tx) InsertNoteEdge(ctx context.Context, parent models.DirID, child models.NoteID, name string) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO kb_note_children (parent_id, child_id, child_name) VALUES (?, ?, ?)`,
		parent, child, name)
	if err != nil {
		return fmt.Errorf("store: insert note edge %d: %w", child, constraintErr(err))
	}
	return nil
}

// MoveDirEdge reparents and renames an existing directory edge.
func (t *Tx) MoveDirEdge(ctx context.Context, child, newParent models.DirID, name string) error {
	if newParent == child {
		return fmt.Errorf("store: move dir edge %d: %w", child, apperr.ErrSelfParent)
	}
	res, err := t.tx.ExecContext(ctx,
		`UPDATE kb_dir_children SET parent_id = ?, child_name = ? WHERE child_id = ?`,
		newParent, name, child)
	if err != nil {
		return fmt.Errorf("store: move dir edge %d: %w", child, constraintErr(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: move dir edge %d: %w", child, apperr.ErrNotFound)
	}
	return nil
}

// MoveNoteEdge reparents a note edge, keeping its name.
func (t *Tx) MoveNoteEdge(ctx context.Context, child models.NoteID, newParent models.DirID) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE kb_note_children SET parent_id = ? WHERE child_id = ?`,
		newParent, child)
	if err != nil {
		return fmt.Errorf("store: move note edge %d: %w", child, constraintErr(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: move note edge %d: %w", child, apperr.ErrNotFound)
	}
	return nil
}

// RenameDirEdge changes the name on a directory edge.
func (t *Tx) RenameDirEdge(ctx context.Context, child models.DirID, name string) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE kb_dir_children SET child_name = ? WHERE child_id = ?`, name, child)
	if err != nil {
		return fmt.Errorf("store: rename dir edge %d: %w", child, constraintErr(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: rename dir edge %d: %w", child, apperr.ErrNotFound)
	}
	return nil
}

// RenameNoteEdge changes the name on a note edge.
func (t *Tx) RenameNoteEdge(ctx context.Context, child models.NoteID, name string) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE kb_note_children SET child_name = ? WHERE child_id = ?`, name, child)
	if err != nil {
		return fmt.Errorf("store: rename note edge %d: %w", child, constraintErr(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: rename note edge %d: %w", child, apperr.ErrNotFound)
	}
	return nil
}

// RemoveDirEdge deletes a directory's owning edge. Removing an absent edge
// is not an error.
func (t *Tx) RemoveDirEdge(ctx context.Context, child models.DirID) error {
	if _, err := t.tx.ExecContext(ctx,
		`DELETE FROM kb_dir_children WHERE child_id = ?`, child); err != nil {
		return fmt.Errorf("store: remove dir edge %d: %w", child, err)
	}
	return nil
}

// RemoveNoteEdge deletes a note's owning edge. Removing an absent edge is
// not an error.
func (t *Tx) RemoveNoteEdge(ctx context.Context, child models.NoteID) error {
	if _, err := t.tx.ExecContext(ctx,
		`DELETE FROM kb_note_children WHERE child_id = ?`, child); err != nil {
		return fmt.Errorf("store: remove note edge %d: %w", child, err)
	}
	return nil
}

// RemoveDirEdges deletes the owning edges of all given directories.
func (t *Tx) RemoveDirEdges(ctx context.Context, ids []models.DirID) error {
	return chunked(ids, func(part []models.DirID) error {
		q := `DELETE FROM kb_dir_children WHERE child_id IN (` + placeholders(len(part)) + `)`
		if _, err := t.tx.ExecContext(ctx, q, idArgs(part)...); err != nil {
			return fmt.Errorf("store: remove dir edges: %w", err)
		}
		return nil
	})
}

// RemoveNoteEdges deletes the owning edges of all given notes.
func (t *Tx) RemoveNoteEdges(ctx context.Context, ids []models.NoteID) error {
	return chunked(ids, func(part []models.NoteID) error {
		q := `DELETE FROM kb_note_children WHERE child_id IN (` + placeholders(len(part)) + `)`
		if _, err := t.tx.ExecContext(ctx, q, idArgs(part)...); err != nil {
			return fmt.Errorf("store: remove note edges: %w", err)
		}
		return nil
	})
}

// DirExists reports whether a directory row is present.
func (db *DB) DirExists(ctx context.Context, id models.DirID) (bool, error) {
	return dirExists(ctx, db.conn, id)
}

// DirExists reports whether a directory row is present in this transaction's
// snapshot.
func (t *Tx) DirExists(ctx context.Context, id models.DirID) (bool, error) {
	return dirExists(ctx, t.tx, id)
}

func dirExists(ctx context.Context, q querier, id models.DirID) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM kb_dirs WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: dir exists %d: %w", id, err)
	}
	return true, nil
}

// DirByID returns a directory with its name and parent. The root has
// neither.
func (db *DB) DirByID(ctx context.Context, id models.DirID) (models.Directory, error) {
	return dirByID(ctx, db.conn, id)
}

// DirByID returns a directory within this transaction's snapshot.
func (t *Tx) DirByID(ctx context.Context, id models.DirID) (models.Directory, error) {
	return dirByID(ctx, t.tx, id)
}

func dirByID(ctx context.Context, q querier, id models.DirID) (models.Directory, error) {
	if id == models.Root {
		return models.Directory{ID: models.Root}, nil
	}
	d := models.Directory{ID: id}
	err := q.QueryRowContext(ctx,
		`SELECT parent_id, child_name FROM kb_dir_children WHERE child_id = ?`, id).
		Scan(&d.Parent, &d.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Directory{}, fmt.Errorf("store: dir %d: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return models.Directory{}, fmt.Errorf("store: dir %d: %w", id, err)
	}
	return d, nil
}

// ListChildren returns a directory's children, each namespace ordered by
// name.
func (db *DB) ListChildren(ctx context.Context, parent models.DirID) (models.Listing, error) {
	return listChildren(ctx, db.conn, parent)
}

// ListChildren returns children within this transaction's snapshot.
func (t *Tx) ListChildren(ctx context.Context, parent models.DirID) (models.Listing, error) {
	return listChildren(ctx, t.tx, parent)
}

func listChildren(ctx context.Context, q querier, parent models.DirID) (models.Listing, error) {
	dirs, err := dirChildren(ctx, q, parent)
	if err != nil {
		return models.Listing{}, err
	}
	notes, err := noteChildren(ctx, q, parent)
	if err != nil {
		return models.Listing{}, err
	}
	return models.Listing{Dirs: dirs, Notes: notes}, nil
}

func dirChildren(ctx context.Context, q querier, parent models.DirID) ([]models.DirChild, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT child_id, child_name FROM kb_dir_children WHERE parent_id = ? ORDER BY child_name`, parent)
	if err != nil {
		return nil, fmt.Errorf("store: dir children of %d: %w", parent, err)
	}
	defer rows.Close()

	var out []models.DirChild
	for rows.Next() {
		var c models.DirChild
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func noteChildren(ctx context.Context, q querier, parent models.DirID) ([]models.NoteChild, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT child_id, child_name FROM kb_note_children WHERE parent_id = ? ORDER BY child_name`, parent)
	if err != nil {
		return nil, fmt.Errorf("store: note children of %d: %w", parent, err)
	}
	defer rows.Close()

	var out []models.NoteChild
	for rows.Next() {
		var c models.NoteChild
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// LookupChild resolves name under parent. The directory namespace is probed
// first, so when a directory and a note share a name the directory wins.
func (db *DB) LookupChild(ctx context.Context, parent models.DirID, name string) (models.Entry, error) {
	return lookupChild(ctx, db.conn, parent, name)
}

// LookupChild resolves name within this transaction's snapshot.
func (t *Tx) LookupChild(ctx context.Context, parent models.DirID, name string) (models.Entry, error) {
	return lookupChild(ctx, t.tx, parent, name)
}

func lookupChild(ctx context.Context, q querier, parent models.DirID, name string) (models.Entry, error) {
	var id int64
	err := q.QueryRowContext(ctx,
		`SELECT child_id FROM kb_dir_children WHERE parent_id = ? AND child_name = ?`,
		parent, name).Scan(&id)
	switch {
	case err == nil:
		return models.Entry{Kind: models.KindDirectory, ID: id, Name: name}, nil
	case !errors.Is(err, sql.ErrNoRows):
		return models.Entry{}, fmt.Errorf("store: lookup child %q: %w", name, err)
	}

	err = q.QueryRowContext(ctx,
		`SELECT child_id FROM kb_note_children WHERE parent_id = ? AND child_name = ?`,
		parent, name).Scan(&id)
	switch {
	case err == nil:
		return models.Entry{Kind: models.KindNote, ID: id, Name: name}, nil
	case errors.Is(err, sql.ErrNoRows):
		return models.Entry{}, fmt.Errorf("store: lookup child %q: %w", name, apperr.ErrNotFound)
	default:
		return models.Entry{}, fmt.Errorf("store: lookup child %q: %w", name, err)
	}
}
