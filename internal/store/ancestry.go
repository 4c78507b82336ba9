package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/starford/eihwaz/internal/models"
)

// Ancestry queries assume the forest invariant: every non-root directory has
// exactly one parent and parent chains terminate at the root. Traversal is
// an explicit worklist over the parent-keyed edge relation, so depth is
// bounded by tree height, not by the call stack.

// IsAncestor reports whether candidate lies on the path from target up to
// the root, inclusive of target == candidate.
func (db *DB) IsAncestor(ctx context.Context, candidate, target models.DirID) (bool, error) {
	return isAncestor(ctx, db.conn, candidate, target)
}

// IsAncestor answers within this transaction's snapshot.
func (t *Tx) IsAncestor(ctx context.Context, candidate, target models.DirID) (bool, error) {
	return isAncestor(ctx, t.tx, candidate, target)
}

func isAncestor(ctx context.Context, q querier, candidate, target models.DirID) (bool, error) {
	cur := target
	for {
		if cur == candidate {
			return true, nil
		}
		var parent models.DirID
		err := q.QueryRowContext(ctx,
			`SELECT parent_id FROM kb_dir_children WHERE child_id = ?`, cur).Scan(&parent)
		if errors.Is(err, sql.ErrNoRows) {
			// Reached the root, or target does not exist.
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("store: ancestor walk at %d: %w", cur, err)
		}
		cur = parent
	}
}

// Descendants returns the directory closure under root, root itself
// included. A root that does not exist yields an empty set.
func (db *DB) Descendants(ctx context.Context, root models.DirID) ([]models.DirID, error) {
	return descendants(ctx, db.conn, root)
}

// Descendants enumerates within this transaction's snapshot.
func (t *Tx) Descendants(ctx context.Context, root models.DirID) ([]models.DirID, error) {
	return descendants(ctx, t.tx, root)
}

func descendants(ctx context.Context, q querier, root models.DirID) ([]models.DirID, error) {
	ok, err := dirExists(ctx, q, root)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	seen := map[models.DirID]struct{}{root: {}}
	order := []models.DirID{root}
	stack := []models.DirID{root}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		children, err := dirChildren(ctx, q, cur)
		if err != nil {
			return nil, err
		}
		for _, c := range children {
			if _, dup := seen[c.ID]; dup {
				continue
			}
			seen[c.ID] = struct{}{}
			order = append(order, c.ID)
			stack = append(stack, c.ID)
		}
	}
	return order, nil
}

// NotesIn returns every note parented by one of the given directories.
func (db *DB) NotesIn(ctx context.Context, dirs []models.DirID) ([]models.NoteID, error) {
	return notesIn(ctx, db.conn, dirs)
}

// NotesIn enumerates within this transaction's snapshot.
func (t *Tx) NotesIn(ctx context.Context, dirs []models.DirID) ([]models.NoteID, error) {
	return notesIn(ctx, t.tx, dirs)
}

func notesIn(ctx context.Context, q querier, dirs []models.DirID) ([]models.NoteID, error) {
	var out []models.NoteID
	err := chunked(dirs, func(part []models.DirID) error {
		query := `SELECT child_id FROM kb_note_children WHERE parent_id IN (` + placeholders(len(part)) + `)`
		rows, err := q.QueryContext(ctx, query, idArgs(part)...)
		if err != nil {
			return fmt.Errorf("store: notes in subtree: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var id models.NoteID
			if err := rows.Scan(&id); err != nil {
				return err
			}
			out = append(out, id)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
