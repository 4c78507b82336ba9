// Package kb implements the namespace mutation engine for the knowledge
// base: permission-gated create, rename, move, and delete over the directory
// tree, with cycle rejection and atomic cascading deletion.
package kb

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/starford/eihwaz/internal/apperr"
	"github.com/starford/eihwaz/internal/models"
	"github.com/starford/eihwaz/internal/store"
)

// EventFunc is called after each committed mutation. kind is a dotted event
// name such as "dir.created"; name is the entry name when the operation
// carries one.
type EventFunc func(kind string, id int64, name string)

// Service orchestrates all mutations against the tree store. A mutation
// holds the write lock for its whole validate-and-commit span, so no two
// mutations interleave; multi-query reads hold the read lock and never
// observe a half-applied change.
type Service struct {
	db     *store.DB
	events EventFunc

	mu sync.RWMutex
}

// NewService creates the engine. events may be nil.
func NewService(db *store.DB, events EventFunc) *Service {
	return &Service{db: db, events: events}
}

func (s *Service) emit(kind string, id int64, name string) {
	if s.events != nil {
		s.events(kind, id, name)
	}
}

// requireEdit rejects principals without the edit capability. Every write
// path calls it before touching the tree.
func (s *Service) requireEdit(ctx context.Context, principal string) error {
	caps, err := s.db.Capabilities(ctx, principal)
	if err != nil {
		return err
	}
	if !caps.CanEdit {
		return fmt.Errorf("kb: principal %q: %w", principal, apperr.ErrPermissionDenied)
	}
	return nil
}

// CreateDirectory creates a directory named name under parent.
func (s *Service) CreateDirectory(ctx context.Context, principal string, parent models.DirID, name string) (models.Directory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireEdit(ctx, principal); err != nil {
		return models.Directory{}, err
	}
	id := models.DirID(s.db.Alloc().Allocate())

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return models.Directory{}, err
	}
	defer tx.Rollback() //nolint:errcheck

	if err := tx.InsertDir(ctx, id); err != nil {
		return models.Directory{}, err
	}
	if err := tx.InsertDirEdge(ctx, parent, id, name); err != nil {
		return models.Directory{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.Directory{}, err
	}
	s.emit("dir.created", int64(id), name)
	return models.Directory{ID: id, Name: name, Parent: parent}, nil
}

// CreateNote creates a note named name under parent.
func (s *Service) CreateNote(ctx context.Context, principal string, parent models.DirID, name, content string) (models.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireEdit(ctx, principal); err != nil {
		return models.Note{}, err
	}
	id := models.NoteID(s.db.Alloc().Allocate())

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return models.Note{}, err
	}
	defer tx.Rollback() //nolint:errcheck

	if err := tx.InsertNote(ctx, id, content); err != nil {
		return models.Note{}, err
	}
	if err := tx.InsertNoteEdge(ctx, parent, id, name); err != nil {
		return models.Note{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.Note{}, err
	}
	s.emit("note.created", int64(id), name)
	return models.Note{ID: id, Name: name, Parent: parent, Content: content}, nil
}

// UpdateNote replaces a note's content.
func (s *Service) UpdateNote(ctx context.Context, principal string, id models.NoteID, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireEdit(ctx, principal); err != nil {
		return err
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	if err := tx.UpdateNoteContent(ctx, id, content); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.emit("note.updated", int64(id), "")
	return nil
}

// RenameDirectory changes a directory's name within its current parent.
func (s *Service) RenameDirectory(ctx context.Context, principal string, dir models.DirID, newName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireEdit(ctx, principal); err != nil {
		return err
	}
	if dir == models.Root {
		return fmt.Errorf("kb: rename dir %d: %w", dir, apperr.ErrRootImmutable)
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	if err := tx.RenameDirEdge(ctx, dir, newName); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.emit("dir.renamed", int64(dir), newName)
	return nil
}

// RenameNote changes a note's name within its current parent.
func (s *Service) RenameNote(ctx context.Context, principal string, id models.NoteID, newName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireEdit(ctx, principal); err != nil {
		return err
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	if err := tx.RenameNoteEdge(ctx, id, newName); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.emit("note.renamed", int64(id), newName)
	return nil
}

// MoveDirectory reparents dir under newParent as newName. Moves that would
// make dir its own descendant are rejected before any write.
func (s *Service) MoveDirectory(ctx context.Context, principal string, dir, newParent models.DirID, newName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireEdit(ctx, principal); err != nil {
		return err
	}
	if dir == models.Root {
		return fmt.Errorf("kb: move dir %d: %w", dir, apperr.ErrRootImmutable)
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	anc, err := tx.IsAncestor(ctx, dir, newParent)
	if err != nil {
		return err
	}
	if anc {
		return fmt.Errorf("kb: move dir %d under %d: %w", dir, newParent, apperr.ErrCycle)
	}
	if err := tx.MoveDirEdge(ctx, dir, newParent, newName); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.emit("dir.moved", int64(dir), newName)
	return nil
}

// MoveNote reparents a note under newParent, keeping its name.
func (s *Service) MoveNote(ctx context.Context, principal string, id models.NoteID, newParent models.DirID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireEdit(ctx, principal); err != nil {
		return err
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	if err := tx.MoveNoteEdge(ctx, id, newParent); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.emit("note.moved", int64(id), "")
	return nil
}

// DeleteNote removes a note's edge and row.
func (s *Service) DeleteNote(ctx context.Context, principal string, id models.NoteID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireEdit(ctx, principal); err != nil {
		return err
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	if err := tx.RemoveNoteEdge(ctx, id); err != nil {
		return err
	}
	if err := tx.DeleteNoteRow(ctx, id); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.emit("note.deleted", int64(id), "")
	return nil
}

// DeleteDirectory removes dir and everything beneath it in one transaction:
// every owned note, every descendant directory edge, and finally dir's own
// edge and row. Either the whole subtree disappears or none of it does.
func (s *Service) DeleteDirectory(ctx context.Context, principal string, dir models.DirID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireEdit(ctx, principal); err != nil {
		return err
	}
	if dir == models.Root {
		return fmt.Errorf("kb: delete dir %d: %w", dir, apperr.ErrRootUndeletable)
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	dirs, err := tx.Descendants(ctx, dir)
	if err != nil {
		return err
	}
	if len(dirs) == 0 {
		return fmt.Errorf("kb: delete dir %d: %w", dir, apperr.ErrNotFound)
	}
	notes, err := tx.NotesIn(ctx, dirs)
	if err != nil {
		return err
	}

	if err := tx.RemoveNoteEdges(ctx, notes); err != nil {
		return err
	}
	if err := tx.DeleteNoteRows(ctx, notes); err != nil {
		return err
	}
	if err := tx.RemoveDirEdges(ctx, dirs[1:]); err != nil {
		return err
	}
	if err := tx.RemoveDirEdge(ctx, dir); err != nil {
		return err
	}
	if err := tx.DeleteDirRows(ctx, dirs); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.emit("dir.deleted", int64(dir), "")
	return nil
}

// Directory returns a directory and its ordered child listings.
func (s *Service) Directory(ctx context.Context, id models.DirID) (models.Directory, models.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dir, err := s.db.DirByID(ctx, id)
	if err != nil {
		return models.Directory{}, models.Listing{}, err
	}
	listing, err := s.db.ListChildren(ctx, id)
	if err != nil {
		return models.Directory{}, models.Listing{}, err
	}
	return dir, listing, nil
}

// Note returns a note with content, parent, and name.
func (s *Service) Note(ctx context.Context, id models.NoteID) (models.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db.NoteByID(ctx, id)
}

// LookupChild resolves name under parent, directories taking precedence when
// both namespaces hold the name.
func (s *Service) LookupChild(ctx context.Context, parent models.DirID, name string) (models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db.LookupChild(ctx, parent, name)
}

// Resolve walks a /-separated path from the root. Empty path and "/" name
// the root itself. Intermediate components must be directories.
func (s *Service) Resolve(ctx context.Context, path string) (models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) == 1 && parts[0] == "" {
		return models.Entry{Kind: models.KindDirectory, ID: int64(models.Root)}, nil
	}
	cur := models.Root
	for _, part := range parts[:len(parts)-1] {
		entry, err := s.db.LookupChild(ctx, cur, part)
		if err != nil {
			return models.Entry{}, err
		}
		if entry.Kind != models.KindDirectory {
			return models.Entry{}, fmt.Errorf("kb: %q is not a directory: %w", part, apperr.ErrNotFound)
		}
		cur = models.DirID(entry.ID)
	}
	return s.db.LookupChild(ctx, cur, parts[len(parts)-1])
}

// IsAncestor reports whether candidate lies on the path from target up to
// the root, inclusive of target == candidate.
func (s *Service) IsAncestor(ctx context.Context, candidate, target models.DirID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db.IsAncestor(ctx, candidate, target)
}

// Descendants returns the directory closure under root, root included. A
// directory that does not exist yields an empty set.
func (s *Service) Descendants(ctx context.Context, root models.DirID) ([]models.DirID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db.Descendants(ctx, root)
}

// OwnedNotes returns every note held anywhere in the subtree under root.
func (s *Service) OwnedNotes(ctx context.Context, root models.DirID) ([]models.NoteID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dirs, err := s.db.Descendants(ctx, root)
	if err != nil {
		return nil, err
	}
	if len(dirs) == 0 {
		return nil, nil
	}
	return s.db.NotesIn(ctx, dirs)
}

// SearchNotes runs a full-text search over note content.
func (s *Service) SearchNotes(ctx context.Context, query string, limit int) ([]models.SearchHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db.Search(ctx, query, limit)
}

// CanEdit reports whether principal holds the edit capability.
func (s *Service) CanEdit(ctx context.Context, principal string) (bool, error) {
	caps, err := s.db.Capabilities(ctx, principal)
	if err != nil {
		return false, err
	}
	return caps.CanEdit, nil
}

// CanReceiveFeedback reports whether principal is a feedback recipient.
func (s *Service) CanReceiveFeedback(ctx context.Context, principal string) (bool, error) {
	caps, err := s.db.Capabilities(ctx, principal)
	if err != nil {
		return false, err
	}
	return caps.CanReceiveFeedback, nil
}

// Permissions returns principal's capability record; an absent record reads
// as no capabilities.
func (s *Service) Permissions(ctx context.Context, principal string) (models.Capabilities, error) {
	return s.db.Capabilities(ctx, principal)
}

// SetPermissions stores a capability record. This is the operator surface
// behind service auth; it is not gated on the acting principal's own record.
func (s *Service) SetPermissions(ctx context.Context, principal string, caps models.Capabilities) error {
	return s.db.SetCapabilities(ctx, principal, caps)
}

// StoreNewsletter appends an entry to the newsletter archive, gated on
// can_edit like every other write.
func (s *Service) StoreNewsletter(ctx context.Context, principal, name, content string) (models.Newsletter, error) {
	if err := s.requireEdit(ctx, principal); err != nil {
		return models.Newsletter{}, err
	}
	n, err := s.db.AppendNewsletter(ctx, name, content)
	if err != nil {
		return models.Newsletter{}, err
	}
	s.emit("newsletter.stored", n.ID, n.Name)
	return n, nil
}

// Newsletters lists the archive newest first, content omitted.
func (s *Service) Newsletters(ctx context.Context) ([]models.Newsletter, error) {
	return s.db.Newsletters(ctx)
}

// Newsletter fetches one archive entry including its content.
func (s *Service) Newsletter(ctx context.Context, id int64) (models.Newsletter, error) {
	return s.db.Newsletter(ctx, id)
}
