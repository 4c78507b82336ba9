// Package importer seeds and mirrors a local directory tree into the
// knowledge base: sub-directories become directories, regular files become
// notes. A watcher keeps the mirror live until shutdown.
package importer

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/eihwaz/internal/apperr"
	"github.com/starford/eihwaz/internal/checksum"
	"github.com/starford/eihwaz/internal/kb"
	"github.com/starford/eihwaz/internal/models"
)

// Importer mirrors a directory tree on disk into the knowledge base. It
// writes in one direction only: entries created through other surfaces are
// never touched.
//
// An Importer is not safe for concurrent use. Run Sync to completion before
// starting Watch; Watch then owns the importer until ctx is cancelled.
type Importer struct {
	svc       *kb.Service
	root      string
	principal string
	logger    *slog.Logger

	// sums caches the content checksum of each path the importer last
	// mirrored, so repeat syncs skip unchanged files without touching
	// the store.
	sums map[string]string
}

// New creates an importer rooted at dir, acting as principal. The principal
// must hold the edit capability.
func New(svc *kb.Service, dir, principal string, logger *slog.Logger) *Importer {
	return &Importer{
		svc:       svc,
		root:      dir,
		principal: principal,
		logger:    logger,
		sums:      make(map[string]string),
	}
}

// Sync walks the seed root and brings the knowledge base up to date with
// it: directories are created as needed, files become notes, and notes
// whose file content changed are rewritten. Dotfiles are skipped.
func (im *Importer) Sync(ctx context.Context) error {
	return im.syncSubtree(ctx, im.root)
}

func (im *Importer) syncSubtree(ctx context.Context, dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(im.root, p)
		if relErr != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if hidden(rel) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if _, err := im.ensureDir(ctx, rel); err != nil {
				im.logger.Warn("importer: ensure dir failed", slog.String("path", rel), slog.String("error", err.Error()))
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if err := im.upsertFile(ctx, rel); err != nil {
			im.logger.Warn("importer: upsert failed", slog.String("path", rel), slog.String("error", err.Error()))
		}
		return nil
	})
}

// Watch starts an fsnotify watcher on the seed root and mirrors file change
// events into the knowledge base until ctx is cancelled.
//
// New directories created at runtime are automatically added to the watch
// list and their contents synced, since files may land before the watch is
// in place. Rename events schedule a short re-sync pass that picks up files
// arriving at new paths; the re-sync only adds and updates, so entries
// created through other surfaces stay untouched.
func (im *Importer) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, im.root); err != nil {
		return err
	}

	im.logger.Info("importer: watching", slog.String("root", im.root))

	// resyncTimer debounces the post-rename re-sync.
	var resyncTimer *time.Timer
	var resyncCh <-chan time.Time

	scheduleResync := func() {
		if resyncTimer == nil {
			resyncTimer = time.NewTimer(200 * time.Millisecond)
			resyncCh = resyncTimer.C
		} else {
			resyncTimer.Reset(200 * time.Millisecond)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if resyncTimer != nil {
				resyncTimer.Stop()
			}
			im.logger.Info("importer: stopped")
			return nil

		case <-resyncCh:
			if err := im.syncSubtree(ctx, im.root); err != nil {
				im.logger.Warn("importer: resync failed", slog.String("error", err.Error()))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if im.handleEvent(ctx, w, ev) {
				scheduleResync()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			im.logger.Error("importer: watch error", slog.String("error", watchErr.Error()))
		}
	}
}

// handleEvent processes one watcher event and reports whether a debounced
// re-sync should be scheduled.
func (im *Importer) handleEvent(ctx context.Context, w *fsnotify.Watcher, ev fsnotify.Event) bool {
	rel, err := filepath.Rel(im.root, ev.Name)
	if err != nil || rel == "." {
		return false
	}
	rel = filepath.ToSlash(rel)
	if hidden(rel) {
		return false
	}

	if ev.Op&fsnotify.Create != 0 {
		if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
			if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
				im.logger.Warn("importer: watch new dir failed", slog.String("path", rel), slog.String("error", addErr.Error()))
			}
			if syncErr := im.syncSubtree(ctx, ev.Name); syncErr != nil {
				im.logger.Warn("importer: sync new dir failed", slog.String("path", rel), slog.String("error", syncErr.Error()))
			}
			return false
		}
	}

	switch {
	case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
		if err := im.upsertFile(ctx, rel); err != nil {
			im.logger.Warn("importer: upsert failed", slog.String("path", rel), slog.String("error", err.Error()))
		}

	case ev.Op&fsnotify.Remove != 0:
		im.deleteEntry(ctx, rel)

	case ev.Op&fsnotify.Rename != 0:
		// fsnotify fires Rename on the OLD path only. The new path shows up
		// as a Create event if it stays under the root; a re-sync catches
		// anything that moved in from outside a watched dir.
		im.deleteEntry(ctx, rel)
		return true
	}
	return false
}

// ensureDir resolves the knowledge base directory for a slash-relative
// path, creating missing components.
func (im *Importer) ensureDir(ctx context.Context, rel string) (models.DirID, error) {
	cur := models.Root
	if rel == "" {
		return cur, nil
	}
	for _, part := range strings.Split(rel, "/") {
		entry, err := im.svc.LookupChild(ctx, cur, part)
		if err == nil && entry.Kind == models.KindDirectory {
			cur = models.DirID(entry.ID)
			continue
		}
		if err != nil && !errors.Is(err, apperr.ErrNotFound) {
			return 0, err
		}
		// Nothing here, or only a note holds the name; the directory
		// namespace is free either way.
		dir, err := im.svc.CreateDirectory(ctx, im.principal, cur, part)
		if err != nil {
			return 0, err
		}
		cur = dir.ID
	}
	return cur, nil
}

// upsertFile creates or rewrites the note mirroring a seed file.
func (im *Importer) upsertFile(ctx context.Context, rel string) error {
	data, err := os.ReadFile(filepath.Join(im.root, filepath.FromSlash(rel)))
	if err != nil {
		return err
	}
	sum := checksum.Sum(data)
	if im.sums[rel] == sum {
		return nil
	}
	dirPath, name := splitRel(rel)
	parent, err := im.ensureDir(ctx, dirPath)
	if err != nil {
		return err
	}
	if id, ok := im.findNote(ctx, parent, name); ok {
		cur, err := im.svc.Note(ctx, id)
		if err != nil {
			return err
		}
		if cur.Content == string(data) {
			im.sums[rel] = sum
			return nil
		}
		if err := im.svc.UpdateNote(ctx, im.principal, id, string(data)); err != nil {
			return err
		}
		im.sums[rel] = sum
		im.logger.Debug("importer: updated", slog.String("path", rel))
		return nil
	}
	if _, err := im.svc.CreateNote(ctx, im.principal, parent, name, string(data)); err != nil {
		return err
	}
	im.sums[rel] = sum
	im.logger.Debug("importer: created", slog.String("path", rel))
	return nil
}

// deleteEntry removes the knowledge base entry mirrored at rel, if any.
func (im *Importer) deleteEntry(ctx context.Context, rel string) {
	im.forget(rel)
	entry, err := im.svc.Resolve(ctx, rel)
	if err != nil {
		return
	}
	if entry.Kind == models.KindDirectory {
		// Resolution prefers directories on shared names. If a directory
		// is still on disk at this path, the removed thing was the file.
		if info, statErr := os.Stat(filepath.Join(im.root, filepath.FromSlash(rel))); statErr == nil && info.IsDir() {
			im.deleteNoteAt(ctx, rel)
			return
		}
		if err := im.svc.DeleteDirectory(ctx, im.principal, models.DirID(entry.ID)); err != nil {
			im.logger.Warn("importer: delete dir failed", slog.String("path", rel), slog.String("error", err.Error()))
			return
		}
		im.logger.Debug("importer: deleted dir", slog.String("path", rel))
		return
	}
	if err := im.svc.DeleteNote(ctx, im.principal, models.NoteID(entry.ID)); err != nil {
		im.logger.Warn("importer: delete note failed", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}
	im.logger.Debug("importer: deleted note", slog.String("path", rel))
}

// deleteNoteAt deletes the note (never the directory) named by rel.
func (im *Importer) deleteNoteAt(ctx context.Context, rel string) {
	dirPath, name := splitRel(rel)
	entry, err := im.svc.Resolve(ctx, dirPath)
	if err != nil || entry.Kind != models.KindDirectory {
		return
	}
	id, ok := im.findNote(ctx, models.DirID(entry.ID), name)
	if !ok {
		return
	}
	if err := im.svc.DeleteNote(ctx, im.principal, id); err != nil {
		im.logger.Warn("importer: delete note failed", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}
	im.logger.Debug("importer: deleted note", slog.String("path", rel))
}

// findNote looks a name up in the note namespace of parent. LookupChild
// prefers directories, so a shared name needs the listing instead.
func (im *Importer) findNote(ctx context.Context, parent models.DirID, name string) (models.NoteID, bool) {
	_, listing, err := im.svc.Directory(ctx, parent)
	if err != nil {
		return 0, false
	}
	for _, n := range listing.Notes {
		if n.Name == name {
			return n.ID, true
		}
	}
	return 0, false
}

// forget drops the checksum cache for rel and everything under it.
func (im *Importer) forget(rel string) {
	delete(im.sums, rel)
	prefix := rel + "/"
	for p := range im.sums {
		if strings.HasPrefix(p, prefix) {
			delete(im.sums, p)
		}
	}
}

// splitRel splits a slash-relative path into parent path and name.
func splitRel(rel string) (dir, name string) {
	if i := strings.LastIndex(rel, "/"); i >= 0 {
		return rel[:i], rel[i+1:]
	}
	return "", rel
}

// hidden reports whether any path component starts with a dot.
func hidden(rel string) bool {
	for _, part := range strings.Split(rel, "/") {
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
