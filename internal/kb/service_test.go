package kb

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/starford/eihwaz/internal/apperr"
	"github.com/starford/eihwaz/internal/models"
	"github.com/starford/eihwaz/internal/store"
)

const editor = "editor"

func newService(t *testing.T, events EventFunc) *Service {
	t.Helper()

	f, err := os.CreateTemp("", "eihwaz-kb-test-*.db")
	if err != nil {
		t.Fatalf("create temp db: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close temp db: %v", err)
	}
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := store.Open(f.Name())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	svc := NewService(db, events)
	if err := svc.SetPermissions(context.Background(), editor, models.Capabilities{CanEdit: true}); err != nil {
		t.Fatalf("grant editor: %v", err)
	}
	return svc
}

func mustDir(t *testing.T, svc *Service, parent models.DirID, name string) models.Directory {
	t.Helper()
	d, err := svc.CreateDirectory(context.Background(), editor, parent, name)
	if err != nil {
		t.Fatalf("CreateDirectory(%q): %v", name, err)
	}
	return d
}

func mustNote(t *testing.T, svc *Service, parent models.DirID, name, content string) models.Note {
	t.Helper()
	n, err := svc.CreateNote(context.Background(), editor, parent, name, content)
	if err != nil {
		t.Fatalf("CreateNote(%q): %v", name, err)
	}
	return n
}

func TestCreateDirectory_IDsIncrease(t *testing.T) {
	svc := newService(t, nil)

	a := mustDir(t, svc, models.Root, "projects")
	b := mustDir(t, svc, models.Root, "archive")
	if b.ID <= a.ID {
		t.Errorf("ids not increasing: %d then %d", a.ID, b.ID)
	}
}

func TestCreateDirectory_DuplicateName(t *testing.T) {
	svc := newService(t, nil)
	ctx := context.Background()

	mustDir(t, svc, models.Root, "docs")
	if _, err := svc.CreateDirectory(ctx, editor, models.Root, "docs"); !errors.Is(err, apperr.ErrDuplicateName) {
		t.Errorf("second create = %v, want ErrDuplicateName", err)
	}
}

func TestCreateNote_UnknownParent(t *testing.T) {
	svc := newService(t, nil)
	ctx := context.Background()

	if _, err := svc.CreateNote(ctx, editor, 999, "orphan", ""); !errors.Is(err, apperr.ErrUnknownParent) {
		t.Errorf("create under missing dir = %v, want ErrUnknownParent", err)
	}
}

func TestNoteRoundtrip(t *testing.T) {
	svc := newService(t, nil)
	ctx := context.Background()

	readme := mustNote(t, svc, models.Root, "readme", "hello")

	got, err := svc.Note(ctx, readme.ID)
	if err != nil {
		t.Fatalf("Note: %v", err)
	}
	if got.Content != "hello" {
		t.Errorf("Content = %q, want %q", got.Content, "hello")
	}
	if got.Name != "readme" || got.Parent != models.Root {
		t.Errorf("Note = %+v, want readme under root", got)
	}

	if err := svc.UpdateNote(ctx, editor, readme.ID, "hello again"); err != nil {
		t.Fatalf("UpdateNote: %v", err)
	}
	got, err = svc.Note(ctx, readme.ID)
	if err != nil {
		t.Fatalf("Note after update: %v", err)
	}
	if got.Content != "hello again" {
		t.Errorf("Content after update = %q, want %q", got.Content, "hello again")
	}
}

func TestSharedNameAcrossNamespaces(t *testing.T) {
	svc := newService(t, nil)
	ctx := context.Background()

	// A directory and a note may share a name under one parent; lookup
	// prefers the directory.
	d := mustDir(t, svc, models.Root, "notes")
	mustNote(t, svc, models.Root, "notes", "body")

	entry, err := svc.LookupChild(ctx, models.Root, "notes")
	if err != nil {
		t.Fatalf("LookupChild: %v", err)
	}
	if entry.Kind != models.KindDirectory || entry.ID != int64(d.ID) {
		t.Errorf("LookupChild = %+v, want directory %d", entry, d.ID)
	}
}

func TestResolve(t *testing.T) {
	svc := newService(t, nil)
	ctx := context.Background()

	docs := mustDir(t, svc, models.Root, "docs")
	guides := mustDir(t, svc, docs.ID, "guides")
	readme := mustNote(t, svc, guides.ID, "readme", "hello")

	cases := []struct {
		path string
		kind models.EntryKind
		id   int64
	}{
		{"", models.KindDirectory, 0},
		{"/", models.KindDirectory, 0},
		{"docs", models.KindDirectory, int64(docs.ID)},
		{"docs/guides", models.KindDirectory, int64(guides.ID)},
		{"/docs/guides/readme", models.KindNote, int64(readme.ID)},
	}
	for _, tc := range cases {
		entry, err := svc.Resolve(ctx, tc.path)
		if err != nil {
			t.Errorf("Resolve(%q): %v", tc.path, err)
			continue
		}
		if entry.Kind != tc.kind || entry.ID != tc.id {
			t.Errorf("Resolve(%q) = %+v, want %s %d", tc.path, entry, tc.kind, tc.id)
		}
	}

	if _, err := svc.Resolve(ctx, "docs/missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Resolve(docs/missing) = %v, want ErrNotFound", err)
	}
	if _, err := svc.Resolve(ctx, "docs/guides/readme/deeper"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Resolve through a note = %v, want ErrNotFound", err)
	}
}

func TestMoveDirectory_Reparents(t *testing.T) {
	svc := newService(t, nil)
	ctx := context.Background()

	a := mustDir(t, svc, models.Root, "a")
	b := mustDir(t, svc, models.Root, "b")
	c := mustDir(t, svc, a.ID, "c")

	if err := svc.MoveDirectory(ctx, editor, c.ID, b.ID, "c2"); err != nil {
		t.Fatalf("MoveDirectory: %v", err)
	}
	dir, _, err := svc.Directory(ctx, c.ID)
	if err != nil {
		t.Fatalf("Directory: %v", err)
	}
	if dir.Parent != b.ID || dir.Name != "c2" {
		t.Errorf("moved dir = %+v, want c2 under %d", dir, b.ID)
	}

	anc, err := svc.IsAncestor(ctx, b.ID, c.ID)
	if err != nil {
		t.Fatalf("IsAncestor: %v", err)
	}
	if !anc {
		t.Error("IsAncestor(b, c) = false after move, want true")
	}
	anc, err = svc.IsAncestor(ctx, a.ID, c.ID)
	if err != nil {
		t.Fatalf("IsAncestor: %v", err)
	}
	if anc {
		t.Error("IsAncestor(a, c) = true after move, want false")
	}
}

func TestMoveDirectory_CycleRejected(t *testing.T) {
	svc := newService(t, nil)
	ctx := context.Background()

	a := mustDir(t, svc, models.Root, "a")
	b := mustDir(t, svc, a.ID, "b")

	if err := svc.MoveDirectory(ctx, editor, a.ID, b.ID, "a"); !errors.Is(err, apperr.ErrCycle) {
		t.Errorf("move a under its child = %v, want ErrCycle", err)
	}
	if err := svc.MoveDirectory(ctx, editor, a.ID, a.ID, "a"); !errors.Is(err, apperr.ErrCycle) {
		t.Errorf("move a under itself = %v, want ErrCycle", err)
	}

	// Rejected moves must leave the tree untouched.
	dir, _, err := svc.Directory(ctx, b.ID)
	if err != nil {
		t.Fatalf("Directory(b): %v", err)
	}
	if dir.Parent != a.ID {
		t.Errorf("b.Parent = %d, want %d", dir.Parent, a.ID)
	}

	// And the subtree still deletes cleanly afterwards.
	if err := svc.DeleteDirectory(ctx, editor, a.ID); err != nil {
		t.Fatalf("DeleteDirectory after rejected move: %v", err)
	}
	for _, id := range []models.DirID{a.ID, b.ID} {
		if _, _, err := svc.Directory(ctx, id); !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("Directory(%d) = %v, want ErrNotFound", id, err)
		}
	}
}

func TestMoveNote_KeepsName(t *testing.T) {
	svc := newService(t, nil)
	ctx := context.Background()

	inbox := mustDir(t, svc, models.Root, "inbox")
	n := mustNote(t, svc, models.Root, "draft", "wip")

	if err := svc.MoveNote(ctx, editor, n.ID, inbox.ID); err != nil {
		t.Fatalf("MoveNote: %v", err)
	}
	got, err := svc.Note(ctx, n.ID)
	if err != nil {
		t.Fatalf("Note: %v", err)
	}
	if got.Parent != inbox.ID {
		t.Errorf("Parent = %d, want %d", got.Parent, inbox.ID)
	}
	if got.Name != "draft" {
		t.Errorf("Name = %q, want %q", got.Name, "draft")
	}
}

func TestRenameDirectory(t *testing.T) {
	svc := newService(t, nil)
	ctx := context.Background()

	d := mustDir(t, svc, models.Root, "old")
	mustDir(t, svc, models.Root, "taken")

	if err := svc.RenameDirectory(ctx, editor, d.ID, "new"); err != nil {
		t.Fatalf("RenameDirectory: %v", err)
	}
	dir, _, err := svc.Directory(ctx, d.ID)
	if err != nil {
		t.Fatalf("Directory: %v", err)
	}
	if dir.Name != "new" {
		t.Errorf("Name = %q, want %q", dir.Name, "new")
	}

	if err := svc.RenameDirectory(ctx, editor, d.ID, "taken"); !errors.Is(err, apperr.ErrDuplicateName) {
		t.Errorf("rename to sibling name = %v, want ErrDuplicateName", err)
	}
}

func TestRootImmutable(t *testing.T) {
	svc := newService(t, nil)
	ctx := context.Background()

	a := mustDir(t, svc, models.Root, "a")

	if err := svc.RenameDirectory(ctx, editor, models.Root, "renamed"); !errors.Is(err, apperr.ErrRootImmutable) {
		t.Errorf("rename root = %v, want ErrRootImmutable", err)
	}
	if err := svc.MoveDirectory(ctx, editor, models.Root, a.ID, "root"); !errors.Is(err, apperr.ErrRootImmutable) {
		t.Errorf("move root = %v, want ErrRootImmutable", err)
	}
}

func TestDeleteDirectory_RootUndeletable(t *testing.T) {
	svc := newService(t, nil)
	ctx := context.Background()

	if err := svc.DeleteDirectory(ctx, editor, models.Root); !errors.Is(err, apperr.ErrRootUndeletable) {
		t.Errorf("delete root = %v, want ErrRootUndeletable", err)
	}
}

func TestDeleteDirectory_CascadesSubtree(t *testing.T) {
	svc := newService(t, nil)
	ctx := context.Background()

	a := mustDir(t, svc, models.Root, "a")
	b := mustDir(t, svc, a.ID, "b")
	c := mustDir(t, svc, b.ID, "c")
	n1 := mustNote(t, svc, a.ID, "plan", "top")
	n2 := mustNote(t, svc, c.ID, "deep", "bottom")

	if err := svc.DeleteDirectory(ctx, editor, a.ID); err != nil {
		t.Fatalf("DeleteDirectory: %v", err)
	}

	for _, id := range []models.DirID{a.ID, b.ID, c.ID} {
		if _, _, err := svc.Directory(ctx, id); !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("Directory(%d) after delete = %v, want ErrNotFound", id, err)
		}
	}
	for _, id := range []models.NoteID{n1.ID, n2.ID} {
		if _, err := svc.Note(ctx, id); !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("Note(%d) after delete = %v, want ErrNotFound", id, err)
		}
	}
	dirs, err := svc.Descendants(ctx, a.ID)
	if err != nil {
		t.Fatalf("Descendants: %v", err)
	}
	if len(dirs) != 0 {
		t.Errorf("Descendants after delete = %v, want empty", dirs)
	}
	notes, err := svc.OwnedNotes(ctx, a.ID)
	if err != nil {
		t.Fatalf("OwnedNotes: %v", err)
	}
	if len(notes) != 0 {
		t.Errorf("OwnedNotes after delete = %v, want empty", notes)
	}

	// Identifiers of deleted entries are never reissued.
	later := mustDir(t, svc, models.Root, "later")
	if int64(later.ID) <= int64(n2.ID) {
		t.Errorf("new id %d not above all previously issued ids", later.ID)
	}
}

func TestDeleteNote(t *testing.T) {
	svc := newService(t, nil)
	ctx := context.Background()

	n := mustNote(t, svc, models.Root, "gone", "soon")
	entry, err := svc.LookupChild(ctx, models.Root, "gone")
	if err != nil {
		t.Fatalf("LookupChild: %v", err)
	}
	if entry.Kind != models.KindNote || entry.ID != int64(n.ID) {
		t.Errorf("LookupChild = %+v, want note %d", entry, n.ID)
	}

	if err := svc.DeleteNote(ctx, editor, n.ID); err != nil {
		t.Fatalf("DeleteNote: %v", err)
	}
	if _, err := svc.Note(ctx, n.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Note after delete = %v, want ErrNotFound", err)
	}
	if _, err := svc.LookupChild(ctx, models.Root, "gone"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("LookupChild after delete = %v, want ErrNotFound", err)
	}
	if err := svc.DeleteNote(ctx, editor, n.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second delete = %v, want ErrNotFound", err)
	}
}

func TestOwnedNotes_CoversSubtree(t *testing.T) {
	svc := newService(t, nil)
	ctx := context.Background()

	a := mustDir(t, svc, models.Root, "a")
	b := mustDir(t, svc, a.ID, "b")
	n1 := mustNote(t, svc, a.ID, "n1", "")
	n2 := mustNote(t, svc, b.ID, "n2", "")
	mustNote(t, svc, models.Root, "outside", "")

	notes, err := svc.OwnedNotes(ctx, a.ID)
	if err != nil {
		t.Fatalf("OwnedNotes: %v", err)
	}
	if len(notes) != 2 {
		t.Fatalf("OwnedNotes = %v, want 2 notes", notes)
	}
	got := map[models.NoteID]bool{notes[0]: true, notes[1]: true}
	if !got[n1.ID] || !got[n2.ID] {
		t.Errorf("OwnedNotes = %v, want {%d, %d}", notes, n1.ID, n2.ID)
	}
}

func TestMutationsRequireEditCapability(t *testing.T) {
	svc := newService(t, nil)
	ctx := context.Background()

	d := mustDir(t, svc, models.Root, "sealed")

	if _, err := svc.CreateDirectory(ctx, "stranger", models.Root, "x"); !errors.Is(err, apperr.ErrPermissionDenied) {
		t.Errorf("CreateDirectory as stranger = %v, want ErrPermissionDenied", err)
	}
	if err := svc.DeleteDirectory(ctx, "stranger", d.ID); !errors.Is(err, apperr.ErrPermissionDenied) {
		t.Errorf("DeleteDirectory as stranger = %v, want ErrPermissionDenied", err)
	}
	if _, err := svc.StoreNewsletter(ctx, "stranger", "w1", "body"); !errors.Is(err, apperr.ErrPermissionDenied) {
		t.Errorf("StoreNewsletter as stranger = %v, want ErrPermissionDenied", err)
	}

	// Reads stay open to everyone.
	if _, _, err := svc.Directory(ctx, d.ID); err != nil {
		t.Errorf("Directory read: %v", err)
	}
}

func TestCanReceiveFeedback_IndependentOfEdit(t *testing.T) {
	svc := newService(t, nil)
	ctx := context.Background()

	if err := svc.SetPermissions(ctx, "press", models.Capabilities{CanReceiveFeedback: true}); err != nil {
		t.Fatalf("SetPermissions: %v", err)
	}
	ok, err := svc.CanReceiveFeedback(ctx, "press")
	if err != nil || !ok {
		t.Errorf("CanReceiveFeedback(press) = %v, %v, want true", ok, err)
	}
	ok, err = svc.CanEdit(ctx, "press")
	if err != nil || ok {
		t.Errorf("CanEdit(press) = %v, %v, want false", ok, err)
	}
	ok, err = svc.CanReceiveFeedback(ctx, "nobody")
	if err != nil || ok {
		t.Errorf("CanReceiveFeedback(nobody) = %v, %v, want false", ok, err)
	}
}

func TestNewsletterArchive(t *testing.T) {
	svc := newService(t, nil)
	ctx := context.Background()

	stored, err := svc.StoreNewsletter(ctx, editor, "august digest", "contents here")
	if err != nil {
		t.Fatalf("StoreNewsletter: %v", err)
	}
	list, err := svc.Newsletters(ctx)
	if err != nil {
		t.Fatalf("Newsletters: %v", err)
	}
	if len(list) != 1 || list[0].Name != "august digest" {
		t.Fatalf("Newsletters = %+v, want one entry", list)
	}
	if list[0].Content != "" {
		t.Errorf("listing carries content %q, want omitted", list[0].Content)
	}
	got, err := svc.Newsletter(ctx, stored.ID)
	if err != nil {
		t.Fatalf("Newsletter: %v", err)
	}
	if got.Content != "contents here" {
		t.Errorf("Content = %q, want %q", got.Content, "contents here")
	}
}

func TestEventsEmittedOnCommitOnly(t *testing.T) {
	var kinds []string
	svc := newService(t, func(kind string, id int64, name string) {
		kinds = append(kinds, kind)
	})
	ctx := context.Background()

	d := mustDir(t, svc, models.Root, "a")
	mustNote(t, svc, d.ID, "n", "")
	if err := svc.DeleteDirectory(ctx, editor, d.ID); err != nil {
		t.Fatalf("DeleteDirectory: %v", err)
	}
	if _, err := svc.CreateDirectory(ctx, "stranger", models.Root, "x"); err == nil {
		t.Fatal("CreateDirectory as stranger succeeded, want error")
	}

	want := "dir.created,note.created,dir.deleted"
	if got := strings.Join(kinds, ","); got != want {
		t.Errorf("events = %q, want %q", got, want)
	}
}
