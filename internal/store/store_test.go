package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/starford/eihwaz/internal/apperr"
	"github.com/starford/eihwaz/internal/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "eihwaz-store-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func mustTx(t *testing.T, db *DB) *Tx {
	t.Helper()
	tx, err := db.Begin(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return tx
}

func mkDir(t *testing.T, db *DB, parent models.DirID, name string) models.DirID {
	t.Helper()
	ctx := context.Background()
	id := models.DirID(db.Alloc().Allocate())
	tx := mustTx(t, db)
	defer tx.Rollback() //nolint:errcheck
	if err := tx.InsertDir(ctx, id); err != nil {
		t.Fatal(err)
	}
	if err := tx.InsertDirEdge(ctx, parent, id, name); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
	return id
}

func mkNote(t *testing.T, db *DB, parent models.DirID, name, content string) models.NoteID {
	t.Helper()
	ctx := context.Background()
	id := models.NoteID(db.Alloc().Allocate())
	tx := mustTx(t, db)
	defer tx.Rollback() //nolint:errcheck
	if err := tx.InsertNote(ctx, id, content); err != nil {
		t.Fatal(err)
	}
	if err := tx.InsertNoteEdge(ctx, parent, id, name); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
	return id
}

func TestOpenSeedsRoot(t *testing.T) {
	db := testDB(t)
	ok, err := db.DirExists(context.Background(), models.Root)
	if err != nil {
		t.Fatalf("DirExists: %v", err)
	}
	if !ok {
		t.Fatal("root directory missing after Open")
	}
}

func TestAllocatorIssuesDistinctIncreasing(t *testing.T) {
	db := testDB(t)
	a := db.Alloc()
	prev := a.Allocate()
	for i := 0; i < 100; i++ {
		next := a.Allocate()
		if next <= prev {
			t.Fatalf("Allocate() = %d after %d, want strictly increasing", next, prev)
		}
		prev = next
	}
}

func TestAllocatorSurvivesReopen(t *testing.T) {
	dbFile, err := os.CreateTemp("", "eihwaz-store-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	a := mkDir(t, db, models.Root, "a")
	mkNote(t, db, a, "n", "body")
	issued := db.Alloc().Last()
	db.Close()

	db2, err := Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	defer db2.Close()
	if got := db2.Alloc().Allocate(); got <= issued {
		t.Errorf("Allocate() after reopen = %d, want > %d", got, issued)
	}
}

func TestInsertDirEdge_UnknownParent(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	id := models.DirID(db.Alloc().Allocate())

	tx := mustTx(t, db)
	defer tx.Rollback() //nolint:errcheck
	if err := tx.InsertDir(ctx, id); err != nil {
		t.Fatal(err)
	}
	err := tx.InsertDirEdge(ctx, 9999, id, "orphan")
	if !errors.Is(err, apperr.ErrUnknownParent) {
		t.Fatalf("err = %v, want ErrUnknownParent", err)
	}
}

func TestInsertDirEdge_DuplicateName(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	mkDir(t, db, models.Root, "x")

	id := models.DirID(db.Alloc().Allocate())
	tx := mustTx(t, db)
	defer tx.Rollback() //nolint:errcheck
	if err := tx.InsertDir(ctx, id); err != nil {
		t.Fatal(err)
	}
	err := tx.InsertDirEdge(ctx, models.Root, id, "x")
	if !errors.Is(err, apperr.ErrDuplicateName) {
		t.Fatalf("err = %v, want ErrDuplicateName", err)
	}
}

func TestInsertDirEdge_SelfParent(t *testing.T) {
	db := testDB(t)
	a := mkDir(t, db, models.Root, "a")

	tx := mustTx(t, db)
	defer tx.Rollback() //nolint:errcheck
	err := tx.InsertDirEdge(context.Background(), a, a, "loop")
	if !errors.Is(err, apperr.ErrSelfParent) {
		t.Fatalf("err = %v, want ErrSelfParent", err)
	}
}

func TestInsertNoteEdge_SecondParentRejected(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	a := mkDir(t, db, models.Root, "a")
	n := mkNote(t, db, models.Root, "note", "body")

	tx := mustTx(t, db)
	defer tx.Rollback() //nolint:errcheck
	err := tx.InsertNoteEdge(ctx, a, n, "other-name")
	if !errors.Is(err, apperr.ErrDuplicateName) {
		t.Fatalf("err = %v, want ErrDuplicateName for a second owning edge", err)
	}
}

// A directory and a note under the same parent may share a name: the two
// edge tables are separate namespaces.
func TestSharedNameAcrossNamespaces(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	mkDir(t, db, models.Root, "same")
	mkNote(t, db, models.Root, "same", "body")

	listing, err := db.ListChildren(ctx, models.Root)
	if err != nil {
		t.Fatal(err)
	}
	if len(listing.Dirs) != 1 || len(listing.Notes) != 1 {
		t.Fatalf("listing = %d dirs, %d notes, want 1 and 1", len(listing.Dirs), len(listing.Notes))
	}
	if listing.Dirs[0].Name != "same" || listing.Notes[0].Name != "same" {
		t.Errorf("names = %q, %q, want both %q", listing.Dirs[0].Name, listing.Notes[0].Name, "same")
	}
}

func TestLookupChild_PrefersDirectory(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	d := mkDir(t, db, models.Root, "same")
	mkNote(t, db, models.Root, "same", "body")

	entry, err := db.LookupChild(ctx, models.Root, "same")
	if err != nil {
		t.Fatal(err)
	}
	if entry.Kind != models.KindDirectory || entry.ID != int64(d) {
		t.Errorf("entry = %+v, want directory %d", entry, d)
	}
}

func TestLookupChild_NotFound(t *testing.T) {
	db := testDB(t)
	_, err := db.LookupChild(context.Background(), models.Root, "ghost")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestListChildren_OrderedByName(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	mkDir(t, db, models.Root, "bravo")
	mkDir(t, db, models.Root, "alpha")
	mkNote(t, db, models.Root, "zeta", "z")
	mkNote(t, db, models.Root, "echo", "e")

	listing, err := db.ListChildren(ctx, models.Root)
	if err != nil {
		t.Fatal(err)
	}
	if len(listing.Dirs) != 2 || listing.Dirs[0].Name != "alpha" || listing.Dirs[1].Name != "bravo" {
		t.Errorf("dirs = %+v, want alpha, bravo", listing.Dirs)
	}
	if len(listing.Notes) != 2 || listing.Notes[0].Name != "echo" || listing.Notes[1].Name != "zeta" {
		t.Errorf("notes = %+v, want echo, zeta", listing.Notes)
	}
}

func TestIsAncestor(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	a := mkDir(t, db, models.Root, "a")
	b := mkDir(t, db, a, "b")
	c := mkDir(t, db, models.Root, "c")

	cases := []struct {
		candidate, target models.DirID
		want              bool
	}{
		{a, b, true},
		{models.Root, b, true},
		{b, b, true},
		{b, a, false},
		{c, b, false},
		{models.Root, models.Root, true},
	}
	for _, tc := range cases {
		got, err := db.IsAncestor(ctx, tc.candidate, tc.target)
		if err != nil {
			t.Fatalf("IsAncestor(%d, %d): %v", tc.candidate, tc.target, err)
		}
		if got != tc.want {
			t.Errorf("IsAncestor(%d, %d) = %v, want %v", tc.candidate, tc.target, got, tc.want)
		}
	}
}

func TestDescendants_IncludesRootOfSubtree(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	a := mkDir(t, db, models.Root, "a")
	b := mkDir(t, db, a, "b")
	c := mkDir(t, db, b, "c")
	mkDir(t, db, models.Root, "other")

	got, err := db.Descendants(ctx, a)
	if err != nil {
		t.Fatal(err)
	}
	want := map[models.DirID]struct{}{a: {}, b: {}, c: {}}
	if len(got) != len(want) {
		t.Fatalf("Descendants(%d) = %v, want exactly %v", a, got, want)
	}
	for _, id := range got {
		if _, ok := want[id]; !ok {
			t.Errorf("unexpected descendant %d", id)
		}
	}
}

func TestDescendants_MissingDirIsEmpty(t *testing.T) {
	db := testDB(t)
	got, err := db.Descendants(context.Background(), 4242)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("Descendants of missing dir = %v, want empty", got)
	}
}

func TestNotesIn(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	a := mkDir(t, db, models.Root, "a")
	b := mkDir(t, db, a, "b")
	n1 := mkNote(t, db, a, "one", "1")
	n2 := mkNote(t, db, b, "two", "2")
	mkNote(t, db, models.Root, "outside", "x")

	got, err := db.NotesIn(ctx, []models.DirID{a, b})
	if err != nil {
		t.Fatal(err)
	}
	want := map[models.NoteID]struct{}{n1: {}, n2: {}}
	if len(got) != len(want) {
		t.Fatalf("NotesIn = %v, want %v", got, want)
	}
	for _, id := range got {
		if _, ok := want[id]; !ok {
			t.Errorf("unexpected note %d", id)
		}
	}
}

func TestMoveDirEdge_NotFound(t *testing.T) {
	db := testDB(t)
	tx := mustTx(t, db)
	defer tx.Rollback() //nolint:errcheck
	err := tx.MoveDirEdge(context.Background(), 777, models.Root, "nowhere")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestRenameDirEdge_DuplicateName(t *testing.T) {
	db := testDB(t)
	mkDir(t, db, models.Root, "taken")
	d := mkDir(t, db, models.Root, "free")

	tx := mustTx(t, db)
	defer tx.Rollback() //nolint:errcheck
	err := tx.RenameDirEdge(context.Background(), d, "taken")
	if !errors.Is(err, apperr.ErrDuplicateName) {
		t.Fatalf("err = %v, want ErrDuplicateName", err)
	}
}

func TestCapabilities_AbsentMeansNone(t *testing.T) {
	db := testDB(t)
	caps, err := db.Capabilities(context.Background(), "stranger")
	if err != nil {
		t.Fatalf("Capabilities: %v", err)
	}
	if caps.CanEdit || caps.CanReceiveFeedback {
		t.Errorf("caps = %+v, want none for unknown principal", caps)
	}
}

func TestSetCapabilities_Upsert(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	if err := db.SetCapabilities(ctx, "alice", models.Capabilities{CanEdit: true}); err != nil {
		t.Fatal(err)
	}
	if err := db.SetCapabilities(ctx, "alice", models.Capabilities{CanReceiveFeedback: true}); err != nil {
		t.Fatal(err)
	}
	caps, err := db.Capabilities(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if caps.CanEdit || !caps.CanReceiveFeedback {
		t.Errorf("caps = %+v, want replaced record {false true}", caps)
	}
}

func TestNewsletterRoundtrip(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	stored, err := db.AppendNewsletter(ctx, "march", "spring news")
	if err != nil {
		t.Fatal(err)
	}
	if stored.ID == 0 {
		t.Fatal("stored newsletter has no id")
	}

	got, err := db.Newsletter(ctx, stored.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "march" || got.Content != "spring news" {
		t.Errorf("got = %+v", got)
	}
	if got.Timestamp.IsZero() || time.Since(got.Timestamp) > time.Minute {
		t.Errorf("timestamp = %v, want recent", got.Timestamp)
	}
}

func TestNewsletters_NewestFirst(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	first, _ := db.AppendNewsletter(ctx, "first", "1")
	second, _ := db.AppendNewsletter(ctx, "second", "2")

	list, err := db.Newsletters(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != second.ID || list[1].ID != first.ID {
		t.Errorf("list = %+v, want newest first", list)
	}
	if list[0].Content != "" {
		t.Errorf("listing content = %q, want omitted", list[0].Content)
	}
}

func TestNewsletter_NotFound(t *testing.T) {
	db := testDB(t)
	_, err := db.Newsletter(context.Background(), 404)
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSearch_Basic(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	n := mkNote(t, db, models.Root, "greeting", "uniqueword appears here")
	mkNote(t, db, models.Root, "other", "nothing to see")

	hits, err := db.Search(ctx, "uniqueword", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != n || hits[0].Name != "greeting" {
		t.Errorf("hits = %+v, want 1 hit for note %d", hits, n)
	}
}
