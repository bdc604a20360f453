package index

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/starford/ansuz/internal/apperr"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "note_index.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func row(id, parent, title string) NoteRow {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return NoteRow{ID: id, ParentID: parent, Title: title, Checksum: "cs-" + id, Created: now, Modified: now}
}

func listIDs(t *testing.T, db *DB) []string {
	t.Helper()
	rows, err := db.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.ID
	}
	return out
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM notes`).Scan(&count); err != nil {
		t.Fatalf("notes table missing: %v", err)
	}
}

func TestOpen_BadPath(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(filepath.Join(f, "nested.db")); err == nil {
		t.Fatal("expected error opening a database below a regular file")
	}
}

func TestInsertAndGet(t *testing.T) {
	db := testDB(t)
	if err := db.Insert(row("a", "", "Alpha"), "body a"); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := db.Insert(row("b", "a", "Beta"), "body b"); err != nil {
		t.Fatalf("Insert child: %v", err)
	}

	got, err := db.Get("b")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ParentID != "a" || got.Title != "Beta" || got.Checksum != "cs-b" {
		t.Errorf("row = %+v", got)
	}
	if !got.Created.Equal(row("b", "", "").Created) {
		t.Errorf("created = %v", got.Created)
	}

	root, _ := db.Get("a")
	if root.ParentID != "" {
		t.Errorf("root parent = %q, want empty", root.ParentID)
	}
}

func TestInsert_UnknownParent(t *testing.T) {
	db := testDB(t)
	err := db.Insert(row("x", "ghost", "X"), "")
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("Insert = %v, want validation error", err)
	}
}

func TestList_CreationOrder(t *testing.T) {
	db := testDB(t)
	for _, id := range []string{"z", "m", "a"} {
		if err := db.Insert(row(id, "", id), ""); err != nil {
			t.Fatal(err)
		}
	}
	if got := listIDs(t, db); !reflect.DeepEqual(got, []string{"z", "m", "a"}) {
		t.Errorf("order = %v, want insertion order", got)
	}
	if n, _ := db.Count(); n != 3 {
		t.Errorf("count = %d", n)
	}
}

func TestUpdate(t *testing.T) {
	db := testDB(t)
	_ = db.Insert(row("a", "", "Old"), "old")

	r := row("a", "", "New")
	r.Checksum = "2"
	r.Modified = r.Modified.Add(time.Hour)
	if err := db.Update(r, "new"); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, _ := db.Get("a")
	if got.Title != "New" || got.Checksum != "2" || !got.Modified.Equal(r.Modified) {
		t.Errorf("row = %+v", got)
	}
	if got.Created.Equal(got.Modified) {
		t.Error("created must not move on update")
	}
}

func TestUpdate_NotFound(t *testing.T) {
	db := testDB(t)
	if err := db.Update(row("ghost", "", "x"), ""); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("Update = %v, want not found", err)
	}
	if _, err := db.Get("ghost"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("Get = %v, want not found", err)
	}
}

func TestRecordContent(t *testing.T) {
	db := testDB(t)
	_ = db.Insert(row("a", "", "A"), "v1")
	if err := db.RecordContent("a", "cs2", "v2 from disk", time.Now()); err != nil {
		t.Fatalf("RecordContent: %v", err)
	}
	sums, _ := db.Checksums()
	if sums["a"] != "cs2" {
		t.Errorf("checksum = %q", sums["a"])
	}
	if err := db.RecordContent("ghost", "x", "", time.Now()); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("RecordContent unknown = %v", err)
	}
}

func TestDeleteTree(t *testing.T) {
	db := testDB(t)
	_ = db.Insert(row("a", "", "A"), "")
	_ = db.Insert(row("b", "a", "B"), "")
	_ = db.Insert(row("c", "b", "C"), "")
	_ = db.Insert(row("d", "", "D"), "")

	var seen []string
	ids, err := db.DeleteTree("a", func(ids []string) error {
		seen = ids
		return nil
	})
	if err != nil {
		t.Fatalf("DeleteTree: %v", err)
	}
	if len(ids) != 3 || !reflect.DeepEqual(ids, seen) {
		t.Errorf("ids = %v, callback saw %v", ids, seen)
	}
	if got := listIDs(t, db); !reflect.DeepEqual(got, []string{"d"}) {
		t.Errorf("remaining = %v", got)
	}
}

func TestDeleteTree_CallbackErrorRollsBack(t *testing.T) {
	db := testDB(t)
	_ = db.Insert(row("a", "", "A"), "")
	_ = db.Insert(row("b", "a", "B"), "")

	boom := errors.New("files locked")
	if _, err := db.DeleteTree("a", func([]string) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("DeleteTree = %v, want callback error", err)
	}
	if got := listIDs(t, db); len(got) != 2 {
		t.Errorf("rows after rollback = %v", got)
	}
}

func TestDeleteTree_NotFound(t *testing.T) {
	db := testDB(t)
	if _, err := db.DeleteTree("ghost", nil); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("DeleteTree = %v, want not found", err)
	}
}

func TestSearch_Basic(t *testing.T) {
	db := testDB(t)
	_ = db.Insert(row("s", "", "Search Me"), "uniqueword appears here")
	_ = db.Insert(row("o", "", "Other"), "nothing to see")

	results, err := db.Search("uniqueword", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ID != "s" {
		t.Errorf("search results = %+v, want 1 hit for s", results)
	}
}
