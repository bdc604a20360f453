//go:build sqlite_fts5

package index

import (
	"testing"
	"time"
)

func TestFTS5_TableExists(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM notes_fts`).Scan(&count); err != nil {
		t.Fatalf("notes_fts table missing: %v", err)
	}
}

func TestFTS5_SearchWithSnippet(t *testing.T) {
	db := testDB(t)
	if err := db.Insert(row("fts", "", "FTS Note"), "Ansuz provides powerful full-text search capabilities."); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	results, err := db.Search("powerful", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].ID != "fts" {
		t.Errorf("id = %q", results[0].ID)
	}
	if results[0].Snippet == "" {
		t.Error("expected non-empty snippet")
	}
}

func TestFTS5_DeleteTreeRemovesFromFTS(t *testing.T) {
	db := testDB(t)
	_ = db.Insert(row("gone", "", "Gone"), "vanishing content")
	_ = db.Insert(row("child", "gone", "Child"), "vanishing child")
	if _, err := db.DeleteTree("gone", nil); err != nil {
		t.Fatalf("DeleteTree: %v", err)
	}

	results, _ := db.Search("vanishing", 10)
	if len(results) != 0 {
		t.Errorf("deleted notes still in FTS index: %+v", results)
	}
}

func TestFTS5_UpdateReplacesContent(t *testing.T) {
	db := testDB(t)
	_ = db.Insert(row("evo", "", "Old"), "original text")
	r := row("evo", "", "New")
	r.Modified = time.Now()
	_ = db.Update(r, "replacement text")

	results, _ := db.Search("original", 10)
	if len(results) != 0 {
		t.Error("old FTS content should be gone")
	}
	results, _ = db.Search("replacement", 10)
	if len(results) != 1 || results[0].Title != "New" {
		t.Errorf("FTS not updated: %+v", results)
	}
}
