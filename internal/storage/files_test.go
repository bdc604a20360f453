package storage

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

func TestFilesStore_Layout(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenFiles(dir, quietLogger())
	if err != nil {
		t.Fatalf("OpenFiles: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	n, err := s.Create(ctx, "Layout", "# body", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, string(n.ID)+".md"))
	if err != nil || string(data) != "# body" {
		t.Fatalf("content file = %q, %v", data, err)
	}
	if _, err := os.Stat(filepath.Join(dir, IndexFile)); err != nil {
		t.Fatalf("index missing: %v", err)
	}

	if err := s.Delete(ctx, n.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, string(n.ID)+".md")); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("content file survived delete: %v", err)
	}
}

func TestFilesStore_ReopenKeepsNotes(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	s, err := OpenFiles(dir, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	n, _ := s.Create(ctx, "Persist", "kept", nil)
	s.Close()

	s, err = OpenFiles(dir, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	got, err := s.Get(ctx, n.ID)
	if err != nil || got.Content != "kept" {
		t.Fatalf("Get after reopen = %+v, %v", got, err)
	}
}

func TestFilesStore_ReconcileReportsExternalEdits(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenFiles(dir, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	ctx := context.Background()

	a, _ := s.Create(ctx, "A", "v1", nil)
	_, _ = s.Create(ctx, "B", "v1", nil)
	if changed, _ := s.Reconcile(ctx); len(changed) != 0 {
		t.Fatalf("own writes reported as external: %v", changed)
	}

	if err := os.WriteFile(filepath.Join(dir, string(a.ID)+".md"), []byte("edited elsewhere"), 0o644); err != nil {
		t.Fatal(err)
	}
	_ = os.WriteFile(filepath.Join(dir, "stray.md"), []byte("not indexed"), 0o644)

	changed, err := s.Reconcile(ctx)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(changed) != 1 || changed[0] != a.ID {
		t.Fatalf("changed = %v, want [%s]", changed, a.ID)
	}
	got, _ := s.Get(ctx, a.ID)
	if got.Content != "edited elsewhere" {
		t.Errorf("content = %q", got.Content)
	}
	if again, _ := s.Reconcile(ctx); len(again) != 0 {
		t.Errorf("second pass reported %v", again)
	}
}

func TestFilesStore_MissingContentFile(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenFiles(dir, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	ctx := context.Background()

	n, _ := s.Create(ctx, "Lost", "gone soon", nil)
	_ = os.Remove(filepath.Join(dir, string(n.ID)+".md"))

	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || list[0].Content != "" || list[0].Title != "Lost" {
		t.Errorf("list = %+v", list)
	}
}
