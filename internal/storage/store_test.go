package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"testing"
	"time"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/models"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// backends opens every backend in its own temp dir.
func backends(t *testing.T) map[string]Store {
	t.Helper()
	out := make(map[string]Store)
	for _, name := range []string{BackendFiles, BackendBolt} {
		s, err := Open(name, t.TempDir(), quietLogger())
		if err != nil {
			t.Fatalf("Open %s: %v", name, err)
		}
		t.Cleanup(func() { s.Close() })
		out[name] = s
	}
	return out
}

func noteIDs(notes []models.Note) []models.NoteID {
	out := make([]models.NoteID, len(notes))
	for i, n := range notes {
		out[i] = n.ID
	}
	return out
}

func TestStore_CreateGetList(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			a, err := s.Create(ctx, "A", "alpha", nil)
			if err != nil {
				t.Fatalf("Create: %v", err)
			}
			if a.ID == "" || a.Created.IsZero() || a.ParentID != nil {
				t.Fatalf("created = %+v", a)
			}
			b, err := s.Create(ctx, "B", "beta", models.ParentRef(a.ID))
			if err != nil {
				t.Fatalf("Create child: %v", err)
			}

			got, err := s.Get(ctx, b.ID)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got.Title != "B" || got.Content != "beta" || got.Parent() != a.ID {
				t.Errorf("Get = %+v", got)
			}

			list, err := s.List(ctx)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if !reflect.DeepEqual(noteIDs(list), []models.NoteID{a.ID, b.ID}) {
				t.Errorf("list order = %v", noteIDs(list))
			}
			if n, _ := s.Count(ctx); n != 2 {
				t.Errorf("count = %d", n)
			}
		})
	}
}

func TestStore_CreateUnknownParent(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Create(ctx, "x", "", models.ParentRef("ghost"))
			if !errors.Is(err, apperr.ErrValidation) {
				t.Fatalf("Create = %v, want validation error", err)
			}
			if n, _ := s.Count(ctx); n != 0 {
				t.Errorf("count = %d after rejected create", n)
			}
		})
	}
}

func TestStore_Update(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			a, _ := s.Create(ctx, "A", "v1", nil)
			time.Sleep(2 * time.Millisecond)
			u, err := s.Update(ctx, a.ID, "A2", "v2")
			if err != nil {
				t.Fatalf("Update: %v", err)
			}
			if u.Title != "A2" || u.Content != "v2" || !u.Modified.After(a.Modified) {
				t.Errorf("updated = %+v", u)
			}
			if !u.Created.Equal(a.Created) {
				t.Errorf("created moved: %v -> %v", a.Created, u.Created)
			}
			got, _ := s.Get(ctx, a.ID)
			if got.Content != "v2" {
				t.Errorf("stored content = %q", got.Content)
			}
		})
	}
}

func TestStore_UnknownIDNotFound(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.Get(ctx, "ghost"); !errors.Is(err, apperr.ErrNotFound) {
				t.Errorf("Get = %v", err)
			}
			if _, err := s.Update(ctx, "ghost", "t", "c"); !errors.Is(err, apperr.ErrNotFound) {
				t.Errorf("Update = %v", err)
			}
			if err := s.Delete(ctx, "ghost"); !errors.Is(err, apperr.ErrNotFound) {
				t.Errorf("Delete = %v", err)
			}
		})
	}
}

func TestStore_DeleteCascades(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			a, _ := s.Create(ctx, "A", "", nil)
			b, _ := s.Create(ctx, "B", "", models.ParentRef(a.ID))
			_, _ = s.Create(ctx, "C", "", models.ParentRef(b.ID))
			d, _ := s.Create(ctx, "D", "", nil)

			if err := s.Delete(ctx, a.ID); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			list, _ := s.List(ctx)
			if !reflect.DeepEqual(noteIDs(list), []models.NoteID{d.ID}) {
				t.Errorf("remaining = %v, want only D", noteIDs(list))
			}
		})
	}
}

func TestStore_ImportPreservesIdentity(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2023, 1, 2, 3, 4, 5, 0, time.UTC)
	notes := []models.Note{
		{ID: "p", Title: "P", Content: "parent", Created: created, Modified: created},
		{ID: "c", Title: "C", Content: "child", ParentID: models.ParentRef("p"), Created: created, Modified: created},
		{ID: "o", Title: "O", ParentID: models.ParentRef("missing"), Created: created, Modified: created},
	}
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.Import(ctx, notes); err != nil {
				t.Fatalf("Import: %v", err)
			}
			list, _ := s.List(ctx)
			if !reflect.DeepEqual(noteIDs(list), []models.NoteID{"p", "c", "o"}) {
				t.Fatalf("order = %v", noteIDs(list))
			}
			if list[1].Parent() != "p" || list[1].Content != "child" || !list[1].Created.Equal(created) {
				t.Errorf("child = %+v", list[1])
			}
			if list[2].ParentID != nil {
				t.Errorf("dangling parent kept: %+v", list[2])
			}
		})
	}
}

func TestStore_Search(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, _ = s.Create(ctx, "Groceries", "milk and uniqueword", nil)
			_, _ = s.Create(ctx, "Other", "nothing", nil)
			hits, err := s.Search(ctx, "uniqueword", 10)
			if err != nil {
				t.Fatalf("Search: %v", err)
			}
			if len(hits) != 1 || hits[0].Title != "Groceries" {
				t.Errorf("hits = %+v", hits)
			}
		})
	}
}

func TestOpen_UnknownBackend(t *testing.T) {
	if _, err := Open("tape", t.TempDir(), quietLogger()); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}
