// Package testutil provides shared test helpers for setting up libraries and
// controllers.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/starford/ansuz/internal/notesync"
	"github.com/starford/ansuz/internal/storage"
)

// Logger returns a logger that drops everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestLibrary opens a library of the given backend in a temporary directory
// that is closed automatically. The settings file lives next to the notes.
func TestLibrary(t *testing.T, backend string) *storage.Library {
	t.Helper()
	root := t.TempDir()
	lib, err := storage.OpenLibrary(storage.LibraryOptions{
		Backend:      backend,
		Location:     filepath.Join(root, "notes"),
		SettingsFile: filepath.Join(root, "settings.yaml"),
		Logger:       Logger(),
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { lib.Close() })
	return lib
}

// TestController wraps repo in a loaded controller that is closed
// automatically.
func TestController(t *testing.T, repo notesync.Repository, events notesync.EventSink) *notesync.Controller {
	t.Helper()
	c := notesync.New(repo, notesync.Options{Logger: Logger(), Events: events})
	if _, err := c.LoadAll(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close(context.Background()) })
	return c
}
