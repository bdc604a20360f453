// Package storage persists notes. Two backends are available: "files" keeps
// content in <id>.md files with metadata in a SQLite index, "bolt" keeps
// whole notes in a single bbolt database. Library wraps the active backend,
// the persisted settings and relocation between locations.
package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/starford/ansuz/internal/models"
)

// Backend names accepted in configuration.
const (
	BackendFiles = "files"
	BackendBolt  = "bolt"
)

// File names inside a storage location.
const (
	IndexFile = "note_index.db"
	BoltFile  = "notes.bolt"
)

// SearchHit is one search result.
type SearchHit struct {
	ID      models.NoteID `json:"id"`
	Title   string        `json:"title"`
	Snippet string        `json:"snippet"`
}

// Store is a note backend bound to one location. Delete cascades to every
// descendant. Create rejects an unknown parent with apperr.ErrValidation;
// Get, Update and Delete report a missing id with apperr.ErrNotFound.
type Store interface {
	List(ctx context.Context) ([]models.Note, error)
	Get(ctx context.Context, id models.NoteID) (models.Note, error)
	Create(ctx context.Context, title, content string, parent *models.NoteID) (models.Note, error)
	Update(ctx context.Context, id models.NoteID, title, content string) (models.Note, error)
	Delete(ctx context.Context, id models.NoteID) error
	// Import copies notes verbatim (ids, timestamps, order). A parent that is
	// not part of the store by the time its child is imported is dropped.
	Import(ctx context.Context, notes []models.Note) error
	Search(ctx context.Context, query string, limit int) ([]SearchHit, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// Open opens the backend at location. The directory must exist.
func Open(backend, location string, logger *slog.Logger) (Store, error) {
	switch backend {
	case BackendFiles, "":
		return OpenFiles(location, logger)
	case BackendBolt:
		return OpenBolt(location)
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", backend)
	}
}

// newID returns a time-ordered note id.
func newID() (models.NoteID, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("storage: generate id: %w", err)
	}
	return models.NoteID(id.String()), nil
}
