package notesync

import (
	"context"

	"github.com/starford/ansuz/internal/models"
)

// Repository is the authoritative note store the controller synchronizes
// against. Delete removes the note and every descendant.
type Repository interface {
	List(ctx context.Context) ([]models.Note, error)
	Create(ctx context.Context, title, content string, parent *models.NoteID) (models.Note, error)
	Update(ctx context.Context, id models.NoteID, title, content string) (models.Note, error)
	Delete(ctx context.Context, id models.NoteID) error
	Settings(ctx context.Context) (models.Settings, error)
	UpdateSettings(ctx context.Context, s models.Settings) (models.Settings, error)
}
