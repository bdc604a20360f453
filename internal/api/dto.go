package api

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/ansuz/internal/markdown"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/storage"
	"github.com/starford/ansuz/internal/tree"
)

const maxTitleLen = 500

// CreateNoteRequest is the request body for creating a note. A missing
// parent_id creates a root.
type CreateNoteRequest struct {
	Title    string         `json:"title" example:"Groceries"`
	Content  string         `json:"content" example:"- milk"`
	ParentID *models.NoteID `json:"parent_id,omitempty"`
}

// Validate implements validation.Validatable.
func (r CreateNoteRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Title, validation.RuneLength(0, maxTitleLen)),
		validation.Field(&r.ParentID, validation.NilOrNotEmpty),
	)
}

// UpdateNoteRequest is the request body for updating a note.
type UpdateNoteRequest struct {
	Title   string `json:"title" example:"Groceries"`
	Content string `json:"content" example:"- milk\n- eggs"`
}

// Validate implements validation.Validatable.
func (r UpdateNoteRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Title, validation.RuneLength(0, maxTitleLen)),
	)
}

// SettingsRequest is the request body of PUT /settings and PUT /session/location.
type SettingsRequest struct {
	StorageLocation string `json:"storage_location" example:"/home/me/notes" validate:"required"`
}

// Validate implements validation.Validatable.
func (r SettingsRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.StorageLocation, validation.By(notBlank)),
	)
}

// NoteRef names one note in session requests.
type NoteRef struct {
	ID models.NoteID `json:"id" validate:"required"`
}

// Validate implements validation.Validatable.
func (r NoteRef) Validate() error {
	return validation.ValidateStruct(&r, validation.Field(&r.ID, validation.Required))
}

// EditRequest is one buffered keystroke batch for the debounced saver.
type EditRequest struct {
	ID      models.NoteID `json:"id" validate:"required"`
	Title   string        `json:"title"`
	Content string        `json:"content"`
}

// Validate implements validation.Validatable.
func (r EditRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ID, validation.Required),
		validation.Field(&r.Title, validation.RuneLength(0, maxTitleLen)),
	)
}

func notBlank(v any) error {
	if s, _ := v.(string); strings.TrimSpace(s) == "" {
		return validation.NewError("validation_required", "cannot be blank")
	}
	return nil
}

// NoteDetail is a note plus the preview fields derived from its content.
type NoteDetail struct {
	models.Note
	Summary string   `json:"summary"`
	Tags    []string `json:"tags"`
}

func newNoteDetail(n models.Note) NoteDetail {
	md := markdown.Parse(n.Content)
	tags := md.Tags
	if tags == nil {
		tags = []string{}
	}
	return NoteDetail{Note: n, Summary: md.Summary, Tags: tags}
}

// NoteListResponse wraps the flat note collection in creation order.
type NoteListResponse struct {
	Notes []models.Note `json:"notes" validate:"required"`
	Total int           `json:"total" example:"42" validate:"required"`
}

// TreeResponse wraps the forest built from the collection.
type TreeResponse struct {
	Roots []*tree.Node `json:"roots" validate:"required"`
	Total int          `json:"total" validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []storage.SearchHit `json:"results" validate:"required"`
}

// ExpansionResponse reports the expansion state after a toggle.
type ExpansionResponse struct {
	ID       models.NoteID `json:"id"`
	Expanded bool          `json:"expanded"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status          string `json:"status" example:"ok"`
	NotesCount      int    `json:"notes_count"`
	StorageLocation string `json:"storage_location"`
}
