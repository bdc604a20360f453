package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/notesync"
)

// Session is the UI state engine driven by the session routes.
type Session interface {
	Snapshot() notesync.Snapshot
	Select(ctx context.Context, id models.NoteID) error
	ToggleExpansion(id models.NoteID) (bool, error)
	Edit(id models.NoteID, title, content string) error
	Create(ctx context.Context, title, content string, parent *models.NoteID) (models.Note, error)
	Delete(ctx context.Context, id models.NoteID) error
	Retry(ctx context.Context, id models.NoteID) error
	Refresh(ctx context.Context) (notesync.Snapshot, error)
	ChangeStorageLocation(ctx context.Context, location string) (notesync.Snapshot, error)
}

var _ Session = (*notesync.Controller)(nil)

// SessionHandler serves the UI command surface.
type SessionHandler struct {
	session Session
	logger  *slog.Logger
}

// NewSessionHandler creates a SessionHandler.
func NewSessionHandler(session Session, logger *slog.Logger) *SessionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionHandler{session: session, logger: logger}
}

// State handles GET /api/session.
func (h *SessionHandler) State(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.session.Snapshot())
}

// Select handles POST /api/session/select. The pending edit of the previous
// note is saved first.
func (h *SessionHandler) Select(w http.ResponseWriter, r *http.Request) {
	var req NoteRef
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.session.Select(r.Context(), req.ID); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, h.session.Snapshot())
}

// Toggle handles POST /api/session/toggle.
func (h *SessionHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	var req NoteRef
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	expanded, err := h.session.ToggleExpansion(req.ID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, ExpansionResponse{ID: req.ID, Expanded: expanded})
}

// Edit handles POST /api/session/edits. The save happens after the
// quiescence window, so the response is 202.
func (h *SessionHandler) Edit(w http.ResponseWriter, r *http.Request) {
	var req EditRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.session.Edit(req.ID, req.Title, req.Content); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// CreateNote handles POST /api/session/notes. The new note becomes the
// selection.
func (h *SessionHandler) CreateNote(w http.ResponseWriter, r *http.Request) {
	var req CreateNoteRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	n, err := h.session.Create(r.Context(), req.Title, req.Content, req.ParentID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, newNoteDetail(n))
}

// DeleteNote handles DELETE /api/session/notes/{id}.
func (h *SessionHandler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Delete(r.Context(), noteID(r)); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, h.session.Snapshot())
}

// Retry handles POST /api/session/retry/{id}.
func (h *SessionHandler) Retry(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Retry(r.Context(), noteID(r)); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, h.session.Snapshot())
}

// Relocate handles PUT /api/session/location.
func (h *SessionHandler) Relocate(w http.ResponseWriter, r *http.Request) {
	var req SettingsRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	snap, err := h.session.ChangeStorageLocation(r.Context(), req.StorageLocation)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
