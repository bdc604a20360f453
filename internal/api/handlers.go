package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/notesync"
	"github.com/starford/ansuz/internal/storage"
	"github.com/starford/ansuz/internal/tree"
)

// Store is the repository served over HTTP.
type Store interface {
	notesync.Repository
	Get(ctx context.Context, id models.NoteID) (models.Note, error)
	Search(ctx context.Context, query string, limit int) ([]storage.SearchHit, error)
	Count(ctx context.Context) (int, error)
}

// Handler holds the repository route handlers.
type Handler struct {
	store   Store
	session Session
	logger  *slog.Logger
}

// NewHandler creates a new Handler. session may be nil; when set, writes made
// through the repository routes are reflected in it.
func NewHandler(store Store, session Session, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{store: store, session: session, logger: logger}
}

func noteID(r *http.Request) models.NoteID {
	return models.NoteID(chi.URLParam(r, "id"))
}

// refresh re-syncs the session after a write that bypassed it.
func (h *Handler) refresh(ctx context.Context) {
	if h.session == nil {
		return
	}
	if _, err := h.session.Refresh(ctx); err != nil {
		h.logger.Warn("api: refresh session", slog.String("error", err.Error()))
	}
}

// ListNotes handles GET /api/notes.
//
//	@Summary		List all notes in creation order
//	@Tags			notes
//	@Produce		json
//	@Success		200		{object}	NoteListResponse
//	@Security		BearerAuth
//	@Router			/notes [get]
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	notes, err := h.store.List(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if notes == nil {
		notes = []models.Note{}
	}
	writeJSON(w, http.StatusOK, NoteListResponse{Notes: notes, Total: len(notes)})
}

// Tree handles GET /api/notes/tree.
//
//	@Summary		Get the note forest
//	@Tags			notes
//	@Produce		json
//	@Success		200		{object}	TreeResponse
//	@Security		BearerAuth
//	@Router			/notes/tree [get]
func (h *Handler) Tree(w http.ResponseWriter, r *http.Request) {
	notes, err := h.store.List(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, TreeResponse{Roots: tree.Build(notes), Total: len(notes)})
}

// GetNote handles GET /api/notes/{id}.
//
//	@Summary		Get a single note by id
//	@Tags			notes
//	@Produce		json
//	@Param			id		path		string	true	"Note id"
//	@Success		200		{object}	NoteDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [get]
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	n, err := h.store.Get(r.Context(), noteID(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newNoteDetail(n))
}

// CreateNote handles POST /api/notes.
//
//	@Summary		Create a note, optionally below a parent
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateNoteRequest	true	"Note to create"
//	@Success		201		{object}	NoteDetail
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes [post]
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	var req CreateNoteRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	n, err := h.store.Create(r.Context(), models.NormalizeTitle(req.Title), req.Content, req.ParentID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.refresh(r.Context())
	writeJSON(w, http.StatusCreated, newNoteDetail(n))
}

// UpdateNote handles PUT /api/notes/{id}.
//
//	@Summary		Replace title and content of a note
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"Note id"
//	@Param			body	body		UpdateNoteRequest	true	"Updated note"
//	@Success		200		{object}	NoteDetail
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [put]
func (h *Handler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	var req UpdateNoteRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	n, err := h.store.Update(r.Context(), noteID(r), models.NormalizeTitle(req.Title), req.Content)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.refresh(r.Context())
	writeJSON(w, http.StatusOK, newNoteDetail(n))
}

// DeleteNote handles DELETE /api/notes/{id}. Descendants are removed too.
//
//	@Summary		Delete a note and its descendants
//	@Tags			notes
//	@Param			id		path	string	true	"Note id"
//	@Success		204		"Note deleted"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [delete]
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Delete(r.Context(), noteID(r)); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.refresh(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across notes
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, r, h.logger, fmt.Errorf("query parameter 'q' is required: %w", apperr.ErrValidation))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.store.Search(r.Context(), q, limit)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if results == nil {
		results = []storage.SearchHit{}
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// GetSettings handles GET /api/settings.
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.store.Settings(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// UpdateSettings handles PUT /api/settings. With a session attached the move
// goes through it so pending edits are discarded and the tree reloaded.
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req SettingsRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if h.session != nil {
		if _, err := h.session.ChangeStorageLocation(r.Context(), req.StorageLocation); err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		h.GetSettings(w, r)
		return
	}
	s, err := h.store.UpdateSettings(r.Context(), models.Settings{StorageLocation: req.StorageLocation})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// Health handles GET /api/health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	count, err := h.store.Count(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	s, err := h.store.Settings(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", NotesCount: count, StorageLocation: s.StorageLocation})
}
