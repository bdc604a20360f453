package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	Store Store
	// Session, if non-nil, enables the /session routes.
	Session     Session
	AuthEnabled bool
	Token       string
	// Events, if non-nil, is mounted at GET /events inside the auth group.
	Events http.Handler
	Logger *slog.Logger
}

// NewRouter creates a chi router with all API routes mounted.
func NewRouter(opts RouterOptions) chi.Router {
	h := NewHandler(opts.Store, opts.Session, opts.Logger)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(opts.AuthEnabled, opts.Token))

	r.Get("/health", h.Health)

	// Repository surface.
	r.Get("/notes", h.ListNotes)
	r.Post("/notes", h.CreateNote)
	r.Get("/notes/tree", h.Tree)
	r.Get("/notes/{id}", h.GetNote)
	r.Put("/notes/{id}", h.UpdateNote)
	r.Delete("/notes/{id}", h.DeleteNote)
	r.Get("/search", h.Search)
	r.Get("/settings", h.GetSettings)
	r.Put("/settings", h.UpdateSettings)

	if opts.Session != nil {
		sh := NewSessionHandler(opts.Session, opts.Logger)
		r.Route("/session", func(r chi.Router) {
			r.Get("/", sh.State)
			r.Post("/select", sh.Select)
			r.Post("/toggle", sh.Toggle)
			r.Post("/edits", sh.Edit)
			r.Post("/notes", sh.CreateNote)
			r.Delete("/notes/{id}", sh.DeleteNote)
			r.Post("/retry/{id}", sh.Retry)
			r.Put("/location", sh.Relocate)
		})
	}

	// SSE endpoint (protected by same auth middleware).
	if opts.Events != nil {
		r.Get("/events", opts.Events.ServeHTTP)
	}

	return r
}
