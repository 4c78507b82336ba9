package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/starford/eihwaz/internal/kb"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *kb.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Directories.
	r.Post("/dirs", h.CreateDir)
	r.Get("/dirs/{id}", h.GetDir)
	r.Post("/dirs/{id}/rename", h.RenameDir)
	r.Post("/dirs/{id}/move", h.MoveDir)
	r.Delete("/dirs/{id}", h.DeleteDir)

	// Notes.
	r.Post("/notes", h.CreateNote)
	r.Get("/notes/{id}", h.GetNote)
	r.Put("/notes/{id}", h.UpdateNote)
	r.Post("/notes/{id}/rename", h.RenameNote)
	r.Post("/notes/{id}/move", h.MoveNote)
	r.Delete("/notes/{id}", h.DeleteNote)

	// Path resolution and search.
	r.Get("/resolve", h.Resolve)
	r.Get("/search", h.Search)

	// Newsletter archive.
	r.Get("/newsletters", h.ListNewsletters)
	r.Post("/newsletters", h.CreateNewsletter)
	r.Get("/newsletters/{id}", h.GetNewsletter)

	// Permission administration.
	r.Get("/permissions/{principal}", h.GetPermissions)
	r.Put("/permissions/{principal}", h.PutPermissions)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
