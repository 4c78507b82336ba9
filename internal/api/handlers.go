package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/starford/eihwaz/internal/kb"
	"github.com/starford/eihwaz/internal/models"
)

// Handler holds API route handlers.
type Handler struct {
	svc *kb.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *kb.Service) *Handler {
	return &Handler{svc: svc}
}

// principal returns the acting principal for a mutating request. A missing
// header yields the empty principal, which the permission gate denies.
func principal(r *http.Request) string {
	return r.Header.Get("X-Principal")
}

// pathID parses the {id} URL parameter.
func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil
}

// CreateDir handles POST /api/dirs.
//
//	@Summary		Create a directory
//	@Tags			dirs
//	@Accept			json
//	@Produce		json
//	@Param			X-Principal	header		string				true	"Acting principal"
//	@Param			body		body		CreateDirRequest	true	"Directory to create"
//	@Success		201			{object}	DirCreated
//	@Failure		400			{object}	errResponse
//	@Failure		403			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Failure		409			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/dirs [post]
func (h *Handler) CreateDir(w http.ResponseWriter, r *http.Request) {
	var req CreateDirRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("name is required"))
		return
	}
	dir, err := h.svc.CreateDirectory(r.Context(), principal(r), models.DirID(req.ParentID), req.Name)
	if err != nil {
		writeError(w, "create directory", err)
		return
	}
	writeJSON(w, http.StatusCreated, dir)
}

// GetDir handles GET /api/dirs/{id}.
//
//	@Summary		Get a directory and its children
//	@Tags			dirs
//	@Produce		json
//	@Param			id	path		int	true	"Directory id"
//	@Success		200	{object}	DirDetail
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/dirs/{id} [get]
func (h *Handler) GetDir(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid id"))
		return
	}
	dir, listing, err := h.svc.Directory(r.Context(), models.DirID(id))
	if err != nil {
		writeError(w, "get directory", err)
		return
	}
	if listing.Dirs == nil {
		listing.Dirs = []models.DirChild{}
	}
	if listing.Notes == nil {
		listing.Notes = []models.NoteChild{}
	}
	resp := DirDetail{ID: int64(dir.ID), Name: dir.Name, Children: listing}
	if dir.ID != models.Root {
		parent := int64(dir.Parent)
		resp.ParentID = &parent
	}
	writeJSON(w, http.StatusOK, resp)
}

// RenameDir handles POST /api/dirs/{id}/rename.
//
//	@Summary		Rename a directory within its parent
//	@Tags			dirs
//	@Accept			json
//	@Produce		json
//	@Param			X-Principal	header		string			true	"Acting principal"
//	@Param			id			path		int				true	"Directory id"
//	@Param			body		body		RenameRequest	true	"New name"
//	@Success		200			{object}	map[string]string
//	@Failure		400			{object}	errResponse
//	@Failure		403			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Failure		409			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/dirs/{id}/rename [post]
func (h *Handler) RenameDir(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid id"))
		return
	}
	var req RenameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("name is required"))
		return
	}
	if err := h.svc.RenameDirectory(r.Context(), principal(r), models.DirID(id), req.Name); err != nil {
		writeError(w, "rename directory", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// MoveDir handles POST /api/dirs/{id}/move.
//
//	@Summary		Move a directory under a new parent
//	@Tags			dirs
//	@Accept			json
//	@Produce		json
//	@Param			X-Principal	header		string			true	"Acting principal"
//	@Param			id			path		int				true	"Directory id"
//	@Param			body		body		MoveDirRequest	true	"New parent and name"
//	@Success		200			{object}	map[string]string
//	@Failure		400			{object}	errResponse
//	@Failure		403			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Failure		409			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/dirs/{id}/move [post]
func (h *Handler) MoveDir(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid id"))
		return
	}
	var req MoveDirRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("name is required"))
		return
	}
	if err := h.svc.MoveDirectory(r.Context(), principal(r), models.DirID(id), models.DirID(req.ParentID), req.Name); err != nil {
		writeError(w, "move directory", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// DeleteDir handles DELETE /api/dirs/{id}.
//
//	@Summary		Delete a directory and its whole subtree
//	@Tags			dirs
//	@Param			X-Principal	header	string	true	"Acting principal"
//	@Param			id			path	int		true	"Directory id"
//	@Success		204			"Directory deleted"
//	@Failure		400			{object}	errResponse
//	@Failure		403			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/dirs/{id} [delete]
func (h *Handler) DeleteDir(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid id"))
		return
	}
	if err := h.svc.DeleteDirectory(r.Context(), principal(r), models.DirID(id)); err != nil {
		writeError(w, "delete directory", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateNote handles POST /api/notes.
//
//	@Summary		Create a note
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			X-Principal	header		string				true	"Acting principal"
//	@Param			body		body		CreateNoteRequest	true	"Note to create"
//	@Success		201			{object}	NoteDetail
//	@Failure		400			{object}	errResponse
//	@Failure		403			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Failure		409			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes [post]
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	var req CreateNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("name is required"))
		return
	}
	note, err := h.svc.CreateNote(r.Context(), principal(r), models.DirID(req.ParentID), req.Name, req.Content)
	if err != nil {
		writeError(w, "create note", err)
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

// GetNote handles GET /api/notes/{id}.
//
//	@Summary		Get a note with its content
//	@Tags			notes
//	@Produce		json
//	@Param			id	path		int	true	"Note id"
//	@Success		200	{object}	NoteDetail
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [get]
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid id"))
		return
	}
	note, err := h.svc.Note(r.Context(), models.NoteID(id))
	if err != nil {
		writeError(w, "get note", err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// UpdateNote handles PUT /api/notes/{id}.
//
//	@Summary		Replace a note's content
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			X-Principal	header		string				true	"Acting principal"
//	@Param			id			path		int					true	"Note id"
//	@Param			body		body		UpdateNoteRequest	true	"New content"
//	@Success		200			{object}	NoteDetail
//	@Failure		400			{object}	errResponse
//	@Failure		403			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [put]
func (h *Handler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	id, ok := pathID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid id"))
		return
	}
	var req UpdateNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := h.svc.UpdateNote(r.Context(), principal(r), models.NoteID(id), req.Content); err != nil {
		writeError(w, "update note", err)
		return
	}
	note, err := h.svc.Note(r.Context(), models.NoteID(id))
	if err != nil {
		writeError(w, "update note", err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// RenameNote handles POST /api/notes/{id}/rename.
//
//	@Summary		Rename a note within its parent
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			X-Principal	header		string			true	"Acting principal"
//	@Param			id			path		int				true	"Note id"
//	@Param			body		body		RenameRequest	true	"New name"
//	@Success		200			{object}	map[string]string
//	@Failure		400			{object}	errResponse
//	@Failure		403			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Failure		409			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id}/rename [post]
func (h *Handler) RenameNote(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid id"))
		return
	}
	var req RenameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("name is required"))
		return
	}
	if err := h.svc.RenameNote(r.Context(), principal(r), models.NoteID(id), req.Name); err != nil {
		writeError(w, "rename note", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// MoveNote handles POST /api/notes/{id}/move.
//
//	@Summary		Move a note under a new parent, keeping its name
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			X-Principal	header		string			true	"Acting principal"
//	@Param			id			path		int				true	"Note id"
//	@Param			body		body		MoveNoteRequest	true	"New parent"
//	@Success		200			{object}	map[string]string
//	@Failure		400			{object}	errResponse
//	@Failure		403			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Failure		409			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id}/move [post]
func (h *Handler) MoveNote(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid id"))
		return
	}
	var req MoveNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := h.svc.MoveNote(r.Context(), principal(r), models.NoteID(id), models.DirID(req.ParentID)); err != nil {
		writeError(w, "move note", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// DeleteNote handles DELETE /api/notes/{id}.
//
//	@Summary		Delete a note
//	@Tags			notes
//	@Param			X-Principal	header	string	true	"Acting principal"
//	@Param			id			path	int		true	"Note id"
//	@Success		204			"Note deleted"
//	@Failure		403			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [delete]
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid id"))
		return
	}
	if err := h.svc.DeleteNote(r.Context(), principal(r), models.NoteID(id)); err != nil {
		writeError(w, "delete note", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Resolve handles GET /api/resolve.
//
//	@Summary		Resolve a /-separated path to an entry
//	@Tags			tree
//	@Produce		json
//	@Param			path	query		string	true	"Path from the root, e.g. /docs/readme"
//	@Success		200		{object}	models.Entry
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/resolve [get]
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if !q.Has("path") {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'path' is required"))
		return
	}
	entry, err := h.svc.Resolve(r.Context(), q.Get("path"))
	if err != nil {
		writeError(w, "resolve path", err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
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
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.SearchNotes(r.Context(), q, limit)
	if err != nil {
		writeError(w, "search notes", err)
		return
	}
	if results == nil {
		results = []models.SearchHit{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"results": results,
	})
}

// ListNewsletters handles GET /api/newsletters.
//
//	@Summary		List archived newsletters, newest first
//	@Tags			newsletters
//	@Produce		json
//	@Success		200	{object}	NewsletterListResponse
//	@Security		BearerAuth
//	@Router			/newsletters [get]
func (h *Handler) ListNewsletters(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.Newsletters(r.Context())
	if err != nil {
		writeError(w, "list newsletters", err)
		return
	}
	if list == nil {
		list = []models.Newsletter{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"newsletters": list,
	})
}

// CreateNewsletter handles POST /api/newsletters.
//
//	@Summary		Archive a newsletter
//	@Tags			newsletters
//	@Accept			json
//	@Produce		json
//	@Param			X-Principal	header		string						true	"Acting principal"
//	@Param			body		body		CreateNewsletterRequest	true	"Newsletter to archive"
//	@Success		201			{object}	models.Newsletter
//	@Failure		400			{object}	errResponse
//	@Failure		403			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/newsletters [post]
func (h *Handler) CreateNewsletter(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	var req CreateNewsletterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("name is required"))
		return
	}
	stored, err := h.svc.StoreNewsletter(r.Context(), principal(r), req.Name, req.Content)
	if err != nil {
		writeError(w, "store newsletter", err)
		return
	}
	writeJSON(w, http.StatusCreated, stored)
}

// GetNewsletter handles GET /api/newsletters/{id}.
//
//	@Summary		Fetch one archived newsletter with content
//	@Tags			newsletters
//	@Produce		json
//	@Param			id	path		int	true	"Newsletter id"
//	@Success		200	{object}	models.Newsletter
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/newsletters/{id} [get]
func (h *Handler) GetNewsletter(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid id"))
		return
	}
	n, err := h.svc.Newsletter(r.Context(), id)
	if err != nil {
		writeError(w, "get newsletter", err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// GetPermissions handles GET /api/permissions/{principal}.
//
//	@Summary		Read a principal's capabilities
//	@Tags			permissions
//	@Produce		json
//	@Param			principal	path		string	true	"Principal name"
//	@Success		200			{object}	models.Capabilities
//	@Security		BearerAuth
//	@Router			/permissions/{principal} [get]
func (h *Handler) GetPermissions(w http.ResponseWriter, r *http.Request) {
	caps, err := h.svc.Permissions(r.Context(), chi.URLParam(r, "principal"))
	if err != nil {
		writeError(w, "get permissions", err)
		return
	}
	writeJSON(w, http.StatusOK, caps)
}

// PutPermissions handles PUT /api/permissions/{principal}.
//
//	@Summary		Set a principal's capabilities
//	@Tags			permissions
//	@Accept			json
//	@Produce		json
//	@Param			principal	path		string				true	"Principal name"
//	@Param			body		body		models.Capabilities	true	"Capability flags"
//	@Success		200			{object}	models.Capabilities
//	@Failure		400			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/permissions/{principal} [put]
func (h *Handler) PutPermissions(w http.ResponseWriter, r *http.Request) {
	var caps models.Capabilities
	if err := json.NewDecoder(r.Body).Decode(&caps); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := h.svc.SetPermissions(r.Context(), chi.URLParam(r, "principal"), caps); err != nil {
		writeError(w, "set permissions", err)
		return
	}
	writeJSON(w, http.StatusOK, caps)
}
