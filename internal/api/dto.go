package api

import (
	"github.com/starford/eihwaz/internal/models"
)

// CreateDirRequest is the request body for creating a directory.
type CreateDirRequest struct {
	ParentID int64  `json:"parent_id" example:"0"`
	Name     string `json:"name" example:"projects" validate:"required"`
}

// MoveDirRequest is the request body for moving a directory.
type MoveDirRequest struct {
	ParentID int64  `json:"parent_id" example:"3"`
	Name     string `json:"name" example:"projects" validate:"required"`
}

// RenameRequest is the request body for renaming a directory or note.
type RenameRequest struct {
	Name string `json:"name" example:"renamed" validate:"required"`
}

// CreateNoteRequest is the request body for creating a note.
type CreateNoteRequest struct {
	ParentID int64  `json:"parent_id" example:"0"`
	Name     string `json:"name" example:"readme" validate:"required"`
	Content  string `json:"content" example:"# Hello"`
}

// UpdateNoteRequest is the request body for replacing note content.
type UpdateNoteRequest struct {
	Content string `json:"content" example:"# Updated"`
}

// MoveNoteRequest is the request body for moving a note. The note keeps its name.
type MoveNoteRequest struct {
	ParentID int64 `json:"parent_id" example:"3"`
}

// CreateNewsletterRequest is the request body for archiving a newsletter.
type CreateNewsletterRequest struct {
	Name    string `json:"name" example:"august digest" validate:"required"`
	Content string `json:"content" validate:"required"`
}

// DirCreated is the response for a created directory (aliased from the domain layer).
type DirCreated = models.Directory

// NoteDetail is the full note response type (aliased from the domain layer).
type NoteDetail = models.Note

// DirDetail is the response body for a directory and its children. Name and
// parent are absent for the root.
type DirDetail struct {
	ID       int64          `json:"id"`
	Name     string         `json:"name,omitempty" example:"projects"`
	ParentID *int64         `json:"parent_id,omitempty"`
	Children models.Listing `json:"children" validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []models.SearchHit `json:"results" validate:"required"`
}

// NewsletterListResponse wraps the newsletter archive listing.
type NewsletterListResponse struct {
	Newsletters []models.Newsletter `json:"newsletters" validate:"required"`
}
