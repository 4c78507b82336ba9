// Package models defines the domain types for eihwaz.
package models

import "time"

// DirID identifies a directory in the namespace tree.
type DirID int64

// NoteID identifies a note.
type NoteID int64

// Root is the reserved identity of the root directory. It exists from store
// initialization onward and can never be deleted, renamed, or moved.
const Root DirID = 0

// Directory is an inner node of the namespace tree. Name and Parent are zero
// values for the root, which has neither.
type Directory struct {
	ID     DirID  `json:"id"`
	Name   string `json:"name,omitempty"`
	Parent DirID  `json:"parent_id"`
}

// Note is leaf content owned by exactly one directory.
type Note struct {
	ID      NoteID `json:"id"`
	Name    string `json:"name"`
	Parent  DirID  `json:"parent_id"`
	Content string `json:"content"`
}

// DirChild is a directory entry in a listing.
type DirChild struct {
	ID   DirID  `json:"id"`
	Name string `json:"name"`
}

// NoteChild is a note entry in a listing.
type NoteChild struct {
	ID   NoteID `json:"id"`
	Name string `json:"name"`
}

// Listing holds one directory's children, each slice ordered by name.
// Directory children and note children are separate namespaces: a directory
// and a note under the same parent may carry the same name.
type Listing struct {
	Dirs  []DirChild  `json:"dirs"`
	Notes []NoteChild `json:"notes"`
}

// EntryKind discriminates lookup and resolve results.
type EntryKind string

// Entry kinds.
const (
	KindDirectory EntryKind = "directory"
	KindNote      EntryKind = "note"
)

// Entry is a child resolved from either namespace.
type Entry struct {
	Kind EntryKind `json:"kind"`
	ID   int64     `json:"id"`
	Name string    `json:"name"`
}

// Capabilities are the per-principal permission flags. A principal without a
// stored record has no capabilities.
type Capabilities struct {
	CanEdit            bool `json:"can_edit"`
	CanReceiveFeedback bool `json:"can_receive_feedback"`
}

// Newsletter is one entry of the append-only newsletter archive. Content is
// left empty in listings.
type Newsletter struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Content   string    `json:"content,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// SearchHit is one full-text search result over note content.
type SearchHit struct {
	ID      NoteID `json:"id"`
	Name    string `json:"name"`
	Snippet string `json:"snippet"`
}
