// Package apperr defines the sentinel errors shared across eihwaz layers.
// Anything that does not match one of these via errors.Is is a storage
// failure and is surfaced wrapped, never swallowed.
package apperr

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrUnknownParent    = errors.New("unknown parent directory")
	ErrDuplicateName    = errors.New("name already taken")
	ErrSelfParent       = errors.New("directory cannot be its own parent")
	ErrCycle            = errors.New("move would create a cycle")
	ErrRootUndeletable  = errors.New("root directory cannot be deleted")
	ErrRootImmutable    = errors.New("root directory cannot be renamed or moved")
	ErrPermissionDenied = errors.New("permission denied")
)
