// Package apperr defines the error kinds shared across prosemark packages.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrClockUnavailable means the identity generator could not obtain a
	// timestamp or randomness for a new id.
	ErrClockUnavailable = errors.New("clock unavailable")

	// Tree model failures.
	ErrNotFound           = errors.New("node not found")
	ErrParentNotFound     = errors.New("parent node not found")
	ErrHasChildren        = errors.New("node has children")
	ErrCyclicMove         = errors.New("move would create a cycle")
	ErrPositionOutOfRange = errors.New("position out of range")

	// Codec failures.
	ErrMalformedHeader  = errors.New("malformed node header")
	ErrIdentityMismatch = errors.New("node identity mismatch")
	ErrMalformedOutline = errors.New("malformed outline")

	// Engine failures.
	ErrPersistFailed = errors.New("persist failed")
)

// IdentityMismatchError reports a disagreement between a node file's
// name-implied id and the id declared in its header. It is surfaced, never
// repaired; resolution requires editing the file or renaming it.
type IdentityMismatchError struct {
	Path     string // project-relative file path
	FileID   string // id implied by the filename
	HeaderID string // id declared in the header
}

func (e *IdentityMismatchError) Error() string {
	return fmt.Sprintf("%s: file implies id %s but header declares %s", e.Path, e.FileID, e.HeaderID)
}

func (e *IdentityMismatchError) Unwrap() error { return ErrIdentityMismatch }

// PersistError identifies the node whose write failed.
type PersistError struct {
	NodeID string
	Op     string // "write", "rename", "delete", "outline"
	Err    error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist %s for node %s: %v", e.Op, e.NodeID, e.Err)
}

func (e *PersistError) Unwrap() error { return ErrPersistFailed }
