// Package id provides time-ordered node identifiers.
//
// Identifiers are UUIDv7 strings: the leading bits encode a millisecond
// timestamp, so lexicographic order follows creation order, and the library
// applies a monotonic tie-break when several ids are drawn within the same
// millisecond. An id is assigned once, at node creation, and never changes.
package id

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/eykd/prosemark/internal/apperr"
)

// NodeID is the identity of a single node. The zero value means "no node"
// (used for root-level parents).
type NodeID string

// Zero is the absent identifier.
const Zero NodeID = ""

// New generates a fresh UUIDv7 identifier. It fails with ErrClockUnavailable
// when the time or randomness source cannot be read; it never reuses an id.
func New() (NodeID, error) {
	u, err := uuid.NewV7()
	if err != nil {
		return Zero, fmt.Errorf("id: %w: %v", apperr.ErrClockUnavailable, err)
	}
	return NodeID(u.String()), nil
}

// Parse validates s as a UUIDv7 identifier.
func Parse(s string) (NodeID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return Zero, fmt.Errorf("id: invalid identifier %q: %w", s, err)
	}
	if u.Version() != 7 {
		return Zero, fmt.Errorf("id: identifier %q is UUIDv%d, want v7", s, u.Version())
	}
	return NodeID(u.String()), nil
}

// Valid reports whether s is a well-formed UUIDv7 string.
func Valid(s string) bool {
	_, err := Parse(s)
	return err == nil
}

func (n NodeID) String() string { return string(n) }

// IsZero reports whether the identifier is absent.
func (n NodeID) IsZero() bool { return n == Zero }
