package project

import (
	"fmt"

	"github.com/eykd/prosemark/internal/apperr"
)

// ProblemKind classifies one problem found during load.
type ProblemKind int

const (
	ProblemOutline ProblemKind = iota + 1 // outline text could not be fully parsed
	ProblemMissingFile
	ProblemMalformedHeader
	ProblemDuplicateID
	ProblemIdentityMismatch
	ProblemOrphanFile
	ProblemMissingSibling
)

func (k ProblemKind) String() string {
	switch k {
	case ProblemOutline:
		return "malformed outline"
	case ProblemMissingFile:
		return "missing file"
	case ProblemMalformedHeader:
		return "malformed header"
	case ProblemDuplicateID:
		return "duplicate id"
	case ProblemIdentityMismatch:
		return "identity mismatch"
	case ProblemOrphanFile:
		return "orphan file"
	case ProblemMissingSibling:
		return "missing sibling file"
	default:
		return "unknown"
	}
}

// Fatal reports whether the kind prevents building a tree. Orphans and
// identity mismatches are survivable: orphans are informational, and a
// mismatched node loads read-only (frozen).
func (k ProblemKind) Fatal() bool {
	switch k {
	case ProblemOrphanFile, ProblemIdentityMismatch, ProblemMissingSibling:
		return false
	}
	return true
}

// Problem is one load-time finding.
type Problem struct {
	Kind   ProblemKind
	Path   string // project-relative file the problem concerns, "" for outline-wide
	Detail string
}

func (p Problem) String() string {
	if p.Path == "" {
		return fmt.Sprintf("%s: %s", p.Kind, p.Detail)
	}
	return fmt.Sprintf("%s: %s: %s", p.Kind, p.Path, p.Detail)
}

// LoadReport aggregates every problem one Load found, so the user can fix
// all of them in a single pass.
type LoadReport struct {
	Problems []Problem
}

func (r *LoadReport) add(p Problem) { r.Problems = append(r.Problems, p) }

// Fatal reports whether any problem prevented building the tree.
func (r *LoadReport) Fatal() bool {
	for _, p := range r.Problems {
		if p.Kind.Fatal() {
			return true
		}
	}
	return false
}

// Err summarizes a fatal report as one error, for callers that need an exit
// path rather than the full problem list.
func (r *LoadReport) Err() error {
	if !r.Fatal() {
		return nil
	}
	for _, p := range r.Problems {
		if p.Kind == ProblemOutline {
			return fmt.Errorf("project: %w (%d problems)", apperr.ErrMalformedOutline, len(r.Problems))
		}
	}
	return fmt.Errorf("project: %d problem(s) prevent loading", len(r.Problems))
}

// Clean reports whether the load found nothing at all, warnings included.
func (r *LoadReport) Clean() bool { return len(r.Problems) == 0 }

// Orphans returns the paths of all orphan files found.
func (r *LoadReport) Orphans() []string {
	var out []string
	for _, p := range r.Problems {
		if p.Kind == ProblemOrphanFile {
			out = append(out, p.Path)
		}
	}
	return out
}
