// Package tree maintains the in-memory forest of nodes and enforces its
// invariants on every mutation.
//
// Records are held in an arena: a map from identifier to node record, with
// children and parent expressed as plain identifier lists. Every structural
// operation either fully succeeds or leaves the forest exactly as it was.
package tree

import (
	"fmt"
	"slices"
	"time"

	"github.com/eykd/prosemark/internal/apperr"
	"github.com/eykd/prosemark/internal/id"
	"github.com/eykd/prosemark/internal/node"
)

// AtEnd selects the append position for AddChild and Move.
const AtEnd = -1

// Tree is the forest of node records for one loaded project.
type Tree struct {
	nodes map[id.NodeID]*node.Node
	roots []id.NodeID

	newID func() (id.NodeID, error)
	now   func() time.Time

	// Change tracking for the synchronization engine.
	dirty      map[id.NodeID]struct{} // nodes whose file content must be rewritten
	renamed    map[id.NodeID]struct{} // nodes whose title changed since load
	structural bool                   // forest shape or a title changed
	removed    map[id.NodeID]string   // detached nodes -> path at removal time
}

// Option configures a Tree.
type Option func(*Tree)

// WithIDFunc overrides the identity source (tests use a deterministic one).
func WithIDFunc(f func() (id.NodeID, error)) Option {
	return func(t *Tree) { t.newID = f }
}

// WithClock overrides the timestamp source.
func WithClock(f func() time.Time) Option {
	return func(t *Tree) { t.now = f }
}

// New returns an empty forest.
func New(opts ...Option) *Tree {
	t := &Tree{
		nodes:   make(map[id.NodeID]*node.Node),
		newID:   id.New,
		now:     time.Now,
		dirty:   make(map[id.NodeID]struct{}),
		renamed: make(map[id.NodeID]struct{}),
		removed: make(map[id.NodeID]string),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// FromRecords assembles a forest from already-linked records, verifying the
// structural invariants: unique ids, mutually consistent parent/children
// references, and acyclicity. Used by the synchronization engine after a
// load; callers constructing trees by hand should use AddChild.
func FromRecords(records []*node.Node, roots []id.NodeID, opts ...Option) (*Tree, error) {
	t := New(opts...)
	for _, rec := range records {
		if _, dup := t.nodes[rec.ID]; dup {
			return nil, fmt.Errorf("tree: duplicate id %s", rec.ID)
		}
		t.nodes[rec.ID] = rec
	}
	t.roots = slices.Clone(roots)

	// Every child list entry must point at a record whose parent points back.
	referenced := make(map[id.NodeID]struct{}, len(records))
	walk := func(nid id.NodeID, parent id.NodeID) error {
		rec, ok := t.nodes[nid]
		if !ok {
			return fmt.Errorf("tree: dangling reference to %s", nid)
		}
		if rec.Parent != parent {
			return fmt.Errorf("tree: node %s parent is %s, referenced from %s", nid, rec.Parent, parent)
		}
		if _, dup := referenced[nid]; dup {
			return fmt.Errorf("tree: node %s reachable twice", nid)
		}
		referenced[nid] = struct{}{}
		return nil
	}
	var visit func(nid id.NodeID, parent id.NodeID) error
	visit = func(nid id.NodeID, parent id.NodeID) error {
		if err := walk(nid, parent); err != nil {
			return err
		}
		for _, c := range t.nodes[nid].Children {
			if err := visit(c, nid); err != nil {
				return err
			}
		}
		return nil
	}
	for _, r := range roots {
		if err := visit(r, id.Zero); err != nil {
			return nil, err
		}
	}
	if len(referenced) != len(t.nodes) {
		return nil, fmt.Errorf("tree: %d records not reachable from any root", len(t.nodes)-len(referenced))
	}
	return t, nil
}

// Len returns the number of nodes in the forest.
func (t *Tree) Len() int { return len(t.nodes) }

// Roots returns the root identifiers in order.
func (t *Tree) Roots() []id.NodeID { return slices.Clone(t.roots) }

// Find returns the record for nid.
func (t *Tree) Find(nid id.NodeID) (*node.Node, error) {
	n, ok := t.nodes[nid]
	if !ok {
		return nil, fmt.Errorf("tree: %s: %w", nid, apperr.ErrNotFound)
	}
	return n, nil
}

// AddChild creates a new node under parent (or as a root when parent is
// Zero) at pos; AtEnd appends. The new node's identity is assigned here,
// once, and never changes.
func (t *Tree) AddChild(parent id.NodeID, title string, pos int) (*node.Node, error) {
	siblings, err := t.siblingList(parent)
	if err != nil {
		return nil, err
	}
	if err := checkPosition(pos, len(*siblings)); err != nil {
		return nil, err
	}
	nid, err := t.newID()
	if err != nil {
		return nil, err
	}
	now := t.now().UTC()
	n := &node.Node{
		ID:      nid,
		Title:   title,
		Created: now,
		Updated: now,
		Parent:  parent,
	}
	t.nodes[nid] = n
	*siblings = insertAt(*siblings, nid, pos)
	t.dirty[nid] = struct{}{}
	t.renamed[nid] = struct{}{}
	t.structural = true
	return n, nil
}

// Remove detaches nid from the forest. With cascade false it fails with
// ErrHasChildren when the node has children; with cascade true the whole
// subtree is detached. The detached records are returned in depth-first
// order; their files are not touched until the engine persists.
func (t *Tree) Remove(nid id.NodeID, cascade bool) ([]*node.Node, error) {
	n, err := t.Find(nid)
	if err != nil {
		return nil, err
	}
	if !cascade && len(n.Children) > 0 {
		return nil, fmt.Errorf("tree: %s: %w", nid, apperr.ErrHasChildren)
	}

	detached, err := t.Subtree(nid)
	if err != nil {
		return nil, err
	}
	siblings, _ := t.siblingList(n.Parent)
	*siblings = slices.DeleteFunc(*siblings, func(s id.NodeID) bool { return s == nid })
	for _, d := range detached {
		delete(t.nodes, d.ID)
		delete(t.dirty, d.ID)
		delete(t.renamed, d.ID)
		t.removed[d.ID] = d.Path
	}
	n.Parent = id.Zero
	t.structural = true
	return detached, nil
}

// Move reparents nid under newParent (Zero for root level) at pos. It fails
// with ErrCyclicMove when newParent is nid or any of its descendants, and
// with ErrPositionOutOfRange when pos exceeds the new sibling count;
// positions are never clamped.
func (t *Tree) Move(nid, newParent id.NodeID, pos int) error {
	n, err := t.Find(nid)
	if err != nil {
		return err
	}
	if !newParent.IsZero() {
		if _, ok := t.nodes[newParent]; !ok {
			return fmt.Errorf("tree: parent %s: %w", newParent, apperr.ErrParentNotFound)
		}
	}
	// Walk the new parent's ancestor chain before committing anything.
	for cur := newParent; !cur.IsZero(); cur = t.nodes[cur].Parent {
		if cur == nid {
			return fmt.Errorf("tree: %s into %s: %w", nid, newParent, apperr.ErrCyclicMove)
		}
	}

	dest, err := t.siblingList(newParent)
	if err != nil {
		return err
	}
	limit := len(*dest)
	if n.Parent == newParent {
		limit-- // the node itself leaves the list before reinsertion
	}
	if err := checkPosition(pos, limit); err != nil {
		return err
	}

	src, _ := t.siblingList(n.Parent)
	*src = slices.DeleteFunc(*src, func(s id.NodeID) bool { return s == nid })
	*dest = insertAt(*dest, nid, pos)
	n.Parent = newParent
	t.structural = true
	return nil
}

// Rename updates the node's title. Identity and position are untouched; the
// engine re-derives the filename on persist.
func (t *Tree) Rename(nid id.NodeID, title string) error {
	n, err := t.Find(nid)
	if err != nil {
		return err
	}
	if n.Title == title {
		return nil
	}
	n.Title = title
	t.dirty[nid] = struct{}{}
	t.renamed[nid] = struct{}{}
	t.structural = true
	return nil
}

// Ancestors returns nid's ancestor chain, root first, excluding nid.
func (t *Tree) Ancestors(nid id.NodeID) ([]*node.Node, error) {
	n, err := t.Find(nid)
	if err != nil {
		return nil, err
	}
	var chain []*node.Node
	for cur := n.Parent; !cur.IsZero(); cur = t.nodes[cur].Parent {
		chain = append(chain, t.nodes[cur])
	}
	slices.Reverse(chain)
	return chain, nil
}

// Subtree returns nid's subtree in depth-first order, nid first, children
// in stored order.
func (t *Tree) Subtree(nid id.NodeID) ([]*node.Node, error) {
	n, err := t.Find(nid)
	if err != nil {
		return nil, err
	}
	out := []*node.Node{n}
	for _, c := range n.Children {
		sub, err := t.Subtree(c)
		if err != nil {
			return nil, err
		}
		out = append(out, sub...)
	}
	return out, nil
}

// All returns every node in outline order (roots in order, each subtree
// depth-first).
func (t *Tree) All() []*node.Node {
	var out []*node.Node
	for _, r := range t.roots {
		sub, err := t.Subtree(r)
		if err != nil {
			continue
		}
		out = append(out, sub...)
	}
	return out
}

// SetContent replaces the node's body text.
func (t *Tree) SetContent(nid id.NodeID, content string) error {
	return t.edit(nid, func(n *node.Node) { n.Content = content })
}

// SetNotecard replaces the notecard text; empty removes the notecard file
// on persist.
func (t *Tree) SetNotecard(nid id.NodeID, text string) error {
	return t.edit(nid, func(n *node.Node) { n.Notecard = text })
}

// SetNotes replaces the notes text; empty removes the notes file on persist.
func (t *Tree) SetNotes(nid id.NodeID, text string) error {
	return t.edit(nid, func(n *node.Node) { n.Notes = text })
}

// SetMeta sets one metadata key.
func (t *Tree) SetMeta(nid id.NodeID, key string, v node.Value) error {
	return t.edit(nid, func(n *node.Node) {
		if n.Meta == nil {
			n.Meta = make(map[string]node.Value)
		}
		n.Meta[key] = v
	})
}

// DeleteMeta removes one metadata key.
func (t *Tree) DeleteMeta(nid id.NodeID, key string) error {
	return t.edit(nid, func(n *node.Node) { delete(n.Meta, key) })
}

func (t *Tree) edit(nid id.NodeID, fn func(*node.Node)) error {
	n, err := t.Find(nid)
	if err != nil {
		return err
	}
	fn(n)
	t.dirty[nid] = struct{}{}
	return nil
}

// Dirty returns the ids of nodes whose file content changed since load, in
// outline order.
func (t *Tree) Dirty() []id.NodeID {
	var out []id.NodeID
	for _, n := range t.All() {
		if _, ok := t.dirty[n.ID]; ok {
			out = append(out, n.ID)
		}
	}
	return out
}

// Renamed reports whether nid's title changed since load.
func (t *Tree) Renamed(nid id.NodeID) bool {
	_, ok := t.renamed[nid]
	return ok
}

// Structural reports whether the forest shape or any title changed since
// load; the engine uses it to choose between the content-only and
// structural write strategies.
func (t *Tree) Structural() bool { return t.structural }

// Removed returns detached node ids mapped to their path at removal time.
func (t *Tree) Removed() map[id.NodeID]string {
	out := make(map[id.NodeID]string, len(t.removed))
	for k, v := range t.removed {
		out[k] = v
	}
	return out
}

// ClearChanges resets change tracking after a successful persist.
func (t *Tree) ClearChanges() {
	t.dirty = make(map[id.NodeID]struct{})
	t.renamed = make(map[id.NodeID]struct{})
	t.removed = make(map[id.NodeID]string)
	t.structural = false
}

// siblingList returns a pointer to the child list that parent owns: the
// root list for Zero, otherwise the parent's children.
func (t *Tree) siblingList(parent id.NodeID) (*[]id.NodeID, error) {
	if parent.IsZero() {
		return &t.roots, nil
	}
	p, ok := t.nodes[parent]
	if !ok {
		return nil, fmt.Errorf("tree: parent %s: %w", parent, apperr.ErrParentNotFound)
	}
	return &p.Children, nil
}

func checkPosition(pos, count int) error {
	if pos == AtEnd {
		return nil
	}
	if pos < 0 || pos > count {
		return fmt.Errorf("tree: position %d of %d: %w", pos, count, apperr.ErrPositionOutOfRange)
	}
	return nil
}

func insertAt(list []id.NodeID, nid id.NodeID, pos int) []id.NodeID {
	if pos == AtEnd || pos == len(list) {
		return append(list, nid)
	}
	return slices.Insert(list, pos, nid)
}
