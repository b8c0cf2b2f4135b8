// Package project is the synchronization engine: it translates between the
// in-memory tree and the project's file set, and reconciles drift introduced
// by hand edits between runs.
//
// Load reads the outline and every referenced node document, cross-checks
// them, and aggregates every problem found into a LoadReport instead of
// stopping at the first. Persist writes with one of two strategies: content
// edits rewrite exactly the affected node files, while structural changes
// also regenerate the outline. Node files are always written before the
// outline and old files removed only after it, so a crash mid-persist
// degrades to orphan files, never to outline entries pointing at nothing.
package project

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/eykd/prosemark/internal/apperr"
	"github.com/eykd/prosemark/internal/fsname"
	"github.com/eykd/prosemark/internal/id"
	"github.com/eykd/prosemark/internal/node"
	"github.com/eykd/prosemark/internal/outline"
	"github.com/eykd/prosemark/internal/storage"
	"github.com/eykd/prosemark/internal/tree"
)

// OutlineFile is the fixed name of the outline in the project root.
const OutlineFile = "_binder.md"

// Project is one opened project directory.
type Project struct {
	dir     *storage.Dir
	deriver *fsname.Deriver

	now   func() time.Time
	newID func() (id.NodeID, error)

	// frozen holds identity-mismatched nodes; their files are never
	// rewritten, renamed, or deleted until the mismatch is resolved by hand.
	frozen map[id.NodeID]struct{}

	// taken maps every node document path on disk (including orphans) to its
	// owning id, for filename collision avoidance.
	taken map[string]id.NodeID
}

// Option configures a Project.
type Option func(*Project)

// WithClock overrides the timestamp source.
func WithClock(f func() time.Time) Option {
	return func(p *Project) { p.now = f }
}

// WithIDFunc overrides the identity source for nodes created in loaded trees.
func WithIDFunc(f func() (id.NodeID, error)) Option {
	return func(p *Project) { p.newID = f }
}

// WithExtension sets the node document extension (default ".md").
func WithExtension(ext string) Option {
	return func(p *Project) { p.deriver = fsname.New(ext) }
}

// Init creates an empty outline in root. It refuses to touch a directory
// that already holds one.
func Init(root string) error {
	d, err := storage.Open(root)
	if err != nil {
		return err
	}
	if d.Exists(OutlineFile) {
		return fmt.Errorf("project: %s is already a project (%s exists)", root, OutlineFile)
	}
	return d.Write(OutlineFile, nil)
}

// Open opens an existing project directory.
func Open(root string, opts ...Option) (*Project, error) {
	d, err := storage.Open(root)
	if err != nil {
		return nil, err
	}
	if !d.Exists(OutlineFile) {
		return nil, fmt.Errorf("project: %s is not a project: %s not found", root, OutlineFile)
	}
	p := &Project{
		dir:     d,
		deriver: fsname.New(""),
		now:     time.Now,
		newID:   id.New,
		frozen:  make(map[id.NodeID]struct{}),
		taken:   make(map[string]id.NodeID),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Root returns the absolute project root.
func (p *Project) Root() string { return p.dir.Root() }

// Dir exposes the project's storage for collaborators (index, editor spawn).
func (p *Project) Dir() *storage.Dir { return p.dir }

// Frozen reports whether nid is identity-mismatched and so excluded from
// persistence.
func (p *Project) Frozen(nid id.NodeID) bool {
	_, ok := p.frozen[nid]
	return ok
}

// Load reads the outline and every referenced node document and assembles
// the tree. All problems found are collected in the report; the tree is
// returned only when no fatal problem exists. An error is returned only for
// failures of the load process itself (I/O, invariant breakage).
func (p *Project) Load() (*tree.Tree, *LoadReport, error) {
	text, err := p.dir.Read(OutlineFile)
	if err != nil {
		return nil, nil, fmt.Errorf("project: load: %w", err)
	}

	report := &LoadReport{}
	items, diags := outline.Decode(string(text))
	for _, dg := range diags {
		report.add(Problem{Kind: ProblemOutline, Path: dg.Target, Detail: dg.String()})
	}

	p.frozen = make(map[id.NodeID]struct{})
	p.taken = make(map[string]id.NodeID)

	var (
		records    []*node.Node
		roots      []id.NodeID
		referenced = make(map[string]struct{})
		headerIDs  = make(map[id.NodeID]string) // header id -> first declaring path
	)

	var build func(items []*outline.Item, parent id.NodeID, siblings *[]id.NodeID)
	build = func(items []*outline.Item, parent id.NodeID, siblings *[]id.NodeID) {
		for _, it := range items {
			referenced[it.Target] = struct{}{}

			if _, dup := p.taken[it.Target]; dup || headerOwned(p.taken, it.ID) {
				report.add(Problem{Kind: ProblemDuplicateID, Path: it.Target,
					Detail: fmt.Sprintf("id %s appears more than once in the outline", it.ID)})
				continue
			}

			data, err := p.dir.Read(it.Target)
			if err != nil {
				report.add(Problem{Kind: ProblemMissingFile, Path: it.Target,
					Detail: "outline references a file that does not exist"})
				continue
			}

			fields, err := node.DecodeFile(it.Target, data)
			var mismatch *apperr.IdentityMismatchError
			switch {
			case errors.As(err, &mismatch):
				// The file still parsed; build the node under the
				// filename-implied id (the one the outline references) and
				// freeze it. Resolution is the user's, never ours.
				report.add(Problem{Kind: ProblemIdentityMismatch, Path: it.Target, Detail: err.Error()})
				p.frozen[it.ID] = struct{}{}
			case err != nil:
				report.add(Problem{Kind: ProblemMalformedHeader, Path: it.Target, Detail: err.Error()})
				continue
			}

			if first, dup := headerIDs[fields.ID]; dup {
				report.add(Problem{Kind: ProblemDuplicateID, Path: it.Target,
					Detail: fmt.Sprintf("header id %s already declared by %s", fields.ID, first)})
				continue
			}
			headerIDs[fields.ID] = it.Target

			n := &node.Node{
				ID:      it.ID,
				Title:   fields.Title, // the header is authoritative, not the label
				Content: fields.Body,
				Meta:    fields.Meta,
				Created: fields.Created,
				Updated: fields.Updated,
				Parent:  parent,
				Path:    it.Target,
			}
			n.Notecard = p.readSibling(it.Target, fields.NotecardRef, report)
			n.Notes = p.readSibling(it.Target, fields.NotesRef, report)

			p.taken[it.Target] = it.ID
			records = append(records, n)
			*siblings = append(*siblings, it.ID)
			build(it.Children, it.ID, &n.Children)
		}
	}
	build(items, id.Zero, &roots)

	if err := p.scanOrphans(referenced, report); err != nil {
		return nil, nil, err
	}

	if report.Fatal() {
		return nil, report, nil
	}
	t, err := tree.FromRecords(records, roots, tree.WithClock(p.now), tree.WithIDFunc(p.newID))
	if err != nil {
		return nil, report, fmt.Errorf("project: load: %w", err)
	}
	return t, report, nil
}

// readSibling loads a notecard/notes sibling referenced by the header. A
// dangling reference is a warning; the text is treated as empty.
func (p *Project) readSibling(docPath, ref string, report *LoadReport) string {
	if ref == "" {
		return ""
	}
	data, err := p.dir.Read(ref)
	if err != nil {
		report.add(Problem{Kind: ProblemMissingSibling, Path: docPath,
			Detail: fmt.Sprintf("header references %s, which does not exist", ref)})
		return ""
	}
	return string(data)
}

// scanOrphans reports node-shaped files on disk that the outline never
// mentions. They are reported, registered for collision avoidance, and
// otherwise left alone.
func (p *Project) scanOrphans(referenced map[string]struct{}, report *LoadReport) error {
	files, err := p.dir.List(p.deriver.Extension())
	if err != nil {
		return fmt.Errorf("project: load: %w", err)
	}
	for _, f := range files {
		if f.Path == OutlineFile || fsname.IsSibling(f.Path) {
			continue
		}
		if _, ok := referenced[f.Path]; ok {
			continue
		}
		nid, ok := fsname.ImpliedID(f.Path)
		if !ok {
			continue // ordinary markdown, not a node document
		}
		report.add(Problem{Kind: ProblemOrphanFile, Path: f.Path,
			Detail: "node file is not referenced by the outline"})
		if _, claimed := p.taken[f.Path]; !claimed {
			p.taken[f.Path] = nid
		}
	}
	return nil
}

func headerOwned(taken map[string]id.NodeID, nid id.NodeID) bool {
	for _, owner := range taken {
		if owner == nid {
			return true
		}
	}
	return false
}

// PersistOptions controls optional persist behavior.
type PersistOptions struct {
	// DeleteRemovedFiles also deletes the files of nodes detached with
	// Remove. When false the files stay on disk and surface as orphans on
	// the next load.
	DeleteRemovedFiles bool
}

// PersistReport summarizes what one Persist call wrote.
type PersistReport struct {
	WrittenFiles     []string
	RemovedFiles     []string
	OutlineRewritten bool
}

// Persist writes the tree's accumulated changes back to disk. Content edits
// rewrite only the affected node files; structural changes (shape or title)
// also regenerate the outline. Title changes rename files: the new file is
// written first, the outline rewritten, and only then the old file removed.
// Changes touching a frozen node are refused outright.
func (p *Project) Persist(t *tree.Tree, opts PersistOptions) (*PersistReport, error) {
	report := &PersistReport{}
	dirty := t.Dirty()
	removed := t.Removed()
	if len(dirty) == 0 && len(removed) == 0 && !t.Structural() {
		return report, nil
	}

	for _, nid := range dirty {
		if p.Frozen(nid) {
			return nil, fmt.Errorf("project: persist: node %s: %w", nid, apperr.ErrIdentityMismatch)
		}
	}
	for nid := range removed {
		if p.Frozen(nid) {
			return nil, fmt.Errorf("project: persist: node %s: %w", nid, apperr.ErrIdentityMismatch)
		}
	}

	// Derive paths for new and renamed nodes before any write, so collision
	// disambiguation sees every reservation.
	oldPaths := make(map[id.NodeID]string)
	for _, n := range t.All() {
		if n.Path != "" && !t.Renamed(n.ID) {
			continue
		}
		derived := p.deriver.Derive(n.ID, n.Title, p.taken)
		if derived == n.Path {
			continue
		}
		if n.Path != "" {
			oldPaths[n.ID] = n.Path
			delete(p.taken, n.Path)
		}
		p.taken[derived] = n.ID
		n.Path = derived
	}

	now := p.now().UTC()
	var staleSiblings []string
	for _, nid := range dirty {
		n, err := t.Find(nid)
		if err != nil {
			return nil, &apperr.PersistError{NodeID: nid.String(), Op: "write", Err: err}
		}
		n.Updated = now
		written, stale, err := p.writeNode(n)
		if err != nil {
			return nil, &apperr.PersistError{NodeID: nid.String(), Op: "write", Err: err}
		}
		report.WrittenFiles = append(report.WrittenFiles, written...)
		staleSiblings = append(staleSiblings, stale...)
	}

	if t.Structural() {
		text, err := p.renderOutline(t)
		if err != nil {
			return nil, &apperr.PersistError{Op: "outline", Err: err}
		}
		if err := p.dir.Write(OutlineFile, []byte(text)); err != nil {
			return nil, &apperr.PersistError{Op: "outline", Err: err}
		}
		report.OutlineRewritten = true
	}

	// Removals come last: the outline no longer references any of these.
	for nid, old := range oldPaths {
		if err := p.removeDocument(old, report); err != nil {
			return nil, &apperr.PersistError{NodeID: nid.String(), Op: "rename", Err: err}
		}
	}
	for _, stale := range staleSiblings {
		if err := p.dir.Remove(stale); err != nil {
			return nil, &apperr.PersistError{Op: "delete", Err: err}
		}
		report.RemovedFiles = append(report.RemovedFiles, stale)
	}
	if opts.DeleteRemovedFiles {
		for nid, path := range removed {
			if path == "" {
				continue
			}
			delete(p.taken, path)
			if err := p.removeDocument(path, report); err != nil {
				return nil, &apperr.PersistError{NodeID: nid.String(), Op: "delete", Err: err}
			}
		}
	}

	sort.Strings(report.WrittenFiles)
	sort.Strings(report.RemovedFiles)
	t.ClearChanges()
	return report, nil
}

// writeNode writes a node document and its siblings. Siblings go first so
// the header never references a file that is not yet on disk. It returns
// the paths written and any sibling paths made stale by an emptied field.
func (p *Project) writeNode(n *node.Node) (written, stale []string, err error) {
	fields := node.Fields{
		ID:      n.ID,
		Title:   n.Title,
		Created: n.Created,
		Updated: n.Updated,
		Meta:    n.Meta,
		Body:    n.Content,
	}

	for _, s := range []struct {
		text string
		path string
	}{
		{n.Notecard, fsname.Notecard(n.Path)},
		{n.Notes, fsname.Notes(n.Path)},
	} {
		if s.text == "" {
			if p.dir.Exists(s.path) {
				stale = append(stale, s.path)
			}
			continue
		}
		if err := p.dir.Write(s.path, []byte(s.text)); err != nil {
			return nil, nil, err
		}
		written = append(written, s.path)
	}
	if n.Notecard != "" {
		fields.NotecardRef = fsname.Notecard(n.Path)
	}
	if n.Notes != "" {
		fields.NotesRef = fsname.Notes(n.Path)
	}

	data, err := node.Encode(fields)
	if err != nil {
		return nil, nil, err
	}
	if err := p.dir.Write(n.Path, data); err != nil {
		return nil, nil, err
	}
	return append(written, n.Path), stale, nil
}

// removeDocument deletes a node document and its siblings.
func (p *Project) removeDocument(docPath string, report *PersistReport) error {
	for _, path := range []string{fsname.Notecard(docPath), fsname.Notes(docPath), docPath} {
		existed := p.dir.Exists(path)
		if err := p.dir.Remove(path); err != nil {
			return err
		}
		if existed {
			report.RemovedFiles = append(report.RemovedFiles, path)
		}
	}
	return nil
}

func (p *Project) renderOutline(t *tree.Tree) (string, error) {
	var build func(ids []id.NodeID) []*outline.Item
	build = func(ids []id.NodeID) []*outline.Item {
		items := make([]*outline.Item, 0, len(ids))
		for _, nid := range ids {
			n, err := t.Find(nid)
			if err != nil {
				continue
			}
			items = append(items, &outline.Item{ID: nid, Children: build(n.Children)})
		}
		return items
	}
	lookup := func(nid id.NodeID) (string, string, bool) {
		n, err := t.Find(nid)
		if err != nil {
			return "", "", false
		}
		return n.Title, n.Path, true
	}
	return outline.Encode(build(t.Roots()), lookup)
}
