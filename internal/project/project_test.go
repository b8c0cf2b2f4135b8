package project

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/eykd/prosemark/internal/apperr"
	"github.com/eykd/prosemark/internal/id"
	"github.com/eykd/prosemark/internal/node"
	"github.com/eykd/prosemark/internal/tree"
)

func seqIDs() func() (id.NodeID, error) {
	n := 0
	return func() (id.NodeID, error) {
		n++
		return id.NodeID(fmt.Sprintf("0192f0c1-2345-7123-8abc-def0123456%02x", n)), nil
	}
}

// testProject initializes a project in a temp directory with deterministic
// ids and a fixed clock.
func testProject(t *testing.T) *Project {
	t.Helper()
	root := t.TempDir()
	if err := Init(root); err != nil {
		t.Fatalf("Init: %v", err)
	}
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p, err := Open(root, WithIDFunc(seqIDs()), WithClock(func() time.Time { return clock }))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return p
}

func mustLoad(t *testing.T, p *Project) (*tree.Tree, *LoadReport) {
	t.Helper()
	tr, report, err := p.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tr == nil {
		t.Fatalf("Load returned no tree; report: %v", report.Problems)
	}
	return tr, report
}

func mustPersist(t *testing.T, p *Project, tr *tree.Tree) *PersistReport {
	t.Helper()
	report, err := p.Persist(tr, PersistOptions{})
	if err != nil {
		t.Fatalf("Persist: %v", err)
	}
	return report
}

func readOutline(t *testing.T, p *Project) string {
	t.Helper()
	data, err := p.Dir().Read(OutlineFile)
	if err != nil {
		t.Fatalf("read outline: %v", err)
	}
	return string(data)
}

func TestInit(t *testing.T) {
	root := t.TempDir()
	if err := Init(root); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := Init(root); err == nil {
		t.Error("second Init should refuse")
	}
}

func TestOpen_NotAProject(t *testing.T) {
	if _, err := Open(t.TempDir()); err == nil {
		t.Error("expected error for directory without an outline")
	}
}

func TestPersistThenLoadRoundTrip(t *testing.T) {
	p := testProject(t)
	tr, _ := mustLoad(t, p)

	a, _ := tr.AddChild(id.Zero, "Part One", tree.AtEnd)
	b, _ := tr.AddChild(a.ID, "Chapter 1", tree.AtEnd)
	c, _ := tr.AddChild(a.ID, "Chapter 2", tree.AtEnd)
	_ = tr.SetContent(b.ID, "It was a dark and stormy night.\n")
	_ = tr.SetNotecard(c.ID, "the reveal\n")

	report := mustPersist(t, p, tr)
	if !report.OutlineRewritten {
		t.Error("structural persist should rewrite the outline")
	}

	got, loadReport := mustLoad(t, p)
	if !loadReport.Clean() {
		t.Fatalf("reload problems: %v", loadReport.Problems)
	}
	if got.Len() != 3 {
		t.Fatalf("reloaded %d nodes, want 3", got.Len())
	}
	roots := got.Roots()
	if len(roots) != 1 || roots[0] != a.ID {
		t.Fatalf("roots = %v", roots)
	}
	gb, err := got.Find(b.ID)
	if err != nil {
		t.Fatalf("Find(b): %v", err)
	}
	if gb.Title != "Chapter 1" || gb.Content != "It was a dark and stormy night.\n" || gb.Parent != a.ID {
		t.Errorf("b round trip: %+v", gb)
	}
	gc, _ := got.Find(c.ID)
	if gc.Notecard != "the reveal\n" {
		t.Errorf("notecard = %q", gc.Notecard)
	}
}

func TestPersist_NoChangesIsNoop(t *testing.T) {
	p := testProject(t)
	tr, _ := mustLoad(t, p)
	_, _ = tr.AddChild(id.Zero, "Only", tree.AtEnd)
	mustPersist(t, p, tr)

	before := readOutline(t, p)
	tr2, _ := mustLoad(t, p)
	report := mustPersist(t, p, tr2)
	if report.OutlineRewritten || len(report.WrittenFiles) != 0 || len(report.RemovedFiles) != 0 {
		t.Errorf("persist of unchanged tree wrote something: %+v", report)
	}
	if readOutline(t, p) != before {
		t.Error("outline bytes changed")
	}
}

func TestPersist_ContentOnlyLeavesOutlineAlone(t *testing.T) {
	p := testProject(t)
	tr, _ := mustLoad(t, p)
	a, _ := tr.AddChild(id.Zero, "A", tree.AtEnd)
	mustPersist(t, p, tr)
	before := readOutline(t, p)

	tr, _ = mustLoad(t, p)
	_ = tr.SetContent(a.ID, "new body\n")
	report := mustPersist(t, p, tr)
	if report.OutlineRewritten {
		t.Error("content-only persist rewrote the outline")
	}
	if len(report.WrittenFiles) != 1 {
		t.Errorf("written = %v, want just the node file", report.WrittenFiles)
	}
	if readOutline(t, p) != before {
		t.Error("outline bytes changed")
	}
}

func TestRename_ChangesFileAndLabelNotID(t *testing.T) {
	p := testProject(t)
	tr, _ := mustLoad(t, p)
	a, _ := tr.AddChild(id.Zero, "A", tree.AtEnd)
	b, _ := tr.AddChild(id.Zero, "Draft", tree.AtEnd)
	_, _ = tr.AddChild(id.Zero, "C", tree.AtEnd)
	mustPersist(t, p, tr)
	oldPath := mustFind(t, tr, b.ID).Path

	tr, _ = mustLoad(t, p)
	if err := tr.Rename(b.ID, "Final"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	report := mustPersist(t, p, tr)

	newPath := mustFind(t, tr, b.ID).Path
	if newPath == oldPath {
		t.Error("derived path did not change")
	}
	if !strings.HasPrefix(newPath, b.ID.String()) {
		t.Errorf("id prefix lost: %q", newPath)
	}
	if p.Dir().Exists(oldPath) {
		t.Error("old file still on disk")
	}
	found := false
	for _, rm := range report.RemovedFiles {
		if rm == oldPath {
			found = true
		}
	}
	if !found {
		t.Errorf("old path not in RemovedFiles: %v", report.RemovedFiles)
	}

	out := readOutline(t, p)
	if !strings.Contains(out, "- [Final]("+newPath+")") {
		t.Errorf("outline label/target not updated:\n%s", out)
	}

	// Identity and sibling order survive the rename.
	got, loadReport := mustLoad(t, p)
	if !loadReport.Clean() {
		t.Fatalf("reload problems: %v", loadReport.Problems)
	}
	roots := got.Roots()
	if len(roots) != 3 || roots[0] != a.ID || roots[1] != b.ID {
		t.Errorf("sibling order changed: %v", roots)
	}
}

func TestRemove_FilesKeptBecomeOrphans(t *testing.T) {
	p := testProject(t)
	tr, _ := mustLoad(t, p)
	_, _ = tr.AddChild(id.Zero, "Keep", tree.AtEnd)
	b, _ := tr.AddChild(id.Zero, "Drop", tree.AtEnd)
	mustPersist(t, p, tr)
	dropped := mustFind(t, tr, b.ID).Path

	tr, _ = mustLoad(t, p)
	if _, err := tr.Remove(b.ID, false); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	mustPersist(t, p, tr)

	if !p.Dir().Exists(dropped) {
		t.Fatal("file should survive a non-deleting remove")
	}
	_, report := mustLoad(t, p)
	orphans := report.Orphans()
	if len(orphans) != 1 || orphans[0] != dropped {
		t.Errorf("orphans = %v, want [%s]", orphans, dropped)
	}
}

func TestRemove_DeleteRemovedFiles(t *testing.T) {
	p := testProject(t)
	tr, _ := mustLoad(t, p)
	b, _ := tr.AddChild(id.Zero, "Drop", tree.AtEnd)
	_ = tr.SetNotes(b.ID, "research\n")
	mustPersist(t, p, tr)
	path := mustFind(t, tr, b.ID).Path

	tr, _ = mustLoad(t, p)
	if _, err := tr.Remove(b.ID, false); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := p.Persist(tr, PersistOptions{DeleteRemovedFiles: true}); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if p.Dir().Exists(path) {
		t.Error("node file not deleted")
	}
	_, report := mustLoad(t, p)
	if !report.Clean() {
		t.Errorf("leftovers after deleting remove: %v", report.Problems)
	}
}

func TestLoad_OrphanFile(t *testing.T) {
	p := testProject(t)
	tr, _ := mustLoad(t, p)
	_, _ = tr.AddChild(id.Zero, "Listed", tree.AtEnd)
	mustPersist(t, p, tr)

	orphanID := "0192f0c1-2345-7123-8abc-def0123456ff"
	orphanPath := orphanID + " Stray.md"
	doc := "---\nid: " + orphanID + "\ntitle: Stray\ncreated: 2026-03-01T12:00:00Z\nupdated: 2026-03-01T12:00:00Z\n---\n"
	if err := p.Dir().Write(orphanPath, []byte(doc)); err != nil {
		t.Fatal(err)
	}

	got, report := mustLoad(t, p)
	if got.Len() != 1 {
		t.Errorf("orphan should not join the tree: len = %d", got.Len())
	}
	orphans := report.Orphans()
	if len(orphans) != 1 || orphans[0] != orphanPath {
		t.Errorf("orphans = %v", orphans)
	}
	if report.Fatal() {
		t.Error("orphan must not be fatal")
	}
}

func TestLoad_DuplicateHeaderID(t *testing.T) {
	p := testProject(t)
	tr, _ := mustLoad(t, p)
	a, _ := tr.AddChild(id.Zero, "A", tree.AtEnd)
	mustPersist(t, p, tr)

	// A second file with a distinct filename id but A's header id, listed in
	// the outline.
	otherID := "0192f0c1-2345-7123-8abc-def0123456ee"
	otherPath := otherID + " Copy.md"
	doc := "---\nid: " + a.ID.String() + "\ntitle: Copy\ncreated: 2026-03-01T12:00:00Z\nupdated: 2026-03-01T12:00:00Z\n---\n"
	if err := p.Dir().Write(otherPath, []byte(doc)); err != nil {
		t.Fatal(err)
	}
	out := readOutline(t, p) + "- [Copy](" + otherPath + ")\n"
	if err := p.Dir().Write(OutlineFile, []byte(out)); err != nil {
		t.Fatal(err)
	}

	got, report, err := p.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != nil {
		t.Error("duplicate ids must not yield a tree")
	}
	if !report.Fatal() {
		t.Error("report should be fatal")
	}
	if report.Err() == nil {
		t.Error("Err() should summarize a fatal report")
	}
	var dup bool
	for _, pr := range report.Problems {
		if pr.Kind == ProblemDuplicateID {
			dup = true
		}
	}
	if !dup {
		t.Errorf("no duplicate-id problem: %v", report.Problems)
	}
}

func TestLoad_MissingReferencedFileIsFatal(t *testing.T) {
	p := testProject(t)
	ghost := "0192f0c1-2345-7123-8abc-def0123456aa Ghost.md"
	if err := p.Dir().Write(OutlineFile, []byte("- [Ghost]("+ghost+")\n")); err != nil {
		t.Fatal(err)
	}
	got, report, err := p.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != nil || !report.Fatal() {
		t.Errorf("missing referenced file must be fatal; report: %v", report.Problems)
	}
	if report.Problems[0].Kind != ProblemMissingFile {
		t.Errorf("kind = %s", report.Problems[0].Kind)
	}
}

func TestIdentityMismatchFreezesNode(t *testing.T) {
	p := testProject(t)
	tr, _ := mustLoad(t, p)
	good, _ := tr.AddChild(id.Zero, "Good", tree.AtEnd)
	bad, _ := tr.AddChild(id.Zero, "Bad", tree.AtEnd)
	mustPersist(t, p, tr)
	badPath := mustFind(t, tr, bad.ID).Path

	// Corrupt the header id so it disagrees with the filename.
	wrongID := "0192f0c1-2345-7123-8abc-def0123456dd"
	doc := "---\nid: " + wrongID + "\ntitle: Bad\ncreated: 2026-03-01T12:00:00Z\nupdated: 2026-03-01T12:00:00Z\n---\n"
	if err := p.Dir().Write(badPath, []byte(doc)); err != nil {
		t.Fatal(err)
	}

	got, report := mustLoad(t, p)
	if report.Fatal() {
		t.Fatalf("mismatch must load, frozen: %v", report.Problems)
	}
	if !p.Frozen(bad.ID) {
		t.Fatal("mismatched node not frozen")
	}
	if p.Frozen(good.ID) {
		t.Error("healthy node frozen")
	}

	// Edits touching the frozen node are refused.
	_ = got.SetContent(bad.ID, "tamper\n")
	if _, err := p.Persist(got, PersistOptions{}); !errors.Is(err, apperr.ErrIdentityMismatch) {
		t.Errorf("Persist = %v, want ErrIdentityMismatch", err)
	}

	// The frozen file is untouched even after the refused persist.
	data, _ := p.Dir().Read(badPath)
	if string(data) != doc {
		t.Error("frozen file was rewritten")
	}

	// Edits elsewhere still persist.
	got2, _ := mustLoad(t, p)
	_ = got2.SetContent(good.ID, "fine\n")
	mustPersist(t, p, got2)
}

func TestPersistError_CarriesNodeID(t *testing.T) {
	p := testProject(t)
	tr, _ := mustLoad(t, p)
	a, _ := tr.AddChild(id.Zero, "A", tree.AtEnd)
	mustPersist(t, p, tr)

	// Force a write failure by making the derived path a directory.
	tr, _ = mustLoad(t, p)
	_ = tr.SetContent(a.ID, "x")
	path := mustFind(t, tr, a.ID).Path
	abs, err := p.Dir().Abs(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Dir().Remove(path); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(abs, 0o755); err != nil {
		t.Fatal(err)
	}

	_, err = p.Persist(tr, PersistOptions{})
	if !errors.Is(err, apperr.ErrPersistFailed) {
		t.Fatalf("Persist = %v, want ErrPersistFailed", err)
	}
	var pe *apperr.PersistError
	if !errors.As(err, &pe) || pe.NodeID != a.ID.String() {
		t.Errorf("error does not carry the node id: %v", err)
	}
}

func TestWithExtension(t *testing.T) {
	root := t.TempDir()
	if err := Init(root); err != nil {
		t.Fatalf("Init: %v", err)
	}
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p, err := Open(root, WithExtension(".txt"),
		WithIDFunc(seqIDs()), WithClock(func() time.Time { return clock }))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	tr, _ := mustLoad(t, p)
	a, _ := tr.AddChild(id.Zero, "Chapter", tree.AtEnd)
	_ = tr.SetNotecard(a.ID, "card\n")
	mustPersist(t, p, tr)

	path := mustFind(t, tr, a.ID).Path
	if !strings.HasSuffix(path, ".txt") {
		t.Fatalf("derived path = %q, want .txt extension", path)
	}
	if !p.Dir().Exists(path) {
		t.Fatalf("node file %q not on disk", path)
	}
	if !p.Dir().Exists(a.ID.String() + " Chapter.notecard.txt") {
		t.Error("notecard sibling did not follow the extension")
	}
	if p.Dir().Exists(a.ID.String() + " Chapter.md") {
		t.Error("node written with the default extension")
	}

	got, report := mustLoad(t, p)
	if !report.Clean() {
		t.Fatalf("reload problems: %v", report.Problems)
	}
	if mustFind(t, got, a.ID).Title != "Chapter" {
		t.Error("title lost across a .txt round trip")
	}
}

func TestClearingNotecardRemovesSibling(t *testing.T) {
	p := testProject(t)
	tr, _ := mustLoad(t, p)
	a, _ := tr.AddChild(id.Zero, "A", tree.AtEnd)
	_ = tr.SetNotecard(a.ID, "card\n")
	mustPersist(t, p, tr)

	tr, _ = mustLoad(t, p)
	n := mustFind(t, tr, a.ID)
	if n.Notecard != "card\n" {
		t.Fatalf("notecard = %q", n.Notecard)
	}
	_ = tr.SetNotecard(a.ID, "")
	mustPersist(t, p, tr)

	got, _ := mustLoad(t, p)
	if mustFind(t, got, a.ID).Notecard != "" {
		t.Error("notecard survived clearing")
	}
}

func mustFind(t *testing.T, tr *tree.Tree, nid id.NodeID) *node.Node {
	t.Helper()
	n, err := tr.Find(nid)
	if err != nil {
		t.Fatalf("Find(%s): %v", nid, err)
	}
	return n
}
