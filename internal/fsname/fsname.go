// Package fsname derives filesystem-safe file names for node documents.
//
// A node document is named "<id> <sanitized title>.md". The filename is
// allowed to be a lossy rendering of the title (invalid characters replaced,
// over-long titles truncated); the header inside the document remains the
// authoritative, lossless record of the title.
package fsname

import (
	"path"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/eykd/prosemark/internal/id"
)

const (
	// DefaultExtension is the node document extension.
	DefaultExtension = ".md"

	// Sibling suffixes inserted before the extension.
	NotecardSuffix = ".notecard"
	NotesSuffix    = ".notes"

	// defaultMaxName is the byte budget for one filename. Kept under the
	// common 255-byte filesystem limit with room for sibling suffixes and
	// collision disambiguators.
	defaultMaxName = 200
)

// invalidChars are replaced with a single space: characters that are
// reserved on at least one supported filesystem.
const invalidChars = `/\:*?"<>|`

// Deriver maps (id, title) pairs to relative file paths.
type Deriver struct {
	ext     string
	maxName int
}

// New returns a Deriver for the given extension. An empty ext selects
// DefaultExtension.
func New(ext string) *Deriver {
	if ext == "" {
		ext = DefaultExtension
	}
	return &Deriver{ext: ext, maxName: defaultMaxName}
}

// Extension returns the node document extension, including the dot.
func (d *Deriver) Extension() string { return d.ext }

// Derive returns the relative path for a node. taken maps every existing
// path in the project to its owning node id; a derived name that collides
// with a path owned by a different node gets a numeric disambiguator
// appended ("-1", "-2", ...). Derive is deterministic given its inputs.
func (d *Deriver) Derive(nid id.NodeID, title string, taken map[string]id.NodeID) string {
	stem := nid.String()
	if s := Sanitize(title); s != "" {
		stem += " " + s
	}
	stem = d.truncate(stem, nid)

	name := stem + d.ext
	if owner, exists := taken[name]; !exists || owner == nid {
		return name
	}
	for n := 1; ; n++ {
		candidate := stem + "-" + strconv.Itoa(n) + d.ext
		if owner, exists := taken[candidate]; !exists || owner == nid {
			return candidate
		}
	}
}

// Notecard returns the sibling notecard path for a node document path.
func Notecard(docPath string) string { return sibling(docPath, NotecardSuffix) }

// Notes returns the sibling notes path for a node document path.
func Notes(docPath string) string { return sibling(docPath, NotesSuffix) }

// IsSibling reports whether p names a notecard or notes sibling file.
func IsSibling(p string) bool {
	ext := path.Ext(p)
	stem := strings.TrimSuffix(p, ext)
	return strings.HasSuffix(stem, NotecardSuffix) || strings.HasSuffix(stem, NotesSuffix)
}

// ImpliedID extracts the node id implied by a file name: the portion of the
// base name before the first space (or the whole stem). ok is false when
// that portion is not a UUIDv7.
func ImpliedID(p string) (id.NodeID, bool) {
	base := path.Base(p)
	stem := strings.TrimSuffix(base, path.Ext(base))
	token, _, _ := strings.Cut(stem, " ")
	nid, err := id.Parse(token)
	if err != nil {
		return id.Zero, false
	}
	return nid, true
}

// Sanitize replaces filesystem-reserved characters with spaces, collapses
// runs of whitespace, and trims the result.
func Sanitize(title string) string {
	var b strings.Builder
	b.Grow(len(title))
	for _, r := range title {
		if strings.ContainsRune(invalidChars, r) {
			b.WriteRune(' ')
		} else {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// truncate trims the title portion of stem (never the id) so that the stem
// plus extension fits the name budget, cutting on a rune boundary.
func (d *Deriver) truncate(stem string, nid id.NodeID) string {
	budget := d.maxName - len(d.ext)
	if len(stem) <= budget {
		return stem
	}
	if budget < len(nid.String()) {
		return nid.String()
	}
	cut := budget
	for cut > 0 && !utf8.RuneStart(stem[cut]) {
		cut--
	}
	return strings.TrimRight(stem[:cut], " ")
}

func sibling(docPath, suffix string) string {
	ext := path.Ext(docPath)
	return strings.TrimSuffix(docPath, ext) + suffix + ext
}
