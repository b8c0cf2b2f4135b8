package node

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/eykd/prosemark/internal/apperr"
	"github.com/eykd/prosemark/internal/fsname"
	"github.com/eykd/prosemark/internal/id"
)

// Fields is the decoded form of one node document: the header values plus
// the free-form body. Notecard and notes text live in sibling files; the
// header only references them.
type Fields struct {
	ID      id.NodeID
	Title   string
	Created time.Time
	Updated time.Time

	NotecardRef string // sibling file name, "" when absent
	NotesRef    string

	Meta map[string]Value

	Body string
}

const headerDelim = "---\n"

// header is the YAML frontmatter schema. Field order here is the on-disk
// key order.
type header struct {
	ID       string           `yaml:"id"`
	Title    string           `yaml:"title"`
	Created  time.Time        `yaml:"created"`
	Updated  time.Time        `yaml:"updated"`
	Notecard string           `yaml:"notecard,omitempty"`
	Notes    string           `yaml:"notes,omitempty"`
	Meta     map[string]Value `yaml:"meta,omitempty"`
}

// Encode renders a node document: YAML frontmatter followed by the body,
// byte for byte. Encode(Decode(doc)) reproduces doc for documents Encode
// produced, and Decode(Encode(f)) == f for all valid Fields.
func Encode(f Fields) ([]byte, error) {
	if f.ID.IsZero() {
		return nil, fmt.Errorf("node: encode: missing id")
	}
	h := header{
		ID:       f.ID.String(),
		Title:    f.Title,
		Created:  f.Created.UTC(),
		Updated:  f.Updated.UTC(),
		Notecard: f.NotecardRef,
		Notes:    f.NotesRef,
		Meta:     f.Meta,
	}
	y, err := yaml.Marshal(&h)
	if err != nil {
		return nil, fmt.Errorf("node: encode header: %w", err)
	}
	var b bytes.Buffer
	b.Grow(len(headerDelim)*2 + len(y) + len(f.Body))
	b.WriteString(headerDelim)
	b.Write(y)
	b.WriteString(headerDelim)
	b.WriteString(f.Body)
	return b.Bytes(), nil
}

// Decode parses a node document. Optional header fields default to their
// zero values; a present but unparseable header fails with
// ErrMalformedHeader.
func Decode(data []byte) (Fields, error) {
	text := string(data)
	rest, ok := strings.CutPrefix(text, headerDelim)
	if !ok {
		return Fields{}, fmt.Errorf("node: %w: no frontmatter block", apperr.ErrMalformedHeader)
	}
	block, body, ok := strings.Cut(rest, "\n"+headerDelim)
	if !ok {
		return Fields{}, fmt.Errorf("node: %w: unterminated frontmatter block", apperr.ErrMalformedHeader)
	}

	var h header
	if err := yaml.Unmarshal([]byte(block), &h); err != nil {
		return Fields{}, fmt.Errorf("node: %w: %v", apperr.ErrMalformedHeader, err)
	}
	nid, err := id.Parse(h.ID)
	if err != nil {
		return Fields{}, fmt.Errorf("node: %w: %v", apperr.ErrMalformedHeader, err)
	}

	return Fields{
		ID:          nid,
		Title:       h.Title,
		Created:     h.Created.UTC(),
		Updated:     h.Updated.UTC(),
		NotecardRef: h.Notecard,
		NotesRef:    h.Notes,
		Meta:        h.Meta,
		Body:        body,
	}, nil
}

// DecodeFile decodes a node document and cross-checks the header id against
// the id implied by the file name. A disagreement is reported as
// IdentityMismatchError; it is never repaired here (resolution policy
// belongs to the synchronization engine).
func DecodeFile(path string, data []byte) (Fields, error) {
	f, err := Decode(data)
	if err != nil {
		return Fields{}, fmt.Errorf("%s: %w", path, err)
	}
	implied, ok := fsname.ImpliedID(path)
	if !ok {
		return Fields{}, fmt.Errorf("%s: %w: file name does not imply an id", path, apperr.ErrMalformedHeader)
	}
	if implied != f.ID {
		return f, &apperr.IdentityMismatchError{
			Path:     path,
			FileID:   implied.String(),
			HeaderID: f.ID.String(),
		}
	}
	return f, nil
}

// Equal compares two Fields by value; timestamps compare by instant and
// metadata by the Value variant semantics.
func (f Fields) Equal(o Fields) bool {
	if f.ID != o.ID || f.Title != o.Title || f.Body != o.Body ||
		f.NotecardRef != o.NotecardRef || f.NotesRef != o.NotesRef ||
		!f.Created.Equal(o.Created) || !f.Updated.Equal(o.Updated) {
		return false
	}
	if len(f.Meta) != len(o.Meta) {
		return false
	}
	for k, v := range f.Meta {
		ov, ok := o.Meta[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}
