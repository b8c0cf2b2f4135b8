package node

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/eykd/prosemark/internal/apperr"
	"github.com/eykd/prosemark/internal/id"
)

const testID = "0192f0c1-2345-7123-8abc-def012345678"

func sampleFields() Fields {
	created := time.Date(2026, 1, 10, 9, 30, 0, 0, time.UTC)
	return Fields{
		ID:          id.NodeID(testID),
		Title:       "Chapter One: The Door",
		Created:     created,
		Updated:     created.Add(2 * time.Hour),
		NotecardRef: testID + " Chapter One The Door.notecard.md",
		Meta: map[string]Value{
			"status":   String("draft"),
			"revision": Number(3),
			"pinned":   Bool(true),
			"due":      Time(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)),
		},
		Body: "It was a door like any other.\n\nExcept it hummed.\n",
	}
}

func TestRoundTrip(t *testing.T) {
	want := sampleFields()
	data, err := Encode(want)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !got.Equal(want) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, want)
	}
}

func TestEncode_Idempotent(t *testing.T) {
	f := sampleFields()
	a, err := Encode(f)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	b, err := Encode(f)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if string(a) != string(b) {
		t.Error("Encode is not byte-stable")
	}
}

func TestDecode_MissingOptionalFields(t *testing.T) {
	doc := "---\nid: " + testID + "\ntitle: Bare\ncreated: 2026-01-10T09:30:00Z\nupdated: 2026-01-10T09:30:00Z\n---\nbody\n"
	got, err := Decode([]byte(doc))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.NotecardRef != "" || got.NotesRef != "" || got.Meta != nil {
		t.Errorf("optional fields should default empty: %+v", got)
	}
	if got.Body != "body\n" {
		t.Errorf("body = %q", got.Body)
	}
}

func TestDecode_MalformedHeader(t *testing.T) {
	cases := map[string]string{
		"no frontmatter":  "just text\n",
		"unterminated":    "---\nid: " + testID + "\n",
		"broken yaml":     "---\nid: [unclosed\n---\nbody",
		"missing id":      "---\ntitle: No Identity\n---\nbody",
		"invalid id":      "---\nid: not-a-uuid\ntitle: X\n---\nbody",
		"non-scalar meta": "---\nid: " + testID + "\nmeta:\n  status: [a, b]\n---\nbody",
		"uuid not v7":     "---\nid: 9b2b55e4-93a6-4c6b-8c2c-8a2c8a2c8a2c\n---\nbody",
	}
	for name, doc := range cases {
		if _, err := Decode([]byte(doc)); !errors.Is(err, apperr.ErrMalformedHeader) {
			t.Errorf("%s: err = %v, want ErrMalformedHeader", name, err)
		}
	}
}

func TestDecodeFile_IdentityMismatch(t *testing.T) {
	f := sampleFields()
	data, err := Encode(f)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	otherName := "0192f0c1-2345-7123-8abc-def012345679 Chapter One.md"
	got, err := DecodeFile(otherName, data)
	if !errors.Is(err, apperr.ErrIdentityMismatch) {
		t.Fatalf("err = %v, want ErrIdentityMismatch", err)
	}
	var mm *apperr.IdentityMismatchError
	if !errors.As(err, &mm) {
		t.Fatal("error is not an IdentityMismatchError")
	}
	if mm.HeaderID != testID {
		t.Errorf("HeaderID = %q", mm.HeaderID)
	}
	// The decoded fields are still returned so callers can report context.
	if got.ID != f.ID {
		t.Errorf("fields not returned alongside mismatch")
	}
}

func TestDecodeFile_Match(t *testing.T) {
	f := sampleFields()
	data, err := Encode(f)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := DecodeFile(testID+" Chapter One The Door.md", data)
	if err != nil {
		t.Fatalf("DecodeFile: %v", err)
	}
	if got.ID != f.ID {
		t.Errorf("id = %s", got.ID)
	}
}

func TestDecode_BodyPreservedExactly(t *testing.T) {
	f := sampleFields()
	f.Body = "---\nlooks like a delimiter mid-body\n---\nand trailing text"
	data, err := Encode(f)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Body != f.Body {
		t.Errorf("body = %q, want %q", got.Body, f.Body)
	}
}

func TestValue_YAMLKinds(t *testing.T) {
	doc := "---\nid: " + testID + "\nmeta:\n  words: 1200\n  ratio: 0.5\n  done: false\n  label: plain text\n  quoted: \"2026\"\n  when: 2026-03-01T12:00:00Z\n---\n"
	got, err := Decode([]byte(doc))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	checks := []struct {
		key  string
		kind Kind
	}{
		{"words", KindNumber},
		{"ratio", KindNumber},
		{"done", KindBool},
		{"label", KindString},
		{"quoted", KindString},
		{"when", KindTime},
	}
	for _, c := range checks {
		v, ok := got.Meta[c.key]
		if !ok {
			t.Errorf("missing meta key %q", c.key)
			continue
		}
		if v.Kind() != c.kind {
			t.Errorf("meta[%q].Kind = %d, want %d", c.key, v.Kind(), c.kind)
		}
	}
	if got.Meta["words"].NumberVal() != 1200 {
		t.Errorf("words = %v", got.Meta["words"].NumberVal())
	}
}

func TestEncode_MissingID(t *testing.T) {
	if _, err := Encode(Fields{Title: "x"}); err == nil {
		t.Error("expected error encoding fields without id")
	}
}

func TestEncode_HeaderKeyOrderStable(t *testing.T) {
	data, err := Encode(sampleFields())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	text := string(data)
	idPos := strings.Index(text, "\nid:")
	// id is the first header line, right after the opening delimiter.
	if !strings.HasPrefix(text, "---\nid: ") && idPos != 3 {
		t.Errorf("header does not start with id:\n%s", text)
	}
}
