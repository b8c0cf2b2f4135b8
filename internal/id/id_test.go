package id

import (
	"sort"
	"testing"
)

func TestNew_UniqueAndSorted(t *testing.T) {
	const n = 200
	seen := make(map[NodeID]struct{}, n)
	ids := make([]NodeID, 0, n)
	for i := 0; i < n; i++ {
		got, err := New()
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		if _, dup := seen[got]; dup {
			t.Fatalf("duplicate id generated: %s", got)
		}
		seen[got] = struct{}{}
		ids = append(ids, got)
	}
	// Creation order must match lexicographic order, even within one
	// millisecond (monotonic tie-break).
	if !sort.SliceIsSorted(ids, func(i, j int) bool { return ids[i] < ids[j] }) {
		t.Error("ids are not lexicographically sorted by creation order")
	}
}

func TestNew_IsValidV7(t *testing.T) {
	got, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := Parse(got.String()); err != nil {
		t.Errorf("generated id does not parse: %v", err)
	}
}

func TestParse_RejectsOtherVersions(t *testing.T) {
	// A valid UUIDv4 must be rejected.
	if _, err := Parse("9b2b55e4-93a6-4c6b-8c2c-8a2c8a2c8a2c"); err == nil {
		t.Error("expected error for UUIDv4")
	}
}

func TestParse_RejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "not-a-uuid", "0192f0c1-2345"} {
		if _, err := Parse(s); err == nil {
			t.Errorf("expected error for %q", s)
		}
	}
}

func TestIsZero(t *testing.T) {
	if !Zero.IsZero() {
		t.Error("Zero.IsZero() = false")
	}
	got, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got.IsZero() {
		t.Error("fresh id reports IsZero")
	}
}
