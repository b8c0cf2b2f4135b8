// Package testutil provides shared test helpers for setting up project
// directories and node documents.
package testutil

import (
	"testing"

	"github.com/eykd/prosemark/internal/storage"
)

// TempStore creates a temporary project directory that is cleaned up with
// the test.
func TempStore(t *testing.T) *storage.Dir {
	t.Helper()
	dir, err := storage.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return dir
}

// WriteDoc writes a minimal node document and returns its path.
func WriteDoc(t *testing.T, dir *storage.Dir, nid, title, body string) string {
	t.Helper()
	path := nid + " " + title + ".md"
	doc := "---\nid: " + nid + "\ntitle: " + title +
		"\ncreated: 2026-03-01T12:00:00Z\nupdated: 2026-03-01T12:00:00Z\n---\n" + body
	if err := dir.Write(path, []byte(doc)); err != nil {
		t.Fatal(err)
	}
	return path
}
