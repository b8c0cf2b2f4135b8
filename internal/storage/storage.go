// Package storage provides file access rooted at one project directory.
//
// All paths are project-relative; anything escaping the root is rejected.
// Writes are staged: content goes to a temporary file in the same directory,
// is fsynced, and is then renamed into place, so a crash mid-write never
// leaves a half-written file masquerading as a valid document.
package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const tmpPattern = ".pmk-tmp-*"

// FileInfo describes one file found by List.
type FileInfo struct {
	Path     string // project-relative
	Checksum string // hex SHA-256 of the content
}

// Dir is a project directory.
type Dir struct {
	root string // absolute
}

// Open returns a Dir for an existing directory.
func Open(root string) (*Dir, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: %s is not a directory", abs)
	}
	return &Dir{root: abs}, nil
}

// Root returns the absolute project root.
func (d *Dir) Root() string { return d.root }

// Abs resolves a project-relative path, rejecting absolute paths and any
// path that escapes the root.
func (d *Dir) Abs(rel string) (string, error) {
	if rel == "" || filepath.IsAbs(rel) {
		return "", fmt.Errorf("storage: invalid path %q", rel)
	}
	joined := filepath.Join(d.root, filepath.Clean(rel))
	if joined != d.root && !strings.HasPrefix(joined, d.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("storage: path %q escapes the project root", rel)
	}
	return joined, nil
}

// List returns every file in the project with the given extension, sorted
// by path, with content checksums. Dotfiles and dot-directories are
// skipped.
func (d *Dir) List(ext string) ([]FileInfo, error) {
	var out []FileInfo
	err := filepath.WalkDir(d.root, func(p string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		name := entry.Name()
		if entry.IsDir() {
			if p != d.root && strings.HasPrefix(name, ".") {
				return fs.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ext) {
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(d.root, p)
		if err != nil {
			return err
		}
		out = append(out, FileInfo{Path: filepath.ToSlash(rel), Checksum: Sum(data)})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Exists reports whether a project-relative path names an existing file.
func (d *Dir) Exists(rel string) bool {
	abs, err := d.Abs(rel)
	if err != nil {
		return false
	}
	info, err := os.Stat(abs)
	return err == nil && !info.IsDir()
}

// Read returns the content of a project file.
func (d *Dir) Read(rel string) ([]byte, error) {
	abs, err := d.Abs(rel)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", rel, err)
	}
	return data, nil
}

// Write stages content to a temporary file and swaps it into place. On any
// failure the original file, if one existed, is left intact.
func (d *Dir) Write(rel string, content []byte) error {
	abs, err := d.Abs(rel)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(abs), tmpPattern)
	if err != nil {
		return fmt.Errorf("storage: stage %s: %w", rel, err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("storage: stage %s: %w", rel, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync %s: %w", rel, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: stage %s: %w", rel, err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("storage: swap %s into place: %w", rel, err)
	}
	committed = true
	return nil
}

// Remove deletes a project file. Removing a file that is already gone is
// not an error.
func (d *Dir) Remove(rel string) error {
	abs, err := d.Abs(rel)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("storage: remove %s: %w", rel, err)
	}
	return nil
}

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
