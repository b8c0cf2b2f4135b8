// Package index provides a SQLite-backed search index over node documents,
// with FTS5 full-text search when compiled in (build tag sqlite_fts5) and a
// LIKE fallback otherwise.
//
// The index is derived data: it lives next to the outline and can be deleted
// at any time. Sync rebuilds exactly the stale parts by comparing content
// checksums against the files on disk.
package index

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DefaultFile is the index filename in the project root.
const DefaultFile = ".prosemark.db"

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS nodes (
	id         TEXT PRIMARY KEY,
	path       TEXT NOT NULL,
	title      TEXT NOT NULL DEFAULT '',
	checksum   TEXT NOT NULL DEFAULT '',
	body       TEXT NOT NULL DEFAULT '',
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_nodes_path ON nodes(path);
`

// NodeRow is one indexed node.
type NodeRow struct {
	ID        string
	Path      string
	Title     string
	Checksum  string
	UpdatedAt time.Time
}

// SearchResult is one search hit.
type SearchResult struct {
	ID      string
	Path    string
	Title   string
	Snippet string
}

// DB wraps a sql.DB with index-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply fts schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Upsert inserts or replaces a node and its FTS entry within a transaction.
func (db *DB) Upsert(row NodeRow, body string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	_, err = tx.Exec(`
		INSERT INTO nodes (id, path, title, checksum, body, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			path       = excluded.path,
			title      = excluded.title,
			checksum   = excluded.checksum,
			body       = excluded.body,
			updated_at = excluded.updated_at
	`, row.ID, row.Path, row.Title, row.Checksum, body, row.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert node: %w", err)
	}

	// FTS upsert (no-op when the FTS5 tag is absent).
	if err := ftsUpsert(tx, row.ID, row.Title, body); err != nil {
		return err
	}
	return tx.Commit()
}

// Delete removes a node and its FTS entry.
func (db *DB) Delete(nodeID string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDelete(tx, nodeID)
	_, _ = tx.Exec(`DELETE FROM nodes WHERE id = ?`, nodeID)
	return tx.Commit()
}

// AllChecksums returns every indexed node path mapped to its checksum.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM nodes`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

// IDForPath returns the indexed node id for a path, or "" when absent.
func (db *DB) IDForPath(path string) (string, error) {
	var nid string
	err := db.conn.QueryRow(`SELECT id FROM nodes WHERE path = ?`, path).Scan(&nid)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: id for path: %w", err)
	}
	return nid, nil
}
