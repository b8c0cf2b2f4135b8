package index

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/eykd/prosemark/internal/fsname"
	"github.com/eykd/prosemark/internal/node"
	"github.com/eykd/prosemark/internal/storage"
)

// syncWorkers bounds the concurrent file reads during Sync.
const syncWorkers = 4

// Sync walks the project and brings the index up to date:
//   - new/changed node documents are decoded and upserted
//   - entries whose files left the disk are deleted
//
// Per-file failures are logged and skipped; a stale index entry is worse
// than a missing one only when it silently shadows the disk, and Sync is
// rerun before every query.
//
// ext is the node document extension; "" selects the default.
func Sync(ctx context.Context, db *DB, dir *storage.Dir, ext string, logger *slog.Logger) error {
	if ext == "" {
		ext = fsname.DefaultExtension
	}
	files, err := dir.List(ext)
	if err != nil {
		return err
	}
	indexed, err := db.AllChecksums()
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(syncWorkers)
	for _, f := range files {
		if fsname.IsSibling(f.Path) {
			continue
		}
		if _, ok := fsname.ImpliedID(f.Path); !ok {
			continue // the outline, plain markdown: not node documents
		}
		disk[f.Path] = struct{}{}
		if indexed[f.Path] == f.Checksum {
			continue
		}
		f := f
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := indexFile(db, dir, f); err != nil {
				logger.Warn("sync: index failed", slog.String("path", f.Path), slog.String("error", err.Error()))
				return nil
			}
			logger.Debug("sync: indexed", slog.String("path", f.Path))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// Remove entries for files no longer on disk.
	for path := range indexed {
		if _, ok := disk[path]; ok {
			continue
		}
		nid, err := db.IDForPath(path)
		if err != nil || nid == "" {
			continue
		}
		if err := db.Delete(nid); err != nil {
			logger.Warn("sync: delete failed", slog.String("path", path), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: removed stale", slog.String("path", path))
		}
	}
	return nil
}

// indexFile decodes one node document and upserts it.
func indexFile(db *DB, dir *storage.Dir, f storage.FileInfo) error {
	data, err := dir.Read(f.Path)
	if err != nil {
		return err
	}
	fields, err := node.Decode(data)
	if err != nil {
		return err
	}
	row := NodeRow{
		ID:        fields.ID.String(),
		Path:      f.Path,
		Title:     fields.Title,
		Checksum:  f.Checksum,
		UpdatedAt: fields.Updated,
	}
	return db.Upsert(row, fields.Body)
}
