// Package restore materializes a stitched band's entries onto a
// filesystem destination, the inverse of pkg/backup, in one pass over the
// entries in apath order (so parents always precede children): a
// directory is created, a symlink is made from its stored target, and a
// file is written by ordered ReadRange over its block addresses. It follows the teacher's own filesystem block store's
// directory-then-file handling (pkg/payload/store/fs) but materializes
// whole trees rather than individual opaque blocks.
package restore

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/marmos91/conserve/internal/logger"
	"github.com/marmos91/conserve/pkg/archive"
	"github.com/marmos91/conserve/pkg/blockdir"
	"github.com/marmos91/conserve/pkg/codec"
	"github.com/marmos91/conserve/pkg/conserveerr"
	"github.com/marmos91/conserve/pkg/index"
	"github.com/marmos91/conserve/pkg/stitch"
)

// Options configures a restore run.
type Options struct {
	// Overwrite allows restore to replace an existing destination file or
	// symlink. Without it, a collision is reported as a conflict rather
	// than silently replaced (spec.md §4.7).
	Overwrite bool
}

// Summary reports the outcome of a restore run.
type Summary struct {
	BandID           int
	EntriesRestored  int
	EntriesFailed    map[conserveerr.Kind]int
	Conflicts        []string
	MetadataWarnings []string
}

func (s *Summary) recordFailure(kind conserveerr.Kind) {
	if s.EntriesFailed == nil {
		s.EntriesFailed = make(map[conserveerr.Kind]int)
	}
	s.EntriesFailed[kind]++
}

// HasFailures reports whether any entry failed to restore, the condition
// that maps to exit code 2 in spec.md §6.
func (s *Summary) HasFailures() bool {
	return len(s.EntriesFailed) > 0
}

// Run restores the band identified by bandID (stitched against its
// ancestors) into destRoot, which is created if it does not exist. A
// failure to restore one entry is recorded against it and restore
// continues with the next entry, per spec.md §7; only a failure to read
// the archive's own structure (a corrupt band chain, a missing transport
// path) aborts the whole run.
func Run(ctx context.Context, a *archive.Archive, c codec.Codec, bd *blockdir.Dir, bandID int, destRoot string, opts Options) (*Summary, error) {
	st := stitch.New(a.Transport(), c)
	summary := &Summary{BandID: bandID}

	err := st.Stitch(ctx, bandID, func(e index.Entry) error {
		if err := restoreEntry(ctx, bd, destRoot, e, opts, summary); err != nil {
			kind := conserveerr.KindOf(err)
			summary.recordFailure(kind)
			logger.Warn("restore entry failed", "apath", e.Apath, "error", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}

func destPath(destRoot string, apath string) string {
	return filepath.Join(destRoot, filepath.FromSlash(apath))
}

func restoreEntry(ctx context.Context, bd *blockdir.Dir, destRoot string, e index.Entry, opts Options, summary *Summary) error {
	path := destPath(destRoot, e.Apath)

	switch e.Kind {
	case index.KindDir:
		if err := os.MkdirAll(path, 0o755); err != nil {
			return conserveerr.New("restore.restoreEntry", e.Apath, conserveerr.KindDestinationWriteFailed, err)
		}
		applyMetadata(path, e, summary)

	case index.KindSymlink:
		if exists(path) {
			if !opts.Overwrite {
				summary.Conflicts = append(summary.Conflicts, e.Apath)
				return nil
			}
			_ = os.Remove(path)
		}
		if err := os.Symlink(e.Target, path); err != nil {
			return conserveerr.New("restore.restoreEntry", e.Apath, conserveerr.KindDestinationWriteFailed, err)
		}

	case index.KindFile:
		if exists(path) {
			if !opts.Overwrite {
				summary.Conflicts = append(summary.Conflicts, e.Apath)
				return nil
			}
		}
		if err := restoreFile(ctx, bd, path, e); err != nil {
			return err
		}
		applyMetadata(path, e, summary)

	default:
		return conserveerr.New("restore.restoreEntry", e.Apath, conserveerr.KindIndexCorrupt, conserveerr.ErrIndexCorrupt)
	}

	summary.EntriesRestored++
	return nil
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// restoreFile opens a fresh output sink at path and appends each of the
// entry's block ranges in order, the way spec.md §4.7 describes the
// file-restore loop.
func restoreFile(ctx context.Context, bd *blockdir.Dir, path string, e index.Entry) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return conserveerr.New("restore.restoreFile", e.Apath, conserveerr.KindDestinationWriteFailed, err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return conserveerr.New("restore.restoreFile", e.Apath, conserveerr.KindDestinationWriteFailed, err)
	}
	defer f.Close()

	for _, addr := range e.Addrs {
		hash, err := blockdir.ParseHash(addr.Hash)
		if err != nil {
			return conserveerr.New("restore.restoreFile", e.Apath, conserveerr.KindIndexCorrupt, err)
		}
		data, err := bd.ReadRange(ctx, hash, int64(addr.Start), int64(addr.Length))
		if err != nil {
			return err
		}
		if _, err := f.Write(data); err != nil {
			return conserveerr.New("restore.restoreFile", e.Apath, conserveerr.KindDestinationWriteFailed, err)
		}
	}
	if err := f.Close(); err != nil {
		return conserveerr.New("restore.restoreFile", e.Apath, conserveerr.KindDestinationWriteFailed, err)
	}
	return nil
}

// applyMetadata sets mtime and unix mode best-effort, as spec.md §4.7
// requires: failure to apply is a warning, never a fatal error.
func applyMetadata(path string, e index.Entry, summary *Summary) {
	mtime := time.Unix(e.Mtime, int64(e.MtimeNanos))
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		summary.MetadataWarnings = append(summary.MetadataWarnings, e.Apath)
		logger.Warn("failed to set mtime", "apath", e.Apath, "error", err)
	}
	if e.UnixMode != nil {
		if err := os.Chmod(path, os.FileMode(*e.UnixMode)); err != nil {
			summary.MetadataWarnings = append(summary.MetadataWarnings, e.Apath)
			logger.Warn("failed to set mode", "apath", e.Apath, "error", err)
		}
	}
}
