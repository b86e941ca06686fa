// Package backup implements the pipeline that walks a source tree,
// dedups/chunks its content into a blockdir, and records the result as a
// new band: walker → diff vs. previous index → chunker → blockdir writer
// → index-hunk writer → band tail. Chunking and storage for independent
// entries are dispatched across a bounded worker pool with
// golang.org/x/sync/errgroup, already resolved into the teacher's
// dependency graph as the mechanism it uses for bounded concurrent I/O
// elsewhere in the payload pipeline.
package backup

import (
	"context"
	"io"
	"os"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/marmos91/conserve/internal/logger"
	"github.com/marmos91/conserve/pkg/archive"
	"github.com/marmos91/conserve/pkg/band"
	"github.com/marmos91/conserve/pkg/blockdir"
	"github.com/marmos91/conserve/pkg/codec"
	"github.com/marmos91/conserve/pkg/conserveerr"
	"github.com/marmos91/conserve/pkg/index"
	"github.com/marmos91/conserve/pkg/metrics"
	"github.com/marmos91/conserve/pkg/stitch"
)

// Options configures a backup run.
type Options struct {
	Excludes    []string
	ChunkSize   int64
	Hostname    string
	WorkerCount int
}

// DefaultOptions returns sensible defaults: a 1 MiB chunk target and a
// worker count scaled to the host.
func DefaultOptions() Options {
	return Options{
		ChunkSize:   blockdir.DefaultChunkSize,
		WorkerCount: runtime.GOMAXPROCS(0),
	}
}

// Summary reports the outcome of a backup run, enough for the CLI to pick
// an exit code and print a summary line listing counts per kind. The
// counters that the concurrent chunking workers in buildEntries update
// (failures, blocks, bytes read) go through mu; EntriesOK is only updated
// by Run after the workers have finished.
type Summary struct {
	BandID        int
	EntriesOK     int
	EntriesFailed map[conserveerr.Kind]int
	BlocksWritten int
	BlocksDeduped int
	BytesRead     int64

	mu sync.Mutex
}

func (s *Summary) recordFailure(kind conserveerr.Kind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.EntriesFailed == nil {
		s.EntriesFailed = make(map[conserveerr.Kind]int)
	}
	s.EntriesFailed[kind]++
}

func (s *Summary) recordBlockWritten() {
	s.mu.Lock()
	s.BlocksWritten++
	s.mu.Unlock()
}

func (s *Summary) recordBlockDeduped() {
	s.mu.Lock()
	s.BlocksDeduped++
	s.mu.Unlock()
}

func (s *Summary) addBytesRead(n int64) {
	s.mu.Lock()
	s.BytesRead += n
	s.mu.Unlock()
}

// HasFailures reports whether any entry failed, the condition that maps
// to exit code 2.
func (s *Summary) HasFailures() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.EntriesFailed) > 0
}

// Run backs up sourceRoot into a, creating a new band. It refuses to
// start if the archive's GC lock is held, the symmetric guard to GC
// refusing to run over an incomplete newest band.
func Run(ctx context.Context, a *archive.Archive, c codec.Codec, bd *blockdir.Dir, sourceRoot string, opts Options) (*Summary, error) {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = blockdir.DefaultChunkSize
	}
	if opts.WorkerCount <= 0 {
		opts.WorkerCount = 1
	}

	if locked, err := a.IsGCLocked(ctx); err != nil {
		return nil, err
	} else if locked {
		return nil, conserveerr.New("backup.Run", "", conserveerr.KindLockHeld, conserveerr.ErrLockHeld)
	}

	lc := logger.NewLogContext("backup")
	lc.Archive = sourceRoot
	ctx = logger.WithContext(ctx, lc)

	m := metrics.NewBackupMetrics()

	bandID, err := a.NextBandID(ctx)
	if err != nil {
		return nil, err
	}
	lc.Band = band.Dir(bandID)

	basis, err := loadBasis(ctx, a, c, bandID)
	if err != nil {
		return nil, err
	}

	entries, walkFailures := walkSource(sourceRoot, opts.Excludes)

	summary := &Summary{BandID: bandID}
	for range walkFailures {
		summary.recordFailure(conserveerr.KindSourceReadFailed)
	}
	for _, werr := range walkFailures {
		logger.Warn("source walk failure", "error", werr)
	}

	writer, err := band.Create(ctx, a.Transport(), c, bandID, opts.Hostname)
	if err != nil {
		return nil, err
	}

	built, err := buildEntries(ctx, bd, basis, entries, opts, summary, m)
	if err != nil {
		writer.Abandon()
		return nil, err
	}

	prevHunks := writer.HunkCount()
	for _, e := range built {
		if err := writer.PushEntry(ctx, e); err != nil {
			writer.Abandon()
			return nil, err
		}
		summary.EntriesOK++
		if writer.HunkCount() != prevHunks {
			m.HunkFinalized()
			prevHunks = writer.HunkCount()
		}
	}

	if _, err := writer.Finish(ctx); err != nil {
		return nil, err
	}
	if writer.HunkCount() != prevHunks {
		m.HunkFinalized()
	}

	logger.InfoCtx(ctx, "backup complete",
		logger.KeyEntryCount, summary.EntriesOK,
		logger.KeyBytesRead, summary.BytesRead,
	)
	return summary, nil
}

// loadBasis returns the previous band's stitched entries, keyed by apath,
// for the incremental fast path. An archive with no prior bands yields an
// empty basis.
func loadBasis(ctx context.Context, a *archive.Archive, c codec.Codec, newBandID int) (map[string]index.Entry, error) {
	if newBandID == 0 {
		return nil, nil
	}
	prevID := newBandID - 1
	st := stitch.New(a.Transport(), c)
	entries, err := st.ListEntries(ctx, prevID)
	if err != nil {
		return nil, err
	}
	basis := make(map[string]index.Entry, len(entries))
	for _, e := range entries {
		basis[e.Apath] = e
	}
	return basis, nil
}

// chunkResult is the outcome of chunking and storing one file entry's
// content, produced on a worker goroutine and consumed back on the main
// goroutine in apath order. skip marks an entry whose failure has already
// been recorded into the summary and metrics and that must not be pushed
// to the band writer; it is distinct from err, which only ever carries a
// fatal, run-aborting failure.
type chunkResult struct {
	entry index.Entry
	skip  bool
	err   error
}

// buildEntries produces the final, ordered entry list for the new band:
// directories and symlinks are cheap and built synchronously; file
// content is chunked, hashed, and stored across a bounded worker pool,
// with every block for an entry durably written before that entry is
// returned (the block-rename-before-hunk-rename ordering spec.md §4.6
// requires, preserved here because no entry is pushed to the band writer
// until buildEntries has already returned it).
func buildEntries(ctx context.Context, bd *blockdir.Dir, basis map[string]index.Entry, src []sourceEntry, opts Options, summary *Summary, m *metrics.Backup) ([]index.Entry, error) {
	results := make([]chunkResult, len(src))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.WorkerCount)

	for i, se := range src {
		i, se := i, se
		g.Go(func() error {
			start := time.Now()
			e, skip, err := buildOneEntry(gctx, bd, basis, se, opts, summary, m)
			m.ObserveEntry(time.Since(start))
			results[i] = chunkResult{entry: e, skip: skip, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]index.Entry, 0, len(results))
	for _, r := range results {
		if r.err != nil {
			return nil, r.err
		}
		if r.skip {
			continue
		}
		out = append(out, r.entry)
	}
	return out, nil
}

func buildOneEntry(ctx context.Context, bd *blockdir.Dir, basis map[string]index.Entry, se sourceEntry, opts Options, summary *Summary, m *metrics.Backup) (index.Entry, bool, error) {
	mode := uint32(se.Info.Mode().Perm())

	switch {
	case se.IsDir:
		return index.Entry{
			Apath:    se.Apath,
			Kind:     index.KindDir,
			Mtime:    se.Info.ModTime().Unix(),
			UnixMode: &mode,
		}, false, nil

	case se.IsLink:
		target, err := os.Readlink(se.AbsPath)
		if err != nil {
			summary.recordFailure(conserveerr.KindSourceReadFailed)
			m.EntryFailed(conserveerr.KindSourceReadFailed.String())
			return index.Entry{}, true, nil
		}
		return index.Entry{
			Apath:  se.Apath,
			Kind:   index.KindSymlink,
			Mtime:  se.Info.ModTime().Unix(),
			Target: target,
		}, false, nil

	default:
		return buildFileEntry(ctx, bd, basis, se, opts, summary, m, mode)
	}
}

func buildFileEntry(ctx context.Context, bd *blockdir.Dir, basis map[string]index.Entry, se sourceEntry, opts Options, summary *Summary, m *metrics.Backup, mode uint32) (index.Entry, bool, error) {
	if prev, ok := basis[se.Apath]; ok && prev.Kind == index.KindFile &&
		prev.Size == uint64(se.Info.Size()) && prev.Mtime == se.Info.ModTime().Unix() {
		if allBlocksPresent(ctx, bd, prev.Addrs) {
			return prev, false, nil
		}
	}

	f, err := os.Open(se.AbsPath)
	if err != nil {
		summary.recordFailure(conserveerr.KindSourceReadFailed)
		m.EntryFailed(conserveerr.KindSourceReadFailed.String())
		return index.Entry{}, true, nil
	}
	defer f.Close()

	var addrs []index.Addr
	var total uint64
	buf := make([]byte, opts.ChunkSize)
	for {
		n, rerr := io.ReadFull(f, buf)
		if n > 0 {
			hash, newlyWritten, serr := bd.Store(ctx, buf[:n])
			if serr != nil {
				// A block write failure is fatal to the whole band, not
				// just this entry: the hunk file that would reference
				// this block can never be written correctly, so there is
				// nothing a skip-and-continue could preserve.
				return index.Entry{}, false, serr
			}
			if newlyWritten {
				summary.recordBlockWritten()
				m.BlockWritten()
			} else {
				summary.recordBlockDeduped()
				m.BlockDeduped()
			}
			addrs = append(addrs, index.Addr{Hash: hash.String(), Start: 0, Length: uint64(n)})
			total += uint64(n)
			summary.addBytesRead(int64(n))
			m.BytesRead(int64(n))
		}
		if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
			break
		}
		if rerr != nil {
			summary.recordFailure(conserveerr.KindSourceReadFailed)
			m.EntryFailed(conserveerr.KindSourceReadFailed.String())
			return index.Entry{}, true, nil
		}
	}

	return index.Entry{
		Apath:    se.Apath,
		Kind:     index.KindFile,
		Mtime:    se.Info.ModTime().Unix(),
		Size:     total,
		Addrs:    addrs,
		UnixMode: &mode,
	}, false, nil
}

func allBlocksPresent(ctx context.Context, bd *blockdir.Dir, addrs []index.Addr) bool {
	for _, a := range addrs {
		hash, err := blockdir.ParseHash(a.Hash)
		if err != nil {
			return false
		}
		present, err := bd.Contains(ctx, hash)
		if err != nil || !present {
			return false
		}
	}
	return true
}
