// Package validate checks an archive's structural integrity without
// restoring content: header parsing, band/head/tail/hunk contiguity,
// referenced-block existence, per-band apath monotonicity, and (in deep
// mode) per-block rehash and decompression. It accumulates every error it
// finds rather than aborting on the first, the way the teacher's own
// consistency checker walks its whole metadata tree before reporting
// (pkg/metadata/store consistency routines).
package validate

import (
	"context"
	"fmt"

	"github.com/marmos91/conserve/pkg/apath"
	"github.com/marmos91/conserve/pkg/archive"
	"github.com/marmos91/conserve/pkg/band"
	"github.com/marmos91/conserve/pkg/blockdir"
	"github.com/marmos91/conserve/pkg/codec"
	"github.com/marmos91/conserve/pkg/conserveerr"
	"github.com/marmos91/conserve/pkg/index"
	"github.com/marmos91/conserve/pkg/metrics"
	"github.com/marmos91/conserve/pkg/transport"
)

// Options controls how thoroughly Run checks an archive.
type Options struct {
	// Deep additionally rehashes and decompresses every block in the
	// blockdir, including blocks no band references, at the cost of
	// reading the whole archive. Referenced blocks are verified in every
	// mode (see Run).
	Deep bool
}

// Finding is one accumulated validation error.
type Finding struct {
	Band string
	Kind conserveerr.Kind
	Msg  string
}

func (f Finding) String() string {
	if f.Band == "" {
		return fmt.Sprintf("[%s] %s", f.Kind, f.Msg)
	}
	return fmt.Sprintf("[%s] %s: %s", f.Kind, f.Band, f.Msg)
}

// Report is the accumulated result of a validation run.
type Report struct {
	Findings          []Finding
	BandsChecked      int
	BlocksChecked     int
	DeepBlocksChecked int
}

// OK reports whether the archive passed every check.
func (r *Report) OK() bool { return len(r.Findings) == 0 }

func (r *Report) add(m *metrics.Validate, bandDir string, kind conserveerr.Kind, format string, args ...any) {
	r.Findings = append(r.Findings, Finding{Band: bandDir, Kind: kind, Msg: fmt.Sprintf(format, args...)})
	m.ErrorFound(kind.String())
}

// Run validates the archive a against its own band and block contents.
//
// Block sizes are needed even outside deep mode (the per-entry bounds
// check requires each referenced block's uncompressed size), so a
// referenced block is always decompressed and hash-verified once;
// opts.Deep additionally decompresses and hash-verifies every block in
// the blockdir, including ones no surviving band references.
func Run(ctx context.Context, a *archive.Archive, c codec.Codec, bd *blockdir.Dir, opts Options) (*Report, error) {
	m := metrics.NewValidateMetrics()
	report := &Report{}
	t := a.Transport()

	allHashes := make(map[string]bool)
	if err := bd.IterBlockHashes(ctx, func(h blockdir.Hash) error {
		allHashes[h.String()] = true
		return nil
	}); err != nil {
		return nil, err
	}
	report.BlocksChecked = len(allHashes)

	sizes := &blockSizeCache{bd: bd, sizes: make(map[string]uint64), broken: make(map[string]bool)}

	ids, err := band.ListBandIDs(ctx, t)
	if err != nil {
		return nil, err
	}

	for _, id := range ids {
		report.BandsChecked++
		validateBand(ctx, t, c, id, sizes, report, m)
	}

	if opts.Deep {
		for hashStr := range allHashes {
			if sizes.known(hashStr) {
				if !sizes.broken[hashStr] {
					report.DeepBlocksChecked++
					m.DeepBlockChecked()
				}
				continue
			}
			if _, err := sizes.get(ctx, hashStr); err != nil {
				report.add(m, "", conserveerr.KindBlockCorrupt, "block %s failed hash/decompress check: %v", hashStr, err)
				continue
			}
			report.DeepBlocksChecked++
			m.DeepBlockChecked()
		}
	}

	return report, nil
}

// blockSizeCache decompresses and hash-verifies a block the first time
// its size is needed (via blockdir.Dir.Read), then remembers the result
// so validateBand's per-entry bounds check never reads the same block
// twice.
type blockSizeCache struct {
	bd     *blockdir.Dir
	sizes  map[string]uint64
	broken map[string]bool
}

func (c *blockSizeCache) known(hashStr string) bool {
	_, ok := c.sizes[hashStr]
	return ok || c.broken[hashStr]
}

func (c *blockSizeCache) get(ctx context.Context, hashStr string) (uint64, error) {
	if size, ok := c.sizes[hashStr]; ok {
		return size, nil
	}
	if c.broken[hashStr] {
		return 0, conserveerr.ErrBlockCorrupt
	}
	h, err := blockdir.ParseHash(hashStr)
	if err != nil {
		c.broken[hashStr] = true
		return 0, err
	}
	data, err := c.bd.Read(ctx, h)
	if err != nil {
		c.broken[hashStr] = true
		return 0, err
	}
	size := uint64(len(data))
	c.sizes[hashStr] = size
	return size, nil
}

// validateBand checks one band's head/tail/hunk-contiguity, its own
// apath monotonicity across hunk boundaries (DecodeHunk already checks
// within a hunk), and every entry's block references and bounds.
func validateBand(ctx context.Context, t transport.Transport, c codec.Codec, id int, sizes *blockSizeCache, report *Report, m *metrics.Validate) {
	dir := band.Dir(id)

	head, err := band.ReadHead(ctx, t, id)
	if err != nil {
		report.add(m, dir, conserveerr.KindOf(err), "head unreadable: %v", err)
		return
	}
	if head.BandID != id {
		report.add(m, dir, conserveerr.KindIndexCorrupt, "head band_id %d does not match directory %s", head.BandID, dir)
	}

	complete, err := band.IsComplete(ctx, t, id)
	if err != nil {
		report.add(m, dir, conserveerr.KindOf(err), "tail check failed: %v", err)
		return
	}

	var expectedHunks = -1
	if complete {
		tail, err := band.ReadTail(ctx, t, id)
		if err != nil {
			report.add(m, dir, conserveerr.KindOf(err), "tail unreadable: %v", err)
			return
		}
		expectedHunks = tail.IndexHunkCount
	}

	var lastApath string
	haveLast := false
	hunkCount := 0

	for hid := 0; expectedHunks < 0 || hid < expectedHunks; hid++ {
		entries, err := index.ReadHunk(ctx, t, c, dir, hid)
		if err != nil {
			if conserveerr.KindOf(err) == conserveerr.KindNotFound {
				if expectedHunks >= 0 {
					report.add(m, dir, conserveerr.KindIndexCorrupt, "tail claims %d hunks but hunk %d is missing", expectedHunks, hid)
				}
				break
			}
			report.add(m, dir, conserveerr.KindOf(err), "hunk %d unreadable: %v", hid, err)
			break
		}
		hunkCount++

		for _, e := range entries {
			if haveLast && !apath.Less(lastApath, e.Apath) {
				report.add(m, dir, conserveerr.KindApathOrderViolation, "apath %q out of order after %q", e.Apath, lastApath)
			}
			lastApath = e.Apath
			haveLast = true

			validateEntryBounds(ctx, e, sizes, dir, report, m)
		}
	}

	if expectedHunks >= 0 && hunkCount != expectedHunks {
		report.add(m, dir, conserveerr.KindIndexCorrupt, "tail claims %d hunks, observed %d", expectedHunks, hunkCount)
	}
}

func validateEntryBounds(ctx context.Context, e index.Entry, sizes *blockSizeCache, dir string, report *Report, m *metrics.Validate) {
	for _, addr := range e.Addrs {
		size, err := sizes.get(ctx, addr.Hash)
		if err != nil {
			if conserveerr.KindOf(err) == conserveerr.KindBlockMissing {
				report.add(m, dir, conserveerr.KindBlockMissing, "entry %q references missing block %s", e.Apath, addr.Hash)
			} else {
				report.add(m, dir, conserveerr.KindBlockCorrupt, "entry %q references unreadable block %s: %v", e.Apath, addr.Hash, err)
			}
			continue
		}
		if addr.Start+addr.Length > size {
			report.add(m, dir, conserveerr.KindIndexCorrupt, "entry %q range [%d,%d) exceeds block %s size %d",
				e.Apath, addr.Start, addr.Start+addr.Length, addr.Hash, size)
		}
	}
}
