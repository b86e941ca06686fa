// Package gc reclaims unreferenced blocks and, optionally, whole bands.
// It follows spec.md §4.9's safety protocol (acquire the archive's GC
// lock, refuse over an incomplete newest band unless forced, compute the
// surviving reference set, delete, release) and the teacher's own
// reference-counted orphan-block reclaim (pkg/payload/gc), generalized
// from NFS unlink accounting to band/hunk reference scanning.
package gc

import (
	"context"

	"github.com/marmos91/conserve/pkg/archive"
	"github.com/marmos91/conserve/pkg/band"
	"github.com/marmos91/conserve/pkg/blockdir"
	"github.com/marmos91/conserve/pkg/codec"
	"github.com/marmos91/conserve/pkg/conserveerr"
	"github.com/marmos91/conserve/pkg/index"
	"github.com/marmos91/conserve/pkg/metrics"
	"github.com/marmos91/conserve/pkg/transport"
)

// Options controls a GC run.
type Options struct {
	// DeleteBands names bands to remove entirely, in addition to the
	// unconditional unreferenced-block sweep.
	DeleteBands []int
	// Force allows GC to proceed even if the newest band is incomplete.
	Force bool
}

// Summary reports what a GC run did.
type Summary struct {
	BandsDeleted   int
	BlocksDeleted  int
	BytesReclaimed int64
}

// Run acquires the GC lock, deletes opts.DeleteBands, then removes every
// block no surviving band references.
func Run(ctx context.Context, a *archive.Archive, c codec.Codec, bd *blockdir.Dir, opts Options) (*Summary, error) {
	m := metrics.NewGCMetrics()
	t := a.Transport()

	if err := a.TryLockGC(ctx); err != nil {
		m.Refused("lock_held")
		return nil, err
	}
	defer a.UnlockGC(ctx)

	ids, err := band.ListBandIDs(ctx, t)
	if err != nil {
		return nil, err
	}
	if len(ids) > 0 && !opts.Force {
		newest := ids[len(ids)-1]
		complete, err := band.IsComplete(ctx, t, newest)
		if err != nil {
			return nil, err
		}
		if !complete {
			m.Refused("incomplete_band")
			return nil, conserveerr.New("gc.Run", band.Dir(newest), conserveerr.KindBandIncomplete, conserveerr.ErrBandIncomplete)
		}
	}

	toDelete := make(map[int]bool, len(opts.DeleteBands))
	for _, id := range opts.DeleteBands {
		toDelete[id] = true
	}

	surviving := make([]int, 0, len(ids))
	for _, id := range ids {
		if !toDelete[id] {
			surviving = append(surviving, id)
		}
	}

	referenced, err := computeReferencedBlocks(ctx, t, c, surviving)
	if err != nil {
		return nil, err
	}

	summary := &Summary{}

	// Bands are removed before the block sweep: once a band's hunks are
	// gone it can no longer hold references, so the deleted bands'
	// surviving-set contribution (none, by construction above) never
	// needs to be recomputed.
	for id := range toDelete {
		if err := deleteBand(ctx, t, id); err != nil {
			return nil, err
		}
		summary.BandsDeleted++
		m.BandDeleted()
	}

	if err := sweepUnreferencedBlocks(ctx, bd, referenced, summary, m); err != nil {
		return nil, err
	}

	return summary, nil
}

// computeReferencedBlocks iterates every surviving band's every hunk to
// build the set of block hashes still in use (spec.md §4.9 step 4). An
// incomplete band's hunks still count: abandoning GC's view of a
// concurrently-open band's half-written references would make the sweep
// unsafe, not safer.
func computeReferencedBlocks(ctx context.Context, t transport.Transport, c codec.Codec, surviving []int) (map[string]bool, error) {
	referenced := make(map[string]bool)
	for _, id := range surviving {
		r, err := band.Open(ctx, t, c, id)
		if err != nil {
			return nil, err
		}
		if err := r.IterEntries(ctx, func(e index.Entry) error {
			for _, addr := range e.Addrs {
				referenced[addr.Hash] = true
			}
			return nil
		}); err != nil {
			return nil, err
		}
	}
	return referenced, nil
}

// deleteBand removes a band's hunks, head, tail, then its directory, the
// order spec.md §4.9 step 6 specifies: content goes before the markers
// that make it discoverable.
func deleteBand(ctx context.Context, t transport.Transport, id int) error {
	dir := band.Dir(id)
	if err := t.RemoveDir(ctx, dir+"/i"); err != nil {
		return err
	}
	if err := t.RemoveFile(ctx, dir+"/BANDHEAD"); err != nil {
		return err
	}
	if err := t.RemoveFile(ctx, dir+"/BANDTAIL"); err != nil {
		return err
	}
	return t.RemoveDir(ctx, dir)
}

func sweepUnreferencedBlocks(ctx context.Context, bd *blockdir.Dir, referenced map[string]bool, summary *Summary, m *metrics.GC) error {
	var orphans []blockdir.Hash
	if err := bd.IterBlockHashes(ctx, func(h blockdir.Hash) error {
		if !referenced[h.String()] {
			orphans = append(orphans, h)
		}
		return nil
	}); err != nil {
		return err
	}

	for _, h := range orphans {
		size, err := bd.StoredSize(ctx, h)
		if err != nil {
			size = 0
		}
		if err := bd.Remove(ctx, h); err != nil {
			return err
		}
		summary.BlocksDeleted++
		summary.BytesReclaimed += size
		m.BlockDeleted(size)
	}
	return nil
}
