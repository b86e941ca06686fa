// Package stitch reconstructs the most recent consistent tree view by
// merging an incomplete band's entries with its ancestor chain, the way
// the teacher's own layered-snapshot readers merge a delta on top of a
// base (pkg/metadata) but specialized to apath ordering and band
// incompleteness rather than generic key overlay.
package stitch

import (
	"context"

	"github.com/marmos91/conserve/pkg/apath"
	"github.com/marmos91/conserve/pkg/band"
	"github.com/marmos91/conserve/pkg/codec"
	"github.com/marmos91/conserve/pkg/conserveerr"
	"github.com/marmos91/conserve/pkg/index"
	"github.com/marmos91/conserve/pkg/transport"
)

// Stitcher produces the logical tree for a target band by reading its
// entries and, once its stream is exhausted, continuing from the next
// older band at the first apath strictly greater than the last one the
// target band emitted, recursing across ancestors until a complete band
// is consumed or bands are exhausted.
type Stitcher struct {
	t     transport.Transport
	codec codec.Codec
}

// New constructs a Stitcher over an archive's transport.
func New(t transport.Transport, c codec.Codec) *Stitcher {
	return &Stitcher{t: t, codec: c}
}

// loadBandEntries reads every entry of band id into memory. Bands are
// bounded by the hunk-count/entry-count conventions spec.md describes, so
// this is acceptable for the single-archive, single-process model;
// streaming per-hunk would be the next optimization if that changes.
func loadBandEntries(ctx context.Context, t transport.Transport, c codec.Codec, id int) ([]index.Entry, error) {
	r, err := band.Open(ctx, t, c, id)
	if err != nil {
		return nil, err
	}
	var entries []index.Entry
	if err := r.IterEntries(ctx, func(e index.Entry) error {
		entries = append(entries, e)
		return nil
	}); err != nil {
		return nil, err
	}
	return entries, nil
}

// Stitch returns the merged entry stream for targetBandID: that band's
// own entries, followed by entries from progressively older bands whose
// apath is strictly greater than the last apath already emitted,
// continuing until a complete band has been folded in or ancestors are
// exhausted. The result is delivered via fn, in ascending apath order,
// with no duplicate apaths.
func (s *Stitcher) Stitch(ctx context.Context, targetBandID int, fn func(index.Entry) error) error {
	ids, err := band.ListBandIDs(ctx, s.t)
	if err != nil {
		return err
	}

	var chain []int
	for _, id := range ids {
		if id > targetBandID {
			continue
		}
		chain = append(chain, id)
	}
	// chain is ascending; we want to consider them newest-first.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	if len(chain) == 0 || chain[0] != targetBandID {
		return conserveerr.New("stitch.Stitch", band.Dir(targetBandID), conserveerr.KindNotFound, conserveerr.ErrNotFound)
	}

	var lastEmitted string
	haveEmitted := false

	for _, id := range chain {
		entries, err := loadBandEntries(ctx, s.t, s.codec, id)
		if err != nil {
			return err
		}

		for _, e := range entries {
			if haveEmitted && !apath.Less(lastEmitted, e.Apath) {
				continue
			}
			if err := fn(e); err != nil {
				return err
			}
			lastEmitted = e.Apath
			haveEmitted = true
		}

		complete, err := band.IsComplete(ctx, s.t, id)
		if err != nil {
			return err
		}
		if complete {
			break
		}
	}
	return nil
}

// ListEntries collects the stitched stream for targetBandID into a slice,
// for callers (validate, ls) that want random access rather than a
// streaming callback.
func (s *Stitcher) ListEntries(ctx context.Context, targetBandID int) ([]index.Entry, error) {
	var out []index.Entry
	err := s.Stitch(ctx, targetBandID, func(e index.Entry) error {
		out = append(out, e)
		return nil
	})
	return out, err
}
