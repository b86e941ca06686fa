package band

import (
	"context"

	"github.com/marmos91/conserve/pkg/codec"
	"github.com/marmos91/conserve/pkg/conserveerr"
	"github.com/marmos91/conserve/pkg/index"
	"github.com/marmos91/conserve/pkg/transport"
)

// Reader iterates a band's entries across its hunks in order, tolerating
// an incomplete band (no tail, or fewer hunks than a tail would claim).
type Reader struct {
	t     transport.Transport
	codec codec.Codec
	id    int
	dir   string
}

// Open prepares a Reader for band id. It reads the head to validate the
// band exists and its format is supported, but does not read any hunks
// yet.
func Open(ctx context.Context, t transport.Transport, c codec.Codec, id int) (*Reader, error) {
	if _, err := ReadHead(ctx, t, id); err != nil {
		return nil, err
	}
	return &Reader{t: t, codec: c, id: id, dir: Dir(id)}, nil
}

// IsComplete reports whether this band has a tail.
func (r *Reader) IsComplete(ctx context.Context) (bool, error) {
	return IsComplete(ctx, r.t, r.id)
}

// IterEntries calls fn for every entry across this band's hunks, in
// ascending apath order, stopping at the first hunk that is missing
// (which is how an incomplete band without a tail naturally ends) or at
// the hunk count recorded in the tail, whichever comes first.
func (r *Reader) IterEntries(ctx context.Context, fn func(index.Entry) error) error {
	limit := -1
	if tail, err := ReadTail(ctx, r.t, r.id); err == nil {
		limit = tail.IndexHunkCount
	} else if conserveerr.KindOf(err) != conserveerr.KindNotFound {
		return err
	}

	for id := 0; limit < 0 || id < limit; id++ {
		entries, err := index.ReadHunk(ctx, r.t, r.codec, r.dir, id)
		if err != nil {
			if conserveerr.KindOf(err) == conserveerr.KindNotFound {
				if limit >= 0 {
					return conserveerr.New("band.IterEntries", r.dir, conserveerr.KindIndexCorrupt, err)
				}
				return nil
			}
			return err
		}
		for _, e := range entries {
			if err := fn(e); err != nil {
				return err
			}
		}
	}
	return nil
}
