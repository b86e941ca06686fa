package band

import (
	"context"

	"github.com/marmos91/conserve/pkg/apath"
	"github.com/marmos91/conserve/pkg/codec"
	"github.com/marmos91/conserve/pkg/conserveerr"
	"github.com/marmos91/conserve/pkg/index"
	"github.com/marmos91/conserve/pkg/transport"
)

// Writer drives one band through opening, accumulating entries, and
// completion. It is not safe for concurrent use by multiple goroutines.
type Writer struct {
	t      transport.Transport
	codec  codec.Codec
	id     int
	dir    string
	buf    index.Buffer
	nextID int
	last   string
	hasAny bool
	done   bool
}

// Create opens a new band, writing its head.
func Create(ctx context.Context, t transport.Transport, c codec.Codec, id int, hostname string) (*Writer, error) {
	if _, err := WriteHead(ctx, t, id, hostname); err != nil {
		return nil, err
	}
	return &Writer{t: t, codec: c, id: id, dir: Dir(id)}, nil
}

// PushEntry appends e to the band's index, finalizing the current hunk if
// it has reached its capacity. Entries must be pushed in strict ascending
// apath order.
func (w *Writer) PushEntry(ctx context.Context, e index.Entry) error {
	if w.done {
		return conserveerr.New("band.PushEntry", w.dir, conserveerr.KindBandIncomplete, conserveerr.ErrBandIncomplete)
	}
	if w.hasAny && !apath.Less(w.last, e.Apath) {
		return conserveerr.New("band.PushEntry", e.Apath, conserveerr.KindApathOrderViolation, conserveerr.ErrApathOrderViolation)
	}
	w.last = e.Apath
	w.hasAny = true

	if full := w.buf.Add(e); full {
		return w.flush(ctx)
	}
	return nil
}

func (w *Writer) flush(ctx context.Context) error {
	wrote, err := w.buf.Flush(ctx, w.t, w.codec, w.dir, w.nextID)
	if err != nil {
		return err
	}
	if wrote {
		w.nextID++
	}
	return nil
}

// Finish flushes any buffered entries and writes the band tail,
// completing it.
func (w *Writer) Finish(ctx context.Context) (Tail, error) {
	if w.done {
		return Tail{}, conserveerr.New("band.Finish", w.dir, conserveerr.KindBandIncomplete, conserveerr.ErrBandIncomplete)
	}
	if err := w.flush(ctx); err != nil {
		return Tail{}, err
	}
	tail, err := WriteTail(ctx, w.t, w.id, w.nextID)
	if err != nil {
		return Tail{}, err
	}
	w.done = true
	return tail, nil
}

// Abandon marks the writer as finished without writing a tail, leaving
// the band incomplete. Any hunks already finalized remain on disk and are
// valid as far as they go; a future stitch over this band's successor
// will pick up where they left off.
func (w *Writer) Abandon() {
	w.done = true
}

// HunkCount reports how many hunks have been finalized so far.
func (w *Writer) HunkCount() int { return w.nextID }
