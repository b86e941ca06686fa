// Package archive owns the archive root: the CONSERVE header file, band
// enumeration, and the GC lock protocol shared between the backup and GC
// pipelines. Layered over pkg/transport the way the teacher layers its
// own share-root bootstrap over a block store.
package archive

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/marmos91/conserve/pkg/band"
	"github.com/marmos91/conserve/pkg/conserveerr"
	"github.com/marmos91/conserve/pkg/transport"
)

// HeaderVersion is the archive format version this build writes.
const HeaderVersion = "1.0"

const gcLockName = "GC_LOCK"

// headerCandidates lists the header filenames this build accepts on
// read, in preference order for write. Older archives in the wild are
// known to have used the lowercase form; new archives always get the
// canonical uppercase name.
var headerCandidates = []string{"CONSERVE", "conserve"}

// Header is the JSON contents of the archive root header file.
type Header struct {
	ConserveArchiveVersion string `json:"conserve_archive_version"`
	ArchiveID              string `json:"archive_id"`
}

// Archive is a handle on an initialized archive root.
type Archive struct {
	t      transport.Transport
	Header Header
}

// Init creates a new, empty archive at t's root. It fails if a header
// already exists.
func Init(ctx context.Context, t transport.Transport) (*Archive, error) {
	for _, name := range headerCandidates {
		if _, err := t.Metadata(ctx, name); err == nil {
			return nil, conserveerr.New("archive.Init", name, conserveerr.KindAlreadyExists, conserveerr.ErrAlreadyExists)
		}
	}

	header := Header{ConserveArchiveVersion: HeaderVersion, ArchiveID: uuid.NewString()}
	raw, err := json.Marshal(header)
	if err != nil {
		return nil, conserveerr.New("archive.Init", "CONSERVE", conserveerr.KindIndexCorrupt, err)
	}
	if err := t.WriteFile(ctx, headerCandidates[0], raw, transport.FailIfExists); err != nil {
		return nil, err
	}
	return &Archive{t: t, Header: header}, nil
}

// Open reads an existing archive's header, accepting either the canonical
// or legacy-cased header filename.
func Open(ctx context.Context, t transport.Transport) (*Archive, error) {
	var raw []byte
	var err error
	for _, name := range headerCandidates {
		raw, err = t.Read(ctx, name)
		if err == nil {
			break
		}
		if conserveerr.KindOf(err) != conserveerr.KindNotFound {
			return nil, err
		}
	}
	if raw == nil {
		return nil, conserveerr.New("archive.Open", headerCandidates[0], conserveerr.KindNotFound, conserveerr.ErrNotFound)
	}

	var header Header
	if err := json.Unmarshal(raw, &header); err != nil {
		return nil, conserveerr.New("archive.Open", headerCandidates[0], conserveerr.KindFormatUnsupported, err)
	}
	return &Archive{t: t, Header: header}, nil
}

// Transport returns the underlying transport, for callers that need to
// hand it to band/blockdir/index directly.
func (a *Archive) Transport() transport.Transport { return a.t }

// NextBandID returns one past the highest existing band id (or 0 for an
// empty archive); gaps left by deleted bands are not reused.
func (a *Archive) NextBandID(ctx context.Context) (int, error) {
	ids, err := band.ListBandIDs(ctx, a.t)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	return ids[len(ids)-1] + 1, nil
}

// TryLockGC acquires the GC lock, failing with KindLockHeld if it is
// already held. GC holds it for its whole run; backup does not take it
// but checks it with IsGCLocked before opening a new band.
func (a *Archive) TryLockGC(ctx context.Context) error {
	err := a.t.WriteFile(ctx, gcLockName, []byte{}, transport.FailIfExists)
	if conserveerr.KindOf(err) == conserveerr.KindAlreadyExists {
		return conserveerr.New("archive.TryLockGC", gcLockName, conserveerr.KindLockHeld, conserveerr.ErrLockHeld)
	}
	return err
}

// UnlockGC releases the GC lock.
func (a *Archive) UnlockGC(ctx context.Context) error {
	return a.t.RemoveFile(ctx, gcLockName)
}

// IsGCLocked reports whether the GC lock is currently held, without
// acquiring it.
func (a *Archive) IsGCLocked(ctx context.Context) (bool, error) {
	_, err := a.t.Metadata(ctx, gcLockName)
	if err == nil {
		return true, nil
	}
	if conserveerr.KindOf(err) == conserveerr.KindNotFound {
		return false, nil
	}
	return false, err
}
