// Package band implements the per-version band lifecycle: a head file
// written at the start of a backup, index hunks accumulated while open,
// and a tail file written on successful completion. The state machine and
// JSON head/tail shape follow the teacher's own versioned-metadata
// snapshot conventions (pkg/metadata/store), adapted to band semantics.
package band

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/marmos91/conserve/pkg/conserveerr"
	"github.com/marmos91/conserve/pkg/transport"
)

// FormatVersion is the band format this build writes.
const FormatVersion = 1

// MinReaderVersion is recorded in every band head this build writes: the
// oldest reader format version able to read the band. ReadHead refuses a
// head whose recorded minimum exceeds FormatVersion.
const MinReaderVersion = 1

// Version is the software version recorded in every band head, overridden
// at build time via -ldflags.
var Version = "dev"

// State is a band's lifecycle state.
type State string

const (
	StateOpening   State = "opening"
	StateOpen      State = "open"
	StateClosing   State = "closing"
	StateComplete  State = "complete"
	StateAbandoned State = "abandoned"
)

// Head is the JSON contents of a band's BANDHEAD file.
type Head struct {
	BandID           int       `json:"band_id"`
	StartTime        time.Time `json:"start_time"`
	Hostname         string    `json:"hostname"`
	SoftwareVersion  string    `json:"software_version"`
	BandFormatVer    int       `json:"band_format_version"`
	MinReaderVersion int       `json:"min_reader_version"`
	BandFlags        []string  `json:"band_flags,omitempty"`
}

// Tail is the JSON contents of a band's BANDTAIL file, present iff the
// band is complete.
type Tail struct {
	BandID         int       `json:"band_id"`
	EndTime        time.Time `json:"end_time"`
	IndexHunkCount int       `json:"index_hunk_count"`
}

// Dir returns the archive-relative directory name for a band id.
func Dir(id int) string {
	return fmt.Sprintf("b%06d", id)
}

const headName = "BANDHEAD"
const tailName = "BANDTAIL"

// WriteHead creates a new band directory and writes its head, transitioning
// the band from non-existent to open. It fails if the band directory
// already has a head (a band id must never be reused).
func WriteHead(ctx context.Context, t transport.Transport, id int, hostname string) (Head, error) {
	dir := Dir(id)
	head := Head{
		BandID:           id,
		StartTime:        time.Now().UTC(),
		Hostname:         hostname,
		SoftwareVersion:  Version,
		BandFormatVer:    FormatVersion,
		MinReaderVersion: MinReaderVersion,
	}

	raw, err := json.Marshal(head)
	if err != nil {
		return Head{}, conserveerr.New("band.WriteHead", dir, conserveerr.KindIndexCorrupt, err)
	}

	if err := t.CreateDir(ctx, dir); err != nil {
		return Head{}, err
	}
	if err := t.WriteFile(ctx, dir+"/"+headName, raw, transport.FailIfExists); err != nil {
		return Head{}, err
	}
	return head, nil
}

// ReadHead reads a band's head, returning KindBandIncomplete's sibling
// KindNotFound if the band has no head at all (it does not exist). The
// legacy lowercase file name "bandhead" is accepted when BANDHEAD is absent.
func ReadHead(ctx context.Context, t transport.Transport, id int) (Head, error) {
	raw, err := t.Read(ctx, Dir(id)+"/"+headName)
	if conserveerr.KindOf(err) == conserveerr.KindNotFound {
		raw, err = t.Read(ctx, Dir(id)+"/bandhead")
	}
	if err != nil {
		return Head{}, err
	}
	var head Head
	if err := json.Unmarshal(raw, &head); err != nil {
		return Head{}, conserveerr.New("band.ReadHead", Dir(id), conserveerr.KindIndexCorrupt, err)
	}
	if head.MinReaderVersion > FormatVersion {
		return Head{}, conserveerr.New("band.ReadHead", Dir(id), conserveerr.KindFormatUnsupported, conserveerr.ErrFormatUnsupported)
	}
	return head, nil
}

// WriteTail writes a band's tail, completing it. hunkCount must equal the
// number of hunks actually finalized under this band.
func WriteTail(ctx context.Context, t transport.Transport, id, hunkCount int) (Tail, error) {
	tail := Tail{BandID: id, EndTime: time.Now().UTC(), IndexHunkCount: hunkCount}
	raw, err := json.Marshal(tail)
	if err != nil {
		return Tail{}, conserveerr.New("band.WriteTail", Dir(id), conserveerr.KindIndexCorrupt, err)
	}
	if err := t.WriteFile(ctx, Dir(id)+"/"+tailName, raw, transport.FailIfExists); err != nil {
		return Tail{}, err
	}
	return tail, nil
}

// ReadTail reads a band's tail. A KindNotFound error means the band is
// incomplete, not that it is malformed. The legacy lowercase file name
// "bandtail" is accepted when BANDTAIL is absent.
func ReadTail(ctx context.Context, t transport.Transport, id int) (Tail, error) {
	raw, err := t.Read(ctx, Dir(id)+"/"+tailName)
	if conserveerr.KindOf(err) == conserveerr.KindNotFound {
		raw, err = t.Read(ctx, Dir(id)+"/bandtail")
	}
	if err != nil {
		return Tail{}, err
	}
	var tail Tail
	if err := json.Unmarshal(raw, &tail); err != nil {
		return Tail{}, conserveerr.New("band.ReadTail", Dir(id), conserveerr.KindIndexCorrupt, err)
	}
	return tail, nil
}

// IsComplete reports whether a band has a tail.
func IsComplete(ctx context.Context, t transport.Transport, id int) (bool, error) {
	_, err := ReadTail(ctx, t, id)
	if err == nil {
		return true, nil
	}
	if conserveerr.KindOf(err) == conserveerr.KindNotFound {
		return false, nil
	}
	return false, err
}

// CurrentState reports a band's current lifecycle state by inspecting which of
// its head/tail files exist. A band with no head is reported as
// StateAbandoned only by convention of the caller; this package cannot
// distinguish "never existed" from "abandoned before the head write" and
// callers should treat a NotFound from ReadHead as "no such band".
func CurrentState(ctx context.Context, t transport.Transport, id int) (State, error) {
	if _, err := ReadHead(ctx, t, id); err != nil {
		return "", err
	}
	complete, err := IsComplete(ctx, t, id)
	if err != nil {
		return "", err
	}
	if complete {
		return StateComplete, nil
	}
	return StateOpen, nil
}

// ListBandIDs returns every band id present under the archive root, in
// ascending order.
func ListBandIDs(ctx context.Context, t transport.Transport) ([]int, error) {
	_, dirs, err := t.ListDir(ctx, "")
	if err != nil {
		return nil, err
	}
	var ids []int
	for _, name := range dirs {
		var id int
		if n, err := fmt.Sscanf(name, "b%06d", &id); err != nil || n != 1 {
			continue
		}
		ids = append(ids, id)
	}
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
	return ids, nil
}
