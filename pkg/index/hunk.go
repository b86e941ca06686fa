package index

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/marmos91/conserve/pkg/apath"
	"github.com/marmos91/conserve/pkg/codec"
	"github.com/marmos91/conserve/pkg/conserveerr"
	"github.com/marmos91/conserve/pkg/transport"
)

// MaxEntriesPerHunk bounds how many entries a writer accumulates before
// finalizing a hunk, trading restart granularity against per-hunk
// overhead; nothing in this package depends on the exact value.
const MaxEntriesPerHunk = 1000

// HunkPath returns the archive-relative path of hunk id within band dir.
func HunkPath(bandDir string, id int) string {
	return fmt.Sprintf("%s/i/%05d/%09d", bandDir, id/100000, id)
}

// EncodeHunk serializes entries (already known to be in strict apath
// order) as compressed JSON.
func EncodeHunk(c codec.Codec, entries []Entry) ([]byte, error) {
	raw, err := json.Marshal(entries)
	if err != nil {
		return nil, conserveerr.New("index.EncodeHunk", "", conserveerr.KindIndexCorrupt, err)
	}
	compressed, err := c.Compress(nil, raw)
	if err != nil {
		return nil, conserveerr.New("index.EncodeHunk", "", conserveerr.KindIndexCorrupt, err)
	}
	return compressed, nil
}

// DecodeHunk deserializes a hunk's bytes into an entry list and verifies
// apath ordering has not regressed; it does not check cross-hunk
// continuity, which is the caller's job.
func DecodeHunk(c codec.Codec, compressed []byte) ([]Entry, error) {
	raw, err := c.Decompress(nil, compressed)
	if err != nil {
		return nil, conserveerr.New("index.DecodeHunk", "", conserveerr.KindIndexCorrupt, err)
	}

	var entries []Entry
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&entries); err != nil {
		return nil, conserveerr.New("index.DecodeHunk", "", conserveerr.KindIndexCorrupt, err)
	}

	for i := 1; i < len(entries); i++ {
		if !apath.Less(entries[i-1].Apath, entries[i].Apath) {
			return nil, conserveerr.New("index.DecodeHunk", entries[i].Apath, conserveerr.KindApathOrderViolation, conserveerr.ErrApathOrderViolation)
		}
	}

	return entries, nil
}

// WriteHunk encodes and atomically writes entries as hunk id under
// bandDir. Callers must ensure every block address in entries is already
// durably visible in the blockdir before calling WriteHunk (the
// block-rename-before-hunk-rename ordering).
func WriteHunk(ctx context.Context, t transport.Transport, c codec.Codec, bandDir string, id int, entries []Entry) error {
	compressed, err := EncodeHunk(c, entries)
	if err != nil {
		return err
	}
	path := HunkPath(bandDir, id)
	return t.WriteFile(ctx, path, compressed, transport.FailIfExists)
}

// ReadHunk reads and decodes hunk id under bandDir.
func ReadHunk(ctx context.Context, t transport.Transport, c codec.Codec, bandDir string, id int) ([]Entry, error) {
	path := HunkPath(bandDir, id)
	compressed, err := t.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	return DecodeHunk(c, compressed)
}

// Buffer accumulates entries for the hunk currently being written, and
// knows how to finalize into an atomically written hunk file.
type Buffer struct {
	entries []Entry
}

// Add appends an entry to the in-progress hunk, returning true if the
// hunk has reached MaxEntriesPerHunk and should be finalized.
func (b *Buffer) Add(e Entry) (full bool) {
	b.entries = append(b.entries, e)
	return len(b.entries) >= MaxEntriesPerHunk
}

// Len reports how many entries are currently buffered.
func (b *Buffer) Len() int { return len(b.entries) }

// Flush writes the buffered entries as hunk id and resets the buffer. A
// call with no buffered entries is a no-op that returns false.
func (b *Buffer) Flush(ctx context.Context, t transport.Transport, c codec.Codec, bandDir string, id int) (wrote bool, err error) {
	if len(b.entries) == 0 {
		return false, nil
	}
	if err := WriteHunk(ctx, t, c, bandDir, id, b.entries); err != nil {
		return false, err
	}
	b.entries = b.entries[:0]
	return true, nil
}
