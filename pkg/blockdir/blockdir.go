// Package blockdir implements the content-addressed block store beneath an
// archive root: write-once blocks keyed by their BLAKE2b-256 hash, shared
// across every band. The storage discipline (hash, compress, write to a
// temp name, rename into place) is adapted from the teacher's block-level
// content-addressed dedup path in pkg/payload/offloader, generalized from
// its fixed 4MB block/SHA-256 scheme to Conserve's chunk size and codec
// choice.
package blockdir

import (
	"context"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/marmos91/conserve/pkg/codec"
	"github.com/marmos91/conserve/pkg/conserveerr"
	"github.com/marmos91/conserve/pkg/transport"
)

// DefaultChunkSize is the target size Conserve splits file content into
// before hashing and storing each piece as a block.
const DefaultChunkSize = 1 << 20 // 1 MiB

// shardLen is the number of leading hex characters used as the first path
// component under "d/", keeping any one directory's listing manageable.
const shardLen = 2

// Hash is a block's content address.
type Hash [blake2b.Size256]byte

// String renders the hash as lowercase hex, the form used in block paths.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Sum computes the content address of data.
func Sum(data []byte) Hash {
	return blake2b.Sum256(data)
}

// ParseHash decodes a hex-encoded hash as produced by Hash.String.
func ParseHash(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(h) {
		return Hash{}, conserveerr.New("blockdir.ParseHash", s, conserveerr.KindFormatUnsupported, conserveerr.ErrFormatUnsupported)
	}
	copy(h[:], b)
	return h, nil
}

func pathFor(h Hash) string {
	s := h.String()
	return fmt.Sprintf("d/%s/%s", s[:shardLen], s)
}

// Options configures a Dir.
type Options struct {
	Codec codec.Codec
	// PresenceCacheSize bounds the number of recently confirmed block
	// hashes kept in memory to skip a round trip on repeated Contains
	// checks during a single backup run.
	PresenceCacheSize int64
	// BlockCacheBytes bounds the memory used by the decompressed-block
	// LRU that Read/ReadRange consult before going to the transport.
	BlockCacheBytes int64
}

// DefaultOptions returns sensible cache sizes for a single backup/restore
// invocation.
func DefaultOptions(c codec.Codec) Options {
	return Options{
		Codec:             c,
		PresenceCacheSize: 1 << 16,
		BlockCacheBytes:   64 << 20,
	}
}

// Dir is the content-addressed block store rooted at "d/" within an
// archive.
type Dir struct {
	t     transport.Transport
	codec codec.Codec

	presence *ristretto.Cache[string, struct{}]
	blocks   *ristretto.Cache[string, []byte]
}

// New constructs a Dir over t using opts.
func New(t transport.Transport, opts Options) (*Dir, error) {
	presence, err := ristretto.NewCache(&ristretto.Config[string, struct{}]{
		NumCounters: opts.PresenceCacheSize * 10,
		MaxCost:     opts.PresenceCacheSize,
		BufferItems: 64,
	})
	if err != nil {
		return nil, conserveerr.New("blockdir.New", "", conserveerr.KindTransportIO, err)
	}

	blocks, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: 1e6,
		MaxCost:     opts.BlockCacheBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, conserveerr.New("blockdir.New", "", conserveerr.KindTransportIO, err)
	}

	return &Dir{t: t, codec: opts.Codec, presence: presence, blocks: blocks}, nil
}

// Close releases cache resources.
func (d *Dir) Close() {
	d.presence.Close()
	d.blocks.Close()
}

// Store writes data under its content hash if not already present,
// returning the hash and whether a new block was actually written (false
// means a dedup hit). Store is idempotent: concurrent writers racing on
// the same hash both succeed, the loser's write simply finding the path
// already occupied.
func (d *Dir) Store(ctx context.Context, data []byte) (hash Hash, newlyWritten bool, err error) {
	hash = Sum(data)
	path := pathFor(hash)

	if _, ok := d.presence.Get(hash.String()); ok {
		return hash, false, nil
	}

	if _, metaErr := d.t.Metadata(ctx, path); metaErr == nil {
		d.presence.Set(hash.String(), struct{}{}, 1)
		return hash, false, nil
	}

	compressed, err := d.codec.Compress(nil, data)
	if err != nil {
		return Hash{}, false, conserveerr.New("blockdir.Store", path, conserveerr.KindTransportIO, err)
	}

	if err := d.t.WriteFile(ctx, path, compressed, transport.FailIfExists); err != nil {
		if conserveerr.KindOf(err) == conserveerr.KindAlreadyExists {
			d.presence.Set(hash.String(), struct{}{}, 1)
			return hash, false, nil
		}
		return Hash{}, false, err
	}

	d.presence.Set(hash.String(), struct{}{}, 1)
	return hash, true, nil
}

// Read returns the decompressed, hash-verified contents of a block.
func (d *Dir) Read(ctx context.Context, hash Hash) ([]byte, error) {
	if cached, ok := d.blocks.Get(hash.String()); ok {
		return cached, nil
	}

	path := pathFor(hash)
	compressed, err := d.t.Read(ctx, path)
	if err != nil {
		if conserveerr.KindOf(err) == conserveerr.KindNotFound {
			return nil, conserveerr.New("blockdir.Read", path, conserveerr.KindBlockMissing, conserveerr.ErrBlockMissing)
		}
		return nil, err
	}

	data, err := d.codec.Decompress(nil, compressed)
	if err != nil {
		return nil, conserveerr.New("blockdir.Read", path, conserveerr.KindBlockCorrupt, err)
	}

	if Sum(data) != hash {
		return nil, conserveerr.New("blockdir.Read", path, conserveerr.KindBlockCorrupt, conserveerr.ErrBlockCorrupt)
	}

	d.blocks.Set(hash.String(), data, int64(len(data)))
	d.presence.Set(hash.String(), struct{}{}, 1)
	return data, nil
}

// ReadRange returns length bytes at offset within the decompressed
// contents of a block, for restoring a partial read or validating a
// range without materializing the whole block where the cache already
// holds it.
func (d *Dir) ReadRange(ctx context.Context, hash Hash, offset, length int64) ([]byte, error) {
	data, err := d.Read(ctx, hash)
	if err != nil {
		return nil, err
	}
	if offset < 0 || length < 0 || offset+length > int64(len(data)) {
		return nil, conserveerr.New("blockdir.ReadRange", pathFor(hash), conserveerr.KindBlockCorrupt, fmt.Errorf("range [%d,%d) out of bounds for block of size %d", offset, offset+length, len(data)))
	}
	return data[offset : offset+length], nil
}

// Contains reports whether a block with the given hash is already stored,
// consulting the presence cache before the transport.
func (d *Dir) Contains(ctx context.Context, hash Hash) (bool, error) {
	if _, ok := d.presence.Get(hash.String()); ok {
		return true, nil
	}
	_, err := d.t.Metadata(ctx, pathFor(hash))
	if err == nil {
		d.presence.Set(hash.String(), struct{}{}, 1)
		return true, nil
	}
	if conserveerr.KindOf(err) == conserveerr.KindNotFound {
		return false, nil
	}
	return false, err
}

// IterBlockHashes calls fn for every block hash currently stored, used by
// the garbage collector to compute the set of unreferenced blocks.
func (d *Dir) IterBlockHashes(ctx context.Context, fn func(Hash) error) error {
	_, shards, err := d.t.ListDir(ctx, "d")
	if err != nil {
		if conserveerr.KindOf(err) == conserveerr.KindNotFound {
			return nil
		}
		return err
	}

	for _, shard := range shards {
		files, _, err := d.t.ListDir(ctx, "d/"+shard)
		if err != nil {
			return err
		}
		for _, name := range files {
			h, err := ParseHash(name)
			if err != nil {
				continue
			}
			if err := fn(h); err != nil {
				return err
			}
		}
	}
	return nil
}

// StoredSize returns the size in bytes a block actually occupies on the
// transport (the compressed, on-disk size), used by GC to report how much
// space a sweep actually reclaims.
func (d *Dir) StoredSize(ctx context.Context, hash Hash) (int64, error) {
	meta, err := d.t.Metadata(ctx, pathFor(hash))
	if err != nil {
		return 0, err
	}
	return meta.Size, nil
}

// Remove deletes a block by hash, used only by GC once it has computed
// the set of blocks no surviving band references.
func (d *Dir) Remove(ctx context.Context, hash Hash) error {
	d.presence.Del(hash.String())
	d.blocks.Del(hash.String())
	return d.t.RemoveFile(ctx, pathFor(hash))
}
