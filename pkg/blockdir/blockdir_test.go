package blockdir_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/marmos91/conserve/pkg/blockdir"
	"github.com/marmos91/conserve/pkg/conserveerr"
	"github.com/marmos91/conserve/pkg/transport/local"

	zstdcodec "github.com/marmos91/conserve/pkg/codec/zstd"
)

func newTestDir(t *testing.T) *blockdir.Dir {
	t.Helper()
	tr, err := local.New(t.TempDir())
	if err != nil {
		t.Fatalf("local.New: %v", err)
	}
	d, err := blockdir.New(tr, blockdir.DefaultOptions(zstdcodec.New()))
	if err != nil {
		t.Fatalf("blockdir.New: %v", err)
	}
	t.Cleanup(d.Close)
	return d
}

func TestStoreAndRead(t *testing.T) {
	ctx := context.Background()
	d := newTestDir(t)

	data := []byte("archive block contents")
	hash, newlyWritten, err := d.Store(ctx, data)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if !newlyWritten {
		t.Error("expected first store to be newly written")
	}

	got, err := d.Read(ctx, hash)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("Read returned %q, want %q", got, data)
	}
}

func TestStoreDedup(t *testing.T) {
	ctx := context.Background()
	d := newTestDir(t)

	data := []byte("duplicated content")
	hash1, new1, err := d.Store(ctx, data)
	if err != nil {
		t.Fatalf("first Store: %v", err)
	}
	if !new1 {
		t.Fatal("expected first store to be newly written")
	}

	hash2, new2, err := d.Store(ctx, data)
	if err != nil {
		t.Fatalf("second Store: %v", err)
	}
	if new2 {
		t.Error("expected second store of identical content to be a dedup hit")
	}
	if hash1 != hash2 {
		t.Errorf("expected identical hash, got %v and %v", hash1, hash2)
	}
}

func TestContains(t *testing.T) {
	ctx := context.Background()
	d := newTestDir(t)

	data := []byte("probed content")
	hash := blockdir.Sum(data)

	present, err := d.Contains(ctx, hash)
	if err != nil {
		t.Fatalf("Contains: %v", err)
	}
	if present {
		t.Error("expected block to be absent before storing")
	}

	if _, _, err := d.Store(ctx, data); err != nil {
		t.Fatalf("Store: %v", err)
	}

	present, err = d.Contains(ctx, hash)
	if err != nil {
		t.Fatalf("Contains: %v", err)
	}
	if !present {
		t.Error("expected block to be present after storing")
	}
}

func TestReadMissingBlock(t *testing.T) {
	ctx := context.Background()
	d := newTestDir(t)

	_, err := d.Read(ctx, blockdir.Sum([]byte("never stored")))
	if conserveerr.KindOf(err) != conserveerr.KindBlockMissing {
		t.Fatalf("expected KindBlockMissing, got %v", err)
	}
}

func TestReadRange(t *testing.T) {
	ctx := context.Background()
	d := newTestDir(t)

	data := []byte("0123456789abcdef")
	hash, _, err := d.Store(ctx, data)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}

	got, err := d.ReadRange(ctx, hash, 4, 6)
	if err != nil {
		t.Fatalf("ReadRange: %v", err)
	}
	if string(got) != "456789" {
		t.Errorf("got %q, want %q", got, "456789")
	}
}

func TestIterBlockHashesAndRemove(t *testing.T) {
	ctx := context.Background()
	d := newTestDir(t)

	h1, _, err := d.Store(ctx, []byte("one"))
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	h2, _, err := d.Store(ctx, []byte("two"))
	if err != nil {
		t.Fatalf("Store: %v", err)
	}

	seen := map[blockdir.Hash]bool{}
	if err := d.IterBlockHashes(ctx, func(h blockdir.Hash) error {
		seen[h] = true
		return nil
	}); err != nil {
		t.Fatalf("IterBlockHashes: %v", err)
	}
	if !seen[h1] || !seen[h2] {
		t.Fatalf("expected both blocks in iteration, got %v", seen)
	}

	if err := d.Remove(ctx, h1); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if present, err := d.Contains(ctx, h1); err != nil || present {
		t.Fatalf("expected h1 gone after Remove, present=%v err=%v", present, err)
	}
}
