package gc_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/marmos91/conserve/pkg/archive"
	"github.com/marmos91/conserve/pkg/backup"
	"github.com/marmos91/conserve/pkg/band"
	"github.com/marmos91/conserve/pkg/blockdir"
	"github.com/marmos91/conserve/pkg/gc"
	"github.com/marmos91/conserve/pkg/transport/local"

	zstdcodec "github.com/marmos91/conserve/pkg/codec/zstd"
)

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestGCReclaimsOrphanedBlocksAfterOverwrite(t *testing.T) {
	ctx := context.Background()
	tr, err := local.New(t.TempDir())
	if err != nil {
		t.Fatalf("local.New: %v", err)
	}
	a, err := archive.Init(ctx, tr)
	if err != nil {
		t.Fatalf("archive.Init: %v", err)
	}
	c := zstdcodec.New()
	bd, err := blockdir.New(tr, blockdir.DefaultOptions(c))
	if err != nil {
		t.Fatalf("blockdir.New: %v", err)
	}
	t.Cleanup(bd.Close)

	src := t.TempDir()
	writeFile(t, src, "foo", "version one content")
	if _, err := backup.Run(ctx, a, c, bd, src, backup.DefaultOptions()); err != nil {
		t.Fatalf("first backup: %v", err)
	}

	writeFile(t, src, "foo", "version two content, totally different")
	if _, err := backup.Run(ctx, a, c, bd, src, backup.DefaultOptions()); err != nil {
		t.Fatalf("second backup: %v", err)
	}

	var before int
	if err := bd.IterBlockHashes(ctx, func(blockdir.Hash) error {
		before++
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if before < 2 {
		t.Fatalf("expected at least 2 blocks before GC (old + new content), got %d", before)
	}

	// The old content's block stays referenced while band 0 survives, so
	// band 0 is deleted to orphan it.
	summary, err := gc.Run(ctx, a, c, bd, gc.Options{DeleteBands: []int{0}})
	if err != nil {
		t.Fatalf("gc.Run: %v", err)
	}
	if summary.BlocksDeleted == 0 {
		t.Error("expected at least one orphaned block to be reclaimed")
	}

	locked, err := a.IsGCLocked(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if locked {
		t.Error("expected GC lock to be released after Run")
	}
}

func TestGCRefusesOverIncompleteNewestBand(t *testing.T) {
	ctx := context.Background()
	tr, err := local.New(t.TempDir())
	if err != nil {
		t.Fatalf("local.New: %v", err)
	}
	a, err := archive.Init(ctx, tr)
	if err != nil {
		t.Fatalf("archive.Init: %v", err)
	}
	c := zstdcodec.New()
	bd, err := blockdir.New(tr, blockdir.DefaultOptions(c))
	if err != nil {
		t.Fatalf("blockdir.New: %v", err)
	}
	t.Cleanup(bd.Close)

	w, err := band.Create(ctx, tr, c, 0, "h")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	w.Abandon()

	_, err = gc.Run(ctx, a, c, bd, gc.Options{})
	if err == nil {
		t.Fatal("expected GC to refuse over an incomplete newest band")
	}
}

func TestGCDeletesNamedBand(t *testing.T) {
	ctx := context.Background()
	tr, err := local.New(t.TempDir())
	if err != nil {
		t.Fatalf("local.New: %v", err)
	}
	a, err := archive.Init(ctx, tr)
	if err != nil {
		t.Fatalf("archive.Init: %v", err)
	}
	c := zstdcodec.New()
	bd, err := blockdir.New(tr, blockdir.DefaultOptions(c))
	if err != nil {
		t.Fatalf("blockdir.New: %v", err)
	}
	t.Cleanup(bd.Close)

	src := t.TempDir()
	writeFile(t, src, "foo", "only version")
	if _, err := backup.Run(ctx, a, c, bd, src, backup.DefaultOptions()); err != nil {
		t.Fatalf("backup: %v", err)
	}

	summary, err := gc.Run(ctx, a, c, bd, gc.Options{DeleteBands: []int{0}})
	if err != nil {
		t.Fatalf("gc.Run: %v", err)
	}
	if summary.BandsDeleted != 1 {
		t.Errorf("expected 1 band deleted, got %d", summary.BandsDeleted)
	}
	if summary.BlocksDeleted == 0 {
		t.Error("expected the only band's blocks to become unreferenced and be swept")
	}

	ids, err := band.ListBandIDs(ctx, tr)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 0 {
		t.Errorf("expected no bands remaining, got %v", ids)
	}
}
