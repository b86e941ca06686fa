package backup_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/marmos91/conserve/pkg/archive"
	"github.com/marmos91/conserve/pkg/backup"
	"github.com/marmos91/conserve/pkg/blockdir"
	"github.com/marmos91/conserve/pkg/stitch"
	"github.com/marmos91/conserve/pkg/transport/local"

	zstdcodec "github.com/marmos91/conserve/pkg/codec/zstd"
)

func newTestEnv(t *testing.T) (*archive.Archive, *blockdir.Dir, string) {
	t.Helper()
	ctx := context.Background()
	tr, err := local.New(t.TempDir())
	if err != nil {
		t.Fatalf("local.New: %v", err)
	}
	a, err := archive.Init(ctx, tr)
	if err != nil {
		t.Fatalf("archive.Init: %v", err)
	}
	bd, err := blockdir.New(tr, blockdir.DefaultOptions(zstdcodec.New()))
	if err != nil {
		t.Fatalf("blockdir.New: %v", err)
	}
	t.Cleanup(bd.Close)

	src := t.TempDir()
	return a, bd, src
}

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestBackupSimpleTree(t *testing.T) {
	ctx := context.Background()
	a, bd, src := newTestEnv(t)
	c := zstdcodec.New()

	writeFile(t, src, "foo", "abc")
	writeFile(t, src, "bar/baz", "nested")

	summary, err := backup.Run(ctx, a, c, bd, src, backup.DefaultOptions())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.HasFailures() {
		t.Fatalf("unexpected failures: %v", summary.EntriesFailed)
	}
	if summary.BandID != 0 {
		t.Fatalf("expected band 0, got %d", summary.BandID)
	}

	st := stitch.New(a.Transport(), c)
	entries, err := st.ListEntries(ctx, 0)
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}

	var sawFoo, sawBar, sawBaz bool
	for _, e := range entries {
		switch e.Apath {
		case "/foo":
			sawFoo = true
		case "/bar":
			sawBar = true
		case "/bar/baz":
			sawBaz = true
		}
	}
	if !sawFoo || !sawBar || !sawBaz {
		t.Fatalf("missing expected entries, got %+v", entries)
	}
}

func TestBackupIncrementalReusesBlocks(t *testing.T) {
	ctx := context.Background()
	a, bd, src := newTestEnv(t)
	c := zstdcodec.New()

	writeFile(t, src, "foo", "unchanged content")

	first, err := backup.Run(ctx, a, c, bd, src, backup.DefaultOptions())
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if first.BlocksWritten == 0 {
		t.Fatal("expected first backup to write at least one block")
	}

	// Reset mtime is unnecessary: the file was not modified, so the
	// incremental fast path should reuse its recorded addresses without
	// rereading the file.
	second, err := backup.Run(ctx, a, c, bd, src, backup.DefaultOptions())
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if second.BandID != 1 {
		t.Fatalf("expected band 1, got %d", second.BandID)
	}
	if second.BlocksWritten != 0 {
		t.Errorf("expected zero new blocks on unmodified rerun, got %d", second.BlocksWritten)
	}
}

func TestBackupDedupAcrossFiles(t *testing.T) {
	ctx := context.Background()
	a, bd, src := newTestEnv(t)
	c := zstdcodec.New()

	writeFile(t, src, "a", "identical payload")
	writeFile(t, src, "b", "identical payload")

	summary, err := backup.Run(ctx, a, c, bd, src, backup.DefaultOptions())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.BlocksWritten != 1 {
		t.Errorf("expected exactly 1 block written for identical content, got %d", summary.BlocksWritten)
	}
	if summary.BlocksDeduped != 1 {
		t.Errorf("expected exactly 1 dedup hit, got %d", summary.BlocksDeduped)
	}
}

func TestBackupRefusesWhileGCLocked(t *testing.T) {
	ctx := context.Background()
	a, bd, src := newTestEnv(t)
	c := zstdcodec.New()
	writeFile(t, src, "foo", "abc")

	if err := a.TryLockGC(ctx); err != nil {
		t.Fatalf("TryLockGC: %v", err)
	}

	_, err := backup.Run(ctx, a, c, bd, src, backup.DefaultOptions())
	if err == nil {
		t.Fatal("expected backup to refuse to run while GC lock is held")
	}
}
