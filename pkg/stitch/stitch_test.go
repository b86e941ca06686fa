package stitch_test

import (
	"context"
	"testing"

	"github.com/marmos91/conserve/pkg/band"
	"github.com/marmos91/conserve/pkg/index"
	"github.com/marmos91/conserve/pkg/stitch"
	"github.com/marmos91/conserve/pkg/transport/local"

	zstdcodec "github.com/marmos91/conserve/pkg/codec/zstd"
)

func TestStitchCompleteBandAlone(t *testing.T) {
	ctx := context.Background()
	tr, err := local.New(t.TempDir())
	if err != nil {
		t.Fatalf("local.New: %v", err)
	}
	c := zstdcodec.New()

	w, err := band.Create(ctx, tr, c, 0, "h")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	for _, p := range []string{"/bar", "/foo"} {
		if err := w.PushEntry(ctx, index.Entry{Apath: p, Kind: index.KindFile, Mtime: 1}); err != nil {
			t.Fatalf("PushEntry: %v", err)
		}
	}
	if _, err := w.Finish(ctx); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	s := stitch.New(tr, c)
	entries, err := s.ListEntries(ctx, 0)
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}
	if len(entries) != 2 || entries[0].Apath != "/bar" || entries[1].Apath != "/foo" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestStitchIncompleteBandOverAncestor(t *testing.T) {
	ctx := context.Background()
	tr, err := local.New(t.TempDir())
	if err != nil {
		t.Fatalf("local.New: %v", err)
	}
	c := zstdcodec.New()

	base, err := band.Create(ctx, tr, c, 0, "h")
	if err != nil {
		t.Fatalf("Create band 0: %v", err)
	}
	for _, p := range []string{"/bar", "/baz", "/foo"} {
		if err := base.PushEntry(ctx, index.Entry{Apath: p, Kind: index.KindFile, Mtime: 1}); err != nil {
			t.Fatalf("PushEntry: %v", err)
		}
	}
	if _, err := base.Finish(ctx); err != nil {
		t.Fatalf("Finish band 0: %v", err)
	}

	incomplete, err := band.Create(ctx, tr, c, 1, "h")
	if err != nil {
		t.Fatalf("Create band 1: %v", err)
	}
	// Abandon discards entries not yet flushed to a hunk, so the band's one
	// finalized hunk is written directly, as an interrupted backup leaves it.
	if err := index.WriteHunk(ctx, tr, c, band.Dir(1), 0, []index.Entry{{Apath: "/bar", Kind: index.KindFile, Mtime: 2}}); err != nil {
		t.Fatalf("WriteHunk: %v", err)
	}
	incomplete.Abandon()

	s := stitch.New(tr, c)
	entries, err := s.ListEntries(ctx, 1)
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}

	want := []string{"/bar", "/baz", "/foo"}
	if len(entries) != len(want) {
		t.Fatalf("got %v entries, want apaths %v", entries, want)
	}
	for i, p := range want {
		if entries[i].Apath != p {
			t.Fatalf("entry %d: got %q, want %q (full: %+v)", i, entries[i].Apath, p, entries)
		}
	}
	if entries[0].Mtime != 2 {
		t.Errorf("expected the incomplete band's own entry to win for /bar, got mtime %d", entries[0].Mtime)
	}
}

func TestStitchUnknownBand(t *testing.T) {
	ctx := context.Background()
	tr, err := local.New(t.TempDir())
	if err != nil {
		t.Fatalf("local.New: %v", err)
	}
	c := zstdcodec.New()

	s := stitch.New(tr, c)
	if _, err := s.ListEntries(ctx, 0); err == nil {
		t.Fatal("expected an error for a nonexistent band")
	}
}
