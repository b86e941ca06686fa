package archive_test

import (
	"context"
	"testing"

	"github.com/marmos91/conserve/pkg/archive"
	"github.com/marmos91/conserve/pkg/band"
	"github.com/marmos91/conserve/pkg/conserveerr"
	"github.com/marmos91/conserve/pkg/transport/local"
)

func newTestArchive(t *testing.T) (*archive.Archive, *local.Transport) {
	t.Helper()
	tr, err := local.New(t.TempDir())
	if err != nil {
		t.Fatalf("local.New: %v", err)
	}
	a, err := archive.Init(context.Background(), tr)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	return a, tr
}

func TestInitThenOpen(t *testing.T) {
	ctx := context.Background()
	a, tr := newTestArchive(t)
	if a.Header.ArchiveID == "" {
		t.Fatal("expected a non-empty archive id")
	}

	opened, err := archive.Open(ctx, tr)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if opened.Header.ArchiveID != a.Header.ArchiveID {
		t.Errorf("got archive id %q, want %q", opened.Header.ArchiveID, a.Header.ArchiveID)
	}
}

func TestInitRefusesExistingArchive(t *testing.T) {
	ctx := context.Background()
	_, tr := newTestArchive(t)

	_, err := archive.Init(ctx, tr)
	if conserveerr.KindOf(err) != conserveerr.KindAlreadyExists {
		t.Fatalf("expected KindAlreadyExists, got %v", err)
	}
}

func TestOpenMissingArchive(t *testing.T) {
	ctx := context.Background()
	tr, err := local.New(t.TempDir())
	if err != nil {
		t.Fatalf("local.New: %v", err)
	}
	_, err = archive.Open(ctx, tr)
	if conserveerr.KindOf(err) != conserveerr.KindNotFound {
		t.Fatalf("expected KindNotFound, got %v", err)
	}
}

func TestNextBandIDIncrements(t *testing.T) {
	ctx := context.Background()
	a, tr := newTestArchive(t)

	id, err := a.NextBandID(ctx)
	if err != nil {
		t.Fatalf("NextBandID: %v", err)
	}
	if id != 0 {
		t.Fatalf("expected first band id 0, got %d", id)
	}

	if _, err := band.WriteHead(ctx, tr, 0, "h"); err != nil {
		t.Fatalf("WriteHead: %v", err)
	}

	id, err = a.NextBandID(ctx)
	if err != nil {
		t.Fatalf("NextBandID: %v", err)
	}
	if id != 1 {
		t.Fatalf("expected next band id 1, got %d", id)
	}
}

func TestGCLockMutualExclusion(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestArchive(t)

	if err := a.TryLockGC(ctx); err != nil {
		t.Fatalf("first TryLockGC: %v", err)
	}

	err := a.TryLockGC(ctx)
	if conserveerr.KindOf(err) != conserveerr.KindLockHeld {
		t.Fatalf("expected KindLockHeld, got %v", err)
	}

	locked, err := a.IsGCLocked(ctx)
	if err != nil {
		t.Fatalf("IsGCLocked: %v", err)
	}
	if !locked {
		t.Fatal("expected lock to be held")
	}

	if err := a.UnlockGC(ctx); err != nil {
		t.Fatalf("UnlockGC: %v", err)
	}
	if err := a.TryLockGC(ctx); err != nil {
		t.Fatalf("TryLockGC after unlock: %v", err)
	}
}
