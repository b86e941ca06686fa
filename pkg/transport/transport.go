// Package transport abstracts the object-store operations Conserve needs
// from its backing storage (spec.md §4.1): list/read/write/create-dir/delete
// over a namespace, with atomic whole-file create guaranteed but
// read-after-write consistency and case sensitivity left unspecified.
// Concrete implementations live in pkg/transport/local and pkg/transport/s3,
// wrapped by pkg/transport/retry for transient-failure resilience.
package transport

import (
	"context"
	"io"
	"time"
)

// OverwritePolicy controls what WriteFile does when the destination
// already exists.
type OverwritePolicy int

const (
	// FailIfExists refuses the write, returning a KindAlreadyExists error,
	// if a file is already present at path. This is the policy backup and
	// GC use for band heads, tails, hunks, blocks, and the GC lock. The
	// local transport enforces it atomically with a hard link; the s3
	// transport checks with HeadObject and then writes with an
	// unconditional PutObject, so two writers racing on one key can both
	// succeed, the later object replacing the earlier.
	FailIfExists OverwritePolicy = iota

	// ReplaceAtomically overwrites the destination, but only by way of an
	// atomic rename: readers never observe a partially written file.
	ReplaceAtomically
)

// Metadata describes a stored object without reading its content.
type Metadata struct {
	Size  int64
	Mtime time.Time
}

// Transport is the storage interface every Conserve component above the
// archive root depends on. All methods accept a context carrying an
// optional deadline. The local transport checks the context before each
// operation and fails with a KindCancelled error once it is done; the s3
// transport passes it to the AWS SDK and reports a failed call, an expired
// deadline included, as KindTransportIO. Neither implementation marks an
// error retryable (see pkg/conserveerr), so pkg/transport/retry returns
// their errors on the first attempt.
//
// Implementations must guarantee: a write that returns success is
// atomically visible as a whole file to any subsequent reader. They need
// not guarantee: that a write is visible to a reader that started
// listing/reading before the write completed (read-after-write), nor
// case-sensitive path handling.
type Transport interface {
	// ListDir lists the immediate children of dir, split into file names
	// and subdirectory names. Listings may race with concurrent writers
	// and can include partially-written entries.
	ListDir(ctx context.Context, dir string) (files, subdirs []string, err error)

	// Read returns the full contents of the file at path.
	Read(ctx context.Context, path string) ([]byte, error)

	// ReadRange returns length bytes starting at offset within the file at
	// path. Implementations that cannot do a partial read efficiently may
	// fall back to Read+slice.
	ReadRange(ctx context.Context, path string, offset, length int64) ([]byte, error)

	// CreateDir creates dir and any missing parents. It is not an error
	// for dir to already exist.
	CreateDir(ctx context.Context, dir string) error

	// WriteFile stores data at path according to policy. The local
	// transport writes a temporary file and then renames it into place
	// (ReplaceAtomically) or hard-links it there (FailIfExists); the s3
	// transport writes the whole object with a single PutObject.
	WriteFile(ctx context.Context, path string, data []byte, policy OverwritePolicy) error

	// RemoveFile deletes the file at path. Deleting a file that does not
	// exist is not an error.
	RemoveFile(ctx context.Context, path string) error

	// RemoveDir recursively deletes dir and its contents.
	RemoveDir(ctx context.Context, dir string) error

	// Metadata returns size/mtime for the file at path.
	Metadata(ctx context.Context, path string) (Metadata, error)
}

// Writer is an optional interface for transports that can stream a write
// instead of buffering the full payload. No transport in this module
// implements it; blockdir stores every block through WriteFile.
type Writer interface {
	WriteStream(ctx context.Context, path string, r io.Reader, policy OverwritePolicy) error
}
