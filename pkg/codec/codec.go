// Package codec abstracts the compression primitive used for block
// payloads and index hunks (spec.md §1, §4.2, §4.3). Implementations wrap
// github.com/klauspost/compress, already part of the teacher's dependency
// graph, the way restic uses the same module for its pack format.
package codec

import "io"

// Name identifies a codec so it can be selected by name (see ByName). The
// archive header does not record it: an archive is opened with whichever
// codec the configuration names.
type Name string

const (
	Zstd   Name = "zstd"
	Snappy Name = "snappy"
)

// Codec compresses and decompresses opaque byte payloads. Implementations
// must be safe for concurrent use.
type Codec interface {
	Name() Name

	// Compress appends the compressed form of src to dst and returns the
	// result.
	Compress(dst, src []byte) ([]byte, error)

	// Decompress appends the decompressed form of src to dst and returns
	// the result. The caller is expected to know (or bound) the
	// decompressed size; implementations may use a size hint for
	// pre-allocation but must not rely on one being accurate.
	Decompress(dst, src []byte) ([]byte, error)

	// NewWriter wraps w so that data written to the returned writer is
	// compressed. Callers must Close the writer to flush trailing data.
	NewWriter(w io.Writer) io.WriteCloser

	// NewReader wraps r so that data read from the returned reader is
	// decompressed.
	NewReader(r io.Reader) (io.ReadCloser, error)
}

// registry is populated by each codec implementation's init().
var registry = map[Name]func() Codec{}

// Register makes a codec constructor available to ByName. Called from the
// init() of each concrete codec package.
func Register(name Name, ctor func() Codec) {
	registry[name] = ctor
}

// ByName returns a fresh Codec instance for name, or false if unknown.
func ByName(name Name) (Codec, bool) {
	ctor, ok := registry[name]
	if !ok {
		return nil, false
	}
	return ctor(), true
}
