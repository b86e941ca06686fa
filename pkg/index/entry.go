// Package index defines the Entry type stored in a band's index hunks and
// the codec that serializes ordered entry lists, adapted from the
// teacher's JSON-over-compressed-stream pattern used for its own
// metadata snapshots (pkg/metadata/store) but built around Conserve's own
// field set.
package index

// Kind identifies what an Entry's apath names.
type Kind string

const (
	KindFile    Kind = "File"
	KindDir     Kind = "Dir"
	KindSymlink Kind = "Symlink"
)

// Addr is a slice of a block's uncompressed content: Length bytes
// starting at Start. An entry's full content is the concatenation of its
// Addrs, in order.
type Addr struct {
	Hash   string `json:"hash"`
	Start  uint64 `json:"start"`
	Length uint64 `json:"length"`
}

// Entry describes one path in a backed-up tree.
type Entry struct {
	Apath      string `json:"apath"`
	Kind       Kind   `json:"kind"`
	Mtime      int64  `json:"mtime"`
	MtimeNanos uint32 `json:"mtime_nanos,omitempty"`
	Size       uint64 `json:"size,omitempty"`
	Target     string `json:"target,omitempty"`
	Addrs      []Addr `json:"addrs,omitempty"`
	UnixMode   *uint32 `json:"unix_mode,omitempty"`
	Owner      string  `json:"owner,omitempty"`
	Group      string  `json:"group,omitempty"`
}

// TotalSize returns the sum of an entry's address lengths, which for a
// correctly formed file entry equals Size.
func (e *Entry) TotalSize() uint64 {
	var n uint64
	for _, a := range e.Addrs {
		n += a.Length
	}
	return n
}
