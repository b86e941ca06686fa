// Package snappy wraps github.com/klauspost/compress/s2, a Snappy-compatible
// codec from the same module the teacher already depends on, as the
// alternate Conserve block/hunk codec named in spec.md §1.
package snappy

import (
	"io"

	"github.com/klauspost/compress/s2"

	"github.com/marmos91/conserve/pkg/codec"
)

func init() {
	codec.Register(codec.Snappy, New)
}

type codecImpl struct{}

// New returns a Snappy-compatible Codec backed by s2.
func New() codec.Codec {
	return codecImpl{}
}

func (codecImpl) Name() codec.Name { return codec.Snappy }

func (codecImpl) Compress(dst, src []byte) ([]byte, error) {
	return s2.EncodeSnappy(dst, src), nil
}

func (codecImpl) Decompress(dst, src []byte) ([]byte, error) {
	decoded, err := s2.Decode(dst, src)
	if err != nil {
		return nil, err
	}
	return decoded, nil
}

func (codecImpl) NewWriter(w io.Writer) io.WriteCloser {
	return s2.NewWriter(w, s2.WriterSnappyCompat())
}

func (codecImpl) NewReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(s2.NewReader(r)), nil
}
