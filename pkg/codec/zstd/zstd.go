// Package zstd wraps github.com/klauspost/compress/zstd as the default
// Conserve block/hunk codec, the library the teacher already vendors as an
// indirect dependency of its own payload pipeline.
package zstd

import (
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/marmos91/conserve/pkg/codec"
)

func init() {
	codec.Register(codec.Zstd, New)
}

type codecImpl struct {
	encOnce sync.Once
	enc     *zstd.Encoder
	encErr  error

	decOnce sync.Once
	dec     *zstd.Decoder
	decErr  error
}

// New returns a zstd Codec. Encoders/decoders are created lazily and
// reused across calls on the same instance.
func New() codec.Codec {
	return &codecImpl{}
}

func (c *codecImpl) Name() codec.Name { return codec.Zstd }

func (c *codecImpl) encoder() (*zstd.Encoder, error) {
	c.encOnce.Do(func() {
		c.enc, c.encErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	})
	return c.enc, c.encErr
}

func (c *codecImpl) decoder() (*zstd.Decoder, error) {
	c.decOnce.Do(func() {
		c.dec, c.decErr = zstd.NewReader(nil)
	})
	return c.dec, c.decErr
}

func (c *codecImpl) Compress(dst, src []byte) ([]byte, error) {
	enc, err := c.encoder()
	if err != nil {
		return nil, err
	}
	return enc.EncodeAll(src, dst), nil
}

func (c *codecImpl) Decompress(dst, src []byte) ([]byte, error) {
	dec, err := c.decoder()
	if err != nil {
		return nil, err
	}
	return dec.DecodeAll(src, dst)
}

func (c *codecImpl) NewWriter(w io.Writer) io.WriteCloser {
	enc, err := zstd.NewWriter(w)
	if err != nil {
		return errWriter{err}
	}
	return enc
}

func (c *codecImpl) NewReader(r io.Reader) (io.ReadCloser, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	return dec.IOReadCloser(), nil
}

// errWriter surfaces a construction error on the first Write/Close call
// instead of panicking, keeping NewWriter infallible at the call site.
type errWriter struct{ err error }

func (e errWriter) Write([]byte) (int, error) { return 0, e.err }
func (e errWriter) Close() error              { return e.err }
