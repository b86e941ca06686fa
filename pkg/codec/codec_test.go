package codec_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/marmos91/conserve/pkg/codec"
	_ "github.com/marmos91/conserve/pkg/codec/snappy"
	_ "github.com/marmos91/conserve/pkg/codec/zstd"
)

func TestByNameRoundTrip(t *testing.T) {
	for _, name := range []codec.Name{codec.Zstd, codec.Snappy} {
		t.Run(string(name), func(t *testing.T) {
			c, ok := codec.ByName(name)
			if !ok {
				t.Fatalf("codec %q not registered", name)
			}
			src := bytes.Repeat([]byte("conserve archive block payload "), 1000)

			compressed, err := c.Compress(nil, src)
			if err != nil {
				t.Fatalf("Compress: %v", err)
			}
			if len(compressed) >= len(src) {
				t.Errorf("expected compression to shrink repetitive input")
			}

			decompressed, err := c.Decompress(nil, compressed)
			if err != nil {
				t.Fatalf("Decompress: %v", err)
			}
			if !bytes.Equal(decompressed, src) {
				t.Fatalf("round trip mismatch")
			}
		})
	}
}

func TestStreamingRoundTrip(t *testing.T) {
	c, ok := codec.ByName(codec.Zstd)
	if !ok {
		t.Fatal("zstd not registered")
	}
	src := []byte("streamed hunk payload")

	var buf bytes.Buffer
	w := c.NewWriter(&buf)
	if _, err := w.Write(src); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r, err := c.NewReader(&buf)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer r.Close()

	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, src) {
		t.Fatalf("streaming round trip mismatch: got %q want %q", got, src)
	}
}

func TestByNameUnknown(t *testing.T) {
	if _, ok := codec.ByName("bogus"); ok {
		t.Fatal("expected unknown codec name to fail")
	}
}
