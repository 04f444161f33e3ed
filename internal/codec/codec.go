// Package codec implements the compression codecs used by compressed handles.
package codec

import (
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/jittakal/kafrotator/pkg/codec"
)

// Ensure implementations satisfy interfaces at compile time.
var (
	_ codec.Codec = None{}
	_ codec.Codec = Gzip{}
	_ codec.Codec = Zstd{}
	_ codec.Codec = Snappy{}
	_ codec.Codec = LZ4{}
)

// New returns the codec registered under name.
func New(name string) (codec.Codec, error) {
	switch strings.ToLower(name) {
	case "", "none", "uncompressed":
		return None{}, nil
	case "gzip":
		return Gzip{}, nil
	case "zstd":
		return Zstd{}, nil
	case "snappy":
		return Snappy{}, nil
	case "lz4":
		return LZ4{}, nil
	default:
		return nil, fmt.Errorf("unsupported codec: %s", name)
	}
}

// Supported returns the names accepted by New.
func Supported() []string {
	return []string{"none", "gzip", "zstd", "snappy", "lz4"}
}

// None passes bytes through unchanged.
type None struct{}

func (None) Name() string          { return "none" }
func (None) FileExtension() string { return "" }

func (None) NewWriter(w io.Writer) (codec.Writer, error) {
	return passthroughWriter{w}, nil
}

func (None) NewReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(r), nil
}

type passthroughWriter struct {
	io.Writer
}

func (passthroughWriter) Flush() error { return nil }
func (passthroughWriter) Close() error { return nil }

// Gzip compresses with klauspost gzip.
type Gzip struct{}

func (Gzip) Name() string          { return "gzip" }
func (Gzip) FileExtension() string { return ".gz" }

func (Gzip) NewWriter(w io.Writer) (codec.Writer, error) {
	return gzip.NewWriter(w), nil
}

func (Gzip) NewReader(r io.Reader) (io.ReadCloser, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, err
	}
	return zr, nil
}

// Zstd compresses with Zstandard.
type Zstd struct{}

func (Zstd) Name() string          { return "zstd" }
func (Zstd) FileExtension() string { return ".zst" }

func (Zstd) NewWriter(w io.Writer) (codec.Writer, error) {
	enc, err := zstd.NewWriter(w)
	if err != nil {
		return nil, err
	}
	return enc, nil
}

func (Zstd) NewReader(r io.Reader) (io.ReadCloser, error) {
	d, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	return d.IOReadCloser(), nil
}

// Snappy compresses with the framed snappy format.
type Snappy struct{}

func (Snappy) Name() string          { return "snappy" }
func (Snappy) FileExtension() string { return ".sz" }

func (Snappy) NewWriter(w io.Writer) (codec.Writer, error) {
	return snappy.NewBufferedWriter(w), nil
}

func (Snappy) NewReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(snappy.NewReader(r)), nil
}

// LZ4 compresses with the LZ4 frame format.
type LZ4 struct{}

func (LZ4) Name() string          { return "lz4" }
func (LZ4) FileExtension() string { return ".lz4" }

func (LZ4) NewWriter(w io.Writer) (codec.Writer, error) {
	return lz4.NewWriter(w), nil
}

func (LZ4) NewReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(lz4.NewReader(r)), nil
}
