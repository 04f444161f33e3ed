// Package codec defines the compression contract used by compressed handles.
package codec

import "io"

// Writer is a compression stream. Flush must push every byte accepted so
// far to the underlying writer.
type Writer interface {
	io.WriteCloser
	Flush() error
}

// Codec creates compression streams over a destination.
type Codec interface {
	// Name returns the codec identifier (e.g. "gzip").
	Name() string

	// NewWriter wraps w in a compression stream.
	NewWriter(w io.Writer) (Writer, error)

	// NewReader wraps r in a decompression stream.
	NewReader(r io.Reader) (io.ReadCloser, error)

	// FileExtension returns the extension appended to compressed files (e.g. ".gz").
	FileExtension() string
}
