package handle

import (
	"context"
	"io"

	"github.com/jittakal/kafrotator/internal/errors"
	"github.com/jittakal/kafrotator/pkg/storage"
)

var newline = []byte{'\n'}

// countingWriter counts the bytes that reach the sink.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// openSink opens path on backend and wraps failures as storage errors.
func openSink(ctx context.Context, backend storage.Backend, path string) (storage.Sink, error) {
	sink, err := backend.Open(ctx, path)
	if err != nil {
		return nil, &errors.StorageIOError{Operation: "open", Path: path, Err: err}
	}
	return sink, nil
}

// abortSink drops the destination when the backend supports it and
// closes it otherwise.
func abortSink(sink storage.Sink) error {
	if a, ok := sink.(storage.Aborter); ok {
		return a.Abort()
	}
	return sink.Close()
}

func closedErr(op, path string) error {
	return &errors.StorageIOError{Operation: op, Path: path, Err: errors.ErrHandleClosed}
}

func ioErr(op, path string, err error) error {
	return &errors.StorageIOError{Operation: op, Path: path, Err: err}
}
