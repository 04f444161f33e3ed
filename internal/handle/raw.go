package handle

import (
	"context"

	"github.com/jittakal/kafrotator/pkg/storage"
)

var (
	_ storage.Handle[[]byte] = (*Raw)(nil)
	_ storage.Aborter        = (*Raw)(nil)
)

// Raw writes payload bytes verbatim.
type Raw struct {
	sink    storage.Sink
	path    string
	newLine bool
	closed  bool
}

// NewRaw creates a raw handle over sink.
func NewRaw(sink storage.Sink, path string, newLine bool) *Raw {
	return &Raw{sink: sink, path: path, newLine: newLine}
}

// RawOpener returns an opener creating raw handles on backend.
func RawOpener(backend storage.Backend, newLine bool) storage.Opener[[]byte] {
	return func(ctx context.Context, path string) (storage.Handle[[]byte], error) {
		sink, err := openSink(ctx, backend, path)
		if err != nil {
			return nil, err
		}
		return NewRaw(sink, path, newLine), nil
	}
}

// Append writes data and an optional newline.
func (h *Raw) Append(data []byte) (int64, error) {
	if h.closed {
		return 0, closedErr("append", h.path)
	}

	n, err := h.sink.Write(data)
	written := int64(n)
	if err != nil {
		return written, ioErr("append", h.path, err)
	}

	if h.newLine {
		n, err = h.sink.Write(newline)
		written += int64(n)
		if err != nil {
			return written, ioErr("append", h.path, err)
		}
	}
	return written, nil
}

// Sync makes appended bytes durable.
func (h *Raw) Sync() error {
	if h.closed {
		return closedErr("sync", h.path)
	}
	if err := h.sink.Sync(); err != nil {
		return ioErr("sync", h.path, err)
	}
	return nil
}

// Close releases the sink.
func (h *Raw) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	if err := h.sink.Close(); err != nil {
		return ioErr("close", h.path, err)
	}
	return nil
}

// Abort discards the file.
func (h *Raw) Abort() error {
	if h.closed {
		return nil
	}
	h.closed = true
	if err := abortSink(h.sink); err != nil {
		return ioErr("abort", h.path, err)
	}
	return nil
}
