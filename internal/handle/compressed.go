package handle

import (
	"context"
	"fmt"

	"github.com/jittakal/kafrotator/pkg/codec"
	"github.com/jittakal/kafrotator/pkg/storage"
)

var (
	_ storage.Handle[[]byte] = (*Compressed)(nil)
	_ storage.Aborter        = (*Compressed)(nil)
)

// Compressed streams payload bytes through a codec.
// Each Append flushes the codec so the reported size is what reached the
// sink since the previous Append, stream header included.
type Compressed struct {
	sink     storage.Sink
	counter  *countingWriter
	reported int64
	stream   codec.Writer
	path     string
	newLine  bool
	closed   bool
}

// NewCompressed creates a compressed handle over sink.
func NewCompressed(sink storage.Sink, path string, c codec.Codec, newLine bool) (*Compressed, error) {
	counter := &countingWriter{w: sink}
	stream, err := c.NewWriter(counter)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s writer: %w", c.Name(), err)
	}
	return &Compressed{
		sink:    sink,
		counter: counter,
		stream:  stream,
		path:    path,
		newLine: newLine,
	}, nil
}

// CompressedOpener returns an opener creating compressed handles on backend.
func CompressedOpener(backend storage.Backend, c codec.Codec, newLine bool) storage.Opener[[]byte] {
	return func(ctx context.Context, path string) (storage.Handle[[]byte], error) {
		sink, err := openSink(ctx, backend, path)
		if err != nil {
			return nil, err
		}
		h, err := NewCompressed(sink, path, c, newLine)
		if err != nil {
			_ = sink.Close()
			return nil, ioErr("open", path, err)
		}
		return h, nil
	}
}

// Append compresses data and returns the compressed bytes it produced.
func (h *Compressed) Append(data []byte) (int64, error) {
	if h.closed {
		return 0, closedErr("append", h.path)
	}

	err := h.write(data)
	n := h.counter.n - h.reported
	h.reported = h.counter.n
	if err != nil {
		return n, ioErr("append", h.path, err)
	}
	return n, nil
}

func (h *Compressed) write(data []byte) error {
	if _, err := h.stream.Write(data); err != nil {
		return err
	}
	if h.newLine {
		if _, err := h.stream.Write(newline); err != nil {
			return err
		}
	}
	return h.stream.Flush()
}

// Sync flushes the codec and the sink.
func (h *Compressed) Sync() error {
	if h.closed {
		return closedErr("sync", h.path)
	}
	if err := h.stream.Flush(); err != nil {
		return ioErr("sync", h.path, err)
	}
	if err := h.sink.Sync(); err != nil {
		return ioErr("sync", h.path, err)
	}
	return nil
}

// Close finishes the compressed stream and releases the sink.
// The sink is closed even when finishing the stream fails.
func (h *Compressed) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true

	streamErr := h.stream.Close()
	sinkErr := h.sink.Close()
	if streamErr != nil {
		return ioErr("close", h.path, streamErr)
	}
	if sinkErr != nil {
		return ioErr("close", h.path, sinkErr)
	}
	return nil
}

// Abort discards the file without finishing the stream.
func (h *Compressed) Abort() error {
	if h.closed {
		return nil
	}
	h.closed = true
	if err := abortSink(h.sink); err != nil {
		return ioErr("abort", h.path, err)
	}
	return nil
}
