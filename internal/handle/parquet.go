package handle

import (
	"context"
	"fmt"
	"strings"

	"github.com/parquet-go/parquet-go"

	"github.com/jittakal/kafrotator/internal/errors"
	"github.com/jittakal/kafrotator/pkg/message"
	"github.com/jittakal/kafrotator/pkg/storage"
)

// Row layouts for each key/value type combination.
type (
	bytesBytesRow struct {
		Key   []byte `parquet:"key"`
		Value []byte `parquet:"value"`
	}
	bytesStringRow struct {
		Key   []byte `parquet:"key"`
		Value string `parquet:"value"`
	}
	stringBytesRow struct {
		Key   string `parquet:"key"`
		Value []byte `parquet:"value"`
	}
	stringStringRow struct {
		Key   string `parquet:"key"`
		Value string `parquet:"value"`
	}
)

var (
	_ storage.Handle[message.KeyValue] = (*Parquet[bytesBytesRow])(nil)
	_ storage.Aborter                  = (*Parquet[bytesBytesRow])(nil)
)

// parquetCompression converts a compression name to a parquet writer option.
func parquetCompression(compression string) (parquet.WriterOption, error) {
	switch strings.ToLower(compression) {
	case "snappy", "":
		return parquet.Compression(&parquet.Snappy), nil
	case "gzip":
		return parquet.Compression(&parquet.Gzip), nil
	case "lz4":
		return parquet.Compression(&parquet.Lz4Raw), nil
	case "zstd":
		return parquet.Compression(&parquet.Zstd), nil
	case "uncompressed", "none":
		return parquet.Compression(&parquet.Uncompressed), nil
	default:
		return nil, fmt.Errorf("unsupported parquet compression: %s", compression)
	}
}

// Parquet writes key/value records as rows of a Parquet file.
// Rows are buffered into the current row group until Sync or Close, so
// Append reports the payload size of the record plus whatever the sink
// received beyond the sizes already reported (magic, flushed row groups).
type Parquet[R any] struct {
	sink     storage.Sink
	counter  *countingWriter
	reported int64
	writer   *parquet.GenericWriter[R]
	toRow    func(message.KeyValue) R
	cfg      RecordConfig
	path     string
	row      []R
	closed   bool
}

func newParquet[R any](sink storage.Sink, path string, cfg RecordConfig, toRow func(message.KeyValue) R, opts ...parquet.WriterOption) *Parquet[R] {
	counter := &countingWriter{w: sink}
	return &Parquet[R]{
		sink:    sink,
		counter: counter,
		writer:  parquet.NewGenericWriter[R](counter, opts...),
		toRow:   toRow,
		cfg:     cfg,
		path:    path,
		row:     make([]R, 1),
	}
}

func parquetOpener[R any](backend storage.Backend, cfg RecordConfig, toRow func(message.KeyValue) R, opts ...parquet.WriterOption) storage.Opener[message.KeyValue] {
	return func(ctx context.Context, path string) (storage.Handle[message.KeyValue], error) {
		sink, err := openSink(ctx, backend, path)
		if err != nil {
			return nil, err
		}
		return newParquet(sink, path, cfg, toRow, opts...), nil
	}
}

// ParquetOpener returns an opener creating Parquet handles on backend.
func ParquetOpener(backend storage.Backend, cfg RecordConfig) (storage.Opener[message.KeyValue], error) {
	if err := cfg.validate(); err != nil {
		return nil, &errors.ConfigurationError{Field: "encoding", Reason: err.Error()}
	}
	compression, err := parquetCompression(cfg.Compression)
	if err != nil {
		return nil, &errors.ConfigurationError{Field: "encoding.parquet.compression", Reason: err.Error()}
	}
	opts := []parquet.WriterOption{compression, parquet.CreatedBy("kafrotator", "1.0", "0")}

	switch {
	case cfg.KeyType == FieldBytes && cfg.ValueType == FieldBytes:
		return parquetOpener(backend, cfg, func(kv message.KeyValue) bytesBytesRow {
			return bytesBytesRow{Key: kv.Key, Value: kv.Value}
		}, opts...), nil
	case cfg.KeyType == FieldBytes:
		return parquetOpener(backend, cfg, func(kv message.KeyValue) bytesStringRow {
			return bytesStringRow{Key: kv.Key, Value: string(kv.Value)}
		}, opts...), nil
	case cfg.ValueType == FieldBytes:
		return parquetOpener(backend, cfg, func(kv message.KeyValue) stringBytesRow {
			return stringBytesRow{Key: string(kv.Key), Value: kv.Value}
		}, opts...), nil
	default:
		return parquetOpener(backend, cfg, func(kv message.KeyValue) stringStringRow {
			return stringStringRow{Key: string(kv.Key), Value: string(kv.Value)}
		}, opts...), nil
	}
}

// Append buffers kv as one row and returns its estimated size.
func (h *Parquet[R]) Append(kv message.KeyValue) (int64, error) {
	if h.closed {
		return 0, closedErr("append", h.path)
	}
	if err := h.cfg.checkRecord(kv); err != nil {
		return 0, &errors.EncodingError{Path: h.path, Err: err}
	}

	h.row[0] = h.toRow(kv)
	if _, err := h.writer.Write(h.row); err != nil {
		return 0, ioErr("append", h.path, err)
	}

	n := int64(len(kv.Key) + len(kv.Value))
	if lag := h.counter.n - h.reported; lag > 0 {
		n += lag
	}
	h.reported += n
	return n, nil
}

// Sync writes the buffered rows as a row group and syncs the sink.
func (h *Parquet[R]) Sync() error {
	if h.closed {
		return closedErr("sync", h.path)
	}
	if err := h.writer.Flush(); err != nil {
		return ioErr("sync", h.path, err)
	}
	if err := h.sink.Sync(); err != nil {
		return ioErr("sync", h.path, err)
	}
	return nil
}

// Close writes the footer and releases the sink.
// The sink is closed even when writing the footer fails.
func (h *Parquet[R]) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true

	writerErr := h.writer.Close()
	sinkErr := h.sink.Close()
	if writerErr != nil {
		return ioErr("close", h.path, writerErr)
	}
	if sinkErr != nil {
		return ioErr("close", h.path, sinkErr)
	}
	return nil
}

// Abort discards the file without writing the footer.
func (h *Parquet[R]) Abort() error {
	if h.closed {
		return nil
	}
	h.closed = true
	if err := abortSink(h.sink); err != nil {
		return ioErr("abort", h.path, err)
	}
	return nil
}
