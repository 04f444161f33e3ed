// Package source reads back files published by rotating writers.
//
// A Reader opens a published path on any backend implementing
// storage.Source and decodes it the way it was written: raw bytes,
// codec-compressed bytes, newline separated records, or key/value records
// in Avro and Parquet files.
package source

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/linkedin/goavro/v2"
	"github.com/parquet-go/parquet-go"

	"github.com/jittakal/kafrotator/internal/errors"
	"github.com/jittakal/kafrotator/pkg/codec"
	"github.com/jittakal/kafrotator/pkg/message"
	"github.com/jittakal/kafrotator/pkg/storage"
)

// maxLine bounds one newline separated record.
const maxLine = 64 * 1024 * 1024

// Reader decodes published files.
type Reader struct {
	src    storage.Source
	logger *slog.Logger
}

// New creates a Reader over src.
func New(src storage.Source, logger *slog.Logger) *Reader {
	return &Reader{src: src, logger: logger}
}

// Data opens path and returns its bytes as stored.
func (r *Reader) Data(ctx context.Context, path string) (io.ReadCloser, error) {
	rc, err := r.src.OpenReader(ctx, path)
	if err != nil {
		return nil, &errors.StorageIOError{Operation: "read", Path: path, Err: err}
	}
	r.logger.Debug("opened file for reading", "path", path)
	return rc, nil
}

// Compressed opens path and decompresses it with c.
func (r *Reader) Compressed(ctx context.Context, path string, c codec.Codec) (io.ReadCloser, error) {
	rc, err := r.Data(ctx, path)
	if err != nil {
		return nil, err
	}
	zr, err := c.NewReader(rc)
	if err != nil {
		_ = rc.Close()
		return nil, &errors.EncodingError{Path: path, Err: fmt.Errorf("%s stream: %w", c.Name(), err)}
	}
	return &stackedReader{Reader: zr, closers: []io.Closer{zr, rc}}, nil
}

// Lines calls fn with every newline separated record of the file at path.
// A nil codec reads the file uncompressed. The slice passed to fn is only
// valid until fn returns.
func (r *Reader) Lines(ctx context.Context, path string, c codec.Codec, fn func([]byte) error) error {
	var (
		rc  io.ReadCloser
		err error
	)
	if c == nil {
		rc, err = r.Data(ctx, path)
	} else {
		rc, err = r.Compressed(ctx, path, c)
	}
	if err != nil {
		return err
	}
	defer rc.Close()

	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)
	for scanner.Scan() {
		if err := fn(scanner.Bytes()); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return &errors.EncodingError{Path: path, Err: err}
	}
	return nil
}

// Records reads every key/value record of an Avro or Parquet file, picking
// the format from the file extension.
func (r *Reader) Records(ctx context.Context, p string) ([]message.KeyValue, error) {
	switch strings.ToLower(path.Ext(p)) {
	case ".avro":
		return r.Avro(ctx, p)
	case ".parquet":
		return r.Parquet(ctx, p)
	default:
		return nil, &errors.EncodingError{Path: p, Err: fmt.Errorf("no record format for extension %q", path.Ext(p))}
	}
}

// Avro reads the key/value records of an Avro Object Container File.
func (r *Reader) Avro(ctx context.Context, path string) ([]message.KeyValue, error) {
	rc, err := r.Data(ctx, path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	ocf, err := goavro.NewOCFReader(bufio.NewReader(rc))
	if err != nil {
		return nil, &errors.EncodingError{Path: path, Err: err}
	}

	var records []message.KeyValue
	for ocf.Scan() {
		datum, err := ocf.Read()
		if err != nil {
			return nil, &errors.EncodingError{Path: path, Err: err}
		}
		fields, ok := datum.(map[string]interface{})
		if !ok {
			return nil, &errors.EncodingError{Path: path, Err: fmt.Errorf("unexpected datum %T", datum)}
		}
		records = append(records, message.KeyValue{
			Key:   avroBytes(fields["key"]),
			Value: avroBytes(fields["value"]),
		})
	}
	if err := ocf.Err(); err != nil {
		return nil, &errors.EncodingError{Path: path, Err: err}
	}

	r.logger.Debug("read avro file", "path", path, "records", len(records))
	return records, nil
}

func avroBytes(v interface{}) []byte {
	switch x := v.(type) {
	case []byte:
		return x
	case string:
		return []byte(x)
	default:
		return nil
	}
}

// Parquet reads the key/value records of a Parquet file. The file is
// buffered in memory because the footer is read first.
func (r *Reader) Parquet(ctx context.Context, path string) ([]message.KeyValue, error) {
	rc, err := r.Data(ctx, path)
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(rc)
	closeErr := rc.Close()
	if err != nil {
		return nil, &errors.StorageIOError{Operation: "read", Path: path, Err: err}
	}
	if closeErr != nil {
		return nil, &errors.StorageIOError{Operation: "read", Path: path, Err: closeErr}
	}

	f, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, &errors.EncodingError{Path: path, Err: err}
	}
	keyCol, ok := f.Schema().Lookup("key")
	if !ok {
		return nil, &errors.EncodingError{Path: path, Err: fmt.Errorf("missing key column")}
	}
	valueCol, ok := f.Schema().Lookup("value")
	if !ok {
		return nil, &errors.EncodingError{Path: path, Err: fmt.Errorf("missing value column")}
	}

	records := make([]message.KeyValue, 0, f.NumRows())
	buf := make([]parquet.Row, 128)
	for _, rg := range f.RowGroups() {
		rows := rg.Rows()
		for {
			n, err := rows.ReadRows(buf)
			for _, row := range buf[:n] {
				var kv message.KeyValue
				for _, v := range row {
					switch v.Column() {
					case keyCol.ColumnIndex:
						kv.Key = bytes.Clone(v.ByteArray())
					case valueCol.ColumnIndex:
						kv.Value = bytes.Clone(v.ByteArray())
					}
				}
				records = append(records, kv)
			}
			if err == io.EOF {
				break
			}
			if err != nil {
				_ = rows.Close()
				return nil, &errors.EncodingError{Path: path, Err: err}
			}
		}
		if err := rows.Close(); err != nil {
			return nil, &errors.EncodingError{Path: path, Err: err}
		}
	}

	r.logger.Debug("read parquet file", "path", path, "records", len(records))
	return records, nil
}

// stackedReader closes a decompression stream and the file beneath it.
type stackedReader struct {
	io.Reader
	closers []io.Closer
}

func (s *stackedReader) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
