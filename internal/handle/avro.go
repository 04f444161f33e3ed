package handle

import (
	"context"
	"fmt"
	"strings"

	"github.com/linkedin/goavro/v2"

	"github.com/jittakal/kafrotator/internal/errors"
	"github.com/jittakal/kafrotator/pkg/message"
	"github.com/jittakal/kafrotator/pkg/storage"
)

var (
	_ storage.Handle[message.KeyValue] = (*Avro)(nil)
	_ storage.Aborter                  = (*Avro)(nil)
)

// avroSchema returns the key/value record schema for the given field types.
func avroSchema(keyType, valueType string) string {
	return fmt.Sprintf(`{
		"type": "record",
		"name": "KeyValue",
		"namespace": "io.kafrotator",
		"fields": [
			{"name": "key", "type": %q},
			{"name": "value", "type": %q}
		]
	}`, keyType, valueType)
}

// avroCompression maps a configured name to a goavro OCF codec label.
func avroCompression(name string) (string, error) {
	switch strings.ToLower(name) {
	case "", "null", "none", "uncompressed":
		return goavro.CompressionNullLabel, nil
	case "deflate":
		return goavro.CompressionDeflateLabel, nil
	case "snappy":
		return goavro.CompressionSnappyLabel, nil
	default:
		return "", fmt.Errorf("unsupported avro codec: %s", name)
	}
}

// Avro writes key/value records into an Avro Object Container File.
// Every Append is written as its own OCF block. The first Append also
// reports the OCF header.
type Avro struct {
	sink     storage.Sink
	counter  *countingWriter
	reported int64
	ocf      *goavro.OCFWriter
	cfg      RecordConfig
	path     string
	closed   bool
}

// NewAvro writes the OCF header to sink and returns the handle.
func NewAvro(sink storage.Sink, path string, codec *goavro.Codec, cfg RecordConfig) (*Avro, error) {
	compression, err := avroCompression(cfg.Compression)
	if err != nil {
		return nil, err
	}

	counter := &countingWriter{w: sink}
	ocf, err := goavro.NewOCFWriter(goavro.OCFConfig{
		W:               counter,
		Codec:           codec,
		CompressionName: compression,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create OCF writer: %w", err)
	}

	return &Avro{
		sink:    sink,
		counter: counter,
		ocf:     ocf,
		cfg:     cfg,
		path:    path,
	}, nil
}

// AvroOpener returns an opener creating Avro handles on backend.
func AvroOpener(backend storage.Backend, cfg RecordConfig) (storage.Opener[message.KeyValue], error) {
	if err := cfg.validate(); err != nil {
		return nil, &errors.ConfigurationError{Field: "encoding", Reason: err.Error()}
	}
	if _, err := avroCompression(cfg.Compression); err != nil {
		return nil, &errors.ConfigurationError{Field: "encoding.avro.codec", Reason: err.Error()}
	}

	codec, err := goavro.NewCodec(avroSchema(cfg.KeyType, cfg.ValueType))
	if err != nil {
		return nil, fmt.Errorf("failed to create avro codec: %w", err)
	}

	return func(ctx context.Context, path string) (storage.Handle[message.KeyValue], error) {
		sink, err := openSink(ctx, backend, path)
		if err != nil {
			return nil, err
		}
		h, err := NewAvro(sink, path, codec, cfg)
		if err != nil {
			_ = sink.Close()
			return nil, ioErr("open", path, err)
		}
		return h, nil
	}, nil
}

func (h *Avro) native(kv message.KeyValue) map[string]interface{} {
	record := make(map[string]interface{}, 2)
	if h.cfg.KeyType == FieldString {
		record["key"] = string(kv.Key)
	} else {
		record["key"] = kv.Key
	}
	if h.cfg.ValueType == FieldString {
		record["value"] = string(kv.Value)
	} else {
		record["value"] = kv.Value
	}
	return record
}

// Append writes kv as one OCF block and returns the bytes the file grew by
// since the previous Append.
func (h *Avro) Append(kv message.KeyValue) (int64, error) {
	if h.closed {
		return 0, closedErr("append", h.path)
	}
	if err := h.cfg.checkRecord(kv); err != nil {
		return 0, &errors.EncodingError{Path: h.path, Err: err}
	}

	err := h.ocf.Append([]interface{}{h.native(kv)})
	n := h.counter.n - h.reported
	h.reported = h.counter.n
	if err != nil {
		return n, ioErr("append", h.path, err)
	}
	return n, nil
}

// Sync makes written blocks durable.
func (h *Avro) Sync() error {
	if h.closed {
		return closedErr("sync", h.path)
	}
	if err := h.sink.Sync(); err != nil {
		return ioErr("sync", h.path, err)
	}
	return nil
}

// Close releases the sink. OCF files need no trailer.
func (h *Avro) Close() error {
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
func (h *Avro) Abort() error {
	if h.closed {
		return nil
	}
	h.closed = true
	if err := abortSink(h.sink); err != nil {
		return ioErr("abort", h.path, err)
	}
	return nil
}
