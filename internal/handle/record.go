package handle

import (
	"fmt"
	"unicode/utf8"

	"github.com/jittakal/kafrotator/pkg/message"
)

// Field types accepted for keyed-record keys and values.
const (
	FieldBytes  = "bytes"
	FieldString = "string"
)

// RecordConfig types the key and value columns of keyed-record files.
type RecordConfig struct {
	KeyType   string
	ValueType string
	// Compression names the container codec (avro: null, deflate, snappy;
	// parquet: none, snappy, gzip, lz4, zstd).
	Compression string
}

func (c RecordConfig) validate() error {
	for _, typ := range []string{c.KeyType, c.ValueType} {
		if typ != FieldBytes && typ != FieldString {
			return fmt.Errorf("unsupported record field type: %q", typ)
		}
	}
	return nil
}

// checkRecord rejects string fields that are not valid UTF-8.
func (c RecordConfig) checkRecord(kv message.KeyValue) error {
	if c.KeyType == FieldString && !utf8.Valid(kv.Key) {
		return fmt.Errorf("key is not valid UTF-8")
	}
	if c.ValueType == FieldString && !utf8.Valid(kv.Value) {
		return fmt.Errorf("value is not valid UTF-8")
	}
	return nil
}
