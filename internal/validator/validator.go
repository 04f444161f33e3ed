// Package validator checks consumed records before they are written.
package validator

import (
	"unicode/utf8"

	"github.com/jittakal/kafrotator/internal/errors"
	"github.com/jittakal/kafrotator/pkg/message"
)

// Config selects the checks applied to each record.
type Config struct {
	// AllowEmptyValue accepts tombstones and other empty payloads.
	AllowEmptyValue bool
	// KeyUTF8 and ValueUTF8 reject payloads a string-typed record column cannot hold.
	KeyUTF8   bool
	ValueUTF8 bool
}

// RecordValidator validates consumed Kafka records.
type RecordValidator struct {
	config Config
}

// NewRecordValidator creates a new record validator.
func NewRecordValidator(config Config) *RecordValidator {
	return &RecordValidator{config: config}
}

// Validate returns a *errors.ValidationError if msg cannot be written.
func (v *RecordValidator) Validate(msg *message.ConsumedMessage) error {
	if msg == nil {
		return &errors.ValidationError{Reason: "record is nil"}
	}

	if len(msg.Value) == 0 && !v.config.AllowEmptyValue {
		return invalid(msg, "value is empty")
	}

	if v.config.KeyUTF8 && !utf8.Valid(msg.Metadata.Key) {
		return invalid(msg, "key is not valid UTF-8")
	}

	if v.config.ValueUTF8 && !utf8.Valid(msg.Value) {
		return invalid(msg, "value is not valid UTF-8")
	}

	return nil
}

func invalid(msg *message.ConsumedMessage, reason string) error {
	return &errors.ValidationError{
		Partition: msg.PartitionID(),
		Offset:    msg.Metadata.Offset,
		Reason:    reason,
	}
}
