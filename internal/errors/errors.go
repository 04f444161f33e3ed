// Package errors defines application-specific error types and sentinel errors.
package errors

import (
	"errors"
	"fmt"

	"github.com/jittakal/kafrotator/pkg/message"
)

// Sentinel errors for common conditions.
var (
	ErrConsumerClosed  = errors.New("consumer is closed")
	ErrHandleClosed    = errors.New("storage handle is closed")
	ErrInvalidMessage  = errors.New("invalid message")
	ErrPartitionClosed = errors.New("partition writer is closed")
	ErrWriterClosed    = errors.New("rotating writer is closed")
	ErrWriterFailed    = errors.New("rotating writer has failed")
	ErrTargetExists    = errors.New("target file already exists")
)

// ConfigurationError reports invalid writer or strategy parameters.
// It is detected at construction time and is never retried.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: field=%s: %s", e.Field, e.Reason)
}

// StorageIOError represents an append, sync, close or open failure.
type StorageIOError struct {
	Operation string
	Path      string
	Err       error
}

func (e *StorageIOError) Error() string {
	return fmt.Sprintf("storage error: operation=%s path=%s: %v",
		e.Operation, e.Path, e.Err)
}

func (e *StorageIOError) Unwrap() error {
	return e.Err
}

// EncodingError reports a payload that cannot be serialized under the
// configured encoding. It is fatal like a StorageIOError.
type EncodingError struct {
	Path string
	Err  error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("encoding error: path=%s: %v", e.Path, e.Err)
}

func (e *EncodingError) Unwrap() error {
	return e.Err
}

// ValidationError represents a consumed record rejected before writing.
type ValidationError struct {
	Partition message.PartitionID
	Offset    int64
	Reason    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: partition=%s offset=%d: %s",
		e.Partition, e.Offset, e.Reason)
}

// CommitError represents an offset commit failure.
type CommitError struct {
	PartitionID message.PartitionID
	Offset      int64
	Err         error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("commit error: partition=%s offset=%d: %v",
		e.PartitionID, e.Offset, e.Err)
}

func (e *CommitError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err must stop the writer instance.
// Storage and encoding failures are fatal; nothing inside the writer retries them.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var storageErr *StorageIOError
	if errors.As(err, &storageErr) {
		return true
	}

	var encodingErr *EncodingError
	if errors.As(err, &encodingErr) {
		return true
	}

	return errors.Is(err, ErrWriterFailed)
}

// IsConfiguration reports whether err is a ConfigurationError.
func IsConfiguration(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}
