// Package storage defines the capability contracts used by the rotating writer.
//
// This package provides abstractions for append-capable destinations
// (Sink, Backend), the uniform handle protocol shared by every payload
// encoding (Handle), and the policies deciding when to flush and when to
// rotate (SyncStrategy, RotationStrategy).
package storage

import (
	"context"
	"io"
	"time"
)

// Sink is one open destination resource returned by a Backend.
type Sink interface {
	io.Writer

	// Sync makes everything written so far durable or visible.
	Sync() error

	// Close finalizes the destination and releases the resource.
	Close() error
}

// Aborter is implemented by sinks and handles that can drop an incomplete
// destination instead of publishing it. Abort after Close is a no-op.
type Aborter interface {
	Abort() error
}

// Backend opens sinks on a storage system (local disk, S3, GCS, Azure).
type Backend interface {
	// Open creates the destination at path.
	Open(ctx context.Context, path string) (Sink, error)

	// Name returns the backend identifier used in logs and metrics.
	Name() string

	// Close releases backend clients.
	Close() error
}

// Source is implemented by backends that can read back published files.
type Source interface {
	// OpenReader opens the file at path, as given to Open, for reading.
	OpenReader(ctx context.Context, path string) (io.ReadCloser, error)
}

// Handle is the uniform capability set over one open file.
// Every payload encoding (raw, compressed, keyed-record) implements it.
type Handle[T any] interface {
	// Append encodes data into the file and returns the number of bytes
	// the file grew by, as seen by the storage.
	Append(data T) (int64, error)

	// Sync flushes buffered writes to the underlying storage.
	Sync() error

	// Close flushes and releases the file. A second Close is a no-op.
	Close() error
}

// Opener creates a Handle for the given destination path.
type Opener[T any] func(ctx context.Context, path string) (Handle[T], error)

// PathGenerator maps a rotation index and a time hint to a destination path.
type PathGenerator func(rotation int64, ts time.Time) string

// SyncStrategy decides when the current handle must be flushed.
type SyncStrategy interface {
	// ShouldSync is fed the size of each successful append.
	ShouldSync(size int64) bool

	// Reset is called right after a sync fires and when the file rotates.
	Reset()
}

// RotationStrategy decides when the current handle must be closed and a
// new one opened.
type RotationStrategy interface {
	// ShouldRotate is fed the size of each successful append.
	ShouldRotate(size int64) bool

	// Reset is called right after a rotation fires.
	Reset()
}

// Expirer is implemented by rotation strategies that can fire without a
// new element, such as time-based rotation.
type Expirer interface {
	Expired(now time.Time) bool
}
