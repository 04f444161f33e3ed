// Package writer implements the rotating, policy-driven stream writer.
//
// A Writer persists each element it is given to the current storage handle,
// asks its sync strategy whether to flush and its rotation strategy whether
// to close the file, and emits one RotationMessage per completed file. The
// message carries the passthrough of every element in that file, in order.
//
// A Writer is driven by a single goroutine. Independent writers may run in
// parallel.
package writer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jittakal/kafrotator/internal/buffer"
	"github.com/jittakal/kafrotator/internal/errors"
	"github.com/jittakal/kafrotator/pkg/message"
	"github.com/jittakal/kafrotator/pkg/storage"
)

// MetricsCollector defines metrics operations for writers.
type MetricsCollector interface {
	ObserveAppend(writer string, bytes int64)
	IncSyncs(writer string)
	ObserveRotation(writer string, stats message.FileStats)
	IncFailures(writer string)
}

// Config configures a Writer.
type Config[T any] struct {
	// Name identifies the writer in logs and metrics.
	Name          string
	Sync          storage.SyncStrategy
	Rotation      storage.RotationStrategy
	PathGenerator storage.PathGenerator
	Opener        storage.Opener[T]
	// Clock supplies the time hint passed to PathGenerator. Defaults to time.Now.
	Clock   func() time.Time
	Logger  *slog.Logger
	Metrics MetricsCollector
}

// Writer is a rotating writer persisting T and carrying P downstream.
type Writer[T, P any] struct {
	name     string
	sync     storage.SyncStrategy
	rotation storage.RotationStrategy
	pathGen  storage.PathGenerator
	open     storage.Opener[T]
	clock    func() time.Time
	logger   *slog.Logger
	metrics  MetricsCollector

	handle   storage.Handle[T]
	path     string
	index    int64
	pending  *buffer.Pending[P]
	err      error
	finished bool
}

// New creates a Writer. No file is opened until the first element arrives.
func New[T, P any](cfg Config[T]) (*Writer[T, P], error) {
	switch {
	case cfg.Sync == nil:
		return nil, &errors.ConfigurationError{Field: "sync", Reason: "is required"}
	case cfg.Rotation == nil:
		return nil, &errors.ConfigurationError{Field: "rotation", Reason: "is required"}
	case cfg.PathGenerator == nil:
		return nil, &errors.ConfigurationError{Field: "path_generator", Reason: "is required"}
	case cfg.Opener == nil:
		return nil, &errors.ConfigurationError{Field: "opener", Reason: "is required"}
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Writer[T, P]{
		name:     cfg.Name,
		sync:     cfg.Sync,
		rotation: cfg.Rotation,
		pathGen:  cfg.PathGenerator,
		open:     cfg.Opener,
		clock:    clock,
		logger:   logger.With("writer", cfg.Name),
		metrics:  cfg.Metrics,
		pending:  buffer.NewPending[P](),
	}, nil
}

// Process writes one element. It returns a RotationMessage when the element
// completed a file, and nil otherwise.
func (w *Writer[T, P]) Process(ctx context.Context, msg message.WriteMessage[T, P]) (*message.RotationMessage[P], error) {
	if err := w.usable(); err != nil {
		return nil, err
	}

	if w.handle == nil {
		if err := w.openNext(ctx); err != nil {
			return nil, w.fail(err)
		}
	}

	n, err := w.handle.Append(msg.Data)
	if err != nil {
		return nil, w.fail(err)
	}
	w.pending.Add(msg.Passthrough, n, w.clock())
	if w.metrics != nil {
		w.metrics.ObserveAppend(w.name, n)
	}

	if w.sync.ShouldSync(n) {
		if err := w.syncHandle(); err != nil {
			return nil, w.fail(err)
		}
	}

	if w.rotation.ShouldRotate(n) {
		return w.rotate()
	}
	return nil, nil
}

// Finish closes the current file and returns its RotationMessage.
// An empty or unopened file is closed silently and nil is returned.
// Every later call returns ErrWriterClosed.
func (w *Writer[T, P]) Finish(_ context.Context) (*message.RotationMessage[P], error) {
	if err := w.usable(); err != nil {
		return nil, err
	}
	w.finished = true

	if w.handle == nil {
		return nil, nil
	}

	if w.pending.IsEmpty() {
		h, path := w.handle, w.path
		w.handle = nil
		if err := h.Close(); err != nil {
			return nil, w.fail(err)
		}
		w.logger.Debug("closed empty file", "path", path)
		return nil, nil
	}

	if err := w.syncHandle(); err != nil {
		return nil, w.fail(err)
	}
	return w.rotate()
}

// Abort releases the current file without emitting a RotationMessage.
// Buffered passthroughs are discarded.
func (w *Writer[T, P]) Abort() error {
	w.finished = true
	w.pending.Reset()
	if w.handle == nil {
		return nil
	}

	h := w.handle
	w.handle = nil
	if err := discard(h); err != nil {
		w.logger.Warn("failed to discard file on abort", "path", w.path, "error", err)
		return err
	}
	return nil
}

// Tick rotates a non-empty file whose rotation strategy has expired at now.
// Only rotation strategies implementing storage.Expirer can expire.
func (w *Writer[T, P]) Tick(_ context.Context, now time.Time) (*message.RotationMessage[P], error) {
	if err := w.usable(); err != nil {
		return nil, err
	}
	if w.handle == nil || w.pending.IsEmpty() {
		return nil, nil
	}

	expirer, ok := w.rotation.(storage.Expirer)
	if !ok || !expirer.Expired(now) {
		return nil, nil
	}

	if err := w.syncHandle(); err != nil {
		return nil, w.fail(err)
	}
	return w.rotate()
}

// Rotation returns the index of the next file to complete.
func (w *Writer[T, P]) Rotation() int64 {
	return w.index
}

// Path returns the destination of the open file, or "" if none is open.
func (w *Writer[T, P]) Path() string {
	if w.handle == nil {
		return ""
	}
	return w.path
}

// Pending returns the passthroughs written since the last rotation.
// After a failure these are the elements whose file was never completed.
func (w *Writer[T, P]) Pending() []P {
	return w.pending.Passthroughs()
}

// Err returns the failure that stopped the writer, if any.
func (w *Writer[T, P]) Err() error {
	return w.err
}

func (w *Writer[T, P]) usable() error {
	if w.err != nil {
		return fmt.Errorf("%w: %w", errors.ErrWriterFailed, w.err)
	}
	if w.finished {
		return errors.ErrWriterClosed
	}
	return nil
}

func (w *Writer[T, P]) openNext(ctx context.Context) error {
	path := w.pathGen(w.index, w.clock())
	h, err := w.open(ctx, path)
	if err != nil {
		return err
	}
	w.handle = h
	w.path = path
	w.logger.Debug("opened file", "path", path, "rotation", w.index)
	return nil
}

func (w *Writer[T, P]) syncHandle() error {
	if err := w.handle.Sync(); err != nil {
		return err
	}
	w.sync.Reset()
	if w.metrics != nil {
		w.metrics.IncSyncs(w.name)
	}
	return nil
}

// rotate closes the current file and emits its RotationMessage.
func (w *Writer[T, P]) rotate() (*message.RotationMessage[P], error) {
	h := w.handle
	w.handle = nil
	if err := h.Close(); err != nil {
		return nil, w.fail(err)
	}
	w.rotation.Reset()
	w.sync.Reset()

	passthroughs, stats := w.pending.Drain()
	msg := &message.RotationMessage[P]{
		Path:         w.path,
		Rotation:     w.index,
		Passthroughs: passthroughs,
		Stats:        stats,
	}
	w.index++

	w.logger.Info("rotated file",
		"path", msg.Path,
		"rotation", msg.Rotation,
		"records", stats.RecordCount,
		"bytes", stats.SizeBytes,
	)
	if w.metrics != nil {
		w.metrics.ObserveRotation(w.name, stats)
	}
	return msg, nil
}

// fail records err as the writer's terminal error and releases the open
// file. Close failures during cleanup are logged and dropped.
func (w *Writer[T, P]) fail(err error) error {
	if w.handle != nil {
		h := w.handle
		w.handle = nil
		if closeErr := discard(h); closeErr != nil {
			w.logger.Warn("failed to discard file after error",
				"path", w.path,
				"error", closeErr,
			)
		}
	}

	w.err = err
	w.logger.Error("writer failed",
		"path", w.path,
		"rotation", w.index,
		"pending", w.pending.Len(),
		"error", err,
	)
	if w.metrics != nil {
		w.metrics.IncFailures(w.name)
	}
	return err
}

// discard releases h without publishing it when the handle supports
// storage.Aborter, and closes it otherwise.
func discard[T any](h storage.Handle[T]) error {
	if a, ok := h.(storage.Aborter); ok {
		return a.Abort()
	}
	return h.Close()
}
