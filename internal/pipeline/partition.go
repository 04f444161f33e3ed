package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jittakal/kafrotator/internal/errors"
	"github.com/jittakal/kafrotator/internal/writer"
	"github.com/jittakal/kafrotator/pkg/message"
)

// Message statuses reported to metrics.
const (
	statusWritten  = "written"
	statusInvalid  = "invalid"
	statusRejected = "storage_failed"
)

// partitionWorker owns the writer of one partition.
type partitionWorker[T any] struct {
	p      *Pipeline[T]
	id     message.PartitionID
	in     chan *message.ConsumedMessage
	writer *writer.Writer[T, message.Position]
	logger *slog.Logger
}

func newPartitionWorker[T any](p *Pipeline[T], id message.PartitionID) (*partitionWorker[T], error) {
	w, err := p.cfg.NewWriter(id)
	if err != nil {
		return nil, fmt.Errorf("failed to create writer for %s: %w", id, err)
	}
	return &partitionWorker[T]{
		p:      p,
		id:     id,
		in:     make(chan *message.ConsumedMessage, p.cfg.QueueSize),
		writer: w,
		logger: p.logger.With("topic", id.Topic, "partition", id.Partition),
	}, nil
}

// run processes records until in is closed, then finishes the open file.
// Storage and DLQ calls outlive ctx so that queued records can drain.
func (w *partitionWorker[T]) run(ctx context.Context) error {
	opCtx := context.WithoutCancel(ctx)

	var tick <-chan time.Time
	if w.p.cfg.TickInterval > 0 {
		ticker := time.NewTicker(w.p.cfg.TickInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case msg, ok := <-w.in:
			if !ok {
				return w.finish(opCtx)
			}
			if err := w.handle(opCtx, msg); err != nil {
				return err
			}

		case now := <-tick:
			if err := w.tick(opCtx, now); err != nil {
				return err
			}
		}
	}
}

func (w *partitionWorker[T]) handle(ctx context.Context, msg *message.ConsumedMessage) error {
	if v := w.p.cfg.Validator; v != nil {
		if err := v.Validate(msg); err != nil {
			return w.reject(ctx, msg, err)
		}
	}

	if w.writer == nil {
		wr, err := w.p.cfg.NewWriter(w.id)
		if err != nil {
			return fmt.Errorf("failed to recreate writer for %s: %w", w.id, err)
		}
		w.writer = wr
	}

	rm, err := w.writer.Process(ctx, message.WithPassthrough(w.p.cfg.Convert(msg), msg.Position()))
	if err != nil {
		return w.handleFailure(ctx, err, msg)
	}

	w.count(statusWritten)
	w.commit(rm)
	return nil
}

func (w *partitionWorker[T]) tick(ctx context.Context, now time.Time) error {
	if w.writer == nil {
		return nil
	}
	rm, err := w.writer.Tick(ctx, now)
	if err != nil {
		return w.handleFailure(ctx, err, nil)
	}
	w.commit(rm)
	return nil
}

func (w *partitionWorker[T]) finish(ctx context.Context) error {
	if w.writer == nil {
		return nil
	}
	rm, err := w.writer.Finish(ctx)
	if err != nil {
		return w.handleFailure(ctx, err, nil)
	}
	w.commit(rm)
	w.logger.Info("partition writer finished", "rotations", w.writer.Rotation())
	return nil
}

// reject sends a record the validator refused to the DLQ. Its offset is
// committed right away only when no earlier record is waiting in an open file.
func (w *partitionWorker[T]) reject(ctx context.Context, msg *message.ConsumedMessage, cause error) error {
	w.count(statusInvalid)
	w.logger.Warn("invalid record", "offset", msg.Metadata.Offset, "error", cause)

	if dlq := w.p.cfg.DLQ; dlq != nil {
		reason := "validation_failed: " + cause.Error()
		if err := dlq.Publish(ctx, msg.Value, msg.Metadata, reason); err != nil {
			return fmt.Errorf("failed to publish invalid record to DLQ: %w", err)
		}
		w.dlqPublished(msg.Metadata.Topic, "validation_failed")
	}

	if w.writer == nil || len(w.writer.Pending()) == 0 {
		w.commitPosition(msg.Position())
	}
	return nil
}

// handleFailure handles a writer failure. The records of the incomplete file are
// published to the DLQ by position, current is published with its value if
// it never reached the file, and the writer is dropped so the next record
// opens a fresh one. Without a DLQ the failure is returned.
func (w *partitionWorker[T]) handleFailure(ctx context.Context, cause error, current *message.ConsumedMessage) error {
	pending := w.writer.Pending()
	w.writer = nil

	dlq := w.p.cfg.DLQ
	if dlq == nil || !errors.IsFatal(cause) {
		return fmt.Errorf("writer for %s failed: %w", w.id, cause)
	}

	reason := "storage_failed: " + cause.Error()
	w.logger.Error("writer failed, publishing pending records to DLQ",
		"pending", len(pending),
		"error", cause,
	)

	last := message.Position{Offset: -1}
	for _, pos := range pending {
		if err := dlq.Publish(ctx, nil, positionMetadata(pos), reason); err != nil {
			return fmt.Errorf("failed to publish pending record to DLQ: %w", err)
		}
		w.count(statusRejected)
		w.dlqPublished(pos.Topic, "storage_failed")
		last = pos
	}

	if current != nil && current.Metadata.Offset > last.Offset {
		if err := dlq.Publish(ctx, current.Value, current.Metadata, reason); err != nil {
			return fmt.Errorf("failed to publish record to DLQ: %w", err)
		}
		w.count(statusRejected)
		w.dlqPublished(current.Metadata.Topic, "storage_failed")
		last = current.Position()
	}

	if last.Offset >= 0 {
		w.commitPosition(last)
	}
	return nil
}

// commit acknowledges every record of a completed file.
func (w *partitionWorker[T]) commit(rm *message.RotationMessage[message.Position]) {
	if rm == nil {
		return
	}
	pos, ok := rm.Last()
	if !ok {
		return
	}
	w.logger.Debug("file completed",
		"path", rm.Path,
		"records", rm.Stats.RecordCount,
		"last_offset", pos.Offset,
	)
	w.commitPosition(pos)
}

func (w *partitionWorker[T]) commitPosition(pos message.Position) {
	if pos.Commit == nil {
		return
	}
	if err := pos.Commit(); err != nil {
		commitErr := &errors.CommitError{PartitionID: w.id, Offset: pos.Offset, Err: err}
		w.logger.Error("failed to commit offset", "error", commitErr)
		if m := w.p.cfg.Metrics; m != nil {
			m.IncOffsetCommits(w.id.Topic, w.id.Partition, "failure")
		}
		return
	}
	if m := w.p.cfg.Metrics; m != nil {
		m.IncOffsetCommits(w.id.Topic, w.id.Partition, "success")
	}
}

func (w *partitionWorker[T]) count(status string) {
	if m := w.p.cfg.Metrics; m != nil {
		m.IncMessagesProcessed(w.id.Topic, w.id.Partition, status)
	}
}

func (w *partitionWorker[T]) dlqPublished(topic, reason string) {
	if m := w.p.cfg.Metrics; m != nil {
		m.IncDLQPublished(topic, reason)
	}
}

func positionMetadata(pos message.Position) message.KafkaMetadata {
	return message.KafkaMetadata{
		Topic:     pos.Topic,
		Partition: pos.Partition,
		Offset:    pos.Offset,
		Timestamp: pos.Timestamp,
	}
}
