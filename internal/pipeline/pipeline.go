// Package pipeline fans consumed Kafka records out to one rotating writer
// per partition.
//
// Each partition is served by its own goroutine and Writer, fed through a
// bounded channel. When a writer completes a file, the last offset it holds
// is committed, so a record is acknowledged only once the file containing it
// is closed. Records rejected by the validator, and the records of a file
// whose writer failed, are published to the dead letter queue.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jittakal/kafrotator/internal/errors"
	"github.com/jittakal/kafrotator/internal/writer"
	"github.com/jittakal/kafrotator/pkg/consumer"
	"github.com/jittakal/kafrotator/pkg/message"
)

// Validator rejects records that cannot be written.
type Validator interface {
	Validate(msg *message.ConsumedMessage) error
}

// MetricsCollector defines metrics operations for the pipeline.
type MetricsCollector interface {
	IncMessagesProcessed(topic string, partition int32, status string)
	IncOffsetCommits(topic string, partition int32, status string)
	IncDLQPublished(topic string, reason string)
	SetActivePartitions(count float64)
}

// WriterFactory builds the writer for one partition. It is called again
// after a writer fails.
type WriterFactory[T any] func(partition message.PartitionID) (*writer.Writer[T, message.Position], error)

// Config configures a Pipeline.
type Config[T any] struct {
	Topics   []string
	Consumer consumer.Consumer
	// DLQ receives rejected records. A nil DLQ makes every writer failure fatal.
	DLQ       consumer.DLQPublisher
	Validator Validator
	NewWriter WriterFactory[T]
	// Convert turns a consumed record into the element written to storage.
	Convert func(msg *message.ConsumedMessage) T
	// QueueSize bounds the records buffered per partition.
	QueueSize int
	// TickInterval drives time-based rotation of idle files. Zero disables it.
	TickInterval time.Duration
	Logger       *slog.Logger
	Metrics      MetricsCollector
}

// Pipeline consumes records and writes them through per-partition writers.
type Pipeline[T any] struct {
	cfg    Config[T]
	logger *slog.Logger

	mu         sync.RWMutex
	running    bool
	partitions int
	failed     map[message.PartitionID]error
}

// New creates a Pipeline.
func New[T any](cfg Config[T]) (*Pipeline[T], error) {
	switch {
	case cfg.Consumer == nil:
		return nil, &errors.ConfigurationError{Field: "consumer", Reason: "is required"}
	case cfg.NewWriter == nil:
		return nil, &errors.ConfigurationError{Field: "writer_factory", Reason: "is required"}
	case cfg.Convert == nil:
		return nil, &errors.ConfigurationError{Field: "convert", Reason: "is required"}
	case len(cfg.Topics) == 0:
		return nil, &errors.ConfigurationError{Field: "topics", Reason: "at least one topic is required"}
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Pipeline[T]{
		cfg:    cfg,
		logger: logger,
		failed: make(map[message.PartitionID]error),
	}, nil
}

// Run consumes until ctx is cancelled, the consumer stops, or a partition
// fails beyond recovery. Queued records are drained and every open file is
// finished before Run returns. Cancellation is not reported as an error.
func (p *Pipeline[T]) Run(ctx context.Context) error {
	if err := p.cfg.Consumer.Subscribe(ctx, p.cfg.Topics); err != nil {
		return fmt.Errorf("failed to subscribe to topics: %w", err)
	}

	msgs, errs, err := p.cfg.Consumer.Consume(ctx)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	p.setRunning(true)
	defer p.setRunning(false)
	p.logger.Info("pipeline started", "topics", p.cfg.Topics)

	g, gctx := errgroup.WithContext(ctx)
	workers := make(map[message.PartitionID]*partitionWorker[T])

	dispatchErr := p.dispatch(gctx, g, workers, msgs, errs)

	for _, w := range workers {
		close(w.in)
	}
	if err := g.Wait(); err != nil {
		return err
	}

	p.logger.Info("pipeline stopped", "partitions", len(workers))
	return dispatchErr
}

func (p *Pipeline[T]) dispatch(
	ctx context.Context,
	g *errgroup.Group,
	workers map[message.PartitionID]*partitionWorker[T],
	msgs <-chan *message.ConsumedMessage,
	errs <-chan error,
) error {
	for {
		select {
		case <-ctx.Done():
			return nil

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			p.logger.Error("consumer error", "error", err)

		case msg, ok := <-msgs:
			if !ok {
				p.logger.Info("consumer channel closed")
				return nil
			}
			if msg == nil {
				continue
			}

			w, err := p.worker(ctx, g, workers, msg.PartitionID())
			if err != nil {
				return err
			}

			select {
			case w.in <- msg:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func (p *Pipeline[T]) worker(
	ctx context.Context,
	g *errgroup.Group,
	workers map[message.PartitionID]*partitionWorker[T],
	id message.PartitionID,
) (*partitionWorker[T], error) {
	if w, ok := workers[id]; ok {
		return w, nil
	}

	w, err := newPartitionWorker(p, id)
	if err != nil {
		return nil, err
	}
	workers[id] = w

	p.mu.Lock()
	p.partitions = len(workers)
	p.mu.Unlock()
	if p.cfg.Metrics != nil {
		p.cfg.Metrics.SetActivePartitions(float64(len(workers)))
	}

	g.Go(func() error {
		if err := w.run(ctx); err != nil {
			p.markFailed(id, err)
			return err
		}
		return nil
	})

	p.logger.Info("started partition writer", "topic", id.Topic, "partition", id.Partition)
	return w, nil
}

func (p *Pipeline[T]) setRunning(running bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running = running
}

func (p *Pipeline[T]) markFailed(id message.PartitionID, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failed[id] = err
}

// Liveness reports whether the process is alive.
func (p *Pipeline[T]) Liveness() bool {
	return true
}

// Readiness reports whether records are being consumed and no partition has failed.
func (p *Pipeline[T]) Readiness(_ context.Context) bool {
	return p.IsHealthy()
}

// IsHealthy reports whether the pipeline is running without failed partitions.
func (p *Pipeline[T]) IsHealthy() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running && len(p.failed) == 0
}

// GetStatus returns the pipeline state for health responses.
func (p *Pipeline[T]) GetStatus() map[string]string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	status := map[string]string{
		"consumer":   "stopped",
		"partitions": strconv.Itoa(p.partitions),
	}
	if p.running {
		status["consumer"] = "running"
	}

	for id := range p.failed {
		status["partition:"+id.String()] = "failed"
	}
	return status
}
