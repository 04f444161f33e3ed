package main

import (
	"context"
	"log/slog"
	"path"
	"time"

	"github.com/jittakal/kafrotator/internal/codec"
	"github.com/jittakal/kafrotator/internal/config/dto"
	"github.com/jittakal/kafrotator/internal/errors"
	"github.com/jittakal/kafrotator/internal/handle"
	"github.com/jittakal/kafrotator/internal/observability"
	"github.com/jittakal/kafrotator/internal/pathgen"
	"github.com/jittakal/kafrotator/internal/pipeline"
	"github.com/jittakal/kafrotator/internal/server"
	"github.com/jittakal/kafrotator/internal/strategy"
	"github.com/jittakal/kafrotator/internal/validator"
	"github.com/jittakal/kafrotator/internal/writer"
	"github.com/jittakal/kafrotator/pkg/consumer"
	"github.com/jittakal/kafrotator/pkg/message"
	"github.com/jittakal/kafrotator/pkg/storage"
)

// rawExtension names files holding raw or compressed payloads.
const rawExtension = ".log"

// service is a pipeline whose element type has been fixed by the encoding.
type service interface {
	server.HealthChecker
	Run(ctx context.Context) error
}

// deps are the long-lived components shared by every partition writer.
type deps struct {
	backend  storage.Backend
	consumer consumer.Consumer
	dlq      consumer.DLQPublisher
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// newPipeline selects the handle encoding and builds the matching pipeline.
func newPipeline(cfg *dto.ApplicationConfig, d deps) (service, error) {
	v := validator.NewRecordValidator(validatorConfig(cfg.Encoding))

	switch cfg.Encoding.Type {
	case "raw":
		opener := handle.RawOpener(d.backend, cfg.Encoding.NewLine)
		return buildPipeline(cfg, d, v, opener, rawExtension, valueOf)

	case "compressed":
		c, err := codec.New(cfg.Encoding.Codec)
		if err != nil {
			return nil, err
		}
		opener := handle.CompressedOpener(d.backend, c, cfg.Encoding.NewLine)
		return buildPipeline(cfg, d, v, opener, rawExtension+c.FileExtension(), valueOf)

	case "keyed":
		opener, ext, err := keyedOpener(d.backend, cfg.Encoding)
		if err != nil {
			return nil, err
		}
		return buildPipeline(cfg, d, v, opener, ext, keyValueOf)

	default:
		return nil, &errors.ConfigurationError{Field: "encoding.type", Reason: "unsupported: " + cfg.Encoding.Type}
	}
}

func keyedOpener(backend storage.Backend, enc dto.EncodingConfig) (storage.Opener[message.KeyValue], string, error) {
	recordConfig := handle.RecordConfig{
		KeyType:   enc.KeyType,
		ValueType: enc.ValueType,
	}

	switch enc.RecordFormat {
	case "avro":
		recordConfig.Compression = enc.Avro.Codec
		opener, err := handle.AvroOpener(backend, recordConfig)
		return opener, ".avro", err
	case "parquet":
		recordConfig.Compression = enc.Parquet.Compression
		opener, err := handle.ParquetOpener(backend, recordConfig)
		return opener, ".parquet", err
	default:
		return nil, "", &errors.ConfigurationError{Field: "encoding.record_format", Reason: "unsupported: " + enc.RecordFormat}
	}
}

// validatorConfig rejects what the configured encoding cannot store.
// Keyed records keep tombstones; line-oriented files drop them.
func validatorConfig(enc dto.EncodingConfig) validator.Config {
	if enc.Type != "keyed" {
		return validator.Config{}
	}
	return validator.Config{
		AllowEmptyValue: true,
		KeyUTF8:         enc.KeyType == handle.FieldString,
		ValueUTF8:       enc.ValueType == handle.FieldString,
	}
}

func buildPipeline[T any](
	cfg *dto.ApplicationConfig,
	d deps,
	v pipeline.Validator,
	opener storage.Opener[T],
	ext string,
	convert func(msg *message.ConsumedMessage) T,
) (*pipeline.Pipeline[T], error) {
	factory := func(partition message.PartitionID) (*writer.Writer[T, message.Position], error) {
		sync, err := strategy.NewSync(cfg.Sync)
		if err != nil {
			return nil, err
		}
		rotation, err := strategy.NewRotation(cfg.FileRotation, time.Now)
		if err != nil {
			return nil, err
		}

		return writer.New[T, message.Position](writer.Config[T]{
			Name:          partition.String(),
			Sync:          sync,
			Rotation:      rotation,
			PathGenerator: pathGenerator(cfg.Storage.Path, ext, partition),
			Opener:        opener,
			Logger:        d.logger.With("partition", partition.String()),
			Metrics:       d.metrics,
		})
	}

	// Fail at startup rather than on the first record.
	if _, err := factory(message.PartitionID{}); err != nil {
		return nil, err
	}

	return pipeline.New(pipeline.Config[T]{
		Topics:       cfg.Kafka.Consumer.Topics,
		Consumer:     d.consumer,
		DLQ:          d.dlq,
		Validator:    v,
		NewWriter:    factory,
		Convert:      convert,
		QueueSize:    cfg.Processing.PartitionQueueSize,
		TickInterval: time.Duration(cfg.Processing.TickIntervalSeconds) * time.Second,
		Logger:       d.logger,
		Metrics:      d.metrics,
	})
}

// pathGenerator builds the generator for one writer. Every writer gets a
// fresh instance id, so a writer recreated after a failure never reuses
// the paths of its predecessor.
func pathGenerator(cfg dto.PathConfig, ext string, partition message.PartitionID) storage.PathGenerator {
	instance := pathgen.NewInstanceID()
	if cfg.Layout == "sequential" {
		return pathgen.Sequential(path.Join(cfg.BasePath, partition.String(), instance), ext)
	}
	return pathgen.Partitioned(pathgen.PartitionedConfig{
		BasePath:   cfg.BasePath,
		Prefix:     cfg.Prefix,
		Extension:  ext,
		InstanceID: instance,
	}, partition)
}

func valueOf(msg *message.ConsumedMessage) []byte {
	return msg.Value
}

func keyValueOf(msg *message.ConsumedMessage) message.KeyValue {
	return message.KeyValue{Key: msg.Metadata.Key, Value: msg.Value}
}
