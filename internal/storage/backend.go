// Package storage implements the storage backends that supply sinks to handles.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jittakal/kafrotator/internal/config/dto"
	"github.com/jittakal/kafrotator/pkg/storage"
)

// MetricsCollector defines metrics operations for storage.
type MetricsCollector interface {
	ObserveStorageDuration(backend string, operation string, seconds float64)
	IncStorageErrors(backend string, operation string)
}

// NewBackend creates the backend selected by cfg.Backend.
func NewBackend(ctx context.Context, cfg dto.StorageConfig, logger *slog.Logger, metrics MetricsCollector) (storage.Backend, error) {
	switch cfg.Backend {
	case "file":
		return NewFileBackend(FileConfig{
			BasePath:  cfg.File.BasePath,
			TempDir:   cfg.File.TempDir,
			Overwrite: cfg.File.Overwrite,
		}, logger, metrics)
	case "s3":
		return NewS3Backend(ctx, S3Config{
			Bucket:       cfg.S3.Bucket,
			Region:       cfg.S3.Region,
			Endpoint:     cfg.S3.Endpoint,
			UsePathStyle: cfg.S3.UsePathStyle,
			SSEEnabled:   cfg.S3.SSEEnabled,
			SSEKMSKeyID:  cfg.S3.SSEKMSKeyID,
			SpoolDir:     cfg.S3.SpoolDir,
		}, logger, metrics)
	case "gcs":
		return NewGCSBackend(ctx, GCSConfig{
			Bucket:               cfg.GCS.Bucket,
			ProjectID:            cfg.GCS.ProjectID,
			CredentialsFile:      cfg.GCS.CredentialsFile,
			CredentialsJSON:      cfg.GCS.CredentialsJSON,
			Endpoint:             cfg.GCS.Endpoint,
			UseDefaultCredential: cfg.GCS.UseDefaultCredential,
		}, logger, metrics)
	case "azure":
		return NewAzureBackend(AzureConfig{
			AccountName:   cfg.Azure.AccountName,
			AccountKey:    cfg.Azure.AccountKey,
			ContainerName: cfg.Azure.Container,
			Endpoint:      cfg.Azure.Endpoint,
		}, logger, metrics)
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s (supported: file, s3, azure, gcs)", cfg.Backend)
	}
}

// objectKey strips an optional scheme://bucket/ prefix and leading slashes.
func objectKey(path, scheme string) string {
	key := path
	if strings.HasPrefix(path, scheme) {
		parts := strings.SplitN(strings.TrimPrefix(path, scheme), "/", 2)
		if len(parts) == 2 {
			key = parts[1]
		} else {
			key = ""
		}
	}
	return strings.TrimLeft(key, "/")
}

// contentType guesses the object content type from its extension.
func contentType(path string) string {
	switch {
	case strings.HasSuffix(path, ".avro"):
		return "application/avro"
	case strings.HasSuffix(path, ".gz"):
		return "application/gzip"
	case strings.HasSuffix(path, ".json"), strings.HasSuffix(path, ".jsonl"):
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

// instrumentedSink reports sink failures and finalization latency.
type instrumentedSink struct {
	storage.Sink
	backend string
	metrics MetricsCollector
}

func instrument(sink storage.Sink, backend string, metrics MetricsCollector) storage.Sink {
	if metrics == nil {
		return sink
	}
	return &instrumentedSink{Sink: sink, backend: backend, metrics: metrics}
}

func (s *instrumentedSink) Write(p []byte) (int, error) {
	n, err := s.Sink.Write(p)
	if err != nil {
		s.metrics.IncStorageErrors(s.backend, "write")
	}
	return n, err
}

func (s *instrumentedSink) Sync() error {
	start := time.Now()
	err := s.Sink.Sync()
	s.metrics.ObserveStorageDuration(s.backend, "sync", time.Since(start).Seconds())
	if err != nil {
		s.metrics.IncStorageErrors(s.backend, "sync")
	}
	return err
}

// Abort forwards to the wrapped sink, closing it when it cannot abort.
func (s *instrumentedSink) Abort() error {
	a, ok := s.Sink.(storage.Aborter)
	if !ok {
		return s.Close()
	}
	err := a.Abort()
	if err != nil {
		s.metrics.IncStorageErrors(s.backend, "abort")
	}
	return err
}

func (s *instrumentedSink) Close() error {
	start := time.Now()
	err := s.Sink.Close()
	s.metrics.ObserveStorageDuration(s.backend, "close", time.Since(start).Seconds())
	if err != nil {
		s.metrics.IncStorageErrors(s.backend, "close")
	}
	return err
}
