package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/jittakal/kafrotator/pkg/storage"
)

// Ensure implementation satisfies interface at compile time.
var (
	_ storage.Backend = (*GCSBackend)(nil)
	_ storage.Source  = (*GCSBackend)(nil)
	_ storage.Aborter = (*gcsSink)(nil)
)

// GCSConfig contains Google Cloud Storage configuration.
type GCSConfig struct {
	Bucket               string
	ProjectID            string
	CredentialsFile      string
	CredentialsJSON      string
	Endpoint             string
	UseDefaultCredential bool
}

// GCSBackend streams objects to Google Cloud Storage.
// Objects become visible when their writer is closed.
type GCSBackend struct {
	client  *gcs.Client
	bucket  string
	logger  *slog.Logger
	metrics MetricsCollector
}

// clientOptions selects the authentication method for cfg.
func clientOptions(cfg GCSConfig, logger *slog.Logger) []option.ClientOption {
	var opts []option.ClientOption
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	switch {
	case cfg.UseDefaultCredential:
		logger.Info("using default GCP credentials")
	case cfg.CredentialsJSON != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
		logger.Info("using GCP credentials from JSON string")
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
		logger.Info("using GCP credentials from file", "file", cfg.CredentialsFile)
	default:
		logger.Info("no explicit credentials provided, using default GCP credentials")
	}
	return opts
}

// NewGCSBackend creates a new Google Cloud Storage backend.
func NewGCSBackend(ctx context.Context, cfg GCSConfig, logger *slog.Logger, metrics MetricsCollector) (*GCSBackend, error) {
	client, err := gcs.NewClient(ctx, clientOptions(cfg, logger)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	logger.Info("GCS backend created",
		"bucket", cfg.Bucket,
		"project_id", cfg.ProjectID,
	)

	return &GCSBackend{
		client:  client,
		bucket:  cfg.Bucket,
		logger:  logger,
		metrics: metrics,
	}, nil
}

// Name returns "gcs".
func (b *GCSBackend) Name() string { return "gcs" }

// Open starts a resumable upload for the object at path.
func (b *GCSBackend) Open(ctx context.Context, path string) (storage.Sink, error) {
	name := objectKey(path, "gs://")
	if name == "" {
		return nil, fmt.Errorf("empty object name for path %q", path)
	}

	ctx, cancel := context.WithCancel(ctx)
	w := b.client.Bucket(b.bucket).Object(name).NewWriter(ctx)
	w.ContentType = contentType(name)

	return instrument(&gcsSink{w: w, cancel: cancel}, b.Name(), b.metrics), nil
}

// OpenReader streams the object at path.
func (b *GCSBackend) OpenReader(ctx context.Context, path string) (io.ReadCloser, error) {
	name := objectKey(path, "gs://")
	if name == "" {
		return nil, fmt.Errorf("empty object name for path %q", path)
	}

	r, err := b.client.Bucket(b.bucket).Object(name).NewReader(ctx)
	if err != nil {
		if b.metrics != nil {
			b.metrics.IncStorageErrors(b.Name(), "read")
		}
		return nil, fmt.Errorf("failed to read object: %w", err)
	}
	return r, nil
}

// Close closes the GCS client.
func (b *GCSBackend) Close() error {
	b.logger.Info("closing GCS backend")
	if b.client != nil {
		return b.client.Close()
	}
	return nil
}

// gcsSink adapts an object writer to storage.Sink.
type gcsSink struct {
	w      io.WriteCloser
	cancel context.CancelFunc
	closed bool
}

func (s *gcsSink) Write(p []byte) (int, error) {
	return s.w.Write(p)
}

// Sync is a no-op; GCS finalizes objects on Close.
func (s *gcsSink) Sync() error {
	return nil
}

func (s *gcsSink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.cancel != nil {
		defer s.cancel()
	}
	if err := s.w.Close(); err != nil {
		return fmt.Errorf("failed to finalize GCS object: %w", err)
	}
	return nil
}

// Abort cancels the upload; an object writer cancelled before Close never
// creates the object.
func (s *gcsSink) Abort() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.cancel != nil {
		s.cancel()
	}
	_ = s.w.Close()
	return nil
}
