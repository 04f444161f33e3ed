package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/jittakal/kafrotator/pkg/storage"
)

// Ensure implementation satisfies interface at compile time.
var (
	_ storage.Backend = (*S3Backend)(nil)
	_ storage.Source  = (*S3Backend)(nil)
	_ storage.Aborter = (*s3Sink)(nil)
)

// S3Config contains AWS S3 configuration.
type S3Config struct {
	Bucket       string
	Region       string
	Endpoint     string
	UsePathStyle bool
	SSEEnabled   bool
	SSEKMSKeyID  string
	// SpoolDir holds files until they are uploaded. Empty uses os.TempDir.
	SpoolDir string
}

// uploader is the subset of manager.Uploader used by S3 sinks.
type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// objectGetter is the subset of s3.Client used to read objects back.
type objectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Backend writes objects to AWS S3.
// S3 objects cannot be appended to, so each file is spooled to local disk
// and uploaded with multipart support when it is closed.
type S3Backend struct {
	uploader uploader
	getter   objectGetter
	cfg      S3Config
	logger   *slog.Logger
	metrics  MetricsCollector
}

// NewS3Backend creates a new S3 backend.
func NewS3Backend(ctx context.Context, cfg S3Config, logger *slog.Logger, metrics MetricsCollector) (*S3Backend, error) {
	awsConfig, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	up := manager.NewUploader(s3Client, func(u *manager.Uploader) {
		u.PartSize = 10 * 1024 * 1024 // 10MB parts
		u.Concurrency = 5
	})

	logger.Info("S3 backend created",
		"bucket", cfg.Bucket,
		"region", cfg.Region,
		"sse_enabled", cfg.SSEEnabled,
	)

	b := newS3Backend(up, cfg, logger, metrics)
	b.getter = s3Client
	return b, nil
}

func newS3Backend(up uploader, cfg S3Config, logger *slog.Logger, metrics MetricsCollector) *S3Backend {
	return &S3Backend{uploader: up, cfg: cfg, logger: logger, metrics: metrics}
}

// Name returns "s3".
func (b *S3Backend) Name() string { return "s3" }

// Open creates a spool file for the object at path.
func (b *S3Backend) Open(ctx context.Context, path string) (storage.Sink, error) {
	key := objectKey(path, "s3://")
	if key == "" {
		return nil, fmt.Errorf("empty object key for path %q", path)
	}

	spool, err := os.CreateTemp(b.cfg.SpoolDir, "s3-spool-*")
	if err != nil {
		if b.metrics != nil {
			b.metrics.IncStorageErrors(b.Name(), "spool_create")
		}
		return nil, fmt.Errorf("failed to create spool file: %w", err)
	}

	return instrument(&s3Sink{
		ctx:     ctx,
		backend: b,
		key:     key,
		spool:   spool,
	}, b.Name(), b.metrics), nil
}

// OpenReader streams the object at path.
func (b *S3Backend) OpenReader(ctx context.Context, path string) (io.ReadCloser, error) {
	key := objectKey(path, "s3://")
	if key == "" {
		return nil, fmt.Errorf("empty object key for path %q", path)
	}
	if b.getter == nil {
		return nil, fmt.Errorf("s3 backend has no read client")
	}

	out, err := b.getter.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if b.metrics != nil {
			b.metrics.IncStorageErrors(b.Name(), "read")
		}
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	return out.Body, nil
}

// Close releases nothing; uploads finish when sinks close.
func (b *S3Backend) Close() error {
	b.logger.Info("closing S3 backend")
	return nil
}

func (b *S3Backend) putInput(key string, body io.Reader) *s3.PutObjectInput {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(b.cfg.Bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType(key)),
	}

	if b.cfg.SSEEnabled {
		if b.cfg.SSEKMSKeyID != "" {
			input.ServerSideEncryption = types.ServerSideEncryptionAwsKms
			input.SSEKMSKeyId = aws.String(b.cfg.SSEKMSKeyID)
		} else {
			input.ServerSideEncryption = types.ServerSideEncryptionAes256
		}
	}
	return input
}

// s3Sink spools writes locally and uploads the object on Close.
type s3Sink struct {
	ctx     context.Context
	backend *S3Backend
	key     string
	spool   *os.File
	closed  bool
}

func (s *s3Sink) Write(p []byte) (int, error) {
	return s.spool.Write(p)
}

// Sync makes the spooled bytes durable on local disk.
func (s *s3Sink) Sync() error {
	return s.spool.Sync()
}

// Abort drops the spool file without uploading it.
func (s *s3Sink) Abort() error {
	if s.closed {
		return nil
	}
	s.closed = true

	closeErr := s.spool.Close()
	if err := os.Remove(s.spool.Name()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove spool file: %w", err)
	}
	return closeErr
}

// Close uploads the spooled file and removes it.
func (s *s3Sink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	defer os.Remove(s.spool.Name())
	defer s.spool.Close()

	if _, err := s.spool.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind spool file: %w", err)
	}

	result, err := s.backend.uploader.Upload(s.ctx, s.backend.putInput(s.key, s.spool))
	if err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}

	s.backend.logger.Debug("uploaded object to S3",
		"bucket", s.backend.cfg.Bucket,
		"key", s.key,
		"location", result.Location,
	)
	return nil
}
