package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/streaming"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/appendblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"

	"github.com/jittakal/kafrotator/pkg/storage"
)

// Ensure implementation satisfies interface at compile time.
var (
	_ storage.Backend = (*AzureBackend)(nil)
	_ storage.Source  = (*AzureBackend)(nil)
	_ storage.Aborter = (*azureSink)(nil)
)

// maxAppendBlock bounds the size of one AppendBlock call.
const maxAppendBlock = 4 * 1024 * 1024

// AzureConfig contains Azure Blob Storage configuration.
type AzureConfig struct {
	AccountName   string
	AccountKey    string
	ContainerName string
	Endpoint      string
}

// appendBlockClient is the subset of appendblob.Client used by Azure sinks.
type appendBlockClient interface {
	AppendBlock(ctx context.Context, body io.ReadSeekCloser, o *appendblob.AppendBlockOptions) (appendblob.AppendBlockResponse, error)
	Delete(ctx context.Context, o *blob.DeleteOptions) (blob.DeleteResponse, error)
}

// AzureBackend writes append blobs to Azure Blob Storage.
type AzureBackend struct {
	container *container.Client
	logger    *slog.Logger
	metrics   MetricsCollector
}

// NewAzureBackend creates a new Azure Blob Storage backend.
func NewAzureBackend(cfg AzureConfig, logger *slog.Logger, metrics MetricsCollector) (*AzureBackend, error) {
	var connectionString string
	if cfg.Endpoint != "" {
		connectionString = fmt.Sprintf("DefaultEndpointsProtocol=https;AccountName=%s;AccountKey=%s;BlobEndpoint=%s",
			cfg.AccountName, cfg.AccountKey, cfg.Endpoint)
	} else {
		connectionString = fmt.Sprintf("DefaultEndpointsProtocol=https;AccountName=%s;AccountKey=%s;EndpointSuffix=core.windows.net",
			cfg.AccountName, cfg.AccountKey)
	}

	client, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure client: %w", err)
	}

	logger.Info("Azure backend created",
		"container", cfg.ContainerName,
		"account", cfg.AccountName,
	)

	return &AzureBackend{
		container: client.ServiceClient().NewContainerClient(cfg.ContainerName),
		logger:    logger,
		metrics:   metrics,
	}, nil
}

// Name returns "azure".
func (b *AzureBackend) Name() string { return "azure" }

// Open creates an empty append blob at path.
func (b *AzureBackend) Open(ctx context.Context, path string) (storage.Sink, error) {
	blobName := objectKey(path, "wasbs://")
	if blobName == "" {
		return nil, fmt.Errorf("empty blob name for path %q", path)
	}

	client := b.container.NewAppendBlobClient(blobName)
	if _, err := client.Create(ctx, nil); err != nil {
		if b.metrics != nil {
			b.metrics.IncStorageErrors(b.Name(), "create")
		}
		return nil, fmt.Errorf("failed to create append blob: %w", err)
	}

	return instrument(newAzureSink(ctx, client), b.Name(), b.metrics), nil
}

// OpenReader downloads the blob at path as a stream.
func (b *AzureBackend) OpenReader(ctx context.Context, path string) (io.ReadCloser, error) {
	blobName := objectKey(path, "wasbs://")
	if blobName == "" {
		return nil, fmt.Errorf("empty blob name for path %q", path)
	}

	resp, err := b.container.NewBlobClient(blobName).DownloadStream(ctx, nil)
	if err != nil {
		if b.metrics != nil {
			b.metrics.IncStorageErrors(b.Name(), "read")
		}
		return nil, fmt.Errorf("failed to download blob: %w", err)
	}
	return resp.Body, nil
}

// Close releases nothing; the SDK client holds no connections to close.
func (b *AzureBackend) Close() error {
	b.logger.Info("Azure backend closed")
	return nil
}

// azureSink buffers writes and appends them to the blob on Sync and Close.
type azureSink struct {
	ctx     context.Context
	blob    appendBlockClient
	pending bytes.Buffer
	closed  bool
}

func newAzureSink(ctx context.Context, client appendBlockClient) *azureSink {
	return &azureSink{ctx: ctx, blob: client}
}

func (s *azureSink) Write(p []byte) (int, error) {
	return s.pending.Write(p)
}

// Sync appends the pending bytes as one or more blocks.
func (s *azureSink) Sync() error {
	for s.pending.Len() > 0 {
		chunk := s.pending.Next(min(s.pending.Len(), maxAppendBlock))
		body := streaming.NopCloser(bytes.NewReader(chunk))
		if _, err := s.blob.AppendBlock(s.ctx, body, nil); err != nil {
			return fmt.Errorf("failed to append block: %w", err)
		}
	}
	return nil
}

// Abort drops unsynced bytes and deletes the blob, removing blocks that
// were already appended.
func (s *azureSink) Abort() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.pending.Reset()
	if _, err := s.blob.Delete(s.ctx, nil); err != nil {
		return fmt.Errorf("failed to delete append blob: %w", err)
	}
	return nil
}

func (s *azureSink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.Sync()
}
