package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jittakal/kafrotator/internal/errors"
	"github.com/jittakal/kafrotator/pkg/storage"
)

// Ensure implementation satisfies interface at compile time.
var (
	_ storage.Backend = (*FileBackend)(nil)
	_ storage.Source  = (*FileBackend)(nil)
	_ storage.Aborter = (*fileSink)(nil)
)

// FileConfig contains local filesystem configuration.
type FileConfig struct {
	BasePath string
	// TempDir holds files while they are being written. Relative paths are
	// resolved under BasePath.
	TempDir string
	// Overwrite allows replacing an existing target on close.
	Overwrite bool
}

// FileBackend writes files under a base directory.
// Files are written in a temporary directory and moved to their target on
// Close, so readers never observe a partial file.
type FileBackend struct {
	basePath  string
	tempDir   string
	overwrite bool
	logger    *slog.Logger
	metrics   MetricsCollector
}

// NewFileBackend creates a new filesystem backend.
func NewFileBackend(cfg FileConfig, logger *slog.Logger, metrics MetricsCollector) (*FileBackend, error) {
	if cfg.BasePath == "" {
		return nil, &errors.ConfigurationError{Field: "storage.file.base_path", Reason: "is required"}
	}

	tempDir := cfg.TempDir
	if tempDir == "" {
		tempDir = ".tmp"
	}
	if !filepath.IsAbs(tempDir) {
		tempDir = filepath.Join(cfg.BasePath, tempDir)
	}

	for _, dir := range []string{cfg.BasePath, tempDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	logger.Info("filesystem backend created",
		"base_path", cfg.BasePath,
		"temp_dir", tempDir,
		"overwrite", cfg.Overwrite,
	)

	return &FileBackend{
		basePath:  cfg.BasePath,
		tempDir:   tempDir,
		overwrite: cfg.Overwrite,
		logger:    logger,
		metrics:   metrics,
	}, nil
}

// Name returns "file".
func (b *FileBackend) Name() string { return "file" }

// relPath resolves path under the base directory.
func relPath(path string) (string, error) {
	rel := filepath.FromSlash(strings.TrimLeft(strings.TrimPrefix(path, "file://"), "/"))
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("path %q escapes the base directory", path)
	}
	return rel, nil
}

// Open creates the temporary file for path.
func (b *FileBackend) Open(_ context.Context, path string) (storage.Sink, error) {
	rel, err := relPath(path)
	if err != nil {
		return nil, err
	}

	target := filepath.Join(b.basePath, rel)
	if !b.overwrite {
		if _, err := os.Stat(target); err == nil {
			b.countError("open")
			return nil, fmt.Errorf("%s: %w", target, errors.ErrTargetExists)
		}
	}

	temp := filepath.Join(b.tempDir, rel)
	if err := os.MkdirAll(filepath.Dir(temp), 0755); err != nil {
		b.countError("mkdir")
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	f, err := os.OpenFile(temp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		b.countError("open")
		return nil, fmt.Errorf("failed to create file: %w", err)
	}

	b.logger.Debug("opened file", "temp", temp, "target", target)

	return instrument(&fileSink{
		file:      f,
		temp:      temp,
		target:    target,
		overwrite: b.overwrite,
	}, b.Name(), b.metrics), nil
}

// OpenReader opens the published file at path.
func (b *FileBackend) OpenReader(_ context.Context, path string) (io.ReadCloser, error) {
	rel, err := relPath(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(b.basePath, rel))
	if err != nil {
		b.countError("read")
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return f, nil
}

// Close releases nothing; files are closed by their sinks.
func (b *FileBackend) Close() error {
	b.logger.Info("closing filesystem backend")
	return nil
}

func (b *FileBackend) countError(operation string) {
	if b.metrics != nil {
		b.metrics.IncStorageErrors(b.Name(), operation)
	}
}

// fileSink writes to a temporary file and renames it into place on Close.
type fileSink struct {
	file      *os.File
	temp      string
	target    string
	overwrite bool
	closed    bool
}

func (s *fileSink) Write(p []byte) (int, error) {
	return s.file.Write(p)
}

func (s *fileSink) Sync() error {
	return s.file.Sync()
}

// Abort closes the temporary file and removes it; the target is untouched.
func (s *fileSink) Abort() error {
	if s.closed {
		return nil
	}
	s.closed = true

	closeErr := s.file.Close()
	if err := os.Remove(s.temp); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove temporary file: %w", err)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close file: %w", closeErr)
	}
	return nil
}

func (s *fileSink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.file.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.target), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if !s.overwrite {
		if _, err := os.Stat(s.target); err == nil {
			return fmt.Errorf("%s: %w", s.target, errors.ErrTargetExists)
		}
	}
	if err := os.Rename(s.temp, s.target); err != nil {
		return fmt.Errorf("failed to move file into place: %w", err)
	}
	return nil
}
