package storage

import (
	"context"
	stderrors "errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/jittakal/kafrotator/internal/errors"
	"github.com/jittakal/kafrotator/pkg/storage"
)

func newTestFileBackend(t *testing.T, overwrite bool, metrics MetricsCollector) (*FileBackend, string) {
	t.Helper()
	base := t.TempDir()
	backend, err := NewFileBackend(FileConfig{BasePath: base, Overwrite: overwrite}, testLogger(), metrics)
	if err != nil {
		t.Fatalf("NewFileBackend() error = %v", err)
	}
	return backend, base
}

func TestNewFileBackend(t *testing.T) {
	tests := []struct {
		name    string
		config  FileConfig
		wantErr bool
	}{
		{name: "default temp dir", config: FileConfig{BasePath: t.TempDir()}, wantErr: false},
		{name: "absolute temp dir", config: FileConfig{BasePath: t.TempDir(), TempDir: t.TempDir()}, wantErr: false},
		{name: "missing base path", config: FileConfig{}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend, err := NewFileBackend(tt.config, testLogger(), nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewFileBackend() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if _, err := os.Stat(backend.tempDir); err != nil {
				t.Errorf("temp dir not created: %v", err)
			}
		})
	}
}

func TestFileBackend_WriteThenRename(t *testing.T) {
	metrics := &mockMetricsCollector{}
	backend, base := newTestFileBackend(t, true, metrics)

	sink, err := backend.Open(context.Background(), "topic/dt=2025-01-01/pid=0/f.log")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	target := filepath.Join(base, "topic", "dt=2025-01-01", "pid=0", "f.log")
	temp := filepath.Join(base, ".tmp", "topic", "dt=2025-01-01", "pid=0", "f.log")

	if _, err := sink.Write([]byte("hello\n")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := sink.Sync(); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	if _, err := os.Stat(target); !os.IsNotExist(err) {
		t.Error("target should not exist before Close")
	}
	if _, err := os.Stat(temp); err != nil {
		t.Errorf("temp file should exist before Close: %v", err)
	}

	if err := sink.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}

	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(data) != "hello\n" {
		t.Errorf("content = %q, want %q", data, "hello\n")
	}
	if _, err := os.Stat(temp); !os.IsNotExist(err) {
		t.Error("temp file should be gone after Close")
	}

	if metrics.durations["sync"] != 1 || metrics.durations["close"] != 2 {
		t.Errorf("durations = %v, want one sync and two close observations", metrics.durations)
	}
}

func TestFileBackend_AbortDiscardsFile(t *testing.T) {
	metrics := &mockMetricsCollector{}
	backend, base := newTestFileBackend(t, true, metrics)

	sink, err := backend.Open(context.Background(), "topic/f.log")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if _, err := sink.Write([]byte("partial")); err != nil {
		t.Fatal(err)
	}

	aborter, ok := sink.(storage.Aborter)
	if !ok {
		t.Fatal("file sink should support Abort")
	}
	if err := aborter.Abort(); err != nil {
		t.Fatalf("Abort() error = %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close() after Abort() error = %v", err)
	}

	if _, err := os.Stat(filepath.Join(base, "topic", "f.log")); !os.IsNotExist(err) {
		t.Error("aborted file should not reach its target")
	}
	if _, err := os.Stat(filepath.Join(base, ".tmp", "topic", "f.log")); !os.IsNotExist(err) {
		t.Error("aborted temp file should be removed")
	}
}

func TestFileBackend_OpenReader(t *testing.T) {
	backend, _ := newTestFileBackend(t, true, nil)

	sink, err := backend.Open(context.Background(), "topic/f.log")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if _, err := sink.Write([]byte("published")); err != nil {
		t.Fatal(err)
	}

	if _, err := backend.OpenReader(context.Background(), "topic/f.log"); err == nil {
		t.Error("OpenReader() should not see a file before Close")
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	r, err := backend.OpenReader(context.Background(), "file:///topic/f.log")
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "published" {
		t.Errorf("content = %q, want published", data)
	}

	if _, err := backend.OpenReader(context.Background(), "../outside"); err == nil {
		t.Error("OpenReader() of an escaping path should fail")
	}
}

func TestFileBackend_Overwrite(t *testing.T) {
	tests := []struct {
		name      string
		overwrite bool
		wantErr   bool
	}{
		{name: "overwrite allowed", overwrite: true, wantErr: false},
		{name: "overwrite refused", overwrite: false, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend, base := newTestFileBackend(t, tt.overwrite, nil)
			if err := os.WriteFile(filepath.Join(base, "existing"), []byte("old"), 0644); err != nil {
				t.Fatal(err)
			}

			sink, err := backend.Open(context.Background(), "existing")
			if (err != nil) != tt.wantErr {
				t.Fatalf("Open() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !stderrors.Is(err, errors.ErrTargetExists) {
					t.Errorf("Open() error = %v, want ErrTargetExists", err)
				}
				return
			}

			if _, err := sink.Write([]byte("new")); err != nil {
				t.Fatal(err)
			}
			if err := sink.Close(); err != nil {
				t.Fatalf("Close() error = %v", err)
			}
			data, _ := os.ReadFile(filepath.Join(base, "existing"))
			if string(data) != "new" {
				t.Errorf("content = %q, want new", data)
			}
		})
	}
}

func TestFileBackend_OpenEscapingPath(t *testing.T) {
	backend, _ := newTestFileBackend(t, true, nil)

	for _, path := range []string{"../outside", "a/../../outside", ""} {
		if _, err := backend.Open(context.Background(), path); err == nil {
			t.Errorf("Open(%q) should fail", path)
		}
	}
}

func TestFileBackend_FileScheme(t *testing.T) {
	backend, base := newTestFileBackend(t, true, nil)

	sink, err := backend.Open(context.Background(), "file:///a/b.log")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(base, "a", "b.log")); err != nil {
		t.Errorf("expected file under base path: %v", err)
	}
}
