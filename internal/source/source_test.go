package source

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"testing"

	internalcodec "github.com/jittakal/kafrotator/internal/codec"
	"github.com/jittakal/kafrotator/internal/errors"
	"github.com/jittakal/kafrotator/internal/handle"
	"github.com/jittakal/kafrotator/internal/pathgen"
	filestore "github.com/jittakal/kafrotator/internal/storage"
	"github.com/jittakal/kafrotator/internal/strategy"
	"github.com/jittakal/kafrotator/internal/writer"
	"github.com/jittakal/kafrotator/pkg/message"
	"github.com/jittakal/kafrotator/pkg/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newBackend(t *testing.T) *filestore.FileBackend {
	t.Helper()
	backend, err := filestore.NewFileBackend(filestore.FileConfig{BasePath: t.TempDir()}, testLogger(), nil)
	if err != nil {
		t.Fatalf("NewFileBackend() error = %v", err)
	}
	return backend
}

func mustSyncCount(t *testing.T, n int) storage.SyncStrategy {
	t.Helper()
	s, err := strategy.SyncCount(n)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func mustSize(t *testing.T, threshold float64, unit strategy.FileUnit) storage.RotationStrategy {
	t.Helper()
	s, err := strategy.RotateSize(threshold, unit)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

// writeAll runs data through a writer and returns the paths of the files
// it published, in order.
func writeAll[T any](t *testing.T, open storage.Opener[T], sync storage.SyncStrategy, rotation storage.RotationStrategy, ext string, data []T) []string {
	t.Helper()
	w, err := writer.New[T, int](writer.Config[T]{
		Name:          "roundtrip",
		Sync:          sync,
		Rotation:      rotation,
		PathGenerator: pathgen.Sequential("out", ext),
		Opener:        open,
		Logger:        testLogger(),
	})
	if err != nil {
		t.Fatalf("writer.New() error = %v", err)
	}

	var paths []string
	for i, d := range data {
		rm, err := w.Process(context.Background(), message.WithPassthrough(d, i))
		if err != nil {
			t.Fatalf("Process(%d) error = %v", i, err)
		}
		if rm != nil {
			paths = append(paths, rm.Path)
		}
	}
	rm, err := w.Finish(context.Background())
	if err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	if rm != nil {
		paths = append(paths, rm.Path)
	}
	return paths
}

// fakeContent returns chunks of pseudo-random text totalling about total bytes.
func fakeContent(total, chunks int) [][]byte {
	const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789 "
	rng := rand.New(rand.NewSource(42))
	size := total / chunks
	out := make([][]byte, chunks)
	for i := range out {
		chunk := make([]byte, size)
		for j := range chunk {
			chunk[j] = alphabet[rng.Intn(len(alphabet))]
		}
		out[i] = chunk
	}
	return out
}

func TestReader_DataRoundTrip(t *testing.T) {
	backend := newBackend(t)
	var content [][]byte
	for i := 0; i < 85; i++ {
		content = append(content, []byte(fmt.Sprintf("record-%04d|", i)))
	}

	paths := writeAll(t, handle.RawOpener(backend, false),
		mustSyncCount(t, 500), mustSize(t, 0.5, strategy.KB), ".log", content)
	if len(paths) < 2 {
		t.Fatalf("files = %d, want at least 2 for 1KB rotated at 0.5KB", len(paths))
	}

	r := New(backend, testLogger())
	var got bytes.Buffer
	for _, p := range paths {
		rc, err := r.Data(context.Background(), p)
		if err != nil {
			t.Fatalf("Data(%q) error = %v", p, err)
		}
		if _, err := io.Copy(&got, rc); err != nil {
			t.Fatal(err)
		}
		rc.Close()
	}

	if want := bytes.Join(content, nil); !bytes.Equal(got.Bytes(), want) {
		t.Errorf("read %d bytes, want %d identical bytes", got.Len(), len(want))
	}
}

func TestReader_CompressedRoundTrip(t *testing.T) {
	content := fakeContent(1024*1024, 30)
	want := bytes.Join(content, nil)

	for _, name := range []string{"gzip", "zstd", "snappy", "lz4"} {
		t.Run(name, func(t *testing.T) {
			c, err := internalcodec.New(name)
			if err != nil {
				t.Fatalf("codec.New() error = %v", err)
			}
			backend := newBackend(t)

			paths := writeAll(t, handle.CompressedOpener(backend, c, false),
				mustSyncCount(t, 1), mustSize(t, 0.1, strategy.MB), ".log"+c.FileExtension(), content)
			if len(paths) < 2 {
				t.Fatalf("files = %d, want at least 2 for 1MB rotated at 0.1MB", len(paths))
			}

			r := New(backend, testLogger())
			var got bytes.Buffer
			for _, p := range paths {
				rc, err := r.Compressed(context.Background(), p, c)
				if err != nil {
					t.Fatalf("Compressed(%q) error = %v", p, err)
				}
				if _, err := io.Copy(&got, rc); err != nil {
					t.Fatalf("reading %q: %v", p, err)
				}
				if err := rc.Close(); err != nil {
					t.Errorf("Close() error = %v", err)
				}
			}

			if !bytes.Equal(got.Bytes(), want) {
				t.Errorf("read %d bytes, want %d identical bytes", got.Len(), len(want))
			}
		})
	}
}

func TestReader_Lines(t *testing.T) {
	gzip, err := internalcodec.New("gzip")
	if err != nil {
		t.Fatal(err)
	}
	lines := [][]byte{[]byte("first"), []byte("second record"), []byte("third")}

	tests := []struct {
		name string
		open func(b *filestore.FileBackend) storage.Opener[[]byte]
		read func(r *Reader, p string, fn func([]byte) error) error
	}{
		{
			name: "plain",
			open: func(b *filestore.FileBackend) storage.Opener[[]byte] { return handle.RawOpener(b, true) },
			read: func(r *Reader, p string, fn func([]byte) error) error {
				return r.Lines(context.Background(), p, nil, fn)
			},
		},
		{
			name: "gzip",
			open: func(b *filestore.FileBackend) storage.Opener[[]byte] { return handle.CompressedOpener(b, gzip, true) },
			read: func(r *Reader, p string, fn func([]byte) error) error {
				return r.Lines(context.Background(), p, gzip, fn)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := newBackend(t)
			paths := writeAll(t, tt.open(backend), strategy.SyncNone(), strategy.RotateNone(), ".log", lines)
			if len(paths) != 1 {
				t.Fatalf("files = %d, want 1", len(paths))
			}

			var got []string
			err := tt.read(New(backend, testLogger()), paths[0], func(line []byte) error {
				got = append(got, string(line))
				return nil
			})
			if err != nil {
				t.Fatalf("Lines() error = %v", err)
			}
			if len(got) != len(lines) {
				t.Fatalf("lines = %q, want %q", got, lines)
			}
			for i := range lines {
				if got[i] != string(lines[i]) {
					t.Errorf("line %d = %q, want %q", i, got[i], lines[i])
				}
			}
		})
	}
}

func TestReader_LinesStopsOnCallbackError(t *testing.T) {
	backend := newBackend(t)
	paths := writeAll(t, handle.RawOpener(backend, true), strategy.SyncNone(), strategy.RotateNone(), ".log",
		[][]byte{[]byte("a"), []byte("b"), []byte("c")})

	stop := stderrors.New("stop")
	var seen int
	err := New(backend, testLogger()).Lines(context.Background(), paths[0], nil, func([]byte) error {
		seen++
		return stop
	})
	if !stderrors.Is(err, stop) || seen != 1 {
		t.Errorf("Lines() error = %v after %d lines, want stop after 1", err, seen)
	}
}

func TestReader_RecordsRoundTrip(t *testing.T) {
	var content []message.KeyValue
	value := bytes.Repeat([]byte("v"), 100)
	for i := 0; i < 5000; i++ {
		content = append(content, message.KeyValue{
			Key:   []byte(fmt.Sprintf("key-%05d", i)),
			Value: append([]byte(fmt.Sprintf("%05d:", i)), value...),
		})
	}

	tests := []struct {
		name   string
		ext    string
		cfg    handle.RecordConfig
		opener func(storage.Backend, handle.RecordConfig) (storage.Opener[message.KeyValue], error)
	}{
		{name: "avro bytes", ext: ".avro", cfg: handle.RecordConfig{KeyType: handle.FieldBytes, ValueType: handle.FieldBytes}, opener: handle.AvroOpener},
		{name: "avro strings deflate", ext: ".avro", cfg: handle.RecordConfig{KeyType: handle.FieldString, ValueType: handle.FieldString, Compression: "deflate"}, opener: handle.AvroOpener},
		{name: "parquet bytes", ext: ".parquet", cfg: handle.RecordConfig{KeyType: handle.FieldBytes, ValueType: handle.FieldBytes}, opener: handle.ParquetOpener},
		{name: "parquet strings zstd", ext: ".parquet", cfg: handle.RecordConfig{KeyType: handle.FieldString, ValueType: handle.FieldString, Compression: "zstd"}, opener: handle.ParquetOpener},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := newBackend(t)
			open, err := tt.opener(backend, tt.cfg)
			if err != nil {
				t.Fatalf("opener error = %v", err)
			}

			paths := writeAll(t, open, strategy.SyncNone(), mustSize(t, 1, strategy.MB), tt.ext, content)
			if len(paths) != 1 {
				t.Fatalf("files = %d, want 1 for 0.5MB rotated at 1MB", len(paths))
			}

			got, err := New(backend, testLogger()).Records(context.Background(), paths[0])
			if err != nil {
				t.Fatalf("Records() error = %v", err)
			}
			if len(got) != len(content) {
				t.Fatalf("records = %d, want %d", len(got), len(content))
			}
			for i := range content {
				if string(got[i].Key) != string(content[i].Key) || string(got[i].Value) != string(content[i].Value) {
					t.Fatalf("record %d = %q/%q, want %q/%q", i, got[i].Key, got[i].Value, content[i].Key, content[i].Value)
				}
			}
		})
	}
}

func TestReader_Errors(t *testing.T) {
	backend := newBackend(t)
	paths := writeAll(t, handle.RawOpener(backend, true), strategy.SyncNone(), strategy.RotateNone(), ".avro",
		[][]byte{[]byte("not an avro file")})
	r := New(backend, testLogger())

	tests := []struct {
		name    string
		read    func() error
		wantErr interface{}
	}{
		{
			name: "missing file",
			read: func() error {
				_, err := r.Data(context.Background(), "out/missing.log")
				return err
			},
			wantErr: new(*errors.StorageIOError),
		},
		{
			name: "unknown extension",
			read: func() error {
				_, err := r.Records(context.Background(), "out/0.log")
				return err
			},
			wantErr: new(*errors.EncodingError),
		},
		{
			name: "corrupt avro",
			read: func() error {
				_, err := r.Records(context.Background(), paths[0])
				return err
			},
			wantErr: new(*errors.EncodingError),
		},
		{
			name: "corrupt parquet",
			read: func() error {
				_, err := r.Parquet(context.Background(), paths[0])
				return err
			},
			wantErr: new(*errors.EncodingError),
		},
		{
			name: "corrupt gzip",
			read: func() error {
				gzip, _ := internalcodec.New("gzip")
				_, err := r.Compressed(context.Background(), paths[0], gzip)
				return err
			},
			wantErr: new(*errors.EncodingError),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.read()
			if err == nil {
				t.Fatal("expected an error")
			}
			if !stderrors.As(err, tt.wantErr) {
				t.Errorf("error = %v (%T), want %T", err, err, tt.wantErr)
			}
		})
	}
}
