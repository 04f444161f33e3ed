package handle

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/jittakal/kafrotator/internal/errors"
)

func TestRaw_Append(t *testing.T) {
	tests := []struct {
		name    string
		newLine bool
		want    string
		sizes   []int64
	}{
		{name: "verbatim", newLine: false, want: "abcde", sizes: []int64{2, 3}},
		{name: "newline separated", newLine: true, want: "ab\ncde\n", sizes: []int64{3, 4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &memSink{}
			h := NewRaw(sink, "f", tt.newLine)

			for i, data := range []string{"ab", "cde"} {
				n, err := h.Append([]byte(data))
				if err != nil {
					t.Fatalf("Append() error = %v", err)
				}
				if n != tt.sizes[i] {
					t.Errorf("Append(%q) = %d, want %d", data, n, tt.sizes[i])
				}
			}

			if got := sink.buf.String(); got != tt.want {
				t.Errorf("content = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRaw_SyncAndClose(t *testing.T) {
	sink := &memSink{}
	h := NewRaw(sink, "f", false)

	if err := h.Sync(); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if sink.syncs != 1 {
		t.Errorf("syncs = %d, want 1", sink.syncs)
	}

	if err := h.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if sink.closes != 1 {
		t.Errorf("closes = %d, want 1", sink.closes)
	}

	_, err := h.Append([]byte("x"))
	if !stderrors.Is(err, errors.ErrHandleClosed) {
		t.Errorf("Append() after Close error = %v, want ErrHandleClosed", err)
	}
	if err := h.Sync(); !stderrors.Is(err, errors.ErrHandleClosed) {
		t.Errorf("Sync() after Close error = %v, want ErrHandleClosed", err)
	}
}

func TestRaw_AppendError(t *testing.T) {
	sink := &memSink{writeErr: errDiskFull}
	h := NewRaw(sink, "f", false)

	_, err := h.Append([]byte("x"))
	if !errors.IsFatal(err) {
		t.Errorf("Append() error = %v, want fatal storage error", err)
	}
	if !stderrors.Is(err, errDiskFull) {
		t.Errorf("Append() error = %v, want wrapped errDiskFull", err)
	}
}

func TestRawOpener(t *testing.T) {
	backend := newMemBackend()
	open := RawOpener(backend, true)

	h, err := open(context.Background(), "dir/0")
	if err != nil {
		t.Fatalf("open() error = %v", err)
	}
	if _, err := h.Append([]byte("hello")); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if got := backend.sinks["dir/0"].buf.String(); got != "hello\n" {
		t.Errorf("content = %q, want %q", got, "hello\n")
	}
}

func TestOpener_OpenError(t *testing.T) {
	backend := newMemBackend()
	backend.openErr = errDiskFull

	_, err := RawOpener(backend, false)(context.Background(), "dir/0")

	var storageErr *errors.StorageIOError
	if !stderrors.As(err, &storageErr) {
		t.Fatalf("open() error = %v, want StorageIOError", err)
	}
	if storageErr.Operation != "open" || storageErr.Path != "dir/0" {
		t.Errorf("StorageIOError = %+v, want operation open on dir/0", storageErr)
	}
}
