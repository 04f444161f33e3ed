package handle

import (
	"bytes"
	"context"
	"errors"

	"github.com/jittakal/kafrotator/pkg/storage"
)

type memSink struct {
	buf      bytes.Buffer
	syncs    int
	closes   int
	aborts   int
	writeErr error
}

func (s *memSink) Write(p []byte) (int, error) {
	if s.writeErr != nil {
		return 0, s.writeErr
	}
	return s.buf.Write(p)
}

func (s *memSink) Sync() error {
	s.syncs++
	return nil
}

func (s *memSink) Close() error {
	s.closes++
	return nil
}

func (s *memSink) Abort() error {
	s.aborts++
	s.buf.Reset()
	return nil
}

type memBackend struct {
	sinks   map[string]*memSink
	openErr error
}

func newMemBackend() *memBackend {
	return &memBackend{sinks: make(map[string]*memSink)}
}

func (b *memBackend) Open(_ context.Context, path string) (storage.Sink, error) {
	if b.openErr != nil {
		return nil, b.openErr
	}
	s := &memSink{}
	b.sinks[path] = s
	return s, nil
}

func (b *memBackend) Name() string { return "mem" }

func (b *memBackend) Close() error { return nil }

var errDiskFull = errors.New("disk full")
