package buffer

import (
	"time"

	"github.com/jittakal/kafrotator/pkg/message"
)

// Pending holds the passthroughs and statistics of one open file.
type Pending[P any] struct {
	passthroughs   []P
	sizeBytes      int64
	firstWriteTime time.Time
	lastWriteTime  time.Time
}

// NewPending creates an empty buffer.
func NewPending[P any]() *Pending[P] {
	return &Pending[P]{}
}

// Add records one appended element of size bytes written at now.
func (b *Pending[P]) Add(passthrough P, size int64, now time.Time) {
	b.passthroughs = append(b.passthroughs, passthrough)
	b.sizeBytes += size
	if b.firstWriteTime.IsZero() {
		b.firstWriteTime = now
	}
	b.lastWriteTime = now
}

// Len returns the number of buffered passthroughs.
func (b *Pending[P]) Len() int {
	return len(b.passthroughs)
}

// IsEmpty returns true if nothing was appended since the last drain.
func (b *Pending[P]) IsEmpty() bool {
	return len(b.passthroughs) == 0
}

// Stats returns the statistics of the current file.
func (b *Pending[P]) Stats() message.FileStats {
	return message.FileStats{
		RecordCount:    len(b.passthroughs),
		SizeBytes:      b.sizeBytes,
		FirstWriteTime: b.firstWriteTime,
		LastWriteTime:  b.lastWriteTime,
	}
}

// Passthroughs returns the buffered passthroughs without draining them.
// The slice must not be modified.
func (b *Pending[P]) Passthroughs() []P {
	return b.passthroughs
}

// Drain returns the buffered passthroughs and statistics and resets the buffer.
// The returned slice is owned by the caller.
func (b *Pending[P]) Drain() ([]P, message.FileStats) {
	passthroughs, stats := b.passthroughs, b.Stats()
	b.Reset()
	return passthroughs, stats
}

// Reset clears the buffer.
func (b *Pending[P]) Reset() {
	b.passthroughs = nil
	b.sizeBytes = 0
	b.firstWriteTime = time.Time{}
	b.lastWriteTime = time.Time{}
}
