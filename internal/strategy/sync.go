// Package strategy implements the sync and rotation policies of the rotating writer.
//
// Policies form closed variant sets: counters, byte thresholds, time and
// never-firing policies, composed with AND/OR combinators. Every policy is
// fed the encoded size of each append and reset right after it fires.
// Combinators always feed both children and reset both together.
package strategy

import (
	"github.com/jittakal/kafrotator/internal/errors"
	"github.com/jittakal/kafrotator/pkg/storage"
)

// Ensure implementations satisfy interfaces at compile time.
var (
	_ storage.SyncStrategy = (*CountSync)(nil)
	_ storage.SyncStrategy = (*BytesSync)(nil)
	_ storage.SyncStrategy = NoSync{}
	_ storage.SyncStrategy = (*OrSync)(nil)
)

// CountSync fires after every n appends since the last reset.
type CountSync struct {
	n     int64
	count int64
}

// SyncCount creates a sync strategy firing every n appends.
func SyncCount(n int) (*CountSync, error) {
	if n < 1 {
		return nil, &errors.ConfigurationError{Field: "sync.count", Reason: "must be at least 1"}
	}
	return &CountSync{n: int64(n)}, nil
}

// ShouldSync counts one append.
func (s *CountSync) ShouldSync(int64) bool {
	s.count++
	return s.count >= s.n
}

// Reset clears the counter.
func (s *CountSync) Reset() {
	s.count = 0
}

// BytesSync fires once the bytes appended since the last reset reach a threshold.
type BytesSync struct {
	threshold int64
	bytes     int64
}

// SyncBytes creates a sync strategy firing every threshold bytes.
func SyncBytes(threshold int64) (*BytesSync, error) {
	if threshold <= 0 {
		return nil, &errors.ConfigurationError{Field: "sync.bytes", Reason: "must be positive"}
	}
	return &BytesSync{threshold: threshold}, nil
}

// ShouldSync accumulates size.
func (s *BytesSync) ShouldSync(size int64) bool {
	s.bytes += size
	return s.bytes >= s.threshold
}

// Reset clears the accumulated bytes.
func (s *BytesSync) Reset() {
	s.bytes = 0
}

// NoSync never fires. Data becomes durable when the handle is closed.
type NoSync struct{}

// SyncNone returns the never-firing sync strategy.
func SyncNone() NoSync {
	return NoSync{}
}

// ShouldSync always returns false.
func (NoSync) ShouldSync(int64) bool { return false }

// Reset does nothing.
func (NoSync) Reset() {}

// OrSync fires when either child fires.
type OrSync struct {
	left, right storage.SyncStrategy
}

// SyncOr combines two sync strategies with a logical OR.
func SyncOr(left, right storage.SyncStrategy) *OrSync {
	return &OrSync{left: left, right: right}
}

// ShouldSync feeds size to both children.
func (s *OrSync) ShouldSync(size int64) bool {
	l := s.left.ShouldSync(size)
	r := s.right.ShouldSync(size)
	return l || r
}

// Reset resets both children.
func (s *OrSync) Reset() {
	s.left.Reset()
	s.right.Reset()
}
