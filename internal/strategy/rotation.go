package strategy

import (
	"math"
	"time"

	"github.com/c2h5oh/datasize"

	"github.com/jittakal/kafrotator/internal/errors"
	"github.com/jittakal/kafrotator/pkg/storage"
)

// Ensure implementations satisfy interfaces at compile time.
var (
	_ storage.RotationStrategy = (*SizeRotation)(nil)
	_ storage.RotationStrategy = (*CountRotation)(nil)
	_ storage.RotationStrategy = (*TimeRotation)(nil)
	_ storage.RotationStrategy = NoRotation{}
	_ storage.RotationStrategy = (*AndRotation)(nil)
	_ storage.RotationStrategy = (*OrRotation)(nil)
	_ storage.Expirer          = (*TimeRotation)(nil)
	_ storage.Expirer          = (*AndRotation)(nil)
	_ storage.Expirer          = (*OrRotation)(nil)
)

// FileUnit scales size thresholds to bytes.
type FileUnit = datasize.ByteSize

// File units.
const (
	Byte FileUnit = datasize.B
	KB   FileUnit = datasize.KB
	MB   FileUnit = datasize.MB
	GB   FileUnit = datasize.GB
	TB   FileUnit = datasize.TB
)

// SizeRotation fires once the bytes appended since the last reset reach a threshold.
type SizeRotation struct {
	threshold int64
	bytes     int64
}

// RotateSize creates a size strategy of threshold units, e.g. RotateSize(0.5, KB).
func RotateSize(threshold float64, unit FileUnit) (*SizeRotation, error) {
	bytes := threshold * float64(unit.Bytes())
	if threshold <= 0 || unit == 0 || math.IsNaN(bytes) || math.IsInf(bytes, 0) {
		return nil, &errors.ConfigurationError{Field: "rotation.size", Reason: "must be positive"}
	}
	if bytes >= math.MaxInt64 {
		return nil, &errors.ConfigurationError{Field: "rotation.size", Reason: "exceeds the largest file size"}
	}
	return &SizeRotation{threshold: int64(math.Ceil(bytes))}, nil
}

// Threshold returns the threshold in bytes.
func (s *SizeRotation) Threshold() int64 {
	return s.threshold
}

// ShouldRotate accumulates size.
func (s *SizeRotation) ShouldRotate(size int64) bool {
	s.bytes += size
	return s.bytes >= s.threshold
}

// Reset clears the accumulated bytes.
func (s *SizeRotation) Reset() {
	s.bytes = 0
}

// CountRotation fires once n elements have been appended since the last reset.
type CountRotation struct {
	n     int64
	count int64
}

// RotateCount creates a rotation strategy firing every n elements.
func RotateCount(n int) (*CountRotation, error) {
	if n < 1 {
		return nil, &errors.ConfigurationError{Field: "rotation.count", Reason: "must be at least 1"}
	}
	return &CountRotation{n: int64(n)}, nil
}

// ShouldRotate counts one element.
func (s *CountRotation) ShouldRotate(int64) bool {
	s.count++
	return s.count >= s.n
}

// Reset clears the counter.
func (s *CountRotation) Reset() {
	s.count = 0
}

// TimeRotation fires once the current file has been open for an interval.
// The file age starts at the first append after a reset.
type TimeRotation struct {
	interval time.Duration
	clock    func() time.Time
	start    time.Time
}

// RotateTime creates a time strategy. A nil clock uses time.Now.
func RotateTime(interval time.Duration, clock func() time.Time) (*TimeRotation, error) {
	if interval <= 0 {
		return nil, &errors.ConfigurationError{Field: "rotation.interval", Reason: "must be positive"}
	}
	if clock == nil {
		clock = time.Now
	}
	return &TimeRotation{interval: interval, clock: clock}, nil
}

// ShouldRotate starts the file clock on first use and checks its age.
func (s *TimeRotation) ShouldRotate(int64) bool {
	now := s.clock()
	if s.start.IsZero() {
		s.start = now
	}
	return s.Expired(now)
}

// Expired reports whether the current file is older than the interval.
func (s *TimeRotation) Expired(now time.Time) bool {
	if s.start.IsZero() {
		return false
	}
	return now.Sub(s.start) >= s.interval
}

// Reset restarts the file clock.
func (s *TimeRotation) Reset() {
	s.start = time.Time{}
}

// NoRotation never fires; the whole run lands in one file.
type NoRotation struct{}

// RotateNone returns the never-firing rotation strategy.
func RotateNone() NoRotation {
	return NoRotation{}
}

// ShouldRotate always returns false.
func (NoRotation) ShouldRotate(int64) bool { return false }

// Reset does nothing.
func (NoRotation) Reset() {}

// AndRotation fires when both children fire on the same append.
type AndRotation struct {
	left, right storage.RotationStrategy
}

// RotateAnd combines two rotation strategies with a logical AND.
func RotateAnd(left, right storage.RotationStrategy) *AndRotation {
	return &AndRotation{left: left, right: right}
}

// ShouldRotate feeds size to both children.
func (s *AndRotation) ShouldRotate(size int64) bool {
	l := s.left.ShouldRotate(size)
	r := s.right.ShouldRotate(size)
	return l && r
}

// Expired is true only when both children are time-aware and expired.
// A count or size child cannot fire without a new element.
func (s *AndRotation) Expired(now time.Time) bool {
	le, lok := s.left.(storage.Expirer)
	re, rok := s.right.(storage.Expirer)
	switch {
	case lok && rok:
		return le.Expired(now) && re.Expired(now)
	default:
		return false
	}
}

// Reset resets both children.
func (s *AndRotation) Reset() {
	s.left.Reset()
	s.right.Reset()
}

// OrRotation fires when either child fires.
type OrRotation struct {
	left, right storage.RotationStrategy
}

// RotateOr combines two rotation strategies with a logical OR.
func RotateOr(left, right storage.RotationStrategy) *OrRotation {
	return &OrRotation{left: left, right: right}
}

// ShouldRotate feeds size to both children.
func (s *OrRotation) ShouldRotate(size int64) bool {
	l := s.left.ShouldRotate(size)
	r := s.right.ShouldRotate(size)
	return l || r
}

// Expired reports whether any time-aware child is expired.
func (s *OrRotation) Expired(now time.Time) bool {
	if e, ok := s.left.(storage.Expirer); ok && e.Expired(now) {
		return true
	}
	if e, ok := s.right.(storage.Expirer); ok && e.Expired(now) {
		return true
	}
	return false
}

// Reset resets both children.
func (s *OrRotation) Reset() {
	s.left.Reset()
	s.right.Reset()
}
