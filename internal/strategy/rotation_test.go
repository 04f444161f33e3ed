package strategy

import (
	"testing"
	"time"

	"github.com/jittakal/kafrotator/internal/config/dto"
	"github.com/jittakal/kafrotator/internal/errors"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func TestRotateSize(t *testing.T) {
	s, err := RotateSize(1000, Byte)
	if err != nil {
		t.Fatalf("RotateSize() error = %v", err)
	}

	want := []bool{false, false, true}
	for i, w := range want {
		if got := s.ShouldRotate(400); got != w {
			t.Errorf("append %d: ShouldRotate() = %v, want %v", i+1, got, w)
		}
	}

	s.Reset()
	if s.ShouldRotate(400) {
		t.Error("ShouldRotate() after Reset should start from zero")
	}
}

func TestRotateSize_Threshold(t *testing.T) {
	tests := []struct {
		threshold float64
		unit      FileUnit
		want      int64
	}{
		{threshold: 1000, unit: Byte, want: 1000},
		{threshold: 0.5, unit: KB, want: 512},
		{threshold: 1.5, unit: MB, want: 1572864},
		{threshold: 1, unit: GB, want: 1 << 30},
		{threshold: 0.3, unit: Byte, want: 1},
	}

	for _, tt := range tests {
		s, err := RotateSize(tt.threshold, tt.unit)
		if err != nil {
			t.Fatalf("RotateSize(%v, %v) error = %v", tt.threshold, tt.unit, err)
		}
		if got := s.Threshold(); got != tt.want {
			t.Errorf("RotateSize(%v, %v).Threshold() = %d, want %d", tt.threshold, tt.unit, got, tt.want)
		}
	}
}

func TestRotateSize_Invalid(t *testing.T) {
	if _, err := RotateSize(0, MB); !errors.IsConfiguration(err) {
		t.Errorf("RotateSize(0) error = %v, want ConfigurationError", err)
	}
	if _, err := RotateSize(-1, MB); !errors.IsConfiguration(err) {
		t.Errorf("RotateSize(-1) error = %v, want ConfigurationError", err)
	}
	if _, err := RotateSize(1, 0); !errors.IsConfiguration(err) {
		t.Errorf("RotateSize(1, 0) error = %v, want ConfigurationError", err)
	}
	if _, err := RotateSize(1e10, TB); !errors.IsConfiguration(err) {
		t.Errorf("RotateSize(1e10, TB) error = %v, want ConfigurationError", err)
	}
}

func TestNewRotation_SizeOverflow(t *testing.T) {
	_, err := NewRotation(dto.FileRotationConfig{MaxFileSize: "9EB"}, time.Now)
	if !errors.IsConfiguration(err) {
		t.Errorf("NewRotation(9EB) error = %v, want ConfigurationError", err)
	}
}

func TestRotateCount(t *testing.T) {
	s, err := RotateCount(3)
	if err != nil {
		t.Fatalf("RotateCount() error = %v", err)
	}

	// 7 elements split into 3 + 3 + 1
	var sizes []int
	current := 0
	for i := 0; i < 7; i++ {
		current++
		if s.ShouldRotate(1) {
			sizes = append(sizes, current)
			current = 0
			s.Reset()
		}
	}
	if current > 0 {
		sizes = append(sizes, current)
	}

	want := []int{3, 3, 1}
	if len(sizes) != len(want) {
		t.Fatalf("file sizes = %v, want %v", sizes, want)
	}
	for i := range want {
		if sizes[i] != want[i] {
			t.Errorf("file sizes = %v, want %v", sizes, want)
			break
		}
	}

	if _, err := RotateCount(0); !errors.IsConfiguration(err) {
		t.Errorf("RotateCount(0) error = %v, want ConfigurationError", err)
	}
}

func TestRotateTime(t *testing.T) {
	clock := newFakeClock()
	s, err := RotateTime(time.Minute, clock.Now)
	if err != nil {
		t.Fatalf("RotateTime() error = %v", err)
	}

	if s.Expired(clock.Now()) {
		t.Error("Expired() before first append should be false")
	}
	if s.ShouldRotate(10) {
		t.Error("first append should start the file clock")
	}

	clock.Advance(30 * time.Second)
	if s.ShouldRotate(10) {
		t.Error("30s old file should not rotate")
	}

	clock.Advance(30 * time.Second)
	if !s.Expired(clock.Now()) {
		t.Error("Expired() at 60s should be true")
	}
	if !s.ShouldRotate(10) {
		t.Error("60s old file should rotate")
	}

	s.Reset()
	if s.Expired(clock.Now().Add(time.Hour)) {
		t.Error("Expired() after Reset should be false until the next append")
	}

	if _, err := RotateTime(0, nil); !errors.IsConfiguration(err) {
		t.Errorf("RotateTime(0) error = %v, want ConfigurationError", err)
	}
}

func TestRotateNone(t *testing.T) {
	s := RotateNone()
	for i := 0; i < 1000; i++ {
		if s.ShouldRotate(1 << 30) {
			t.Fatal("RotateNone should never fire")
		}
	}
}

func TestRotateAnd(t *testing.T) {
	size, _ := RotateSize(100, Byte)
	count, _ := RotateCount(3)
	s := RotateAnd(size, count)

	// size fires on the first append, count only on the third
	if s.ShouldRotate(200) {
		t.Error("first append should not fire")
	}
	if s.ShouldRotate(1) {
		t.Error("second append should not fire")
	}
	if !s.ShouldRotate(1) {
		t.Error("third append should fire with both children satisfied")
	}

	s.Reset()
	if s.ShouldRotate(1) || s.ShouldRotate(1) {
		t.Error("both children should be reset")
	}
}

func TestRotateOr(t *testing.T) {
	size, _ := RotateSize(100, Byte)
	count, _ := RotateCount(3)
	s := RotateOr(size, count)

	if s.ShouldRotate(10) {
		t.Error("first append should not fire")
	}
	if !s.ShouldRotate(90) {
		t.Error("second append should fire on size")
	}
	s.Reset()

	if s.ShouldRotate(1) || s.ShouldRotate(1) {
		t.Error("count should be reset with size")
	}
	if !s.ShouldRotate(1) {
		t.Error("third append after reset should fire on count")
	}
}

func TestRotationExpired(t *testing.T) {
	clock := newFakeClock()
	timeA, _ := RotateTime(time.Minute, clock.Now)
	timeB, _ := RotateTime(2*time.Minute, clock.Now)
	count, _ := RotateCount(10)

	or := RotateOr(count, timeA)
	and := RotateAnd(timeA, timeB)
	andMixed := RotateAnd(count, timeB)

	or.ShouldRotate(1)
	and.ShouldRotate(1)
	andMixed.ShouldRotate(1)

	clock.Advance(90 * time.Second)
	if !or.Expired(clock.Now()) {
		t.Error("OR with an expired time child should be expired")
	}
	if and.Expired(clock.Now()) {
		t.Error("AND should wait for both time children")
	}

	clock.Advance(time.Minute)
	if !and.Expired(clock.Now()) {
		t.Error("AND with both time children expired should be expired")
	}
	if andMixed.Expired(clock.Now()) {
		t.Error("AND with a count child should never expire on time alone")
	}
}

func TestNewRotation(t *testing.T) {
	clock := newFakeClock()

	tests := []struct {
		name     string
		cfg      dto.FileRotationConfig
		wantType string
		wantErr  bool
	}{
		{name: "none", cfg: dto.FileRotationConfig{}, wantType: "none"},
		{name: "size only", cfg: dto.FileRotationConfig{MaxFileSize: "1KB"}, wantType: "size"},
		{name: "count only", cfg: dto.FileRotationConfig{MaxRecordsPerFile: 10}, wantType: "count"},
		{name: "time only", cfg: dto.FileRotationConfig{MaxDurationSeconds: 60}, wantType: "time"},
		{name: "any", cfg: dto.FileRotationConfig{MaxFileSize: "1KB", MaxRecordsPerFile: 10, Strategy: "any"}, wantType: "or"},
		{name: "all", cfg: dto.FileRotationConfig{MaxFileSize: "1KB", MaxRecordsPerFile: 10, Strategy: "all"}, wantType: "and"},
		{name: "bad size", cfg: dto.FileRotationConfig{MaxFileSize: "huge"}, wantErr: true},
		{name: "bad strategy", cfg: dto.FileRotationConfig{MaxFileSize: "1KB", Strategy: "some"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewRotation(tt.cfg, clock.Now)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewRotation() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}

			var got string
			switch s.(type) {
			case NoRotation:
				got = "none"
			case *SizeRotation:
				got = "size"
			case *CountRotation:
				got = "count"
			case *TimeRotation:
				got = "time"
			case *OrRotation:
				got = "or"
			case *AndRotation:
				got = "and"
			}
			if got != tt.wantType {
				t.Errorf("NewRotation() type = %s, want %s", got, tt.wantType)
			}
		})
	}
}

func TestNewRotation_SizeFromConfig(t *testing.T) {
	s, err := NewRotation(dto.FileRotationConfig{MaxFileSize: "1KB"}, nil)
	if err != nil {
		t.Fatalf("NewRotation() error = %v", err)
	}
	size, ok := s.(*SizeRotation)
	if !ok {
		t.Fatalf("NewRotation() = %T, want *SizeRotation", s)
	}
	if size.Threshold() != 1024 {
		t.Errorf("Threshold() = %d, want 1024", size.Threshold())
	}
}
