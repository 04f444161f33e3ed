package strategy

import (
	"math"
	"time"

	"github.com/c2h5oh/datasize"

	"github.com/jittakal/kafrotator/internal/config/dto"
	"github.com/jittakal/kafrotator/internal/errors"
	"github.com/jittakal/kafrotator/pkg/storage"
)

// NewSync builds the sync strategy described by cfg.
// A count and a byte threshold are combined with OR; neither yields SyncNone.
func NewSync(cfg dto.SyncConfig) (storage.SyncStrategy, error) {
	var parts []storage.SyncStrategy

	if cfg.Count > 0 {
		s, err := SyncCount(cfg.Count)
		if err != nil {
			return nil, err
		}
		parts = append(parts, s)
	}

	if cfg.Bytes != "" {
		size, err := datasize.ParseString(cfg.Bytes)
		if err != nil {
			return nil, &errors.ConfigurationError{Field: "sync.bytes", Reason: err.Error()}
		}
		if size.Bytes() > math.MaxInt64 {
			return nil, &errors.ConfigurationError{Field: "sync.bytes", Reason: "exceeds the largest file size"}
		}
		s, err := SyncBytes(int64(size.Bytes()))
		if err != nil {
			return nil, err
		}
		parts = append(parts, s)
	}

	switch len(parts) {
	case 0:
		return SyncNone(), nil
	case 1:
		return parts[0], nil
	default:
		return SyncOr(parts[0], parts[1]), nil
	}
}

// NewRotation builds the rotation strategy described by cfg.
// Configured limits are combined with OR for "any" and AND for "all".
func NewRotation(cfg dto.FileRotationConfig, clock func() time.Time) (storage.RotationStrategy, error) {
	var parts []storage.RotationStrategy

	if cfg.MaxFileSize != "" {
		size, err := datasize.ParseString(cfg.MaxFileSize)
		if err != nil {
			return nil, &errors.ConfigurationError{Field: "file_rotation.max_file_size", Reason: err.Error()}
		}
		s, err := RotateSize(float64(size.Bytes()), Byte)
		if err != nil {
			return nil, err
		}
		parts = append(parts, s)
	}

	if cfg.MaxRecordsPerFile > 0 {
		s, err := RotateCount(cfg.MaxRecordsPerFile)
		if err != nil {
			return nil, err
		}
		parts = append(parts, s)
	}

	if cfg.MaxDurationSeconds > 0 {
		s, err := RotateTime(time.Duration(cfg.MaxDurationSeconds)*time.Second, clock)
		if err != nil {
			return nil, err
		}
		parts = append(parts, s)
	}

	if len(parts) == 0 {
		return RotateNone(), nil
	}

	var combine func(l, r storage.RotationStrategy) storage.RotationStrategy
	switch cfg.Strategy {
	case "", "any":
		combine = func(l, r storage.RotationStrategy) storage.RotationStrategy { return RotateOr(l, r) }
	case "all":
		combine = func(l, r storage.RotationStrategy) storage.RotationStrategy { return RotateAnd(l, r) }
	default:
		return nil, &errors.ConfigurationError{Field: "file_rotation.strategy", Reason: "must be any or all"}
	}

	result := parts[0]
	for _, p := range parts[1:] {
		result = combine(result, p)
	}
	return result, nil
}
