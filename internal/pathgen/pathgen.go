// Package pathgen implements destination path generators for rotating writers.
package pathgen

import (
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jittakal/kafrotator/pkg/message"
	"github.com/jittakal/kafrotator/pkg/storage"
)

// Sequential names files after their rotation index: dir/0.ext, dir/1.ext, ...
func Sequential(dir, ext string) storage.PathGenerator {
	return func(rotation int64, _ time.Time) string {
		return path.Join(dir, strconv.FormatInt(rotation, 10)+ext)
	}
}

// PartitionedConfig configures Hive-style partitioned paths.
type PartitionedConfig struct {
	BasePath  string
	Prefix    string
	Extension string
	// InstanceID distinguishes files written by concurrent processes.
	// Empty generates a short random id.
	InstanceID string
}

// Partitioned returns a generator for one Kafka partition.
// Format: basePath/topic/dt=YYYY-MM-DD/pid=N/prefix_YYYYMMDD_HHMMSS_RRRRRR_instance.ext
// Dates come from the time hint in UTC.
func Partitioned(cfg PartitionedConfig, partitionID message.PartitionID) storage.PathGenerator {
	instance := cfg.InstanceID
	if instance == "" {
		instance = NewInstanceID()
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "events"
	}
	base := strings.Trim(cfg.BasePath, "/")

	return func(rotation int64, ts time.Time) string {
		t := ts.UTC()
		dir := path.Join(
			base,
			partitionID.Topic,
			"dt="+t.Format("2006-01-02"),
			fmt.Sprintf("pid=%d", partitionID.Partition),
		)
		filename := fmt.Sprintf("%s_%s_%06d_%s%s",
			prefix,
			t.Format("20060102_150405"),
			rotation,
			instance,
			cfg.Extension,
		)
		return path.Join(dir, filename)
	}
}

// NewInstanceID returns an 8 character random identifier.
func NewInstanceID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
