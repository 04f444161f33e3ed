package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/c2h5oh/datasize"
	"github.com/spf13/viper"

	"github.com/jittakal/kafrotator/internal/config/dto"
)

// Loader handles configuration loading and validation
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Loader{v: v}
}

// Load loads configuration from file and environment variables
func (l *Loader) Load(path string) (*dto.ApplicationConfig, error) {
	l.setDefaults()

	if path != "" {
		l.v.SetConfigFile(path)
		if err := l.v.ReadInConfig(); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	// Only expand values containing a ${...} pattern
	for _, key := range l.v.AllKeys() {
		value := l.v.GetString(key)
		if strings.Contains(value, "${") {
			l.v.Set(key, os.ExpandEnv(value))
		}
	}

	var config dto.ApplicationConfig
	if err := l.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := l.Validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func (l *Loader) setDefaults() {
	l.v.SetDefault("application.name", "kafrotator")
	l.v.SetDefault("application.version", "1.0.0")
	l.v.SetDefault("application.environment", "development")

	l.v.SetDefault("kafka.security_protocol", "PLAINTEXT")
	l.v.SetDefault("kafka.sasl_mechanism", "PLAIN")
	l.v.SetDefault("kafka.aws_region", "us-east-1")
	l.v.SetDefault("kafka.consumer.auto_offset_reset", "earliest")
	l.v.SetDefault("kafka.consumer.max_poll_interval_ms", 300000)
	l.v.SetDefault("kafka.consumer.session_timeout_ms", 30000)
	l.v.SetDefault("kafka.consumer.heartbeat_interval_ms", 10000)
	l.v.SetDefault("kafka.dlq.enabled", true)
	l.v.SetDefault("kafka.dlq.topic_suffix", "-dlq")

	l.v.SetDefault("storage.backend", "file")
	l.v.SetDefault("storage.path.layout", "partitioned")
	l.v.SetDefault("storage.path.prefix", "events")
	l.v.SetDefault("storage.file.temp_dir", ".tmp")
	l.v.SetDefault("storage.file.overwrite", true)
	l.v.SetDefault("storage.s3.use_path_style", false)
	l.v.SetDefault("storage.s3.sse_enabled", true)

	l.v.SetDefault("encoding.type", "compressed")
	l.v.SetDefault("encoding.new_line", true)
	l.v.SetDefault("encoding.codec", "gzip")
	l.v.SetDefault("encoding.record_format", "avro")
	l.v.SetDefault("encoding.key_type", "bytes")
	l.v.SetDefault("encoding.value_type", "bytes")
	l.v.SetDefault("encoding.avro.codec", "snappy")
	l.v.SetDefault("encoding.parquet.compression", "snappy")

	l.v.SetDefault("sync.count", 1000)
	l.v.SetDefault("sync.bytes", "")
	l.v.SetDefault("sync.strategy", "any")

	l.v.SetDefault("file_rotation.max_file_size", "128MB")
	l.v.SetDefault("file_rotation.max_records_per_file", 100000)
	l.v.SetDefault("file_rotation.max_duration_seconds", 300)
	l.v.SetDefault("file_rotation.strategy", "any")

	l.v.SetDefault("processing.partition_queue_size", 256)
	l.v.SetDefault("processing.tick_interval_seconds", 5)

	l.v.SetDefault("observability.logging.level", "info")
	l.v.SetDefault("observability.logging.format", "json")
	l.v.SetDefault("observability.logging.output", "stdout")
	l.v.SetDefault("observability.metrics.enabled", true)
	l.v.SetDefault("observability.metrics.port", 9090)
	l.v.SetDefault("observability.metrics.path", "/metrics")
	l.v.SetDefault("observability.health.port", 8080)
	l.v.SetDefault("observability.health.liveness_path", "/health/live")
	l.v.SetDefault("observability.health.readiness_path", "/health/ready")

	l.v.SetDefault("shutdown.timeout_seconds", 30)
}

// Validate validates the configuration
func (l *Loader) Validate(config *dto.ApplicationConfig) error {
	if len(config.Kafka.BootstrapServers) == 0 {
		return errors.New("kafka.bootstrap_servers is required")
	}
	if len(config.Kafka.Consumer.Topics) == 0 {
		return errors.New("kafka.consumer.topics is required")
	}
	if config.Kafka.Consumer.GroupID == "" {
		return errors.New("kafka.consumer.group_id is required")
	}

	switch config.Storage.Backend {
	case "s3":
		if err := config.Storage.S3.Validate(); err != nil {
			return err
		}
	case "azure":
		if err := config.Storage.Azure.Validate(); err != nil {
			return err
		}
	case "gcs":
		if err := config.Storage.GCS.Validate(); err != nil {
			return err
		}
	case "file":
		if err := config.Storage.File.Validate(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported storage backend: %s", config.Storage.Backend)
	}

	if config.Storage.Path.Layout != "partitioned" && config.Storage.Path.Layout != "sequential" {
		return fmt.Errorf("unsupported path layout: %s", config.Storage.Path.Layout)
	}

	switch config.Encoding.Type {
	case "raw":
	case "compressed":
		switch config.Encoding.Codec {
		case "none", "gzip", "zstd", "snappy", "lz4":
		default:
			return fmt.Errorf("unsupported codec: %s", config.Encoding.Codec)
		}
	case "keyed":
		if config.Encoding.RecordFormat != "avro" && config.Encoding.RecordFormat != "parquet" {
			return fmt.Errorf("unsupported record format: %s", config.Encoding.RecordFormat)
		}
		for _, typ := range []string{config.Encoding.KeyType, config.Encoding.ValueType} {
			if typ != "bytes" && typ != "string" {
				return fmt.Errorf("unsupported record field type: %s", typ)
			}
		}
	default:
		return fmt.Errorf("unsupported encoding type: %s", config.Encoding.Type)
	}

	if config.Sync.Count < 0 {
		return fmt.Errorf("invalid sync count: %d", config.Sync.Count)
	}
	if config.Sync.Bytes != "" {
		if _, err := datasize.ParseString(config.Sync.Bytes); err != nil {
			return fmt.Errorf("invalid sync bytes %q: %w", config.Sync.Bytes, err)
		}
	}
	if config.Sync.Strategy != "any" {
		return fmt.Errorf("unsupported sync strategy: %s", config.Sync.Strategy)
	}

	if config.FileRotation.MaxFileSize != "" {
		if _, err := datasize.ParseString(config.FileRotation.MaxFileSize); err != nil {
			return fmt.Errorf("invalid max file size %q: %w", config.FileRotation.MaxFileSize, err)
		}
	}
	if config.FileRotation.Strategy != "any" && config.FileRotation.Strategy != "all" {
		return fmt.Errorf("unsupported rotation strategy: %s", config.FileRotation.Strategy)
	}

	if config.Processing.PartitionQueueSize < 1 {
		return fmt.Errorf("invalid partition queue size: %d", config.Processing.PartitionQueueSize)
	}

	if config.Observability.Metrics.Port < 1 || config.Observability.Metrics.Port > 65535 {
		return fmt.Errorf("invalid metrics port: %d", config.Observability.Metrics.Port)
	}
	if config.Observability.Health.Port < 1 || config.Observability.Health.Port > 65535 {
		return fmt.Errorf("invalid health port: %d", config.Observability.Health.Port)
	}

	return nil
}
