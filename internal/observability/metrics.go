package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jittakal/kafrotator/pkg/message"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	// Consumer metrics
	MessagesConsumed   *prometheus.CounterVec
	OffsetCommits      *prometheus.CounterVec
	Rebalances         *prometheus.CounterVec
	RebalanceDuration  *prometheus.HistogramVec
	PartitionsAssigned *prometheus.GaugeVec

	// Pipeline metrics
	MessagesProcessed *prometheus.CounterVec
	DLQPublished      *prometheus.CounterVec
	ActivePartitions  prometheus.Gauge

	// Writer metrics
	RecordsWritten *prometheus.CounterVec
	BytesWritten   *prometheus.CounterVec
	Syncs          *prometheus.CounterVec
	Rotations      *prometheus.CounterVec
	FileSize       *prometheus.HistogramVec
	FileRecords    *prometheus.HistogramVec
	FileSpan       *prometheus.HistogramVec
	WriterFailures *prometheus.CounterVec

	// Storage metrics
	StorageDuration *prometheus.HistogramVec
	StorageErrors   *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		// Consumer metrics
		MessagesConsumed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kafka_messages_consumed_total",
				Help: "Total number of messages consumed from Kafka",
			},
			[]string{"topic", "partition"},
		),
		OffsetCommits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kafka_offset_commit_total",
				Help: "Total number of offsets marked for commit after a file was closed",
			},
			[]string{"topic", "partition", "status"},
		),
		Rebalances: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kafka_rebalance_total",
				Help: "Total number of consumer group rebalances",
			},
			[]string{"group"},
		),
		RebalanceDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kafka_rebalance_duration_seconds",
				Help:    "Duration of consumer group sessions",
				Buckets: []float64{0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0},
			},
			[]string{"group"},
		),
		PartitionsAssigned: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "kafka_partitions_assigned",
				Help: "Number of partitions currently assigned to this consumer",
			},
			[]string{"topic"},
		),

		// Pipeline metrics
		MessagesProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "messages_processed_total",
				Help: "Total number of consumed records by outcome",
			},
			[]string{"topic", "partition", "status"},
		),
		DLQPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dlq_published_total",
				Help: "Total number of records published to the dead letter queue",
			},
			[]string{"topic", "reason"},
		),
		ActivePartitions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "active_partition_writers",
				Help: "Number of partitions with a running writer",
			},
		),

		// Writer metrics
		RecordsWritten: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "writer_records_written_total",
				Help: "Total number of records appended to storage handles",
			},
			[]string{"writer"},
		),
		BytesWritten: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "writer_bytes_written_total",
				Help: "Total number of bytes reported by storage handles",
			},
			[]string{"writer"},
		),
		Syncs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "writer_syncs_total",
				Help: "Total number of storage handle syncs",
			},
			[]string{"writer"},
		),
		Rotations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "writer_rotations_total",
				Help: "Total number of completed files",
			},
			[]string{"writer"},
		),
		FileSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "file_size_bytes",
				Help:    "Size of completed files",
				Buckets: prometheus.ExponentialBuckets(1024, 4, 10), // 1KB to 256MB
			},
			[]string{"writer"},
		),
		FileRecords: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "file_records",
				Help:    "Number of records in completed files",
				Buckets: prometheus.ExponentialBuckets(1, 4, 10),
			},
			[]string{"writer"},
		),
		FileSpan: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "file_span_seconds",
				Help:    "Time between the first and last write of completed files",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
			},
			[]string{"writer"},
		),
		WriterFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "writer_failures_total",
				Help: "Total number of writers stopped by a storage failure",
			},
			[]string{"writer"},
		),

		// Storage metrics
		StorageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "storage_operation_duration_seconds",
				Help:    "Duration of storage sink operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"backend", "operation"},
		),
		StorageErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storage_errors_total",
				Help: "Total number of storage errors",
			},
			[]string{"backend", "operation"},
		),
	}
}

func partitionLabel(partition int32) string {
	return strconv.Itoa(int(partition))
}

// IncMessagesConsumed increments messages consumed counter.
func (m *Metrics) IncMessagesConsumed(topic string, partition int32) {
	m.MessagesConsumed.WithLabelValues(topic, partitionLabel(partition)).Inc()
}

// IncRebalances increments rebalances counter.
func (m *Metrics) IncRebalances(groupID string) {
	m.Rebalances.WithLabelValues(groupID).Inc()
}

// IncOffsetCommits increments offset commits counter.
func (m *Metrics) IncOffsetCommits(topic string, partition int32, status string) {
	m.OffsetCommits.WithLabelValues(topic, partitionLabel(partition), status).Inc()
}

// ObserveRebalanceDuration observes rebalance duration.
func (m *Metrics) ObserveRebalanceDuration(groupID string, duration float64) {
	m.RebalanceDuration.WithLabelValues(groupID).Observe(duration)
}

// SetPartitionsAssigned sets partitions assigned gauge.
func (m *Metrics) SetPartitionsAssigned(topic string, count float64) {
	m.PartitionsAssigned.WithLabelValues(topic).Set(count)
}

// IncMessagesProcessed counts a consumed record by outcome.
func (m *Metrics) IncMessagesProcessed(topic string, partition int32, status string) {
	m.MessagesProcessed.WithLabelValues(topic, partitionLabel(partition), status).Inc()
}

// IncDLQPublished counts a record sent to the DLQ.
func (m *Metrics) IncDLQPublished(topic string, reason string) {
	m.DLQPublished.WithLabelValues(topic, reason).Inc()
}

// SetActivePartitions sets the number of running partition writers.
func (m *Metrics) SetActivePartitions(count float64) {
	m.ActivePartitions.Set(count)
}

// ObserveAppend records one appended element.
func (m *Metrics) ObserveAppend(writer string, bytes int64) {
	m.RecordsWritten.WithLabelValues(writer).Inc()
	m.BytesWritten.WithLabelValues(writer).Add(float64(bytes))
}

// IncSyncs increments the sync counter.
func (m *Metrics) IncSyncs(writer string) {
	m.Syncs.WithLabelValues(writer).Inc()
}

// ObserveRotation records a completed file.
func (m *Metrics) ObserveRotation(writer string, stats message.FileStats) {
	m.Rotations.WithLabelValues(writer).Inc()
	m.FileSize.WithLabelValues(writer).Observe(float64(stats.SizeBytes))
	m.FileRecords.WithLabelValues(writer).Observe(float64(stats.RecordCount))
	m.FileSpan.WithLabelValues(writer).Observe(stats.LastWriteTime.Sub(stats.FirstWriteTime).Seconds())
}

// IncFailures increments the writer failure counter.
func (m *Metrics) IncFailures(writer string) {
	m.WriterFailures.WithLabelValues(writer).Inc()
}

// ObserveStorageDuration observes the duration of a sink operation.
func (m *Metrics) ObserveStorageDuration(backend string, operation string, seconds float64) {
	m.StorageDuration.WithLabelValues(backend, operation).Observe(seconds)
}

// IncStorageErrors increments storage errors counter.
func (m *Metrics) IncStorageErrors(backend string, operation string) {
	m.StorageErrors.WithLabelValues(backend, operation).Inc()
}
