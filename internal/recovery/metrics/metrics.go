package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MessagesClassified tracks classified failure records per classifier
	MessagesClassified = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recoverer_messages_classified_total",
			Help: "Total number of failure records assigned to a group",
		},
		[]string{"classifier"},
	)

	// GroupsDetected tracks first sightings of failure groups
	GroupsDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recoverer_groups_detected_total",
			Help: "Total number of new failure groups detected",
		},
		[]string{"classifier"},
	)

	// MessagesArchived tracks archived failure records
	MessagesArchived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recoverer_messages_archived_total",
			Help: "Total number of failure records archived",
		},
	)

	// ArchiveBatchesProcessed tracks consumed archive batches
	ArchiveBatchesProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recoverer_archive_batches_processed_total",
			Help: "Total number of archive batches consumed",
		},
	)

	// ArchiveRunsCompleted tracks completed archive operations
	ArchiveRunsCompleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recoverer_archive_runs_completed_total",
			Help: "Total number of archive operations run to completion",
		},
	)

	// RetriesIssued tracks issued retry commands
	RetriesIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recoverer_retries_issued_total",
			Help: "Total number of retry commands issued",
		},
	)

	// BulkRetryRunsCompleted tracks terminated bulk retry runs by outcome
	BulkRetryRunsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recoverer_bulk_retry_runs_completed_total",
			Help: "Total number of bulk retry runs terminated",
		},
		[]string{"outcome"}, // "completed" or "stalled"
	)

	// ReclassifyConflictsDropped tracks reclassification writes lost to races
	ReclassifyConflictsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recoverer_reclassify_conflicts_dropped_total",
			Help: "Total number of reclassification patches dropped on write conflict",
		},
	)

	// ContinuationBacklog tracks the scheduled continuation backlog
	ContinuationBacklog = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "recoverer_continuation_backlog",
			Help: "Number of scheduled continuations not yet delivered",
		},
	)

	// DBConnectionPoolUsage tracks database pool utilization
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "recoverer_db_connection_pool_usage_percent",
			Help: "Database connection pool usage percentage",
		},
	)

	// DBBatchSize tracks database batch write sizes
	DBBatchSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recoverer_db_batch_size",
			Help:    "Size of database batch operations",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		},
		[]string{"operation"},
	)
)
