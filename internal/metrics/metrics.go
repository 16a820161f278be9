package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Queue metrics
var (
	QueueTasksEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photoframe_queue_tasks_enqueued_total",
			Help: "Total number of tasks added to the pipeline queue",
		},
		[]string{"type"},
	)

	QueueTasksCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photoframe_queue_tasks_completed_total",
			Help: "Total number of tasks that completed successfully",
		},
		[]string{"type"},
	)

	QueueTasksFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photoframe_queue_tasks_failed_total",
			Help: "Total number of task failures (including retried attempts)",
		},
		[]string{"type"},
	)

	QueueTaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "photoframe_queue_task_duration_seconds",
			Help:    "Time spent processing a claimed task",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"type"},
	)

	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "photoframe_queue_depth",
			Help: "Number of tasks currently in each queue status",
		},
		[]string{"status"},
	)
)

// Pipeline metrics
var (
	PipelineStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "photoframe_pipeline_stage_duration_seconds",
			Help:    "Duration of individual photo pipeline stages",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"stage"},
	)

	PipelineVisibilityRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photoframe_pipeline_visibility_retries_total",
			Help: "Retries waiting for an uploaded object to become visible in storage",
		},
	)
)

// Storage metrics
var (
	StorageOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photoframe_storage_operations_total",
			Help: "Total number of storage provider operations",
		},
		[]string{"provider", "operation", "status"},
	)

	StorageOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "photoframe_storage_operation_duration_seconds",
			Help:    "Storage provider operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider", "operation"},
	)

	StorageProviderSwaps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photoframe_storage_provider_swaps_total",
			Help: "Storage provider hot-swap attempts",
		},
		[]string{"status"},
	)

	StorageTokenRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photoframe_storage_token_refreshes_total",
			Help: "OAuth access token refresh attempts by outcome",
		},
		[]string{"provider", "status"},
	)
)

// Database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photoframe_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "photoframe_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photoframe_db_connections_open",
			Help: "Number of open database connections",
		},
	)
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photoframe_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "photoframe_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photoframe_http_requests_in_flight",
			Help: "Number of HTTP requests currently being served",
		},
	)
)
