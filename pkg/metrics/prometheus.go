// Package metrics provides Prometheus metrics for the rankd service.
package metrics

import (
	"context"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager owns every Prometheus collector the service exports.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	refreshInterval  time.Duration
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Ranking store
	storeLatency   *prometheus.HistogramVec
	storeErrors    *prometheus.CounterVec
	storeBatchSize *prometheus.HistogramVec
	storeMembers   *prometheus.GaugeVec

	// Leaderboard and aggregation
	leaderboardUpdates prometheus.Counter
	leaderboardRemoves prometheus.Counter
	restoreDuration    prometheus.Observer
	restoreTotal       *prometheus.CounterVec
	statusTransitions  *prometheus.CounterVec

	// Stats cache
	cacheLookups *prometheus.CounterVec

	// Job queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueue       prometheus.Counter
	queueDequeue       prometheus.Counter
	queueEnqueueErrors prometheus.Counter
	jobsCoalesced      prometheus.Counter

	// Workers
	workerCount             prometheus.Gauge
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency *prometheus.HistogramVec
	workerJobs              *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorRateByComponent *prometheus.CounterVec

	// Runtime
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "rankd",
		subsystem:        "core",
		histogramBuckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		refreshInterval:  defaultRefreshInterval,
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogramVec(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels, Buckets: buckets,
	}, labels)
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() {
	m.storeLatency = m.histogramVec("store_operation_duration_milliseconds",
		"Ranking store operation latency in milliseconds", m.histogramBuckets, "backend", "op")
	m.storeErrors = m.counterVec("store_errors_total",
		"Ranking store operations that returned an error", "backend", "op")
	m.storeBatchSize = m.histogramVec("store_batch_writes",
		"Number of writes per executed batch", []float64{1, 2, 4, 8, 16, 32, 64, 128}, "backend")
	m.storeMembers = promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: "store_members",
		Help: "Members held by the in-memory ranking store", ConstLabels: m.constLabels,
	}, []string{"backend"})

	m.leaderboardUpdates = m.counter("leaderboard_updates_total", "Player stat bundles pushed to the leaderboard")
	m.leaderboardRemoves = m.counter("leaderboard_removes_total", "Players removed from the leaderboard")
	m.restoreDuration = m.histogramVec("restore_duration_milliseconds",
		"Time to recompute all modes for one player", m.histogramBuckets).WithLabelValues()
	m.restoreTotal = m.counterVec("restores_total", "Stats restores by result", "result")
	m.statusTransitions = m.counterVec("score_status_transitions_total",
		"Score status changes applied while restoring hidden scores", "status")

	m.cacheLookups = m.counterVec("stats_cache_lookups_total", "Stats cache reads by result", "result")

	m.queueSize = m.gauge("queue_size", "Jobs waiting in the queue")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum number of queued jobs")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Queue fill ratio between 0 and 1")
	m.queueEnqueue = m.counter("queue_enqueued_total", "Jobs accepted by the queue")
	m.queueDequeue = m.counter("queue_dequeued_total", "Jobs taken off the queue")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Jobs rejected by the queue")
	m.jobsCoalesced = m.counter("jobs_coalesced_total", "Jobs dropped because identical work was already pending")

	m.workerCount = m.gauge("worker_count", "Configured number of workers")
	m.workerActiveCount = m.gauge("worker_active_count", "Workers currently running a job")
	m.workerProcessingLatency = m.histogramVec("worker_job_duration_milliseconds",
		"Job processing latency in milliseconds", m.histogramBuckets, "kind")
	m.workerJobs = m.counterVec("worker_jobs_total", "Jobs processed by kind and result", "kind", "result")

	m.httpRequests = m.counterVec("http_requests_total",
		"Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds",
		"HTTP request duration in milliseconds", m.histogramBuckets, "endpoint", "method", "status_code")

	m.errorRateByComponent = m.counterVec("errors_total", "Errors by component and type", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap memory in use in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
}

// RecordStoreLatency records one ranking store operation.
func RecordStoreLatency(backend, op string, latencyMs float64) {
	globalManager.storeLatency.WithLabelValues(backend, op).Observe(latencyMs)
}

// RecordStoreError counts a failed ranking store operation.
func RecordStoreError(backend, op string) {
	globalManager.storeErrors.WithLabelValues(backend, op).Inc()
}

// RecordStoreBatch records the size of an executed batch.
func RecordStoreBatch(backend string, writes int) {
	globalManager.storeBatchSize.WithLabelValues(backend).Observe(float64(writes))
}

// UpdateStoreMembers sets the number of members held by a backend.
func UpdateStoreMembers(backend string, count int) {
	globalManager.storeMembers.WithLabelValues(backend).Set(float64(count))
}

// RecordLeaderboardUpdate increments the leaderboard updates counter.
func RecordLeaderboardUpdate() {
	globalManager.leaderboardUpdates.Inc()
}

// RecordLeaderboardRemove increments the leaderboard removals counter.
func RecordLeaderboardRemove() {
	globalManager.leaderboardRemoves.Inc()
}

// RecordRestore records a finished stats restore.
func RecordRestore(result string, latencyMs float64) {
	globalManager.restoreTotal.WithLabelValues(result).Inc()
	globalManager.restoreDuration.Observe(latencyMs)
}

// RecordStatusTransitions counts score status changes towards status.
func RecordStatusTransitions(status string, n int) {
	globalManager.statusTransitions.WithLabelValues(status).Add(float64(n))
}

// RecordCacheLookup counts a stats cache read. result is hit, miss or error.
func RecordCacheLookup(result string) {
	globalManager.cacheLookups.WithLabelValues(result).Inc()
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueue.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeue.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// RecordJobCoalesced counts a job dropped as a duplicate of pending work.
func RecordJobCoalesced() {
	globalManager.jobsCoalesced.Inc()
}

// UpdateWorkerCount sets the configured worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// UpdateWorkerActiveCount sets the number of busy workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// RecordWorkerJob records a processed job.
func RecordWorkerJob(kind, result string, latencyMs float64) {
	globalManager.workerJobs.WithLabelValues(kind, result).Inc()
	globalManager.workerProcessingLatency.WithLabelValues(kind).Observe(latencyMs)
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the heap memory in use.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// StartRuntimeSampler refreshes the runtime gauges until ctx is done.
func StartRuntimeSampler(ctx context.Context) {
	interval := globalManager.refreshInterval
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			sampleRuntime()
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

func sampleRuntime() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	UpdateSystemMemoryUsage(ms.HeapInuse)
	UpdateSystemGoroutineCount(runtime.NumGoroutine())
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
