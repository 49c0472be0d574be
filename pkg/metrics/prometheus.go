// Package metrics provides Prometheus metrics for the IRR service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager manages all Prometheus metrics for the IRR service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Computation metrics
	computations       *prometheus.CounterVec
	computationLatency prometheus.Histogram
	solverIterations   *prometheus.HistogramVec
	bracketProbes      prometheus.Histogram
	internalFaults     *prometheus.CounterVec

	// Job metrics
	jobsSubmitted prometheus.Counter
	jobsDuplicate prometheus.Counter
	jobsRejected  prometheus.Counter

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Queue metrics
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueued      prometheus.Counter
	queueDequeued      prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Worker metrics
	workerCount             prometheus.Gauge
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// Job store metrics
	storeRecords *prometheus.GaugeVec
	storeLatency *prometheus.HistogramVec

	errorsByComponent *prometheus.CounterVec

	// System metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "irr",
		subsystem:        "service",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		constLabels:      make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.constLabels,
	}
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)

	// Computation metrics
	m.computations = auto.NewCounterVec(
		m.counterOpts("computations_total", "Total number of IRR computations by method and outcome"),
		[]string{"method", "outcome"},
	)
	m.computationLatency = auto.NewHistogram(
		m.histogramOpts("computation_latency_milliseconds", "IRR computation latency in milliseconds", m.histogramBuckets),
	)
	m.solverIterations = auto.NewHistogramVec(
		m.histogramOpts("solver_iterations", "Iterations used by the solver that produced the result",
			[]float64{1, 2, 3, 5, 8, 13, 21, 34, 50}),
		[]string{"method"},
	)
	m.bracketProbes = auto.NewHistogram(
		m.histogramOpts("bracket_probes", "Probes spent searching for a sign change",
			prometheus.ExponentialBuckets(1, 4, 7)),
	)
	m.internalFaults = auto.NewCounterVec(
		m.counterOpts("internal_faults_total", "Solver failures outside the expected set, by stage"),
		[]string{"stage"},
	)

	// Job metrics
	m.jobsSubmitted = auto.NewCounter(m.counterOpts("jobs_submitted_total", "Total number of jobs accepted"))
	m.jobsDuplicate = auto.NewCounter(m.counterOpts("jobs_duplicate_total", "Total number of duplicate job submissions"))
	m.jobsRejected = auto.NewCounter(m.counterOpts("jobs_rejected_total", "Total number of jobs rejected because the queue was full"))

	// HTTP metrics
	m.httpRequests = auto.NewCounterVec(
		m.counterOpts("http_requests_total", "Total number of HTTP requests by endpoint and method"),
		[]string{"endpoint", "method", "status_code"},
	)
	m.httpRequestDuration = auto.NewHistogramVec(
		m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration in milliseconds", m.histogramBuckets),
		[]string{"endpoint", "method", "status_code"},
	)

	// Queue metrics
	m.queueSize = auto.NewGauge(m.gaugeOpts("queue_size", "Current size of the job queue"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("queue_capacity", "Maximum queue capacity"))
	m.queueUtilization = auto.NewGauge(m.gaugeOpts("queue_utilization_ratio", "Queue utilization ratio (current size / capacity)"))
	m.queueEnqueued = auto.NewCounter(m.counterOpts("queue_enqueue_total", "Total number of jobs enqueued"))
	m.queueDequeued = auto.NewCounter(m.counterOpts("queue_dequeue_total", "Total number of jobs dequeued"))
	m.queueEnqueueErrors = auto.NewCounter(m.counterOpts("queue_enqueue_errors_total", "Total number of enqueue errors"))

	// Worker metrics
	m.workerCount = auto.NewGauge(m.gaugeOpts("worker_count", "Configured number of workers"))
	m.workerActiveCount = auto.NewGauge(m.gaugeOpts("worker_active_count", "Number of workers currently computing"))
	m.workerProcessingLatency = auto.NewHistogram(
		m.histogramOpts("worker_processing_latency_milliseconds", "Worker job processing latency in milliseconds", m.histogramBuckets),
	)
	m.workerErrors = auto.NewCounter(m.counterOpts("worker_errors_total", "Total number of jobs that ended in failure"))

	// Job store metrics
	m.storeRecords = auto.NewGaugeVec(
		m.gaugeOpts("store_records", "Number of jobs held by the job store"),
		[]string{"backend"},
	)
	m.storeLatency = auto.NewHistogramVec(
		m.histogramOpts("store_latency_milliseconds", "Job store operation latency in milliseconds", m.histogramBuckets),
		[]string{"backend", "op"},
	)

	m.errorsByComponent = auto.NewCounterVec(
		m.counterOpts("errors_by_component_total", "Total number of errors by component"),
		[]string{"component", "error_type"},
	)

	// System metrics
	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_usage_bytes", "System memory usage in bytes"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutine_count", "Number of goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(
		m.histogramOpts("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
			[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000}),
	)
}

// Enabled reports whether background collection should run.
func (m *Manager) Enabled() bool { return m.enabled }

// RefreshInterval is the period of background gauge updates.
func (m *Manager) RefreshInterval() time.Duration { return m.refreshInterval }

// RecordComputation counts a finished computation. outcome is "ok",
// "invalid_input", "no_solution" or "fault".
func (m *Manager) RecordComputation(method, outcome string) {
	m.computations.WithLabelValues(method, outcome).Inc()
}

// RecordComputationLatency records computation latency in milliseconds.
func (m *Manager) RecordComputationLatency(latencyMs float64) {
	m.computationLatency.Observe(latencyMs)
}

// RecordSolverIterations records the iterations of the winning solver.
func (m *Manager) RecordSolverIterations(method string, iterations int) {
	m.solverIterations.WithLabelValues(method).Observe(float64(iterations))
}

// RecordBracketProbes records how many probes a bracket search used.
func (m *Manager) RecordBracketProbes(probes int) {
	m.bracketProbes.Observe(float64(probes))
}

// RecordInternalFault counts a solver fault.
func (m *Manager) RecordInternalFault(stage string) {
	m.internalFaults.WithLabelValues(stage).Inc()
}

// RecordJobSubmitted increments the accepted jobs counter.
func (m *Manager) RecordJobSubmitted() { m.jobsSubmitted.Inc() }

// RecordJobDuplicate increments the duplicate jobs counter.
func (m *Manager) RecordJobDuplicate() { m.jobsDuplicate.Inc() }

// RecordJobRejected increments the rejected jobs counter.
func (m *Manager) RecordJobRejected() { m.jobsRejected.Inc() }

// RecordHTTPRequest records an HTTP request.
func (m *Manager) RecordHTTPRequest(endpoint, method, statusCode string) {
	m.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func (m *Manager) RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	m.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// UpdateQueueSize sets the current queue size.
func (m *Manager) UpdateQueueSize(size int) { m.queueSize.Set(float64(size)) }

// UpdateQueueCapacity sets the maximum queue capacity.
func (m *Manager) UpdateQueueCapacity(capacity int) { m.queueCapacity.Set(float64(capacity)) }

// UpdateQueueUtilization sets the queue utilization ratio.
func (m *Manager) UpdateQueueUtilization(utilization float64) { m.queueUtilization.Set(utilization) }

// RecordQueueEnqueue increments the enqueue counter.
func (m *Manager) RecordQueueEnqueue() { m.queueEnqueued.Inc() }

// RecordQueueDequeue increments the dequeue counter.
func (m *Manager) RecordQueueDequeue() { m.queueDequeued.Inc() }

// RecordQueueEnqueueError increments the enqueue error counter.
func (m *Manager) RecordQueueEnqueueError() { m.queueEnqueueErrors.Inc() }

// UpdateWorkerCount sets the configured worker count.
func (m *Manager) UpdateWorkerCount(count int) { m.workerCount.Set(float64(count)) }

// UpdateWorkerActiveCount sets the number of busy workers.
func (m *Manager) UpdateWorkerActiveCount(count int) { m.workerActiveCount.Set(float64(count)) }

// RecordWorkerProcessingLatency records worker processing latency.
func (m *Manager) RecordWorkerProcessingLatency(latencyMs float64) {
	m.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func (m *Manager) RecordWorkerError() { m.workerErrors.Inc() }

// UpdateStoreRecords sets the number of stored jobs for a backend.
func (m *Manager) UpdateStoreRecords(backend string, count int) {
	m.storeRecords.WithLabelValues(backend).Set(float64(count))
}

// RecordStoreLatency records a job store operation latency.
func (m *Manager) RecordStoreLatency(backend, op string, latencyMs float64) {
	m.storeLatency.WithLabelValues(backend, op).Observe(latencyMs)
}

// RecordErrorByComponent records an error with component and type labels.
func (m *Manager) RecordErrorByComponent(component, errorType string) {
	m.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func (m *Manager) UpdateSystemMemoryUsage(bytes uint64) { m.systemMemoryUsage.Set(float64(bytes)) }

// UpdateSystemGoroutineCount sets the number of goroutines.
func (m *Manager) UpdateSystemGoroutineCount(count int) { m.systemGoroutineCount.Set(float64(count)) }

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func (m *Manager) RecordSystemGCPauseTime(pauseMs float64) { m.systemGCPauseTime.Observe(pauseMs) }

// RecordComputation counts a finished computation on the global manager.
func RecordComputation(method, outcome string) {
	globalManager.RecordComputation(method, outcome)
}

// RecordComputationLatency records computation latency in milliseconds.
func RecordComputationLatency(latencyMs float64) {
	globalManager.RecordComputationLatency(latencyMs)
}

// RecordSolverIterations records the iterations of the winning solver.
func RecordSolverIterations(method string, iterations int) {
	globalManager.RecordSolverIterations(method, iterations)
}

// RecordBracketProbes records how many probes a bracket search used.
func RecordBracketProbes(probes int) {
	globalManager.RecordBracketProbes(probes)
}

// RecordInternalFault counts a solver fault.
func RecordInternalFault(stage string) {
	globalManager.RecordInternalFault(stage)
}

// RecordJobSubmitted increments the accepted jobs counter.
func RecordJobSubmitted() {
	globalManager.RecordJobSubmitted()
}

// RecordJobDuplicate increments the duplicate jobs counter.
func RecordJobDuplicate() {
	globalManager.RecordJobDuplicate()
}

// RecordJobRejected increments the rejected jobs counter.
func RecordJobRejected() {
	globalManager.RecordJobRejected()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.RecordHTTPRequest(endpoint, method, statusCode)
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.RecordHTTPRequestDuration(endpoint, method, statusCode, duration)
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.UpdateQueueSize(size)
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.UpdateQueueCapacity(capacity)
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.UpdateQueueUtilization(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.RecordQueueEnqueue()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.RecordQueueDequeue()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.RecordQueueEnqueueError()
}

// UpdateWorkerCount sets the configured worker count.
func UpdateWorkerCount(count int) {
	globalManager.UpdateWorkerCount(count)
}

// UpdateWorkerActiveCount sets the number of busy workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.UpdateWorkerActiveCount(count)
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.RecordWorkerProcessingLatency(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.RecordWorkerError()
}

// UpdateStoreRecords sets the number of stored jobs for a backend.
func UpdateStoreRecords(backend string, count int) {
	globalManager.UpdateStoreRecords(backend, count)
}

// RecordStoreLatency records a job store operation latency.
func RecordStoreLatency(backend, op string, latencyMs float64) {
	globalManager.RecordStoreLatency(backend, op, latencyMs)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.RecordErrorByComponent(component, errorType)
}

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.UpdateSystemMemoryUsage(bytes)
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.UpdateSystemGoroutineCount(count)
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.RecordSystemGCPauseTime(pauseMs)
}

// RefreshInterval returns the global manager's gauge refresh period.
func RefreshInterval() time.Duration { return globalManager.RefreshInterval() }

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
