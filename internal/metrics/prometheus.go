// Package metrics exposes Prometheus collectors for report ingestion, the
// worker pool, the storage backends and the API.
package metrics

import (
	"context"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "scanvault"

	subsystemIngest  = "ingest"
	subsystemJobs    = "jobs"
	subsystemStorage = "storage"
	subsystemAPI     = "api"
	subsystemSystem  = "system"
)

// Status label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// PrometheusMetrics holds all collectors on a private registry.
type PrometheusMetrics struct {
	// Ingest metrics
	documentsTotal *prometheus.CounterVec
	ingestDuration *prometheus.HistogramVec
	ingestErrors   *prometheus.CounterVec
	documentBytes  prometheus.Histogram
	hostsIngested  *prometheus.CounterVec
	portsIngested  *prometheus.CounterVec

	// Worker pool metrics
	jobsTotal   *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
	jobRetries  *prometheus.HistogramVec
	workers     prometheus.Gauge
	queueDepth  prometheus.Gauge

	// Storage metrics
	storageOps      *prometheus.CounterVec
	storageDuration *prometheus.HistogramVec

	// API metrics
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	rpcCalls      *prometheus.CounterVec
	rpcSessions   prometheus.Gauge

	// System metrics
	memoryUsage prometheus.Gauge
	goroutines  prometheus.Gauge
	uptime      prometheus.Gauge

	startTime  time.Time
	lastUpdate time.Time
	mu         sync.RWMutex
	registry   *prometheus.Registry
}

// NewPrometheusMetrics creates and registers every collector.
func NewPrometheusMetrics() *PrometheusMetrics {
	pm := &PrometheusMetrics{
		startTime: time.Now(),
		registry:  prometheus.NewRegistry(),
	}

	pm.initIngestMetrics()
	pm.initJobMetrics()
	pm.initStorageMetrics()
	pm.initAPIMetrics()
	pm.initSystemMetrics()
	pm.registerMetrics()

	pm.registry.MustRegister(collectors.NewGoCollector())
	pm.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return pm
}

func (pm *PrometheusMetrics) initIngestMetrics() {
	pm.documentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemIngest,
			Name:      "documents_total",
			Help:      "Reports ingested by source and status",
		},
		[]string{"source", "status"},
	)

	pm.ingestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemIngest,
			Name:      "duration_seconds",
			Help:      "Time spent parsing and storing a report",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0, 30.0},
		},
		[]string{"source"},
	)

	pm.ingestErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemIngest,
			Name:      "errors_total",
			Help:      "Rejected reports by source and error code",
		},
		[]string{"source", "code"},
	)

	pm.documentBytes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemIngest,
			Name:      "document_bytes",
			Help:      "Size of submitted reports",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 8),
		},
	)

	pm.hostsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemIngest,
			Name:      "hosts_total",
			Help:      "Hosts stored by state",
		},
		[]string{"state"},
	)

	pm.portsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemIngest,
			Name:      "ports_total",
			Help:      "Ports stored by state",
		},
		[]string{"state"},
	)
}

func (pm *PrometheusMetrics) initJobMetrics() {
	pm.jobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemJobs,
			Name:      "total",
			Help:      "Jobs completed by type and status",
		},
		[]string{"job_type", "status"},
	)

	pm.jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemJobs,
			Name:      "duration_seconds",
			Help:      "Job execution time including retries",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"job_type"},
	)

	pm.jobRetries = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemJobs,
			Name:      "retries",
			Help:      "Retries needed per job",
			Buckets:   []float64{0, 1, 2, 3, 5, 10},
		},
		[]string{"job_type"},
	)

	pm.workers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemJobs,
			Name:      "workers",
			Help:      "Number of running workers",
		},
	)

	pm.queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemJobs,
			Name:      "queue_depth",
			Help:      "Jobs waiting for a worker",
		},
	)
}

func (pm *PrometheusMetrics) initStorageMetrics() {
	pm.storageOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemStorage,
			Name:      "operations_total",
			Help:      "Storage operations by backend, operation and status",
		},
		[]string{"backend", "operation", "status"},
	)

	pm.storageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemStorage,
			Name:      "operation_duration_seconds",
			Help:      "Duration of storage operations",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0},
		},
		[]string{"backend", "operation"},
	)
}

func (pm *PrometheusMetrics) initAPIMetrics() {
	pm.httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemAPI,
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	pm.httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemAPI,
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0},
		},
		[]string{"method", "route"},
	)

	pm.rpcCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemAPI,
			Name:      "rpc_calls_total",
			Help:      "JSON-RPC calls by method and status",
		},
		[]string{"method", "status"},
	)

	pm.rpcSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemAPI,
			Name:      "rpc_sessions",
			Help:      "Open JSON-RPC websocket sessions",
		},
	)
}

func (pm *PrometheusMetrics) initSystemMetrics() {
	pm.memoryUsage = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemSystem,
			Name:      "memory_bytes",
			Help:      "Current heap allocation in bytes",
		},
	)

	pm.goroutines = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemSystem,
			Name:      "goroutines",
			Help:      "Current number of goroutines",
		},
	)

	pm.uptime = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemSystem,
			Name:      "uptime_seconds",
			Help:      "Process uptime in seconds",
		},
	)
}

func (pm *PrometheusMetrics) registerMetrics() {
	pm.registry.MustRegister(
		pm.documentsTotal, pm.ingestDuration, pm.ingestErrors, pm.documentBytes,
		pm.hostsIngested, pm.portsIngested,
	)
	pm.registry.MustRegister(pm.jobsTotal, pm.jobDuration, pm.jobRetries, pm.workers, pm.queueDepth)
	pm.registry.MustRegister(pm.storageOps, pm.storageDuration)
	pm.registry.MustRegister(pm.httpRequests, pm.httpDuration, pm.rpcCalls, pm.rpcSessions)
	pm.registry.MustRegister(pm.memoryUsage, pm.goroutines, pm.uptime)
}

// GetRegistry returns the registry backing the collectors.
func (pm *PrometheusMetrics) GetRegistry() *prometheus.Registry {
	return pm.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (pm *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(pm.registry, promhttp.HandlerOpts{})
}

// Ingest

// RecordDocument counts a submitted report and its size.
func (pm *PrometheusMetrics) RecordDocument(source, status string, size int, duration time.Duration) {
	pm.documentsTotal.WithLabelValues(source, status).Inc()
	pm.documentBytes.Observe(float64(size))
	pm.ingestDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// IncrementIngestErrors counts a rejected report.
func (pm *PrometheusMetrics) IncrementIngestErrors(source, code string) {
	pm.ingestErrors.WithLabelValues(source, code).Inc()
}

// AddHosts adds stored hosts for a state.
func (pm *PrometheusMetrics) AddHosts(state string, count int) {
	pm.hostsIngested.WithLabelValues(state).Add(float64(count))
}

// AddPorts adds stored ports for a state.
func (pm *PrometheusMetrics) AddPorts(state string, count int) {
	pm.portsIngested.WithLabelValues(state).Add(float64(count))
}

// Worker pool

// RecordJob records the outcome of a finished job.
func (pm *PrometheusMetrics) RecordJob(jobType, status string, duration time.Duration, retries int) {
	pm.jobsTotal.WithLabelValues(jobType, status).Inc()
	pm.jobDuration.WithLabelValues(jobType).Observe(duration.Seconds())
	pm.jobRetries.WithLabelValues(jobType).Observe(float64(retries))
}

// SetWorkers sets the number of running workers.
func (pm *PrometheusMetrics) SetWorkers(count int) {
	pm.workers.Set(float64(count))
}

// SetQueueDepth sets the number of queued jobs.
func (pm *PrometheusMetrics) SetQueueDepth(depth int) {
	pm.queueDepth.Set(float64(depth))
}

// Storage

// RecordStorageOperation records one call into a storage backend.
func (pm *PrometheusMetrics) RecordStorageOperation(backend, operation string, duration time.Duration, err error) {
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	pm.storageOps.WithLabelValues(backend, operation, status).Inc()
	pm.storageDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
}

// API

// RecordHTTPRequest records a served HTTP request.
func (pm *PrometheusMetrics) RecordHTTPRequest(method, route, status string, duration time.Duration) {
	pm.httpRequests.WithLabelValues(method, route, status).Inc()
	pm.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// IncrementRPCCalls counts a JSON-RPC call.
func (pm *PrometheusMetrics) IncrementRPCCalls(method, status string) {
	pm.rpcCalls.WithLabelValues(method, status).Inc()
}

// AddRPCSessions moves the open session gauge by delta.
func (pm *PrometheusMetrics) AddRPCSessions(delta int) {
	pm.rpcSessions.Add(float64(delta))
}

// System

// UpdateSystemMetrics refreshes memory, goroutine and uptime gauges.
func (pm *PrometheusMetrics) UpdateSystemMetrics() {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	pm.memoryUsage.Set(float64(memStats.Alloc))
	pm.goroutines.Set(float64(runtime.NumGoroutine()))
	pm.uptime.Set(time.Since(pm.startTime).Seconds())
	pm.lastUpdate = time.Now()
}

// GetUptime returns the time since the collectors were created.
func (pm *PrometheusMetrics) GetUptime() time.Duration {
	return time.Since(pm.startTime)
}

// GetLastUpdate returns when system metrics were last refreshed.
func (pm *PrometheusMetrics) GetLastUpdate() time.Time {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.lastUpdate
}

// StartPeriodicUpdates refreshes system metrics until ctx is done.
func (pm *PrometheusMetrics) StartPeriodicUpdates(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	pm.UpdateSystemMetrics()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pm.UpdateSystemMetrics()
		}
	}
}

var (
	globalMetrics *PrometheusMetrics
	metricsOnce   sync.Once
)

// GetGlobalMetrics returns the process wide metrics instance.
func GetGlobalMetrics() *PrometheusMetrics {
	metricsOnce.Do(func() {
		globalMetrics = NewPrometheusMetrics()
	})
	return globalMetrics
}
