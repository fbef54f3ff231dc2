package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	jobOutcomes     *prometheus.CounterVec
	activeJobs      prometheus.Gauge
	phaseDuration   *prometheus.HistogramVec
	solverCalls     *prometheus.CounterVec
	solverDuration  *prometheus.HistogramVec
	trimmedTotal    *prometheus.CounterVec
	gaImprovement   prometheus.Histogram
	editOutcomes    *prometheus.CounterVec

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	jobsStarted          uint64
	jobsCompleted        uint64
	jobsFailed           uint64
	jobsCancelled        uint64
	activeJobCount       int64
	editsApplied         uint64
	editsRejected        uint64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	jobOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "timetable_jobs_total",
		Help: "Timetable jobs by lifecycle event",
	}, []string{"status", "failure_code"})

	activeJobs := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "timetable_jobs_active",
		Help: "Timetable jobs currently running",
	})

	phaseDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "timetable_phase_duration_seconds",
		Help:    "Wall time spent per job phase",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"phase", "outcome"})

	solverCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "solver_calls_total",
		Help: "Solver invocations by phase and status",
	}, []string{"phase", "status"})

	solverDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "solver_duration_seconds",
		Help:    "Wall time of solver invocations",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120},
	}, []string{"phase"})

	trimmedTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "encoder_trimmed_constraints_total",
		Help: "Candidate constraints dropped by encoder budgets",
	}, []string{"rule"})

	gaImprovement := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "genetic_fitness_improvement",
		Help:    "Fitness gained by genetic refinement over the solver seed",
		Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000},
	})

	editOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "timetable_edits_total",
		Help: "Manual edits by outcome",
	}, []string{"outcome"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses,
		jobOutcomes, activeJobs, phaseDuration, solverCalls, solverDuration, trimmedTotal, gaImprovement, editOutcomes, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheHitRatio:   cacheHitRatio,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		jobOutcomes:     jobOutcomes,
		activeJobs:      activeJobs,
		phaseDuration:   phaseDuration,
		solverCalls:     solverCalls,
		solverDuration:  solverDuration,
		trimmedTotal:    trimmedTotal,
		gaImprovement:   gaImprovement,
		editOutcomes:    editOutcomes,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	if m.cacheLatency != nil {
		m.cacheLatency.Observe(duration.Seconds())
	}
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	total := hits + misses
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil || m.cacheWrite == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// JobStarted counts a job picked up by a worker.
func (m *MetricsService) JobStarted() {
	if m == nil {
		return
	}
	m.jobOutcomes.WithLabelValues("running", "").Inc()
	m.activeJobs.Inc()
	atomic.AddUint64(&m.jobsStarted, 1)
	atomic.AddInt64(&m.activeJobCount, 1)
}

// JobFinished counts a job leaving the running state. failureCode is empty
// unless status is failed.
func (m *MetricsService) JobFinished(status models.JobStatus, failureCode string) {
	if m == nil {
		return
	}
	m.jobOutcomes.WithLabelValues(string(status), failureCode).Inc()
	m.activeJobs.Dec()
	atomic.AddInt64(&m.activeJobCount, -1)
	switch status {
	case models.JobStatusCompleted:
		atomic.AddUint64(&m.jobsCompleted, 1)
	case models.JobStatusFailed:
		atomic.AddUint64(&m.jobsFailed, 1)
	case models.JobStatusCancelled:
		atomic.AddUint64(&m.jobsCancelled, 1)
	}
}

// ObservePhase records the duration and outcome of one job phase.
func (m *MetricsService) ObservePhase(phase models.JobPhase, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.phaseDuration.WithLabelValues(string(phase), outcome).Observe(duration.Seconds())
}

// ObserveSolve records one solver invocation.
func (m *MetricsService) ObserveSolve(phase string, status models.SolverStatus, duration time.Duration) {
	if m == nil {
		return
	}
	m.solverCalls.WithLabelValues(phase, string(status)).Inc()
	m.solverDuration.WithLabelValues(phase).Observe(duration.Seconds())
}

// RecordTrimmed adds per-rule counts of candidates dropped by budgets.
func (m *MetricsService) RecordTrimmed(trimmed map[string]int) {
	if m == nil {
		return
	}
	for rule, n := range trimmed {
		m.trimmedTotal.WithLabelValues(rule).Add(float64(n))
	}
}

// ObserveGeneticImprovement records the fitness gained by refinement.
func (m *MetricsService) ObserveGeneticImprovement(delta float64) {
	if m == nil {
		return
	}
	if delta < 0 {
		delta = 0
	}
	m.gaImprovement.Observe(delta)
}

// RecordEdit counts a manual edit by outcome.
func (m *MetricsService) RecordEdit(applied bool) {
	if m == nil {
		return
	}
	if applied {
		m.editOutcomes.WithLabelValues("applied").Inc()
		atomic.AddUint64(&m.editsApplied, 1)
		return
	}
	m.editOutcomes.WithLabelValues("rejected").Inc()
	atomic.AddUint64(&m.editsRejected, 1)
}

// Snapshot returns aggregated metrics suitable for the admin surface.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var cacheRatio float64
	totalLookups := hits + misses
	if totalLookups > 0 {
		cacheRatio = float64(hits) / float64(totalLookups)
	}

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return models.SystemMetrics{
		CacheHitRatio:            cacheRatio,
		CacheHits:                hits,
		CacheMisses:              misses,
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		JobsStarted:              atomic.LoadUint64(&m.jobsStarted),
		JobsCompleted:            atomic.LoadUint64(&m.jobsCompleted),
		JobsFailed:               atomic.LoadUint64(&m.jobsFailed),
		JobsCancelled:            atomic.LoadUint64(&m.jobsCancelled),
		ActiveJobs:               atomic.LoadInt64(&m.activeJobCount),
		EditsApplied:             atomic.LoadUint64(&m.editsApplied),
		EditsRejected:            atomic.LoadUint64(&m.editsRejected),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
