package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the thumbnail service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry              *prometheus.Registry
	requestsTotal         prometheus.Counter
	errorsTotal           prometheus.Counter
	jobsStartedTotal      prometheus.Counter
	jobsCompletedTotal    prometheus.Counter
	jobsFailedTotal       *prometheus.CounterVec
	framesExtractedTotal  prometheus.Counter
	targetsSkippedTotal   *prometheus.CounterVec
	extractRetriesTotal   prometheus.Counter
	resourcesFetchedTotal prometheus.Counter
	activeJobs            prometheus.Gauge
	jobDurationSeconds    prometheus.Histogram
}

// New creates and registers Prometheus metrics on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "thumbnailer_requests_total",
			Help: "Total number of HTTP requests received",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "thumbnailer_errors_total",
			Help: "Total number of HTTP responses with error status (4xx or 5xx)",
		}),
		jobsStartedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "thumbnailer_jobs_started_total",
			Help: "Total number of extraction jobs started",
		}),
		jobsCompletedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "thumbnailer_jobs_completed_total",
			Help: "Total number of extraction jobs that reached completion",
		}),
		jobsFailedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "thumbnailer_jobs_failed_total",
			Help: "Total number of extraction jobs that failed, by reason",
		}, []string{"reason"}),
		framesExtractedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "thumbnailer_frames_extracted_total",
			Help: "Total number of frames extracted across all jobs",
		}),
		targetsSkippedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "thumbnailer_targets_skipped_total",
			Help: "Total number of target timestamps skipped, by reason",
		}, []string{"reason"}),
		extractRetriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "thumbnailer_extract_retries_total",
			Help: "Total number of extractions retried at the segment start",
		}),
		resourcesFetchedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "thumbnailer_resources_fetched_total",
			Help: "Total number of segments or files fetched for extraction",
		}),
		activeJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "thumbnailer_active_jobs",
			Help: "Number of extraction jobs currently running",
		}),
		jobDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "thumbnailer_job_duration_seconds",
			Help:    "Wall-clock duration of extraction jobs",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
		}),
	}

	m.registry.MustRegister(
		m.requestsTotal,
		m.errorsTotal,
		m.jobsStartedTotal,
		m.jobsCompletedTotal,
		m.jobsFailedTotal,
		m.framesExtractedTotal,
		m.targetsSkippedTotal,
		m.extractRetriesTotal,
		m.resourcesFetchedTotal,
		m.activeJobs,
		m.jobDurationSeconds,
	)

	return m
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	if m != nil {
		m.requestsTotal.Inc()
	}
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	if m != nil {
		m.errorsTotal.Inc()
	}
}

// JobStarted counts a job and marks it active.
func (m *Metrics) JobStarted() {
	if m != nil {
		m.jobsStartedTotal.Inc()
		m.activeJobs.Inc()
	}
}

// JobCompleted records a completed job and its duration.
func (m *Metrics) JobCompleted(d time.Duration) {
	if m != nil {
		m.jobsCompletedTotal.Inc()
		m.activeJobs.Dec()
		m.jobDurationSeconds.Observe(d.Seconds())
	}
}

// JobFailed records a failed job, its reason code and duration.
func (m *Metrics) JobFailed(reason string, d time.Duration) {
	if m != nil {
		m.jobsFailedTotal.WithLabelValues(reason).Inc()
		m.activeJobs.Dec()
		m.jobDurationSeconds.Observe(d.Seconds())
	}
}

// IncFramesExtracted increments the extracted frames counter.
func (m *Metrics) IncFramesExtracted() {
	if m != nil {
		m.framesExtractedTotal.Inc()
	}
}

// IncTargetsSkipped increments the skipped targets counter for reason.
func (m *Metrics) IncTargetsSkipped(reason string) {
	if m != nil {
		m.targetsSkippedTotal.WithLabelValues(reason).Inc()
	}
}

// IncExtractRetries increments the fallback retry counter.
func (m *Metrics) IncExtractRetries() {
	if m != nil {
		m.extractRetriesTotal.Inc()
	}
}

// IncResourcesFetched increments the fetched resources counter.
func (m *Metrics) IncResourcesFetched() {
	if m != nil {
		m.resourcesFetchedTotal.Inc()
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an http.Handler that serves Prometheus metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
