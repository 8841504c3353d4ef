// Package metrics exposes Prometheus instrumentation for the job pipeline
// and the HTTP API.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters, gauges, and histograms for the daemon.
type Metrics struct {
	registry          *prometheus.Registry
	jobsSubmitted     prometheus.Counter
	jobsFinished      *prometheus.CounterVec
	jobDuration       prometheus.Histogram
	queuedJobs        prometheus.Gauge
	requestsTotal     prometheus.Counter
	errorsTotal       prometheus.Counter
	segmentsFetched   prometheus.Counter
	segmentFetchBytes prometheus.Counter
}

// New creates and registers the daemon's Prometheus metrics.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	jobsSubmitted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rinkreel_jobs_submitted_total",
		Help: "Total number of processing jobs submitted",
	})
	jobsFinished := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rinkreel_jobs_finished_total",
		Help: "Total number of processing jobs reaching a terminal state",
	}, []string{"status"})
	jobDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "rinkreel_job_duration_seconds",
		Help:    "Wall-clock duration of completed processing jobs",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})
	queuedJobs := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rinkreel_queued_jobs",
		Help: "Number of jobs waiting in the queue",
	})
	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rinkreel_http_requests_total",
		Help: "Total number of HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rinkreel_http_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	segmentsFetched := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rinkreel_segments_fetched_total",
		Help: "Total number of feed segments downloaded",
	})
	segmentFetchBytes := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rinkreel_segment_fetch_bytes_total",
		Help: "Total bytes downloaded from the feed provider",
	})

	registry.MustRegister(
		jobsSubmitted,
		jobsFinished,
		jobDuration,
		queuedJobs,
		requestsTotal,
		errorsTotal,
		segmentsFetched,
		segmentFetchBytes,
	)

	return &Metrics{
		registry:          registry,
		jobsSubmitted:     jobsSubmitted,
		jobsFinished:      jobsFinished,
		jobDuration:       jobDuration,
		queuedJobs:        queuedJobs,
		requestsTotal:     requestsTotal,
		errorsTotal:       errorsTotal,
		segmentsFetched:   segmentsFetched,
		segmentFetchBytes: segmentFetchBytes,
	}
}

// IncJobsSubmitted counts a new job submission.
func (m *Metrics) IncJobsSubmitted() {
	m.jobsSubmitted.Inc()
}

// IncJobsFinished counts a job reaching the given terminal status.
func (m *Metrics) IncJobsFinished(status string) {
	m.jobsFinished.WithLabelValues(status).Inc()
}

// ObserveJobDuration records how long a job took end to end.
func (m *Metrics) ObserveJobDuration(d time.Duration) {
	m.jobDuration.Observe(d.Seconds())
}

// SetQueuedJobs sets the queued jobs gauge.
func (m *Metrics) SetQueuedJobs(n int) {
	m.queuedJobs.Set(float64(n))
}

// IncRequests counts an incoming HTTP request.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors counts an HTTP error response.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// AddSegmentsFetched counts downloaded segments and their size.
func (m *Metrics) AddSegmentsFetched(count int, bytes int64) {
	m.segmentsFetched.Add(float64(count))
	m.segmentFetchBytes.Add(float64(bytes))
}

// Handler returns an http.Handler that serves the metrics registry.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}

// Middleware counts requests and error responses around an HTTP handler.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.IncRequests()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		if recorder.status >= 400 {
			m.IncErrors()
		}
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
