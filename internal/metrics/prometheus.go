package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains all Prometheus metrics for the transcription service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Upload metrics
	UploadsRejected *prometheus.CounterVec
	Uploads         *prometheus.CounterVec
	UploadDuration  prometheus.Histogram

	// Job metrics
	Submissions  *prometheus.CounterVec
	Polls        *prometheus.CounterVec
	AwaitSeconds prometheus.Histogram

	// Maintenance metrics
	ReapedJobs        prometheus.Counter
	ReaperErrors      prometheus.Counter
	ReconcileRuns     *prometheus.CounterVec
	ReconcileOutcomes *prometheus.CounterVec

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates all metrics on a dedicated registry, with Go and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		UploadsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "transcripts_uploads_rejected_total",
			Help: "Uploaded files rejected by validation",
		}, []string{"reason"}),
		Uploads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "transcripts_uploads_total",
			Help: "Files forwarded to the speech-to-text provider",
		}, []string{"result"}),
		UploadDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "transcripts_upload_duration_seconds",
			Help:    "Time spent streaming a file to the provider",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),

		Submissions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "transcripts_submissions_total",
			Help: "Transcription jobs submitted to the provider",
		}, []string{"mode", "result"}),
		Polls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "transcripts_polls_total",
			Help: "Status checks against the provider, by observed status",
		}, []string{"status"}),
		AwaitSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "transcripts_await_duration_seconds",
			Help:    "Time spent waiting for a job to reach a terminal state",
			Buckets: prometheus.ExponentialBuckets(1, 2, 11),
		}),

		ReapedJobs: f.NewCounter(prometheus.CounterOpts{
			Name: "transcripts_reaped_jobs_total",
			Help: "Stuck provider jobs deleted",
		}),
		ReaperErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "transcripts_reaper_errors_total",
			Help: "Failures while listing or deleting stuck jobs",
		}),
		ReconcileRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "transcripts_reconcile_runs_total",
			Help: "Reconciliation passes, by result",
		}, []string{"result"}),
		ReconcileOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "transcripts_reconcile_jobs_total",
			Help: "Jobs visited by reconciliation, by outcome",
		}, []string{"outcome"}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "transcripts_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "transcripts_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) RecordRejectedUpload(reason string) {
	if m == nil {
		return
	}
	m.UploadsRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordUpload(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.Uploads.WithLabelValues(result).Inc()
	m.UploadDuration.Observe(d.Seconds())
}

func (m *Metrics) RecordSubmission(mode, result string) {
	if m == nil {
		return
	}
	m.Submissions.WithLabelValues(mode, result).Inc()
}

func (m *Metrics) RecordPoll(status string) {
	if m == nil {
		return
	}
	m.Polls.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordAwait(d time.Duration) {
	if m == nil {
		return
	}
	m.AwaitSeconds.Observe(d.Seconds())
}

func (m *Metrics) RecordReaped(deleted, failed int) {
	if m == nil {
		return
	}
	m.ReapedJobs.Add(float64(deleted))
	m.ReaperErrors.Add(float64(failed))
}

func (m *Metrics) RecordReconcile(result string, outcomes map[string]int) {
	if m == nil {
		return
	}
	m.ReconcileRuns.WithLabelValues(result).Inc()
	for outcome, n := range outcomes {
		m.ReconcileOutcomes.WithLabelValues(outcome).Add(float64(n))
	}
}

func (m *Metrics) RecordHTTPRequest(method, endpoint string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, statusLabel(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(d.Seconds())
}

func statusLabel(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
