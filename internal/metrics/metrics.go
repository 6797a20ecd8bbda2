package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder holds the service's Prometheus collectors. A nil *Recorder is a
// valid no-op recorder.
type Recorder struct {
	taskRuns       *prometheus.CounterVec
	taskDuration   *prometheus.HistogramVec
	records        *prometheus.CounterVec
	lastIngest     *prometheus.GaugeVec
	signalOutcomes *prometheus.CounterVec
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
}

// New registers the collectors with reg. Pass prometheus.DefaultRegisterer
// in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		taskRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coinchart_task_runs_total",
				Help: "Scheduled task runs by outcome",
			},
			[]string{"task", "status"},
		),
		taskDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coinchart_task_duration_seconds",
				Help:    "Duration of scheduled task runs",
				Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"task"},
		),
		records: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coinchart_ingest_records_total",
				Help: "Token records processed during ingest by outcome",
			},
			[]string{"source", "outcome"},
		),
		lastIngest: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "coinchart_ingest_last_success_timestamp_seconds",
				Help: "Unix time of the last finished ingest pass",
			},
			[]string{"source"},
		),
		signalOutcomes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coinchart_signal_match_total",
				Help: "Signal matcher results per candidate token",
			},
			[]string{"outcome"},
		),
		httpRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coinchart_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"route", "method", "status"},
		),
		httpDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coinchart_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"route", "method"},
		),
	}
}

func (r *Recorder) RecordTaskRun(task, status string, d time.Duration) {
	if r == nil {
		return
	}
	r.taskRuns.WithLabelValues(task, status).Inc()
	r.taskDuration.WithLabelValues(task).Observe(d.Seconds())
}

// RecordIngest adds n records of one outcome (upserted, skipped, failed).
func (r *Recorder) RecordIngest(source, outcome string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.records.WithLabelValues(source, outcome).Add(float64(n))
}

func (r *Recorder) RecordIngestFinished(source string, at time.Time) {
	if r == nil {
		return
	}
	r.lastIngest.WithLabelValues(source).Set(float64(at.Unix()))
}

func (r *Recorder) RecordSignalOutcome(outcome string) {
	if r == nil {
		return
	}
	r.signalOutcomes.WithLabelValues(outcome).Inc()
}

func (r *Recorder) RecordHTTPRequest(route, method, status string, d time.Duration) {
	if r == nil {
		return
	}
	r.httpRequests.WithLabelValues(route, method, status).Inc()
	r.httpDuration.WithLabelValues(route, method).Observe(d.Seconds())
}
