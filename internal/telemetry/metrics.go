// Package telemetry exposes the pipeline's counters. The exposition
// format is left to the collector; the pipeline only increments.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	JobsSubmitted *prometheus.CounterVec
	JobsCompleted *prometheus.CounterVec
	JobsFailed    *prometheus.CounterVec
	JobDuration   *prometheus.HistogramVec
	Fallbacks     *prometheus.CounterVec
	Retries       prometheus.Counter
	QueueDepth    prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		JobsSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "verimedia_jobs_submitted_total",
			Help: "Jobs accepted for analysis.",
		}, []string{"modality"}),
		JobsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "verimedia_jobs_completed_total",
			Help: "Jobs that reached the completed state.",
		}, []string{"modality"}),
		JobsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "verimedia_jobs_failed_total",
			Help: "Jobs that reached the failed state, by cause.",
		}, []string{"modality", "cause"}),
		JobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "verimedia_job_duration_seconds",
			Help:    "Wall-clock pipeline duration per job.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"modality"}),
		Fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "verimedia_fallback_invocations_total",
			Help: "Heuristic fallback invocations.",
		}, []string{"modality"}),
		Retries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "verimedia_job_retries_total",
			Help: "Retries after transient inference errors.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "verimedia_queue_depth",
			Help: "Jobs waiting for a worker.",
		}),
	}
	reg.MustRegister(
		m.JobsSubmitted, m.JobsCompleted, m.JobsFailed,
		m.JobDuration, m.Fallbacks, m.Retries, m.QueueDepth,
	)
	return m
}

// NewNop returns metrics bound to a throwaway registry, for tests.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
