// Package jobmetrics holds the Prometheus collectors of background jobs and
// repair passes.
package jobmetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	statusSuccess = "success"
	statusFailure = "failure"
)

// Metrics counts job runs and repair results. A nil *Metrics records nothing.
type Metrics struct {
	runs        *prometheus.CounterVec
	failures    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
	repairs     *prometheus.CounterVec
}

// NewMetrics registers the collectors on registerer, or on the default
// registerer when nil. Registering twice on one registerer panics.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	f := promauto.With(registerer)
	return &Metrics{
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "staffbot_jobs_total",
			Help: "Job executions by job name and status.",
		}, []string{"job", "status"}),
		failures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "staffbot_jobs_failures_total",
			Help: "Failed job executions by job name.",
		}, []string{"job"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "staffbot_job_duration_seconds",
			Help:    "Job execution time.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"job"}),
		lastSuccess: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "staffbot_job_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run per job.",
		}, []string{"job"}),
		repairs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "staffbot_announcement_repairs_total",
			Help: "Announcement channels processed by repair passes, by result.",
		}, []string{"result"}),
	}
}

// Tracker times one job run; obtain it with Track and finish with End.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track starts timing a run of job.
func (m *Metrics) Track(job string) *Tracker {
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End records the run and hands err back unchanged.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	m := t.metrics
	m.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	if err != nil {
		m.failures.WithLabelValues(t.job).Inc()
		m.runs.WithLabelValues(t.job, statusFailure).Inc()
		return err
	}
	m.runs.WithLabelValues(t.job, statusSuccess).Inc()
	m.lastSuccess.WithLabelValues(t.job).SetToCurrentTime()
	return nil
}

// ObserveRepair counts one channel processed by a repair pass.
func (m *Metrics) ObserveRepair(result string) {
	if m == nil || result == "" {
		return
	}
	m.repairs.WithLabelValues(result).Inc()
}
