package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background jobs and the
// reconciliation pipeline they drive.
type Metrics struct {
	runs             *prometheus.CounterVec
	failures         *prometheus.CounterVec
	duration         *prometheus.HistogramVec
	outcomes         *prometheus.CounterVec
	strategyFailures *prometheus.CounterVec
	strategyDuration *prometheus.HistogramVec
	integrityIssues  *prometheus.CounterVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against registerer, or the default
// Prometheus registerer when nil.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker instruments a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track starts timing one run of job.
func (m *Metrics) Track(job string) *Tracker {
	if m == nil {
		return &Tracker{job: job, start: time.Now()}
	}
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End records duration and status and returns err untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// Outcome counts what automatic reconciliation did with a transaction.
func (m *Metrics) Outcome(outcome string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(outcome).Inc()
}

// StrategyFailed counts a matching strategy that returned an error.
func (m *Metrics) StrategyFailed(source string) {
	if m == nil {
		return
	}
	m.strategyFailures.WithLabelValues(source).Inc()
}

// StrategyDuration observes how long a matching strategy took.
func (m *Metrics) StrategyDuration(source string, d time.Duration) {
	if m == nil {
		return
	}
	m.strategyDuration.WithLabelValues(source).Observe(d.Seconds())
}

// AddIntegrityIssues records ledger inconsistencies found by kind.
func (m *Metrics) AddIntegrityIssues(kind string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.integrityIssues.WithLabelValues(kind).Add(float64(count))
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reconciler_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reconciler_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "reconciler_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reconciler_outcomes_total",
		Help: "Automatic reconciliation results by outcome.",
	}, []string{"outcome"})
	strategyFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reconciler_strategy_failures_total",
		Help: "Matching strategy errors by source.",
	}, []string{"source"})
	strategyDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "reconciler_strategy_duration_seconds",
		Help:    "Time spent in each matching strategy.",
		Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10},
	}, []string{"source"})
	integrity := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reconciler_ledger_integrity_issues_total",
		Help: "Ledger inconsistencies found by the integrity check.",
	}, []string{"kind"})
	registerer.MustRegister(runs, failures, duration, outcomes, strategyFailures, strategyDuration, integrity)
	return &Metrics{
		runs:             runs,
		failures:         failures,
		duration:         duration,
		outcomes:         outcomes,
		strategyFailures: strategyFailures,
		strategyDuration: strategyDuration,
		integrityIssues:  integrity,
	}
}
