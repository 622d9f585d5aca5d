// Package metrics exposes Prometheus instruments for the reconcile and sweep jobs
// and for user-driven status changes. A nil *Metrics records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	reconcileInstances *prometheus.CounterVec
	ruleFailures       prometheus.Counter
	sweepMissed        prometheus.Counter
	jobRuns            *prometheus.CounterVec
	jobDuration        *prometheus.HistogramVec
	statusChanges      *prometheus.CounterVec
}

// New registers all instruments on a fresh registry together with the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		reconcileInstances: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "planner_reconcile_instances_total",
			Help: "Instances handled by reconciliation, by upsert outcome.",
		}, []string{"outcome"}),
		ruleFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "planner_reconcile_rule_failures_total",
			Help: "Rules whose reconciliation failed and was skipped.",
		}),
		sweepMissed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "planner_sweep_missed_total",
			Help: "Pending instances marked missed by the sweeper.",
		}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "planner_job_runs_total",
			Help: "Job runs by job name and result.",
		}, []string{"job", "success"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "planner_job_duration_seconds",
			Help:    "Wall time of job runs.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"job"}),
		statusChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "planner_status_changes_total",
			Help: "User-driven instance status changes by target status.",
		}, []string{"status"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.reconcileInstances,
		m.ruleFailures,
		m.sweepMissed,
		m.jobRuns,
		m.jobDuration,
		m.statusChanges,
	)
	return m
}

// Registry is exposed for tests that gather values directly.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) AddReconciled(outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.reconcileInstances.WithLabelValues(outcome).Add(float64(n))
}

func (m *Metrics) RuleFailed() {
	if m == nil {
		return
	}
	m.ruleFailures.Inc()
}

func (m *Metrics) AddSwept(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.sweepMissed.Add(float64(n))
}

// ObserveJob records one finished job run.
func (m *Metrics) ObserveJob(job string, success bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job, strconv.FormatBool(success)).Inc()
	m.jobDuration.WithLabelValues(job).Observe(elapsed.Seconds())
}

func (m *Metrics) StatusChanged(status string) {
	if m == nil {
		return
	}
	m.statusChanges.WithLabelValues(status).Inc()
}
