// Package observability holds the process-wide run statistics and the
// Prometheus metrics exposed on /metrics.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hazardwatch"

// Metrics holds the Prometheus counters, histograms and gauges for the
// hazard pipeline.
type Metrics struct {
	WeatherFetches   *prometheus.CounterVec // labels: provider, outcome={success,error}
	AlertsGenerated  *prometheus.CounterVec // labels: hazard, severity
	AlertsSuppressed *prometheus.CounterVec // labels: hazard
	PersistFailures  *prometheus.CounterVec // labels: kind={alert,delivery}

	Deliveries    *prometheus.CounterVec // labels: method, outcome={success,failed,skipped}
	DailyCapSkips prometheus.Counter
	Retries       *prometheus.CounterVec // labels: outcome={success,failed,skipped}

	JobRuns          *prometheus.CounterVec   // labels: job, outcome={success,failure,skipped}
	JobDuration      *prometheus.HistogramVec // labels: job
	SchedulerRunning prometheus.Gauge

	HTTPRequests *prometheus.CounterVec   // labels: method, route, status
	HTTPDuration *prometheus.HistogramVec // labels: route
}

func newMetrics(withHelp bool) *Metrics {
	help := func(text string) string {
		if withHelp {
			return text
		}
		return ""
	}
	counter := func(name, text string) prometheus.CounterOpts {
		return prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help(text)}
	}

	return &Metrics{
		WeatherFetches:   prometheus.NewCounterVec(counter("weather_fetches_total", "Weather provider fetches by provider and outcome."), []string{"provider", "outcome"}),
		AlertsGenerated:  prometheus.NewCounterVec(counter("alerts_generated_total", "Persisted alerts by hazard and severity."), []string{"hazard", "severity"}),
		AlertsSuppressed: prometheus.NewCounterVec(counter("alerts_suppressed_total", "Candidate alerts dropped as duplicates."), []string{"hazard"}),
		PersistFailures:  prometheus.NewCounterVec(counter("persist_failures_total", "Records that failed to persist, by kind."), []string{"kind"}),
		Deliveries:       prometheus.NewCounterVec(counter("deliveries_total", "Delivery attempts by method and outcome."), []string{"method", "outcome"}),
		DailyCapSkips:    prometheus.NewCounter(counter("daily_cap_skips_total", "Subscribers skipped because the daily cap was reached.")),
		Retries:          prometheus.NewCounterVec(counter("delivery_retries_total", "Retry sweep outcomes."), []string{"outcome"}),
		JobRuns:          prometheus.NewCounterVec(counter("job_runs_total", "Scheduler job runs by job and outcome."), []string{"job", "outcome"}),
		JobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      help("Duration of a scheduler job run."),
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"job"}),
		SchedulerRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scheduler_running",
			Help:      help("1 while the scheduler is started, 0 otherwise."),
		}),
		HTTPRequests: prometheus.NewCounterVec(counter("http_requests_total", "Admin API requests by method, route and status."), []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      help("Admin API request latency."),
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.WeatherFetches,
		m.AlertsGenerated,
		m.AlertsSuppressed,
		m.PersistFailures,
		m.Deliveries,
		m.DailyCapSkips,
		m.Retries,
		m.JobRuns,
		m.JobDuration,
		m.SchedulerRunning,
		m.HTTPRequests,
		m.HTTPDuration,
	}
}

// NewMetrics creates and registers all metrics with reg. A nil reg uses the
// default Prometheus registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := newMetrics(true)
	reg.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid "already
// registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics(false)
}

// Outcome maps a success flag to the outcome label value.
func Outcome(ok bool, failure string) string {
	if ok {
		return "success"
	}
	return failure
}
