// Package metrics provides the Prometheus metrics of the sync pipeline.
package metrics

import (
	"net/http"

	"github.com/google/wire"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// Namespace is the namespace for all SyncGuard metrics.
	Namespace = "syncguard"
)

// ProviderSet is metrics providers.
var ProviderSet = wire.NewSet(NewRegistry, NewMetrics)

// Health status gauge values.
const (
	HealthUnknown  = 0
	HealthHealthy  = 1
	HealthWarning  = 2
	HealthCritical = 3
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Circuit breaker metrics
	CircuitTransitions *prometheus.CounterVec
	CircuitRejections  *prometheus.CounterVec

	// Rate limiter metrics
	RateLimitDenied      *prometheus.CounterVec
	RateLimitWaitSeconds *prometheus.HistogramVec

	// Sync metrics
	MetricResults     *prometheus.CounterVec
	TenantRuns        *prometheus.CounterVec
	RunDuration       prometheus.Histogram
	RunInProgress     prometheus.Gauge
	HealthStatus      prometheus.Gauge
	ProbeResultsTotal *prometheus.CounterVec
}

// NewRegistry creates a private registry carrying the Go and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler exposes reg in the Prometheus text format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// NewMetrics creates and registers all metrics on reg.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{}

	m.initCircuitMetrics(factory)
	m.initRateLimitMetrics(factory)
	m.initSyncMetrics(factory)

	return m
}

func (m *Metrics) initCircuitMetrics(factory promauto.Factory) {
	m.CircuitTransitions = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "circuit",
			Name:      "transitions_total",
			Help:      "Circuit breaker state transitions",
		},
		[]string{"service", "from", "to"},
	)

	m.CircuitRejections = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "circuit",
			Name:      "rejections_total",
			Help:      "Calls rejected because the circuit was open",
		},
		[]string{"service"},
	)
}

func (m *Metrics) initRateLimitMetrics(factory promauto.Factory) {
	m.RateLimitDenied = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "rate_limit",
			Name:      "denied_total",
			Help:      "Calls denied by the rate limiter",
		},
		[]string{"service"},
	)

	m.RateLimitWaitSeconds = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "rate_limit",
			Name:      "wait_seconds",
			Help:      "Time spent waiting for a rate limit window to reopen",
			Buckets:   []float64{1, 5, 15, 30, 60, 120},
		},
		[]string{"service"},
	)
}

func (m *Metrics) initSyncMetrics(factory promauto.Factory) {
	m.MetricResults = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "sync",
			Name:      "metric_results_total",
			Help:      "KPI metric sync outcomes",
		},
		[]string{"service", "result"},
	)

	m.TenantRuns = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "sync",
			Name:      "tenant_runs_total",
			Help:      "Tenant sync runs by outcome",
		},
		[]string{"result"},
	)

	m.RunDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "sync",
			Name:      "run_duration_seconds",
			Help:      "Duration of a full daily sync run",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 14), // 1s to ~2.3h
		},
	)

	m.RunInProgress = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "sync",
			Name:      "run_in_progress",
			Help:      "1 while this process is executing a sync run",
		},
	)

	m.HealthStatus = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "sync",
			Name:      "health_status",
			Help:      "Last computed sync health: 0 unknown, 1 healthy, 2 warning, 3 critical",
		},
	)

	m.ProbeResultsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "probe",
			Name:      "results_total",
			Help:      "Reachability probe outcomes",
		},
		[]string{"service", "result"},
	)
}

// CircuitTransition records a breaker state change.
func (m *Metrics) CircuitTransition(service, from, to string) {
	if m == nil {
		return
	}
	m.CircuitTransitions.WithLabelValues(service, from, to).Inc()
}

// CircuitRejected records a call rejected by an open breaker.
func (m *Metrics) CircuitRejected(service string) {
	if m == nil {
		return
	}
	m.CircuitRejections.WithLabelValues(service).Inc()
}

// RateLimited records a denied call.
func (m *Metrics) RateLimited(service string) {
	if m == nil {
		return
	}
	m.RateLimitDenied.WithLabelValues(service).Inc()
}

// RateLimitWaited records a backpressure wait.
func (m *Metrics) RateLimitWaited(service string, seconds float64) {
	if m == nil {
		return
	}
	m.RateLimitWaitSeconds.WithLabelValues(service).Observe(seconds)
}

// MetricResult records one KPI metric outcome: success, failed or insufficient.
func (m *Metrics) MetricResult(service, result string) {
	if m == nil {
		return
	}
	m.MetricResults.WithLabelValues(service, result).Inc()
}

// TenantRun records one tenant run outcome: success or failed.
func (m *Metrics) TenantRun(result string) {
	if m == nil {
		return
	}
	m.TenantRuns.WithLabelValues(result).Inc()
}

// RunStarted marks a run in progress.
func (m *Metrics) RunStarted() {
	if m == nil {
		return
	}
	m.RunInProgress.Set(1)
}

// RunFinished clears the in-progress gauge and observes the run duration.
func (m *Metrics) RunFinished(seconds float64) {
	if m == nil {
		return
	}
	m.RunInProgress.Set(0)
	m.RunDuration.Observe(seconds)
}

// SetHealth publishes the last health verdict.
func (m *Metrics) SetHealth(value int) {
	if m == nil {
		return
	}
	m.HealthStatus.Set(float64(value))
}

// ProbeResult records a reachability probe outcome: reachable or unreachable.
func (m *Metrics) ProbeResult(service, result string) {
	if m == nil {
		return
	}
	m.ProbeResultsTotal.WithLabelValues(service, result).Inc()
}
