package supervisor

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector defines the interface for collecting supervisor metrics
type MetricsCollector interface {
	// WorkerExited records how a worker generation ended
	WorkerExited(exitCode int, runtime time.Duration)

	// RestartScheduled records the state after a crash was counted
	RestartScheduled(state RestartState)

	// Exhausted records that the restart budget ran out
	Exhausted()
}

type noopMetricsCollector struct{}

func (n *noopMetricsCollector) WorkerExited(exitCode int, runtime time.Duration) {}
func (n *noopMetricsCollector) RestartScheduled(state RestartState)             {}
func (n *noopMetricsCollector) Exhausted()                                      {}

// NewNoopMetricsCollector creates a no-op metrics collector
func NewNoopMetricsCollector() MetricsCollector {
	return &noopMetricsCollector{}
}

// PrometheusMetricsCollector implements MetricsCollector using Prometheus metrics
type PrometheusMetricsCollector struct {
	exits         *prometheus.CounterVec
	restarts      prometheus.Counter
	quickFailures prometheus.Gauge
	lastRuntime   prometheus.Gauge
	restartDelay  prometheus.Gauge
	exhausted     prometheus.Gauge

	registry *prometheus.Registry
}

// NewPrometheusMetricsCollector creates a collector with its own registry
func NewPrometheusMetricsCollector(namespace string) *PrometheusMetricsCollector {
	if namespace == "" {
		namespace = "guardian"
	}

	pmc := &PrometheusMetricsCollector{
		registry: prometheus.NewRegistry(),
	}

	pmc.exits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "supervisor",
			Name:      "worker_exits_total",
			Help:      "Total number of worker exits by exit code",
		},
		[]string{"exit_code"},
	)

	pmc.restarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "supervisor",
			Name:      "restarts_total",
			Help:      "Total number of worker restarts",
		},
	)

	pmc.quickFailures = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "supervisor",
			Name:      "quick_failures",
			Help:      "Current number of consecutive quick failures",
		},
	)

	pmc.lastRuntime = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "supervisor",
			Name:      "last_runtime_seconds",
			Help:      "Runtime of the last worker generation",
		},
	)

	pmc.restartDelay = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "supervisor",
			Name:      "restart_delay_seconds",
			Help:      "Delay applied before the next restart",
		},
	)

	pmc.exhausted = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "supervisor",
			Name:      "exhausted",
			Help:      "1 once the restart budget has been spent",
		},
	)

	pmc.registry.MustRegister(
		pmc.exits,
		pmc.restarts,
		pmc.quickFailures,
		pmc.lastRuntime,
		pmc.restartDelay,
		pmc.exhausted,
	)

	return pmc
}

func (p *PrometheusMetricsCollector) WorkerExited(exitCode int, runtime time.Duration) {
	p.exits.WithLabelValues(strconv.Itoa(exitCode)).Inc()
	p.lastRuntime.Set(runtime.Seconds())
}

func (p *PrometheusMetricsCollector) RestartScheduled(state RestartState) {
	p.restarts.Inc()
	p.quickFailures.Set(float64(state.ConsecutiveQuickFailures))
	p.restartDelay.Set(state.RestartDelay.Seconds())
}

func (p *PrometheusMetricsCollector) Exhausted() {
	p.exhausted.Set(1)
}

// Registry returns the Prometheus registry
func (p *PrometheusMetricsCollector) Registry() *prometheus.Registry {
	return p.registry
}
