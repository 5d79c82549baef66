package health

import (
	"github.com/masa-finance/bot-guardian/api/types"
	"github.com/prometheus/client_golang/prometheus"
)

// RegisterMetrics exposes the reporter's state as gauges evaluated at scrape
// time, so scraping has the same cost as a probe.
func RegisterMetrics(reg prometheus.Registerer, r *Reporter) error {
	collectors := []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "guardian",
			Subsystem: "worker",
			Name:      "gateway_connected",
			Help:      "1 when the upstream gateway session is open",
		}, func() float64 {
			if r.State().Connected {
				return 1
			}
			return 0
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "guardian",
			Subsystem: "worker",
			Name:      "heartbeat_age_seconds",
			Help:      "Seconds since the last acknowledged gateway heartbeat",
		}, func() float64 {
			return r.Snapshot().LastHeartbeatAgeSeconds
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "guardian",
			Subsystem: "worker",
			Name:      "uptime_seconds",
			Help:      "Seconds since the worker process started",
		}, func() float64 {
			return r.Snapshot().UptimeSeconds
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "guardian",
			Subsystem: "worker",
			Name:      "healthy",
			Help:      "1 healthy, 0.5 degraded, 0 unhealthy",
		}, func() float64 {
			switch r.Snapshot().Status {
			case types.HealthHealthy:
				return 1
			case types.HealthDegraded:
				return 0.5
			default:
				return 0
			}
		}),
	}

	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
