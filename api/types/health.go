package types

import "time"

// HealthStatus is the coarse verdict of the detailed health probe.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// Serving reports whether the status should be answered with a success code.
func (s HealthStatus) Serving() bool {
	return s == HealthHealthy || s == HealthDegraded
}

// Liveness is the body of the basic probe.
type Liveness struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// HealthSnapshot is the body of the detailed probe. It is rebuilt on every
// call from cached state and never persisted.
type HealthSnapshot struct {
	Status                  HealthStatus `json:"status"`
	Service                 string       `json:"service"`
	GatewayConnected        bool         `json:"gateway_connected"`
	UptimeSeconds           float64      `json:"uptime_seconds"`
	LastHeartbeatAgeSeconds float64      `json:"last_heartbeat_age_seconds"`
	HeartbeatLatencyMillis  int64        `json:"heartbeat_latency_ms"`
	Guilds                  int          `json:"guilds"`
	Reason                  string       `json:"reason,omitempty"`
	StartedAt               time.Time    `json:"started_at"`
	Timestamp               time.Time    `json:"timestamp"`
}

type Ping struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
