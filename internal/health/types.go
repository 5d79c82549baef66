package health

import (
	"time"

	"github.com/masa-finance/bot-guardian/api/types"
)

// State is the cached view of the worker's upstream connection. A State is
// never mutated after it has been published; writers build a copy and swap it.
type State struct {
	StartedAt        time.Time
	Connected        bool
	ConnectedAt      time.Time
	LastHeartbeat    time.Time
	HeartbeatLatency time.Duration
	SessionID        string
	Guilds           int
}

// Thresholds decide when heartbeat silence degrades or fails the probe.
// A gap of up to one interval is normal, up to two intervals means one
// heartbeat went missing (Degraded), anything longer is a stale session.
type Thresholds struct {
	HeartbeatInterval time.Duration
}

func (t Thresholds) DegradedAfter() time.Duration {
	return t.HeartbeatInterval
}

func (t Thresholds) StaleAfter() time.Duration {
	return 2 * t.HeartbeatInterval
}

// StateReader is what the control surface needs from the reporter.
type StateReader interface {
	State() State
	Snapshot() types.HealthSnapshot
}
