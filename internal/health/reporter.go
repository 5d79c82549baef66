package health

import (
	"sync/atomic"
	"time"

	"github.com/masa-finance/bot-guardian/api/types"
	"github.com/sirupsen/logrus"
)

const ServiceName = "discord-bot"

// Reporter holds the worker's liveness facts. The gateway's connection
// callbacks are the only writers; probes only ever load the current pointer,
// so a probe never waits on the gateway and the gateway never waits on a probe.
type Reporter struct {
	state      atomic.Pointer[State]
	thresholds Thresholds
	now        func() time.Time
}

type Option func(*Reporter)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Reporter) {
		r.now = now
	}
}

// NewReporter creates a reporter whose start time is now.
func NewReporter(thresholds Thresholds, opts ...Option) *Reporter {
	r := &Reporter{
		thresholds: thresholds,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.thresholds.HeartbeatInterval <= 0 {
		r.thresholds.HeartbeatInterval = 41250 * time.Millisecond
	}
	r.state.Store(&State{StartedAt: r.now()})
	return r
}

// update applies fn to a copy of the current state and publishes it.
func (r *Reporter) update(fn func(s *State)) State {
	for {
		old := r.state.Load()
		next := *old
		fn(&next)
		if r.state.CompareAndSwap(old, &next) {
			return next
		}
	}
}

// MarkConnected records that the gateway websocket is open. Heartbeat age is
// measured from this moment until the first acknowledgement arrives.
func (r *Reporter) MarkConnected() {
	now := r.now()
	r.update(func(s *State) {
		s.Connected = true
		s.ConnectedAt = now
		s.LastHeartbeat = time.Time{}
	})
	logrus.Info("Gateway connected")
}

// MarkReady records the session established by the gateway handshake.
func (r *Reporter) MarkReady(sessionID string, guilds int) {
	r.update(func(s *State) {
		s.SessionID = sessionID
		s.Guilds = guilds
	})
	logrus.WithFields(logrus.Fields{"session_id": sessionID, "guilds": guilds}).Info("Gateway session ready")
}

// SetGuilds updates the number of guilds the session is serving.
func (r *Reporter) SetGuilds(guilds int) {
	r.update(func(s *State) {
		s.Guilds = guilds
	})
}

func (r *Reporter) MarkDisconnected() {
	st := r.update(func(s *State) {
		s.Connected = false
	})
	logrus.WithField("session_id", st.SessionID).Warn("Gateway disconnected")
}

// RecordHeartbeat stores an acknowledged heartbeat. Acks older than the
// current connection belong to a previous session and are ignored.
func (r *Reporter) RecordHeartbeat(at time.Time, latency time.Duration) {
	r.update(func(s *State) {
		if at.Before(s.ConnectedAt) || !at.After(s.LastHeartbeat) {
			return
		}
		s.LastHeartbeat = at
		s.HeartbeatLatency = latency
	})
}

// State returns a copy of the current state.
func (r *Reporter) State() State {
	return *r.state.Load()
}

// Snapshot evaluates the current state against the thresholds.
func (r *Reporter) Snapshot() types.HealthSnapshot {
	return Evaluate(r.State(), r.thresholds, r.now())
}

// HeartbeatAge is the time since the last sign of life from the upstream
// session: the last acknowledged heartbeat, else the connection time, else
// process start.
func (s State) HeartbeatAge(now time.Time) time.Duration {
	ref := s.StartedAt
	switch {
	case !s.LastHeartbeat.IsZero():
		ref = s.LastHeartbeat
	case !s.ConnectedAt.IsZero():
		ref = s.ConnectedAt
	}
	if age := now.Sub(ref); age > 0 {
		return age
	}
	return 0
}

// Evaluate builds the probe answer. A disconnected gateway or a stale
// heartbeat is Unhealthy no matter how long the process has been up.
func Evaluate(s State, t Thresholds, now time.Time) types.HealthSnapshot {
	age := s.HeartbeatAge(now)

	snap := types.HealthSnapshot{
		Service:                 ServiceName,
		GatewayConnected:        s.Connected,
		UptimeSeconds:           now.Sub(s.StartedAt).Seconds(),
		LastHeartbeatAgeSeconds: age.Seconds(),
		HeartbeatLatencyMillis:  s.HeartbeatLatency.Milliseconds(),
		Guilds:                  s.Guilds,
		StartedAt:               s.StartedAt.UTC(),
		Timestamp:               now.UTC(),
	}

	switch {
	case !s.Connected:
		snap.Status = types.HealthUnhealthy
		snap.Reason = "gateway disconnected"
	case age > t.StaleAfter():
		snap.Status = types.HealthUnhealthy
		snap.Reason = "heartbeat stale"
	case age > t.DegradedAfter():
		snap.Status = types.HealthDegraded
		snap.Reason = "heartbeat late"
	default:
		snap.Status = types.HealthHealthy
	}

	return snap
}
