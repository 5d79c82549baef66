package gateway

import (
	"context"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/sirupsen/logrus"
)

// Conn is an upstream gateway session. The library behind it keeps the
// session alive and reconnects on its own; Gateway only opens it, samples
// heartbeat acknowledgements and closes it.
type Conn interface {
	Open() error
	Close() error
	LastHeartbeatAck() time.Time
	HeartbeatLatency() time.Duration
}

// HeartbeatRecorder is fed every acknowledged heartbeat.
type HeartbeatRecorder interface {
	RecordHeartbeat(at time.Time, latency time.Duration)
}

const (
	DefaultSampleInterval = 5 * time.Second
	DefaultOpenRetries    = 5
)

type Gateway struct {
	conn           Conn
	recorder       HeartbeatRecorder
	sampleInterval time.Duration
	openRetries    uint64
	newBackOff     func() backoff.BackOff
}

type Option func(*Gateway)

func WithSampleInterval(d time.Duration) Option {
	return func(g *Gateway) {
		g.sampleInterval = d
	}
}

// WithOpenRetries bounds how many times a failed Open is retried.
func WithOpenRetries(n uint64) Option {
	return func(g *Gateway) {
		g.openRetries = n
	}
}

func WithBackOff(fn func() backoff.BackOff) Option {
	return func(g *Gateway) {
		g.newBackOff = fn
	}
}

func New(conn Conn, recorder HeartbeatRecorder, opts ...Option) *Gateway {
	g := &Gateway{
		conn:           conn,
		recorder:       recorder,
		sampleInterval: DefaultSampleInterval,
		openRetries:    DefaultOpenRetries,
		newBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Open opens the session, retrying with exponential backoff until the retry
// budget is spent or ctx is done.
func (g *Gateway) Open(ctx context.Context) error {
	b := backoff.WithContext(backoff.WithMaxRetries(g.newBackOff(), g.openRetries), ctx)

	return backoff.RetryNotify(g.conn.Open, b, func(err error, next time.Duration) {
		logrus.WithError(err).WithField("retry_in", next.String()).Warn("Failed to open gateway session")
	})
}

// Run samples heartbeat acknowledgements until ctx is done, then closes the
// session.
func (g *Gateway) Run(ctx context.Context) error {
	ticker := time.NewTicker(g.sampleInterval)
	defer ticker.Stop()

	g.sample()
	for {
		select {
		case <-ctx.Done():
			logrus.Info("Closing gateway session")
			return g.conn.Close()
		case <-ticker.C:
			g.sample()
		}
	}
}

func (g *Gateway) sample() {
	ack := g.conn.LastHeartbeatAck()
	if ack.IsZero() {
		return
	}
	g.recorder.RecordHeartbeat(ack, g.conn.HeartbeatLatency())
}
