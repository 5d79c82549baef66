package lifecycle

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ExitRestart is the exit code used after an intentional-exit request. Any
// code other than 0 and 130 makes the supervisor respawn the worker.
const ExitRestart = 1

// Terminator owns the one pending termination of this process generation.
// The first Schedule call arms a timer; later calls are no-ops. Once armed
// the termination cannot be cancelled.
type Terminator struct {
	generation      string
	delay           time.Duration
	shutdownTimeout time.Duration
	onFire          func()
	exit            func(code int)

	pending atomic.Bool
	reason  atomic.Value
	fired   chan struct{}
	once    sync.Once
}

type Option func(*Terminator)

// WithDelay sets how long the process keeps serving after a request was
// accepted, so the acknowledgement reaches the caller before the exit.
func WithDelay(d time.Duration) Option {
	return func(t *Terminator) {
		t.delay = d
	}
}

// WithShutdownTimeout bounds the graceful shutdown; when it expires the
// process is killed with the exit function.
func WithShutdownTimeout(d time.Duration) Option {
	return func(t *Terminator) {
		t.shutdownTimeout = d
	}
}

// WithOnFire registers the hook that starts the graceful shutdown, usually
// the cancel func of the root context.
func WithOnFire(fn func()) Option {
	return func(t *Terminator) {
		t.onFire = fn
	}
}

func WithExitFunc(fn func(code int)) Option {
	return func(t *Terminator) {
		t.exit = fn
	}
}

func NewTerminator(opts ...Option) *Terminator {
	t := &Terminator{
		generation:      uuid.New().String(),
		delay:           2 * time.Second,
		shutdownTimeout: 10 * time.Second,
		fired:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Schedule arms the termination. It reports whether this call armed it;
// false means a termination was already pending.
func (t *Terminator) Schedule(reason string) bool {
	log := logrus.WithFields(logrus.Fields{"generation": t.generation, "reason": reason})

	if !t.pending.CompareAndSwap(false, true) {
		log.WithField("pending_reason", t.Reason()).Info("Termination already pending, ignoring request")
		return false
	}
	t.reason.Store(reason)

	log.WithField("delay", t.delay.String()).Warn("Intentional exit scheduled")
	time.AfterFunc(t.delay, t.fire)
	return true
}

func (t *Terminator) fire() {
	t.once.Do(func() {
		logrus.WithFields(logrus.Fields{
			"generation": t.generation,
			"reason":     t.Reason(),
		}).Error("Forcing process exit for restart")

		close(t.fired)
		if t.onFire != nil {
			t.onFire()
		}
		if t.exit != nil && t.shutdownTimeout > 0 {
			time.AfterFunc(t.shutdownTimeout, func() {
				logrus.WithField("timeout", t.shutdownTimeout.String()).Error("Graceful shutdown timed out, exiting")
				t.exit(ExitRestart)
			})
		}
	})
}

// Pending reports whether a termination has been scheduled.
func (t *Terminator) Pending() bool {
	return t.pending.Load()
}

// Fired is closed once the delay has elapsed and shutdown has begun.
func (t *Terminator) Fired() <-chan struct{} {
	return t.fired
}

// HasFired reports whether the scheduled termination has started.
func (t *Terminator) HasFired() bool {
	select {
	case <-t.fired:
		return true
	default:
		return false
	}
}

func (t *Terminator) Generation() string {
	return t.generation
}

func (t *Terminator) Reason() string {
	if r, ok := t.reason.Load().(string); ok {
		return r
	}
	return ""
}
