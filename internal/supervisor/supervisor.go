package supervisor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/masa-finance/bot-guardian/internal/notify"
)

// Spawner runs one worker generation to completion and reports its exit
// code. An error means the worker could not be run at all.
type Spawner interface {
	Spawn(ctx context.Context) (int, error)
}

type Supervisor struct {
	spawner  Spawner
	policy   Policy
	metrics  MetricsCollector
	notifier notify.Notifier
	sleep    func(ctx context.Context, d time.Duration) error
	now      func() time.Time

	// Each notification gets notifyTimeout; Run waits at most that long
	// for pending ones when it returns.
	notifyTimeout time.Duration
	events        chan notify.Event
}

type Option func(*Supervisor)

func WithPolicy(p Policy) Option {
	return func(s *Supervisor) {
		s.policy = p
	}
}

func WithMetrics(m MetricsCollector) Option {
	return func(s *Supervisor) {
		s.metrics = m
	}
}

func WithNotifier(n notify.Notifier) Option {
	return func(s *Supervisor) {
		s.notifier = n
	}
}

func WithNotifyTimeout(d time.Duration) Option {
	return func(s *Supervisor) {
		s.notifyTimeout = d
	}
}

func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Supervisor) {
		s.sleep = fn
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Supervisor) {
		s.now = now
	}
}

func New(spawner Spawner, opts ...Option) *Supervisor {
	s := &Supervisor{
		spawner:       spawner,
		policy:        DefaultPolicy(),
		metrics:       NewNoopMetricsCollector(),
		notifier:      notify.Noop(),
		notifyTimeout: 5 * time.Second,
		sleep:         sleepContext,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run spawns the worker and respawns it after every crash until it exits
// cleanly, the budget is spent (ErrExhausted) or ctx is done
// (ErrInterrupted). Only one worker runs at a time.
func (s *Supervisor) Run(ctx context.Context) (RestartState, error) {
	var state RestartState

	defer s.startNotifications()()
	s.notify(notify.Event{Status: notify.StatusStarting, Message: "Supervisor started"})

	for {
		log := logrus.WithField("restart_count", state.RestartCount)
		log.Info("Starting worker")

		started := s.now()
		code, err := s.spawner.Spawn(ctx)
		runtime := s.now().Sub(started)

		if ctx.Err() != nil {
			log.WithField("exit_code", code).Info("Supervisor stopping, worker not respawned")
			return state, ErrInterrupted
		}
		if err != nil {
			log.WithError(err).Error("Failed to run worker")
			code = ExitSpawnFailed
			runtime = 0
		}
		s.metrics.WorkerExited(code, runtime)

		var d Decision
		state, d = Next(state, s.policy, code, runtime)

		log = logrus.WithFields(logrus.Fields{
			"exit_code":      code,
			"runtime":        runtime.Round(time.Millisecond).String(),
			"restart_count":  state.RestartCount,
			"quick_failures": state.ConsecutiveQuickFailures,
			"restart_delay":  d.Delay.String(),
			"decision":       d.Action.String(),
		})

		if d.Action == ActionStop {
			if code == ExitInterrupted {
				log.Info("Worker was interrupted, not restarting")
			} else {
				log.Info("Worker exited cleanly, not restarting")
			}
			return state, nil
		}

		s.metrics.RestartScheduled(state)
		switch {
		case d.CrashLoop:
			log.Warn("Worker is crash looping")
		case runtime < s.policy.QuickRunThreshold:
			log.Warn("Worker exited quickly")
		default:
			log.Info("Worker exited")
		}

		if d.Action == ActionRestart {
			s.notify(notify.Event{
				Status:       notify.StatusRestarting,
				Message:      fmt.Sprintf("Worker exited with code %d after %s, restarting in %s", code, runtime.Round(time.Second), d.Delay),
				RestartCount: state.RestartCount,
			})
		}

		if err := s.sleep(ctx, d.Delay); err != nil {
			logrus.WithError(err).Info("Supervisor stopping during restart delay")
			return state, ErrInterrupted
		}

		if d.Action == ActionGiveUp {
			logrus.WithField("max_restarts", s.policy.MaxRestarts).Error("Maximum restarts reached, giving up")
			s.metrics.Exhausted()
			s.notify(notify.Event{
				Status:       notify.StatusFailed,
				Message:      fmt.Sprintf("Worker restarted %d times, supervisor gave up", state.RestartCount),
				RestartCount: state.RestartCount,
			})
			return state, ErrExhausted
		}
	}
}

// startNotifications delivers queued events in order on a separate
// goroutine so a slow webhook never stretches the restart delays. The
// returned func closes the queue and waits for it to drain, bounded by
// notifyTimeout.
func (s *Supervisor) startNotifications() func() {
	events := make(chan notify.Event, 32)
	done := make(chan struct{})
	s.events = events

	go func() {
		defer close(done)
		for ev := range events {
			s.deliver(ev)
		}
	}()

	return func() {
		close(events)
		t := time.NewTimer(s.notifyTimeout)
		defer t.Stop()
		select {
		case <-done:
		case <-t.C:
			logrus.Warn("Status notifications still pending, not waiting for them")
		}
	}
}

func (s *Supervisor) notify(ev notify.Event) {
	ev.Time = s.now()
	select {
	case s.events <- ev:
	default:
		logrus.WithField("status", ev.Status).Warn("Status notification queue full, dropping event")
	}
}

func (s *Supervisor) deliver(ev notify.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), s.notifyTimeout)
	defer cancel()
	if err := s.notifier.Notify(ctx, ev); err != nil {
		logrus.WithError(err).WithField("status", ev.Status).Warn("Failed to deliver status notification")
	}
}

// ExitCode maps the result of Run to the supervisor's own exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitClean
	case errors.Is(err, ErrInterrupted):
		return ExitInterrupted
	default:
		return 1
	}
}
