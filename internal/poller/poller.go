package poller

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/masa-finance/bot-guardian/api/types"
	"github.com/masa-finance/bot-guardian/internal/notify"
)

type Config struct {
	Interval time.Duration
	Timeout  time.Duration
	// FailureThreshold is how many consecutive identical observations a
	// transition needs.
	FailureThreshold int
	// SendRecoveryAlerts also calls the restart webhook with an up alert
	// when the target recovers.
	SendRecoveryAlerts bool
	MonitorID          string
}

// Poller watches the detailed health probe and acts once per up/down
// transition. The target is assumed up until observed otherwise.
type Poller struct {
	cfg        Config
	target     Target
	dispatcher Dispatcher
	notifier   notify.Notifier
	now        func() time.Time

	state  State
	streak int
}

type Option func(*Poller)

func WithDispatcher(d Dispatcher) Option {
	return func(p *Poller) {
		p.dispatcher = d
	}
}

func WithNotifier(n notify.Notifier) Option {
	return func(p *Poller) {
		p.notifier = n
	}
}

func New(cfg Config, target Target, opts ...Option) (*Poller, error) {
	if target == nil {
		return nil, errors.New("poller: target required")
	}
	if cfg.Interval <= 0 {
		return nil, errors.New("poller: interval must be > 0")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = 1
	}

	p := &Poller{
		cfg:      cfg,
		target:   target,
		notifier: notify.Noop(),
		now:      time.Now,
		state:    StateUp,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// State returns the current monitor state.
func (p *Poller) State() State {
	return p.state
}

// Run polls every Interval until ctx is done. Cycles never overlap.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	logrus.WithFields(logrus.Fields{
		"interval":  p.cfg.Interval.String(),
		"threshold": p.cfg.FailureThreshold,
	}).Info("Starting health poller")

	p.PollOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.PollOnce(ctx)
		}
	}
}

// PollOnce performs exactly one poll cycle and, on a transition, its
// actions.
func (p *Poller) PollOnce(ctx context.Context) Result {
	res := p.observe(ctx)

	if res.Observed == p.state {
		p.streak = 0
	} else {
		p.streak++
		if p.streak >= p.cfg.FailureThreshold {
			p.state = res.Observed
			p.streak = 0
			res.Transitioned = true
		}
	}
	res.State = p.state

	log := logrus.WithFields(logrus.Fields{
		"observed":    res.Observed.String(),
		"state":       res.State.String(),
		"status_code": res.StatusCode,
	})
	if res.Err != nil {
		log = log.WithError(res.Err)
	}

	if !res.Transitioned {
		log.Debug("Health poll")
		return res
	}

	if res.State == StateDown {
		log.Warn("Target went down")
		p.onDown(ctx, res)
	} else {
		log.Info("Target recovered")
		p.onUp(ctx, res)
	}
	return res
}

func (p *Poller) observe(ctx context.Context) Result {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	res := Result{At: p.now(), Observed: StateDown}
	snap, code, err := p.target.HealthDetailed(ctx)
	res.Snapshot = snap
	res.StatusCode = code
	res.Err = err
	if err == nil && code == http.StatusOK {
		res.Observed = StateUp
	}
	return res
}

func (p *Poller) onDown(ctx context.Context, res Result) {
	reason := describe(res)

	if _, err := p.target.TriggerRestart(ctx, types.AlertDown, p.cfg.MonitorID); err != nil {
		// A hung worker may not answer; the dispatch below still reaches
		// the host.
		logrus.WithError(err).Warn("Restart webhook call failed")
	}

	if p.dispatcher != nil {
		err := p.dispatcher.Dispatch(ctx, types.DispatchRequest{
			EventType: types.DispatchEventRestart,
			Reason:    reason,
			AlertType: types.AlertDown,
			MonitorID: p.cfg.MonitorID,
			SentAt:    p.now().UTC(),
		})
		if err != nil {
			logrus.WithError(err).Error("Failed to dispatch restart to the host")
		}
	}

	p.notify(ctx, notify.Event{Status: notify.StatusOffline, Message: reason})
}

func (p *Poller) onUp(ctx context.Context, res Result) {
	if p.cfg.SendRecoveryAlerts {
		if _, err := p.target.TriggerRestart(ctx, types.AlertUp, p.cfg.MonitorID); err != nil {
			logrus.WithError(err).Warn("Recovery webhook call failed")
		}
	}
	p.notify(ctx, notify.Event{Status: notify.StatusOnline, Message: describe(res)})
}

func (p *Poller) notify(ctx context.Context, ev notify.Event) {
	ev.Time = p.now()
	if err := p.notifier.Notify(ctx, ev); err != nil {
		logrus.WithError(err).Warn("Failed to deliver status notification")
	}
}

func describe(res Result) string {
	switch {
	case res.Err != nil:
		return fmt.Sprintf("health probe failed: %s", res.Err)
	case res.Snapshot != nil && res.Snapshot.Reason != "":
		return fmt.Sprintf("health probe returned %d: %s", res.StatusCode, res.Snapshot.Reason)
	case res.Snapshot != nil:
		return fmt.Sprintf("health probe returned %d (%s)", res.StatusCode, res.Snapshot.Status)
	default:
		return fmt.Sprintf("health probe returned %d", res.StatusCode)
	}
}
