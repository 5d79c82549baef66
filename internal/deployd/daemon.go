package deployd

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/sirupsen/logrus"

	"github.com/masa-finance/bot-guardian/api/types"
	"github.com/masa-finance/bot-guardian/pkg/client"
)

// Refresher asks the worker to exit. *client.Client implements it.
type Refresher interface {
	Refresh(ctx context.Context) (*types.RestartResponse, error)
}

// Daemon turns host-side events (external dispatches, repository updates)
// into worker refreshes.
type Daemon struct {
	refresher  Refresher
	newBackOff func() backoff.BackOff

	inFlight  atomic.Bool
	refreshes atomic.Int64
}

type Option func(*Daemon)

func WithBackOff(fn func() backoff.BackOff) Option {
	return func(d *Daemon) {
		d.newBackOff = fn
	}
}

func New(refresher Refresher, opts ...Option) *Daemon {
	d := &Daemon{
		refresher: refresher,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.MaxElapsedTime = 2 * time.Minute
			return b
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Refresh calls the worker's refresh endpoint, retrying with backoff while
// the worker is unreachable. Client errors such as a rejected API key are
// not retried.
func (d *Daemon) Refresh(ctx context.Context, reason string) error {
	log := logrus.WithField("reason", reason)
	log.Info("Refreshing worker")

	op := func() error {
		_, err := d.refresher.Refresh(ctx)
		var se *client.StatusError
		if errors.As(err, &se) && !se.Retryable() {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		log.WithError(err).WithField("retry_in", next.String()).Warn("Refresh failed, retrying")
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(d.newBackOff(), ctx), notify); err != nil {
		return fmt.Errorf("refreshing worker: %w", err)
	}
	d.refreshes.Add(1)
	log.Info("Worker refresh acknowledged")
	return nil
}

// Trigger starts a refresh in the background. Triggers arriving while one
// is in flight are coalesced into it; the return value reports whether
// this call started a refresh.
func (d *Daemon) Trigger(ctx context.Context, reason string) bool {
	if !d.inFlight.CompareAndSwap(false, true) {
		logrus.WithField("reason", reason).Info("Refresh already in flight, coalescing")
		return false
	}

	go func() {
		defer d.inFlight.Store(false)
		if err := d.Refresh(ctx, reason); err != nil {
			logrus.WithError(err).Error("Giving up on worker refresh")
		}
	}()
	return true
}

// Refreshes is the number of acknowledged refreshes.
func (d *Daemon) Refreshes() int64 {
	return d.refreshes.Load()
}

// InFlight reports whether a triggered refresh is still running.
func (d *Daemon) InFlight() bool {
	return d.inFlight.Load()
}
