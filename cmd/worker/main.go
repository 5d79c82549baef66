package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/masa-finance/bot-guardian/internal/api"
	"github.com/masa-finance/bot-guardian/internal/config"
	"github.com/masa-finance/bot-guardian/internal/gateway"
	"github.com/masa-finance/bot-guardian/internal/health"
	"github.com/masa-finance/bot-guardian/internal/lifecycle"
	"github.com/masa-finance/bot-guardian/internal/notify"
)

const (
	exitClean       = 0
	exitInterrupted = 130
)

func main() {
	cfg := config.ReadConfig()
	os.Exit(run(cfg))
}

func run(cfg config.Configuration) int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)

	var received os.Signal
	var sigMu sync.Mutex
	go func() {
		select {
		case sig := <-stop:
			logrus.WithField("signal", sig.String()).Info("Received shutdown signal")
			sigMu.Lock()
			received = sig
			sigMu.Unlock()
			cancel()
		case <-ctx.Done():
		}
	}()

	reporter := health.NewReporter(health.Thresholds{HeartbeatInterval: cfg.HeartbeatInterval()})
	term := lifecycle.NewTerminator(
		lifecycle.WithDelay(cfg.ExitDelay()),
		lifecycle.WithShutdownTimeout(cfg.ShutdownTimeout()),
		lifecycle.WithOnFire(cancel),
		lifecycle.WithExitFunc(os.Exit),
	)
	notifier := notify.New(cfg.MonitorWebhookURL())

	log := logrus.WithField("generation", term.Generation())
	log.Info("Starting worker")

	conn, err := gateway.NewDiscordConn(cfg.DiscordToken(), reporter)
	if err != nil {
		log.WithError(err).Error("Cannot create gateway session")
		return lifecycle.ExitRestart
	}
	gw := gateway.New(conn, reporter)

	var wg sync.WaitGroup

	// The control surface comes up first so probes answer while the
	// gateway is still connecting.
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := api.Start(ctx, cfg, api.Dependencies{Reporter: reporter, Terminator: term}); err != nil {
			log.WithError(err).Error("Control server stopped with an error")
			// Without probes the external chain cannot see this
			// generation; let the supervisor replace it.
			term.Schedule("control server failed")
		}
	}()

	if err := gw.Open(ctx); err != nil {
		if ctx.Err() == nil {
			log.WithError(err).Error("Could not open gateway session")
			cancel()
			wg.Wait()
			return lifecycle.ExitRestart
		}
	} else {
		go sendStatus(notifier, notify.Event{
			Status:  notify.StatusOnline,
			Message: "Worker connected to the gateway",
			Fields:  map[string]string{"Generation": term.Generation()},
		})

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := gw.Run(ctx); err != nil {
				log.WithError(err).Warn("Error closing gateway session")
			}
		}()
	}

	<-ctx.Done()
	wg.Wait()

	return exitCode(term, func() os.Signal {
		sigMu.Lock()
		defer sigMu.Unlock()
		return received
	}())
}

// exitCode picks the code the supervisor acts on: a fired termination is a
// crash so the worker is respawned; signals end supervision.
func exitCode(term *lifecycle.Terminator, sig os.Signal) int {
	switch {
	case term.HasFired():
		logrus.WithField("reason", term.Reason()).Warn("Exiting for restart")
		return lifecycle.ExitRestart
	case sig == os.Interrupt:
		return exitInterrupted
	default:
		logrus.Info("Worker stopped")
		return exitClean
	}
}

func sendStatus(n notify.Notifier, ev notify.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := n.Notify(ctx, ev); err != nil {
		logrus.WithError(err).Warn("Failed to deliver status notification")
	}
}
