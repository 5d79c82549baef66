package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/masa-finance/bot-guardian/internal/notify"
	"github.com/masa-finance/bot-guardian/internal/poller"
)

var (
	pollURL            string
	pollInterval       time.Duration
	pollTimeout        time.Duration
	pollThreshold      int
	pollRecoveryAlerts bool
	pollMonitorID      string
	pollDispatchURL    string
	pollOnce           bool
)

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Watch the worker's detailed health and trigger restarts",
	Long: `Poll GET /health/detailed on the worker. When the worker goes down, call
its restart webhook once and, if configured, dispatch a restart to the deploy
daemon on the host. Each transition is reported to the status webhook.`,
	RunE: runPoll,
}

func init() {
	pollCmd.Flags().StringVar(&pollURL, "url", "", "Worker base URL (default $POLL_URL or $WORKER_URL)")
	pollCmd.Flags().DurationVar(&pollInterval, "interval", 0, "Poll interval (default $POLL_INTERVAL or 1m)")
	pollCmd.Flags().DurationVar(&pollTimeout, "timeout", 0, "Probe timeout (default $POLL_TIMEOUT or 10s)")
	pollCmd.Flags().IntVar(&pollThreshold, "threshold", 1, "Consecutive observations needed for a transition")
	pollCmd.Flags().BoolVar(&pollRecoveryAlerts, "recovery-alerts", false, "Also call the restart webhook with alertType=0 on recovery")
	pollCmd.Flags().StringVar(&pollMonitorID, "monitor-id", "guardian-poller", "Monitor id sent with alerts")
	pollCmd.Flags().StringVar(&pollDispatchURL, "dispatch-url", "", "Deploy daemon dispatch URL (default $DISPATCH_URL)")
	pollCmd.Flags().BoolVar(&pollOnce, "once", false, "Poll a single time and exit")
}

func runPoll(cmd *cobra.Command, args []string) error {
	url := pollURL
	if url == "" {
		url = cfg.PollURL()
	}
	interval := pollInterval
	if interval <= 0 {
		interval = cfg.PollInterval()
	}
	timeout := pollTimeout
	if timeout <= 0 {
		timeout = cfg.PollTimeout()
	}

	target, err := workerClient(url, timeout)
	if err != nil {
		return err
	}

	opts := []poller.Option{poller.WithNotifier(notify.New(cfg.MonitorWebhookURL()))}
	dispatchURL := pollDispatchURL
	if dispatchURL == "" {
		dispatchURL = cfg.DispatchURL()
	}
	if dispatchURL != "" {
		opts = append(opts, poller.WithDispatcher(poller.NewHTTPDispatcher(dispatchURL, cfg.DeploydToken())))
	}

	p, err := poller.New(poller.Config{
		Interval:           interval,
		Timeout:            timeout,
		FailureThreshold:   pollThreshold,
		SendRecoveryAlerts: pollRecoveryAlerts,
		MonitorID:          pollMonitorID,
	}, target, opts...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if pollOnce {
		res := p.PollOnce(ctx)
		if res.Observed == poller.StateDown {
			return &exitError{code: 1, err: res.Err}
		}
		return nil
	}

	p.Run(ctx)
	return nil
}
