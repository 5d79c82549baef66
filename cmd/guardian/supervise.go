package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/masa-finance/bot-guardian/internal/notify"
	"github.com/masa-finance/bot-guardian/internal/supervisor"
)

var (
	superviseMaxRestarts    int
	superviseLockPath       string
	superviseMetricsAddress string
	superviseGracePeriod    time.Duration
)

var superviseCmd = &cobra.Command{
	Use:   "supervise [flags] [-- worker [args...]]",
	Short: "Run the worker and restart it when it crashes",
	Long: `Run the worker and restart it whenever it exits with a code other than
0 (clean) or 130 (interrupted). Quick crashes are spaced 10s apart, a crash
loop of 10 quick failures 60s apart, and crashes after a healthy run 5s apart.
Supervision stops after the maximum number of restarts.

Without arguments the "worker" binary next to guardian is run.`,
	RunE: runSupervise,
}

func init() {
	superviseCmd.Flags().IntVar(&superviseMaxRestarts, "max-restarts", 0, "Maximum number of restarts (default $SUPERVISOR_MAX_RESTARTS or 1000)")
	superviseCmd.Flags().StringVar(&superviseLockPath, "lock", "", "Lock file (default $DATA_DIR/supervisor.lock)")
	superviseCmd.Flags().StringVar(&superviseMetricsAddress, "metrics-address", "", "Serve supervisor metrics on this address (default $SUPERVISOR_METRICS_ADDRESS)")
	superviseCmd.Flags().DurationVar(&superviseGracePeriod, "grace-period", 15*time.Second, "How long the worker may take to stop before it is killed")
}

func runSupervise(cmd *cobra.Command, args []string) error {
	workerPath, workerArgs, err := workerCommand(args)
	if err != nil {
		return err
	}

	lockPath := superviseLockPath
	if lockPath == "" {
		lockPath = filepath.Join(cfg.DataDir(), "supervisor.lock")
	}
	lock, err := supervisor.AcquireLock(lockPath)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	policy := supervisor.DefaultPolicy()
	policy.MaxRestarts = cfg.MaxRestarts()
	if superviseMaxRestarts > 0 {
		policy.MaxRestarts = superviseMaxRestarts
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := supervisor.NewPrometheusMetricsCollector("guardian")
	metricsAddress := superviseMetricsAddress
	if metricsAddress == "" {
		metricsAddress = cfg.SupervisorMetricsAddress()
	}
	if metricsAddress != "" {
		go func() {
			_ = supervisor.ServeMetrics(ctx, metricsAddress, metrics.Registry())
		}()
	}

	logrus.WithFields(logrus.Fields{
		"worker":       workerPath,
		"max_restarts": policy.MaxRestarts,
	}).Info("Supervising worker")

	sup := supervisor.New(
		&supervisor.CommandSpawner{Path: workerPath, Args: workerArgs, GracePeriod: superviseGracePeriod},
		supervisor.WithPolicy(policy),
		supervisor.WithMetrics(metrics),
		supervisor.WithNotifier(notify.New(cfg.MonitorWebhookURL())),
	)

	state, err := sup.Run(ctx)
	logrus.WithFields(logrus.Fields{
		"restart_count":  state.RestartCount,
		"quick_failures": state.ConsecutiveQuickFailures,
	}).Info("Supervision ended")

	if code := supervisor.ExitCode(err); code != 0 {
		return &exitError{code: code, err: err}
	}
	return nil
}

func workerCommand(args []string) (string, []string, error) {
	if len(args) > 0 {
		return args[0], args[1:], nil
	}

	self, err := os.Executable()
	if err != nil {
		return "", nil, fmt.Errorf("locating guardian binary: %w", err)
	}
	return filepath.Join(filepath.Dir(self), "worker"), nil, nil
}
