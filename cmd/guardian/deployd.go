package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/masa-finance/bot-guardian/internal/deployd"
)

var (
	deploydListen   string
	deploydWatch    string
	deploydDebounce time.Duration
	deploydWorker   string
)

var deploydCmd = &cobra.Command{
	Use:   "deployd",
	Short: "Refresh the worker on external dispatches and repository updates",
	Long: `Serve POST /dispatch for external automation and optionally watch a path
(for example .git/refs/heads). Either one makes the worker exit through
POST /refresh so its supervisor starts the new code.`,
	RunE: runDeployd,
}

func init() {
	deploydCmd.Flags().StringVar(&deploydListen, "listen", "", "Listen address (default $DEPLOYD_LISTEN_ADDRESS or :9090)")
	deploydCmd.Flags().StringVar(&deploydWatch, "watch", "", "Path to watch for updates (default $DEPLOYD_WATCH_PATH)")
	deploydCmd.Flags().DurationVar(&deploydDebounce, "debounce", 2*time.Second, "Quiet period before a change triggers a refresh")
	deploydCmd.Flags().StringVar(&deploydWorker, "worker-url", "", "Worker base URL (default $WORKER_URL)")
}

func runDeployd(cmd *cobra.Command, args []string) error {
	workerURL := deploydWorker
	if workerURL == "" {
		workerURL = cfg.WorkerURL()
	}
	listen := deploydListen
	if listen == "" {
		listen = cfg.DeploydListenAddress()
	}
	watchPath := deploydWatch
	if watchPath == "" {
		watchPath = cfg.DeploydWatchPath()
	}

	worker, err := workerClient(workerURL, 10*time.Second)
	if err != nil {
		return err
	}
	d := deployd.New(worker)

	token := cfg.DeploydToken()
	if token == "" {
		logrus.Warn("DEPLOYD_TOKEN is not set, /dispatch accepts unauthenticated requests")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if watchPath != "" {
		go func() {
			err := deployd.Watch(ctx, watchPath, deploydDebounce, func(name string) {
				d.Trigger(ctx, "update: "+name)
			})
			if err != nil {
				logrus.WithError(err).Error("Watcher stopped")
			}
		}()
	}

	return deployd.Serve(ctx, deployd.NewServer(ctx, d, token), listen)
}
