package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/masa-finance/bot-guardian/internal/config"
	"github.com/masa-finance/bot-guardian/pkg/client"
)

var (
	cfg         config.Configuration
	insecureTLS bool
)

var rootCmd = &cobra.Command{
	Use:   "guardian",
	Short: "Keep a chat bot worker alive",
	Long: `guardian supervises the bot worker process and runs the external
recovery chain around it.

  supervise  restart the worker whenever it crashes
  poll       watch the worker's detailed health probe and trigger restarts
  deployd    accept restart dispatches and repository updates on the host`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg = config.ReadConfig()
	},
}

// exitError carries a specific process exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

// Execute runs the root command and returns an exit code.
// The caller (main) should call os.Exit with this code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			return ee.code
		}
		return 1
	}
	return 0
}

// workerClient builds the control client used by poll and deployd.
func workerClient(url string, timeout time.Duration) (*client.Client, error) {
	opts := []client.Option{client.APIKey(cfg.APIKey()), client.Timeout(timeout)}
	if insecureTLS || cfg.WorkerInsecureTLS() {
		opts = append(opts, client.IgnoreTLSCert())
	}
	return client.NewClient(url, opts...)
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&insecureTLS, "insecure", false, "Skip TLS certificate checks when calling the worker (default $WORKER_INSECURE_TLS)")
	rootCmd.AddCommand(superviseCmd, pollCmd, deploydCmd)
}
