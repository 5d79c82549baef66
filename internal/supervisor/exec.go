package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// CommandSpawner runs the worker as a child process sharing the
// supervisor's stdio and environment.
type CommandSpawner struct {
	Path string
	Args []string
	// Env is appended to the inherited environment.
	Env    []string
	Stdout io.Writer
	Stderr io.Writer
	// GracePeriod is how long a worker may take to exit after SIGTERM
	// before it is killed.
	GracePeriod time.Duration
}

var _ Spawner = (*CommandSpawner)(nil)

func (s *CommandSpawner) Spawn(ctx context.Context) (int, error) {
	cmd := exec.CommandContext(ctx, s.Path, s.Args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if s.Stdout != nil {
		cmd.Stdout = s.Stdout
	}
	if s.Stderr != nil {
		cmd.Stderr = s.Stderr
	}
	cmd.Env = append(os.Environ(), s.Env...)

	// Forward the stop request instead of killing outright.
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = s.GracePeriod
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = 15 * time.Second
	}

	if err := cmd.Start(); err != nil {
		return ExitSpawnFailed, fmt.Errorf("starting %s: %w", s.Path, err)
	}

	err := cmd.Wait()
	if err == nil {
		return ExitClean, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return ExitSpawnFailed, fmt.Errorf("waiting for %s: %w", s.Path, err)
}
