package supervisor

import "time"

const (
	// ExitClean and ExitInterrupted end supervision; every other code is a
	// crash.
	ExitClean       = 0
	ExitInterrupted = 130
	// ExitSpawnFailed stands in for the exit code of a worker that could not
	// be started.
	ExitSpawnFailed = -1
)

// Policy holds the restart tuning.
type Policy struct {
	// Runs shorter than QuickRunThreshold count as quick failures.
	QuickRunThreshold time.Duration
	// Once this many quick failures happened in a row, CrashLoopDelay applies.
	QuickFailureCeiling int
	StableDelay         time.Duration
	QuickDelay          time.Duration
	CrashLoopDelay      time.Duration
	MaxRestarts         int
}

func DefaultPolicy() Policy {
	return Policy{
		QuickRunThreshold:   30 * time.Second,
		QuickFailureCeiling: 10,
		StableDelay:         5 * time.Second,
		QuickDelay:          10 * time.Second,
		CrashLoopDelay:      60 * time.Second,
		MaxRestarts:         1000,
	}
}
