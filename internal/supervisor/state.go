package supervisor

import "time"

// RestartState is owned by the supervision loop and threaded through Next.
type RestartState struct {
	RestartCount             int
	ConsecutiveQuickFailures int
	RestartDelay             time.Duration
}

type Action int

const (
	// ActionStop ends supervision successfully.
	ActionStop Action = iota
	// ActionRestart sleeps Delay and spawns again.
	ActionRestart
	// ActionGiveUp sleeps Delay and ends supervision with ErrExhausted.
	ActionGiveUp
)

func (a Action) String() string {
	switch a {
	case ActionStop:
		return "stop"
	case ActionRestart:
		return "restart"
	case ActionGiveUp:
		return "give_up"
	default:
		return "unknown"
	}
}

type Decision struct {
	Action    Action
	Delay     time.Duration
	CrashLoop bool
}

// Next computes the state after a worker exited with exitCode after running
// for runtime.
func Next(s RestartState, p Policy, exitCode int, runtime time.Duration) (RestartState, Decision) {
	if exitCode == ExitClean || exitCode == ExitInterrupted {
		return s, Decision{Action: ActionStop}
	}

	s.RestartCount++
	if runtime < p.QuickRunThreshold {
		s.ConsecutiveQuickFailures++
		if s.ConsecutiveQuickFailures >= p.QuickFailureCeiling {
			s.RestartDelay = p.CrashLoopDelay
		} else {
			s.RestartDelay = p.QuickDelay
		}
	} else {
		s.ConsecutiveQuickFailures = 0
		s.RestartDelay = p.StableDelay
	}

	d := Decision{
		Action:    ActionRestart,
		Delay:     s.RestartDelay,
		CrashLoop: s.ConsecutiveQuickFailures >= p.QuickFailureCeiling,
	}
	if s.RestartCount >= p.MaxRestarts {
		d.Action = ActionGiveUp
	}
	return s, d
}
