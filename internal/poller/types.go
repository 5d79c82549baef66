package poller

import (
	"context"
	"time"

	"github.com/masa-finance/bot-guardian/api/types"
)

// Target is the worker control surface the poller watches and commands.
// *client.Client implements it.
type Target interface {
	HealthDetailed(ctx context.Context) (*types.HealthSnapshot, int, error)
	TriggerRestart(ctx context.Context, alert types.AlertType, monitorID string) (*types.RestartResponse, error)
}

// Dispatcher forwards a down transition to external compute.
type Dispatcher interface {
	Dispatch(ctx context.Context, req types.DispatchRequest) error
}

type State int

const (
	StateUp State = iota
	StateDown
)

func (s State) String() string {
	if s == StateDown {
		return "down"
	}
	return "up"
}

// Result is what one poll cycle observed.
type Result struct {
	At         time.Time
	Observed   State
	StatusCode int
	Snapshot   *types.HealthSnapshot
	Err        error

	// Transitioned is set when this observation changed the monitor state.
	Transitioned bool
	State        State
}
