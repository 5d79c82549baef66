package supervisor

import "errors"

var (
	// ErrExhausted is returned once the restart budget is spent.
	ErrExhausted = errors.New("restart budget exhausted")
	// ErrInterrupted is returned when the supervisor itself was asked to stop.
	ErrInterrupted   = errors.New("supervisor interrupted")
	ErrAlreadyLocked = errors.New("another supervisor holds the lock")
)
