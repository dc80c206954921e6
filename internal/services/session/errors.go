package session

import "errors"

var (
	ErrStopped        = errors.New("session service stopped")
	ErrNoSession      = errors.New("no active session")
	ErrSessionActive  = errors.New("a session is already active")
	ErrUnknownRoutine = errors.New("unknown routine")
	ErrInfeasible     = errors.New("essential minimums do not fit the available time")
)
