package runtime

import (
	"time"

	"routined/internal/planner"
)

// Phase is the coarse state of a running session.
//
//	NotStarted -> Running <-> Paused
//	Running/Paused -> Complete (all work done) | Ended (user abort)
//
// Overrun is not a phase: it is a flag on the current countdown that can
// occur in both Running and Paused.
type Phase int

const (
	PhaseNotStarted Phase = iota
	PhaseRunning
	PhasePaused
	PhaseComplete
	PhaseEnded
)

func (p Phase) String() string {
	switch p {
	case PhaseNotStarted:
		return "not_started"
	case PhaseRunning:
		return "running"
	case PhasePaused:
		return "paused"
	case PhaseComplete:
		return "complete"
	case PhaseEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Terminal reports whether the session is over.
func (p Phase) Terminal() bool { return p == PhaseComplete || p == PhaseEnded }

// TaskCompletion is emitted whenever a task (foreground or background)
// is completed. Collaborators use it to update completion history.
type TaskCompletion struct {
	TaskID      string        `json:"task_id"`
	Name        string        `json:"name"`
	Allocated   time.Duration `json:"allocated"`
	Actual      time.Duration `json:"actual"`
	CompletedAt time.Time     `json:"completed_at"`
}

// SessionSummary is produced once, when the session reaches a terminal
// phase.
type SessionSummary struct {
	Routine        string        `json:"routine"`
	OffsetSeconds  int64         `json:"offset_seconds"`
	CompletedCount int           `json:"completed_count"`
	TotalCount     int           `json:"total_count"`
	Completed      time.Duration `json:"completed"`
	Planned        time.Duration `json:"planned"`
	EndedAt        time.Time     `json:"ended_at"`
	Aborted        bool          `json:"aborted"`
}

// backgroundTask is a scheduled task pulled out of the main sequence,
// counting down independently on the shared tick.
type backgroundTask struct {
	task           planner.ScheduledTask
	remaining      time.Duration
	overrun        bool
	overrunElapsed time.Duration
}

// Options tune a session runtime.
type Options struct {
	// Now supplies timestamps for completion events and finish
	// estimates. Defaults to time.Now; tests inject a fixed clock.
	Now func() time.Time
	// AutoCompleteDelay is how long after the last checklist item is
	// checked the task self-completes. Gives the display a beat to show
	// the fully-checked state before moving on.
	AutoCompleteDelay time.Duration
}

const (
	// tickStep is the virtual size of one Tick call. The session service
	// drives Tick once per wall-clock second.
	tickStep = time.Second

	defaultAutoCompleteDelay = 2 * time.Second
)

func (o Options) withDefaults() Options {
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.AutoCompleteDelay <= 0 {
		o.AutoCompleteDelay = defaultAutoCompleteDelay
	}
	return o
}
