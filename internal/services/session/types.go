package session

import (
	"time"

	"routined/internal/runtime"
)

// Config tunes the session service.
type Config struct {
	// TickInterval is the wall-clock cadence of the countdown. One tick
	// advances virtual time by one second regardless of this interval,
	// which is what lets tests run sessions at full speed.
	TickInterval time.Duration

	// ChecklistAutoComplete is the grace delay between the last checklist
	// item being checked and the gated task self-completing.
	ChecklistAutoComplete time.Duration

	// AllowInfeasible starts sessions whose essential minimums exceed the
	// available time instead of refusing them.
	AllowInfeasible bool
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = time.Second
	}
	return c
}

// StartedEvent is the payload of eventbus.TypeSessionStarted.
type StartedEvent struct {
	SessionID string        `json:"session_id"`
	Routine   string        `json:"routine"`
	Feasible  bool          `json:"feasible"`
	TaskCount int           `json:"task_count"`
	Available time.Duration `json:"available"`
	Planned   time.Duration `json:"planned"`
}

// TaskEvent is the payload of TypeTaskStarted and TypeTaskCompleted.
// Allocated/Actual are zero for task.started.
type TaskEvent struct {
	SessionID string        `json:"session_id"`
	Routine   string        `json:"routine"`
	TaskID    string        `json:"task_id"`
	Name      string        `json:"name"`
	Allocated time.Duration `json:"allocated,omitempty"`
	Actual    time.Duration `json:"actual,omitempty"`
}

// DriftEvent is the payload of TypeDriftChanged. OffsetSeconds is the
// live offset, positive = behind plan.
type DriftEvent struct {
	SessionID     string `json:"session_id"`
	Routine       string `json:"routine"`
	OffsetSeconds int64  `json:"offset_seconds"`
	Drift         string `json:"drift"`
}

// EndedEvent is the payload of TypeSessionEnded.
type EndedEvent struct {
	SessionID string                 `json:"session_id"`
	Summary   runtime.SessionSummary `json:"summary"`
}

// Snapshot is the service-level view: the runtime snapshot plus session
// identity. Active is false when no session was started or the last one
// reached a terminal phase.
type Snapshot struct {
	Active    bool
	SessionID string
	State     runtime.Snapshot
}
