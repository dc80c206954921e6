package runtime

import "errors"

var (
	// ErrNotStarted is returned by mutations that need a live session.
	ErrNotStarted = errors.New("session not started")
	// ErrFinished is returned once the session reached a terminal phase.
	ErrFinished = errors.New("session already finished")
	// ErrNoCurrentTask means the foreground slot is empty (all remaining
	// work is in the background).
	ErrNoCurrentTask = errors.New("no current task")
	// ErrInvalidReorder rejects reorders touching the current or an
	// already-executed position. State is unchanged.
	ErrInvalidReorder = errors.New("reorder must only move not-yet-reached tasks")
	// ErrInvalidDelay rejects delaying when no task follows the current
	// one. State is unchanged.
	ErrInvalidDelay = errors.New("no later task to delay behind")
	// ErrChecklistIncomplete blocks completing a gated task with
	// unchecked items. Not fatal; check items and retry.
	ErrChecklistIncomplete = errors.New("checklist items remain unchecked")
	// ErrUnknownTask means no task with that id exists in this session.
	ErrUnknownTask = errors.New("unknown task id")
	// ErrUnknownChecklistItem means the item id is not on the task's checklist.
	ErrUnknownChecklistItem = errors.New("unknown checklist item id")
)
