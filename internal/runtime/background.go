package runtime

import (
	"routined/pkg/logx"
)

// Background tasks are referenced by stable task id, never by position:
// mutating the main sequence must not invalidate a background reference.

// MoveCurrentToBackground pulls the current task out of the main sequence
// and keeps it counting down independently. The next task (if any) takes
// over the foreground slot; it does not advance currentIndex past work
// that was never done.
func (r *Runtime) MoveCurrentToBackground() error {
	if err := r.requireLive(); err != nil {
		return err
	}
	if r.idx >= len(r.tasks) {
		return ErrNoCurrentTask
	}

	cur := r.tasks[r.idx]
	r.background = append(r.background, &backgroundTask{
		task:           cur,
		remaining:      r.remaining,
		overrun:        r.overrun,
		overrunElapsed: r.overrunElapsed,
	})
	r.tasks = append(r.tasks[:r.idx], r.tasks[r.idx+1:]...)

	r.checklist.disarm()
	if r.idx < len(r.tasks) {
		r.configureCurrent()
	} else {
		r.clearCountdown()
	}
	r.log.Info("task moved to background", logx.String("task", cur.Spec.ID))
	return nil
}

// PromoteBackground swaps a background task into the foreground slot,
// restoring its preserved countdown. Whatever was current is itself
// demoted to the background list with its own countdown intact.
func (r *Runtime) PromoteBackground(taskID string) error {
	if err := r.requireLive(); err != nil {
		return err
	}
	pos := r.findBackground(taskID)
	if pos < 0 {
		return ErrUnknownTask
	}

	bg := r.background[pos]
	r.background = append(r.background[:pos], r.background[pos+1:]...)

	if r.idx < len(r.tasks) {
		// Demote the current task, keeping its live countdown.
		r.background = append(r.background, &backgroundTask{
			task:           r.tasks[r.idx],
			remaining:      r.remaining,
			overrun:        r.overrun,
			overrunElapsed: r.overrunElapsed,
		})
		r.tasks[r.idx] = bg.task
	} else {
		r.tasks = append(r.tasks, bg.task)
	}

	r.remaining = bg.remaining
	r.overrun = bg.overrun
	r.overrunElapsed = bg.overrunElapsed
	r.checklist.setCurrent(bg.task.Spec, r.opt.AutoCompleteDelay)

	r.log.Info("background task promoted", logx.String("task", taskID))
	return nil
}

// CompleteBackground finishes a background task directly. Drift settles
// under the same early/overrun rule as foreground completion; the
// foreground slot and currentIndex are untouched.
func (r *Runtime) CompleteBackground(taskID string) (TaskCompletion, error) {
	if err := r.requireLive(); err != nil {
		return TaskCompletion{}, err
	}
	pos := r.findBackground(taskID)
	if pos < 0 {
		return TaskCompletion{}, ErrUnknownTask
	}

	bg := r.background[pos]
	if bg.task.Spec.Gated && !r.checklist.allChecked(bg.task.Spec) {
		return TaskCompletion{}, ErrChecklistIncomplete
	}
	r.background = append(r.background[:pos], r.background[pos+1:]...)

	ev := r.settle(bg.task, bg.remaining, bg.overrun, bg.overrunElapsed)
	r.maybeComplete()

	r.log.Info("background task completed",
		logx.String("task", ev.TaskID),
		logx.Duration("actual", ev.Actual),
		logx.Duration("offset", r.offset))
	return ev, nil
}

func (r *Runtime) findBackground(taskID string) int {
	for i, bg := range r.background {
		if bg.task.Spec.ID == taskID {
			return i
		}
	}
	return -1
}
