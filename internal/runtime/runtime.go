package runtime

import (
	"time"

	"routined/internal/planner"
	"routined/pkg/logx"
)

// Runtime is the tick-driven state machine for one session.
type Runtime struct {
	log logx.Logger
	opt Options

	routineName string

	// tasks is the live sequence. Entries before idx are done, the entry
	// at idx (if any) is the current task, later entries are mutable via
	// Delay/Reorder.
	tasks []planner.ScheduledTask
	idx   int

	phase Phase

	// Current task countdown. remaining counts down to zero; once it
	// crosses zero, overrun flips and overrunElapsed counts up instead.
	remaining      time.Duration
	overrun        bool
	overrunElapsed time.Duration

	// offset is the settled schedule drift: positive = behind plan. It
	// moves only when a task is explicitly completed. Live drift adds
	// in-flight overrun on top; see Snapshot.
	offset time.Duration

	completed      time.Duration // sum of allocated durations of done tasks
	completedCount int

	planned    time.Duration // total planned session length, fixed at Start
	totalCount int

	startedAt time.Time

	background []*backgroundTask

	checklist checklistState
}

// New builds a Runtime from a plan. Nothing ticks until Start.
func New(routineName string, plan planner.Plan, opt Options, log logx.Logger) *Runtime {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Runtime{
		log:         log.With(logx.String("routine", routineName)),
		opt:         opt.withDefaults(),
		routineName: routineName,
		tasks:       append([]planner.ScheduledTask(nil), plan.Tasks...),
		planned:     plan.TotalAllocated,
		totalCount:  len(plan.Tasks),
	}
	r.checklist.reset(r.tasks)
	return r
}

func (r *Runtime) Phase() Phase { return r.phase }

// Start configures the first task and begins the countdown.
func (r *Runtime) Start() error {
	if r.phase != PhaseNotStarted {
		return ErrFinished
	}
	r.startedAt = r.opt.Now()
	if len(r.tasks) == 0 {
		r.phase = PhaseComplete
		r.log.Info("session complete (empty plan)")
		return nil
	}
	r.phase = PhaseRunning
	r.configureCurrent()
	r.log.Info("session started",
		logx.Int("tasks", len(r.tasks)),
		logx.Duration("planned", r.planned))
	return nil
}

// Pause freezes the countdown. Remaining and overrun time are preserved
// exactly; ticks while paused are ignored.
func (r *Runtime) Pause() error {
	switch r.phase {
	case PhaseRunning:
		r.phase = PhasePaused
		return nil
	case PhasePaused:
		return nil
	case PhaseNotStarted:
		return ErrNotStarted
	default:
		return ErrFinished
	}
}

// Resume unfreezes a paused session.
func (r *Runtime) Resume() error {
	switch r.phase {
	case PhasePaused:
		r.phase = PhaseRunning
		return nil
	case PhaseRunning:
		return nil
	case PhaseNotStarted:
		return ErrNotStarted
	default:
		return ErrFinished
	}
}

// Tick advances virtual time by one second while running. It returns any
// completions triggered by checklist auto-complete.
func (r *Runtime) Tick() []TaskCompletion {
	if r.phase != PhaseRunning {
		return nil
	}

	if r.idx < len(r.tasks) {
		r.remaining, r.overrun, r.overrunElapsed = stepCountdown(r.remaining, r.overrun, r.overrunElapsed)
		if r.overrun && r.overrunElapsed == 0 {
			r.log.Debug("task overrun", logx.String("task", r.currentSpecID()))
		}
	}

	for _, bg := range r.background {
		bg.remaining, bg.overrun, bg.overrunElapsed = stepCountdown(bg.remaining, bg.overrun, bg.overrunElapsed)
	}

	if _, fire := r.checklist.tickAutoComplete(); fire {
		ev, err := r.CompleteCurrent()
		if err != nil {
			// Items got unchecked or the slot changed between arming and
			// firing; the arm state was already cleared.
			r.log.Debug("auto-complete skipped", logx.Err(err))
			return nil
		}
		return []TaskCompletion{ev}
	}
	return nil
}

// stepCountdown advances one countdown by a single tick. The zero
// crossing flips overrun and further ticks accumulate overrun time.
func stepCountdown(remaining time.Duration, overrun bool, elapsed time.Duration) (time.Duration, bool, time.Duration) {
	if overrun {
		return 0, true, elapsed + tickStep
	}
	remaining -= tickStep
	if remaining <= 0 {
		return 0, true, -remaining
	}
	return remaining, false, elapsed
}

// CompleteCurrent marks the current task done, settles drift, and
// advances to the next task.
//
// Finishing early moves the offset negative (ahead) by the unused time;
// finishing overrun moves it positive by the excess.
func (r *Runtime) CompleteCurrent() (TaskCompletion, error) {
	if err := r.requireLive(); err != nil {
		return TaskCompletion{}, err
	}
	if r.idx >= len(r.tasks) {
		return TaskCompletion{}, ErrNoCurrentTask
	}
	cur := r.tasks[r.idx]
	if cur.Spec.Gated && !r.checklist.allChecked(cur.Spec) {
		return TaskCompletion{}, ErrChecklistIncomplete
	}

	ev := r.settle(cur, r.remaining, r.overrun, r.overrunElapsed)
	r.checklist.disarm()

	r.idx++
	if r.idx >= len(r.tasks) {
		r.clearCountdown()
		r.maybeComplete()
	} else {
		r.configureCurrent()
	}

	r.log.Info("task completed",
		logx.String("task", ev.TaskID),
		logx.Duration("allocated", ev.Allocated),
		logx.Duration("actual", ev.Actual),
		logx.Duration("offset", r.offset))
	return ev, nil
}

// settle applies the drift rule and progress accounting shared by
// foreground and background completion.
func (r *Runtime) settle(st planner.ScheduledTask, remaining time.Duration, overrun bool, overrunElapsed time.Duration) TaskCompletion {
	if overrun {
		r.offset += overrunElapsed
	} else {
		r.offset -= remaining
	}
	r.completed += st.Allocated
	r.completedCount++

	actual := st.Allocated - remaining + overrunElapsed
	return TaskCompletion{
		TaskID:      st.Spec.ID,
		Name:        st.Spec.Name,
		Allocated:   st.Allocated,
		Actual:      actual,
		CompletedAt: r.opt.Now(),
	}
}

// DelayCurrent pulls the current task out of the sequence and reinserts
// it n positions later, clamped to the end. The task that shifts into the
// current slot starts fresh; running/paused state is preserved.
func (r *Runtime) DelayCurrent(n int) error {
	if err := r.requireLive(); err != nil {
		return err
	}
	if r.idx >= len(r.tasks) {
		return ErrNoCurrentTask
	}
	if n <= 0 || r.idx+1 >= len(r.tasks) {
		return ErrInvalidDelay
	}

	shift := len(r.tasks) - 1 - r.idx
	if n < shift {
		shift = n
	}
	cur := r.tasks[r.idx]
	copy(r.tasks[r.idx:], r.tasks[r.idx+1:r.idx+1+shift])
	r.tasks[r.idx+shift] = cur

	r.checklist.disarm()
	r.configureCurrent()
	r.log.Info("task delayed", logx.String("task", cur.Spec.ID), logx.Int("by", shift))
	return nil
}

// Reorder swaps two not-yet-reached tasks. Any index at or before the
// current position is rejected and state is left unchanged.
func (r *Runtime) Reorder(from, to int) error {
	if err := r.requireLive(); err != nil {
		return err
	}
	if from <= r.idx || to <= r.idx || from >= len(r.tasks) || to >= len(r.tasks) {
		return ErrInvalidReorder
	}
	if from == to {
		return nil
	}
	r.tasks[from], r.tasks[to] = r.tasks[to], r.tasks[from]
	return nil
}

// End aborts the session immediately and freezes everything.
func (r *Runtime) End() (SessionSummary, error) {
	if r.phase.Terminal() {
		return SessionSummary{}, ErrFinished
	}
	r.phase = PhaseEnded
	r.clearCountdown()
	r.checklist.disarm()
	sum := r.Summary()
	r.log.Info("session ended",
		logx.Int("completed", sum.CompletedCount),
		logx.Int("total", sum.TotalCount),
		logx.Int64("offset_seconds", sum.OffsetSeconds))
	return sum, nil
}

// Summary reports the session outcome so far.
func (r *Runtime) Summary() SessionSummary {
	return SessionSummary{
		Routine:        r.routineName,
		OffsetSeconds:  int64(r.offset / time.Second),
		CompletedCount: r.completedCount,
		TotalCount:     r.totalCount,
		Completed:      r.completed,
		Planned:        r.planned,
		EndedAt:        r.opt.Now(),
		Aborted:        r.phase == PhaseEnded,
	}
}

// maybeComplete flips to Complete once the foreground sequence is
// exhausted and no background task is still pending.
func (r *Runtime) maybeComplete() {
	if r.phase != PhaseRunning && r.phase != PhasePaused {
		return
	}
	if r.idx >= len(r.tasks) && len(r.background) == 0 {
		r.phase = PhaseComplete
		r.log.Info("session complete", logx.Duration("offset", r.offset))
	}
}

func (r *Runtime) configureCurrent() {
	cur := r.tasks[r.idx]
	r.remaining = cur.Allocated
	r.overrun = false
	r.overrunElapsed = 0
	r.checklist.setCurrent(cur.Spec, r.opt.AutoCompleteDelay)
}

func (r *Runtime) clearCountdown() {
	r.remaining = 0
	r.overrun = false
	r.overrunElapsed = 0
	r.checklist.setCurrent(routineSpecNone, 0)
}

func (r *Runtime) currentSpecID() string {
	if r.idx < len(r.tasks) {
		return r.tasks[r.idx].Spec.ID
	}
	return ""
}

func (r *Runtime) requireLive() error {
	switch r.phase {
	case PhaseNotStarted:
		return ErrNotStarted
	case PhaseComplete, PhaseEnded:
		return ErrFinished
	default:
		return nil
	}
}
