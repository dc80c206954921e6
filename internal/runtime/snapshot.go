package runtime

import (
	"fmt"
	"time"

	"routined/internal/routine"
)

// TaskView is one entry of the session sequence for display.
type TaskView struct {
	ID        string
	Name      string
	Tier      routine.Tier
	Allocated time.Duration
	Done      bool
	Current   bool
	Gated     bool
}

// BackgroundView is a background countdown for display.
type BackgroundView struct {
	ID             string
	Name           string
	Remaining      time.Duration
	Overrun        bool
	OverrunElapsed time.Duration
}

// Snapshot is a self-contained view of session state, safe to hand to
// other goroutines.
type Snapshot struct {
	Routine string
	Phase   Phase

	CurrentIndex   int
	CurrentTaskID  string
	Remaining      time.Duration
	Overrun        bool
	OverrunElapsed time.Duration

	// OffsetSeconds is live drift: the settled offset plus any overrun
	// still in flight (foreground and background). Positive = behind.
	OffsetSeconds int64
	DriftLabel    string

	TaskProgress    float64 // elapsed/allocated for the current task, in [0,1]
	OverallProgress float64 // completed/planned, in [0,1]

	CompletedCount  int
	TotalCount      int
	EstimatedFinish time.Time

	Tasks            []TaskView
	Background       []BackgroundView
	CurrentChecklist []ChecklistItemView
}

// Snapshot captures the current state.
func (r *Runtime) Snapshot() Snapshot {
	s := Snapshot{
		Routine:        r.routineName,
		Phase:          r.phase,
		CurrentIndex:   r.idx,
		Remaining:      r.remaining,
		Overrun:        r.overrun,
		OverrunElapsed: r.overrunElapsed,
		CompletedCount: r.completedCount,
		TotalCount:     r.totalCount,
	}

	live := r.liveOffset()
	s.OffsetSeconds = int64(live / time.Second)
	s.DriftLabel = formatDrift(live)

	if r.idx < len(r.tasks) {
		cur := r.tasks[r.idx]
		s.CurrentTaskID = cur.Spec.ID
		s.TaskProgress = clamp01(progress(cur.Allocated, r.remaining, r.overrunElapsed))
		if views, err := r.Checklist(cur.Spec.ID); err == nil {
			s.CurrentChecklist = views
		}
	}
	if r.planned > 0 {
		s.OverallProgress = clamp01(float64(r.completed) / float64(r.planned))
	}
	if !r.startedAt.IsZero() {
		s.EstimatedFinish = r.startedAt.Add(r.planned).Add(live)
	}

	s.Tasks = make([]TaskView, len(r.tasks))
	for i, st := range r.tasks {
		s.Tasks[i] = TaskView{
			ID:        st.Spec.ID,
			Name:      st.Spec.Name,
			Tier:      st.Spec.Tier,
			Allocated: st.Allocated,
			Done:      i < r.idx,
			Current:   i == r.idx && !r.phase.Terminal(),
			Gated:     st.Spec.Gated,
		}
	}
	s.Background = make([]BackgroundView, len(r.background))
	for i, bg := range r.background {
		s.Background[i] = BackgroundView{
			ID:             bg.task.Spec.ID,
			Name:           bg.task.Spec.Name,
			Remaining:      bg.remaining,
			Overrun:        bg.overrun,
			OverrunElapsed: bg.overrunElapsed,
		}
	}
	return s
}

// liveOffset is the settled drift plus overrun still accruing. The
// settled offset itself moves only on explicit completion.
func (r *Runtime) liveOffset() time.Duration {
	live := r.offset
	if r.overrun {
		live += r.overrunElapsed
	}
	for _, bg := range r.background {
		if bg.overrun {
			live += bg.overrunElapsed
		}
	}
	return live
}

func progress(allocated, remaining, overrunElapsed time.Duration) float64 {
	if allocated <= 0 {
		return 1
	}
	elapsed := allocated - remaining + overrunElapsed
	return float64(elapsed) / float64(allocated)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// formatDrift renders the offset the way a status line wants it:
// "on schedule", "2m30s ahead", "1h05m behind".
func formatDrift(offset time.Duration) string {
	if offset > -time.Second && offset < time.Second {
		return "on schedule"
	}
	suffix := "behind"
	if offset < 0 {
		offset = -offset
		suffix = "ahead"
	}
	return formatSpan(offset) + " " + suffix
}

func formatSpan(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	sec := (d % time.Minute) / time.Second
	switch {
	case h > 0:
		return fmt.Sprintf("%dh%02dm", h, m)
	case m > 0:
		return fmt.Sprintf("%dm%02ds", m, sec)
	default:
		return fmt.Sprintf("%ds", sec)
	}
}
