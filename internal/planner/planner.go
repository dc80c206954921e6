// Package planner turns an ordered routine template plus a fixed time
// budget into concrete per-task allocations.
//
// The planner is pure: no clocks, no I/O. Feasibility is reported, never
// enforced; whether to run an infeasible plan anyway is the caller's call,
// and tasks are never dropped here.
package planner

import (
	"time"

	"routined/internal/routine"
)

const (
	// StandardBuffer is the slack reserved before allocating task time
	// when the budget allows it.
	StandardBuffer = 15 * time.Minute
	// MinimumBuffer is the floor the buffer may shrink to so that
	// essential tasks stay schedulable.
	MinimumBuffer = 5 * time.Minute
)

// ScheduledTask is a task spec with the duration this session grants it.
type ScheduledTask struct {
	Spec      routine.TaskSpec
	Allocated time.Duration
}

// Plan is the planner's verdict for one session.
type Plan struct {
	Tasks []ScheduledTask

	// Feasible is false when the essential-tier minimums alone exceed
	// the budget minus the minimum buffer.
	Feasible bool

	EssentialTime      time.Duration // sum of essential min durations
	CoreTime           time.Duration // sum of essential+core min durations
	EffectiveBuffer    time.Duration
	EffectiveAvailable time.Duration
	TotalAllocated     time.Duration
}

// TotalDuration returns the planned length of the whole session.
func (p Plan) TotalDuration() time.Duration { return p.TotalAllocated }

// Build computes allocations for the given tasks within totalAvailable.
//
// Every task gets at least its minimum. Leftover budget is handed out in
// tier passes (Core first, then Optional, then Essential top-ups), walking
// routine order inside each pass and capping at each task's maximum.
func Build(tasks []routine.TaskSpec, totalAvailable time.Duration) Plan {
	p := Plan{Feasible: true}
	if len(tasks) == 0 {
		p.EffectiveBuffer = StandardBuffer
		p.EffectiveAvailable = maxDur(0, totalAvailable-StandardBuffer)
		return p
	}

	for _, t := range tasks {
		switch t.Tier {
		case routine.TierEssential:
			p.EssentialTime += t.MinDuration
			p.CoreTime += t.MinDuration
		case routine.TierCore:
			p.CoreTime += t.MinDuration
		}
	}

	p.Feasible = p.EssentialTime <= totalAvailable-MinimumBuffer

	// Prefer the standard buffer; shrink it only as far as needed to fit
	// the essential minimums, and never below the minimum buffer.
	p.EffectiveBuffer = StandardBuffer
	if p.EssentialTime > totalAvailable-StandardBuffer {
		p.EffectiveBuffer = totalAvailable - p.EssentialTime
		if p.EffectiveBuffer < MinimumBuffer {
			p.EffectiveBuffer = MinimumBuffer
		}
	}
	p.EffectiveAvailable = maxDur(0, totalAvailable-p.EffectiveBuffer)

	p.Tasks = make([]ScheduledTask, len(tasks))
	var committed time.Duration
	for i, t := range tasks {
		p.Tasks[i] = ScheduledTask{Spec: t, Allocated: t.MinDuration}
		committed += t.MinDuration
	}

	slack := p.EffectiveAvailable - committed
	for _, tier := range []routine.Tier{routine.TierCore, routine.TierOptional, routine.TierEssential} {
		if slack <= 0 {
			break
		}
		slack = distribute(p.Tasks, tier, slack)
	}

	for _, st := range p.Tasks {
		p.TotalAllocated += st.Allocated
	}
	return p
}

// distribute grows tasks of one tier toward their maximums in routine
// order and returns the slack left over.
func distribute(tasks []ScheduledTask, tier routine.Tier, slack time.Duration) time.Duration {
	for i := range tasks {
		if slack <= 0 {
			break
		}
		st := &tasks[i]
		if st.Spec.Tier != tier {
			continue
		}
		headroom := st.Spec.MaxDuration - st.Allocated
		if headroom <= 0 {
			continue
		}
		grant := headroom
		if grant > slack {
			grant = slack
		}
		st.Allocated += grant
		slack -= grant
	}
	return slack
}

func maxDur(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}
