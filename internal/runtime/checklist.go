package runtime

import (
	"time"

	"routined/internal/planner"
	"routined/internal/routine"
)

// routineSpecNone marks an empty foreground slot.
var routineSpecNone routine.TaskSpec

// checklistState tracks per-session checklist completion, keyed by the
// task's stable identity so reordering and delaying cannot misattribute a
// checked item. Items start unchecked every session.
//
// When every item of the current gated task is checked, completion is
// armed and fires after a short fixed delay instead of instantly, so a
// display can show the fully-checked state first. Arming is idempotent:
// repeated toggles while armed do not re-arm, and unchecking disarms.
type checklistState struct {
	done map[string]map[string]bool // task id -> item id -> checked

	current    routine.TaskSpec
	hasCurrent bool

	armed     bool
	delay     time.Duration
	delayLeft time.Duration
}

func (c *checklistState) reset(tasks []planner.ScheduledTask) {
	c.done = make(map[string]map[string]bool)
	for _, st := range tasks {
		if len(st.Spec.Checklist) == 0 {
			continue
		}
		m := make(map[string]bool, len(st.Spec.Checklist))
		for _, it := range st.Spec.Checklist {
			m[it.ID] = false
		}
		c.done[st.Spec.ID] = m
	}
	c.armed = false
}

func (c *checklistState) setCurrent(spec routine.TaskSpec, delay time.Duration) {
	c.current = spec
	c.hasCurrent = spec.ID != ""
	c.delay = delay
	c.armed = false
	c.evaluate()
}

func (c *checklistState) toggle(taskID, itemID string) (bool, error) {
	items, ok := c.done[taskID]
	if !ok {
		return false, ErrUnknownTask
	}
	checked, ok := items[itemID]
	if !ok {
		return false, ErrUnknownChecklistItem
	}
	items[itemID] = !checked
	c.evaluate()
	return !checked, nil
}

// evaluate arms or disarms auto-complete for the current gated task.
func (c *checklistState) evaluate() {
	if !c.hasCurrent || !c.current.Gated {
		c.armed = false
		return
	}
	if !c.allChecked(c.current) {
		c.armed = false
		return
	}
	if !c.armed {
		c.armed = true
		c.delayLeft = c.delay
	}
}

// tickAutoComplete advances the armed delay by one tick and reports
// whether the current task should now self-complete.
func (c *checklistState) tickAutoComplete() (string, bool) {
	if !c.armed {
		return "", false
	}
	c.delayLeft -= tickStep
	if c.delayLeft > 0 {
		return "", false
	}
	c.armed = false
	return c.current.ID, true
}

func (c *checklistState) disarm() { c.armed = false }

func (c *checklistState) allChecked(spec routine.TaskSpec) bool {
	items := c.done[spec.ID]
	for _, it := range spec.Checklist {
		if !items[it.ID] {
			return false
		}
	}
	return true
}

// ChecklistItemView is a checklist item plus its session state.
type ChecklistItemView struct {
	ID      string
	Title   string
	Checked bool
}

// ToggleChecklistItem flips one checklist item. If that completes the
// current gated task's list, auto-complete is armed and will fire on a
// later tick.
func (r *Runtime) ToggleChecklistItem(taskID, itemID string) (bool, error) {
	if err := r.requireLive(); err != nil {
		return false, err
	}
	return r.checklist.toggle(taskID, itemID)
}

// Checklist returns the session state of a task's checklist.
func (r *Runtime) Checklist(taskID string) ([]ChecklistItemView, error) {
	items, ok := r.checklist.done[taskID]
	if !ok {
		return nil, ErrUnknownTask
	}
	spec, ok := r.findSpec(taskID)
	if !ok {
		return nil, ErrUnknownTask
	}
	out := make([]ChecklistItemView, 0, len(spec.Checklist))
	for _, it := range spec.Checklist {
		out = append(out, ChecklistItemView{ID: it.ID, Title: it.Title, Checked: items[it.ID]})
	}
	return out, nil
}

func (r *Runtime) findSpec(taskID string) (routine.TaskSpec, bool) {
	for _, st := range r.tasks {
		if st.Spec.ID == taskID {
			return st.Spec, true
		}
	}
	for _, bg := range r.background {
		if bg.task.Spec.ID == taskID {
			return bg.task.Spec, true
		}
	}
	return routine.TaskSpec{}, false
}
