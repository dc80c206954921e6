package runtime

import (
	"errors"
	"testing"
	"time"

	"routined/internal/planner"
	"routined/internal/routine"
)

func gatedTask(id string, items ...string) planner.ScheduledTask {
	spec := routine.TaskSpec{
		ID:          id,
		Name:        id,
		MinDuration: 5 * time.Minute,
		MaxDuration: 5 * time.Minute,
		Tier:        routine.TierEssential,
		Gated:       true,
	}
	for _, it := range items {
		spec.Checklist = append(spec.Checklist, routine.ChecklistItem{ID: it, Title: it})
	}
	return planner.ScheduledTask{Spec: spec, Allocated: 5 * time.Minute}
}

func TestGatedTaskBlocksUntilChecked(t *testing.T) {
	t.Parallel()
	r := newRuntime(t, gatedTask("meds", "pill", "water"))

	if _, err := r.CompleteCurrent(); !errors.Is(err, ErrChecklistIncomplete) {
		t.Fatalf("err = %v, want ErrChecklistIncomplete", err)
	}

	if _, err := r.ToggleChecklistItem("meds", "pill"); err != nil {
		t.Fatalf("toggle pill: %v", err)
	}
	if _, err := r.CompleteCurrent(); !errors.Is(err, ErrChecklistIncomplete) {
		t.Fatalf("partial checklist: err = %v, want ErrChecklistIncomplete", err)
	}

	if _, err := r.ToggleChecklistItem("meds", "water"); err != nil {
		t.Fatalf("toggle water: %v", err)
	}
	if _, err := r.CompleteCurrent(); err != nil {
		t.Fatalf("all checked: %v", err)
	}
	if r.Phase() != PhaseComplete {
		t.Fatalf("Phase = %v, want complete", r.Phase())
	}
}

func TestChecklistAutoCompletesAfterDelay(t *testing.T) {
	t.Parallel()
	r := newRuntime(t, gatedTask("meds", "pill"), sched("next", routine.TierCore, time.Minute))

	if _, err := r.ToggleChecklistItem("meds", "pill"); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	// Default delay is 2s: nothing on the first tick.
	if evs := tick(r, 1); len(evs) != 0 {
		t.Fatalf("auto-complete fired early: %+v", evs)
	}
	evs := tick(r, 1)
	if len(evs) != 1 || evs[0].TaskID != "meds" {
		t.Fatalf("auto-complete events = %+v", evs)
	}
	if got := r.Snapshot().CurrentTaskID; got != "next" {
		t.Fatalf("current = %s, want next", got)
	}
	// No re-fire after the slot advanced.
	if evs := tick(r, 5); len(evs) != 0 {
		t.Fatalf("unexpected extra completions: %+v", evs)
	}
}

func TestUncheckingDisarmsAutoComplete(t *testing.T) {
	t.Parallel()
	r := newRuntime(t, gatedTask("meds", "pill"), sched("next", routine.TierCore, time.Minute))

	if _, err := r.ToggleChecklistItem("meds", "pill"); err != nil {
		t.Fatalf("toggle on: %v", err)
	}
	tick(r, 1)
	if _, err := r.ToggleChecklistItem("meds", "pill"); err != nil {
		t.Fatalf("toggle off: %v", err)
	}
	if evs := tick(r, 10); len(evs) != 0 {
		t.Fatalf("auto-complete fired after uncheck: %+v", evs)
	}
	if got := r.Snapshot().CurrentTaskID; got != "meds" {
		t.Fatalf("current = %s, want meds", got)
	}
}

func TestReToggleWhileArmedFiresOnce(t *testing.T) {
	t.Parallel()
	r := newRuntime(t, gatedTask("meds", "pill", "water"), sched("next", routine.TierCore, time.Minute))

	if _, err := r.ToggleChecklistItem("meds", "pill"); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if _, err := r.ToggleChecklistItem("meds", "water"); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	tick(r, 1)
	// An uncheck/recheck cycle re-arms but must still produce exactly
	// one completion.
	if _, err := r.ToggleChecklistItem("meds", "pill"); err != nil {
		t.Fatalf("toggle off: %v", err)
	}
	if _, err := r.ToggleChecklistItem("meds", "pill"); err != nil {
		t.Fatalf("toggle on: %v", err)
	}
	evs := tick(r, 2)
	if len(evs) != 1 {
		t.Fatalf("completions = %+v, want exactly one", evs)
	}
}

func TestChecklistKeyedByIdentitySurvivesDelay(t *testing.T) {
	t.Parallel()
	r := newRuntime(t, gatedTask("meds", "pill"), sched("other", routine.TierCore, time.Minute))

	if _, err := r.ToggleChecklistItem("meds", "pill"); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if err := r.DelayCurrent(1); err != nil {
		t.Fatalf("DelayCurrent: %v", err)
	}
	views, err := r.Checklist("meds")
	if err != nil {
		t.Fatalf("Checklist: %v", err)
	}
	if !views[0].Checked {
		t.Fatal("checklist state lost across delay")
	}
	// The delayed gated task must not auto-complete while another task
	// holds the foreground slot.
	if evs := tick(r, 10); len(evs) != 0 {
		t.Fatalf("unexpected completions: %+v", evs)
	}
}

func TestToggleUnknownIDs(t *testing.T) {
	t.Parallel()
	r := newRuntime(t, gatedTask("meds", "pill"))

	if _, err := r.ToggleChecklistItem("ghost", "pill"); !errors.Is(err, ErrUnknownTask) {
		t.Fatalf("err = %v, want ErrUnknownTask", err)
	}
	if _, err := r.ToggleChecklistItem("meds", "ghost"); !errors.Is(err, ErrUnknownChecklistItem) {
		t.Fatalf("err = %v, want ErrUnknownChecklistItem", err)
	}
}
