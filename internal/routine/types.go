package routine

import (
	"fmt"
	"strings"
	"time"
)

// Tier is the essentiality class of a task. Higher tiers are scheduled
// first when the time budget is tight.
type Tier int

const (
	TierOptional  Tier = 1
	TierCore      Tier = 2
	TierEssential Tier = 3
)

func (t Tier) String() string {
	switch t {
	case TierEssential:
		return "essential"
	case TierCore:
		return "core"
	case TierOptional:
		return "optional"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// ParseTier maps a config string to a Tier.
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "essential":
		return TierEssential, nil
	case "core", "":
		return TierCore, nil
	case "optional":
		return TierOptional, nil
	default:
		return 0, fmt.Errorf("unknown tier %q", s)
	}
}

// ChecklistItem is a sub-step of a checklist-gated task.
type ChecklistItem struct {
	ID    string
	Title string
}

// TaskSpec describes one task in a routine template.
//
// MinDuration and MaxDuration bound the time the planner may allocate.
// A task with Gated=true cannot be completed until every checklist item
// has been checked off in the running session.
type TaskSpec struct {
	ID          string
	Name        string
	MinDuration time.Duration
	MaxDuration time.Duration
	Tier        Tier
	Checklist   []ChecklistItem
	Gated       bool
}

// Validate reports the first structural problem with the spec.
func (t TaskSpec) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("task %q: empty id", t.Name)
	}
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("task %s: empty name", t.ID)
	}
	if t.MinDuration <= 0 {
		return fmt.Errorf("task %s: min duration must be > 0", t.ID)
	}
	if t.MaxDuration < t.MinDuration {
		return fmt.Errorf("task %s: max duration %s < min duration %s", t.ID, t.MaxDuration, t.MinDuration)
	}
	switch t.Tier {
	case TierEssential, TierCore, TierOptional:
	default:
		return fmt.Errorf("task %s: unknown tier %d", t.ID, int(t.Tier))
	}
	if t.Gated && len(t.Checklist) == 0 {
		return fmt.Errorf("task %s: gated task needs a checklist", t.ID)
	}
	seen := make(map[string]struct{}, len(t.Checklist))
	for _, it := range t.Checklist {
		if strings.TrimSpace(it.ID) == "" {
			return fmt.Errorf("task %s: checklist item with empty id", t.ID)
		}
		if _, dup := seen[it.ID]; dup {
			return fmt.Errorf("task %s: duplicate checklist item id %s", t.ID, it.ID)
		}
		seen[it.ID] = struct{}{}
	}
	return nil
}

// Definition is an ordered routine template a session is planned from.
type Definition struct {
	Name     string
	Schedule string // optional autostart spec: cron, "HH:MM" daily, or empty
	Tasks    []TaskSpec
}

// Validate checks every task and rejects duplicate task IDs.
func (d Definition) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("routine: empty name")
	}
	seen := make(map[string]struct{}, len(d.Tasks))
	for _, t := range d.Tasks {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("routine %s: %w", d.Name, err)
		}
		if _, dup := seen[t.ID]; dup {
			return fmt.Errorf("routine %s: duplicate task id %s", d.Name, t.ID)
		}
		seen[t.ID] = struct{}{}
	}
	return nil
}

// TaskByID returns the spec with the given id, if present.
func (d Definition) TaskByID(id string) (TaskSpec, bool) {
	for _, t := range d.Tasks {
		if t.ID == id {
			return t, true
		}
	}
	return TaskSpec{}, false
}
