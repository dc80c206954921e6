package planner

import (
	"testing"
	"time"

	"routined/internal/routine"
)

func task(id string, tier routine.Tier, minM, maxM int) routine.TaskSpec {
	return routine.TaskSpec{
		ID:          id,
		Name:        id,
		MinDuration: time.Duration(minM) * time.Minute,
		MaxDuration: time.Duration(maxM) * time.Minute,
		Tier:        tier,
	}
}

func TestBuildBufferRules(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name          string
		essentialMin  int // minutes, single essential task
		total         time.Duration
		wantBuffer    time.Duration
		wantAvailable time.Duration
		wantFeasible  bool
	}{
		{name: "plenty of slack keeps standard buffer", essentialMin: 50, total: 120 * time.Minute, wantBuffer: 15 * time.Minute, wantAvailable: 105 * time.Minute, wantFeasible: true},
		{name: "tight budget shrinks buffer", essentialMin: 100, total: 110 * time.Minute, wantBuffer: 10 * time.Minute, wantAvailable: 100 * time.Minute, wantFeasible: true},
		{name: "overcommitted reports infeasible", essentialMin: 130, total: 120 * time.Minute, wantBuffer: 5 * time.Minute, wantAvailable: 115 * time.Minute, wantFeasible: false},
		{name: "exactly at minimum buffer is feasible", essentialMin: 105, total: 110 * time.Minute, wantBuffer: 5 * time.Minute, wantAvailable: 105 * time.Minute, wantFeasible: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := Build([]routine.TaskSpec{task("e", routine.TierEssential, tt.essentialMin, tt.essentialMin)}, tt.total)
			if p.Feasible != tt.wantFeasible {
				t.Fatalf("Feasible = %v, want %v", p.Feasible, tt.wantFeasible)
			}
			if p.EffectiveBuffer != tt.wantBuffer {
				t.Fatalf("EffectiveBuffer = %v, want %v", p.EffectiveBuffer, tt.wantBuffer)
			}
			if p.EffectiveAvailable != tt.wantAvailable {
				t.Fatalf("EffectiveAvailable = %v, want %v", p.EffectiveAvailable, tt.wantAvailable)
			}
			if p.EffectiveBuffer < MinimumBuffer || p.EffectiveBuffer > StandardBuffer {
				t.Fatalf("EffectiveBuffer %v outside [%v, %v]", p.EffectiveBuffer, MinimumBuffer, StandardBuffer)
			}
		})
	}
}

func TestBuildEmptyList(t *testing.T) {
	t.Parallel()
	p := Build(nil, time.Hour)
	if !p.Feasible {
		t.Fatal("empty plan must be feasible")
	}
	if len(p.Tasks) != 0 || p.TotalAllocated != 0 {
		t.Fatalf("empty plan should allocate nothing, got %v over %d tasks", p.TotalAllocated, len(p.Tasks))
	}
}

func TestBuildSlackGoesToCoreBeforeOptional(t *testing.T) {
	t.Parallel()
	tasks := []routine.TaskSpec{
		task("opt", routine.TierOptional, 5, 30),
		task("core", routine.TierCore, 10, 30),
		task("ess", routine.TierEssential, 20, 40),
	}
	// total 60m -> buffer 15m -> 45m available; mins sum to 35m -> 10m slack.
	p := Build(tasks, 60*time.Minute)
	if !p.Feasible {
		t.Fatal("expected feasible plan")
	}
	if p.EssentialTime != 20*time.Minute {
		t.Fatalf("EssentialTime = %v, want 20m", p.EssentialTime)
	}
	if p.CoreTime != 30*time.Minute {
		t.Fatalf("CoreTime = %v, want 30m (essential+core minimums)", p.CoreTime)
	}
	if got := p.Tasks[1].Allocated; got != 20*time.Minute {
		t.Fatalf("core allocation = %v, want 20m (all slack)", got)
	}
	if got := p.Tasks[0].Allocated; got != 5*time.Minute {
		t.Fatalf("optional allocation = %v, want its minimum", got)
	}
	if got := p.Tasks[2].Allocated; got != 20*time.Minute {
		t.Fatalf("essential allocation = %v, want its minimum", got)
	}
}

func TestBuildSlackOverflowsTierInRoutineOrder(t *testing.T) {
	t.Parallel()
	tasks := []routine.TaskSpec{
		task("core-a", routine.TierCore, 10, 12),
		task("core-b", routine.TierCore, 10, 60),
		task("opt", routine.TierOptional, 5, 10),
	}
	// total 55m -> buffer 15m -> 40m available; mins 25m -> 15m slack.
	// core-a caps at +2, core-b takes the remaining 13.
	p := Build(tasks, 55*time.Minute)
	if got := p.Tasks[0].Allocated; got != 12*time.Minute {
		t.Fatalf("core-a = %v, want capped 12m", got)
	}
	if got := p.Tasks[1].Allocated; got != 23*time.Minute {
		t.Fatalf("core-b = %v, want 23m", got)
	}
	if got := p.Tasks[2].Allocated; got != 5*time.Minute {
		t.Fatalf("opt = %v, want minimum 5m", got)
	}
}

func TestBuildEssentialTopUpComesLast(t *testing.T) {
	t.Parallel()
	tasks := []routine.TaskSpec{
		task("ess", routine.TierEssential, 10, 60),
		task("core", routine.TierCore, 10, 15),
		task("opt", routine.TierOptional, 5, 8),
	}
	// total 60m -> 45m available; mins 25m -> 20m slack.
	// core +5 (cap), opt +3 (cap), essential absorbs the last 12.
	p := Build(tasks, 60*time.Minute)
	if got := p.Tasks[1].Allocated; got != 15*time.Minute {
		t.Fatalf("core = %v, want 15m", got)
	}
	if got := p.Tasks[2].Allocated; got != 8*time.Minute {
		t.Fatalf("opt = %v, want 8m", got)
	}
	if got := p.Tasks[0].Allocated; got != 22*time.Minute {
		t.Fatalf("ess = %v, want 22m", got)
	}
	if p.TotalAllocated != p.EffectiveAvailable {
		t.Fatalf("TotalAllocated = %v, want full budget %v", p.TotalAllocated, p.EffectiveAvailable)
	}
	if p.TotalDuration() != p.TotalAllocated {
		t.Fatalf("TotalDuration() = %v, want %v", p.TotalDuration(), p.TotalAllocated)
	}
}

func TestBuildNeverExceedsBudgetAndNeverDrops(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		tasks []routine.TaskSpec
		total time.Duration
	}{
		{
			name: "generous budget",
			tasks: []routine.TaskSpec{
				task("a", routine.TierEssential, 10, 20),
				task("b", routine.TierCore, 10, 20),
				task("c", routine.TierOptional, 10, 20),
			},
			total: 3 * time.Hour,
		},
		{
			name: "budget below combined minimums",
			tasks: []routine.TaskSpec{
				task("a", routine.TierEssential, 30, 40),
				task("b", routine.TierCore, 30, 40),
				task("c", routine.TierOptional, 30, 40),
			},
			total: 45 * time.Minute,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := Build(tt.tasks, tt.total)
			if len(p.Tasks) != len(tt.tasks) {
				t.Fatalf("planner dropped tasks: %d -> %d", len(tt.tasks), len(p.Tasks))
			}
			var sum time.Duration
			for i, st := range p.Tasks {
				if st.Allocated < st.Spec.MinDuration || st.Allocated > st.Spec.MaxDuration {
					t.Fatalf("task %d allocated %v outside [%v, %v]", i, st.Allocated, st.Spec.MinDuration, st.Spec.MaxDuration)
				}
				sum += st.Allocated
			}
			// The only time the total may exceed the budget is when the
			// minimums alone already do.
			var mins time.Duration
			for _, s := range tt.tasks {
				mins += s.MinDuration
			}
			if mins <= p.EffectiveAvailable && sum > p.EffectiveAvailable {
				t.Fatalf("allocated %v exceeds available %v", sum, p.EffectiveAvailable)
			}
		})
	}
}
