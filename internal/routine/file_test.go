package routine

import (
	"strings"
	"testing"
	"time"
)

const morningYAML = `
name: morning
schedule: "06:30"
tasks:
  - id: shower
    name: Shower
    min_minutes: 10
    max_minutes: 15
    tier: essential
  - name: Coffee
    min_minutes: 5
  - id: pack
    name: Pack bag
    min_minutes: 5
    tier: optional
    gated: true
    checklist:
      - id: laptop
        title: Laptop
      - title: Charger
`

func TestParseRoutine(t *testing.T) {
	t.Parallel()

	def, err := parse([]byte(morningYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if def.Name != "morning" || def.Schedule != "06:30" {
		t.Fatalf("unexpected header: %+v", def)
	}
	if len(def.Tasks) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(def.Tasks))
	}

	shower := def.Tasks[0]
	if shower.ID != "shower" || shower.Tier != TierEssential {
		t.Fatalf("unexpected shower: %+v", shower)
	}
	if shower.MinDuration != 10*time.Minute || shower.MaxDuration != 15*time.Minute {
		t.Fatalf("unexpected shower durations: %+v", shower)
	}

	coffee := def.Tasks[1]
	if coffee.ID == "" {
		t.Fatal("missing id should be generated")
	}
	if coffee.Tier != TierCore {
		t.Fatalf("default tier = %v, want core", coffee.Tier)
	}
	if coffee.MaxDuration != coffee.MinDuration {
		t.Fatalf("max should default to min, got %v", coffee.MaxDuration)
	}

	pack := def.Tasks[2]
	if !pack.Gated || len(pack.Checklist) != 2 {
		t.Fatalf("unexpected pack: %+v", pack)
	}
	if pack.Checklist[0].ID != "laptop" {
		t.Fatalf("explicit checklist id lost: %+v", pack.Checklist[0])
	}
	if pack.Checklist[1].ID == "" {
		t.Fatal("missing checklist item id should be generated")
	}
}

func TestParseRejectsBadInput(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "unknown tier",
			yaml: "name: r\ntasks:\n  - name: a\n    min_minutes: 5\n    tier: urgent\n",
			want: "unknown tier",
		},
		{
			name: "zero minutes",
			yaml: "name: r\ntasks:\n  - name: a\n    min_minutes: 0\n",
			want: "min duration",
		},
		{
			name: "max below min",
			yaml: "name: r\ntasks:\n  - name: a\n    min_minutes: 10\n    max_minutes: 5\n",
			want: "max duration",
		},
		{
			name: "gated without checklist",
			yaml: "name: r\ntasks:\n  - name: a\n    min_minutes: 5\n    gated: true\n",
			want: "needs a checklist",
		},
		{
			name: "duplicate task ids",
			yaml: "name: r\ntasks:\n  - id: x\n    name: a\n    min_minutes: 5\n  - id: x\n    name: b\n    min_minutes: 5\n",
			want: "duplicate task id",
		},
		{
			name: "empty routine name",
			yaml: "tasks:\n  - name: a\n    min_minutes: 5\n",
			want: "empty name",
		},
		{
			name: "broken yaml",
			yaml: "name: [",
			want: "yaml",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := parse([]byte(tc.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestTaskByID(t *testing.T) {
	t.Parallel()

	def, err := parse([]byte(morningYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, ok := def.TaskByID("shower"); !ok {
		t.Fatal("shower should be found")
	}
	if _, ok := def.TaskByID("nope"); ok {
		t.Fatal("unknown id should not be found")
	}
}
