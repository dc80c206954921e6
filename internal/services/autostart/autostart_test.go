package autostart

import (
	"context"
	"sync"
	"testing"
	"time"

	"routined/internal/routine"
	"routined/pkg/logx"
)

type stubStarter struct {
	mu        sync.Mutex
	routines  []string
	available []time.Duration
	err       error
}

func (s *stubStarter) StartSession(name string, available time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routines = append(s.routines, name)
	s.available = append(s.available, available)
	return s.err
}

func TestCronSpec(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "06:30", want: "30 6 * * *"},
		{in: "00:00", want: "0 0 * * *"},
		{in: "15 7 * * 1-5", want: "15 7 * * 1-5"},
		{in: "@daily", want: "@daily"},
		{in: "25:00", wantErr: true},
		{in: "0630", wantErr: true},
	}
	for _, tc := range cases {
		got, err := cronSpec(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("cronSpec(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("cronSpec(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("cronSpec(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestAvailableUntil(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 31, 6, 30, 0, 0, time.UTC)

	if got, want := availableUntil(now, "09:00", time.UTC), 2*time.Hour+30*time.Minute; got != want {
		t.Fatalf("before end of day: got %v, want %v", got, want)
	}
	// Past today's end of day rolls over to tomorrow.
	if got, want := availableUntil(now, "06:00", time.UTC), 23*time.Hour+30*time.Minute; got != want {
		t.Fatalf("after end of day: got %v, want %v", got, want)
	}
	// Garbage config falls back to the default 09:00.
	if got, want := availableUntil(now, "nope", time.UTC), 2*time.Hour+30*time.Minute; got != want {
		t.Fatalf("fallback: got %v, want %v", got, want)
	}
}

func TestTriggerComputesBudget(t *testing.T) {
	t.Parallel()

	starter := &stubStarter{}
	svc := New(Config{Enabled: true, EndOfDay: "09:00"}, logx.Nop(), starter)
	svc.now = func() time.Time { return time.Date(2026, 8, 31, 6, 0, 0, 0, time.UTC) }
	svc.loc = time.UTC

	svc.trigger("morning")

	starter.mu.Lock()
	defer starter.mu.Unlock()
	if len(starter.routines) != 1 || starter.routines[0] != "morning" {
		t.Fatalf("unexpected starts: %v", starter.routines)
	}
	if starter.available[0] != 3*time.Hour {
		t.Fatalf("available = %v, want 3h", starter.available[0])
	}
}

func TestDisabledTriggerDoesNothing(t *testing.T) {
	t.Parallel()

	starter := &stubStarter{}
	svc := New(Config{Enabled: false}, logx.Nop(), starter)
	svc.trigger("morning")

	starter.mu.Lock()
	defer starter.mu.Unlock()
	if len(starter.routines) != 0 {
		t.Fatalf("disabled service should not start sessions, got %v", starter.routines)
	}
}

func TestSchedulesRegisteredFromRoutines(t *testing.T) {
	t.Parallel()

	svc := New(Config{Enabled: true, Timezone: "UTC"}, logx.Nop(), &stubStarter{})
	svc.SetRoutines([]routine.Definition{
		{Name: "morning", Schedule: "06:30"},
		{Name: "unscheduled"},
		{Name: "broken", Schedule: "99:99"},
	})

	svc.Start(context.Background())
	defer svc.Stop(context.Background())

	snap := svc.Snapshot()
	if len(snap.Entries) != 1 {
		t.Fatalf("expected 1 schedule, got %d: %+v", len(snap.Entries), snap.Entries)
	}
	e := snap.Entries[0]
	if e.Routine != "morning" || e.Spec != "06:30" {
		t.Fatalf("unexpected entry: %+v", e)
	}
	if e.Next.IsZero() {
		t.Fatal("next run should be scheduled")
	}
	if e.Next.Hour() != 6 || e.Next.Minute() != 30 {
		t.Fatalf("next run at %v, want 06:30", e.Next)
	}
}

func TestSetRoutinesWhileRunningReschedules(t *testing.T) {
	t.Parallel()

	svc := New(Config{Enabled: true, Timezone: "UTC"}, logx.Nop(), &stubStarter{})
	svc.Start(context.Background())
	defer svc.Stop(context.Background())

	if n := len(svc.Snapshot().Entries); n != 0 {
		t.Fatalf("expected no schedules yet, got %d", n)
	}

	svc.SetRoutines([]routine.Definition{{Name: "evening", Schedule: "21:00"}})
	snap := svc.Snapshot()
	if len(snap.Entries) != 1 || snap.Entries[0].Routine != "evening" {
		t.Fatalf("unexpected entries after reschedule: %+v", snap.Entries)
	}
}

// Rescheduling restarts the cron engine and waits for in-flight jobs, so
// job bodies must never block on the service lock. Hold the lock across a
// few firings and then reschedule; a blocking job body would wedge
// SetRoutines forever.
func TestRescheduleWhileTriggersFire(t *testing.T) {
	t.Parallel()

	starter := &stubStarter{}
	svc := New(Config{Enabled: true, Timezone: "UTC"}, logx.Nop(), starter)
	svc.SetRoutines([]routine.Definition{{Name: "morning", Schedule: "@every 50ms"}})
	svc.Start(context.Background())
	defer svc.Stop(context.Background())

	svc.mu.Lock()
	time.Sleep(200 * time.Millisecond)
	done := make(chan struct{})
	go func() {
		svc.SetRoutines([]routine.Definition{{Name: "evening", Schedule: "21:00"}})
		close(done)
	}()
	svc.mu.Unlock()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("SetRoutines did not return while triggers were firing")
	}
}
