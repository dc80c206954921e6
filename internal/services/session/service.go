package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"routined/internal/eventbus"
	"routined/internal/planner"
	"routined/internal/routine"
	"routined/internal/runtime"
	"routined/internal/storage"
	"routined/pkg/logx"
)

// Service runs routine sessions against the wall clock.
//
// All mutation, ticks included, is executed on one goroutine started by
// Start. Public methods hand a closure to that goroutine and wait for
// it, so callers see sequentially consistent state without any lock on
// the runtime itself.
type Service struct {
	mu sync.Mutex

	log   logx.Logger
	bus   eventbus.Bus
	store storage.Store
	cfg   Config

	routines map[string]routine.Definition

	calls  chan func()
	stopCh chan struct{}
	doneCh chan struct{}

	// Seams for tests: fixed clock and a hand-driven tick channel.
	now       func() time.Time
	newTicker func(d time.Duration) (<-chan time.Time, func())

	// Fields below are owned by the run goroutine.
	sessID     string
	rt         *runtime.Runtime
	lastTask   string
	lastOffset int64
	finalized  bool
}

func New(cfg Config, log logx.Logger, bus eventbus.Bus, store storage.Store) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:      cfg.withDefaults(),
		log:      log,
		bus:      bus,
		store:    store,
		routines: map[string]routine.Definition{},
		now:      time.Now,
		newTicker: func(d time.Duration) (<-chan time.Time, func()) {
			t := time.NewTicker(d)
			return t.C, t.Stop
		},
	}
}

// SetRoutines replaces the set of startable routine definitions.
func (s *Service) SetRoutines(defs []routine.Definition) {
	m := make(map[string]routine.Definition, len(defs))
	for _, d := range defs {
		m[d.Name] = d
	}
	s.mu.Lock()
	s.routines = m
	s.mu.Unlock()
}

// Apply updates config. The tick interval of an already-started service
// changes on the next Start; the checklist delay applies to the next
// session.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg.withDefaults()
	s.mu.Unlock()
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.calls != nil {
		s.mu.Unlock()
		return
	}
	calls := make(chan func(), 16)
	stop := make(chan struct{})
	done := make(chan struct{})
	s.calls, s.stopCh, s.doneCh = calls, stop, done
	interval := s.cfg.TickInterval
	s.mu.Unlock()

	ticks, stopTicker := s.newTicker(interval)
	go func() {
		defer close(done)
		defer stopTicker()
		s.run(ctx, calls, ticks, stop)
	}()
	s.log.Info("service started", logx.Duration("tick_interval", interval))
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	stop, done := s.stopCh, s.doneCh
	s.calls, s.stopCh, s.doneCh = nil, nil, nil
	s.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	select {
	case <-done:
		s.log.Info("service stopped")
	case <-ctx.Done():
		// run loop exits on stop; we just stopped waiting for it
	}
}

func (s *Service) run(ctx context.Context, calls chan func(), ticks <-chan time.Time, stop chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case fn := <-calls:
			fn()
		case <-ticks:
			s.onTick()
		}
	}
}

// do executes fn on the run goroutine and waits for it.
func (s *Service) do(fn func()) error {
	s.mu.Lock()
	calls, stop := s.calls, s.stopCh
	s.mu.Unlock()
	if calls == nil {
		return ErrStopped
	}
	done := make(chan struct{})
	select {
	case calls <- func() { defer close(done); fn() }:
	case <-stop:
		return ErrStopped
	}
	select {
	case <-done:
		return nil
	case <-stop:
		return ErrStopped
	}
}

// withSession runs fn against the active session and then re-derives
// the bookkeeping that follows any mutation (current task change, drift
// change, completion of the whole session).
func (s *Service) withSession(fn func() error) error {
	var rerr error
	if err := s.do(func() {
		if s.rt == nil {
			rerr = ErrNoSession
			return
		}
		rerr = fn()
		s.afterMutation()
	}); err != nil {
		return err
	}
	return rerr
}

// StartSession plans and starts the named routine with the given time
// budget. It fails if a session is already live or, unless configured
// otherwise, if the essential minimums do not fit.
func (s *Service) StartSession(routineName string, available time.Duration) error {
	var rerr error
	if err := s.do(func() { rerr = s.startSession(routineName, available) }); err != nil {
		return err
	}
	return rerr
}

func (s *Service) startSession(routineName string, available time.Duration) error {
	if s.rt != nil && !s.rt.Phase().Terminal() {
		return ErrSessionActive
	}

	s.mu.Lock()
	def, ok := s.routines[routineName]
	cfg := s.cfg
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownRoutine, routineName)
	}

	plan := planner.Build(def.Tasks, available)
	if !plan.Feasible && !cfg.AllowInfeasible {
		s.log.Warn("refusing infeasible plan",
			logx.String("routine", routineName),
			logx.Duration("essential", plan.EssentialTime),
			logx.Duration("available", available))
		return fmt.Errorf("%w: routine %q needs %s essential, %s available",
			ErrInfeasible, routineName, plan.EssentialTime, available)
	}

	rt := runtime.New(def.Name, plan, runtime.Options{
		Now:               s.now,
		AutoCompleteDelay: cfg.ChecklistAutoComplete,
	}, s.log)
	if err := rt.Start(); err != nil {
		return err
	}

	s.sessID = uuid.NewString()
	s.rt = rt
	s.lastTask = ""
	s.lastOffset = 0
	s.finalized = false

	s.log.Info("session started",
		logx.String("session", s.sessID),
		logx.String("routine", def.Name),
		logx.Bool("feasible", plan.Feasible),
		logx.Int("tasks", len(plan.Tasks)),
		logx.Duration("planned", plan.TotalDuration()))
	s.publish(eventbus.TypeSessionStarted, StartedEvent{
		SessionID: s.sessID,
		Routine:   def.Name,
		Feasible:  plan.Feasible,
		TaskCount: len(plan.Tasks),
		Available: available,
		Planned:   plan.TotalDuration(),
	})
	s.afterMutation()
	return nil
}

func (s *Service) onTick() {
	if s.rt == nil || s.finalized {
		return
	}
	for _, ev := range s.rt.Tick() {
		s.handleCompletion(ev)
	}
	s.afterMutation()
}

// afterMutation publishes the deltas a mutation may have caused and
// finalizes the session once it reaches a terminal phase.
func (s *Service) afterMutation() {
	if s.rt == nil || s.finalized {
		return
	}
	snap := s.rt.Snapshot()

	if snap.CurrentTaskID != "" && snap.CurrentTaskID != s.lastTask && !snap.Phase.Terminal() {
		s.lastTask = snap.CurrentTaskID
		s.publish(eventbus.TypeTaskStarted, TaskEvent{
			SessionID: s.sessID,
			Routine:   snap.Routine,
			TaskID:    snap.CurrentTaskID,
			Name:      taskName(snap),
		})
	}
	if snap.OffsetSeconds != s.lastOffset {
		s.lastOffset = snap.OffsetSeconds
		s.publish(eventbus.TypeDriftChanged, DriftEvent{
			SessionID:     s.sessID,
			Routine:       snap.Routine,
			OffsetSeconds: snap.OffsetSeconds,
			Drift:         snap.DriftLabel,
		})
	}
	if snap.Phase == runtime.PhaseComplete {
		s.finalize(s.rt.Summary())
	}
}

func taskName(snap runtime.Snapshot) string {
	if snap.CurrentIndex >= 0 && snap.CurrentIndex < len(snap.Tasks) {
		return snap.Tasks[snap.CurrentIndex].Name
	}
	return ""
}

func (s *Service) handleCompletion(ev runtime.TaskCompletion) {
	snap := s.rt.Snapshot()
	s.publish(eventbus.TypeTaskCompleted, TaskEvent{
		SessionID: s.sessID,
		Routine:   snap.Routine,
		TaskID:    ev.TaskID,
		Name:      ev.Name,
		Allocated: ev.Allocated,
		Actual:    ev.Actual,
	})
	if s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := s.store.AppendCompletion(ctx, storage.CompletionRecord{
		SessionID:   s.sessID,
		Routine:     snap.Routine,
		TaskID:      ev.TaskID,
		Name:        ev.Name,
		Allocated:   ev.Allocated,
		Actual:      ev.Actual,
		CompletedAt: ev.CompletedAt,
	})
	if err != nil {
		// Persistence is best-effort; the session keeps going.
		s.log.Error("append completion failed", logx.Err(err))
	}
}

// finalize records and announces the session outcome exactly once. The
// runtime is kept around so Snapshot still shows the terminal state.
func (s *Service) finalize(sum runtime.SessionSummary) {
	if s.finalized {
		return
	}
	s.finalized = true

	s.publish(eventbus.TypeSessionEnded, EndedEvent{SessionID: s.sessID, Summary: sum})
	if s.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		err := s.store.AppendSession(ctx, storage.SessionRecord{
			SessionID:      s.sessID,
			Routine:        sum.Routine,
			OffsetSeconds:  sum.OffsetSeconds,
			CompletedCount: sum.CompletedCount,
			TotalCount:     sum.TotalCount,
			Aborted:        sum.Aborted,
			EndedAt:        sum.EndedAt,
		})
		if err != nil {
			s.log.Error("append session failed", logx.Err(err))
		}
		s.logHistory(ctx, sum.Routine)
	}
}

// logHistory reports how recent runs of this routine spent their time.
// Drivers that cannot query (the file driver) report ErrDisabled and are
// skipped quietly.
func (s *Service) logHistory(ctx context.Context, routineName string) {
	recs, err := s.store.RecentCompletions(ctx, routineName, 50)
	if err != nil {
		if !errors.Is(err, storage.ErrDisabled) {
			s.log.Debug("history query failed", logx.Err(err))
		}
		return
	}
	if len(recs) == 0 {
		return
	}
	var allocated, actual time.Duration
	for _, r := range recs {
		allocated += r.Allocated
		actual += r.Actual
	}
	s.log.Info("completion history",
		logx.String("routine", routineName),
		logx.Int("records", len(recs)),
		logx.Duration("allocated", allocated),
		logx.Duration("actual", actual))
}

func (s *Service) publish(typ string, data any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: s.now(), Data: data})
}

// EndSession aborts the live session and returns its summary.
func (s *Service) EndSession() (runtime.SessionSummary, error) {
	var sum runtime.SessionSummary
	var rerr error
	if err := s.do(func() {
		if s.rt == nil {
			rerr = ErrNoSession
			return
		}
		sum, rerr = s.rt.End()
		if rerr == nil {
			s.finalize(sum)
		}
	}); err != nil {
		return runtime.SessionSummary{}, err
	}
	return sum, rerr
}

func (s *Service) Pause() error {
	return s.withSession(func() error { return s.rt.Pause() })
}

func (s *Service) Resume() error {
	return s.withSession(func() error { return s.rt.Resume() })
}

func (s *Service) CompleteCurrent() error {
	return s.withSession(func() error {
		ev, err := s.rt.CompleteCurrent()
		if err != nil {
			return err
		}
		s.handleCompletion(ev)
		return nil
	})
}

func (s *Service) DelayCurrent(n int) error {
	return s.withSession(func() error { return s.rt.DelayCurrent(n) })
}

func (s *Service) Reorder(from, to int) error {
	return s.withSession(func() error { return s.rt.Reorder(from, to) })
}

func (s *Service) MoveCurrentToBackground() error {
	return s.withSession(func() error { return s.rt.MoveCurrentToBackground() })
}

func (s *Service) PromoteBackground(taskID string) error {
	return s.withSession(func() error { return s.rt.PromoteBackground(taskID) })
}

func (s *Service) CompleteBackground(taskID string) error {
	return s.withSession(func() error {
		ev, err := s.rt.CompleteBackground(taskID)
		if err != nil {
			return err
		}
		s.handleCompletion(ev)
		return nil
	})
}

// ToggleChecklistItem flips one checklist item and reports its new
// state. Checking the last item of the current gated task arms the
// auto-complete countdown.
func (s *Service) ToggleChecklistItem(taskID, itemID string) (bool, error) {
	var checked bool
	err := s.withSession(func() error {
		var err error
		checked, err = s.rt.ToggleChecklistItem(taskID, itemID)
		return err
	})
	return checked, err
}

func (s *Service) Checklist(taskID string) ([]runtime.ChecklistItemView, error) {
	var views []runtime.ChecklistItemView
	err := s.withSession(func() error {
		var err error
		views, err = s.rt.Checklist(taskID)
		return err
	})
	return views, err
}

// Snapshot returns the current session view. Active is false when no
// session exists; State is zero in that case.
func (s *Service) Snapshot() (Snapshot, error) {
	var snap Snapshot
	err := s.do(func() {
		if s.rt == nil {
			return
		}
		snap = Snapshot{
			Active:    !s.rt.Phase().Terminal(),
			SessionID: s.sessID,
			State:     s.rt.Snapshot(),
		}
	})
	return snap, err
}
