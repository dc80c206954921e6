package autostart

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"routined/internal/routine"
	"routined/pkg/logx"
)

const defaultEndOfDay = "09:00"

type Config struct {
	Enabled  bool
	Timezone string // IANA TZ, e.g. "Asia/Jakarta"; empty means Local

	// EndOfDay caps each autostarted session's budget: the available
	// time handed to the planner runs from the trigger until this
	// wall-clock time ("HH:MM", next occurrence).
	EndOfDay string
}

// Starter is what autostart needs from the session service.
type Starter interface {
	StartSession(routineName string, available time.Duration) error
}

// Entry is one registered schedule for Snapshot.
type Entry struct {
	Routine string
	Spec    string
	Next    time.Time
	Prev    time.Time
}

type Snapshot struct {
	Enabled  bool
	Timezone string
	Entries  []Entry
}

type scheduleDef struct {
	routine  string
	raw      string // spec as written in the routine file
	cronSpec string
}

type registered struct {
	def scheduleDef
	id  cron.EntryID
}

// Service owns the cron engine that fires session starts.
type Service struct {
	mu sync.Mutex

	log     logx.Logger
	cfg     Config
	starter Starter

	parser cron.Parser
	c      *cron.Cron
	loc    *time.Location
	defs   []scheduleDef
	ids    []registered

	// Cron job bodies only enqueue here; a single worker goroutine runs
	// the actual triggers. Restarting the cron engine waits for running
	// jobs, so a job body must never take s.mu itself.
	queue  chan string
	stopCh chan struct{}

	now func() time.Time
}

func New(cfg Config, log logx.Logger, starter Starter) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:     cfg,
		log:     log,
		starter: starter,
		parser:  cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		now:     time.Now,
	}
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// SetRoutines replaces the schedule set from routine definitions.
// Definitions without a schedule are ignored. Invalid specs are logged
// and skipped so one bad routine file cannot take down the rest.
func (s *Service) SetRoutines(defs []routine.Definition) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.defs = s.defs[:0]
	for _, d := range defs {
		raw := strings.TrimSpace(d.Schedule)
		if raw == "" {
			continue
		}
		spec, err := cronSpec(raw)
		if err != nil {
			s.log.Warn("invalid schedule, skipping",
				logx.String("routine", d.Name),
				logx.String("spec", raw),
				logx.Err(err))
			continue
		}
		s.defs = append(s.defs, scheduleDef{routine: d.Name, raw: raw, cronSpec: spec})
	}
	if s.c != nil {
		s.restartLocked()
	}
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	oldTZ := strings.TrimSpace(s.cfg.Timezone)
	s.cfg = cfg

	if s.c == nil {
		return
	}
	if oldTZ != strings.TrimSpace(cfg.Timezone) {
		s.restartLocked()
	}
}

func (s *Service) Start(ctx context.Context) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	loc := s.loadLocationLocked()
	s.loc = loc
	s.queue = make(chan string, 16)
	s.stopCh = make(chan struct{})
	go s.worker(ctx, s.queue, s.stopCh)
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))
	s.registerLocked()
	s.c.Start()
	s.log.Info("autostart started",
		logx.Int("schedules", len(s.ids)),
		logx.String("tz", loc.String()))
}

func (s *Service) worker(ctx context.Context, queue <-chan string, stop <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case name := <-queue:
			s.trigger(name)
		}
	}
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	stop := s.stopCh
	s.c = nil
	s.ids = nil
	s.queue = nil
	s.stopCh = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	if stop != nil {
		close(stop)
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.log.Info("autostart stopped")
}

func (s *Service) restartLocked() {
	if s.c != nil {
		<-s.c.Stop().Done()
	}
	loc := s.loadLocationLocked()
	s.loc = loc
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))
	s.registerLocked()
	s.c.Start()
	s.log.Info("autostart restarted",
		logx.Int("schedules", len(s.ids)),
		logx.String("tz", loc.String()))
}

func (s *Service) registerLocked() {
	queue := s.queue
	s.ids = s.ids[:0]
	for _, d := range s.defs {
		d := d
		id, err := s.c.AddFunc(d.cronSpec, func() {
			select {
			case queue <- d.routine:
			default:
				s.log.Warn("trigger queue full, dropping fire",
					logx.String("routine", d.routine))
			}
		})
		if err != nil {
			s.log.Warn("schedule rejected by cron",
				logx.String("routine", d.routine),
				logx.String("spec", d.cronSpec),
				logx.Err(err))
			continue
		}
		s.ids = append(s.ids, registered{def: d, id: id})
	}
}

func (s *Service) trigger(routineName string) {
	s.mu.Lock()
	enabled := s.cfg.Enabled
	endOfDay := s.cfg.EndOfDay
	loc := s.loc
	s.mu.Unlock()

	if !enabled {
		return
	}
	now := s.now()
	available := availableUntil(now, endOfDay, loc)
	s.log.Info("autostart trigger",
		logx.String("routine", routineName),
		logx.Duration("available", available))

	if err := s.starter.StartSession(routineName, available); err != nil {
		// An already-running session is ordinary, not an operator problem.
		s.log.Warn("autostart could not start session",
			logx.String("routine", routineName),
			logx.Err(err))
	}
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{Enabled: s.cfg.Enabled}
	if s.loc != nil {
		snap.Timezone = s.loc.String()
	}
	if s.c == nil {
		return snap
	}
	for _, r := range s.ids {
		e := s.c.Entry(r.id)
		snap.Entries = append(snap.Entries, Entry{
			Routine: r.def.routine,
			Spec:    r.def.raw,
			Next:    e.Next,
			Prev:    e.Prev,
		})
	}
	return snap
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone, falling back to Local",
			logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

// availableUntil is the span from now until the next end-of-day
// wall-clock time in loc.
func availableUntil(now time.Time, endOfDay string, loc *time.Location) time.Duration {
	if loc == nil {
		loc = time.Local
	}
	h, m, err := parseHHMM(endOfDay)
	if err != nil {
		h, m, _ = parseHHMM(defaultEndOfDay)
	}
	now = now.In(loc)
	end := time.Date(now.Year(), now.Month(), now.Day(), h, m, 0, 0, loc)
	if !end.After(now) {
		end = end.AddDate(0, 0, 1)
	}
	return end.Sub(now)
}

// cronSpec normalizes a routine schedule: "HH:MM" becomes a daily cron
// expression, anything else is passed through for cron to validate.
func cronSpec(raw string) (string, error) {
	if strings.Contains(raw, " ") || strings.HasPrefix(raw, "@") {
		return raw, nil
	}
	h, m, err := parseHHMM(raw)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d %d * * *", m, h), nil
}

func parseHHMM(s string) (hour int, minute int, err error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}
