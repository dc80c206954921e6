// Package drift watches session drift events and raises a rate-limited
// warning once a session falls too far behind its plan.
package drift

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"routined/internal/eventbus"
	"routined/internal/services/session"
	"routined/pkg/logx"
)

type Config struct {
	Enabled bool

	// Threshold is how far behind plan a session must be before a
	// warning fires. Default 2m.
	Threshold time.Duration

	// MinInterval is the minimum spacing between warnings for one
	// session. Default 5m.
	MinInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.Threshold <= 0 {
		c.Threshold = 2 * time.Minute
	}
	if c.MinInterval <= 0 {
		c.MinInterval = 5 * time.Minute
	}
	return c
}

// Notifier delivers a behind-schedule warning somewhere a human will
// see it.
type Notifier interface {
	NotifyBehind(ev session.DriftEvent)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ev session.DriftEvent)

func (f NotifierFunc) NotifyBehind(ev session.DriftEvent) { f(ev) }

// Service consumes drift.changed events off the bus.
type Service struct {
	mu sync.Mutex

	log      logx.Logger
	bus      eventbus.Bus
	cfg      Config
	notifier Notifier

	// One limiter per live session so a long session cannot silence a
	// later one.
	limiters map[string]*rate.Limiter

	unsub  func()
	doneCh chan struct{}
}

func New(cfg Config, log logx.Logger, bus eventbus.Bus, notifier Notifier) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		cfg:      cfg.withDefaults(),
		log:      log,
		bus:      bus,
		limiters: map[string]*rate.Limiter{},
	}
	if notifier == nil {
		notifier = NotifierFunc(func(ev session.DriftEvent) {
			log.Warn("session behind schedule",
				logx.String("session", ev.SessionID),
				logx.String("routine", ev.Routine),
				logx.String("drift", ev.Drift))
		})
	}
	s.notifier = notifier
	return s
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg.withDefaults()
	// Existing limiters keep their old spacing until their session ends.
	s.mu.Unlock()
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.doneCh != nil || s.bus == nil {
		s.mu.Unlock()
		return
	}
	events, unsub := s.bus.Subscribe(64)
	done := make(chan struct{})
	s.unsub = unsub
	s.doneCh = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				s.handle(ev)
			}
		}
	}()
	s.log.Info("service started")
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	unsub, done := s.unsub, s.doneCh
	s.unsub, s.doneCh = nil, nil
	s.mu.Unlock()
	if unsub == nil {
		return
	}
	unsub()
	select {
	case <-done:
	case <-ctx.Done():
	}
	s.log.Info("service stopped")
}

func (s *Service) handle(ev eventbus.Event) {
	switch ev.Type {
	case eventbus.TypeDriftChanged:
		data, ok := ev.Data.(session.DriftEvent)
		if !ok {
			return
		}
		s.onDrift(data)
	case eventbus.TypeSessionEnded:
		data, ok := ev.Data.(session.EndedEvent)
		if !ok {
			return
		}
		s.mu.Lock()
		delete(s.limiters, data.SessionID)
		s.mu.Unlock()
	}
}

func (s *Service) onDrift(ev session.DriftEvent) {
	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiters[ev.SessionID]
	if lim == nil {
		lim = rate.NewLimiter(rate.Every(cfg.MinInterval), 1)
		s.limiters[ev.SessionID] = lim
	}
	s.mu.Unlock()

	if !cfg.Enabled {
		return
	}
	if time.Duration(ev.OffsetSeconds)*time.Second < cfg.Threshold {
		return
	}
	if !lim.Allow() {
		return
	}
	s.notifier.NotifyBehind(ev)
}
