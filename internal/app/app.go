// Package app assembles the daemon: config, logging, event bus,
// storage, and the session/autostart/drift services, with config
// hot-reload fan-out.
package app

import (
	"context"
	"fmt"
	"time"

	"routined/internal/config"
	"routined/internal/eventbus"
	"routined/internal/routine"
	"routined/internal/services/autostart"
	"routined/internal/services/drift"
	"routined/internal/services/session"
	"routined/internal/storage"
	"routined/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm  *config.Manager
	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	sess  *session.Service
	auto  *autostart.Service
	drift *drift.Service

	sup    *supervisor
	cancel context.CancelFunc
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(cfg.LogxConfig())
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	bus := eventbus.New()

	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		store = st
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	defs, err := loadRoutines(cfg.Routines)
	if err != nil {
		return nil, err
	}
	log.Info("routines loaded", logx.Int("count", len(defs)))

	sessCfg, err := mapSessionConfig(cfg)
	if err != nil {
		return nil, err
	}
	sess := session.New(sessCfg, log.With(logx.String("comp", "session")), bus, store)
	sess.SetRoutines(defs)

	auto := autostart.New(autostart.Config{
		Enabled:  cfg.Autostart.Enabled,
		Timezone: cfg.Autostart.Timezone,
		EndOfDay: cfg.Autostart.EndOfDay,
	}, log.With(logx.String("comp", "autostart")), sess)
	auto.SetRoutines(defs)

	driftCfg, err := mapDriftConfig(cfg)
	if err != nil {
		return nil, err
	}
	driftSvc := drift.New(driftCfg, log.With(logx.String("comp", "drift")), bus, nil)

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		sess:    sess,
		auto:    auto,
		drift:   driftSvc,
	}, nil
}

// Session exposes the session service for operational surfaces.
func (a *App) Session() *session.Service { return a.sess }

func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.sup = newSupervisor(a.log)

	a.sess.Start(runCtx)
	a.drift.Start(runCtx)
	a.auto.Start(runCtx)

	a.sup.Go(runCtx, "config.watch", a.cfgm.Watch)

	sub := a.cfgm.Subscribe(8)
	a.sup.Go(runCtx, "config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return nil
			case newCfg, ok := <-sub:
				if !ok {
					return nil
				}
				// Coalesce bursts: keep only the newest config.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				a.applyConfig(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.log.Info("started")
	return nil
}

// applyConfig pushes a validated hot-reloaded config into the running
// services. Storage is the exception: driver changes need a restart.
func (a *App) applyConfig(prev, cfg *config.Config) {
	a.logs.Apply(cfg.LogxConfig())

	if changed, err := storageChanged(prev, cfg); err == nil && changed {
		a.log.Warn("storage config changed; restart required for changes to take effect")
	}

	defs, err := loadRoutines(cfg.Routines)
	if err != nil {
		a.log.Warn("routine reload failed; keeping previous definitions", logx.Err(err))
	} else {
		a.sess.SetRoutines(defs)
		a.auto.SetRoutines(defs)
		a.log.Info("routines reloaded", logx.Int("count", len(defs)))
	}

	if sessCfg, err := mapSessionConfig(cfg); err != nil {
		a.log.Warn("invalid session config; keeping previous", logx.Err(err))
	} else {
		a.sess.Apply(sessCfg)
	}

	wasEnabled := a.auto.Enabled()
	a.auto.Apply(autostart.Config{
		Enabled:  cfg.Autostart.Enabled,
		Timezone: cfg.Autostart.Timezone,
		EndOfDay: cfg.Autostart.EndOfDay,
	})
	if wasEnabled != cfg.Autostart.Enabled {
		a.log.Info("autostart toggled", logx.Bool("enabled", cfg.Autostart.Enabled))
	}

	if driftCfg, err := mapDriftConfig(cfg); err != nil {
		a.log.Warn("invalid drift config; keeping previous", logx.Err(err))
	} else {
		a.drift.Apply(driftCfg)
	}

	a.log.Info("config applied")
}

func (a *App) Stop(ctx context.Context) {
	if a.cancel != nil {
		a.cancel()
	}

	a.auto.Stop(ctx)
	a.drift.Stop(ctx)
	a.sess.Stop(ctx)

	if a.sup != nil {
		a.sup.Wait()
	}

	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("storage close failed", logx.Err(err))
		}
	}
	a.log.Info("stopped")
	_ = a.logs.Close()
}

func loadRoutines(paths []string) ([]routine.Definition, error) {
	defs := make([]routine.Definition, 0, len(paths))
	seen := map[string]struct{}{}
	for _, p := range paths {
		def, err := routine.LoadFile(p)
		if err != nil {
			return nil, fmt.Errorf("routine %s: %w", p, err)
		}
		if _, dup := seen[def.Name]; dup {
			return nil, fmt.Errorf("routine %s: duplicate routine name %q", p, def.Name)
		}
		seen[def.Name] = struct{}{}
		defs = append(defs, def)
	}
	return defs, nil
}

func mapSessionConfig(cfg *config.Config) (session.Config, error) {
	tick, err := config.ParseDurationOrDefault("session.tick_interval", cfg.Session.TickInterval, time.Second)
	if err != nil {
		return session.Config{}, err
	}
	auto, err := config.ParseDurationOrDefault("session.checklist_auto_complete", cfg.Session.ChecklistAutoComplete, 2*time.Second)
	if err != nil {
		return session.Config{}, err
	}
	return session.Config{
		TickInterval:          tick,
		ChecklistAutoComplete: auto,
		AllowInfeasible:       cfg.Session.AllowInfeasible,
	}, nil
}

func mapDriftConfig(cfg *config.Config) (drift.Config, error) {
	threshold, err := config.ParseDurationOrDefault("drift.threshold", cfg.Drift.Threshold, 2*time.Minute)
	if err != nil {
		return drift.Config{}, err
	}
	minInterval, err := config.ParseDurationOrDefault("drift.min_interval", cfg.Drift.MinInterval, 5*time.Minute)
	if err != nil {
		return drift.Config{}, err
	}
	return drift.Config{
		Enabled:     cfg.Drift.Enabled,
		Threshold:   threshold,
		MinInterval: minInterval,
	}, nil
}

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return storage.Config{}, false, err
	}
	sc := storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
		Retention:   cfg.Storage.Retention,
	}
	enabled := sc.Driver != "" && sc.Driver != "none"
	return sc, enabled, nil
}

func storageChanged(prev, next *config.Config) (bool, error) {
	if prev == nil || next == nil {
		return false, nil
	}
	prevSC, prevOK, err := mapStorageConfig(prev)
	if err != nil {
		return false, err
	}
	nextSC, nextOK, err := mapStorageConfig(next)
	if err != nil {
		return false, err
	}
	return prevOK != nextOK || prevSC != nextSC, nil
}
