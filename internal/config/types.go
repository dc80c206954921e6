package config

import (
	"fmt"
	"strings"
	"time"

	"routined/pkg/logx"
)

// Config is the daemon configuration tree.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
// Unknown keys are rejected so typos surface on load instead of being
// silently ignored.
type Config struct {
	Logging LoggingConfig `json:"logging"`

	// Routines lists the YAML routine definition files to load.
	Routines []string `json:"routines"`

	Session   SessionConfig   `json:"session"`
	Autostart AutostartConfig `json:"autostart"`
	Drift     DriftConfig     `json:"drift,omitempty"`
	Storage   *StorageConfig  `json:"storage,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SessionConfig tunes live session behavior.
type SessionConfig struct {
	// TickInterval is the countdown cadence. Default "1s"; tests and
	// demos may speed it up.
	TickInterval string `json:"tick_interval,omitempty"`

	// ChecklistAutoComplete is the pause between the last checklist item
	// being checked and the task self-completing. Default "2s".
	ChecklistAutoComplete string `json:"checklist_auto_complete,omitempty"`

	// AllowInfeasible starts sessions even when the essential minimums
	// do not fit the budget. Default false: infeasible plans are
	// reported and the session does not begin.
	AllowInfeasible bool `json:"allow_infeasible,omitempty"`
}

// AutostartConfig controls cron-driven session starts.
type AutostartConfig struct {
	Enabled  bool   `json:"enabled"`
	Timezone string `json:"timezone,omitempty"` // IANA TZ, e.g. "Asia/Jakarta"

	// EndOfDay caps each autostarted session's time budget: the session
	// budget runs from its start time until this wall-clock time.
	// Format "HH:MM". Default "09:00".
	EndOfDay string `json:"end_of_day,omitempty"`
}

// DriftConfig controls behind-schedule alerting.
type DriftConfig struct {
	Enabled bool `json:"enabled"`

	// Threshold is how far behind plan a session must be before an
	// alert fires. Default "2m".
	Threshold string `json:"threshold,omitempty"`

	// MinInterval rate-limits alerts per session. Default "5m".
	MinInterval string `json:"min_interval,omitempty"`
}

// StorageConfig controls the optional completion-history store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./routined.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
	// Retention caps stored completion rows per routine; 0 keeps all.
	Retention int `json:"retention,omitempty"`
}

// Validate checks cross-field consistency and duration syntax. It is
// used both on initial load and by the watch loop before publishing.
func (c *Config) Validate() error {
	if len(c.Routines) == 0 {
		return fmt.Errorf("config: at least one routine file is required")
	}
	if _, err := ParseDurationOrDefault("session.tick_interval", c.Session.TickInterval, time.Second); err != nil {
		return err
	}
	if _, err := ParseDurationOrDefault("session.checklist_auto_complete", c.Session.ChecklistAutoComplete, 2*time.Second); err != nil {
		return err
	}
	if _, err := ParseDurationOrDefault("drift.threshold", c.Drift.Threshold, 2*time.Minute); err != nil {
		return err
	}
	if _, err := ParseDurationOrDefault("drift.min_interval", c.Drift.MinInterval, 5*time.Minute); err != nil {
		return err
	}
	if c.Autostart.EndOfDay != "" {
		if _, _, err := ParseHHMM(c.Autostart.EndOfDay); err != nil {
			return fmt.Errorf("autostart.end_of_day: %w", err)
		}
	}
	if c.Storage != nil {
		switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
		case "", "none", "file", "sqlite", "sqlite3":
		default:
			return fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver)
		}
		if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
			return err
		}
	}
	return nil
}

// LogxConfig maps the logging block onto pkg/logx.
func (c *Config) LogxConfig() logx.Config {
	return logx.Config{
		Level:   c.Logging.Level,
		Console: c.Logging.Console,
		File: logx.FileConfig{
			Enabled: c.Logging.File.Enabled,
			Path:    c.Logging.File.Path,
		},
	}
}
