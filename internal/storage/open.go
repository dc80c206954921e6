package storage

import (
	"context"
	"errors"
	"strings"

	"routined/pkg/logx"
)

// Store is the persistence API the session service writes through.
type Store interface {
	AppendCompletion(ctx context.Context, rec CompletionRecord) error
	AppendSession(ctx context.Context, rec SessionRecord) error
	// RecentCompletions returns the newest completions for a routine,
	// newest first. Drivers without query support return ErrDisabled.
	RecentCompletions(ctx context.Context, routine string, limit int) ([]CompletionRecord, error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
