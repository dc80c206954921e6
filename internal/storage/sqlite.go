package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"routined/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger

	retention  int
	opCount    atomic.Uint64
	pruneEvery uint64
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log, retention: cfg.Retention, pruneEvery: 100}

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) AppendCompletion(ctx context.Context, rec CompletionRecord) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if rec.CompletedAt.IsZero() {
		rec.CompletedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO completions(session_id, routine, task_id, name, allocated_s, actual_s, completed_at)
		 VALUES(?,?,?,?,?,?,?)`,
		rec.SessionID, rec.Routine, rec.TaskID, rec.Name,
		int64(rec.Allocated/time.Second), int64(rec.Actual/time.Second),
		rec.CompletedAt.Format(time.RFC3339Nano),
	)
	if err == nil && s.retention > 0 && s.opCount.Add(1)%s.pruneEvery == 0 {
		pctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		if perr := s.pruneCompletions(pctx, rec.Routine); perr != nil {
			s.log.Debug("completion prune failed", logx.Err(perr))
		}
		cancel()
	}
	return err
}

func (s *sqliteStore) AppendSession(ctx context.Context, rec SessionRecord) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if rec.EndedAt.IsZero() {
		rec.EndedAt = time.Now()
	}
	aborted := 0
	if rec.Aborted {
		aborted = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions(session_id, routine, offset_seconds, completed_count, total_count, aborted, ended_at)
		 VALUES(?,?,?,?,?,?,?)
		 ON CONFLICT(session_id) DO UPDATE SET
		   offset_seconds=excluded.offset_seconds,
		   completed_count=excluded.completed_count,
		   aborted=excluded.aborted,
		   ended_at=excluded.ended_at`,
		rec.SessionID, rec.Routine, rec.OffsetSeconds, rec.CompletedCount, rec.TotalCount,
		aborted, rec.EndedAt.Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) RecentCompletions(ctx context.Context, routine string, limit int) ([]CompletionRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, routine, task_id, name, allocated_s, actual_s, completed_at
		 FROM completions WHERE routine = ?
		 ORDER BY completed_at DESC LIMIT ?`,
		routine, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CompletionRecord
	for rows.Next() {
		var rec CompletionRecord
		var allocatedS, actualS int64
		var completedAt string
		if err := rows.Scan(&rec.SessionID, &rec.Routine, &rec.TaskID, &rec.Name, &allocatedS, &actualS, &completedAt); err != nil {
			return nil, err
		}
		rec.Allocated = time.Duration(allocatedS) * time.Second
		rec.Actual = time.Duration(actualS) * time.Second
		if t, perr := time.Parse(time.RFC3339Nano, completedAt); perr == nil {
			rec.CompletedAt = t
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// pruneCompletions trims a routine's history down to the retention cap.
func (s *sqliteStore) pruneCompletions(ctx context.Context, routine string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM completions WHERE routine = ? AND id NOT IN (
		   SELECT id FROM completions WHERE routine = ? ORDER BY id DESC LIMIT ?
		 )`,
		routine, routine, s.retention,
	)
	return err
}
