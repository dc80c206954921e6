package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free JSONL backend
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	// Retention caps completion rows kept per routine (sqlite only);
	// 0 keeps everything.
	Retention int
}

// CompletionRecord is one finished task.
type CompletionRecord struct {
	SessionID   string        `json:"session_id"`
	Routine     string        `json:"routine"`
	TaskID      string        `json:"task_id"`
	Name        string        `json:"name"`
	Allocated   time.Duration `json:"allocated"`
	Actual      time.Duration `json:"actual"`
	CompletedAt time.Time     `json:"completed_at"`
}

// SessionRecord is one finished (or aborted) session.
type SessionRecord struct {
	SessionID      string    `json:"session_id"`
	Routine        string    `json:"routine"`
	OffsetSeconds  int64     `json:"offset_seconds"`
	CompletedCount int       `json:"completed_count"`
	TotalCount     int       `json:"total_count"`
	Aborted        bool      `json:"aborted"`
	EndedAt        time.Time `json:"ended_at"`
}
