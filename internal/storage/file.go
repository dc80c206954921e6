package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"routined/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.completions.jsonl (append-only JSON Lines)
//   - <prefix>.sessions.jsonl    (append-only JSON Lines)
//
// It is write-only; history queries need the sqlite driver.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	completionsFile *os.File
	sessionsFile    *os.File
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	cf, err := os.OpenFile(prefix+".completions.jsonl", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	sf, err := os.OpenFile(prefix+".sessions.jsonl", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		_ = cf.Close()
		return nil, err
	}

	return &fileStore{log: log, completionsFile: cf, sessionsFile: sf}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err1, err2 error
	if s.completionsFile != nil {
		err1 = s.completionsFile.Close()
		s.completionsFile = nil
	}
	if s.sessionsFile != nil {
		err2 = s.sessionsFile.Close()
		s.sessionsFile = nil
	}
	if err1 != nil {
		return err1
	}
	return err2
}

func (s *fileStore) AppendCompletion(ctx context.Context, rec CompletionRecord) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.completionsFile == nil {
		return errors.New("completions file closed")
	}
	return json.NewEncoder(s.completionsFile).Encode(rec)
}

func (s *fileStore) AppendSession(ctx context.Context, rec SessionRecord) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessionsFile == nil {
		return errors.New("sessions file closed")
	}
	return json.NewEncoder(s.sessionsFile).Encode(rec)
}

func (s *fileStore) RecentCompletions(ctx context.Context, routine string, limit int) ([]CompletionRecord, error) {
	_, _, _ = ctx, routine, limit
	return nil, ErrDisabled
}
