package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"routined/pkg/logx"
)

func TestOpenSQLiteRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := Open(Config{Driver: "sqlite"}, logx.Nop()); err == nil {
		t.Fatal("expected error for sqlite without a path")
	}
}

func TestSQLiteCompletionsRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	st, err := Open(Config{
		Driver:      "sqlite",
		Path:        filepath.Join(dir, "history.db"),
		BusyTimeout: time.Second,
	}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	base := time.Date(2026, 8, 31, 7, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		rec := CompletionRecord{
			SessionID:   "s1",
			Routine:     "morning",
			TaskID:      fmt.Sprintf("t%d", i),
			Name:        fmt.Sprintf("Task %d", i),
			Allocated:   10 * time.Minute,
			Actual:      time.Duration(i+1) * time.Minute,
			CompletedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := st.AppendCompletion(ctx, rec); err != nil {
			t.Fatalf("append completion %d: %v", i, err)
		}
	}
	// A second routine's history must stay out of the query below.
	other := CompletionRecord{SessionID: "s2", Routine: "evening", TaskID: "tidy", CompletedAt: base}
	if err := st.AppendCompletion(ctx, other); err != nil {
		t.Fatalf("append other routine: %v", err)
	}

	recs, err := st.RecentCompletions(ctx, "morning", 2)
	if err != nil {
		t.Fatalf("recent completions: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records with limit 2, got %d", len(recs))
	}
	if recs[0].TaskID != "t2" || recs[1].TaskID != "t1" {
		t.Fatalf("expected newest first, got %q then %q", recs[0].TaskID, recs[1].TaskID)
	}
	got := recs[0]
	if got.SessionID != "s1" || got.Name != "Task 2" || got.Allocated != 10*time.Minute || got.Actual != 3*time.Minute {
		t.Fatalf("unexpected record: %+v", got)
	}
	if !got.CompletedAt.Equal(base.Add(2 * time.Minute)) {
		t.Fatalf("completed_at = %v, want %v", got.CompletedAt, base.Add(2*time.Minute))
	}
}

func TestSQLiteRetentionPrunesPerRoutine(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	st, err := Open(Config{
		Driver:    "sqlite",
		Path:      filepath.Join(dir, "history.db"),
		Retention: 2,
	}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer st.Close()
	st.(*sqliteStore).pruneEvery = 1

	ctx := context.Background()
	base := time.Date(2026, 8, 31, 7, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		rec := CompletionRecord{
			SessionID:   "s1",
			Routine:     "morning",
			TaskID:      fmt.Sprintf("t%d", i),
			CompletedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := st.AppendCompletion(ctx, rec); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	if err := st.AppendCompletion(ctx, CompletionRecord{SessionID: "s2", Routine: "evening", TaskID: "tidy", CompletedAt: base}); err != nil {
		t.Fatalf("append other routine: %v", err)
	}

	recs, err := st.RecentCompletions(ctx, "morning", 50)
	if err != nil {
		t.Fatalf("recent completions: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("retention 2 should keep 2 rows, got %d", len(recs))
	}
	if recs[0].TaskID != "t4" || recs[1].TaskID != "t3" {
		t.Fatalf("expected the newest rows to survive, got %q then %q", recs[0].TaskID, recs[1].TaskID)
	}

	others, err := st.RecentCompletions(ctx, "evening", 50)
	if err != nil {
		t.Fatalf("recent completions (evening): %v", err)
	}
	if len(others) != 1 {
		t.Fatalf("pruning one routine must not touch another, got %d rows", len(others))
	}
}

func TestSQLiteSessionUpsert(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	st, err := Open(Config{Driver: "sqlite", Path: filepath.Join(dir, "history.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	ended := time.Date(2026, 8, 31, 8, 0, 0, 0, time.UTC)
	first := SessionRecord{
		SessionID:      "s1",
		Routine:        "morning",
		OffsetSeconds:  -30,
		CompletedCount: 1,
		TotalCount:     3,
		Aborted:        true,
		EndedAt:        ended,
	}
	if err := st.AppendSession(ctx, first); err != nil {
		t.Fatalf("first append: %v", err)
	}
	second := first
	second.OffsetSeconds = 45
	second.CompletedCount = 3
	second.Aborted = false
	second.EndedAt = ended.Add(5 * time.Minute)
	if err := st.AppendSession(ctx, second); err != nil {
		t.Fatalf("second append: %v", err)
	}

	db := st.(*sqliteStore).db
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&n); err != nil {
		t.Fatalf("count sessions: %v", err)
	}
	if n != 1 {
		t.Fatalf("same session id should upsert, got %d rows", n)
	}
	var offset int64
	var completed, aborted int
	row := db.QueryRowContext(ctx,
		`SELECT offset_seconds, completed_count, aborted FROM sessions WHERE session_id = ?`, "s1")
	if err := row.Scan(&offset, &completed, &aborted); err != nil {
		t.Fatalf("scan session: %v", err)
	}
	if offset != 45 || completed != 3 || aborted != 0 {
		t.Fatalf("upsert did not take the latest values: offset=%d completed=%d aborted=%d", offset, completed, aborted)
	}
}
