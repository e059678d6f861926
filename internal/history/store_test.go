package history

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/hexfold/streamrelay/internal/config"
	"github.com/hexfold/streamrelay/internal/domain"
)

func testStore(t *testing.T) *Store {
	t.Helper()

	cfg := config.HistoryConfig{
		Enabled:       true,
		Path:          filepath.Join(t.TempDir(), "history.db"),
		RetentionDays: 30,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := NewStore(cfg, logger)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return store
}

func finishedSession(id domain.SessionID, bytes int64) *domain.Session {
	s := domain.NewSession(id, "https://video.example/watch?v=abc", "18", "clip.mp4", bytes)
	s.Activate()
	s.AddBytes(bytes)
	s.Complete()
	return s
}

func TestStore_RecordAndList(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	store.Record(ctx, finishedSession("dl_aaa", 1000))
	store.Record(ctx, finishedSession("dl_bbb", 2000))

	failed := domain.NewSession("dl_ccc", "https://video.example/v", "137", "v.mp4", 0)
	failed.Fail("upstream reset")
	store.Record(ctx, failed)

	entries, total, err := store.List(ctx, 50, 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}

	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}
	if len(entries) != 3 {
		t.Fatalf("len(entries) = %d, want 3", len(entries))
	}

	byID := make(map[string]Entry)
	for _, e := range entries {
		byID[e.SessionID] = e
	}

	if e := byID["dl_aaa"]; e.Status != "complete" || e.Bytes != 1000 {
		t.Errorf("dl_aaa = %+v, want complete/1000", e)
	}
	if e := byID["dl_ccc"]; e.Status != "failed" {
		t.Errorf("dl_ccc status = %q, want failed", e.Status)
	}
}

func TestStore_List_Pagination(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	for _, id := range []domain.SessionID{"dl_1", "dl_2", "dl_3"} {
		store.Record(ctx, finishedSession(id, 10))
	}

	entries, total, err := store.List(ctx, 2, 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}
	if len(entries) != 2 {
		t.Errorf("len(entries) = %d, want limit of 2", len(entries))
	}

	rest, _, err := store.List(ctx, 2, 2)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(rest) != 1 {
		t.Errorf("len(rest) = %d, want 1", len(rest))
	}
}

func TestStore_RecordIsIdempotentPerSession(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	s := finishedSession("dl_dup", 500)
	store.Record(ctx, s)
	store.Record(ctx, s)

	_, total, err := store.List(ctx, 50, 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if total != 1 {
		t.Errorf("total = %d, want 1 (insert or replace)", total)
	}
}

func TestStore_CleanupOld(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	store.Record(ctx, finishedSession("dl_new", 100))

	// Backdate one row past the retention cutoff.
	if _, err := store.db.Exec(
		`UPDATE transfers SET ended_at = ? WHERE session_id = ?`,
		time.Now().AddDate(0, 0, -60).Unix(), "dl_new",
	); err != nil {
		t.Fatalf("backdate: %v", err)
	}
	store.Record(ctx, finishedSession("dl_keep", 100))

	if err := store.CleanupOld(ctx); err != nil {
		t.Fatalf("CleanupOld failed: %v", err)
	}

	entries, total, err := store.List(ctx, 50, 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if total != 1 || entries[0].SessionID != "dl_keep" {
		t.Errorf("after cleanup got %d entries (%v), want only dl_keep", total, entries)
	}
}
