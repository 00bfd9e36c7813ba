package repository

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/iconidentify/tikgrabba/internal/domain"
)

func newTestHistory(t *testing.T) *SQLiteHistoryRepository {
	t.Helper()
	repo, err := NewSQLiteHistoryRepository(filepath.Join(t.TempDir(), "db", "history.db"))
	if err != nil {
		t.Fatalf("NewSQLiteHistoryRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSQLiteHistoryRepository_RoundTrip(t *testing.T) {
	repo := newTestHistory(t)
	ctx := context.Background()

	created := time.Date(2026, 3, 1, 12, 0, 0, 500, time.UTC)
	entry := domain.HistoryEntry{
		ID:         "h-1",
		Reference:  testRef,
		Flavor:     "ssstik",
		Stage:      domain.StageDone,
		Kind:       domain.ResultVideo,
		Quality:    domain.QualityHD,
		Files:      []string{"/tmp/tiktok_video_hd.mp4"},
		Bytes:      2048,
		Suspicious: true,
		CreatedAt:  created,
	}
	if err := repo.Record(ctx, entry); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	entries, err := repo.List(ctx, 10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	got := entries[0]
	if got.ID != "h-1" || got.Reference != testRef || got.Flavor != "ssstik" {
		t.Errorf("identity fields = %+v", got)
	}
	if got.Stage != domain.StageDone || got.Kind != domain.ResultVideo || got.Quality != domain.QualityHD {
		t.Errorf("result fields = %+v", got)
	}
	if len(got.Files) != 1 || got.Files[0] != "/tmp/tiktok_video_hd.mp4" {
		t.Errorf("Files = %v", got.Files)
	}
	if got.Bytes != 2048 || !got.Suspicious {
		t.Errorf("Bytes = %d, Suspicious = %v", got.Bytes, got.Suspicious)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, created)
	}
}

func TestSQLiteHistoryRepository_ListNewestFirst(t *testing.T) {
	repo := newTestHistory(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		err := repo.Record(ctx, domain.HistoryEntry{
			ID:        fmt.Sprintf("h-%d", i),
			Reference: testRef,
			Flavor:    "ssstik",
			Stage:     domain.StageFailed,
			Error:     "init: token not found",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("Record %d: %v", i, err)
		}
	}

	entries, err := repo.List(ctx, 3)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	for i, want := range []string{"h-4", "h-3", "h-2"} {
		if entries[i].ID != want {
			t.Errorf("entries[%d].ID = %q, want %q", i, entries[i].ID, want)
		}
	}
	if entries[0].Error != "init: token not found" {
		t.Errorf("Error = %q", entries[0].Error)
	}
	if entries[0].Files != nil {
		t.Errorf("Files = %v, want nil", entries[0].Files)
	}
}

func TestSQLiteHistoryRepository_Empty(t *testing.T) {
	repo := newTestHistory(t)

	entries, err := repo.List(context.Background(), 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if entries == nil || len(entries) != 0 {
		t.Errorf("entries = %v, want empty non-nil slice", entries)
	}
}

func TestSQLiteHistoryRepository_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	repo, err := NewSQLiteHistoryRepository(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	repo.Record(ctx, domain.HistoryEntry{ID: "h-1", Reference: testRef, Flavor: "ssstik", Stage: domain.StageDone})
	repo.Close()

	repo, err = NewSQLiteHistoryRepository(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer repo.Close()

	entries, _ := repo.List(ctx, 10)
	if len(entries) != 1 {
		t.Errorf("got %d entries after reopen, want 1", len(entries))
	}
}
