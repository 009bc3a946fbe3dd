package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tamgam-edu/diya-core/internal/core/domain"
)

func TestJobStore_SaveAndGet(t *testing.T) {
	client, _ := setupTestRedis(t)
	store := NewJobStore(client, 0)
	ctx := context.Background()

	job := domain.NewIngestionJob(domain.JobKindSource, "transcript:7", true)
	if err := store.Save(ctx, job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.SourceKey != "transcript:7" || !got.Force || got.Status != domain.JobStatusNotStarted {
		t.Errorf("unexpected job %+v", got)
	}

	job.MarkProcessing()
	job.MarkCompleted(12, 1)
	if err := store.Save(ctx, job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ = store.Get(ctx, job.ID)
	if got.Status != domain.JobStatusCompleted || got.ProcessedCount != 12 || got.FailedEmbeddings != 1 {
		t.Errorf("expected completed job with counts, got %+v", got)
	}
}

func TestJobStore_Get_NotFound(t *testing.T) {
	client, _ := setupTestRedis(t)
	store := NewJobStore(client, 0)

	_, err := store.Get(context.Background(), "nope")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestJobStore_LatestForSource(t *testing.T) {
	client, _ := setupTestRedis(t)
	store := NewJobStore(client, 0)
	ctx := context.Background()

	if _, err := store.LatestForSource(ctx, "note:1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown source, got %v", err)
	}

	older := domain.NewIngestionJob(domain.JobKindSource, "note:1", false)
	older.CreatedAt = time.Now().Add(-time.Minute)
	newer := domain.NewIngestionJob(domain.JobKindSource, "note:1", true)

	// save newest first; re-saving the older one must not steal the index
	for _, j := range []*domain.IngestionJob{newer, older} {
		if err := store.Save(ctx, j); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	got, err := store.LatestForSource(ctx, "note:1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != newer.ID {
		t.Errorf("expected newest job %s, got %s", newer.ID, got.ID)
	}
}

func TestJobStore_LatestForSource_SkipsExpired(t *testing.T) {
	client, mr := setupTestRedis(t)
	store := NewJobStore(client, time.Hour)
	ctx := context.Background()

	older := domain.NewIngestionJob(domain.JobKindSource, "post:9", false)
	older.CreatedAt = time.Now().Add(-time.Minute)
	newer := domain.NewIngestionJob(domain.JobKindSource, "post:9", false)
	_ = store.Save(ctx, older)
	_ = store.Save(ctx, newer)

	mr.Del(jobPrefix + newer.ID)

	got, err := store.LatestForSource(ctx, "post:9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != older.ID {
		t.Errorf("expected fallback to older job, got %s", got.ID)
	}
}
