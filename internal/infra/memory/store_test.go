package memory

import (
	"context"
	"testing"
	"time"

	"osce-prep-service/internal/domain"
)

func TestAttemptLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	store.AddUser(domain.User{ID: "u1"})

	attempt, err := store.CreateAttempt(ctx, "u1", 1, time.Now())
	if err != nil {
		t.Fatalf("create attempt: %v", err)
	}
	if attempt.Completed {
		t.Fatalf("new attempt must be in progress")
	}

	end := time.Now()
	if err := store.FinalizeAttempt(ctx, attempt.ID, end, 7.5, []domain.Response{
		{AttemptID: attempt.ID, ChecklistItemID: 10, Completed: true},
	}); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	got, err := store.GetAttempt(ctx, attempt.ID)
	if err != nil {
		t.Fatalf("get attempt: %v", err)
	}
	if !got.Completed || got.Score != 7.5 {
		t.Fatalf("expected completed attempt with score 7.5, got %+v", got)
	}

	if err := store.FinalizeAttempt(ctx, attempt.ID, end, 9.0, nil); err != domain.ErrAttemptAlreadyCompleted {
		t.Fatalf("expected already-completed error, got %v", err)
	}

	completed, err := store.GetUserCompletedAttempts(ctx, "u1")
	if err != nil || len(completed) != 1 {
		t.Fatalf("expected 1 completed attempt, got %d (err %v)", len(completed), err)
	}
}

func TestMetricUpserts(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	if _, found, err := store.GetCategoryMetric(ctx, "u1", 1); err != nil || found {
		t.Fatalf("expected no metric, found=%v err=%v", found, err)
	}

	metric := domain.CategoryMetric{UserID: "u1", CategoryID: 1, Score: 8.0, AttemptCount: 1}
	if err := store.PutCategoryMetric(ctx, metric); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, found, err := store.GetCategoryMetric(ctx, "u1", 1)
	if err != nil || !found || got.Score != 8.0 {
		t.Fatalf("expected stored metric, got %+v found=%v err=%v", got, found, err)
	}

	metric.Score = 7.0
	metric.AttemptCount = 2
	if err := store.PutCategoryMetric(ctx, metric); err != nil {
		t.Fatalf("update: %v", err)
	}
	list, err := store.ListCategoryMetrics(ctx, "u1")
	if err != nil || len(list) != 1 || list[0].AttemptCount != 2 {
		t.Fatalf("expected single updated metric, got %+v err=%v", list, err)
	}
}

func TestRankWrites(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	store.AddUser(domain.User{ID: "u1", Score: 9.0})
	store.AddUser(domain.User{ID: "u2", Score: 4.0})

	if err := store.UpdateRanks(ctx, []domain.RankedUser{
		{UserID: "u1", Rank: 1},
		{UserID: "u2", Rank: 2},
	}); err != nil {
		t.Fatalf("update ranks: %v", err)
	}

	top, err := store.TopRanked(ctx, 10)
	if err != nil {
		t.Fatalf("top ranked: %v", err)
	}
	if len(top) != 2 || top[0].ID != "u1" || top[0].Rank != 1 || top[1].Rank != 2 {
		t.Fatalf("unexpected ranking order: %+v", top)
	}
}
