package app_test

import (
	"context"
	"errors"
	"testing"

	"golang.org/x/sync/errgroup"

	"osce-prep-service/internal/app"
	"osce-prep-service/internal/domain"
	"osce-prep-service/internal/infra/memory"
)

// Content used across tests:
//   specialty 1 (PED), specialty 2 (SUR)
//   scenario 1 "A" and 2 "B" in specialty 1, scenario 3 "C" in specialty 2
//   checklist 1 -> scenario 1: five weight-1 items, all in category 10
//   checklist 2 -> scenario 1: four weight-1 uncategorized items
//   checklist 3 -> scenario 2: ten weight-1 uncategorized items
func newFixture() (*memory.Store, *app.PracticeService) {
	store := memory.NewStore()
	store.AddSpecialty(domain.Specialty{ID: 1, Name: "Pediatrics", Code: "PED"})
	store.AddSpecialty(domain.Specialty{ID: 2, Name: "Surgery", Code: "SUR"})
	store.AddScenario(domain.Scenario{ID: 1, Title: "A", SpecialtyID: 1, Difficulty: "easy"})
	store.AddScenario(domain.Scenario{ID: 2, Title: "B", SpecialtyID: 1, Difficulty: "medium"})
	store.AddScenario(domain.Scenario{ID: 3, Title: "C", SpecialtyID: 2, Difficulty: "hard"})
	store.AddCategory(domain.Category{ID: 10, Name: "Anamnesis"})

	items1 := make([]domain.ChecklistItem, 0, 5)
	for i := int64(11); i <= 15; i++ {
		items1 = append(items1, domain.ChecklistItem{ID: i, ChecklistID: 1, CategoryID: 10, Weight: 1})
	}
	store.AddChecklist(domain.Checklist{ID: 1, Title: "A full", ScenarioID: 1}, items1)

	items2 := make([]domain.ChecklistItem, 0, 4)
	for i := int64(21); i <= 24; i++ {
		items2 = append(items2, domain.ChecklistItem{ID: i, ChecklistID: 2, Weight: 1})
	}
	store.AddChecklist(domain.Checklist{ID: 2, Title: "A short", ScenarioID: 1}, items2)

	items3 := make([]domain.ChecklistItem, 0, 10)
	for i := int64(31); i <= 40; i++ {
		items3 = append(items3, domain.ChecklistItem{ID: i, ChecklistID: 3, Weight: 1})
	}
	store.AddChecklist(domain.Checklist{ID: 3, Title: "B full", ScenarioID: 2}, items3)

	return store, app.NewPracticeService(store, store, store, store)
}

// complete starts an attempt and finishes it with the first n items marked done.
func complete(t *testing.T, store *memory.Store, service *app.PracticeService, userID string, checklistID int64, n int) app.CompletionResult {
	t.Helper()
	ctx := context.Background()

	attempt, err := service.StartAttempt(ctx, userID, checklistID)
	if err != nil {
		t.Fatalf("start attempt: %v", err)
	}
	items, err := store.GetChecklistItems(ctx, checklistID)
	if err != nil {
		t.Fatalf("items: %v", err)
	}
	responses := make([]domain.ItemResponse, 0, len(items))
	for i, item := range items {
		responses = append(responses, domain.ItemResponse{ChecklistItemID: item.ID, Completed: i < n})
	}
	result, err := service.CompleteAttempt(ctx, userID, attempt.ID, responses)
	if err != nil {
		t.Fatalf("complete attempt: %v", err)
	}
	return result
}

func TestCompletionPipeline(t *testing.T) {
	ctx := context.Background()
	store, service := newFixture()
	store.AddUser(domain.User{ID: "u1"})

	result := complete(t, store, service, "u1", 1, 4)
	if result.Score != 8.0 {
		t.Fatalf("expected score 8.0, got %v", result.Score)
	}
	if len(result.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", result.Warnings)
	}

	attempt, err := service.GetAttempt(ctx, result.AttemptID)
	if err != nil || !attempt.Completed || attempt.Score != 8.0 {
		t.Fatalf("attempt not finalized: %+v err=%v", attempt, err)
	}

	cats, err := service.GetUserPerformanceMetrics(ctx, "u1")
	if err != nil || len(cats) != 1 {
		t.Fatalf("expected 1 category metric, got %+v err=%v", cats, err)
	}
	if cats[0].CategoryID != 10 || cats[0].Score != 8.0 || cats[0].AttemptCount != 1 {
		t.Fatalf("unexpected category metric %+v", cats[0])
	}

	specs, err := service.GetUserSpecialtyPerformance(ctx, "u1")
	if err != nil || len(specs) != 1 {
		t.Fatalf("expected 1 specialty metric, got %+v err=%v", specs, err)
	}
	if specs[0].SpecialtyID != 1 || specs[0].Score != 8.0 || specs[0].Attempts != 1 {
		t.Fatalf("unexpected specialty metric %+v", specs[0])
	}
	if !specs[0].LastAttempt.Equal(attempt.EndTime) {
		t.Fatalf("lastAttempt %v != endTime %v", specs[0].LastAttempt, attempt.EndTime)
	}

	user, err := store.GetUser(ctx, "u1")
	if err != nil || user.Score != 8.0 || user.PracticeCount != 1 || user.Rank != 1 {
		t.Fatalf("unexpected user aggregate %+v err=%v", user, err)
	}
}

func TestCategoryRunningAverage(t *testing.T) {
	ctx := context.Background()
	store, service := newFixture()
	store.AddUser(domain.User{ID: "u1"})

	// Category sub-scores 8, 6, 10 in sequence.
	complete(t, store, service, "u1", 1, 4)
	complete(t, store, service, "u1", 1, 3)
	complete(t, store, service, "u1", 1, 5)

	cats, err := service.GetUserPerformanceMetrics(ctx, "u1")
	if err != nil || len(cats) != 1 {
		t.Fatalf("metrics: %+v err=%v", cats, err)
	}
	if cats[0].Score != 8.0 || cats[0].AttemptCount != 3 {
		t.Fatalf("expected mean 8.0 over 3 attempts, got %+v", cats[0])
	}
}

func TestRecompletionRejected(t *testing.T) {
	ctx := context.Background()
	store, service := newFixture()
	store.AddUser(domain.User{ID: "u1"})

	result := complete(t, store, service, "u1", 1, 4)

	// A second invocation for the same attempt must not touch the averages.
	_, err := service.CompleteAttempt(ctx, "u1", result.AttemptID, []domain.ItemResponse{
		{ChecklistItemID: 11, Completed: true},
	})
	if !errors.Is(err, domain.ErrAttemptAlreadyCompleted) {
		t.Fatalf("expected already-completed error, got %v", err)
	}

	cats, _ := service.GetUserPerformanceMetrics(ctx, "u1")
	if len(cats) != 1 || cats[0].AttemptCount != 1 || cats[0].Score != 8.0 {
		t.Fatalf("metrics mutated by rejected completion: %+v", cats)
	}
}

func TestCompletionAuthorization(t *testing.T) {
	ctx := context.Background()
	store, service := newFixture()
	store.AddUser(domain.User{ID: "owner"})
	store.AddUser(domain.User{ID: "intruder"})
	store.AddUser(domain.User{ID: "root", IsAdmin: true})

	attempt, err := service.StartAttempt(ctx, "owner", 1)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	if _, err := service.CompleteAttempt(ctx, "intruder", attempt.ID, nil); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}

	// Admins may complete on behalf of the owner.
	if _, err := service.CompleteAttempt(ctx, "root", attempt.ID, nil); err != nil {
		t.Fatalf("admin completion failed: %v", err)
	}
}

func TestGlobalRanking(t *testing.T) {
	ctx := context.Background()
	store, service := newFixture()
	for _, id := range []string{"r1", "r2", "r3", "r4"} {
		store.AddUser(domain.User{ID: id})
	}

	complete(t, store, service, "r1", 3, 9) // 9.0
	complete(t, store, service, "r2", 2, 3) // 7.5
	complete(t, store, service, "r3", 2, 3) // 7.5
	complete(t, store, service, "r4", 3, 3) // 3.0

	ranking, err := service.GetUserRanking(ctx, 10)
	if err != nil {
		t.Fatalf("ranking: %v", err)
	}
	want := []struct {
		id   string
		rank int
	}{{"r1", 1}, {"r2", 2}, {"r3", 3}, {"r4", 4}}
	for i, w := range want {
		if ranking[i].ID != w.id || ranking[i].Rank != w.rank {
			t.Fatalf("position %d: expected %s rank %d, got %s rank %d",
				i, w.id, w.rank, ranking[i].ID, ranking[i].Rank)
		}
	}

	// Another completion with an unchanged score must reproduce the ranks.
	complete(t, store, service, "r4", 3, 3)
	again, _ := service.GetUserRanking(ctx, 10)
	for i, w := range want {
		if again[i].ID != w.id || again[i].Rank != w.rank {
			t.Fatalf("ranks not stable at %d: got %s rank %d", i, again[i].ID, again[i].Rank)
		}
	}
}

func TestConcurrentCompletionsSameUser(t *testing.T) {
	ctx := context.Background()
	store, service := newFixture()
	store.AddUser(domain.User{ID: "u1"})

	first, err := service.StartAttempt(ctx, "u1", 1)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	second, err := service.StartAttempt(ctx, "u1", 1)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	items, _ := store.GetChecklistItems(ctx, 1)
	responses := make([]domain.ItemResponse, 0, len(items))
	for i, item := range items {
		responses = append(responses, domain.ItemResponse{ChecklistItemID: item.ID, Completed: i < 4})
	}

	var g errgroup.Group
	for _, id := range []int64{first.ID, second.ID} {
		attemptID := id
		g.Go(func() error {
			_, err := service.CompleteAttempt(ctx, "u1", attemptID, responses)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent completion: %v", err)
	}

	cats, _ := service.GetUserPerformanceMetrics(ctx, "u1")
	if len(cats) != 1 || cats[0].AttemptCount != 2 {
		t.Fatalf("lost update: expected attemptCount 2, got %+v", cats)
	}
	if cats[0].Score != 8.0 {
		t.Fatalf("expected mean 8.0 from both attempts, got %v", cats[0].Score)
	}

	user, _ := store.GetUser(ctx, "u1")
	if user.PracticeCount != 2 || user.Score != 8.0 {
		t.Fatalf("user aggregate missed an attempt: %+v", user)
	}
}

func TestAggregationFailureSurfacesWithoutLosingScore(t *testing.T) {
	ctx := context.Background()
	store, service := newFixture()
	store.AddUser(domain.User{ID: "u1"})

	// Checklist pointing at a scenario that does not exist.
	store.AddChecklist(domain.Checklist{ID: 9, Title: "orphan", ScenarioID: 999}, []domain.ChecklistItem{
		{ID: 91, ChecklistID: 9, CategoryID: 10, Weight: 1},
		{ID: 92, ChecklistID: 9, CategoryID: 10, Weight: 1},
	})

	result := complete(t, store, service, "u1", 9, 1)
	if result.Score != 5.0 {
		t.Fatalf("score must persist despite aggregation failure, got %v", result.Score)
	}
	if len(result.Warnings) == 0 {
		t.Fatalf("expected aggregation warning")
	}

	// The specialty stage was skipped, the category stage still ran.
	specs, _ := service.GetUserSpecialtyPerformance(ctx, "u1")
	if len(specs) != 0 {
		t.Fatalf("specialty metric must not be written: %+v", specs)
	}
	cats, _ := service.GetUserPerformanceMetrics(ctx, "u1")
	if len(cats) != 1 || cats[0].Score != 5.0 {
		t.Fatalf("category metric missing: %+v", cats)
	}
}

func TestRecommendations(t *testing.T) {
	ctx := context.Background()
	store, service := newFixture()
	store.AddUser(domain.User{ID: "u1"})

	complete(t, store, service, "u1", 2, 2) // scenario 1 (A) at 5.0
	complete(t, store, service, "u1", 3, 9) // scenario 2 (B) at 9.0

	recs, err := service.GetUserRecommendations(ctx, "u1", 2)
	if err != nil {
		t.Fatalf("recommendations: %v", err)
	}
	if len(recs) != 2 || recs[0].ID != 1 || recs[1].ID != 3 {
		t.Fatalf("expected scenarios [1 3], got %+v", recs)
	}
}

func TestRecommendationsWithoutHistory(t *testing.T) {
	ctx := context.Background()
	store, service := newFixture()
	store.AddUser(domain.User{ID: "fresh"})

	recs, err := service.GetUserRecommendations(ctx, "fresh", 2)
	if err != nil {
		t.Fatalf("recommendations: %v", err)
	}
	if len(recs) != 2 || recs[0].ID != 1 || recs[1].ID != 2 {
		t.Fatalf("expected first two unattempted scenarios, got %+v", recs)
	}

	// Asking for more than exists returns what there is.
	all, err := service.GetUserRecommendations(ctx, "fresh", 10)
	if err != nil || len(all) != 3 {
		t.Fatalf("expected all 3 scenarios, got %+v err=%v", all, err)
	}
}

func TestSubscribeRankingReceivesUpdates(t *testing.T) {
	ctx := context.Background()
	store, service := newFixture()
	store.AddUser(domain.User{ID: "u1"})

	ch, cancel := service.SubscribeRanking(ctx)
	defer cancel()

	<-ch // initial snapshot

	complete(t, store, service, "u1", 1, 5)

	update := <-ch
	if len(update.Entries) != 1 || update.Entries[0].UserID != "u1" || update.Entries[0].Rank != 1 {
		t.Fatalf("expected u1 at rank 1, got %+v", update.Entries)
	}
	if update.Entries[0].Score != 10.0 {
		t.Fatalf("expected score 10.0, got %v", update.Entries[0].Score)
	}
}

func TestStartAttemptUnknownChecklist(t *testing.T) {
	_, service := newFixture()
	if _, err := service.StartAttempt(context.Background(), "u1", 404); !errors.Is(err, domain.ErrChecklistNotFound) {
		t.Fatalf("expected checklist-not-found, got %v", err)
	}
}
