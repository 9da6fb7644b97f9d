package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"osce-prep-service/internal/app"
	"osce-prep-service/internal/domain"
	"osce-prep-service/internal/infra/memory"
)

func TestContentCacheCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	source := &countingContent{ContentRepository: fixtureStore()}
	cache := NewContentCache(newClient(mr), source, time.Minute)
	ctx := context.Background()

	items, err := cache.GetChecklistItems(ctx, 1)
	if err != nil {
		t.Fatalf("get items: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if source.calls != 1 {
		t.Fatalf("expected source hit once, got %d", source.calls)
	}
	if !mr.Exists("checklist:1") || !mr.Exists("checklist:1:items") {
		t.Fatalf("expected redis keys to be set")
	}

	// Second read comes from Redis, source not touched again.
	if _, err := cache.GetChecklist(ctx, 1); err != nil {
		t.Fatalf("get checklist: %v", err)
	}
	if source.calls != 1 {
		t.Fatalf("expected cache hit, source calls %d", source.calls)
	}
}

func TestContentCacheMissesFallThrough(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	cache := NewContentCache(newClient(mr), fixtureStore(), time.Minute)
	if _, err := cache.GetChecklist(context.Background(), 42); err != domain.ErrChecklistNotFound {
		t.Fatalf("expected checklist-not-found from source, got %v", err)
	}
}

type countingContent struct {
	app.ContentRepository
	calls int
}

func (c *countingContent) GetChecklist(ctx context.Context, id int64) (domain.Checklist, error) {
	c.calls++
	return c.ContentRepository.GetChecklist(ctx, id)
}

func fixtureStore() *memory.Store {
	store := memory.NewStore()
	store.AddSpecialty(domain.Specialty{ID: 1, Name: "Pediatrics", Code: "PED"})
	store.AddScenario(domain.Scenario{ID: 1, Title: "Febrile infant", SpecialtyID: 1, Difficulty: "medium"})
	store.AddChecklist(domain.Checklist{ID: 1, Title: "Febrile infant workup", ScenarioID: 1}, []domain.ChecklistItem{
		{ID: 1, ChecklistID: 1, CategoryID: 1, Description: "Ask about fever onset", Weight: 1},
		{ID: 2, ChecklistID: 1, CategoryID: 2, Description: "Check fontanelle", Weight: 2},
	})
	return store
}
