// Package redis backs the engine's content cache and leaderboard mirror with
// Redis. Storage remains authoritative; everything here is rebuildable.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"osce-prep-service/internal/app"
	"osce-prep-service/internal/domain"
)

// ContentCache caches checklist content in Redis so concurrent completions of
// the same checklist do not hammer Postgres. Layout:
//
//	SET  checklist:{id}        -> checklist JSON
//	HSET checklist:{id}:items  {itemID} {item JSON}
//
// Scenario/specialty lookups pass through to the source.
type ContentCache struct {
	client *redis.Client
	source app.ContentRepository
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewContentCache(client *redis.Client, source app.ContentRepository, ttl time.Duration) *ContentCache {
	return &ContentCache{
		client: client,
		source: source,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *ContentCache) GetChecklist(ctx context.Context, id int64) (domain.Checklist, error) {
	checklist, _, err := c.load(ctx, id)
	return checklist, err
}

func (c *ContentCache) GetChecklistItems(ctx context.Context, checklistID int64) ([]domain.ChecklistItem, error) {
	_, items, err := c.load(ctx, checklistID)
	return items, err
}

func (c *ContentCache) GetScenario(ctx context.Context, id int64) (domain.Scenario, error) {
	return c.source.GetScenario(ctx, id)
}

func (c *ContentCache) GetSpecialty(ctx context.Context, id int64) (domain.Specialty, error) {
	return c.source.GetSpecialty(ctx, id)
}

func (c *ContentCache) GetAllScenarios(ctx context.Context) ([]domain.Scenario, error) {
	return c.source.GetAllScenarios(ctx)
}

func (c *ContentCache) ListSpecialties(ctx context.Context) ([]domain.Specialty, error) {
	return c.source.ListSpecialties(ctx)
}

func (c *ContentCache) ListScenariosBySpecialty(ctx context.Context, specialtyID int64) ([]domain.Scenario, error) {
	return c.source.ListScenariosBySpecialty(ctx, specialtyID)
}

func (c *ContentCache) ListChecklistsByScenario(ctx context.Context, scenarioID int64) ([]domain.Checklist, error) {
	return c.source.ListChecklistsByScenario(ctx, scenarioID)
}

func (c *ContentCache) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return c.source.ListCategories(ctx)
}

func (c *ContentCache) load(ctx context.Context, checklistID int64) (domain.Checklist, []domain.ChecklistItem, error) {
	if checklist, items, ok := c.fromCache(ctx, checklistID); ok {
		return checklist, items, nil
	}

	type payload struct {
		checklist domain.Checklist
		items     []domain.ChecklistItem
	}
	result, err, _ := c.sf.Do(c.checklistKey(checklistID), func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if checklist, items, ok := c.fromCache(ctx, checklistID); ok {
			return payload{checklist, items}, nil
		}

		checklist, err := c.source.GetChecklist(ctx, checklistID)
		if err != nil {
			return payload{}, err
		}
		items, err := c.source.GetChecklistItems(ctx, checklistID)
		if err != nil {
			return payload{}, err
		}
		c.fill(ctx, checklist, items)
		return payload{checklist, items}, nil
	})
	if err != nil {
		return domain.Checklist{}, nil, err
	}
	p := result.(payload)
	return p.checklist, p.items, nil
}

func (c *ContentCache) fromCache(ctx context.Context, checklistID int64) (domain.Checklist, []domain.ChecklistItem, bool) {
	raw, err := c.client.Get(ctx, c.checklistKey(checklistID)).Result()
	if err != nil {
		return domain.Checklist{}, nil, false
	}
	var checklist domain.Checklist
	if err := json.Unmarshal([]byte(raw), &checklist); err != nil {
		return domain.Checklist{}, nil, false
	}

	fields, err := c.client.HGetAll(ctx, c.itemsKey(checklistID)).Result()
	if err != nil {
		return domain.Checklist{}, nil, false
	}
	items := make([]domain.ChecklistItem, 0, len(fields))
	for _, encoded := range fields {
		var item domain.ChecklistItem
		if err := json.Unmarshal([]byte(encoded), &item); err != nil {
			return domain.Checklist{}, nil, false
		}
		items = append(items, item)
	}
	return checklist, items, true
}

// fill writes the cache entry best-effort; a failed write just means the next
// read goes back to the source.
func (c *ContentCache) fill(ctx context.Context, checklist domain.Checklist, items []domain.ChecklistItem) {
	encoded, err := json.Marshal(checklist)
	if err != nil {
		return
	}

	ttl := c.ttlWithJitter()
	pipe := c.client.Pipeline()
	pipe.Set(ctx, c.checklistKey(checklist.ID), encoded, ttl)
	for _, item := range items {
		data, err := json.Marshal(item)
		if err != nil {
			continue
		}
		pipe.HSet(ctx, c.itemsKey(checklist.ID), strconv.FormatInt(item.ID, 10), data)
	}
	if ttl > 0 {
		pipe.Expire(ctx, c.itemsKey(checklist.ID), ttl)
	}
	_, _ = pipe.Exec(ctx)
}

func (c *ContentCache) checklistKey(id int64) string {
	return fmt.Sprintf("checklist:%d", id)
}

func (c *ContentCache) itemsKey(id int64) string {
	return fmt.Sprintf("checklist:%d:items", id)
}

func (c *ContentCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
