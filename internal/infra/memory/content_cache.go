package memory

import (
	"context"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"osce-prep-service/internal/app"
	"osce-prep-service/internal/domain"
)

// ContentCache caches checklists and their items with a TTL to avoid
// re-reading immutable content from the backing store on every completion.
// Scenario and specialty lookups pass through; they are single-row reads.
type ContentCache struct {
	source app.ContentRepository
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu    sync.RWMutex
	cache map[int64]cachedChecklist
}

type cachedChecklist struct {
	checklist domain.Checklist
	items     []domain.ChecklistItem
	expiresAt time.Time
}

func NewContentCache(source app.ContentRepository, ttl time.Duration) *ContentCache {
	return &ContentCache{
		source: source,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[int64]cachedChecklist),
	}
}

func (c *ContentCache) GetChecklist(ctx context.Context, id int64) (domain.Checklist, error) {
	entry, err := c.load(ctx, id)
	if err != nil {
		return domain.Checklist{}, err
	}
	return entry.checklist, nil
}

func (c *ContentCache) GetChecklistItems(ctx context.Context, checklistID int64) ([]domain.ChecklistItem, error) {
	entry, err := c.load(ctx, checklistID)
	if err != nil {
		return nil, err
	}
	return append([]domain.ChecklistItem(nil), entry.items...), nil
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

func (c *ContentCache) load(ctx context.Context, checklistID int64) (cachedChecklist, error) {
	now := c.clock()

	c.mu.RLock()
	if entry, ok := c.cache[checklistID]; ok && entry.expiresAt.After(now) {
		c.mu.RUnlock()
		return entry, nil
	}
	c.mu.RUnlock()

	result, err, _ := c.sf.Do(keyFor(checklistID), func() (interface{}, error) {
		now := c.clock()
		c.mu.RLock()
		if entry, ok := c.cache[checklistID]; ok && entry.expiresAt.After(now) {
			c.mu.RUnlock()
			return entry, nil
		}
		c.mu.RUnlock()

		checklist, err := c.source.GetChecklist(ctx, checklistID)
		if err != nil {
			return cachedChecklist{}, err
		}
		items, err := c.source.GetChecklistItems(ctx, checklistID)
		if err != nil {
			return cachedChecklist{}, err
		}

		entry := cachedChecklist{
			checklist: checklist,
			items:     items,
			expiresAt: now.Add(c.ttlWithJitter()),
		}
		c.mu.Lock()
		c.cache[checklistID] = entry
		c.mu.Unlock()
		return entry, nil
	})
	if err != nil {
		return cachedChecklist{}, err
	}
	return result.(cachedChecklist), nil
}

func keyFor(checklistID int64) string {
	return "checklist:" + strconv.FormatInt(checklistID, 10)
}

func (c *ContentCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
