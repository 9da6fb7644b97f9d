package postgres

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"osce-prep-service/internal/domain"
)

type specialtyRow struct {
	bun.BaseModel `bun:"table:specialties"`

	ID          int64  `bun:"id,pk"`
	Name        string `bun:"name"`
	Code        string `bun:"code"`
	Description string `bun:"description,nullzero"`
}

type scenarioRow struct {
	bun.BaseModel `bun:"table:scenarios"`

	ID          int64  `bun:"id,pk"`
	Title       string `bun:"title"`
	Description string `bun:"description,nullzero"`
	SpecialtyID int64  `bun:"specialty_id"`
	Difficulty  string `bun:"difficulty"`
}

type categoryRow struct {
	bun.BaseModel `bun:"table:categories"`

	ID          int64  `bun:"id,pk"`
	Name        string `bun:"name"`
	Description string `bun:"description,nullzero"`
}

type checklistRow struct {
	bun.BaseModel `bun:"table:checklists"`

	ID          int64  `bun:"id,pk"`
	Title       string `bun:"title"`
	Description string `bun:"description,nullzero"`
	ScenarioID  int64  `bun:"scenario_id"`
	TimeLimit   int    `bun:"time_limit,nullzero"`
}

type checklistItemRow struct {
	bun.BaseModel `bun:"table:checklist_items"`

	ID          int64   `bun:"id,pk"`
	ChecklistID int64   `bun:"checklist_id"`
	CategoryID  int64   `bun:"category_id,nullzero"`
	Description string  `bun:"description"`
	Weight      float64 `bun:"weight"`
}

// ContentSet is a bundle of practice content inserted as one unit.
type ContentSet struct {
	Specialties []domain.Specialty
	Scenarios   []domain.Scenario
	Categories  []domain.Category
	Checklists  []domain.Checklist
	Items       []domain.ChecklistItem
}

// SeedContent inserts the bundle, skipping rows that already exist so the
// seed command stays idempotent.
func (s *Store) SeedContent(ctx context.Context, set ContentSet) error {
	for _, sp := range set.Specialties {
		row := specialtyRow{ID: sp.ID, Name: sp.Name, Code: sp.Code, Description: sp.Description}
		if _, err := s.db.NewInsert().Model(&row).On("CONFLICT (id) DO NOTHING").Exec(ctx); err != nil {
			return fmt.Errorf("insert specialty %d: %w", sp.ID, err)
		}
	}
	for _, c := range set.Categories {
		row := categoryRow{ID: c.ID, Name: c.Name, Description: c.Description}
		if _, err := s.db.NewInsert().Model(&row).On("CONFLICT (id) DO NOTHING").Exec(ctx); err != nil {
			return fmt.Errorf("insert category %d: %w", c.ID, err)
		}
	}
	for _, sc := range set.Scenarios {
		row := scenarioRow{ID: sc.ID, Title: sc.Title, Description: sc.Description, SpecialtyID: sc.SpecialtyID, Difficulty: sc.Difficulty}
		if _, err := s.db.NewInsert().Model(&row).On("CONFLICT (id) DO NOTHING").Exec(ctx); err != nil {
			return fmt.Errorf("insert scenario %d: %w", sc.ID, err)
		}
	}
	for _, cl := range set.Checklists {
		row := checklistRow{ID: cl.ID, Title: cl.Title, Description: cl.Description, ScenarioID: cl.ScenarioID, TimeLimit: cl.TimeLimit}
		if _, err := s.db.NewInsert().Model(&row).On("CONFLICT (id) DO NOTHING").Exec(ctx); err != nil {
			return fmt.Errorf("insert checklist %d: %w", cl.ID, err)
		}
	}
	for _, item := range set.Items {
		row := checklistItemRow{ID: item.ID, ChecklistID: item.ChecklistID, CategoryID: item.CategoryID, Description: item.Description, Weight: item.Weight}
		if _, err := s.db.NewInsert().Model(&row).On("CONFLICT (id) DO NOTHING").Exec(ctx); err != nil {
			return fmt.Errorf("insert checklist item %d: %w", item.ID, err)
		}
	}
	return nil
}
