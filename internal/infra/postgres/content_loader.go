// Package postgres holds the engine's durable storage: a pgx loader for
// read-only exam content and a bun-backed store for everything the engine
// writes.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"osce-prep-service/internal/domain"
)

// ContentLoader reads exam content from Postgres. Content rows are immutable
// from the engine's point of view, so callers usually sit behind a cache.
type ContentLoader struct {
	pool *pgxpool.Pool
}

func NewContentLoader(pool *pgxpool.Pool) *ContentLoader {
	return &ContentLoader{pool: pool}
}

func (l *ContentLoader) GetChecklist(ctx context.Context, id int64) (domain.Checklist, error) {
	var c domain.Checklist
	err := l.pool.QueryRow(ctx,
		`SELECT id, title, COALESCE(description, ''), scenario_id, COALESCE(time_limit, 0)
		 FROM checklists WHERE id = $1`, id).
		Scan(&c.ID, &c.Title, &c.Description, &c.ScenarioID, &c.TimeLimit)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Checklist{}, domain.ErrChecklistNotFound
	}
	if err != nil {
		return domain.Checklist{}, fmt.Errorf("load checklist %d: %w", id, err)
	}
	return c, nil
}

func (l *ContentLoader) GetChecklistItems(ctx context.Context, checklistID int64) ([]domain.ChecklistItem, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT id, checklist_id, COALESCE(category_id, 0), description, weight
		 FROM checklist_items WHERE checklist_id = $1 ORDER BY id`, checklistID)
	if err != nil {
		return nil, fmt.Errorf("load checklist %d items: %w", checklistID, err)
	}
	defer rows.Close()

	var items []domain.ChecklistItem
	for rows.Next() {
		var item domain.ChecklistItem
		if err := rows.Scan(&item.ID, &item.ChecklistID, &item.CategoryID, &item.Description, &item.Weight); err != nil {
			return nil, fmt.Errorf("scan checklist item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (l *ContentLoader) GetScenario(ctx context.Context, id int64) (domain.Scenario, error) {
	var s domain.Scenario
	err := l.pool.QueryRow(ctx,
		`SELECT id, title, COALESCE(description, ''), specialty_id, difficulty
		 FROM scenarios WHERE id = $1`, id).
		Scan(&s.ID, &s.Title, &s.Description, &s.SpecialtyID, &s.Difficulty)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Scenario{}, domain.ErrScenarioNotFound
	}
	if err != nil {
		return domain.Scenario{}, fmt.Errorf("load scenario %d: %w", id, err)
	}
	return s, nil
}

func (l *ContentLoader) GetSpecialty(ctx context.Context, id int64) (domain.Specialty, error) {
	var s domain.Specialty
	err := l.pool.QueryRow(ctx,
		`SELECT id, name, code, COALESCE(description, '')
		 FROM specialties WHERE id = $1`, id).
		Scan(&s.ID, &s.Name, &s.Code, &s.Description)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Specialty{}, domain.ErrSpecialtyNotFound
	}
	if err != nil {
		return domain.Specialty{}, fmt.Errorf("load specialty %d: %w", id, err)
	}
	return s, nil
}

func (l *ContentLoader) GetAllScenarios(ctx context.Context) ([]domain.Scenario, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT id, title, COALESCE(description, ''), specialty_id, difficulty
		 FROM scenarios ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("load scenarios: %w", err)
	}
	defer rows.Close()

	var scenarios []domain.Scenario
	for rows.Next() {
		var s domain.Scenario
		if err := rows.Scan(&s.ID, &s.Title, &s.Description, &s.SpecialtyID, &s.Difficulty); err != nil {
			return nil, fmt.Errorf("scan scenario: %w", err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, rows.Err()
}

func (l *ContentLoader) ListSpecialties(ctx context.Context) ([]domain.Specialty, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT id, name, code, COALESCE(description, '')
		 FROM specialties ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("load specialties: %w", err)
	}
	defer rows.Close()

	var specialties []domain.Specialty
	for rows.Next() {
		var s domain.Specialty
		if err := rows.Scan(&s.ID, &s.Name, &s.Code, &s.Description); err != nil {
			return nil, fmt.Errorf("scan specialty: %w", err)
		}
		specialties = append(specialties, s)
	}
	return specialties, rows.Err()
}

func (l *ContentLoader) ListScenariosBySpecialty(ctx context.Context, specialtyID int64) ([]domain.Scenario, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT id, title, COALESCE(description, ''), specialty_id, difficulty
		 FROM scenarios WHERE specialty_id = $1 ORDER BY id`, specialtyID)
	if err != nil {
		return nil, fmt.Errorf("load specialty %d scenarios: %w", specialtyID, err)
	}
	defer rows.Close()

	var scenarios []domain.Scenario
	for rows.Next() {
		var s domain.Scenario
		if err := rows.Scan(&s.ID, &s.Title, &s.Description, &s.SpecialtyID, &s.Difficulty); err != nil {
			return nil, fmt.Errorf("scan scenario: %w", err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, rows.Err()
}

func (l *ContentLoader) ListChecklistsByScenario(ctx context.Context, scenarioID int64) ([]domain.Checklist, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT id, title, COALESCE(description, ''), scenario_id, COALESCE(time_limit, 0)
		 FROM checklists WHERE scenario_id = $1 ORDER BY id`, scenarioID)
	if err != nil {
		return nil, fmt.Errorf("load scenario %d checklists: %w", scenarioID, err)
	}
	defer rows.Close()

	var checklists []domain.Checklist
	for rows.Next() {
		var c domain.Checklist
		if err := rows.Scan(&c.ID, &c.Title, &c.Description, &c.ScenarioID, &c.TimeLimit); err != nil {
			return nil, fmt.Errorf("scan checklist: %w", err)
		}
		checklists = append(checklists, c)
	}
	return checklists, rows.Err()
}

func (l *ContentLoader) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT id, name, COALESCE(description, '') FROM categories ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("load categories: %w", err)
	}
	defer rows.Close()

	var categories []domain.Category
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}
