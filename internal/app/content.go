package app

import (
	"context"

	"osce-prep-service/internal/domain"
)

// Content read surface. Thin delegations; content is read-only to the engine.

func (s *PracticeService) ListSpecialties(ctx context.Context) ([]domain.Specialty, error) {
	return s.content.ListSpecialties(ctx)
}

func (s *PracticeService) ListScenarios(ctx context.Context) ([]domain.Scenario, error) {
	return s.content.GetAllScenarios(ctx)
}

func (s *PracticeService) ListScenariosBySpecialty(ctx context.Context, specialtyID int64) ([]domain.Scenario, error) {
	return s.content.ListScenariosBySpecialty(ctx, specialtyID)
}

func (s *PracticeService) ListChecklistsByScenario(ctx context.Context, scenarioID int64) ([]domain.Checklist, error) {
	return s.content.ListChecklistsByScenario(ctx, scenarioID)
}

func (s *PracticeService) GetChecklistItems(ctx context.Context, checklistID int64) ([]domain.ChecklistItem, error) {
	return s.content.GetChecklistItems(ctx, checklistID)
}

func (s *PracticeService) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return s.content.ListCategories(ctx)
}
