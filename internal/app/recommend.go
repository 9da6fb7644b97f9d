package app

import (
	"context"
	"sort"

	"osce-prep-service/internal/domain"
)

// GetUserRecommendations selects up to limit scenarios for remediation:
// first distinct scenarios the user completed below the remediation
// threshold, worst score first, then unattempted scenarios (ID ascending) to
// fill the remainder. Read-only; runs against attempt history as it stands.
func (s *PracticeService) GetUserRecommendations(ctx context.Context, userID string, limit int) ([]domain.Scenario, error) {
	if limit <= 0 {
		return nil, nil
	}

	completed, err := s.attempts.GetUserCompletedAttempts(ctx, userID)
	if err != nil {
		return nil, err
	}
	sort.Slice(completed, func(i, j int) bool {
		if completed[i].Score != completed[j].Score {
			return completed[i].Score < completed[j].Score
		}
		return completed[i].ID < completed[j].ID
	})

	scenarioByChecklist := make(map[int64]domain.Scenario)
	resolve := func(checklistID int64) (domain.Scenario, bool) {
		if sc, ok := scenarioByChecklist[checklistID]; ok {
			return sc, true
		}
		checklist, err := s.content.GetChecklist(ctx, checklistID)
		if err != nil {
			return domain.Scenario{}, false
		}
		scenario, err := s.content.GetScenario(ctx, checklist.ScenarioID)
		if err != nil {
			return domain.Scenario{}, false
		}
		scenarioByChecklist[checklistID] = scenario
		return scenario, true
	}

	recommendations := make([]domain.Scenario, 0, limit)
	picked := make(map[int64]struct{})
	attempted := make(map[int64]struct{})
	for _, attempt := range completed {
		scenario, ok := resolve(attempt.ChecklistID)
		if !ok {
			continue // dangling content reference, nothing to recommend from it
		}
		attempted[scenario.ID] = struct{}{}
		if attempt.Score >= remediationThreshold {
			continue
		}
		if _, dup := picked[scenario.ID]; dup {
			continue
		}
		if len(recommendations) < limit {
			picked[scenario.ID] = struct{}{}
			recommendations = append(recommendations, scenario)
		}
	}

	if len(recommendations) < limit {
		all, err := s.content.GetAllScenarios(ctx)
		if err != nil {
			return nil, err
		}
		sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
		for _, scenario := range all {
			if len(recommendations) == limit {
				break
			}
			if _, seen := attempted[scenario.ID]; seen {
				continue
			}
			if _, dup := picked[scenario.ID]; dup {
				continue
			}
			picked[scenario.ID] = struct{}{}
			recommendations = append(recommendations, scenario)
		}
	}
	return recommendations, nil
}
