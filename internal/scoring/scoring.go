// Package scoring holds the pure arithmetic of the practice engine: weighted
// checklist scores, per-category sub-scores, cumulative means and the global
// rank ordering. Nothing here touches storage.
package scoring

import (
	"math"
	"sort"

	"osce-prep-service/internal/domain"
)

// MaxScore is the top of the grading scale.
const MaxScore = 10.0

// completedSet maps checklist item IDs to their submitted completion flag.
// Duplicate responses for the same item are ignored after the first one, and
// responses referencing items outside the checklist are dropped entirely.
func completedSet(items []domain.ChecklistItem, responses []domain.ItemResponse) map[int64]bool {
	known := make(map[int64]struct{}, len(items))
	for _, item := range items {
		known[item.ID] = struct{}{}
	}
	completed := make(map[int64]bool, len(responses))
	for _, r := range responses {
		if _, ok := known[r.ChecklistItemID]; !ok {
			continue
		}
		if _, seen := completed[r.ChecklistItemID]; seen {
			continue // first response wins
		}
		completed[r.ChecklistItemID] = r.Completed
	}
	return completed
}

// itemWeight applies the storage default: unset weights count as 1.
func itemWeight(item domain.ChecklistItem) float64 {
	if item.Weight > 0 {
		return item.Weight
	}
	return 1
}

// Score computes the overall weighted score on the 0-10 scale:
// (sum of weights of completed items / sum of all weights) * 10.
// An empty checklist scores 0.
func Score(items []domain.ChecklistItem, responses []domain.ItemResponse) float64 {
	completed := completedSet(items, responses)

	var totalWeight, earnedWeight float64
	for _, item := range items {
		w := itemWeight(item)
		totalWeight += w
		if completed[item.ID] {
			earnedWeight += w
		}
	}
	if totalWeight <= 0 {
		return 0
	}
	return clamp(earnedWeight / totalWeight * MaxScore)
}

// CategoryScores computes the per-category sub-score for every category
// represented among the checklist's items. Uncategorized items (CategoryID 0)
// contribute to no category.
func CategoryScores(items []domain.ChecklistItem, responses []domain.ItemResponse) map[int64]float64 {
	completed := completedSet(items, responses)

	type tally struct{ total, earned float64 }
	tallies := make(map[int64]*tally)
	for _, item := range items {
		if item.CategoryID == 0 {
			continue
		}
		t := tallies[item.CategoryID]
		if t == nil {
			t = &tally{}
			tallies[item.CategoryID] = t
		}
		w := itemWeight(item)
		t.total += w
		if completed[item.ID] {
			t.earned += w
		}
	}

	scores := make(map[int64]float64, len(tallies))
	for categoryID, t := range tallies {
		if t.total <= 0 {
			scores[categoryID] = 0
			continue
		}
		scores[categoryID] = clamp(t.earned / t.total * MaxScore)
	}
	return scores
}

// CumulativeMean folds one new sample into a running average where every
// historical sample keeps equal weight: (old*n + sample) / (n+1).
func CumulativeMean(oldScore float64, oldCount int, sample float64) float64 {
	if oldCount <= 0 {
		return sample
	}
	return (oldScore*float64(oldCount) + sample) / float64(oldCount+1)
}

// Mean averages attempt scores; zero attempts yield 0.
func Mean(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	var sum float64
	for _, s := range scores {
		sum += s
	}
	return sum / float64(len(scores))
}

// Rank sorts users by score descending, breaking ties by ascending user ID,
// and assigns 1-based ordinal ranks in place of any previous values. The
// ordering is deterministic, so recomputing over unchanged scores yields
// identical ranks.
func Rank(users []domain.RankedUser) []domain.RankedUser {
	ranked := make([]domain.RankedUser, len(users))
	copy(ranked, users)
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].UserID < ranked[j].UserID
	})
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}

// Round2 rounds half away from zero to two decimal places, the precision of
// the score columns in storage. All scores pass through this at persistence
// boundaries so in-memory and stored values agree.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(MaxScore, v))
}
