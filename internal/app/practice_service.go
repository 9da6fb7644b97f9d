package app

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"osce-prep-service/internal/domain"
	"osce-prep-service/internal/metrics"
	"osce-prep-service/internal/scoring"
)

// remediationThreshold is the score below which a completed scenario is
// considered an area for improvement.
const remediationThreshold = 7.0

// feedLimit caps the leaderboard snapshot pushed to ranking subscribers.
const feedLimit = 50

// ContentRepository loads exam content (checklists, items, scenarios,
// specialties) from cache/backing store. Content is read-only to the engine.
type ContentRepository interface {
	GetChecklist(ctx context.Context, id int64) (domain.Checklist, error)
	GetChecklistItems(ctx context.Context, checklistID int64) ([]domain.ChecklistItem, error)
	GetScenario(ctx context.Context, id int64) (domain.Scenario, error)
	GetSpecialty(ctx context.Context, id int64) (domain.Specialty, error)
	GetAllScenarios(ctx context.Context) ([]domain.Scenario, error)
	ListSpecialties(ctx context.Context) ([]domain.Specialty, error)
	ListScenariosBySpecialty(ctx context.Context, specialtyID int64) ([]domain.Scenario, error)
	ListChecklistsByScenario(ctx context.Context, scenarioID int64) ([]domain.Checklist, error)
	ListCategories(ctx context.Context) ([]domain.Category, error)
}

// AttemptRepository owns the attempt/response lifecycle.
type AttemptRepository interface {
	CreateAttempt(ctx context.Context, userID string, checklistID int64, startTime time.Time) (domain.Attempt, error)
	GetAttempt(ctx context.Context, id int64) (domain.Attempt, error)
	GetUserCompletedAttempts(ctx context.Context, userID string) ([]domain.Attempt, error)
	GetUserRecentAttempts(ctx context.Context, userID string, limit int) ([]domain.Attempt, error)
	// FinalizeAttempt stores the responses and flips the attempt to completed
	// with its score and end time, atomically where the store allows.
	FinalizeAttempt(ctx context.Context, id int64, endTime time.Time, score float64, responses []domain.Response) error
}

// PerformanceRepository stores per-category and per-specialty aggregates.
type PerformanceRepository interface {
	GetCategoryMetric(ctx context.Context, userID string, categoryID int64) (domain.CategoryMetric, bool, error)
	PutCategoryMetric(ctx context.Context, m domain.CategoryMetric) error
	ListCategoryMetrics(ctx context.Context, userID string) ([]domain.CategoryMetric, error)
	GetSpecialtyMetric(ctx context.Context, userID string, specialtyID int64) (domain.SpecialtyMetric, bool, error)
	PutSpecialtyMetric(ctx context.Context, m domain.SpecialtyMetric) error
	ListSpecialtyMetrics(ctx context.Context, userID string) ([]domain.SpecialtyMetric, error)
}

// UserRepository reads users and writes the aggregate fields the engine owns.
type UserRepository interface {
	GetUser(ctx context.Context, id string) (domain.User, error)
	UpdateUserAggregate(ctx context.Context, id string, score float64, practiceCount int) error
	ListUserScores(ctx context.Context) ([]domain.RankedUser, error)
	UpdateRanks(ctx context.Context, ranked []domain.RankedUser) error
	TopRanked(ctx context.Context, limit int) ([]domain.User, error)
}

// RankingMirror receives the recomputed leaderboard for fast reads (Redis ZSET).
// Publishing is best-effort; storage stays authoritative.
type RankingMirror interface {
	Publish(ctx context.Context, entries []domain.RankedUser) error
}

// PracticeService contains the scoring-engine use cases: attempt completion
// with its aggregation pipeline, performance reads, ranking and
// recommendations.
type PracticeService struct {
	content  ContentRepository
	attempts AttemptRepository
	perf     PerformanceRepository
	users    UserRepository
	mirror   RankingMirror

	feed  *rankingFeed
	locks *userLocks
	// rankMu serializes full-table rank rewrites against each other; per-user
	// scoring pipelines only contend on it for the final rank step.
	rankMu sync.Mutex
	clock  func() time.Time
}

func NewPracticeService(content ContentRepository, attempts AttemptRepository, perf PerformanceRepository, users UserRepository) *PracticeService {
	return NewPracticeServiceWithClock(content, attempts, perf, users, time.Now)
}

// NewPracticeServiceWithClock is test-only for deterministic timestamps.
func NewPracticeServiceWithClock(content ContentRepository, attempts AttemptRepository, perf PerformanceRepository, users UserRepository, now func() time.Time) *PracticeService {
	return &PracticeService{
		content:  content,
		attempts: attempts,
		perf:     perf,
		users:    users,
		feed:     newRankingFeed(now),
		locks:    newUserLocks(),
		clock:    now,
	}
}

// UseRankingMirror attaches an optional leaderboard mirror.
func (s *PracticeService) UseRankingMirror(m RankingMirror) {
	s.mirror = m
}

// CompletionResult is what an attempt completion returns to the caller.
// Warnings hold aggregation failures that occurred after the score was
// persisted; the score itself is final either way.
type CompletionResult struct {
	AttemptID int64    `json:"attemptId"`
	Score     float64  `json:"score"`
	Warnings  []string `json:"warnings,omitempty"`
}

// StartAttempt creates an in-progress attempt for the checklist.
func (s *PracticeService) StartAttempt(ctx context.Context, userID string, checklistID int64) (domain.Attempt, error) {
	if _, err := s.content.GetChecklist(ctx, checklistID); err != nil {
		return domain.Attempt{}, err
	}
	return s.attempts.CreateAttempt(ctx, userID, checklistID, s.clock())
}

// GetAttempt returns a single attempt record.
func (s *PracticeService) GetAttempt(ctx context.Context, id int64) (domain.Attempt, error) {
	return s.attempts.GetAttempt(ctx, id)
}

// GetUserRecentAttempts returns the user's latest attempts, newest first.
func (s *PracticeService) GetUserRecentAttempts(ctx context.Context, userID string, limit int) ([]domain.Attempt, error) {
	return s.attempts.GetUserRecentAttempts(ctx, userID, limit)
}

// CompleteAttempt scores an attempt against its checklist and runs the
// aggregation pipeline: responses persisted, attempt finalized, category and
// specialty metrics folded in, user aggregate recomputed, global ranks
// rewritten. The whole pipeline is serialized per user; aggregation failures
// after the score is persisted come back as warnings, never as a rollback.
func (s *PracticeService) CompleteAttempt(ctx context.Context, actorID string, attemptID int64, responses []domain.ItemResponse) (CompletionResult, error) {
	attempt, err := s.attempts.GetAttempt(ctx, attemptID)
	if err != nil {
		return CompletionResult{}, err
	}

	if actorID != attempt.UserID {
		actor, err := s.users.GetUser(ctx, actorID)
		if err != nil || !actor.IsAdmin {
			return CompletionResult{}, domain.ErrUnauthorized
		}
	}

	unlock := s.locks.lock(attempt.UserID)
	defer unlock()

	// Re-read inside the critical section: a concurrent completion of the
	// same attempt must observe the completed flag.
	attempt, err = s.attempts.GetAttempt(ctx, attemptID)
	if err != nil {
		return CompletionResult{}, err
	}
	if attempt.Completed {
		return CompletionResult{}, domain.ErrAttemptAlreadyCompleted
	}

	checklist, err := s.content.GetChecklist(ctx, attempt.ChecklistID)
	if err != nil {
		return CompletionResult{}, err
	}
	items, err := s.content.GetChecklistItems(ctx, attempt.ChecklistID)
	if err != nil {
		return CompletionResult{}, err
	}

	score := scoring.Round2(scoring.Score(items, responses))
	endTime := s.clock()

	stored := make([]domain.Response, 0, len(responses))
	for _, r := range responses {
		stored = append(stored, domain.Response{
			AttemptID:       attemptID,
			ChecklistItemID: r.ChecklistItemID,
			Completed:       r.Completed,
		})
	}
	if err := s.attempts.FinalizeAttempt(ctx, attemptID, endTime, score, stored); err != nil {
		return CompletionResult{}, fmt.Errorf("finalize attempt: %w", err)
	}
	metrics.CompletionsTotal.Inc()

	attempt.EndTime = endTime
	attempt.Score = score
	attempt.Completed = true

	result := CompletionResult{AttemptID: attemptID, Score: score}
	for _, aggErr := range s.aggregate(ctx, attempt, checklist, items, responses) {
		log.Printf("attempt %d: %v", attemptID, aggErr)
		metrics.AggregationWarningsTotal.WithLabelValues(aggErr.Stage).Inc()
		result.Warnings = append(result.Warnings, aggErr.Error())
	}
	return result, nil
}

// aggregate runs the bookkeeping stages that follow a persisted score. Each
// stage failing is collected, not fatal, so a broken category row can never
// cost the user their grade.
func (s *PracticeService) aggregate(ctx context.Context, attempt domain.Attempt, checklist domain.Checklist, items []domain.ChecklistItem, responses []domain.ItemResponse) []*domain.AggregationError {
	var failures []*domain.AggregationError
	fail := func(stage string, err error) {
		failures = append(failures, &domain.AggregationError{Stage: stage, Err: err})
	}

	if err := s.updateCategoryMetrics(ctx, attempt, items, responses); err != nil {
		fail("category", err)
	}
	if err := s.updateSpecialtyMetric(ctx, attempt, checklist); err != nil {
		fail("specialty", err)
	}
	if err := s.updateUserAggregate(ctx, attempt.UserID); err != nil {
		fail("user", err)
	} else if err := s.recomputeRanks(ctx); err != nil {
		fail("ranking", err)
	}
	return failures
}

// updateCategoryMetrics folds this attempt's per-category sub-scores into the
// running averages. Invoked exactly once per completed attempt; the completed
// flag check upstream guards re-invocation.
func (s *PracticeService) updateCategoryMetrics(ctx context.Context, attempt domain.Attempt, items []domain.ChecklistItem, responses []domain.ItemResponse) error {
	subScores := scoring.CategoryScores(items, responses)

	categoryIDs := make([]int64, 0, len(subScores))
	for id := range subScores {
		categoryIDs = append(categoryIDs, id)
	}
	sort.Slice(categoryIDs, func(i, j int) bool { return categoryIDs[i] < categoryIDs[j] })

	for _, categoryID := range categoryIDs {
		metric, found, err := s.perf.GetCategoryMetric(ctx, attempt.UserID, categoryID)
		if err != nil {
			return fmt.Errorf("load category %d metric: %w", categoryID, err)
		}
		if !found {
			metric = domain.CategoryMetric{UserID: attempt.UserID, CategoryID: categoryID}
		}
		metric.Score = scoring.Round2(scoring.CumulativeMean(metric.Score, metric.AttemptCount, subScores[categoryID]))
		metric.AttemptCount++
		metric.UpdatedAt = s.clock()
		if err := s.perf.PutCategoryMetric(ctx, metric); err != nil {
			return fmt.Errorf("store category %d metric: %w", categoryID, err)
		}
	}
	return nil
}

// updateSpecialtyMetric folds the attempt's overall score into the running
// average for the scenario's specialty. If the scenario or specialty cannot
// be resolved the update is skipped and surfaced.
func (s *PracticeService) updateSpecialtyMetric(ctx context.Context, attempt domain.Attempt, checklist domain.Checklist) error {
	scenario, err := s.content.GetScenario(ctx, checklist.ScenarioID)
	if err != nil {
		return fmt.Errorf("resolve scenario %d: %w", checklist.ScenarioID, err)
	}
	if _, err := s.content.GetSpecialty(ctx, scenario.SpecialtyID); err != nil {
		return fmt.Errorf("resolve specialty %d: %w", scenario.SpecialtyID, err)
	}

	metric, found, err := s.perf.GetSpecialtyMetric(ctx, attempt.UserID, scenario.SpecialtyID)
	if err != nil {
		return fmt.Errorf("load specialty metric: %w", err)
	}
	if !found {
		metric = domain.SpecialtyMetric{UserID: attempt.UserID, SpecialtyID: scenario.SpecialtyID}
	}
	metric.Score = scoring.Round2(scoring.CumulativeMean(metric.Score, metric.Attempts, attempt.Score))
	metric.Attempts++
	metric.LastAttempt = attempt.EndTime
	if err := s.perf.PutSpecialtyMetric(ctx, metric); err != nil {
		return fmt.Errorf("store specialty metric: %w", err)
	}
	return nil
}

// updateUserAggregate recomputes the user's overall score from the full set
// of completed attempts rather than incrementally, so it stays correct even
// if a previous pipeline run failed midway.
func (s *PracticeService) updateUserAggregate(ctx context.Context, userID string) error {
	completed, err := s.attempts.GetUserCompletedAttempts(ctx, userID)
	if err != nil {
		return fmt.Errorf("load completed attempts: %w", err)
	}
	if len(completed) == 0 {
		return nil
	}
	scores := make([]float64, len(completed))
	for i, a := range completed {
		scores[i] = a.Score
	}
	if err := s.users.UpdateUserAggregate(ctx, userID, scoring.Round2(scoring.Mean(scores)), len(completed)); err != nil {
		return fmt.Errorf("store user aggregate: %w", err)
	}
	return nil
}

// recomputeRanks rewrites every user's rank from scratch. O(n log n) per
// completion; fine at thousands of users. Batch this if throughput ever
// becomes a concern.
func (s *PracticeService) recomputeRanks(ctx context.Context) error {
	s.rankMu.Lock()
	defer s.rankMu.Unlock()

	start := time.Now()
	defer func() { metrics.RankRecomputeSeconds.Observe(time.Since(start).Seconds()) }()

	users, err := s.users.ListUserScores(ctx)
	if err != nil {
		return fmt.Errorf("list user scores: %w", err)
	}
	ranked := scoring.Rank(users)
	if err := s.users.UpdateRanks(ctx, ranked); err != nil {
		return fmt.Errorf("store ranks: %w", err)
	}

	if s.mirror != nil {
		if err := s.mirror.Publish(ctx, ranked); err != nil {
			log.Printf("leaderboard mirror publish failed: %v", err)
		}
	}

	top := ranked
	if len(top) > feedLimit {
		top = top[:feedLimit]
	}
	s.feed.broadcast(top)
	return nil
}

// GetUserPerformanceMetrics returns the user's per-category running averages.
func (s *PracticeService) GetUserPerformanceMetrics(ctx context.Context, userID string) ([]domain.CategoryMetric, error) {
	return s.perf.ListCategoryMetrics(ctx, userID)
}

// GetUserSpecialtyPerformance returns the user's per-specialty running averages.
func (s *PracticeService) GetUserSpecialtyPerformance(ctx context.Context, userID string) ([]domain.SpecialtyMetric, error) {
	return s.perf.ListSpecialtyMetrics(ctx, userID)
}

// GetUserRanking returns up to limit users ordered by rank ascending.
func (s *PracticeService) GetUserRanking(ctx context.Context, limit int) ([]domain.User, error) {
	return s.users.TopRanked(ctx, limit)
}

// SubscribeRanking returns a channel receiving leaderboard snapshots after
// every rank recompute. The caller must invoke cancel to avoid leaks.
func (s *PracticeService) SubscribeRanking(_ context.Context) (<-chan domain.Leaderboard, func()) {
	return s.feed.subscribe()
}

// userLocks hands out one mutex per user ID so completion pipelines for the
// same user are serialized while different users proceed in parallel. Locks
// are never evicted; the map is bounded by the user population.
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[string]*sync.Mutex)}
}

func (l *userLocks) lock(userID string) (unlock func()) {
	l.mu.Lock()
	m, ok := l.locks[userID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[userID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
