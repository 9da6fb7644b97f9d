// Package memory provides in-process implementations of the engine's
// repositories, used for tests and for running without external backends.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"osce-prep-service/internal/domain"
)

// Store keeps all engine state in RWMutex-guarded maps. It implements every
// repository interface declared in internal/app.
type Store struct {
	mu            sync.RWMutex
	users         map[string]domain.User
	specialties   map[int64]domain.Specialty
	scenarios     map[int64]domain.Scenario
	categories    map[int64]domain.Category
	checklists    map[int64]domain.Checklist
	items         map[int64][]domain.ChecklistItem // keyed by checklist ID
	attempts      map[int64]domain.Attempt
	responses     map[int64][]domain.Response // keyed by attempt ID
	catMetrics    map[string]domain.CategoryMetric
	specMetrics   map[string]domain.SpecialtyMetric
	nextAttemptID int64
}

func NewStore() *Store {
	return &Store{
		users:       make(map[string]domain.User),
		specialties: make(map[int64]domain.Specialty),
		scenarios:   make(map[int64]domain.Scenario),
		categories:  make(map[int64]domain.Category),
		checklists:  make(map[int64]domain.Checklist),
		items:       make(map[int64][]domain.ChecklistItem),
		attempts:    make(map[int64]domain.Attempt),
		responses:   make(map[int64][]domain.Response),
		catMetrics:  make(map[string]domain.CategoryMetric),
		specMetrics: make(map[string]domain.SpecialtyMetric),
	}
}

// Seed helpers. Content is immutable once loaded, so these are only called
// during startup or test setup.

func (s *Store) AddUser(u domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

func (s *Store) AddSpecialty(sp domain.Specialty) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.specialties[sp.ID] = sp
}

func (s *Store) AddScenario(sc domain.Scenario) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scenarios[sc.ID] = sc
}

func (s *Store) AddCategory(c domain.Category) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories[c.ID] = c
}

func (s *Store) AddChecklist(c domain.Checklist, items []domain.ChecklistItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checklists[c.ID] = c
	s.items[c.ID] = append([]domain.ChecklistItem(nil), items...)
}

// ContentRepository

func (s *Store) GetChecklist(_ context.Context, id int64) (domain.Checklist, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	checklist, ok := s.checklists[id]
	if !ok {
		return domain.Checklist{}, domain.ErrChecklistNotFound
	}
	return checklist, nil
}

func (s *Store) GetChecklistItems(_ context.Context, checklistID int64) ([]domain.ChecklistItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.checklists[checklistID]; !ok {
		return nil, domain.ErrChecklistNotFound
	}
	return append([]domain.ChecklistItem(nil), s.items[checklistID]...), nil
}

func (s *Store) GetScenario(_ context.Context, id int64) (domain.Scenario, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	scenario, ok := s.scenarios[id]
	if !ok {
		return domain.Scenario{}, domain.ErrScenarioNotFound
	}
	return scenario, nil
}

func (s *Store) GetSpecialty(_ context.Context, id int64) (domain.Specialty, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	specialty, ok := s.specialties[id]
	if !ok {
		return domain.Specialty{}, domain.ErrSpecialtyNotFound
	}
	return specialty, nil
}

func (s *Store) GetAllScenarios(_ context.Context) ([]domain.Scenario, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	scenarios := make([]domain.Scenario, 0, len(s.scenarios))
	for _, sc := range s.scenarios {
		scenarios = append(scenarios, sc)
	}
	sort.Slice(scenarios, func(i, j int) bool { return scenarios[i].ID < scenarios[j].ID })
	return scenarios, nil
}

func (s *Store) ListSpecialties(_ context.Context) ([]domain.Specialty, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	specialties := make([]domain.Specialty, 0, len(s.specialties))
	for _, sp := range s.specialties {
		specialties = append(specialties, sp)
	}
	sort.Slice(specialties, func(i, j int) bool { return specialties[i].ID < specialties[j].ID })
	return specialties, nil
}

func (s *Store) ListScenariosBySpecialty(_ context.Context, specialtyID int64) ([]domain.Scenario, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.specialties[specialtyID]; !ok {
		return nil, domain.ErrSpecialtyNotFound
	}
	var scenarios []domain.Scenario
	for _, sc := range s.scenarios {
		if sc.SpecialtyID == specialtyID {
			scenarios = append(scenarios, sc)
		}
	}
	sort.Slice(scenarios, func(i, j int) bool { return scenarios[i].ID < scenarios[j].ID })
	return scenarios, nil
}

func (s *Store) ListChecklistsByScenario(_ context.Context, scenarioID int64) ([]domain.Checklist, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.scenarios[scenarioID]; !ok {
		return nil, domain.ErrScenarioNotFound
	}
	var checklists []domain.Checklist
	for _, cl := range s.checklists {
		if cl.ScenarioID == scenarioID {
			checklists = append(checklists, cl)
		}
	}
	sort.Slice(checklists, func(i, j int) bool { return checklists[i].ID < checklists[j].ID })
	return checklists, nil
}

func (s *Store) ListCategories(_ context.Context) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	categories := make([]domain.Category, 0, len(s.categories))
	for _, c := range s.categories {
		categories = append(categories, c)
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i].ID < categories[j].ID })
	return categories, nil
}

// AttemptRepository

func (s *Store) CreateAttempt(_ context.Context, userID string, checklistID int64, startTime time.Time) (domain.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextAttemptID++
	attempt := domain.Attempt{
		ID:          s.nextAttemptID,
		UserID:      userID,
		ChecklistID: checklistID,
		StartTime:   startTime,
	}
	s.attempts[attempt.ID] = attempt
	return attempt, nil
}

func (s *Store) GetAttempt(_ context.Context, id int64) (domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	attempt, ok := s.attempts[id]
	if !ok {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	return attempt, nil
}

func (s *Store) GetUserCompletedAttempts(_ context.Context, userID string) ([]domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var completed []domain.Attempt
	for _, a := range s.attempts {
		if a.UserID == userID && a.Completed {
			completed = append(completed, a)
		}
	}
	sort.Slice(completed, func(i, j int) bool { return completed[i].ID < completed[j].ID })
	return completed, nil
}

func (s *Store) GetUserRecentAttempts(_ context.Context, userID string, limit int) ([]domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var attempts []domain.Attempt
	for _, a := range s.attempts {
		if a.UserID == userID {
			attempts = append(attempts, a)
		}
	}
	sort.Slice(attempts, func(i, j int) bool { return attempts[i].StartTime.After(attempts[j].StartTime) })
	if limit > 0 && len(attempts) > limit {
		attempts = attempts[:limit]
	}
	return attempts, nil
}

func (s *Store) FinalizeAttempt(_ context.Context, id int64, endTime time.Time, score float64, responses []domain.Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt, ok := s.attempts[id]
	if !ok {
		return domain.ErrAttemptNotFound
	}
	if attempt.Completed {
		return domain.ErrAttemptAlreadyCompleted
	}
	attempt.EndTime = endTime
	attempt.Score = score
	attempt.Completed = true
	s.attempts[id] = attempt
	s.responses[id] = append([]domain.Response(nil), responses...)
	return nil
}

// PerformanceRepository

func metricKey(userID string, id int64) string {
	return fmt.Sprintf("%s/%d", userID, id)
}

func (s *Store) GetCategoryMetric(_ context.Context, userID string, categoryID int64) (domain.CategoryMetric, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	metric, ok := s.catMetrics[metricKey(userID, categoryID)]
	return metric, ok, nil
}

func (s *Store) PutCategoryMetric(_ context.Context, m domain.CategoryMetric) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.catMetrics[metricKey(m.UserID, m.CategoryID)] = m
	return nil
}

func (s *Store) ListCategoryMetrics(_ context.Context, userID string) ([]domain.CategoryMetric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var metrics []domain.CategoryMetric
	for _, m := range s.catMetrics {
		if m.UserID == userID {
			metrics = append(metrics, m)
		}
	}
	sort.Slice(metrics, func(i, j int) bool { return metrics[i].CategoryID < metrics[j].CategoryID })
	return metrics, nil
}

func (s *Store) GetSpecialtyMetric(_ context.Context, userID string, specialtyID int64) (domain.SpecialtyMetric, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	metric, ok := s.specMetrics[metricKey(userID, specialtyID)]
	return metric, ok, nil
}

func (s *Store) PutSpecialtyMetric(_ context.Context, m domain.SpecialtyMetric) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.specMetrics[metricKey(m.UserID, m.SpecialtyID)] = m
	return nil
}

func (s *Store) ListSpecialtyMetrics(_ context.Context, userID string) ([]domain.SpecialtyMetric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var metrics []domain.SpecialtyMetric
	for _, m := range s.specMetrics {
		if m.UserID == userID {
			metrics = append(metrics, m)
		}
	}
	sort.Slice(metrics, func(i, j int) bool { return metrics[i].SpecialtyID < metrics[j].SpecialtyID })
	return metrics, nil
}

// UserRepository

func (s *Store) GetUser(_ context.Context, id string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return user, nil
}

func (s *Store) UpdateUserAggregate(_ context.Context, id string, score float64, practiceCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	user.Score = score
	user.PracticeCount = practiceCount
	s.users[id] = user
	return nil
}

func (s *Store) ListUserScores(_ context.Context) ([]domain.RankedUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	scores := make([]domain.RankedUser, 0, len(s.users))
	for _, u := range s.users {
		scores = append(scores, domain.RankedUser{UserID: u.ID, Score: u.Score})
	}
	return scores, nil
}

func (s *Store) UpdateRanks(_ context.Context, ranked []domain.RankedUser) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range ranked {
		user, ok := s.users[r.UserID]
		if !ok {
			continue
		}
		user.Rank = r.Rank
		s.users[r.UserID] = user
	}
	return nil
}

func (s *Store) TopRanked(_ context.Context, limit int) ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]domain.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].Score != users[j].Score {
			return users[i].Score > users[j].Score
		}
		return users[i].ID < users[j].ID
	})
	if limit > 0 && len(users) > limit {
		users = users[:limit]
	}
	return users, nil
}
