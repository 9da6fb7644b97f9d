package domain

import "time"

// User carries the identity fields the engine reads plus the aggregate
// fields it owns (Score, Rank, PracticeCount).
type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	FirstName     string    `json:"firstName"`
	LastName      string    `json:"lastName"`
	Score         float64   `json:"score"`
	Rank          int       `json:"rank"`
	PracticeCount int       `json:"practiceCount"`
	IsAdmin       bool      `json:"isAdmin"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Specialty is a medical domain that scenarios belong to (e.g. Pediatrics).
type Specialty struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Code        string `json:"code"`
	Description string `json:"description"`
}

// Scenario is a clinical practice case within one specialty.
type Scenario struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	SpecialtyID int64  `json:"specialtyId"`
	Difficulty  string `json:"difficulty"` // easy, medium, hard
}

// Category groups checklist items for sub-scoring (e.g. "Anamnesis").
type Category struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Checklist is the ordered set of weighted items for one scenario.
type Checklist struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	ScenarioID  int64  `json:"scenarioId"`
	TimeLimit   int    `json:"timeLimit"` // minutes, 0 = untimed
}

// ChecklistItem is one expected clinical action. CategoryID 0 means the
// item is uncategorized and excluded from category sub-scores.
type ChecklistItem struct {
	ID          int64   `json:"id"`
	ChecklistID int64   `json:"checklistId"`
	CategoryID  int64   `json:"categoryId"`
	Description string  `json:"description"`
	Weight      float64 `json:"weight"` // positive, defaults to 1
}

// Attempt is one user's timed run through a checklist. Score and EndTime
// are only meaningful once Completed is true; a completed attempt is
// immutable.
type Attempt struct {
	ID          int64     `json:"id"`
	UserID      string    `json:"userId"`
	ChecklistID int64     `json:"checklistId"`
	StartTime   time.Time `json:"startTime"`
	EndTime     time.Time `json:"endTime"`
	Score       float64   `json:"score"`
	Completed   bool      `json:"completed"`
}

// Response records whether one checklist item was performed during an attempt.
type Response struct {
	AttemptID       int64 `json:"attemptId"`
	ChecklistItemID int64 `json:"checklistItemId"`
	Completed       bool  `json:"completed"`
}

// ItemResponse is the submission shape received when an attempt completes.
type ItemResponse struct {
	ChecklistItemID int64 `json:"checklistItemId"`
	Completed       bool  `json:"completed"`
}

// CategoryMetric is the running weighted-average score for one
// (user, category) pair across completed attempts.
type CategoryMetric struct {
	UserID       string    `json:"userId"`
	CategoryID   int64     `json:"categoryId"`
	Score        float64   `json:"score"`
	AttemptCount int       `json:"attemptCount"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// SpecialtyMetric is the running average of attempt overall scores for one
// (user, specialty) pair.
type SpecialtyMetric struct {
	UserID      string    `json:"userId"`
	SpecialtyID int64     `json:"specialtyId"`
	Score       float64   `json:"score"`
	Attempts    int       `json:"attempts"`
	LastAttempt time.Time `json:"lastAttempt"`
}

// RankedUser is the slice element the ranking recomputer sorts and writes back.
type RankedUser struct {
	UserID string  `json:"userId"`
	Score  float64 `json:"score"`
	Rank   int     `json:"rank"`
}

// Leaderboard is a snapshot of the global ranking pushed to subscribers.
type Leaderboard struct {
	Entries   []RankedUser `json:"entries"`
	UpdatedAt time.Time    `json:"updatedAt"`
}
