package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"osce-prep-service/internal/domain"
)

type userRow struct {
	bun.BaseModel `bun:"table:users"`

	ID            string    `bun:"id,pk"`
	Email         string    `bun:"email,nullzero"`
	FirstName     string    `bun:"first_name,nullzero"`
	LastName      string    `bun:"last_name,nullzero"`
	Score         float64   `bun:"score"`
	Rank          int       `bun:"rank,nullzero"`
	PracticeCount int       `bun:"practice_count"`
	IsAdmin       bool      `bun:"is_admin"`
	CreatedAt     time.Time `bun:"created_at,nullzero,default:now()"`
	UpdatedAt     time.Time `bun:"updated_at,nullzero,default:now()"`
}

type attemptRow struct {
	bun.BaseModel `bun:"table:attempts"`

	ID          int64     `bun:"id,pk,autoincrement"`
	UserID      string    `bun:"user_id"`
	ChecklistID int64     `bun:"checklist_id"`
	StartTime   time.Time `bun:"start_time"`
	EndTime     time.Time `bun:"end_time,nullzero"`
	Score       float64   `bun:"score"`
	Completed   bool      `bun:"completed"`
}

type responseRow struct {
	bun.BaseModel `bun:"table:responses"`

	ID              int64 `bun:"id,pk,autoincrement"`
	AttemptID       int64 `bun:"attempt_id"`
	ChecklistItemID int64 `bun:"checklist_item_id"`
	Completed       bool  `bun:"completed"`
}

type categoryMetricRow struct {
	bun.BaseModel `bun:"table:performance_metrics"`

	UserID       string    `bun:"user_id,pk"`
	CategoryID   int64     `bun:"category_id,pk"`
	Score        float64   `bun:"score"`
	AttemptCount int       `bun:"attempt_count"`
	UpdatedAt    time.Time `bun:"updated_at,nullzero,default:now()"`
}

type specialtyMetricRow struct {
	bun.BaseModel `bun:"table:specialty_performance"`

	UserID      string    `bun:"user_id,pk"`
	SpecialtyID int64     `bun:"specialty_id,pk"`
	Score       float64   `bun:"score"`
	Attempts    int       `bun:"attempts"`
	LastAttempt time.Time `bun:"last_attempt,nullzero"`
}

// Store implements the attempt, performance and user repositories on bun.
type Store struct {
	db *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

// Open dials Postgres through the bun pgdriver.
func Open(dsn string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

// AttemptRepository

func (s *Store) CreateAttempt(ctx context.Context, userID string, checklistID int64, startTime time.Time) (domain.Attempt, error) {
	row := attemptRow{
		UserID:      userID,
		ChecklistID: checklistID,
		StartTime:   startTime,
	}
	if _, err := s.db.NewInsert().Model(&row).Returning("id").Exec(ctx); err != nil {
		return domain.Attempt{}, fmt.Errorf("insert attempt: %w", err)
	}
	return attemptFromRow(row), nil
}

func (s *Store) GetAttempt(ctx context.Context, id int64) (domain.Attempt, error) {
	var row attemptRow
	err := s.db.NewSelect().Model(&row).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("select attempt %d: %w", id, err)
	}
	return attemptFromRow(row), nil
}

func (s *Store) GetUserCompletedAttempts(ctx context.Context, userID string) ([]domain.Attempt, error) {
	var rows []attemptRow
	err := s.db.NewSelect().Model(&rows).
		Where("user_id = ?", userID).
		Where("completed = TRUE").
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select completed attempts: %w", err)
	}
	return attemptsFromRows(rows), nil
}

func (s *Store) GetUserRecentAttempts(ctx context.Context, userID string, limit int) ([]domain.Attempt, error) {
	var rows []attemptRow
	err := s.db.NewSelect().Model(&rows).
		Where("user_id = ?", userID).
		Order("start_time DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select recent attempts: %w", err)
	}
	return attemptsFromRows(rows), nil
}

func (s *Store) FinalizeAttempt(ctx context.Context, id int64, endTime time.Time, score float64, responses []domain.Response) error {
	return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().Model((*attemptRow)(nil)).
			Set("end_time = ?", endTime).
			Set("score = ?", score).
			Set("completed = TRUE").
			Where("id = ?", id).
			Where("completed = FALSE").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("finalize attempt %d: %w", id, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			exists, err := tx.NewSelect().Model((*attemptRow)(nil)).Where("id = ?", id).Exists(ctx)
			if err != nil {
				return err
			}
			if !exists {
				return domain.ErrAttemptNotFound
			}
			return domain.ErrAttemptAlreadyCompleted
		}

		if len(responses) == 0 {
			return nil
		}
		rows := make([]responseRow, 0, len(responses))
		for _, r := range responses {
			rows = append(rows, responseRow{
				AttemptID:       r.AttemptID,
				ChecklistItemID: r.ChecklistItemID,
				Completed:       r.Completed,
			})
		}
		if _, err := tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
			return fmt.Errorf("insert responses: %w", err)
		}
		return nil
	})
}

// PerformanceRepository

func (s *Store) GetCategoryMetric(ctx context.Context, userID string, categoryID int64) (domain.CategoryMetric, bool, error) {
	var row categoryMetricRow
	err := s.db.NewSelect().Model(&row).
		Where("user_id = ?", userID).
		Where("category_id = ?", categoryID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CategoryMetric{}, false, nil
	}
	if err != nil {
		return domain.CategoryMetric{}, false, fmt.Errorf("select category metric: %w", err)
	}
	return categoryMetricFromRow(row), true, nil
}

func (s *Store) PutCategoryMetric(ctx context.Context, m domain.CategoryMetric) error {
	row := categoryMetricRow{
		UserID:       m.UserID,
		CategoryID:   m.CategoryID,
		Score:        m.Score,
		AttemptCount: m.AttemptCount,
		UpdatedAt:    m.UpdatedAt,
	}
	_, err := s.db.NewInsert().Model(&row).
		On("CONFLICT (user_id, category_id) DO UPDATE").
		Set("score = EXCLUDED.score").
		Set("attempt_count = EXCLUDED.attempt_count").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert category metric: %w", err)
	}
	return nil
}

func (s *Store) ListCategoryMetrics(ctx context.Context, userID string) ([]domain.CategoryMetric, error) {
	var rows []categoryMetricRow
	err := s.db.NewSelect().Model(&rows).
		Where("user_id = ?", userID).
		Order("category_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select category metrics: %w", err)
	}
	metrics := make([]domain.CategoryMetric, 0, len(rows))
	for _, row := range rows {
		metrics = append(metrics, categoryMetricFromRow(row))
	}
	return metrics, nil
}

func (s *Store) GetSpecialtyMetric(ctx context.Context, userID string, specialtyID int64) (domain.SpecialtyMetric, bool, error) {
	var row specialtyMetricRow
	err := s.db.NewSelect().Model(&row).
		Where("user_id = ?", userID).
		Where("specialty_id = ?", specialtyID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.SpecialtyMetric{}, false, nil
	}
	if err != nil {
		return domain.SpecialtyMetric{}, false, fmt.Errorf("select specialty metric: %w", err)
	}
	return specialtyMetricFromRow(row), true, nil
}

func (s *Store) PutSpecialtyMetric(ctx context.Context, m domain.SpecialtyMetric) error {
	row := specialtyMetricRow{
		UserID:      m.UserID,
		SpecialtyID: m.SpecialtyID,
		Score:       m.Score,
		Attempts:    m.Attempts,
		LastAttempt: m.LastAttempt,
	}
	_, err := s.db.NewInsert().Model(&row).
		On("CONFLICT (user_id, specialty_id) DO UPDATE").
		Set("score = EXCLUDED.score").
		Set("attempts = EXCLUDED.attempts").
		Set("last_attempt = EXCLUDED.last_attempt").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert specialty metric: %w", err)
	}
	return nil
}

func (s *Store) ListSpecialtyMetrics(ctx context.Context, userID string) ([]domain.SpecialtyMetric, error) {
	var rows []specialtyMetricRow
	err := s.db.NewSelect().Model(&rows).
		Where("user_id = ?", userID).
		Order("specialty_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select specialty metrics: %w", err)
	}
	metrics := make([]domain.SpecialtyMetric, 0, len(rows))
	for _, row := range rows {
		metrics = append(metrics, specialtyMetricFromRow(row))
	}
	return metrics, nil
}

// UserRepository

func (s *Store) GetUser(ctx context.Context, id string) (domain.User, error) {
	var row userRow
	err := s.db.NewSelect().Model(&row).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("select user %s: %w", id, err)
	}
	return userFromRow(row), nil
}

func (s *Store) UpdateUserAggregate(ctx context.Context, id string, score float64, practiceCount int) error {
	res, err := s.db.NewUpdate().Model((*userRow)(nil)).
		Set("score = ?", score).
		Set("practice_count = ?", practiceCount).
		Set("updated_at = now()").
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update user aggregate: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (s *Store) ListUserScores(ctx context.Context) ([]domain.RankedUser, error) {
	var rows []userRow
	err := s.db.NewSelect().Model(&rows).Column("id", "score").Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select user scores: %w", err)
	}
	scores := make([]domain.RankedUser, 0, len(rows))
	for _, row := range rows {
		scores = append(scores, domain.RankedUser{UserID: row.ID, Score: row.Score})
	}
	return scores, nil
}

func (s *Store) UpdateRanks(ctx context.Context, ranked []domain.RankedUser) error {
	return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		for _, r := range ranked {
			if _, err := tx.NewUpdate().Model((*userRow)(nil)).
				Set("rank = ?", r.Rank).
				Where("id = ?", r.UserID).
				Exec(ctx); err != nil {
				return fmt.Errorf("update rank for %s: %w", r.UserID, err)
			}
		}
		return nil
	})
}

func (s *Store) TopRanked(ctx context.Context, limit int) ([]domain.User, error) {
	var rows []userRow
	err := s.db.NewSelect().Model(&rows).
		OrderExpr("score DESC, id ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select ranking: %w", err)
	}
	users := make([]domain.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, userFromRow(row))
	}
	return users, nil
}

// InsertUser creates a user record; used by seeding and provisioning flows.
func (s *Store) InsertUser(ctx context.Context, u domain.User) error {
	row := userRow{
		ID:            u.ID,
		Email:         u.Email,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		Score:         u.Score,
		Rank:          u.Rank,
		PracticeCount: u.PracticeCount,
		IsAdmin:       u.IsAdmin,
	}
	if _, err := s.db.NewInsert().Model(&row).On("CONFLICT (id) DO NOTHING").Exec(ctx); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func attemptFromRow(row attemptRow) domain.Attempt {
	return domain.Attempt{
		ID:          row.ID,
		UserID:      row.UserID,
		ChecklistID: row.ChecklistID,
		StartTime:   row.StartTime,
		EndTime:     row.EndTime,
		Score:       row.Score,
		Completed:   row.Completed,
	}
}

func attemptsFromRows(rows []attemptRow) []domain.Attempt {
	attempts := make([]domain.Attempt, 0, len(rows))
	for _, row := range rows {
		attempts = append(attempts, attemptFromRow(row))
	}
	return attempts
}

func categoryMetricFromRow(row categoryMetricRow) domain.CategoryMetric {
	return domain.CategoryMetric{
		UserID:       row.UserID,
		CategoryID:   row.CategoryID,
		Score:        row.Score,
		AttemptCount: row.AttemptCount,
		UpdatedAt:    row.UpdatedAt,
	}
}

func specialtyMetricFromRow(row specialtyMetricRow) domain.SpecialtyMetric {
	return domain.SpecialtyMetric{
		UserID:      row.UserID,
		SpecialtyID: row.SpecialtyID,
		Score:       row.Score,
		Attempts:    row.Attempts,
		LastAttempt: row.LastAttempt,
	}
}

func userFromRow(row userRow) domain.User {
	return domain.User{
		ID:            row.ID,
		Email:         row.Email,
		FirstName:     row.FirstName,
		LastName:      row.LastName,
		Score:         row.Score,
		Rank:          row.Rank,
		PracticeCount: row.PracticeCount,
		IsAdmin:       row.IsAdmin,
		CreatedAt:     row.CreatedAt,
	}
}
