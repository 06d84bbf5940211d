package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/lingoria/school-ops-api/internal/models"
)

// WeeklySessionRepository manages recurring weekly session slots for cohorts.
type WeeklySessionRepository struct {
	db *sqlx.DB
}

// NewWeeklySessionRepository constructs a WeeklySessionRepository.
func NewWeeklySessionRepository(db *sqlx.DB) *WeeklySessionRepository {
	return &WeeklySessionRepository{db: db}
}

const weeklySessionDetailSelect = `SELECT ws.id, ws.cohort_id, ws.teacher_id, ws.day_of_week, ws.start_time, ws.end_time,
        ws.created_at, ws.updated_at,
        t.full_name AS teacher_name, t.email AS teacher_email, t.calendar_id
        FROM weekly_sessions ws
        JOIN teachers t ON t.id = ws.teacher_id`

// ListByCohort returns the weekly sessions of a cohort ordered by weekday and time.
func (r *WeeklySessionRepository) ListByCohort(ctx context.Context, cohortID string) ([]models.WeeklySessionDetail, error) {
	query := weeklySessionDetailSelect + ` WHERE ws.cohort_id = $1
        ORDER BY ws.day_of_week ASC, ws.start_time ASC`
	var sessions []models.WeeklySessionDetail
	if err := r.db.SelectContext(ctx, &sessions, query, cohortID); err != nil {
		return nil, fmt.Errorf("list weekly sessions: %w", err)
	}
	return sessions, nil
}

// FindByID fetches a single weekly session with its teacher joined in.
func (r *WeeklySessionRepository) FindByID(ctx context.Context, id string) (*models.WeeklySessionDetail, error) {
	query := weeklySessionDetailSelect + ` WHERE ws.id = $1`
	var session models.WeeklySessionDetail
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		return nil, err
	}
	return &session, nil
}

// Create inserts a weekly session slot.
func (r *WeeklySessionRepository) Create(ctx context.Context, session *models.WeeklySession) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now
	const query = `INSERT INTO weekly_sessions (id, cohort_id, teacher_id, day_of_week, start_time, end_time, created_at, updated_at)
        VALUES (:id, :cohort_id, :teacher_id, :day_of_week, :start_time, :end_time, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		return fmt.Errorf("create weekly session: %w", err)
	}
	return nil
}

// Update modifies a weekly session slot.
func (r *WeeklySessionRepository) Update(ctx context.Context, session *models.WeeklySession) error {
	session.UpdatedAt = time.Now().UTC()
	const query = `UPDATE weekly_sessions SET teacher_id = :teacher_id, day_of_week = :day_of_week,
        start_time = :start_time, end_time = :end_time, updated_at = :updated_at
        WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		return fmt.Errorf("update weekly session: %w", err)
	}
	return nil
}

// Delete removes a weekly session slot.
func (r *WeeklySessionRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM weekly_sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete weekly session: %w", err)
	}
	return nil
}
