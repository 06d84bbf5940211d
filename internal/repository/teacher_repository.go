package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/lingoria/school-ops-api/internal/models"
)

// TeacherRepository manages persistence for teacher records.
type TeacherRepository struct {
	db *sqlx.DB
}

// NewTeacherRepository constructs a TeacherRepository.
func NewTeacherRepository(db *sqlx.DB) *TeacherRepository {
	return &TeacherRepository{db: db}
}

const teacherColumns = `id, full_name, email, onboarding_status, contract_status, available_online, available_in_person,
        available_for_booking, qualified_under_16, available_days, max_weekly_hours, max_daily_hours, calendar_id, created_at, updated_at`

// List returns teachers matching the provided filters.
func (r *TeacherRepository) List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, int, error) {
	base := "FROM teachers"
	args := []interface{}{}
	conditions := []string{"1=1"}

	if filter.OnboardingStatus != "" {
		conditions = append(conditions, fmt.Sprintf("onboarding_status = $%d", len(args)+1))
		args = append(args, filter.OnboardingStatus)
	}
	if filter.BookingOnly {
		conditions = append(conditions, "available_for_booking = true")
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(full_name) LIKE $%d OR LOWER(email) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	sortBy := filter.SortBy
	allowedSorts := map[string]string{
		"full_name":  "full_name",
		"created_at": "created_at",
	}
	column, ok := allowedSorts[sortBy]
	if !ok {
		column = "created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", teacherColumns, base, column, order, size, offset)

	var teachers []models.Teacher
	if err := r.db.SelectContext(ctx, &teachers, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list teachers: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count teachers: %w", err)
	}
	return teachers, total, nil
}

// FindByID fetches a teacher by ID.
func (r *TeacherRepository) FindByID(ctx context.Context, id string) (*models.Teacher, error) {
	query := fmt.Sprintf("SELECT %s FROM teachers WHERE id = $1", teacherColumns)
	var teacher models.Teacher
	if err := r.db.GetContext(ctx, &teacher, query, id); err != nil {
		return nil, err
	}
	return &teacher, nil
}

// ListBookable returns all teachers currently open for private-class booking.
func (r *TeacherRepository) ListBookable(ctx context.Context) ([]models.Teacher, error) {
	query := fmt.Sprintf(`SELECT %s FROM teachers
        WHERE available_for_booking = true AND onboarding_status = $1
        ORDER BY full_name ASC`, teacherColumns)
	var teachers []models.Teacher
	if err := r.db.SelectContext(ctx, &teachers, query, models.TeacherActive); err != nil {
		return nil, fmt.Errorf("list bookable teachers: %w", err)
	}
	return teachers, nil
}

// SessionLoads returns every weekly session committed to a non-ended cohort,
// keyed by teacher. Used to compute current weekly/daily hours.
func (r *TeacherRepository) SessionLoads(ctx context.Context) ([]models.TeacherSessionLoad, error) {
	const query = `SELECT ws.teacher_id, ws.day_of_week, ws.start_time, ws.end_time
        FROM weekly_sessions ws
        JOIN cohorts c ON c.id = ws.cohort_id
        WHERE c.status <> $1`
	var loads []models.TeacherSessionLoad
	if err := r.db.SelectContext(ctx, &loads, query, models.CohortClassEnded); err != nil {
		return nil, fmt.Errorf("teacher session loads: %w", err)
	}
	return loads, nil
}

// SessionLoadsForTeacher returns committed sessions for a single teacher.
func (r *TeacherRepository) SessionLoadsForTeacher(ctx context.Context, teacherID string) ([]models.TeacherSessionLoad, error) {
	const query = `SELECT ws.teacher_id, ws.day_of_week, ws.start_time, ws.end_time
        FROM weekly_sessions ws
        JOIN cohorts c ON c.id = ws.cohort_id
        WHERE c.status <> $1 AND ws.teacher_id = $2`
	var loads []models.TeacherSessionLoad
	if err := r.db.SelectContext(ctx, &loads, query, models.CohortClassEnded, teacherID); err != nil {
		return nil, fmt.Errorf("teacher session loads: %w", err)
	}
	return loads, nil
}

// Create inserts a new teacher record.
func (r *TeacherRepository) Create(ctx context.Context, teacher *models.Teacher) error {
	if teacher.ID == "" {
		teacher.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if teacher.CreatedAt.IsZero() {
		teacher.CreatedAt = now
	}
	teacher.UpdatedAt = now
	const query = `INSERT INTO teachers (id, full_name, email, onboarding_status, contract_status, available_online, available_in_person,
        available_for_booking, qualified_under_16, available_days, max_weekly_hours, max_daily_hours, calendar_id, created_at, updated_at)
        VALUES (:id, :full_name, :email, :onboarding_status, :contract_status, :available_online, :available_in_person,
        :available_for_booking, :qualified_under_16, :available_days, :max_weekly_hours, :max_daily_hours, :calendar_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, teacher); err != nil {
		return fmt.Errorf("create teacher: %w", err)
	}
	return nil
}

// Update modifies an existing teacher.
func (r *TeacherRepository) Update(ctx context.Context, teacher *models.Teacher) error {
	teacher.UpdatedAt = time.Now().UTC()
	const query = `UPDATE teachers SET full_name = :full_name, email = :email, onboarding_status = :onboarding_status,
        contract_status = :contract_status, available_online = :available_online, available_in_person = :available_in_person,
        available_for_booking = :available_for_booking, qualified_under_16 = :qualified_under_16, available_days = :available_days,
        max_weekly_hours = :max_weekly_hours, max_daily_hours = :max_daily_hours, calendar_id = :calendar_id, updated_at = :updated_at
        WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, teacher); err != nil {
		return fmt.Errorf("update teacher: %w", err)
	}
	return nil
}
