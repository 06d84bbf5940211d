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

// ClassRepository manages concrete class occurrences.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository constructs a ClassRepository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

const classDetailSelect = `SELECT cl.id, cl.cohort_id, cl.weekly_session_id, cl.teacher_id, cl.status,
        cl.starts_at, cl.ends_at, cl.meeting_link, cl.created_at, cl.updated_at,
        t.full_name AS teacher_name, p.name AS product_name
        FROM classes cl
        JOIN teachers t ON t.id = cl.teacher_id
        JOIN cohorts c ON c.id = cl.cohort_id
        JOIN products p ON p.id = c.product_id`

// List returns classes matching the provided filters.
func (r *ClassRepository) List(ctx context.Context, filter models.ClassFilter) ([]models.ClassDetail, int, error) {
	args := []interface{}{}
	conditions := []string{"1=1"}

	if filter.CohortID != "" {
		conditions = append(conditions, fmt.Sprintf("cl.cohort_id = $%d", len(args)+1))
		args = append(args, filter.CohortID)
	}
	if filter.TeacherID != "" {
		conditions = append(conditions, fmt.Sprintf("cl.teacher_id = $%d", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("cl.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.From != nil {
		conditions = append(conditions, fmt.Sprintf("cl.starts_at >= $%d", len(args)+1))
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		conditions = append(conditions, fmt.Sprintf("cl.starts_at < $%d", len(args)+1))
		args = append(args, *filter.To)
	}

	whereClause := strings.Join(conditions, " AND ")

	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
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

	query := fmt.Sprintf("%s WHERE %s ORDER BY cl.starts_at %s LIMIT %d OFFSET %d",
		classDetailSelect, whereClause, order, size, offset)

	var classes []models.ClassDetail
	if err := r.db.SelectContext(ctx, &classes, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list classes: %w", err)
	}

	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM classes cl
        JOIN teachers t ON t.id = cl.teacher_id
        JOIN cohorts c ON c.id = cl.cohort_id
        JOIN products p ON p.id = c.product_id WHERE %s`, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count classes: %w", err)
	}
	return classes, total, nil
}

// FindByID fetches a class detail by ID.
func (r *ClassRepository) FindByID(ctx context.Context, id string) (*models.ClassDetail, error) {
	query := classDetailSelect + ` WHERE cl.id = $1`
	var detail models.ClassDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// Create inserts a single class.
func (r *ClassRepository) Create(ctx context.Context, class *models.Class) error {
	prepareClass(class)
	const query = `INSERT INTO classes (id, cohort_id, weekly_session_id, teacher_id, status, starts_at, ends_at, meeting_link, created_at, updated_at)
        VALUES (:id, :cohort_id, :weekly_session_id, :teacher_id, :status, :starts_at, :ends_at, :meeting_link, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, class); err != nil {
		return fmt.Errorf("create class: %w", err)
	}
	return nil
}

// CreateBatch inserts classes inside one transaction. Used by class
// generation so a partial run never persists.
func (r *ClassRepository) CreateBatch(ctx context.Context, classes []*models.Class) error {
	if len(classes) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin class batch: %w", err)
	}
	defer tx.Rollback()

	const query = `INSERT INTO classes (id, cohort_id, weekly_session_id, teacher_id, status, starts_at, ends_at, meeting_link, created_at, updated_at)
        VALUES (:id, :cohort_id, :weekly_session_id, :teacher_id, :status, :starts_at, :ends_at, :meeting_link, :created_at, :updated_at)`
	for _, class := range classes {
		prepareClass(class)
		if _, err := tx.NamedExecContext(ctx, query, class); err != nil {
			return fmt.Errorf("insert class: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit class batch: %w", err)
	}
	return nil
}

// ExistingStartTimes returns the starts_at instants a cohort already has
// classes for, so generation can skip occupied slots.
func (r *ClassRepository) ExistingStartTimes(ctx context.Context, cohortID string) (map[time.Time]bool, error) {
	var starts []time.Time
	if err := r.db.SelectContext(ctx, &starts, `SELECT starts_at FROM classes WHERE cohort_id = $1`, cohortID); err != nil {
		return nil, fmt.Errorf("existing class starts: %w", err)
	}
	existing := make(map[time.Time]bool, len(starts))
	for _, s := range starts {
		existing[s.UTC()] = true
	}
	return existing, nil
}

// Update modifies a class.
func (r *ClassRepository) Update(ctx context.Context, class *models.Class) error {
	class.UpdatedAt = time.Now().UTC()
	const query = `UPDATE classes SET teacher_id = :teacher_id, status = :status, starts_at = :starts_at,
        ends_at = :ends_at, meeting_link = :meeting_link, updated_at = :updated_at
        WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, class); err != nil {
		return fmt.Errorf("update class: %w", err)
	}
	return nil
}

// RolloverStatuses advances class lifecycle statuses based on the clock:
// scheduled classes that started become in_progress, in_progress ones that
// ended become completed.
func (r *ClassRepository) RolloverStatuses(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE classes SET status = CASE
            WHEN status = $1 AND starts_at <= $3 AND ends_at > $3 THEN $2
            WHEN status IN ($1, $2) AND ends_at <= $3 THEN $4
            ELSE status
        END, updated_at = $3
        WHERE status IN ($1, $2) AND starts_at <= $3`,
		models.ClassScheduled, models.ClassInProgress, now.UTC(), models.ClassCompleted)
	if err != nil {
		return 0, fmt.Errorf("rollover class statuses: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rollover class statuses: %w", err)
	}
	return affected, nil
}

// UpcomingByTeacher lists future scheduled classes for a teacher within the window.
func (r *ClassRepository) UpcomingByTeacher(ctx context.Context, teacherID string, from, to time.Time) ([]models.Class, error) {
	var classes []models.Class
	const query = `SELECT id, cohort_id, weekly_session_id, teacher_id, status, starts_at, ends_at, meeting_link, created_at, updated_at
        FROM classes
        WHERE teacher_id = $1 AND status = $2 AND starts_at >= $3 AND starts_at < $4
        ORDER BY starts_at ASC`
	if err := r.db.SelectContext(ctx, &classes, query, teacherID, models.ClassScheduled, from.UTC(), to.UTC()); err != nil {
		return nil, fmt.Errorf("upcoming classes: %w", err)
	}
	return classes, nil
}

func prepareClass(class *models.Class) {
	if class.ID == "" {
		class.ID = uuid.NewString()
	}
	if class.Status == "" {
		class.Status = models.ClassScheduled
	}
	now := time.Now().UTC()
	if class.CreatedAt.IsZero() {
		class.CreatedAt = now
	}
	class.UpdatedAt = now
}
