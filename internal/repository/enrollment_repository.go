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

// EnrollmentRepository manages the student/cohort enrollment funnel rows.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs an EnrollmentRepository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

const enrollmentDetailSelect = `SELECT e.id, e.student_id, e.cohort_id, e.status, e.status_changed_at,
        e.notes, e.created_at, e.updated_at,
        s.full_name AS student_name, s.email AS student_email,
        p.name AS product_name, ll.code AS cohort_level_code
        FROM enrollments e
        JOIN students s ON s.id = e.student_id
        JOIN cohorts c ON c.id = e.cohort_id
        JOIN products p ON p.id = c.product_id
        JOIN language_levels ll ON ll.id = c.current_level_id`

// List returns enrollments matching the provided filters.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	args := []interface{}{}
	conditions := []string{"1=1"}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("e.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.CohortID != "" {
		conditions = append(conditions, fmt.Sprintf("e.cohort_id = $%d", len(args)+1))
		args = append(args, filter.CohortID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(s.full_name ILIKE $%d OR s.email ILIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}

	whereClause := strings.Join(conditions, " AND ")

	sortBy := filter.SortBy
	allowedSorts := map[string]string{
		"created_at":        "e.created_at",
		"status_changed_at": "e.status_changed_at",
		"student_name":      "s.full_name",
	}
	column, ok := allowedSorts[sortBy]
	if !ok {
		column = "e.created_at"
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

	query := fmt.Sprintf("%s WHERE %s ORDER BY %s %s LIMIT %d OFFSET %d",
		enrollmentDetailSelect, whereClause, column, order, size, offset)

	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM enrollments e
        JOIN students s ON s.id = e.student_id WHERE %s`, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// FindByID fetches an enrollment detail by ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	query := enrollmentDetailSelect + ` WHERE e.id = $1`
	var detail models.EnrollmentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// FindActiveByStudentCohort returns the non-terminal enrollment of a student
// in a cohort, if any.
func (r *EnrollmentRepository) FindActiveByStudentCohort(ctx context.Context, studentID, cohortID string) (*models.Enrollment, error) {
	const query = `SELECT id, student_id, cohort_id, status, status_changed_at, notes, created_at, updated_at
        FROM enrollments
        WHERE student_id = $1 AND cohort_id = $2 AND status NOT IN ($3, $4, $5)
        LIMIT 1`
	var enrollment models.Enrollment
	err := r.db.GetContext(ctx, &enrollment, query, studentID, cohortID,
		models.EnrollmentDroppedOut, models.EnrollmentDeclined, models.EnrollmentAbandoned)
	if err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// HasActiveForProduct reports whether the student holds a non-terminal
// enrollment in any cohort of the given product.
func (r *EnrollmentRepository) HasActiveForProduct(ctx context.Context, studentID, productID string) (bool, error) {
	const query = `SELECT EXISTS (
        SELECT 1 FROM enrollments e
        JOIN cohorts c ON c.id = e.cohort_id
        WHERE e.student_id = $1 AND c.product_id = $2 AND e.status NOT IN ($3, $4, $5))`
	var exists bool
	err := r.db.GetContext(ctx, &exists, query, studentID, productID,
		models.EnrollmentDroppedOut, models.EnrollmentDeclined, models.EnrollmentAbandoned)
	if err != nil {
		return false, fmt.Errorf("check product enrollment: %w", err)
	}
	return exists, nil
}

// ListActiveStudentEmails returns the emails of students with a non-terminal
// enrollment in the cohort, for calendar invites.
func (r *EnrollmentRepository) ListActiveStudentEmails(ctx context.Context, cohortID string) ([]string, error) {
	const query = `SELECT s.email FROM enrollments e
        JOIN students s ON s.id = e.student_id
        WHERE e.cohort_id = $1 AND e.status NOT IN ($2, $3, $4)
        ORDER BY s.email ASC`
	var emails []string
	err := r.db.SelectContext(ctx, &emails, query, cohortID,
		models.EnrollmentDroppedOut, models.EnrollmentDeclined, models.EnrollmentAbandoned)
	if err != nil {
		return nil, fmt.Errorf("list enrolled emails: %w", err)
	}
	return emails, nil
}

// ListActiveStudentIDs returns the IDs of students actively enrolled in the cohort.
func (r *EnrollmentRepository) ListActiveStudentIDs(ctx context.Context, cohortID string) ([]string, error) {
	const query = `SELECT student_id FROM enrollments
        WHERE cohort_id = $1 AND status NOT IN ($2, $3, $4)`
	var ids []string
	err := r.db.SelectContext(ctx, &ids, query, cohortID,
		models.EnrollmentDroppedOut, models.EnrollmentDeclined, models.EnrollmentAbandoned)
	if err != nil {
		return nil, fmt.Errorf("list enrolled students: %w", err)
	}
	return ids, nil
}

// Create inserts a new enrollment.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if enrollment.CreatedAt.IsZero() {
		enrollment.CreatedAt = now
	}
	enrollment.UpdatedAt = now
	if enrollment.StatusChangedAt.IsZero() {
		enrollment.StatusChangedAt = now
	}
	const query = `INSERT INTO enrollments (id, student_id, cohort_id, status, status_changed_at, notes, created_at, updated_at)
        VALUES (:id, :student_id, :cohort_id, :status, :status_changed_at, :notes, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, enrollment); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// UpdateStatus persists a funnel transition, stamping status_changed_at.
func (r *EnrollmentRepository) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) error {
	now := time.Now().UTC()
	const query = `UPDATE enrollments SET status = $2, status_changed_at = $3, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, now); err != nil {
		return fmt.Errorf("update enrollment status: %w", err)
	}
	return nil
}

// UpdateNotes replaces the free-form notes on an enrollment.
func (r *EnrollmentRepository) UpdateNotes(ctx context.Context, id string, notes string) error {
	const query = `UPDATE enrollments SET notes = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, notes, time.Now().UTC()); err != nil {
		return fmt.Errorf("update enrollment notes: %w", err)
	}
	return nil
}

// ListStalledInStatus returns enrollments sitting in the given status longer
// than the cutoff, for abandonment sweeps.
func (r *EnrollmentRepository) ListStalledInStatus(ctx context.Context, status models.EnrollmentStatus, before time.Time) ([]models.EnrollmentDetail, error) {
	query := enrollmentDetailSelect + ` WHERE e.status = $1 AND e.status_changed_at < $2 ORDER BY e.status_changed_at ASC`
	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, status, before.UTC()); err != nil {
		return nil, fmt.Errorf("list stalled enrollments: %w", err)
	}
	return enrollments, nil
}
