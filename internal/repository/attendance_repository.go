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

// AttendanceRepository manages per-class attendance records.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs an AttendanceRepository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

const attendanceDetailSelect = `SELECT a.id, a.student_id, a.cohort_id, a.class_id, a.status, a.marked_by, a.date,
        a.created_at, a.updated_at,
        s.full_name AS student_name, s.email AS student_email`

const attendanceDetailFrom = `FROM attendance_records a
        JOIN students s ON s.id = a.student_id`

// List returns attendance records matching the provided filters.
func (r *AttendanceRepository) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecordDetail, int, error) {
	args := []interface{}{}
	conditions := []string{"1=1"}

	if filter.CohortID != "" {
		conditions = append(conditions, fmt.Sprintf("a.cohort_id = $%d", len(args)+1))
		args = append(args, filter.CohortID)
	}
	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("a.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.ClassID != "" {
		conditions = append(conditions, fmt.Sprintf("a.class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("a.status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.DateFrom != nil {
		conditions = append(conditions, fmt.Sprintf("a.date >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		conditions = append(conditions, fmt.Sprintf("a.date <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
	}

	whereClause := strings.Join(conditions, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("%s %s WHERE %s ORDER BY a.date DESC, s.full_name ASC LIMIT %d OFFSET %d",
		attendanceDetailSelect, attendanceDetailFrom, whereClause, size, offset)

	var records []models.AttendanceRecordDetail
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list attendance: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", attendanceDetailFrom, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count attendance: %w", err)
	}
	return records, total, nil
}

// ListForExport returns all matching records without pagination, for CSV/PDF export.
func (r *AttendanceRepository) ListForExport(ctx context.Context, cohortID string, from, to *time.Time) ([]models.AttendanceRecordDetail, error) {
	args := []interface{}{cohortID}
	conditions := []string{"a.cohort_id = $1"}
	if from != nil {
		conditions = append(conditions, fmt.Sprintf("a.date >= $%d", len(args)+1))
		args = append(args, *from)
	}
	if to != nil {
		conditions = append(conditions, fmt.Sprintf("a.date <= $%d", len(args)+1))
		args = append(args, *to)
	}
	query := fmt.Sprintf("%s %s WHERE %s ORDER BY a.date ASC, s.full_name ASC",
		attendanceDetailSelect, attendanceDetailFrom, strings.Join(conditions, " AND "))

	var records []models.AttendanceRecordDetail
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("list attendance for export: %w", err)
	}
	return records, nil
}

// Upsert writes an attendance mark, replacing any previous mark for the same
// student, cohort and date.
func (r *AttendanceRepository) Upsert(ctx context.Context, record *models.AttendanceRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	const query = `INSERT INTO attendance_records (id, student_id, cohort_id, class_id, status, marked_by, date, created_at, updated_at)
        VALUES (:id, :student_id, :cohort_id, :class_id, :status, :marked_by, :date, :created_at, :updated_at)
        ON CONFLICT (student_id, cohort_id, date)
        DO UPDATE SET status = EXCLUDED.status, class_id = EXCLUDED.class_id,
            marked_by = EXCLUDED.marked_by, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("upsert attendance: %w", err)
	}
	return nil
}

// UpsertBatch writes a set of marks atomically.
func (r *AttendanceRepository) UpsertBatch(ctx context.Context, records []*models.AttendanceRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin attendance batch: %w", err)
	}
	defer tx.Rollback()

	const query = `INSERT INTO attendance_records (id, student_id, cohort_id, class_id, status, marked_by, date, created_at, updated_at)
        VALUES (:id, :student_id, :cohort_id, :class_id, :status, :marked_by, :date, :created_at, :updated_at)
        ON CONFLICT (student_id, cohort_id, date)
        DO UPDATE SET status = EXCLUDED.status, class_id = EXCLUDED.class_id,
            marked_by = EXCLUDED.marked_by, updated_at = EXCLUDED.updated_at`
	now := time.Now().UTC()
	for _, record := range records {
		if record.ID == "" {
			record.ID = uuid.NewString()
		}
		if record.CreatedAt.IsZero() {
			record.CreatedAt = now
		}
		record.UpdatedAt = now
		if _, err := tx.NamedExecContext(ctx, query, record); err != nil {
			return fmt.Errorf("upsert attendance record: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit attendance batch: %w", err)
	}
	return nil
}

// Summary aggregates per-student attendance counts for a cohort.
func (r *AttendanceRepository) Summary(ctx context.Context, cohortID string) ([]models.AttendanceSummary, error) {
	const query = `SELECT a.student_id, s.full_name AS student_name,
            COUNT(*) FILTER (WHERE a.status = 'attended') AS attended,
            COUNT(*) FILTER (WHERE a.status = 'not_attended') AS not_attended,
            COUNT(*) FILTER (WHERE a.status = 'unset') AS unset,
            COUNT(*) AS total
        FROM attendance_records a
        JOIN students s ON s.id = a.student_id
        WHERE a.cohort_id = $1
        GROUP BY a.student_id, s.full_name
        ORDER BY s.full_name ASC`
	var summaries []models.AttendanceSummary
	if err := r.db.SelectContext(ctx, &summaries, query, cohortID); err != nil {
		return nil, fmt.Errorf("attendance summary: %w", err)
	}
	return summaries, nil
}
