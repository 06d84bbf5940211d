package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/lingoria/school-ops-api/internal/models"
)

// CohortRepository manages persistence for cohorts.
type CohortRepository struct {
	db *sqlx.DB
}

// NewCohortRepository constructs a CohortRepository.
func NewCohortRepository(db *sqlx.DB) *CohortRepository {
	return &CohortRepository{db: db}
}

const cohortDetailSelect = `SELECT c.id, c.product_id, c.starting_level_id, c.current_level_id, c.status, c.room_type,
        c.max_students, c.start_date, c.setup_finalized, c.created_at, c.updated_at,
        p.name AS product_name, p.format AS product_format,
        sl.code AS starting_level_code, cl.code AS current_level_code, cl.level_group AS level_group,
        (SELECT COUNT(*) FROM enrollments e WHERE e.cohort_id = c.id AND e.status NOT IN ('dropped_out', 'declined', 'abandoned')) AS enrolled_count`

const cohortDetailFrom = `FROM cohorts c
        JOIN products p ON p.id = c.product_id
        JOIN language_levels sl ON sl.id = c.starting_level_id
        JOIN language_levels cl ON cl.id = c.current_level_id`

// List returns cohorts matching the provided filters.
func (r *CohortRepository) List(ctx context.Context, filter models.CohortFilter) ([]models.CohortDetail, int, error) {
	args := []interface{}{}
	conditions := []string{"1=1"}

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("c.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.ProductID != "" {
		conditions = append(conditions, fmt.Sprintf("c.product_id = $%d", len(args)+1))
		args = append(args, filter.ProductID)
	}
	if filter.LevelID != "" {
		conditions = append(conditions, fmt.Sprintf("c.current_level_id = $%d", len(args)+1))
		args = append(args, filter.LevelID)
	}

	whereClause := strings.Join(conditions, " AND ")

	sortBy := filter.SortBy
	allowedSorts := map[string]string{
		"start_date": "c.start_date",
		"created_at": "c.created_at",
	}
	column, ok := allowedSorts[sortBy]
	if !ok {
		column = "c.start_date"
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

	query := fmt.Sprintf("%s %s WHERE %s ORDER BY %s %s LIMIT %d OFFSET %d",
		cohortDetailSelect, cohortDetailFrom, whereClause, column, order, size, offset)

	var cohorts []models.CohortDetail
	if err := r.db.SelectContext(ctx, &cohorts, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list cohorts: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", cohortDetailFrom, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count cohorts: %w", err)
	}
	return cohorts, total, nil
}

// FindByID fetches a cohort detail by ID.
func (r *CohortRepository) FindByID(ctx context.Context, id string) (*models.CohortDetail, error) {
	query := fmt.Sprintf("%s %s WHERE c.id = $1", cohortDetailSelect, cohortDetailFrom)
	var detail models.CohortDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ListOpenByLevelGroups returns open-enrollment cohorts whose current level
// sits in one of the given groups and which still have free capacity.
func (r *CohortRepository) ListOpenByLevelGroups(ctx context.Context, groups []string) ([]models.CohortDetail, error) {
	query := fmt.Sprintf(`%s %s
        WHERE c.status = $1 AND cl.level_group = ANY($2)
        ORDER BY c.start_date ASC`, cohortDetailSelect, cohortDetailFrom)
	var cohorts []models.CohortDetail
	if err := r.db.SelectContext(ctx, &cohorts, query, models.CohortEnrollmentOpen, pq.Array(groups)); err != nil {
		return nil, fmt.Errorf("list open cohorts: %w", err)
	}
	filtered := cohorts[:0]
	for _, c := range cohorts {
		if c.MaxStudents <= 0 || c.EnrolledCount < c.MaxStudents {
			filtered = append(filtered, c)
		}
	}
	return filtered, nil
}

// Create inserts a new cohort.
func (r *CohortRepository) Create(ctx context.Context, cohort *models.Cohort) error {
	if cohort.ID == "" {
		cohort.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if cohort.CreatedAt.IsZero() {
		cohort.CreatedAt = now
	}
	cohort.UpdatedAt = now
	const query = `INSERT INTO cohorts (id, product_id, starting_level_id, current_level_id, status, room_type, max_students, start_date, setup_finalized, created_at, updated_at)
        VALUES (:id, :product_id, :starting_level_id, :current_level_id, :status, :room_type, :max_students, :start_date, :setup_finalized, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, cohort); err != nil {
		return fmt.Errorf("create cohort: %w", err)
	}
	return nil
}

// Update modifies an existing cohort.
func (r *CohortRepository) Update(ctx context.Context, cohort *models.Cohort) error {
	cohort.UpdatedAt = time.Now().UTC()
	const query = `UPDATE cohorts SET product_id = :product_id, starting_level_id = :starting_level_id, current_level_id = :current_level_id,
        status = :status, room_type = :room_type, max_students = :max_students, start_date = :start_date, updated_at = :updated_at
        WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, cohort); err != nil {
		return fmt.Errorf("update cohort: %w", err)
	}
	return nil
}

// MarkSetupFinalized flips the setup_finalized flag exactly once. Returns the
// number of affected rows so the caller can detect a repeat call.
func (r *CohortRepository) MarkSetupFinalized(ctx context.Context, id string) (int64, error) {
	const query = `UPDATE cohorts SET setup_finalized = true, updated_at = $2 WHERE id = $1 AND setup_finalized = false`
	res, err := r.db.ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("finalize cohort setup: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("finalize cohort setup: %w", err)
	}
	return affected, nil
}
