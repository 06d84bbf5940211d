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

// TouchpointRepository stores the append-only communication log.
type TouchpointRepository struct {
	db *sqlx.DB
}

// NewTouchpointRepository constructs a TouchpointRepository.
func NewTouchpointRepository(db *sqlx.DB) *TouchpointRepository {
	return &TouchpointRepository{db: db}
}

// ListByStudent returns a student's touchpoints newest first.
func (r *TouchpointRepository) ListByStudent(ctx context.Context, studentID string, page, size int) ([]models.Touchpoint, int, error) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT id, student_id, follow_up_id, channel, direction, source, note, occurred_at, created_at
        FROM touchpoints WHERE student_id = $1
        ORDER BY occurred_at DESC LIMIT %d OFFSET %d`, size, offset)

	var touchpoints []models.Touchpoint
	if err := r.db.SelectContext(ctx, &touchpoints, query, studentID); err != nil {
		return nil, 0, fmt.Errorf("list touchpoints: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM touchpoints WHERE student_id = $1`, studentID); err != nil {
		return nil, 0, fmt.Errorf("count touchpoints: %w", err)
	}
	return touchpoints, total, nil
}

// ListByFollowUp returns the touchpoints a follow-up instance produced.
func (r *TouchpointRepository) ListByFollowUp(ctx context.Context, followUpID string) ([]models.Touchpoint, error) {
	const query = `SELECT id, student_id, follow_up_id, channel, direction, source, note, occurred_at, created_at
        FROM touchpoints WHERE follow_up_id = $1 ORDER BY occurred_at ASC`
	var touchpoints []models.Touchpoint
	if err := r.db.SelectContext(ctx, &touchpoints, query, followUpID); err != nil {
		return nil, fmt.Errorf("list follow-up touchpoints: %w", err)
	}
	return touchpoints, nil
}

// Create appends a touchpoint.
func (r *TouchpointRepository) Create(ctx context.Context, touchpoint *models.Touchpoint) error {
	if touchpoint.ID == "" {
		touchpoint.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if touchpoint.CreatedAt.IsZero() {
		touchpoint.CreatedAt = now
	}
	if touchpoint.OccurredAt.IsZero() {
		touchpoint.OccurredAt = now
	}
	touchpoint.Source = strings.TrimSpace(touchpoint.Source)
	const query = `INSERT INTO touchpoints (id, student_id, follow_up_id, channel, direction, source, note, occurred_at, created_at)
        VALUES (:id, :student_id, :follow_up_id, :channel, :direction, :source, :note, :occurred_at, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, touchpoint); err != nil {
		return fmt.Errorf("create touchpoint: %w", err)
	}
	return nil
}
