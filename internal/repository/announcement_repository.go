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

// AnnouncementRepository manages broadcast announcements.
type AnnouncementRepository struct {
	db *sqlx.DB
}

// NewAnnouncementRepository constructs an AnnouncementRepository.
func NewAnnouncementRepository(db *sqlx.DB) *AnnouncementRepository {
	return &AnnouncementRepository{db: db}
}

const announcementColumns = `id, title, content, audience, target_cohort_id, priority, is_pinned, published_at, expires_at, created_by, created_at, updated_at`

// List returns announcements visible to the given audiences, pinned first
// then newest first. Expired announcements are excluded.
func (r *AnnouncementRepository) List(ctx context.Context, filter models.AnnouncementFilter) ([]models.Announcement, int, error) {
	args := []interface{}{}
	conditions := []string{"(expires_at IS NULL OR expires_at > NOW())"}

	if len(filter.Audiences) > 0 {
		audiences := make([]string, len(filter.Audiences))
		for i, a := range filter.Audiences {
			audiences[i] = string(a)
		}
		if len(filter.CohortIDs) > 0 {
			conditions = append(conditions, fmt.Sprintf("(audience = ANY($%d) OR (audience = $%d AND target_cohort_id = ANY($%d)))",
				len(args)+1, len(args)+2, len(args)+3))
			args = append(args, pq.Array(audiences), models.AnnouncementAudienceCohort, pq.Array(filter.CohortIDs))
		} else {
			conditions = append(conditions, fmt.Sprintf("audience = ANY($%d)", len(args)+1))
			args = append(args, pq.Array(audiences))
		}
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

	query := fmt.Sprintf(`SELECT %s FROM announcements WHERE %s
        ORDER BY is_pinned DESC, published_at DESC LIMIT %d OFFSET %d`, announcementColumns, whereClause, size, offset)

	var announcements []models.Announcement
	if err := r.db.SelectContext(ctx, &announcements, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list announcements: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM announcements WHERE %s", whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count announcements: %w", err)
	}
	return announcements, total, nil
}

// GetByID fetches an announcement by ID.
func (r *AnnouncementRepository) GetByID(ctx context.Context, id string) (*models.Announcement, error) {
	query := fmt.Sprintf("SELECT %s FROM announcements WHERE id = $1", announcementColumns)
	var announcement models.Announcement
	if err := r.db.GetContext(ctx, &announcement, query, id); err != nil {
		return nil, err
	}
	return &announcement, nil
}

// Create inserts an announcement.
func (r *AnnouncementRepository) Create(ctx context.Context, announcement *models.Announcement) error {
	if announcement.ID == "" {
		announcement.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if announcement.CreatedAt.IsZero() {
		announcement.CreatedAt = now
	}
	announcement.UpdatedAt = now
	if announcement.PublishedAt.IsZero() {
		announcement.PublishedAt = now
	}
	const query = `INSERT INTO announcements (id, title, content, audience, target_cohort_id, priority, is_pinned, published_at, expires_at, created_by, created_at, updated_at)
        VALUES (:id, :title, :content, :audience, :target_cohort_id, :priority, :is_pinned, :published_at, :expires_at, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, announcement); err != nil {
		return fmt.Errorf("create announcement: %w", err)
	}
	return nil
}

// Update modifies an announcement.
func (r *AnnouncementRepository) Update(ctx context.Context, announcement *models.Announcement) error {
	announcement.UpdatedAt = time.Now().UTC()
	const query = `UPDATE announcements SET title = :title, content = :content, audience = :audience,
        target_cohort_id = :target_cohort_id, priority = :priority, is_pinned = :is_pinned,
        published_at = :published_at, expires_at = :expires_at, updated_at = :updated_at
        WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, announcement); err != nil {
		return fmt.Errorf("update announcement: %w", err)
	}
	return nil
}

// Delete removes an announcement.
func (r *AnnouncementRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM announcements WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete announcement: %w", err)
	}
	return nil
}
