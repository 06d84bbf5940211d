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

// FollowUpRepository manages sequence templates, their messages and running
// follow-up instances.
type FollowUpRepository struct {
	db *sqlx.DB
}

// NewFollowUpRepository constructs a FollowUpRepository.
func NewFollowUpRepository(db *sqlx.DB) *FollowUpRepository {
	return &FollowUpRepository{db: db}
}

// ListSequences returns all sequence templates.
func (r *FollowUpRepository) ListSequences(ctx context.Context, activeOnly bool) ([]models.TemplateFollowUpSequence, error) {
	query := `SELECT id, name, trigger_slug, active, created_at, updated_at FROM template_follow_up_sequences`
	if activeOnly {
		query += ` WHERE active = true`
	}
	query += ` ORDER BY name ASC`
	var sequences []models.TemplateFollowUpSequence
	if err := r.db.SelectContext(ctx, &sequences, query); err != nil {
		return nil, fmt.Errorf("list sequences: %w", err)
	}
	return sequences, nil
}

// FindSequenceByID fetches one sequence template.
func (r *FollowUpRepository) FindSequenceByID(ctx context.Context, id string) (*models.TemplateFollowUpSequence, error) {
	const query = `SELECT id, name, trigger_slug, active, created_at, updated_at FROM template_follow_up_sequences WHERE id = $1`
	var sequence models.TemplateFollowUpSequence
	if err := r.db.GetContext(ctx, &sequence, query, id); err != nil {
		return nil, err
	}
	return &sequence, nil
}

// CreateSequence inserts a sequence template.
func (r *FollowUpRepository) CreateSequence(ctx context.Context, sequence *models.TemplateFollowUpSequence) error {
	if sequence.ID == "" {
		sequence.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if sequence.CreatedAt.IsZero() {
		sequence.CreatedAt = now
	}
	sequence.UpdatedAt = now
	const query = `INSERT INTO template_follow_up_sequences (id, name, trigger_slug, active, created_at, updated_at)
        VALUES (:id, :name, :trigger_slug, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, sequence); err != nil {
		return fmt.Errorf("create sequence: %w", err)
	}
	return nil
}

// UpdateSequence modifies a sequence template.
func (r *FollowUpRepository) UpdateSequence(ctx context.Context, sequence *models.TemplateFollowUpSequence) error {
	sequence.UpdatedAt = time.Now().UTC()
	const query = `UPDATE template_follow_up_sequences SET name = :name, trigger_slug = :trigger_slug,
        active = :active, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, sequence); err != nil {
		return fmt.Errorf("update sequence: %w", err)
	}
	return nil
}

// ListMessages returns a sequence's messages ordered by step.
func (r *FollowUpRepository) ListMessages(ctx context.Context, sequenceID string) ([]models.TemplateFollowUpMessage, error) {
	const query = `SELECT id, sequence_id, step_index, delay_hours, content, created_at
        FROM template_follow_up_messages WHERE sequence_id = $1 ORDER BY step_index ASC`
	var messages []models.TemplateFollowUpMessage
	if err := r.db.SelectContext(ctx, &messages, query, sequenceID); err != nil {
		return nil, fmt.Errorf("list sequence messages: %w", err)
	}
	return messages, nil
}

// FindMessageByStep fetches the message at a given step of a sequence.
func (r *FollowUpRepository) FindMessageByStep(ctx context.Context, sequenceID string, step int) (*models.TemplateFollowUpMessage, error) {
	const query = `SELECT id, sequence_id, step_index, delay_hours, content, created_at
        FROM template_follow_up_messages WHERE sequence_id = $1 AND step_index = $2`
	var message models.TemplateFollowUpMessage
	if err := r.db.GetContext(ctx, &message, query, sequenceID, step); err != nil {
		return nil, err
	}
	return &message, nil
}

// ReplaceMessages swaps a sequence's full message list in one transaction.
func (r *FollowUpRepository) ReplaceMessages(ctx context.Context, sequenceID string, messages []*models.TemplateFollowUpMessage) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace messages: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM template_follow_up_messages WHERE sequence_id = $1`, sequenceID); err != nil {
		return fmt.Errorf("clear sequence messages: %w", err)
	}
	const insert = `INSERT INTO template_follow_up_messages (id, sequence_id, step_index, delay_hours, content, created_at)
        VALUES (:id, :sequence_id, :step_index, :delay_hours, :content, :created_at)`
	now := time.Now().UTC()
	for _, message := range messages {
		if message.ID == "" {
			message.ID = uuid.NewString()
		}
		message.SequenceID = sequenceID
		if message.CreatedAt.IsZero() {
			message.CreatedAt = now
		}
		if _, err := tx.NamedExecContext(ctx, insert, message); err != nil {
			return fmt.Errorf("insert sequence message: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace messages: %w", err)
	}
	return nil
}

const followUpDetailSelect = `SELECT f.id, f.student_id, f.sequence_id, f.current_step, f.status,
        f.next_due_at, f.last_advanced_at, f.created_at, f.updated_at,
        s.full_name AS student_name, s.email AS student_email, s.phone AS student_phone,
        seq.name AS sequence_name
        FROM automated_follow_ups f
        JOIN students s ON s.id = f.student_id
        JOIN template_follow_up_sequences seq ON seq.id = f.sequence_id`

// ListInstances returns follow-up instances matching the filters.
func (r *FollowUpRepository) ListInstances(ctx context.Context, filter models.FollowUpFilter) ([]models.AutomatedFollowUpDetail, int, error) {
	args := []interface{}{}
	conditions := []string{"1=1"}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("f.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.SequenceID != "" {
		conditions = append(conditions, fmt.Sprintf("f.sequence_id = $%d", len(args)+1))
		args = append(args, filter.SequenceID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("f.status = $%d", len(args)+1))
		args = append(args, filter.Status)
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

	query := fmt.Sprintf("%s WHERE %s ORDER BY f.created_at DESC LIMIT %d OFFSET %d",
		followUpDetailSelect, whereClause, size, offset)

	var instances []models.AutomatedFollowUpDetail
	if err := r.db.SelectContext(ctx, &instances, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list follow-ups: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM automated_follow_ups f WHERE %s", whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count follow-ups: %w", err)
	}
	return instances, total, nil
}

// FindInstanceByID fetches one follow-up instance with context joined in.
func (r *FollowUpRepository) FindInstanceByID(ctx context.Context, id string) (*models.AutomatedFollowUpDetail, error) {
	query := followUpDetailSelect + ` WHERE f.id = $1`
	var instance models.AutomatedFollowUpDetail
	if err := r.db.GetContext(ctx, &instance, query, id); err != nil {
		return nil, err
	}
	return &instance, nil
}

// FindActiveInstance returns the student's non-terminal instance, if any.
// A student runs at most one follow-up at a time, across all sequences.
func (r *FollowUpRepository) FindActiveInstance(ctx context.Context, studentID string) (*models.AutomatedFollowUp, error) {
	const query = `SELECT id, student_id, sequence_id, current_step, status, next_due_at, last_advanced_at, created_at, updated_at
        FROM automated_follow_ups
        WHERE student_id = $1 AND status IN ($2, $3)
        LIMIT 1`
	var instance models.AutomatedFollowUp
	err := r.db.GetContext(ctx, &instance, query, studentID,
		models.FollowUpActivated, models.FollowUpOngoing)
	if err != nil {
		return nil, err
	}
	return &instance, nil
}

// ListDue returns instances whose next step is due at or before now, oldest
// first, capped at limit.
func (r *FollowUpRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]models.AutomatedFollowUpDetail, error) {
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`%s WHERE f.status IN ($1, $2) AND f.next_due_at IS NOT NULL AND f.next_due_at <= $3
        ORDER BY f.next_due_at ASC LIMIT %d`, followUpDetailSelect, limit)
	var due []models.AutomatedFollowUpDetail
	if err := r.db.SelectContext(ctx, &due, query, models.FollowUpActivated, models.FollowUpOngoing, now.UTC()); err != nil {
		return nil, fmt.Errorf("list due follow-ups: %w", err)
	}
	return due, nil
}

// CreateInstance inserts a new follow-up instance.
func (r *FollowUpRepository) CreateInstance(ctx context.Context, instance *models.AutomatedFollowUp) error {
	if instance.ID == "" {
		instance.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if instance.CreatedAt.IsZero() {
		instance.CreatedAt = now
	}
	instance.UpdatedAt = now
	const query = `INSERT INTO automated_follow_ups (id, student_id, sequence_id, current_step, status, next_due_at, last_advanced_at, created_at, updated_at)
        VALUES (:id, :student_id, :sequence_id, :current_step, :status, :next_due_at, :last_advanced_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, instance); err != nil {
		return fmt.Errorf("create follow-up: %w", err)
	}
	return nil
}

// Advance moves an instance forward one step. The WHERE clause re-checks the
// expected step and a live status so concurrent scans cannot double-advance.
func (r *FollowUpRepository) Advance(ctx context.Context, id string, fromStep int, toStatus models.FollowUpStatus, nextDueAt *time.Time) (bool, error) {
	now := time.Now().UTC()
	const query = `UPDATE automated_follow_ups
        SET current_step = current_step + 1, status = $2, next_due_at = $3, last_advanced_at = $4, updated_at = $4
        WHERE id = $1 AND current_step = $5 AND status IN ($6, $7)`
	res, err := r.db.ExecContext(ctx, query, id, toStatus, nextDueAt, now, fromStep,
		models.FollowUpActivated, models.FollowUpOngoing)
	if err != nil {
		return false, fmt.Errorf("advance follow-up: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("advance follow-up: %w", err)
	}
	return affected == 1, nil
}

// SetStatus freezes or updates an instance's status. Returns false when the
// instance was already terminal.
func (r *FollowUpRepository) SetStatus(ctx context.Context, id string, status models.FollowUpStatus) (bool, error) {
	const query = `UPDATE automated_follow_ups SET status = $2, next_due_at = NULL, updated_at = $3
        WHERE id = $1 AND status IN ($4, $5)`
	res, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC(),
		models.FollowUpActivated, models.FollowUpOngoing)
	if err != nil {
		return false, fmt.Errorf("set follow-up status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set follow-up status: %w", err)
	}
	return affected == 1, nil
}
