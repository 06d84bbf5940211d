package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/lingoria/school-ops-api/internal/models"
)

// ChatRepository stores cohort chat messages.
type ChatRepository struct {
	db *sqlx.DB
}

// NewChatRepository constructs a ChatRepository.
func NewChatRepository(db *sqlx.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

// List returns a cohort's messages newest first, optionally only those before
// a cursor instant.
func (r *ChatRepository) List(ctx context.Context, filter models.ChatFilter) ([]models.ChatMessage, int, error) {
	args := []interface{}{filter.CohortID}
	where := "cohort_id = $1"
	if filter.Before != nil {
		where += fmt.Sprintf(" AND created_at < $%d", len(args)+1)
		args = append(args, filter.Before.UTC())
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT id, cohort_id, author_type, author_id, author_name, body, created_at
        FROM chat_messages WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d`, where, size, offset)

	var messages []models.ChatMessage
	if err := r.db.SelectContext(ctx, &messages, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list chat messages: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM chat_messages WHERE %s", where)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count chat messages: %w", err)
	}
	return messages, total, nil
}

// Create appends a chat message.
func (r *ChatRepository) Create(ctx context.Context, message *models.ChatMessage) error {
	if message.ID == "" {
		message.ID = uuid.NewString()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO chat_messages (id, cohort_id, author_type, author_id, author_name, body, created_at)
        VALUES (:id, :cohort_id, :author_type, :author_id, :author_name, :body, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, message); err != nil {
		return fmt.Errorf("create chat message: %w", err)
	}
	return nil
}
