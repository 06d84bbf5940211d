package models

import "time"

// ChatAuthorType identifies who wrote a cohort chat message.
type ChatAuthorType string

const (
	ChatAuthorAdmin   ChatAuthorType = "admin"
	ChatAuthorTeacher ChatAuthorType = "teacher"
	ChatAuthorStudent ChatAuthorType = "student"
)

// Valid reports whether the author type is a supported value.
func (t ChatAuthorType) Valid() bool {
	switch t {
	case ChatAuthorAdmin, ChatAuthorTeacher, ChatAuthorStudent:
		return true
	default:
		return false
	}
}

// ChatMessage is one message in a cohort's chat thread. Clients poll the
// paginated list; there is no server push.
type ChatMessage struct {
	ID         string         `db:"id" json:"id"`
	CohortID   string         `db:"cohort_id" json:"cohort_id"`
	AuthorType ChatAuthorType `db:"author_type" json:"author_type"`
	AuthorID   string         `db:"author_id" json:"author_id"`
	AuthorName string         `db:"author_name" json:"author_name"`
	Body       string         `db:"body" json:"body"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
}

// ChatFilter scopes chat listing queries.
type ChatFilter struct {
	CohortID string
	Before   *time.Time
	Page     int
	PageSize int
}
