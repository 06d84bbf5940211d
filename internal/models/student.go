package models

import (
	"strings"
	"time"
)

// Student represents a learner registered with the school.
type Student struct {
	ID              string     `db:"id" json:"id"`
	FullName        string     `db:"full_name" json:"full_name"`
	Email           string     `db:"email" json:"email"`
	Phone           *string    `db:"phone" json:"phone,omitempty"`
	DesiredLevelID  *string    `db:"desired_level_id" json:"desired_level_id,omitempty"`
	Channel         *string    `db:"channel" json:"channel,omitempty"`
	Source          *string    `db:"source" json:"source,omitempty"`
	UnderSixteen    bool       `db:"under_sixteen" json:"under_sixteen"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt       *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
}

// FirstName derives the first token of the full name.
func (s Student) FirstName() string {
	parts := strings.Fields(s.FullName)
	if len(parts) == 0 {
		return ""
	}
	return parts[0]
}

// LastName derives everything past the first token of the full name.
func (s Student) LastName() string {
	parts := strings.Fields(s.FullName)
	if len(parts) < 2 {
		return ""
	}
	return strings.Join(parts[1:], " ")
}

// StudentDetail enriches Student with desired-level context.
type StudentDetail struct {
	Student
	DesiredLevelCode  *string `db:"desired_level_code" json:"desired_level_code,omitempty"`
	DesiredLevelGroup *string `db:"desired_level_group" json:"desired_level_group,omitempty"`
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search         string
	DesiredLevelID string
	Channel        string
	IncludeDeleted bool
	Page           int
	PageSize       int
	SortBy         string
	SortOrder      string
}
