package models

import "time"

// ClassStatus is the lifecycle of a single dated class occurrence.
type ClassStatus string

const (
	ClassScheduled  ClassStatus = "scheduled"
	ClassInProgress ClassStatus = "in_progress"
	ClassCompleted  ClassStatus = "completed"
	ClassCancelled  ClassStatus = "cancelled"
)

// Valid reports whether the class status is a supported value.
func (s ClassStatus) Valid() bool {
	switch s {
	case ClassScheduled, ClassInProgress, ClassCompleted, ClassCancelled:
		return true
	default:
		return false
	}
}

// Class is one concrete calendar occurrence derived from a weekly session.
type Class struct {
	ID              string      `db:"id" json:"id"`
	CohortID        string      `db:"cohort_id" json:"cohort_id"`
	WeeklySessionID *string     `db:"weekly_session_id" json:"weekly_session_id,omitempty"`
	TeacherID       string      `db:"teacher_id" json:"teacher_id"`
	StartsAt        time.Time   `db:"starts_at" json:"starts_at"`
	EndsAt          time.Time   `db:"ends_at" json:"ends_at"`
	Status          ClassStatus `db:"status" json:"status"`
	MeetingLink     *string     `db:"meeting_link" json:"meeting_link,omitempty"`
	CreatedAt       time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time   `db:"updated_at" json:"updated_at"`
}

// ClassDetail adds teacher and product context to a class row.
type ClassDetail struct {
	Class
	TeacherName string `db:"teacher_name" json:"teacher_name"`
	ProductName string `db:"product_name" json:"product_name"`
}

// ClassFilter scopes class listing queries.
type ClassFilter struct {
	CohortID  string
	TeacherID string
	Status    ClassStatus
	From      *time.Time
	To        *time.Time
	Page      int
	PageSize  int
	SortOrder string
}
