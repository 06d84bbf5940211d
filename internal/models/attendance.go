package models

import "time"

// AttendanceStatus marks whether a student attended a class.
type AttendanceStatus string

const (
	AttendanceUnset       AttendanceStatus = "unset"
	AttendanceAttended    AttendanceStatus = "attended"
	AttendanceNotAttended AttendanceStatus = "not_attended"
)

// Valid reports whether the attendance status is a supported value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendanceUnset, AttendanceAttended, AttendanceNotAttended:
		return true
	default:
		return false
	}
}

// AttendanceRecord ties a student and cohort to an optional class occurrence.
// ClassID may be null for day-level tracking; student and cohort are always
// required.
type AttendanceRecord struct {
	ID        string           `db:"id" json:"id"`
	StudentID string           `db:"student_id" json:"student_id"`
	CohortID  string           `db:"cohort_id" json:"cohort_id"`
	ClassID   *string          `db:"class_id" json:"class_id,omitempty"`
	Status    AttendanceStatus `db:"status" json:"status"`
	MarkedBy  *string          `db:"marked_by" json:"marked_by,omitempty"`
	Date      time.Time        `db:"date" json:"date"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt time.Time        `db:"updated_at" json:"updated_at"`
}

// AttendanceRecordDetail adds student metadata to a record.
type AttendanceRecordDetail struct {
	AttendanceRecord
	StudentName  string `db:"student_name" json:"student_name"`
	StudentEmail string `db:"student_email" json:"student_email"`
}

// AttendanceFilter scopes attendance listing queries.
type AttendanceFilter struct {
	CohortID  string
	ClassID   string
	StudentID string
	Status    *AttendanceStatus
	DateFrom  *time.Time
	DateTo    *time.Time
	Page      int
	PageSize  int
}

// AttendanceSummary aggregates a student's record within a cohort.
type AttendanceSummary struct {
	StudentID   string  `db:"student_id" json:"student_id"`
	StudentName string  `db:"student_name" json:"student_name"`
	Attended    int     `db:"attended" json:"attended"`
	NotAttended int     `db:"not_attended" json:"not_attended"`
	Unset       int     `db:"unset" json:"unset"`
	Total       int     `db:"total" json:"total"`
	Percent     float64 `db:"-" json:"percent"`
}

// AttendanceMark is one entry of a bulk roster upsert.
type AttendanceMark struct {
	StudentID string           `json:"student_id"`
	Status    AttendanceStatus `json:"status"`
}
