package models

import "time"

// CohortStatus tracks where a cohort sits in its lifecycle.
type CohortStatus string

const (
	CohortEnrollmentOpen   CohortStatus = "enrollment_open"
	CohortEnrollmentClosed CohortStatus = "enrollment_closed"
	CohortClassEnded       CohortStatus = "class_ended"
)

// Valid reports whether the cohort status is a supported value.
func (s CohortStatus) Valid() bool {
	switch s {
	case CohortEnrollmentOpen, CohortEnrollmentClosed, CohortClassEnded:
		return true
	default:
		return false
	}
}

// Cohort is one scheduled instance of a course product.
type Cohort struct {
	ID              string       `db:"id" json:"id"`
	ProductID       string       `db:"product_id" json:"product_id"`
	StartingLevelID string       `db:"starting_level_id" json:"starting_level_id"`
	CurrentLevelID  string       `db:"current_level_id" json:"current_level_id"`
	Status          CohortStatus `db:"status" json:"status"`
	RoomType        *string      `db:"room_type" json:"room_type,omitempty"`
	MaxStudents     int          `db:"max_students" json:"max_students"`
	StartDate       time.Time    `db:"start_date" json:"start_date"`
	SetupFinalized  bool         `db:"setup_finalized" json:"setup_finalized"`
	CreatedAt       time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time    `db:"updated_at" json:"updated_at"`
}

// CohortDetail enriches Cohort with product and level context.
type CohortDetail struct {
	Cohort
	ProductName       string  `db:"product_name" json:"product_name"`
	ProductFormat     string  `db:"product_format" json:"product_format"`
	StartingLevelCode string  `db:"starting_level_code" json:"starting_level_code"`
	CurrentLevelCode  string  `db:"current_level_code" json:"current_level_code"`
	EnrolledCount     int     `db:"enrolled_count" json:"enrolled_count"`
	LevelGroup        *string `db:"level_group" json:"level_group,omitempty"`
}

// CohortFilter captures listing options for cohorts.
type CohortFilter struct {
	Status    CohortStatus
	ProductID string
	LevelID   string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// WeeklySession is a recurring weekly slot belonging to a cohort.
// Times are wall-clock "HH:MM" strings, not timestamps.
type WeeklySession struct {
	ID        string    `db:"id" json:"id"`
	CohortID  string    `db:"cohort_id" json:"cohort_id"`
	DayOfWeek string    `db:"day_of_week" json:"day_of_week"`
	StartTime string    `db:"start_time" json:"start_time"`
	EndTime   string    `db:"end_time" json:"end_time"`
	TeacherID string    `db:"teacher_id" json:"teacher_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// WeeklySessionDetail adds teacher context to a session.
type WeeklySessionDetail struct {
	WeeklySession
	TeacherName  string  `db:"teacher_name" json:"teacher_name"`
	TeacherEmail string  `db:"teacher_email" json:"teacher_email"`
	CalendarID   *string `db:"calendar_id" json:"calendar_id,omitempty"`
}

// Weekdays maps lowercase weekday names to their time.Weekday value and the
// iCalendar RRULE two-letter abbreviation.
var Weekdays = map[string]struct {
	Weekday time.Weekday
	Abbrev  string
}{
	"monday":    {time.Monday, "MO"},
	"tuesday":   {time.Tuesday, "TU"},
	"wednesday": {time.Wednesday, "WE"},
	"thursday":  {time.Thursday, "TH"},
	"friday":    {time.Friday, "FR"},
	"saturday":  {time.Saturday, "SA"},
	"sunday":    {time.Sunday, "SU"},
}
