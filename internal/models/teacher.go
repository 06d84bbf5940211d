package models

import (
	"time"

	"github.com/lib/pq"
)

// TeacherOnboardingStatus tracks a teacher's lifecycle with the school.
type TeacherOnboardingStatus string

const (
	TeacherOnboarding TeacherOnboardingStatus = "onboarding"
	TeacherActive     TeacherOnboardingStatus = "active"
	TeacherOffboarded TeacherOnboardingStatus = "offboarded"
)

// Valid reports whether the onboarding status is a supported value.
func (s TeacherOnboardingStatus) Valid() bool {
	switch s {
	case TeacherOnboarding, TeacherActive, TeacherOffboarded:
		return true
	default:
		return false
	}
}

// Teacher represents an instructor record with availability settings.
type Teacher struct {
	ID                  string                  `db:"id" json:"id"`
	FullName            string                  `db:"full_name" json:"full_name"`
	Email               string                  `db:"email" json:"email"`
	OnboardingStatus    TeacherOnboardingStatus `db:"onboarding_status" json:"onboarding_status"`
	ContractStatus      *string                 `db:"contract_status" json:"contract_status,omitempty"`
	AvailableOnline     bool                    `db:"available_online" json:"available_online"`
	AvailableInPerson   bool                    `db:"available_in_person" json:"available_in_person"`
	AvailableForBooking bool                    `db:"available_for_booking" json:"available_for_booking"`
	QualifiedUnder16    bool                    `db:"qualified_under_16" json:"qualified_under_16"`
	AvailableDays       pq.StringArray          `db:"available_days" json:"available_days"`
	MaxWeeklyHours      float64                 `db:"max_weekly_hours" json:"max_weekly_hours"`
	MaxDailyHours       float64                 `db:"max_daily_hours" json:"max_daily_hours"`
	CalendarID          *string                 `db:"calendar_id" json:"calendar_id,omitempty"`
	CreatedAt           time.Time               `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time               `db:"updated_at" json:"updated_at"`
}

// AvailableOn reports whether the teacher works on the given weekday name
// (lowercase, e.g. "monday").
func (t Teacher) AvailableOn(day string) bool {
	for _, d := range t.AvailableDays {
		if d == day {
			return true
		}
	}
	return false
}

// TeacherFilter captures filtering options for listing teachers.
type TeacherFilter struct {
	Search           string
	OnboardingStatus TeacherOnboardingStatus
	BookingOnly      bool
	Page             int
	PageSize         int
	SortBy           string
	SortOrder        string
}

// TeacherSessionLoad is one committed weekly session used for workload math.
type TeacherSessionLoad struct {
	TeacherID string `db:"teacher_id" json:"teacher_id"`
	DayOfWeek string `db:"day_of_week" json:"day_of_week"`
	StartTime string `db:"start_time" json:"start_time"`
	EndTime   string `db:"end_time" json:"end_time"`
}

// TeacherWorkload summarises committed hours against configured caps.
type TeacherWorkload struct {
	TeacherID   string             `json:"teacher_id"`
	WeeklyHours float64            `json:"weekly_hours"`
	DailyHours  map[string]float64 `json:"daily_hours"`
	MaxWeekly   float64            `json:"max_weekly_hours"`
	MaxDaily    float64            `json:"max_daily_hours"`
}

// AvailabilityQuery is the matcher input for private-class booking.
type AvailabilityQuery struct {
	DayOfWeek     string          `json:"day_of_week"`
	Format        ProductLocation `json:"format"`
	DurationHours float64         `json:"duration_hours"`
	UnderSixteen  bool            `json:"under_sixteen"`
}

// TeacherCandidate is one availability-matcher result.
type TeacherCandidate struct {
	Teacher        Teacher `json:"teacher"`
	CommittedWeek  float64 `json:"committed_weekly_hours"`
	CommittedOnDay float64 `json:"committed_daily_hours"`
}
