package models

import "time"

// EnrollmentStatus is a student's funnel state within a cohort.
type EnrollmentStatus string

const (
	EnrollmentInterested         EnrollmentStatus = "interested"
	EnrollmentBeginnerFormFilled EnrollmentStatus = "beginner_form_filled"
	EnrollmentContractSigned     EnrollmentStatus = "contract_signed"
	EnrollmentPaid               EnrollmentStatus = "paid"
	EnrollmentWelcomeSent        EnrollmentStatus = "welcome_package_sent"
	EnrollmentDroppedOut         EnrollmentStatus = "dropped_out"
	EnrollmentDeclined           EnrollmentStatus = "declined"
	EnrollmentAbandoned          EnrollmentStatus = "abandoned"
)

// Valid reports whether the enrollment status is a supported value.
func (s EnrollmentStatus) Valid() bool {
	_, ok := enrollmentTransitions[s]
	return ok
}

// Terminal reports whether the status ends the funnel.
func (s EnrollmentStatus) Terminal() bool {
	switch s {
	case EnrollmentWelcomeSent, EnrollmentDroppedOut, EnrollmentDeclined, EnrollmentAbandoned:
		return true
	default:
		return false
	}
}

// enrollmentTransitions defines the allowed funnel edges. Every non-terminal
// state can additionally drop to dropped_out, declined or abandoned.
var enrollmentTransitions = map[EnrollmentStatus][]EnrollmentStatus{
	EnrollmentInterested:         {EnrollmentBeginnerFormFilled, EnrollmentContractSigned},
	EnrollmentBeginnerFormFilled: {EnrollmentContractSigned},
	EnrollmentContractSigned:     {EnrollmentPaid},
	EnrollmentPaid:               {EnrollmentWelcomeSent},
	EnrollmentWelcomeSent:        {},
	EnrollmentDroppedOut:         {},
	EnrollmentDeclined:           {},
	EnrollmentAbandoned:          {},
}

// CanTransition reports whether moving from s to next follows a defined edge.
func (s EnrollmentStatus) CanTransition(next EnrollmentStatus) bool {
	if s == next {
		return false
	}
	if !s.Terminal() {
		switch next {
		case EnrollmentDroppedOut, EnrollmentDeclined, EnrollmentAbandoned:
			return true
		}
	}
	for _, allowed := range enrollmentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Enrollment joins a student to a cohort with a funnel status.
// StatusChangedAt feeds the abandonment sweep.
type Enrollment struct {
	ID              string           `db:"id" json:"id"`
	StudentID       string           `db:"student_id" json:"student_id"`
	CohortID        string           `db:"cohort_id" json:"cohort_id"`
	Status          EnrollmentStatus `db:"status" json:"status"`
	StatusChangedAt time.Time        `db:"status_changed_at" json:"status_changed_at"`
	Notes           *string          `db:"notes" json:"notes,omitempty"`
	CreatedAt       time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time        `db:"updated_at" json:"updated_at"`
}

// EnrollmentDetail enriches Enrollment with student and cohort info.
type EnrollmentDetail struct {
	Enrollment
	StudentName     string `db:"student_name" json:"student_name"`
	StudentEmail    string `db:"student_email" json:"student_email"`
	ProductName     string `db:"product_name" json:"product_name"`
	CohortLevelCode string `db:"cohort_level_code" json:"cohort_level_code"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	StudentID string
	CohortID  string
	Status    EnrollmentStatus
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
