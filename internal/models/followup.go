package models

import "time"

// FollowUpStatus is the state of a running follow-up instance.
type FollowUpStatus string

const (
	FollowUpActivated FollowUpStatus = "activated"
	FollowUpOngoing   FollowUpStatus = "ongoing"
	FollowUpCompleted FollowUpStatus = "completed"
	FollowUpDisabled  FollowUpStatus = "disabled"
	FollowUpFailed    FollowUpStatus = "failed"
)

// Valid reports whether the follow-up status is a supported value.
func (s FollowUpStatus) Valid() bool {
	switch s {
	case FollowUpActivated, FollowUpOngoing, FollowUpCompleted, FollowUpDisabled, FollowUpFailed:
		return true
	default:
		return false
	}
}

// Terminal reports whether the state is frozen: the advance operation never
// leaves completed, disabled or failed.
func (s FollowUpStatus) Terminal() bool {
	switch s {
	case FollowUpCompleted, FollowUpDisabled, FollowUpFailed:
		return true
	default:
		return false
	}
}

// TemplateFollowUpSequence is a reusable, ordered message campaign.
type TemplateFollowUpSequence struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Trigger   string    `db:"trigger_slug" json:"trigger_slug"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// TemplateFollowUpMessage is one ordered step within a sequence.
// StepIndex starts at 1.
type TemplateFollowUpMessage struct {
	ID         string    `db:"id" json:"id"`
	SequenceID string    `db:"sequence_id" json:"sequence_id"`
	StepIndex  int       `db:"step_index" json:"step_index"`
	DelayHours int       `db:"delay_hours" json:"delay_hours"`
	Content    string    `db:"content" json:"content"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// AutomatedFollowUp is a running instance of a sequence for one student.
// CurrentStep only ever increases until completion or disablement.
type AutomatedFollowUp struct {
	ID             string         `db:"id" json:"id"`
	StudentID      string         `db:"student_id" json:"student_id"`
	SequenceID     string         `db:"sequence_id" json:"sequence_id"`
	CurrentStep    int            `db:"current_step" json:"current_step"`
	Status         FollowUpStatus `db:"status" json:"status"`
	NextDueAt      *time.Time     `db:"next_due_at" json:"next_due_at,omitempty"`
	LastAdvancedAt *time.Time     `db:"last_advanced_at" json:"last_advanced_at,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// AutomatedFollowUpDetail adds student and sequence context.
type AutomatedFollowUpDetail struct {
	AutomatedFollowUp
	StudentName  string  `db:"student_name" json:"student_name"`
	StudentEmail string  `db:"student_email" json:"student_email"`
	StudentPhone *string `db:"student_phone" json:"student_phone,omitempty"`
	SequenceName string  `db:"sequence_name" json:"sequence_name"`
}

// FollowUpFilter scopes follow-up instance listing.
type FollowUpFilter struct {
	StudentID  string
	SequenceID string
	Status     FollowUpStatus
	Page       int
	PageSize   int
}

// TouchpointChannel is the medium of a logged communication event.
type TouchpointChannel string

const (
	TouchpointEmail    TouchpointChannel = "email"
	TouchpointWhatsApp TouchpointChannel = "whatsapp"
	TouchpointPhone    TouchpointChannel = "phone"
	TouchpointInPerson TouchpointChannel = "in_person"
)

// TouchpointDirection distinguishes inbound from outbound events.
type TouchpointDirection string

const (
	TouchpointInbound  TouchpointDirection = "inbound"
	TouchpointOutbound TouchpointDirection = "outbound"
)

// Touchpoint logs one communication event with a student.
type Touchpoint struct {
	ID         string              `db:"id" json:"id"`
	StudentID  string              `db:"student_id" json:"student_id"`
	FollowUpID *string             `db:"follow_up_id" json:"follow_up_id,omitempty"`
	Channel    TouchpointChannel   `db:"channel" json:"channel"`
	Direction  TouchpointDirection `db:"direction" json:"direction"`
	Source     string              `db:"source" json:"source"`
	Note       *string             `db:"note" json:"note,omitempty"`
	OccurredAt time.Time           `db:"occurred_at" json:"occurred_at"`
	CreatedAt  time.Time           `db:"created_at" json:"created_at"`
}
