package models

import "time"

// RequirementStatus marks a checklist item's progress.
type RequirementStatus string

// Checklist item statuses.
const (
	RequirementStatusPending   RequirementStatus = "pending"
	RequirementStatusCompleted RequirementStatus = "completed"
)

// EnrollmentRequirement is one checklist item tracked for an enrollment.
// Rows are created pending when the checklist is built and only move to
// completed through an explicit verification; they are never deleted while
// the enrollment is active.
type EnrollmentRequirement struct {
	ID                string            `db:"id" json:"id"`
	EnrollmentID      string            `db:"enrollment_id" json:"enrollment_id"`
	RequirementTypeID string            `db:"requirement_type_id" json:"requirement_type_id"`
	Status            RequirementStatus `db:"status" json:"status"`
	Completed         bool              `db:"is_completed" json:"is_completed"`
	CompletedAt       *time.Time        `db:"completed_at" json:"completed_at,omitempty"`
	VerifiedBy        *string           `db:"verified_by" json:"verified_by,omitempty"`
	VerifiedAt        *time.Time        `db:"verified_at" json:"verified_at,omitempty"`
	WaiverID          *string           `db:"waiver_id" json:"waiver_id,omitempty"`
	ELearningDate     *time.Time        `db:"elearning_completion_date" json:"elearning_completion_date,omitempty"`
	PhotoPath         *string           `db:"photo_path" json:"photo_path,omitempty"`
	DocumentPath      *string           `db:"document_path" json:"document_path,omitempty"`
	Notes             *string           `db:"notes" json:"notes,omitempty"`
	ReminderSent      bool              `db:"reminder_sent" json:"reminder_sent"`
	ReminderSentAt    *time.Time        `db:"reminder_sent_at" json:"reminder_sent_at,omitempty"`
	ReminderCount     int               `db:"reminder_count" json:"reminder_count"`
	CreatedAt         time.Time         `db:"created_at" json:"created_at"`
}

// EnrollmentRequirementDetail joins a checklist item with its catalog entry.
type EnrollmentRequirementDetail struct {
	EnrollmentRequirement
	TypeCode     string          `db:"type_code" json:"type_code"`
	TypeName     string          `db:"type_name" json:"type_name"`
	Kind         RequirementKind `db:"kind" json:"kind"`
	Mandatory    bool            `db:"mandatory" json:"mandatory"`
	Instructions string          `db:"instructions" json:"instructions,omitempty"`
}

// RequirementPayload carries the type-specific evidence supplied when a
// checklist item is verified. Nil fields are left untouched on update; the
// progressive-disclosure forms only submit the fields their kind needs.
type RequirementPayload struct {
	WaiverID      *string    `json:"waiver_id,omitempty"`
	ELearningDate *time.Time `json:"elearning_completion_date,omitempty"`
	PhotoPath     *string    `json:"photo_path,omitempty"`
	DocumentPath  *string    `json:"document_path,omitempty"`
	Notes         *string    `json:"notes,omitempty"`
}
