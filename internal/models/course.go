package models

import "time"

// Course describes a certification course offered by the shop.
type Course struct {
	ID            string    `db:"id" json:"id"`
	Code          string    `db:"code" json:"code"`
	Name          string    `db:"name" json:"name"`
	Description   string    `db:"description" json:"description,omitempty"`
	DurationDays  int       `db:"duration_days" json:"duration_days"`
	Price         float64   `db:"price" json:"price"`
	Prerequisites RuleSet   `db:"-" json:"prerequisites"`
	Active        bool      `db:"active" json:"active"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// RequirementKind groups checklist items by how evidence is captured.
type RequirementKind string

// Checklist evidence kinds.
const (
	RequirementKindWaiver    RequirementKind = "waiver"
	RequirementKindPhoto     RequirementKind = "photo"
	RequirementKindELearning RequirementKind = "elearning"
	RequirementKindDocument  RequirementKind = "document"
	RequirementKindOther     RequirementKind = "other"
)

// RequirementType is a catalog entry for a kind of checklist item.
type RequirementType struct {
	ID          string          `db:"id" json:"id"`
	Code        string          `db:"code" json:"code"`
	Name        string          `db:"name" json:"name"`
	Description string          `db:"description" json:"description,omitempty"`
	Kind        RequirementKind `db:"kind" json:"kind"`
	Active      bool            `db:"active" json:"active"`
}

// CourseRequirement attaches a requirement type to a course.
type CourseRequirement struct {
	ID                string `db:"id" json:"id"`
	CourseID          string `db:"course_id" json:"course_id"`
	RequirementTypeID string `db:"requirement_type_id" json:"requirement_type_id"`
	Mandatory         bool   `db:"mandatory" json:"mandatory"`
	SortOrder         int    `db:"sort_order" json:"sort_order"`
	Instructions      string `db:"instructions" json:"instructions,omitempty"`
}

// CourseRequirementDetail joins a course requirement with its type catalog row.
type CourseRequirementDetail struct {
	CourseRequirement
	TypeCode string          `db:"type_code" json:"type_code"`
	TypeName string          `db:"type_name" json:"type_name"`
	Kind     RequirementKind `db:"kind" json:"kind"`
}

// CourseEligibility pairs a course with the customer's eligibility verdict,
// used by the "which courses can this customer take" listing.
type CourseEligibility struct {
	Course    Course            `json:"course"`
	CanEnroll bool              `json:"can_enroll"`
	Result    EligibilityResult `json:"result"`
}
