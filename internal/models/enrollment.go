package models

import "time"

// EnrollmentStatus represents the lifecycle of a course enrollment.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusEnrolled   EnrollmentStatus = "enrolled"
	EnrollmentStatusInProgress EnrollmentStatus = "in_progress"
	EnrollmentStatusCompleted  EnrollmentStatus = "completed"
	EnrollmentStatusCertified  EnrollmentStatus = "certified"
	EnrollmentStatusCancelled  EnrollmentStatus = "cancelled"
)

// Active reports whether the status still occupies a seat.
func (s EnrollmentStatus) Active() bool {
	return s == EnrollmentStatusEnrolled || s == EnrollmentStatusInProgress
}

// PaymentStatus describes how much of the course price has been paid.
type PaymentStatus string

// Possible payment statuses.
const (
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusPartial PaymentStatus = "partial"
	PaymentStatusPending PaymentStatus = "pending"
)

// DerivePaymentStatus maps an amount paid against the course price.
func DerivePaymentStatus(amountPaid, price float64) PaymentStatus {
	switch {
	case amountPaid >= price:
		return PaymentStatusPaid
	case amountPaid > 0:
		return PaymentStatusPartial
	default:
		return PaymentStatusPending
	}
}

// CourseEnrollment is a customer's admission record into one schedule.
// At most one non-cancelled enrollment may exist per (schedule, customer).
type CourseEnrollment struct {
	ID                  string           `db:"id" json:"id"`
	ScheduleID          string           `db:"schedule_id" json:"schedule_id"`
	CustomerID          string           `db:"customer_id" json:"customer_id"`
	EnrollmentDate      time.Time        `db:"enrollment_date" json:"enrollment_date"`
	Status              EnrollmentStatus `db:"status" json:"status"`
	AmountPaid          float64          `db:"amount_paid" json:"amount_paid"`
	PaymentStatus       PaymentStatus    `db:"payment_status" json:"payment_status"`
	FinalGrade          *string          `db:"final_grade" json:"final_grade,omitempty"`
	CertificationNumber *string          `db:"certification_number" json:"certification_number,omitempty"`
	CompletionDate      *time.Time       `db:"completion_date" json:"completion_date,omitempty"`
	Notes               string           `db:"notes" json:"notes,omitempty"`
	CreatedBy           string           `db:"created_by" json:"created_by"`
	CreatedAt           time.Time        `db:"created_at" json:"created_at"`
}

// EnrollmentDetail enriches an enrollment with customer, course, schedule and
// instructor context needed by the workflow and roster views.
type EnrollmentDetail struct {
	CourseEnrollment
	CustomerName    string    `db:"customer_name" json:"customer_name"`
	CustomerEmail   string    `db:"customer_email" json:"customer_email"`
	CustomerPhone   string    `db:"customer_phone" json:"customer_phone,omitempty"`
	CourseID        string    `db:"course_id" json:"course_id"`
	CourseName      string    `db:"course_name" json:"course_name"`
	CourseCode      string    `db:"course_code" json:"course_code"`
	StartDate       time.Time `db:"start_date" json:"start_date"`
	EndDate         time.Time `db:"end_date" json:"end_date"`
	Location        string    `db:"location" json:"location,omitempty"`
	InstructorID    string    `db:"instructor_id" json:"instructor_id"`
	InstructorName  string    `db:"instructor_name" json:"instructor_name"`
	InstructorEmail string    `db:"instructor_email" json:"instructor_email,omitempty"`
}

// RosterEntry is one student line of an instructor's roster, with checklist
// progress totals.
type RosterEntry struct {
	EnrollmentID          string           `db:"enrollment_id" json:"enrollment_id"`
	CustomerID            string           `db:"customer_id" json:"customer_id"`
	StudentName           string           `db:"student_name" json:"student_name"`
	Email                 string           `db:"email" json:"email"`
	Phone                 string           `db:"phone" json:"phone,omitempty"`
	Status                EnrollmentStatus `db:"status" json:"status"`
	PaymentStatus         PaymentStatus    `db:"payment_status" json:"payment_status"`
	EnrollmentDate        time.Time        `db:"enrollment_date" json:"enrollment_date"`
	TotalRequirements     int              `db:"total_requirements" json:"total_requirements"`
	CompletedRequirements int              `db:"completed_requirements" json:"completed_requirements"`
	CompletionPercentage  int              `db:"-" json:"completion_percentage"`
}

// EnrollRequest admits a customer into a schedule.
type EnrollRequest struct {
	ScheduleID string  `json:"schedule_id" validate:"required,uuid4"`
	CustomerID string  `json:"customer_id" validate:"required,uuid4"`
	AmountPaid float64 `json:"amount_paid" validate:"gte=0"`
	Source     string  `json:"source" validate:"omitempty,max=50"`
	Notes      string  `json:"notes" validate:"omitempty,max=1000"`
}

// TransferRequest moves an enrollment to another schedule of the same course.
type TransferRequest struct {
	NewScheduleID string `json:"new_schedule_id" validate:"required,uuid4"`
	Reason        string `json:"reason" validate:"omitempty,max=500"`
}

// CancelRequest cancels an enrollment and releases its seat.
type CancelRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=500"`
}

// StatusUpdateRequest advances the enrollment lifecycle with optional
// completion fields.
type StatusUpdateRequest struct {
	Status              EnrollmentStatus `json:"status" validate:"required,oneof=in_progress completed certified"`
	FinalGrade          *string          `json:"final_grade" validate:"omitempty,max=20"`
	CertificationNumber *string          `json:"certification_number" validate:"omitempty,max=100"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	ScheduleID string
	CustomerID string
	Status     EnrollmentStatus
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}
