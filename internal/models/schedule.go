package models

import "time"

// ScheduleStatus represents the lifecycle of a course schedule.
type ScheduleStatus string

// Possible schedule statuses.
const (
	ScheduleStatusScheduled  ScheduleStatus = "scheduled"
	ScheduleStatusInProgress ScheduleStatus = "in_progress"
	ScheduleStatusCompleted  ScheduleStatus = "completed"
	ScheduleStatusCancelled  ScheduleStatus = "cancelled"
)

// CourseSchedule is a dated offering of a course with a seat capacity.
// current_enrollment is a cached counter maintained atomically alongside
// enrollment writes; it must always satisfy 0 <= current <= max and can be
// recomputed from enrollment rows via the reconciliation path.
type CourseSchedule struct {
	ID                string         `db:"id" json:"id"`
	CourseID          string         `db:"course_id" json:"course_id"`
	InstructorID      string         `db:"instructor_id" json:"instructor_id"`
	Location          string         `db:"location" json:"location,omitempty"`
	StartDate         time.Time      `db:"start_date" json:"start_date"`
	EndDate           time.Time      `db:"end_date" json:"end_date"`
	MaxStudents       int            `db:"max_students" json:"max_students"`
	CurrentEnrollment int            `db:"current_enrollment" json:"current_enrollment"`
	Status            ScheduleStatus `db:"status" json:"status"`
	CreatedAt         time.Time      `db:"created_at" json:"created_at"`
}

// ScheduleDetail enriches a schedule with course and instructor info.
type ScheduleDetail struct {
	CourseSchedule
	CourseName      string  `db:"course_name" json:"course_name"`
	CourseCode      string  `db:"course_code" json:"course_code"`
	CoursePrice     float64 `db:"course_price" json:"course_price"`
	InstructorName  string  `db:"instructor_name" json:"instructor_name"`
	InstructorEmail string  `db:"instructor_email" json:"instructor_email,omitempty"`
	AvailableSpots  int     `db:"available_spots" json:"available_spots"`
}
