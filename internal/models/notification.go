package models

import "time"

// NotificationSeverity classifies in-app notifications.
type NotificationSeverity string

// Notification severities.
const (
	NotificationInfo    NotificationSeverity = "info"
	NotificationSuccess NotificationSeverity = "success"
	NotificationWarning NotificationSeverity = "warning"
)

// Notification is an in-app message shown to a staff user.
type Notification struct {
	ID        string               `db:"id" json:"id"`
	UserID    string               `db:"user_id" json:"user_id"`
	Title     string               `db:"title" json:"title"`
	Body      string               `db:"body" json:"body"`
	Severity  NotificationSeverity `db:"severity" json:"severity"`
	LinkPath  string               `db:"link_path" json:"link_path,omitempty"`
	Read      bool                 `db:"is_read" json:"is_read"`
	CreatedAt time.Time            `db:"created_at" json:"created_at"`
}

// InstructorNotification is the per-schedule notification feed shown on an
// instructor's course dashboard.
type InstructorNotification struct {
	ID           string    `db:"id" json:"id"`
	InstructorID string    `db:"instructor_id" json:"instructor_id"`
	ScheduleID   string    `db:"schedule_id" json:"schedule_id"`
	Type         string    `db:"notification_type" json:"notification_type"`
	Message      string    `db:"message" json:"message"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// WaiverTemplate is an active liability waiver form customers must sign.
type WaiverTemplate struct {
	ID      string `db:"id" json:"id"`
	Type    string `db:"type" json:"type"`
	Name    string `db:"name" json:"name"`
	Version int    `db:"version" json:"version"`
	Active  bool   `db:"active" json:"active"`
}

// WaiverEmail is a queued waiver signing request. The signing flow itself is
// handled elsewhere; this record carries the unique token and expiry.
type WaiverEmail struct {
	ID               string    `db:"id" json:"id"`
	CustomerID       string    `db:"customer_id" json:"customer_id"`
	WaiverTemplateID string    `db:"waiver_template_id" json:"waiver_template_id"`
	ReferenceType    string    `db:"reference_type" json:"reference_type"`
	ReferenceID      string    `db:"reference_id" json:"reference_id"`
	EmailTo          string    `db:"email_to" json:"email_to"`
	Subject          string    `db:"subject" json:"subject"`
	Token            string    `db:"unique_token" json:"-"`
	WaiverURL        string    `db:"waiver_url" json:"waiver_url"`
	Status           string    `db:"status" json:"status"`
	ExpiresAt        time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}
