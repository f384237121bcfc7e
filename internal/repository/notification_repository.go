package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nautilusdive/ops-api/internal/models"
)

// NotificationRepository persists in-app notifications, the instructor feed,
// and queued waiver signing requests.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs the repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Insert stores an in-app notification for a staff user.
func (r *NotificationRepository) Insert(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO notifications (id, user_id, title, body, severity, link_path, is_read, created_at)
        VALUES (:id, :user_id, :title, :body, :severity, :link_path, :is_read, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, n); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// InsertInstructorNotification stores a record on the instructor's schedule
// feed.
func (r *NotificationRepository) InsertInstructorNotification(ctx context.Context, n *models.InstructorNotification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO instructor_notifications (id, instructor_id, schedule_id, notification_type, message, created_at)
        VALUES (:id, :instructor_id, :schedule_id, :notification_type, :message, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, n); err != nil {
		return fmt.Errorf("insert instructor notification: %w", err)
	}
	return nil
}

// ListForUser returns a staff user's notifications, newest first.
func (r *NotificationRepository) ListForUser(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	const query = `SELECT id, user_id, title, body, severity, link_path, is_read, created_at
        FROM notifications WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`
	var notifications []models.Notification
	if err := r.db.SelectContext(ctx, &notifications, query, userID, limit); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return notifications, nil
}

// MarkRead flags a notification as read.
func (r *NotificationRepository) MarkRead(ctx context.Context, id, userID string) error {
	const query = `UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2`
	if _, err := r.db.ExecContext(ctx, query, id, userID); err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return nil
}

// ActiveWaiverTemplate returns the newest active waiver template of the
// given type, or nil when none is configured.
func (r *NotificationRepository) ActiveWaiverTemplate(ctx context.Context, waiverType string) (*models.WaiverTemplate, error) {
	const query = `SELECT id, type, name, version, active FROM waiver_templates
        WHERE type = $1 AND active = TRUE
        ORDER BY version DESC
        LIMIT 1`
	var template models.WaiverTemplate
	if err := r.db.GetContext(ctx, &template, query, waiverType); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find waiver template: %w", err)
	}
	return &template, nil
}

// QueueWaiverEmail stores a pending waiver signing request.
func (r *NotificationRepository) QueueWaiverEmail(ctx context.Context, w *models.WaiverEmail) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO waiver_email_queue
        (id, customer_id, waiver_template_id, reference_type, reference_id, email_to, subject, unique_token, waiver_url, status, expires_at, created_at)
        VALUES (:id, :customer_id, :waiver_template_id, :reference_type, :reference_id, :email_to, :subject, :unique_token, :waiver_url, :status, :expires_at, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, w); err != nil {
		return fmt.Errorf("queue waiver email: %w", err)
	}
	return nil
}

// HasValidWaiver reports whether the customer holds a signed waiver for the
// reference type, allowing a grace window past its validity date.
func (r *NotificationRepository) HasValidWaiver(ctx context.Context, customerID, referenceType string, graceDays int) (bool, error) {
	const query = `SELECT 1 FROM signed_waivers sw
        JOIN waiver_templates wt ON wt.id = sw.waiver_template_id
        WHERE sw.customer_id = $1
          AND sw.reference_type = $2
          AND sw.status = 'signed'
          AND (sw.valid_until IS NULL OR sw.valid_until >= CURRENT_DATE - $3 * INTERVAL '1 day')
        ORDER BY sw.signed_at DESC
        LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, customerID, referenceType, graceDays); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check signed waiver: %w", err)
	}
	return true, nil
}
