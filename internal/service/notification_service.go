package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nautilusdive/ops-api/internal/models"
	appErrors "github.com/nautilusdive/ops-api/pkg/errors"
)

type notificationRepository interface {
	Insert(ctx context.Context, n *models.Notification) error
	InsertInstructorNotification(ctx context.Context, n *models.InstructorNotification) error
	ListForUser(ctx context.Context, userID string, limit int) ([]models.Notification, error)
	MarkRead(ctx context.Context, id, userID string) error
}

// NotificationService records and serves in-app notifications.
type NotificationService struct {
	repo   notificationRepository
	logger *zap.Logger
}

// NewNotificationService constructs a NotificationService.
func NewNotificationService(repo notificationRepository, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{repo: repo, logger: logger}
}

// Create records an in-app notification for a staff user.
func (s *NotificationService) Create(ctx context.Context, userID, title, body string, severity models.NotificationSeverity, linkPath string) error {
	n := &models.Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		Body:      body,
		Severity:  severity,
		LinkPath:  linkPath,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.Insert(ctx, n); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create notification")
	}
	return nil
}

// CreateForInstructor records both the generic in-app notification and the
// schedule-scoped feed entry instructors see on their course dashboard.
func (s *NotificationService) CreateForInstructor(ctx context.Context, instructorID, scheduleID, notificationType, title, message, linkPath string) error {
	if err := s.Create(ctx, instructorID, title, message, models.NotificationInfo, linkPath); err != nil {
		return err
	}
	entry := &models.InstructorNotification{
		ID:           uuid.NewString(),
		InstructorID: instructorID,
		ScheduleID:   scheduleID,
		Type:         notificationType,
		Message:      message,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.repo.InsertInstructorNotification(ctx, entry); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create instructor notification")
	}
	return nil
}

// ListForUser returns the newest notifications for a user.
func (s *NotificationService) ListForUser(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	items, err := s.repo.ListForUser(ctx, userID, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	return items, nil
}

// MarkRead marks one of the user's notifications as read.
func (s *NotificationService) MarkRead(ctx context.Context, id, userID string) error {
	if err := s.repo.MarkRead(ctx, id, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notification read")
	}
	return nil
}
