package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/nautilusdive/ops-api/internal/models"
	appErrors "github.com/nautilusdive/ops-api/pkg/errors"
)

type scheduleReadRepository interface {
	FindDetailByID(ctx context.Context, id string) (*models.ScheduleDetail, error)
	ListAvailable(ctx context.Context, courseID string) ([]models.ScheduleDetail, error)
	ListByInstructor(ctx context.Context, instructorID string) ([]models.CourseSchedule, error)
}

// ScheduleService serves schedule availability views.
type ScheduleService struct {
	repo   scheduleReadRepository
	logger *zap.Logger
}

// NewScheduleService constructs a ScheduleService.
func NewScheduleService(repo scheduleReadRepository, logger *zap.Logger) *ScheduleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScheduleService{repo: repo, logger: logger}
}

// Get returns one schedule with course, instructor and availability info.
func (s *ScheduleService) Get(ctx context.Context, id string) (*models.ScheduleDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule")
	}
	return detail, nil
}

// ListAvailable returns upcoming schedules of a course with free seats.
func (s *ScheduleService) ListAvailable(ctx context.Context, courseID string) ([]models.ScheduleDetail, error) {
	schedules, err := s.repo.ListAvailable(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list schedules")
	}
	return schedules, nil
}

// ListByInstructor returns an instructor's schedules, soonest first.
func (s *ScheduleService) ListByInstructor(ctx context.Context, instructorID string) ([]models.CourseSchedule, error) {
	schedules, err := s.repo.ListByInstructor(ctx, instructorID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list instructor schedules")
	}
	return schedules, nil
}
