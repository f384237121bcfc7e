package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/nautilusdive/ops-api/internal/models"
	appErrors "github.com/nautilusdive/ops-api/pkg/errors"
)

type courseCatalogRepository interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	ListActive(ctx context.Context) ([]models.Course, error)
	ListRequirements(ctx context.Context, courseID string) ([]models.CourseRequirementDetail, error)
}

const courseCatalogCacheKey = "courses:active"

// CourseService serves the course catalog. The active listing changes
// rarely, so it is cached with the default TTL.
type CourseService struct {
	repo   courseCatalogRepository
	cache  *CacheService
	logger *zap.Logger
}

// NewCourseService constructs a CourseService.
func NewCourseService(repo courseCatalogRepository, cache *CacheService, logger *zap.Logger) *CourseService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{repo: repo, cache: cache, logger: logger}
}

// ListActive returns active courses with decoded prerequisite rules. The
// second return reports whether the listing came from cache, surfaced as
// response metadata.
func (s *CourseService) ListActive(ctx context.Context) ([]models.Course, bool, error) {
	var cached []models.Course
	if s.cache.Enabled() {
		if hit, _ := s.cache.Get(ctx, courseCatalogCacheKey, &cached); hit {
			return cached, true, nil
		}
	}
	courses, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	if s.cache.Enabled() {
		if err := s.cache.Set(ctx, courseCatalogCacheKey, courses, 0); err != nil {
			s.logger.Warn("failed to cache course catalog", zap.Error(err))
		}
	}
	return courses, false, nil
}

// Get returns one course.
func (s *CourseService) Get(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

// Requirements returns the active requirement catalog for a course in
// checklist order.
func (s *CourseService) Requirements(ctx context.Context, courseID string) ([]models.CourseRequirementDetail, error) {
	if _, err := s.Get(ctx, courseID); err != nil {
		return nil, err
	}
	requirements, err := s.repo.ListRequirements(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list course requirements")
	}
	return requirements, nil
}

// InvalidateCatalog drops the cached listing, called after catalog edits.
func (s *CourseService) InvalidateCatalog(ctx context.Context) {
	if !s.cache.Enabled() {
		return
	}
	if err := s.cache.Invalidate(ctx, courseCatalogCacheKey); err != nil {
		s.logger.Warn("failed to invalidate course catalog cache", zap.Error(err))
	}
}
