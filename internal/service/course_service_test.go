package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nautilusdive/ops-api/internal/models"
	appErrors "github.com/nautilusdive/ops-api/pkg/errors"
)

// memoryCacheRepo stores payloads as JSON so Get exercises the same
// decode path the redis-backed repository uses.
type memoryCacheRepo struct {
	entries map[string][]byte
}

func newMemoryCacheRepo() *memoryCacheRepo {
	return &memoryCacheRepo{entries: map[string][]byte{}}
}

func (m *memoryCacheRepo) Get(_ context.Context, key string, dest interface{}) error {
	raw, ok := m.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCacheRepo) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.entries[key] = raw
	return nil
}

func (m *memoryCacheRepo) DeleteByPattern(_ context.Context, _ string) error {
	m.entries = map[string][]byte{}
	return nil
}

type mockCourseCatalog struct {
	courses   []models.Course
	listCalls int
	listErr   error
}

func (m *mockCourseCatalog) FindByID(_ context.Context, id string) (*models.Course, error) {
	for i := range m.courses {
		if m.courses[i].ID == id {
			return &m.courses[i], nil
		}
	}
	return nil, errors.New("no rows")
}

func (m *mockCourseCatalog) ListActive(_ context.Context) ([]models.Course, error) {
	m.listCalls++
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.courses, nil
}

func (m *mockCourseCatalog) ListRequirements(_ context.Context, _ string) ([]models.CourseRequirementDetail, error) {
	return nil, nil
}

func catalogFixture() []models.Course {
	return []models.Course{
		{ID: "course-ow", Code: "OW", Name: "Open Water Diver", Active: true},
		{ID: "course-rd", Code: "RD", Name: "Rescue Diver", Active: true},
	}
}

func TestCourseListActiveReportsCacheHit(t *testing.T) {
	repo := &mockCourseCatalog{courses: catalogFixture()}
	cache := NewCacheService(newMemoryCacheRepo(), nil, time.Minute, zap.NewNop(), true)
	svc := NewCourseService(repo, cache, zap.NewNop())

	courses, cacheHit, err := svc.ListActive(context.Background())
	require.NoError(t, err)
	assert.False(t, cacheHit)
	assert.Len(t, courses, 2)
	assert.Equal(t, 1, repo.listCalls)

	courses, cacheHit, err = svc.ListActive(context.Background())
	require.NoError(t, err)
	assert.True(t, cacheHit)
	assert.Len(t, courses, 2)
	assert.Equal(t, "Open Water Diver", courses[0].Name)
	assert.Equal(t, 1, repo.listCalls, "cached call must not touch the repository")
}

func TestCourseListActiveWithCacheDisabled(t *testing.T) {
	repo := &mockCourseCatalog{courses: catalogFixture()}
	svc := NewCourseService(repo, nil, zap.NewNop())

	for i := 0; i < 2; i++ {
		courses, cacheHit, err := svc.ListActive(context.Background())
		require.NoError(t, err)
		assert.False(t, cacheHit)
		assert.Len(t, courses, 2)
	}
	assert.Equal(t, 2, repo.listCalls)
}

func TestCourseListActiveRepositoryError(t *testing.T) {
	repo := &mockCourseCatalog{listErr: errors.New("connection refused")}
	svc := NewCourseService(repo, nil, zap.NewNop())

	_, cacheHit, err := svc.ListActive(context.Background())
	require.Error(t, err)
	assert.False(t, cacheHit)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}

func TestCourseInvalidateCatalogDropsListing(t *testing.T) {
	repo := &mockCourseCatalog{courses: catalogFixture()}
	cache := NewCacheService(newMemoryCacheRepo(), nil, time.Minute, zap.NewNop(), true)
	svc := NewCourseService(repo, cache, zap.NewNop())

	_, _, err := svc.ListActive(context.Background())
	require.NoError(t, err)

	svc.InvalidateCatalog(context.Background())

	_, cacheHit, err := svc.ListActive(context.Background())
	require.NoError(t, err)
	assert.False(t, cacheHit)
	assert.Equal(t, 2, repo.listCalls)
}
