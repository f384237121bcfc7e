package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nautilusdive/ops-api/internal/models"
	"github.com/nautilusdive/ops-api/internal/repository"
	appErrors "github.com/nautilusdive/ops-api/pkg/errors"
)

type mockEnrollmentRepo struct {
	enrollErr      error
	transferErr    error
	cancelErr      error
	updateErr      error
	enrollments    map[string]*models.EnrollmentDetail
	lastEnroll     repository.EnrollParams
	lastTransfer   repository.TransferParams
	lastStatus     repository.StatusUpdate
	roster         []models.RosterEntry
	customerOrders []models.EnrollmentDetail
}

func (m *mockEnrollmentRepo) Enroll(_ context.Context, params repository.EnrollParams) (string, error) {
	m.lastEnroll = params
	if m.enrollErr != nil {
		return "", m.enrollErr
	}
	return "enr-1", nil
}

func (m *mockEnrollmentRepo) Transfer(_ context.Context, params repository.TransferParams) error {
	m.lastTransfer = params
	return m.transferErr
}

func (m *mockEnrollmentRepo) Cancel(_ context.Context, _, _, _ string) error {
	return m.cancelErr
}

func (m *mockEnrollmentRepo) UpdateStatus(_ context.Context, _ string, update repository.StatusUpdate) error {
	m.lastStatus = update
	return m.updateErr
}

func (m *mockEnrollmentRepo) FindByID(_ context.Context, id string) (*models.CourseEnrollment, error) {
	if detail, ok := m.enrollments[id]; ok {
		return &detail.CourseEnrollment, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) FindDetailByID(_ context.Context, id string) (*models.EnrollmentDetail, error) {
	if detail, ok := m.enrollments[id]; ok {
		return detail, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) ListRoster(_ context.Context, _ string) ([]models.RosterEntry, error) {
	return m.roster, nil
}

func (m *mockEnrollmentRepo) ListByCustomer(_ context.Context, _ string) ([]models.EnrollmentDetail, error) {
	return m.customerOrders, nil
}

type mockScheduleRepo struct {
	schedules      map[string]*models.ScheduleDetail
	reconcileCount int
	reconcileErr   error
}

func (m *mockScheduleRepo) FindDetailByID(_ context.Context, id string) (*models.ScheduleDetail, error) {
	if schedule, ok := m.schedules[id]; ok {
		return schedule, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockScheduleRepo) ListAvailable(_ context.Context, _ string) ([]models.ScheduleDetail, error) {
	return nil, nil
}

func (m *mockScheduleRepo) ReconcileCount(_ context.Context, _ string) (int, error) {
	if m.reconcileErr != nil {
		return 0, m.reconcileErr
	}
	return m.reconcileCount, nil
}

type mockAuditLogger struct {
	mu      sync.Mutex
	entries []models.AuditLog
}

func (m *mockAuditLogger) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, *log)
	return nil
}

type mockWorkflow struct {
	processed chan string
}

func (m *mockWorkflow) ProcessEnrollment(_ context.Context, enrollmentID string) {
	m.processed <- enrollmentID
}

func newEnrollmentFixture() (*EnrollmentService, *mockEnrollmentRepo, *mockScheduleRepo, *mockAuditLogger) {
	repo := &mockEnrollmentRepo{
		enrollments: map[string]*models.EnrollmentDetail{
			"enr-1": {
				CourseEnrollment: models.CourseEnrollment{
					ID:         "enr-1",
					ScheduleID: "3d0f8a9c-6a26-4e2c-9a31-1c1f2b3c4d5e",
					CustomerID: "9f8e7d6c-5b4a-4c3d-8e2f-1a0b9c8d7e6f",
					Status:     models.EnrollmentStatusEnrolled,
				},
				CustomerName:  "Ariel Mendez",
				CustomerEmail: "ariel@example.com",
				CourseName:    "Rescue Diver",
			},
		},
	}
	schedules := &mockScheduleRepo{schedules: map[string]*models.ScheduleDetail{}}
	audit := &mockAuditLogger{}
	svc := NewEnrollmentService(repo, schedules, audit, validator.New(), zap.NewNop(), time.Second)
	return svc, repo, schedules, audit
}

func validEnrollRequest() models.EnrollRequest {
	return models.EnrollRequest{
		ScheduleID: "3d0f8a9c-6a26-4e2c-9a31-1c1f2b3c4d5e",
		CustomerID: "9f8e7d6c-5b4a-4c3d-8e2f-1a0b9c8d7e6f",
		AmountPaid: 150,
	}
}

func TestEnrollSuccess(t *testing.T) {
	svc, repo, _, audit := newEnrollmentFixture()

	detail, err := svc.Enroll(context.Background(), validEnrollRequest(), "staff-1")

	require.NoError(t, err)
	require.NotNil(t, detail)
	assert.Equal(t, "enr-1", detail.ID)
	assert.Equal(t, "staff-1", repo.lastEnroll.ActorID)
	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.AuditActionEnroll, audit.entries[0].Action)
	assert.Equal(t, "enrollment", audit.entries[0].Resource)
}

func TestEnrollFoldsSourceIntoNotes(t *testing.T) {
	svc, repo, _, _ := newEnrollmentFixture()

	req := validEnrollRequest()
	req.Source = "walk-in"
	req.Notes = "Paid cash."
	_, err := svc.Enroll(context.Background(), req, "staff-1")

	require.NoError(t, err)
	assert.Equal(t, "Paid cash.\nEnrolled via walk-in.", repo.lastEnroll.Notes)
}

// capacityEnrollmentRepo admits enrollments against a fixed seat count,
// serializing admissions the way the row-locked transaction does.
type capacityEnrollmentRepo struct {
	mockEnrollmentRepo
	mu       sync.Mutex
	capacity int
	admitted int
}

func (m *capacityEnrollmentRepo) Enroll(_ context.Context, params repository.EnrollParams) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.admitted >= m.capacity {
		return "", repository.ErrScheduleFull
	}
	m.admitted++
	id := fmt.Sprintf("enr-%d", m.admitted)
	m.enrollments[id] = &models.EnrollmentDetail{
		CourseEnrollment: models.CourseEnrollment{
			ID:         id,
			ScheduleID: params.ScheduleID,
			CustomerID: params.CustomerID,
			Status:     models.EnrollmentStatusEnrolled,
		},
	}
	return id, nil
}

func (m *capacityEnrollmentRepo) FindDetailByID(_ context.Context, id string) (*models.EnrollmentDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if detail, ok := m.enrollments[id]; ok {
		return detail, nil
	}
	return nil, sql.ErrNoRows
}

func TestEnrollConcurrentRequestsRespectCapacity(t *testing.T) {
	repo := &capacityEnrollmentRepo{
		mockEnrollmentRepo: mockEnrollmentRepo{enrollments: map[string]*models.EnrollmentDetail{}},
		capacity:           1,
	}
	svc := NewEnrollmentService(repo, &mockScheduleRepo{}, &mockAuditLogger{}, validator.New(), zap.NewNop(), time.Second)

	const attempts = 8
	results := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := validEnrollRequest()
			req.CustomerID = uuid.NewString()
			_, err := svc.Enroll(context.Background(), req, "staff-1")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	admitted, rejected := 0, 0
	for err := range results {
		if err == nil {
			admitted++
			continue
		}
		rejected++
		var appErr *appErrors.Error
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, appErrors.ErrCapacityExceeded.Code, appErr.Code)
	}
	assert.Equal(t, 1, admitted, "exactly one request may win the last seat")
	assert.Equal(t, attempts-1, rejected)
}

func TestEnrollValidation(t *testing.T) {
	svc, _, _, _ := newEnrollmentFixture()

	req := validEnrollRequest()
	req.ScheduleID = "not-a-uuid"
	_, err := svc.Enroll(context.Background(), req, "staff-1")

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestEnrollErrorMapping(t *testing.T) {
	cases := []struct {
		name     string
		repoErr  error
		wantCode string
		wantHTTP int
	}{
		{"schedule missing", sql.ErrNoRows, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status},
		{"schedule full", repository.ErrScheduleFull, appErrors.ErrCapacityExceeded.Code, appErrors.ErrCapacityExceeded.Status},
		{"duplicate enrollment", repository.ErrDuplicateEnrollment, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status},
		{"storage failure", errors.New("connection reset"), appErrors.ErrInternal.Code, appErrors.ErrInternal.Status},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, repo, _, audit := newEnrollmentFixture()
			repo.enrollErr = tc.repoErr

			_, err := svc.Enroll(context.Background(), validEnrollRequest(), "staff-1")

			var appErr *appErrors.Error
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tc.wantCode, appErr.Code)
			assert.Equal(t, tc.wantHTTP, appErr.Status)
			assert.Empty(t, audit.entries)
		})
	}
}

func TestEnrollDispatchesWorkflow(t *testing.T) {
	svc, _, _, _ := newEnrollmentFixture()
	workflow := &mockWorkflow{processed: make(chan string, 1)}
	svc.SetWorkflow(workflow)

	_, err := svc.Enroll(context.Background(), validEnrollRequest(), "staff-1")
	require.NoError(t, err)

	select {
	case id := <-workflow.processed:
		assert.Equal(t, "enr-1", id)
	case <-time.After(2 * time.Second):
		t.Fatal("workflow was never dispatched")
	}
}

func TestTransferErrorMapping(t *testing.T) {
	cases := []struct {
		name     string
		repoErr  error
		wantCode string
	}{
		{"not found", sql.ErrNoRows, appErrors.ErrNotFound.Code},
		{"inactive enrollment", repository.ErrEnrollmentInactive, appErrors.ErrConflict.Code},
		{"same schedule", repository.ErrSameSchedule, appErrors.ErrValidation.Code},
		{"course mismatch", repository.ErrCourseMismatch, appErrors.ErrConflict.Code},
		{"target full", repository.ErrScheduleFull, appErrors.ErrCapacityExceeded.Code},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, repo, _, _ := newEnrollmentFixture()
			repo.transferErr = tc.repoErr

			_, err := svc.Transfer(context.Background(), "enr-1", models.TransferRequest{
				NewScheduleID: "3d0f8a9c-6a26-4e2c-9a31-1c1f2b3c4d5e",
				Reason:        "schedule conflict",
			}, "staff-1")

			var appErr *appErrors.Error
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tc.wantCode, appErr.Code)
		})
	}
}

func TestTransferSuccess(t *testing.T) {
	svc, repo, _, audit := newEnrollmentFixture()

	detail, err := svc.Transfer(context.Background(), "enr-1", models.TransferRequest{
		NewScheduleID: "3d0f8a9c-6a26-4e2c-9a31-1c1f2b3c4d5e",
		Reason:        "schedule conflict",
	}, "staff-1")

	require.NoError(t, err)
	assert.Equal(t, "enr-1", detail.ID)
	assert.Equal(t, "staff-1", repo.lastTransfer.ActorID)
	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.AuditActionTransfer, audit.entries[0].Action)
}

func TestCancelSuccess(t *testing.T) {
	svc, _, _, audit := newEnrollmentFixture()

	err := svc.Cancel(context.Background(), "enr-1", models.CancelRequest{Reason: "customer request"}, "staff-1")

	require.NoError(t, err)
	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.AuditActionCancel, audit.entries[0].Action)
}

func TestCancelAlreadyCancelled(t *testing.T) {
	svc, repo, _, _ := newEnrollmentFixture()
	repo.cancelErr = repository.ErrEnrollmentInactive

	err := svc.Cancel(context.Background(), "enr-1", models.CancelRequest{}, "staff-1")

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestUpdateStatus(t *testing.T) {
	svc, repo, _, _ := newEnrollmentFixture()
	grade := "pass"

	enrollment, err := svc.UpdateStatus(context.Background(), "enr-1", models.StatusUpdateRequest{
		Status:     models.EnrollmentStatusCompleted,
		FinalGrade: &grade,
	}, "staff-1")

	require.NoError(t, err)
	assert.Equal(t, "enr-1", enrollment.ID)
	assert.Equal(t, models.EnrollmentStatusCompleted, repo.lastStatus.Status)
	require.NotNil(t, repo.lastStatus.FinalGrade)
	assert.Equal(t, "pass", *repo.lastStatus.FinalGrade)
}

func TestUpdateStatusRejectsUnknownStatus(t *testing.T) {
	svc, _, _, _ := newEnrollmentFixture()

	_, err := svc.UpdateStatus(context.Background(), "enr-1", models.StatusUpdateRequest{
		Status: models.EnrollmentStatus("graduated"),
	}, "staff-1")

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestRosterUnknownSchedule(t *testing.T) {
	svc, _, _, _ := newEnrollmentFixture()

	_, err := svc.Roster(context.Background(), "missing")

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestReconcile(t *testing.T) {
	svc, _, schedules, _ := newEnrollmentFixture()
	schedules.reconcileCount = 7

	count, err := svc.Reconcile(context.Background(), "sched-1", "staff-1")

	require.NoError(t, err)
	assert.Equal(t, 7, count)
}

func TestRosterDataset(t *testing.T) {
	svc, repo, schedules, _ := newEnrollmentFixture()
	start := time.Date(2024, time.July, 1, 0, 0, 0, 0, time.UTC)
	schedules.schedules["sched-1"] = &models.ScheduleDetail{
		CourseSchedule: models.CourseSchedule{ID: "sched-1", StartDate: start},
		CourseName:     "Rescue Diver",
	}
	repo.roster = []models.RosterEntry{
		{
			StudentName:           "Ariel Mendez",
			Email:                 "ariel@example.com",
			Status:                models.EnrollmentStatusEnrolled,
			PaymentStatus:         models.PaymentStatusPaid,
			EnrollmentDate:        start,
			TotalRequirements:     4,
			CompletedRequirements: 1,
			CompletionPercentage:  25,
		},
	}

	dataset, title, err := svc.RosterDataset(context.Background(), "sched-1")

	require.NoError(t, err)
	assert.Equal(t, "Rescue Diver Roster - 2024-07-01", title)
	require.Len(t, dataset.Rows, 1)
	assert.Equal(t, "1/4", dataset.Rows[0]["Requirements"])
	assert.Equal(t, "25%", dataset.Rows[0]["Progress"])
	assert.True(t, strings.HasPrefix(dataset.Headers[0], "Student"))
}
