package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/nautilusdive/ops-api/internal/models"
	"github.com/nautilusdive/ops-api/internal/repository"
	appErrors "github.com/nautilusdive/ops-api/pkg/errors"
	"github.com/nautilusdive/ops-api/pkg/export"
)

type enrollmentRepository interface {
	Enroll(ctx context.Context, params repository.EnrollParams) (string, error)
	Transfer(ctx context.Context, params repository.TransferParams) error
	Cancel(ctx context.Context, enrollmentID, reason, actorID string) error
	UpdateStatus(ctx context.Context, id string, update repository.StatusUpdate) error
	FindByID(ctx context.Context, id string) (*models.CourseEnrollment, error)
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	ListRoster(ctx context.Context, scheduleID string) ([]models.RosterEntry, error)
	ListByCustomer(ctx context.Context, customerID string) ([]models.EnrollmentDetail, error)
}

type enrollmentScheduleRepository interface {
	FindDetailByID(ctx context.Context, id string) (*models.ScheduleDetail, error)
	ListAvailable(ctx context.Context, courseID string) ([]models.ScheduleDetail, error)
	ReconcileCount(ctx context.Context, scheduleID string) (int, error)
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// enrollmentWorkflow is the post-commit hook. Implemented by
// WorkflowOrchestrator; the enrollment outcome never depends on it.
type enrollmentWorkflow interface {
	ProcessEnrollment(ctx context.Context, enrollmentID string)
}

// EnrollmentService coordinates enrollment admission, transfer and lifecycle
// against the transactional repository, and hands committed enrollments to
// the workflow orchestrator.
type EnrollmentService struct {
	repo            enrollmentRepository
	schedules       enrollmentScheduleRepository
	audit           auditLogger
	workflow        enrollmentWorkflow
	validator       *validator.Validate
	logger          *zap.Logger
	workflowTimeout time.Duration
}

// NewEnrollmentService constructs an EnrollmentService.
func NewEnrollmentService(repo enrollmentRepository, schedules enrollmentScheduleRepository, audit auditLogger, validate *validator.Validate, logger *zap.Logger, workflowTimeout time.Duration) *EnrollmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if workflowTimeout <= 0 {
		workflowTimeout = 30 * time.Second
	}
	return &EnrollmentService{
		repo:            repo,
		schedules:       schedules,
		audit:           audit,
		validator:       validate,
		logger:          logger,
		workflowTimeout: workflowTimeout,
	}
}

// SetWorkflow attaches the post-enrollment workflow. Wired after construction
// because the workflow also depends on enrollment lookups.
func (s *EnrollmentService) SetWorkflow(w enrollmentWorkflow) {
	s.workflow = w
}

// Enroll admits a customer into a schedule and returns the enrollment detail.
// The capacity check, duplicate check, insert and counter increment all
// commit in one transaction inside the repository; once that commit succeeds
// the enrollment exists regardless of what the follow-up workflow does.
func (s *EnrollmentService) Enroll(ctx context.Context, req models.EnrollRequest, actorID string) (*models.EnrollmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	notes := strings.TrimSpace(req.Notes)
	if req.Source != "" {
		line := fmt.Sprintf("Enrolled via %s.", req.Source)
		if notes == "" {
			notes = line
		} else {
			notes = notes + "\n" + line
		}
	}

	id, err := s.repo.Enroll(ctx, repository.EnrollParams{
		ScheduleID: req.ScheduleID,
		CustomerID: req.CustomerID,
		AmountPaid: req.AmountPaid,
		Notes:      notes,
		ActorID:    actorID,
	})
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule not found")
		case errors.Is(err, repository.ErrScheduleFull):
			return nil, appErrors.Clone(appErrors.ErrCapacityExceeded, "schedule is full")
		case errors.Is(err, repository.ErrDuplicateEnrollment):
			return nil, appErrors.Clone(appErrors.ErrConflict, "customer is already enrolled in this schedule")
		default:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
		}
	}

	s.logger.Info("enrollment created",
		zap.String("enrollment_id", id),
		zap.String("schedule_id", req.ScheduleID),
		zap.String("customer_id", req.CustomerID),
		zap.String("actor_id", actorID))

	s.recordAudit(ctx, actorID, models.AuditActionEnroll, id, map[string]string{
		"schedule_id": req.ScheduleID,
		"customer_id": req.CustomerID,
	})
	s.dispatchWorkflow(id)

	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load created enrollment")
	}
	return detail, nil
}

// Transfer moves an enrollment to another schedule of the same course.
func (s *EnrollmentService) Transfer(ctx context.Context, enrollmentID string, req models.TransferRequest, actorID string) (*models.EnrollmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid transfer payload")
	}

	err := s.repo.Transfer(ctx, repository.TransferParams{
		EnrollmentID:  enrollmentID,
		NewScheduleID: req.NewScheduleID,
		Reason:        req.Reason,
		ActorID:       actorID,
	})
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment or schedule not found")
		case errors.Is(err, repository.ErrEnrollmentInactive):
			return nil, appErrors.Clone(appErrors.ErrConflict, "only active enrollments can be transferred")
		case errors.Is(err, repository.ErrSameSchedule):
			return nil, appErrors.Clone(appErrors.ErrValidation, "enrollment is already on the target schedule")
		case errors.Is(err, repository.ErrCourseMismatch):
			return nil, appErrors.Clone(appErrors.ErrConflict, "target schedule belongs to a different course")
		case errors.Is(err, repository.ErrScheduleFull):
			return nil, appErrors.Clone(appErrors.ErrCapacityExceeded, "target schedule is full")
		default:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to transfer enrollment")
		}
	}

	s.logger.Info("enrollment transferred",
		zap.String("enrollment_id", enrollmentID),
		zap.String("new_schedule_id", req.NewScheduleID),
		zap.String("actor_id", actorID))

	s.recordAudit(ctx, actorID, models.AuditActionTransfer, enrollmentID, map[string]string{
		"new_schedule_id": req.NewScheduleID,
		"reason":          req.Reason,
	})

	detail, err := s.repo.FindDetailByID(ctx, enrollmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load transferred enrollment")
	}
	return detail, nil
}

// Cancel cancels an enrollment. The seat is released only when the
// enrollment still occupied one.
func (s *EnrollmentService) Cancel(ctx context.Context, enrollmentID string, req models.CancelRequest, actorID string) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid cancel payload")
	}

	if err := s.repo.Cancel(ctx, enrollmentID, req.Reason, actorID); err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		case errors.Is(err, repository.ErrEnrollmentInactive):
			return appErrors.Clone(appErrors.ErrConflict, "enrollment is already cancelled")
		default:
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel enrollment")
		}
	}

	s.logger.Info("enrollment cancelled",
		zap.String("enrollment_id", enrollmentID),
		zap.String("actor_id", actorID))

	s.recordAudit(ctx, actorID, models.AuditActionCancel, enrollmentID, map[string]string{
		"reason": req.Reason,
	})
	return nil
}

// UpdateStatus advances the enrollment lifecycle. Final grade and
// certification number overwrite only when present in the request.
func (s *EnrollmentService) UpdateStatus(ctx context.Context, enrollmentID string, req models.StatusUpdateRequest, actorID string) (*models.CourseEnrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}

	err := s.repo.UpdateStatus(ctx, enrollmentID, repository.StatusUpdate{
		Status:              req.Status,
		FinalGrade:          req.FinalGrade,
		CertificationNumber: req.CertificationNumber,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update enrollment status")
	}

	s.logger.Info("enrollment status updated",
		zap.String("enrollment_id", enrollmentID),
		zap.String("status", string(req.Status)),
		zap.String("actor_id", actorID))

	enrollment, err := s.repo.FindByID(ctx, enrollmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return enrollment, nil
}

// Get returns the enrollment detail.
func (s *EnrollmentService) Get(ctx context.Context, enrollmentID string) (*models.EnrollmentDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, enrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return detail, nil
}

// Roster returns the schedule roster with per-student checklist progress.
func (s *EnrollmentService) Roster(ctx context.Context, scheduleID string) ([]models.RosterEntry, error) {
	if _, err := s.schedules.FindDetailByID(ctx, scheduleID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule")
	}
	roster, err := s.repo.ListRoster(ctx, scheduleID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list roster")
	}
	return roster, nil
}

// History returns a customer's enrollments, newest first.
func (s *EnrollmentService) History(ctx context.Context, customerID string) ([]models.EnrollmentDetail, error) {
	history, err := s.repo.ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list course history")
	}
	return history, nil
}

// Reconcile recomputes the cached seat counter for a schedule from its
// non-cancelled enrollments and returns the corrected value.
func (s *EnrollmentService) Reconcile(ctx context.Context, scheduleID string, actorID string) (int, error) {
	count, err := s.schedules.ReconcileCount(ctx, scheduleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, appErrors.Clone(appErrors.ErrNotFound, "schedule not found")
		}
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reconcile enrollment count")
	}
	s.logger.Info("schedule count reconciled",
		zap.String("schedule_id", scheduleID),
		zap.Int("current_enrollment", count),
		zap.String("actor_id", actorID))
	return count, nil
}

// RosterDataset flattens a roster into the tabular form shared by the CSV
// and PDF exporters.
func (s *EnrollmentService) RosterDataset(ctx context.Context, scheduleID string) (export.Dataset, string, error) {
	schedule, err := s.schedules.FindDetailByID(ctx, scheduleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return export.Dataset{}, "", appErrors.Clone(appErrors.ErrNotFound, "schedule not found")
		}
		return export.Dataset{}, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule")
	}
	roster, err := s.repo.ListRoster(ctx, scheduleID)
	if err != nil {
		return export.Dataset{}, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list roster")
	}

	dataset := export.Dataset{
		Headers: []string{"Student", "Email", "Phone", "Status", "Payment", "Enrolled", "Requirements", "Progress"},
		Rows:    make([]map[string]string, 0, len(roster)),
	}
	for _, entry := range roster {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Student":      entry.StudentName,
			"Email":        entry.Email,
			"Phone":        entry.Phone,
			"Status":       string(entry.Status),
			"Payment":      string(entry.PaymentStatus),
			"Enrolled":     entry.EnrollmentDate.Format("2006-01-02"),
			"Requirements": fmt.Sprintf("%d/%d", entry.CompletedRequirements, entry.TotalRequirements),
			"Progress":     fmt.Sprintf("%d%%", entry.CompletionPercentage),
		})
	}

	title := fmt.Sprintf("%s Roster - %s", schedule.CourseName, schedule.StartDate.Format("2006-01-02"))
	return dataset, title, nil
}

func (s *EnrollmentService) recordAudit(ctx context.Context, actorID, action, resourceID string, values map[string]string) {
	if s.audit == nil {
		return
	}
	payload, err := json.Marshal(values)
	if err != nil {
		payload = nil
	}
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   "enrollment",
		ResourceID: &resourceID,
		NewValues:  payload,
	}); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", action), zap.Error(err))
	}
}

// dispatchWorkflow hands a committed enrollment to the orchestrator on a
// detached context so request cancellation cannot abort the follow-ups.
func (s *EnrollmentService) dispatchWorkflow(enrollmentID string) {
	if s.workflow == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.workflowTimeout)
		defer cancel()
		s.workflow.ProcessEnrollment(ctx, enrollmentID)
	}()
}
