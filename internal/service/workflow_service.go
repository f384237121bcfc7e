package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nautilusdive/ops-api/internal/models"
)

// Notifier records in-app notifications. Implemented by NotificationService.
type Notifier interface {
	Create(ctx context.Context, userID, title, body string, severity models.NotificationSeverity, linkPath string) error
	CreateForInstructor(ctx context.Context, instructorID, scheduleID, notificationType, title, message, linkPath string) error
}

// TemplateMailer dispatches a templated email. Implemented by the SMTP
// mailer; delivery is fire-and-forget.
type TemplateMailer interface {
	SendTemplate(ctx context.Context, to, template string, data map[string]interface{}) error
}

type workflowEnrollmentReader interface {
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
}

type workflowScheduleRepository interface {
	ReconcileCount(ctx context.Context, scheduleID string) (int, error)
}

type workflowChecklist interface {
	CreateChecklist(ctx context.Context, enrollmentID, courseID string) (int, error)
	List(ctx context.Context, enrollmentID string) ([]models.EnrollmentRequirementDetail, error)
	MarkRemindersSent(ctx context.Context, enrollmentID string) error
}

type adminLister interface {
	ListActiveAdmins(ctx context.Context) ([]string, error)
}

type waiverRepository interface {
	ActiveWaiverTemplate(ctx context.Context, waiverType string) (*models.WaiverTemplate, error)
	QueueWaiverEmail(ctx context.Context, w *models.WaiverEmail) error
	HasValidWaiver(ctx context.Context, customerID, referenceType string, graceDays int) (bool, error)
}

// WorkflowConfig tunes orchestration behaviour.
type WorkflowConfig struct {
	AppURL           string
	StepTimeout      time.Duration
	WaiverExpiryDays int
}

// WorkflowOrchestrator runs the follow-up sequence after an enrollment
// commits: checklist, counter reconciliation, emails, notifications and
// waiver queueing. Every step is best-effort; a failed step is logged with
// the enrollment id and the sequence moves on. The orchestrator never
// touches the enrollment row itself and holds no transaction across steps.
type WorkflowOrchestrator struct {
	enrollments workflowEnrollmentReader
	schedules   workflowScheduleRepository
	checklist   workflowChecklist
	notifier    Notifier
	mailer      TemplateMailer
	admins      adminLister
	waivers     waiverRepository
	config      WorkflowConfig
	logger      *zap.Logger
}

// NewWorkflowOrchestrator constructs a WorkflowOrchestrator.
func NewWorkflowOrchestrator(enrollments workflowEnrollmentReader, schedules workflowScheduleRepository, checklist workflowChecklist, notifier Notifier, mailer TemplateMailer, admins adminLister, waivers waiverRepository, config WorkflowConfig, logger *zap.Logger) *WorkflowOrchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.StepTimeout <= 0 {
		config.StepTimeout = 5 * time.Second
	}
	if config.WaiverExpiryDays <= 0 {
		config.WaiverExpiryDays = 30
	}
	return &WorkflowOrchestrator{
		enrollments: enrollments,
		schedules:   schedules,
		checklist:   checklist,
		notifier:    notifier,
		mailer:      mailer,
		admins:      admins,
		waivers:     waivers,
		config:      config,
		logger:      logger,
	}
}

// ProcessEnrollment runs the post-enrollment sequence for a committed
// enrollment. It can be re-invoked safely: the checklist upsert ignores
// existing rows and the reconciliation recomputes rather than increments.
func (w *WorkflowOrchestrator) ProcessEnrollment(ctx context.Context, enrollmentID string) {
	detail, err := w.loadDetail(ctx, enrollmentID)
	if err != nil {
		w.logger.Error("workflow aborted, enrollment not loadable",
			zap.String("enrollment_id", enrollmentID), zap.Error(err))
		return
	}

	w.buildChecklist(ctx, detail)
	w.reconcileRoster(ctx, detail)
	w.sendWelcomeEmail(ctx, detail)
	w.notifyInstructor(ctx, detail)
	w.sendRequirementReminders(ctx, detail)
	w.notifyAdmins(ctx, detail)
	w.queueTrainingWaiver(ctx, detail)

	w.logger.Info("enrollment workflow finished", zap.String("enrollment_id", enrollmentID))
}

// StudentReady notifies the instructor that every mandatory checklist item
// of the enrollment is complete. Fired at most once per enrollment by the
// checklist transition.
func (w *WorkflowOrchestrator) StudentReady(ctx context.Context, enrollmentID string) {
	detail, err := w.loadDetail(ctx, enrollmentID)
	if err != nil {
		w.logger.Error("student ready signal dropped, enrollment not loadable",
			zap.String("enrollment_id", enrollmentID), zap.Error(err))
		return
	}

	stepCtx, cancel := w.stepContext(ctx)
	defer cancel()

	message := fmt.Sprintf("%s has completed all requirements for %s and is ready to start.",
		detail.CustomerName, detail.CourseName)
	if err := w.notifier.CreateForInstructor(stepCtx, detail.InstructorID, detail.ScheduleID,
		"student_ready", "Student Ready", message, "/schedules/"+detail.ScheduleID+"/roster"); err != nil {
		w.logger.Warn("failed to notify instructor of readiness",
			zap.String("enrollment_id", enrollmentID), zap.Error(err))
	}
}

func (w *WorkflowOrchestrator) loadDetail(ctx context.Context, enrollmentID string) (*models.EnrollmentDetail, error) {
	stepCtx, cancel := w.stepContext(ctx)
	defer cancel()
	return w.enrollments.FindDetailByID(stepCtx, enrollmentID)
}

func (w *WorkflowOrchestrator) buildChecklist(ctx context.Context, detail *models.EnrollmentDetail) {
	stepCtx, cancel := w.stepContext(ctx)
	defer cancel()
	if _, err := w.checklist.CreateChecklist(stepCtx, detail.ID, detail.CourseID); err != nil {
		w.logger.Warn("workflow step failed: create checklist",
			zap.String("enrollment_id", detail.ID), zap.Error(err))
	}
}

func (w *WorkflowOrchestrator) reconcileRoster(ctx context.Context, detail *models.EnrollmentDetail) {
	stepCtx, cancel := w.stepContext(ctx)
	defer cancel()
	if _, err := w.schedules.ReconcileCount(stepCtx, detail.ScheduleID); err != nil {
		w.logger.Warn("workflow step failed: reconcile roster count",
			zap.String("enrollment_id", detail.ID), zap.Error(err))
	}
}

func (w *WorkflowOrchestrator) sendWelcomeEmail(ctx context.Context, detail *models.EnrollmentDetail) {
	stepCtx, cancel := w.stepContext(ctx)
	defer cancel()
	err := w.mailer.SendTemplate(stepCtx, detail.CustomerEmail, "course_enrollment_welcome", map[string]interface{}{
		"customer_name":   detail.CustomerName,
		"course_name":     detail.CourseName,
		"start_date":      detail.StartDate.Format("2006-01-02"),
		"location":        detail.Location,
		"instructor_name": detail.InstructorName,
	})
	if err != nil {
		w.logger.Warn("workflow step failed: welcome email",
			zap.String("enrollment_id", detail.ID), zap.Error(err))
	}
}

func (w *WorkflowOrchestrator) notifyInstructor(ctx context.Context, detail *models.EnrollmentDetail) {
	stepCtx, cancel := w.stepContext(ctx)
	defer cancel()

	message := fmt.Sprintf("%s enrolled in %s starting %s.",
		detail.CustomerName, detail.CourseName, detail.StartDate.Format("2006-01-02"))
	if err := w.notifier.CreateForInstructor(stepCtx, detail.InstructorID, detail.ScheduleID,
		"new_enrollment", "New Enrollment", message, "/schedules/"+detail.ScheduleID+"/roster"); err != nil {
		w.logger.Warn("workflow step failed: instructor notification",
			zap.String("enrollment_id", detail.ID), zap.Error(err))
	}

	if detail.InstructorEmail != "" {
		if err := w.mailer.SendTemplate(stepCtx, detail.InstructorEmail, "instructor_new_enrollment", map[string]interface{}{
			"instructor_name": detail.InstructorName,
			"customer_name":   detail.CustomerName,
			"course_name":     detail.CourseName,
			"start_date":      detail.StartDate.Format("2006-01-02"),
		}); err != nil {
			w.logger.Warn("workflow step failed: instructor email",
				zap.String("enrollment_id", detail.ID), zap.Error(err))
		}
	}
}

func (w *WorkflowOrchestrator) sendRequirementReminders(ctx context.Context, detail *models.EnrollmentDetail) {
	stepCtx, cancel := w.stepContext(ctx)
	defer cancel()

	items, err := w.checklist.List(stepCtx, detail.ID)
	if err != nil {
		w.logger.Warn("workflow step failed: list requirements",
			zap.String("enrollment_id", detail.ID), zap.Error(err))
		return
	}
	pending := make([]string, 0, len(items))
	for _, item := range items {
		if item.Status == models.RequirementStatusPending {
			pending = append(pending, item.TypeName)
		}
	}
	if len(pending) == 0 {
		return
	}

	if err := w.mailer.SendTemplate(stepCtx, detail.CustomerEmail, "course_requirements_reminder", map[string]interface{}{
		"customer_name": detail.CustomerName,
		"course_name":   detail.CourseName,
		"start_date":    detail.StartDate.Format("2006-01-02"),
		"requirements":  pending,
	}); err != nil {
		w.logger.Warn("workflow step failed: requirement reminder email",
			zap.String("enrollment_id", detail.ID), zap.Error(err))
		return
	}
	if err := w.checklist.MarkRemindersSent(stepCtx, detail.ID); err != nil {
		w.logger.Warn("workflow step failed: mark reminders sent",
			zap.String("enrollment_id", detail.ID), zap.Error(err))
	}
}

func (w *WorkflowOrchestrator) notifyAdmins(ctx context.Context, detail *models.EnrollmentDetail) {
	stepCtx, cancel := w.stepContext(ctx)
	defer cancel()

	adminIDs, err := w.admins.ListActiveAdmins(stepCtx)
	if err != nil {
		w.logger.Warn("workflow step failed: list admins",
			zap.String("enrollment_id", detail.ID), zap.Error(err))
		return
	}
	body := fmt.Sprintf("%s enrolled in %s (%s).",
		detail.CustomerName, detail.CourseName, detail.StartDate.Format("2006-01-02"))
	for _, adminID := range adminIDs {
		if err := w.notifier.Create(stepCtx, adminID, "New Course Enrollment", body,
			models.NotificationInfo, "/enrollments/"+detail.ID); err != nil {
			w.logger.Warn("workflow step failed: admin notification",
				zap.String("enrollment_id", detail.ID),
				zap.String("admin_id", adminID), zap.Error(err))
		}
	}
}

func (w *WorkflowOrchestrator) queueTrainingWaiver(ctx context.Context, detail *models.EnrollmentDetail) {
	stepCtx, cancel := w.stepContext(ctx)
	defer cancel()

	template, err := w.waivers.ActiveWaiverTemplate(stepCtx, "training")
	if err != nil {
		w.logger.Warn("workflow step failed: load waiver template",
			zap.String("enrollment_id", detail.ID), zap.Error(err))
		return
	}
	if template == nil {
		return
	}

	// Skip when the customer already signed a training waiver recently.
	hasValid, err := w.waivers.HasValidWaiver(stepCtx, detail.CustomerID, "training", 0)
	if err != nil {
		w.logger.Warn("workflow step failed: check existing waiver",
			zap.String("enrollment_id", detail.ID), zap.Error(err))
	} else if hasValid {
		return
	}

	token, err := generateWaiverToken()
	if err != nil {
		w.logger.Warn("workflow step failed: generate waiver token",
			zap.String("enrollment_id", detail.ID), zap.Error(err))
		return
	}

	now := time.Now().UTC()
	waiver := &models.WaiverEmail{
		ID:               uuid.NewString(),
		CustomerID:       detail.CustomerID,
		WaiverTemplateID: template.ID,
		ReferenceType:    "course_enrollment",
		ReferenceID:      detail.ID,
		EmailTo:          detail.CustomerEmail,
		Subject:          fmt.Sprintf("Waiver required for %s", detail.CourseName),
		Token:            token,
		WaiverURL:        fmt.Sprintf("%s/waivers/sign/%s", w.config.AppURL, token),
		Status:           "queued",
		ExpiresAt:        now.AddDate(0, 0, w.config.WaiverExpiryDays),
		CreatedAt:        now,
	}
	if err := w.waivers.QueueWaiverEmail(stepCtx, waiver); err != nil {
		w.logger.Warn("workflow step failed: queue waiver email",
			zap.String("enrollment_id", detail.ID), zap.Error(err))
	}
}

func (w *WorkflowOrchestrator) stepContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, w.config.StepTimeout)
}

func generateWaiverToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
