package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nautilusdive/ops-api/internal/models"
	appErrors "github.com/nautilusdive/ops-api/pkg/errors"
	"github.com/nautilusdive/ops-api/pkg/storage"
)

type requirementRepository interface {
	UpsertPending(ctx context.Context, enrollmentID, requirementTypeID string) error
	FindByID(ctx context.Context, id string) (*models.EnrollmentRequirementDetail, error)
	ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.EnrollmentRequirementDetail, error)
	Complete(ctx context.Context, id, verifierID string, payload models.RequirementPayload) error
	CountIncompleteMandatory(ctx context.Context, enrollmentID string) (int, error)
	MarkRemindersSent(ctx context.Context, enrollmentID string) error
}

type courseRequirementLister interface {
	ListRequirements(ctx context.Context, courseID string) ([]models.CourseRequirementDetail, error)
}

// readySignal receives the one-shot "student ready" notification trigger.
// Implemented by WorkflowOrchestrator.
type readySignal interface {
	StudentReady(ctx context.Context, enrollmentID string)
}

// RequirementService manages the per-enrollment checklist: building it,
// verifying items with evidence, and signalling readiness when the last
// mandatory item completes.
type RequirementService struct {
	repo      requirementRepository
	courses   courseRequirementLister
	ready     readySignal
	store     *storage.LocalStorage
	signer    *storage.SignedURLSigner
	validator *validator.Validate
	logger    *zap.Logger
}

// NewRequirementService constructs a RequirementService.
func NewRequirementService(repo requirementRepository, courses courseRequirementLister, store *storage.LocalStorage, signer *storage.SignedURLSigner, validate *validator.Validate, logger *zap.Logger) *RequirementService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &RequirementService{
		repo:      repo,
		courses:   courses,
		store:     store,
		signer:    signer,
		validator: validate,
		logger:    logger,
	}
}

// SetReadySignal attaches the readiness hook. Wired after construction to
// break the cycle with the workflow orchestrator.
func (s *RequirementService) SetReadySignal(r readySignal) {
	s.ready = r
}

// CreateChecklist inserts one pending row per active course requirement.
// The upsert ignores rows that already exist, so replays of the same
// enrollment never duplicate items or reset completed ones.
func (s *RequirementService) CreateChecklist(ctx context.Context, enrollmentID, courseID string) (int, error) {
	requirements, err := s.courses.ListRequirements(ctx, courseID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list course requirements")
	}
	created := 0
	for _, req := range requirements {
		if err := s.repo.UpsertPending(ctx, enrollmentID, req.RequirementTypeID); err != nil {
			return created, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create checklist item")
		}
		created++
	}
	s.logger.Info("checklist created",
		zap.String("enrollment_id", enrollmentID),
		zap.String("course_id", courseID),
		zap.Int("items", created))
	return created, nil
}

// List returns the checklist for an enrollment with catalog context.
func (s *RequirementService) List(ctx context.Context, enrollmentID string) ([]models.EnrollmentRequirementDetail, error) {
	items, err := s.repo.ListByEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list requirements")
	}
	return items, nil
}

// Complete verifies a checklist item. Only fields present in the payload
// overwrite stored evidence. The "student ready" signal fires exactly once,
// on the write that takes the enrollment from incomplete to all-mandatory-
// complete; completing further optional items afterwards does not re-fire.
func (s *RequirementService) Complete(ctx context.Context, requirementID, actorID string, payload models.RequirementPayload) (*models.EnrollmentRequirementDetail, error) {
	item, err := s.repo.FindByID(ctx, requirementID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "requirement not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load requirement")
	}

	// The before/after readiness check spans two counts outside a
	// transaction. Checklist rows for an enrollment have a single writer
	// (the staff member handling the student), so the counts cannot move
	// between them.
	readyBefore, err := s.allMandatoryComplete(ctx, item.EnrollmentID)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Complete(ctx, requirementID, actorID, payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "requirement not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to complete requirement")
	}

	s.logger.Info("requirement completed",
		zap.String("requirement_id", requirementID),
		zap.String("enrollment_id", item.EnrollmentID),
		zap.String("type_code", item.TypeCode),
		zap.String("actor_id", actorID))

	if !readyBefore {
		readyAfter, err := s.allMandatoryComplete(ctx, item.EnrollmentID)
		if err != nil {
			s.logger.Warn("failed to evaluate readiness after completion",
				zap.String("enrollment_id", item.EnrollmentID), zap.Error(err))
		} else if readyAfter && s.ready != nil {
			s.ready.StudentReady(ctx, item.EnrollmentID)
		}
	}

	updated, err := s.repo.FindByID(ctx, requirementID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload requirement")
	}
	return updated, nil
}

// AllMandatoryComplete reports whether every mandatory checklist item of the
// enrollment is completed. Always queried live, never cached.
func (s *RequirementService) AllMandatoryComplete(ctx context.Context, enrollmentID string) (bool, error) {
	return s.allMandatoryComplete(ctx, enrollmentID)
}

func (s *RequirementService) allMandatoryComplete(ctx context.Context, enrollmentID string) (bool, error) {
	incomplete, err := s.repo.CountIncompleteMandatory(ctx, enrollmentID)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count incomplete requirements")
	}
	return incomplete == 0, nil
}

// MarkRemindersSent stamps reminder bookkeeping on every incomplete item of
// the enrollment. Called by the workflow after the reminder email goes out.
func (s *RequirementService) MarkRemindersSent(ctx context.Context, enrollmentID string) error {
	if err := s.repo.MarkRemindersSent(ctx, enrollmentID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark reminders sent")
	}
	return nil
}

// allowed evidence extensions per requirement kind
var evidenceExtensions = map[models.RequirementKind]map[string]bool{
	models.RequirementKindPhoto:    {".jpg": true, ".jpeg": true, ".png": true},
	models.RequirementKindDocument: {".pdf": true, ".jpg": true, ".jpeg": true, ".png": true},
}

// StoreEvidence saves an uploaded evidence file for a checklist item and
// returns the stored relative path. The caller passes the path on to
// Complete via the matching payload field.
func (s *RequirementService) StoreEvidence(ctx context.Context, requirementID, originalName string, r io.Reader) (string, error) {
	item, err := s.repo.FindByID(ctx, requirementID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", appErrors.Clone(appErrors.ErrNotFound, "requirement not found")
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load requirement")
	}

	allowed, ok := evidenceExtensions[item.Kind]
	if !ok {
		return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("requirement kind %q does not accept file evidence", item.Kind))
	}
	ext := strings.ToLower(filepath.Ext(originalName))
	if !allowed[ext] {
		return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file type %q is not accepted", ext))
	}

	filename := filepath.Join("evidence", item.EnrollmentID, uuid.NewString()+ext)
	relPath, err := s.store.SaveStream(filename, r)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store evidence file")
	}

	s.logger.Info("evidence stored",
		zap.String("requirement_id", requirementID),
		zap.String("path", relPath))
	return relPath, nil
}

// EvidenceURL issues a short-lived signed download token for a stored
// evidence file.
func (s *RequirementService) EvidenceURL(ctx context.Context, requirementID string) (string, time.Time, error) {
	item, err := s.repo.FindByID(ctx, requirementID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", time.Time{}, appErrors.Clone(appErrors.ErrNotFound, "requirement not found")
		}
		return "", time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load requirement")
	}

	var relPath string
	switch {
	case item.PhotoPath != nil && *item.PhotoPath != "":
		relPath = *item.PhotoPath
	case item.DocumentPath != nil && *item.DocumentPath != "":
		relPath = *item.DocumentPath
	default:
		return "", time.Time{}, appErrors.Clone(appErrors.ErrNotFound, "requirement has no stored evidence")
	}

	token, expiresAt, err := s.signer.Generate(requirementID, relPath)
	if err != nil {
		return "", time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign evidence url")
	}
	return token, expiresAt, nil
}

// OpenEvidence validates a signed token and opens the underlying file.
func (s *RequirementService) OpenEvidence(token string) (io.ReadCloser, string, error) {
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid or expired evidence token")
	}
	f, err := s.store.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "evidence file not found")
	}
	return f, filepath.Base(relPath), nil
}
