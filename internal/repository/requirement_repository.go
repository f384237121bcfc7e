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

// RequirementRepository handles persistence of per-enrollment checklist
// items.
type RequirementRepository struct {
	db *sqlx.DB
}

// NewRequirementRepository constructs the repository.
func NewRequirementRepository(db *sqlx.DB) *RequirementRepository {
	return &RequirementRepository{db: db}
}

// UpsertPending ensures one pending checklist row exists for the enrollment
// and requirement type. The natural key (enrollment_id, requirement_type_id)
// makes repeated checklist creation idempotent.
func (r *RequirementRepository) UpsertPending(ctx context.Context, enrollmentID, requirementTypeID string) error {
	const query = `INSERT INTO enrollment_requirements
        (id, enrollment_id, requirement_type_id, status, is_completed, reminder_sent, reminder_count, created_at)
        VALUES ($1, $2, $3, $4, FALSE, FALSE, 0, $5)
        ON CONFLICT (enrollment_id, requirement_type_id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, uuid.NewString(), enrollmentID, requirementTypeID, models.RequirementStatusPending, time.Now().UTC()); err != nil {
		return fmt.Errorf("upsert enrollment requirement: %w", err)
	}
	return nil
}

const requirementDetailColumns = `er.id, er.enrollment_id, er.requirement_type_id, er.status, er.is_completed,
        er.completed_at, er.verified_by, er.verified_at, er.waiver_id, er.elearning_completion_date,
        er.photo_path, er.document_path, er.notes, er.reminder_sent, er.reminder_sent_at, er.reminder_count, er.created_at,
        rt.code AS type_code, rt.name AS type_name, rt.kind, cr.mandatory, cr.instructions`

// FindByID returns a checklist item with its catalog context.
func (r *RequirementRepository) FindByID(ctx context.Context, id string) (*models.EnrollmentRequirementDetail, error) {
	query := fmt.Sprintf(`SELECT %s
        FROM enrollment_requirements er
        JOIN requirement_types rt ON rt.id = er.requirement_type_id
        JOIN course_enrollments e ON e.id = er.enrollment_id
        JOIN course_schedules cs ON cs.id = e.schedule_id
        JOIN course_requirements cr ON cr.requirement_type_id = er.requirement_type_id AND cr.course_id = cs.course_id
        WHERE er.id = $1`, requirementDetailColumns)
	var detail models.EnrollmentRequirementDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find enrollment requirement: %w", err)
	}
	return &detail, nil
}

// ListByEnrollment returns the enrollment's checklist in display order.
func (r *RequirementRepository) ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.EnrollmentRequirementDetail, error) {
	query := fmt.Sprintf(`SELECT %s
        FROM enrollment_requirements er
        JOIN requirement_types rt ON rt.id = er.requirement_type_id
        JOIN course_enrollments e ON e.id = er.enrollment_id
        JOIN course_schedules cs ON cs.id = e.schedule_id
        JOIN course_requirements cr ON cr.requirement_type_id = er.requirement_type_id AND cr.course_id = cs.course_id
        WHERE er.enrollment_id = $1
        ORDER BY cr.sort_order ASC`, requirementDetailColumns)
	var items []models.EnrollmentRequirementDetail
	if err := r.db.SelectContext(ctx, &items, query, enrollmentID); err != nil {
		return nil, fmt.Errorf("list enrollment requirements: %w", err)
	}
	return items, nil
}

// Complete transitions a checklist item to completed, stamping the verifier
// and merging only the evidence fields present in the payload. Absent fields
// keep their stored values; the progressive-disclosure forms submit only the
// fields their requirement kind uses.
func (r *RequirementRepository) Complete(ctx context.Context, id, verifierID string, payload models.RequirementPayload) error {
	now := time.Now().UTC()
	const query = `UPDATE enrollment_requirements
        SET status = $2,
            is_completed = TRUE,
            completed_at = $3,
            verified_by = $4,
            verified_at = $3,
            waiver_id = COALESCE($5, waiver_id),
            elearning_completion_date = COALESCE($6, elearning_completion_date),
            photo_path = COALESCE($7, photo_path),
            document_path = COALESCE($8, document_path),
            notes = COALESCE($9, notes)
        WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query,
		id,
		models.RequirementStatusCompleted,
		now,
		verifierID,
		payload.WaiverID,
		payload.ELearningDate,
		payload.PhotoPath,
		payload.DocumentPath,
		payload.Notes,
	)
	if err != nil {
		return fmt.Errorf("complete enrollment requirement: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CountIncompleteMandatory returns how many mandatory checklist items remain
// incomplete for an enrollment. Zero means the student is ready.
func (r *RequirementRepository) CountIncompleteMandatory(ctx context.Context, enrollmentID string) (int, error) {
	const query = `SELECT COUNT(*)
        FROM enrollment_requirements er
        JOIN course_enrollments e ON e.id = er.enrollment_id
        JOIN course_schedules cs ON cs.id = e.schedule_id
        JOIN course_requirements cr ON cr.requirement_type_id = er.requirement_type_id AND cr.course_id = cs.course_id
        WHERE er.enrollment_id = $1 AND cr.mandatory = TRUE AND er.is_completed = FALSE`
	var count int
	if err := r.db.GetContext(ctx, &count, query, enrollmentID); err != nil {
		return 0, fmt.Errorf("count incomplete mandatory requirements: %w", err)
	}
	return count, nil
}

// MarkRemindersSent records that a reminder email went out for every pending
// item of the enrollment.
func (r *RequirementRepository) MarkRemindersSent(ctx context.Context, enrollmentID string) error {
	const query = `UPDATE enrollment_requirements
        SET reminder_sent = TRUE, reminder_sent_at = $2, reminder_count = reminder_count + 1
        WHERE enrollment_id = $1 AND status = $3`
	if _, err := r.db.ExecContext(ctx, query, enrollmentID, time.Now().UTC(), models.RequirementStatusPending); err != nil {
		return fmt.Errorf("mark reminders sent: %w", err)
	}
	return nil
}
