package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nautilusdive/ops-api/internal/models"
)

// Sentinel errors surfaced by capacity-affecting operations. Services map
// these onto the HTTP error taxonomy.
var (
	ErrScheduleFull        = errors.New("schedule is at capacity")
	ErrDuplicateEnrollment = errors.New("customer already enrolled in schedule")
	ErrCourseMismatch      = errors.New("target schedule belongs to a different course")
	ErrSameSchedule        = errors.New("enrollment already on target schedule")
	ErrEnrollmentInactive  = errors.New("enrollment no longer occupies a seat")
)

// EnrollmentRepository handles persistence of course enrollments. All
// capacity-affecting writes run inside a single transaction that locks the
// schedule row, so the capacity check and the counter update cannot race.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// EnrollParams holds values required to admit a customer into a schedule.
type EnrollParams struct {
	ScheduleID string
	CustomerID string
	AmountPaid float64
	Notes      string
	ActorID    string
}

// lockedSchedule is the snapshot read under FOR UPDATE.
type lockedSchedule struct {
	ID                string  `db:"id"`
	CourseID          string  `db:"course_id"`
	MaxStudents       int     `db:"max_students"`
	CurrentEnrollment int     `db:"current_enrollment"`
	Price             float64 `db:"price"`
}

// Enroll admits a customer into a schedule. The schedule row is locked for
// the duration of the transaction; capacity is re-checked under that lock so
// two concurrent enrollments cannot both take the last seat. The insert and
// the counter increment commit together or not at all.
func (r *EnrollmentRepository) Enroll(ctx context.Context, params EnrollParams) (id string, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin enroll transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const lockQuery = `SELECT cs.id, cs.course_id, cs.max_students, cs.current_enrollment, c.price
        FROM course_schedules cs
        JOIN courses c ON c.id = cs.course_id
        WHERE cs.id = $1
        FOR UPDATE OF cs`
	var schedule lockedSchedule
	if err = tx.GetContext(ctx, &schedule, lockQuery, params.ScheduleID); err != nil {
		if err == sql.ErrNoRows {
			return "", sql.ErrNoRows
		}
		return "", fmt.Errorf("lock schedule: %w", err)
	}

	if schedule.CurrentEnrollment >= schedule.MaxStudents {
		err = ErrScheduleFull
		return "", err
	}

	const dupQuery = `SELECT 1 FROM course_enrollments
        WHERE schedule_id = $1 AND customer_id = $2 AND status <> $3
        LIMIT 1`
	var exists int
	dupErr := tx.GetContext(ctx, &exists, dupQuery, params.ScheduleID, params.CustomerID, models.EnrollmentStatusCancelled)
	if dupErr == nil {
		err = ErrDuplicateEnrollment
		return "", err
	}
	if dupErr != sql.ErrNoRows {
		err = fmt.Errorf("check duplicate enrollment: %w", dupErr)
		return "", err
	}

	now := time.Now().UTC()
	id = uuid.NewString()
	const insertQuery = `INSERT INTO course_enrollments
        (id, schedule_id, customer_id, enrollment_date, status, amount_paid, payment_status, notes, created_by, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	if _, err = tx.ExecContext(ctx, insertQuery,
		id,
		params.ScheduleID,
		params.CustomerID,
		now,
		models.EnrollmentStatusEnrolled,
		params.AmountPaid,
		models.DerivePaymentStatus(params.AmountPaid, schedule.Price),
		params.Notes,
		params.ActorID,
		now,
	); err != nil {
		return "", fmt.Errorf("insert enrollment: %w", err)
	}

	const incrementQuery = `UPDATE course_schedules SET current_enrollment = current_enrollment + 1 WHERE id = $1`
	if _, err = tx.ExecContext(ctx, incrementQuery, params.ScheduleID); err != nil {
		return "", fmt.Errorf("increment schedule count: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return "", fmt.Errorf("commit enrollment: %w", err)
	}
	return id, nil
}

// TransferParams holds values required to move an enrollment between
// schedules of the same course.
type TransferParams struct {
	EnrollmentID  string
	NewScheduleID string
	Reason        string
	ActorID       string
}

// Transfer repoints an enrollment at a new schedule of the same course. Both
// schedule rows are locked in deterministic id order so two concurrent
// transfers cannot deadlock, and the four effects (audit note, repoint,
// decrement, increment) commit atomically.
func (r *EnrollmentRepository) Transfer(ctx context.Context, params TransferParams) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transfer transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var enrollment struct {
		ID         string                  `db:"id"`
		ScheduleID string                  `db:"schedule_id"`
		Status     models.EnrollmentStatus `db:"status"`
	}
	const enrollmentQuery = `SELECT id, schedule_id, status FROM course_enrollments WHERE id = $1 FOR UPDATE`
	if err = tx.GetContext(ctx, &enrollment, enrollmentQuery, params.EnrollmentID); err != nil {
		if err == sql.ErrNoRows {
			return sql.ErrNoRows
		}
		return fmt.Errorf("lock enrollment: %w", err)
	}
	if !enrollment.Status.Active() {
		err = ErrEnrollmentInactive
		return err
	}
	if enrollment.ScheduleID == params.NewScheduleID {
		err = ErrSameSchedule
		return err
	}

	schedules := map[string]lockedSchedule{}
	ids := []string{enrollment.ScheduleID, params.NewScheduleID}
	sort.Strings(ids)
	const scheduleLockQuery = `SELECT cs.id, cs.course_id, cs.max_students, cs.current_enrollment, c.price
        FROM course_schedules cs
        JOIN courses c ON c.id = cs.course_id
        WHERE cs.id = $1
        FOR UPDATE OF cs`
	for _, scheduleID := range ids {
		var schedule lockedSchedule
		if err = tx.GetContext(ctx, &schedule, scheduleLockQuery, scheduleID); err != nil {
			if err == sql.ErrNoRows {
				return sql.ErrNoRows
			}
			return fmt.Errorf("lock schedule %s: %w", scheduleID, err)
		}
		schedules[scheduleID] = schedule
	}

	oldSchedule := schedules[enrollment.ScheduleID]
	newSchedule := schedules[params.NewScheduleID]

	if newSchedule.CourseID != oldSchedule.CourseID {
		err = ErrCourseMismatch
		return err
	}
	if newSchedule.CurrentEnrollment >= newSchedule.MaxStudents {
		err = ErrScheduleFull
		return err
	}

	auditNote := fmt.Sprintf("\nTransferred from schedule %s on %s by staff %s. Reason: %s",
		oldSchedule.ID,
		time.Now().UTC().Format(time.RFC3339),
		params.ActorID,
		params.Reason,
	)
	const updateQuery = `UPDATE course_enrollments
        SET schedule_id = $2, notes = COALESCE(notes, '') || $3
        WHERE id = $1`
	if _, err = tx.ExecContext(ctx, updateQuery, params.EnrollmentID, params.NewScheduleID, auditNote); err != nil {
		return fmt.Errorf("repoint enrollment: %w", err)
	}

	const decrementQuery = `UPDATE course_schedules SET current_enrollment = current_enrollment - 1 WHERE id = $1`
	if _, err = tx.ExecContext(ctx, decrementQuery, oldSchedule.ID); err != nil {
		return fmt.Errorf("decrement old schedule: %w", err)
	}
	const incrementQuery = `UPDATE course_schedules SET current_enrollment = current_enrollment + 1 WHERE id = $1`
	if _, err = tx.ExecContext(ctx, incrementQuery, newSchedule.ID); err != nil {
		return fmt.Errorf("increment new schedule: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transfer: %w", err)
	}
	return nil
}

// Cancel marks an enrollment cancelled and releases its seat when one was
// still held.
func (r *EnrollmentRepository) Cancel(ctx context.Context, enrollmentID, reason, actorID string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin cancel transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var enrollment struct {
		ID         string                  `db:"id"`
		ScheduleID string                  `db:"schedule_id"`
		Status     models.EnrollmentStatus `db:"status"`
	}
	const enrollmentQuery = `SELECT id, schedule_id, status FROM course_enrollments WHERE id = $1 FOR UPDATE`
	if err = tx.GetContext(ctx, &enrollment, enrollmentQuery, enrollmentID); err != nil {
		if err == sql.ErrNoRows {
			return sql.ErrNoRows
		}
		return fmt.Errorf("lock enrollment: %w", err)
	}
	if enrollment.Status == models.EnrollmentStatusCancelled {
		err = ErrEnrollmentInactive
		return err
	}

	note := fmt.Sprintf("\nCancelled on %s by staff %s. Reason: %s",
		time.Now().UTC().Format(time.RFC3339), actorID, reason)
	const updateQuery = `UPDATE course_enrollments
        SET status = $2, notes = COALESCE(notes, '') || $3
        WHERE id = $1`
	if _, err = tx.ExecContext(ctx, updateQuery, enrollmentID, models.EnrollmentStatusCancelled, note); err != nil {
		return fmt.Errorf("cancel enrollment: %w", err)
	}

	if enrollment.Status.Active() {
		const decrementQuery = `UPDATE course_schedules SET current_enrollment = current_enrollment - 1 WHERE id = $1`
		if _, err = tx.ExecContext(ctx, decrementQuery, enrollment.ScheduleID); err != nil {
			return fmt.Errorf("release seat: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit cancel: %w", err)
	}
	return nil
}

// StatusUpdate carries the optional fields stamped when an instructor or
// manager updates an enrollment's training progress.
type StatusUpdate struct {
	Status              models.EnrollmentStatus
	FinalGrade          *string
	CertificationNumber *string
}

// UpdateStatus applies a partial update: only present fields overwrite, and
// the completion date is stamped when the enrollment completes.
func (r *EnrollmentRepository) UpdateStatus(ctx context.Context, id string, update StatusUpdate) error {
	const query = `UPDATE course_enrollments
        SET status = $2,
            final_grade = COALESCE($3, final_grade),
            certification_number = COALESCE($4, certification_number),
            completion_date = CASE WHEN $2 = $5 THEN CURRENT_DATE ELSE completion_date END
        WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, update.Status, update.FinalGrade, update.CertificationNumber, models.EnrollmentStatusCompleted)
	if err != nil {
		return fmt.Errorf("update enrollment status: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// FindByID returns an enrollment by its identifier.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.CourseEnrollment, error) {
	const query = `SELECT id, schedule_id, customer_id, enrollment_date, status, amount_paid, payment_status,
        final_grade, certification_number, completion_date, notes, created_by, created_at
        FROM course_enrollments WHERE id = $1`
	var enrollment models.CourseEnrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find enrollment: %w", err)
	}
	return &enrollment, nil
}

// FindDetailByID returns an enrollment with customer, course, schedule and
// instructor context.
func (r *EnrollmentRepository) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	const query = `SELECT e.id, e.schedule_id, e.customer_id, e.enrollment_date, e.status, e.amount_paid, e.payment_status,
        e.final_grade, e.certification_number, e.completion_date, e.notes, e.created_by, e.created_at,
        (cu.first_name || ' ' || cu.last_name) AS customer_name, cu.email AS customer_email, cu.phone AS customer_phone,
        c.id AS course_id, c.name AS course_name, c.code AS course_code,
        cs.start_date, cs.end_date, cs.location, cs.instructor_id,
        u.full_name AS instructor_name, u.email AS instructor_email
        FROM course_enrollments e
        JOIN customers cu ON cu.id = e.customer_id
        JOIN course_schedules cs ON cs.id = e.schedule_id
        JOIN courses c ON c.id = cs.course_id
        JOIN users u ON u.id = cs.instructor_id
        WHERE e.id = $1`
	var detail models.EnrollmentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find enrollment detail: %w", err)
	}
	return &detail, nil
}

// ListRoster returns the enrolled students for a schedule with their
// mandatory checklist progress totals.
func (r *EnrollmentRepository) ListRoster(ctx context.Context, scheduleID string) ([]models.RosterEntry, error) {
	const query = `SELECT e.id AS enrollment_id, e.customer_id,
        (cu.first_name || ' ' || cu.last_name) AS student_name,
        cu.email, cu.phone, e.status, e.payment_status, e.enrollment_date,
        (SELECT COUNT(*) FROM enrollment_requirements er
         JOIN course_requirements cr ON cr.requirement_type_id = er.requirement_type_id
         JOIN course_schedules cs2 ON cs2.id = e.schedule_id
         WHERE er.enrollment_id = e.id AND cr.course_id = cs2.course_id AND cr.mandatory = TRUE) AS total_requirements,
        (SELECT COUNT(*) FROM enrollment_requirements er
         JOIN course_requirements cr ON cr.requirement_type_id = er.requirement_type_id
         JOIN course_schedules cs2 ON cs2.id = e.schedule_id
         WHERE er.enrollment_id = e.id AND cr.course_id = cs2.course_id AND cr.mandatory = TRUE AND er.is_completed = TRUE) AS completed_requirements
        FROM course_enrollments e
        JOIN customers cu ON cu.id = e.customer_id
        WHERE e.schedule_id = $1 AND e.status <> $2
        ORDER BY e.enrollment_date ASC`
	var entries []models.RosterEntry
	if err := r.db.SelectContext(ctx, &entries, query, scheduleID, models.EnrollmentStatusCancelled); err != nil {
		return nil, fmt.Errorf("list roster: %w", err)
	}
	for i := range entries {
		if entries[i].TotalRequirements > 0 {
			entries[i].CompletionPercentage = entries[i].CompletedRequirements * 100 / entries[i].TotalRequirements
		} else {
			entries[i].CompletionPercentage = 100
		}
	}
	return entries, nil
}

// ListByCustomer returns a customer's course history, newest first.
func (r *EnrollmentRepository) ListByCustomer(ctx context.Context, customerID string) ([]models.EnrollmentDetail, error) {
	const query = `SELECT e.id, e.schedule_id, e.customer_id, e.enrollment_date, e.status, e.amount_paid, e.payment_status,
        e.final_grade, e.certification_number, e.completion_date, e.notes, e.created_by, e.created_at,
        (cu.first_name || ' ' || cu.last_name) AS customer_name, cu.email AS customer_email, cu.phone AS customer_phone,
        c.id AS course_id, c.name AS course_name, c.code AS course_code,
        cs.start_date, cs.end_date, cs.location, cs.instructor_id,
        u.full_name AS instructor_name, u.email AS instructor_email
        FROM course_enrollments e
        JOIN customers cu ON cu.id = e.customer_id
        JOIN course_schedules cs ON cs.id = e.schedule_id
        JOIN courses c ON c.id = cs.course_id
        JOIN users u ON u.id = cs.instructor_id
        WHERE e.customer_id = $1
        ORDER BY e.enrollment_date DESC`
	var history []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &history, query, customerID); err != nil {
		return nil, fmt.Errorf("list customer enrollments: %w", err)
	}
	return history, nil
}
