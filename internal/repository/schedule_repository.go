package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/nautilusdive/ops-api/internal/models"
)

// ScheduleRepository handles persistence of course schedules and their
// cached capacity counters.
type ScheduleRepository struct {
	db *sqlx.DB
}

// NewScheduleRepository constructs the repository.
func NewScheduleRepository(db *sqlx.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

const scheduleColumns = `id, course_id, instructor_id, location, start_date, end_date, max_students, current_enrollment, status, created_at`

// FindByID returns a schedule by identifier.
func (r *ScheduleRepository) FindByID(ctx context.Context, id string) (*models.CourseSchedule, error) {
	query := fmt.Sprintf(`SELECT %s FROM course_schedules WHERE id = $1`, scheduleColumns)
	var schedule models.CourseSchedule
	if err := r.db.GetContext(ctx, &schedule, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find schedule: %w", err)
	}
	return &schedule, nil
}

// FindDetailByID returns a schedule with course and instructor context.
func (r *ScheduleRepository) FindDetailByID(ctx context.Context, id string) (*models.ScheduleDetail, error) {
	const query = `SELECT cs.id, cs.course_id, cs.instructor_id, cs.location, cs.start_date, cs.end_date,
        cs.max_students, cs.current_enrollment, cs.status, cs.created_at,
        c.name AS course_name, c.code AS course_code, c.price AS course_price,
        u.full_name AS instructor_name, u.email AS instructor_email,
        (cs.max_students - cs.current_enrollment) AS available_spots
        FROM course_schedules cs
        JOIN courses c ON c.id = cs.course_id
        JOIN users u ON u.id = cs.instructor_id
        WHERE cs.id = $1`
	var detail models.ScheduleDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find schedule detail: %w", err)
	}
	return &detail, nil
}

// ListAvailable returns upcoming schedules for a course that still have
// seats free.
func (r *ScheduleRepository) ListAvailable(ctx context.Context, courseID string) ([]models.ScheduleDetail, error) {
	const query = `SELECT cs.id, cs.course_id, cs.instructor_id, cs.location, cs.start_date, cs.end_date,
        cs.max_students, cs.current_enrollment, cs.status, cs.created_at,
        c.name AS course_name, c.code AS course_code, c.price AS course_price,
        u.full_name AS instructor_name, u.email AS instructor_email,
        (cs.max_students - cs.current_enrollment) AS available_spots
        FROM course_schedules cs
        JOIN courses c ON c.id = cs.course_id
        JOIN users u ON u.id = cs.instructor_id
        WHERE cs.course_id = $1
          AND cs.status = $2
          AND cs.start_date >= CURRENT_DATE
          AND cs.current_enrollment < cs.max_students
        ORDER BY cs.start_date ASC`
	var schedules []models.ScheduleDetail
	if err := r.db.SelectContext(ctx, &schedules, query, courseID, models.ScheduleStatusScheduled); err != nil {
		return nil, fmt.Errorf("list available schedules: %w", err)
	}
	return schedules, nil
}

// ListByInstructor returns schedules taught by the given instructor.
func (r *ScheduleRepository) ListByInstructor(ctx context.Context, instructorID string) ([]models.CourseSchedule, error) {
	query := fmt.Sprintf(`SELECT %s FROM course_schedules WHERE instructor_id = $1 ORDER BY start_date DESC`, scheduleColumns)
	var schedules []models.CourseSchedule
	if err := r.db.SelectContext(ctx, &schedules, query, instructorID); err != nil {
		return nil, fmt.Errorf("list instructor schedules: %w", err)
	}
	return schedules, nil
}

// ReconcileCount recomputes the cached enrollment counter from the
// enrollment rows that still occupy a seat. The atomic increment/decrement
// on the enroll and transfer paths keeps the counter correct in normal
// operation; this is the repair path when the cache has drifted.
func (r *ScheduleRepository) ReconcileCount(ctx context.Context, scheduleID string) (int, error) {
	const query = `UPDATE course_schedules
        SET current_enrollment = (
            SELECT COUNT(*) FROM course_enrollments
            WHERE schedule_id = $1 AND status IN ($2, $3)
        )
        WHERE id = $1
        RETURNING current_enrollment`
	var count int
	if err := r.db.GetContext(ctx, &count, query, scheduleID, models.EnrollmentStatusEnrolled, models.EnrollmentStatusInProgress); err != nil {
		if err == sql.ErrNoRows {
			return 0, err
		}
		return 0, fmt.Errorf("reconcile schedule count: %w", err)
	}
	return count, nil
}
