package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/nautilusdive/ops-api/internal/models"
)

// CourseRepository handles persistence of courses and their requirement
// catalog.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// courseRow mirrors the courses table, holding the raw prerequisites blob.
type courseRow struct {
	ID            string         `db:"id"`
	Code          string         `db:"code"`
	Name          string         `db:"name"`
	Description   sql.NullString `db:"description"`
	DurationDays  int            `db:"duration_days"`
	Price         float64        `db:"price"`
	Prerequisites []byte         `db:"prerequisites"`
	Active        bool           `db:"active"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

// toModel decodes the prerequisites blob into the typed rule set once, at
// load time. A null or empty blob means the course has no prerequisites.
func (row courseRow) toModel() (*models.Course, error) {
	course := &models.Course{
		ID:           row.ID,
		Code:         row.Code,
		Name:         row.Name,
		Description:  row.Description.String,
		DurationDays: row.DurationDays,
		Price:        row.Price,
		Active:       row.Active,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}
	if len(row.Prerequisites) > 0 {
		var rules models.RuleSet
		if err := json.Unmarshal(row.Prerequisites, &rules); err != nil {
			return nil, fmt.Errorf("course %s: %w", row.ID, err)
		}
		course.Prerequisites = rules
	}
	return course, nil
}

const courseColumns = `id, code, name, description, duration_days, price, prerequisites, active, created_at, updated_at`

// FindByID returns a course with its prerequisite rules decoded.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	query := fmt.Sprintf(`SELECT %s FROM courses WHERE id = $1`, courseColumns)
	var row courseRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find course: %w", err)
	}
	return row.toModel()
}

// ListActive returns all active courses ordered by name.
func (r *CourseRepository) ListActive(ctx context.Context) ([]models.Course, error) {
	query := fmt.Sprintf(`SELECT %s FROM courses WHERE active = TRUE ORDER BY name`, courseColumns)
	var rows []courseRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("list active courses: %w", err)
	}
	courses := make([]models.Course, 0, len(rows))
	for _, row := range rows {
		course, err := row.toModel()
		if err != nil {
			return nil, err
		}
		courses = append(courses, *course)
	}
	return courses, nil
}

// ListRequirements returns the active checklist requirements attached to a
// course in display order.
func (r *CourseRepository) ListRequirements(ctx context.Context, courseID string) ([]models.CourseRequirementDetail, error) {
	const query = `SELECT cr.id, cr.course_id, cr.requirement_type_id, cr.mandatory, cr.sort_order, cr.instructions,
        rt.code AS type_code, rt.name AS type_name, rt.kind
        FROM course_requirements cr
        JOIN requirement_types rt ON rt.id = cr.requirement_type_id
        WHERE cr.course_id = $1 AND rt.active = TRUE
        ORDER BY cr.sort_order ASC`
	var requirements []models.CourseRequirementDetail
	if err := r.db.SelectContext(ctx, &requirements, query, courseID); err != nil {
		return nil, fmt.Errorf("list course requirements: %w", err)
	}
	return requirements, nil
}
