package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/nautilusdive/ops-api/internal/models"
)

// CustomerRepository loads customer and certification profile data.
type CustomerRepository struct {
	db *sqlx.DB
}

// NewCustomerRepository constructs the repository.
func NewCustomerRepository(db *sqlx.DB) *CustomerRepository {
	return &CustomerRepository{db: db}
}

// FindByID returns a customer by identifier.
func (r *CustomerRepository) FindByID(ctx context.Context, id string) (*models.Customer, error) {
	const query = `SELECT id, first_name, last_name, email, phone, birth_date, created_at FROM customers WHERE id = $1`
	var customer models.Customer
	if err := r.db.GetContext(ctx, &customer, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find customer: %w", err)
	}
	return &customer, nil
}

// GetCertifications returns the customer's verified and pending certifications
// joined with the certification catalog, highest level first.
func (r *CustomerRepository) GetCertifications(ctx context.Context, customerID string) ([]models.CustomerCertification, error) {
	const query = `SELECT cc.id, cc.customer_id, cc.certification_id, cc.certification_date, cc.verification_status,
        c.name, c.code, c.level, ca.abbreviation AS agency
        FROM customer_certifications cc
        JOIN certifications c ON c.id = cc.certification_id
        JOIN certification_agencies ca ON ca.id = c.agency_id
        WHERE cc.customer_id = $1 AND cc.verification_status IN ($2, $3)
        ORDER BY c.level DESC`
	var certs []models.CustomerCertification
	if err := r.db.SelectContext(ctx, &certs, query, customerID, models.CertificationVerified, models.CertificationPending); err != nil {
		return nil, fmt.Errorf("list customer certifications: %w", err)
	}
	return certs, nil
}

// GetBirthDate returns the customer's birth date, which may be null.
func (r *CustomerRepository) GetBirthDate(ctx context.Context, customerID string) (*time.Time, error) {
	const query = `SELECT birth_date FROM customers WHERE id = $1`
	var birthDate *time.Time
	if err := r.db.GetContext(ctx, &birthDate, query, customerID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get customer birth date: %w", err)
	}
	return birthDate, nil
}

// GetCompletedTripCount counts completed trip participations. There is no
// dedicated dive-log table yet; completed trips stand in for logged dives.
func (r *CustomerRepository) GetCompletedTripCount(ctx context.Context, customerID string) (int, error) {
	const query = `SELECT COUNT(*) FROM trip_participants tp
        JOIN trip_schedules ts ON ts.id = tp.trip_schedule_id
        WHERE tp.customer_id = $1 AND ts.status = 'completed'`
	var count int
	if err := r.db.GetContext(ctx, &count, query, customerID); err != nil {
		return 0, fmt.Errorf("count completed trips: %w", err)
	}
	return count, nil
}

// GetMedicalInfo returns the customer's medical record, or nil when absent.
func (r *CustomerRepository) GetMedicalInfo(ctx context.Context, customerID string) (*models.MedicalInfo, error) {
	const query = `SELECT customer_id, fitness_to_dive, medical_clearance_date FROM customer_medical_info WHERE customer_id = $1`
	var info models.MedicalInfo
	if err := r.db.GetContext(ctx, &info, query, customerID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get medical info: %w", err)
	}
	return &info, nil
}

// LoadProfile gathers everything the prerequisite evaluator needs about a
// customer in one pass.
func (r *CustomerRepository) LoadProfile(ctx context.Context, customerID string) (*models.CertificationProfile, error) {
	birthDate, err := r.GetBirthDate(ctx, customerID)
	if err != nil {
		return nil, err
	}
	certs, err := r.GetCertifications(ctx, customerID)
	if err != nil {
		return nil, err
	}
	dives, err := r.GetCompletedTripCount(ctx, customerID)
	if err != nil {
		return nil, err
	}
	medical, err := r.GetMedicalInfo(ctx, customerID)
	if err != nil {
		return nil, err
	}
	return &models.CertificationProfile{
		CustomerID:     customerID,
		Certifications: certs,
		BirthDate:      birthDate,
		LoggedDives:    dives,
		Medical:        medical,
	}, nil
}

// HighestCertification returns the customer's highest-level verified or
// pending certification, or nil when they hold none.
func (r *CustomerRepository) HighestCertification(ctx context.Context, customerID string) (*models.CustomerCertification, error) {
	const query = `SELECT cc.id, cc.customer_id, cc.certification_id, cc.certification_date, cc.verification_status,
        c.name, c.code, c.level, ca.abbreviation AS agency
        FROM customer_certifications cc
        JOIN certifications c ON c.id = cc.certification_id
        JOIN certification_agencies ca ON ca.id = c.agency_id
        WHERE cc.customer_id = $1 AND cc.verification_status IN ($2, $3)
        ORDER BY c.level DESC
        LIMIT 1`
	var cert models.CustomerCertification
	if err := r.db.GetContext(ctx, &cert, query, customerID, models.CertificationVerified, models.CertificationPending); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get highest certification: %w", err)
	}
	return &cert, nil
}
