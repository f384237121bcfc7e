package models

import "time"

// Customer is a dive-shop customer who can enroll in courses.
type Customer struct {
	ID        string     `db:"id" json:"id"`
	FirstName string     `db:"first_name" json:"first_name"`
	LastName  string     `db:"last_name" json:"last_name"`
	Email     string     `db:"email" json:"email"`
	Phone     string     `db:"phone" json:"phone,omitempty"`
	BirthDate *time.Time `db:"birth_date" json:"birth_date,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

// CertificationVerification tracks whether a claimed certification was checked.
type CertificationVerification string

// Verification states for customer certifications.
const (
	CertificationVerified CertificationVerification = "verified"
	CertificationPending  CertificationVerification = "pending"
	CertificationRejected CertificationVerification = "rejected"
)

// CustomerCertification is one certification held by a customer, joined with
// the certification catalog (name, code, agency, level).
type CustomerCertification struct {
	ID                 string                    `db:"id" json:"id"`
	CustomerID         string                    `db:"customer_id" json:"customer_id"`
	CertificationID    string                    `db:"certification_id" json:"certification_id"`
	Name               string                    `db:"name" json:"name"`
	Code               string                    `db:"code" json:"code"`
	Level              int                       `db:"level" json:"level"`
	Agency             string                    `db:"agency" json:"agency,omitempty"`
	CertificationDate  *time.Time                `db:"certification_date" json:"certification_date,omitempty"`
	VerificationStatus CertificationVerification `db:"verification_status" json:"verification_status"`
}

// MedicalInfo carries the customer's medical clearance record.
type MedicalInfo struct {
	CustomerID    string     `db:"customer_id" json:"customer_id"`
	FitnessToDive bool       `db:"fitness_to_dive" json:"fitness_to_dive"`
	ClearanceDate *time.Time `db:"medical_clearance_date" json:"medical_clearance_date,omitempty"`
}

// CertificationProfile is everything the prerequisite evaluator needs to know
// about a customer, loaded in one pass so a single evaluation is consistent.
type CertificationProfile struct {
	CustomerID     string                  `json:"customer_id"`
	Certifications []CustomerCertification `json:"certifications"`
	BirthDate      *time.Time              `json:"birth_date,omitempty"`
	LoggedDives    int                     `json:"logged_dives"`
	Medical        *MedicalInfo            `json:"medical,omitempty"`
}
