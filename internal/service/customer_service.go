package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/nautilusdive/ops-api/internal/models"
	appErrors "github.com/nautilusdive/ops-api/pkg/errors"
)

type customerProfileRepository interface {
	FindByID(ctx context.Context, id string) (*models.Customer, error)
	GetCertifications(ctx context.Context, customerID string) ([]models.CustomerCertification, error)
	HighestCertification(ctx context.Context, customerID string) (*models.CustomerCertification, error)
}

type customerWaiverRepository interface {
	HasValidWaiver(ctx context.Context, customerID, referenceType string, graceDays int) (bool, error)
}

// CustomerProfile is the dive profile served on the customer endpoint.
type CustomerProfile struct {
	Customer             models.Customer                 `json:"customer"`
	Certifications       []models.CustomerCertification  `json:"certifications"`
	HighestCertification *models.CustomerCertification   `json:"highest_certification,omitempty"`
	HasValidWaiver       bool                            `json:"has_valid_waiver"`
}

// CustomerService serves customer dive profiles.
type CustomerService struct {
	repo    customerProfileRepository
	waivers customerWaiverRepository
	logger  *zap.Logger
}

// NewCustomerService constructs a CustomerService.
func NewCustomerService(repo customerProfileRepository, waivers customerWaiverRepository, logger *zap.Logger) *CustomerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CustomerService{repo: repo, waivers: waivers, logger: logger}
}

// Profile assembles the customer's dive profile: certifications, highest
// certification and training waiver standing.
func (s *CustomerService) Profile(ctx context.Context, customerID string) (*CustomerProfile, error) {
	customer, err := s.repo.FindByID(ctx, customerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "customer not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load customer")
	}

	certs, err := s.repo.GetCertifications(ctx, customerID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load certifications")
	}

	highest, err := s.repo.HighestCertification(ctx, customerID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load highest certification")
	}

	hasWaiver, err := s.waivers.HasValidWaiver(ctx, customerID, "training", 0)
	if err != nil {
		s.logger.Warn("failed to check waiver validity", zap.String("customer_id", customerID), zap.Error(err))
	}

	return &CustomerProfile{
		Customer:             *customer,
		Certifications:       certs,
		HighestCertification: highest,
		HasValidWaiver:       hasWaiver,
	}, nil
}
