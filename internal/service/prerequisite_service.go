package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nautilusdive/ops-api/internal/models"
	appErrors "github.com/nautilusdive/ops-api/pkg/errors"
)

type profileLoader interface {
	LoadProfile(ctx context.Context, customerID string) (*models.CertificationProfile, error)
}

type courseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	ListActive(ctx context.Context) ([]models.Course, error)
}

// PrerequisiteService evaluates a customer's certification profile against
// the declarative rule set attached to a course.
type PrerequisiteService struct {
	profiles profileLoader
	courses  courseReader
	cache    *CacheService
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewPrerequisiteService constructs PrerequisiteService.
func NewPrerequisiteService(profiles profileLoader, courses courseReader, cache *CacheService, cacheTTL time.Duration, logger *zap.Logger) *PrerequisiteService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PrerequisiteService{profiles: profiles, courses: courses, cache: cache, cacheTTL: cacheTTL, logger: logger}
}

// Evaluate checks every rule against the profile and returns the verdict
// with a complete per-rule breakdown. It is a pure function of its inputs:
// no rule short-circuits, so Details covers every rule even when the
// customer is ineligible, and the same profile and rule set always produce
// the same result. An empty rule set means the customer is eligible.
func Evaluate(profile *models.CertificationProfile, rules models.RuleSet, now time.Time) models.EligibilityResult {
	result := models.EligibilityResult{
		MissingRequirements: []string{},
		Details:             []models.RuleDetail{},
	}

	for _, rule := range rules {
		switch rule.Type {
		case models.PrerequisiteCertification:
			detail := models.RuleDetail{Type: rule.Type, Requirement: rule.Certification, Status: models.RuleStatusMet}
			if rule.MinLevel != nil {
				detail.Required = fmt.Sprintf("level %d", *rule.MinLevel)
			}
			if !hasRequiredCertification(profile.Certifications, rule.Certification, rule.MinLevel) {
				detail.Status = models.RuleStatusMissing
				result.MissingRequirements = append(result.MissingRequirements, rule.Certification)
			}
			result.Details = append(result.Details, detail)

		case models.PrerequisiteLoggedDives:
			detail := models.RuleDetail{
				Type:     rule.Type,
				Required: fmt.Sprintf("%d", rule.MinDives),
				Actual:   fmt.Sprintf("%d", profile.LoggedDives),
				Status:   models.RuleStatusMet,
			}
			if profile.LoggedDives < rule.MinDives {
				detail.Status = models.RuleStatusMissing
				result.MissingRequirements = append(result.MissingRequirements,
					fmt.Sprintf("%d logged dives (has %d)", rule.MinDives, profile.LoggedDives))
			}
			result.Details = append(result.Details, detail)

		case models.PrerequisiteAge:
			detail := models.RuleDetail{Type: rule.Type, Required: fmt.Sprintf("%d", rule.MinAge)}
			if profile.BirthDate == nil {
				// Unknown birth date is its own outcome, distinct from
				// being too young.
				detail.Actual = "unknown"
				detail.Status = models.RuleStatusMissing
				result.MissingRequirements = append(result.MissingRequirements,
					fmt.Sprintf("Age verification required (must be %d+)", rule.MinAge))
			} else {
				age := ageAt(*profile.BirthDate, now)
				detail.Actual = fmt.Sprintf("%d", age)
				if age < rule.MinAge {
					detail.Status = models.RuleStatusMissing
					result.MissingRequirements = append(result.MissingRequirements,
						fmt.Sprintf("Must be at least %d years old (current age: %d)", rule.MinAge, age))
				} else {
					detail.Status = models.RuleStatusMet
				}
			}
			result.Details = append(result.Details, detail)

		case models.PrerequisiteSpecialties:
			count := specialtyCount(profile.Certifications)
			detail := models.RuleDetail{
				Type:     rule.Type,
				Required: fmt.Sprintf("%d", rule.MinSpecialties),
				Actual:   fmt.Sprintf("%d", count),
				Status:   models.RuleStatusMet,
			}
			if count < rule.MinSpecialties {
				detail.Status = models.RuleStatusMissing
				result.MissingRequirements = append(result.MissingRequirements,
					fmt.Sprintf("%d specialty certifications (has %d)", rule.MinSpecialties, count))
			}
			result.Details = append(result.Details, detail)

		case models.PrerequisiteMedical:
			detail := models.RuleDetail{Type: rule.Type, Status: models.RuleStatusMet}
			if !medicalCurrent(profile.Medical, now) {
				detail.Status = models.RuleStatusMissing
				result.MissingRequirements = append(result.MissingRequirements, "Current medical clearance required")
			}
			result.Details = append(result.Details, detail)
		}
	}

	result.MeetsRequirements = len(result.MissingRequirements) == 0
	return result
}

// hasRequiredCertification reports whether any verified or pending
// certification matches the required name or code by case-insensitive
// substring, at or above the minimum level when one is given. Any single
// match suffices.
func hasRequiredCertification(certs []models.CustomerCertification, required string, minLevel *int) bool {
	needle := strings.ToLower(required)
	for _, cert := range certs {
		if !strings.Contains(strings.ToLower(cert.Name), needle) &&
			!strings.Contains(strings.ToLower(cert.Code), needle) {
			continue
		}
		if minLevel != nil && cert.Level < *minLevel {
			continue
		}
		return true
	}
	return false
}

// specialtyCount counts specialty certifications: level 3 through 5,
// excluding core track names. The name exclusion is a heuristic carried over
// from the catalog, which has no dedicated specialty flag; the substring
// match is deliberately case-sensitive.
func specialtyCount(certs []models.CustomerCertification) int {
	count := 0
	for _, cert := range certs {
		if cert.Level < 3 || cert.Level > 5 {
			continue
		}
		if strings.Contains(cert.Name, "Advanced") ||
			strings.Contains(cert.Name, "Rescue") ||
			strings.Contains(cert.Name, "Master") {
			continue
		}
		count++
	}
	return count
}

// medicalCurrent reports whether the medical record clears the customer to
// dive and the clearance is at most 12 months old. The window is measured in
// calendar months rather than days so month-length variance does not matter.
func medicalCurrent(medical *models.MedicalInfo, now time.Time) bool {
	if medical == nil || !medical.FitnessToDive || medical.ClearanceDate == nil {
		return false
	}
	return monthsBetween(*medical.ClearanceDate, now) <= 12
}

func monthsBetween(from, to time.Time) int {
	if from.After(to) {
		from, to = to, from
	}
	months := (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
	if to.Day() < from.Day() {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}

func ageAt(birthDate, now time.Time) int {
	years := now.Year() - birthDate.Year()
	anniversary := birthDate.AddDate(years, 0, 0)
	if anniversary.After(now) {
		years--
	}
	if years < 0 {
		return 0
	}
	return years
}

// CheckCourse evaluates a customer against one course's prerequisites.
func (s *PrerequisiteService) CheckCourse(ctx context.Context, customerID, courseID string) (*models.EligibilityResult, error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	profile, err := s.profiles.LoadProfile(ctx, customerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "customer not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load certification profile")
	}
	result := Evaluate(profile, course.Prerequisites, time.Now().UTC())
	return &result, nil
}

// AvailableCourses evaluates a customer against every active course. The
// listing is cached briefly per customer; the evaluation itself has no side
// effects so serving a slightly stale verdict only delays the listing, never
// corrupts it. The second return reports whether the listing came from cache.
func (s *PrerequisiteService) AvailableCourses(ctx context.Context, customerID string) ([]models.CourseEligibility, bool, error) {
	cacheKey := "eligibility:customer:" + customerID
	var cached []models.CourseEligibility
	if s.cache.Enabled() {
		if hit, _ := s.cache.Get(ctx, cacheKey, &cached); hit {
			return cached, true, nil
		}
	}

	profile, err := s.profiles.LoadProfile(ctx, customerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, appErrors.Clone(appErrors.ErrNotFound, "customer not found")
		}
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load certification profile")
	}
	courses, err := s.courses.ListActive(ctx)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}

	now := time.Now().UTC()
	listing := make([]models.CourseEligibility, 0, len(courses))
	for _, course := range courses {
		result := Evaluate(profile, course.Prerequisites, now)
		listing = append(listing, models.CourseEligibility{
			Course:    course,
			CanEnroll: result.MeetsRequirements,
			Result:    result,
		})
	}

	if s.cache.Enabled() {
		if err := s.cache.Set(ctx, cacheKey, listing, s.cacheTTL); err != nil {
			s.logger.Warn("failed to cache eligibility listing", zap.String("customer_id", customerID), zap.Error(err))
		}
	}
	return listing, false, nil
}
