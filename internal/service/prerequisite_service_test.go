package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nautilusdive/ops-api/internal/models"
)

var evalNow = time.Date(2024, time.June, 15, 12, 0, 0, 0, time.UTC)

func profileWithCerts(certs ...models.CustomerCertification) *models.CertificationProfile {
	return &models.CertificationProfile{
		CustomerID:     "cust-1",
		Certifications: certs,
	}
}

func cert(name, code string, level int) models.CustomerCertification {
	return models.CustomerCertification{
		Name:               name,
		Code:               code,
		Level:              level,
		VerificationStatus: models.CertificationVerified,
	}
}

func intPtr(v int) *int { return &v }

func timePtr(t time.Time) *time.Time { return &t }

func TestEvaluateEmptyRuleSet(t *testing.T) {
	result := Evaluate(profileWithCerts(), models.RuleSet{}, evalNow)

	assert.True(t, result.MeetsRequirements)
	assert.Empty(t, result.MissingRequirements)
	assert.Empty(t, result.Details)
}

func TestEvaluateCertificationRule(t *testing.T) {
	rules := models.RuleSet{
		{Type: models.PrerequisiteCertification, Certification: "Open Water", MinLevel: intPtr(1)},
	}

	t.Run("matches name case-insensitively", func(t *testing.T) {
		profile := profileWithCerts(cert("PADI OPEN WATER DIVER", "OWD", 1))
		result := Evaluate(profile, rules, evalNow)
		assert.True(t, result.MeetsRequirements)
	})

	t.Run("matches code", func(t *testing.T) {
		profile := profileWithCerts(cert("Autonomous Diver", "open water equivalent", 2))
		result := Evaluate(profile, rules, evalNow)
		assert.True(t, result.MeetsRequirements)
	})

	t.Run("level below minimum does not count", func(t *testing.T) {
		profile := profileWithCerts(cert("Open Water Diver", "OWD", 0))
		highLevel := models.RuleSet{
			{Type: models.PrerequisiteCertification, Certification: "Open Water", MinLevel: intPtr(2)},
		}
		result := Evaluate(profile, highLevel, evalNow)
		assert.False(t, result.MeetsRequirements)
		require.Len(t, result.MissingRequirements, 1)
		assert.Equal(t, "Open Water", result.MissingRequirements[0])
	})

	t.Run("missing certification reported by name", func(t *testing.T) {
		profile := profileWithCerts(cert("Nitrox Specialist", "EAN", 2))
		result := Evaluate(profile, rules, evalNow)
		assert.False(t, result.MeetsRequirements)
		require.Len(t, result.Details, 1)
		assert.Equal(t, models.RuleStatusMissing, result.Details[0].Status)
		assert.Equal(t, "Open Water", result.Details[0].Requirement)
	})

	t.Run("no minimum level accepts any level", func(t *testing.T) {
		profile := profileWithCerts(cert("Open Water Diver", "OWD", 1))
		noLevel := models.RuleSet{
			{Type: models.PrerequisiteCertification, Certification: "open water"},
		}
		result := Evaluate(profile, noLevel, evalNow)
		assert.True(t, result.MeetsRequirements)
	})
}

func TestEvaluateLoggedDivesRule(t *testing.T) {
	rules := models.RuleSet{{Type: models.PrerequisiteLoggedDives, MinDives: 20}}

	profile := profileWithCerts()
	profile.LoggedDives = 12
	result := Evaluate(profile, rules, evalNow)
	assert.False(t, result.MeetsRequirements)
	require.Len(t, result.MissingRequirements, 1)
	assert.Equal(t, "20 logged dives (has 12)", result.MissingRequirements[0])

	profile.LoggedDives = 20
	result = Evaluate(profile, rules, evalNow)
	assert.True(t, result.MeetsRequirements)
}

func TestEvaluateAgeRule(t *testing.T) {
	rules := models.RuleSet{{Type: models.PrerequisiteAge, MinAge: 18}}

	t.Run("unknown birth date requires verification", func(t *testing.T) {
		result := Evaluate(profileWithCerts(), rules, evalNow)
		assert.False(t, result.MeetsRequirements)
		require.Len(t, result.MissingRequirements, 1)
		assert.Equal(t, "Age verification required (must be 18+)", result.MissingRequirements[0])
		assert.Equal(t, "unknown", result.Details[0].Actual)
	})

	t.Run("under age", func(t *testing.T) {
		profile := profileWithCerts()
		profile.BirthDate = timePtr(time.Date(2008, time.January, 10, 0, 0, 0, 0, time.UTC))
		result := Evaluate(profile, rules, evalNow)
		assert.False(t, result.MeetsRequirements)
		require.Len(t, result.MissingRequirements, 1)
		assert.Equal(t, "Must be at least 18 years old (current age: 16)", result.MissingRequirements[0])
	})

	t.Run("birthday today counts", func(t *testing.T) {
		profile := profileWithCerts()
		profile.BirthDate = timePtr(time.Date(2006, time.June, 15, 0, 0, 0, 0, time.UTC))
		result := Evaluate(profile, rules, evalNow)
		assert.True(t, result.MeetsRequirements)
	})

	t.Run("birthday tomorrow does not", func(t *testing.T) {
		profile := profileWithCerts()
		profile.BirthDate = timePtr(time.Date(2006, time.June, 16, 0, 0, 0, 0, time.UTC))
		result := Evaluate(profile, rules, evalNow)
		assert.False(t, result.MeetsRequirements)
		assert.Equal(t, "Must be at least 18 years old (current age: 17)", result.MissingRequirements[0])
	})
}

func TestEvaluateSpecialtiesRule(t *testing.T) {
	rules := models.RuleSet{{Type: models.PrerequisiteSpecialties, MinSpecialties: 2}}

	t.Run("counts mid-level certs outside the core track", func(t *testing.T) {
		profile := profileWithCerts(
			cert("Deep Diver", "DEEP", 3),
			cert("Wreck Diver", "WRECK", 3),
		)
		result := Evaluate(profile, rules, evalNow)
		assert.True(t, result.MeetsRequirements)
	})

	t.Run("core track names excluded", func(t *testing.T) {
		profile := profileWithCerts(
			cert("Advanced Open Water Diver", "AOW", 3),
			cert("Rescue Diver", "RES", 4),
			cert("Master Scuba Diver", "MSD", 5),
			cert("Night Diver", "NIGHT", 3),
		)
		result := Evaluate(profile, rules, evalNow)
		assert.False(t, result.MeetsRequirements)
		assert.Equal(t, "2 specialty certifications (has 1)", result.MissingRequirements[0])
	})

	t.Run("exclusion is case-sensitive", func(t *testing.T) {
		profile := profileWithCerts(
			cert("advanced nitrox", "ANX", 3),
			cert("Cavern Diver", "CAV", 4),
		)
		result := Evaluate(profile, rules, evalNow)
		assert.True(t, result.MeetsRequirements)
	})

	t.Run("level outside 3-5 excluded", func(t *testing.T) {
		profile := profileWithCerts(
			cert("Nitrox Specialist", "EAN", 2),
			cert("Instructor Trainer", "IT", 6),
		)
		result := Evaluate(profile, rules, evalNow)
		assert.False(t, result.MeetsRequirements)
		assert.Equal(t, "2 specialty certifications (has 0)", result.MissingRequirements[0])
	})
}

func TestEvaluateMedicalRule(t *testing.T) {
	rules := models.RuleSet{{Type: models.PrerequisiteMedical}}

	cases := []struct {
		name     string
		medical  *models.MedicalInfo
		eligible bool
	}{
		{"no medical record", nil, false},
		{"not fit to dive", &models.MedicalInfo{FitnessToDive: false, ClearanceDate: timePtr(evalNow.AddDate(0, -1, 0))}, false},
		{"fit but no clearance date", &models.MedicalInfo{FitnessToDive: true}, false},
		{"clearance exactly 12 months old", &models.MedicalInfo{FitnessToDive: true, ClearanceDate: timePtr(evalNow.AddDate(-1, 0, 0))}, true},
		{"clearance 13 months old", &models.MedicalInfo{FitnessToDive: true, ClearanceDate: timePtr(evalNow.AddDate(0, -13, 0))}, false},
		{"recent clearance", &models.MedicalInfo{FitnessToDive: true, ClearanceDate: timePtr(evalNow.AddDate(0, -2, 0))}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			profile := profileWithCerts()
			profile.Medical = tc.medical
			result := Evaluate(profile, rules, evalNow)
			assert.Equal(t, tc.eligible, result.MeetsRequirements)
			if !tc.eligible {
				require.Len(t, result.MissingRequirements, 1)
				assert.Equal(t, "Current medical clearance required", result.MissingRequirements[0])
			}
		})
	}
}

func TestEvaluateReportsEveryRule(t *testing.T) {
	rules := models.RuleSet{
		{Type: models.PrerequisiteCertification, Certification: "Rescue Diver", MinLevel: intPtr(4)},
		{Type: models.PrerequisiteLoggedDives, MinDives: 50},
		{Type: models.PrerequisiteAge, MinAge: 18},
		{Type: models.PrerequisiteSpecialties, MinSpecialties: 5},
		{Type: models.PrerequisiteMedical},
	}

	profile := profileWithCerts(cert("Open Water Diver", "OWD", 1))
	profile.LoggedDives = 3
	result := Evaluate(profile, rules, evalNow)

	assert.False(t, result.MeetsRequirements)
	// Every rule contributes a detail even after the first failure.
	require.Len(t, result.Details, len(rules))
	assert.Len(t, result.MissingRequirements, 5)
	for _, detail := range result.Details {
		assert.Equal(t, models.RuleStatusMissing, detail.Status)
	}
}

func TestEvaluateAdvancedCertSatisfiesBaseRequirement(t *testing.T) {
	rules := models.RuleSet{
		{Type: models.PrerequisiteCertification, Certification: "Open Water", MinLevel: intPtr(2)},
		{Type: models.PrerequisiteAge, MinAge: 12},
	}
	profile := profileWithCerts(cert("Advanced Open Water Diver", "AOW", 3))
	profile.BirthDate = timePtr(evalNow.AddDate(-14, 0, 0))

	result := Evaluate(profile, rules, evalNow)

	assert.True(t, result.MeetsRequirements)
	require.Len(t, result.Details, 2)
	assert.Equal(t, models.RuleStatusMet, result.Details[0].Status)
	assert.Equal(t, models.RuleStatusMet, result.Details[1].Status)
}

func TestEvaluateDeterministic(t *testing.T) {
	rules := models.RuleSet{
		{Type: models.PrerequisiteLoggedDives, MinDives: 10},
		{Type: models.PrerequisiteAge, MinAge: 15},
	}
	profile := profileWithCerts()
	profile.LoggedDives = 4

	first := Evaluate(profile, rules, evalNow)
	second := Evaluate(profile, rules, evalNow)
	assert.Equal(t, first, second)
}

func TestMonthsBetween(t *testing.T) {
	base := time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, 0, monthsBetween(base, base))
	assert.Equal(t, 0, monthsBetween(base, base.AddDate(0, 0, 20)))
	assert.Equal(t, 1, monthsBetween(base, time.Date(2024, time.April, 15, 0, 0, 0, 0, time.UTC)))
	// Day of month not yet reached rounds down.
	assert.Equal(t, 0, monthsBetween(base, time.Date(2024, time.April, 14, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 12, monthsBetween(base, base.AddDate(1, 0, 0)))
	// Order of arguments does not matter.
	assert.Equal(t, 12, monthsBetween(base.AddDate(1, 0, 0), base))
}

type mockProfileLoader struct {
	profile   *models.CertificationProfile
	loadCalls int
}

func (m *mockProfileLoader) LoadProfile(_ context.Context, _ string) (*models.CertificationProfile, error) {
	m.loadCalls++
	return m.profile, nil
}

func TestAvailableCoursesReportsCacheHit(t *testing.T) {
	profiles := &mockProfileLoader{profile: profileWithCerts(cert("Open Water Diver", "OW", 1))}
	catalog := &mockCourseCatalog{courses: []models.Course{
		{ID: "course-ow", Code: "OW", Name: "Open Water Diver", Active: true},
		{ID: "course-rd", Code: "RD", Name: "Rescue Diver", Active: true, Prerequisites: models.RuleSet{
			{Type: models.PrerequisiteLoggedDives, MinDives: 40},
		}},
	}}
	cache := NewCacheService(newMemoryCacheRepo(), nil, time.Minute, zap.NewNop(), true)
	svc := NewPrerequisiteService(profiles, catalog, cache, time.Minute, zap.NewNop())

	listing, cacheHit, err := svc.AvailableCourses(context.Background(), "cust-1")
	require.NoError(t, err)
	assert.False(t, cacheHit)
	require.Len(t, listing, 2)
	assert.True(t, listing[0].CanEnroll)
	assert.False(t, listing[1].CanEnroll)
	assert.Equal(t, 1, profiles.loadCalls)

	listing, cacheHit, err = svc.AvailableCourses(context.Background(), "cust-1")
	require.NoError(t, err)
	assert.True(t, cacheHit)
	require.Len(t, listing, 2)
	assert.Equal(t, "Rescue Diver", listing[1].Course.Name)
	assert.Equal(t, 1, profiles.loadCalls, "cached call must not reload the profile")
}
