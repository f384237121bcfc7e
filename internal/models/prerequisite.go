package models

import (
	"encoding/json"
	"fmt"
)

// PrerequisiteType identifies the kind of a prerequisite rule.
type PrerequisiteType string

// Supported prerequisite rule kinds.
const (
	PrerequisiteCertification PrerequisiteType = "certification"
	PrerequisiteLoggedDives   PrerequisiteType = "logged_dives"
	PrerequisiteAge           PrerequisiteType = "age"
	PrerequisiteSpecialties   PrerequisiteType = "specialties"
	PrerequisiteMedical       PrerequisiteType = "medical_clearance"
)

// PrerequisiteRule is one condition a customer must satisfy before enrolling.
// Exactly one of the value fields is meaningful for a given Type.
type PrerequisiteRule struct {
	Type           PrerequisiteType `json:"type"`
	Certification  string           `json:"certification,omitempty"`
	MinLevel       *int             `json:"level,omitempty"`
	MinDives       int              `json:"logged_dives,omitempty"`
	MinAge         int              `json:"age,omitempty"`
	MinSpecialties int              `json:"specialties_count,omitempty"`
}

// RuleSet is the ordered conjunction of prerequisite rules attached to a
// course. It decodes the legacy JSON blob stored on the course row, where a
// single object may carry several rule keys at once; each key expands to its
// own rule, in a fixed key order so evaluation output stays deterministic.
type RuleSet []PrerequisiteRule

// UnmarshalJSON decodes the course prerequisites blob into typed rules.
func (rs *RuleSet) UnmarshalJSON(data []byte) error {
	var raw []map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode prerequisites: %w", err)
	}

	var rules []PrerequisiteRule
	for _, entry := range raw {
		if msg, ok := entry["certification"]; ok {
			rule := PrerequisiteRule{Type: PrerequisiteCertification}
			if err := json.Unmarshal(msg, &rule.Certification); err != nil {
				return fmt.Errorf("decode certification rule: %w", err)
			}
			if lvl, ok := entry["level"]; ok {
				var level int
				if err := json.Unmarshal(lvl, &level); err != nil {
					return fmt.Errorf("decode certification level: %w", err)
				}
				rule.MinLevel = &level
			}
			rules = append(rules, rule)
		}
		if msg, ok := entry["logged_dives"]; ok {
			rule := PrerequisiteRule{Type: PrerequisiteLoggedDives}
			if err := json.Unmarshal(msg, &rule.MinDives); err != nil {
				return fmt.Errorf("decode logged_dives rule: %w", err)
			}
			rules = append(rules, rule)
		}
		if msg, ok := entry["age"]; ok {
			rule := PrerequisiteRule{Type: PrerequisiteAge}
			if err := json.Unmarshal(msg, &rule.MinAge); err != nil {
				return fmt.Errorf("decode age rule: %w", err)
			}
			rules = append(rules, rule)
		}
		if msg, ok := entry["specialties_count"]; ok {
			rule := PrerequisiteRule{Type: PrerequisiteSpecialties}
			if err := json.Unmarshal(msg, &rule.MinSpecialties); err != nil {
				return fmt.Errorf("decode specialties_count rule: %w", err)
			}
			rules = append(rules, rule)
		}
		if _, ok := entry["medical_clearance"]; ok {
			rules = append(rules, PrerequisiteRule{Type: PrerequisiteMedical})
		}
	}

	*rs = rules
	return nil
}

// MarshalJSON re-encodes the rule set in the stored blob format.
func (rs RuleSet) MarshalJSON() ([]byte, error) {
	out := make([]map[string]interface{}, 0, len(rs))
	for _, rule := range rs {
		entry := map[string]interface{}{}
		switch rule.Type {
		case PrerequisiteCertification:
			entry["certification"] = rule.Certification
			if rule.MinLevel != nil {
				entry["level"] = *rule.MinLevel
			}
		case PrerequisiteLoggedDives:
			entry["logged_dives"] = rule.MinDives
		case PrerequisiteAge:
			entry["age"] = rule.MinAge
		case PrerequisiteSpecialties:
			entry["specialties_count"] = rule.MinSpecialties
		case PrerequisiteMedical:
			entry["medical_clearance"] = true
		default:
			return nil, fmt.Errorf("unknown prerequisite type %q", rule.Type)
		}
		out = append(out, entry)
	}
	return json.Marshal(out)
}

// RuleStatus marks a single rule as met or missing in an eligibility check.
type RuleStatus string

// Rule evaluation outcomes.
const (
	RuleStatusMet     RuleStatus = "met"
	RuleStatusMissing RuleStatus = "missing"
)

// RuleDetail is the per-rule breakdown of an eligibility evaluation.
type RuleDetail struct {
	Type        PrerequisiteType `json:"type"`
	Requirement string           `json:"requirement,omitempty"`
	Required    string           `json:"required,omitempty"`
	Actual      string           `json:"actual,omitempty"`
	Status      RuleStatus       `json:"status"`
}

// EligibilityResult is the evaluator's verdict for one customer and course.
type EligibilityResult struct {
	MeetsRequirements   bool         `json:"meets_requirements"`
	MissingRequirements []string     `json:"missing_requirements"`
	Details             []RuleDetail `json:"details"`
}
