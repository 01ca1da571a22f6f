// Package rules implements the stateless policy checks applied to every
// plan before it is registered: forbidden-keyword scanning, action-type
// whitelisting, structural limits, and risk classification.
package rules

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/wibisana/lakon/pkg/plan"
)

// RiskClass is the discretized risk bucket derived from a plan's score.
type RiskClass string

const (
	RiskLow    RiskClass = "low"
	RiskMedium RiskClass = "medium"
	RiskHigh   RiskClass = "high"
)

// Escalated returns the next bucket up. Used when the anomaly level is
// high and classification must be biased upward.
func (c RiskClass) Escalated() RiskClass {
	switch c {
	case RiskLow:
		return RiskMedium
	default:
		return RiskHigh
	}
}

// Risk thresholds on the 0-100 score.
const (
	highRiskThreshold   = 80.0
	mediumRiskThreshold = 60.0
)

// ValidationResult reports the outcome of validating a plan. Violations
// are ordered; errors are reported here, never raised.
type ValidationResult struct {
	Approved     bool      `json:"approved"`
	Violations   []string  `json:"violations,omitempty"`
	RiskClass    RiskClass `json:"risk_class"`
	AutoOptimize bool      `json:"auto_optimize"`
}

// Config holds validator policy.
type Config struct {
	ForbiddenKeywords []string
	BlockedPatterns   []string
	AllowedTypes      []plan.ActionType
}

// DefaultConfig returns the built-in policy.
func DefaultConfig() Config {
	return Config{
		ForbiddenKeywords: []string{
			"rm -rf",
			"format c:",
			"drop table",
			"drop database",
			"mkfs",
			"dd if=",
			"shutdown -h",
			"delete all data",
			"wipe disk",
		},
		AllowedTypes: plan.DefaultActionTypes(),
	}
}

// Validator applies the configured policy. It is stateless and safe for
// concurrent use.
type Validator struct {
	keywords []string
	patterns []*regexp.Regexp
	allowed  map[plan.ActionType]struct{}
}

// New creates a validator from the given policy.
func New(cfg Config) (*Validator, error) {
	patterns := make([]*regexp.Regexp, 0, len(cfg.BlockedPatterns))
	for _, p := range cfg.BlockedPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %s: %w", p, err)
		}
		patterns = append(patterns, re)
	}

	allowed := make(map[plan.ActionType]struct{}, len(cfg.AllowedTypes))
	for _, t := range cfg.AllowedTypes {
		allowed[t] = struct{}{}
	}

	keywords := make([]string, len(cfg.ForbiddenKeywords))
	for i, kw := range cfg.ForbiddenKeywords {
		keywords[i] = strings.ToLower(kw)
	}

	return &Validator{
		keywords: keywords,
		patterns: patterns,
		allowed:  allowed,
	}, nil
}

// Validate runs the policy checks in order, short-circuiting on the first
// hard violation. When no hard violation is found, the risk class is
// derived from the plan's score.
func (v *Validator) Validate(p *plan.HighLevelPlan) ValidationResult {
	if violations := v.scanDescriptions(p); len(violations) > 0 {
		return ValidationResult{Violations: violations, RiskClass: RiskHigh}
	}
	if violations := v.checkActionTypes(p); len(violations) > 0 {
		return ValidationResult{Violations: violations, RiskClass: RiskHigh}
	}
	if err := p.CheckLimits(); err != nil {
		return ValidationResult{Violations: []string{err.Error()}, RiskClass: RiskHigh}
	}

	res := ValidationResult{Approved: true, RiskClass: Classify(p.RiskScore)}
	if res.RiskClass == RiskMedium {
		res.AutoOptimize = true
	}
	return res
}

// Classify buckets a 0-100 risk score.
func Classify(score float64) RiskClass {
	switch {
	case score > highRiskThreshold:
		return RiskHigh
	case score > mediumRiskThreshold:
		return RiskMedium
	default:
		return RiskLow
	}
}

// scanDescriptions checks every description field, case-insensitively,
// against the forbidden keywords and blocked patterns.
func (v *Validator) scanDescriptions(p *plan.HighLevelPlan) []string {
	var violations []string
	for _, d := range p.Descriptions() {
		normalized := strings.ToLower(d)
		for _, kw := range v.keywords {
			if strings.Contains(normalized, kw) {
				violations = append(violations, fmt.Sprintf("forbidden keyword %q in description", kw))
			}
		}
		for i, re := range v.patterns {
			if re.MatchString(d) {
				violations = append(violations, fmt.Sprintf("description matches blocked pattern #%d", i+1))
			}
		}
	}
	return violations
}

// checkActionTypes verifies every action's type is whitelisted.
func (v *Validator) checkActionTypes(p *plan.HighLevelPlan) []string {
	var violations []string
	for i := range p.Steps {
		for _, a := range p.Steps[i].Actions {
			if _, ok := v.allowed[a.Type]; !ok {
				violations = append(violations, fmt.Sprintf("action %s has disallowed type %q", a.ID, a.Type))
			}
		}
	}
	return violations
}
