// Package policy evaluates declarative, layered rule sets over scored
// findings into per-finding and aggregate verdicts.
package policy

import (
	"time"

	"depgate/internal/advisory"
	"depgate/internal/score"
)

// Action is what a matched rule decides for a finding.
type Action string

const (
	ActionBlock Action = "block"
	ActionWarn  Action = "warn"
	ActionAllow Action = "allow"
)

// Layer orders policies from broadest to narrowest authority.
type Layer string

const (
	LayerOrganization Layer = "organization"
	LayerTeam         Layer = "team"
	LayerProject      Layer = "project"
)

// PredicateKind enumerates the closed set of supported conditions. The set
// is deliberately closed: every evaluator switch handles all variants, so an
// unsupported condition is a parse error, never a silent no-op.
type PredicateKind string

const (
	KindSeverityThreshold PredicateKind = "severity-threshold"
	KindKEVMembership     PredicateKind = "kev-membership"
	KindLicenseSet        PredicateKind = "license-set"
	KindPriorityThreshold PredicateKind = "priority-threshold"
	KindCustomExpression  PredicateKind = "custom-expression"
)

// Predicate is the tagged-variant condition of a rule. Exactly the fields
// of the active Kind are meaningful.
type Predicate struct {
	Kind     PredicateKind     `yaml:"kind"`
	Severity advisory.Severity `yaml:"severity,omitempty"` // severity-threshold: matches this severity or worse
	Tier     score.Tier        `yaml:"tier,omitempty"`     // priority-threshold: matches this tier or more urgent
	Licenses []string          `yaml:"licenses,omitempty"` // license-set: dependency license is in the set
	Expr     string            `yaml:"expr,omitempty"`     // custom-expression source text

	compiled *Expression
}

// Exception suspends a rule for specific vulnerability identifiers until it
// expires. Approver and justification are mandatory; an exception without
// them does not parse.
type Exception struct {
	IDs           []string  `yaml:"ids" json:"ids"`
	Justification string    `yaml:"justification" json:"justification"`
	Approver      string    `yaml:"approver" json:"approver"`
	Expires       time.Time `yaml:"expires" json:"expires"`
}

// Expired reports whether the exception has lapsed at the given instant.
func (e *Exception) Expired(now time.Time) bool {
	return !now.Before(e.Expires)
}

// Matches reports whether the exception covers any of the finding's
// identifiers. Matching is set intersection across all aliases, never
// exact-string equality against the primary id alone.
func (e *Exception) Matches(findingIDs []string) bool {
	for _, id := range e.IDs {
		for _, fid := range findingIDs {
			if id == fid {
				return true
			}
		}
	}
	return false
}

// Rule is one named, ordered policy entry.
type Rule struct {
	Name      string     `yaml:"name"`
	Action    Action     `yaml:"action"`
	Predicate Predicate  `yaml:"match"`
	Exception *Exception `yaml:"exception,omitempty"`

	layer Layer
}

// Layer reports which policy layer declared the rule.
func (r Rule) Layer() Layer { return r.layer }
