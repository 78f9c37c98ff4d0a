package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"depgate/internal/advisory"
	"depgate/internal/score"
)

// Document is one policy file: a named layer and its ordered rules.
type Document struct {
	Version int    `yaml:"version"`
	Layer   Layer  `yaml:"layer"`
	Name    string `yaml:"name,omitempty"`
	Rules   []Rule `yaml:"rules"`
}

// Set is the merged, validated rule list the evaluator runs. Layers are
// concatenated organization → team → project; within a layer, declaration
// order is preserved.
type Set struct {
	rules   []Rule
	version string
}

// Rules exposes the merged rule order.
func (s *Set) Rules() []Rule { return s.rules }

// Version identifies the policy content for cache keying.
func (s *Set) Version() string { return s.version }

// Parse decodes and validates a single policy document. Any invalid rule
// fails the whole parse; there is no fallback to a default policy.
func Parse(doc []byte) (*Document, error) {
	var d Document
	if err := yaml.Unmarshal(doc, &d); err != nil {
		return nil, fmt.Errorf("failed to decode policy document: %w", err)
	}
	if err := d.validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

func (d *Document) validate() error {
	switch d.Layer {
	case LayerOrganization, LayerTeam, LayerProject:
	case "":
		return fmt.Errorf("policy document has no layer")
	default:
		return fmt.Errorf("unknown policy layer %q", d.Layer)
	}
	if len(d.Rules) == 0 {
		return fmt.Errorf("policy layer %s declares no rules", d.Layer)
	}

	seen := make(map[string]struct{}, len(d.Rules))
	for i := range d.Rules {
		r := &d.Rules[i]
		if r.Name == "" {
			return fmt.Errorf("rule %d in layer %s has no name", i, d.Layer)
		}
		if _, dup := seen[r.Name]; dup {
			return fmt.Errorf("duplicate rule name %q in layer %s", r.Name, d.Layer)
		}
		seen[r.Name] = struct{}{}

		switch r.Action {
		case ActionBlock, ActionWarn, ActionAllow:
		default:
			return fmt.Errorf("rule %q has invalid action %q", r.Name, r.Action)
		}
		if err := r.Predicate.compile(); err != nil {
			return fmt.Errorf("rule %q: %w", r.Name, err)
		}
		if err := validateException(r); err != nil {
			return err
		}
		r.layer = d.Layer
	}
	return nil
}

func validateException(r *Rule) error {
	e := r.Exception
	if e == nil {
		return nil
	}
	if len(e.IDs) == 0 {
		return fmt.Errorf("rule %q exception names no identifiers", r.Name)
	}
	if strings.TrimSpace(e.Justification) == "" {
		return fmt.Errorf("rule %q exception has no justification", r.Name)
	}
	if strings.TrimSpace(e.Approver) == "" {
		return fmt.Errorf("rule %q exception has no approver", r.Name)
	}
	if e.Expires.IsZero() {
		return fmt.Errorf("rule %q exception has no expiry", r.Name)
	}
	return nil
}

// compile checks the variant's fields and precompiles custom expressions.
func (p *Predicate) compile() error {
	switch p.Kind {
	case KindSeverityThreshold:
		switch strings.ToUpper(string(p.Severity)) {
		case "CRITICAL", "HIGH", "MEDIUM", "LOW":
			p.Severity = advisory.Severity(strings.ToUpper(string(p.Severity)))
		default:
			return fmt.Errorf("severity-threshold needs severity critical|high|medium|low, got %q", p.Severity)
		}
	case KindKEVMembership:
		// no parameters
	case KindLicenseSet:
		if len(p.Licenses) == 0 {
			return fmt.Errorf("license-set needs at least one license")
		}
	case KindPriorityThreshold:
		switch strings.ToUpper(string(p.Tier)) {
		case "P0", "P1", "P2", "P3", "P4":
			p.Tier = score.Tier(strings.ToUpper(string(p.Tier)))
		default:
			return fmt.Errorf("priority-threshold needs tier P0..P4, got %q", p.Tier)
		}
	case KindCustomExpression:
		expr, err := CompileExpression(p.Expr)
		if err != nil {
			return err
		}
		p.compiled = expr
	case "":
		return fmt.Errorf("predicate has no kind")
	default:
		return fmt.Errorf("unknown predicate kind %q", p.Kind)
	}
	return nil
}

// Merge concatenates validated documents into an evaluation set. Layer order
// is fixed (organization, team, project) regardless of argument order. A
// non-organization layer may only add stricter rules: its allow verdicts can
// come only from approved exceptions, so plain allow rules outside the
// organization layer are rejected.
func Merge(docs ...*Document) (*Set, error) {
	var byLayer [3][]Rule
	for _, d := range docs {
		var slot int
		switch d.Layer {
		case LayerOrganization:
			slot = 0
		case LayerTeam:
			slot = 1
		case LayerProject:
			slot = 2
		}
		for _, r := range d.Rules {
			if r.Action == ActionAllow && d.Layer != LayerOrganization {
				return nil, fmt.Errorf(
					"rule %q: layer %s may not declare allow rules; use an approved exception", r.Name, d.Layer)
			}
			byLayer[slot] = append(byLayer[slot], r)
		}
	}

	s := &Set{}
	for _, rules := range byLayer {
		s.rules = append(s.rules, rules...)
	}
	if len(s.rules) == 0 {
		return nil, fmt.Errorf("merged policy has no rules")
	}

	h := sha256.New()
	for _, r := range s.rules {
		p := r.Predicate
		fmt.Fprintf(h, "%s|%s|%s|%s|%s|%s|%v|%s|%s\n",
			r.layer, r.Name, r.Action, p.Kind, p.Severity, p.Tier, p.Licenses, p.Expr, exceptionKey(r.Exception))
	}
	s.version = hex.EncodeToString(h.Sum(nil))
	return s, nil
}

func exceptionKey(e *Exception) string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%v|%s|%s", e.IDs, e.Approver, e.Expires.UTC().Format("2006-01-02T15:04:05Z"))
}

// LoadFiles parses and merges policy files. Paths are ordered by the caller
// but layer precedence is enforced by Merge.
func LoadFiles(paths ...string) (*Set, error) {
	var docs []*Document
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read policy %s: %w", path, err)
		}
		d, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("policy %s: %w", path, err)
		}
		docs = append(docs, d)
	}
	return Merge(docs...)
}
