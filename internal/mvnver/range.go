package mvnver

import (
	"fmt"
	"strings"
)

// Range is one affected-version interval of an advisory. Bounds follow the
// OSV event model: Introduced is inclusive unless IntroducedExclusive is set,
// Fixed exclusive, LastAffected inclusive. Empty bounds are open.
type Range struct {
	Introduced          string `json:"introduced,omitempty"`
	IntroducedExclusive bool   `json:"introduced_exclusive,omitempty"`
	Fixed               string `json:"fixed,omitempty"`
	LastAffected        string `json:"last_affected,omitempty"`
}

// Contains reports whether version falls inside the range.
func (r Range) Contains(version string) bool {
	v := Parse(version)
	if r.Introduced != "" {
		cmp := v.Compare(Parse(r.Introduced))
		if cmp < 0 || (cmp == 0 && r.IntroducedExclusive) {
			return false
		}
	}
	if r.Fixed != "" && v.Compare(Parse(r.Fixed)) >= 0 {
		return false
	}
	if r.LastAffected != "" && v.Compare(Parse(r.LastAffected)) > 0 {
		return false
	}
	return true
}

func (r Range) String() string {
	lo := "0"
	open := "["
	if r.Introduced != "" {
		lo = r.Introduced
		if r.IntroducedExclusive {
			open = "("
		}
	}
	switch {
	case r.Fixed != "":
		return fmt.Sprintf("%s%s, %s)", open, lo, r.Fixed)
	case r.LastAffected != "":
		return fmt.Sprintf("%s%s, %s]", open, lo, r.LastAffected)
	default:
		return fmt.Sprintf("%s%s, *)", open, lo)
	}
}

// AnyContains reports whether version falls inside any of the ranges. An
// empty range list matches nothing.
func AnyContains(ranges []Range, version string) bool {
	for _, r := range ranges {
		if r.Contains(version) {
			return true
		}
	}
	return false
}

// ParseConstraint parses a GHSA-style constraint expression such as
// ">= 2.0.0, < 2.15.0" or "<= 2.14.1" into a Range.
func ParseConstraint(expr string) (Range, error) {
	var r Range
	parts := strings.Split(expr, ",")
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		op := ""
		for _, candidate := range []string{">=", "<=", "<", ">", "="} {
			if strings.HasPrefix(part, candidate) {
				op = candidate
				break
			}
		}
		version := strings.TrimSpace(strings.TrimPrefix(part, op))
		if version == "" {
			return Range{}, fmt.Errorf("constraint %q has no version", expr)
		}
		switch op {
		case ">=":
			r.Introduced = version
		case ">":
			r.Introduced = version
			r.IntroducedExclusive = true
		case "<":
			r.Fixed = version
		case "<=":
			r.LastAffected = version
		case "=", "":
			r.Introduced = version
			r.LastAffected = version
		default:
			return Range{}, fmt.Errorf("unsupported operator in constraint %q", expr)
		}
	}
	return r, nil
}
