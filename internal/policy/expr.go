package policy

import (
	"fmt"
	"strconv"
	"strings"
)

// Expression is a compiled custom-expression predicate: one or more
// `field op literal` clauses joined by &&. The field set is fixed, so an
// expression referencing anything else fails at policy load, not at
// evaluation time.
type Expression struct {
	source  string
	clauses []clause
}

type clause struct {
	field string
	op    string
	value string
}

var exprFields = map[string]struct{}{
	"severity": {}, "tier": {}, "cvss": {}, "score": {},
	"kev": {}, "exploit": {}, "scope": {}, "direct": {},
	"namespace": {}, "name": {}, "version": {},
}

var exprOps = []string{"==", "!=", ">=", "<=", ">", "<"}

// CompileExpression parses an expression, rejecting unknown fields and
// operators up front.
func CompileExpression(src string) (*Expression, error) {
	expr := &Expression{source: src}
	for _, part := range strings.Split(src, "&&") {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, fmt.Errorf("expression %q has an empty clause", src)
		}
		cl, err := parseClause(part)
		if err != nil {
			return nil, fmt.Errorf("expression %q: %w", src, err)
		}
		expr.clauses = append(expr.clauses, cl)
	}
	if len(expr.clauses) == 0 {
		return nil, fmt.Errorf("expression %q is empty", src)
	}
	return expr, nil
}

func parseClause(part string) (clause, error) {
	op := ""
	idx := -1
	for _, candidate := range exprOps {
		if i := strings.Index(part, candidate); i >= 0 {
			op = candidate
			idx = i
			break
		}
	}
	if op == "" {
		return clause{}, fmt.Errorf("clause %q has no comparison operator", part)
	}
	field := strings.TrimSpace(part[:idx])
	value := strings.Trim(strings.TrimSpace(part[idx+len(op):]), `"'`)
	if _, ok := exprFields[field]; !ok {
		return clause{}, fmt.Errorf("unknown field %q", field)
	}
	if value == "" {
		return clause{}, fmt.Errorf("clause %q has no literal", part)
	}
	if isOrderedOp(op) && !isOrderedField(field) {
		return clause{}, fmt.Errorf("field %q does not support operator %q", field, op)
	}
	return clause{field: field, op: op, value: value}, nil
}

func isOrderedOp(op string) bool {
	return op == ">" || op == "<" || op == ">=" || op == "<="
}

func isOrderedField(field string) bool {
	switch field {
	case "severity", "tier", "cvss", "score":
		return true
	}
	return false
}

// severityOrder ranks labels for ordered comparison; higher is worse.
var severityOrder = map[string]int{
	"UNKNOWN": 0, "LOW": 1, "MEDIUM": 2, "HIGH": 3, "CRITICAL": 4,
}

// tierOrder ranks tiers; higher is more urgent.
var tierOrder = map[string]int{
	"P4": 0, "P3": 1, "P2": 2, "P1": 3, "P0": 4,
}

// Eval applies the expression to one finding input.
func (e *Expression) Eval(in Input) (bool, error) {
	for _, cl := range e.clauses {
		ok, err := cl.eval(in)
		if err != nil {
			return false, fmt.Errorf("expression %q: %w", e.source, err)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (cl clause) eval(in Input) (bool, error) {
	switch cl.field {
	case "severity":
		want, ok := severityOrder[strings.ToUpper(cl.value)]
		if !ok {
			return false, fmt.Errorf("unknown severity literal %q", cl.value)
		}
		return compareInts(severityOrder[string(in.Finding.Severity)], want, cl.op), nil
	case "tier":
		want, ok := tierOrder[strings.ToUpper(cl.value)]
		if !ok {
			return false, fmt.Errorf("unknown tier literal %q", cl.value)
		}
		return compareInts(tierOrder[string(in.Score.Tier)], want, cl.op), nil
	case "cvss", "score":
		want, err := strconv.ParseFloat(cl.value, 64)
		if err != nil {
			return false, fmt.Errorf("numeric literal expected, got %q", cl.value)
		}
		have := in.Finding.CVSS
		if cl.field == "score" {
			have = in.Score.Value
		}
		return compareFloats(have, want, cl.op), nil
	case "kev", "exploit", "direct":
		want, err := strconv.ParseBool(cl.value)
		if err != nil {
			return false, fmt.Errorf("boolean literal expected, got %q", cl.value)
		}
		have := in.KEVListed
		switch cl.field {
		case "exploit":
			have = in.Finding.Exploit
		case "direct":
			have = in.Finding.Dependency.Direct
		}
		return compareBools(have, want, cl.op), nil
	case "scope":
		return compareStrings(string(in.Finding.Dependency.Scope), cl.value, cl.op), nil
	case "namespace":
		return compareStrings(in.Finding.Dependency.Coordinate.Namespace, cl.value, cl.op), nil
	case "name":
		return compareStrings(in.Finding.Dependency.Coordinate.Name, cl.value, cl.op), nil
	case "version":
		return compareStrings(in.Finding.Dependency.Coordinate.Version, cl.value, cl.op), nil
	}
	return false, fmt.Errorf("unknown field %q", cl.field)
}

func compareInts(have, want int, op string) bool {
	switch op {
	case "==":
		return have == want
	case "!=":
		return have != want
	case ">":
		return have > want
	case "<":
		return have < want
	case ">=":
		return have >= want
	case "<=":
		return have <= want
	}
	return false
}

func compareFloats(have, want float64, op string) bool {
	switch op {
	case "==":
		return have == want
	case "!=":
		return have != want
	case ">":
		return have > want
	case "<":
		return have < want
	case ">=":
		return have >= want
	case "<=":
		return have <= want
	}
	return false
}

func compareBools(have, want bool, op string) bool {
	if op == "!=" {
		return have != want
	}
	return have == want
}

func compareStrings(have, want, op string) bool {
	if op == "!=" {
		return have != want
	}
	return have == want
}
