package policy

import (
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"depgate/internal/advisory"
	"depgate/internal/normalize"
	"depgate/internal/score"
)

// Input is one scored finding plus the metadata predicates can reference.
type Input struct {
	Finding   normalize.Finding
	Score     score.RiskScore
	KEVListed bool
	License   string
}

// FindingVerdict is the per-finding outcome.
type FindingVerdict struct {
	FindingID  string     `json:"finding_id"`
	Dependency string     `json:"dependency"`
	Action     Action     `json:"action"`
	RuleName   string     `json:"rule,omitempty"` // empty when no rule matched
	RuleLayer  Layer      `json:"layer,omitempty"`
	Exception  *Exception `json:"exception,omitempty"` // set when an exception downgraded the action
}

// Verdict is the evaluation result for one scan.
type Verdict struct {
	Findings []FindingVerdict `json:"findings"`
	Pass     bool             `json:"pass"` // true iff no finding blocks
}

// Blocked counts findings with a block action.
func (v Verdict) Blocked() int { return v.count(ActionBlock) }

// Warned counts findings with a warn action.
func (v Verdict) Warned() int { return v.count(ActionWarn) }

func (v Verdict) count(a Action) int {
	n := 0
	for _, f := range v.Findings {
		if f.Action == a {
			n++
		}
	}
	return n
}

// Evaluate runs the merged rule set over all findings. Findings are
// independent and evaluated in parallel; within one finding, rules run
// strictly in declaration order and the first match wins. A finding no rule
// matches is allowed.
func Evaluate(inputs []Input, set *Set, now time.Time) (*Verdict, error) {
	verdicts := make([]FindingVerdict, len(inputs))
	errs := make([]error, len(inputs))

	var wg sync.WaitGroup
	sem := make(chan struct{}, runtime.NumCPU())
	for i := range inputs {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			verdicts[i], errs[i] = evaluateOne(inputs[i], set, now)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	pass := true
	for _, fv := range verdicts {
		if fv.Action == ActionBlock {
			pass = false
		}
	}
	return &Verdict{Findings: verdicts, Pass: pass}, nil
}

func evaluateOne(in Input, set *Set, now time.Time) (FindingVerdict, error) {
	fv := FindingVerdict{
		FindingID:  in.Finding.ID,
		Dependency: in.Finding.Dependency.Coordinate.String(),
		Action:     ActionAllow,
	}
	for _, rule := range set.Rules() {
		matched, err := rule.Predicate.matches(in)
		if err != nil {
			return FindingVerdict{}, fmt.Errorf("rule %q: %w", rule.Name, err)
		}
		if !matched {
			continue
		}

		fv.RuleName = rule.Name
		fv.RuleLayer = rule.layer
		fv.Action = rule.Action

		// An unexpired exception covering any of the finding's identifiers
		// downgrades the matched rule to allow. An expired exception behaves
		// exactly as if it were not there.
		if e := rule.Exception; e != nil && !e.Expired(now) && e.Matches(in.Finding.IDs) {
			fv.Action = ActionAllow
			fv.Exception = e
		}
		return fv, nil
	}
	return fv, nil
}

func (p *Predicate) matches(in Input) (bool, error) {
	switch p.Kind {
	case KindSeverityThreshold:
		if in.Finding.Severity == advisory.SeverityUnknown {
			return false, nil
		}
		// Matches the threshold severity or anything worse.
		return !p.Severity.Worse(in.Finding.Severity), nil
	case KindKEVMembership:
		return in.KEVListed, nil
	case KindLicenseSet:
		for _, lic := range p.Licenses {
			if strings.EqualFold(lic, in.License) {
				return true, nil
			}
		}
		return false, nil
	case KindPriorityThreshold:
		return tierOrder[string(in.Score.Tier)] >= tierOrder[string(p.Tier)], nil
	case KindCustomExpression:
		if p.compiled == nil {
			compiled, err := CompileExpression(p.Expr)
			if err != nil {
				return false, err
			}
			p.compiled = compiled
		}
		return p.compiled.Eval(in)
	}
	return false, fmt.Errorf("unknown predicate kind %q", p.Kind)
}
