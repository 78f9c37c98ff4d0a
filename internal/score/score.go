// Package score turns a canonical finding plus contextual signals into one
// comparable risk score and priority tier.
package score

import (
	"fmt"
	"sort"
	"time"

	"depgate/internal/advisory"
	"depgate/internal/model"
	"depgate/internal/normalize"
)

// Tier is the triage bucket derived from a score.
type Tier string

const (
	TierP0 Tier = "P0"
	TierP1 Tier = "P1"
	TierP2 Tier = "P2"
	TierP3 Tier = "P3"
	TierP4 Tier = "P4"
)

// Signals carries the per-finding context the scorer consumes.
type Signals struct {
	KEV          *advisory.KEVEntry
	EPSS         *advisory.EPSSEntry
	Reachability model.Reachability
	Now          time.Time
}

// RiskScore is the scored result for one finding.
type RiskScore struct {
	Value       float64  `json:"value"` // [0,100]
	Tier        Tier     `json:"tier"`
	Explanation []string `json:"explanation"` // one clause per non-zero signal, highest impact first
}

type contribution struct {
	name   string
	value  float64 // weighted contribution in [0,1]
	clause string
}

// Score computes the weighted composite score. Pure function of its inputs:
// no randomness, no clock access beyond sig.Now, no network.
func Score(f normalize.Finding, sig Signals, cfg Config) RiskScore {
	var contribs []contribution

	if f.CVSS > 0 {
		c := clamp01(f.CVSS/10) * cfg.Weights.CVSS
		contribs = append(contribs, contribution{
			name:  "cvss",
			value: c,
			clause: fmt.Sprintf("CVSS %.1f (%s severity)", f.CVSS, f.Severity),
		})
	}

	if sig.EPSS != nil && sig.EPSS.Score > 0 {
		c := clamp01(sig.EPSS.Score) * cfg.Weights.EPSS
		contribs = append(contribs, contribution{
			name:  "epss",
			value: c,
			clause: fmt.Sprintf("EPSS exploitation probability %.2f (percentile %.2f)", sig.EPSS.Score, sig.EPSS.Percentile),
		})
	}

	if sig.KEV != nil {
		clause := "listed in CISA KEV catalogue"
		if sig.KEV.Ransomware() {
			clause += " with known ransomware campaign use"
		}
		contribs = append(contribs, contribution{name: "kev", value: cfg.Weights.KEV, clause: clause})
	}

	if sig.Reachability.CountsAsReachable() {
		clause := "vulnerable code is reachable"
		if sig.Reachability == model.ReachabilityUnknown {
			clause = "reachability unknown, treated as reachable"
		}
		contribs = append(contribs, contribution{name: "reachability", value: cfg.Weights.Reachability, clause: clause})
	}

	if age, ok := ageFactor(f.Published, sig.Now, cfg.AgeWindowDays); ok && age > 0 {
		contribs = append(contribs, contribution{
			name:  "age",
			value: age * cfg.Weights.Age,
			clause: fmt.Sprintf("disclosed %s, inside the %d-day urgency window", f.Published.Format("2006-01-02"), cfg.AgeWindowDays),
		})
	}

	if f.Exploit {
		contribs = append(contribs, contribution{
			name:   "exploit",
			value:  cfg.Weights.Exploit,
			clause: "public exploit available",
		})
	}

	sum := 0.0
	for _, c := range contribs {
		sum += c.value
	}
	value := clamp01(sum) * 100

	// Highest contribution first; name breaks ties so the order is stable.
	sort.Slice(contribs, func(i, j int) bool {
		if contribs[i].value != contribs[j].value {
			return contribs[i].value > contribs[j].value
		}
		return contribs[i].name < contribs[j].name
	})
	explanation := make([]string, 0, len(contribs)+len(f.Notes))
	for _, c := range contribs {
		explanation = append(explanation, c.clause)
	}
	// Data-integrity notes ride along at the end of the explanation.
	explanation = append(explanation, f.Notes...)

	return RiskScore{
		Value:       value,
		Tier:        cfg.tier(value),
		Explanation: explanation,
	}
}

func (c Config) tier(value float64) Tier {
	th := c.Thresholds
	switch {
	case value >= th.P0:
		return TierP0
	case value >= th.P1:
		return TierP1
	case value >= th.P2:
		return TierP2
	case value >= th.P3:
		return TierP3
	default:
		return TierP4
	}
}

// ageFactor is the linear decay of disclosure recency: 1.0 at disclosure,
// 0 once the window has fully elapsed. Unknown disclosure dates contribute
// nothing.
func ageFactor(published, now time.Time, windowDays int) (float64, bool) {
	if published.IsZero() || now.IsZero() || now.Before(published) {
		return 0, false
	}
	age := now.Sub(published).Hours() / 24
	window := float64(windowDays)
	if age >= window {
		return 0, true
	}
	return 1 - age/window, true
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
