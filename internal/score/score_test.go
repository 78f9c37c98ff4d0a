package score

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"depgate/internal/advisory"
	"depgate/internal/model"
	"depgate/internal/normalize"
)

var now = time.Date(2022, 1, 15, 0, 0, 0, 0, time.UTC)

func log4shellFinding() normalize.Finding {
	return normalize.Finding{
		ID:        "CVE-2021-44228",
		IDs:       []string{"CVE-2021-44228", "GHSA-jfh8-c2jp-5v3q"},
		Severity:  advisory.SeverityCritical,
		CVSS:      10.0,
		Published: time.Date(2021, 12, 10, 0, 0, 0, 0, time.UTC),
		Exploit:   true,
	}
}

func fullSignals() Signals {
	return Signals{
		KEV:          &advisory.KEVEntry{CVEID: "CVE-2021-44228", RansomwareUse: "Known"},
		EPSS:         &advisory.EPSSEntry{CVE: "CVE-2021-44228", Score: 0.97, Percentile: 0.99},
		Reachability: model.ReachabilityReachable,
		Now:          now,
	}
}

func TestScoreLog4ShellIsP0(t *testing.T) {
	rs := Score(log4shellFinding(), fullSignals(), DefaultConfig())

	assert.GreaterOrEqual(t, rs.Value, 85.0)
	assert.LessOrEqual(t, rs.Value, 100.0)
	assert.Equal(t, TierP0, rs.Tier)

	require.NotEmpty(t, rs.Explanation)
	// CVSS carries the largest weight at full magnitude, so it leads.
	assert.Contains(t, rs.Explanation[0], "CVSS 10.0")
	assert.Contains(t, rs.Explanation[1], "listed in CISA KEV")
	assert.Contains(t, rs.Explanation[1], "ransomware")
}

func TestScoreMonotoneInEPSS(t *testing.T) {
	f := log4shellFinding()
	cfg := DefaultConfig()

	low := fullSignals()
	low.EPSS = &advisory.EPSSEntry{Score: 0.10}
	high := fullSignals()
	high.EPSS = &advisory.EPSSEntry{Score: 0.95}

	assert.LessOrEqual(t, Score(f, low, cfg).Value, Score(f, high, cfg).Value)
}

func TestScoreMonotoneInKEV(t *testing.T) {
	f := log4shellFinding()
	cfg := DefaultConfig()

	without := fullSignals()
	without.KEV = nil

	assert.LessOrEqual(t, Score(f, without, cfg).Value, Score(f, fullSignals(), cfg).Value)
}

func TestScoreUnreachableDropsReachabilityWeight(t *testing.T) {
	f := log4shellFinding()
	cfg := DefaultConfig()

	reachable := fullSignals()
	unreachable := fullSignals()
	unreachable.Reachability = model.ReachabilityUnreachable

	diff := Score(f, reachable, cfg).Value - Score(f, unreachable, cfg).Value
	assert.InDelta(t, cfg.Weights.Reachability*100, diff, 1e-9)
}

func TestScoreUnknownReachabilityTreatedAsReachable(t *testing.T) {
	f := log4shellFinding()
	cfg := DefaultConfig()

	unknown := fullSignals()
	unknown.Reachability = model.ReachabilityUnknown

	assert.Equal(t, Score(f, fullSignals(), cfg).Value, Score(f, unknown, cfg).Value)

	rs := Score(f, unknown, cfg)
	joined := ""
	for _, clause := range rs.Explanation {
		joined += clause + "\n"
	}
	assert.Contains(t, joined, "reachability unknown")
}

func TestScoreAgeDecay(t *testing.T) {
	cfg := DefaultConfig()
	sig := Signals{Reachability: model.ReachabilityUnreachable, Now: now}

	fresh := normalize.Finding{CVSS: 5.0, Published: now.AddDate(0, 0, -10)}
	old := normalize.Finding{CVSS: 5.0, Published: now.AddDate(-2, 0, 0)}

	freshScore := Score(fresh, sig, cfg)
	oldScore := Score(old, sig, cfg)
	assert.Greater(t, freshScore.Value, oldScore.Value)

	// Fully aged disclosures contribute nothing and produce no clause.
	for _, clause := range oldScore.Explanation {
		assert.NotContains(t, clause, "urgency window")
	}
}

func TestScoreDeterminism(t *testing.T) {
	f := log4shellFinding()
	cfg := DefaultConfig()
	first := Score(f, fullSignals(), cfg)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Score(f, fullSignals(), cfg))
	}
}

func TestScoreNotesAppendedToExplanation(t *testing.T) {
	f := log4shellFinding()
	f.Notes = []string{"conflicting affected ranges reported by OSV for CVE-2021-44228; union taken"}
	rs := Score(f, fullSignals(), DefaultConfig())
	assert.Contains(t, rs.Explanation[len(rs.Explanation)-1], "conflicting affected ranges")
}

func TestTierThresholds(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, TierP0, cfg.tier(85))
	assert.Equal(t, TierP1, cfg.tier(84.9))
	assert.Equal(t, TierP2, cfg.tier(40))
	assert.Equal(t, TierP3, cfg.tier(20))
	assert.Equal(t, TierP4, cfg.tier(19.9))
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	bad := DefaultConfig()
	bad.Weights.CVSS = 0.5 // sum now 1.25
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.Weights.EPSS = -0.1
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.Thresholds.P1 = 90 // not descending
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.AgeWindowDays = 0
	assert.Error(t, bad.Validate())
}

func TestConfigVersion(t *testing.T) {
	a := DefaultConfig()
	b := DefaultConfig()
	assert.Equal(t, a.Version(), b.Version())

	b.Weights.KEV = 0.25
	assert.NotEqual(t, a.Version(), b.Version())
}
