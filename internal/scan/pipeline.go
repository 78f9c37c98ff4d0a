// Package scan wires the full decision pipeline: normalize the advisory
// catalogue against a dependency graph, score the findings, evaluate policy
// and assemble the report, with the snapshot cache and incremental gate in
// front.
package scan

import (
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"time"

	"depgate/internal/advisory"
	"depgate/internal/cache"
	"depgate/internal/gate"
	"depgate/internal/git"
	"depgate/internal/metrics"
	"depgate/internal/model"
	"depgate/internal/normalize"
	"depgate/internal/policy"
	"depgate/internal/reach"
	"depgate/internal/report"
	"depgate/internal/score"
)

// Pipeline holds the loaded inputs a scan evaluates against. Build one per
// invocation; it is safe for a single Run at a time.
type Pipeline struct {
	Catalogue *advisory.Catalogue
	Policies  *policy.Set
	Scoring   score.Config
	Reach     *reach.Report

	Cache   *cache.Manager   // nil disables snapshot reuse
	Metrics *metrics.Metrics // nil disables instrumentation
	Git     git.IClient      // nil disables the incremental gate
	Logger  *slog.Logger

	Now func() time.Time
}

// Options control one Run.
type Options struct {
	Force    bool   // recompute even when a live snapshot exists
	Dir      string // repository directory for the incremental gate
	SinceRef string // last scan point; empty forces a rescan
	Warnings []model.Warning
}

// Run evaluates the graph and returns the decided report.
func (p *Pipeline) Run(graph *model.Graph, opts Options) (*report.Report, error) {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	if p.Reach == nil {
		p.Reach = reach.Empty()
	}
	start := now()

	key := model.ScanKey(graph.ContentHash(), p.Catalogue.Version(), p.Policies.Version(), p.Scoring.Version())

	var decision *gate.Decision
	if p.Git != nil && opts.SinceRef != "" && !opts.Force {
		d := gate.ShouldRescan(p.Git, opts.Dir, opts.SinceRef, logger)
		decision = &d
	}

	if p.Cache == nil {
		rep, err := p.evaluate(graph, opts.Warnings, now())
		p.observe(rep, false, now().Sub(start), err)
		return rep, err
	}
	if opts.Force {
		// Recompute and let the fresh snapshot replace the stale one.
		p.Cache.Invalidate(key)
	}
	if decision != nil {
		if !decision.Rescan {
			if snap, ok := p.Cache.Get(key); ok {
				logger.Info("incremental gate reused snapshot", "reason", decision.Reason, "ref", snap.ScanRef)
				rep := snap.Report
				rep.FromCache = true
				p.observe(rep, true, now().Sub(start), nil)
				return rep, nil
			}
			logger.Warn("incremental gate allowed reuse but no snapshot found, rescanning", "reason", decision.Reason)
		} else {
			// Build or lock files changed since the last scan point; do not
			// trust a snapshot even under a matching key.
			p.Cache.Invalidate(key)
		}
	}

	snap, fromCache, err := p.Cache.Do(key, func() (*cache.Snapshot, error) {
		rep, err := p.evaluate(graph, opts.Warnings, now())
		if err != nil {
			return nil, err
		}
		s := &cache.Snapshot{
			Key:              key,
			GraphHash:        graph.ContentHash(),
			CatalogueVersion: p.Catalogue.Version(),
			PolicyVersion:    p.Policies.Version(),
			ScorerVersion:    p.Scoring.Version(),
			CreatedAt:        now(),
			Report:           rep,
		}
		if p.Git != nil {
			if sha, err := p.Git.HeadSHA(opts.Dir); err == nil {
				s.ScanRef = sha
			}
		}
		return s, nil
	})
	if err != nil {
		p.observe(nil, false, now().Sub(start), err)
		return nil, err
	}

	rep := snap.Report
	rep.FromCache = fromCache
	p.observe(rep, fromCache, now().Sub(start), nil)
	return rep, nil
}

// evaluate is the uncached pipeline: normalize, score, evaluate, assemble.
func (p *Pipeline) evaluate(graph *model.Graph, extra []model.Warning, now time.Time) (*report.Report, error) {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	warnings := append([]model.Warning{}, extra...)
	warnings = append(warnings, p.Catalogue.Warnings()...)

	findings, warns := normalize.Normalize(p.Catalogue.Advisories(), graph, logger)
	warnings = append(warnings, warns...)

	scores := p.scoreAll(findings, now)

	inputs := make([]policy.Input, len(findings))
	for i, f := range findings {
		_, kevListed := p.kevFor(f)
		inputs[i] = policy.Input{
			Finding:   f,
			Score:     scores[i],
			KEVListed: kevListed,
			License:   f.Dependency.License,
		}
	}

	verdict, err := policy.Evaluate(inputs, p.Policies, now)
	if err != nil {
		return nil, fmt.Errorf("policy evaluation failed: %w", err)
	}

	return report.Assemble(findings, scores, verdict, warnings, now), nil
}

// scoreAll scores findings in parallel. Scoring is pure, so ordering is
// preserved by index.
func (p *Pipeline) scoreAll(findings []normalize.Finding, now time.Time) []score.RiskScore {
	scores := make([]score.RiskScore, len(findings))
	sem := make(chan struct{}, runtime.NumCPU())
	var wg sync.WaitGroup
	for i, f := range findings {
		wg.Add(1)
		go func(i int, f normalize.Finding) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			sig := score.Signals{
				Reachability: p.Reach.For(f.Dependency.Coordinate),
				Now:          now,
			}
			if kev, ok := p.kevFor(f); ok {
				sig.KEV = &kev
			}
			if epss, ok := p.epssFor(f); ok {
				sig.EPSS = &epss
			}
			scores[i] = score.Score(f, sig, p.Scoring)
			if trace := p.Reach.Trace(f.Dependency.Coordinate); len(trace) > 0 {
				scores[i].Explanation = append(scores[i].Explanation, "reachable via "+trace[0])
			}
		}(i, f)
	}
	wg.Wait()
	return scores
}

func (p *Pipeline) kevFor(f normalize.Finding) (advisory.KEVEntry, bool) {
	for _, id := range f.IDs {
		if !strings.HasPrefix(id, "CVE-") {
			continue
		}
		if entry, ok := p.Catalogue.KEV(id); ok {
			return entry, true
		}
	}
	return advisory.KEVEntry{}, false
}

func (p *Pipeline) epssFor(f normalize.Finding) (advisory.EPSSEntry, bool) {
	for _, id := range f.IDs {
		if !strings.HasPrefix(id, "CVE-") {
			continue
		}
		if entry, ok := p.Catalogue.EPSS(id); ok {
			return entry, true
		}
	}
	return advisory.EPSSEntry{}, false
}

func (p *Pipeline) observe(rep *report.Report, fromCache bool, elapsed time.Duration, err error) {
	if p.Metrics == nil {
		return
	}
	if p.Cache != nil {
		p.Metrics.ObserveCache(fromCache)
	}
	result := "error"
	if err == nil {
		switch rep.ExitCode() {
		case report.ExitPass:
			result = "pass"
		case report.ExitBlock:
			result = "block"
		case report.ExitWarnings:
			result = "warn"
		}
		byTier := map[string]int{}
		for _, f := range rep.Findings {
			byTier[string(f.Tier)]++
		}
		p.Metrics.SetFindings(byTier)
		p.Metrics.WarningsEmitted.Add(float64(len(rep.Warnings)))
	}
	p.Metrics.ObserveScan(result, elapsed)
}
