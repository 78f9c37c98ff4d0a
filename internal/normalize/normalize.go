// Package normalize merges raw advisories from heterogeneous sources into
// canonical, deduplicated findings tied to dependencies in the scanned graph.
package normalize

import (
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"depgate/internal/advisory"
	"depgate/internal/model"
	"depgate/internal/mvnver"
)

// Finding is the canonical merge of all raw advisories describing one
// vulnerability, tied to exactly one dependency whose version is affected.
type Finding struct {
	ID         string             `json:"id"`  // primary identifier, CVE preferred
	IDs        []string           `json:"ids"` // all identifiers and aliases, sorted
	Dependency model.Dependency   `json:"dependency"`
	Severity   advisory.Severity  `json:"severity"`
	CVSS       float64            `json:"cvss"`
	Ranges     []mvnver.Range     `json:"ranges"`
	Sources    []advisory.Source  `json:"sources"`
	Published  time.Time          `json:"published,omitempty"`
	Exploit    bool               `json:"exploit"`
	Summary    string             `json:"summary,omitempty"`
	Notes      []string           `json:"notes,omitempty"` // data-integrity notes, e.g. range conflicts
}

// HasIdentifier reports whether id appears among the finding's identifiers.
func (f Finding) HasIdentifier(id string) bool {
	for _, known := range f.IDs {
		if known == id {
			return true
		}
	}
	return false
}

// sourcePrecedence orders severity authority: GHSA > NVD > OSV.
func sourcePrecedence(s advisory.Source) int {
	switch s {
	case advisory.SourceGHSA:
		return 3
	case advisory.SourceNVD:
		return 2
	case advisory.SourceOSV:
		return 1
	default:
		return 0
	}
}

// Normalize merges the raw advisory multiset into canonical findings against
// the dependency graph. Pure for a fixed input multiset: output is sorted by
// (primary id, dependency coordinate) and independent of input order.
func Normalize(raws []advisory.RawAdvisory, graph *model.Graph, logger *slog.Logger) ([]Finding, []model.Warning) {
	if logger == nil {
		logger = slog.Default()
	}

	// Alias-graph construction is serial: union advisories sharing any
	// identifier or alias. Transitive closure falls out of union-find.
	uf := newUnionFind(len(raws))
	byIdent := make(map[string]int)
	for i, raw := range raws {
		for _, id := range raw.Identifiers() {
			if id == "" {
				continue
			}
			if j, ok := byIdent[id]; ok {
				uf.union(i, j)
			} else {
				byIdent[id] = i
			}
		}
	}

	components := make(map[int][]int)
	for i := range raws {
		root := uf.find(i)
		components[root] = append(components[root], i)
	}
	roots := make([]int, 0, len(components))
	for root := range components {
		roots = append(roots, root)
	}
	sort.Ints(roots)

	// Merging is independent per component; fan out across workers.
	type result struct {
		findings []Finding
		warnings []model.Warning
	}
	results := make([]result, len(roots))
	var wg sync.WaitGroup
	sem := make(chan struct{}, runtime.NumCPU())
	for idx, root := range roots {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int, members []int) {
			defer wg.Done()
			defer func() { <-sem }()
			f, w := mergeComponent(raws, members, graph)
			results[idx] = result{findings: f, warnings: w}
		}(idx, components[root])
	}
	wg.Wait()

	var findings []Finding
	var warnings []model.Warning
	for _, r := range results {
		findings = append(findings, r.findings...)
		warnings = append(warnings, r.warnings...)
	}
	for _, w := range warnings {
		logger.Warn("advisory dropped during normalization", "subject", w.Subject, "detail", w.Detail)
	}

	sort.Slice(findings, func(i, j int) bool {
		if findings[i].ID != findings[j].ID {
			return findings[i].ID < findings[j].ID
		}
		return findings[i].Dependency.Coordinate.String() < findings[j].Dependency.Coordinate.String()
	})
	return findings, warnings
}

// mergeComponent folds the member advisories of one connected component into
// findings, one per affected dependency present in the graph.
func mergeComponent(raws []advisory.RawAdvisory, members []int, graph *model.Graph) ([]Finding, []model.Warning) {
	sort.Ints(members)

	idSet := make(map[string]struct{})
	srcSet := make(map[advisory.Source]struct{})
	rangesByPkg := make(map[string][]mvnver.Range)
	var notes []string

	var severity advisory.Severity = advisory.SeverityUnknown
	var cvss float64
	sevPrec := -1
	var summary string
	sumPrec := -1
	var published time.Time
	exploit := false

	seenRanges := make(map[string]string) // source|id -> fingerprint of its ranges

	for _, i := range members {
		raw := raws[i]
		for _, id := range raw.Identifiers() {
			if id != "" {
				idSet[id] = struct{}{}
			}
		}
		srcSet[raw.Source] = struct{}{}

		prec := sourcePrecedence(raw.Source)
		// Worse(SeverityUnknown) filters both "UNKNOWN" and the zero value,
		// so a record without metrics never displaces a rated one.
		if raw.Severity.Worse(advisory.SeverityUnknown) {
			switch {
			case prec > sevPrec:
				severity = raw.Severity
				cvss = raw.CVSS
				sevPrec = prec
			case prec == sevPrec && raw.Severity != severity:
				notes = append(notes, fmt.Sprintf(
					"conflicting severities reported by %s; worst taken", raw.Source))
				if raw.Severity.Worse(severity) {
					severity = raw.Severity
					cvss = raw.CVSS
				}
			case prec == sevPrec && raw.CVSS > cvss:
				cvss = raw.CVSS
			}
		}
		if raw.Summary != "" && prec > sumPrec {
			summary = raw.Summary
			sumPrec = prec
		}
		if !raw.Published.IsZero() && (published.IsZero() || raw.Published.Before(published)) {
			published = raw.Published
		}
		if raw.Exploit {
			exploit = true
		}

		if !raw.Package.IsZero() && len(raw.Ranges) > 0 {
			key := string(raw.Source) + "|" + raw.ID
			fp := rangeFingerprint(raw.Ranges)
			if prev, ok := seenRanges[key]; ok && prev != fp {
				notes = append(notes, fmt.Sprintf(
					"conflicting affected ranges reported by %s for %s; union taken", raw.Source, raw.ID))
			}
			seenRanges[key] = fp
			rangesByPkg[raw.Package.Key()] = append(rangesByPkg[raw.Package.Key()], raw.Ranges...)
		}
	}

	notes = dedupeStrings(notes)

	ids := make([]string, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	sources := make([]advisory.Source, 0, len(srcSet))
	for s := range srcSet {
		sources = append(sources, s)
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i] < sources[j] })

	primary := primaryID(ids)

	var findings []Finding
	matched := false
	for pkgKey, ranges := range rangesByPkg {
		for _, dep := range graph.Lookup(pkgKey) {
			if !mvnver.AnyContains(ranges, dep.Coordinate.Version) {
				continue
			}
			matched = true
			findings = append(findings, Finding{
				ID:         primary,
				IDs:        ids,
				Dependency: dep,
				Severity:   severity,
				CVSS:       cvss,
				Ranges:     dedupeRanges(ranges),
				Sources:    sources,
				Published:  published,
				Exploit:    exploit,
				Summary:    summary,
				Notes:      notes,
			})
		}
	}

	if !matched {
		return nil, []model.Warning{{
			Stage:   "normalize",
			Subject: primary,
			Detail:  "advisory names no dependency present in the graph, dropped",
		}}
	}
	return findings, nil
}

// primaryID picks the canonical identifier: a CVE if one exists, else a
// GHSA id, else the first identifier in sorted order.
func primaryID(sortedIDs []string) string {
	for _, id := range sortedIDs {
		if strings.HasPrefix(id, "CVE-") {
			return id
		}
	}
	for _, id := range sortedIDs {
		if strings.HasPrefix(id, "GHSA-") {
			return id
		}
	}
	if len(sortedIDs) > 0 {
		return sortedIDs[0]
	}
	return ""
}

func rangeFingerprint(ranges []mvnver.Range) string {
	parts := make([]string, len(ranges))
	for i, r := range ranges {
		parts[i] = r.String()
	}
	sort.Strings(parts)
	return strings.Join(parts, ";")
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	var out []string
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func dedupeRanges(ranges []mvnver.Range) []mvnver.Range {
	seen := make(map[mvnver.Range]struct{}, len(ranges))
	var out []mvnver.Range
	for _, r := range ranges {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// unionFind is a plain weighted union-find over advisory indices.
type unionFind struct {
	parent []int
	size   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n), size: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
		uf.size[i] = 1
	}
	return uf
}

func (uf *unionFind) find(i int) int {
	for uf.parent[i] != i {
		uf.parent[i] = uf.parent[uf.parent[i]]
		i = uf.parent[i]
	}
	return i
}

func (uf *unionFind) union(a, b int) {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return
	}
	if uf.size[ra] < uf.size[rb] {
		ra, rb = rb, ra
	}
	uf.parent[rb] = ra
	uf.size[ra] += uf.size[rb]
}
