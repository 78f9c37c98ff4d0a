// Package report assembles the verdict report, the sole interface consumed
// by downstream presentation layers.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"depgate/internal/advisory"
	"depgate/internal/model"
	"depgate/internal/normalize"
	"depgate/internal/policy"
	"depgate/internal/score"
)

// Exit codes of the tri-state exit signal.
const (
	ExitPass     = 0
	ExitBlock    = 1
	ExitWarnings = 2
)

// Finding is one fully-decided finding in the report.
type Finding struct {
	ID          string            `json:"id"`
	IDs         []string          `json:"ids"`
	Dependency  model.Dependency  `json:"dependency"`
	Severity    advisory.Severity `json:"severity"`
	CVSS        float64           `json:"cvss"`
	Score       float64           `json:"score"`
	Tier        score.Tier        `json:"tier"`
	Explanation []string          `json:"explanation"`
	Action      policy.Action     `json:"action"`
	Rule        string            `json:"rule,omitempty"`
	Exception   *policy.Exception `json:"exception,omitempty"`
}

// Report is the complete scan outcome.
type Report struct {
	Findings    []Finding       `json:"findings"`
	Pass        bool            `json:"pass"`
	Blocked     int             `json:"blocked"`
	Warned      int             `json:"warned"`
	Warnings    []model.Warning `json:"warnings,omitempty"`
	GeneratedAt time.Time       `json:"generated_at"`
	FromCache   bool            `json:"from_cache,omitempty"`
}

// Assemble zips normalized findings, their scores and the policy verdict
// into one report. The three slices are index-aligned by construction.
func Assemble(findings []normalize.Finding, scores []score.RiskScore, verdict *policy.Verdict, warnings []model.Warning, now time.Time) *Report {
	r := &Report{
		Pass:        verdict.Pass,
		Blocked:     verdict.Blocked(),
		Warned:      verdict.Warned(),
		Warnings:    warnings,
		GeneratedAt: now,
	}
	for i, f := range findings {
		fv := verdict.Findings[i]
		r.Findings = append(r.Findings, Finding{
			ID:          f.ID,
			IDs:         f.IDs,
			Dependency:  f.Dependency,
			Severity:    f.Severity,
			CVSS:        f.CVSS,
			Score:       scores[i].Value,
			Tier:        scores[i].Tier,
			Explanation: scores[i].Explanation,
			Action:      fv.Action,
			Rule:        fv.RuleName,
			Exception:   fv.Exception,
		})
	}
	return r
}

// ExitCode maps the report onto the tri-state exit signal: 0 pass, 1 block,
// 2 pass with warnings (warn actions or data-integrity warnings).
func (r *Report) ExitCode() int {
	switch {
	case !r.Pass:
		return ExitBlock
	case r.Warned > 0 || len(r.Warnings) > 0:
		return ExitWarnings
	default:
		return ExitPass
	}
}

// WriteJSON emits the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteTable emits a human-readable summary table.
func (r *Report) WriteTable(w io.Writer) error {
	if len(r.Findings) == 0 {
		fmt.Fprintln(w, "No vulnerabilities found.")
		return r.writeTrailer(w)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDEPENDENCY\tSEVERITY\tSCORE\tTIER\tACTION\tRULE")
	fmt.Fprintln(tw, "--\t----------\t--------\t-----\t----\t------\t----")
	for _, f := range r.Findings {
		rule := f.Rule
		if f.Exception != nil {
			rule += " (exception: " + f.Exception.Approver + ")"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.1f\t%s\t%s\t%s\n",
			f.ID, f.Dependency.Coordinate, f.Severity, f.Score, f.Tier, strings.ToUpper(string(f.Action)), rule)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	return r.writeTrailer(w)
}

func (r *Report) writeTrailer(w io.Writer) error {
	for _, warning := range r.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}
	status := "PASS"
	switch r.ExitCode() {
	case ExitBlock:
		status = "BLOCK"
	case ExitWarnings:
		status = "PASS (with warnings)"
	}
	_, err := fmt.Fprintf(w, "\n%d finding(s): %d blocked, %d warned. Result: %s\n",
		len(r.Findings), r.Blocked, r.Warned, status)
	return err
}
