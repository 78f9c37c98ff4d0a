package advisory

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"depgate/internal/model"
	"depgate/internal/mvnver"
)

// GHSAAdapter parses GitHub security advisory response documents (an array
// of advisories as returned by the /advisories endpoint).
type GHSAAdapter struct{}

func (GHSAAdapter) Source() Source { return SourceGHSA }

type ghsaEntry struct {
	GHSAID      string    `json:"ghsa_id"`
	CVEID       string    `json:"cve_id"`
	Summary     string    `json:"summary"`
	Severity    string    `json:"severity"`
	PublishedAt time.Time `json:"published_at"`
	Identifiers []struct {
		Type  string `json:"type"`
		Value string `json:"value"`
	} `json:"identifiers"`
	CVSS struct {
		Score float64 `json:"score"`
	} `json:"cvss"`
	Vulnerabilities []struct {
		Package struct {
			Ecosystem string `json:"ecosystem"`
			Name      string `json:"name"`
		} `json:"package"`
		VulnerableVersionRange string `json:"vulnerable_version_range"`
	} `json:"vulnerabilities"`
}

func (GHSAAdapter) Parse(doc []byte) ([]RawAdvisory, []model.Warning, error) {
	var entries []ghsaEntry
	if err := json.Unmarshal(doc, &entries); err != nil {
		// Single-advisory responses are also valid documents.
		var one ghsaEntry
		if err2 := json.Unmarshal(doc, &one); err2 != nil {
			return nil, nil, fmt.Errorf("failed to decode GHSA document: %w", err)
		}
		entries = append(entries, one)
	}

	var raws []RawAdvisory
	var warns []model.Warning
	for i, e := range entries {
		if e.GHSAID == "" {
			warns = append(warns, model.Warning{
				Stage:   "advisory",
				Subject: fmt.Sprintf("GHSA entry %d", i),
				Detail:  "record has no ghsa_id, skipped",
			})
			continue
		}
		raw := RawAdvisory{
			Source:    SourceGHSA,
			ID:        e.GHSAID,
			Summary:   e.Summary,
			Severity:  ParseSeverity(e.Severity),
			CVSS:      e.CVSS.Score,
			Published: e.PublishedAt,
		}
		if raw.CVSS == 0 {
			raw.CVSS = raw.Severity.NominalCVSS()
		}
		if e.CVEID != "" {
			raw.Aliases = append(raw.Aliases, e.CVEID)
		}
		for _, id := range e.Identifiers {
			if id.Value != "" && id.Value != e.GHSAID && !contains(raw.Aliases, id.Value) {
				raw.Aliases = append(raw.Aliases, id.Value)
			}
		}
		for _, v := range e.Vulnerabilities {
			if !strings.EqualFold(v.Package.Ecosystem, "maven") {
				continue
			}
			if raw.Package.IsZero() {
				raw.Package = osvPackageSelector("Maven", v.Package.Name)
			}
			if v.VulnerableVersionRange == "" {
				continue
			}
			rng, err := mvnver.ParseConstraint(v.VulnerableVersionRange)
			if err != nil {
				warns = append(warns, model.Warning{
					Stage:   "advisory",
					Subject: e.GHSAID,
					Detail:  fmt.Sprintf("unparseable version range %q, skipped", v.VulnerableVersionRange),
				})
				continue
			}
			raw.Ranges = append(raw.Ranges, rng)
		}
		raws = append(raws, raw)
	}
	return raws, warns, nil
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
