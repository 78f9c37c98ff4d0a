package advisory

import (
	"strings"
	"time"

	"depgate/internal/mvnver"
)

// Source identifies the feed a record came from.
type Source string

const (
	SourceOSV  Source = "OSV"
	SourceNVD  Source = "NVD"
	SourceGHSA Source = "GHSA"
	SourceKEV  Source = "KEV"
	SourceEPSS Source = "EPSS"
)

// Severity is the normalized severity label of an advisory.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
	SeverityUnknown  Severity = "UNKNOWN"
)

// ParseSeverity normalizes the label spellings the feeds use.
func ParseSeverity(s string) Severity {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CRITICAL":
		return SeverityCritical
	case "HIGH":
		return SeverityHigh
	case "MEDIUM", "MODERATE":
		return SeverityMedium
	case "LOW":
		return SeverityLow
	default:
		return SeverityUnknown
	}
}

// NominalCVSS maps a severity label onto a representative CVSS base score,
// used when a feed reports a label but no numeric score.
func (s Severity) NominalCVSS() float64 {
	switch s {
	case SeverityCritical:
		return 9.5
	case SeverityHigh:
		return 8.0
	case SeverityMedium:
		return 5.5
	case SeverityLow:
		return 2.5
	default:
		return 0
	}
}

// rank orders severities for precedence comparisons; higher is worse.
func (s Severity) rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Worse reports whether s outranks o.
func (s Severity) Worse(o Severity) bool { return s.rank() > o.rank() }

// PackageSelector names the package an advisory range applies to. NVD
// records carry no ecosystem coordinates and leave it empty; such records
// attach to dependencies only through alias merging.
type PackageSelector struct {
	Ecosystem string `json:"ecosystem"`
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
}

// Key matches model.Coordinate.Key for graph lookup.
func (p PackageSelector) Key() string {
	return p.Ecosystem + "/" + p.Namespace + ":" + p.Name
}

// IsZero reports whether the selector names no package.
func (p PackageSelector) IsZero() bool { return p.Name == "" }

// RawAdvisory is one vulnerability record from a single source, exactly as
// the adapter read it. Never mutated after parsing.
type RawAdvisory struct {
	Source    Source          `json:"source"`
	ID        string          `json:"id"`
	Aliases   []string        `json:"aliases,omitempty"`
	Package   PackageSelector `json:"package,omitempty"`
	Ranges    []mvnver.Range  `json:"ranges,omitempty"`
	Severity  Severity        `json:"severity"`
	CVSS      float64         `json:"cvss,omitempty"`
	Published time.Time       `json:"published,omitempty"`
	Exploit   bool            `json:"exploit,omitempty"`
	Summary   string          `json:"summary,omitempty"`
}

// Identifiers returns the record's ID plus aliases.
func (r RawAdvisory) Identifiers() []string {
	ids := make([]string, 0, len(r.Aliases)+1)
	ids = append(ids, r.ID)
	ids = append(ids, r.Aliases...)
	return ids
}

// KEVEntry is one CISA Known Exploited Vulnerabilities catalogue entry.
type KEVEntry struct {
	CVEID         string `json:"cveID"`
	VendorProject string `json:"vendorProject"`
	Product       string `json:"product"`
	DateAdded     string `json:"dateAdded"`
	DueDate       string `json:"dueDate"`
	RansomwareUse string `json:"knownRansomwareCampaignUse"`
}

// Ransomware reports whether the entry is tied to known ransomware campaigns.
func (e KEVEntry) Ransomware() bool {
	return strings.EqualFold(e.RansomwareUse, "known")
}

// EPSSEntry is one row of the EPSS feed.
type EPSSEntry struct {
	CVE        string  `json:"cve"`
	Score      float64 `json:"score"`
	Percentile float64 `json:"percentile"`
}
