package advisory

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"depgate/internal/model"
	"depgate/internal/mvnver"
)

// OSVAdapter parses OSV schema documents: either a single entry or an array
// of entries per file.
type OSVAdapter struct{}

func (OSVAdapter) Source() Source { return SourceOSV }

type osvEntry struct {
	ID        string    `json:"id"`
	Aliases   []string  `json:"aliases"`
	Summary   string    `json:"summary"`
	Details   string    `json:"details"`
	Published time.Time `json:"published"`
	Affected  []struct {
		Package struct {
			Ecosystem string `json:"ecosystem"`
			Name      string `json:"name"`
		} `json:"package"`
		Ranges []struct {
			Type   string `json:"type"`
			Events []struct {
				Introduced   string `json:"introduced"`
				Fixed        string `json:"fixed"`
				LastAffected string `json:"last_affected"`
			} `json:"events"`
		} `json:"ranges"`
	} `json:"affected"`
	Severity []struct {
		Type  string `json:"type"`
		Score string `json:"score"`
	} `json:"severity"`
	DatabaseSpecific struct {
		Severity string `json:"severity"`
	} `json:"database_specific"`
	References []struct {
		Type string `json:"type"`
		URL  string `json:"url"`
	} `json:"references"`
}

func (OSVAdapter) Parse(doc []byte) ([]RawAdvisory, []model.Warning, error) {
	var entries []osvEntry
	doc = []byte(strings.TrimSpace(string(doc)))
	if len(doc) > 0 && doc[0] == '[' {
		if err := json.Unmarshal(doc, &entries); err != nil {
			return nil, nil, fmt.Errorf("failed to decode OSV document: %w", err)
		}
	} else {
		var one osvEntry
		if err := json.Unmarshal(doc, &one); err != nil {
			return nil, nil, fmt.Errorf("failed to decode OSV document: %w", err)
		}
		entries = append(entries, one)
	}

	var raws []RawAdvisory
	var warns []model.Warning
	for i, e := range entries {
		if e.ID == "" {
			warns = append(warns, model.Warning{
				Stage:   "advisory",
				Subject: fmt.Sprintf("OSV entry %d", i),
				Detail:  "record has no id, skipped",
			})
			continue
		}
		raw := RawAdvisory{
			Source:    SourceOSV,
			ID:        e.ID,
			Aliases:   e.Aliases,
			Published: e.Published,
			Summary:   e.Summary,
			Severity:  ParseSeverity(e.DatabaseSpecific.Severity),
		}
		raw.CVSS = raw.Severity.NominalCVSS()
		for _, ref := range e.References {
			if strings.EqualFold(ref.Type, "EXPLOIT") {
				raw.Exploit = true
			}
		}
		for _, aff := range e.Affected {
			if raw.Package.IsZero() {
				raw.Package = osvPackageSelector(aff.Package.Ecosystem, aff.Package.Name)
			}
			for _, rg := range aff.Ranges {
				raw.Ranges = append(raw.Ranges, osvEvents(rg.Events)...)
			}
		}
		raws = append(raws, raw)
	}
	return raws, warns, nil
}

// osvEvents folds an OSV event list into intervals: each introduced event
// opens a range that the next fixed/last_affected event closes.
func osvEvents(events []struct {
	Introduced   string `json:"introduced"`
	Fixed        string `json:"fixed"`
	LastAffected string `json:"last_affected"`
}) []mvnver.Range {
	var ranges []mvnver.Range
	var open *mvnver.Range
	for _, ev := range events {
		switch {
		case ev.Introduced != "":
			if open != nil {
				ranges = append(ranges, *open)
			}
			intro := ev.Introduced
			if intro == "0" {
				intro = ""
			}
			open = &mvnver.Range{Introduced: intro}
		case ev.Fixed != "":
			if open == nil {
				open = &mvnver.Range{}
			}
			open.Fixed = ev.Fixed
			ranges = append(ranges, *open)
			open = nil
		case ev.LastAffected != "":
			if open == nil {
				open = &mvnver.Range{}
			}
			open.LastAffected = ev.LastAffected
			ranges = append(ranges, *open)
			open = nil
		}
	}
	if open != nil {
		ranges = append(ranges, *open)
	}
	return ranges
}

// osvPackageSelector splits an OSV Maven package name (group:artifact).
func osvPackageSelector(ecosystem, name string) PackageSelector {
	sel := PackageSelector{Ecosystem: ecosystem}
	if i := strings.Index(name, ":"); i >= 0 {
		sel.Namespace = name[:i]
		sel.Name = name[i+1:]
	} else {
		sel.Name = name
	}
	return sel
}
