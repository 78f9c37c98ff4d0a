package advisory

import (
	"encoding/json"
	"fmt"
	"time"

	"depgate/internal/model"
)

// NVDAdapter parses NVD API 2.0 feed documents. NVD records carry CPE
// configurations rather than package coordinates, so they attach to
// dependencies only by merging with coordinate-bearing records that alias
// the same CVE; their contribution is severity and CVSS.
type NVDAdapter struct{}

func (NVDAdapter) Source() Source { return SourceNVD }

type nvdFeed struct {
	Vulnerabilities []struct {
		CVE struct {
			ID           string `json:"id"`
			Published    string `json:"published"`
			Descriptions []struct {
				Lang  string `json:"lang"`
				Value string `json:"value"`
			} `json:"descriptions"`
			Metrics struct {
				CVSSMetricV31 []nvdMetric `json:"cvssMetricV31"`
				CVSSMetricV30 []nvdMetric `json:"cvssMetricV30"`
			} `json:"metrics"`
			References []struct {
				URL  string   `json:"url"`
				Tags []string `json:"tags"`
			} `json:"references"`
		} `json:"cve"`
	} `json:"vulnerabilities"`
}

type nvdMetric struct {
	CVSSData struct {
		BaseScore    float64 `json:"baseScore"`
		BaseSeverity string  `json:"baseSeverity"`
	} `json:"cvssData"`
}

func (NVDAdapter) Parse(doc []byte) ([]RawAdvisory, []model.Warning, error) {
	var feed nvdFeed
	if err := json.Unmarshal(doc, &feed); err != nil {
		return nil, nil, fmt.Errorf("failed to decode NVD feed: %w", err)
	}

	var raws []RawAdvisory
	var warns []model.Warning
	for i, item := range feed.Vulnerabilities {
		cve := item.CVE
		if cve.ID == "" {
			warns = append(warns, model.Warning{
				Stage:   "advisory",
				Subject: fmt.Sprintf("NVD entry %d", i),
				Detail:  "record has no id, skipped",
			})
			continue
		}
		raw := RawAdvisory{Source: SourceNVD, ID: cve.ID}
		if t, err := time.Parse("2006-01-02T15:04:05.000", cve.Published); err == nil {
			raw.Published = t
		} else if t, err := time.Parse(time.RFC3339, cve.Published); err == nil {
			raw.Published = t
		}
		for _, d := range cve.Descriptions {
			if d.Lang == "en" {
				raw.Summary = d.Value
				break
			}
		}
		metrics := cve.Metrics.CVSSMetricV31
		if len(metrics) == 0 {
			metrics = cve.Metrics.CVSSMetricV30
		}
		raw.Severity = SeverityUnknown
		if len(metrics) > 0 {
			raw.CVSS = metrics[0].CVSSData.BaseScore
			raw.Severity = ParseSeverity(metrics[0].CVSSData.BaseSeverity)
		}
		for _, ref := range cve.References {
			for _, tag := range ref.Tags {
				if tag == "Exploit" {
					raw.Exploit = true
				}
			}
		}
		raws = append(raws, raw)
	}
	return raws, warns, nil
}
