package advisory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"depgate/internal/mvnver"
)

const osvLog4Shell = `{
  "id": "CVE-2021-44228",
  "aliases": ["GHSA-jfh8-c2jp-5v3q"],
  "summary": "Remote code execution in Log4j",
  "published": "2021-12-10T10:15:00Z",
  "database_specific": {"severity": "CRITICAL"},
  "references": [{"type": "EXPLOIT", "url": "https://example.com/poc"}],
  "affected": [
    {
      "package": {"ecosystem": "Maven", "name": "org.apache.logging.log4j:log4j-core"},
      "ranges": [
        {"type": "ECOSYSTEM", "events": [{"introduced": "2.0"}, {"fixed": "2.15.0"}]}
      ]
    }
  ]
}`

func TestOSVAdapterParse(t *testing.T) {
	raws, warns, err := OSVAdapter{}.Parse([]byte(osvLog4Shell))
	require.NoError(t, err)
	assert.Empty(t, warns)
	require.Len(t, raws, 1)

	raw := raws[0]
	assert.Equal(t, SourceOSV, raw.Source)
	assert.Equal(t, "CVE-2021-44228", raw.ID)
	assert.Equal(t, []string{"GHSA-jfh8-c2jp-5v3q"}, raw.Aliases)
	assert.Equal(t, SeverityCritical, raw.Severity)
	assert.True(t, raw.Exploit)
	assert.Equal(t, "Maven/org.apache.logging.log4j:log4j-core", raw.Package.Key())
	require.Len(t, raw.Ranges, 1)
	assert.Equal(t, mvnver.Range{Introduced: "2.0", Fixed: "2.15.0"}, raw.Ranges[0])
	assert.True(t, mvnver.AnyContains(raw.Ranges, "2.14.1"))
	assert.False(t, mvnver.AnyContains(raw.Ranges, "2.15.0"))
}

func TestOSVAdapterSkipsRecordWithoutID(t *testing.T) {
	doc := `[{"summary": "no id"}, {"id": "OSV-2024-1", "database_specific": {"severity": "LOW"}}]`
	raws, warns, err := OSVAdapter{}.Parse([]byte(doc))
	require.NoError(t, err)
	assert.Len(t, raws, 1)
	require.Len(t, warns, 1)
	assert.Contains(t, warns[0].Detail, "no id")
}

func TestOSVAdapterRejectsUndecodableDocument(t *testing.T) {
	_, _, err := OSVAdapter{}.Parse([]byte(`{broken`))
	assert.Error(t, err)
}

const nvdDoc = `{
  "vulnerabilities": [
    {
      "cve": {
        "id": "CVE-2021-44228",
        "published": "2021-12-10T10:15:09.143",
        "descriptions": [{"lang": "en", "value": "Apache Log4j2 JNDI features..."}],
        "metrics": {
          "cvssMetricV31": [
            {"cvssData": {"baseScore": 10.0, "baseSeverity": "CRITICAL"}}
          ]
        },
        "references": [{"url": "https://example.com", "tags": ["Exploit", "Third Party Advisory"]}]
      }
    }
  ]
}`

func TestNVDAdapterParse(t *testing.T) {
	raws, warns, err := NVDAdapter{}.Parse([]byte(nvdDoc))
	require.NoError(t, err)
	assert.Empty(t, warns)
	require.Len(t, raws, 1)

	raw := raws[0]
	assert.Equal(t, SourceNVD, raw.Source)
	assert.Equal(t, "CVE-2021-44228", raw.ID)
	assert.Equal(t, 10.0, raw.CVSS)
	assert.Equal(t, SeverityCritical, raw.Severity)
	assert.True(t, raw.Exploit)
	assert.True(t, raw.Package.IsZero())
	assert.Equal(t, 2021, raw.Published.Year())
}

func TestNVDAdapterRecordWithoutMetrics(t *testing.T) {
	doc := `{"vulnerabilities": [{"cve": {"id": "CVE-2024-0001", "descriptions": [{"lang": "en", "value": "awaiting analysis"}]}}]}`
	raws, warns, err := NVDAdapter{}.Parse([]byte(doc))
	require.NoError(t, err)
	assert.Empty(t, warns)
	require.Len(t, raws, 1)

	assert.Equal(t, SeverityUnknown, raws[0].Severity)
	assert.Zero(t, raws[0].CVSS)
}

const ghsaDoc = `[
  {
    "ghsa_id": "GHSA-jfh8-c2jp-5v3q",
    "cve_id": "CVE-2021-44228",
    "summary": "Remote code execution in Apache Log4j",
    "severity": "critical",
    "published_at": "2021-12-10T00:00:00Z",
    "cvss": {"score": 10.0},
    "vulnerabilities": [
      {
        "package": {"ecosystem": "maven", "name": "org.apache.logging.log4j:log4j-core"},
        "vulnerable_version_range": ">= 2.0.0, < 2.15.0"
      },
      {
        "package": {"ecosystem": "npm", "name": "log4js"},
        "vulnerable_version_range": "< 1.0.0"
      }
    ]
  }
]`

func TestGHSAAdapterParse(t *testing.T) {
	raws, warns, err := GHSAAdapter{}.Parse([]byte(ghsaDoc))
	require.NoError(t, err)
	assert.Empty(t, warns)
	require.Len(t, raws, 1)

	raw := raws[0]
	assert.Equal(t, SourceGHSA, raw.Source)
	assert.Equal(t, "GHSA-jfh8-c2jp-5v3q", raw.ID)
	assert.Contains(t, raw.Aliases, "CVE-2021-44228")
	assert.Equal(t, SeverityCritical, raw.Severity)
	// Non-Maven vulnerability entries are ignored.
	require.Len(t, raw.Ranges, 1)
	assert.True(t, raw.Ranges[0].Contains("2.14.1"))
}

const kevDoc = `{
  "catalogVersion": "2021.12.10",
  "count": 1,
  "vulnerabilities": [
    {
      "cveID": "CVE-2021-44228",
      "vendorProject": "Apache",
      "product": "Log4j2",
      "dateAdded": "2021-12-10",
      "dueDate": "2021-12-24",
      "knownRansomwareCampaignUse": "Known"
    }
  ]
}`

func TestParseKEV(t *testing.T) {
	entries, warns, err := ParseKEV([]byte(kevDoc))
	require.NoError(t, err)
	assert.Empty(t, warns)
	require.Len(t, entries, 1)
	assert.Equal(t, "CVE-2021-44228", entries[0].CVEID)
	assert.True(t, entries[0].Ransomware())
}

func TestParseEPSS(t *testing.T) {
	doc := "#model_version:v2023.03.01\ncve,epss,percentile\nCVE-2021-44228,0.97565,0.99995\nCVE-2020-0001,bad,0.5\n"
	entries, warns, err := ParseEPSS([]byte(doc))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "CVE-2021-44228", entries[0].CVE)
	assert.InDelta(t, 0.97565, entries[0].Score, 1e-9)
	assert.InDelta(t, 0.99995, entries[0].Percentile, 1e-9)
	require.Len(t, warns, 1)
	assert.Contains(t, warns[0].Detail, "invalid score")
}

func TestParseSeverity(t *testing.T) {
	assert.Equal(t, SeverityMedium, ParseSeverity("Moderate"))
	assert.Equal(t, SeverityCritical, ParseSeverity("critical"))
	assert.Equal(t, SeverityUnknown, ParseSeverity("???"))
	assert.True(t, SeverityHigh.Worse(SeverityMedium))
	assert.False(t, SeverityUnknown.Worse(SeverityLow))
}
