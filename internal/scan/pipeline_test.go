package scan

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"depgate/internal/advisory"
	"depgate/internal/cache"
	"depgate/internal/model"
	"depgate/internal/policy"
	"depgate/internal/reach"
	"depgate/internal/report"
	"depgate/internal/score"
)

var scanNow = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

const graphDoc = `{
  "nodes": [
    {
      "coordinate": {"namespace": "org.apache.logging.log4j", "name": "log4j-core", "version": "2.14.1", "ecosystem": "Maven"},
      "scope": "compile",
      "direct": true
    },
    {
      "coordinate": {"namespace": "com.google.guava", "name": "guava", "version": "30.0-jre", "ecosystem": "Maven"},
      "scope": "compile",
      "direct": true
    }
  ]
}`

const osvDoc = `{
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

const kevDoc = `{
  "catalogVersion": "2021.12.10",
  "vulnerabilities": [
    {
      "cveID": "CVE-2021-44228",
      "vendorProject": "Apache",
      "product": "Log4j2",
      "dateAdded": "2021-12-10",
      "knownRansomwareCampaignUse": "Known"
    }
  ]
}`

const epssDoc = "cve,epss,percentile\nCVE-2021-44228,0.97565,0.99995\n"

const blockKEVPolicy = `
layer: organization
rules:
  - name: block-kev
    action: block
    match: {kind: kev-membership}
  - name: warn-p1
    action: warn
    match:
      kind: priority-threshold
      tier: P1
`

const exceptedKEVPolicy = `
layer: organization
rules:
  - name: block-kev
    action: block
    match: {kind: kev-membership}
    exception:
      ids: [GHSA-jfh8-c2jp-5v3q]
      justification: "egress filtered, upgrade scheduled"
      approver: appsec-lead
      expires: 2099-01-01T00:00:00Z
`

func testCatalogue(t *testing.T) *advisory.Catalogue {
	t.Helper()
	b := advisory.NewBuilder()
	require.NoError(t, b.AddAdvisories(advisory.OSVAdapter{}, []byte(osvDoc)))
	require.NoError(t, b.AddKEV([]byte(kevDoc)))
	require.NoError(t, b.AddEPSS([]byte(epssDoc)))
	return b.Build()
}

func testGraph(t *testing.T) *model.Graph {
	t.Helper()
	g, err := model.ParseGraph([]byte(graphDoc))
	require.NoError(t, err)
	return g
}

func testPolicies(t *testing.T, docs ...string) *policy.Set {
	t.Helper()
	parsed := make([]*policy.Document, len(docs))
	for i, doc := range docs {
		d, err := policy.Parse([]byte(doc))
		require.NoError(t, err)
		parsed[i] = d
	}
	set, err := policy.Merge(parsed...)
	require.NoError(t, err)
	return set
}

func newPipeline(t *testing.T, policyDoc string) *Pipeline {
	t.Helper()
	return &Pipeline{
		Catalogue: testCatalogue(t),
		Policies:  testPolicies(t, policyDoc),
		Scoring:   score.DefaultConfig(),
		Logger:    quiet,
		Now:       func() time.Time { return scanNow },
	}
}

func TestRunBlocksKEVListedVulnerability(t *testing.T) {
	p := newPipeline(t, blockKEVPolicy)

	rep, err := p.Run(testGraph(t), Options{})
	require.NoError(t, err)

	require.Len(t, rep.Findings, 1)
	f := rep.Findings[0]
	assert.Equal(t, "CVE-2021-44228", f.ID)
	assert.Contains(t, f.IDs, "GHSA-jfh8-c2jp-5v3q")
	assert.Equal(t, score.TierP0, f.Tier)
	assert.Equal(t, policy.ActionBlock, f.Action)
	assert.Equal(t, "block-kev", f.Rule)

	assert.False(t, rep.Pass)
	assert.Equal(t, 1, rep.Blocked)
	assert.Equal(t, report.ExitBlock, rep.ExitCode())
	assert.False(t, rep.FromCache)
}

func TestRunHonoursUnexpiredException(t *testing.T) {
	p := newPipeline(t, exceptedKEVPolicy)

	rep, err := p.Run(testGraph(t), Options{})
	require.NoError(t, err)

	require.Len(t, rep.Findings, 1)
	f := rep.Findings[0]
	assert.Equal(t, policy.ActionAllow, f.Action)
	require.NotNil(t, f.Exception)
	assert.Equal(t, "appsec-lead", f.Exception.Approver)
	assert.Equal(t, "egress filtered, upgrade scheduled", f.Exception.Justification)

	assert.True(t, rep.Pass)
	assert.Equal(t, report.ExitPass, rep.ExitCode())
}

func TestRunUnreachableDependencyScoresLower(t *testing.T) {
	baseline := newPipeline(t, blockKEVPolicy)
	rep1, err := baseline.Run(testGraph(t), Options{})
	require.NoError(t, err)

	reachDoc := `{"results": [{"namespace": "org.apache.logging.log4j", "name": "log4j-core", "version": "2.14.1", "reachable": false}]}`
	r, _, err := reach.Parse([]byte(reachDoc))
	require.NoError(t, err)

	marked := newPipeline(t, blockKEVPolicy)
	marked.Reach = r
	rep2, err := marked.Run(testGraph(t), Options{})
	require.NoError(t, err)

	w := score.DefaultConfig().Weights.Reachability
	assert.InDelta(t, rep1.Findings[0].Score-w*100, rep2.Findings[0].Score, 0.001)
}

func TestRunReusesSnapshot(t *testing.T) {
	store, err := cache.NewSQLiteStore(filepath.Join(t.TempDir(), "scan.db"))
	require.NoError(t, err)
	m := cache.NewManager(store, cache.Options{Logger: quiet, Clock: func() time.Time { return scanNow }})
	defer m.Close()

	p := newPipeline(t, blockKEVPolicy)
	p.Cache = m

	rep1, err := p.Run(testGraph(t), Options{})
	require.NoError(t, err)
	assert.False(t, rep1.FromCache)

	rep2, err := p.Run(testGraph(t), Options{})
	require.NoError(t, err)
	assert.True(t, rep2.FromCache)
	assert.Equal(t, rep1.Blocked, rep2.Blocked)
	assert.Equal(t, rep1.ExitCode(), rep2.ExitCode())
}

func TestRunForceRecomputes(t *testing.T) {
	store, err := cache.NewSQLiteStore(filepath.Join(t.TempDir(), "scan.db"))
	require.NoError(t, err)
	m := cache.NewManager(store, cache.Options{Logger: quiet, Clock: func() time.Time { return scanNow }})
	defer m.Close()

	p := newPipeline(t, blockKEVPolicy)
	p.Cache = m

	_, err = p.Run(testGraph(t), Options{})
	require.NoError(t, err)

	rep, err := p.Run(testGraph(t), Options{Force: true})
	require.NoError(t, err)
	assert.False(t, rep.FromCache)
}

func TestRunPolicyChangeInvalidatesSnapshot(t *testing.T) {
	store, err := cache.NewSQLiteStore(filepath.Join(t.TempDir(), "scan.db"))
	require.NoError(t, err)
	m := cache.NewManager(store, cache.Options{Logger: quiet, Clock: func() time.Time { return scanNow }})
	defer m.Close()

	p := newPipeline(t, blockKEVPolicy)
	p.Cache = m
	_, err = p.Run(testGraph(t), Options{})
	require.NoError(t, err)

	p2 := newPipeline(t, exceptedKEVPolicy)
	p2.Cache = m
	rep, err := p2.Run(testGraph(t), Options{})
	require.NoError(t, err)
	assert.False(t, rep.FromCache)
	assert.True(t, rep.Pass)
}

type fakeGit struct {
	changed []string
	err     error
	head    string
}

func (f *fakeGit) ChangedFiles(dir, sinceRef string) ([]string, error) {
	return f.changed, f.err
}

func (f *fakeGit) HeadSHA(dir string) (string, error) {
	if f.head == "" {
		return "deadbeef", nil
	}
	return f.head, nil
}

func newCachedPipeline(t *testing.T, policyDoc string) (*Pipeline, *cache.Manager) {
	t.Helper()
	store, err := cache.NewSQLiteStore(filepath.Join(t.TempDir(), "scan.db"))
	require.NoError(t, err)
	m := cache.NewManager(store, cache.Options{Logger: quiet, Clock: func() time.Time { return scanNow }})
	t.Cleanup(func() { m.Close() })

	p := newPipeline(t, policyDoc)
	p.Cache = m
	return p, m
}

func TestRunGateReusesSnapshotOnDisjointChanges(t *testing.T) {
	p, _ := newCachedPipeline(t, blockKEVPolicy)
	p.Git = &fakeGit{changed: []string{"src/main/java/App.java", "README.md"}}

	rep1, err := p.Run(testGraph(t), Options{Dir: ".", SinceRef: "abc123"})
	require.NoError(t, err)
	assert.False(t, rep1.FromCache)

	rep2, err := p.Run(testGraph(t), Options{Dir: ".", SinceRef: "abc123"})
	require.NoError(t, err)
	assert.True(t, rep2.FromCache)
	assert.Equal(t, rep1.ExitCode(), rep2.ExitCode())
}

func TestRunGateForcesRescanOnBuildFileChange(t *testing.T) {
	p, _ := newCachedPipeline(t, blockKEVPolicy)
	p.Git = &fakeGit{changed: []string{"pom.xml"}}

	_, err := p.Run(testGraph(t), Options{Dir: ".", SinceRef: "abc123"})
	require.NoError(t, err)

	// A changed build file invalidates the snapshot even though the key
	// is unchanged.
	rep, err := p.Run(testGraph(t), Options{Dir: ".", SinceRef: "abc123"})
	require.NoError(t, err)
	assert.False(t, rep.FromCache)
}

func TestRunGateDiffFailureRescans(t *testing.T) {
	p, _ := newCachedPipeline(t, blockKEVPolicy)
	p.Git = &fakeGit{err: fmt.Errorf("unknown revision")}

	_, err := p.Run(testGraph(t), Options{Dir: ".", SinceRef: "abc123"})
	require.NoError(t, err)

	rep, err := p.Run(testGraph(t), Options{Dir: ".", SinceRef: "abc123"})
	require.NoError(t, err)
	assert.False(t, rep.FromCache)
}

func TestRunRecordsScanRef(t *testing.T) {
	p, m := newCachedPipeline(t, blockKEVPolicy)
	p.Git = &fakeGit{changed: []string{"pom.xml"}, head: "0123456789abcdef"}

	graph := testGraph(t)
	_, err := p.Run(graph, Options{Dir: "."})
	require.NoError(t, err)

	key := model.ScanKey(graph.ContentHash(), p.Catalogue.Version(), p.Policies.Version(), p.Scoring.Version())
	snap, ok := m.Get(key)
	require.True(t, ok)
	assert.Equal(t, "0123456789abcdef", snap.ScanRef)
}

func TestRunLicensePolicyBlocks(t *testing.T) {
	const copyleftPolicy = `
layer: organization
rules:
  - name: block-copyleft
    action: block
    match:
      kind: license-set
      licenses: [GPL-3.0, AGPL-3.0]
`
	const licensedGraph = `{
  "nodes": [
    {
      "coordinate": {"namespace": "org.apache.logging.log4j", "name": "log4j-core", "version": "2.14.1", "ecosystem": "Maven"},
      "scope": "compile",
      "direct": true,
      "license": "GPL-3.0"
    }
  ]
}`
	graph, err := model.ParseGraph([]byte(licensedGraph))
	require.NoError(t, err)

	p := newPipeline(t, copyleftPolicy)
	rep, err := p.Run(graph, Options{})
	require.NoError(t, err)

	require.Len(t, rep.Findings, 1)
	assert.Equal(t, policy.ActionBlock, rep.Findings[0].Action)
	assert.Equal(t, "block-copyleft", rep.Findings[0].Rule)
	assert.Equal(t, report.ExitBlock, rep.ExitCode())

	// Without the license on the node the rule cannot match.
	p2 := newPipeline(t, copyleftPolicy)
	rep2, err := p2.Run(testGraph(t), Options{})
	require.NoError(t, err)
	assert.Equal(t, policy.ActionAllow, rep2.Findings[0].Action)
	assert.True(t, rep2.Pass)
}

func TestRunReachableTraceInExplanation(t *testing.T) {
	reachDoc := `{"results": [{"namespace": "org.apache.logging.log4j", "name": "log4j-core", "version": "2.14.1", "reachable": true, "trace": ["com.example.App#main"]}]}`
	r, _, err := reach.Parse([]byte(reachDoc))
	require.NoError(t, err)

	p := newPipeline(t, blockKEVPolicy)
	p.Reach = r
	rep, err := p.Run(testGraph(t), Options{})
	require.NoError(t, err)

	require.Len(t, rep.Findings, 1)
	assert.Contains(t, rep.Findings[0].Explanation, "reachable via com.example.App#main")
}

func TestRunCarriesExtraWarnings(t *testing.T) {
	p := newPipeline(t, blockKEVPolicy)

	rep, err := p.Run(testGraph(t), Options{Warnings: []model.Warning{{
		Stage: "reachability", Subject: "org.yaml:snakeyaml:1.29", Detail: "analyzer timed out, treated as reachable",
	}}})
	require.NoError(t, err)
	require.NotEmpty(t, rep.Warnings)
	assert.Equal(t, "reachability", rep.Warnings[0].Stage)
}
