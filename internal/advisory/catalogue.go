package advisory

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"depgate/internal/model"
)

// Adapter parses one source's fixed document schema into RawAdvisories.
// Malformed individual records are skipped with a warning; an adapter only
// errors when the document itself is undecodable.
type Adapter interface {
	Source() Source
	Parse(doc []byte) ([]RawAdvisory, []model.Warning, error)
}

// Catalogue is a versioned, immutable snapshot of all loaded advisory data.
// It is passed explicitly through the pipeline; there is no ambient global,
// so concurrent scans can hold different catalogue snapshots.
type Catalogue struct {
	raws     []RawAdvisory
	kev      map[string]KEVEntry
	epss     map[string]EPSSEntry
	warnings []model.Warning
	version  string
}

// Builder accumulates source documents into a Catalogue.
type Builder struct {
	cat  Catalogue
	hash [][]byte
}

// NewBuilder returns an empty catalogue builder.
func NewBuilder() *Builder {
	return &Builder{cat: Catalogue{
		kev:  make(map[string]KEVEntry),
		epss: make(map[string]EPSSEntry),
	}}
}

// AddAdvisories parses doc with the adapter and records its advisories.
func (b *Builder) AddAdvisories(a Adapter, doc []byte) error {
	raws, warns, err := a.Parse(doc)
	if err != nil {
		return fmt.Errorf("failed to parse %s document: %w", a.Source(), err)
	}
	b.cat.raws = append(b.cat.raws, raws...)
	b.cat.warnings = append(b.cat.warnings, warns...)
	b.digest(string(a.Source()), doc)
	return nil
}

// AddKEV parses a CISA KEV catalogue document.
func (b *Builder) AddKEV(doc []byte) error {
	entries, warns, err := ParseKEV(doc)
	if err != nil {
		return fmt.Errorf("failed to parse KEV catalogue: %w", err)
	}
	for _, e := range entries {
		b.cat.kev[e.CVEID] = e
	}
	b.cat.warnings = append(b.cat.warnings, warns...)
	b.digest("kev", doc)
	return nil
}

// AddEPSS parses an EPSS feed document.
func (b *Builder) AddEPSS(doc []byte) error {
	entries, warns, err := ParseEPSS(doc)
	if err != nil {
		return fmt.Errorf("failed to parse EPSS feed: %w", err)
	}
	for _, e := range entries {
		b.cat.epss[e.CVE] = e
	}
	b.cat.warnings = append(b.cat.warnings, warns...)
	b.digest("epss", doc)
	return nil
}

func (b *Builder) digest(label string, doc []byte) {
	h := sha256.Sum256(append([]byte(label+"\x00"), doc...))
	b.hash = append(b.hash, h[:])
}

// Build finalizes the catalogue. The version hash covers every document in
// load-order-independent form so equal content yields an equal version.
func (b *Builder) Build() *Catalogue {
	digests := make([]string, len(b.hash))
	for i, h := range b.hash {
		digests[i] = hex.EncodeToString(h)
	}
	sort.Strings(digests)
	sum := sha256.Sum256([]byte(strings.Join(digests, "\n")))
	b.cat.version = hex.EncodeToString(sum[:])
	cat := b.cat
	return &cat
}

// Version identifies this catalogue snapshot for cache keying.
func (c *Catalogue) Version() string { return c.version }

// Advisories returns all loaded raw advisories.
func (c *Catalogue) Advisories() []RawAdvisory { return c.raws }

// Warnings returns the load-time data-integrity warnings.
func (c *Catalogue) Warnings() []model.Warning { return c.warnings }

// KEV looks up a Known Exploited Vulnerabilities entry by CVE id.
func (c *Catalogue) KEV(cve string) (KEVEntry, bool) {
	e, ok := c.kev[cve]
	return e, ok
}

// EPSS looks up the exploit-prediction entry by CVE id.
func (c *Catalogue) EPSS(cve string) (EPSSEntry, bool) {
	e, ok := c.epss[cve]
	return e, ok
}

// sourceDirs maps offline-cache subdirectories to their handling.
var sourceDirs = map[string]Source{
	"osv":  SourceOSV,
	"nvd":  SourceNVD,
	"ghsa": SourceGHSA,
	"kev":  SourceKEV,
	"epss": SourceEPSS,
}

// LoadDir reads an offline advisory cache laid out as one subdirectory per
// source (osv/, nvd/, ghsa/, kev/, epss/), each holding that source's
// documents. Unknown subdirectories are ignored.
func LoadDir(root string) (*Catalogue, error) {
	b := NewBuilder()
	for dir, src := range sourceDirs {
		entries, err := os.ReadDir(filepath.Join(root, dir))
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read advisory cache %s: %w", dir, err)
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			if !e.IsDir() {
				names = append(names, e.Name())
			}
		}
		sort.Strings(names)
		for _, name := range names {
			doc, err := os.ReadFile(filepath.Join(root, dir, name))
			if err != nil {
				return nil, fmt.Errorf("failed to read advisory document %s/%s: %w", dir, name, err)
			}
			switch src {
			case SourceKEV:
				err = b.AddKEV(doc)
			case SourceEPSS:
				err = b.AddEPSS(doc)
			case SourceOSV:
				err = b.AddAdvisories(OSVAdapter{}, doc)
			case SourceNVD:
				err = b.AddAdvisories(NVDAdapter{}, doc)
			case SourceGHSA:
				err = b.AddAdvisories(GHSAAdapter{}, doc)
			}
			if err != nil {
				return nil, fmt.Errorf("advisory document %s/%s: %w", dir, name, err)
			}
		}
	}
	return b.Build(), nil
}
