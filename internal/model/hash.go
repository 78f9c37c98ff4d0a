package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// ContentHash returns a deterministic hash of the graph. Node and edge order
// as reported by the extractor does not influence the result, so the same
// commit always hashes the same regardless of resolver iteration order.
func (g *Graph) ContentHash() string {
	lines := make([]string, 0, len(g.Nodes)+len(g.Edges))
	for _, d := range g.Nodes {
		lines = append(lines, fmt.Sprintf("n|%s|%s|%t|%s|%s",
			d.Coordinate, d.Scope, d.Direct, d.License, strings.Join(d.PathToRoot, ">")))
	}
	for _, e := range g.Edges {
		lines = append(lines, "e|"+e.Parent+"|"+e.Child)
	}
	sort.Strings(lines)

	h := sha256.New()
	for _, l := range lines {
		h.Write([]byte(l))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ScanKey derives the cache key for one pipeline invocation from everything
// that can change its outcome.
func ScanKey(graphHash, catalogueVersion, policyVersion, scorerVersion string) string {
	h := sha256.New()
	for _, part := range []string{graphHash, catalogueVersion, policyVersion, scorerVersion} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
