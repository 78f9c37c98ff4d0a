package model

import (
	"fmt"
	"strings"
)

// Scope is the build scope a dependency is resolved under.
type Scope string

const (
	ScopeCompile  Scope = "compile"
	ScopeRuntime  Scope = "runtime"
	ScopeTest     Scope = "test"
	ScopeProvided Scope = "provided"
)

// ParseScope maps an extractor-reported scope string onto a known Scope.
// Unknown scopes default to compile, the most conservative choice.
func ParseScope(s string) Scope {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "runtime":
		return ScopeRuntime
	case "test":
		return ScopeTest
	case "provided":
		return ScopeProvided
	default:
		return ScopeCompile
	}
}

// Coordinate identifies a resolved package.
type Coordinate struct {
	Namespace string `json:"namespace"` // Maven groupId, sbt organization, ...
	Name      string `json:"name"`
	Version   string `json:"version"`
	Ecosystem string `json:"ecosystem"` // "Maven" for all JVM build systems
}

// String renders the coordinate in groupId:artifactId:version form.
func (c Coordinate) String() string {
	if c.Namespace == "" {
		return c.Name + ":" + c.Version
	}
	return c.Namespace + ":" + c.Name + ":" + c.Version
}

// Key identifies the package independent of version.
func (c Coordinate) Key() string {
	return c.Ecosystem + "/" + c.Namespace + ":" + c.Name
}

// Dependency is one resolved node of the dependency graph. Produced by a
// build-system extractor; immutable within a scan.
type Dependency struct {
	Coordinate Coordinate `json:"coordinate"`
	Scope      Scope      `json:"scope"`
	Direct     bool       `json:"direct"`
	License    string     `json:"license,omitempty"` // SPDX identifier when the extractor resolved one
	PathToRoot []string   `json:"path_to_root,omitempty"`
}

// Edge is one parent→child relation in the graph.
type Edge struct {
	Parent string `json:"parent"` // Coordinate.String() of the parent
	Child  string `json:"child"`
}

// Graph is the resolved dependency graph for one project at one commit.
type Graph struct {
	Nodes []Dependency `json:"nodes"`
	Edges []Edge       `json:"edges"`

	byKey map[string][]Dependency
}

// NewGraph builds a graph with its lookup index populated.
func NewGraph(nodes []Dependency, edges []Edge) *Graph {
	g := &Graph{Nodes: nodes, Edges: edges}
	g.reindex()
	return g
}

func (g *Graph) reindex() {
	g.byKey = make(map[string][]Dependency, len(g.Nodes))
	for _, d := range g.Nodes {
		k := d.Coordinate.Key()
		g.byKey[k] = append(g.byKey[k], d)
	}
}

// Lookup returns all resolved dependencies for a package key, any version.
func (g *Graph) Lookup(key string) []Dependency {
	if g.byKey == nil {
		g.reindex()
	}
	return g.byKey[key]
}

// Find returns the dependency with the exact coordinate, if present.
func (g *Graph) Find(c Coordinate) (Dependency, bool) {
	for _, d := range g.Lookup(c.Key()) {
		if d.Coordinate == c {
			return d, true
		}
	}
	return Dependency{}, false
}

func (d Dependency) String() string {
	kind := "transitive"
	if d.Direct {
		kind = "direct"
	}
	return fmt.Sprintf("%s (%s, %s)", d.Coordinate, d.Scope, kind)
}
