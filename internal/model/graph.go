package model

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadGraph reads an extractor-produced dependency graph document.
func LoadGraph(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dependency graph: %w", err)
	}
	return ParseGraph(data)
}

// ParseGraph decodes a dependency graph document.
func ParseGraph(data []byte) (*Graph, error) {
	var g Graph
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("failed to decode dependency graph: %w", err)
	}
	if len(g.Nodes) == 0 {
		return nil, fmt.Errorf("dependency graph has no nodes")
	}
	for i, d := range g.Nodes {
		if d.Coordinate.Name == "" || d.Coordinate.Version == "" {
			return nil, fmt.Errorf("graph node %d is missing name or version", i)
		}
		if d.Coordinate.Ecosystem == "" {
			g.Nodes[i].Coordinate.Ecosystem = "Maven"
		}
		if d.Scope == "" {
			g.Nodes[i].Scope = ScopeCompile
		}
	}
	g.reindex()
	return &g, nil
}
