// Package reach ingests the report the external bytecode reachability
// analyzer produces before this core runs.
package reach

import (
	"encoding/json"
	"fmt"
	"os"

	"depgate/internal/model"
)

type document struct {
	Results []struct {
		Namespace string   `json:"namespace"`
		Name      string   `json:"name"`
		Version   string   `json:"version"`
		Reachable bool     `json:"reachable"`
		Trace     []string `json:"trace,omitempty"`
	} `json:"results"`
	Timeouts []string `json:"timeouts,omitempty"` // coordinates the analyzer gave up on
}

// Report holds per-dependency reachability results. Dependencies without a
// result are Unknown and treated conservatively as reachable.
type Report struct {
	results map[string]model.Reachability
	traces  map[string][]string
}

// Empty returns a report with no results; everything is Unknown.
func Empty() *Report {
	return &Report{
		results: map[string]model.Reachability{},
		traces:  map[string][]string{},
	}
}

// Parse decodes an analyzer report document. Analyzer timeouts become
// data-integrity warnings, with the affected dependencies left Unknown.
func Parse(doc []byte) (*Report, []model.Warning, error) {
	var d document
	if err := json.Unmarshal(doc, &d); err != nil {
		return nil, nil, fmt.Errorf("failed to decode reachability report: %w", err)
	}

	r := Empty()
	var warns []model.Warning
	for _, res := range d.Results {
		coord := model.Coordinate{Namespace: res.Namespace, Name: res.Name, Version: res.Version}
		key := coord.String()
		if res.Reachable {
			r.results[key] = model.ReachabilityReachable
		} else {
			r.results[key] = model.ReachabilityUnreachable
		}
		if len(res.Trace) > 0 {
			r.traces[key] = res.Trace
		}
	}
	for _, coord := range d.Timeouts {
		warns = append(warns, model.Warning{
			Stage:   "reachability",
			Subject: coord,
			Detail:  "analyzer timed out, treated as reachable",
		})
	}
	return r, warns, nil
}

// Load reads an analyzer report file. A missing file is not an error: the
// analyzer is optional and absence means everything is Unknown.
func Load(path string) (*Report, []model.Warning, error) {
	if path == "" {
		return Empty(), nil, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Empty(), []model.Warning{{
			Stage:   "reachability",
			Subject: path,
			Detail:  "reachability report not found, all dependencies treated as reachable",
		}}, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read reachability report: %w", err)
	}
	return Parse(data)
}

// For returns the reachability of a dependency coordinate.
func (r *Report) For(c model.Coordinate) model.Reachability {
	if v, ok := r.results[c.String()]; ok {
		return v
	}
	return model.ReachabilityUnknown
}

// Trace returns the invocation trace for a reachable dependency, if the
// analyzer recorded one.
func (r *Report) Trace(c model.Coordinate) []string {
	return r.traces[c.String()]
}
