package model

import "fmt"

// Warning is a data-integrity event recorded during a scan. Warnings never
// abort the pipeline; they are aggregated and surfaced with the verdict so
// callers can tell a clean pass from a pass with degraded inputs.
type Warning struct {
	Stage   string `json:"stage"`   // "advisory", "normalize", "reachability", ...
	Subject string `json:"subject"` // advisory id, coordinate, file path
	Detail  string `json:"detail"`
}

func (w Warning) String() string {
	return fmt.Sprintf("[%s] %s: %s", w.Stage, w.Subject, w.Detail)
}
