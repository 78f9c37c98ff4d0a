package advisory

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"depgate/internal/model"
)

// ParseEPSS decodes an EPSS feed document: CSV rows of cve,epss,percentile,
// optionally preceded by '#' comment lines carrying the model version.
func ParseEPSS(doc []byte) ([]EPSSEntry, []model.Warning, error) {
	var lines []string
	for _, line := range strings.Split(string(bytes.TrimSpace(doc)), "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}
		lines = append(lines, line)
	}
	r := csv.NewReader(strings.NewReader(strings.Join(lines, "\n")))
	r.FieldsPerRecord = -1

	var entries []EPSSEntry
	var warns []model.Warning
	row := 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read EPSS feed: %w", err)
		}
		row++
		if len(rec) < 2 {
			continue
		}
		cve := strings.TrimSpace(rec[0])
		if cve == "cve" { // header row
			continue
		}
		score, err := strconv.ParseFloat(strings.TrimSpace(rec[1]), 64)
		if err != nil || score < 0 || score > 1 {
			warns = append(warns, model.Warning{
				Stage:   "advisory",
				Subject: cve,
				Detail:  fmt.Sprintf("EPSS row %d has invalid score %q, skipped", row, rec[1]),
			})
			continue
		}
		entry := EPSSEntry{CVE: cve, Score: score}
		if len(rec) > 2 {
			if pct, err := strconv.ParseFloat(strings.TrimSpace(rec[2]), 64); err == nil {
				entry.Percentile = pct
			}
		}
		entries = append(entries, entry)
	}
	return entries, warns, nil
}
