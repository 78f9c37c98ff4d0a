package advisory

import (
	"encoding/json"
	"fmt"

	"depgate/internal/model"
)

type kevCatalogue struct {
	CatalogVersion  string     `json:"catalogVersion"`
	DateReleased    string     `json:"dateReleased"`
	Count           int        `json:"count"`
	Vulnerabilities []KEVEntry `json:"vulnerabilities"`
}

// ParseKEV decodes a CISA KEV catalogue document.
func ParseKEV(doc []byte) ([]KEVEntry, []model.Warning, error) {
	var cat kevCatalogue
	if err := json.Unmarshal(doc, &cat); err != nil {
		return nil, nil, fmt.Errorf("failed to decode KEV catalogue: %w", err)
	}
	var entries []KEVEntry
	var warns []model.Warning
	for i, e := range cat.Vulnerabilities {
		if e.CVEID == "" {
			warns = append(warns, model.Warning{
				Stage:   "advisory",
				Subject: fmt.Sprintf("KEV entry %d", i),
				Detail:  "entry has no cveID, skipped",
			})
			continue
		}
		entries = append(entries, e)
	}
	return entries, warns, nil
}
