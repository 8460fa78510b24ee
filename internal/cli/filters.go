package cli

import (
	"fmt"
	"strings"

	"datakit/internal/store"
)

// parseFilters converts key=value flag strings into a filter map.
//
//	source=human          exact or substring match (typed per field)
//	ageGroup=20s,30s      any of the listed values
//	createdAt=2024-01-01..2024-06-30   inclusive range (either bound optional)
func parseFilters(raw []string) (store.Filters, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	filters := make(store.Filters, len(raw))
	for _, entry := range raw {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid filter %q: expected key=value", entry)
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch {
		case strings.Contains(value, ".."):
			from, to, _ := strings.Cut(value, "..")
			filters[key] = store.Range{From: strings.TrimSpace(from), To: strings.TrimSpace(to)}
		case strings.Contains(value, ","):
			parts := strings.Split(value, ",")
			values := make([]string, 0, len(parts))
			for _, p := range parts {
				if p = strings.TrimSpace(p); p != "" {
					values = append(values, p)
				}
			}
			filters[key] = values
		default:
			filters[key] = value
		}
	}
	return filters, nil
}
