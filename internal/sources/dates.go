package sources

import (
	"strconv"
	"strings"
	"time"
)

// dateLayouts lists the timestamp shapes providers are known to send,
// most precise first.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006 Jan 2",
	"2006 Jan",
	"2006-01",
	"2006",
}

// ParseDate parses a provider timestamp in any of the known layouts and
// returns it in UTC. It returns nil for empty or unrecognized input.
func ParseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	// PubMed sometimes sends season or range suffixes ("2024 Jan-Feb", "2023 Spring").
	if fields := strings.Fields(s); len(fields) > 1 {
		if candidate := fields[0] + " " + strings.SplitN(fields[1], "-", 2)[0]; candidate != s {
			if t := ParseDate(candidate); t != nil {
				return t
			}
		}
		return ParseDate(fields[0])
	}
	return nil
}

// ParseYearMonth builds a date from separate year and month strings, as DOAJ
// sends them. A missing or invalid month falls back to January.
func ParseYearMonth(year, month string) *time.Time {
	y, err := strconv.Atoi(strings.TrimSpace(year))
	if err != nil || y <= 0 {
		return nil
	}
	m, err := strconv.Atoi(strings.TrimSpace(month))
	if err != nil || m < 1 || m > 12 {
		m = 1
	}
	t := time.Date(y, time.Month(m), 1, 0, 0, 0, 0, time.UTC)
	return &t
}
