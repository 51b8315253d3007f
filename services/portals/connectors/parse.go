// Package connectors implements one portal connector per supported
// institution. Each connector self-registers with the automation layer
// from init, so wiring a portal in is a blank import away.
package connectors

import (
	"strconv"
	"strings"
	"time"

	"portalsync-backend/lib/timezone"
)

// date layouts seen across the portals, tried in order
var dateLayouts = []string{
	"02/01/2006 15:04",
	"02/01/2006",
	"02-Jan-2006 15:04",
	"02-Jan-2006",
	"2006-01-02 15:04",
	"2006-01-02",
	"Jan 2, 2006",
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		t, err := time.ParseInLocation(layout, s, timezone.Location)
		if err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// parseNumber pulls a float out of strings like "₹ 42,500.00" or "87.5%".
func parseNumber(s string) (float64, bool) {
	cleaned := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' || r == '.' || r == '-' {
			return r
		}
		return -1
	}, s)
	if cleaned == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func parseInt(s string) (int, bool) {
	n, ok := parseNumber(s)
	if !ok {
		return 0, false
	}
	return int(n), true
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
