package ingestion

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// nullTokens are textual placeholders that mean "no value".
var nullTokens = map[string]bool{
	"":     true,
	"nan":  true,
	"null": true,
	"none": true,
	"n/a":  true,
	"na":   true,
	"nat":  true,
	"-":    true,
}

// dateLayouts are tried in order. Slash and dash day/month forms are read
// day-first, matching Australian sale exports.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006/01/02",
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"2-1-2006",
	"02.01.2006",
	"02 Jan 2006",
	"2 Jan 2006",
	"2 January 2006",
	"Jan 2 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"20060102",
}

// isNullToken reports whether a trimmed cell should be treated as missing.
func isNullToken(s string) bool {
	return nullTokens[strings.ToLower(strings.TrimSpace(s))]
}

// cleanText trims s and returns nil for empty or placeholder values.
func cleanText(s string) *string {
	s = strings.TrimSpace(s)
	if isNullToken(s) {
		return nil
	}
	return &s
}

// parsePrice coerces a price cell. ok is false for missing, malformed,
// non-finite, or negative values.
func parsePrice(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if isNullToken(s) {
		return 0, false
	}
	s = strings.TrimPrefix(s, "$")
	s = strings.NewReplacer(",", "", " ", "").Replace(s)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, false
	}
	return v, true
}

// isPlainNumber reports whether s is already numeric without coercion.
func isPlainNumber(s string) bool {
	_, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return err == nil
}

// parseDate coerces a date cell to UTC midnight.
func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if isNullToken(s) {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

// isISODate reports whether s is already a YYYY-MM-DD date.
func isISODate(s string) bool {
	_, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	return err == nil
}
