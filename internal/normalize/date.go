// Package normalize converts raw statement text into canonical values.
//
// None of the functions here return errors: unparseable input degrades to a
// zero value that callers treat as "skip this row".
package normalize

import (
	"strings"
	"time"
)

// primaryDateLayouts are tried first, in order: DD/MM/YYYY, YYYY-MM-DD, DD-MM-YYYY.
var primaryDateLayouts = []string{
	"2/1/2006",
	"2006-1-2",
	"2-1-2006",
}

// fallbackDateLayouts cover the generic formats seen in bank exports.
var fallbackDateLayouts = []string{
	"1/2/2006",
	"2/1/06",
	"1/2/06",
	"2006/1/2",
	"2.1.2006",
	"2 Jan 2006",
	"2 January 2006",
	"2-Jan-2006",
	"2-Jan-06",
	"2 Jan 06",
	"Jan 2, 2006",
	"January 2, 2006",
	"Jan 2 2006",
	"Mon, 2 Jan 2006",
	"Mon Jan 2 2006",
	"20060102",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

const (
	minYear = 1900
	maxYear = 2200
)

// ParseDate parses a statement date. It returns ok=false when no layout matches
// or the result is not a valid calendar date; it never panics.
func ParseDate(text string) (time.Time, bool) {
	s := strings.TrimSpace(text)
	if s == "" {
		return time.Time{}, false
	}
	s = strings.Join(strings.Fields(s), " ")

	for _, layout := range primaryDateLayouts {
		if t, ok := tryLayout(layout, s); ok {
			return t, true
		}
	}
	for _, layout := range fallbackDateLayouts {
		if t, ok := tryLayout(layout, s); ok {
			return t, true
		}
	}

	return time.Time{}, false
}

func tryLayout(layout, s string) (time.Time, bool) {
	t, err := time.Parse(layout, s)
	if err != nil {
		return time.Time{}, false
	}
	if t.Year() < minYear || t.Year() > maxYear {
		return time.Time{}, false
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
}

// LooksLikeDate is a cheap check used by table detection before ParseDate.
func LooksLikeDate(text string) bool {
	_, ok := ParseDate(text)
	return ok
}
