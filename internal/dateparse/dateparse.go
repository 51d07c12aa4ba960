// Package dateparse resolves absolute and relative date expressions found
// in query text to concrete time.Time bounds, relative to a caller-supplied
// "now" so resolution stays deterministic under test.
package dateparse

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MonthDays is the fixed 30-day month approximation used for every relative
// "N month(s) ago" expression and for the timeline's last-month window.
// Must stay consistent between the query filter and the timeline engine
// per spec.md §9.
const MonthDays = 30

// BadDateError reports an expression dateparse could not resolve.
type BadDateError struct {
	Input string
}

func (e *BadDateError) Error() string {
	return fmt.Sprintf("dateparse: unparseable date expression %q", e.Input)
}

var absoluteLayouts = []string{
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Resolve parses expr relative to now, returning the concrete instant it
// names. Accepts ISO-8601 dates/datetimes, the named anchors "now",
// "today", "yesterday", "last week", and "last month", and quantified
// relative offsets "N <unit> ago" (unit singular or plural).
func Resolve(expr string, now time.Time) (time.Time, error) {
	s := strings.ToLower(strings.TrimSpace(expr))
	if s == "" {
		return time.Time{}, &BadDateError{Input: expr}
	}

	switch s {
	case "now":
		return now, nil
	case "today":
		return startOfDay(now), nil
	case "yesterday":
		return startOfDay(now).AddDate(0, 0, -1), nil
	case "last week":
		return now.AddDate(0, 0, -7), nil
	case "last month":
		return now.AddDate(0, 0, -MonthDays), nil
	}

	if t, ok := parseRelativeAgo(s, now); ok {
		return t, nil
	}

	for _, layout := range absoluteLayouts {
		if t, err := time.Parse(layout, strings.TrimSpace(expr)); err == nil {
			return t, nil
		}
	}

	return time.Time{}, &BadDateError{Input: expr}
}

// parseRelativeAgo matches "N {minute|hour|day|week|month}[s] ago".
func parseRelativeAgo(s string, now time.Time) (time.Time, bool) {
	fields := strings.Fields(s)
	if len(fields) != 3 || fields[2] != "ago" {
		return time.Time{}, false
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil || n < 0 {
		return time.Time{}, false
	}
	unit := strings.TrimSuffix(fields[1], "s")

	switch unit {
	case "minute":
		return now.Add(-time.Duration(n) * time.Minute), true
	case "hour":
		return now.Add(-time.Duration(n) * time.Hour), true
	case "day":
		return now.AddDate(0, 0, -n), true
	case "week":
		return now.AddDate(0, 0, -7*n), true
	case "month":
		return now.AddDate(0, 0, -MonthDays*n), true
	default:
		return time.Time{}, false
	}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
