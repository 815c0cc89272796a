// Package dateparse normalizes the heterogeneous expiry-date strings found on
// medicine bills and stock labels into calendar dates. It is the single date
// authority for the service: every expiry comparison goes through Parse so
// that all consumers agree on what a given label means.
package dateparse

import (
	"strings"
	"time"

	"github.com/lifetag/lifetag-backend/pkg/errors"
)

// formats is tried in order. The two-digit month-year form ("Aug-26") is the
// most common on printed labels.
var formats = []string{
	"2006-01-02",
	"02-01-2006",
	"Jan-06",
	"Jan-2006",
	"02-Jan-2006",
	"01/02/2006",
	"2006/01/02",
}

const twoDigitMonthYear = "Jan-06"

// Parse converts an expiry-date string into a date (midnight UTC).
// Unrecognized or blank input fails with an error wrapping errors.ErrParse.
func Parse(text string) (time.Time, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return time.Time{}, errors.ParseFailure(text)
	}

	for _, layout := range formats {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		if layout == twoDigitMonthYear {
			t = applyCenturyRule(t)
		}
		return t, nil
	}

	// Fallback: split on "-", "/" or space and retry the first two tokens as
	// month-year. Catches inputs like "Aug 26" or "Aug/26/whatever".
	norm := strings.NewReplacer("/", "-", " ", "-").Replace(s)
	parts := strings.Split(norm, "-")
	if len(parts) >= 2 {
		t, err := time.Parse(twoDigitMonthYear, parts[0]+"-"+parts[1])
		if err == nil {
			return applyCenturyRule(t), nil
		}
	}

	return time.Time{}, errors.ParseFailure(text)
}

// applyCenturyRule nudges two-digit years into the right century: a parsed
// year before 1970 belongs 100 years later ("Aug-26" is 2026, not 1926).
func applyCenturyRule(t time.Time) time.Time {
	if t.Year() < 1970 {
		return t.AddDate(100, 0, 0)
	}
	return t
}

// DaysUntil returns the whole number of calendar days from today (per now)
// until the given expiry date. Negative for past dates.
func DaysUntil(expiry time.Time, now time.Time) int {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	exp := time.Date(expiry.Year(), expiry.Month(), expiry.Day(), 0, 0, 0, 0, time.UTC)
	return int(exp.Sub(today).Hours() / 24)
}
