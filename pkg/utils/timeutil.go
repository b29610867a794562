package utils

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire format of every date in bundles and API payloads.
const DateLayout = "2006-01-02"

// SaoPaulo is the B3 market location. Dates are stored as UTC civil dates;
// the location is only used to decide "today".
var SaoPaulo *time.Location

func init() {
	var err error
	SaoPaulo, err = time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		// Fallback: fixed zone if tz database is not available
		SaoPaulo = time.FixedZone("BRT", -3*60*60)
	}
}

// Today returns the current civil date in São Paulo at UTC midnight.
func Today() time.Time {
	now := time.Now().In(SaoPaulo)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD date. A RFC 3339 timestamp is accepted and
// truncated to its date.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: expected YYYY-MM-DD", s)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

// FormatDate renders t in DateLayout.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// AddMonths behaves like a spreadsheet EDATE: the day of month is kept and
// clamped to the last day of the target month (Jan 31 + 1 → Feb 28/29).
func AddMonths(t time.Time, months int) time.Time {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, months, 0)
	last := EndOfMonth(first).Day()
	day := t.Day()
	if day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
}

// EndOfMonth returns the last calendar day of t's month.
func EndOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
}
