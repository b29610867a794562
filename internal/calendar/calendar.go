// Package calendar resolves business days against a holiday set and turns
// date intervals into day-count fractions.
//
// A Calendar is immutable after New: it is safe to share between
// concurrent simulation runs.
package calendar

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/seenimoa/fidcsim/pkg/models"
)

const dateKey = "2006-01-02"

// Calendar is a weekend + holiday business-day calendar.
type Calendar struct {
	holidays map[string]struct{}
	sorted   []time.Time
}

// New builds a calendar from a holiday list. Duplicates and time-of-day
// components are ignored.
func New(holidays []time.Time) *Calendar {
	c := &Calendar{holidays: make(map[string]struct{}, len(holidays))}
	for _, h := range holidays {
		d := Civil(h)
		key := d.Format(dateKey)
		if _, dup := c.holidays[key]; dup {
			continue
		}
		c.holidays[key] = struct{}{}
		c.sorted = append(c.sorted, d)
	}
	sort.Slice(c.sorted, func(i, j int) bool { return c.sorted[i].Before(c.sorted[j]) })
	return c
}

// Civil truncates t to its calendar date at UTC midnight.
func Civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Holidays returns a sorted copy of the holiday set.
func (c *Calendar) Holidays() []time.Time {
	out := make([]time.Time, len(c.sorted))
	copy(out, c.sorted)
	return out
}

// IsHoliday reports whether t is in the holiday set.
func (c *Calendar) IsHoliday(t time.Time) bool {
	_, ok := c.holidays[t.Format(dateKey)]
	return ok
}

// IsBusinessDay checks weekends and the holiday set.
func (c *Calendar) IsBusinessDay(t time.Time) bool {
	if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		return false
	}
	return !c.IsHoliday(t)
}

// Shift rolls t onto a business day. Modified following falls back to
// preceding when rolling forward would leave the month.
func (c *Calendar) Shift(t time.Time, conv models.BusinessDayConvention) time.Time {
	t = Civil(t)
	switch conv {
	case models.Unadjusted:
		return t
	case models.Preceding:
		return c.preceding(t)
	case models.ModifiedFollowing:
		adjusted := c.following(t)
		if adjusted.Month() != t.Month() {
			return c.preceding(t)
		}
		return adjusted
	default:
		return c.following(t)
	}
}

func (c *Calendar) following(t time.Time) time.Time {
	for !c.IsBusinessDay(t) {
		t = t.AddDate(0, 0, 1)
	}
	return t
}

func (c *Calendar) preceding(t time.Time) time.Time {
	for !c.IsBusinessDay(t) {
		t = t.AddDate(0, 0, -1)
	}
	return t
}

// AddBusinessDays advances n business days (n can be negative).
func (c *Calendar) AddBusinessDays(t time.Time, n int) time.Time {
	t = Civil(t)
	step := 1
	if n < 0 {
		step = -1
	}
	for n != 0 {
		t = t.AddDate(0, 0, step)
		if c.IsBusinessDay(t) {
			n -= step
		}
	}
	return t
}

// BusinessDaysBetween counts business days in (a, b]. It is the DU count
// between two dates and is negative when b is before a.
func (c *Calendar) BusinessDaysBetween(a, b time.Time) int {
	a, b = Civil(a), Civil(b)
	sign := 1
	if b.Before(a) {
		a, b = b, a
		sign = -1
	}
	count := 0
	for d := a.AddDate(0, 0, 1); !d.After(b); d = d.AddDate(0, 0, 1) {
		if c.IsBusinessDay(d) {
			count++
		}
	}
	return sign * count
}

// DayCount returns the year fraction of [a, b] under the convention.
func (c *Calendar) DayCount(a, b time.Time, dc models.DayCount) (float64, error) {
	a, b = Civil(a), Civil(b)
	if b.Before(a) {
		return 0, models.DateRangeError("day count end %s before start %s", b.Format(dateKey), a.Format(dateKey))
	}
	switch dc {
	case models.DayCountBus252:
		return float64(c.BusinessDaysBetween(a, b)) / 252.0, nil
	case models.DayCountAct360:
		return CalendarDays(a, b) / 360.0, nil
	case models.DayCountAct365F:
		return CalendarDays(a, b) / 365.0, nil
	case models.DayCount30360:
		// 30E/360: D1 and D2 are capped at 30
		d1 := a.Day()
		if d1 > 30 {
			d1 = 30
		}
		d2 := b.Day()
		if d2 > 30 {
			d2 = 30
		}
		y1, m1 := a.Year(), int(a.Month())
		y2, m2 := b.Year(), int(b.Month())
		return float64(360*(y2-y1)+30*(m2-m1)+(d2-d1)) / 360.0, nil
	default:
		return 0, fmt.Errorf("%w: unsupported day count %q", models.ErrInvalidInput, dc)
	}
}

// CalendarDays returns the number of calendar days from a to b.
func CalendarDays(a, b time.Time) float64 {
	return float64(int(Civil(b).Sub(Civil(a)).Hours() / 24))
}

// ParseDayCount maps a user-facing label to a convention.
func ParseDayCount(s string) (models.DayCount, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUS/252", "DU/252", "BUS252":
		return models.DayCountBus252, nil
	case "ACT/360":
		return models.DayCountAct360, nil
	case "ACT/365F", "ACT/365":
		return models.DayCountAct365F, nil
	case "30/360", "30E/360":
		return models.DayCount30360, nil
	}
	return "", fmt.Errorf("%w: unknown day count %q", models.ErrInvalidInput, s)
}

// ParseConvention maps a user-facing label to a business-day convention.
func ParseConvention(s string) (models.BusinessDayConvention, error) {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "-", "_")) {
	case "following", "f":
		return models.Following, nil
	case "preceding", "p":
		return models.Preceding, nil
	case "modified_following", "mf":
		return models.ModifiedFollowing, nil
	case "unadjusted", "none":
		return models.Unadjusted, nil
	}
	return "", fmt.Errorf("%w: unknown business-day convention %q", models.ErrInvalidInput, s)
}
