// Package schedule builds the fixed period timeline of a simulation run.
package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/seenimoa/fidcsim/internal/calendar"
	"github.com/seenimoa/fidcsim/pkg/models"
	"github.com/seenimoa/fidcsim/pkg/utils"
)

// Frequency is the period length in months.
type Frequency int

const (
	Monthly    Frequency = 1
	Quarterly  Frequency = 3
	Semiannual Frequency = 6
	Annual     Frequency = 12
)

// ParseFrequency accepts the named frequencies or a month count ("2m").
func ParseFrequency(s string) (Frequency, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "monthly", "m", "1m":
		return Monthly, nil
	case "quarterly", "q", "3m":
		return Quarterly, nil
	case "semiannual", "semi-annual", "6m":
		return Semiannual, nil
	case "annual", "yearly", "y", "12m":
		return Annual, nil
	}
	var n int
	if _, err := fmt.Sscanf(strings.ToLower(s), "%dm", &n); err == nil && n > 0 {
		return Frequency(n), nil
	}
	return 0, fmt.Errorf("%w: unknown frequency %q", models.ErrInvalidInput, s)
}

// Params describes a generated timeline.
type Params struct {
	Start      time.Time
	Maturity   time.Time
	Frequency  Frequency
	Convention models.BusinessDayConvention
	DayCount   models.DayCount
}

// Builder turns timeline parameters into periods against one calendar.
type Builder struct {
	cal *calendar.Calendar
}

// NewBuilder creates a timeline builder.
func NewBuilder(cal *calendar.Calendar) *Builder {
	return &Builder{cal: cal}
}

// Generate rolls nominal dates forward from Start by Frequency months
// (end-of-month clamped) until Maturity. A final short stub ends at Maturity
// when the frequency does not divide the term.
func (b *Builder) Generate(p Params) (models.Timeline, error) {
	if p.Frequency <= 0 {
		return models.Timeline{}, fmt.Errorf("%w: frequency must be positive, got %d", models.ErrInvalidInput, p.Frequency)
	}
	start, maturity := calendar.Civil(p.Start), calendar.Civil(p.Maturity)
	if !maturity.After(start) {
		return models.Timeline{}, models.DateRangeError("maturity %s not after start %s",
			utils.FormatDate(maturity), utils.FormatDate(start))
	}

	nominal := []time.Time{start}
	for k := 1; ; k++ {
		next := utils.AddMonths(start, k*int(p.Frequency))
		if !next.Before(maturity) {
			break
		}
		nominal = append(nominal, next)
	}
	nominal = append(nominal, maturity)
	return b.FromDates(nominal, p.Convention, p.DayCount)
}

// FromDates builds a timeline from explicit boundary dates: n dates give
// n-1 periods. Periods accrue between the nominal dates; every boundary
// after the first is paid on the date rolled with the convention.
func (b *Builder) FromDates(dates []time.Time, conv models.BusinessDayConvention, dc models.DayCount) (models.Timeline, error) {
	if len(dates) < 2 {
		return models.Timeline{}, fmt.Errorf("%w: timeline needs at least two dates, got %d", models.ErrInvalidInput, len(dates))
	}
	bounds := make([]time.Time, len(dates))
	pay := make([]time.Time, len(dates))
	bounds[0] = calendar.Civil(dates[0])
	pay[0] = bounds[0]
	for i := 1; i < len(dates); i++ {
		bounds[i] = calendar.Civil(dates[i])
		if !bounds[i].After(bounds[i-1]) {
			return models.Timeline{}, models.DateRangeError("timeline date %s not after %s",
				utils.FormatDate(bounds[i]), utils.FormatDate(bounds[i-1]))
		}
		pay[i] = b.cal.Shift(bounds[i], conv)
		if !pay[i].After(pay[i-1]) {
			return models.Timeline{}, models.DateRangeError("payment date %s of %s not after %s",
				utils.FormatDate(pay[i]), utils.FormatDate(bounds[i]), utils.FormatDate(pay[i-1]))
		}
	}

	tl := models.Timeline{DayCount: dc, Periods: make([]models.Period, 0, len(bounds)-1)}
	for i := 0; i+1 < len(bounds); i++ {
		s, e := bounds[i], bounds[i+1]
		frac, err := b.cal.DayCount(s, e, dc)
		if err != nil {
			return models.Timeline{}, fmt.Errorf("period %d: %w", i, err)
		}
		tl.Periods = append(tl.Periods, models.Period{
			Index:        i,
			Start:        s,
			End:          e,
			PaymentDate:  pay[i+1],
			Fraction:     frac,
			BusinessDays: b.cal.BusinessDaysBetween(s, e),
			CalendarDays: int(calendar.CalendarDays(s, e)),
		})
	}
	return tl, nil
}
