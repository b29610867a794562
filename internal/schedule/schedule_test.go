package schedule

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/seenimoa/fidcsim/internal/calendar"
	"github.com/seenimoa/fidcsim/pkg/models"
)

func d(y int, m time.Month, day int) time.Time {
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}

func newBuilder(t *testing.T, holidays ...time.Time) *Builder {
	t.Helper()
	return NewBuilder(calendar.New(holidays))
}

func TestGenerateMonthly(t *testing.T) {
	b := newBuilder(t)
	tl, err := b.Generate(Params{
		Start:      d(2024, 1, 31),
		Maturity:   d(2024, 7, 31),
		Frequency:  Monthly,
		Convention: models.ModifiedFollowing,
		DayCount:   models.DayCountAct360,
	})
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if tl.Len() != 6 {
		t.Fatalf("periods: got %d, want 6", tl.Len())
	}
	// Feb 29 2024 is a Thursday: EDATE clamping, no roll.
	if got := tl.Periods[0].End; !got.Equal(d(2024, 2, 29)) {
		t.Errorf("period 0 end: got %s", got.Format("2006-01-02"))
	}
	// Mar 31 2024 is a Sunday: modified following pays on Mar 29, accrual
	// runs to Mar 31.
	if got := tl.Periods[1].PaymentDate; !got.Equal(d(2024, 3, 29)) {
		t.Errorf("period 1 payment: got %s", got.Format("2006-01-02"))
	}
	if got := tl.Periods[1].End; !got.Equal(d(2024, 3, 31)) {
		t.Errorf("period 1 end: got %s", got.Format("2006-01-02"))
	}
	if got := tl.Periods[1].CalendarDays; got != 31 {
		t.Errorf("period 1 calendar days: got %d, want 31", got)
	}
	for i, p := range tl.Periods {
		if p.Index != i {
			t.Errorf("period %d: index %d", i, p.Index)
		}
		if i > 0 && !p.Start.Equal(tl.Periods[i-1].End) {
			t.Errorf("period %d: start %s != previous end %s", i, p.Start, tl.Periods[i-1].End)
		}
		want := float64(p.CalendarDays) / 360.0
		if math.Abs(p.Fraction-want) > 1e-12 {
			t.Errorf("period %d: fraction %v, want %v", i, p.Fraction, want)
		}
	}
	if !tl.Maturity().Equal(d(2024, 7, 31)) {
		t.Errorf("maturity: got %s", tl.Maturity())
	}
}

func TestGenerateStub(t *testing.T) {
	b := newBuilder(t)
	tl, err := b.Generate(Params{
		Start:      d(2024, 1, 15),
		Maturity:   d(2024, 8, 15),
		Frequency:  Quarterly,
		Convention: models.Unadjusted,
		DayCount:   models.DayCount30360,
	})
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if tl.Len() != 3 {
		t.Fatalf("periods: got %d, want 3", tl.Len())
	}
	if got := tl.Periods[2].Fraction; math.Abs(got-30.0/360.0) > 1e-12 {
		t.Errorf("stub fraction: got %v", got)
	}
}

func TestGenerateBusinessDays(t *testing.T) {
	b := newBuilder(t, d(2024, 2, 12), d(2024, 2, 13))
	tl, err := b.Generate(Params{
		Start:      d(2024, 2, 1),
		Maturity:   d(2024, 3, 1),
		Frequency:  Monthly,
		Convention: models.Following,
		DayCount:   models.DayCountBus252,
	})
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	// Feb 2024: 21 weekdays in (Feb 1, Mar 1], minus two carnival days.
	if got := tl.Periods[0].BusinessDays; got != 19 {
		t.Errorf("business days: got %d, want 19", got)
	}
	if got := tl.Periods[0].Fraction; math.Abs(got-19.0/252.0) > 1e-12 {
		t.Errorf("fraction: got %v", got)
	}
}

func TestFromDatesRollsPaymentOnly(t *testing.T) {
	// Jun 1 2024 is a Saturday, Jul 1 a Monday.
	b := newBuilder(t)
	tl, err := b.FromDates([]time.Time{d(2024, 5, 1), d(2024, 6, 1), d(2024, 7, 1)}, models.Following, models.DayCountAct360)
	if err != nil {
		t.Fatalf("FromDates: %v", err)
	}
	first, second := tl.Periods[0], tl.Periods[1]
	if !first.End.Equal(d(2024, 6, 1)) || !first.PaymentDate.Equal(d(2024, 6, 3)) {
		t.Errorf("period 0: end %s payment %s", first.End.Format("2006-01-02"), first.PaymentDate.Format("2006-01-02"))
	}
	if !second.Start.Equal(d(2024, 6, 1)) {
		t.Errorf("period 1 start: got %s, want nominal Jun 1", second.Start.Format("2006-01-02"))
	}
	if math.Abs(first.Fraction-31.0/360.0) > 1e-12 || math.Abs(second.Fraction-30.0/360.0) > 1e-12 {
		t.Errorf("fractions: got %v and %v", first.Fraction, second.Fraction)
	}
	if !second.End.Equal(second.PaymentDate) {
		t.Errorf("period 1: business-day end %s paid on %s", second.End, second.PaymentDate)
	}
}

func TestGenerateErrors(t *testing.T) {
	b := newBuilder(t)
	_, err := b.Generate(Params{Start: d(2024, 5, 1), Maturity: d(2024, 5, 1), Frequency: Monthly, DayCount: models.DayCountAct360})
	if !errors.Is(err, models.ErrInvalidDateRange) {
		t.Errorf("maturity == start: got %v", err)
	}
	_, err = b.Generate(Params{Start: d(2024, 5, 1), Maturity: d(2024, 9, 1), Frequency: 0, DayCount: models.DayCountAct360})
	if !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("zero frequency: got %v", err)
	}
	_, err = b.FromDates([]time.Time{d(2024, 1, 1)}, models.Following, models.DayCountAct360)
	if !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("single date: got %v", err)
	}
	_, err = b.FromDates([]time.Time{d(2024, 1, 1), d(2024, 2, 1), d(2024, 2, 1)}, models.Unadjusted, models.DayCountAct360)
	if !errors.Is(err, models.ErrInvalidDateRange) {
		t.Errorf("repeated date: got %v", err)
	}
	// Sat Jan 6 and Sun Jan 7 both pay on Mon Jan 8.
	_, err = b.FromDates([]time.Time{d(2024, 1, 1), d(2024, 1, 6), d(2024, 1, 7)}, models.Following, models.DayCountAct360)
	if !errors.Is(err, models.ErrInvalidDateRange) {
		t.Errorf("collapsing dates: got %v", err)
	}
}

func TestParseFrequency(t *testing.T) {
	tests := []struct {
		in   string
		want Frequency
	}{
		{"monthly", Monthly},
		{"", Monthly},
		{"Quarterly", Quarterly},
		{"semiannual", Semiannual},
		{"annual", Annual},
		{"2m", 2},
	}
	for _, tt := range tests {
		got, err := ParseFrequency(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseFrequency(%q) = %d, %v; want %d", tt.in, got, err, tt.want)
		}
	}
	if _, err := ParseFrequency("fortnightly"); err == nil {
		t.Error("expected error for fortnightly")
	}
}
