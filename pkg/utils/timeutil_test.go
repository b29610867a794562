package utils

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestAddMonths(t *testing.T) {
	tests := []struct {
		name   string
		from   time.Time
		months int
		want   time.Time
	}{
		{"plain", date(2024, 1, 15), 1, date(2024, 2, 15)},
		{"clamp leap", date(2024, 1, 31), 1, date(2024, 2, 29)},
		{"clamp non leap", date(2023, 1, 31), 1, date(2023, 2, 28)},
		{"year roll", date(2024, 11, 30), 3, date(2025, 2, 28)},
		{"backwards", date(2024, 3, 31), -1, date(2024, 2, 29)},
		{"zero", date(2024, 5, 5), 0, date(2024, 5, 5)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AddMonths(tt.from, tt.months); !got.Equal(tt.want) {
				t.Errorf("AddMonths(%s, %d) = %s, want %s", FormatDate(tt.from), tt.months, FormatDate(got), FormatDate(tt.want))
			}
		})
	}
}

func TestParseDate(t *testing.T) {
	got, err := ParseDate(" 2024-07-01 ")
	if err != nil || !got.Equal(date(2024, 7, 1)) {
		t.Errorf("ParseDate = %v, %v", got, err)
	}
	got, err = ParseDate("2024-07-01T15:04:05-03:00")
	if err != nil || !got.Equal(date(2024, 7, 1)) {
		t.Errorf("ParseDate(rfc3339) = %v, %v", got, err)
	}
	if _, err := ParseDate("01/07/2024"); err == nil {
		t.Error("expected error for dd/mm/yyyy")
	}
}

func TestEndOfMonth(t *testing.T) {
	if got := EndOfMonth(date(2024, 2, 10)); !got.Equal(date(2024, 2, 29)) {
		t.Errorf("EndOfMonth = %s", FormatDate(got))
	}
	if got := EndOfMonth(date(2024, 12, 1)); !got.Equal(date(2024, 12, 31)) {
		t.Errorf("EndOfMonth = %s", FormatDate(got))
	}
}

func TestToday(t *testing.T) {
	today := Today()
	if today.Hour() != 0 || today.Location() != time.UTC {
		t.Errorf("Today() = %v, want UTC midnight", today)
	}
}
