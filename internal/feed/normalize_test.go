package feed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseDate(t *testing.T) {
	loc := time.UTC
	day := func(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, loc) }

	tests := []struct {
		name string
		in   string
		want time.Time
		ok   bool
	}{
		{"short year", "16/2/26", day(2026, 2, 16), true},
		{"short year padded", "01/09/25", day(2025, 9, 1), true},
		{"short year below boundary", "1/1/49", day(2049, 1, 1), true},
		{"short year at boundary", "1/1/50", day(1950, 1, 1), true},
		{"short year 99", "31/12/99", day(1999, 12, 31), true},
		{"long year", "16/02/2026", day(2026, 2, 16), true},
		{"iso", "2026-02-16", day(2026, 2, 16), true},
		{"iso unpadded", "2026-2-6", day(2026, 2, 6), true},
		{"gviz literal", "Date(2026,1,16)", day(2026, 2, 16), true},
		{"named month", "February 16, 2026", day(2026, 2, 16), true},
		{"surrounding space", "  16/2/26 ", day(2026, 2, 16), true},
		{"impossible day", "31/2/26", time.Time{}, false},
		{"impossible iso", "2026-13-01", time.Time{}, false},
		{"garbage", "not-a-date", time.Time{}, false},
		{"empty", "", time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseDate(tt.in, loc)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.True(t, tt.want.Equal(got), "got %v want %v", got, tt.want)
				assert.Equal(t, loc, got.Location())
			}
		})
	}
}

func TestParseDateFormsAgree(t *testing.T) {
	a, okA := ParseDate("16/2/26", time.UTC)
	b, okB := ParseDate("2026-02-16", time.UTC)
	assert.True(t, okA)
	assert.True(t, okB)
	assert.True(t, a.Equal(b))
}

func TestParseDateUsesLocationMidnight(t *testing.T) {
	loc := time.FixedZone("UTC+13", 13*3600)
	got, ok := ParseDate("16/2/26", loc)
	assert.True(t, ok)
	assert.Equal(t, 16, got.Day())
	assert.Equal(t, 0, got.Hour())
	assert.Equal(t, loc, got.Location())
}

func TestExpandYear(t *testing.T) {
	assert.Equal(t, 2025, expandYear(25))
	assert.Equal(t, 2000, expandYear(0))
	assert.Equal(t, 2049, expandYear(49))
	assert.Equal(t, 1950, expandYear(50))
	assert.Equal(t, 1999, expandYear(99))
}

func TestNormalizeTime(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"09:30", "09:30"},
		{" 9:30 ", "9:30"},
		{"0.5", "12:00"},
		{"0", "00:00"},
		{"0.0", "00:00"},
		{"0.375", "09:00"},
		{"0.75", "18:00"},
		{"Day", "Day"},
		{"", ""},
		{"1.5", "1.5"},
		{"-0.1", "-0.1"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeTime(tt.in), tt.in)
	}
}

func TestFractionToClockCarriesMinutes(t *testing.T) {
	// 23:59:50 rounds up to a full hour.
	v := (23*3600 + 59*60 + 50) / 86400.0
	assert.Equal(t, "24:00", FractionToClock(v))
	assert.Equal(t, "12:00", FractionToClock(0.5))
	assert.Equal(t, "00:00", FractionToClock(0.0))
}
