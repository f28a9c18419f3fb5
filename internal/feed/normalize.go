package feed

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

var (
	reShortYear = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{2})$`)
	reLongYear  = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})$`)
	reISO       = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})$`)
	// Google Visualization date literal; month is zero-based.
	reGvizDate = regexp.MustCompile(`^Date\((\d{4}),\s*(\d{1,2}),\s*(\d{1,2})`)
)

// ParseDate reads a sheet date in loc and returns local midnight of that
// calendar day. Layouts are tried in order and the first one whose shape
// matches decides; a matching shape with an impossible date (31/2/26) fails
// rather than falling through.
func ParseDate(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.Local
	}

	if m := reShortYear.FindStringSubmatch(s); m != nil {
		return calendarDate(expandYear(atoi(m[3])), atoi(m[2]), atoi(m[1]), loc)
	}
	if m := reLongYear.FindStringSubmatch(s); m != nil {
		return calendarDate(atoi(m[3]), atoi(m[2]), atoi(m[1]), loc)
	}
	if m := reISO.FindStringSubmatch(s); m != nil {
		return calendarDate(atoi(m[1]), atoi(m[2]), atoi(m[3]), loc)
	}
	if m := reGvizDate.FindStringSubmatch(s); m != nil {
		return calendarDate(atoi(m[1]), atoi(m[2])+1, atoi(m[3]), loc)
	}

	t, err := dateparse.ParseIn(s, loc)
	if err != nil {
		return time.Time{}, false
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc), true
}

// expandYear maps a two digit year onto 2000-2049 or 1950-1999.
func expandYear(yy int) int {
	if yy < 50 {
		return 2000 + yy
	}
	return 1900 + yy
}

func calendarDate(year, month, day int, loc *time.Location) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc)
	// time.Date normalizes overflow (31 Feb -> 3 Mar); reject those.
	if t.Year() != year || int(t.Month()) != month || t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// NormalizeTime returns a display time for a start/end cell. Text containing
// a colon is kept verbatim; a spreadsheet fraction of a day (0..1) becomes
// HH:MM; anything else (including the "Day" sentinel) is kept as is.
func NormalizeTime(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || strings.Contains(s, ":") {
		return s
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 || v > 1 {
		return s
	}
	return FractionToClock(v)
}

// FractionToClock converts a fraction of a day into zero-padded HH:MM.
func FractionToClock(v float64) string {
	hoursF := v * 24
	hours := int(math.Floor(hoursF))
	minutes := int(math.Round((hoursF - float64(hours)) * 60))
	if minutes == 60 {
		hours++
		minutes = 0
	}
	return fmt.Sprintf("%02d:%02d", hours, minutes)
}
