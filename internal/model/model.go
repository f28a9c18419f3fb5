package model

import (
	"strings"
	"time"
)

// FullDaySentinel is the start-time value the feed uses for bookings that
// span the whole day.
const FullDaySentinel = "Day"

// Session is one booking occurrence taken from the feed. Every string field
// is always set; missing optional values are "".
type Session struct {
	// Date is the calendar date at local midnight in the display timezone.
	Date time.Time

	// Day is the weekday label as written in the sheet. Informational only.
	Day string

	// StartTime / EndTime are "HH:MM", "" or the full-day sentinel.
	StartTime string
	EndTime   string

	Room         string
	PublicName   string
	SessionType  string
	ContactEmail string
	Notes        string
}

// SameDate reports whether the session falls on t's calendar date.
func (s Session) SameDate(t time.Time) bool {
	y1, m1, d1 := s.Date.Date()
	y2, m2, d2 := t.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// FullDay reports whether the session has no specific start hour.
func (s Session) FullDay() bool {
	start := strings.TrimSpace(s.StartTime)
	return start == "" || strings.EqualFold(start, FullDaySentinel)
}
