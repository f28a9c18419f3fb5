package ics

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"hallcal/internal/model"
	"hallcal/internal/timetable"
	"hallcal/internal/week"
)

// defaultDuration is used for timed sessions without a usable end time.
const defaultDuration = time.Hour

// ExportOptions controls calendar metadata.
type ExportOptions struct {
	// Name is shown by calendar clients (X-WR-CALNAME).
	Name string
	// ProductID defaults to "-//hallcal//timetable//EN".
	ProductID string
}

// WeekCalendar builds a VCALENDAR with one VEVENT per session in the view.
// Sessions with a clock start become timed events in the session's zone;
// full-day or unreadable starts become all-day events.
func WeekCalendar(v timetable.View, opts ExportOptions) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	prodID := opts.ProductID
	if prodID == "" {
		prodID = "-//hallcal//timetable//EN"
	}
	cal.SetProductId(prodID)
	if opts.Name != "" {
		cal.SetXWRCalName(opts.Name)
	}

	seen := make(map[string]int)
	for _, day := range v.Days {
		for _, s := range append(append([]model.Session{}, day.AM...), day.PM...) {
			key := sessionKey(s)
			seen[key]++
			addSession(cal, s, uidFor(key, seen[key]), v.GeneratedAt)
		}
	}
	return cal
}

// Serialize renders the view as iCalendar text.
func Serialize(v timetable.View, opts ExportOptions) string {
	return WeekCalendar(v, opts).Serialize()
}

func addSession(cal *ical.Calendar, s model.Session, uid string, stamp time.Time) {
	ev := cal.AddEvent(uid)
	if stamp.IsZero() {
		stamp = time.Now()
	}
	ev.SetDtStampTime(stamp)
	ev.SetSummary(s.PublicName)
	if s.Room != "" {
		ev.SetLocation(s.Room)
	}
	if desc := description(s); desc != "" {
		ev.SetDescription(desc)
	}

	start, end, timed := sessionSpan(s)
	if timed {
		ev.SetStartAt(start)
		ev.SetEndAt(end)
		return
	}
	ev.SetAllDayStartAt(s.Date)
	ev.SetAllDayEndAt(s.Date.AddDate(0, 0, 1))
}

// sessionSpan returns the clock span of a session on its date.
func sessionSpan(s model.Session) (time.Time, time.Time, bool) {
	if week.HalfOf(s.StartTime) == week.FullDay {
		return time.Time{}, time.Time{}, false
	}
	sh, sm, ok := parseClock(s.StartTime)
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	y, mo, d := s.Date.Date()
	loc := s.Date.Location()
	start := time.Date(y, mo, d, sh, sm, 0, 0, loc)

	end := start.Add(defaultDuration)
	if eh, em, ok := parseClock(s.EndTime); ok {
		if e := time.Date(y, mo, d, eh, em, 0, 0, loc); e.After(start) {
			end = e
		}
	}
	return start, end, true
}

// parseClock reads H:MM or HH:MM, allowing 24:00 as end of day.
func parseClock(v string) (int, int, bool) {
	hs, ms, found := strings.Cut(strings.TrimSpace(v), ":")
	if !found {
		return 0, 0, false
	}
	h, err := strconv.Atoi(hs)
	if err != nil {
		return 0, 0, false
	}
	m, err := strconv.Atoi(ms)
	if err != nil {
		return 0, 0, false
	}
	if h < 0 || h > 24 || m < 0 || m > 59 || (h == 24 && m != 0) {
		return 0, 0, false
	}
	return h, m, true
}

func description(s model.Session) string {
	parts := make([]string, 0, 2)
	if s.SessionType != "" {
		parts = append(parts, s.SessionType)
	}
	if s.Notes != "" {
		parts = append(parts, s.Notes)
	}
	return strings.Join(parts, "\n")
}

// SessionUID is stable for the same booking across exports. Identical
// bookings in one calendar are told apart by WeekCalendar.
func SessionUID(s model.Session) string {
	return uidFor(sessionKey(s), 1)
}

func sessionKey(s model.Session) string {
	key := strings.Join([]string{
		s.Date.Format("2006-01-02"),
		s.StartTime,
		s.EndTime,
		s.Room,
		s.PublicName,
		s.SessionType,
	}, "|")
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:12])
}

// uidFor adds an ordinal for the nth copy of the same booking.
func uidFor(key string, n int) string {
	if n > 1 {
		key += "-" + strconv.Itoa(n)
	}
	return key + "@hallcal"
}
