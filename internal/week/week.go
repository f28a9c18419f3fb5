// Package week builds the Monday-first week frame and sorts sessions into
// per-day AM/PM halves. Everything here is a pure function of its inputs.
package week

import (
	"fmt"
	"strconv"
	"time"

	"github.com/teambition/rrule-go"

	"hallcal/internal/model"
)

// Days is the number of dates in a Window.
const Days = 7

// Window is seven consecutive local-midnight dates, Monday through Sunday.
type Window [Days]time.Time

// NewWindow returns the week containing now, shifted by offset weeks.
func NewWindow(now time.Time, offset int) Window {
	loc := now.Location()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	// Sunday belongs to the week that started six days earlier.
	shift := 1 - int(today.Weekday())
	if today.Weekday() == time.Sunday {
		shift = -6
	}
	monday := today.AddDate(0, 0, shift+offset*7)

	var w Window
	for i, d := range dailyDates(monday) {
		w[i] = time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
	}
	return w
}

// dailyDates expands a DAILY recurrence of Days occurrences from start.
func dailyDates(start time.Time) []time.Time {
	r, err := rrule.NewRRule(rrule.ROption{
		Freq:    rrule.DAILY,
		Count:   Days,
		Dtstart: start,
	})
	if err != nil {
		// Freq and Count are constants, so this is a programming error.
		panic(fmt.Sprintf("week: daily rule: %v", err))
	}
	return r.All()
}

// Start is the Monday of the window.
func (w Window) Start() time.Time { return w[0] }

// End is the Sunday of the window.
func (w Window) End() time.Time { return w[Days-1] }

// Contains reports whether t falls on one of the window's dates.
func (w Window) Contains(t time.Time) bool {
	y, m, d := t.In(w[0].Location()).Date()
	for _, day := range w {
		dy, dm, dd := day.Date()
		if y == dy && m == dm && d == dd {
			return true
		}
	}
	return false
}

// Half is the half-day slot a session is shown in.
type Half int

const (
	FullDay Half = iota
	AM
	PM
)

func (h Half) String() string {
	switch h {
	case FullDay:
		return "FULL_DAY"
	case AM:
		return "AM"
	case PM:
		return "PM"
	default:
		return "Half(" + strconv.Itoa(int(h)) + ")"
	}
}

// HalfOf classifies a start time. Empty or "Day" is a full-day booking;
// otherwise the leading hour decides, and a start with no leading digits
// counts as PM.
func HalfOf(start string) Half {
	if (model.Session{StartTime: start}).FullDay() {
		return FullDay
	}
	hour, ok := leadingHour(start)
	if ok && hour < 12 {
		return AM
	}
	return PM
}

func leadingHour(s string) (int, bool) {
	i := 0
	for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
		i++
	}
	j := i
	for j < len(s) && s[j] >= '0' && s[j] <= '9' {
		j++
	}
	if j == i {
		return 0, false
	}
	n, err := strconv.Atoi(s[i:j])
	if err != nil {
		return 0, false
	}
	return n, true
}

// Day holds one date's sessions. Full-day sessions are listed in AM only.
type Day struct {
	Date time.Time
	AM   []model.Session
	PM   []model.Session
}

// Len is the number of sessions on the day.
func (d Day) Len() int { return len(d.AM) + len(d.PM) }

// Bucket assigns sessions to the window's days in input order. The input is
// not modified and no state is kept between calls.
func Bucket(sessions []model.Session, w Window) []Day {
	days := make([]Day, Days)
	for i, date := range w {
		day := Day{
			Date: date,
			AM:   []model.Session{},
			PM:   []model.Session{},
		}
		for _, s := range sessions {
			if !s.SameDate(date) {
				continue
			}
			if HalfOf(s.StartTime) == PM {
				day.PM = append(day.PM, s)
			} else {
				day.AM = append(day.AM, s)
			}
		}
		days[i] = day
	}
	return days
}

// Count sums sessions across days.
func Count(days []Day) int {
	n := 0
	for _, d := range days {
		n += d.Len()
	}
	return n
}
