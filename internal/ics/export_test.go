package ics

import (
	"strings"
	"testing"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hallcal/internal/model"
	"hallcal/internal/timetable"
	"hallcal/internal/week"
)

func testView(sessions []model.Session) timetable.View {
	now := time.Date(2026, 2, 18, 10, 0, 0, 0, time.UTC)
	w := week.NewWindow(now, 0)
	days := week.Bucket(sessions, w)
	return timetable.View{Window: w, Days: days, Total: week.Count(days), GeneratedAt: now}
}

func TestSerializeRoundTrip(t *testing.T) {
	mon := time.Date(2026, 2, 16, 0, 0, 0, 0, time.UTC)
	v := testView([]model.Session{
		{Date: mon, StartTime: "09:00", EndTime: "11:30", Room: "Main Hall", PublicName: "Table Tennis", SessionType: "Members"},
		{Date: mon, StartTime: "Day", PublicName: "Craft Fair", Notes: "Stalls from 8am"},
	})

	out := Serialize(v, ExportOptions{Name: "Village Hall"})
	assert.Contains(t, out, "X-WR-CALNAME:Village Hall")

	cal, err := ical.ParseCalendar(strings.NewReader(out))
	require.NoError(t, err)

	events := cal.Events()
	require.Len(t, events, 2)

	byName := map[string]*ical.VEvent{}
	for _, ev := range events {
		byName[ev.GetProperty(ical.ComponentPropertySummary).Value] = ev
	}

	tt := byName["Table Tennis"]
	require.NotNil(t, tt)
	start, err := tt.GetStartAt()
	require.NoError(t, err)
	end, err := tt.GetEndAt()
	require.NoError(t, err)
	assert.True(t, start.Equal(time.Date(2026, 2, 16, 9, 0, 0, 0, time.UTC)))
	assert.True(t, end.Equal(time.Date(2026, 2, 16, 11, 30, 0, 0, time.UTC)))
	assert.Equal(t, "Main Hall", tt.GetProperty(ical.ComponentPropertyLocation).Value)

	fair := byName["Craft Fair"]
	require.NotNil(t, fair)
	dtstart := fair.GetProperty(ical.ComponentPropertyDtStart)
	require.NotNil(t, dtstart)
	assert.Equal(t, "20260216", dtstart.Value)
}

func TestSessionSpan(t *testing.T) {
	d := time.Date(2026, 2, 16, 0, 0, 0, 0, time.UTC)

	start, end, timed := sessionSpan(model.Session{Date: d, StartTime: "18:00"})
	require.True(t, timed)
	assert.Equal(t, 18, start.Hour())
	assert.Equal(t, time.Hour, end.Sub(start))

	_, end, timed = sessionSpan(model.Session{Date: d, StartTime: "18:00", EndTime: "17:00"})
	require.True(t, timed)
	assert.Equal(t, 19, end.Hour())

	_, _, timed = sessionSpan(model.Session{Date: d, StartTime: "TBC"})
	assert.False(t, timed)

	_, _, timed = sessionSpan(model.Session{Date: d, StartTime: ""})
	assert.False(t, timed)
}

func TestParseClock(t *testing.T) {
	h, m, ok := parseClock("9:05")
	assert.True(t, ok)
	assert.Equal(t, 9, h)
	assert.Equal(t, 5, m)

	_, _, ok = parseClock("24:00")
	assert.True(t, ok)
	_, _, ok = parseClock("24:30")
	assert.False(t, ok)
	_, _, ok = parseClock("noon")
	assert.False(t, ok)
}

func TestSessionUIDStable(t *testing.T) {
	s := model.Session{Date: time.Date(2026, 2, 16, 0, 0, 0, 0, time.UTC), StartTime: "09:00", PublicName: "Yoga"}
	assert.Equal(t, SessionUID(s), SessionUID(s))

	other := s
	other.PublicName = "Pilates"
	assert.NotEqual(t, SessionUID(s), SessionUID(other))
	assert.True(t, strings.HasSuffix(SessionUID(s), "@hallcal"))
}

func TestSessionUIDDistinguishesEndAndType(t *testing.T) {
	s := model.Session{Date: time.Date(2026, 2, 16, 0, 0, 0, 0, time.UTC), StartTime: "09:00", EndTime: "10:00", PublicName: "Yoga", SessionType: "Public"}

	later := s
	later.EndTime = "11:00"
	assert.NotEqual(t, SessionUID(s), SessionUID(later))

	members := s
	members.SessionType = "Members"
	assert.NotEqual(t, SessionUID(s), SessionUID(members))
}

func TestWeekCalendarIdenticalBookingsGetDistinctUIDs(t *testing.T) {
	mon := time.Date(2026, 2, 16, 0, 0, 0, 0, time.UTC)
	booking := model.Session{Date: mon, StartTime: "09:00", EndTime: "10:00", Room: "Main Hall", PublicName: "Yoga"}
	v := testView([]model.Session{booking, booking, booking})

	events := WeekCalendar(v, ExportOptions{}).Events()
	require.Len(t, events, 3)

	uids := map[string]bool{}
	for _, ev := range events {
		uids[ev.GetProperty(ical.ComponentPropertyUniqueId).Value] = true
	}
	assert.Len(t, uids, 3)
	assert.True(t, uids[SessionUID(booking)])
	assert.True(t, uids[strings.TrimSuffix(SessionUID(booking), "@hallcal")+"-2@hallcal"])
}
