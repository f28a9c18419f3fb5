package web

import (
	"strings"
	"time"

	"hallcal/internal/config"
	"hallcal/internal/model"
	"hallcal/internal/timetable"
	"hallcal/internal/week"
)

var dayNames = [week.Days]string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

// pageData feeds templates/timetable.html.
type pageData struct {
	Title     string
	WeekLabel string
	Offset    int
	Prev      int
	Next      int
	Headers   []dayHeader
	AM        []cellData
	PM        []cellData
	Empty     bool
	Error     string
	FromCache bool
}

type dayHeader struct {
	Name string
	Date string
}

type cellData struct {
	Blocks []blockData
}

// HasSession drives the has-session class.
func (c cellData) HasSession() bool { return len(c.Blocks) > 0 }

type blockData struct {
	Name    string
	Badge   string
	Time    string
	Room    string
	Classes string
}

func formatDateShort(t time.Time) string {
	return t.Format("2 Jan")
}

func weekLabel(w week.Window) string {
	return "Week of " + formatDateShort(w.Start()) + " - " + formatDateShort(w.End())
}

func headers(w week.Window) []dayHeader {
	out := make([]dayHeader, 0, week.Days)
	for i, d := range w {
		out = append(out, dayHeader{Name: dayNames[i], Date: formatDateShort(d)})
	}
	return out
}

// newPage lays out a loaded view. Classes and badges only exist here.
func newPage(title string, v timetable.View, styles []config.StyleRule) pageData {
	p := basePage(title, v.Offset, v.Window)
	p.Empty = v.Empty
	p.FromCache = v.FromCache

	for _, d := range v.Days {
		p.AM = append(p.AM, cell(d.AM, styles))
		p.PM = append(p.PM, cell(d.PM, styles))
	}
	return p
}

// errorPage shows the week caption and a connectivity error, no grid.
func errorPage(title string, offset int, w week.Window, msg string) pageData {
	p := basePage(title, offset, w)
	p.Error = msg
	return p
}

func basePage(title string, offset int, w week.Window) pageData {
	return pageData{
		Title:     title,
		WeekLabel: weekLabel(w),
		Offset:    offset,
		Prev:      offset - 1,
		Next:      offset + 1,
		Headers:   headers(w),
	}
}

func cell(sessions []model.Session, styles []config.StyleRule) cellData {
	c := cellData{Blocks: make([]blockData, 0, len(sessions))}
	for _, s := range sessions {
		c.Blocks = append(c.Blocks, block(s, styles))
	}
	return c
}

func block(s model.Session, styles []config.StyleRule) blockData {
	classes := []string{"session-block"}
	if class := activityClass(s.PublicName, styles); class != "" {
		classes = append(classes, class)
	}

	sessionType := strings.ToLower(s.SessionType)
	var badge string
	switch {
	case strings.Contains(sessionType, "private"):
		classes = append(classes, "private-session")
		badge = "Private"
	case strings.Contains(sessionType, "members"):
		classes = append(classes, "members-only")
		badge = "Members"
	}

	var when string
	switch {
	case s.FullDay():
		classes = append(classes, "full-day")
		when = "All Day"
	case s.EndTime != "":
		when = s.StartTime + " - " + s.EndTime
	default:
		when = s.StartTime
	}

	return blockData{
		Name:    s.PublicName,
		Badge:   badge,
		Time:    when,
		Room:    s.Room,
		Classes: strings.Join(classes, " "),
	}
}

// activityClass returns the first style whose keywords occur in name.
func activityClass(name string, styles []config.StyleRule) string {
	name = strings.ToLower(name)
	for _, rule := range styles {
		for _, m := range rule.Match {
			if m != "" && strings.Contains(name, strings.ToLower(m)) {
				return rule.Class
			}
		}
	}
	return ""
}
