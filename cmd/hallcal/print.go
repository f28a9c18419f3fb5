package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"hallcal/internal/model"
	"hallcal/internal/timetable"
	"hallcal/internal/week"
)

// printWeek writes v as a plain text table, one line per session.
func printWeek(w io.Writer, v timetable.View) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Week of %s - %s\n", v.Window.Start().Format("2 Jan 2006"), v.Window.End().Format("2 Jan 2006"))
	if v.Empty {
		fmt.Fprintln(tw, "No sessions scheduled this week.")
		return tw.Flush()
	}
	for _, d := range v.Days {
		fmt.Fprintf(tw, "\n%s %s\n", d.Date.Weekday(), d.Date.Format("2 Jan"))
		if d.Len() == 0 {
			fmt.Fprintln(tw, "  -")
			continue
		}
		printHalf(tw, week.AM, d.AM)
		printHalf(tw, week.PM, d.PM)
	}
	return tw.Flush()
}

func printHalf(w io.Writer, h week.Half, sessions []model.Session) {
	for _, s := range sessions {
		when := s.StartTime + "-" + s.EndTime
		if s.FullDay() {
			when = "All Day"
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\n", h, when, s.PublicName, s.Room, s.SessionType)
	}
}
