package model

import "time"

// DateLayout is the calendar-date format used for plan dates and streaks.
const DateLayout = "2006-01-02"

// DateOf returns midnight of t's calendar day in loc.
func DateOf(t time.Time, loc *time.Location) time.Time {
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
}

// AtHour returns the given hour on day's calendar date in loc.
func AtHour(day time.Time, hour int, loc *time.Location) time.Time {
	d := day.In(loc)
	return time.Date(d.Year(), d.Month(), d.Day(), hour, 0, 0, 0, loc)
}

// ParseDate parses a DateLayout string as midnight in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, loc)
}
