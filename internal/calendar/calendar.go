// Package calendar builds the week rows shown by the month and week views.
package calendar

import (
	"fmt"
	"strings"
	"time"

	"dealercal/internal/layout"
	"dealercal/internal/model"
)

// ParseDate parses a YYYY-MM-DD date at midnight UTC.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(model.DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("calendar: invalid date %q: %w", s, err)
	}
	return t, nil
}

// FormatDate formats t as YYYY-MM-DD in its own location.
func FormatDate(t time.Time) string {
	return t.Format(model.DateLayout)
}

// ParseMonth parses a YYYY-MM month.
func ParseMonth(s string) (int, time.Month, error) {
	t, err := time.Parse("2006-01", strings.TrimSpace(s))
	if err != nil {
		return 0, 0, fmt.Errorf("calendar: invalid month %q: %w", s, err)
	}
	return t.Year(), t.Month(), nil
}

// ParseWeekStart maps the configured week start to a weekday. Anything other
// than "sunday" means Monday.
func ParseWeekStart(s string) time.Weekday {
	if strings.EqualFold(strings.TrimSpace(s), "sunday") {
		return time.Sunday
	}
	return time.Monday
}

// WeekOf returns the week containing day, beginning on start.
func WeekOf(day time.Time, start time.Weekday) layout.Week {
	d := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(d.Weekday()) - int(start) + 7) % 7
	first := d.AddDate(0, 0, -offset)

	var w layout.Week
	for i := range w {
		w[i] = FormatDate(first.AddDate(0, 0, i))
	}
	return w
}

// MonthGrid returns the weeks covering the given month, including leading
// and trailing days of the neighbouring months.
func MonthGrid(year int, month time.Month, start time.Weekday) []layout.Week {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)
	lastDate := FormatDate(last)

	weeks := make([]layout.Week, 0, 6)
	w := WeekOf(first, start)
	for {
		weeks = append(weeks, w)
		if w.Last() >= lastDate {
			break
		}
		next, _ := ParseDate(w.Last())
		w = WeekOf(next.AddDate(0, 0, 1), start)
	}
	return weeks
}
