package model

import "time"

// DateLayout is the calendar date format used throughout the application.
// Dates in this form sort lexicographically in chronological order.
const DateLayout = "2006-01-02"

// TimeLayout is the clock time format used for timed events.
const TimeLayout = "15:04"

// Event is a single calendar entry as stored and laid out by the dashboard.
//
// StartDate and EndDate are inclusive calendar dates in DateLayout form.
// StartTime is only meaningful when AllDay is false.
type Event struct {
	ID string `json:"id" yaml:"id"`

	Title    string `json:"title" yaml:"title"`
	Customer string `json:"customer,omitempty" yaml:"customer,omitempty"`
	Notes    string `json:"notes,omitempty" yaml:"notes,omitempty"`

	StartDate string `json:"start_date" yaml:"start_date"`
	EndDate   string `json:"end_date" yaml:"end_date"`
	AllDay    bool   `json:"all_day" yaml:"all_day"`
	StartTime string `json:"start_time,omitempty" yaml:"start_time,omitempty"`

	// SourceID is the ICS source an imported event came from. Empty for
	// events created locally.
	SourceID string `json:"source_id,omitempty" yaml:"source_id,omitempty"`
	// InstanceKey identifies one occurrence of an imported recurring event.
	InstanceKey string `json:"instance_key,omitempty" yaml:"instance_key,omitempty"`
}

// SpansDays reports whether the event is drawn as a banner across day
// columns: all-day events and events whose start and end dates differ.
func (e Event) SpansDays() bool {
	return e.AllDay || e.StartDate != e.EndDate
}

// Imported reports whether the event was produced by an ICS import.
func (e Event) Imported() bool {
	return e.SourceID != ""
}

// Occurrence represents a single concrete instance of an ICS event
// (after recurrence expansion and timezone normalization).
type Occurrence struct {
	SourceID string // calendar source ID
	UID      string // iCalendar UID

	// InstanceKey uniquely identifies a single occurrence of a recurring
	// event, typically derived from the local start time.
	InstanceKey string

	Summary     string
	Description string
	Location    string

	AllDay bool

	// Start / End are in the configured display timezone.
	Start time.Time
	End   time.Time
}

// EventFromOccurrence converts an expanded ICS occurrence into a dashboard
// event. ICS end times are exclusive, so an all-day occurrence ending at
// midnight, or a timed one ending exactly at midnight, ends on the previous
// calendar date.
func EventFromOccurrence(occ Occurrence) Event {
	start := occ.Start
	end := occ.End
	if end.Before(start) {
		end = start
	}

	lastDay := end
	if end.After(start) && isMidnight(end) {
		lastDay = end.AddDate(0, 0, -1)
	}
	if occ.AllDay && !end.After(start) {
		lastDay = start
	}

	ev := Event{
		Title:       occ.Summary,
		Notes:       occ.Description,
		StartDate:   start.Format(DateLayout),
		EndDate:     lastDay.Format(DateLayout),
		AllDay:      occ.AllDay,
		SourceID:    occ.SourceID,
		InstanceKey: occ.UID + "@" + occ.InstanceKey,
	}
	if ev.EndDate < ev.StartDate {
		ev.EndDate = ev.StartDate
	}
	if !occ.AllDay {
		ev.StartTime = start.Format(TimeLayout)
	}
	return ev
}

func isMidnight(t time.Time) bool {
	h, m, s := t.Clock()
	return h == 0 && m == 0 && s == 0 && t.Nanosecond() == 0
}
