// Package layout places multi-day and all-day events into the rows of a
// seven-column week grid.
//
// Row assignment is a greedy first-fit: each event takes the lowest row in
// which none of its columns are occupied yet. The result therefore depends on
// the order events are visited in, which is selected explicitly through
// Options.Order.
package layout

import (
	"sort"

	"dealercal/internal/model"
)

// DaysPerWeek is the number of columns in a week row.
const DaysPerWeek = 7

// DefaultMaxRows is the number of banner rows available in a week before
// events start to overlap at the last row.
const DefaultMaxRows = 11

// Week holds seven consecutive dates (YYYY-MM-DD), first day of week first.
type Week [DaysPerWeek]string

// First returns the first date of the week.
func (w Week) First() string { return w[0] }

// Last returns the last date of the week.
func (w Week) Last() string { return w[DaysPerWeek-1] }

// Column returns the index of date within the week, or -1.
func (w Week) Column(date string) int {
	for i, d := range w {
		if d == date {
			return i
		}
	}
	return -1
}

// Order selects the traversal order used for row assignment.
type Order int

const (
	// OrderAsGiven visits events in the order the caller supplied them.
	OrderAsGiven Order = iota
	// OrderByStart visits events sorted by SortForLayout.
	OrderByStart
)

// OpenEnd selects the span used when an event's clipped end date cannot be
// located in the week.
type OpenEnd int

const (
	// OpenEndToWeekEnd runs the event through the last column.
	OpenEndToWeekEnd OpenEnd = iota
	// OpenEndAtStart draws the event on its start column only.
	OpenEndAtStart
)

// Options tunes LayoutWeek. The zero value is usable.
type Options struct {
	// MaxRows bounds the number of rows. Events that find no free row are
	// placed on row MaxRows-1 and reported as overflow. Values <= 0 mean
	// DefaultMaxRows.
	MaxRows int
	Order   Order
	OpenEnd OpenEnd
}

func (o Options) maxRows() int {
	if o.MaxRows <= 0 {
		return DefaultMaxRows
	}
	return o.MaxRows
}

// EventPosition is the placement of one event within one week.
type EventPosition struct {
	Event    model.Event `json:"event"`
	Row      int         `json:"row"`
	StartCol int         `json:"start_col"`
	Span     int         `json:"span"`
	// IsStart is true when the event actually begins in this week.
	IsStart bool `json:"is_start"`
	// IsEnd is true when the event actually ends in this week.
	IsEnd bool `json:"is_end"`
	// Overflow is true when the event was forced onto the last row while
	// colliding with an event already there.
	Overflow bool `json:"overflow,omitempty"`
}

// EndCol returns the last column covered by the position.
func (p EventPosition) EndCol() int {
	return p.StartCol + p.Span - 1
}

// Result is the outcome of laying out one week.
type Result struct {
	Positions []EventPosition `json:"positions"`
	// Dropped holds events that overlap the week but whose visible start
	// could not be matched to one of its dates.
	Dropped []model.Event `json:"dropped,omitempty"`
	// Overflow holds the positions placed on the last row despite a collision.
	// They are also present in Positions.
	Overflow []EventPosition `json:"overflow,omitempty"`
	// Rows is the number of rows in use.
	Rows int `json:"rows"`
}

// LayoutWeek assigns a row and column span to every multi-day or all-day
// event that overlaps week. Timed single-day events and events outside the
// week are ignored. Inputs are not modified.
func LayoutWeek(week Week, events []model.Event, opts Options) Result {
	res := Result{Positions: make([]EventPosition, 0)}

	visit := events
	if opts.Order == OrderByStart {
		visit = SortForLayout(events)
	}

	maxRows := opts.maxRows()
	var occupied [][DaysPerWeek]bool

	for _, ev := range visit {
		if !ev.SpansDays() || !overlaps(ev, week) {
			continue
		}

		clippedStart := max(ev.StartDate, week.First())
		clippedEnd := min(ev.EndDate, week.Last())

		startCol := week.Column(clippedStart)
		if startCol < 0 {
			res.Dropped = append(res.Dropped, ev)
			continue
		}
		endCol := week.Column(clippedEnd)
		if endCol < 0 {
			endCol = DaysPerWeek - 1
			if opts.OpenEnd == OpenEndAtStart {
				endCol = startCol
			}
		}
		if endCol < startCol {
			endCol = startCol
		}

		pos := EventPosition{
			Event:    ev,
			StartCol: startCol,
			Span:     endCol - startCol + 1,
			IsStart:  ev.StartDate >= week.First(),
			IsEnd:    ev.EndDate <= week.Last(),
		}

		row := 0
		for ; row < maxRows-1; row++ {
			if row >= len(occupied) || free(occupied[row], startCol, endCol) {
				break
			}
		}
		for len(occupied) <= row {
			occupied = append(occupied, [DaysPerWeek]bool{})
		}
		if !free(occupied[row], startCol, endCol) {
			pos.Overflow = true
		}
		for c := startCol; c <= endCol; c++ {
			occupied[row][c] = true
		}

		pos.Row = row
		res.Positions = append(res.Positions, pos)
		if pos.Overflow {
			res.Overflow = append(res.Overflow, pos)
		}
	}

	res.Rows = len(occupied)
	return res
}

// SortForLayout returns a copy of events ordered by start date, then longer
// events first, then ID. Placing long banners first keeps the packing
// stable regardless of how the events were stored.
func SortForLayout(events []model.Event) []model.Event {
	out := make([]model.Event, len(events))
	copy(out, events)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.StartDate != b.StartDate {
			return a.StartDate < b.StartDate
		}
		if a.EndDate != b.EndDate {
			// Same start: the later end is the longer event.
			return a.EndDate > b.EndDate
		}
		return a.ID < b.ID
	})
	return out
}

func overlaps(ev model.Event, week Week) bool {
	return ev.StartDate <= week.Last() && ev.EndDate >= week.First()
}

func free(row [DaysPerWeek]bool, from, to int) bool {
	for c := from; c <= to; c++ {
		if row[c] {
			return false
		}
	}
	return true
}
