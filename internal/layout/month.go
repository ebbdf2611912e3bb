package layout

import (
	"sort"

	"dealercal/internal/model"
)

// WeekLayout is the layout of one row of a month grid.
type WeekLayout struct {
	Week   Week                       `json:"week"`
	Result Result                     `json:"result"`
	Timed  [DaysPerWeek][]model.Event `json:"timed"`
}

// LayoutMonth lays out each week independently. Rows are not carried over
// between weeks, so an event crossing a week boundary may sit on different
// rows in consecutive weeks.
func LayoutMonth(weeks []Week, events []model.Event, opts Options) []WeekLayout {
	if opts.Order == OrderByStart {
		events = SortForLayout(events)
		opts.Order = OrderAsGiven
	}

	out := make([]WeekLayout, 0, len(weeks))
	for _, w := range weeks {
		out = append(out, WeekLayout{
			Week:   w,
			Result: LayoutWeek(w, events, opts),
			Timed:  TimedByDay(w, events),
		})
	}
	return out
}

// TimedByDay buckets single-day timed events into their day column, sorted
// by start time then title. Events that span days are left to LayoutWeek.
func TimedByDay(week Week, events []model.Event) [DaysPerWeek][]model.Event {
	var out [DaysPerWeek][]model.Event
	for i := range out {
		out[i] = []model.Event{}
	}

	for _, ev := range events {
		if ev.SpansDays() {
			continue
		}
		col := week.Column(ev.StartDate)
		if col < 0 {
			continue
		}
		out[col] = append(out[col], ev)
	}

	for i := range out {
		day := out[i]
		sort.SliceStable(day, func(a, b int) bool {
			if day[a].StartTime != day[b].StartTime {
				return day[a].StartTime < day[b].StartTime
			}
			return day[a].Title < day[b].Title
		})
	}
	return out
}
