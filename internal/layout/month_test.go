package layout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dealercal/internal/model"
)

func TestTimedByDay(t *testing.T) {
	events := []model.Event{
		{ID: "late", Title: "Delivery", StartDate: "2024-01-09", EndDate: "2024-01-09", StartTime: "16:00"},
		{ID: "early", Title: "Test drive", StartDate: "2024-01-09", EndDate: "2024-01-09", StartTime: "09:30"},
		{ID: "tie-b", Title: "B", StartDate: "2024-01-12", EndDate: "2024-01-12", StartTime: "11:00"},
		{ID: "tie-a", Title: "A", StartDate: "2024-01-12", EndDate: "2024-01-12", StartTime: "11:00"},
		allDay("banner", "2024-01-09", "2024-01-09"),
		{ID: "outside", StartDate: "2024-01-20", EndDate: "2024-01-20", StartTime: "10:00"},
	}

	days := TimedByDay(jan8, events)
	assert.Equal(t, []string{"early", "late"}, eventIDs(days[1]))
	assert.Equal(t, []string{"tie-a", "tie-b"}, eventIDs(days[4]))
	assert.Empty(t, days[0])
	assert.NotNil(t, days[0])
}

func TestLayoutMonth(t *testing.T) {
	next := Week{
		"2024-01-15", "2024-01-16", "2024-01-17", "2024-01-18",
		"2024-01-19", "2024-01-20", "2024-01-21",
	}
	events := []model.Event{
		allDay("short", "2024-01-12", "2024-01-12"),
		allDay("cross", "2024-01-11", "2024-01-16"),
	}

	weeks := LayoutMonth([]Week{jan8, next}, events, Options{Order: OrderByStart})
	require.Len(t, weeks, 2)

	first := weeks[0].Result
	assert.Equal(t, []string{"cross", "short"}, ids(first))
	assert.Equal(t, []int{0, 1}, rows(first))
	assert.True(t, first.Positions[0].IsStart)
	assert.False(t, first.Positions[0].IsEnd)

	second := weeks[1].Result
	require.Len(t, second.Positions, 1)
	p := second.Positions[0]
	assert.Equal(t, "cross", p.Event.ID)
	assert.Equal(t, 0, p.StartCol)
	assert.Equal(t, 2, p.Span)
	assert.False(t, p.IsStart)
	assert.True(t, p.IsEnd)
	assert.Equal(t, next, weeks[1].Week)
}
