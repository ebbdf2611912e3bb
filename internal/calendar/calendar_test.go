package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dealercal/internal/layout"
)

func TestWeekOf(t *testing.T) {
	wed := time.Date(2024, 1, 10, 15, 0, 0, 0, time.UTC)

	mon := WeekOf(wed, time.Monday)
	assert.Equal(t, layout.Week{
		"2024-01-08", "2024-01-09", "2024-01-10", "2024-01-11",
		"2024-01-12", "2024-01-13", "2024-01-14",
	}, mon)

	sun := WeekOf(wed, time.Sunday)
	assert.Equal(t, "2024-01-07", sun.First())
	assert.Equal(t, "2024-01-13", sun.Last())

	// A Monday is the first day of its own week.
	assert.Equal(t, "2024-01-08", WeekOf(time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC), time.Monday).First())
	// A Sunday is the last day of a Monday week.
	assert.Equal(t, "2024-01-08", WeekOf(time.Date(2024, 1, 14, 23, 0, 0, 0, time.UTC), time.Monday).First())
}

func TestMonthGrid(t *testing.T) {
	tests := []struct {
		name      string
		year      int
		month     time.Month
		start     time.Weekday
		wantWeeks int
		first     string
		last      string
	}{
		{"january 2024 monday", 2024, time.January, time.Monday, 5, "2024-01-01", "2024-02-04"},
		{"february 2021 fits four weeks", 2021, time.February, time.Monday, 4, "2021-02-01", "2021-02-28"},
		{"september 2024 sunday", 2024, time.September, time.Sunday, 5, "2024-09-01", "2024-10-05"},
		{"june 2025 six weeks", 2025, time.June, time.Monday, 6, "2025-05-26", "2025-07-06"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			weeks := MonthGrid(tt.year, tt.month, tt.start)
			require.Len(t, weeks, tt.wantWeeks)
			assert.Equal(t, tt.first, weeks[0].First())
			assert.Equal(t, tt.last, weeks[len(weeks)-1].Last())
			for i := 1; i < len(weeks); i++ {
				prev, err := ParseDate(weeks[i-1].Last())
				require.NoError(t, err)
				assert.Equal(t, FormatDate(prev.AddDate(0, 0, 1)), weeks[i].First())
			}
		})
	}
}

func TestParseHelpers(t *testing.T) {
	_, err := ParseDate("2024-13-01")
	assert.Error(t, err)

	d, err := ParseDate(" 2024-02-29 ")
	require.NoError(t, err)
	assert.Equal(t, "2024-02-29", FormatDate(d))

	y, m, err := ParseMonth("2024-03")
	require.NoError(t, err)
	assert.Equal(t, 2024, y)
	assert.Equal(t, time.March, m)

	_, _, err = ParseMonth("March")
	assert.Error(t, err)

	assert.Equal(t, time.Sunday, ParseWeekStart("Sunday"))
	assert.Equal(t, time.Monday, ParseWeekStart("monday"))
	assert.Equal(t, time.Monday, ParseWeekStart(""))
}
