package ics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var feed = strings.ReplaceAll(`BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//dealercal//test//EN
BEGIN:VEVENT
UID:sale@example.com
DTSTAMP:20240101T000000Z
DTSTART;VALUE=DATE:20240108
DTEND;VALUE=DATE:20240111
SUMMARY:Tent sale
END:VEVENT
BEGIN:VEVENT
UID:standup@example.com
DTSTAMP:20240101T000000Z
DTSTART:20240108T090000Z
DTEND:20240108T093000Z
RRULE:FREQ=DAILY;COUNT=5
EXDATE:20240110T090000Z
SUMMARY:Sales standup
END:VEVENT
BEGIN:VEVENT
UID:standup@example.com
DTSTAMP:20240101T000000Z
RECURRENCE-ID:20240111T090000Z
DTSTART:20240111T100000Z
DTEND:20240111T103000Z
SUMMARY:Sales standup (moved)
END:VEVENT
BEGIN:VEVENT
DTSTAMP:20240101T000000Z
DTSTART:20240108T090000Z
SUMMARY:No UID
END:VEVENT
END:VCALENDAR
`, "\n", "\r\n")

var src = Source{ID: "sales", URL: "https://calendar.example.com/private/token.ics"}

func TestParseICS(t *testing.T) {
	events, err := ParseICS(src, []byte(feed))
	require.NoError(t, err)
	require.Len(t, events, 3)

	sale := events[0]
	assert.Equal(t, "sale@example.com", sale.UID)
	assert.True(t, sale.AllDay)
	assert.Equal(t, "Tent sale", sale.Summary)
	assert.Equal(t, 8, sale.Start.Day())
	assert.Equal(t, 11, sale.End.Day())

	standup := events[1]
	assert.False(t, standup.AllDay)
	assert.Equal(t, "FREQ=DAILY;COUNT=5", standup.RawRRule)
	require.Len(t, standup.ExDates, 1)
	assert.True(t, standup.ExDates[0].Equal(time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)))

	moved := events[2]
	assert.True(t, moved.IsOverride)
	require.NotNil(t, moved.Recurrence)

	_, err = ParseICS(src, nil)
	assert.Error(t, err)
}

func TestExpandOccurrences(t *testing.T) {
	events, err := ParseICS(src, []byte(feed))
	require.NoError(t, err)

	res, err := ExpandOccurrences(events, ExpandConfig{
		DisplayLocation: time.UTC,
		RangeStart:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		RangeEnd:        time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Empty(t, res.TruncatedEvents)

	var summaries []string
	for _, o := range res.Occurrences {
		summaries = append(summaries, o.Summary)
	}
	assert.Equal(t, []string{
		"Tent sale",
		"Sales standup",
		"Sales standup",
		"Sales standup (moved)",
		"Sales standup",
	}, summaries)

	sale := res.Occurrences[0]
	assert.Equal(t, time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC), sale.Start)
	assert.Equal(t, time.Date(2024, 1, 11, 0, 0, 0, 0, time.UTC), sale.End)
	assert.Equal(t, "sales", sale.SourceID)

	moved := res.Occurrences[3]
	assert.Equal(t, 10, moved.Start.Hour())
	assert.Equal(t, "2024-01-11T09:00:00Z", moved.InstanceKey)
}

func TestExpandOccurrencesKeepsHighestSequence(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2024, 1, d, 9, 0, 0, 0, time.UTC) }
	recur := day(9)

	events := []ParsedEvent{
		{UID: "promo", Seq: 0, Summary: "Promo v0", Start: day(8), End: day(8).Add(time.Hour)},
		{UID: "promo", Seq: 2, Summary: "Promo v2", Start: day(10), End: day(10).Add(time.Hour)},
		{UID: "promo", Seq: 1, Summary: "Promo v1", Start: day(12), End: day(12).Add(time.Hour)},
		{UID: "call", Summary: "Call", Start: day(8), End: day(8).Add(time.Hour), RawRRule: "FREQ=DAILY;COUNT=2"},
		{UID: "call", Seq: 1, Summary: "Call (moved)", Start: day(9).Add(time.Hour), End: day(9).Add(2 * time.Hour), Recurrence: &recur, IsOverride: true},
		{UID: "call", Seq: 3, Summary: "Call (moved again)", Start: day(9).Add(3 * time.Hour), End: day(9).Add(4 * time.Hour), Recurrence: &recur, IsOverride: true},
	}

	res, err := ExpandOccurrences(events, ExpandConfig{
		DisplayLocation: time.UTC,
		RangeStart:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		RangeEnd:        time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	var summaries []string
	for _, o := range res.Occurrences {
		summaries = append(summaries, o.Summary)
	}
	assert.Equal(t, []string{"Call", "Call (moved again)", "Promo v2"}, summaries)
}

func TestExpandOccurrencesCap(t *testing.T) {
	events, err := ParseICS(src, []byte(feed))
	require.NoError(t, err)

	res, err := ExpandOccurrences(events, ExpandConfig{
		DisplayLocation:        time.UTC,
		RangeStart:             time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		RangeEnd:               time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
		MaxOccurrencesPerEvent: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"standup@example.com"}, res.TruncatedEvents)

	_, err = ExpandOccurrences(events, ExpandConfig{
		RangeStart: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		RangeEnd:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	assert.Error(t, err)
}

func TestFetcherConditionalAndFallback(t *testing.T) {
	var mode atomic.Int32 // 0 ok, 1 broken
	var conditional atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if mode.Load() == 1 {
			http.Error(w, "boom", http.StatusBadGateway)
			return
		}
		if r.Header.Get("If-None-Match") == `"v1"` {
			conditional.Add(1)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(feed))
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir(), srv.Client())
	s := Source{ID: "sales", URL: srv.URL + "/feed.ics"}
	ctx := context.Background()

	first, err := f.FetchOne(ctx, s)
	require.NoError(t, err)
	assert.False(t, first.FromCache)
	assert.Equal(t, feed, string(first.Body))

	second, err := f.FetchOne(ctx, s)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, int32(1), conditional.Load())
	assert.Equal(t, feed, string(second.Body))

	mode.Store(1)
	third, err := f.FetchOne(ctx, s)
	require.NoError(t, err)
	assert.True(t, third.FromCache)

	results, errs := f.FetchAll(ctx, []Source{s, {ID: "empty"}, {ID: "fresh", URL: srv.URL + "/other.ics"}})
	assert.Len(t, results, 1)
	assert.Len(t, errs, 2)
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "https://calendar.example.com/...(redacted)", redactURL(src.URL))
	assert.Equal(t, "http://host:8080/...(redacted)", redactURL("http://host:8080"))
	assert.Equal(t, "ics://...(redacted)", redactURL("not a url"))
}
