package ics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/SierraArcega/territory-plan-sub002/internal/domain"
)

const feed = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//Territory Plan//Calendar Sync Test//EN
BEGIN:VEVENT
UID:demo-1@example.com
SEQUENCE:2
LAST-MODIFIED:20250301T100000Z
DTSTAMP:20250301T100000Z
DTSTART:20250311T150000Z
DTEND:20250311T160000Z
SUMMARY:Springfield ISD demo
LOCATION:Zoom
ATTENDEE;CN=Jane Doe;PARTSTAT=ACCEPTED:mailto:Jane@Springfield-ISD.org
ATTENDEE;PARTSTAT=NEEDS-ACTION:mailto:rep@fullmind.com
END:VEVENT
BEGIN:VEVENT
UID:cancelled-1@example.com
DTSTAMP:20250301T100000Z
DTSTART:20250312T150000Z
DTEND:20250312T160000Z
SUMMARY:Cancelled call
STATUS:CANCELLED
END:VEVENT
BEGIN:VEVENT
UID:old-1@example.com
DTSTAMP:20250101T100000Z
DTSTART:20250101T150000Z
DTEND:20250101T160000Z
SUMMARY:Long gone
END:VEVENT
BEGIN:VEVENT
UID:standup@example.com
DTSTAMP:20250301T100000Z
DTSTART:20250310T090000Z
DTEND:20250310T093000Z
RRULE:FREQ=DAILY;COUNT=5
EXDATE:20250312T090000Z
SUMMARY:Standup
END:VEVENT
BEGIN:VEVENT
UID:standup@example.com
RECURRENCE-ID:20250313T090000Z
DTSTAMP:20250301T100000Z
DTSTART:20250313T100000Z
DTEND:20250313T103000Z
SUMMARY:Standup (moved)
END:VEVENT
BEGIN:VEVENT
UID:broken@example.com
DTSTAMP:20250301T100000Z
DTSTART:not-a-date
SUMMARY:Broken
END:VEVENT
END:VCALENDAR
`

func serve(t *testing.T, body string, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/calendar")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(strings.ReplaceAll(body, "\n", "\r\n")))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func window() domain.Window {
	return domain.Window{
		Start: time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 4, 9, 0, 0, 0, 0, time.UTC),
	}
}

func byID(events []domain.RawEvent) map[string]domain.RawEvent {
	out := make(map[string]domain.RawEvent, len(events))
	for _, ev := range events {
		out[ev.ProviderEventID] = ev
	}
	return out
}

func TestListEventsMapsFeed(t *testing.T) {
	srv := serve(t, feed, http.StatusOK)
	client := NewClient(time.Second, nil)

	events, err := client.ListEvents(context.Background(), domain.CalendarConnection{ID: "conn-1", AccountRef: srv.URL + "/private/token.ics"}, window())
	require.NoError(t, err)

	got := byID(events)
	require.NotContains(t, got, "cancelled-1@example.com")
	require.NotContains(t, got, "old-1@example.com")

	demo, ok := got["demo-1@example.com"]
	require.True(t, ok)
	require.NoError(t, demo.Err)
	require.Equal(t, "Springfield ISD demo", demo.Title)
	require.Equal(t, "Zoom", demo.Location)
	require.Equal(t, time.Date(2025, 3, 11, 15, 0, 0, 0, time.UTC), demo.StartAt)
	require.Equal(t, time.Date(2025, 3, 11, 16, 0, 0, 0, time.UTC), demo.EndAt)
	require.Equal(t, "2/20250301T100000Z", demo.Version)
	require.Equal(t, []domain.Attendee{
		{Email: "Jane@Springfield-ISD.org", Name: "Jane Doe", ResponseStatus: "accepted"},
		{Email: "rep@fullmind.com", ResponseStatus: "needsAction"},
	}, demo.Attendees)

	broken, ok := got["broken@example.com"]
	require.True(t, ok)
	require.Error(t, broken.Err)
}

func TestListEventsExpandsRecurrence(t *testing.T) {
	srv := serve(t, feed, http.StatusOK)

	events, err := NewClient(time.Second, nil).ListEvents(context.Background(), domain.CalendarConnection{AccountRef: srv.URL}, window())
	require.NoError(t, err)

	got := byID(events)
	require.Contains(t, got, "standup@example.com/20250310T090000Z")
	require.Contains(t, got, "standup@example.com/20250311T090000Z")
	require.NotContains(t, got, "standup@example.com/20250312T090000Z")
	require.Contains(t, got, "standup@example.com/20250314T090000Z")

	moved := got["standup@example.com/20250313T090000Z"]
	require.Equal(t, "Standup (moved)", moved.Title)
	require.Equal(t, time.Date(2025, 3, 13, 10, 0, 0, 0, time.UTC), moved.StartAt)
}

func TestListEventsFailsOnBadStatus(t *testing.T) {
	srv := serve(t, "", http.StatusForbidden)

	_, err := NewClient(time.Second, nil).ListEvents(context.Background(), domain.CalendarConnection{AccountRef: srv.URL + "/secret"}, window())
	require.Error(t, err)
	require.NotContains(t, err.Error(), "secret")
}

func TestRedactURL(t *testing.T) {
	require.Equal(t, "https://calendar.example.com/...(redacted)", redactURL("https://calendar.example.com/ical/abc/private.ics?token=1"))
	require.Equal(t, "ics://(redacted)", redactURL("not a url"))
}

func TestListEventsFlagsTruncatedSeries(t *testing.T) {
	hourly := `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//Territory Plan//Calendar Sync Test//EN
BEGIN:VEVENT
UID:hourly@example.com
DTSTAMP:20250301T100000Z
DTSTART:20250303T000000Z
DTEND:20250303T001500Z
RRULE:FREQ=HOURLY
SUMMARY:Hourly check-in
END:VEVENT
END:VCALENDAR
`
	srv := serve(t, hourly, http.StatusOK)

	events, err := NewClient(time.Second, nil).ListEvents(context.Background(), domain.CalendarConnection{AccountRef: srv.URL}, window())
	require.NoError(t, err)

	var instances int
	var series *domain.RawEvent
	for i, ev := range events {
		if ev.ProviderEventID == "hourly@example.com" {
			series = &events[i]
			continue
		}
		require.True(t, strings.HasPrefix(ev.ProviderEventID, "hourly@example.com/"))
		instances++
	}
	require.Equal(t, maxOccurrences, instances)
	require.NotNil(t, series, "a cut series is reported under its UID")
	require.Error(t, series.Err)
}
