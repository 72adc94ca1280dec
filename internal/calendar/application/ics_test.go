package application

import (
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav/caldav"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/michael/internal/calendar/domain"
)

func decodeICS(t *testing.T, text string) *ical.Calendar {
	t.Helper()
	text = strings.ReplaceAll(strings.TrimSpace(text), "\n", "\r\n") + "\r\n"
	cal, err := ical.NewDecoder(strings.NewReader(text)).Decode()
	require.NoError(t, err)
	return cal
}

func wrapICS(events string) string {
	return "BEGIN:VCALENDAR\nVERSION:2.0\nPRODID:-//test//EN\n" + strings.TrimSpace(events) + "\nEND:VCALENDAR"
}

func newExpander(t *testing.T) *expander {
	t.Helper()
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return &expander{hostLoc: ny, logger: slog.Default()}
}

func expandOne(t *testing.T, x *expander, events string, from, to time.Time) []domain.CachedEvent {
	t.Helper()
	objects := []caldav.CalendarObject{{
		Path: "/calendars/user/default/test.ics",
		Data: decodeICS(t, wrapICS(events)),
	}}
	return x.Expand(uuid.New(), "/calendars/user/default/", objects, from, to)
}

var (
	horizonFrom = time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	horizonTo   = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
)

func TestExpandTimedEvent(t *testing.T) {
	x := newExpander(t)

	got := expandOne(t, x, `
BEGIN:VEVENT
UID:event-1
SUMMARY:Team sync
DTSTART:20260210T180000Z
DTEND:20260210T190000Z
END:VEVENT`, horizonFrom, horizonTo)

	require.Len(t, got, 1)
	assert.Equal(t, "event-1", got[0].UID)
	assert.Equal(t, "Team sync", got[0].Summary)
	assert.True(t, got[0].Start.Equal(time.Date(2026, 2, 10, 18, 0, 0, 0, time.UTC)))
	assert.True(t, got[0].End.Equal(time.Date(2026, 2, 10, 19, 0, 0, 0, time.UTC)))
	assert.False(t, got[0].AllDay)
}

func TestExpandAllDayEvent(t *testing.T) {
	x := newExpander(t)

	got := expandOne(t, x, `
BEGIN:VEVENT
UID:allday-1
SUMMARY:Conference
DTSTART;VALUE=DATE:20260211
END:VEVENT`, horizonFrom, horizonTo)

	require.Len(t, got, 1)
	assert.True(t, got[0].AllDay)
	// Blocks host-local midnight to midnight.
	assert.True(t, got[0].Start.Equal(time.Date(2026, 2, 11, 0, 0, 0, 0, x.hostLoc)))
	assert.True(t, got[0].End.Equal(time.Date(2026, 2, 12, 0, 0, 0, 0, x.hostLoc)))
}

func TestExpandSkipsCancelledAndTransparent(t *testing.T) {
	x := newExpander(t)

	got := expandOne(t, x, `
BEGIN:VEVENT
UID:cancelled-1
DTSTART:20260210T180000Z
DTEND:20260210T190000Z
STATUS:CANCELLED
END:VEVENT
BEGIN:VEVENT
UID:transparent-1
DTSTART:20260210T180000Z
DTEND:20260210T190000Z
TRANSP:TRANSPARENT
END:VEVENT`, horizonFrom, horizonTo)

	assert.Empty(t, got)
}

func TestExpandSkipsEventWithoutUID(t *testing.T) {
	x := newExpander(t)

	got := expandOne(t, x, `
BEGIN:VEVENT
DTSTART:20260210T180000Z
DTEND:20260210T190000Z
END:VEVENT`, horizonFrom, horizonTo)

	assert.Empty(t, got)
}

func TestExpandRecurringDaily(t *testing.T) {
	x := newExpander(t)

	got := expandOne(t, x, `
BEGIN:VEVENT
UID:recurring-1
SUMMARY:Standup
DTSTART:20260210T150000Z
DTEND:20260210T151500Z
RRULE:FREQ=DAILY;COUNT=3
END:VEVENT`, horizonFrom, horizonTo)

	require.Len(t, got, 3)
	for i, e := range got {
		want := time.Date(2026, 2, 10+i, 15, 0, 0, 0, time.UTC)
		assert.True(t, e.Start.Equal(want), "occurrence %d", i)
		assert.Equal(t, 15*time.Minute, e.End.Sub(e.Start))
	}
}

func TestExpandRecurringWithExdate(t *testing.T) {
	x := newExpander(t)

	got := expandOne(t, x, `
BEGIN:VEVENT
UID:recurring-2
DTSTART:20260210T150000Z
DTEND:20260210T153000Z
RRULE:FREQ=DAILY;COUNT=3
EXDATE:20260211T150000Z
END:VEVENT`, horizonFrom, horizonTo)

	require.Len(t, got, 2)
	assert.True(t, got[0].Start.Equal(time.Date(2026, 2, 10, 15, 0, 0, 0, time.UTC)))
	assert.True(t, got[1].Start.Equal(time.Date(2026, 2, 12, 15, 0, 0, 0, time.UTC)))
}

func TestExpandRecurringWithRepeatedExdateProps(t *testing.T) {
	x := newExpander(t)

	// Exclusions split across several EXDATE lines plus a
	// comma-separated list all apply.
	got := expandOne(t, x, `
BEGIN:VEVENT
UID:recurring-exdates
DTSTART:20260210T150000Z
DTEND:20260210T153000Z
RRULE:FREQ=DAILY;COUNT=5
EXDATE:20260211T150000Z
EXDATE:20260213T150000Z,20260214T150000Z
END:VEVENT`, horizonFrom, horizonTo)

	require.Len(t, got, 2)
	assert.True(t, got[0].Start.Equal(time.Date(2026, 2, 10, 15, 0, 0, 0, time.UTC)))
	assert.True(t, got[1].Start.Equal(time.Date(2026, 2, 12, 15, 0, 0, 0, time.UTC)))
}

func TestExpandRecurringClippedToHorizon(t *testing.T) {
	x := newExpander(t)

	got := expandOne(t, x, `
BEGIN:VEVENT
UID:recurring-3
DTSTART:20260225T150000Z
DTEND:20260225T153000Z
RRULE:FREQ=DAILY
END:VEVENT`, horizonFrom, horizonTo)

	// Unbounded daily rule only yields occurrences inside the horizon.
	require.NotEmpty(t, got)
	for _, e := range got {
		assert.True(t, e.Start.Before(horizonTo))
		assert.True(t, e.End.After(horizonFrom))
	}
}

func TestExpandEventWithTZID(t *testing.T) {
	x := newExpander(t)

	got := expandOne(t, x, `
BEGIN:VEVENT
UID:tzid-1
DTSTART;TZID=Europe/Berlin:20260210T140000
DTEND;TZID=Europe/Berlin:20260210T150000
END:VEVENT`, horizonFrom, horizonTo)

	require.Len(t, got, 1)
	// 14:00 Berlin (UTC+1) is 13:00 UTC.
	assert.True(t, got[0].Start.Equal(time.Date(2026, 2, 10, 13, 0, 0, 0, time.UTC)))
}

func TestExpandEventWithDuration(t *testing.T) {
	x := newExpander(t)

	got := expandOne(t, x, `
BEGIN:VEVENT
UID:duration-1
DTSTART:20260210T180000Z
DURATION:PT1H30M
END:VEVENT`, horizonFrom, horizonTo)

	require.Len(t, got, 1)
	assert.Equal(t, 90*time.Minute, got[0].End.Sub(got[0].Start))
}

func TestParseICSDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"PT30M", 30 * time.Minute},
		{"PT1H30M", 90 * time.Minute},
		{"P1D", 24 * time.Hour},
		{"P1DT12H", 36 * time.Hour},
		{"P2W", 14 * 24 * time.Hour},
		{"PT45S", 45 * time.Second},
		{"-PT15M", -15 * time.Minute},
	}
	for _, tt := range tests {
		got, err := parseICSDuration(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	for _, bad := range []string{"", "30M", "P1X", "T1H"} {
		_, err := parseICSDuration(bad)
		assert.Error(t, err, bad)
	}
}
