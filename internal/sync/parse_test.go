package sync

import (
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdholdren/garage/internal/garage"
)

func rng(start, end string) garage.Range {
	return garage.Range{Start: garage.MustDate(start), End: garage.MustDate(end)}
}

var testWindow = rng("2025-01-01", "2025-12-31")

func calendar(events ...string) []byte {
	return []byte("BEGIN:VCALENDAR\nVERSION:2.0\nPRODID:-//test//test//EN\n" + strings.Join(events, "") + "END:VCALENDAR\n")
}

func TestParse_AllDay(t *testing.T) {
	body := calendar(`BEGIN:VEVENT
UID:abc
DTSTART;VALUE=DATE:20250701
DTEND;VALUE=DATE:20250704
SUMMARY:Reserved
END:VEVENT
`)

	parsed, err := Parse(body, testWindow)
	require.NoError(t, err)
	require.Len(t, parsed.Events, 1)
	assert.Equal(t, 0, parsed.Skipped)

	ev := parsed.Events[0]
	assert.Equal(t, "abc", ev.ExternalUID)
	assert.Equal(t, "Reserved", ev.Summary)
	assert.Equal(t, rng("2025-07-01", "2025-07-03"), ev.Range)
}

func TestParse_DatesAndTimes(t *testing.T) {
	tests := []struct {
		name   string
		dates  string
		expect garage.Range
	}{
		{
			name:   "time of day is ignored",
			dates:  "DTSTART:20250701T150000Z\nDTEND:20250703T100000Z\n",
			expect: rng("2025-07-01", "2025-07-03"),
		},
		{
			name:   "end at midnight is exclusive",
			dates:  "DTSTART:20250701T150000Z\nDTEND:20250703T000000Z\n",
			expect: rng("2025-07-01", "2025-07-02"),
		},
		{
			name:   "zoned times",
			dates:  "DTSTART;TZID=Europe/Berlin:20250701T090000\nDTEND;TZID=Europe/Berlin:20250701T170000\n",
			expect: rng("2025-07-01", "2025-07-01"),
		},
		{
			name:   "missing end is one day",
			dates:  "DTSTART;VALUE=DATE:20250701\n",
			expect: rng("2025-07-01", "2025-07-01"),
		},
		{
			name:   "end before start is clamped",
			dates:  "DTSTART;VALUE=DATE:20250705\nDTEND;VALUE=DATE:20250701\n",
			expect: rng("2025-07-05", "2025-07-05"),
		},
		{
			name:   "duration in days",
			dates:  "DTSTART;VALUE=DATE:20250701\nDURATION:P3D\n",
			expect: rng("2025-07-01", "2025-07-03"),
		},
		{
			name:   "duration in weeks",
			dates:  "DTSTART;VALUE=DATE:20250701\nDURATION:P1W\n",
			expect: rng("2025-07-01", "2025-07-07"),
		},
		{
			name:   "duration with hours runs into the next day",
			dates:  "DTSTART:20250701T200000Z\nDURATION:PT6H\n",
			expect: rng("2025-07-01", "2025-07-02"),
		},
		{
			name:   "duration ending at midnight is exclusive",
			dates:  "DTSTART:20250701T150000Z\nDURATION:P1DT9H\n",
			expect: rng("2025-07-01", "2025-07-02"),
		},
		{
			name:   "zero duration is one day",
			dates:  "DTSTART;VALUE=DATE:20250701\nDURATION:PT0S\n",
			expect: rng("2025-07-01", "2025-07-01"),
		},
		{
			name:   "zero length date range is one day",
			dates:  "DTSTART;VALUE=DATE:20250701\nDTEND;VALUE=DATE:20250701\n",
			expect: rng("2025-07-01", "2025-07-01"),
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			parsed, err := Parse(calendar("BEGIN:VEVENT\nUID:x\n"+test.dates+"END:VEVENT\n"), testWindow)
			require.NoError(t, err)
			require.Len(t, parsed.Events, 1)
			assert.Equal(t, test.expect, parsed.Events[0].Range)
		})
	}
}

func TestParse_MissingUID(t *testing.T) {
	body := calendar(`BEGIN:VEVENT
DTSTART;VALUE=DATE:20250701
DTEND;VALUE=DATE:20250704
SUMMARY:No uid here
END:VEVENT
BEGIN:VEVENT
DTSTART;VALUE=DATE:20250801
DTEND;VALUE=DATE:20250804
SUMMARY:No uid here
END:VEVENT
`)

	first, err := Parse(body, testWindow)
	require.NoError(t, err)
	second, err := Parse(body, testWindow)
	require.NoError(t, err)

	require.Len(t, first.Events, 2)
	assert.NotEmpty(t, first.Events[0].ExternalUID)
	assert.NotEqual(t, first.Events[0].ExternalUID, first.Events[1].ExternalUID)
	assert.Equal(t, first.Events, second.Events)
}

func TestParse_SkipsMalformedAndCancelled(t *testing.T) {
	body := calendar(`BEGIN:VEVENT
UID:good
DTSTART;VALUE=DATE:20250701
END:VEVENT
BEGIN:VEVENT
UID:no-start
SUMMARY:Where does this go
END:VEVENT
BEGIN:VEVENT
UID:bad-start
DTSTART:tomorrow
END:VEVENT
BEGIN:VEVENT
UID:cancelled
DTSTART;VALUE=DATE:20250710
STATUS:CANCELLED
END:VEVENT
`)

	parsed, err := Parse(body, testWindow)
	require.NoError(t, err)
	require.Len(t, parsed.Events, 1)
	assert.Equal(t, "good", parsed.Events[0].ExternalUID)
	assert.Equal(t, 2, parsed.Skipped)
}

func TestParse_Recurring(t *testing.T) {
	body := calendar(`BEGIN:VEVENT
UID:weekly
DTSTART;VALUE=DATE:20250601
DTEND;VALUE=DATE:20250603
RRULE:FREQ=WEEKLY;COUNT=4
EXDATE;VALUE=DATE:20250608
SUMMARY:Weekly lease
END:VEVENT
BEGIN:VEVENT
UID:weekly
RECURRENCE-ID;VALUE=DATE:20250615
DTSTART;VALUE=DATE:20250616
DTEND;VALUE=DATE:20250617
SUMMARY:Moved
END:VEVENT
`)

	parsed, err := Parse(body, testWindow)
	require.NoError(t, err)

	got := map[string]garage.ExternalEvent{}
	for _, ev := range parsed.Events {
		got[ev.ExternalUID] = ev
	}
	require.Len(t, got, 3)

	assert.Equal(t, rng("2025-06-01", "2025-06-02"), got["weekly/20250601"].Range)
	assert.Equal(t, "Weekly lease", got["weekly/20250601"].Summary)
	assert.NotContains(t, got, "weekly/20250608")
	assert.Equal(t, rng("2025-06-16", "2025-06-16"), got["weekly/20250615"].Range)
	assert.Equal(t, "Moved", got["weekly/20250615"].Summary)
	assert.Equal(t, rng("2025-06-22", "2025-06-23"), got["weekly/20250622"].Range)
}

func TestParse_RecurringBoundedByWindow(t *testing.T) {
	body := calendar(`BEGIN:VEVENT
UID:daily
DTSTART;VALUE=DATE:20200101
RRULE:FREQ=DAILY
END:VEVENT
`)

	parsed, err := Parse(body, rng("2025-03-01", "2025-03-10"))
	require.NoError(t, err)
	require.Len(t, parsed.Events, 10)
	assert.Equal(t, "daily/20250301", parsed.Events[0].ExternalUID)
	assert.Equal(t, "daily/20250310", parsed.Events[9].ExternalUID)
}

func TestParse_RecurringBelowDailyIsSkipped(t *testing.T) {
	body := calendar(`BEGIN:VEVENT
UID:every-second
DTSTART:20250101T000000Z
DTEND:20250101T000001Z
RRULE:FREQ=SECONDLY
END:VEVENT
BEGIN:VEVENT
UID:hourly
DTSTART:20250101T000000Z
RRULE:FREQ=HOURLY
END:VEVENT
`)

	parsed, err := Parse(body, testWindow)
	require.NoError(t, err)
	assert.Empty(t, parsed.Events)
	assert.Equal(t, 2, parsed.Skipped)
}

func TestParse_RecurringSeveralTimesADay(t *testing.T) {
	hours := make([]string, 24)
	for i := range hours {
		hours[i] = strconv.Itoa(i)
	}
	minutes := make([]string, 60)
	for i := range minutes {
		minutes[i] = strconv.Itoa(i)
	}

	body := calendar(`BEGIN:VEVENT
UID:hours
DTSTART:20250301T000000Z
RRULE:FREQ=DAILY;BYHOUR=`+strings.Join(hours, ",")+`
END:VEVENT
BEGIN:VEVENT
UID:minutes
DTSTART:20200101T000000Z
RRULE:FREQ=DAILY;BYHOUR=`+strings.Join(hours, ",")+`;BYMINUTE=`+strings.Join(minutes, ",")+`
END:VEVENT
`)

	parsed, err := Parse(body, rng("2025-03-01", "2025-03-10"))
	require.NoError(t, err)

	// One occurrence per day, however many times the rule fires on it.
	require.Len(t, parsed.Events, 10)
	assert.Equal(t, "hours/20250301", parsed.Events[0].ExternalUID)
	assert.Equal(t, "hours/20250310", parsed.Events[9].ExternalUID)
	// Five years of every minute is given up on before reaching the window.
	assert.Equal(t, 1, parsed.Skipped)
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in     string
		expect time.Duration
		err    bool
	}{
		{in: "P3D", expect: 72 * time.Hour},
		{in: "P2W", expect: 14 * 24 * time.Hour},
		{in: "PT36H", expect: 36 * time.Hour},
		{in: "P1DT2H30M15S", expect: 26*time.Hour + 30*time.Minute + 15*time.Second},
		{in: "+PT15M", expect: 15 * time.Minute},
		{in: "-P1D", expect: -24 * time.Hour},
		{in: "P", err: true},
		{in: "PT", err: true},
		{in: "P1DT", err: true},
		{in: "3D", err: true},
		{in: "P1H", err: true},
		{in: "PT1D", err: true},
		{in: "PD", err: true},
		{in: "P1D2", err: true},
		{in: "P99999999W", err: true},
	}

	for _, test := range tests {
		t.Run(test.in, func(t *testing.T) {
			got, err := parseDuration(test.in)
			if test.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.expect, got)
		})
	}
}

func TestParse_SanitizesSummary(t *testing.T) {
	body := calendar("BEGIN:VEVENT\nUID:x\nDTSTART;VALUE=DATE:20250701\nSUMMARY:  <b>Booked</b> by <script>alert(1)</script>Sam & co  \nEND:VEVENT\n",
		"BEGIN:VEVENT\nUID:y\nDTSTART;VALUE=DATE:20250701\nSUMMARY:"+strings.Repeat("ü", 400)+"\nEND:VEVENT\n")

	parsed, err := Parse(body, testWindow)
	require.NoError(t, err)
	require.Len(t, parsed.Events, 2)
	assert.Equal(t, "Booked by Sam & co", parsed.Events[0].Summary)
	assert.LessOrEqual(t, len(parsed.Events[1].Summary), maxSummaryLen)
	assert.True(t, strings.HasPrefix(parsed.Events[1].Summary, "üü"))
	assert.Equal(t, strings.Repeat("ü", maxSummaryLen/2), parsed.Events[1].Summary)
}

func TestParse_NotACalendar(t *testing.T) {
	for _, body := range []string{
		"",
		"<html><body>Not found</body></html>",
		"BEGIN:VCALENDAR\nEND:VEVENT\n",
	} {
		_, err := Parse([]byte(body), testWindow)

		var parseErr *garage.ParseError
		require.ErrorAs(t, err, &parseErr, body)
	}
}
