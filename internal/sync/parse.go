package sync

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"
	"unicode/utf8"

	ical "github.com/arran4/golang-ical"
	"github.com/microcosm-cc/bluemonday"
	"github.com/teambition/rrule-go"

	"github.com/jdholdren/garage/internal/garage"
)

const (
	maxSummaryLen = 512

	// Upper bound on the occurrences taken from one recurring event.
	maxOccurrences = 1000
	// Upper bound on the instants generated while expanding one recurring event, including the
	// ones before the window and the ones landing on a day already taken.
	maxExpansionSteps = 100_000

	// Longest DURATION accepted on an event.
	maxDurationDays = 10 * 366

	icalDate = "20060102"
)

// Parsed is what survived parsing a calendar document.
type Parsed struct {
	Events []garage.ExternalEvent
	// Events that were dropped because they couldn't be read, e.g. a missing DTSTART.
	Skipped int
}

// Parse reads a calendar document into external events. Every event is treated as all-day: only
// the date part of DTSTART and DTEND is used. Recurring events are expanded into one event per
// occurrence that overlaps window.
//
// A document that isn't a calendar at all is a [*garage.ParseError]; an individual event that
// can't be read is skipped and counted.
func Parse(body []byte, window garage.Range) (Parsed, error) {
	trimmed := bytes.TrimLeft(body, "\ufeff \t\r\n")
	if !bytes.HasPrefix(trimmed, []byte("BEGIN:VCALENDAR")) {
		return Parsed{}, &garage.ParseError{Err: errors.New("document is not a calendar")}
	}

	cal, err := ical.ParseCalendarWithOptions(bytes.NewReader(trimmed), ical.WithUnknownPropertyHandler(ical.AcceptUnknownPropertyHandler))
	if err != nil {
		return Parsed{}, &garage.ParseError{Err: err}
	}

	var (
		parsed    Parsed
		base      []vevent
		overrides = map[string]vevent{}
	)
	for _, ve := range cal.Events() {
		ev, err := readEvent(ve)
		if err != nil {
			parsed.Skipped++
			continue
		}

		if ev.recurrenceID != "" {
			overrides[ev.uid+"/"+ev.recurrenceID] = ev
			continue
		}
		base = append(base, ev)
	}

	for _, ev := range base {
		if ev.rrule == "" {
			if !ev.cancelled {
				parsed.Events = append(parsed.Events, ev.external(ev.uid))
			}
			continue
		}

		occurrences, err := ev.expand(window)
		if err != nil {
			parsed.Skipped++
			continue
		}
		for _, occ := range occurrences {
			key := occ.start.Time().Format(icalDate)
			uid := ev.uid + "/" + key
			if o, ok := overrides[uid]; ok {
				occ = o
			}
			if occ.cancelled {
				continue
			}
			parsed.Events = append(parsed.Events, occ.external(uid))
		}
	}

	return parsed, nil
}

// One VEVENT, reduced to what's needed.
type vevent struct {
	uid          string
	summary      string
	start, end   garage.Date
	cancelled    bool
	rrule        string
	exdates      []garage.Date
	recurrenceID string // yyyymmdd of the occurrence this overrides
}

func readEvent(ve *ical.VEvent) (vevent, error) {
	var ev vevent

	dtstart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtstart == nil {
		return vevent{}, errors.New("missing DTSTART")
	}
	start, err := dateOf(dtstart.Value)
	if err != nil {
		return vevent{}, fmt.Errorf("bad DTSTART: %w", err)
	}
	ev.start, ev.end = start, start

	// DTEND is exclusive for dates and for midnight; the last day covered is the day before.
	if dtend := ve.GetProperty(ical.ComponentPropertyDtEnd); dtend != nil {
		end, err := dateOf(dtend.Value)
		if err != nil {
			return vevent{}, fmt.Errorf("bad DTEND: %w", err)
		}
		if isDateOnly(dtend) || isMidnight(dtend.Value) {
			end = end.AddDays(-1)
		}
		if end.After(start) {
			ev.end = end
		}
	} else if p := ve.GetProperty(ical.ComponentPropertyDuration); p != nil {
		dur, err := parseDuration(p.Value)
		if err != nil {
			return vevent{}, fmt.Errorf("bad DURATION: %w", err)
		}
		if end := endAfter(start, clockOf(dtstart), dur); end.After(start) {
			ev.end = end
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		ev.summary = sanitize(p.Value)
	}
	if p := ve.GetProperty(ical.ComponentPropertyStatus); p != nil {
		ev.cancelled = strings.EqualFold(strings.TrimSpace(p.Value), string(ical.ObjectStatusCancelled))
	}

	if p := ve.GetProperty(ical.ComponentPropertyUniqueId); p != nil {
		ev.uid = strings.TrimSpace(p.Value)
	}
	if ev.uid == "" {
		ev.uid = synthesizeUID(ev.start, ev.end, ev.summary)
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		ev.rrule = strings.TrimSpace(p.Value)
	}
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, v := range strings.Split(p.Value, ",") {
			d, err := dateOf(v)
			if err != nil {
				continue
			}
			ev.exdates = append(ev.exdates, d)
		}
	}
	if p := ve.GetProperty(ical.ComponentPropertyRecurrenceId); p != nil {
		rid, err := dateOf(p.Value)
		if err != nil {
			return vevent{}, fmt.Errorf("bad RECURRENCE-ID: %w", err)
		}
		ev.recurrenceID = rid.Time().Format(icalDate)
	}

	return ev, nil
}

// Expands a recurring event into its occurrences overlapping window, keeping its length in days.
func (ev vevent) expand(window garage.Range) ([]vevent, error) {
	rule, err := rrule.StrToRRule(ev.rrule)
	if err != nil {
		return nil, fmt.Errorf("bad RRULE: %w", err)
	}
	// Everything is all-day, so a rule firing more than daily adds nothing but work.
	if rule.OrigOptions.Freq > rrule.DAILY {
		return nil, fmt.Errorf("unsupported RRULE frequency %s", rule.OrigOptions.Freq)
	}
	rule.DTStart(ev.start.Time())

	var set rrule.Set
	set.RRule(rule)
	for _, ex := range ev.exdates {
		set.ExDate(ex.Time())
	}

	span := ev.start.DaysUntil(ev.end)
	// Occurrences starting before the window can still run into it.
	from := window.Start.AddDays(-span).Time()
	to := window.End.Time()

	var (
		out  []vevent
		seen = map[garage.Date]bool{}
		next = set.Iterator()
	)
	for step := 0; len(out) < maxOccurrences; step++ {
		if step == maxExpansionSteps {
			return nil, fmt.Errorf("RRULE expands to more than %d instants", maxExpansionSteps)
		}

		t, ok := next()
		if !ok || t.After(to) {
			break
		}
		d := garage.DateOf(t)
		if t.Before(from) || seen[d] {
			continue
		}
		seen[d] = true

		occ := ev
		occ.start = d
		occ.end = occ.start.AddDays(span)
		occ.rrule = ""
		out = append(out, occ)
	}

	return out, nil
}

func (ev vevent) external(uid string) garage.ExternalEvent {
	return garage.ExternalEvent{
		ExternalUID: uid,
		Summary:     ev.summary,
		Range:       garage.Range{Start: ev.start, End: ev.end},
	}
}

// Takes the date of an iCal DATE or DATE-TIME value, ignoring the time and zone.
func dateOf(v string) (garage.Date, error) {
	v = strings.TrimSpace(v)
	if len(v) < len(icalDate) {
		return garage.Date{}, fmt.Errorf("%q is not a date", v)
	}

	t, err := time.Parse(icalDate, v[:len(icalDate)])
	if err != nil {
		return garage.Date{}, fmt.Errorf("%q is not a date", v)
	}

	return garage.DateOf(t), nil
}

// The time of day of a DATE-TIME value, ignoring its zone. Zero for a DATE.
func clockOf(p *ical.IANAProperty) time.Duration {
	if isDateOnly(p) {
		return 0
	}

	_, clock, _ := strings.Cut(strings.TrimSpace(p.Value), "T")
	if len(clock) < len("150405") {
		return 0
	}
	t, err := time.Parse("150405", clock[:len("150405")])
	if err != nil {
		return 0
	}

	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute + time.Duration(t.Second())*time.Second
}

// The last day covered by an event starting at clock on start and lasting dur. As with DTEND,
// an end falling exactly on midnight is exclusive.
func endAfter(start garage.Date, clock, dur time.Duration) garage.Date {
	if dur <= 0 {
		return start
	}

	endAt := start.Time().Add(clock + dur)
	end := garage.DateOf(endAt)
	if endAt.Equal(end.Time()) {
		end = end.AddDays(-1)
	}

	return end
}

// Reads an iCal DURATION value such as P3D, P1W, PT36H or -P1DT2H30M.
func parseDuration(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	orig := v

	sign := time.Duration(1)
	switch {
	case strings.HasPrefix(v, "-"):
		sign, v = -1, v[1:]
	case strings.HasPrefix(v, "+"):
		v = v[1:]
	}
	if !strings.HasPrefix(v, "P") || len(v) == 1 {
		return 0, fmt.Errorf("%q is not a duration", orig)
	}
	v = v[1:]

	var (
		total  time.Duration
		inTime bool
		digits int
		parts  int
	)
	for i := 0; i < len(v); i++ {
		c := v[i]
		switch {
		case c >= '0' && c <= '9':
			digits = digits*10 + int(c-'0')
			if digits > maxDurationDays*24*60*60 {
				return 0, fmt.Errorf("%q is too long", orig)
			}
			continue
		case c == 'T' && !inTime:
			inTime = true
			continue
		}

		if i == 0 || v[i-1] < '0' || v[i-1] > '9' {
			return 0, fmt.Errorf("%q is not a duration", orig)
		}
		var unit time.Duration
		switch {
		case c == 'W' && !inTime:
			unit = 7 * 24 * time.Hour
		case c == 'D' && !inTime:
			unit = 24 * time.Hour
		case c == 'H' && inTime:
			unit = time.Hour
		case c == 'M' && inTime:
			unit = time.Minute
		case c == 'S' && inTime:
			unit = time.Second
		default:
			return 0, fmt.Errorf("%q is not a duration", orig)
		}
		if time.Duration(digits) > maxDurationDays*24*time.Hour/unit {
			return 0, fmt.Errorf("%q is too long", orig)
		}
		total += time.Duration(digits) * unit
		digits = 0
		parts++
	}
	if parts == 0 || digits != 0 || strings.HasSuffix(v, "T") {
		return 0, fmt.Errorf("%q is not a duration", orig)
	}

	return sign * total, nil
}

func isDateOnly(p *ical.IANAProperty) bool {
	for _, v := range p.ICalParameters[string(ical.ParameterValue)] {
		if strings.EqualFold(v, string(ical.ValueDataTypeDate)) {
			return true
		}
	}

	return !strings.Contains(p.Value, "T")
}

func isMidnight(v string) bool {
	_, clock, ok := strings.Cut(strings.TrimSpace(v), "T")
	return ok && strings.HasPrefix(clock, "000000")
}

// Events without a UID still need a key that's stable across fetches.
func synthesizeUID(start, end garage.Date, summary string) string {
	sum := sha256.Sum256([]byte(start.String() + "|" + end.String() + "|" + summary))
	return "synthesized-" + hex.EncodeToString(sum[:16])
}

var stripPolicy = bluemonday.StrictPolicy()

// Removes all html tags from the summary and limits its length.
func sanitize(s string) string {
	s = stripPolicy.Sanitize(strings.TrimSpace(s))
	s = strings.TrimSpace(html.UnescapeString(s))
	if len(s) <= maxSummaryLen {
		return s
	}

	cut := maxSummaryLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
