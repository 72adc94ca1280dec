package application

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav/caldav"
	"github.com/google/uuid"
	"github.com/teambition/rrule-go"

	"github.com/felixgeelhaar/michael/internal/calendar/domain"
)

// expander turns fetched calendar objects into cached blocker events,
// expanding recurring series over the sync horizon.
type expander struct {
	hostLoc *time.Location
	logger  *slog.Logger
}

// Expand walks every VEVENT in the fetched objects and emits concrete
// occurrences intersecting [from, to). Occurrences with status
// CANCELLED or transparency TRANSPARENT are dropped.
func (x *expander) Expand(sourceID uuid.UUID, calendarURL string, objects []caldav.CalendarObject, from, to time.Time) []domain.CachedEvent {
	var events []domain.CachedEvent
	for _, obj := range objects {
		if obj.Data == nil {
			continue
		}
		for _, comp := range obj.Data.Children {
			if comp.Name != ical.CompEvent {
				continue
			}
			parsed, err := x.parseEvent(comp)
			if err != nil {
				x.logger.Warn("skipping unparseable event", "path", obj.Path, "error", err)
				continue
			}
			if parsed == nil {
				continue // cancelled or transparent
			}
			for _, occ := range x.occurrences(parsed, from, to) {
				events = append(events, domain.CachedEvent{
					ID:          uuid.New(),
					SourceID:    sourceID,
					CalendarURL: calendarURL,
					UID:         parsed.uid,
					Summary:     parsed.summary,
					Start:       occ.Start.UTC(),
					End:         occ.End.UTC(),
					AllDay:      parsed.allDay,
				})
			}
		}
	}
	return events
}

type parsedEvent struct {
	uid      string
	summary  string
	start    time.Time
	end      time.Time
	duration time.Duration
	allDay   bool
	rrule    string
	exDates  []time.Time
	rDates   []time.Time
}

type occurrence struct {
	Start time.Time
	End   time.Time
}

func (x *expander) parseEvent(comp *ical.Component) (*parsedEvent, error) {
	if p := comp.Props.Get(ical.PropStatus); p != nil && strings.EqualFold(p.Value, "CANCELLED") {
		return nil, nil
	}
	if p := comp.Props.Get(ical.PropTransparency); p != nil && strings.EqualFold(p.Value, "TRANSPARENT") {
		return nil, nil
	}

	e := &parsedEvent{}
	if p := comp.Props.Get(ical.PropUID); p != nil {
		e.uid = p.Value
	} else {
		return nil, fmt.Errorf("missing UID")
	}
	if p := comp.Props.Get(ical.PropSummary); p != nil {
		e.summary = p.Value
	}

	dtstart := comp.Props.Get(ical.PropDateTimeStart)
	if dtstart == nil {
		return nil, fmt.Errorf("missing DTSTART")
	}
	start, allDay, err := x.parseDateTime(dtstart)
	if err != nil {
		return nil, fmt.Errorf("invalid DTSTART: %w", err)
	}
	e.allDay = allDay
	if allDay {
		// All-day events block [local midnight, local midnight) in the
		// host timezone; DTEND is exclusive per RFC 5545.
		start = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, x.hostLoc)
	}
	e.start = start

	if dtend := comp.Props.Get(ical.PropDateTimeEnd); dtend != nil {
		end, _, err := x.parseDateTime(dtend)
		if err != nil {
			return nil, fmt.Errorf("invalid DTEND: %w", err)
		}
		if allDay {
			end = time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, x.hostLoc)
		}
		e.end = end
	} else if durProp := comp.Props.Get(ical.PropDuration); durProp != nil {
		dur, err := parseICSDuration(durProp.Value)
		if err != nil {
			return nil, fmt.Errorf("invalid DURATION: %w", err)
		}
		e.end = start.Add(dur)
	} else if allDay {
		e.end = start.AddDate(0, 0, 1)
	} else {
		e.end = start
	}
	if !e.end.After(e.start) {
		if allDay {
			e.end = e.start.AddDate(0, 0, 1)
		} else {
			return nil, fmt.Errorf("event has no duration")
		}
	}
	e.duration = e.end.Sub(e.start)

	if p := comp.Props.Get(ical.PropRecurrenceRule); p != nil {
		e.rrule = p.Value
	}
	for _, p := range comp.Props.Values(ical.PropExceptionDates) {
		e.exDates = append(e.exDates, x.parseDateList(p)...)
	}
	for _, p := range comp.Props.Values(ical.PropRecurrenceDates) {
		e.rDates = append(e.rDates, x.parseDateList(p)...)
	}
	return e, nil
}

// occurrences expands the series (or the single event) into concrete
// occurrences clipped to the horizon.
func (x *expander) occurrences(e *parsedEvent, from, to time.Time) []occurrence {
	if e.rrule == "" && len(e.rDates) == 0 {
		if e.start.Before(to) && e.end.After(from) {
			return []occurrence{{Start: e.start, End: e.end}}
		}
		return nil
	}

	var starts []time.Time
	if e.rrule != "" {
		spec := "DTSTART:" + e.start.UTC().Format("20060102T150405Z") + "\nRRULE:" + e.rrule
		rule, err := rrule.StrToRRule(spec)
		if err != nil {
			x.logger.Warn("invalid RRULE, treating event as single", "uid", e.uid, "error", err)
			starts = append(starts, e.start)
		} else {
			starts = rule.Between(from.Add(-e.duration), to.Add(e.duration), true)
		}
	}
	starts = append(starts, e.rDates...)

	var out []occurrence
	for _, s := range starts {
		if excluded(s, e.exDates) {
			continue
		}
		end := s.Add(e.duration)
		if s.Before(to) && end.After(from) {
			out = append(out, occurrence{Start: s, End: end})
		}
	}
	return out
}

// parseDateTime handles the three DTSTART/DTEND shapes: date-only,
// UTC-suffixed, and floating (optionally with a TZID parameter).
// Unrecognized timezone ids fall back to the host timezone.
func (x *expander) parseDateTime(p *ical.Prop) (time.Time, bool, error) {
	value := strings.TrimSpace(p.Value)

	if p.Params.Get("VALUE") == "DATE" || len(value) == 8 {
		t, err := time.ParseInLocation("20060102", value, x.hostLoc)
		return t, true, err
	}

	if strings.HasSuffix(value, "Z") {
		t, err := time.Parse("20060102T150405Z", value)
		return t, false, err
	}

	loc := x.hostLoc
	if tzid := p.Params.Get("TZID"); tzid != "" {
		if l, err := time.LoadLocation(tzid); err == nil {
			loc = l
		} else {
			x.logger.Warn("unknown TZID, using host timezone", "tzid", tzid)
		}
	}
	t, err := time.ParseInLocation("20060102T150405", value, loc)
	return t, false, err
}

func (x *expander) parseDateList(p ical.Prop) []time.Time {
	var out []time.Time
	for _, part := range strings.Split(p.Value, ",") {
		t, _, err := x.parseDateTime(&ical.Prop{Name: p.Name, Params: p.Params, Value: strings.TrimSpace(part)})
		if err != nil {
			continue
		}
		out = append(out, t)
	}
	return out
}

func excluded(t time.Time, exDates []time.Time) bool {
	for _, ex := range exDates {
		if ex.Equal(t) {
			return true
		}
	}
	return false
}

// parseICSDuration parses the RFC 5545 duration subset that appears in
// calendar events: [+|-]P[nD][T[nH][nM][nS]] and PnW.
func parseICSDuration(v string) (time.Duration, error) {
	s := strings.ToUpper(strings.TrimSpace(v))
	neg := false
	switch {
	case strings.HasPrefix(s, "-"):
		neg = true
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}
	if !strings.HasPrefix(s, "P") {
		return 0, fmt.Errorf("malformed duration %q", v)
	}
	s = s[1:]

	var d time.Duration
	var num int
	inTime := false
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			num = num*10 + int(r-'0')
		case r == 'T':
			inTime = true
		case r == 'W':
			d += time.Duration(num) * 7 * 24 * time.Hour
			num = 0
		case r == 'D':
			d += time.Duration(num) * 24 * time.Hour
			num = 0
		case r == 'H' && inTime:
			d += time.Duration(num) * time.Hour
			num = 0
		case r == 'M' && inTime:
			d += time.Duration(num) * time.Minute
			num = 0
		case r == 'S' && inTime:
			d += time.Duration(num) * time.Second
			num = 0
		default:
			return 0, fmt.Errorf("malformed duration %q", v)
		}
	}
	if neg {
		d = -d
	}
	return d, nil
}
