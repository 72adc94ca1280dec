// Package application implements the slot-computation pipeline that
// turns participant availability, the host's weekly template, and the
// current blocker set into bookable slots.
package application

import (
	"errors"
	"time"

	"github.com/felixgeelhaar/michael/internal/scheduling/domain"
)

var (
	ErrNoWindows       = errors.New("at least one availability window is required")
	ErrInvalidDuration = domain.ErrInvalidDuration
	ErrInvalidWindow   = errors.New("availability window start must be before end")
)

// Window is one participant-supplied availability range. Start and End
// carry the participant's UTC offset.
type Window struct {
	Start time.Time
	End   time.Time
}

// Slot is a bookable candidate of exactly the requested duration,
// expressed in the participant's display timezone.
type Slot struct {
	Start time.Time
	End   time.Time
}

// SlotRequest carries everything the engine needs; it performs no I/O.
type SlotRequest struct {
	Windows    []Window
	Duration   time.Duration
	Weekly     []domain.WeeklySlot
	HostLoc    *time.Location
	DisplayLoc *time.Location
	Blockers   []domain.Interval
	Now        time.Time
	Settings   domain.Settings
}

// ComputeSlots runs the full pipeline: convert windows to instants,
// expand the weekly template over the covered date range, intersect,
// subtract blockers, chunk to the requested duration, and filter by the
// scheduling-window policy. Output order is the natural order of
// intersection × chunk and is stable for identical inputs.
func ComputeSlots(req SlotRequest) ([]Slot, error) {
	minutes := int(req.Duration / time.Minute)
	if minutes < domain.MinDurationMinutes || minutes > domain.MaxDurationMinutes {
		return nil, ErrInvalidDuration
	}
	if len(req.Windows) == 0 {
		return nil, ErrNoWindows
	}

	windows := make([]domain.Interval, 0, len(req.Windows))
	for _, w := range req.Windows {
		iv := domain.NewInterval(w.Start, w.End)
		if iv.IsEmpty() {
			return nil, ErrInvalidWindow
		}
		windows = append(windows, iv)
	}

	rangeStart, rangeEnd := windows[0].Start, windows[0].End
	for _, w := range windows[1:] {
		if w.Start.Before(rangeStart) {
			rangeStart = w.Start
		}
		if w.End.After(rangeEnd) {
			rangeEnd = w.End
		}
	}

	hostSlots := ExpandWeekly(req.Weekly, rangeStart, rangeEnd, req.HostLoc)

	slots := make([]Slot, 0)
	for _, w := range windows {
		for _, h := range hostSlots {
			overlap, ok := domain.Intersect(w, h)
			if !ok {
				continue
			}
			for _, free := range domain.Subtract(overlap, req.Blockers) {
				for _, c := range domain.Chunk(req.Duration, free) {
					if !req.Settings.WindowContains(c.Start, req.Now) {
						continue
					}
					slots = append(slots, Slot{
						Start: c.Start.In(req.DisplayLoc),
						End:   c.End.In(req.DisplayLoc),
					})
				}
			}
		}
	}
	return slots, nil
}

// ExpandWeekly turns the weekly template into concrete instant intervals
// for every host-local date in [rangeStart, rangeEnd]. Local times that
// fall into a DST gap resolve forward, shortening the slot; a slot whose
// start lands at or past its end after resolution is dropped.
func ExpandWeekly(weekly []domain.WeeklySlot, rangeStart, rangeEnd time.Time, hostLoc *time.Location) []domain.Interval {
	if hostLoc == nil {
		hostLoc = time.UTC
	}

	localStart := rangeStart.In(hostLoc)
	localEnd := rangeEnd.In(hostLoc)
	day := time.Date(localStart.Year(), localStart.Month(), localStart.Day(), 0, 0, 0, 0, hostLoc)
	lastDay := time.Date(localEnd.Year(), localEnd.Month(), localEnd.Day(), 0, 0, 0, 0, hostLoc)

	var out []domain.Interval
	for ; !day.After(lastDay); day = day.AddDate(0, 0, 1) {
		dow := domain.ISOWeekday(day.Weekday())
		for _, ws := range weekly {
			if ws.DayOfWeek != dow {
				continue
			}
			startMin, err := domain.ParseTimeOfDay(ws.StartTime)
			if err != nil {
				continue
			}
			endMin, err := domain.ParseTimeOfDay(ws.EndTime)
			if err != nil {
				continue
			}
			start := wallTime(day, startMin, hostLoc)
			end := wallTime(day, endMin, hostLoc)
			if !start.Before(end) {
				continue
			}
			out = append(out, domain.NewInterval(start, end))
		}
	}
	return out
}

// wallTime returns the instant for the wall-clock minute offset on day.
// A wall time skipped by a DST transition resolves forward to the first
// instant after the gap; ambiguous wall times take the first occurrence.
func wallTime(day time.Time, minutes int, loc *time.Location) time.Time {
	t := time.Date(day.Year(), day.Month(), day.Day(), minutes/60, minutes%60, 0, 0, loc)
	if got := t.Hour()*60 + t.Minute(); got < minutes {
		// The construction landed before the gap; push past it.
		t = t.Add(time.Duration(minutes-got) * time.Minute)
	}
	return t
}
