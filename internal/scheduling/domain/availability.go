package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidDayOfWeek  = errors.New("day of week must be between 1 (Monday) and 7 (Sunday)")
	ErrInvalidTimeOfDay  = errors.New("time of day must be in HH:MM format")
	ErrInvalidSlotRange  = errors.New("slot start time must be before end time")
	ErrNoAvailability    = errors.New("at least one availability slot is required")
	ErrInvalidMinNotice  = errors.New("minimum notice hours cannot be negative")
	ErrInvalidWindowDays = errors.New("booking window must be at least one day")
	ErrInvalidDuration   = errors.New("duration must be between 5 and 480 minutes")
)

const (
	// MinDurationMinutes and MaxDurationMinutes bound every bookable slot.
	MinDurationMinutes = 5
	MaxDurationMinutes = 480
)

// WeeklySlot is one entry of the host's recurring weekly availability
// template. Times are local to the host timezone; DayOfWeek follows ISO
// 8601 (Monday = 1, Sunday = 7).
type WeeklySlot struct {
	ID        int64
	DayOfWeek int
	StartTime string // "HH:MM"
	EndTime   string // "HH:MM"
}

// Validate checks the slot's internal invariants.
func (s WeeklySlot) Validate() error {
	if s.DayOfWeek < 1 || s.DayOfWeek > 7 {
		return ErrInvalidDayOfWeek
	}
	start, err := ParseTimeOfDay(s.StartTime)
	if err != nil {
		return err
	}
	end, err := ParseTimeOfDay(s.EndTime)
	if err != nil {
		return err
	}
	if start >= end {
		return ErrInvalidSlotRange
	}
	return nil
}

// ValidateWeeklySlots checks a full replacement template.
func ValidateWeeklySlots(slots []WeeklySlot) error {
	if len(slots) == 0 {
		return ErrNoAvailability
	}
	for _, s := range slots {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("slot %d/%s-%s: %w", s.DayOfWeek, s.StartTime, s.EndTime, err)
		}
	}
	return nil
}

// ParseTimeOfDay parses "HH:MM" into minutes after local midnight.
func ParseTimeOfDay(v string) (int, error) {
	var hh, mm int
	if _, err := fmt.Sscanf(v, "%02d:%02d", &hh, &mm); err != nil {
		return 0, ErrInvalidTimeOfDay
	}
	if hh < 0 || hh > 23 || mm < 0 || mm > 59 || len(v) != 5 || v[2] != ':' {
		return 0, ErrInvalidTimeOfDay
	}
	return hh*60 + mm, nil
}

// ISOWeekday maps Go's Sunday-based weekday to ISO 8601 (Monday = 1).
func ISOWeekday(d time.Weekday) int {
	if d == time.Sunday {
		return 7
	}
	return int(d)
}

// Settings is the singleton scheduling policy.
type Settings struct {
	MinNoticeHours         int
	BookingWindowDays      int
	DefaultDurationMinutes int
	VideoLink              string
}

// DefaultSettings returns the policy used until the host configures one.
func DefaultSettings() Settings {
	return Settings{
		MinNoticeHours:         6,
		BookingWindowDays:      30,
		DefaultDurationMinutes: 30,
	}
}

// Validate checks the policy bounds.
func (s Settings) Validate() error {
	if s.MinNoticeHours < 0 {
		return ErrInvalidMinNotice
	}
	if s.BookingWindowDays < 1 {
		return ErrInvalidWindowDays
	}
	if s.DefaultDurationMinutes < MinDurationMinutes || s.DefaultDurationMinutes > MaxDurationMinutes {
		return ErrInvalidDuration
	}
	return nil
}

// WindowContains reports whether a slot starting at start satisfies the
// scheduling-window policy relative to now.
func (s Settings) WindowContains(start, now time.Time) bool {
	earliest := now.Add(time.Duration(s.MinNoticeHours) * time.Hour)
	latest := now.AddDate(0, 0, s.BookingWindowDays)
	return !start.Before(earliest) && !start.After(latest)
}
