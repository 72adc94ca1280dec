package application

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	bookingDomain "github.com/felixgeelhaar/michael/internal/booking/domain"
	calendarDomain "github.com/felixgeelhaar/michael/internal/calendar/domain"
	"github.com/felixgeelhaar/michael/internal/scheduling/domain"
	sharedDomain "github.com/felixgeelhaar/michael/internal/shared/domain"
)

// AvailabilityStore is the scheduling persistence surface.
type AvailabilityStore interface {
	Slots(ctx context.Context) ([]domain.WeeklySlot, error)
	ReplaceSlots(ctx context.Context, slots []domain.WeeklySlot) error
	Settings(ctx context.Context) (domain.Settings, error)
	SaveSettings(ctx context.Context, s domain.Settings) error
}

// BookingReader exposes confirmed bookings for a range.
type BookingReader interface {
	FindConfirmedInRange(ctx context.Context, from, to time.Time) ([]*bookingDomain.Booking, error)
}

// EventReader exposes cached external events for a range.
type EventReader interface {
	FindEventsInRange(ctx context.Context, from, to time.Time) ([]calendarDomain.CachedEvent, error)
}

// SlotService computes open slots against stored availability and the
// current blocker set, and owns the admin availability operations.
type SlotService struct {
	availability AvailabilityStore
	bookings     BookingReader
	events       EventReader
	clock        sharedDomain.Clock
	hostLoc      *time.Location
	logger       *slog.Logger
}

// NewSlotService creates the slot service.
func NewSlotService(availability AvailabilityStore, bookings BookingReader, events EventReader, clock sharedDomain.Clock, hostLoc *time.Location, logger *slog.Logger) *SlotService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlotService{
		availability: availability,
		bookings:     bookings,
		events:       events,
		clock:        clock,
		hostLoc:      hostLoc,
		logger:       logger,
	}
}

// OpenSlots runs the slot engine over the participant's windows with
// blockers loaded from the store.
func (s *SlotService) OpenSlots(ctx context.Context, windows []Window, duration time.Duration, displayLoc *time.Location) ([]Slot, error) {
	if len(windows) == 0 {
		return nil, ErrNoWindows
	}

	settings, err := s.availability.Settings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	weekly, err := s.availability.Slots(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load availability: %w", err)
	}

	from, to := windows[0].Start, windows[0].End
	for _, w := range windows[1:] {
		if w.Start.Before(from) {
			from = w.Start
		}
		if w.End.After(to) {
			to = w.End
		}
	}
	blockers, err := s.loadBlockers(ctx, from, to)
	if err != nil {
		return nil, err
	}

	return ComputeSlots(SlotRequest{
		Windows:    windows,
		Duration:   duration,
		Weekly:     weekly,
		HostLoc:    s.hostLoc,
		DisplayLoc: displayLoc,
		Blockers:   blockers,
		Now:        s.clock.Now(),
		Settings:   settings,
	})
}

// WeeklySlots returns the stored weekly template.
func (s *SlotService) WeeklySlots(ctx context.Context) ([]domain.WeeklySlot, error) {
	return s.availability.Slots(ctx)
}

// ReplaceWeeklySlots validates and stores a new weekly template.
func (s *SlotService) ReplaceWeeklySlots(ctx context.Context, slots []domain.WeeklySlot) error {
	if err := domain.ValidateWeeklySlots(slots); err != nil {
		return err
	}
	return s.availability.ReplaceSlots(ctx, slots)
}

// Settings returns the scheduling policy.
func (s *SlotService) Settings(ctx context.Context) (domain.Settings, error) {
	return s.availability.Settings(ctx)
}

// SaveSettings validates and stores the scheduling policy.
func (s *SlotService) SaveSettings(ctx context.Context, settings domain.Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	return s.availability.SaveSettings(ctx, settings)
}

func (s *SlotService) loadBlockers(ctx context.Context, from, to time.Time) ([]domain.Interval, error) {
	existing, err := s.bookings.FindConfirmedInRange(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to load bookings: %w", err)
	}
	events, err := s.events.FindEventsInRange(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to load cached events: %w", err)
	}
	blockers := make([]domain.Interval, 0, len(existing)+len(events))
	for _, b := range existing {
		blockers = append(blockers, b.Interval())
	}
	for _, e := range events {
		blockers = append(blockers, domain.NewInterval(e.Start, e.End))
	}
	return blockers, nil
}

// ViewEventType tags a calendar-view entry by origin.
type ViewEventType string

const (
	ViewAvailability ViewEventType = "availability"
	ViewCalendar     ViewEventType = "calendar"
	ViewBooking      ViewEventType = "booking"
)

// ViewEvent is one merged calendar-view entry.
type ViewEvent struct {
	Type   ViewEventType
	Title  string
	Start  time.Time
	End    time.Time
	AllDay bool
}

// CalendarView merges availability, cached external events, and
// confirmed bookings over [from, to). Availability entries come first
// so later types render on top, and availability is suppressed for any
// host-local date covered by an all-day external event.
func (s *SlotService) CalendarView(ctx context.Context, from, to time.Time) ([]ViewEvent, error) {
	weekly, err := s.availability.Slots(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load availability: %w", err)
	}
	events, err := s.events.FindEventsInRange(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to load cached events: %w", err)
	}
	bookings, err := s.bookings.FindConfirmedInRange(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to load bookings: %w", err)
	}

	allDayDates := make(map[string]bool)
	for _, e := range events {
		if !e.AllDay {
			continue
		}
		for d := e.Start.In(s.hostLoc); d.Before(e.End.In(s.hostLoc)); d = d.AddDate(0, 0, 1) {
			allDayDates[d.Format("2006-01-02")] = true
		}
	}

	var out []ViewEvent
	for _, iv := range ExpandWeekly(weekly, from, to, s.hostLoc) {
		if allDayDates[iv.Start.In(s.hostLoc).Format("2006-01-02")] {
			continue
		}
		out = append(out, ViewEvent{
			Type:  ViewAvailability,
			Title: "Available",
			Start: iv.Start,
			End:   iv.End,
		})
	}

	sort.Slice(events, func(i, j int) bool { return events[i].Start.Before(events[j].Start) })
	for _, e := range events {
		out = append(out, ViewEvent{
			Type:   ViewCalendar,
			Title:  e.Summary,
			Start:  e.Start,
			End:    e.End,
			AllDay: e.AllDay,
		})
	}
	for _, b := range bookings {
		out = append(out, ViewEvent{
			Type:  ViewBooking,
			Title: b.Title,
			Start: b.Start,
			End:   b.End,
		})
	}
	return out, nil
}
