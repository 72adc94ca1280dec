// Package application implements booking commands and queries: the
// book-with-revalidation flow, cancellation, listing, and the dashboard.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/michael/internal/booking/domain"
	bookingPersistence "github.com/felixgeelhaar/michael/internal/booking/infrastructure/persistence"
	calendarDomain "github.com/felixgeelhaar/michael/internal/calendar/domain"
	schedulingApp "github.com/felixgeelhaar/michael/internal/scheduling/application"
	schedulingDomain "github.com/felixgeelhaar/michael/internal/scheduling/domain"
	sharedDomain "github.com/felixgeelhaar/michael/internal/shared/domain"
	"github.com/google/uuid"
)

var (
	// ErrSlotUnavailable is the conflict result of revalidation.
	ErrSlotUnavailable = errors.New("the requested slot is no longer available")
	// ErrNotFound is returned for unknown booking ids.
	ErrNotFound = errors.New("booking not found")
)

// Repository is the booking store surface the service depends on.
type Repository interface {
	InsertIfNoConflict(ctx context.Context, b *domain.Booking) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Booking, error)
	List(ctx context.Context, f bookingPersistence.ListFilter) ([]*domain.Booking, int, error)
	FindConfirmedInRange(ctx context.Context, from, to time.Time) ([]*domain.Booking, error)
	Cancel(ctx context.Context, id uuid.UUID) (bool, error)
	CountUpcoming(ctx context.Context, now time.Time) (int, error)
	NextUpcoming(ctx context.Context, now time.Time) (*domain.Booking, error)
}

// AvailabilityReader exposes the host template and scheduling policy.
type AvailabilityReader interface {
	Slots(ctx context.Context) ([]schedulingDomain.WeeklySlot, error)
	Settings(ctx context.Context) (schedulingDomain.Settings, error)
}

// BlockerReader exposes cached external events for a range.
type BlockerReader interface {
	FindEventsInRange(ctx context.Context, from, to time.Time) ([]calendarDomain.CachedEvent, error)
}

// Mailer sends booking notifications. Implementations must be safe to
// call with a disabled transport.
type Mailer interface {
	SendConfirmation(b *domain.Booking) error
	SendCancellation(b *domain.Booking) error
}

// Service wires the revalidation protocol over the store.
type Service struct {
	bookings     Repository
	availability AvailabilityReader
	blockers     BlockerReader
	mailer       Mailer
	clock        sharedDomain.Clock
	hostLoc      *time.Location
	logger       *slog.Logger
}

// NewService creates the booking service.
func NewService(bookings Repository, availability AvailabilityReader, blockers BlockerReader, mailer Mailer, clock sharedDomain.Clock, hostLoc *time.Location, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		bookings:     bookings,
		availability: availability,
		blockers:     blockers,
		mailer:       mailer,
		clock:        clock,
		hostLoc:      hostLoc,
		logger:       logger,
	}
}

// BookRequest is a shape-checked booking request.
type BookRequest struct {
	Name            string
	Email           string
	Phone           string
	Title           string
	Description     string
	Start           time.Time
	End             time.Time
	Timezone        string
	DurationMinutes int
}

// Book revalidates the proposed slot under current state and atomically
// reserves it. The slot-engine run is an optimistic pre-check; the
// transactional insert inside the repository is the serialization point
// between concurrent requests.
func (s *Service) Book(ctx context.Context, req BookRequest) (*domain.Booking, error) {
	now := s.clock.Now()
	booking, err := domain.NewBooking(req.Name, req.Email, req.Phone, req.Title, req.Description,
		req.Start, req.End, req.Timezone, req.DurationMinutes, now)
	if err != nil {
		return nil, err
	}

	ok, err := s.slotStillOpen(ctx, booking, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSlotUnavailable
	}

	if err := s.bookings.InsertIfNoConflict(ctx, booking); err != nil {
		if errors.Is(err, bookingPersistence.ErrConflict) {
			return nil, ErrSlotUnavailable
		}
		return nil, fmt.Errorf("failed to insert booking: %w", err)
	}

	if err := s.mailer.SendConfirmation(booking); err != nil {
		s.logger.Warn("confirmation email failed", "booking_id", booking.ID, "error", err)
	}
	s.logger.Info("booking confirmed", "booking_id", booking.ID, "start", booking.Start)
	return booking, nil
}

// slotStillOpen re-runs the slot engine over a single window equal to
// the proposed slot and checks the slot survives.
func (s *Service) slotStillOpen(ctx context.Context, b *domain.Booking, now time.Time) (bool, error) {
	settings, err := s.availability.Settings(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to load settings: %w", err)
	}
	weekly, err := s.availability.Slots(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to load availability: %w", err)
	}
	existing, err := s.bookings.FindConfirmedInRange(ctx, b.Start, b.End)
	if err != nil {
		return false, fmt.Errorf("failed to load bookings: %w", err)
	}
	events, err := s.blockers.FindEventsInRange(ctx, b.Start, b.End)
	if err != nil {
		return false, fmt.Errorf("failed to load cached events: %w", err)
	}

	blockers := make([]schedulingDomain.Interval, 0, len(existing)+len(events))
	for _, e := range existing {
		blockers = append(blockers, e.Interval())
	}
	for _, e := range events {
		blockers = append(blockers, schedulingDomain.NewInterval(e.Start, e.End))
	}

	displayLoc, err := time.LoadLocation(b.Timezone)
	if err != nil {
		return false, domain.ErrInvalidTimezone
	}

	slots, err := schedulingApp.ComputeSlots(schedulingApp.SlotRequest{
		Windows:    []schedulingApp.Window{{Start: b.Start, End: b.End}},
		Duration:   time.Duration(b.DurationMinutes) * time.Minute,
		Weekly:     weekly,
		HostLoc:    s.hostLoc,
		DisplayLoc: displayLoc,
		Blockers:   blockers,
		Now:        now,
		Settings:   settings,
	})
	if err != nil {
		return false, err
	}
	for _, slot := range slots {
		if slot.Start.Equal(b.Start) && slot.End.Equal(b.End) {
			return true, nil
		}
	}
	return false, nil
}

// Cancel transitions a booking to cancelled. Cancelling an already
// cancelled booking succeeds; an unknown id returns ErrNotFound. The
// cancellation email is best effort.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) error {
	booking, err := s.bookings.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if booking == nil {
		return ErrNotFound
	}

	alreadyCancelled := booking.Status == domain.StatusCancelled
	if !alreadyCancelled {
		found, err := s.bookings.Cancel(ctx, id)
		if err != nil {
			return err
		}
		if !found {
			return ErrNotFound
		}
		booking.Status = domain.StatusCancelled
		if err := s.mailer.SendCancellation(booking); err != nil {
			s.logger.Warn("cancellation email failed", "booking_id", id, "error", err)
		}
	}
	s.logger.Info("booking cancelled", "booking_id", id, "was_cancelled", alreadyCancelled)
	return nil
}

// Get returns a booking by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	booking, err := s.bookings.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, ErrNotFound
	}
	return booking, nil
}

// List returns a page of bookings plus the total count.
func (s *Service) List(ctx context.Context, f bookingPersistence.ListFilter) ([]*domain.Booking, int, error) {
	return s.bookings.List(ctx, f)
}

// Dashboard summarizes upcoming confirmed bookings.
type Dashboard struct {
	UpcomingCount    int
	NextBookingTime  *time.Time
	NextBookingTitle string
}

// GetDashboard computes the admin dashboard summary.
func (s *Service) GetDashboard(ctx context.Context) (*Dashboard, error) {
	now := s.clock.Now()
	count, err := s.bookings.CountUpcoming(ctx, now)
	if err != nil {
		return nil, err
	}
	d := &Dashboard{UpcomingCount: count}
	next, err := s.bookings.NextUpcoming(ctx, now)
	if err != nil {
		return nil, err
	}
	if next != nil {
		d.NextBookingTime = &next.Start
		d.NextBookingTitle = next.Title
	}
	return d, nil
}
