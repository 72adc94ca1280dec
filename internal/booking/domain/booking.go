// Package domain holds the Booking aggregate and its invariants.
package domain

import (
	"errors"
	"strings"
	"time"

	schedulingDomain "github.com/felixgeelhaar/michael/internal/scheduling/domain"
	"github.com/google/uuid"
)

var (
	ErrEmptyName        = errors.New("participant name cannot be empty")
	ErrEmptyTitle       = errors.New("booking title cannot be empty")
	ErrInvalidEmail     = errors.New("email address is not valid")
	ErrInvalidDuration  = errors.New("duration must be between 5 and 480 minutes")
	ErrSlotMismatch     = errors.New("slot length does not match the requested duration")
	ErrInvalidTimezone  = errors.New("timezone is not a valid IANA identifier")
	ErrAlreadyCancelled = errors.New("booking is already cancelled")
)

// Field length bounds applied before persistence.
const (
	maxNameLen        = 200
	maxEmailLen       = 254
	maxPhoneLen       = 50
	maxTitleLen       = 300
	maxDescriptionLen = 2000
)

// Status is the booking lifecycle state.
type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

// IsValid checks if the status is a known variant.
func (s Status) IsValid() bool {
	return s == StatusConfirmed || s == StatusCancelled
}

// Booking is a confirmed or cancelled reservation of a slot. Start and
// End keep the wall-clock offset the participant booked in; Timezone
// records the IANA zone used for display.
type Booking struct {
	ID              uuid.UUID
	Name            string
	Email           string
	Phone           string
	Title           string
	Description     string
	Start           time.Time
	End             time.Time
	Timezone        string
	DurationMinutes int
	Status          Status
	CreatedAt       time.Time
}

// NewBooking validates and constructs a confirmed booking.
func NewBooking(name, email, phone, title, description string, start, end time.Time, timezone string, durationMinutes int, now time.Time) (*Booking, error) {
	name = Sanitize(name, maxNameLen)
	email = Sanitize(email, maxEmailLen)
	phone = Sanitize(phone, maxPhoneLen)
	title = Sanitize(title, maxTitleLen)
	description = Sanitize(description, maxDescriptionLen)

	if name == "" {
		return nil, ErrEmptyName
	}
	if title == "" {
		return nil, ErrEmptyTitle
	}
	if !ValidEmail(email) {
		return nil, ErrInvalidEmail
	}
	if durationMinutes < schedulingDomain.MinDurationMinutes || durationMinutes > schedulingDomain.MaxDurationMinutes {
		return nil, ErrInvalidDuration
	}
	if end.Sub(start) != time.Duration(durationMinutes)*time.Minute {
		return nil, ErrSlotMismatch
	}
	if _, err := time.LoadLocation(timezone); err != nil {
		return nil, ErrInvalidTimezone
	}

	return &Booking{
		ID:              uuid.New(),
		Name:            name,
		Email:           email,
		Phone:           phone,
		Title:           title,
		Description:     description,
		Start:           start,
		End:             end,
		Timezone:        timezone,
		DurationMinutes: durationMinutes,
		Status:          StatusConfirmed,
		CreatedAt:       now,
	}, nil
}

// Cancel transitions the booking to cancelled. Cancelling twice is an
// error the caller may treat as idempotent success.
func (b *Booking) Cancel() error {
	if b.Status == StatusCancelled {
		return ErrAlreadyCancelled
	}
	b.Status = StatusCancelled
	return nil
}

// Interval returns the booked range as a half-open instant interval.
func (b *Booking) Interval() schedulingDomain.Interval {
	return schedulingDomain.NewInterval(b.Start, b.End)
}

// ValidEmail applies the structural rule: local@domain with a dot in the
// domain and no trailing dot.
func ValidEmail(email string) bool {
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return false
	}
	domain := email[at+1:]
	if !strings.Contains(domain, ".") || strings.HasSuffix(domain, ".") {
		return false
	}
	if strings.ContainsAny(email, " \t") {
		return false
	}
	return true
}

// Sanitize strips control characters, trims whitespace, and truncates
// to max runes.
func Sanitize(s string, max int) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			if r == '\n' || r == '\t' {
				b.WriteRune(' ')
			}
			continue
		}
		b.WriteRune(r)
	}
	out := strings.TrimSpace(b.String())
	runes := []rune(out)
	if len(runes) > max {
		out = string(runes[:max])
	}
	return out
}
