package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validArgs() (name, email, phone, title, desc string, start, end time.Time, tz string, dur int) {
	start = time.Date(2026, 2, 10, 13, 0, 0, 0, time.UTC)
	return "Ada Lovelace", "ada@example.com", "+44 20 7946 0958", "Intro call", "",
		start, start.Add(30 * time.Minute), "Europe/London", 30
}

func TestNewBooking(t *testing.T) {
	name, email, phone, title, desc, start, end, tz, dur := validArgs()
	now := time.Date(2026, 2, 10, 10, 0, 0, 0, time.UTC)

	b, err := NewBooking(name, email, phone, title, desc, start, end, tz, dur, now)

	require.NoError(t, err)
	assert.NotEqual(t, "", b.ID.String())
	assert.Equal(t, StatusConfirmed, b.Status)
	assert.True(t, b.CreatedAt.Equal(now))
	assert.Equal(t, 30, b.DurationMinutes)
}

func TestNewBookingValidation(t *testing.T) {
	now := time.Now()
	start := time.Date(2026, 2, 10, 13, 0, 0, 0, time.UTC)
	end := start.Add(30 * time.Minute)

	tests := []struct {
		name    string
		call    func() (*Booking, error)
		wantErr error
	}{
		{
			name: "empty name",
			call: func() (*Booking, error) {
				return NewBooking("   ", "ada@example.com", "", "Intro", "", start, end, "UTC", 30, now)
			},
			wantErr: ErrEmptyName,
		},
		{
			name: "empty title",
			call: func() (*Booking, error) {
				return NewBooking("Ada", "ada@example.com", "", "", "", start, end, "UTC", 30, now)
			},
			wantErr: ErrEmptyTitle,
		},
		{
			name: "bad email",
			call: func() (*Booking, error) {
				return NewBooking("Ada", "nodomain@", "", "Intro", "", start, end, "UTC", 30, now)
			},
			wantErr: ErrInvalidEmail,
		},
		{
			name: "duration too short",
			call: func() (*Booking, error) {
				return NewBooking("Ada", "ada@example.com", "", "Intro", "", start, start.Add(4*time.Minute), "UTC", 4, now)
			},
			wantErr: ErrInvalidDuration,
		},
		{
			name: "slot length mismatch",
			call: func() (*Booking, error) {
				return NewBooking("Ada", "ada@example.com", "", "Intro", "", start, start.Add(45*time.Minute), "UTC", 30, now)
			},
			wantErr: ErrSlotMismatch,
		},
		{
			name: "unknown timezone",
			call: func() (*Booking, error) {
				return NewBooking("Ada", "ada@example.com", "", "Intro", "", start, end, "Mars/Olympus_Mons", 30, now)
			},
			wantErr: ErrInvalidTimezone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.call()
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestValidEmail(t *testing.T) {
	valid := []string{
		"a@b.co",
		"first.last@sub.example.com",
		"user+tag@example.org",
	}
	invalid := []string{
		"",
		"plain",
		"@example.com",
		"user@",
		"user@nodot",
		"user@example.com.",
		"two words@example.com",
	}

	for _, e := range valid {
		assert.True(t, ValidEmail(e), "expected valid: %q", e)
	}
	for _, e := range invalid {
		assert.False(t, ValidEmail(e), "expected invalid: %q", e)
	}
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "hello world", Sanitize("  hello\x00 world\x07  ", 100))
	assert.Equal(t, "a b", Sanitize("a\nb", 100))
	assert.Equal(t, "abc", Sanitize("abcdef", 3))
	assert.Equal(t, "héllo", Sanitize("héllo", 5), "truncation counts runes, not bytes")
}

func TestCancel(t *testing.T) {
	name, email, phone, title, desc, st, en, tz, dur := validArgs()
	b, err := NewBooking(name, email, phone, title, desc, st, en, tz, dur, time.Now())
	require.NoError(t, err)

	require.NoError(t, b.Cancel())
	assert.Equal(t, StatusCancelled, b.Status)
	assert.ErrorIs(t, b.Cancel(), ErrAlreadyCancelled)
}

func TestStatusIsValid(t *testing.T) {
	assert.True(t, StatusConfirmed.IsValid())
	assert.True(t, StatusCancelled.IsValid())
	assert.False(t, Status("pending").IsValid())
	assert.False(t, Status(strings.ToUpper(string(StatusConfirmed))).IsValid())
}
