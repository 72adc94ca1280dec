// Package notify sends booking emails over SMTP. When SMTP is not
// configured the mailer runs disabled and every send is a logged no-op.
package notify

import (
	"fmt"
	"log/slog"
	"time"

	mail "gopkg.in/mail.v2"

	"github.com/felixgeelhaar/michael/internal/booking/domain"
)

const dialTimeout = 10 * time.Second

// Config holds the SMTP connection settings. FromName is an optional
// display name for the sender address.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

// Mailer sends booking confirmation and cancellation emails.
type Mailer struct {
	dialer   *mail.Dialer
	from     string
	fromName string
	hostLoc  *time.Location
	logger   *slog.Logger
}

// NewMailer creates a mailer. A nil cfg produces a disabled mailer that
// logs instead of sending.
func NewMailer(cfg *Config, hostLoc *time.Location, logger *slog.Logger) *Mailer {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Mailer{hostLoc: hostLoc, logger: logger}
	if cfg == nil {
		logger.Info("smtp not configured, email notifications disabled")
		return m
	}
	dialer := mail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	dialer.Timeout = dialTimeout
	m.dialer = dialer
	m.from = cfg.From
	m.fromName = cfg.FromName
	return m
}

// Enabled reports whether the mailer will actually send.
func (m *Mailer) Enabled() bool { return m.dialer != nil }

// SendConfirmation emails the participant after a successful booking.
func (m *Mailer) SendConfirmation(b *domain.Booking) error {
	subject := fmt.Sprintf("Confirmed: %s", b.Title)
	body := fmt.Sprintf(
		"Hi %s,\n\nYour meeting is confirmed.\n\n%s\n%s\n\nSee you then.\n",
		b.Name, b.Title, m.formatRange(b),
	)
	return m.send(b.Email, subject, body)
}

// SendCancellation emails the participant after an admin cancels.
func (m *Mailer) SendCancellation(b *domain.Booking) error {
	subject := fmt.Sprintf("Cancelled: %s", b.Title)
	body := fmt.Sprintf(
		"Hi %s,\n\nYour meeting has been cancelled.\n\n%s\n%s\n",
		b.Name, b.Title, m.formatRange(b),
	)
	return m.send(b.Email, subject, body)
}

func (m *Mailer) send(to, subject, body string) error {
	if m.dialer == nil {
		m.logger.Debug("email suppressed, smtp disabled", "subject", subject)
		return nil
	}
	msg := mail.NewMessage()
	msg.SetAddressHeader("From", m.from, m.fromName)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)
	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

// formatRange renders the booking time in the participant's timezone,
// falling back to the host timezone when it does not load.
func (m *Mailer) formatRange(b *domain.Booking) string {
	loc := m.hostLoc
	if l, err := time.LoadLocation(b.Timezone); err == nil {
		loc = l
	}
	start := b.Start.In(loc)
	end := b.End.In(loc)
	return fmt.Sprintf("%s – %s (%s)",
		start.Format("Monday, January 2, 2006 15:04"),
		end.Format("15:04"),
		loc.String(),
	)
}
