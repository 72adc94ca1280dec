// Package caldav wraps the CalDAV client operations the sync pipeline
// needs: principal discovery, calendar-home discovery, calendar listing,
// and time-ranged event fetches.
package caldav

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"

	"github.com/felixgeelhaar/michael/internal/calendar/domain"
)

// Well-known provider base URLs.
const (
	FastmailURL = "https://caldav.fastmail.com"
	ICloudURL   = "https://caldav.icloud.com"
)

// requestTimeout bounds every outbound CalDAV call.
const requestTimeout = 60 * time.Second

// Client talks to one CalDAV account.
type Client struct {
	dav *caldav.Client
}

// NewClient creates a client for the source using basic auth with an
// app-specific password.
func NewClient(baseURL string, creds domain.Credentials) (*Client, error) {
	httpClient := &http.Client{Timeout: requestTimeout}
	dav, err := caldav.NewClient(
		webdav.HTTPClientWithBasicAuth(httpClient, creds.Username, creds.Password),
		baseURL,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create caldav client: %w", err)
	}
	return &Client{dav: dav}, nil
}

// FindCalendarHome resolves the current-user principal and then the
// principal's calendar-home-set.
func (c *Client) FindCalendarHome(ctx context.Context) (string, error) {
	principal, err := c.dav.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to find principal: %w", err)
	}
	home, err := c.dav.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return "", fmt.Errorf("failed to find calendar home set: %w", err)
	}
	return home, nil
}

// ListEventCalendars lists calendars under home that can hold VEVENTs.
// A calendar that does not advertise a supported-component set is kept.
func (c *Client) ListEventCalendars(ctx context.Context, home string) ([]caldav.Calendar, error) {
	cals, err := c.dav.FindCalendars(ctx, home)
	if err != nil {
		return nil, fmt.Errorf("failed to list calendars: %w", err)
	}

	kept := make([]caldav.Calendar, 0, len(cals))
	for _, cal := range cals {
		if supportsEvents(cal.SupportedComponentSet) {
			kept = append(kept, cal)
		}
	}
	return kept, nil
}

// FetchEvents issues a calendar-query REPORT for VEVENTs intersecting
// [from, to).
func (c *Client) FetchEvents(ctx context.Context, calendarPath string, from, to time.Time) ([]caldav.CalendarObject, error) {
	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name:  "VCALENDAR",
			Props: []string{"VERSION"},
			Comps: []caldav.CalendarCompRequest{
				{
					Name: "VEVENT",
					Props: []string{
						"UID", "SUMMARY", "DTSTART", "DTEND", "DURATION",
						"RRULE", "EXDATE", "RDATE", "STATUS", "TRANSP",
					},
				},
			},
		},
		CompFilter: caldav.CompFilter{
			Name: "VCALENDAR",
			Comps: []caldav.CompFilter{
				{
					Name:  "VEVENT",
					Start: from,
					End:   to,
				},
			},
		},
	}

	objects, err := c.dav.QueryCalendar(ctx, calendarPath, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query calendar %s: %w", calendarPath, err)
	}
	return objects, nil
}

func supportsEvents(components []string) bool {
	if len(components) == 0 {
		return true
	}
	for _, comp := range components {
		if comp == "VEVENT" {
			return true
		}
	}
	return false
}
